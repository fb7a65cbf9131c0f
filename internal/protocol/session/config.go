package session

import "time"

// BackoffConfig defines reconnect backoff behavior.
type BackoffConfig struct {
	InitialDelay time.Duration
	Multiplier   float64
	MaxDelay     time.Duration
	Jitter       bool
}

// Config defines transport/session reliability defaults.
type Config struct {
	ConnectTimeout time.Duration
	WriteTimeout   time.Duration
	// HeartbeatTimeout is the base timeout: the longest silence between
	// heartbeats before the session reconnects.
	HeartbeatTimeout time.Duration
	// RequestTimeoutFactor scales HeartbeatTimeout into the per-request deadline.
	RequestTimeoutFactor int
	// OutboundQueue caps writes waiting on a slow socket. Overflow fails the
	// socket with mux.ErrOutboundQueueFull for every registered consumer.
	OutboundQueue        int
	ReadBufferSize       int
	Backoff              BackoffConfig
}

func DefaultConfig() Config {
	return Config{
		ConnectTimeout:       5 * time.Second,
		WriteTimeout:         5 * time.Second,
		HeartbeatTimeout:     2 * time.Second,
		RequestTimeoutFactor: 2,
		OutboundQueue:        64,
		ReadBufferSize:       64 * 1024,
		Backoff: BackoffConfig{
			InitialDelay: 250 * time.Millisecond,
			Multiplier:   2.0,
			MaxDelay:     5 * time.Second,
			Jitter:       true,
		},
	}
}

// WithDefaults fills zero values from DefaultConfig.
func (c Config) WithDefaults() Config {
	d := DefaultConfig()
	if c.ConnectTimeout <= 0 {
		c.ConnectTimeout = d.ConnectTimeout
	}
	if c.WriteTimeout <= 0 {
		c.WriteTimeout = d.WriteTimeout
	}
	if c.HeartbeatTimeout <= 0 {
		c.HeartbeatTimeout = d.HeartbeatTimeout
	}
	if c.RequestTimeoutFactor <= 0 {
		c.RequestTimeoutFactor = d.RequestTimeoutFactor
	}
	if c.OutboundQueue <= 0 {
		c.OutboundQueue = d.OutboundQueue
	}
	if c.ReadBufferSize <= 0 {
		c.ReadBufferSize = d.ReadBufferSize
	}
	if c.Backoff == (BackoffConfig{}) {
		c.Backoff = d.Backoff
	}
	return c
}

// RequestTimeout is the deadline armed for each outstanding request.
func (c Config) RequestTimeout() time.Duration {
	factor := c.RequestTimeoutFactor
	if factor <= 0 {
		factor = 1
	}
	return c.HeartbeatTimeout * time.Duration(factor)
}
