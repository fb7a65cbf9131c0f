package client

import (
	"time"

	"github.com/danmuck/helpctl/internal/mux"
	"github.com/danmuck/helpctl/internal/observability"
	"github.com/danmuck/helpctl/internal/protocol"
	"github.com/danmuck/helpctl/internal/protocol/session"
	"github.com/danmuck/helpctl/internal/timer"
)

// newGeneration builds a multiplexer for the next socket generation.
func (c *Client) newGeneration() (*mux.Multiplexer, error) {
	c.generation++
	gen := c.generation
	c.everConnected = false

	var m *mux.Multiplexer
	m, err := mux.New(mux.Config{
		Address: c.addr,
		Session: c.cfg.Session,
	}, c.loop, mux.Hooks{
		OnConnect:    func() { c.onConnect(gen, m) },
		OnDisconnect: func() { c.onDisconnect(gen) },
	})
	if err != nil {
		return nil, err
	}
	return m, nil
}

// connect registers the heartbeat consumer on the current generation, which
// opens its socket, and arms the watchdog.
func (c *Client) connect() {
	if c.stopped || c.cfg.DisableKeepAlive {
		return
	}
	id, err := c.mux.Register(mux.ConsumerFunc(c.consumeHeartbeat))
	if err != nil {
		c.log.Error().Err(err).Msg("register heartbeat consumer")
		return
	}
	c.heartbeatID = id
	c.hasHeartbeat = true

	// Armed before connect so a generation whose dial fails still reconnects.
	if c.watchdog == nil {
		c.watchdog = timer.Start(c.loop, c.onWatchdog, c.cfg.Session.HeartbeatTimeout)
	} else {
		c.watchdog.Reset()
	}
}

// onConnect sends the handshake on every socket m opens, including sockets of
// a generation that was replaced while still dialing: requests queued there
// are flushed right after it.
func (c *Client) onConnect(gen uint64, m *mux.Multiplexer) {
	if c.stopped {
		return
	}
	hs, err := protocol.EncodeHandshake(c.cfg.User)
	if err != nil {
		c.log.Error().Err(err).Msg("encode handshake")
		return
	}
	m.Write(hs)
	observability.RecordConnectionOpened()
	c.log.Info().Uint64("generation", gen).Uint64("current", c.generation).Msg("handshake sent")

	if gen != c.generation {
		return
	}
	c.everConnected = true
	c.failedGens = 0
	if c.watchdog != nil && c.hasHeartbeat {
		c.watchdog.Reset()
	}
}

func (c *Client) onDisconnect(gen uint64) {
	c.log.Debug().Uint64("generation", gen).Uint64("current", c.generation).Msg("socket released")
}

func (c *Client) consumeHeartbeat(err error, msgs []string) bool {
	if err != nil {
		// The multiplexer drops every consumer on error; the watchdog
		// still runs and will rebuild the generation.
		c.hasHeartbeat = false
		c.log.Warn().Err(err).Uint64("generation", c.generation).Msg("heartbeat consumer lost connection")
		return true
	}
	for _, msg := range msgs {
		if protocol.IsHeartbeat(msg) {
			c.lastHeartbeat = time.Now()
			observability.RecordHeartbeat()
			if c.watchdog != nil {
				c.watchdog.Reset()
			}
			break
		}
	}
	return false
}

// onWatchdog replaces the current generation after heartbeat silence.
func (c *Client) onWatchdog() {
	if c.stopped {
		return
	}
	c.reconnects++
	observability.RecordReconnect()
	c.log.Warn().
		Uint64("generation", c.generation).
		Dur("timeout", c.cfg.Session.HeartbeatTimeout).
		Msg("heartbeat missed; reconnecting")

	old := c.mux
	if c.hasHeartbeat {
		c.hasHeartbeat = false
		// Closes the old socket unless requests are still pending on it.
		old.Unregister(c.heartbeatID)
	}

	connected := c.everConnected
	next, err := c.newGeneration()
	if err != nil {
		c.log.Error().Err(err).Msg("build generation")
		return
	}
	c.mux = next

	if !connected {
		c.failedGens++
	}
	delay := session.GenerationDelay(c.cfg.Session.Backoff, c.failedGens, c.rng)
	if delay <= 0 {
		c.connect()
		return
	}
	c.log.Info().Int("failed_generations", c.failedGens).Dur("delay", delay).Msg("previous generation never connected; backing off")
	if c.reconnectDelay != nil {
		c.reconnectDelay.Cancel()
	}
	c.reconnectDelay = timer.Start(c.loop, c.connect, delay)
}
