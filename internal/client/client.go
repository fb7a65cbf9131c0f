package client

import (
	"fmt"
	"math/rand"
	"net"
	"sort"
	"strconv"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/danmuck/helpctl/internal/logging"
	"github.com/danmuck/helpctl/internal/loop"
	"github.com/danmuck/helpctl/internal/mux"
	"github.com/danmuck/helpctl/internal/protocol/session"
	"github.com/danmuck/helpctl/internal/timer"
	"github.com/rs/zerolog"
)

type Config struct {
	Host string
	Port int
	User string
	// Session.HeartbeatTimeout is the base timeout; requests wait twice as long.
	Session session.Config
	// DisableKeepAlive skips the heartbeat consumer. The socket then lives
	// only while requests are pending and is never reconnected.
	DisableKeepAlive bool
}

func DefaultConfig() Config {
	return Config{
		Host:    "localhost",
		Port:    3000,
		Session: session.DefaultConfig(),
	}
}

// Status is a point-in-time view of the session.
type Status struct {
	User          string                   `json:"user"`
	Address       string                   `json:"address"`
	Generation    uint64                   `json:"generation"`
	Connected     bool                     `json:"connected"`
	KeepAlive     bool                     `json:"keep_alive"`
	PendingCount  int                      `json:"pending_count"`
	Pending       []session.PendingRequest `json:"pending"`
	// Overdue lists pending requests past their deadline whose expiry has
	// not run yet; non-empty only when the session loop is backed up.
	Overdue       []session.PendingRequest `json:"overdue"`
	LastHeartbeat time.Time                `json:"last_heartbeat"`
	Reconnects    uint64                   `json:"reconnects"`
	Closed        bool                     `json:"closed"`
}

// Client is one logical session bound to a user. Public methods are safe for
// concurrent use but must not be called from a reply callback running on the
// session loop (Close and Status wait for the loop).
type Client struct {
	cfg    Config
	addr   string
	loop   *loop.Loop
	outbox *session.Outbox
	log    zerolog.Logger

	// postMu orders issue posts before the shutdown post.
	postMu sync.Mutex
	closed atomic.Bool

	// Owned by the loop.
	rng            *rand.Rand
	mux            *mux.Multiplexer
	generation     uint64
	everConnected  bool
	failedGens     int
	heartbeatID    mux.ConsumerID
	hasHeartbeat   bool
	watchdog       *timer.Timer
	reconnectDelay *timer.Timer
	lastHeartbeat  time.Time
	reconnects     uint64
	pending        map[string]*pendingCall
	stopped        bool
}

// New validates cfg and starts the session. No socket is opened when
// validation fails.
func New(cfg Config) (*Client, error) {
	var missing []string
	if strings.TrimSpace(cfg.Host) == "" {
		missing = append(missing, "host")
	}
	if cfg.Port <= 0 || cfg.Port > 65535 {
		missing = append(missing, "port")
	}
	if strings.TrimSpace(cfg.User) == "" {
		missing = append(missing, "user")
	}
	if len(missing) > 0 {
		return nil, fmt.Errorf("%w: missing %s", ErrInvalidArguments, strings.Join(missing, ", "))
	}
	cfg.Session = cfg.Session.WithDefaults()

	c := &Client{
		cfg:     cfg,
		addr:    net.JoinHostPort(strings.TrimSpace(cfg.Host), strconv.Itoa(cfg.Port)),
		outbox:  session.NewOutbox(),
		rng:     rand.New(rand.NewSource(time.Now().UnixNano())),
		pending: make(map[string]*pendingCall),
	}
	c.log = logging.Component("client").With().
		Str("user", cfg.User).
		Str("addr", c.addr).
		Logger()
	c.loop = loop.New("client:" + cfg.User)

	m, err := c.newGeneration()
	if err != nil {
		c.loop.Stop()
		return nil, err
	}
	c.mux = m
	if !cfg.DisableKeepAlive {
		c.loop.Post(c.connect)
	}
	return c, nil
}

// Close stops heartbeats, rejects pending calls with ErrClientClosed and
// releases the socket. Safe to call more than once.
func (c *Client) Close() error {
	c.postMu.Lock()
	if !c.closed.CompareAndSwap(false, true) {
		c.postMu.Unlock()
		return nil
	}
	c.postMu.Unlock()
	_ = c.loop.Do(c.shutdown)
	c.loop.Stop()
	return nil
}

func (c *Client) Status() Status {
	st := Status{
		User:         c.cfg.User,
		Address:      c.addr,
		KeepAlive:    !c.cfg.DisableKeepAlive,
		PendingCount: c.outbox.Len(),
		Pending:      c.outbox.List(),
		Overdue:      c.outbox.Overdue(time.Now()),
		Closed:       c.closed.Load(),
	}
	_ = c.loop.Do(func() {
		st.Generation = c.generation
		st.Connected = c.mux != nil && c.mux.Connected()
		st.LastHeartbeat = c.lastHeartbeat
		st.Reconnects = c.reconnects
	})
	return st
}

func (c *Client) shutdown() {
	c.stopped = true
	if c.watchdog != nil {
		c.watchdog.Cancel()
	}
	if c.reconnectDelay != nil {
		c.reconnectDelay.Cancel()
	}
	if c.hasHeartbeat {
		c.hasHeartbeat = false
		c.mux.Unregister(c.heartbeatID)
	}

	ids := make([]string, 0, len(c.pending))
	for id := range c.pending {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	for _, id := range ids {
		p := c.pending[id]
		p.mux.Unregister(p.consumerID)
		c.settle(p, Reply{}, ErrClientClosed)
	}
	c.log.Info().Uint64("generation", c.generation).Int("rejected", len(ids)).Msg("session closed")
}
