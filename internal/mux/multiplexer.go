package mux

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net"
	"strings"
	"time"

	"github.com/danmuck/helpctl/internal/logging"
	"github.com/danmuck/helpctl/internal/protocol"
	"github.com/danmuck/helpctl/internal/protocol/session"
	"github.com/rs/zerolog"
)

var (
	ErrConnectionClosed  = errors.New("mux: connection closed")
	ErrNilConsumer       = errors.New("mux: consumer required")
	ErrAddressRequired   = errors.New("mux: address required")
	// ErrOutboundQueueFull fails a socket whose writer fell
	// Session.OutboundQueue messages behind.
	ErrOutboundQueueFull = errors.New("mux: outbound queue full")
)

// Scheduler serializes every callback of a Multiplexer. *loop.Loop satisfies it.
type Scheduler interface {
	Post(fn func()) bool
}

// Hooks observe socket lifecycle. Both run on the Scheduler.
type Hooks struct {
	// OnConnect runs once the socket is established, before queued writes are flushed.
	OnConnect func()
	// OnDisconnect runs after the socket has been torn down.
	OnDisconnect func()
}

type Config struct {
	Address string
	Session session.Config
}

type Multiplexer struct {
	cfg   Config
	sched Scheduler
	hooks Hooks
	log   zerolog.Logger

	consumers   []*entry
	nextID      ConsumerID
	link        *link
	linkSeq     uint64
	dispatching bool
}

func New(cfg Config, sched Scheduler, hooks Hooks) (*Multiplexer, error) {
	if strings.TrimSpace(cfg.Address) == "" {
		return nil, ErrAddressRequired
	}
	if sched == nil {
		return nil, fmt.Errorf("mux: scheduler required")
	}
	cfg.Session = cfg.Session.WithDefaults()
	return &Multiplexer{
		cfg:   cfg,
		sched: sched,
		hooks: hooks,
		log:   logging.Component("mux").With().Str("addr", cfg.Address).Logger(),
	}, nil
}

// Register adds a consumer, opening the socket if none is open.
func (m *Multiplexer) Register(c Consumer) (ConsumerID, error) {
	if c == nil {
		return 0, ErrNilConsumer
	}
	m.nextID++
	id := m.nextID
	m.consumers = append(m.consumers, &entry{id: id, consumer: c})
	if m.link == nil {
		m.open()
	}
	return id, nil
}

// Unregister removes a consumer. Unknown or already removed ids are ignored.
func (m *Multiplexer) Unregister(id ConsumerID) {
	for _, e := range m.consumers {
		if e.id == id && !e.removed {
			e.removed = true
			break
		}
	}
	if !m.dispatching {
		m.compact()
	}
	m.verify()
}

// Write sends msg followed by the delimiter. Without a socket it is a no-op;
// while the dial is in flight the message is held until connect.
func (m *Multiplexer) Write(msg string) {
	l := m.link
	if l == nil {
		m.log.Debug().Msg("write dropped: no socket")
		return
	}
	if !l.connected {
		l.pending = append(l.pending, msg)
		return
	}
	m.enqueue(l, msg)
}

// Len is the number of live consumers.
func (m *Multiplexer) Len() int {
	n := 0
	for _, e := range m.consumers {
		if !e.removed {
			n++
		}
	}
	return n
}

// Open reports whether a socket exists, connected or still dialing.
func (m *Multiplexer) Open() bool {
	return m.link != nil
}

func (m *Multiplexer) Connected() bool {
	return m.link != nil && m.link.connected
}

func (m *Multiplexer) open() {
	m.linkSeq++
	l := newLink(m.linkSeq, m.cfg.Session.OutboundQueue)
	m.link = l
	m.log.Debug().Uint64("link", l.id).Msg("opening socket")
	go m.dial(l)
}

func (m *Multiplexer) dial(l *link) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go func() {
		select {
		case <-l.done:
			cancel()
		case <-ctx.Done():
		}
	}()

	dialer := net.Dialer{Timeout: m.cfg.Session.ConnectTimeout}
	conn, err := dialer.DialContext(ctx, "tcp", m.cfg.Address)
	if err != nil {
		if !l.isClosed() {
			m.sched.Post(func() { m.handleError(l, err) })
		}
		return
	}
	if !l.attach(conn) {
		_ = conn.Close()
		return
	}
	m.sched.Post(func() { m.handleConnect(l, conn) })
	m.readLoop(l, conn)
}

func (m *Multiplexer) readLoop(l *link, conn net.Conn) {
	buf := make([]byte, m.cfg.Session.ReadBufferSize)
	for {
		n, err := conn.Read(buf)
		if n > 0 {
			chunk := append([]byte(nil), buf[:n]...)
			m.sched.Post(func() { m.handleData(l, chunk) })
		}
		if err != nil {
			if l.isClosed() {
				return
			}
			if errors.Is(err, io.EOF) {
				err = ErrConnectionClosed
			}
			m.sched.Post(func() { m.handleError(l, err) })
			return
		}
	}
}

func (m *Multiplexer) writeLoop(l *link, conn net.Conn) {
	for {
		select {
		case <-l.done:
			return
		case b := <-l.out:
			if m.cfg.Session.WriteTimeout > 0 {
				_ = conn.SetWriteDeadline(time.Now().Add(m.cfg.Session.WriteTimeout))
			}
			if _, err := conn.Write(b); err != nil {
				if !l.isClosed() {
					m.sched.Post(func() { m.handleError(l, err) })
				}
				return
			}
		}
	}
}

// enqueue hands msg to the writer. A full queue fails the whole link so every
// consumer hears about the lost write instead of waiting out its deadline.
func (m *Multiplexer) enqueue(l *link, msg string) {
	select {
	case l.out <- []byte(msg + protocol.Delimiter):
		return
	default:
	}
	if l.failing {
		return
	}
	l.failing = true
	err := fmt.Errorf("%w: %d messages pending", ErrOutboundQueueFull, cap(l.out))
	m.log.Warn().Uint64("link", l.id).Int("queue", cap(l.out)).Msg("outbound queue full; failing socket")
	// Posted: enqueue may run inside a consumer pass.
	m.sched.Post(func() { m.handleError(l, err) })
}

func (m *Multiplexer) handleConnect(l *link, conn net.Conn) {
	if l != m.link {
		return
	}
	l.connected = true
	go m.writeLoop(l, conn)
	m.log.Info().Uint64("link", l.id).Str("local", conn.LocalAddr().String()).Msg("connected")

	if m.hooks.OnConnect != nil {
		m.hooks.OnConnect()
	}
	// The hook may have torn the link down.
	if l != m.link {
		return
	}
	pending := l.pending
	l.pending = nil
	for _, msg := range pending {
		m.enqueue(l, msg)
	}
}

func (m *Multiplexer) handleData(l *link, chunk []byte) {
	if l != m.link {
		return
	}
	msgs := protocol.SplitMessages(chunk)
	if len(msgs) == 0 {
		return
	}
	m.dispatch(func(c Consumer) bool {
		return c.Consume(nil, msgs)
	})
	m.compact()
	m.verify()
}

func (m *Multiplexer) handleError(l *link, err error) {
	if l != m.link {
		return
	}
	m.log.Warn().Uint64("link", l.id).Err(err).Int("consumers", m.Len()).Msg("connection failed")
	notified := append([]*entry(nil), m.consumers...)
	m.dispatch(func(c Consumer) bool {
		c.Consume(err, nil)
		return true
	})
	for _, e := range notified {
		e.removed = true
	}
	m.compact()
	m.destroy()
	// Consumers registered during the error pass need a fresh socket.
	if len(m.consumers) > 0 {
		m.open()
	}
}

// dispatch invokes a snapshot of live consumers in registration order.
// Removals are only flagged here; compact applies them after the pass.
func (m *Multiplexer) dispatch(invoke func(Consumer) bool) {
	snapshot := append([]*entry(nil), m.consumers...)
	m.dispatching = true
	defer func() { m.dispatching = false }()
	for _, e := range snapshot {
		if e.removed {
			continue
		}
		if m.safeInvoke(e, invoke) {
			e.removed = true
		}
	}
}

func (m *Multiplexer) safeInvoke(e *entry, invoke func(Consumer) bool) (done bool) {
	defer func() {
		if r := recover(); r != nil {
			m.log.Error().Uint64("consumer", uint64(e.id)).Err(fmt.Errorf("panic: %v", r)).Msg("consumer panicked")
			done = false
		}
	}()
	return invoke(e.consumer)
}

func (m *Multiplexer) compact() {
	live := m.consumers[:0]
	for _, e := range m.consumers {
		if !e.removed {
			live = append(live, e)
		}
	}
	for i := len(live); i < len(m.consumers); i++ {
		m.consumers[i] = nil
	}
	m.consumers = live
}

func (m *Multiplexer) verify() {
	if m.dispatching {
		return
	}
	if m.Len() == 0 && m.link != nil {
		m.destroy()
	}
}

func (m *Multiplexer) destroy() {
	l := m.link
	if l == nil {
		return
	}
	m.link = nil
	l.close()
	m.log.Info().Uint64("link", l.id).Msg("disconnected")
	if m.hooks.OnDisconnect != nil {
		m.hooks.OnDisconnect()
	}
}
