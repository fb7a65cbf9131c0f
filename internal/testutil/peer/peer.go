// Package peer runs a loopback line-protocol server for tests.
package peer

import (
	"bufio"
	"errors"
	"fmt"
	"net"
	"strconv"
	"sync"
	"testing"
	"time"

	"github.com/danmuck/helpctl/internal/protocol"
)

// Responder builds the reply for one request. ok=false sends nothing.
type Responder func(req protocol.Request) (reply string, ok bool)

// Echo replies {"response": value, "id": "<id>"}.
func Echo(value string) Responder {
	return func(req protocol.Request) (string, bool) {
		return fmt.Sprintf(`{"response" : %q, "id" : %q}`, value, req.ID), true
	}
}

// Malformed replies with the id embedded in invalid JSON.
func Malformed() Responder {
	return func(req protocol.Request) (string, bool) {
		return fmt.Sprintf(`"response" : "1", "id" : %q}`, req.ID), true
	}
}

// ByCommand picks the responder by request command. Unlisted commands get no reply.
func ByCommand(routes map[string]Responder) Responder {
	return func(req protocol.Request) (string, bool) {
		r, ok := routes[req.Request]
		if !ok {
			return "", false
		}
		return r(req)
	}
}

func Silent() Responder {
	return func(protocol.Request) (string, bool) { return "", false }
}

type Options struct {
	Responder Responder
	// ReplyDelay postpones every reply.
	ReplyDelay time.Duration
	// Heartbeat sends a heartbeat message at this interval; zero disables.
	Heartbeat time.Duration
}

type Peer struct {
	t    *testing.T
	ln   net.Listener
	opts Options

	mu         sync.Mutex
	handshakes []string
	requests   []protocol.Request
	conns      []*conn
	beating    bool
	changed    chan struct{}
	wg         sync.WaitGroup
}

type conn struct {
	net.Conn
	mu   sync.Mutex
	done chan struct{}
}

func (c *conn) send(msg string) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	_, err := c.Write([]byte(msg + protocol.Delimiter))
	return err
}

// Start listens on 127.0.0.1 and serves until the test ends.
func Start(t *testing.T, opts Options) *Peer {
	t.Helper()
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		t.Fatalf("listen: %v", err)
	}
	if opts.Responder == nil {
		opts.Responder = Echo("ok")
	}
	p := &Peer{
		t:       t,
		ln:      ln,
		opts:    opts,
		beating: opts.Heartbeat > 0,
		changed: make(chan struct{}),
	}
	p.wg.Add(1)
	go p.acceptLoop()
	t.Cleanup(p.Close)
	return p
}

func (p *Peer) Addr() string {
	return p.ln.Addr().String()
}

func (p *Peer) Host() string {
	host, _, _ := net.SplitHostPort(p.Addr())
	return host
}

func (p *Peer) Port() int {
	_, port, _ := net.SplitHostPort(p.Addr())
	n, _ := strconv.Atoi(port)
	return n
}

// Close stops accepting and drops every connection.
func (p *Peer) Close() {
	_ = p.ln.Close()
	p.mu.Lock()
	for _, c := range p.conns {
		_ = c.Close()
	}
	p.mu.Unlock()
	p.wg.Wait()
}

// StopHeartbeats silences heartbeats on every connection, current and future.
func (p *Peer) StopHeartbeats() {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.beating = false
}

// ResumeHeartbeats undoes StopHeartbeats.
func (p *Peer) ResumeHeartbeats() {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.beating = p.opts.Heartbeat > 0
}

// DropConnections closes every accepted socket, simulating a server side reset.
func (p *Peer) DropConnections() {
	p.mu.Lock()
	defer p.mu.Unlock()
	for _, c := range p.conns {
		_ = c.Close()
	}
}

// Broadcast writes msg to every open connection.
func (p *Peer) Broadcast(msg string) {
	p.mu.Lock()
	conns := append([]*conn(nil), p.conns...)
	p.mu.Unlock()
	for _, c := range conns {
		_ = c.send(msg)
	}
}

func (p *Peer) Handshakes() []string {
	p.mu.Lock()
	defer p.mu.Unlock()
	return append([]string(nil), p.handshakes...)
}

func (p *Peer) Requests() []protocol.Request {
	p.mu.Lock()
	defer p.mu.Unlock()
	return append([]protocol.Request(nil), p.requests...)
}

// Connections is the number of sockets accepted so far.
func (p *Peer) Connections() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return len(p.conns)
}

// WaitHandshakes blocks until at least n handshakes were seen.
func (p *Peer) WaitHandshakes(n int, timeout time.Duration) bool {
	return p.waitFor(timeout, func() bool { return len(p.handshakes) >= n })
}

// WaitRequests blocks until at least n requests were seen.
func (p *Peer) WaitRequests(n int, timeout time.Duration) bool {
	return p.waitFor(timeout, func() bool { return len(p.requests) >= n })
}

func (p *Peer) waitFor(timeout time.Duration, cond func() bool) bool {
	deadline := time.NewTimer(timeout)
	defer deadline.Stop()
	for {
		p.mu.Lock()
		ok := cond()
		changed := p.changed
		p.mu.Unlock()
		if ok {
			return true
		}
		select {
		case <-changed:
		case <-deadline.C:
			return false
		}
	}
}

// notifyLocked wakes waiters; p.mu must be held.
func (p *Peer) notifyLocked() {
	close(p.changed)
	p.changed = make(chan struct{})
}

func (p *Peer) acceptLoop() {
	defer p.wg.Done()
	for {
		raw, err := p.ln.Accept()
		if err != nil {
			if !errors.Is(err, net.ErrClosed) {
				p.t.Logf("peer accept: %v", err)
			}
			return
		}
		c := &conn{Conn: raw, done: make(chan struct{})}
		p.mu.Lock()
		p.conns = append(p.conns, c)
		p.notifyLocked()
		p.mu.Unlock()

		p.wg.Add(2)
		go p.serve(c)
		go p.heartbeat(c)
	}
}

func (p *Peer) serve(c *conn) {
	defer p.wg.Done()
	defer close(c.done)
	defer c.Close()

	scanner := bufio.NewScanner(c)
	first := true
	for scanner.Scan() {
		line := scanner.Text()
		if line == "" {
			continue
		}
		if first {
			first = false
			if hs, err := protocol.DecodeHandshake(line); err == nil {
				p.mu.Lock()
				p.handshakes = append(p.handshakes, hs.Name)
				p.notifyLocked()
				p.mu.Unlock()
				continue
			}
		}
		req, err := protocol.DecodeRequest(line)
		if err != nil {
			_ = c.send("oops")
			continue
		}
		p.mu.Lock()
		p.requests = append(p.requests, req)
		p.notifyLocked()
		p.mu.Unlock()

		reply, ok := p.opts.Responder(req)
		if !ok {
			continue
		}
		if p.opts.ReplyDelay > 0 {
			time.AfterFunc(p.opts.ReplyDelay, func() { _ = c.send(reply) })
			continue
		}
		_ = c.send(reply)
	}
}

func (p *Peer) heartbeat(c *conn) {
	defer p.wg.Done()
	if p.opts.Heartbeat <= 0 {
		return
	}
	ticker := time.NewTicker(p.opts.Heartbeat)
	defer ticker.Stop()
	for {
		select {
		case <-c.done:
			return
		case <-ticker.C:
		}
		p.mu.Lock()
		beating := p.beating
		p.mu.Unlock()
		if !beating {
			continue
		}
		msg := fmt.Sprintf(`{"type" : "heartbeat", "epoch" : %d}`, time.Now().UnixMilli())
		if err := c.send(msg); err != nil {
			return
		}
	}
}
