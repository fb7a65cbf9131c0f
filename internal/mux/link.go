package mux

import (
	"net"
	"sync"
)

// link is one socket generation. Fields below mu are shared with the
// dial/read/write goroutines; the rest belong to the scheduler.
type link struct {
	id      uint64
	out     chan []byte
	done    chan struct{}
	pending []string

	connected bool
	failing   bool

	mu     sync.Mutex
	conn   net.Conn
	closed bool
}

func newLink(id uint64, queue int) *link {
	return &link{
		id:   id,
		out:  make(chan []byte, queue),
		done: make(chan struct{}),
	}
}

// attach stores the dialed socket. It reports false when the link was closed mid-dial.
func (l *link) attach(conn net.Conn) bool {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.closed {
		return false
	}
	l.conn = conn
	return true
}

func (l *link) isClosed() bool {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.closed
}

func (l *link) close() {
	l.mu.Lock()
	if l.closed {
		l.mu.Unlock()
		return
	}
	l.closed = true
	conn := l.conn
	l.mu.Unlock()

	close(l.done)
	if conn != nil {
		_ = conn.Close()
	}
}
