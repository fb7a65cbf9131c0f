package client

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/danmuck/helpctl/internal/mux"
	"github.com/danmuck/helpctl/internal/observability"
	"github.com/danmuck/helpctl/internal/protocol"
	"github.com/danmuck/helpctl/internal/protocol/session"
	"github.com/danmuck/helpctl/internal/timer"
	"github.com/google/uuid"
)

// Reply is a decoded response correlated to one request.
type Reply struct {
	ID string
	// Raw is the matched message as received.
	Raw string
	// Value is Raw decoded as JSON.
	Value any
}

// Call is an outstanding command. Done receives the Call itself once it has
// settled; Reply and Error are valid only after that.
type Call struct {
	ID      string
	Command string
	Reply   Reply
	Error   error
	Done    chan *Call
}

func (call *Call) done() {
	select {
	case call.Done <- call:
	default:
	}
}

type pendingCall struct {
	call       *Call
	mux        *mux.Multiplexer
	consumerID mux.ConsumerID
	deadline   *timer.Timer
	generation uint64
	issuedAt   time.Time
	settled    bool
}

// Go issues command asynchronously. Validation failures settle the returned
// Call immediately without touching the network.
func (c *Client) Go(command string) *Call {
	call := &Call{Command: command, Done: make(chan *Call, 1)}

	c.postMu.Lock()
	defer c.postMu.Unlock()
	switch {
	case strings.TrimSpace(command) == "":
		call.Error = ErrInvalidArgument
	case c.closed.Load():
		call.Error = ErrClientClosed
	case !IsValidCommand(command):
		call.Error = fmt.Errorf("%w: %q", ErrInvalidCommand, command)
	}
	if call.Error != nil {
		call.done()
		return call
	}

	call.ID = uuid.NewString()
	if !c.loop.Post(func() { c.issue(call) }) {
		call.Error = ErrClientClosed
		call.done()
	}
	return call
}

// SendCommand issues command and waits for its reply. Cancelling ctx
// abandons the request and returns ctx.Err().
func (c *Client) SendCommand(ctx context.Context, command string) (Reply, error) {
	call := c.Go(command)
	select {
	case <-call.Done:
		return call.Reply, call.Error
	case <-ctx.Done():
	}

	// When the post fails Close has already settled the call.
	c.loop.Post(func() { c.abandon(call.ID, ctx.Err()) })
	<-call.Done
	return call.Reply, call.Error
}

func (c *Client) issue(call *Call) {
	if c.stopped {
		call.Error = ErrClientClosed
		call.done()
		return
	}
	payload, err := protocol.EncodeRequest(call.Command, call.ID)
	if err != nil {
		call.Error = err
		call.done()
		return
	}

	p := &pendingCall{
		call:       call,
		mux:        c.mux,
		generation: c.generation,
		issuedAt:   time.Now(),
	}
	id, err := p.mux.Register(mux.ConsumerFunc(func(err error, msgs []string) bool {
		return c.consumeReply(p, err, msgs)
	}))
	if err != nil {
		call.Error = err
		call.done()
		return
	}
	p.consumerID = id
	c.pending[call.ID] = p

	timeout := c.cfg.Session.RequestTimeout()
	p.deadline = timer.Start(c.loop, func() { c.expire(p) }, timeout)
	c.outbox.Upsert(session.PendingRequest{
		ID:         call.ID,
		Command:    call.Command,
		Generation: p.generation,
		IssuedAt:   p.issuedAt,
		DeadlineAt: p.issuedAt.Add(timeout),
	})
	observability.SetPendingCommands(len(c.pending))

	p.mux.Write(payload)
	c.log.Debug().Str("id", call.ID).Str("command", call.Command).Uint64("generation", p.generation).Msg("request sent")
}

func (c *Client) consumeReply(p *pendingCall, err error, msgs []string) bool {
	if p.settled {
		return true
	}
	if err != nil {
		c.settle(p, Reply{}, err)
		return true
	}
	for _, msg := range msgs {
		if !protocol.MatchesID(msg, p.call.ID) {
			continue
		}
		value, derr := protocol.DecodeReply(msg)
		if derr != nil {
			c.settle(p, Reply{}, fmt.Errorf("%w: %w", ErrMalformedResponse, derr))
			return true
		}
		c.settle(p, Reply{ID: p.call.ID, Raw: msg, Value: value}, nil)
		return true
	}
	return false
}

func (c *Client) expire(p *pendingCall) {
	if p.settled {
		return
	}
	p.mux.Unregister(p.consumerID)
	c.settle(p, Reply{}, ErrTimeout)
}

func (c *Client) abandon(id string, cause error) {
	p, ok := c.pending[id]
	if !ok || p.settled {
		return
	}
	p.mux.Unregister(p.consumerID)
	c.settle(p, Reply{}, cause)
}

// settle finishes p exactly once.
func (c *Client) settle(p *pendingCall, reply Reply, err error) {
	if p.settled {
		return
	}
	p.settled = true
	if p.deadline != nil {
		p.deadline.Cancel()
	}
	delete(c.pending, p.call.ID)
	c.outbox.Remove(p.call.ID)
	observability.SetPendingCommands(len(c.pending))

	outcome := outcomeOf(err)
	observability.RecordCommand(p.call.Command, outcome, time.Since(p.issuedAt))
	ev := c.log.Debug()
	if err != nil {
		ev = c.log.Warn().Err(err)
	}
	ev.Str("id", p.call.ID).Str("command", p.call.Command).Str("outcome", outcome).Msg("request settled")

	p.call.Reply = reply
	p.call.Error = err
	p.call.done()
}

func outcomeOf(err error) string {
	switch {
	case err == nil:
		return observability.OutcomeOK
	case errors.Is(err, ErrTimeout):
		return observability.OutcomeTimeout
	case errors.Is(err, ErrMalformedResponse):
		return observability.OutcomeMalformed
	case errors.Is(err, ErrClientClosed):
		return observability.OutcomeClosed
	case errors.Is(err, context.Canceled), errors.Is(err, context.DeadlineExceeded):
		return observability.OutcomeCancelled
	default:
		return observability.OutcomeConnectionError
	}
}
