package client

import (
	"context"
	"errors"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/danmuck/helpctl/internal/protocol"
	"github.com/danmuck/helpctl/internal/protocol/session"
	"github.com/danmuck/helpctl/internal/testutil/peer"
	"github.com/danmuck/helpctl/internal/testutil/testlog"
	"github.com/google/uuid"
)

const testHeartbeatTimeout = 300 * time.Millisecond

func newTestClient(t *testing.T, p *peer.Peer, keepAlive bool) *Client {
	t.Helper()
	c, err := New(Config{
		Host: p.Host(),
		Port: p.Port(),
		User: "tester",
		Session: session.Config{
			ConnectTimeout:   time.Second,
			HeartbeatTimeout: testHeartbeatTimeout,
		},
		DisableKeepAlive: !keepAlive,
	})
	if err != nil {
		t.Fatalf("new client: %v", err)
	}
	t.Cleanup(func() { _ = c.Close() })
	return c
}

func waitCall(t *testing.T, call *Call, timeout time.Duration) *Call {
	t.Helper()
	select {
	case done := <-call.Done:
		return done
	case <-time.After(timeout):
		t.Fatalf("call %s (%s) did not settle within %s", call.ID, call.Command, timeout)
		return nil
	}
}

func TestNewRequiresHostPortUser(t *testing.T) {
	testlog.Start(t)

	cases := []struct {
		name string
		cfg  Config
		want string
	}{
		{name: "host", cfg: Config{Port: 3000, User: "a"}, want: "host"},
		{name: "port", cfg: Config{Host: "localhost", User: "a"}, want: "port"},
		{name: "port range", cfg: Config{Host: "localhost", Port: 70000, User: "a"}, want: "port"},
		{name: "user", cfg: Config{Host: "localhost", Port: 3000, User: "  "}, want: "user"},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			c, err := New(tc.cfg)
			if c != nil {
				t.Fatalf("expected nil client")
			}
			if !errors.Is(err, ErrInvalidArguments) {
				t.Fatalf("expected ErrInvalidArguments, got %v", err)
			}
			if !strings.Contains(err.Error(), tc.want) {
				t.Fatalf("expected %q in %q", tc.want, err.Error())
			}
		})
	}
}

func TestSendCommandRejectsWithoutNetworkIO(t *testing.T) {
	testlog.Start(t)
	p := peer.Start(t, peer.Options{})
	c := newTestClient(t, p, false)

	for _, tc := range []struct {
		command string
		want    error
	}{
		{command: "", want: ErrInvalidArgument},
		{command: "date", want: ErrInvalidCommand},
		{command: "COUNT", want: ErrInvalidCommand},
	} {
		_, err := c.SendCommand(context.Background(), tc.command)
		if !errors.Is(err, tc.want) {
			t.Fatalf("command %q: expected %v, got %v", tc.command, tc.want, err)
		}
	}

	time.Sleep(50 * time.Millisecond)
	if n := p.Connections(); n != 0 {
		t.Fatalf("expected no connection, got %d", n)
	}
}

func TestSendCommandAfterClose(t *testing.T) {
	testlog.Start(t)
	p := peer.Start(t, peer.Options{Heartbeat: 50 * time.Millisecond})
	c := newTestClient(t, p, true)

	if err := c.Close(); err != nil {
		t.Fatalf("close: %v", err)
	}
	if err := c.Close(); err != nil {
		t.Fatalf("second close: %v", err)
	}
	for _, command := range Commands() {
		if _, err := c.SendCommand(context.Background(), command); !errors.Is(err, ErrClientClosed) {
			t.Fatalf("command %q: expected ErrClientClosed, got %v", command, err)
		}
	}
	if !c.Status().Closed {
		t.Fatalf("expected closed status")
	}
}

func TestSendCommandRoundTrip(t *testing.T) {
	testlog.Start(t)
	p := peer.Start(t, peer.Options{Responder: peer.Echo("42"), Heartbeat: 50 * time.Millisecond})
	c := newTestClient(t, p, true)

	reply, err := c.SendCommand(context.Background(), CommandCount)
	if err != nil {
		t.Fatalf("send: %v", err)
	}
	if !strings.Contains(reply.Raw, reply.ID) {
		t.Fatalf("reply %q does not embed id %q", reply.Raw, reply.ID)
	}
	obj, ok := reply.Value.(map[string]any)
	if !ok {
		t.Fatalf("expected object, got %T", reply.Value)
	}
	if obj["response"] != "42" || obj["id"] != reply.ID {
		t.Fatalf("unexpected reply %#v", obj)
	}

	hs := p.Handshakes()
	if len(hs) != 1 || hs[0] != "tester" {
		t.Fatalf("expected one handshake for tester, got %q", hs)
	}
	reqs := p.Requests()
	if len(reqs) != 1 || reqs[0].Request != CommandCount || reqs[0].ID != reply.ID {
		t.Fatalf("unexpected requests %#v", reqs)
	}
}

func TestSendCommandWithoutKeepAliveReleasesSocket(t *testing.T) {
	testlog.Start(t)
	p := peer.Start(t, peer.Options{Responder: peer.Echo("1")})
	c := newTestClient(t, p, false)

	for i := 0; i < 2; i++ {
		if _, err := c.SendCommand(context.Background(), CommandTime); err != nil {
			t.Fatalf("send %d: %v", i, err)
		}
	}
	// Each request opened its own socket and handshake once the previous one was released.
	if !p.WaitHandshakes(2, time.Second) {
		t.Fatalf("expected two handshakes, got %q", p.Handshakes())
	}
	if c.Status().Connected {
		t.Fatalf("expected socket released after the last reply")
	}
}

func TestSendCommandTimeoutIgnoresLateReply(t *testing.T) {
	testlog.Start(t)
	p := peer.Start(t, peer.Options{
		Responder:  peer.Echo("late"),
		ReplyDelay: 3 * testHeartbeatTimeout,
		Heartbeat:  50 * time.Millisecond,
	})
	c := newTestClient(t, p, true)

	start := time.Now()
	call := waitCall(t, c.Go(CommandCount), 2*time.Second)
	if !errors.Is(call.Error, ErrTimeout) {
		t.Fatalf("expected ErrTimeout, got %v", call.Error)
	}
	if elapsed := time.Since(start); elapsed < 2*testHeartbeatTimeout {
		t.Fatalf("timed out early after %s", elapsed)
	}
	if st := c.Status(); st.PendingCount != 0 || len(st.Pending) != 0 || len(st.Overdue) != 0 {
		t.Fatalf("expected no pending requests, got %#v", st)
	}

	// The late reply arrives on the still open socket and must go nowhere.
	time.Sleep(2 * testHeartbeatTimeout)
	select {
	case <-call.Done:
		t.Fatalf("call settled twice")
	default:
	}
	if call.Reply.Raw != "" {
		t.Fatalf("late reply leaked into call: %q", call.Reply.Raw)
	}
}

func TestHeartbeatSilenceReconnectsOnce(t *testing.T) {
	testlog.Start(t)
	p := peer.Start(t, peer.Options{Heartbeat: 50 * time.Millisecond})
	c := newTestClient(t, p, true)

	if !p.WaitHandshakes(1, time.Second) {
		t.Fatalf("no initial handshake")
	}
	// Heartbeats keep the first generation alive past the watchdog timeout.
	time.Sleep(2 * testHeartbeatTimeout)
	if n := len(p.Handshakes()); n != 1 {
		t.Fatalf("expected a single handshake while heartbeats flow, got %d", n)
	}

	p.StopHeartbeats()
	if !p.WaitHandshakes(2, 4*testHeartbeatTimeout) {
		t.Fatalf("expected a reconnect handshake after heartbeat silence")
	}
	p.ResumeHeartbeats()

	time.Sleep(2 * testHeartbeatTimeout)
	hs := p.Handshakes()
	if len(hs) != 2 {
		t.Fatalf("expected exactly one reconnect, got handshakes %q", hs)
	}
	for _, name := range hs {
		if name != "tester" {
			t.Fatalf("reconnect changed identity: %q", hs)
		}
	}
	st := c.Status()
	if st.Generation != 2 || st.Reconnects != 1 || !st.Connected {
		t.Fatalf("unexpected status %#v", st)
	}
}

func TestMalformedReplyRejectsOnlyThatCall(t *testing.T) {
	testlog.Start(t)
	p := peer.Start(t, peer.Options{
		Responder: peer.ByCommand(map[string]peer.Responder{
			CommandCount: peer.Malformed(),
			CommandTime:  peer.Echo("now"),
		}),
		ReplyDelay: 50 * time.Millisecond,
		Heartbeat:  50 * time.Millisecond,
	})
	c := newTestClient(t, p, true)

	bad := c.Go(CommandCount)
	good := c.Go(CommandTime)

	if got := waitCall(t, bad, time.Second); !errors.Is(got.Error, ErrMalformedResponse) {
		t.Fatalf("expected ErrMalformedResponse, got %v", got.Error)
	}
	if !errors.Is(bad.Error, protocol.ErrMalformedMessage) {
		t.Fatalf("expected wrapped decode error, got %v", bad.Error)
	}
	got := waitCall(t, good, time.Second)
	if got.Error != nil {
		t.Fatalf("good call failed: %v", got.Error)
	}
	if obj := got.Reply.Value.(map[string]any); obj["response"] != "now" {
		t.Fatalf("unexpected reply %#v", obj)
	}
	if p.Connections() != 1 || !c.Status().Connected {
		t.Fatalf("expected the original connection to survive")
	}
}

func TestConcurrentCommandsDoNotCrossMatch(t *testing.T) {
	testlog.Start(t)
	p := peer.Start(t, peer.Options{Responder: peer.Silent(), Heartbeat: 50 * time.Millisecond})
	c := newTestClient(t, p, true)

	first := c.Go(CommandCount)
	second := c.Go(CommandTime)
	if !p.WaitRequests(2, time.Second) {
		t.Fatalf("peer saw %d requests", len(p.Requests()))
	}

	// One batch carrying both replies, second first.
	p.Broadcast(`{"response" : "b", "id" : "` + second.ID + `"}` + protocol.Delimiter +
		`{"response" : "a", "id" : "` + first.ID + `"}`)

	for _, tc := range []struct {
		call *Call
		want string
	}{
		{call: first, want: "a"},
		{call: second, want: "b"},
	} {
		got := waitCall(t, tc.call, time.Second)
		if got.Error != nil {
			t.Fatalf("call %s: %v", got.ID, got.Error)
		}
		obj := got.Reply.Value.(map[string]any)
		if obj["response"] != tc.want || obj["id"] != got.ID {
			t.Fatalf("call %s matched %#v", got.ID, obj)
		}
	}
}

func TestConnectionClosedRejectsPending(t *testing.T) {
	testlog.Start(t)
	p := peer.Start(t, peer.Options{Responder: peer.Silent(), Heartbeat: 50 * time.Millisecond})
	c := newTestClient(t, p, true)

	call := c.Go(CommandCount)
	if !p.WaitRequests(1, time.Second) {
		t.Fatalf("request never reached the peer")
	}
	p.DropConnections()
	if got := waitCall(t, call, time.Second); !errors.Is(got.Error, ErrConnectionClosed) {
		t.Fatalf("expected ErrConnectionClosed, got %v", got.Error)
	}
}

func TestCloseRejectsPending(t *testing.T) {
	testlog.Start(t)
	p := peer.Start(t, peer.Options{Responder: peer.Silent(), Heartbeat: 50 * time.Millisecond})
	c := newTestClient(t, p, true)

	var wg sync.WaitGroup
	errs := make([]error, 3)
	for i := range errs {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			_, errs[i] = c.SendCommand(context.Background(), CommandTime)
		}(i)
	}
	if !p.WaitRequests(len(errs), time.Second) {
		t.Fatalf("peer saw %d requests", len(p.Requests()))
	}
	if err := c.Close(); err != nil {
		t.Fatalf("close: %v", err)
	}
	wg.Wait()
	for i, err := range errs {
		if !errors.Is(err, ErrClientClosed) {
			t.Fatalf("request %d: expected ErrClientClosed, got %v", i, err)
		}
	}
}

func TestSendCommandContextCancel(t *testing.T) {
	testlog.Start(t)
	p := peer.Start(t, peer.Options{Responder: peer.Silent(), Heartbeat: 50 * time.Millisecond})
	c := newTestClient(t, p, true)

	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()
	_, err := c.SendCommand(ctx, CommandCount)
	if !errors.Is(err, context.DeadlineExceeded) {
		t.Fatalf("expected context deadline, got %v", err)
	}
	if st := c.Status(); len(st.Pending) != 0 {
		t.Fatalf("expected abandoned request to be cleared, got %#v", st.Pending)
	}
}

func TestCommands(t *testing.T) {
	testlog.Start(t)
	got := Commands()
	if len(got) != 2 || got[0] != CommandCount || got[1] != CommandTime {
		t.Fatalf("unexpected commands %q", got)
	}
	got[0] = "mutated"
	if Commands()[0] != CommandCount {
		t.Fatalf("Commands must return a copy")
	}
	if IsValidCommand("") || IsValidCommand("exit") {
		t.Fatalf("unexpected valid command")
	}
}

func TestStatusReportsPendingRequests(t *testing.T) {
	testlog.Start(t)
	p := peer.Start(t, peer.Options{Responder: peer.Silent(), Heartbeat: 50 * time.Millisecond})
	c := newTestClient(t, p, true)

	call := c.Go(CommandCount)
	if !p.WaitRequests(1, time.Second) {
		t.Fatalf("request never reached the peer")
	}
	st := c.Status()
	if st.PendingCount != 1 || len(st.Pending) != 1 {
		t.Fatalf("expected one pending request, got %#v", st)
	}
	item := st.Pending[0]
	if item.ID != call.ID || item.Command != CommandCount || item.Generation != st.Generation {
		t.Fatalf("unexpected pending entry %#v", item)
	}
	if want := item.IssuedAt.Add(2 * testHeartbeatTimeout); !item.DeadlineAt.Equal(want) {
		t.Fatalf("deadline %v, want %v", item.DeadlineAt, want)
	}
	if len(st.Overdue) != 0 {
		t.Fatalf("nothing should be overdue yet: %#v", st.Overdue)
	}
}

// A generation replaced while its socket is still dialing still sends the
// handshake before the requests queued on it.
func TestReplacedGenerationStillHandshakes(t *testing.T) {
	testlog.Start(t)
	p := peer.Start(t, peer.Options{Responder: peer.Echo("7")})
	c := newTestClient(t, p, false)

	call := &Call{ID: uuid.NewString(), Command: CommandCount, Done: make(chan *Call, 1)}
	err := c.loop.Do(func() {
		c.issue(call)
		next, err := c.newGeneration()
		if err != nil {
			t.Errorf("new generation: %v", err)
			return
		}
		c.mux = next
	})
	if err != nil {
		t.Fatalf("loop do: %v", err)
	}

	got := waitCall(t, call, time.Second)
	if got.Error != nil {
		t.Fatalf("request on replaced generation failed: %v", got.Error)
	}
	if hs := p.Handshakes(); len(hs) != 1 || hs[0] != "tester" {
		t.Fatalf("expected the handshake before the queued request, got %q", hs)
	}
	if reqs := p.Requests(); len(reqs) != 1 || reqs[0].ID != call.ID {
		t.Fatalf("unexpected requests %#v", reqs)
	}

	var everConnected bool
	if err := c.loop.Do(func() { everConnected = c.everConnected }); err != nil {
		t.Fatalf("loop do: %v", err)
	}
	if everConnected {
		t.Fatalf("a stale generation must not mark the current one connected")
	}
	if st := c.Status(); st.Generation != 2 || st.Connected {
		t.Fatalf("unexpected status %#v", st)
	}
}
