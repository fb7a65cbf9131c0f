package server

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/danmuck/helpctl/internal/client"
	"github.com/danmuck/helpctl/internal/observability"
	"github.com/danmuck/helpctl/internal/protocol/session"
	"github.com/danmuck/helpctl/internal/testutil/testlog"
)

type fakeSource struct {
	st client.Status
}

func (f fakeSource) Status() client.Status {
	return f.st
}

func serve(t *testing.T, a *Admin, path string) *httptest.ResponseRecorder {
	t.Helper()
	rec := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodGet, path, nil)
	a.Handler().ServeHTTP(rec, req)
	return rec
}

func TestNewAdminRequiresAddr(t *testing.T) {
	testlog.Start(t)
	if _, err := NewAdmin(" ", nil); err != ErrAddrRequired {
		t.Fatalf("expected ErrAddrRequired, got %v", err)
	}
}

func TestHealthz(t *testing.T) {
	testlog.Start(t)
	a, err := NewAdmin("127.0.0.1:0", nil)
	if err != nil {
		t.Fatalf("new admin: %v", err)
	}
	rec := serve(t, a, "/healthz")
	if rec.Code != http.StatusOK {
		t.Fatalf("unexpected status %d", rec.Code)
	}
	var body map[string]any
	if err := json.Unmarshal(rec.Body.Bytes(), &body); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if body["status"] != "ok" || body["component"] != "helpctl-admin" {
		t.Fatalf("unexpected body %#v", body)
	}
}

func TestStatusReportsSession(t *testing.T) {
	testlog.Start(t)
	src := fakeSource{st: client.Status{
		User:         "tester",
		Address:      "localhost:3000",
		Generation:   3,
		Connected:    true,
		KeepAlive:    true,
		Reconnects:   2,
		PendingCount: 1,
		Pending: []session.PendingRequest{
			{ID: "abc", Command: "count", Generation: 3},
		},
	}}
	a, err := NewAdmin("127.0.0.1:0", src)
	if err != nil {
		t.Fatalf("new admin: %v", err)
	}
	rec := serve(t, a, "/status")
	if rec.Code != http.StatusOK {
		t.Fatalf("unexpected status %d", rec.Code)
	}
	var got client.Status
	if err := json.Unmarshal(rec.Body.Bytes(), &got); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if got.User != "tester" || got.Generation != 3 || got.Reconnects != 2 || !got.Connected {
		t.Fatalf("unexpected status %#v", got)
	}
	if got.PendingCount != 1 || len(got.Pending) != 1 || got.Pending[0].ID != "abc" {
		t.Fatalf("unexpected pending %#v", got.Pending)
	}
}

func TestStatusClosedSession(t *testing.T) {
	testlog.Start(t)
	a, err := NewAdmin("127.0.0.1:0", fakeSource{st: client.Status{Closed: true}})
	if err != nil {
		t.Fatalf("new admin: %v", err)
	}
	if rec := serve(t, a, "/status"); rec.Code != http.StatusServiceUnavailable {
		t.Fatalf("expected 503, got %d", rec.Code)
	}
	b, err := NewAdmin("127.0.0.1:0", nil)
	if err != nil {
		t.Fatalf("new admin: %v", err)
	}
	if rec := serve(t, b, "/status"); rec.Code != http.StatusServiceUnavailable {
		t.Fatalf("expected 503 without a session, got %d", rec.Code)
	}
}

func TestMetricsExposesClientCollectors(t *testing.T) {
	testlog.Start(t)
	a, err := NewAdmin("127.0.0.1:0", nil)
	if err != nil {
		t.Fatalf("new admin: %v", err)
	}
	observability.RecordCommand("count", observability.OutcomeOK, 10*time.Millisecond)
	_ = serve(t, a, "/healthz")

	rec := serve(t, a, "/metrics")
	if rec.Code != http.StatusOK {
		t.Fatalf("unexpected status %d", rec.Code)
	}
	body := rec.Body.String()
	for _, want := range []string{
		"helpctl_client_commands_total",
		"helpctl_admin_http_requests_total",
	} {
		if !strings.Contains(body, want) {
			t.Fatalf("metrics output missing %s", want)
		}
	}
}

func TestUnknownRouteUsesUnmatchedLabel(t *testing.T) {
	testlog.Start(t)
	a, err := NewAdmin("127.0.0.1:0", nil)
	if err != nil {
		t.Fatalf("new admin: %v", err)
	}
	if rec := serve(t, a, "/does-not-exist"); rec.Code != http.StatusNotFound {
		t.Fatalf("expected 404, got %d", rec.Code)
	}
	body := serve(t, a, "/metrics").Body.String()
	if !strings.Contains(body, `path="`+observability.UnmatchedRoute+`"`) {
		t.Fatalf("expected unmatched path label in metrics")
	}
	if strings.Contains(body, "/does-not-exist") {
		t.Fatalf("raw unknown path leaked into metric labels")
	}
}

func TestStartAndShutdown(t *testing.T) {
	testlog.Start(t)
	a, err := NewAdmin("127.0.0.1:0", nil)
	if err != nil {
		t.Fatalf("new admin: %v", err)
	}
	if err := a.Start(); err != nil {
		t.Fatalf("start: %v", err)
	}
	resp, err := http.Get("http://" + a.Addr() + "/healthz")
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	_, _ = io.Copy(io.Discard, resp.Body)
	_ = resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("unexpected status %d", resp.StatusCode)
	}

	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	if err := a.Shutdown(ctx); err != nil {
		t.Fatalf("shutdown: %v", err)
	}
}
