// Package server hosts the loopback admin HTTP surface of a running session:
// health, session status and Prometheus metrics.
package server

import (
	"context"
	"errors"
	"net"
	"net/http"
	"strings"
	"time"

	"github.com/danmuck/helpctl/internal/client"
	"github.com/danmuck/helpctl/internal/logging"
	"github.com/danmuck/helpctl/internal/observability"
	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog"
)

var ErrAddrRequired = errors.New("server: listen address required")

// StatusSource is satisfied by *client.Client.
type StatusSource interface {
	Status() client.Status
}

type Admin struct {
	addr     string
	source   StatusSource
	appeared time.Time
	log      zerolog.Logger

	httpRouter *gin.Engine
	httpServer *http.Server
	listener   net.Listener
}

func NewAdmin(addr string, source StatusSource) (*Admin, error) {
	if strings.TrimSpace(addr) == "" {
		return nil, ErrAddrRequired
	}
	observability.RegisterMetrics()
	gin.SetMode(gin.ReleaseMode)

	a := &Admin{
		addr:       addr,
		source:     source,
		appeared:   time.Now(),
		log:        logging.Component("admin"),
		httpRouter: gin.New(),
	}
	a.httpRouter.Use(
		gin.Recovery(),
		observability.AdminAccess(a.log),
	)
	a.registerRoutes()
	return a, nil
}

// Handler exposes the router for in-process tests.
func (a *Admin) Handler() http.Handler {
	return a.httpRouter
}

// Start binds the listener and serves in the background.
func (a *Admin) Start() error {
	ln, err := net.Listen("tcp", a.addr)
	if err != nil {
		return err
	}
	a.listener = ln
	a.httpServer = &http.Server{
		Handler:           a.httpRouter,
		ReadHeaderTimeout: 5 * time.Second,
	}
	go func() {
		if err := a.httpServer.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
			a.log.Error().Err(err).Msg("admin server stopped")
		}
	}()
	a.log.Info().Str("addr", ln.Addr().String()).Msg("admin server listening")
	return nil
}

// Addr is the bound address once started.
func (a *Admin) Addr() string {
	if a.listener == nil {
		return a.addr
	}
	return a.listener.Addr().String()
}

func (a *Admin) Shutdown(ctx context.Context) error {
	if a.httpServer == nil {
		return nil
	}
	return a.httpServer.Shutdown(ctx)
}
