// Package api provides the administrative HTTP surface for tiendabot.
//
// It exposes session lifecycle control, session status, and the
// broadcast endpoint. Catalog and tenant configuration CRUD belong to
// the separate admin application and are not served here.
package api

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"time"

	"github.com/tiendabot/tiendabot/internal/broadcast"
	"github.com/tiendabot/tiendabot/internal/session"
	"github.com/tiendabot/tiendabot/internal/store"
)

// DefaultAddr is the default HTTP listen address.
const DefaultAddr = ":8080"

// Opts holds configuration options for the API server.
type Opts struct {
	Addr string
	// WebhookHandler, when set, is mounted at /webhook/twilio for
	// Twilio inbound-message callbacks.
	WebhookHandler http.HandlerFunc
}

// Option defines a configuration option for the API server.
type Option func(*Opts)

// WithAddr sets the HTTP listen address.
func WithAddr(addr string) Option {
	return func(o *Opts) { o.Addr = addr }
}

// WithWebhookHandler mounts a transport webhook handler.
func WithWebhookHandler(h http.HandlerFunc) Option {
	return func(o *Opts) { o.WebhookHandler = h }
}

// Server is the administrative HTTP server.
type Server struct {
	registry  *session.Registry
	store     store.Store
	broadcast *broadcast.Engine

	httpServer *http.Server
}

// NewServer creates the API server.
func NewServer(registry *session.Registry, st store.Store, bc *broadcast.Engine, opts ...Option) *Server {
	cfg := Opts{Addr: DefaultAddr}
	for _, opt := range opts {
		opt(&cfg)
	}

	s := &Server{registry: registry, store: st, broadcast: bc}

	mux := http.NewServeMux()
	mux.HandleFunc("POST /sessions/{id}/connect", s.connectHandler)
	mux.HandleFunc("POST /sessions/{id}/logout", s.logoutHandler)
	mux.HandleFunc("GET /sessions/{id}", s.statusHandler)
	mux.HandleFunc("POST /broadcast", s.broadcastHandler)
	mux.HandleFunc("GET /health", s.healthHandler)
	if cfg.WebhookHandler != nil {
		mux.HandleFunc("POST /webhook/twilio", cfg.WebhookHandler)
	}

	s.httpServer = &http.Server{
		Addr:              cfg.Addr,
		Handler:           mux,
		ReadHeaderTimeout: 10 * time.Second,
	}
	return s
}

// Start runs the HTTP server until Shutdown is called.
func (s *Server) Start() error {
	slog.Info("API server listening", "addr", s.httpServer.Addr)
	err := s.httpServer.ListenAndServe()
	if errors.Is(err, http.ErrServerClosed) {
		return nil
	}
	return err
}

// Shutdown gracefully stops the HTTP server.
func (s *Server) Shutdown(ctx context.Context) error {
	return s.httpServer.Shutdown(ctx)
}

// Handler exposes the mux for tests.
func (s *Server) Handler() http.Handler {
	return s.httpServer.Handler
}
