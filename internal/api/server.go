// Copyright (C) 2026 Ben Grimm. Licensed under AGPL-3.0 (https://www.gnu.org/licenses/agpl-3.0.txt)

// Package api serves the administrative HTTP interface.
package api

import (
	"context"
	"net"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/mux"

	"grimm.is/sdnlink/internal/errors"
	"grimm.is/sdnlink/internal/flow"
	"grimm.is/sdnlink/internal/learning"
	"grimm.is/sdnlink/internal/linkctl"
	"grimm.is/sdnlink/internal/logging"
	"grimm.is/sdnlink/internal/registry"
	"grimm.is/sdnlink/internal/sim"
)

// ServerConfig holds HTTP server timeouts and limits.
type ServerConfig struct {
	ReadHeaderTimeout time.Duration // Slowloris prevention
	ReadTimeout       time.Duration
	WriteTimeout      time.Duration
	IdleTimeout       time.Duration
	MaxHeaderBytes    int
	MaxBodyBytes      int64
	ShutdownTimeout   time.Duration
}

// DefaultServerConfig returns the default server configuration.
func DefaultServerConfig() *ServerConfig {
	return &ServerConfig{
		ReadHeaderTimeout: 10 * time.Second,
		ReadTimeout:       15 * time.Second,
		WriteTimeout:      30 * time.Second,
		IdleTimeout:       60 * time.Second,
		MaxHeaderBytes:    1 << 16,
		MaxBodyBytes:      1 << 20,
		ShutdownTimeout:   5 * time.Second,
	}
}

// LinkService blocks and unblocks managed links.
type LinkService interface {
	DefaultLink() string
	Block(ctx context.Context, id string) (linkctl.Result, error)
	Unblock(ctx context.Context, id string) (linkctl.Result, error)
	States() []linkctl.Status
}

// SwitchService lists connected switches.
type SwitchService interface {
	List() []registry.Info
	Get(id uint64) (*registry.Switch, error)
}

// FlowService exposes the bookkept flow rules of a switch.
type FlowService interface {
	Rules(sw uint64) ([]flow.Rule, error)
}

// MACService exposes the learning table of a switch.
type MACService interface {
	Entries(sw uint64) []learning.Entry
}

// Simulator injects probe frames into a simulated fabric.
type Simulator interface {
	Probe(ctx context.Context, from, to string, ethType flow.EthType, timeout time.Duration) (sim.Trace, error)
}

// ServerOptions holds dependencies for the API server.
type ServerOptions struct {
	Links    LinkService
	Switches SwitchService
	Flows    FlowService
	MACs     MACService
	Metrics  http.Handler // Optional: served at /metrics
	Sim      Simulator    // Optional: enables /api/v1/sim routes
	Logger   *logging.Logger
	Config   *ServerConfig
}

// Server handles API requests.
type Server struct {
	links    LinkService
	switches SwitchService
	flows    FlowService
	macs     MACService
	sim      Simulator
	metrics  http.Handler

	cfg    *ServerConfig
	logger *logging.Logger
	router *mux.Router

	mu         sync.Mutex
	httpServer *http.Server
	stopped    bool
}

// NewServer creates a new API server with the provided options.
func NewServer(opts ServerOptions) (*Server, error) {
	if opts.Links == nil || opts.Switches == nil || opts.Flows == nil || opts.MACs == nil {
		return nil, errors.New(errors.KindValidation, "api: link, switch, flow and mac services are required")
	}
	logger := opts.Logger
	if logger == nil {
		logger = logging.WithComponent("api")
	}
	cfg := opts.Config
	if cfg == nil {
		cfg = DefaultServerConfig()
	}

	s := &Server{
		links:    opts.Links,
		switches: opts.Switches,
		flows:    opts.Flows,
		macs:     opts.MACs,
		sim:      opts.Sim,
		metrics:  opts.Metrics,
		cfg:      cfg,
		logger:   logger,
		router:   mux.NewRouter(),
	}
	s.initRoutes()
	return s, nil
}

func (s *Server) initRoutes() {
	r := s.router
	r.Use(s.requestIDMiddleware, s.loggingMiddleware, s.maxBodyMiddleware)

	// Operator endpoints acting on the default link.
	r.HandleFunc("/link/down", s.handleDefaultDown).Methods(http.MethodPost)
	r.HandleFunc("/link/up", s.handleDefaultUp).Methods(http.MethodPost)

	r.HandleFunc("/healthz", s.handleHealth).Methods(http.MethodGet)
	if s.metrics != nil {
		r.Handle("/metrics", s.metrics).Methods(http.MethodGet)
	}

	v1 := r.PathPrefix("/api/v1").Subrouter()
	v1.HandleFunc("/links", s.handleListLinks).Methods(http.MethodGet)
	v1.HandleFunc("/links/{id}/down", s.handleLinkDown).Methods(http.MethodPost)
	v1.HandleFunc("/links/{id}/up", s.handleLinkUp).Methods(http.MethodPost)

	v1.HandleFunc("/switches", s.handleListSwitches).Methods(http.MethodGet)
	v1.HandleFunc("/switches/{id}/flows", s.handleSwitchFlows).Methods(http.MethodGet)
	v1.HandleFunc("/switches/{id}/macs", s.handleSwitchMACs).Methods(http.MethodGet)

	if s.sim != nil {
		v1.HandleFunc("/sim/send", s.handleSimSend).Methods(http.MethodPost)
	}

	r.NotFoundHandler = http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		writeError(w, http.StatusNotFound, "Not found", nil)
	})
	r.MethodNotAllowedHandler = http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		writeError(w, http.StatusMethodNotAllowed, "Method not allowed", nil)
	})
}

// Handler returns the routed handler, for tests and embedding.
func (s *Server) Handler() http.Handler { return s.router }

// Start listens on addr and serves until Stop. It returns nil after a
// graceful shutdown.
func (s *Server) Start(addr string) error {
	ln, err := net.Listen("tcp", addr)
	if err != nil {
		return errors.Wrapf(err, errors.KindUnavailable, "listen on %s", addr)
	}
	return s.Serve(ln)
}

// Serve serves on an existing listener until Stop.
func (s *Server) Serve(ln net.Listener) error {
	srv := &http.Server{
		Handler:           s.router,
		ReadHeaderTimeout: s.cfg.ReadHeaderTimeout,
		ReadTimeout:       s.cfg.ReadTimeout,
		WriteTimeout:      s.cfg.WriteTimeout,
		IdleTimeout:       s.cfg.IdleTimeout,
		MaxHeaderBytes:    s.cfg.MaxHeaderBytes,
	}
	s.mu.Lock()
	if s.stopped {
		s.mu.Unlock()
		return ln.Close()
	}
	s.httpServer = srv
	s.mu.Unlock()

	s.logger.Info("API server starting", "addr", ln.Addr().String())
	if err := srv.Serve(ln); err != nil && err != http.ErrServerClosed {
		return err
	}
	return nil
}

// Stop gracefully shuts the server down.
func (s *Server) Stop(ctx context.Context) error {
	s.mu.Lock()
	srv := s.httpServer
	s.stopped = true
	s.mu.Unlock()
	if srv == nil {
		return nil
	}

	ctx, cancel := context.WithTimeout(ctx, s.cfg.ShutdownTimeout)
	defer cancel()
	s.logger.Info("API server stopping")
	return srv.Shutdown(ctx)
}

// RequestIDHeader carries the per-request correlation id.
const RequestIDHeader = "X-Request-ID"

func (s *Server) requestIDMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		id := r.Header.Get(RequestIDHeader)
		if id == "" {
			id = uuid.NewString()
			r.Header.Set(RequestIDHeader, id)
		}
		w.Header().Set(RequestIDHeader, id)
		next.ServeHTTP(w, r)
	})
}

// loggingMiddleware logs all API requests
func (s *Server) loggingMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		wrapped := &responseWriter{ResponseWriter: w, statusCode: http.StatusOK}

		next.ServeHTTP(wrapped, r)

		if r.URL.Path == "/metrics" || r.URL.Path == "/healthz" {
			return
		}
		args := []any{
			"method", r.Method,
			"path", r.URL.Path,
			"status", wrapped.statusCode,
			"duration", time.Since(start).Round(time.Microsecond).String(),
			"request_id", r.Header.Get(RequestIDHeader),
		}
		switch {
		case wrapped.statusCode >= 500:
			s.logger.Error("request", args...)
		case wrapped.statusCode >= 400:
			s.logger.Warn("request", args...)
		default:
			s.logger.Info("request", args...)
		}
	})
}

// maxBodyMiddleware limits the size of request bodies.
func (s *Server) maxBodyMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Method == http.MethodGet || r.Method == http.MethodHead || r.Method == http.MethodOptions {
			next.ServeHTTP(w, r)
			return
		}
		if r.ContentLength > s.cfg.MaxBodyBytes {
			writeError(w, http.StatusRequestEntityTooLarge, "Request entity too large", nil)
			return
		}
		r.Body = http.MaxBytesReader(w, r.Body, s.cfg.MaxBodyBytes)
		next.ServeHTTP(w, r)
	})
}

type responseWriter struct {
	http.ResponseWriter
	statusCode int
}

func (rw *responseWriter) WriteHeader(code int) {
	rw.statusCode = code
	rw.ResponseWriter.WriteHeader(code)
}

func isJSON(r *http.Request) bool {
	ct := r.Header.Get("Content-Type")
	return ct == "" || strings.HasPrefix(ct, "application/json")
}
