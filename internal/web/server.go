// Package web serves the interactive session over HTTP while the feeder is
// awake: the operator page, the JSON control endpoints and /metrics.
package web

import (
	"context"
	"net"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"golang.org/x/time/rate"

	"github.com/sweeney/feeder/internal/config"
	"github.com/sweeney/feeder/internal/logger"
	"github.com/sweeney/feeder/internal/session"
	"github.com/sweeney/feeder/internal/status"
)

// Core is the session surface the handlers drive.
type Core interface {
	Touch()
	Schedule() ([]byte, error)
	SetSchedule(ctx context.Context, doc []byte) error
	System() config.SystemConfig
	SetSystem(ctx context.Context, doc []byte) error
	Time() (session.Time, error)
	RemainingIdle() int
	ManualFeed(ctx context.Context, on bool) error
	Feed(ctx context.Context) (bool, error)
	Sleep(ctx context.Context) error
	Status() status.Snapshot
}

// Options configure a Server. Zero values pick the defaults.
type Options struct {
	// Metrics serves GET /metrics when set.
	Metrics http.Handler

	// RequestRate and RequestBurst bound the request rate across all clients.
	RequestRate  rate.Limit
	RequestBurst int

	// RequestTimeout bounds how long a handler waits for the control loop.
	RequestTimeout time.Duration
}

// Defaults for Options.
const (
	DefaultRequestRate    = rate.Limit(10)
	DefaultRequestBurst   = 20
	DefaultRequestTimeout = 5 * time.Second
	maxBodyBytes          = 64 << 10
)

// Server serves the session surface over HTTP.
type Server struct {
	httpServer *http.Server
	core       Core
	log        *logger.Logger
	timeout    time.Duration
}

// New creates a Server for core listening on addr.
func New(addr string, core Core, log *logger.Logger, opts Options) *Server {
	if opts.RequestRate == 0 {
		opts.RequestRate = DefaultRequestRate
	}
	if opts.RequestBurst == 0 {
		opts.RequestBurst = DefaultRequestBurst
	}
	if opts.RequestTimeout == 0 {
		opts.RequestTimeout = DefaultRequestTimeout
	}

	s := &Server{core: core, log: log, timeout: opts.RequestTimeout}

	r := chi.NewRouter()
	r.Use(middleware.Recoverer)
	r.Use(rateLimit(rate.NewLimiter(opts.RequestRate, opts.RequestBurst), log))

	r.Get("/", s.handleIndex)
	r.Get("/index.html", s.handleIndex)
	r.Get("/status.json", s.handleStatus)

	r.Get("/get", s.handleGetSchedule)
	r.Post("/set", s.handleSetSchedule)
	r.Get("/system", s.handleGetSystem)
	r.Post("/system", s.handleSetSystem)

	r.Get("/time", s.handleTime)
	r.Get("/autosleep", s.handleAutoSleep)

	r.Post("/feed", s.handleManualFeed)
	r.Post("/feed/cycle", s.handleFeedCycle)
	r.Get("/sleep", s.handleSleep)
	r.Post("/sleep", s.handleSleep)

	if opts.Metrics != nil {
		r.Method(http.MethodGet, "/metrics", opts.Metrics)
	}

	s.httpServer = &http.Server{
		Addr:              addr,
		Handler:           r,
		ReadHeaderTimeout: 5 * time.Second,
	}
	return s
}

// Handler returns the router. Useful for tests.
func (s *Server) Handler() http.Handler {
	return s.httpServer.Handler
}

// ListenAndServe starts listening. It blocks until the server is shut down.
func (s *Server) ListenAndServe() error {
	return s.httpServer.ListenAndServe()
}

// Serve accepts connections on the given listener. Useful for tests.
func (s *Server) Serve(ln net.Listener) error {
	return s.httpServer.Serve(ln)
}

// Shutdown gracefully shuts down the server.
func (s *Server) Shutdown(ctx context.Context) error {
	return s.httpServer.Shutdown(ctx)
}
