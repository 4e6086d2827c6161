package server

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"go.uber.org/zap"

	"github.com/idscout/idscout/internal/config"
	"github.com/idscout/idscout/internal/core"
	apperrors "github.com/idscout/idscout/internal/errors"
	"github.com/idscout/idscout/internal/observability"
	"github.com/idscout/idscout/internal/server/handlers"
	servermw "github.com/idscout/idscout/internal/server/middleware"
)

// Options configures a Server.
type Options struct {
	Host            string
	Port            int
	ReadTimeout     time.Duration
	WriteTimeout    time.Duration
	IdleTimeout     time.Duration
	ShutdownTimeout time.Duration

	Version string

	// Runner executes scans for POST /v1/scans. Nil disables scanning.
	Runner      handlers.ScanRunner
	ScanOptions core.ScanOptions
	ScanTimeout time.Duration

	// AdminToken enables POST /admin/signal when set.
	AdminToken string

	// Checkers are added to the health manager next to the scanner check.
	Checkers map[string]handlers.HealthChecker
}

// OptionsFromConfig maps the server and scan sections of cfg onto Options.
func OptionsFromConfig(cfg *config.Config, runner handlers.ScanRunner) Options {
	return Options{
		Host:            cfg.Server.Host,
		Port:            cfg.Server.Port,
		ReadTimeout:     cfg.Server.ReadTimeout,
		WriteTimeout:    cfg.Server.WriteTimeout,
		IdleTimeout:     cfg.Server.IdleTimeout,
		ShutdownTimeout: cfg.Server.ShutdownTimeout,
		Runner:          runner,
		ScanOptions:     cfg.ScanOptions(),
		ScanTimeout:     cfg.Scan.Timeout,
	}
}

// Server represents the HTTP server
type Server struct {
	router *chi.Mux
	server *http.Server
	opts   Options

	health *handlers.HealthManager
	scans  *handlers.ScanHandler
}

// New creates a new HTTP server instance
func New(opts Options) *Server {
	r := chi.NewRouter()

	r.Use(middleware.RealIP)

	// RequestID first for correlation, Recovery innermost so panics are
	// still counted by RequestMetrics.
	r.Use(servermw.RequestID)
	r.Use(servermw.RequestMetrics)
	r.Use(servermw.Recovery)

	r.NotFound(func(w http.ResponseWriter, req *http.Request) {
		HandleError(w, req, apperrors.NewNotFoundError("The requested resource was not found"))
	})
	r.MethodNotAllowed(func(w http.ResponseWriter, req *http.Request) {
		HandleError(w, req, apperrors.NewMethodNotAllowedError("The requested method is not allowed for this resource"))
	})

	s := &Server{
		router: r,
		opts:   opts,
		health: handlers.NewHealthManager(opts.Version),
		scans:  handlers.NewScanHandler(opts.Runner, opts.ScanOptions, opts.ScanTimeout),
	}
	s.health.RegisterChecker("scanner", handlers.CheckerFunc(s.scans.Ready))
	for name, checker := range opts.Checkers {
		s.health.RegisterChecker(name, checker)
	}

	handlers.SetHTTPErrorResponder(HandleError)

	s.registerRoutes()

	return s
}

// Start starts the HTTP server
func (s *Server) Start() error {
	addr := fmt.Sprintf("%s:%d", s.opts.Host, s.opts.Port)

	s.server = &http.Server{
		Addr:         addr,
		Handler:      s.router,
		ReadTimeout:  orDefault(s.opts.ReadTimeout, 30*time.Second),
		WriteTimeout: orDefault(s.opts.WriteTimeout, 5*time.Minute),
		IdleTimeout:  orDefault(s.opts.IdleTimeout, 120*time.Second),
	}

	if observability.ServerLogger != nil {
		observability.ServerLogger.Info("Starting HTTP server",
			zap.String("host", s.opts.Host),
			zap.Int("port", s.opts.Port),
			zap.String("addr", addr))
	}

	return s.server.ListenAndServe()
}

// Shutdown gracefully shuts down the HTTP server
func (s *Server) Shutdown(ctx context.Context) error {
	if s.server == nil {
		return nil
	}
	if observability.ServerLogger != nil {
		observability.ServerLogger.Info("Shutting down HTTP server")
	}
	return s.server.Shutdown(ctx)
}

// ShutdownTimeout is how long Shutdown should be given to drain requests.
func (s *Server) ShutdownTimeout() time.Duration {
	return orDefault(s.opts.ShutdownTimeout, 10*time.Second)
}

// Handler exposes the underlying router for testing and instrumentation
func (s *Server) Handler() http.Handler {
	return s.router
}

// Port returns the server port for testing
func (s *Server) Port() int {
	return s.opts.Port
}

func orDefault(d, fallback time.Duration) time.Duration {
	if d <= 0 {
		return fallback
	}
	return d
}
