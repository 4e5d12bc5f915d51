package server

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/ctxconfig/cac/internal/auth"
	"github.com/ctxconfig/cac/internal/experiment"
	"github.com/ctxconfig/cac/internal/ratelimit"
	"github.com/ctxconfig/cac/internal/storage"
	"github.com/ctxconfig/cac/internal/validatorfn"
)

// Server is the configuration-and-experimentation platform's HTTP server.
type Server struct {
	httpServer *http.Server
	handler    http.Handler
	handlers   *Handlers
	logger     *slog.Logger
}

// Handler returns the root HTTP handler for use in tests.
func (s *Server) Handler() http.Handler {
	return s.handler
}

// ServerConfig holds all dependencies and configuration for creating a Server.
type ServerConfig struct {
	// Required dependencies.
	DB            *storage.DB
	Experiments   *experiment.Service
	Validators    *validatorfn.Registry
	AdminVerifier *auth.AdminVerifier
	Logger        *slog.Logger

	// Optional dependencies (nil = disabled).
	RateLimiter *ratelimit.MemoryLimiter

	// HTTP server settings.
	Port                int
	ReadTimeout         time.Duration
	WriteTimeout        time.Duration
	Version             string
	MaxRequestBodyBytes int64
	CORSAllowedOrigins  []string // Allowed origins for CORS; ["*"] permits all.
}

// New creates a new HTTP server with all routes configured.
func New(cfg ServerConfig) *Server {
	h := NewHandlers(HandlersDeps{
		DB:                  cfg.DB,
		Experiments:         cfg.Experiments,
		Validators:          cfg.Validators,
		Logger:              cfg.Logger,
		Version:             cfg.Version,
		MaxRequestBodyBytes: cfg.MaxRequestBodyBytes,
	})

	mux := http.NewServeMux()

	mux.Handle("PUT /default-config/{key}", http.HandlerFunc(h.HandlePutDefaultConfig))
	mux.Handle("GET /default-config", http.HandlerFunc(h.HandleListDefaultConfig))
	mux.Handle("DELETE /default-config/{key}", http.HandlerFunc(h.HandleDeleteDefaultConfig))

	mux.Handle("PUT /context", http.HandlerFunc(h.HandlePutContext))
	mux.Handle("GET /context/list", http.HandlerFunc(h.HandleListContexts))
	mux.Handle("DELETE /context/{id}", http.HandlerFunc(h.HandleDeleteContext))

	mux.Handle("POST /dimension", http.HandlerFunc(h.HandleCreateDimension))

	mux.Handle("POST /experiments", http.HandlerFunc(h.HandleCreateExperiment))
	mux.Handle("PATCH /experiments/{id}/ramp", http.HandlerFunc(h.HandleRampExperiment))
	mux.Handle("PATCH /experiments/{id}/conclude", http.HandlerFunc(h.HandleConcludeExperiment))
	mux.Handle("GET /experiments", http.HandlerFunc(h.HandleListExperiments))

	// Cold-start snapshot (authenticated) and health (the only route in
	// noAuthPaths, so unauthenticated).
	mux.Handle("GET /config", http.HandlerFunc(h.HandleConfigSnapshot))
	mux.Handle("GET /health", http.HandlerFunc(h.HandleHealth))

	// Middleware chain (outermost executes first):
	// request ID → security headers → CORS → tracing → logging → baggage → auth → recovery → rate limit → handler.
	var handler http.Handler = mux
	if cfg.RateLimiter != nil {
		handler = ratelimit.Middleware(cfg.RateLimiter, ratelimit.IPKeyFunc)(handler)
	}
	handler = recoveryMiddleware(cfg.Logger, handler)
	handler = authMiddleware(cfg.AdminVerifier, handler)
	handler = baggageMiddleware(handler)
	handler = loggingMiddleware(cfg.Logger, handler)
	handler = tracingMiddleware(handler)
	handler = corsMiddleware(cfg.CORSAllowedOrigins, handler)
	handler = securityHeadersMiddleware(handler)
	handler = requestIDMiddleware(handler)

	return &Server{
		httpServer: &http.Server{
			Addr:         fmt.Sprintf(":%d", cfg.Port),
			Handler:      handler,
			ReadTimeout:  cfg.ReadTimeout,
			WriteTimeout: cfg.WriteTimeout,
			IdleTimeout:  2 * cfg.ReadTimeout,
		},
		handler:  handler,
		handlers: h,
		logger:   cfg.Logger,
	}
}

// Handlers returns the underlying Handlers, for tests that need to reach
// past the HTTP layer.
func (s *Server) Handlers() *Handlers {
	return s.handlers
}

// Start begins serving HTTP requests.
func (s *Server) Start() error {
	s.logger.Info("http server starting", "addr", s.httpServer.Addr)
	return s.httpServer.ListenAndServe()
}

// Shutdown gracefully shuts down the HTTP server.
func (s *Server) Shutdown(ctx context.Context) error {
	s.logger.Info("http server shutting down")
	return s.httpServer.Shutdown(ctx)
}
