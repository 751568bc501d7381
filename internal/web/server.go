// Package web exposes the initialization orchestrator as a JSON HTTP API.
package web

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"time"

	"github.com/JonMunkholm/tenantinit/internal/core"
	"github.com/JonMunkholm/tenantinit/internal/web/middleware"
	"github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"
)

// Options configures the HTTP server.
type Options struct {
	ReadTimeout  time.Duration
	WriteTimeout time.Duration
	IdleTimeout  time.Duration

	MaxBodyBytes   int64
	TrustedProxies []string

	RateLimitEnabled  bool
	RequestsPerMinute int
	RateBurst         int
}

// Server is the HTTP server for the orchestrator API.
type Server struct {
	service *core.Service
	opts    Options
	router  *chi.Mux
	server  *http.Server
	limiter *middleware.IPRateLimiter
}

// NewServer creates a Server with middleware and routes installed.
func NewServer(service *core.Service, opts Options) *Server {
	if opts.MaxBodyBytes <= 0 {
		opts.MaxBodyBytes = 200 << 20
	}

	s := &Server{
		service: service,
		opts:    opts,
		router:  chi.NewRouter(),
	}
	s.setupMiddleware()
	s.setupRoutes()
	return s
}

func (s *Server) setupMiddleware() {
	s.router.Use(chimw.RequestID)
	s.router.Use(middleware.TrustedRealIP(s.opts.TrustedProxies))
	s.router.Use(middleware.Logger("/healthz"))
	s.router.Use(chimw.Recoverer)
	s.router.Use(securityHeaders)

	if s.opts.RateLimitEnabled && s.opts.RequestsPerMinute > 0 {
		s.limiter = middleware.NewIPRateLimiter(s.opts.RequestsPerMinute, s.opts.RateBurst)
		s.router.Use(s.limiter.Middleware(s.rejectRateLimited))
	}
}

func (s *Server) setupRoutes() {
	s.router.Get("/healthz", s.handleHealth)

	s.router.Route("/api", func(r chi.Router) {
		r.Post("/initialize-database", s.handleInitializeDatabase)
		r.Post("/seed-workspace", s.handleSeedWorkspace)
		r.Post("/apply-config", s.handleApplyConfig)

		r.Get("/status", s.handleStatus)
		r.Get("/status/{tenantID}", s.handleStatus)
		r.Get("/logs", s.handleLogs)

		r.Post("/connections", s.handleRegisterConnection)
		r.Get("/connections", s.handleListConnections)
	})

	s.router.NotFound(func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, http.StatusNotFound, dataResponse{apiError: apiError{
			Error: "route not found",
			Code:  "HTTP404",
		}})
	})
	s.router.MethodNotAllowed(func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, http.StatusMethodNotAllowed, dataResponse{apiError: apiError{
			Error: "method not allowed",
			Code:  "HTTP405",
		}})
	})
}

// Start listens on addr until Shutdown. http.ErrServerClosed is not an error.
func (s *Server) Start(addr string) error {
	s.server = &http.Server{
		Addr:         addr,
		Handler:      s.router,
		ReadTimeout:  s.opts.ReadTimeout,
		WriteTimeout: s.opts.WriteTimeout,
		IdleTimeout:  s.opts.IdleTimeout,
	}

	slog.Info("starting server", "addr", addr)
	if err := s.server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}

// Shutdown stops accepting requests and waits for in-flight ones.
func (s *Server) Shutdown(ctx context.Context) error {
	if s.limiter != nil {
		s.limiter.Stop()
	}
	if s.server == nil {
		return nil
	}
	return s.server.Shutdown(ctx)
}

// Router returns the underlying chi router for testing.
func (s *Server) Router() *chi.Mux {
	return s.router
}

func securityHeaders(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("X-Content-Type-Options", "nosniff")
		w.Header().Set("X-Frame-Options", "DENY")
		w.Header().Set("Cache-Control", "no-store")
		w.Header().Set("Referrer-Policy", "no-referrer")
		next.ServeHTTP(w, r)
	})
}

// writeJSON encodes v with status. Encoding errors are logged since the
// header is already sent.
func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		slog.Error("json encode error", "error", err)
	}
}
