// Package httpserver provides the HTTP REST API for the citation
// importer service.
package httpserver

import (
	"context"
	"encoding/json"
	"fmt"
	"net"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/rs/zerolog"

	"github.com/quillcms/citation-importer/internal/database"
	"github.com/quillcms/citation-importer/internal/importer"
	"github.com/quillcms/citation-importer/internal/resolver"
	"github.com/quillcms/citation-importer/internal/sessioncache"
)

// Config holds HTTP server configuration.
type Config struct {
	Address         string
	ReadTimeout     time.Duration
	WriteTimeout    time.Duration
	IdleTimeout     time.Duration
	ShutdownTimeout time.Duration

	// AdminHeader is the request header carrying the caller's role.
	AdminHeader string
	// AdminRole is the value of AdminHeader that marks administrators.
	AdminRole string
	// SessionTTL bounds step tokens to the lifetime of the session.
	SessionTTL time.Duration
	// PauseEvery mirrors the resolver's pacing interval; batches larger
	// than this get a patience notice in the start response.
	PauseEvery int
}

// Server is the HTTP REST API server for the three-step import flow.
type Server struct {
	router     chi.Router
	httpServer *http.Server
	resolver   *resolver.Resolver
	importer   *importer.Importer
	sessions   sessioncache.Store
	db         *database.DB
	logger     zerolog.Logger

	adminHeader string
	adminRole   string
	sessionTTL  time.Duration
	pauseEvery  int
}

// NewServer creates a new HTTP server with all dependencies. db may be
// nil in tests; the health endpoints then report only process liveness.
func NewServer(
	cfg Config,
	res *resolver.Resolver,
	imp *importer.Importer,
	sessions sessioncache.Store,
	db *database.DB,
	logger zerolog.Logger,
) *Server {
	if cfg.AdminHeader == "" {
		cfg.AdminHeader = "X-Role"
	}
	if cfg.AdminRole == "" {
		cfg.AdminRole = "admin"
	}
	if cfg.SessionTTL == 0 {
		cfg.SessionTTL = sessioncache.DefaultTTL
	}
	if cfg.PauseEvery == 0 {
		cfg.PauseEvery = resolver.DefaultPauseEvery
	}

	s := &Server{
		resolver:    res,
		importer:    imp,
		sessions:    sessions,
		db:          db,
		logger:      logger.With().Str("component", "http-server").Logger(),
		adminHeader: cfg.AdminHeader,
		adminRole:   cfg.AdminRole,
		sessionTTL:  cfg.SessionTTL,
		pauseEvery:  cfg.PauseEvery,
	}

	s.router = s.buildRouter()

	s.httpServer = &http.Server{
		Addr:         cfg.Address,
		Handler:      s.router,
		ReadTimeout:  cfg.ReadTimeout,
		WriteTimeout: cfg.WriteTimeout,
		IdleTimeout:  cfg.IdleTimeout,
	}

	return s
}

// buildRouter creates the chi router with all middleware and routes.
func (s *Server) buildRouter() chi.Router {
	r := chi.NewRouter()

	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(middleware.Recoverer)
	r.Use(s.requestContextMiddleware)

	r.Get("/healthz", s.healthHandler)
	r.Get("/readyz", s.readinessHandler)

	r.Route("/api/v1/imports", func(r chi.Router) {
		r.Post("/", s.startImport)
		r.Get("/{sessionID}/progress", s.streamProgress)
		r.Get("/{sessionID}", s.reviewImport)
		r.Post("/{sessionID}/confirm", s.confirmImport)
	})

	return r
}

// Router exposes the underlying handler. Intended for tests.
func (s *Server) Router() http.Handler {
	return s.router
}

// Start starts the HTTP server.
func (s *Server) Start() error {
	s.logger.Info().Str("address", s.httpServer.Addr).Msg("HTTP server starting")
	ln, err := net.Listen("tcp", s.httpServer.Addr)
	if err != nil {
		return fmt.Errorf("listen on HTTP address: %w", err)
	}
	return s.httpServer.Serve(ln)
}

// Shutdown gracefully shuts down the HTTP server.
func (s *Server) Shutdown(ctx context.Context) error {
	return s.httpServer.Shutdown(ctx)
}

// healthHandler returns basic liveness status.
func (s *Server) healthHandler(w http.ResponseWriter, r *http.Request) {
	if s.db == nil {
		writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
		return
	}

	health := s.db.Health(r.Context())
	if health.Status == "healthy" {
		writeJSON(w, http.StatusOK, map[string]string{"status": "ok", "database": health.Status})
		return
	}
	writeJSON(w, http.StatusServiceUnavailable, map[string]string{
		"status":   "unhealthy",
		"database": health.Status,
		"error":    health.Error,
	})
}

// readinessHandler returns readiness status.
func (s *Server) readinessHandler(w http.ResponseWriter, r *http.Request) {
	if s.db == nil {
		writeJSON(w, http.StatusOK, map[string]string{"status": "ready"})
		return
	}

	health := s.db.Health(r.Context())
	if health.Status != "healthy" {
		writeJSON(w, http.StatusServiceUnavailable, map[string]string{
			"status":   "not_ready",
			"database": health.Status,
			"error":    health.Error,
		})
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{
		"status":   "ready",
		"database": "healthy",
	})
}

// writeJSON writes a JSON response with the given status code.
func writeJSON(w http.ResponseWriter, statusCode int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(statusCode)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		// Best-effort; headers already sent.
		_ = err
	}
}

// writeError writes a JSON error response.
func writeError(w http.ResponseWriter, statusCode int, message string) {
	writeJSON(w, statusCode, map[string]string{
		"error": message,
	})
}
