// Package web provides the HTTP API for the registry importer.
package web

import (
	"context"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"

	"github.com/roadregistry/importer/internal/core"
	"github.com/roadregistry/importer/internal/dict"
)

// Server is the HTTP server for the import API.
type Server struct {
	service     *core.Service
	dicts       *dict.Store
	tracker     *dict.Tracker
	maxFileSize int64
	router      *chi.Mux
	server      *http.Server
}

// Options tunes a Server; zero values pick defaults.
type Options struct {
	// MaxFileSize caps uploaded extract size in bytes.
	MaxFileSize int64
}

// DefaultMaxFileSize caps uploads at 2GB; a full-province vehicle
// extract runs to several hundred MB.
const DefaultMaxFileSize = 2 << 30

// NewServer creates a Server over the import service and dictionaries.
func NewServer(service *core.Service, dicts *dict.Store, tracker *dict.Tracker, opts Options) *Server {
	maxSize := opts.MaxFileSize
	if maxSize <= 0 {
		maxSize = DefaultMaxFileSize
	}
	s := &Server{
		service:     service,
		dicts:       dicts,
		tracker:     tracker,
		maxFileSize: maxSize,
		router:      chi.NewRouter(),
	}
	s.setupMiddleware()
	s.setupRoutes()
	return s
}

func (s *Server) setupMiddleware() {
	s.router.Use(middleware.RequestID)
	s.router.Use(middleware.RealIP)
	s.router.Use(requestLogger)
	s.router.Use(middleware.Recoverer)
	s.router.Use(middleware.Compress(5))
	s.router.Use(securityHeaders)
}

func (s *Server) setupRoutes() {
	s.router.Get("/healthz", s.handleHealth)

	s.router.Route("/api", func(r chi.Router) {
		r.Get("/record-types", s.handleListRecordTypes)

		r.Post("/imports", s.handleStartImport)
		r.Get("/imports/{importID}/progress", s.handleImportProgress)
		r.Get("/imports/{importID}/result", s.handleImportResult)
		r.Post("/imports/{importID}/cancel", s.handleCancelImport)

		r.Get("/import-log", s.handleImportLog)

		r.Get("/dictionaries", s.handleListDictionaries)
		r.Get("/dictionaries/{domain}", s.handleDictionary)
	})
}

// Start begins listening for HTTP requests.
func (s *Server) Start(addr string) error {
	s.server = &http.Server{
		Addr:         addr,
		Handler:      s.router,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 0, // Disabled for SSE
		IdleTimeout:  60 * time.Second,
	}
	return s.server.ListenAndServe()
}

// Shutdown gracefully stops the server.
func (s *Server) Shutdown(ctx context.Context) error {
	if s.server == nil {
		return nil
	}
	return s.server.Shutdown(ctx)
}

// Router returns the underlying chi router for testing.
func (s *Server) Router() *chi.Mux {
	return s.router
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

// securityHeaders adds hardening headers to all responses.
func securityHeaders(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("X-Content-Type-Options", "nosniff")
		w.Header().Set("X-Frame-Options", "DENY")
		w.Header().Set("Referrer-Policy", "strict-origin-when-cross-origin")
		next.ServeHTTP(w, r)
	})
}
