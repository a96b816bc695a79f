// Package server provides the REST API of the retrieval service.
package server

import (
	"context"
	"errors"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"

	"github.com/hyperjump/retriever/internal/config"
	"github.com/hyperjump/retriever/internal/indexer"
	"github.com/hyperjump/retriever/internal/search"
	"github.com/hyperjump/retriever/internal/tenant"
)

// Server is the HTTP server for the retrieval API.
type Server struct {
	registry *tenant.Registry
	engine   *search.Engine
	indexer  *indexer.Indexer
	config   *config.ServerConfig
	logger   *zap.Logger
	server   *http.Server
}

// NewServer creates a server with the given dependencies.
func NewServer(
	registry *tenant.Registry,
	engine *search.Engine,
	idx *indexer.Indexer,
	cfg *config.ServerConfig,
	logger *zap.Logger,
) *Server {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Server{
		registry: registry,
		engine:   engine,
		indexer:  idx,
		config:   cfg,
		logger:   logger,
	}
}

// Handler returns the API routes.
func (s *Server) Handler() http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(requestLogger(s.logger))
	r.Use(middleware.Recoverer)
	r.Use(requestTimeout(s.config.RequestTimeout))

	r.Get("/health", s.handleHealth)
	r.Handle("/metrics", promhttp.Handler())

	r.Route("/api/rag/projects/{project_id}", func(r chi.Router) {
		r.With(instrument("ingest"), s.authenticate).Post("/documents", s.handleIngest)
		r.With(instrument("query"), s.authenticate).Post("/query", s.handleQuery)
		r.With(instrument("delete"), s.authenticate).Delete("/vectors/{document_id}", s.handleDelete)
	})

	r.NotFound(func(w http.ResponseWriter, r *http.Request) {
		s.respondJSON(w, http.StatusNotFound, errorResponse{Detail: "route not found"})
	})
	r.MethodNotAllowed(func(w http.ResponseWriter, r *http.Request) {
		s.respondJSON(w, http.StatusMethodNotAllowed, errorResponse{Detail: "method not allowed"})
	})
	return r
}

// Start starts the HTTP server and blocks until it stops.
func (s *Server) Start() error {
	addr := s.config.Addr()
	s.server = &http.Server{
		Addr:    addr,
		Handler: s.Handler(),
	}
	s.logger.Info("Starting server", zap.String("addr", addr))
	if err := s.server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}

// Stop gracefully shuts down the server.
func (s *Server) Stop(ctx context.Context) error {
	if s.server != nil {
		return s.server.Shutdown(ctx)
	}
	return nil
}
