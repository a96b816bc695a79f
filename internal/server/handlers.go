package server

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"

	"github.com/go-chi/chi/v5"
	"go.uber.org/zap"

	"github.com/hyperjump/retriever/internal/models"
)

func (s *Server) handleIngest(w http.ResponseWriter, r *http.Request) {
	var req models.IngestRequest
	if err := s.decode(w, r, &req); err != nil {
		s.respondError(w, r, err)
		return
	}
	h := handleFrom(r.Context())
	s.logger.Debug("ingest request", zap.String("project", h.ID()), zap.String("title", req.Title))
	doc, err := s.indexer.Ingest(r.Context(), h, &req)
	if err != nil {
		s.respondError(w, r, err)
		return
	}
	s.respondJSON(w, http.StatusCreated, doc)
}

func (s *Server) handleQuery(w http.ResponseWriter, r *http.Request) {
	var req models.QueryRequest
	if err := s.decode(w, r, &req); err != nil {
		s.respondError(w, r, err)
		return
	}
	h := handleFrom(r.Context())
	s.logger.Debug("query request",
		zap.String("project", h.ID()),
		zap.Int("top_k", req.TopK),
		zap.Int("vector_k", req.VectorK))
	results, err := s.engine.Query(r.Context(), h, &req)
	if err != nil {
		s.respondError(w, r, err)
		return
	}
	s.respondJSON(w, http.StatusOK, models.QueryResponse{Results: results})
}

func (s *Server) handleDelete(w http.ResponseWriter, r *http.Request) {
	h := handleFrom(r.Context())
	id := chi.URLParam(r, "document_id")
	s.logger.Debug("delete request", zap.String("project", h.ID()), zap.String("doc_id", id))
	if err := s.indexer.Delete(r.Context(), h, id); err != nil {
		s.respondError(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	s.respondJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

// decode reads a JSON body into v. Oversized and malformed bodies are validation errors.
func (s *Server) decode(w http.ResponseWriter, r *http.Request, v any) error {
	if s.config.MaxBodyBytes > 0 {
		r.Body = http.MaxBytesReader(w, r.Body, s.config.MaxBodyBytes)
	}
	if err := json.NewDecoder(r.Body).Decode(v); err != nil {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			return fmt.Errorf("%w: request body exceeds %d bytes", models.ErrValidation, tooLarge.Limit)
		}
		return fmt.Errorf("%w: malformed JSON body", models.ErrValidation)
	}
	return nil
}

func (s *Server) respondJSON(w http.ResponseWriter, status int, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(data)
}
