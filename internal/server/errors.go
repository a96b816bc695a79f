package server

import (
	"context"
	"errors"
	"net/http"

	"go.uber.org/zap"

	"github.com/hyperjump/retriever/internal/models"
)

// errorResponse is the body of every non-2xx response.
type errorResponse struct {
	Detail string `json:"detail"`
}

// statusFor maps an error to its HTTP status and the detail shown to the caller. Upstream and
// internal faults get a fixed detail; the cause is only logged.
func statusFor(err error) (int, string) {
	switch {
	case errors.Is(err, models.ErrAuthFailure):
		return http.StatusUnauthorized, models.ErrAuthFailure.Error()
	case errors.Is(err, models.ErrNotFound):
		return http.StatusNotFound, err.Error()
	case errors.Is(err, models.ErrRateLimited):
		return http.StatusTooManyRequests, models.ErrRateLimited.Error()
	case errors.Is(err, models.ErrQuotaExceeded):
		return http.StatusPaymentRequired, err.Error()
	case errors.Is(err, models.ErrValidation):
		return http.StatusBadRequest, err.Error()
	case errors.Is(err, models.ErrUpstream):
		return http.StatusServiceUnavailable, models.ErrUpstream.Error()
	case errors.Is(err, context.DeadlineExceeded):
		return http.StatusServiceUnavailable, "request timed out"
	default:
		return http.StatusInternalServerError, models.ErrInternal.Error()
	}
}

func (s *Server) respondError(w http.ResponseWriter, r *http.Request, err error) {
	status, detail := statusFor(err)
	if status >= http.StatusInternalServerError {
		s.logger.Error("request failed",
			zap.String("method", r.Method),
			zap.String("path", r.URL.Path),
			zap.Int("status", status),
			zap.Error(err))
	} else {
		s.logger.Debug("request rejected",
			zap.String("path", r.URL.Path),
			zap.Int("status", status),
			zap.Error(err))
	}
	s.respondJSON(w, status, errorResponse{Detail: detail})
}
