package server

import (
	"context"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"go.uber.org/zap"

	"github.com/hyperjump/retriever/internal/metrics"
	"github.com/hyperjump/retriever/internal/tenant"
)

// ProjectKeyHeader carries the project key on every project route.
const ProjectKeyHeader = "X-Project-Key"

type ctxKey int

const handleKey ctxKey = iota

// requestLogger logs one line per request with zap.
func requestLogger(logger *zap.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
			start := time.Now()
			next.ServeHTTP(ww, r)
			logger.Info("http request",
				zap.String("method", r.Method),
				zap.String("path", r.URL.Path),
				zap.Int("status", statusOf(ww)),
				zap.Int("bytes", ww.BytesWritten()),
				zap.Duration("duration", time.Since(start)),
				zap.String("request_id", middleware.GetReqID(r.Context())))
		})
	}
}

// requestTimeout bounds the request context. Handlers observe it through the context;
// nothing is written on their behalf.
func requestTimeout(d time.Duration) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		if d <= 0 {
			return next
		}
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			ctx, cancel := context.WithTimeout(r.Context(), d)
			defer cancel()
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}

// instrument counts requests of operation by response status.
func instrument(operation string) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
			next.ServeHTTP(ww, r)
			metrics.RequestsTotal.WithLabelValues(operation, strconv.Itoa(statusOf(ww))).Inc()
		})
	}
}

// authenticate resolves the project in the URL and checks the key header. The handle is
// stored in the request context; handlers never look projects up themselves.
func (s *Server) authenticate(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		h, err := s.registry.Authenticate(chi.URLParam(r, "project_id"), r.Header.Get(ProjectKeyHeader))
		if err != nil {
			s.respondError(w, r, err)
			return
		}
		next.ServeHTTP(w, r.WithContext(context.WithValue(r.Context(), handleKey, h)))
	})
}

func handleFrom(ctx context.Context) *tenant.Handle {
	h, _ := ctx.Value(handleKey).(*tenant.Handle)
	return h
}

// statusOf reports 200 for handlers that wrote nothing.
func statusOf(ww middleware.WrapResponseWriter) int {
	if ww.Status() == 0 {
		return http.StatusOK
	}
	return ww.Status()
}
