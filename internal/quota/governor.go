// Package quota enforces per-project request rates and document capacity.
package quota

import (
	"fmt"
	"math"
	"sync"

	"golang.org/x/time/rate"

	"github.com/hyperjump/retriever/internal/metrics"
	"github.com/hyperjump/retriever/internal/models"
)

// Limits configures a Governor. Zero RateLimit or Capacity means unlimited.
// Burst defaults to the ceiling of RateLimit, at least 1.
type Limits struct {
	RateLimit float64
	Burst     int
	Capacity  int
}

// Governor gates one project's ingests and queries with a single token bucket and tracks
// document count against the capacity limit.
type Governor struct {
	mu       sync.Mutex
	limiter  *rate.Limiter
	limits   Limits
	capacity int
	used     int
}

// NewGovernor returns a governor with used slots already taken.
func NewGovernor(l Limits, used int) *Governor {
	g := &Governor{used: used}
	g.SetLimits(l)
	return g
}

// SetLimits applies new limits without resetting the capacity counter. An existing finite
// bucket keeps its current token level; only a switch to or from unlimited starts a fresh one.
func (g *Governor) SetLimits(l Limits) {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.capacity = l.Capacity
	if g.limiter != nil && l == g.limits {
		return
	}
	g.limits = l
	next := newLimiter(l)
	if g.limiter == nil || g.limiter.Limit() == rate.Inf || next.Limit() == rate.Inf {
		g.limiter = next
		return
	}
	g.limiter.SetLimit(next.Limit())
	g.limiter.SetBurst(next.Burst())
}

func newLimiter(l Limits) *rate.Limiter {
	if l.RateLimit <= 0 {
		return rate.NewLimiter(rate.Inf, 0)
	}
	burst := l.Burst
	if burst <= 0 {
		burst = max(1, int(math.Ceil(l.RateLimit)))
	}
	return rate.NewLimiter(rate.Limit(l.RateLimit), burst)
}

// AllowQuery takes a rate token or returns models.ErrRateLimited.
func (g *Governor) AllowQuery() error {
	g.mu.Lock()
	defer g.mu.Unlock()
	if !g.limiter.Allow() {
		metrics.Rejections.WithLabelValues("rate_limited").Inc()
		return models.ErrRateLimited
	}
	return nil
}

// AdmitIngest checks capacity, takes a rate token and reserves one document slot.
// A capacity rejection consumes no token. The caller must Commit or Release the reservation.
func (g *Governor) AdmitIngest() (*Reservation, error) {
	g.mu.Lock()
	defer g.mu.Unlock()
	if g.capacity > 0 && g.used >= g.capacity {
		metrics.Rejections.WithLabelValues("quota_exceeded").Inc()
		return nil, fmt.Errorf("%w: limit is %d documents", models.ErrQuotaExceeded, g.capacity)
	}
	if !g.limiter.Allow() {
		metrics.Rejections.WithLabelValues("rate_limited").Inc()
		return nil, models.ErrRateLimited
	}
	g.used++
	return &Reservation{g: g}, nil
}

// Free returns n document slots, e.g. after deletes.
func (g *Governor) Free(n int) {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.used = max(0, g.used-n)
}

// Usage returns used slots and the capacity limit (0 = unlimited).
func (g *Governor) Usage() (used, capacity int) {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.used, g.capacity
}

// Reservation is a document slot held for an in-flight ingest.
type Reservation struct {
	g    *Governor
	done bool
}

// Commit keeps the slot for the stored document.
func (r *Reservation) Commit() {
	r.done = true
}

// Release gives the slot back unless it was committed. Safe to call more than once.
func (r *Reservation) Release() {
	if r.done {
		return
	}
	r.done = true
	r.g.Free(1)
}
