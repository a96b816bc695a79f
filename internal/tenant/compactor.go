package tenant

import (
	"context"
	"time"

	"go.uber.org/zap"

	"github.com/hyperjump/retriever/internal/metrics"
)

// CompactAll purges tombstoned vectors of every project whose tombstone ratio reaches
// minRatio and returns the number of entries purged. Searches keep running meanwhile.
func (r *Registry) CompactAll(ctx context.Context, minRatio float64) int {
	total := 0
	for _, h := range r.Handles() {
		if ctx.Err() != nil {
			break
		}
		stats := h.Vectors.Stats()
		if stats.Tombstoned == 0 || stats.TombstoneRatio() < minRatio {
			continue
		}
		purged, err := h.Vectors.Compact(ctx)
		if err != nil {
			r.logger.Warn("vector compaction failed", zap.String("project", h.id), zap.Error(err))
			continue
		}
		if purged > 0 {
			metrics.CompactionPurged.Add(float64(purged))
			r.logger.Debug("vector compaction",
				zap.String("project", h.id),
				zap.Int("purged", purged),
				zap.Int("live", stats.Live))
		}
		total += purged
	}
	return total
}

// RunCompactor calls CompactAll every interval until ctx is done.
func (r *Registry) RunCompactor(ctx context.Context, interval time.Duration, minRatio float64) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			r.CompactAll(ctx, minRatio)
		}
	}
}
