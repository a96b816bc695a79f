// Package vector provides the per-project vector index and similarity search.
package vector

import (
	"context"
	"errors"
)

// ErrDuplicateID is returned when a vector id is inserted while a live entry holds it.
var ErrDuplicateID = errors.New("vector id already present")

// VectorIndex stores embeddings keyed by vector id and answers nearest-neighbour queries.
// Deleted entries are tombstoned and never returned; Compact purges them physically.
type VectorIndex interface {
	Add(ctx context.Context, entries []Entry) error
	Delete(ctx context.Context, vectorIDs []string) (int, error)
	Search(ctx context.Context, query []float32, k int) ([]*VectorResult, error)
	Compact(ctx context.Context) (int, error)
	Stats() Stats
	Dimensions() int
	Close() error
}

// Entry is a vector to insert together with its owning document.
type Entry struct {
	VectorID   string
	DocumentID string
	Vector     []float32
}

// VectorResult is a single vector search hit.
type VectorResult struct {
	VectorID   string
	DocumentID string
	Score      float64 // cosine similarity for normalized vectors
}

// Stats counts entries by lifecycle state.
type Stats struct {
	Live       int
	Tombstoned int
}

// TombstoneRatio is the share of stored entries that are tombstoned.
func (s Stats) TombstoneRatio() float64 {
	total := s.Live + s.Tombstoned
	if total == 0 {
		return 0
	}
	return float64(s.Tombstoned) / float64(total)
}
