// Package embedding turns text into fixed-dimension vectors. Inference itself happens outside
// the process; this package provides the clients, a local hashing embedder, caching and the
// retrying gateway the engine calls.
package embedding

import (
	"context"
	"errors"
)

var (
	// ErrEmptyInput indicates empty or nil input texts.
	ErrEmptyInput = errors.New("empty or nil input texts")

	// ErrEmbeddingFailed indicates a failed embedding call that may succeed on retry.
	ErrEmbeddingFailed = errors.New("embedding generation failed")

	// ErrDimensionMismatch indicates the backend returned vectors of the wrong size.
	ErrDimensionMismatch = errors.New("embedding dimension mismatch")
)

// Embedder produces vector embeddings for text.
type Embedder interface {
	Embed(ctx context.Context, text string) ([]float32, error)
	EmbedBatch(ctx context.Context, texts []string) ([][]float32, error)
	Dimensions() int
	Close() error
}
