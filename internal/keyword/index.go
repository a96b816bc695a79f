// Package keyword provides the per-project lexical index.
package keyword

import (
	"context"

	"github.com/hyperjump/retriever/internal/models"
)

// KeywordIndex defines lexical indexing and search over document title and content.
type KeywordIndex interface {
	Index(ctx context.Context, doc *models.Document) error
	IndexBatch(ctx context.Context, docs []*models.Document) error
	Search(ctx context.Context, query string, limit int) ([]*KeywordResult, error)
	Delete(ctx context.Context, id string) error
	DocCount() (uint64, error)
	Close() error
}

// KeywordResult is a single keyword search hit.
type KeywordResult struct {
	ID    string
	Score float64
}
