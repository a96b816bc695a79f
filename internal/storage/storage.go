// Package storage defines the durable, project-scoped persistence of projects, documents and chunks.
package storage

import (
	"context"

	"github.com/hyperjump/retriever/internal/models"
)

// Storage defines project, document and chunk persistence. Every document operation is
// scoped by project id; no call reads or writes rows of another project.
type Storage interface {
	// Project operations
	PutProject(ctx context.Context, p *models.Project) error
	GetProject(ctx context.Context, id string) (*models.Project, error)
	ListProjects(ctx context.Context) ([]*models.Project, error)
	UpdateProjectLimits(ctx context.Context, id string, rateLimit float64, burst, capacity int) error

	// Document operations. A document is written pending together with its chunks and
	// becomes readable only after CommitDocument.
	PutPendingDocument(ctx context.Context, doc *models.Document, chunks []*models.Chunk) error
	CommitDocument(ctx context.Context, projectID, id string) error
	DiscardDocument(ctx context.Context, projectID, id string) error
	GetDocument(ctx context.Context, projectID, id string) (*models.Document, error)
	GetDocuments(ctx context.Context, projectID string, ids []string) (map[string]*models.Document, error)
	DeleteDocument(ctx context.Context, projectID, id string) error

	// Recovery and rebuild
	PurgePending(ctx context.Context) (int64, error)
	ForEachChunk(ctx context.Context, projectID string, fn func(*models.Chunk) error) error
	ForEachDocument(ctx context.Context, projectID string, fn func(*models.Document) error) error

	// Stats
	CountDocuments(ctx context.Context, projectID string) (int, error)

	Close() error
}
