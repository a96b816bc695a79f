package indexer

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/hyperjump/retriever/internal/embedding"
	"github.com/hyperjump/retriever/internal/metrics"
	"github.com/hyperjump/retriever/internal/models"
	"github.com/hyperjump/retriever/internal/storage"
	"github.com/hyperjump/retriever/internal/tenant"
	"github.com/hyperjump/retriever/internal/vector"
)

// Indexer writes documents into a project's store partition and indexes and removes them again.
type Indexer struct {
	store    storage.Storage
	embedder embedding.Embedder
	chunker  *Chunker
	logger   *zap.Logger
}

// IndexerOption configures an Indexer.
type IndexerOption func(*Indexer)

// WithLogger sets the logger for rollbacks and other pipeline events.
func WithLogger(l *zap.Logger) IndexerOption {
	return func(idx *Indexer) { idx.logger = l }
}

// NewIndexer creates an indexer. chunkSize and chunkOverlap are in words.
func NewIndexer(store storage.Storage, embedder embedding.Embedder, chunkSize, chunkOverlap int, opts ...IndexerOption) *Indexer {
	idx := &Indexer{
		store:    store,
		embedder: embedder,
		chunker:  NewChunker(chunkSize, chunkOverlap),
		logger:   zap.NewNop(),
	}
	for _, opt := range opts {
		opt(idx)
	}
	return idx
}

// Ingest stores req as a new document of h's project and indexes it. The document becomes
// visible in the store and both indexes together, or not at all.
//
// Capacity and rate are checked before the embedding call. Embedding runs outside the
// project lock; only the writes hold it.
func (idx *Indexer) Ingest(ctx context.Context, h *tenant.Handle, req *models.IngestRequest) (*models.Document, error) {
	start := time.Now()
	defer func() {
		metrics.OperationDuration.WithLabelValues("ingest").Observe(time.Since(start).Seconds())
	}()

	if err := req.Validate(); err != nil {
		return nil, err
	}
	reservation, err := h.Governor.AdmitIngest()
	if err != nil {
		return nil, err
	}
	defer reservation.Release()

	doc := &models.Document{
		ID:        uuid.NewString(),
		ProjectID: h.ID(),
		Title:     req.Title,
		Content:   req.Text,
		Metadata:  req.Metadata,
		CreatedAt: time.Now().UTC(),
	}
	chunks := idx.chunker.Chunk(doc.ID, Preprocess(req.Text))
	if len(chunks) == 0 {
		return nil, fmt.Errorf("%w: text is required", models.ErrValidation)
	}
	texts := make([]string, len(chunks))
	for i, c := range chunks {
		texts[i] = c.Text
	}
	embeddings, err := idx.embedder.EmbedBatch(ctx, texts)
	if err != nil {
		return nil, fmt.Errorf("failed to generate embeddings: %w", err)
	}
	if len(embeddings) != len(chunks) {
		return nil, fmt.Errorf("%w: got %d embeddings for %d chunks", models.ErrUpstream, len(embeddings), len(chunks))
	}
	entries := make([]vector.Entry, len(chunks))
	for i, c := range chunks {
		c.Embedding = embeddings[i]
		entries[i] = vector.Entry{VectorID: c.VectorID, DocumentID: doc.ID, Vector: c.Embedding}
	}

	h.Lock()
	defer h.Unlock()
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if err := idx.write(ctx, h, doc, chunks, entries); err != nil {
		return nil, err
	}

	reservation.Commit()
	metrics.Documents.WithLabelValues(h.ID()).Inc()
	idx.logger.Debug("document ingested",
		zap.String("project", h.ID()),
		zap.String("doc_id", doc.ID),
		zap.Int("chunks", len(chunks)))
	return doc, nil
}

// write performs the pending store write, both index inserts and the commit. On failure the
// steps already taken are undone in reverse order. Caller holds h's write lock.
func (idx *Indexer) write(ctx context.Context, h *tenant.Handle, doc *models.Document, chunks []*models.Chunk, entries []vector.Entry) (err error) {
	var undo []func(context.Context) error
	defer func() {
		if err == nil {
			return
		}
		metrics.IngestRollbacks.Inc()
		// Rollback must finish even when the request context is gone.
		rctx := context.WithoutCancel(ctx)
		for i := len(undo) - 1; i >= 0; i-- {
			if uerr := undo[i](rctx); uerr != nil {
				idx.logger.Error("ingest rollback step failed",
					zap.String("project", doc.ProjectID),
					zap.String("doc_id", doc.ID),
					zap.Error(uerr))
			}
		}
		idx.logger.Warn("ingest rolled back",
			zap.String("project", doc.ProjectID),
			zap.String("doc_id", doc.ID),
			zap.Error(err))
	}()

	if err := idx.store.PutPendingDocument(ctx, doc, chunks); err != nil {
		return fmt.Errorf("failed to store document: %w", err)
	}
	undo = append(undo, func(c context.Context) error {
		return idx.store.DiscardDocument(c, doc.ProjectID, doc.ID)
	})

	if err := h.Vectors.Add(ctx, entries); err != nil {
		return fmt.Errorf("failed to index vectors: %w", err)
	}
	undo = append(undo, func(c context.Context) error {
		_, err := h.Vectors.Delete(c, doc.ChunkIDs)
		return err
	})

	if err := h.Lexical.Index(ctx, doc); err != nil {
		return fmt.Errorf("failed to index keywords: %w", err)
	}
	undo = append(undo, func(c context.Context) error {
		return h.Lexical.Delete(c, doc.ID)
	})

	if err := idx.store.CommitDocument(ctx, doc.ProjectID, doc.ID); err != nil {
		return fmt.Errorf("failed to commit document: %w", err)
	}
	return nil
}

// Delete removes a document of h's project: its vectors are tombstoned, then it leaves the
// lexical index and the store. An unknown id yields models.ErrDocumentNotFound.
func (idx *Indexer) Delete(ctx context.Context, h *tenant.Handle, docID string) error {
	start := time.Now()
	defer func() {
		metrics.OperationDuration.WithLabelValues("delete").Observe(time.Since(start).Seconds())
	}()

	h.Lock()
	defer h.Unlock()

	doc, err := idx.store.GetDocument(ctx, h.ID(), docID)
	if err != nil {
		return err
	}
	tombstoned, err := h.Vectors.Delete(ctx, doc.ChunkIDs)
	if err != nil {
		return fmt.Errorf("failed to delete from vector index: %w", err)
	}
	if err := h.Lexical.Delete(ctx, docID); err != nil {
		return fmt.Errorf("failed to delete from keyword index: %w", err)
	}
	if err := idx.store.DeleteDocument(ctx, h.ID(), docID); err != nil {
		// Indexes no longer return the document; a restart rebuilds them from the store.
		idx.logger.Error("document left in store after index removal",
			zap.String("project", h.ID()),
			zap.String("doc_id", docID),
			zap.Error(err))
		return fmt.Errorf("failed to delete document: %w", err)
	}

	h.Governor.Free(1)
	metrics.Documents.WithLabelValues(h.ID()).Dec()
	idx.logger.Debug("document deleted",
		zap.String("project", h.ID()),
		zap.String("doc_id", docID),
		zap.Int("vectors", tombstoned))
	return nil
}
