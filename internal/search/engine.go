package search

import (
	"context"
	"fmt"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/hyperjump/retriever/internal/embedding"
	"github.com/hyperjump/retriever/internal/keyword"
	"github.com/hyperjump/retriever/internal/metrics"
	"github.com/hyperjump/retriever/internal/models"
	"github.com/hyperjump/retriever/internal/storage"
	"github.com/hyperjump/retriever/internal/tenant"
	"github.com/hyperjump/retriever/internal/vector"
)

// Options configures an Engine.
type Options struct {
	Limits models.QueryLimits
	// LexicalK is the minimum number of lexical candidates; top_k raises it.
	LexicalK int
	// RRFK is the rank offset used by Fuse.
	RRFK int
}

// Engine runs hybrid (lexical + vector) queries against one project at a time.
type Engine struct {
	store    storage.Storage
	embedder embedding.Embedder
	opts     Options
	logger   *zap.Logger
}

// EngineOption configures an Engine.
type EngineOption func(*Engine)

// WithLogger sets the engine logger.
func WithLogger(l *zap.Logger) EngineOption {
	return func(e *Engine) { e.logger = l }
}

// NewEngine creates a search engine with the given dependencies.
func NewEngine(store storage.Storage, embedder embedding.Embedder, opts Options, eopts ...EngineOption) *Engine {
	if opts.RRFK <= 0 {
		opts.RRFK = DefaultRRFK
	}
	e := &Engine{
		store:    store,
		embedder: embedder,
		opts:     opts,
		logger:   zap.NewNop(),
	}
	for _, o := range eopts {
		o(e)
	}
	return e
}

// Query returns up to req.TopK documents of h's project ordered by fused rank.
// The query is embedded before the project's read lock is taken; index search and
// hydration run under it so a concurrent delete is either fully visible or not at all.
func (e *Engine) Query(ctx context.Context, h *tenant.Handle, req *models.QueryRequest) ([]*models.Document, error) {
	start := time.Now()
	defer func() {
		metrics.OperationDuration.WithLabelValues("query").Observe(time.Since(start).Seconds())
	}()

	if err := ProcessQuery(req, e.opts.Limits); err != nil {
		return nil, err
	}
	if err := h.Governor.AllowQuery(); err != nil {
		return nil, err
	}

	queryEmbedding, err := e.embedder.Embed(ctx, req.Query)
	if err != nil {
		return nil, fmt.Errorf("embedding failed: %w", err)
	}
	// A query without content words embeds to zero and has no meaningful neighbours.
	searchVectors := vector.L2Norm(queryEmbedding) > 0

	h.RLock()
	defer h.RUnlock()

	var (
		keywordResults []*keyword.KeywordResult
		vectorResults  []*vector.VectorResult
		errChan        = make(chan error, 2)
		wg             sync.WaitGroup
	)

	wg.Add(1)
	go func() {
		defer wg.Done()
		results, err := h.Lexical.Search(ctx, req.Query, max(e.opts.LexicalK, req.TopK))
		if err != nil {
			errChan <- fmt.Errorf("keyword search failed: %w", err)
			return
		}
		keywordResults = results
	}()

	if searchVectors {
		wg.Add(1)
		go func() {
			defer wg.Done()
			results, err := h.Vectors.Search(ctx, queryEmbedding, req.VectorK)
			if err != nil {
				errChan <- fmt.Errorf("vector search failed: %w", err)
				return
			}
			vectorResults = results
		}()
	}

	wg.Wait()
	close(errChan)
	for err := range errChan {
		if err != nil {
			return nil, err
		}
	}

	fused := Fuse(RankKeywordHits(keywordResults), RankVectorHits(vectorResults), e.opts.RRFK)
	if len(fused) > req.TopK {
		fused = fused[:req.TopK]
	}
	ids := make([]string, len(fused))
	for i, r := range fused {
		ids[i] = r.DocumentID
	}
	docs, err := e.store.GetDocuments(ctx, h.ID(), ids)
	if err != nil {
		return nil, fmt.Errorf("failed to load documents: %w", err)
	}

	results := make([]*models.Document, 0, len(ids))
	for _, id := range ids {
		doc, ok := docs[id]
		if !ok {
			// Indexes and store are written under the same lock; a gap means drift.
			e.logger.Warn("indexed document missing from store",
				zap.String("project", h.ID()),
				zap.String("doc_id", id))
			continue
		}
		results = append(results, doc)
	}
	e.logger.Debug("query served",
		zap.String("project", h.ID()),
		zap.Int("lexical_hits", len(keywordResults)),
		zap.Int("vector_hits", len(vectorResults)),
		zap.Int("results", len(results)))
	return results, nil
}
