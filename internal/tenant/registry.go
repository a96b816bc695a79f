package tenant

import (
	"context"
	"encoding/hex"
	"errors"
	"fmt"
	"path/filepath"
	"sort"
	"strings"
	"sync"

	"go.uber.org/zap"
	"golang.org/x/crypto/bcrypt"

	"github.com/hyperjump/retriever/internal/keyword"
	"github.com/hyperjump/retriever/internal/metrics"
	"github.com/hyperjump/retriever/internal/models"
	"github.com/hyperjump/retriever/internal/quota"
	"github.com/hyperjump/retriever/internal/storage"
	"github.com/hyperjump/retriever/internal/vector"
)

const rebuildBatchSize = 500

// Options configures a Registry.
type Options struct {
	// Dimensions is the embedding size every project's vector index accepts.
	Dimensions int
	// VectorIndexType selects the vector index implementation; empty means flat.
	VectorIndexType string
	// LexicalIndexDir holds on-disk lexical indexes, one directory per project.
	// Empty keeps lexical indexes in memory.
	LexicalIndexDir string
	// Defaults replace zero limits of newly registered projects.
	Defaults quota.Limits
}

// Registry maps project ids to handles. It is the only way request paths reach
// project state.
type Registry struct {
	store  storage.Storage
	opts   Options
	logger *zap.Logger

	mu      sync.RWMutex
	handles map[string]*Handle
}

// RegistryOption configures a Registry.
type RegistryOption func(*Registry)

// WithLogger sets the registry logger.
func WithLogger(l *zap.Logger) RegistryOption {
	return func(r *Registry) { r.logger = l }
}

// NewRegistry returns an empty registry over store. Call Open to load existing projects.
func NewRegistry(store storage.Storage, opts Options, ropts ...RegistryOption) *Registry {
	r := &Registry{
		store:   store,
		opts:    opts,
		logger:  zap.NewNop(),
		handles: make(map[string]*Handle),
	}
	for _, o := range ropts {
		o(r)
	}
	return r
}

// Open discards documents left pending by an interrupted ingest, then loads every stored
// project and rebuilds its indexes from committed rows.
func (r *Registry) Open(ctx context.Context) error {
	purged, err := r.store.PurgePending(ctx)
	if err != nil {
		return fmt.Errorf("recovering pending documents: %w", err)
	}
	if purged > 0 {
		r.logger.Warn("discarded partially ingested documents", zap.Int64("count", purged))
	}

	projects, err := r.store.ListProjects(ctx)
	if err != nil {
		return err
	}
	for _, p := range projects {
		h, err := r.load(ctx, p)
		if err != nil {
			return fmt.Errorf("loading project %s: %w", p.ID, err)
		}
		r.mu.Lock()
		r.handles[p.ID] = h
		r.mu.Unlock()
	}
	return nil
}

func (r *Registry) newLexical(projectID string) (keyword.KeywordIndex, error) {
	if r.opts.LexicalIndexDir == "" {
		return keyword.NewMemoryBleveIndex()
	}
	return keyword.NewBleveIndex(filepath.Join(r.opts.LexicalIndexDir, hex.EncodeToString([]byte(projectID))))
}

func (r *Registry) load(ctx context.Context, p *models.Project) (*Handle, error) {
	vec, err := vector.NewVectorIndex(r.opts.VectorIndexType, r.opts.Dimensions)
	if err != nil {
		return nil, err
	}
	lex, err := r.newLexical(p.ID)
	if err != nil {
		_ = vec.Close()
		return nil, err
	}
	h := &Handle{id: p.ID, Vectors: vec, Lexical: lex}
	h.setProject(p)

	if err := r.rebuild(ctx, h); err != nil {
		_ = vec.Close()
		_ = lex.Close()
		return nil, err
	}

	count, err := r.store.CountDocuments(ctx, p.ID)
	if err != nil {
		_ = vec.Close()
		_ = lex.Close()
		return nil, err
	}
	h.Governor = quota.NewGovernor(limitsOf(p), count)
	metrics.Documents.WithLabelValues(p.ID).Set(float64(count))

	r.logger.Info("project loaded",
		zap.String("project", p.ID),
		zap.Int("documents", count),
		zap.Int("vectors", vec.Stats().Live))
	return h, nil
}

func (r *Registry) rebuild(ctx context.Context, h *Handle) error {
	var entries []vector.Entry
	err := r.store.ForEachChunk(ctx, h.id, func(c *models.Chunk) error {
		owner, err := models.DocumentIDFromVectorID(c.VectorID)
		if err != nil || owner != c.DocumentID {
			return fmt.Errorf("%w: chunk %q does not belong to document %q", models.ErrInternal, c.VectorID, c.DocumentID)
		}
		entries = append(entries, vector.Entry{VectorID: c.VectorID, DocumentID: c.DocumentID, Vector: c.Embedding})
		if len(entries) == rebuildBatchSize {
			if err := h.Vectors.Add(ctx, entries); err != nil {
				return err
			}
			entries = entries[:0]
		}
		return nil
	})
	if err != nil {
		return fmt.Errorf("rebuilding vector index: %w", err)
	}
	if len(entries) > 0 {
		if err := h.Vectors.Add(ctx, entries); err != nil {
			return fmt.Errorf("rebuilding vector index: %w", err)
		}
	}

	var docs []*models.Document
	err = r.store.ForEachDocument(ctx, h.id, func(d *models.Document) error {
		docs = append(docs, d)
		if len(docs) == rebuildBatchSize {
			if err := h.Lexical.IndexBatch(ctx, docs); err != nil {
				return err
			}
			docs = docs[:0]
		}
		return nil
	})
	if err != nil {
		return fmt.Errorf("rebuilding lexical index: %w", err)
	}
	if len(docs) > 0 {
		if err := h.Lexical.IndexBatch(ctx, docs); err != nil {
			return fmt.Errorf("rebuilding lexical index: %w", err)
		}
	}
	return nil
}

// Register stores p and makes it servable. Zero limits take the registry defaults. For an
// existing project the key hash and limits are replaced and indexes are kept.
func (r *Registry) Register(ctx context.Context, p *models.Project) (*Handle, error) {
	if strings.TrimSpace(p.ID) == "" {
		return nil, fmt.Errorf("%w: project id is required", models.ErrValidation)
	}
	if _, err := bcrypt.Cost([]byte(p.KeyHash)); err != nil {
		return nil, fmt.Errorf("%w: key hash is not a bcrypt hash", models.ErrValidation)
	}
	cp := *p
	if cp.RateLimit == 0 {
		cp.RateLimit = r.opts.Defaults.RateLimit
	}
	if cp.Burst == 0 {
		cp.Burst = r.opts.Defaults.Burst
	}
	if cp.CapacityLimit == 0 {
		cp.CapacityLimit = r.opts.Defaults.Capacity
	}
	if err := r.store.PutProject(ctx, &cp); err != nil {
		return nil, err
	}

	r.mu.RLock()
	h, ok := r.handles[cp.ID]
	r.mu.RUnlock()
	if ok {
		h.setProject(&cp)
		h.Governor.SetLimits(limitsOf(&cp))
		return h, nil
	}

	h, err := r.load(ctx, &cp)
	if err != nil {
		return nil, err
	}
	r.mu.Lock()
	if existing, ok := r.handles[cp.ID]; ok {
		r.mu.Unlock()
		_ = h.Vectors.Close()
		_ = h.Lexical.Close()
		existing.setProject(&cp)
		existing.Governor.SetLimits(limitsOf(&cp))
		return existing, nil
	}
	r.handles[cp.ID] = h
	r.mu.Unlock()
	return h, nil
}

// Seed registers every project in ps. Invalid entries are skipped and reported together.
func (r *Registry) Seed(ctx context.Context, ps []*models.Project) (int, error) {
	var errs []error
	n := 0
	for _, p := range ps {
		if _, err := r.Register(ctx, p); err != nil {
			errs = append(errs, fmt.Errorf("project %s: %w", p.ID, err))
			continue
		}
		n++
	}
	return n, errors.Join(errs...)
}

// SetLimits updates a project's limits in the store and on its live handle.
func (r *Registry) SetLimits(ctx context.Context, id string, l quota.Limits) error {
	h, err := r.Get(id)
	if err != nil {
		return err
	}
	if err := r.store.UpdateProjectLimits(ctx, id, l.RateLimit, l.Burst, l.Capacity); err != nil {
		return err
	}
	p := h.Project()
	p.RateLimit, p.Burst, p.CapacityLimit = l.RateLimit, l.Burst, l.Capacity
	h.setProject(&p)
	h.Governor.SetLimits(l)
	return nil
}

// Get returns the handle for id without authenticating. Used by administrative paths.
func (r *Registry) Get(id string) (*Handle, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	h, ok := r.handles[id]
	if !ok {
		return nil, fmt.Errorf("%w: %s", models.ErrProjectNotFound, id)
	}
	return h, nil
}

// Authenticate returns the handle for projectID if key matches its stored hash.
// An unknown project yields models.ErrProjectNotFound; a missing or wrong key yields
// models.ErrAuthFailure.
func (r *Registry) Authenticate(projectID, key string) (*Handle, error) {
	h, err := r.Get(projectID)
	if err != nil {
		return nil, err
	}
	if key == "" || !h.verifyKey(key) {
		return nil, models.ErrAuthFailure
	}
	return h, nil
}

// Handles returns all handles ordered by project id.
func (r *Registry) Handles() []*Handle {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]*Handle, 0, len(r.handles))
	for _, h := range r.handles {
		out = append(out, h)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].id < out[j].id })
	return out
}

// Close closes every project's indexes.
func (r *Registry) Close() error {
	r.mu.Lock()
	defer r.mu.Unlock()
	var firstErr error
	for id, h := range r.handles {
		h.Lock()
		if err := h.Vectors.Close(); err != nil && firstErr == nil {
			firstErr = err
		}
		if err := h.Lexical.Close(); err != nil && firstErr == nil {
			firstErr = err
		}
		h.Unlock()
		delete(r.handles, id)
	}
	return firstErr
}

// HashKey returns the bcrypt hash of key at the given cost.
func HashKey(key string, cost int) (string, error) {
	if key == "" {
		return "", fmt.Errorf("%w: key must not be empty", models.ErrValidation)
	}
	if cost == 0 {
		cost = bcrypt.DefaultCost
	}
	hash, err := bcrypt.GenerateFromPassword([]byte(key), cost)
	if err != nil {
		return "", fmt.Errorf("hashing key: %w", err)
	}
	return string(hash), nil
}
