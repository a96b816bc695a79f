package indexer

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/crypto/bcrypt"

	"github.com/hyperjump/retriever/internal/embedding"
	"github.com/hyperjump/retriever/internal/models"
	"github.com/hyperjump/retriever/internal/quota"
	"github.com/hyperjump/retriever/internal/storage"
	"github.com/hyperjump/retriever/internal/tenant"
	"github.com/hyperjump/retriever/internal/vector"
)

const dims = 64

type fixture struct {
	store    storage.Storage
	registry *tenant.Registry
	indexer  *Indexer
}

func newFixture(t *testing.T, store storage.Storage) *fixture {
	t.Helper()
	if store == nil {
		s, err := storage.NewSQLiteStorage(":memory:")
		require.NoError(t, err)
		t.Cleanup(func() { _ = s.Close() })
		store = s
	}
	reg := tenant.NewRegistry(store, tenant.Options{Dimensions: dims})
	t.Cleanup(func() { _ = reg.Close() })
	return &fixture{
		store:    store,
		registry: reg,
		indexer:  NewIndexer(store, embedding.NewHashEmbedder(dims), 10, 2),
	}
}

func (f *fixture) project(t *testing.T, id string, limits quota.Limits) *tenant.Handle {
	t.Helper()
	hash, err := tenant.HashKey(id+"-key", bcrypt.MinCost)
	require.NoError(t, err)
	h, err := f.registry.Register(context.Background(), &models.Project{
		ID:            id,
		KeyHash:       hash,
		RateLimit:     limits.RateLimit,
		Burst:         limits.Burst,
		CapacityLimit: limits.Capacity,
	})
	require.NoError(t, err)
	return h
}

func TestIngest_VisibleEverywhere(t *testing.T) {
	f := newFixture(t, nil)
	h := f.project(t, "p", quota.Limits{})
	ctx := context.Background()

	doc, err := f.indexer.Ingest(ctx, h, &models.IngestRequest{
		Title:    "Guide",
		Text:     "Install Python via python.org",
		Metadata: models.Metadata{"category": "docs"},
	})
	require.NoError(t, err)
	assert.NotEmpty(t, doc.ID)
	assert.Equal(t, "Install Python via python.org", doc.Content)
	assert.False(t, doc.CreatedAt.IsZero())
	assert.Equal(t, []string{models.VectorID(doc.ID, 0)}, doc.ChunkIDs)

	stored, err := f.store.GetDocument(ctx, "p", doc.ID)
	require.NoError(t, err)
	assert.Equal(t, "Guide", stored.Title)
	assert.Equal(t, "docs", stored.Metadata["category"])

	assert.Equal(t, vector.Stats{Live: 1}, h.Vectors.Stats())
	hits, err := h.Lexical.Search(ctx, "python", 10)
	require.NoError(t, err)
	require.Len(t, hits, 1)
	assert.Equal(t, doc.ID, hits[0].ID)

	used, _ := h.Governor.Usage()
	assert.Equal(t, 1, used)
}

func TestIngest_LongTextIsChunked(t *testing.T) {
	f := newFixture(t, nil)
	h := f.project(t, "p", quota.Limits{})

	doc, err := f.indexer.Ingest(context.Background(), h, &models.IngestRequest{
		Text: "w1 w2 w3 w4 w5 w6 w7 w8 w9 w10 w11 w12 w13 w14 w15 w16 w17 w18 w19 w20",
	})
	require.NoError(t, err)
	assert.Len(t, doc.ChunkIDs, 3)
	assert.Equal(t, 3, h.Vectors.Stats().Live)
}

func TestIngest_Validation(t *testing.T) {
	f := newFixture(t, nil)
	h := f.project(t, "p", quota.Limits{})

	_, err := f.indexer.Ingest(context.Background(), h, &models.IngestRequest{Title: "empty", Text: "  "})
	assert.ErrorIs(t, err, models.ErrValidation)
	_, err = f.indexer.Ingest(context.Background(), h, &models.IngestRequest{
		Text:     "x",
		Metadata: models.Metadata{"nested": map[string]any{"a": 1}},
	})
	assert.ErrorIs(t, err, models.ErrValidation)

	used, _ := h.Governor.Usage()
	assert.Zero(t, used)
}

func TestIngest_CapacityExceeded(t *testing.T) {
	f := newFixture(t, nil)
	h := f.project(t, "p", quota.Limits{Capacity: 1})
	ctx := context.Background()

	_, err := f.indexer.Ingest(ctx, h, &models.IngestRequest{Text: "first document"})
	require.NoError(t, err)
	_, err = f.indexer.Ingest(ctx, h, &models.IngestRequest{Text: "second document"})
	assert.ErrorIs(t, err, models.ErrQuotaExceeded)

	count, err := f.store.CountDocuments(ctx, "p")
	require.NoError(t, err)
	assert.Equal(t, 1, count)
	assert.Equal(t, 1, h.Vectors.Stats().Live)
}

func TestIngest_RateLimited(t *testing.T) {
	f := newFixture(t, nil)
	h := f.project(t, "p", quota.Limits{RateLimit: 0.001, Burst: 1})
	ctx := context.Background()

	_, err := f.indexer.Ingest(ctx, h, &models.IngestRequest{Text: "first document"})
	require.NoError(t, err)
	_, err = f.indexer.Ingest(ctx, h, &models.IngestRequest{Text: "second document"})
	assert.ErrorIs(t, err, models.ErrRateLimited)

	count, err := f.store.CountDocuments(ctx, "p")
	require.NoError(t, err)
	assert.Equal(t, 1, count)
}

// failingCommitStore fails every CommitDocument call.
type failingCommitStore struct {
	storage.Storage
}

func (s *failingCommitStore) CommitDocument(ctx context.Context, projectID, id string) error {
	return errors.New("disk full")
}

func TestIngest_RollbackOnCommitFailure(t *testing.T) {
	inner, err := storage.NewSQLiteStorage(":memory:")
	require.NoError(t, err)
	t.Cleanup(func() { _ = inner.Close() })
	f := newFixture(t, &failingCommitStore{Storage: inner})
	h := f.project(t, "p", quota.Limits{})
	ctx := context.Background()

	_, err = f.indexer.Ingest(ctx, h, &models.IngestRequest{Text: "zebra stripes"})
	require.Error(t, err)

	assert.Zero(t, h.Vectors.Stats().Live)
	hits, err := h.Lexical.Search(ctx, "zebra", 10)
	require.NoError(t, err)
	assert.Empty(t, hits)
	purged, err := inner.PurgePending(ctx)
	require.NoError(t, err)
	assert.Zero(t, purged, "pending row discarded")
	used, _ := h.Governor.Usage()
	assert.Zero(t, used, "reservation released")
}

// failingEmbedder always fails.
type failingEmbedder struct {
	*embedding.HashEmbedder
}

func (failingEmbedder) EmbedBatch(ctx context.Context, texts []string) ([][]float32, error) {
	return nil, models.ErrUpstream
}

func TestIngest_EmbeddingFailureWritesNothing(t *testing.T) {
	f := newFixture(t, nil)
	f.indexer = NewIndexer(f.store, failingEmbedder{embedding.NewHashEmbedder(dims)}, 10, 2)
	h := f.project(t, "p", quota.Limits{Capacity: 1})
	ctx := context.Background()

	_, err := f.indexer.Ingest(ctx, h, &models.IngestRequest{Text: "anything"})
	assert.ErrorIs(t, err, models.ErrUpstream)

	count, err := f.store.CountDocuments(ctx, "p")
	require.NoError(t, err)
	assert.Zero(t, count)
	used, _ := h.Governor.Usage()
	assert.Zero(t, used)
}

func TestIngest_CanceledContext(t *testing.T) {
	f := newFixture(t, nil)
	h := f.project(t, "p", quota.Limits{})
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := f.indexer.Ingest(ctx, h, &models.IngestRequest{Text: "never stored"})
	assert.ErrorIs(t, err, context.Canceled)

	count, err := f.store.CountDocuments(context.Background(), "p")
	require.NoError(t, err)
	assert.Zero(t, count)
}

func TestDelete(t *testing.T) {
	f := newFixture(t, nil)
	h := f.project(t, "p", quota.Limits{Capacity: 1})
	ctx := context.Background()

	doc, err := f.indexer.Ingest(ctx, h, &models.IngestRequest{Text: "delete me please"})
	require.NoError(t, err)

	require.NoError(t, f.indexer.Delete(ctx, h, doc.ID))
	err = f.indexer.Delete(ctx, h, doc.ID)
	assert.ErrorIs(t, err, models.ErrNotFound)

	assert.Equal(t, vector.Stats{Tombstoned: 1}, h.Vectors.Stats())
	hits, err := h.Lexical.Search(ctx, "delete", 10)
	require.NoError(t, err)
	assert.Empty(t, hits)
	_, err = f.store.GetDocument(ctx, "p", doc.ID)
	assert.ErrorIs(t, err, models.ErrDocumentNotFound)

	_, err = f.indexer.Ingest(ctx, h, &models.IngestRequest{Text: "capacity was freed"})
	assert.NoError(t, err)
}

func TestDelete_ProjectIsolation(t *testing.T) {
	f := newFixture(t, nil)
	a := f.project(t, "a", quota.Limits{})
	b := f.project(t, "b", quota.Limits{})
	ctx := context.Background()

	doc, err := f.indexer.Ingest(ctx, a, &models.IngestRequest{Text: "owned by a"})
	require.NoError(t, err)

	assert.ErrorIs(t, f.indexer.Delete(ctx, b, doc.ID), models.ErrNotFound)
	_, err = f.store.GetDocument(ctx, "a", doc.ID)
	assert.NoError(t, err)
	assert.Equal(t, 1, a.Vectors.Stats().Live)
}
