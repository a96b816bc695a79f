package keyword

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/hyperjump/retriever/internal/models"
)

func newMemIndex(t *testing.T) *BleveIndex {
	t.Helper()
	idx, err := NewMemoryBleveIndex()
	require.NoError(t, err)
	t.Cleanup(func() { _ = idx.Close() })
	return idx
}

func resultIDs(results []*KeywordResult) []string {
	out := make([]string, len(results))
	for i, r := range results {
		out[i] = r.ID
	}
	return out
}

func TestBleveIndex_SearchFindsContent(t *testing.T) {
	idx := newMemIndex(t)
	ctx := context.Background()

	require.NoError(t, idx.Index(ctx, &models.Document{
		ID:      "guide",
		Title:   "Guide",
		Content: "Install Python via python.org",
	}))
	require.NoError(t, idx.Index(ctx, &models.Document{
		ID:      "other",
		Title:   "Cooking",
		Content: "Boil the pasta for ten minutes.",
	}))

	results, err := idx.Search(ctx, "python install", 10)
	require.NoError(t, err)
	require.NotEmpty(t, results)
	assert.Equal(t, "guide", results[0].ID)
	assert.Greater(t, results[0].Score, 0.0)
	assert.NotContains(t, resultIDs(results), "other")
}

func TestBleveIndex_SearchFindsTitle(t *testing.T) {
	idx := newMemIndex(t)
	ctx := context.Background()
	require.NoError(t, idx.Index(ctx, &models.Document{ID: "r", Title: "Monthly Report", Content: "Some body text."}))

	results, err := idx.Search(ctx, "REPORT", 10)
	require.NoError(t, err)
	assert.Equal(t, []string{"r"}, resultIDs(results))
}

func TestBleveIndex_TiesOrderedByID(t *testing.T) {
	idx := newMemIndex(t)
	ctx := context.Background()
	for _, id := range []string{"c", "a", "b"} {
		require.NoError(t, idx.Index(ctx, &models.Document{ID: id, Content: "identical words here"}))
	}
	results, err := idx.Search(ctx, "identical", 10)
	require.NoError(t, err)
	assert.Equal(t, []string{"a", "b", "c"}, resultIDs(results))

	results, err = idx.Search(ctx, "identical", 2)
	require.NoError(t, err)
	assert.Equal(t, []string{"a", "b"}, resultIDs(results))
}

func TestBleveIndex_Delete(t *testing.T) {
	idx := newMemIndex(t)
	ctx := context.Background()
	require.NoError(t, idx.Index(ctx, &models.Document{ID: "d1", Content: "unique zebra"}))

	require.NoError(t, idx.Delete(ctx, "d1"))
	require.NoError(t, idx.Delete(ctx, "d1"))

	results, err := idx.Search(ctx, "zebra", 10)
	require.NoError(t, err)
	assert.Empty(t, results)

	n, err := idx.DocCount()
	require.NoError(t, err)
	assert.Zero(t, n)
}

func TestBleveIndex_IndexBatch(t *testing.T) {
	idx := newMemIndex(t)
	ctx := context.Background()
	require.NoError(t, idx.IndexBatch(ctx, []*models.Document{
		{ID: "1", Content: "alpha beta"},
		{ID: "2", Content: "gamma delta"},
	}))
	n, err := idx.DocCount()
	require.NoError(t, err)
	assert.Equal(t, uint64(2), n)

	results, err := idx.Search(ctx, "gamma", 5)
	require.NoError(t, err)
	assert.Equal(t, []string{"2"}, resultIDs(results))
}

func TestBleveIndex_StopWordsOnly(t *testing.T) {
	idx := newMemIndex(t)
	ctx := context.Background()
	require.NoError(t, idx.Index(ctx, &models.Document{ID: "1", Content: "the cat"}))
	results, err := idx.Search(ctx, "the", 5)
	require.NoError(t, err)
	assert.Empty(t, results)
}

func TestNewBleveIndex_OnDiskStartsEmpty(t *testing.T) {
	path := filepath.Join(t.TempDir(), "lexical", "p1")
	ctx := context.Background()

	idx, err := NewBleveIndex(path)
	require.NoError(t, err)
	require.NoError(t, idx.Index(ctx, &models.Document{ID: "old", Content: "stale entry"}))
	require.NoError(t, idx.Close())

	_, err = os.Stat(path)
	require.NoError(t, err)

	idx, err = NewBleveIndex(path)
	require.NoError(t, err)
	defer idx.Close()
	n, err := idx.DocCount()
	require.NoError(t, err)
	assert.Zero(t, n)
}
