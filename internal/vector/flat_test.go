package vector

import (
	"context"
	"fmt"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newIndex(t *testing.T, dim int) *FlatIndex {
	t.Helper()
	idx, err := NewFlatIndex(dim)
	require.NoError(t, err)
	return idx
}

func ids(results []*VectorResult) []string {
	out := make([]string, len(results))
	for i, r := range results {
		out[i] = r.VectorID
	}
	return out
}

func TestFlatIndex_SearchOrder(t *testing.T) {
	idx := newIndex(t, 2)
	ctx := context.Background()
	require.NoError(t, idx.Add(ctx, []Entry{
		{VectorID: "far", DocumentID: "d1", Vector: []float32{0, 1}},
		{VectorID: "near", DocumentID: "d2", Vector: []float32{1, 0.1}},
		{VectorID: "exact", DocumentID: "d3", Vector: []float32{2, 0}},
	}))

	results, err := idx.Search(ctx, []float32{1, 0}, 10)
	require.NoError(t, err)
	assert.Equal(t, []string{"exact", "near", "far"}, ids(results))
	assert.Equal(t, "d3", results[0].DocumentID)
	assert.InDelta(t, 1.0, results[0].Score, 1e-9)

	results, err = idx.Search(ctx, []float32{1, 0}, 1)
	require.NoError(t, err)
	assert.Len(t, results, 1)
}

func TestFlatIndex_TiesByInsertionOrder(t *testing.T) {
	idx := newIndex(t, 2)
	ctx := context.Background()
	for _, id := range []string{"b", "a", "c"} {
		require.NoError(t, idx.Add(ctx, []Entry{{VectorID: id, DocumentID: id, Vector: []float32{1, 1}}}))
	}
	results, err := idx.Search(ctx, []float32{1, 1}, 3)
	require.NoError(t, err)
	assert.Equal(t, []string{"b", "a", "c"}, ids(results))
}

func TestFlatIndex_DeleteHidesImmediately(t *testing.T) {
	idx := newIndex(t, 2)
	ctx := context.Background()
	require.NoError(t, idx.Add(ctx, []Entry{
		{VectorID: "a", DocumentID: "d", Vector: []float32{1, 0}},
		{VectorID: "b", DocumentID: "d", Vector: []float32{0, 1}},
	}))

	n, err := idx.Delete(ctx, []string{"a", "missing"})
	require.NoError(t, err)
	assert.Equal(t, 1, n)
	assert.Equal(t, Stats{Live: 1, Tombstoned: 1}, idx.Stats())

	results, err := idx.Search(ctx, []float32{1, 0}, 10)
	require.NoError(t, err)
	assert.Equal(t, []string{"b"}, ids(results))

	n, err = idx.Delete(ctx, []string{"a"})
	require.NoError(t, err)
	assert.Zero(t, n, "second delete of a tombstone is a no-op")
}

func TestFlatIndex_ReinsertAfterDeleteIsFresh(t *testing.T) {
	idx := newIndex(t, 2)
	ctx := context.Background()
	require.NoError(t, idx.Add(ctx, []Entry{
		{VectorID: "x", DocumentID: "old", Vector: []float32{1, 0}},
		{VectorID: "y", DocumentID: "y", Vector: []float32{1, 0}},
	}))
	_, err := idx.Delete(ctx, []string{"x"})
	require.NoError(t, err)
	require.NoError(t, idx.Add(ctx, []Entry{{VectorID: "x", DocumentID: "new", Vector: []float32{1, 0}}}))

	results, err := idx.Search(ctx, []float32{1, 0}, 10)
	require.NoError(t, err)
	assert.Equal(t, []string{"y", "x"}, ids(results), "reinserted id takes a new insertion position")
	assert.Equal(t, "new", results[1].DocumentID)
}

func TestFlatIndex_AddIsAtomic(t *testing.T) {
	idx := newIndex(t, 2)
	ctx := context.Background()
	require.NoError(t, idx.Add(ctx, []Entry{{VectorID: "a", Vector: []float32{1, 0}}}))

	err := idx.Add(ctx, []Entry{
		{VectorID: "b", Vector: []float32{1, 0}},
		{VectorID: "a", Vector: []float32{0, 1}},
	})
	assert.ErrorIs(t, err, ErrDuplicateID)

	err = idx.Add(ctx, []Entry{
		{VectorID: "c", Vector: []float32{1, 0}},
		{VectorID: "d", Vector: []float32{1, 0, 0}},
	})
	assert.Error(t, err)

	err = idx.Add(ctx, []Entry{
		{VectorID: "e", Vector: []float32{1, 0}},
		{VectorID: "e", Vector: []float32{1, 0}},
	})
	assert.ErrorIs(t, err, ErrDuplicateID)

	assert.Equal(t, Stats{Live: 1}, idx.Stats())
}

func TestFlatIndex_DimensionChecks(t *testing.T) {
	_, err := NewFlatIndex(0)
	assert.Error(t, err)

	idx := newIndex(t, 3)
	_, err = idx.Search(context.Background(), []float32{1, 0}, 1)
	assert.Error(t, err)
	assert.Equal(t, 3, idx.Dimensions())
}

func TestFlatIndex_Compact(t *testing.T) {
	idx := newIndex(t, 2)
	ctx := context.Background()
	for i := 0; i < 10; i++ {
		require.NoError(t, idx.Add(ctx, []Entry{{VectorID: fmt.Sprint(i), DocumentID: "d", Vector: []float32{1, float32(i)}}}))
	}
	_, err := idx.Delete(ctx, []string{"1", "3", "5"})
	require.NoError(t, err)

	before, err := idx.Search(ctx, []float32{1, 0}, 10)
	require.NoError(t, err)

	purged, err := idx.Compact(ctx)
	require.NoError(t, err)
	assert.Equal(t, 3, purged)
	assert.Equal(t, Stats{Live: 7}, idx.Stats())

	purged, err = idx.Compact(ctx)
	require.NoError(t, err)
	assert.Zero(t, purged, "compaction is idempotent")

	after, err := idx.Search(ctx, []float32{1, 0}, 10)
	require.NoError(t, err)
	assert.Equal(t, ids(before), ids(after))
}

func TestFlatIndex_CompactAfterInterleavedWrites(t *testing.T) {
	idx := newIndex(t, 2)
	ctx := context.Background()
	for i := 0; i < 4; i++ {
		require.NoError(t, idx.Add(ctx, []Entry{{VectorID: fmt.Sprint(i), DocumentID: "d", Vector: []float32{1, float32(i)}}}))
	}
	_, err := idx.Delete(ctx, []string{"0"})
	require.NoError(t, err)

	version, survivors, ok := idx.compactSnapshot()
	require.True(t, ok)
	assert.Len(t, survivors, 3)

	_, err = idx.Delete(ctx, []string{"2"})
	require.NoError(t, err)
	require.NoError(t, idx.Add(ctx, []Entry{{VectorID: "4", DocumentID: "d", Vector: []float32{1, 4}}}))

	assert.Equal(t, 2, idx.compactSwap(version, survivors))
	assert.Equal(t, Stats{Live: 3}, idx.Stats())

	results, err := idx.Search(ctx, []float32{1, 0}, 10)
	require.NoError(t, err)
	assert.ElementsMatch(t, []string{"1", "3", "4"}, ids(results))
}

func TestFlatIndex_CompactConcurrentWithSearch(t *testing.T) {
	idx := newIndex(t, 4)
	ctx := context.Background()
	for i := 0; i < 200; i++ {
		v := []float32{float32(i % 7), 1, float32(i % 3), 0.5}
		require.NoError(t, idx.Add(ctx, []Entry{{VectorID: fmt.Sprint(i), DocumentID: "d", Vector: v}}))
	}
	deleted := make([]string, 0, 100)
	for i := 0; i < 200; i += 2 {
		deleted = append(deleted, fmt.Sprint(i))
	}
	_, err := idx.Delete(ctx, deleted)
	require.NoError(t, err)
	gone := make(map[string]bool, len(deleted))
	for _, id := range deleted {
		gone[id] = true
	}

	var wg sync.WaitGroup
	for w := 0; w < 4; w++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for j := 0; j < 50; j++ {
				results, err := idx.Search(ctx, []float32{1, 1, 1, 1}, 200)
				if !assert.NoError(t, err) {
					return
				}
				assert.Len(t, results, 100)
				for _, r := range results {
					assert.False(t, gone[r.VectorID])
				}
			}
		}()
	}
	wg.Add(1)
	go func() {
		defer wg.Done()
		for j := 0; j < 10; j++ {
			_, err := idx.Compact(ctx)
			assert.NoError(t, err)
		}
	}()
	wg.Wait()

	assert.Equal(t, Stats{Live: 100}, idx.Stats())
}

func TestStats_TombstoneRatio(t *testing.T) {
	assert.Zero(t, Stats{}.TombstoneRatio())
	assert.InDelta(t, 0.25, Stats{Live: 3, Tombstoned: 1}.TombstoneRatio(), 1e-9)
}

func TestNewVectorIndex(t *testing.T) {
	idx, err := NewVectorIndex("", 3)
	require.NoError(t, err)
	defer idx.Close()
	require.NoError(t, idx.Add(context.Background(), []Entry{{VectorID: "a", Vector: []float32{1, 0, 0}}}))
	assert.Equal(t, 1, idx.Stats().Live)

	_, err = NewVectorIndex("faiss", 3)
	assert.Error(t, err)
}
