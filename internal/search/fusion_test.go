package search

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/hyperjump/retriever/internal/keyword"
	"github.com/hyperjump/retriever/internal/vector"
)

func ids(results []*FusedResult) []string {
	out := make([]string, len(results))
	for i, r := range results {
		out[i] = r.DocumentID
	}
	return out
}

func TestRankVectorHits(t *testing.T) {
	results := []*vector.VectorResult{
		{VectorID: "a:0", DocumentID: "a", Score: 0.9},
		{VectorID: "b:0", DocumentID: "b", Score: 0.8},
		{VectorID: "a:1", DocumentID: "a", Score: 0.7},
		{VectorID: "c:3", DocumentID: "c", Score: 0.1},
	}
	assert.Equal(t, []string{"a", "b", "c"}, RankVectorHits(results))
	assert.Empty(t, RankVectorHits(nil))
}

func TestRankKeywordHits(t *testing.T) {
	results := []*keyword.KeywordResult{{ID: "x", Score: 3}, {ID: "y", Score: 1}}
	assert.Equal(t, []string{"x", "y"}, RankKeywordHits(results))
}

func TestFuse(t *testing.T) {
	results := Fuse([]string{"a", "b"}, []string{"b", "c"}, 60)
	require.Len(t, results, 3)
	assert.Equal(t, []string{"b", "a", "c"}, ids(results))

	b := results[0]
	assert.InDelta(t, 1.0/62+1.0/61, b.Score, 1e-12)
	assert.Equal(t, 2, b.KeywordRank)
	assert.Equal(t, 1, b.VectorRank)

	c := results[2]
	assert.Zero(t, c.KeywordRank)
	assert.InDelta(t, 1.0/62, c.Score, 1e-12)
}

func TestFuse_TieBreaks(t *testing.T) {
	// Mirrored ranks give equal scores and equal best ranks; id decides.
	assert.Equal(t, []string{"a", "b"}, ids(Fuse([]string{"b", "a"}, []string{"a", "b"}, 60)))
	assert.Equal(t, []string{"x", "y"}, ids(Fuse([]string{"y"}, []string{"x"}, 60)))
}

func TestFuse_DefaultK(t *testing.T) {
	results := Fuse([]string{"a"}, nil, 0)
	require.Len(t, results, 1)
	assert.InDelta(t, 1.0/61, results[0].Score, 1e-12)
}

func TestFuse_Deterministic(t *testing.T) {
	kw := []string{"d3", "d1", "d7", "d2"}
	vec := []string{"d2", "d5", "d3", "d9", "d1"}
	first := ids(Fuse(kw, vec, 60))
	for i := 0; i < 20; i++ {
		assert.Equal(t, first, ids(Fuse(kw, vec, 60)))
	}
}

func TestFuse_Empty(t *testing.T) {
	assert.Empty(t, Fuse(nil, nil, 60))
}
