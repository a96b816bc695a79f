// Package search runs hybrid queries: vector and lexical retrieval over a project's indexes,
// reciprocal-rank fusion and hydration from the document store.
package search

import (
	"sort"

	"github.com/hyperjump/retriever/internal/keyword"
	"github.com/hyperjump/retriever/internal/vector"
)

// DefaultRRFK is the rank offset k in 1/(k+rank).
const DefaultRRFK = 60

// FusedResult is one document after fusion. A zero rank means the document was absent from
// that list.
type FusedResult struct {
	DocumentID  string
	Score       float64
	KeywordRank int
	VectorRank  int
}

// bestRank returns the smaller non-zero rank.
func (r *FusedResult) bestRank() int {
	switch {
	case r.KeywordRank == 0:
		return r.VectorRank
	case r.VectorRank == 0:
		return r.KeywordRank
	default:
		return min(r.KeywordRank, r.VectorRank)
	}
}

// RankVectorHits maps chunk hits to their documents in rank order. A document takes the
// position of its best chunk; later chunks of the same document are dropped.
func RankVectorHits(results []*vector.VectorResult) []string {
	seen := make(map[string]struct{}, len(results))
	ranked := make([]string, 0, len(results))
	for _, r := range results {
		if _, ok := seen[r.DocumentID]; ok {
			continue
		}
		seen[r.DocumentID] = struct{}{}
		ranked = append(ranked, r.DocumentID)
	}
	return ranked
}

// RankKeywordHits returns the document ids of keyword hits in rank order.
func RankKeywordHits(results []*keyword.KeywordResult) []string {
	ranked := make([]string, 0, len(results))
	for _, r := range results {
		ranked = append(ranked, r.ID)
	}
	return ranked
}

// Fuse merges two ranked document lists with reciprocal-rank fusion. Each list contributes
// 1/(k+rank) with 1-based ranks. Results are ordered by score, then by the better of the two
// ranks, then by document id. k <= 0 uses DefaultRRFK.
func Fuse(keywordRanked, vectorRanked []string, k int) []*FusedResult {
	if k <= 0 {
		k = DefaultRRFK
	}
	scoreMap := make(map[string]*FusedResult, len(keywordRanked)+len(vectorRanked))
	get := func(id string) *FusedResult {
		r, ok := scoreMap[id]
		if !ok {
			r = &FusedResult{DocumentID: id}
			scoreMap[id] = r
		}
		return r
	}
	for i, id := range keywordRanked {
		if r := get(id); r.KeywordRank == 0 {
			r.KeywordRank = i + 1
		}
	}
	for i, id := range vectorRanked {
		if r := get(id); r.VectorRank == 0 {
			r.VectorRank = i + 1
		}
	}

	results := make([]*FusedResult, 0, len(scoreMap))
	for _, r := range scoreMap {
		// Fixed summation order keeps equal inputs bit-identical.
		if r.KeywordRank > 0 {
			r.Score += 1 / float64(k+r.KeywordRank)
		}
		if r.VectorRank > 0 {
			r.Score += 1 / float64(k+r.VectorRank)
		}
		results = append(results, r)
	}
	sort.Slice(results, func(i, j int) bool {
		a, b := results[i], results[j]
		if a.Score != b.Score {
			return a.Score > b.Score
		}
		if ar, br := a.bestRank(), b.bestRank(); ar != br {
			return ar < br
		}
		return a.DocumentID < b.DocumentID
	})
	return results
}
