package embedding

import (
	"context"
	"fmt"

	lru "github.com/hashicorp/golang-lru/v2"

	"github.com/hyperjump/retriever/internal/metrics"
)

// CachedEmbedder memoizes embeddings of an underlying Embedder in an LRU keyed by text.
type CachedEmbedder struct {
	next  Embedder
	cache *lru.Cache[string, []float32]
}

// NewCachedEmbedder wraps next with an LRU of the given capacity.
func NewCachedEmbedder(next Embedder, capacity int) (*CachedEmbedder, error) {
	cache, err := lru.New[string, []float32](capacity)
	if err != nil {
		return nil, fmt.Errorf("creating embedding cache: %w", err)
	}
	return &CachedEmbedder{next: next, cache: cache}, nil
}

// Embed returns the cached embedding for text or computes and stores it.
func (c *CachedEmbedder) Embed(ctx context.Context, text string) ([]float32, error) {
	if v, ok := c.cache.Get(text); ok {
		metrics.EmbeddingCacheHits.WithLabelValues("hit").Inc()
		return v, nil
	}
	metrics.EmbeddingCacheHits.WithLabelValues("miss").Inc()
	v, err := c.next.Embed(ctx, text)
	if err != nil {
		return nil, err
	}
	c.cache.Add(text, v)
	return v, nil
}

// EmbedBatch serves cached texts from the LRU and sends only the misses downstream.
func (c *CachedEmbedder) EmbedBatch(ctx context.Context, texts []string) ([][]float32, error) {
	out := make([][]float32, len(texts))
	var missIdx []int
	var missTexts []string
	for i, t := range texts {
		if v, ok := c.cache.Get(t); ok {
			out[i] = v
			continue
		}
		missIdx = append(missIdx, i)
		missTexts = append(missTexts, t)
	}
	metrics.EmbeddingCacheHits.WithLabelValues("hit").Add(float64(len(texts) - len(missTexts)))
	metrics.EmbeddingCacheHits.WithLabelValues("miss").Add(float64(len(missTexts)))
	if len(missTexts) == 0 {
		return out, nil
	}

	vectors, err := c.next.EmbedBatch(ctx, missTexts)
	if err != nil {
		return nil, err
	}
	for j, i := range missIdx {
		out[i] = vectors[j]
		c.cache.Add(missTexts[j], vectors[j])
	}
	return out, nil
}

// Len returns the number of cached embeddings.
func (c *CachedEmbedder) Len() int {
	return c.cache.Len()
}

// Dimensions returns the dimension of the underlying embedder.
func (c *CachedEmbedder) Dimensions() int {
	return c.next.Dimensions()
}

// Close purges the cache and closes the underlying embedder.
func (c *CachedEmbedder) Close() error {
	c.cache.Purge()
	return c.next.Close()
}
