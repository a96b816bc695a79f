package embedding

import (
	"context"

	"github.com/cespare/xxhash/v2"

	"github.com/hyperjump/retriever/pkg/utils"
)

const stemLength = 5

// HashEmbedder is a deterministic bag-of-words embedder using signed feature hashing.
// Texts sharing words get similar vectors, which makes it usable for local runs and tests
// without an inference backend.
type HashEmbedder struct {
	dimensions int
}

// NewHashEmbedder returns a hashing embedder with the given dimensions.
func NewHashEmbedder(dimensions int) *HashEmbedder {
	if dimensions <= 0 {
		dimensions = 384
	}
	return &HashEmbedder{dimensions: dimensions}
}

// Embed returns the L2-normalized hashed term vector of text. Text without tokens
// yields the zero vector.
func (e *HashEmbedder) Embed(ctx context.Context, text string) ([]float32, error) {
	emb := make([]float32, e.dimensions)
	for _, tok := range Tokenize(text) {
		e.add(emb, tok, 1)
		if r := []rune(tok); len(r) > stemLength {
			e.add(emb, "#"+string(r[:stemLength]), 0.5)
		}
	}
	utils.NormalizeL2(emb)
	return emb, nil
}

func (e *HashEmbedder) add(emb []float32, feature string, weight float32) {
	h := xxhash.Sum64String(feature)
	i := int(h % uint64(e.dimensions))
	if h&(1<<63) != 0 {
		weight = -weight
	}
	emb[i] += weight
}

// EmbedBatch calls Embed for each text.
func (e *HashEmbedder) EmbedBatch(ctx context.Context, texts []string) ([][]float32, error) {
	embeddings := make([][]float32, len(texts))
	for i, text := range texts {
		emb, err := e.Embed(ctx, text)
		if err != nil {
			return nil, err
		}
		embeddings[i] = emb
	}
	return embeddings, nil
}

// Dimensions returns the embedding dimension.
func (e *HashEmbedder) Dimensions() int {
	return e.dimensions
}

// Close is a no-op for HashEmbedder.
func (e *HashEmbedder) Close() error {
	return nil
}
