package indexer

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestChunker_Chunk(t *testing.T) {
	c := NewChunker(3, 1)
	chunks := c.Chunk("doc1", "one two three four five six seven")
	require.Len(t, chunks, 3)

	want := []string{"one two three", "three four five", "five six seven"}
	for i, ch := range chunks {
		assert.Equal(t, "doc1", ch.DocumentID)
		assert.Equal(t, i, ch.Index)
		assert.Equal(t, want[i], ch.Text)
	}
	assert.Equal(t, "doc1:0", chunks[0].VectorID)
	assert.Equal(t, "doc1:2", chunks[2].VectorID)
}

func TestChunker_Deterministic(t *testing.T) {
	c := NewChunker(4, 2)
	text := "a b c d e f g h i j"
	assert.Equal(t, c.Chunk("d", text), c.Chunk("d", text))
}

func TestChunker_ChunkEmpty(t *testing.T) {
	c := NewChunker(5, 1)
	assert.Nil(t, c.Chunk("d", "   \n\t  "))
}

func TestChunker_ShortText(t *testing.T) {
	chunks := NewChunker(10, 2).Chunk("d", "just a few words")
	require.Len(t, chunks, 1)
	assert.Equal(t, "just a few words", chunks[0].Text)
}

func TestNewChunker_InvalidOverlap(t *testing.T) {
	c := NewChunker(2, 5)
	chunks := c.Chunk("d", "a b c d")
	require.Len(t, chunks, 2)
	assert.Equal(t, "c d", chunks[1].Text)
}

func TestPreprocess(t *testing.T) {
	assert.Equal(t, "a b", Preprocess("  a  b  "))
	assert.Equal(t, "line one line two", Preprocess("line one\n\n\tline two"))
	assert.Equal(t, "zero width", Preprocess("zero\u200b width\x00"))
}
