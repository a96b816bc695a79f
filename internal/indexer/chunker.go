// Package indexer runs the ingest and delete pipelines of a project: chunking, embedding and
// the coordinated writes to the document store and both indexes.
package indexer

import (
	"strings"

	"github.com/hyperjump/retriever/internal/models"
)

// Chunker splits text into overlapping word-based chunks.
type Chunker struct {
	chunkSize    int
	chunkOverlap int
}

// NewChunker creates a chunker with the given size and overlap (in words).
func NewChunker(chunkSize, chunkOverlap int) *Chunker {
	if chunkSize <= 0 {
		chunkSize = 200
	}
	if chunkOverlap < 0 || chunkOverlap >= chunkSize {
		chunkOverlap = 0
	}
	return &Chunker{
		chunkSize:    chunkSize,
		chunkOverlap: chunkOverlap,
	}
}

// Chunk splits text into chunks of docID. Chunk ids are derived from docID and the chunk
// position, so the same text always yields the same ids.
func (c *Chunker) Chunk(docID, text string) []*models.Chunk {
	words := strings.Fields(text)
	if len(words) == 0 {
		return nil
	}
	step := c.chunkSize - c.chunkOverlap
	chunks := make([]*models.Chunk, 0, len(words)/step+1)
	for i := 0; i < len(words); i += step {
		end := min(i+c.chunkSize, len(words))
		index := len(chunks)
		chunks = append(chunks, &models.Chunk{
			VectorID:   models.VectorID(docID, index),
			DocumentID: docID,
			Index:      index,
			Text:       strings.Join(words[i:end], " "),
		})
		if end >= len(words) {
			break
		}
	}
	return chunks
}
