// Package models defines the data structures shared by the store, the indexes and the API.
package models

import (
	"fmt"
	"strconv"
	"strings"
	"time"
)

// Document is a stored document owned by exactly one project.
type Document struct {
	ID        string    `json:"id" db:"id"`
	ProjectID string    `json:"-" db:"project_id"`
	Title     string    `json:"title" db:"title"`
	Content   string    `json:"content" db:"content"`
	Metadata  Metadata  `json:"metadata" db:"metadata"`
	CreatedAt time.Time `json:"created_at" db:"created_at"`
	ChunkIDs  []string  `json:"-" db:"-"`
}

// Chunk is one embedded span of a document. VectorID is unique within the project.
type Chunk struct {
	VectorID   string    `json:"vector_id" db:"vector_id"`
	DocumentID string    `json:"document_id" db:"document_id"`
	Index      int       `json:"chunk_index" db:"chunk_index"`
	Text       string    `json:"text" db:"text"`
	Embedding  []float32 `json:"-" db:"embedding"`
}

// VectorID returns the id of the chunk at index within document docID.
func VectorID(docID string, index int) string {
	return docID + ":" + strconv.Itoa(index)
}

// DocumentIDFromVectorID recovers the owning document id from a vector id.
func DocumentIDFromVectorID(vectorID string) (string, error) {
	i := strings.LastIndexByte(vectorID, ':')
	if i <= 0 {
		return "", fmt.Errorf("malformed vector id %q", vectorID)
	}
	return vectorID[:i], nil
}

// Metadata maps keys to scalar values: string, number, bool or null.
type Metadata map[string]any

// Validate rejects nested or non-scalar values.
func (m Metadata) Validate() error {
	for k, v := range m {
		if strings.TrimSpace(k) == "" {
			return fmt.Errorf("%w: metadata keys must not be empty", ErrValidation)
		}
		if !isScalar(v) {
			return fmt.Errorf("%w: metadata value for %q must be a string, number, bool or null", ErrValidation, k)
		}
	}
	return nil
}

func isScalar(v any) bool {
	switch v.(type) {
	case nil, string, bool, float64, float32, int, int32, int64, uint, uint32, uint64:
		return true
	default:
		return false
	}
}
