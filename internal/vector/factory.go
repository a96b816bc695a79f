package vector

import "fmt"

// IndexType represents the type of vector index to use.
type IndexType string

const (
	// IndexTypeFlat uses exact brute-force search with tombstoned deletes.
	IndexTypeFlat IndexType = "flat"
)

// NewVectorIndex creates a vector index of the specified type.
// Supported types: "flat" (default).
func NewVectorIndex(indexType string, dimensions int) (VectorIndex, error) {
	switch IndexType(indexType) {
	case IndexTypeFlat, "":
		return NewFlatIndex(dimensions)
	default:
		return nil, fmt.Errorf("unknown index type: %s (supported: flat)", indexType)
	}
}
