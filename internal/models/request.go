package models

import (
	"fmt"
	"strings"
)

// IngestRequest is the body of a document upload.
type IngestRequest struct {
	Title    string   `json:"title"`
	Text     string   `json:"text"`
	Metadata Metadata `json:"metadata"`
}

// Validate checks required fields and normalizes metadata to a non-nil map.
func (r *IngestRequest) Validate() error {
	if strings.TrimSpace(r.Text) == "" {
		return fmt.Errorf("%w: text is required", ErrValidation)
	}
	if r.Metadata == nil {
		r.Metadata = Metadata{}
	}
	return r.Metadata.Validate()
}

// QueryRequest is the body of a search call.
type QueryRequest struct {
	Query   string `json:"query"`
	TopK    int    `json:"top_k"`
	VectorK int    `json:"vector_k"`
}

// QueryLimits bounds top_k and vector_k.
type QueryLimits struct {
	DefaultTopK    int
	MaxTopK        int
	DefaultVectorK int
	MaxVectorK     int
}

// Normalize validates the request against lim and fills omitted sizes.
// An omitted vector_k becomes the larger of the default and top_k.
func (q *QueryRequest) Normalize(lim QueryLimits) error {
	if strings.TrimSpace(q.Query) == "" {
		return fmt.Errorf("%w: query is required", ErrValidation)
	}
	if q.TopK < 0 || q.VectorK < 0 {
		return fmt.Errorf("%w: top_k and vector_k must not be negative", ErrValidation)
	}
	if q.TopK == 0 {
		q.TopK = lim.DefaultTopK
	}
	if q.TopK > lim.MaxTopK {
		return fmt.Errorf("%w: top_k must be at most %d", ErrValidation, lim.MaxTopK)
	}
	if q.VectorK == 0 {
		q.VectorK = max(lim.DefaultVectorK, q.TopK)
	}
	if q.VectorK < q.TopK {
		return fmt.Errorf("%w: vector_k must be at least top_k", ErrValidation)
	}
	if q.VectorK > lim.MaxVectorK {
		return fmt.Errorf("%w: vector_k must be at most %d", ErrValidation, lim.MaxVectorK)
	}
	return nil
}

// QueryResponse lists hydrated documents in fused rank order.
type QueryResponse struct {
	Results []*Document `json:"results"`
}

// Project is a tenant with its key hash and limits.
type Project struct {
	ID            string  `json:"id" db:"id"`
	KeyHash       string  `json:"-" db:"key_hash"`
	RateLimit     float64 `json:"rate_limit" db:"rate_limit"`
	Burst         int     `json:"burst" db:"burst"`
	CapacityLimit int     `json:"capacity_limit" db:"capacity_limit"`
}
