package models

import (
	"encoding/json"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var testLimits = QueryLimits{DefaultTopK: 5, MaxTopK: 50, DefaultVectorK: 20, MaxVectorK: 200}

func TestQueryRequest_Normalize(t *testing.T) {
	tests := []struct {
		name        string
		req         QueryRequest
		wantErr     bool
		wantTopK    int
		wantVectorK int
	}{
		{"empty query", QueryRequest{Query: "  "}, true, 0, 0},
		{"defaults", QueryRequest{Query: "x"}, false, 5, 20},
		{"vector_k follows large top_k", QueryRequest{Query: "x", TopK: 30}, false, 30, 30},
		{"explicit sizes", QueryRequest{Query: "x", TopK: 1, VectorK: 3}, false, 1, 3},
		{"negative top_k", QueryRequest{Query: "x", TopK: -1}, true, 0, 0},
		{"top_k above max", QueryRequest{Query: "x", TopK: 51}, true, 0, 0},
		{"vector_k below top_k", QueryRequest{Query: "x", TopK: 10, VectorK: 2}, true, 0, 0},
		{"vector_k above max", QueryRequest{Query: "x", VectorK: 201}, true, 0, 0},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req := tt.req
			err := req.Normalize(testLimits)
			if tt.wantErr {
				require.Error(t, err)
				assert.True(t, errors.Is(err, ErrValidation))
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.wantTopK, req.TopK)
			assert.Equal(t, tt.wantVectorK, req.VectorK)
		})
	}
}

func TestIngestRequest_Validate(t *testing.T) {
	t.Run("text required", func(t *testing.T) {
		req := IngestRequest{Title: "t"}
		assert.ErrorIs(t, req.Validate(), ErrValidation)
	})

	t.Run("nil metadata becomes empty", func(t *testing.T) {
		req := IngestRequest{Text: "hello"}
		require.NoError(t, req.Validate())
		assert.NotNil(t, req.Metadata)
	})

	t.Run("decoded scalars accepted", func(t *testing.T) {
		var req IngestRequest
		body := `{"title":"Guide","text":"x","metadata":{"category":"docs","n":3,"ok":true,"none":null}}`
		require.NoError(t, json.Unmarshal([]byte(body), &req))
		assert.NoError(t, req.Validate())
	})

	t.Run("nested metadata rejected", func(t *testing.T) {
		var req IngestRequest
		body := `{"text":"x","metadata":{"tags":["a","b"]}}`
		require.NoError(t, json.Unmarshal([]byte(body), &req))
		assert.ErrorIs(t, req.Validate(), ErrValidation)

		body = `{"text":"x","metadata":{"obj":{"a":1}}}`
		req = IngestRequest{}
		require.NoError(t, json.Unmarshal([]byte(body), &req))
		assert.ErrorIs(t, req.Validate(), ErrValidation)
	})
}

func TestVectorIDRoundTrip(t *testing.T) {
	id := VectorID("doc-1", 7)
	assert.Equal(t, "doc-1:7", id)
	docID, err := DocumentIDFromVectorID(id)
	require.NoError(t, err)
	assert.Equal(t, "doc-1", docID)

	_, err = DocumentIDFromVectorID("nocolon")
	assert.Error(t, err)
}

func TestNotFoundErrors(t *testing.T) {
	assert.ErrorIs(t, ErrProjectNotFound, ErrNotFound)
	assert.ErrorIs(t, ErrDocumentNotFound, ErrNotFound)
	assert.NotErrorIs(t, ErrProjectNotFound, ErrDocumentNotFound)
	assert.Equal(t, "document not found", ErrDocumentNotFound.Error())
}
