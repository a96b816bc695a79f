package embedding

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"

	"github.com/cenkalti/backoff/v5"
)

// HTTPConfig configures an HTTPEmbedder.
type HTTPConfig struct {
	// BaseURL is the base URL of a TEI-compatible server; requests go to BaseURL + "/embed".
	BaseURL    string
	Dimensions int
}

// HTTPEmbedder calls a text-embeddings-inference compatible endpoint.
type HTTPEmbedder struct {
	config HTTPConfig
	client *http.Client
}

type teiRequest struct {
	Inputs   []string `json:"inputs"`
	Truncate bool     `json:"truncate"`
}

// NewHTTPEmbedder returns an embedder for the server at cfg.BaseURL. A nil client uses
// http.DefaultClient; per-call deadlines come from the context.
func NewHTTPEmbedder(cfg HTTPConfig, client *http.Client) (*HTTPEmbedder, error) {
	if cfg.BaseURL == "" {
		return nil, fmt.Errorf("embedding base URL required")
	}
	if cfg.Dimensions <= 0 {
		return nil, fmt.Errorf("embedding dimensions must be positive")
	}
	if client == nil {
		client = http.DefaultClient
	}
	cfg.BaseURL = strings.TrimRight(cfg.BaseURL, "/")
	return &HTTPEmbedder{config: cfg, client: client}, nil
}

// Embed returns the embedding of a single text.
func (e *HTTPEmbedder) Embed(ctx context.Context, text string) ([]float32, error) {
	vectors, err := e.EmbedBatch(ctx, []string{text})
	if err != nil {
		return nil, err
	}
	return vectors[0], nil
}

// EmbedBatch embeds texts in one request. Transport errors and 429/5xx responses wrap
// ErrEmbeddingFailed; other 4xx responses and malformed payloads are marked permanent so
// the gateway does not retry them.
func (e *HTTPEmbedder) EmbedBatch(ctx context.Context, texts []string) ([][]float32, error) {
	if len(texts) == 0 {
		return nil, ErrEmptyInput
	}

	body, err := json.Marshal(teiRequest{Inputs: texts, Truncate: true})
	if err != nil {
		return nil, backoff.Permanent(fmt.Errorf("marshaling request: %w", err))
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, e.config.BaseURL+"/embed", bytes.NewReader(body))
	if err != nil {
		return nil, backoff.Permanent(fmt.Errorf("creating request: %w", err))
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := e.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrEmbeddingFailed, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		respBody, _ := io.ReadAll(io.LimitReader(resp.Body, 1024))
		err := fmt.Errorf("%w: status %d: %s", ErrEmbeddingFailed, resp.StatusCode, strings.TrimSpace(string(respBody)))
		if resp.StatusCode == http.StatusTooManyRequests || resp.StatusCode >= 500 {
			return nil, err
		}
		return nil, backoff.Permanent(err)
	}

	var vectors [][]float32
	if err := json.NewDecoder(resp.Body).Decode(&vectors); err != nil {
		return nil, backoff.Permanent(fmt.Errorf("%w: decoding response: %v", ErrEmbeddingFailed, err))
	}
	if len(vectors) != len(texts) {
		return nil, backoff.Permanent(fmt.Errorf("%w: got %d vectors for %d inputs", ErrEmbeddingFailed, len(vectors), len(texts)))
	}
	for _, v := range vectors {
		if len(v) != e.config.Dimensions {
			return nil, backoff.Permanent(fmt.Errorf("%w: got %d, expected %d", ErrDimensionMismatch, len(v), e.config.Dimensions))
		}
	}
	return vectors, nil
}

// Dimensions returns the configured embedding dimension.
func (e *HTTPEmbedder) Dimensions() int {
	return e.config.Dimensions
}

// Close releases idle connections.
func (e *HTTPEmbedder) Close() error {
	e.client.CloseIdleConnections()
	return nil
}
