// Package client is a Go client for the retrieval REST API.
package client

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"os"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/hyperjump/retriever/internal/models"
)

// Environment variables read by FromEnv.
const (
	EnvURL       = "RETRIEVER_URL"
	EnvProjectID = "RETRIEVER_PROJECT_ID"
	EnvAPIKey    = "RETRIEVER_API_KEY"
)

const (
	defaultBaseURL   = "http://localhost:8080"
	defaultTimeout   = 30 * time.Second
	defaultRetryWait = 5 * time.Second
)

// APIError is a non-2xx response. It unwraps to the matching models error so callers can
// use errors.Is(err, models.ErrRateLimited) and friends.
type APIError struct {
	StatusCode int
	Detail     string
}

func (e *APIError) Error() string {
	return fmt.Sprintf("retriever: %d %s: %s", e.StatusCode, http.StatusText(e.StatusCode), e.Detail)
}

func (e *APIError) Unwrap() error {
	switch e.StatusCode {
	case http.StatusUnauthorized:
		return models.ErrAuthFailure
	case http.StatusNotFound:
		return models.ErrNotFound
	case http.StatusTooManyRequests:
		return models.ErrRateLimited
	case http.StatusPaymentRequired:
		return models.ErrQuotaExceeded
	case http.StatusBadRequest:
		return models.ErrValidation
	case http.StatusServiceUnavailable:
		return models.ErrUpstream
	default:
		return models.ErrInternal
	}
}

// Client calls the API for one project.
type Client struct {
	baseURL   string
	projectID string
	key       string
	http      *http.Client
	retryWait time.Duration
	logger    *zap.Logger
}

// Option configures a Client.
type Option func(*Client)

// WithHTTPClient replaces the default HTTP client.
func WithHTTPClient(hc *http.Client) Option {
	return func(c *Client) { c.http = hc }
}

// WithRetryWait sets how long to wait before the single retry of a rate-limited call.
func WithRetryWait(d time.Duration) Option {
	return func(c *Client) { c.retryWait = d }
}

// WithLogger sets a logger for retries.
func WithLogger(l *zap.Logger) Option {
	return func(c *Client) { c.logger = l }
}

// New returns a client for projectID at baseURL, authenticating with key.
func New(baseURL, projectID, key string, opts ...Option) (*Client, error) {
	if baseURL == "" {
		baseURL = defaultBaseURL
	}
	if projectID == "" || key == "" {
		return nil, fmt.Errorf("project id and key are required (set %s and %s)", EnvProjectID, EnvAPIKey)
	}
	if _, err := url.Parse(baseURL); err != nil {
		return nil, fmt.Errorf("invalid base URL: %w", err)
	}
	c := &Client{
		baseURL:   strings.TrimRight(baseURL, "/"),
		projectID: projectID,
		key:       key,
		http:      &http.Client{Timeout: defaultTimeout},
		retryWait: defaultRetryWait,
		logger:    zap.NewNop(),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c, nil
}

// FromEnv builds a client from RETRIEVER_URL, RETRIEVER_PROJECT_ID and RETRIEVER_API_KEY.
func FromEnv(opts ...Option) (*Client, error) {
	return New(os.Getenv(EnvURL), os.Getenv(EnvProjectID), os.Getenv(EnvAPIKey), opts...)
}

// ProjectID returns the project the client is bound to.
func (c *Client) ProjectID() string {
	return c.projectID
}

// Ingest uploads one document and returns it as stored.
func (c *Client) Ingest(ctx context.Context, req *models.IngestRequest) (*models.Document, error) {
	var doc models.Document
	if err := c.do(ctx, http.MethodPost, "/documents", req, &doc); err != nil {
		return nil, err
	}
	return &doc, nil
}

// Query runs a hybrid query and returns the ranked documents.
func (c *Client) Query(ctx context.Context, req *models.QueryRequest) ([]*models.Document, error) {
	var resp models.QueryResponse
	if err := c.do(ctx, http.MethodPost, "/query", req, &resp); err != nil {
		return nil, err
	}
	return resp.Results, nil
}

// Delete removes a document and all of its vectors.
func (c *Client) Delete(ctx context.Context, documentID string) error {
	return c.do(ctx, http.MethodDelete, "/vectors/"+url.PathEscape(documentID), nil, nil)
}

// do sends one request. A 429 response is retried once after the retry wait.
func (c *Client) do(ctx context.Context, method, path string, in, out any) error {
	var body []byte
	if in != nil {
		var err error
		if body, err = json.Marshal(in); err != nil {
			return fmt.Errorf("encode request: %w", err)
		}
	}

	err := c.send(ctx, method, path, body, out)
	if !errors.Is(err, models.ErrRateLimited) {
		return err
	}
	c.logger.Info("rate limited, retrying once", zap.String("path", path), zap.Duration("wait", c.retryWait))
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-time.After(c.retryWait):
	}
	return c.send(ctx, method, path, body, out)
}

func (c *Client) send(ctx context.Context, method, path string, body []byte, out any) error {
	var reader io.Reader
	if body != nil {
		reader = bytes.NewReader(body)
	}
	endpoint := c.baseURL + "/api/rag/projects/" + url.PathEscape(c.projectID) + path
	req, err := http.NewRequestWithContext(ctx, method, endpoint, reader)
	if err != nil {
		return fmt.Errorf("build request: %w", err)
	}
	req.Header.Set("X-Project-Key", c.key)
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return fmt.Errorf("%s %s: %w", method, path, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode >= http.StatusBadRequest {
		apiErr := &APIError{StatusCode: resp.StatusCode}
		var payload struct {
			Detail string `json:"detail"`
		}
		raw, _ := io.ReadAll(io.LimitReader(resp.Body, 64<<10))
		if json.Unmarshal(raw, &payload) == nil && payload.Detail != "" {
			apiErr.Detail = payload.Detail
		} else {
			apiErr.Detail = strings.TrimSpace(string(raw))
		}
		return apiErr
	}
	if out == nil || resp.StatusCode == http.StatusNoContent {
		return nil
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("decode response: %w", err)
	}
	return nil
}
