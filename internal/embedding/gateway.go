package embedding

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/cenkalti/backoff/v5"
	"go.uber.org/zap"

	"github.com/hyperjump/retriever/internal/metrics"
	"github.com/hyperjump/retriever/internal/models"
	"github.com/hyperjump/retriever/pkg/utils"
)

// RetryPolicy bounds the retry loop around a backend call. Delays grow exponentially from
// InitialInterval up to MaxInterval, each randomized by RandomizationFactor.
type RetryPolicy struct {
	MaxAttempts         uint
	InitialInterval     time.Duration
	MaxInterval         time.Duration
	Multiplier          float64
	RandomizationFactor float64
}

// DefaultRetryPolicy returns four attempts starting at 200ms with 50% jitter.
func DefaultRetryPolicy() RetryPolicy {
	return RetryPolicy{
		MaxAttempts:         4,
		InitialInterval:     200 * time.Millisecond,
		MaxInterval:         2 * time.Second,
		Multiplier:          2.0,
		RandomizationFactor: 0.5,
	}
}

func (p RetryPolicy) backOff() *backoff.ExponentialBackOff {
	b := backoff.NewExponentialBackOff()
	b.InitialInterval = p.InitialInterval
	b.MaxInterval = p.MaxInterval
	b.Multiplier = p.Multiplier
	b.RandomizationFactor = p.RandomizationFactor
	return b
}

// Gateway wraps an Embedder with a per-call timeout, bounded retries with jitter and
// L2 normalization. Every failure it returns wraps models.ErrUpstream.
type Gateway struct {
	next    Embedder
	timeout time.Duration
	policy  RetryPolicy
	logger  *zap.Logger
}

// GatewayOption configures a Gateway.
type GatewayOption func(*Gateway)

// WithTimeout bounds each backend attempt.
func WithTimeout(d time.Duration) GatewayOption {
	return func(g *Gateway) { g.timeout = d }
}

// WithRetryPolicy replaces the default retry policy.
func WithRetryPolicy(p RetryPolicy) GatewayOption {
	return func(g *Gateway) { g.policy = p }
}

// WithLogger sets the logger used to report retries.
func WithLogger(l *zap.Logger) GatewayOption {
	return func(g *Gateway) { g.logger = l }
}

// NewGateway wraps next.
func NewGateway(next Embedder, opts ...GatewayOption) *Gateway {
	g := &Gateway{
		next:    next,
		timeout: 10 * time.Second,
		policy:  DefaultRetryPolicy(),
		logger:  zap.NewNop(),
	}
	for _, opt := range opts {
		opt(g)
	}
	if g.policy.MaxAttempts == 0 {
		g.policy.MaxAttempts = 1
	}
	return g
}

// Embed returns the normalized embedding of text.
func (g *Gateway) Embed(ctx context.Context, text string) ([]float32, error) {
	vectors, err := g.EmbedBatch(ctx, []string{text})
	if err != nil {
		return nil, err
	}
	return vectors[0], nil
}

// EmbedBatch embeds texts, retrying transient failures. It gives up when the policy is
// exhausted, the backend reports a permanent error or ctx is done.
func (g *Gateway) EmbedBatch(ctx context.Context, texts []string) ([][]float32, error) {
	if len(texts) == 0 {
		return nil, nil
	}

	attempt := 0
	op := func() ([][]float32, error) {
		attempt++
		callCtx, cancel := context.WithTimeout(ctx, g.timeout)
		defer cancel()
		vectors, err := g.next.EmbedBatch(callCtx, texts)
		if err != nil {
			if ctx.Err() != nil {
				return nil, backoff.Permanent(ctx.Err())
			}
			if errors.Is(err, ErrEmptyInput) {
				return nil, backoff.Permanent(err)
			}
			return nil, err
		}
		return vectors, nil
	}

	vectors, err := backoff.Retry(ctx, op,
		backoff.WithBackOff(g.policy.backOff()),
		backoff.WithMaxTries(g.policy.MaxAttempts),
		backoff.WithNotify(func(err error, next time.Duration) {
			metrics.EmbeddingRetries.Inc()
			g.logger.Warn("embedding call failed, retrying",
				zap.Int("attempt", attempt),
				zap.Duration("backoff", next),
				zap.Error(err))
		}),
	)
	if err != nil {
		metrics.EmbeddingFailures.Inc()
		return nil, fmt.Errorf("%w: after %d attempt(s): %v", models.ErrUpstream, attempt, err)
	}

	out := make([][]float32, len(vectors))
	for i, v := range vectors {
		if len(v) != g.next.Dimensions() {
			metrics.EmbeddingFailures.Inc()
			return nil, fmt.Errorf("%w: %v: got %d, expected %d", models.ErrUpstream, ErrDimensionMismatch, len(v), g.next.Dimensions())
		}
		cp := make([]float32, len(v))
		copy(cp, v)
		utils.NormalizeL2(cp)
		out[i] = cp
	}
	return out, nil
}

// Dimensions returns the dimension of the underlying embedder.
func (g *Gateway) Dimensions() int {
	return g.next.Dimensions()
}

// Close closes the underlying embedder.
func (g *Gateway) Close() error {
	return g.next.Close()
}
