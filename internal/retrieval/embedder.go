package retrieval

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/kalambet/hrassist/internal/engine"
	"github.com/kalambet/hrassist/internal/metrics"
)

// ErrEmbeddingUnavailable is returned once every attempt to reach the
// embedding service has failed.
var ErrEmbeddingUnavailable = errors.New("embedding service unavailable")

const (
	defaultBatchSize   = 64
	defaultMaxAttempts = 3
	defaultBackoff     = 500 * time.Millisecond
	defaultTimeout     = 30 * time.Second
)

// Embedder turns text into vectors through an Engine. Texts are sent in
// batches; each batch is retried on transient failures with exponential
// backoff.
type Embedder struct {
	engine      engine.Engine
	model       string
	batchSize   int
	maxAttempts int
	backoff     time.Duration
	timeout     time.Duration
	logger      *slog.Logger
}

// EmbedderOption configures an Embedder.
type EmbedderOption func(*Embedder)

// WithBatchSize sets how many texts go into one backend call.
func WithBatchSize(n int) EmbedderOption {
	return func(e *Embedder) {
		if n > 0 {
			e.batchSize = n
		}
	}
}

// WithRetry sets the attempt count and the initial backoff between attempts.
func WithRetry(attempts int, backoff time.Duration) EmbedderOption {
	return func(e *Embedder) {
		if attempts > 0 {
			e.maxAttempts = attempts
		}
		if backoff >= 0 {
			e.backoff = backoff
		}
	}
}

// WithTimeout bounds each backend call.
func WithTimeout(d time.Duration) EmbedderOption {
	return func(e *Embedder) {
		if d > 0 {
			e.timeout = d
		}
	}
}

// NewEmbedder creates an Embedder using the given Engine and model name.
func NewEmbedder(e engine.Engine, model string, opts ...EmbedderOption) *Embedder {
	emb := &Embedder{
		engine:      e,
		model:       model,
		batchSize:   defaultBatchSize,
		maxAttempts: defaultMaxAttempts,
		backoff:     defaultBackoff,
		timeout:     defaultTimeout,
		logger:      slog.Default(),
	}
	for _, opt := range opts {
		opt(emb)
	}
	return emb
}

// Embed returns the embedding vector for a single text.
func (e *Embedder) Embed(ctx context.Context, text string) ([]float32, error) {
	vecs, err := e.embedWithRetry(ctx, []string{text})
	if err != nil {
		return nil, err
	}
	return vecs[0], nil
}

// EmbedBatch returns one vector per text, in input order. Returns nil (not
// error) for empty input. All vectors share the same dimensionality.
func (e *Embedder) EmbedBatch(ctx context.Context, texts []string) ([][]float32, error) {
	if len(texts) == 0 {
		return nil, nil
	}

	results := make([][]float32, len(texts))
	g, gCtx := errgroup.WithContext(ctx)
	g.SetLimit(4)

	for start := 0; start < len(texts); start += e.batchSize {
		end := min(start+e.batchSize, len(texts))
		g.Go(func() error {
			vecs, err := e.embedWithRetry(gCtx, texts[start:end])
			if err != nil {
				return err
			}
			copy(results[start:end], vecs)
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}

	dim := len(results[0])
	for i, v := range results {
		if len(v) != dim {
			return nil, fmt.Errorf("%w: vector %d has %d dimensions, want %d", ErrEmbeddingUnavailable, i, len(v), dim)
		}
	}
	return results, nil
}

func (e *Embedder) embedWithRetry(ctx context.Context, texts []string) ([][]float32, error) {
	var lastErr error
	for attempt := 0; attempt < e.maxAttempts; attempt++ {
		if attempt > 0 {
			wait := e.backoff * time.Duration(1<<(attempt-1))
			e.logger.Warn("retrying embedding", "attempt", attempt+1, "backoff", wait, "error", lastErr)
			select {
			case <-ctx.Done():
				return nil, fmt.Errorf("%w: %w", ErrEmbeddingUnavailable, ctx.Err())
			case <-time.After(wait):
			}
		}

		vecs, err := e.embedOnce(ctx, texts)
		if err == nil {
			return vecs, nil
		}
		lastErr = err
		if ctx.Err() != nil || !engine.IsTransient(err) {
			break
		}
	}
	return nil, fmt.Errorf("%w: %w", ErrEmbeddingUnavailable, lastErr)
}

func (e *Embedder) embedOnce(ctx context.Context, texts []string) ([][]float32, error) {
	callCtx, cancel := context.WithTimeout(ctx, e.timeout)
	defer cancel()

	start := time.Now()
	vecs, err := e.engine.Embed(callCtx, e.model, texts)
	metrics.ObserveModelCall("embed", start, err)
	if err != nil {
		return nil, err
	}
	if len(vecs) != len(texts) {
		return nil, fmt.Errorf("got %d vectors for %d texts", len(vecs), len(texts))
	}
	for i, v := range vecs {
		if len(v) == 0 {
			return nil, fmt.Errorf("empty vector for text %d", i)
		}
	}
	return vecs, nil
}
