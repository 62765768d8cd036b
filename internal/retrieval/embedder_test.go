package retrieval

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/kalambet/hrassist/internal/engine"
	"github.com/kalambet/hrassist/internal/ollama"
)

// mockEngine implements engine.Engine for testing.
type mockEngine struct {
	embedFn func(ctx context.Context, model string, texts []string) ([][]float32, error)
}

func (m *mockEngine) Chat(_ context.Context, _ string, _ []engine.Message, _ engine.ChatOptions) (string, error) {
	return "", fmt.Errorf("not implemented")
}
func (m *mockEngine) Embed(ctx context.Context, model string, texts []string) ([][]float32, error) {
	return m.embedFn(ctx, model, texts)
}
func (m *mockEngine) IsRunning(_ context.Context) bool               { return true }
func (m *mockEngine) ListModels(_ context.Context) ([]string, error) { return nil, nil }
func (m *mockEngine) HasModel(_ context.Context, _ string) bool      { return true }
func (m *mockEngine) PullModel(_ context.Context, _ string, _ func(engine.PullProgress)) error {
	return fmt.Errorf("not implemented")
}

// lengthVectors returns a 3-dim vector per text derived from its length, so
// identical texts always map to identical vectors.
func lengthVectors(texts []string) [][]float32 {
	out := make([][]float32, len(texts))
	for i, t := range texts {
		out[i] = []float32{float32(len(t)), 1, 0}
	}
	return out
}

func TestEmbed_Single(t *testing.T) {
	mock := &mockEngine{
		embedFn: func(_ context.Context, model string, texts []string) ([][]float32, error) {
			if model != "nomic-embed-text" {
				t.Errorf("model = %q", model)
			}
			return lengthVectors(texts), nil
		},
	}
	e := NewEmbedder(mock, "nomic-embed-text")

	vec, err := e.Embed(context.Background(), "hello")
	if err != nil {
		t.Fatalf("Embed: %v", err)
	}
	if len(vec) != 3 || vec[0] != 5 {
		t.Errorf("vec = %v", vec)
	}
}

func TestEmbedBatch_BatchesAndPreservesOrder(t *testing.T) {
	var mu sync.Mutex
	var calls []int
	mock := &mockEngine{
		embedFn: func(_ context.Context, _ string, texts []string) ([][]float32, error) {
			mu.Lock()
			calls = append(calls, len(texts))
			mu.Unlock()
			return lengthVectors(texts), nil
		},
	}
	e := NewEmbedder(mock, "m", WithBatchSize(2))

	texts := []string{"a", "bb", "ccc", "dddd", "eeeee"}
	vecs, err := e.EmbedBatch(context.Background(), texts)
	if err != nil {
		t.Fatalf("EmbedBatch: %v", err)
	}
	if len(calls) != 3 {
		t.Errorf("made %d backend calls, want 3", len(calls))
	}
	for i, v := range vecs {
		if int(v[0]) != len(texts[i]) {
			t.Errorf("vecs[%d] = %v, does not belong to %q", i, v, texts[i])
		}
	}
}

func TestEmbedBatch_Empty(t *testing.T) {
	e := NewEmbedder(&mockEngine{}, "m")
	vecs, err := e.EmbedBatch(context.Background(), nil)
	if err != nil || vecs != nil {
		t.Errorf("EmbedBatch(nil) = %v, %v; want nil, nil", vecs, err)
	}
}

func TestEmbedBatch_Idempotent(t *testing.T) {
	mock := &mockEngine{
		embedFn: func(_ context.Context, _ string, texts []string) ([][]float32, error) {
			return lengthVectors(texts), nil
		},
	}
	e := NewEmbedder(mock, "m")

	a, err := e.EmbedBatch(context.Background(), []string{"same text"})
	if err != nil {
		t.Fatalf("EmbedBatch: %v", err)
	}
	b, err := e.EmbedBatch(context.Background(), []string{"same text"})
	if err != nil {
		t.Fatalf("EmbedBatch: %v", err)
	}
	for i := range a[0] {
		if a[0][i] != b[0][i] {
			t.Fatalf("vectors differ: %v vs %v", a[0], b[0])
		}
	}
}

func TestEmbed_RetriesTransient(t *testing.T) {
	var attempts atomic.Int32
	mock := &mockEngine{
		embedFn: func(_ context.Context, _ string, texts []string) ([][]float32, error) {
			if attempts.Add(1) < 3 {
				return nil, &ollama.StatusError{Op: "embed", Code: 503}
			}
			return lengthVectors(texts), nil
		},
	}
	e := NewEmbedder(mock, "m", WithRetry(3, time.Millisecond))

	if _, err := e.Embed(context.Background(), "x"); err != nil {
		t.Fatalf("Embed: %v", err)
	}
	if got := attempts.Load(); got != 3 {
		t.Errorf("attempts = %d, want 3", got)
	}
}

func TestEmbed_ExhaustedRetries(t *testing.T) {
	var attempts atomic.Int32
	mock := &mockEngine{
		embedFn: func(_ context.Context, _ string, _ []string) ([][]float32, error) {
			attempts.Add(1)
			return nil, &ollama.StatusError{Op: "embed", Code: 502}
		},
	}
	e := NewEmbedder(mock, "m", WithRetry(3, time.Millisecond))

	_, err := e.Embed(context.Background(), "x")
	if !errors.Is(err, ErrEmbeddingUnavailable) {
		t.Fatalf("error = %v, want ErrEmbeddingUnavailable", err)
	}
	if got := attempts.Load(); got != 3 {
		t.Errorf("attempts = %d, want 3", got)
	}
}

func TestEmbed_PermanentErrorNotRetried(t *testing.T) {
	var attempts atomic.Int32
	mock := &mockEngine{
		embedFn: func(_ context.Context, _ string, _ []string) ([][]float32, error) {
			attempts.Add(1)
			return nil, &ollama.StatusError{Op: "embed", Code: 404, Body: "model not found"}
		},
	}
	e := NewEmbedder(mock, "m", WithRetry(3, time.Millisecond))

	_, err := e.Embed(context.Background(), "x")
	if !errors.Is(err, ErrEmbeddingUnavailable) {
		t.Fatalf("error = %v, want ErrEmbeddingUnavailable", err)
	}
	if got := attempts.Load(); got != 1 {
		t.Errorf("attempts = %d, want 1", got)
	}
}

func TestEmbedBatch_DimensionMismatch(t *testing.T) {
	mock := &mockEngine{
		embedFn: func(_ context.Context, _ string, texts []string) ([][]float32, error) {
			out := make([][]float32, len(texts))
			for i := range texts {
				out[i] = make([]float32, 3+i)
				out[i][0] = 1
			}
			return out, nil
		},
	}
	e := NewEmbedder(mock, "m")

	if _, err := e.EmbedBatch(context.Background(), []string{"a", "b"}); !errors.Is(err, ErrEmbeddingUnavailable) {
		t.Errorf("error = %v, want ErrEmbeddingUnavailable", err)
	}
}
