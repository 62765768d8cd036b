package generator

import (
	"context"
	"errors"
	"sync/atomic"
	"testing"
	"time"

	"github.com/kalambet/hrassist/internal/engine"
	"github.com/kalambet/hrassist/internal/ollama"
)

type mockChatter struct {
	calls  atomic.Int32
	chatFn func(ctx context.Context, call int32, messages []engine.Message, opts engine.ChatOptions) (string, error)
}

func (m *mockChatter) Chat(ctx context.Context, _ string, messages []engine.Message, opts engine.ChatOptions) (string, error) {
	n := m.calls.Add(1)
	return m.chatFn(ctx, n, messages, opts)
}

var (
	errUnavailable = &ollama.StatusError{Op: "chat", Code: 503, Body: "loading model"}
	errBadRequest  = &ollama.StatusError{Op: "chat", Code: 400, Body: "bad prompt"}
)

func newTestGenerator(m *mockChatter, opts ...Option) *Generator {
	return New(m, "llama3.2", append([]Option{WithRetryBackoff(time.Millisecond)}, opts...)...)
}

func TestComplete_Success(t *testing.T) {
	m := &mockChatter{chatFn: func(_ context.Context, _ int32, msgs []engine.Message, opts engine.ChatOptions) (string, error) {
		if len(msgs) != 2 || msgs[1].Content != "hi" {
			t.Errorf("unexpected messages: %+v", msgs)
		}
		if opts.Temperature == nil || *opts.Temperature != DefaultTemperature {
			t.Errorf("temperature = %v, want %v", opts.Temperature, DefaultTemperature)
		}
		return "Hello! How can I help?", nil
	}}
	g := newTestGenerator(m)

	got, err := g.Complete(context.Background(), []engine.Message{
		{Role: engine.RoleSystem, Content: "sys"},
		{Role: engine.RoleUser, Content: "hi"},
	})
	if err != nil {
		t.Fatalf("Complete: %v", err)
	}
	if got != "Hello! How can I help?" {
		t.Errorf("got %q", got)
	}
}

func TestComplete_RetriesTransientOnce(t *testing.T) {
	m := &mockChatter{chatFn: func(_ context.Context, n int32, _ []engine.Message, _ engine.ChatOptions) (string, error) {
		if n == 1 {
			return "", errUnavailable
		}
		return "ok", nil
	}}
	g := newTestGenerator(m)

	got, err := g.Complete(context.Background(), nil)
	if err != nil {
		t.Fatalf("Complete: %v", err)
	}
	if got != "ok" || m.calls.Load() != 2 {
		t.Errorf("got %q after %d calls, want ok after 2", got, m.calls.Load())
	}
}

func TestComplete_NeverMoreThanOneRetry(t *testing.T) {
	m := &mockChatter{chatFn: func(context.Context, int32, []engine.Message, engine.ChatOptions) (string, error) {
		return "", errUnavailable
	}}
	g := newTestGenerator(m)

	_, err := g.Complete(context.Background(), nil)
	if !errors.Is(err, ErrModelUnavailable) {
		t.Fatalf("err = %v, want ErrModelUnavailable", err)
	}
	var se *ollama.StatusError
	if !errors.As(err, &se) {
		t.Errorf("cause not preserved: %v", err)
	}
	if m.calls.Load() != 2 {
		t.Errorf("calls = %d, want 2", m.calls.Load())
	}
}

func TestComplete_PermanentErrorNotRetried(t *testing.T) {
	m := &mockChatter{chatFn: func(context.Context, int32, []engine.Message, engine.ChatOptions) (string, error) {
		return "", errBadRequest
	}}
	g := newTestGenerator(m)

	if _, err := g.Complete(context.Background(), nil); !errors.Is(err, ErrModelUnavailable) {
		t.Fatalf("err = %v, want ErrModelUnavailable", err)
	}
	if m.calls.Load() != 1 {
		t.Errorf("calls = %d, want 1", m.calls.Load())
	}
}

func TestComplete_Timeout(t *testing.T) {
	m := &mockChatter{chatFn: func(ctx context.Context, _ int32, _ []engine.Message, _ engine.ChatOptions) (string, error) {
		<-ctx.Done()
		return "", ctx.Err()
	}}
	g := newTestGenerator(m, WithTimeout(20*time.Millisecond))

	start := time.Now()
	_, err := g.Complete(context.Background(), nil)
	if !errors.Is(err, ErrModelUnavailable) || !errors.Is(err, context.DeadlineExceeded) {
		t.Fatalf("err = %v, want ErrModelUnavailable wrapping DeadlineExceeded", err)
	}
	if m.calls.Load() != 2 {
		t.Errorf("calls = %d, want 2 (timeout retried once)", m.calls.Load())
	}
	if time.Since(start) > 2*time.Second {
		t.Errorf("Complete took %v", time.Since(start))
	}
}

func TestComplete_CallerCancelNotRetried(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	m := &mockChatter{chatFn: func(context.Context, int32, []engine.Message, engine.ChatOptions) (string, error) {
		cancel()
		return "", context.Canceled
	}}
	g := newTestGenerator(m)

	if _, err := g.Complete(ctx, nil); !errors.Is(err, context.Canceled) {
		t.Fatalf("err = %v, want context.Canceled", err)
	}
	if m.calls.Load() != 1 {
		t.Errorf("calls = %d, want 1", m.calls.Load())
	}
}

func TestComplete_BreakerOpens(t *testing.T) {
	m := &mockChatter{chatFn: func(context.Context, int32, []engine.Message, engine.ChatOptions) (string, error) {
		return "", errBadRequest
	}}
	g := newTestGenerator(m, WithBreaker(3, time.Hour))

	for i := 0; i < 3; i++ {
		g.Complete(context.Background(), nil)
	}
	if g.State() != "open" {
		t.Fatalf("state = %q, want open", g.State())
	}

	before := m.calls.Load()
	_, err := g.Complete(context.Background(), nil)
	if !errors.Is(err, ErrModelUnavailable) {
		t.Fatalf("err = %v, want ErrModelUnavailable", err)
	}
	if m.calls.Load() != before {
		t.Error("model called while the breaker was open")
	}
}

func TestComplete_BreakerRecovers(t *testing.T) {
	var fail atomic.Bool
	fail.Store(true)
	m := &mockChatter{chatFn: func(context.Context, int32, []engine.Message, engine.ChatOptions) (string, error) {
		if fail.Load() {
			return "", errBadRequest
		}
		return "back", nil
	}}
	g := newTestGenerator(m, WithBreaker(1, 20*time.Millisecond))

	g.Complete(context.Background(), nil)
	if g.State() != "open" {
		t.Fatalf("state = %q, want open", g.State())
	}

	fail.Store(false)
	time.Sleep(40 * time.Millisecond)
	got, err := g.Complete(context.Background(), nil)
	if err != nil || got != "back" {
		t.Fatalf("Complete after cool-down = %q, %v", got, err)
	}
	if g.State() != "closed" {
		t.Errorf("state = %q, want closed", g.State())
	}
}
