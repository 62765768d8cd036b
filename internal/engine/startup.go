package engine

import (
	"context"
	"errors"
	"fmt"
	"io"
	"time"
)

const warmUpTimeout = 60 * time.Second

// EnsureReady checks that the Engine is reachable and the chat and embedding
// models are available. Missing models are pulled with progress written to
// w when the backend supports it. The chat model is then warmed with a
// short request so the first question does not pay the load time.
func EnsureReady(ctx context.Context, e Engine, chatModel, embedModel string, w io.Writer) error {
	if !e.IsRunning(ctx) {
		return fmt.Errorf("inference engine is not reachable; start Ollama with `ollama serve` or check engine.provider")
	}

	models := make([]string, 0, 2)
	if chatModel != "" {
		models = append(models, chatModel)
	}
	if embedModel != "" && embedModel != chatModel {
		models = append(models, embedModel)
	}

	for _, model := range models {
		if e.HasModel(ctx, model) {
			fmt.Fprintf(w, "model %s: ready\n", model)
			continue
		}

		fmt.Fprintf(w, "model %s: pulling...\n", model)
		err := e.PullModel(ctx, model, func(p PullProgress) {
			if p.Total > 0 {
				pct := float64(p.Completed) / float64(p.Total) * 100
				fmt.Fprintf(w, "  %s %.0f%%\n", p.Status, pct)
			} else {
				fmt.Fprintf(w, "  %s\n", p.Status)
			}
		})
		if errors.Is(err, ErrPullUnsupported) {
			fmt.Fprintf(w, "model %s: not listed by backend, assuming it is served\n", model)
			continue
		}
		if err != nil {
			return fmt.Errorf("pulling model %s: %w", model, err)
		}
		fmt.Fprintf(w, "model %s: ready\n", model)
	}
	if chatModel != "" {
		warmUp(ctx, e, chatModel, w)
	}
	return nil
}

// warmUp failures are reported but never fatal.
func warmUp(ctx context.Context, e Engine, model string, w io.Writer) {
	fmt.Fprintf(w, "model %s: warming up...\n", model)
	warmCtx, cancel := context.WithTimeout(ctx, warmUpTimeout)
	defer cancel()
	if _, err := e.Chat(warmCtx, model, []Message{{Role: RoleUser, Content: "ping"}}, ChatOptions{}); err != nil {
		fmt.Fprintf(w, "model %s: warm-up failed (non-fatal): %v\n", model, err)
		return
	}
	fmt.Fprintf(w, "model %s: warm\n", model)
}
