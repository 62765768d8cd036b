// Package engine abstracts the inference backend that serves chat
// completions and embeddings. Two backends exist: a local Ollama server and
// any OpenAI-compatible HTTP API.
package engine

import "context"

// Message is one chat message.
type Message struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

// Roles used in chat messages.
const (
	RoleSystem    = "system"
	RoleUser      = "user"
	RoleAssistant = "assistant"
)

// ChatOptions are sampling parameters for a chat call. A nil Temperature
// leaves the backend default in place.
type ChatOptions struct {
	Temperature *float64
}

// PullProgress reports download progress for a model pull operation.
type PullProgress struct {
	Status    string `json:"status"`
	Total     int64  `json:"total,omitempty"`
	Completed int64  `json:"completed,omitempty"`
}

// Engine is the inference backend consumed by the embedder and the
// generator.
type Engine interface {
	// Chat sends messages to model and returns the assistant's reply.
	Chat(ctx context.Context, model string, messages []Message, opts ChatOptions) (string, error)

	// Embed returns one vector per text, in input order. Implementations
	// send the whole slice in as few backend calls as the backend allows.
	Embed(ctx context.Context, model string, texts []string) ([][]float32, error)

	// IsRunning reports whether the backend is reachable.
	IsRunning(ctx context.Context) bool

	// ListModels returns the names of the models the backend can serve.
	ListModels(ctx context.Context) ([]string, error)

	// HasModel reports whether the given model is available.
	HasModel(ctx context.Context, name string) bool

	// PullModel downloads a model. The optional callback receives progress updates.
	PullModel(ctx context.Context, name string, onProgress func(PullProgress)) error
}

// Float64 returns a pointer to v, for ChatOptions.Temperature.
func Float64(v float64) *float64 { return &v }
