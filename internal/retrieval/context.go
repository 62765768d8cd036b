package retrieval

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
)

// NoContextMarker replaces the context block when nothing relevant is found,
// so the model is told explicitly instead of receiving an empty string.
const NoContextMarker = "NO RELEVANT CONTEXT FOUND: none of the available documents cover this question."

const (
	DefaultMaxContextChars = 4000
	DefaultMinScore        = 0.3

	chunkSeparator = "\n\n---\n\n"
)

// RetrievalError reports a failed index lookup. The block returned next to
// it is the no-context marker and is safe to use.
type RetrievalError struct {
	Err error
}

func (e *RetrievalError) Error() string { return "retrieving context: " + e.Err.Error() }
func (e *RetrievalError) Unwrap() error { return e.Err }

// Source identifies a chunk that made it into a context block.
type Source struct {
	DocumentID   string  `json:"document_id"`
	DocumentName string  `json:"document_name"`
	ChunkIndex   int     `json:"chunk_index"`
	Score        float32 `json:"score"`
}

// ContextBlock is the retrieved text handed to the model.
type ContextBlock struct {
	Text      string
	Sources   []Source
	Found     bool
	Truncated bool
}

// QueryEmbedder embeds a single query text.
type QueryEmbedder interface {
	Embed(ctx context.Context, text string) ([]float32, error)
}

// ContextBuilder embeds a question, searches the index and assembles the
// best chunks into one block bounded by a character budget.
type ContextBuilder struct {
	embedder QueryEmbedder
	index    VectorIndex
	topK     int
	maxChars int
	minScore float32
	logger   *slog.Logger
}

// BuilderConfig holds ContextBuilder limits. Zero values take defaults;
// a negative MinScore disables score filtering.
type BuilderConfig struct {
	TopK     int
	MaxChars int
	MinScore float64
}

// NewContextBuilder creates a ContextBuilder.
func NewContextBuilder(embedder QueryEmbedder, index VectorIndex, cfg BuilderConfig) *ContextBuilder {
	b := &ContextBuilder{
		embedder: embedder,
		index:    index,
		topK:     cfg.TopK,
		maxChars: cfg.MaxChars,
		minScore: float32(cfg.MinScore),
		logger:   slog.Default(),
	}
	if b.topK <= 0 {
		b.topK = DefaultTopK
	}
	if b.maxChars <= 0 {
		b.maxChars = DefaultMaxContextChars
	}
	if cfg.MinScore == 0 {
		b.minScore = DefaultMinScore
	}
	return b
}

// Build returns the context block for question.
//
// An embedding failure is returned as is (it wraps ErrEmbeddingUnavailable)
// and fails the question. A search failure returns the no-context block
// together with a *RetrievalError.
func (b *ContextBuilder) Build(ctx context.Context, question string) (ContextBlock, error) {
	vec, err := b.embedder.Embed(ctx, question)
	if err != nil {
		return ContextBlock{}, fmt.Errorf("embedding question: %w", err)
	}

	results, err := b.index.Search(ctx, vec, b.topK)
	if err != nil {
		return noContext(), &RetrievalError{Err: err}
	}

	var relevant []ScoredRecord
	for _, r := range results {
		if r.Score >= b.minScore {
			relevant = append(relevant, r)
		}
	}
	if len(relevant) == 0 {
		b.logger.Debug("no relevant context", "results", len(results), "min_score", b.minScore)
		return noContext(), nil
	}
	return assemble(relevant, b.maxChars), nil
}

func noContext() ContextBlock {
	return ContextBlock{Text: NoContextMarker}
}

// assemble joins chunks in rank order, each tagged with its document name.
// Chunks are added whole while they fit; the top chunk alone is cut to the
// budget if it is larger than the budget.
func assemble(records []ScoredRecord, maxChars int) ContextBlock {
	var sb strings.Builder
	block := ContextBlock{Found: true}
	used := 0

	for i, r := range records {
		part := fmt.Sprintf("[Source: %s]\n%s", r.DocumentName, strings.TrimSpace(r.Text))
		sep := ""
		if i > 0 {
			sep = chunkSeparator
		}
		need := runeLen(sep) + runeLen(part)

		if used+need > maxChars {
			block.Truncated = true
			if i == 0 {
				sb.WriteString(truncateRunes(part, maxChars))
				block.Sources = append(block.Sources, sourceOf(r))
			}
			break
		}
		sb.WriteString(sep)
		sb.WriteString(part)
		used += need
		block.Sources = append(block.Sources, sourceOf(r))
	}

	block.Text = sb.String()
	return block
}

func sourceOf(r ScoredRecord) Source {
	return Source{
		DocumentID:   r.DocumentID,
		DocumentName: r.DocumentName,
		ChunkIndex:   r.ChunkIndex,
		Score:        r.Score,
	}
}

func runeLen(s string) int { return len([]rune(s)) }

func truncateRunes(s string, n int) string {
	r := []rune(s)
	if len(r) <= n {
		return s
	}
	return string(r[:n])
}
