package retrieval

import (
	"context"
	"errors"
	"fmt"
	"time"
)

// DefaultTopK is the number of results Search returns when topK <= 0.
const DefaultTopK = 5

// ErrDimensionMismatch is returned when a vector does not match the
// dimensionality already stored in the index.
var ErrDimensionMismatch = errors.New("embedding dimension mismatch")

// VectorRecord is one chunk with its embedding, the unit stored in and
// returned by the index.
type VectorRecord struct {
	ID           string
	DocumentID   string
	DocumentName string
	ChunkIndex   int
	Text         string
	Start        int
	End          int
	Embedding    []float32
	CreatedAt    time.Time
}

// ScoredRecord is a VectorRecord with its cosine similarity to the query.
type ScoredRecord struct {
	VectorRecord
	Score float32
}

// RecordID is the stable identifier of a document's chunk.
func RecordID(documentID string, chunkIndex int) string {
	return fmt.Sprintf("%s:%d", documentID, chunkIndex)
}

// VectorIndex persists chunk vectors and answers nearest-neighbor queries.
// Writes are atomic: a concurrent Search sees a write entirely or not at
// all. Callers serialize writes for the same document.
type VectorIndex interface {
	// Upsert adds records, replacing any with the same ID.
	Upsert(ctx context.Context, records []VectorRecord) error

	// Replace atomically swaps every record of documentID for records.
	Replace(ctx context.Context, documentID string, records []VectorRecord) error

	// Search returns at most topK records ordered by similarity descending,
	// ties broken by insertion order.
	Search(ctx context.Context, vector []float32, topK int) ([]ScoredRecord, error)

	// Delete removes all records of documentID and reports how many went.
	Delete(ctx context.Context, documentID string) (int, error)

	// Count returns the number of stored records.
	Count(ctx context.Context) (int, error)
}
