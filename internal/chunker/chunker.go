// Package chunker splits document text into overlapping fixed-size windows.
//
// Windows are cut at character (rune) boundaries, not at word or token
// boundaries, so a chunk may start or end mid-word.
package chunker

import (
	"errors"
	"strings"
)

const (
	// DefaultSize is the default window size in characters.
	DefaultSize = 500
	// DefaultOverlap is the default number of characters shared by consecutive windows.
	DefaultOverlap = 50
)

// ErrEmptyDocument is returned when the text to chunk is empty or whitespace-only.
var ErrEmptyDocument = errors.New("document has no extractable text")

// Chunk is one window of a document. Start and End are rune offsets into
// the document text, End exclusive.
type Chunk struct {
	DocumentID string
	Index      int
	Text       string
	Start      int
	End        int
}

// Chunker cuts text into windows of Size characters, each overlapping the
// previous one by Overlap characters.
type Chunker struct {
	size    int
	overlap int
}

// New creates a Chunker. A non-positive size falls back to DefaultSize; an
// overlap that is negative or not smaller than size falls back to
// DefaultOverlap (or size/4 when DefaultOverlap would not fit either).
func New(size, overlap int) *Chunker {
	if size <= 0 {
		size = DefaultSize
	}
	if overlap < 0 || overlap >= size {
		overlap = DefaultOverlap
		if overlap >= size {
			overlap = size / 4
		}
	}
	return &Chunker{size: size, overlap: overlap}
}

// Size returns the window size in characters.
func (c *Chunker) Size() int { return c.size }

// Overlap returns the number of characters shared by consecutive windows.
func (c *Chunker) Overlap() int { return c.overlap }

// Split cuts text into ordered chunks owned by documentID. Indices are
// contiguous from 0. Text no longer than the window yields exactly one chunk.
func (c *Chunker) Split(documentID, text string) ([]Chunk, error) {
	if strings.TrimSpace(text) == "" {
		return nil, ErrEmptyDocument
	}

	runes := []rune(text)
	n := len(runes)
	step := c.size - c.overlap

	chunks := make([]Chunk, 0, Count(n, c.size, c.overlap))
	for start := 0; ; start += step {
		end := start + c.size
		if end > n {
			end = n
		}
		chunks = append(chunks, Chunk{
			DocumentID: documentID,
			Index:      len(chunks),
			Text:       string(runes[start:end]),
			Start:      start,
			End:        end,
		})
		if end == n {
			break
		}
	}
	return chunks, nil
}

// Count returns the number of chunks Split produces for a text of length
// characters: 1 when length <= size, otherwise ceil((length-overlap)/(size-overlap)).
func Count(length, size, overlap int) int {
	if length <= 0 {
		return 0
	}
	if length <= size {
		return 1
	}
	step := size - overlap
	return (length - overlap + step - 1) / step
}
