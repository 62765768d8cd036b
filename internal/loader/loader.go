// Package loader extracts plain text from document bytes. The set of
// formats is closed: pdf, text and markdown, each with its own Loader.
package loader

import (
	"errors"
	"fmt"
	"path/filepath"
	"strings"

	"github.com/gabriel-vasile/mimetype"
	"golang.org/x/text/unicode/norm"
)

// Format tags the encoding of a document's bytes.
type Format string

const (
	PDF      Format = "pdf"
	Text     Format = "text"
	Markdown Format = "markdown"
)

// ErrUnsupportedFormat is returned for formats outside {pdf, text, markdown}.
var ErrUnsupportedFormat = errors.New("unsupported document format")

// Formats lists every supported format.
func Formats() []Format { return []Format{PDF, Text, Markdown} }

// ParseFormat accepts a format tag or a common alias ("txt", "md").
func ParseFormat(s string) (Format, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "pdf":
		return PDF, nil
	case "text", "txt", "plain":
		return Text, nil
	case "markdown", "md":
		return Markdown, nil
	default:
		return "", fmt.Errorf("%w: %q", ErrUnsupportedFormat, s)
	}
}

// FormatFromPath maps a file extension to its Format.
func FormatFromPath(path string) (Format, error) {
	switch strings.ToLower(filepath.Ext(path)) {
	case ".pdf":
		return PDF, nil
	case ".txt", ".text":
		return Text, nil
	case ".md", ".markdown":
		return Markdown, nil
	default:
		return "", fmt.Errorf("%w: %s", ErrUnsupportedFormat, filepath.Base(path))
	}
}

// Detect picks the format from the file name, falling back to sniffing the
// content when the name has no known extension.
func Detect(name string, data []byte) (Format, error) {
	if f, err := FormatFromPath(name); err == nil {
		return f, nil
	}
	mt := mimetype.Detect(data)
	switch {
	case mt.Is("application/pdf"):
		return PDF, nil
	case mt.Is("text/markdown"):
		return Markdown, nil
	case mt.Is("text/plain"):
		return Text, nil
	default:
		return "", fmt.Errorf("%w: %s (%s)", ErrUnsupportedFormat, name, mt.String())
	}
}

// Loader extracts text from one format.
type Loader interface {
	Load(data []byte) (string, error)
}

// For returns the Loader for f.
func For(f Format) (Loader, error) {
	switch f {
	case PDF:
		return PDFLoader{}, nil
	case Text:
		return TextLoader{}, nil
	case Markdown:
		return MarkdownLoader{}, nil
	default:
		return nil, fmt.Errorf("%w: %q", ErrUnsupportedFormat, f)
	}
}

// Load extracts text from data with the loader for f. The result is NFC
// normalized and trimmed; it may be empty.
func Load(f Format, data []byte) (string, error) {
	l, err := For(f)
	if err != nil {
		return "", err
	}
	text, err := l.Load(data)
	if err != nil {
		return "", fmt.Errorf("loading %s: %w", f, err)
	}
	return strings.TrimSpace(norm.NFC.String(text)), nil
}
