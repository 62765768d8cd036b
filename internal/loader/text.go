package loader

import (
	"strings"
)

// TextLoader reads UTF-8 text. Invalid byte sequences become U+FFFD.
type TextLoader struct{}

func (TextLoader) Load(data []byte) (string, error) {
	return decodeText(data), nil
}

// decodeText drops a UTF-8 BOM, repairs invalid sequences and normalizes
// line endings.
func decodeText(data []byte) string {
	s := strings.TrimPrefix(string(data), "\uFEFF")
	s = strings.ToValidUTF8(s, "\uFFFD")
	s = strings.ReplaceAll(s, "\r\n", "\n")
	return strings.ReplaceAll(s, "\r", "\n")
}
