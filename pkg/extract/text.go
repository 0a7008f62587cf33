package extract

import (
	"io"
	"strings"
)

// TextExtractor implements Extractor for plain-text uploads.
type TextExtractor struct{}

func (TextExtractor) Supports(m string) bool {
	return strings.HasPrefix(m, "text/") ||
		m == "application/json" ||
		m == "application/xml"
}

func (TextExtractor) Extract(doc *Document) (string, error) {
	raw, err := io.ReadAll(doc.Reader)
	if err != nil {
		return "", err
	}
	// Normalize line endings.
	return strings.ReplaceAll(string(raw), "\r\n", "\n"), nil
}
