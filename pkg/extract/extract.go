// Package extract turns uploaded report files (PDF or plain text) into
// the text string the analysis pipeline consumes.
package extract

import (
	"io"
	"mime"
	"net/http"
	"path/filepath"
	"strings"

	"github.com/consilium-health/consilium/pkg/errors"
)

// Document is an uploaded file awaiting extraction.
type Document struct {
	Name   string
	MIME   string
	Size   int64
	Reader io.ReadSeeker
}

// Extractor converts a document of a supported MIME type to text.
type Extractor interface {
	Supports(mime string) bool
	Extract(doc *Document) (string, error)
}

func defaultExtractors() []Extractor {
	// PDF first so PDFs never fall through to the text path.
	return []Extractor{PDFExtractor{}, TextExtractor{}}
}

// Text extracts the report text from doc, detecting the MIME type when
// it is not already set.
func Text(doc *Document) (string, error) {
	if doc.MIME == "" {
		head := make([]byte, 512)
		n, _ := doc.Reader.Read(head)
		if _, err := doc.Reader.Seek(0, io.SeekStart); err != nil {
			return "", errors.New(errors.CodeExtraction, "cannot rewind upload", err)
		}
		doc.MIME = DetectMIME(doc.Name, head[:n])
	}

	for _, ex := range defaultExtractors() {
		if !ex.Supports(doc.MIME) {
			continue
		}
		text, err := ex.Extract(doc)
		if err != nil {
			return "", errors.New(errors.CodeExtraction, "text extraction failed", err).
				WithContext("mime", doc.MIME)
		}
		if strings.TrimSpace(text) == "" {
			return "", errors.New(errors.CodeExtraction, "document contains no extractable text", nil).
				WithContext("mime", doc.MIME)
		}
		return text, nil
	}

	return "", errors.New(errors.CodeExtraction, "unsupported document type", nil).
		WithContext("mime", doc.MIME)
}

// DetectMIME sniffs the MIME type from content, falling back to the
// file extension, then to text for anything that looks like UTF-8.
func DetectMIME(name string, head []byte) string {
	if m := http.DetectContentType(head); m != "application/octet-stream" {
		if i := strings.Index(m, ";"); i > 0 {
			m = m[:i]
		}
		return m
	}
	if ext := strings.ToLower(filepath.Ext(name)); ext != "" {
		if byExt := mime.TypeByExtension(ext); byExt != "" {
			if i := strings.Index(byExt, ";"); i > 0 {
				byExt = byExt[:i]
			}
			return byExt
		}
	}
	return "application/octet-stream"
}
