package extract

import (
	"bytes"
	"io"
	"strings"

	"github.com/ledongthuc/pdf"
)

// PDFExtractor implements Extractor for application/pdf.
type PDFExtractor struct{}

func (PDFExtractor) Supports(m string) bool {
	return strings.EqualFold(m, "application/pdf")
}

func (PDFExtractor) Extract(doc *Document) (string, error) {
	// The PDF reader needs an io.ReaderAt with a known size.
	var ra io.ReaderAt
	size := doc.Size
	if r, ok := doc.Reader.(io.ReaderAt); ok && size > 0 {
		ra = r
	} else {
		if _, err := doc.Reader.Seek(0, io.SeekStart); err != nil {
			return "", err
		}
		buf, err := io.ReadAll(doc.Reader)
		if err != nil {
			return "", err
		}
		ra = bytes.NewReader(buf)
		size = int64(len(buf))
	}

	rdr, err := pdf.NewReader(ra, size)
	if err != nil {
		return "", err
	}

	var pages []string
	for i := 1; i <= rdr.NumPage(); i++ {
		pg := rdr.Page(i)
		txt, err := pg.GetPlainText(nil)
		if err != nil {
			// Image-only or problematic page, skip it.
			continue
		}
		if s := strings.TrimSpace(txt); s != "" {
			pages = append(pages, s)
		}
	}

	return strings.Join(pages, "\n\n"), nil
}
