package pdftext

import (
	"bytes"
	"fmt"
	"strings"

	"github.com/ledongthuc/pdf"
)

// maxChars keeps the extracted text within a bounded prompt size. Long
// papers are truncated from the end; the front matter carries the signal.
const maxChars = 180_000

// Extract pulls the plain text out of a PDF held in memory. Pages that fail
// to decode are skipped rather than failing the whole document.
func Extract(data []byte) (string, error) {
	r, err := pdf.NewReader(bytes.NewReader(data), int64(len(data)))
	if err != nil {
		return "", fmt.Errorf("open pdf for text extraction: %w", err)
	}

	var sb strings.Builder
	for i := 1; i <= r.NumPage(); i++ {
		page := r.Page(i)
		if page.V.IsNull() {
			continue
		}
		content, err := page.GetPlainText(nil)
		if err != nil {
			continue
		}
		sb.WriteString(content)
		sb.WriteString("\n")
		if sb.Len() > maxChars {
			break
		}
	}

	text := sb.String()
	if len(text) > maxChars {
		text = text[:maxChars]
	}
	if strings.TrimSpace(text) == "" {
		return "", fmt.Errorf("pdf contains no extractable text")
	}
	return text, nil
}
