package middleware

import (
	"bytes"
	"fmt"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/paperlens/paperlens/internal/domain/analysis"
	"github.com/paperlens/paperlens/internal/domain/document"
)

// Input validation and sanitization utilities

// MaxUploadBytes caps the accepted paper size (50 MiB).
const MaxUploadBytes = 50 << 20

var pdfMagic = []byte("%PDF-")

// ValidatePDFUpload checks declared content type, extension and the file
// magic so non-PDF drops are rejected with a clear message before any
// session state is touched.
func ValidatePDFUpload(filename, contentType string, data []byte) error {
	if len(data) == 0 {
		return fmt.Errorf("uploaded file is empty")
	}
	if len(data) > MaxUploadBytes {
		return fmt.Errorf("uploaded file exceeds %d MB limit", MaxUploadBytes>>20)
	}

	if contentType != "" {
		base := strings.ToLower(strings.TrimSpace(strings.Split(contentType, ";")[0]))
		if base != "application/pdf" && base != "application/octet-stream" {
			return fmt.Errorf("only PDF files are accepted (got %s)", base)
		}
	}

	if ext := strings.ToLower(filepath.Ext(filename)); ext != "" && ext != ".pdf" {
		return fmt.Errorf("only PDF files are accepted (got %s)", ext)
	}

	if !bytes.HasPrefix(data, pdfMagic) {
		return fmt.Errorf("file does not look like a PDF")
	}
	return nil
}

// ValidatePageNumber parses a digits-only page entry. The range check
// against the document happens later, where the page count is known.
func ValidatePageNumber(raw string) (int, error) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return 0, fmt.Errorf("page number is required")
	}
	for _, r := range raw {
		if r < '0' || r > '9' {
			return 0, fmt.Errorf("page number must contain digits only")
		}
	}
	page, err := strconv.Atoi(raw)
	if err != nil || page < 1 {
		return 0, fmt.Errorf("invalid page number: %s", raw)
	}
	return page, nil
}

// ValidateZoom parses the zoom parameter and clamps it into the allowed
// range. An empty value means the default scale.
func ValidateZoom(raw string) (float64, error) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return 1.0, nil
	}
	z, err := strconv.ParseFloat(raw, 64)
	if err != nil {
		return 0, fmt.Errorf("invalid zoom: %s", raw)
	}
	return document.ClampZoom(z), nil
}

// ValidateLanguage checks the two-way toggle value
func ValidateLanguage(raw string) (analysis.Language, error) {
	lang := analysis.Language(strings.ToLower(strings.TrimSpace(raw)))
	if !lang.Valid() {
		return "", fmt.Errorf("invalid language: %s (allowed: source, target)", raw)
	}
	return lang, nil
}

// SanitizeFilename strips any path components from a user-supplied name
func SanitizeFilename(name string) string {
	name = filepath.Base(strings.TrimSpace(name))
	if name == "." || name == string(filepath.Separator) || name == "" {
		return "paper.pdf"
	}
	return name
}
