// Package extract converts document files into plain text for upload.
package extract

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/hyperjump/retriever/internal/models"
)

// Metadata keys set by Load.
const (
	MetaSource = "source"
	MetaFormat = "format"
)

// Extractor extracts plain text from document files.
type Extractor struct{}

// NewExtractor returns a new Extractor.
func NewExtractor() *Extractor {
	return &Extractor{}
}

// Supported reports whether ext (with leading dot) has a dedicated extractor.
func Supported(ext string) bool {
	switch strings.ToLower(ext) {
	case ".pdf", ".docx", ".odt", ".rtf", ".xlsx", ".txt", ".md", ".rst":
		return true
	}
	return false
}

// Extract reads the file at path and returns its text content.
func (e *Extractor) Extract(path string) (string, error) {
	ext := strings.ToLower(filepath.Ext(path))
	if ext == ".odt" || ext == ".rtf" {
		return extractWithCat(path)
	}
	content, err := os.ReadFile(path)
	if err != nil {
		return "", fmt.Errorf("read file: %w", err)
	}
	return e.ExtractBytes(content, ext)
}

// ExtractBytes extracts text from content based on the given extension, which includes
// the leading dot. Unknown extensions are read as plain text.
func (e *Extractor) ExtractBytes(content []byte, ext string) (string, error) {
	switch strings.ToLower(ext) {
	case ".pdf":
		return extractPDF(content)
	case ".docx":
		return extractDOCX(content)
	case ".odt", ".rtf":
		return extractBytesWithCat(content, ext)
	case ".xlsx":
		return extractExcel(content)
	default:
		return extractPlain(content)
	}
}

// Load extracts the file at path into an ingest request titled after the file name.
func (e *Extractor) Load(path string) (*models.IngestRequest, error) {
	text, err := e.Extract(path)
	if err != nil {
		return nil, fmt.Errorf("extract %s: %w", path, err)
	}
	if strings.TrimSpace(text) == "" {
		return nil, fmt.Errorf("extract %s: no text found", path)
	}
	base := filepath.Base(path)
	return &models.IngestRequest{
		Title: strings.TrimSuffix(base, filepath.Ext(base)),
		Text:  text,
		Metadata: models.Metadata{
			MetaSource: base,
			MetaFormat: strings.TrimPrefix(strings.ToLower(filepath.Ext(base)), "."),
		},
	}, nil
}
