package extract

import (
	"fmt"
	"os"
	"strings"

	"github.com/lu4p/cat"
)

// extractWithCat reads ODT and RTF files, which cat parses natively.
func extractWithCat(path string) (string, error) {
	text, err := cat.File(path)
	if err != nil {
		return "", fmt.Errorf("read document: %w", err)
	}
	return strings.TrimSpace(text), nil
}

// extractBytesWithCat spills content to a temporary file; cat dispatches on the file name.
func extractBytesWithCat(content []byte, ext string) (string, error) {
	f, err := os.CreateTemp("", "extract-*"+ext)
	if err != nil {
		return "", fmt.Errorf("create temp file: %w", err)
	}
	defer os.Remove(f.Name())
	if _, err := f.Write(content); err != nil {
		_ = f.Close()
		return "", fmt.Errorf("write temp file: %w", err)
	}
	if err := f.Close(); err != nil {
		return "", fmt.Errorf("write temp file: %w", err)
	}
	return extractWithCat(f.Name())
}
