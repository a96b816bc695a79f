package indexer

import (
	"strings"
	"unicode"
)

// Preprocess prepares document text for chunking. Control and format characters (NULs
// from PDF extraction, zero-width spaces) are dropped and whitespace runs become one space.
func Preprocess(text string) string {
	cleaned := strings.Map(func(r rune) rune {
		switch {
		case unicode.IsSpace(r):
			return ' '
		case unicode.IsControl(r), unicode.Is(unicode.Cf, r):
			return -1
		}
		return r
	}, text)
	return strings.Join(strings.Fields(cleaned), " ")
}
