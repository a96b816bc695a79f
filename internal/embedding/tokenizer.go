package embedding

import (
	"regexp"
	"strings"
)

var tokenPattern = regexp.MustCompile(`[\p{L}\p{N}]+(?:['’][\p{L}]+)*`)

var stopwords = func() map[string]struct{} {
	words := []string{
		"a", "an", "and", "are", "as", "at", "be", "but", "by", "for", "from", "how", "i", "if",
		"in", "into", "is", "it", "its", "of", "on", "or", "so", "that", "the", "their", "then",
		"there", "these", "they", "this", "to", "via", "was", "were", "what", "when", "where",
		"which", "who", "will", "with", "you", "your",
	}
	m := make(map[string]struct{}, len(words))
	for _, w := range words {
		m[w] = struct{}{}
	}
	return m
}()

// Tokenize lowercases text and returns its word tokens without stop words.
func Tokenize(text string) []string {
	raw := tokenPattern.FindAllString(strings.ToLower(text), -1)
	tokens := raw[:0]
	for _, tok := range raw {
		if _, stop := stopwords[tok]; stop {
			continue
		}
		tokens = append(tokens, tok)
	}
	return tokens
}
