// Package textutil holds the tokenizer shared by the offline backends.
package textutil

import (
	"regexp"
	"strings"
	"unicode"
)

var wordPattern = regexp.MustCompile(`[\p{L}_][\p{L}\p{N}_]*(?:['’]\p{L}+)*`)

var stopwords = func() map[string]struct{} {
	words := []string{
		"a", "an", "the", "and", "or", "but", "if", "then", "else", "for", "to", "of", "in", "on", "at", "by", "with", "as", "is", "are", "was", "were", "be", "been", "being", "it", "this", "that", "these", "those", "from", "up", "down", "over", "under", "again", "further", "than", "so", "such", "into", "about", "between", "through", "during", "before", "after", "above", "below", "out", "off", "own", "same", "too", "very", "can", "will", "just", "don", "should", "now",
		"what", "which", "who", "how", "does", "do", "did", "where", "why", "when",
	}
	m := make(map[string]struct{}, len(words))
	for _, w := range words {
		m[w] = struct{}{}
	}
	return m
}()

// IsStopword reports whether tok carries no retrieval signal.
func IsStopword(tok string) bool {
	_, ok := stopwords[tok]
	return ok
}

// Tokens lowercases text and returns its words with stopwords removed.
// Identifiers are also split on camelCase and snake_case boundaries, so
// "parseConfigFile" yields "parseconfigfile", "parse", "config", "file".
func Tokens(text string) []string {
	raw := wordPattern.FindAllString(text, -1)
	out := make([]string, 0, len(raw))
	for _, w := range raw {
		parts := splitIdentifier(w)
		whole := strings.ToLower(w)
		if !IsStopword(whole) {
			out = append(out, whole)
		}
		if len(parts) < 2 {
			continue
		}
		for _, p := range parts {
			if len(p) > 1 && !IsStopword(p) {
				out = append(out, p)
			}
		}
	}
	return out
}

func splitIdentifier(w string) []string {
	var parts []string
	var cur []rune
	flush := func() {
		if len(cur) > 0 {
			parts = append(parts, strings.ToLower(string(cur)))
			cur = cur[:0]
		}
	}
	runes := []rune(w)
	for i, r := range runes {
		switch {
		case r == '_':
			flush()
			continue
		case unicode.IsUpper(r) && i > 0 && (unicode.IsLower(runes[i-1]) ||
			(i+1 < len(runes) && unicode.IsLower(runes[i+1]) && unicode.IsUpper(runes[i-1]))):
			flush()
		}
		cur = append(cur, r)
	}
	flush()
	return parts
}
