// Package bm25 implements the hand-rolled inverted index and BM25
// scoring used for keyword search. Bleve's scorer (the teacher's
// search engine) is not wired here: spec.md's formula needs per-field
// boosts, recency decay, and pinned/exact-title multipliers applied on
// top of the raw BM25 score, none of which Bleve's scorer exposes, so
// the index and the scoring are built directly against the tokenizer
// instead.
package bm25

import (
	"regexp"
	"strings"
	"unicode"
)

var tokenRegex = regexp.MustCompile(`[a-zA-Z0-9_]+`)

var defaultStopWords = map[string]struct{}{
	"the": {}, "a": {}, "an": {}, "and": {}, "or": {}, "of": {}, "to": {},
	"in": {}, "is": {}, "it": {}, "for": {}, "on": {}, "with": {}, "as": {},
	"by": {}, "at": {}, "this": {}, "that": {}, "be": {}, "are": {}, "was": {},
}

// Tokenize splits text with code-aware rules: split on non-alphanumeric
// boundaries, then on camelCase/snake_case boundaries, lowercase,
// stopword-filter, and keep only tokens of length >= 2.
func Tokenize(text string) []string {
	words := tokenRegex.FindAllString(text, -1)
	tokens := make([]string, 0, len(words))
	for _, word := range words {
		for _, t := range splitCodeToken(word) {
			lower := strings.ToLower(t)
			if len(lower) < 2 {
				continue
			}
			if _, stop := defaultStopWords[lower]; stop {
				continue
			}
			tokens = append(tokens, lower)
		}
	}
	return tokens
}

func splitCodeToken(token string) []string {
	if strings.Contains(token, "_") {
		var result []string
		for _, part := range strings.Split(token, "_") {
			if part != "" {
				result = append(result, splitCamelCase(part)...)
			}
		}
		return result
	}
	return splitCamelCase(token)
}

// splitCamelCase splits camelCase/PascalCase identifiers, keeping runs
// of uppercase letters together (acronyms) as their own token:
// "getUserByID" -> ["get", "User", "By", "ID"].
func splitCamelCase(s string) []string {
	if s == "" {
		return []string{}
	}
	var result []string
	var current strings.Builder
	runes := []rune(s)
	for i, r := range runes {
		if i > 0 && unicode.IsUpper(r) {
			prevLower := unicode.IsLower(runes[i-1])
			nextLower := i+1 < len(runes) && unicode.IsLower(runes[i+1])
			if prevLower || nextLower {
				if current.Len() > 0 {
					result = append(result, current.String())
					current.Reset()
				}
			}
		}
		current.WriteRune(r)
	}
	if current.Len() > 0 {
		result = append(result, current.String())
	}
	return result
}
