package bm25

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestTokenizeSplitsCamelAndSnakeCase(t *testing.T) {
	tokens := Tokenize("getUserByID parse_http_request HTTPHandler")
	require.Contains(t, tokens, "get")
	require.Contains(t, tokens, "user")
	require.Contains(t, tokens, "by")
	require.Contains(t, tokens, "id")
	require.Contains(t, tokens, "parse")
	require.Contains(t, tokens, "http")
	require.Contains(t, tokens, "request")
	require.Contains(t, tokens, "handler")
}

func TestTokenizeFiltersShortTokensAndStopWords(t *testing.T) {
	tokens := Tokenize("a the of go is fun")
	require.NotContains(t, tokens, "a")
	require.NotContains(t, tokens, "the")
	require.NotContains(t, tokens, "of")
	require.NotContains(t, tokens, "is")
	require.Contains(t, tokens, "go")
	require.Contains(t, tokens, "fun")
}

func TestTokenizeLowercases(t *testing.T) {
	tokens := Tokenize("RetryableError")
	for _, tok := range tokens {
		require.Equal(t, strings.ToLower(tok), tok)
	}
	require.Contains(t, tokens, "retryable")
	require.Contains(t, tokens, "error")
}

func TestTokenizeEmptyInput(t *testing.T) {
	require.Empty(t, Tokenize(""))
	require.Empty(t, Tokenize("   "))
}
