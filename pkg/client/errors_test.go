package client

import (
	"errors"
	"fmt"
	"strings"
	"testing"
	"unicode/utf8"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestShouldRetry(t *testing.T) {
	for class, want := range map[ErrorClass]bool{
		ErrorClassClient:    false,
		ErrorClassServer:    true,
		ErrorClassRateLimit: true,
		ErrorClassNetwork:   true,
		"":                  false,
	} {
		assert.Equal(t, want, shouldRetry(class), "class %q", class)
	}
}

func TestAPIError_Error(t *testing.T) {
	withCause := &APIError{
		StatusCode: 500,
		ErrorClass: ErrorClassServer,
		Message:    "Internal Server Error",
		Err:        errors.New("connection reset"),
	}
	assert.EqualError(t, withCause, "evergreen server error (status 500): Internal Server Error: connection reset")

	bare := &APIError{StatusCode: 401, ErrorClass: ErrorClassClient, Message: "401 Unauthorized"}
	assert.EqualError(t, bare, "evergreen client error (status 401): 401 Unauthorized")
}

func TestAPIError_Unwrap(t *testing.T) {
	inner := errors.New("inner")
	err := fmt.Errorf("fetch: %w", &APIError{StatusCode: 502, ErrorClass: ErrorClassServer, Err: inner})

	assert.ErrorIs(t, err, inner)

	var apiErr *APIError
	require.ErrorAs(t, err, &apiErr)
	assert.Equal(t, 502, apiErr.StatusCode)
}

func TestGraphQLError_Error(t *testing.T) {
	tests := []struct {
		messages []string
		want     string
	}{
		{nil, "graphql: unknown error"},
		{[]string{"patch not visible"}, "graphql: patch not visible"},
		{[]string{"a", "b"}, "graphql: a; b"},
	}

	for _, tt := range tests {
		assert.EqualError(t, &GraphQLError{Messages: tt.messages}, tt.want)
	}
}

func TestErrorMessage(t *testing.T) {
	assert.Equal(t, "404 Not Found", errorMessage("404 Not Found", nil))
	assert.Equal(t, "500 Internal Server Error: boom again",
		errorMessage("500 Internal Server Error", []byte("boom\n  again")))
}

func TestErrorMessage_TruncatesOnRuneBoundary(t *testing.T) {
	tests := map[string]string{
		"straddling rune":  strings.Repeat("a", maxMessageBytes-1) + "é tail",
		"three-byte runes": strings.Repeat("€", 200),
		"ascii":            strings.Repeat("x", 1000),
	}

	for name, body := range tests {
		t.Run(name, func(t *testing.T) {
			got := errorMessage("502 Bad Gateway", []byte(body))

			assert.True(t, utf8.ValidString(got), "invalid UTF-8 in %q", got)
			assert.True(t, strings.HasSuffix(got, "..."))

			excerpt := strings.TrimSuffix(strings.TrimPrefix(got, "502 Bad Gateway: "), "...")
			assert.LessOrEqual(t, len(excerpt), maxMessageBytes)
			assert.True(t, strings.HasPrefix(body, excerpt))
		})
	}
}
