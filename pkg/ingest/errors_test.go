package ingest

import (
	"context"
	"errors"
	"strings"
	"testing"

	"github.com/Sternrassler/rest-ingest/pkg/client"
	"github.com/Sternrassler/rest-ingest/pkg/pathextract"
	"github.com/Sternrassler/rest-ingest/pkg/retry"
)

func TestErrorMessages(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want string
	}{
		{
			name: "http with body",
			err:  &HTTPError{Page: 2, StatusCode: 503, URL: "https://api.example.com/items?page=2", Body: "maintenance"},
			want: "page 2: GET https://api.example.com/items?page=2: HTTP 503: maintenance",
		},
		{
			name: "http without body",
			err:  &HTTPError{Page: 1, StatusCode: 404, URL: "https://api.example.com/x"},
			want: "page 1: GET https://api.example.com/x: HTTP 404",
		},
		{
			name: "parse",
			err:  &ParseError{Page: 3, URL: "https://api.example.com/items", Err: errors.New("unexpected EOF")},
			want: "page 3: invalid JSON from https://api.example.com/items: unexpected EOF",
		},
		{
			name: "extraction",
			err:  &ExtractionError{Page: 1, Path: "data.items", Err: &pathextract.Error{Path: "data.items", Segment: "items", Reason: "key not found"}},
			want: `page 1: extract "data.items" at segment "items": key not found`,
		},
		{
			name: "fetch",
			err:  &FetchError{Page: 4, URL: "https://api.example.com/items", Err: context.DeadlineExceeded},
			want: "page 4: GET https://api.example.com/items: context deadline exceeded",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := tt.err.Error(); got != tt.want {
				t.Errorf("Error() = %q, want %q", got, tt.want)
			}
		})
	}
}

func TestErrorClassification(t *testing.T) {
	tests := []struct {
		name      string
		err       error
		class     client.ErrorClass
		retryable bool
	}{
		{"server", &HTTPError{StatusCode: 502}, client.ErrorClassServer, true},
		{"rate limited", &HTTPError{StatusCode: 429}, client.ErrorClassRateLimit, true},
		{"client", &HTTPError{StatusCode: 401}, client.ErrorClassClient, false},
		{"network", &FetchError{Err: errors.New("connection reset")}, client.ErrorClassNetwork, true},
		{"parse", &ParseError{Err: errors.New("bad")}, "", false},
		{"extraction", &ExtractionError{Err: errors.New("bad")}, "", false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := retry.ClassOf(tt.err); got != tt.class {
				t.Errorf("ClassOf() = %q, want %q", got, tt.class)
			}
			if got := retry.Retryable(tt.err); got != tt.retryable {
				t.Errorf("Retryable() = %v, want %v", got, tt.retryable)
			}
		})
	}
}

func TestSnippet(t *testing.T) {
	if got := snippet([]byte("  padded \n")); got != "padded" {
		t.Errorf("snippet() = %q", got)
	}

	long := strings.Repeat("é", maxBodySnippet) // 2 bytes per rune
	got := snippet([]byte(long))
	if len(got) > maxBodySnippet {
		t.Errorf("snippet length = %d, want <= %d", len(got), maxBodySnippet)
	}
	if !strings.HasPrefix(long, got) {
		t.Error("snippet is not a prefix of the body")
	}
}
