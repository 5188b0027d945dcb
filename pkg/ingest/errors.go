package ingest

import (
	"fmt"
	"strings"

	"github.com/Sternrassler/rest-ingest/pkg/client"
)

// maxBodySnippet bounds the response body kept in an HTTPError.
const maxBodySnippet = 512

// HTTPError is a page request answered with a non-2xx status.
type HTTPError struct {
	Page       int
	StatusCode int
	URL        string

	// Body is the start of the response body, at most 512 bytes.
	Body string
}

// Error implements the error interface.
func (e *HTTPError) Error() string {
	msg := fmt.Sprintf("page %d: GET %s: HTTP %d", e.Page, e.URL, e.StatusCode)
	if e.Body != "" {
		msg += ": " + e.Body
	}
	return msg
}

// ErrorClass classifies the status for retry decisions.
func (e *HTTPError) ErrorClass() client.ErrorClass {
	return client.ClassifyStatus(e.StatusCode)
}

// ParseError is a page whose body is not a single JSON document.
type ParseError struct {
	Page int
	URL  string
	Err  error
}

// Error implements the error interface.
func (e *ParseError) Error() string {
	return fmt.Sprintf("page %d: invalid JSON from %s: %v", e.Page, e.URL, e.Err)
}

// Unwrap implements error unwrapping for errors.Is/As.
func (e *ParseError) Unwrap() error {
	return e.Err
}

// ExtractionError is a page whose body has no records at the data path.
// Err is a *pathextract.Error.
type ExtractionError struct {
	Page int
	Path string
	Err  error
}

// Error implements the error interface.
func (e *ExtractionError) Error() string {
	return fmt.Sprintf("page %d: %v", e.Page, e.Err)
}

// Unwrap implements error unwrapping for errors.Is/As.
func (e *ExtractionError) Unwrap() error {
	return e.Err
}

// FetchError is a page request that produced no HTTP response.
type FetchError struct {
	Page int
	URL  string
	Err  error
}

// Error implements the error interface.
func (e *FetchError) Error() string {
	return fmt.Sprintf("page %d: GET %s: %v", e.Page, e.URL, e.Err)
}

// Unwrap implements error unwrapping for errors.Is/As.
func (e *FetchError) Unwrap() error {
	return e.Err
}

// ErrorClass classifies transport failures for retry decisions.
func (e *FetchError) ErrorClass() client.ErrorClass {
	return client.ErrorClassNetwork
}

// snippet returns at most maxBodySnippet bytes of body as valid UTF-8.
func snippet(body []byte) string {
	if len(body) > maxBodySnippet {
		body = body[:maxBodySnippet]
	}
	return strings.ToValidUTF8(strings.TrimSpace(string(body)), "")
}
