package client

import (
	"errors"
	"testing"
)

func TestErrorClass_Retryable(t *testing.T) {
	tests := []struct {
		name       string
		errorClass ErrorClass
		expected   bool
	}{
		{
			name:       "client error should not retry",
			errorClass: ErrorClassClient,
			expected:   false,
		},
		{
			name:       "server error should retry",
			errorClass: ErrorClassServer,
			expected:   true,
		},
		{
			name:       "rate limit should retry",
			errorClass: ErrorClassRateLimit,
			expected:   true,
		},
		{
			name:       "network error should retry",
			errorClass: ErrorClassNetwork,
			expected:   true,
		},
		{
			name:       "empty error class should not retry",
			errorClass: "",
			expected:   false,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := tt.errorClass.Retryable(); got != tt.expected {
				t.Errorf("%q.Retryable() = %v, want %v", tt.errorClass, got, tt.expected)
			}
		})
	}
}

func TestClassifyStatus(t *testing.T) {
	tests := []struct {
		status   int
		expected ErrorClass
	}{
		{200, ""},
		{204, ""},
		{301, ""},
		{400, ErrorClassClient},
		{403, ErrorClassClient},
		{404, ErrorClassClient},
		{429, ErrorClassRateLimit},
		{500, ErrorClassServer},
		{503, ErrorClassServer},
	}

	for _, tt := range tests {
		if got := ClassifyStatus(tt.status); got != tt.expected {
			t.Errorf("ClassifyStatus(%d) = %q, want %q", tt.status, got, tt.expected)
		}
	}
}

func TestRequestError(t *testing.T) {
	cause := errors.New("connection refused")
	err := &RequestError{URL: "http://api.test/items?page=1", Class: ErrorClassNetwork, Err: cause}

	want := "GET http://api.test/items?page=1: network error: connection refused"
	if err.Error() != want {
		t.Errorf("Error() = %q, want %q", err.Error(), want)
	}
	if !errors.Is(err, cause) {
		t.Error("errors.Is should find the wrapped cause")
	}

	var target *RequestError
	if !errors.As(error(err), &target) {
		t.Error("errors.As should match *RequestError")
	}
}
