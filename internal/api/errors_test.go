package api

import (
	"errors"
	"fmt"
	"testing"
)

func TestAPIError_Error(t *testing.T) {
	tests := []struct {
		name     string
		err      *APIError
		expected string
	}{
		{"with message", &APIError{StatusCode: 401, Message: "Permission denied"}, "API error 401: Permission denied"},
		{"without message", &APIError{StatusCode: 500}, "API error 500"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if result := tt.err.Error(); result != tt.expected {
				t.Errorf("Error() = %s, want %s", result, tt.expected)
			}
		})
	}
}

func TestAPIError_Is(t *testing.T) {
	tests := []struct {
		name       string
		statusCode int
		target     error
		expected   bool
	}{
		{"401 matches ErrUnauthorized", 401, ErrUnauthorized, true},
		{"403 matches ErrUnauthorized", 403, ErrUnauthorized, true},
		{"404 matches ErrNotFound", 404, ErrNotFound, true},
		{"429 matches ErrRateLimited", 429, ErrRateLimited, true},
		{"500 does not match ErrUnauthorized", 500, ErrUnauthorized, false},
		{"401 does not match ErrNotFound", 401, ErrNotFound, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := fmt.Errorf("wrapped: %w", &APIError{StatusCode: tt.statusCode})
			if got := errors.Is(err, tt.target); got != tt.expected {
				t.Errorf("errors.Is() = %v, want %v", got, tt.expected)
			}
		})
	}
}

func TestNetworkError_Unwrap(t *testing.T) {
	inner := errors.New("connection refused")
	err := &NetworkError{Err: inner, URL: "https://db.example.com/x.json", Attempt: 2}

	if !errors.Is(err, inner) {
		t.Error("errors.Is() = false for wrapped cause")
	}
	if err.Error() != "network error: connection refused" {
		t.Errorf("Error() = %s", err.Error())
	}
}

func TestRedact(t *testing.T) {
	if got := redact("https://db/x.json?auth=secret"); got != "https://db/x.json" {
		t.Errorf("redact() = %s", got)
	}
	if got := redact("https://db/x.json"); got != "https://db/x.json" {
		t.Errorf("redact() = %s", got)
	}
}
