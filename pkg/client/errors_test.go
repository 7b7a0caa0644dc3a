package client

import (
	"errors"
	"testing"
)

func TestClassifyStatus(t *testing.T) {
	tests := []struct {
		name     string
		status   int
		expected ErrorClass
	}{
		{"success 200", 200, ""},
		{"bad request 400", 400, ErrorClassClient},
		{"forbidden 403", 403, ErrorClassClient},
		{"throttled 429", 429, ErrorClassRateLimit},
		{"server error 500", 500, ErrorClassServer},
		{"unavailable 503", 503, ErrorClassServer},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := classifyStatus(tt.status); got != tt.expected {
				t.Errorf("classifyStatus(%d) = %q, want %q", tt.status, got, tt.expected)
			}
		})
	}
}

func TestAPIError_Error(t *testing.T) {
	tests := []struct {
		name     string
		apiError *APIError
		expected string
	}{
		{
			name: "error with wrapped error",
			apiError: &APIError{
				StatusCode: 500,
				ErrorClass: ErrorClassServer,
				Message:    "internal server error",
				Err:        errors.New("connection reset"),
			},
			expected: "socrata server error (status 500): internal server error: connection reset",
		},
		{
			name: "error without wrapped error",
			apiError: &APIError{
				StatusCode: 404,
				ErrorClass: ErrorClassClient,
				Message:    "not found",
			},
			expected: "socrata client error (status 404): not found",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := tt.apiError.Error(); got != tt.expected {
				t.Errorf("Error() = %q, want %q", got, tt.expected)
			}
		})
	}
}

func TestAPIError_Unwrap(t *testing.T) {
	inner := errors.New("dial tcp: connection refused")
	err := &APIError{ErrorClass: ErrorClassNetwork, Err: inner}

	if !errors.Is(err, inner) {
		t.Error("errors.Is should find the wrapped error")
	}

	var target *APIError
	if !errors.As(error(err), &target) {
		t.Error("errors.As should match *APIError")
	}
}

func TestErrorMessage(t *testing.T) {
	tests := []struct {
		name   string
		body   string
		expect string
	}{
		{"message and code", `{"code":"throttled","message":"slow down"}`, "throttled: slow down"},
		{"message only", `{"error":true,"message":"bad"}`, "bad"},
		{"not json", `<html>oops</html>`, "502 Bad Gateway"},
		{"empty", ``, "502 Bad Gateway"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := errorMessage("502 Bad Gateway", []byte(tt.body)); got != tt.expect {
				t.Errorf("errorMessage() = %q, want %q", got, tt.expect)
			}
		})
	}
}
