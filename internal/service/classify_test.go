package service

import (
	"errors"
	"testing"

	"serpgap/internal/apify"
	"serpgap/internal/domain"
)

func TestClassifyFailure_StatusCode(t *testing.T) {
	tests := []struct {
		name     string
		code     int
		expected FailureKind
	}{
		{name: "429 is rate limited", code: 429, expected: FailureRateLimited},
		{name: "401 is invalid key", code: 401, expected: FailureInvalidKey},
		{name: "403 is invalid key", code: 403, expected: FailureInvalidKey},
		{name: "404 is not found", code: 404, expected: FailureNotFound},
		{name: "500 falls through to message", code: 500, expected: FailureGeneric},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := &apify.JobError{
				Kind:       apify.KindSubmission,
				Op:         "submit run",
				StatusCode: tt.code,
				Message:    "upstream rejected the request",
			}
			if kind := ClassifyFailure(err); kind != tt.expected {
				t.Errorf("expected %s for status %d, got %s", tt.expected, tt.code, kind)
			}
		})
	}
}

func TestClassifyFailure_MessageHeuristics(t *testing.T) {
	tests := []struct {
		name     string
		message  string
		expected FailureKind
	}{
		{name: "credit exhaustion", message: "Monthly credit limit reached", expected: FailureRateLimited},
		{name: "quota wording", message: "usage quota exceeded for this account", expected: FailureRateLimited},
		{name: "invalid key wording", message: "Invalid API key provided", expected: FailureInvalidKey},
		{name: "unauthorized wording", message: "request unauthorized", expected: FailureInvalidKey},
		{name: "actor missing", message: "Actor not found in the store", expected: FailureNotFound},
		{name: "opaque failure", message: "something went wrong", expected: FailureGeneric},
		// "rate" appears before any auth wording is checked
		{name: "rate wins over unauthorized", message: "rate limited: unauthorized", expected: FailureRateLimited},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if kind := ClassifyFailure(errors.New(tt.message)); kind != tt.expected {
				t.Errorf("expected %s for %q, got %s", tt.expected, tt.message, kind)
			}
		})
	}
}

func TestClassifyFailure_StatusCodeBeatsMessage(t *testing.T) {
	// A 429 with auth-sounding text is still rate limited
	err := &apify.JobError{
		Kind:       apify.KindSubmission,
		Op:         "submit run",
		StatusCode: 429,
		Message:    "unauthorized burst detected",
	}
	if kind := ClassifyFailure(err); kind != FailureRateLimited {
		t.Errorf("expected rate_limited from status code, got %s", kind)
	}
}

func TestFailureKind_CredentialStatus(t *testing.T) {
	if got := FailureRateLimited.CredentialStatus(); got != domain.CredentialStatusRateLimited {
		t.Errorf("expected rate_limited status, got %s", got)
	}
	for _, kind := range []FailureKind{FailureInvalidKey, FailureNotFound, FailureGeneric} {
		if got := kind.CredentialStatus(); got != domain.CredentialStatusFailed {
			t.Errorf("expected failed status for %s, got %s", kind, got)
		}
	}
}
