package service

import (
	"strings"

	"serpgap/internal/apify"
	"serpgap/internal/domain"
)

// FailureKind is the normalized classification of a remote failure.
type FailureKind string

const (
	FailureRateLimited FailureKind = "rate_limited"
	FailureInvalidKey  FailureKind = "invalid_key"
	FailureNotFound    FailureKind = "not_found"
	FailureGeneric     FailureKind = "generic"
)

// CredentialStatus maps a failure kind to the credential status it demotes to.
// Only quota/rate exhaustion maps to rate_limited; everything else is failed.
func (k FailureKind) CredentialStatus() domain.CredentialStatus {
	if k == FailureRateLimited {
		return domain.CredentialStatusRateLimited
	}
	return domain.CredentialStatusFailed
}

// rate-exhaustion and auth keyword sets for the message heuristics. Matching
// upstream error text by substring is brittle by construction; status codes are
// preferred whenever the client observed one.
var (
	rateLimitKeywords  = []string{"rate", "credit", "429", "quota"}
	invalidKeyKeywords = []string{"invalid api key", "401", "unauthorized"}
	notFoundKeywords   = []string{"404", "actor not found"}
)

// ClassifyFailure classifies a remote job error for credential bookkeeping.
// Classification prefers the upstream HTTP status code when the job error
// carries one, and falls back to case-insensitive substring heuristics over the
// opaque upstream message. Unclassified failures are FailureGeneric.
// Parameters:
//   - err: error returned by the remote job client.
// Returns:
//   - FailureKind: normalized classification.
func ClassifyFailure(err error) FailureKind {
	if err == nil {
		return FailureGeneric
	}

	if je, ok := apify.AsJobError(err); ok {
		switch je.StatusCode {
		case 429:
			return FailureRateLimited
		case 401, 403:
			return FailureInvalidKey
		case 404:
			return FailureNotFound
		}
	}

	msg := strings.ToLower(err.Error())
	for _, kw := range rateLimitKeywords {
		if strings.Contains(msg, kw) {
			return FailureRateLimited
		}
	}
	for _, kw := range invalidKeyKeywords {
		if strings.Contains(msg, kw) {
			return FailureInvalidKey
		}
	}
	for _, kw := range notFoundKeywords {
		if strings.Contains(msg, kw) {
			return FailureNotFound
		}
	}
	return FailureGeneric
}
