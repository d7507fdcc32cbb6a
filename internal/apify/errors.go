package apify

import (
	"errors"
	"fmt"
)

// ErrorKind identifies where in the run/poll/dataset protocol a job failed.
type ErrorKind string

const (
	// KindSubmission: the initiating call did not return HTTP success or no run ID.
	KindSubmission ErrorKind = "submission_error"
	// KindJobTimeout: the status poll budget was exhausted before a terminal state.
	KindJobTimeout ErrorKind = "job_timeout"
	// KindJobFailed: the upstream reported a terminal failure state.
	KindJobFailed ErrorKind = "job_failed"
	// KindMissingDataset: the succeeded run carried no output dataset ID.
	KindMissingDataset ErrorKind = "missing_dataset"
	// KindEmptyDataset: the dataset never returned a non-empty collection.
	KindEmptyDataset ErrorKind = "empty_dataset"
	// KindUnexpectedShape: the dataset payload matched none of the recognized shapes.
	KindUnexpectedShape ErrorKind = "unexpected_shape"
)

// JobError is the error surfaced to the orchestrator for any remote job failure.
// StatusCode carries the upstream HTTP status when one was observed (0 otherwise)
// so that failure classification can prefer codes over message heuristics.
type JobError struct {
	Kind       ErrorKind
	Op         string // "serp" or "metrics"
	StatusCode int
	Message    string
}

// Error implements the error interface.
func (e *JobError) Error() string {
	if e.StatusCode != 0 {
		return fmt.Sprintf("apify %s job: %s (HTTP %d): %s", e.Op, e.Kind, e.StatusCode, e.Message)
	}
	return fmt.Sprintf("apify %s job: %s: %s", e.Op, e.Kind, e.Message)
}

// AsJobError unwraps err into a *JobError if possible.
// Parameters:
//   - err: error to inspect.
// Returns:
//   - *JobError: the job error, or nil.
//   - bool: true if err wraps a *JobError.
func AsJobError(err error) (*JobError, bool) {
	var je *JobError
	if errors.As(err, &je) {
		return je, true
	}
	return nil, false
}
