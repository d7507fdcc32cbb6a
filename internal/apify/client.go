package apify

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/go-resty/resty/v2"

	"serpgap/internal/logger"
)

// Config holds client configuration for the actor-based job API.
// The upstream is eventually consistent: a succeeded run does not guarantee the
// dataset is immediately readable, hence the settle delay before dataset polling.
type Config struct {
	BaseURL            string
	SerpActorID        string
	MetricsActorID     string
	PollInterval       time.Duration // between run status polls
	MaxPollAttempts    int           // status poll budget
	DatasetSettleDelay time.Duration // unconditional wait before the first dataset poll
	MaxDatasetAttempts int           // dataset poll budget
	RequestTimeout     time.Duration // per-HTTP-call timeout
}

// applyDefaults fills zero-valued fields with production defaults.
func (c *Config) applyDefaults() {
	if c.BaseURL == "" {
		c.BaseURL = "https://api.apify.com"
	}
	if c.PollInterval <= 0 {
		c.PollInterval = 5 * time.Second
	}
	if c.MaxPollAttempts <= 0 {
		c.MaxPollAttempts = 60
	}
	if c.DatasetSettleDelay <= 0 {
		c.DatasetSettleDelay = 20 * time.Second
	}
	if c.MaxDatasetAttempts <= 0 {
		c.MaxDatasetAttempts = 60
	}
	if c.RequestTimeout <= 0 {
		c.RequestTimeout = 30 * time.Second
	}
}

// Client executes asynchronous actor jobs: submit run, poll run status, fetch
// the output dataset. Credentials are supplied per call, not per client, so a
// single client serves the whole credential pool.
type Client struct {
	http *resty.Client
	cfg  Config
}

// NewClient creates a new actor API client.
// Parameters:
//   - cfg: client configuration; zero-valued fields get defaults.
// Returns:
//   - *Client: initialized client.
func NewClient(cfg Config) *Client {
	cfg.applyDefaults()

	client := resty.New()
	client.SetBaseURL(cfg.BaseURL)
	client.SetHeader("Content-Type", "application/json")
	client.SetTimeout(cfg.RequestTimeout)

	return &Client{
		http: client,
		cfg:  cfg,
	}
}

// runResponse is the envelope returned by run submission and run status calls.
type runResponse struct {
	Data struct {
		ID               string `json:"id"`
		Status           string `json:"status"`
		DefaultDatasetID string `json:"defaultDatasetId"`
	} `json:"data"`
	Error *struct {
		Type    string `json:"type"`
		Message string `json:"message"`
	} `json:"error,omitempty"`
}

// upstreamMessage extracts the upstream error message, falling back to the raw body.
func (r *runResponse) upstreamMessage(body []byte) string {
	if r.Error != nil && r.Error.Message != "" {
		return r.Error.Message
	}
	return string(body)
}

// terminal run statuses per the actor run lifecycle.
const (
	runStatusSucceeded = "SUCCEEDED"
	runStatusFailed    = "FAILED"
	runStatusAborted   = "ABORTED"
	runStatusTimedOut  = "TIMED-OUT"
)

// runActor drives one full job: submit, poll status, settle, fetch dataset items.
// Parameters:
//   - ctx: context for cancellation.
//   - token: third-party API token for this attempt.
//   - actorID: actor to run.
//   - input: actor input payload.
//   - op: operation label for errors ("serp" or "metrics").
// Returns:
//   - []json.RawMessage: raw dataset items (non-empty).
//   - error: *JobError on any protocol failure, context error on cancellation.
func (c *Client) runActor(ctx context.Context, token, actorID string, input interface{}, op string) ([]json.RawMessage, error) {
	// Phase 1: submit the run
	var submitted runResponse
	resp, err := c.http.R().
		SetContext(ctx).
		SetQueryParam("token", token).
		SetBody(input).
		SetResult(&submitted).
		SetError(&submitted).
		Post(fmt.Sprintf("/v2/acts/%s/runs", actorID))
	if err != nil {
		return nil, &JobError{Kind: KindSubmission, Op: op, Message: err.Error()}
	}
	if !resp.IsSuccess() {
		return nil, &JobError{
			Kind:       KindSubmission,
			Op:         op,
			StatusCode: resp.StatusCode(),
			Message:    submitted.upstreamMessage(resp.Body()),
		}
	}
	if submitted.Data.ID == "" {
		return nil, &JobError{Kind: KindSubmission, Op: op, Message: "run submission returned no run ID"}
	}

	runID := submitted.Data.ID
	ctx = logger.SetRunID(ctx, runID)
	logger.CtxDebug(ctx, "Actor run submitted: op=%s, actor=%s", op, actorID)

	// Phase 2: poll run status until terminal
	datasetID := submitted.Data.DefaultDatasetID
	status := submitted.Data.Status
	for attempt := 0; status != runStatusSucceeded; attempt++ {
		if attempt >= c.cfg.MaxPollAttempts {
			return nil, &JobError{
				Kind:    KindJobTimeout,
				Op:      op,
				Message: fmt.Sprintf("run %s still %s after %d polls", runID, status, attempt),
			}
		}
		if err := sleepCtx(ctx, c.cfg.PollInterval); err != nil {
			return nil, err
		}

		var polled runResponse
		resp, err := c.http.R().
			SetContext(ctx).
			SetQueryParam("token", token).
			SetResult(&polled).
			SetError(&polled).
			Get(fmt.Sprintf("/v2/actor-runs/%s", runID))
		if err != nil {
			return nil, &JobError{Kind: KindJobFailed, Op: op, Message: err.Error()}
		}
		if !resp.IsSuccess() {
			return nil, &JobError{
				Kind:       KindJobFailed,
				Op:         op,
				StatusCode: resp.StatusCode(),
				Message:    polled.upstreamMessage(resp.Body()),
			}
		}

		status = polled.Data.Status
		if polled.Data.DefaultDatasetID != "" {
			datasetID = polled.Data.DefaultDatasetID
		}

		switch status {
		case runStatusFailed, runStatusAborted, runStatusTimedOut:
			return nil, &JobError{
				Kind:    KindJobFailed,
				Op:      op,
				Message: fmt.Sprintf("run %s finished with status %s", runID, status),
			}
		}
	}

	// Phase 3: resolve the output dataset
	if datasetID == "" {
		return nil, &JobError{
			Kind:    KindMissingDataset,
			Op:      op,
			Message: fmt.Sprintf("run %s succeeded without a default dataset", runID),
		}
	}

	// Phase 4: settle, then poll the dataset until it is non-empty
	if err := sleepCtx(ctx, c.cfg.DatasetSettleDelay); err != nil {
		return nil, err
	}

	for attempt := 0; attempt < c.cfg.MaxDatasetAttempts; attempt++ {
		if attempt > 0 {
			if err := sleepCtx(ctx, c.cfg.PollInterval); err != nil {
				return nil, err
			}
		}

		var items []json.RawMessage
		resp, err := c.http.R().
			SetContext(ctx).
			SetQueryParam("token", token).
			SetResult(&items).
			Get(fmt.Sprintf("/v2/datasets/%s/items", datasetID))
		if err != nil {
			return nil, &JobError{Kind: KindEmptyDataset, Op: op, Message: err.Error()}
		}
		if !resp.IsSuccess() {
			return nil, &JobError{
				Kind:       KindEmptyDataset,
				Op:         op,
				StatusCode: resp.StatusCode(),
				Message:    string(resp.Body()),
			}
		}
		if len(items) > 0 {
			return items, nil
		}
		logger.CtxDebug(ctx, "Dataset still empty: op=%s, dataset=%s, attempt=%d", op, datasetID, attempt+1)
	}

	return nil, &JobError{
		Kind:    KindEmptyDataset,
		Op:      op,
		Message: fmt.Sprintf("dataset %s stayed empty after %d polls", datasetID, c.cfg.MaxDatasetAttempts),
	}
}

// sleepCtx sleeps for d or returns early with the context error.
func sleepCtx(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return nil
	}
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}
