package service

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"

	"serpgap/internal/apify"
	"serpgap/internal/domain"
	"serpgap/internal/logger"
	"serpgap/internal/repository"
)

// Strategy selects the batch processing model.
type Strategy string

const (
	// StrategyParallel fans keywords out in fixed-width batches; each keyword
	// gets exactly one credential attempt and the batch boundary is a barrier.
	StrategyParallel Strategy = "parallel"
	// StrategySequential processes keywords one at a time with up to
	// min(maxRetries, poolSize) credential retries per keyword, advancing a
	// rotation cursor on every failure.
	StrategySequential Strategy = "sequential"
)

// ErrKeywordCountOutOfRange is returned before any audit or remote work when
// the keyword list is empty or longer than MaxKeywords.
var ErrKeywordCountOutOfRange = errors.New("keyword count must be between 1 and 30")

// BatchError wraps a failure that happened after a request ID was assigned, so
// callers can report the ID of the audit row the failed batch belongs to.
type BatchError struct {
	RequestID string
	Err       error
}

// Error implements the error interface.
func (e *BatchError) Error() string {
	return e.Err.Error()
}

// Unwrap exposes the underlying error for errors.Is/As.
func (e *BatchError) Unwrap() error {
	return e.Err
}

// MaxKeywords is the upper bound on keywords per request.
const MaxKeywords = 30

// SerpMetricsClient is the remote job client surface the orchestrator depends on.
type SerpMetricsClient interface {
	FetchSerp(ctx context.Context, token string, req apify.SerpRequest) (*apify.SerpResult, error)
	FetchMetrics(ctx context.Context, token string, urls []string) ([]domain.URLMetrics, error)
}

// AnalysisConfig holds orchestration configuration.
type AnalysisConfig struct {
	Strategy   Strategy
	BatchSize  int // parallel fan-out width
	MaxRetries int // per-keyword credential retries (sequential only)
	Decision   DecisionConfig
}

// AnalysisService drives the end-to-end keyword batch: credential assignment,
// remote SERP and metrics jobs, per-keyword decisions, and audit persistence.
type AnalysisService struct {
	pool       *CredentialPool
	logs       *repository.AnalysisLogRepository
	client     SerpMetricsClient
	logger     *logger.Logger
	strategy   Strategy
	batchSize  int
	maxRetries int
	decision   DecisionConfig
}

// NewAnalysisService creates a new analysis service.
// Parameters:
//   - pool: credential pool.
//   - logs: audit row repository.
//   - client: remote job client.
//   - log: logger instance.
//   - cfg: orchestration configuration; zero values get defaults.
// Returns:
//   - *AnalysisService: initialized service.
func NewAnalysisService(
	pool *CredentialPool,
	logs *repository.AnalysisLogRepository,
	client SerpMetricsClient,
	log *logger.Logger,
	cfg *AnalysisConfig,
) *AnalysisService {
	s := &AnalysisService{
		pool:       pool,
		logs:       logs,
		client:     client,
		logger:     log,
		strategy:   StrategyParallel,
		batchSize:  10,
		maxRetries: 3,
		decision:   DefaultDecisionConfig(),
	}
	if cfg != nil {
		if cfg.Strategy == StrategySequential {
			s.strategy = StrategySequential
		}
		if cfg.BatchSize > 0 {
			s.batchSize = cfg.BatchSize
		}
		if cfg.MaxRetries > 0 {
			s.maxRetries = cfg.MaxRetries
		}
		s.decision = cfg.Decision.normalized()
	}
	return s
}

// AnalyzeRequest is the validated input for one keyword batch.
type AnalyzeRequest struct {
	Keywords []string
	Region   string
	Page     int
	Decision *DecisionConfig // nil uses the service defaults
}

// AnalyzeResponse is the webhook-facing batch outcome.
type AnalyzeResponse struct {
	RequestID         string                 `json:"requestId"`
	KeywordsProcessed int                    `json:"keywordsProcessed"`
	ProcessingTimeMs  int64                  `json:"processingTimeMs"`
	Results           []domain.KeywordResult `json:"results"`
	CredentialsUsed   []string               `json:"credentialsUsed"`
}

// Analyze runs the batch pipeline for one webhook request.
// A pending audit row is written before any remote call and updated exactly
// once at completion. A single keyword's failure never aborts the batch; only
// precondition violations and persistence failures surface as errors.
// Parameters:
//   - ctx: context for cancellation and deadlines.
//   - userID: authenticated owner of the batch.
//   - req: validated batch input.
// Returns:
//   - *AnalyzeResponse: ordered per-keyword results and batch stats.
//   - error: ErrKeywordCountOutOfRange, ErrNoCredentialsAvailable, or a
//     persistence error.
func (s *AnalysisService) Analyze(ctx context.Context, userID string, req *AnalyzeRequest) (*AnalyzeResponse, error) {
	if len(req.Keywords) == 0 || len(req.Keywords) > MaxKeywords {
		return nil, ErrKeywordCountOutOfRange
	}

	requestID := uuid.New().String()
	ctx = logger.WithFields(ctx, logger.Fields{
		logger.FieldAnalysisID: requestID,
		logger.FieldUserID:     userID,
		logger.FieldComponent:  "analysis",
	})

	start := time.Now()

	// Audit row is created pending before any credential or remote work.
	auditRow := &domain.AnalysisLog{
		ID:       requestID,
		UserID:   userID,
		Keywords: req.Keywords,
		Status:   domain.AnalysisStatusPending,
	}
	if err := s.logs.Create(ctx, auditRow); err != nil {
		return nil, &BatchError{RequestID: requestID, Err: fmt.Errorf("failed to create audit row: %w", err)}
	}

	creds, err := s.pool.ListUsable(ctx, userID)
	if err != nil {
		if errors.Is(err, ErrNoCredentialsAvailable) {
			s.failAudit(ctx, requestID, start, "no usable credentials available")
		} else {
			s.failAudit(ctx, requestID, start, err.Error())
		}
		return nil, &BatchError{RequestID: requestID, Err: err}
	}

	cfg := s.decision
	if req.Decision != nil {
		cfg = req.Decision.normalized()
	}

	logger.CtxInfo(ctx, "Starting analysis batch: keywords=%d, credentials=%d, strategy=%s",
		len(req.Keywords), len(creds), s.strategy)

	var results []domain.KeywordResult
	var used []string
	if s.strategy == StrategySequential {
		results, used = s.runSequential(ctx, creds, req, cfg)
	} else {
		results, used = s.runParallel(ctx, creds, req, cfg)
	}

	elapsed := time.Since(start)

	if err := s.logs.Complete(ctx, requestID, map[string]interface{}{
		"status":             domain.AnalysisStatusCompleted,
		"results":            domain.KeywordResultArray(results),
		"credentials_used":   domain.StringArray(used),
		"processing_time_ms": elapsed.Milliseconds(),
	}); err != nil {
		return nil, &BatchError{RequestID: requestID, Err: fmt.Errorf("failed to complete audit row: %w", err)}
	}

	logger.With(logger.Fields{
		logger.FieldDurationMs: elapsed.Milliseconds(),
		logger.FieldCount:      len(results),
	}).Info(ctx, "Analysis batch completed")

	return &AnalyzeResponse{
		RequestID:         requestID,
		KeywordsProcessed: len(results),
		ProcessingTimeMs:  elapsed.Milliseconds(),
		Results:           results,
		CredentialsUsed:   used,
	}, nil
}

// ListLogs returns the user's audit history, newest first.
// Parameters:
//   - ctx: context for cancellation and deadlines.
//   - userID: owning user.
//   - limit: page size.
//   - offset: page start.
// Returns:
//   - []domain.AnalysisLog: audit rows.
//   - int64: total row count for the user.
//   - error: non-nil if a query fails.
func (s *AnalysisService) ListLogs(ctx context.Context, userID string, limit, offset int) ([]domain.AnalysisLog, int64, error) {
	rows, err := s.logs.ListByUser(ctx, userID, limit, offset)
	if err != nil {
		return nil, 0, err
	}
	total, err := s.logs.CountByUser(ctx, userID)
	if err != nil {
		return nil, 0, err
	}
	return rows, total, nil
}

// GetLog returns one audit row, scoped to the owning user.
// Parameters:
//   - ctx: context for cancellation and deadlines.
//   - userID: owning user.
//   - id: analysis request ID.
// Returns:
//   - *domain.AnalysisLog: audit row if found and owned by userID.
//   - error: gorm.ErrRecordNotFound or a query error.
func (s *AnalysisService) GetLog(ctx context.Context, userID, id string) (*domain.AnalysisLog, error) {
	return s.logs.GetByID(ctx, userID, id)
}

// failAudit applies the terminal failed update; best effort, the precondition
// error is what propagates to the caller.
func (s *AnalysisService) failAudit(ctx context.Context, requestID string, start time.Time, msg string) {
	if err := s.logs.Complete(ctx, requestID, map[string]interface{}{
		"status":             domain.AnalysisStatusFailed,
		"error_message":      msg,
		"processing_time_ms": time.Since(start).Milliseconds(),
	}); err != nil {
		logger.CtxError(ctx, "Failed to mark audit row failed: %v", err)
	}
}

// runParallel executes the batched fan-out strategy. Keywords are processed in
// fixed-width batches; each keyword in a batch is assigned a credential by
// modular index and gets exactly one attempt. The batch boundary is a hard
// barrier: all of batch N's pool updates complete before batch N+1 starts.
// Results are collected positionally so input order is preserved regardless of
// completion order.
func (s *AnalysisService) runParallel(ctx context.Context, creds []domain.Credential, req *AnalyzeRequest, cfg DecisionConfig) ([]domain.KeywordResult, []string) {
	results := make([]domain.KeywordResult, len(req.Keywords))
	tracker := newUsageTracker()

	for batchStart := 0; batchStart < len(req.Keywords); batchStart += s.batchSize {
		batchEnd := batchStart + s.batchSize
		if batchEnd > len(req.Keywords) {
			batchEnd = len(req.Keywords)
		}

		var wg sync.WaitGroup
		for i := batchStart; i < batchEnd; i++ {
			wg.Add(1)
			go func(idx int) {
				defer wg.Done()
				// Pool smaller than the batch width means two concurrent
				// keywords can share a credential; last writer wins on its
				// usage stats (known race, accepted).
				cred := creds[idx%len(creds)]
				tracker.record(cred.ID)
				kres, err := s.attemptKeyword(ctx, &cred, req.Keywords[idx], req, cfg)
				if err != nil {
					results[idx] = errorResult(req.Keywords[idx], err)
					return
				}
				results[idx] = kres
			}(i)
		}
		wg.Wait()
	}

	return results, tracker.ids()
}

// runSequential executes the per-keyword retry strategy. The rotation cursor is
// owned by this invocation and advances on every failed attempt, carrying over
// across keywords.
func (s *AnalysisService) runSequential(ctx context.Context, creds []domain.Credential, req *AnalyzeRequest, cfg DecisionConfig) ([]domain.KeywordResult, []string) {
	results := make([]domain.KeywordResult, len(req.Keywords))
	tracker := newUsageTracker()

	maxAttempts := s.maxRetries
	if maxAttempts > len(creds) {
		maxAttempts = len(creds)
	}

	cursor := 0
	for i, keyword := range req.Keywords {
		var lastErr error
		done := false
		for attempt := 0; attempt < maxAttempts; attempt++ {
			cred := creds[cursor%len(creds)]
			tracker.record(cred.ID)
			kres, err := s.attemptKeyword(ctx, &cred, keyword, req, cfg)
			if err == nil {
				results[i] = kres
				done = true
				break
			}
			lastErr = err
			cursor++
		}
		if !done {
			results[i] = errorResult(keyword, lastErr)
		}
	}

	return results, tracker.ids()
}

// attemptKeyword performs one credential attempt for one keyword: SERP job,
// metrics job, merge, decide. Pool transitions are persisted before returning.
func (s *AnalysisService) attemptKeyword(ctx context.Context, cred *domain.Credential, keyword string, req *AnalyzeRequest, cfg DecisionConfig) (domain.KeywordResult, error) {
	ctx = logger.WithFields(ctx, logger.Fields{
		logger.FieldKeyword:      keyword,
		logger.FieldCredentialID: cred.ID,
	})

	serpRes, err := s.client.FetchSerp(ctx, cred.APIKey, apify.SerpRequest{
		Keyword: keyword,
		Region:  req.Region,
		Page:    req.Page,
	})
	if err != nil {
		s.pool.RecordFailure(ctx, cred.ID, err)
		return domain.KeywordResult{}, err
	}

	merged := serpRes.ToRankedURLs()
	if len(merged) > 0 {
		urls := make([]string, len(merged))
		for i, e := range merged {
			urls[i] = e.URL
		}
		metrics, err := s.client.FetchMetrics(ctx, cred.APIKey, urls)
		if err != nil {
			s.pool.RecordFailure(ctx, cred.ID, err)
			return domain.KeywordResult{}, err
		}
		mergeMetrics(merged, metrics)
	}

	if err := s.pool.RecordSuccess(ctx, cred.ID); err != nil {
		logger.CtxError(ctx, "Credential success transition failed: %v", err)
	}

	outcome := Decide(merged, cfg)
	credID := cred.ID
	return domain.KeywordResult{
		Keyword:           keyword,
		CredentialID:      &credID,
		Decision:          outcome.Decision,
		Results:           outcome.TopURLs,
		AverageAuthority:  outcome.AverageAuthority,
		LowAuthorityCount: outcome.LowAuthorityCount,
		RelatedKeywords:   serpRes.RelatedKeywords,
		KnowledgePanel:    serpRes.KnowledgePanel,
	}, nil
}

// mergeMetrics attaches metrics to SERP rows by exact URL string equality.
// The two providers may normalize URLs differently (scheme, trailing slash,
// www prefix); unmatched rows keep zero scores with HasMetrics false.
func mergeMetrics(entries []domain.RankedURL, metrics []domain.URLMetrics) {
	byURL := make(map[string]domain.URLMetrics, len(metrics))
	for _, m := range metrics {
		byURL[m.URL] = m
	}
	for i := range entries {
		if m, ok := byURL[entries[i].URL]; ok {
			entries[i].DomainAuthority = m.DomainAuthority
			entries[i].PageAuthority = m.PageAuthority
			entries[i].SpamScore = m.SpamScore
			entries[i].HasMetrics = true
		}
	}
}

// errorResult builds the per-keyword Error outcome.
func errorResult(keyword string, err error) domain.KeywordResult {
	msg := "all credential attempts failed"
	if err != nil {
		msg = err.Error()
	}
	return domain.KeywordResult{
		Keyword:  keyword,
		Decision: domain.DecisionError,
		Error:    msg,
	}
}

// usageTracker collects attempted credential IDs, deduplicated, in first-use
// order. Safe for concurrent use by batch goroutines.
type usageTracker struct {
	mu   sync.Mutex
	seen map[string]struct{}
	list []string
}

func newUsageTracker() *usageTracker {
	return &usageTracker{seen: make(map[string]struct{})}
}

func (t *usageTracker) record(id string) {
	t.mu.Lock()
	defer t.mu.Unlock()
	if _, ok := t.seen[id]; ok {
		return
	}
	t.seen[id] = struct{}{}
	t.list = append(t.list, id)
}

func (t *usageTracker) ids() []string {
	t.mu.Lock()
	defer t.mu.Unlock()
	out := make([]string, len(t.list))
	copy(out, t.list)
	return out
}
