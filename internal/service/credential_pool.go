package service

import (
	"context"
	"errors"
	"time"

	"serpgap/internal/domain"
	"serpgap/internal/logger"
	"serpgap/internal/repository"
)

// ErrNoCredentialsAvailable is returned when a user has no usable credentials.
// This is the single precondition failure that aborts a whole batch before any
// remote call is attempted.
var ErrNoCredentialsAvailable = errors.New("no usable credentials available")

// CredentialPool exposes the usable credential set for a user and applies state
// transitions after each use. Transitions are persisted immediately, not
// batched, so a crash mid-batch leaves partial but consistent state.
type CredentialPool struct {
	repo   *repository.CredentialRepository
	logger *logger.Logger
}

// NewCredentialPool creates a new credential pool.
// Parameters:
//   - repo: credential repository.
//   - log: logger instance.
// Returns:
//   - *CredentialPool: initialized pool.
func NewCredentialPool(repo *repository.CredentialRepository, log *logger.Logger) *CredentialPool {
	return &CredentialPool{
		repo:   repo,
		logger: log,
	}
}

// ListUsable returns the rotation-ordered usable credentials for a user.
// Parameters:
//   - ctx: context for cancellation and deadlines.
//   - userID: owning user ID.
// Returns:
//   - []domain.Credential: ordered credentials.
//   - error: ErrNoCredentialsAvailable when the set is empty, or a query error.
func (p *CredentialPool) ListUsable(ctx context.Context, userID string) ([]domain.Credential, error) {
	creds, err := p.repo.ListUsableByUser(ctx, userID)
	if err != nil {
		return nil, err
	}
	if len(creds) == 0 {
		return nil, ErrNoCredentialsAvailable
	}
	return creds, nil
}

// RecordSuccess applies the successful-use transition: status active,
// failure_count 0, last_used now, last_failed cleared.
// Parameters:
//   - ctx: context for cancellation and deadlines.
//   - credentialID: credential that succeeded.
// Returns:
//   - error: non-nil if persisting the transition fails.
func (p *CredentialPool) RecordSuccess(ctx context.Context, credentialID string) error {
	if err := p.repo.MarkSuccess(ctx, credentialID, time.Now().UTC()); err != nil {
		logger.CtxError(ctx, "Failed to record credential success: credential=%s, error=%v", credentialID, err)
		return err
	}
	return nil
}

// RecordFailure classifies the remote error and applies the failed-use
// transition: status rate_limited for quota/rate exhaustion, failed otherwise;
// failure_count incremented; last_failed now.
// Parameters:
//   - ctx: context for cancellation and deadlines.
//   - credentialID: credential that failed.
//   - remoteErr: error returned by the remote job client.
// Returns:
//   - FailureKind: the classification applied.
//   - error: non-nil if persisting the transition fails.
func (p *CredentialPool) RecordFailure(ctx context.Context, credentialID string, remoteErr error) (FailureKind, error) {
	kind := ClassifyFailure(remoteErr)
	status := kind.CredentialStatus()

	logger.CtxWarn(ctx, "Credential attempt failed: credential=%s, classification=%s, error=%v",
		credentialID, kind, remoteErr)

	if err := p.repo.MarkFailure(ctx, credentialID, status, time.Now().UTC()); err != nil {
		logger.CtxError(ctx, "Failed to record credential failure: credential=%s, error=%v", credentialID, err)
		return kind, err
	}
	return kind, nil
}
