package repository

import (
	"context"
	"time"

	"gorm.io/gorm"

	"serpgap/internal/domain"
)

// CredentialRepository handles credential data operations.
type CredentialRepository struct {
	db *gorm.DB
}

// NewCredentialRepository creates a new CredentialRepository.
// Parameters:
//   - db: GORM database handle used for queries.
// Returns:
//   - *CredentialRepository: repository instance bound to db.
func NewCredentialRepository(db *gorm.DB) *CredentialRepository {
	return &CredentialRepository{db: db}
}

// Create inserts a new credential record.
// Parameters:
//   - ctx: context for cancellation and deadlines.
//   - cred: credential record to persist.
// Returns:
//   - error: non-nil if the insert fails.
func (r *CredentialRepository) Create(ctx context.Context, cred *domain.Credential) error {
	return r.db.WithContext(ctx).Create(cred).Error
}

// GetByID retrieves a credential by ID scoped to its owner.
// Parameters:
//   - ctx: context for cancellation and deadlines.
//   - userID: owning user ID.
//   - id: credential ID.
// Returns:
//   - *domain.Credential: credential record if found.
//   - error: non-nil if lookup fails.
func (r *CredentialRepository) GetByID(ctx context.Context, userID, id string) (*domain.Credential, error) {
	var cred domain.Credential
	if err := r.db.WithContext(ctx).First(&cred, "id = ? AND user_id = ?", id, userID).Error; err != nil {
		return nil, err
	}
	return &cred, nil
}

// ListByUser retrieves all credentials owned by a user.
// Parameters:
//   - ctx: context for cancellation and deadlines.
//   - userID: owning user ID.
// Returns:
//   - []domain.Credential: credential records, newest first.
//   - error: non-nil if the query fails.
func (r *CredentialRepository) ListByUser(ctx context.Context, userID string) ([]domain.Credential, error) {
	var creds []domain.Credential
	if err := r.db.WithContext(ctx).
		Where("user_id = ?", userID).
		Order("created_at DESC").
		Find(&creds).Error; err != nil {
		return nil, err
	}
	return creds, nil
}

// ListUsableByUser retrieves the rotation-ordered usable credential set for a user.
// Ordering: credentials never used first, then active before degraded, then
// least-recently-used first.
// Parameters:
//   - ctx: context for cancellation and deadlines.
//   - userID: owning user ID.
// Returns:
//   - []domain.Credential: ordered usable credentials (possibly empty).
//   - error: non-nil if the query fails.
func (r *CredentialRepository) ListUsableByUser(ctx context.Context, userID string) ([]domain.Credential, error) {
	var creds []domain.Credential
	if err := r.db.WithContext(ctx).
		Where("user_id = ? AND status IN ?", userID, []domain.CredentialStatus{
			domain.CredentialStatusActive,
			domain.CredentialStatusFailed,
			domain.CredentialStatusRateLimited,
		}).
		Order("CASE WHEN last_used_at IS NULL THEN 0 ELSE 1 END").
		Order("CASE WHEN status = 'active' THEN 0 ELSE 1 END").
		Order("last_used_at ASC").
		Find(&creds).Error; err != nil {
		return nil, err
	}
	return creds, nil
}

// MarkSuccess applies the successful-use transition: status active, failure
// count reset, last_used set, last_failed cleared. Persisted immediately.
// Parameters:
//   - ctx: context for cancellation and deadlines.
//   - id: credential ID.
//   - now: timestamp to record as last_used_at.
// Returns:
//   - error: non-nil if the update fails.
func (r *CredentialRepository) MarkSuccess(ctx context.Context, id string, now time.Time) error {
	return r.db.WithContext(ctx).
		Model(&domain.Credential{}).
		Where("id = ?", id).
		Updates(map[string]interface{}{
			"status":         domain.CredentialStatusActive,
			"failure_count":  0,
			"last_used_at":   now,
			"last_failed_at": nil,
			"updated_at":     now,
		}).Error
}

// MarkFailure applies the failed-use transition: status per classification,
// failure count incremented, last_failed set. Persisted immediately.
// Parameters:
//   - ctx: context for cancellation and deadlines.
//   - id: credential ID.
//   - status: failed or rate_limited per failure classification.
//   - now: timestamp to record as last_failed_at.
// Returns:
//   - error: non-nil if the update fails.
func (r *CredentialRepository) MarkFailure(ctx context.Context, id string, status domain.CredentialStatus, now time.Time) error {
	return r.db.WithContext(ctx).
		Model(&domain.Credential{}).
		Where("id = ?", id).
		Updates(map[string]interface{}{
			"status":         status,
			"failure_count":  gorm.Expr("failure_count + 1"),
			"last_failed_at": now,
			"updated_at":     now,
		}).Error
}

// Reactivate resets a credential back to active without touching usage stats.
// Parameters:
//   - ctx: context for cancellation and deadlines.
//   - userID: owning user ID.
//   - id: credential ID.
// Returns:
//   - error: gorm.ErrRecordNotFound when nothing matched, or an update error.
func (r *CredentialRepository) Reactivate(ctx context.Context, userID, id string) error {
	res := r.db.WithContext(ctx).
		Model(&domain.Credential{}).
		Where("id = ? AND user_id = ?", id, userID).
		Update("status", domain.CredentialStatusActive)
	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected == 0 {
		return gorm.ErrRecordNotFound
	}
	return nil
}

// ReactivateStaleRateLimited resets rate_limited credentials whose last failure
// is older than the cutoff. Used by the scheduled cooldown job; failure counts
// are preserved.
// Parameters:
//   - ctx: context for cancellation and deadlines.
//   - cutoff: credentials rate-limited before this instant are reset.
// Returns:
//   - int64: number of credentials reset.
//   - error: non-nil if the update fails.
func (r *CredentialRepository) ReactivateStaleRateLimited(ctx context.Context, cutoff time.Time) (int64, error) {
	res := r.db.WithContext(ctx).
		Model(&domain.Credential{}).
		Where("status = ? AND last_failed_at < ?", domain.CredentialStatusRateLimited, cutoff).
		Update("status", domain.CredentialStatusActive)
	return res.RowsAffected, res.Error
}

// Delete removes a credential scoped to its owner.
// Parameters:
//   - ctx: context for cancellation and deadlines.
//   - userID: owning user ID.
//   - id: credential ID to delete.
// Returns:
//   - error: non-nil if the delete fails.
func (r *CredentialRepository) Delete(ctx context.Context, userID, id string) error {
	res := r.db.WithContext(ctx).Delete(&domain.Credential{}, "id = ? AND user_id = ?", id, userID)
	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected == 0 {
		return gorm.ErrRecordNotFound
	}
	return nil
}
