package repository

import (
	"context"

	"gorm.io/gorm"

	"serpgap/internal/domain"
)

// AnalysisLogRepository handles analysis audit row operations.
// Rows are append-then-update-once: created pending, updated exactly once at
// batch completion.
type AnalysisLogRepository struct {
	db *gorm.DB
}

// NewAnalysisLogRepository creates a new AnalysisLogRepository.
// Parameters:
//   - db: GORM database handle used for queries.
// Returns:
//   - *AnalysisLogRepository: repository instance bound to db.
func NewAnalysisLogRepository(db *gorm.DB) *AnalysisLogRepository {
	return &AnalysisLogRepository{db: db}
}

// Create inserts a new pending audit row.
// Parameters:
//   - ctx: context for cancellation and deadlines.
//   - log: audit row to persist.
// Returns:
//   - error: non-nil if the insert fails.
func (r *AnalysisLogRepository) Create(ctx context.Context, log *domain.AnalysisLog) error {
	return r.db.WithContext(ctx).Create(log).Error
}

// Complete applies the single terminal update for a request.
// Parameters:
//   - ctx: context for cancellation and deadlines.
//   - id: analysis request ID.
//   - fields: terminal fields (status, results, credentials_used, ...).
// Returns:
//   - error: non-nil if the update fails.
func (r *AnalysisLogRepository) Complete(ctx context.Context, id string, fields map[string]interface{}) error {
	return r.db.WithContext(ctx).
		Model(&domain.AnalysisLog{}).
		Where("id = ?", id).
		Updates(fields).Error
}

// GetByID retrieves an audit row by ID scoped to its owner.
// Parameters:
//   - ctx: context for cancellation and deadlines.
//   - userID: owning user ID.
//   - id: analysis request ID.
// Returns:
//   - *domain.AnalysisLog: audit row if found.
//   - error: non-nil if lookup fails.
func (r *AnalysisLogRepository) GetByID(ctx context.Context, userID, id string) (*domain.AnalysisLog, error) {
	var log domain.AnalysisLog
	if err := r.db.WithContext(ctx).First(&log, "id = ? AND user_id = ?", id, userID).Error; err != nil {
		return nil, err
	}
	return &log, nil
}

// ListByUser retrieves audit rows for a user with pagination, newest first.
// Parameters:
//   - ctx: context for cancellation and deadlines.
//   - userID: owning user ID.
//   - limit: maximum number of records to return.
//   - offset: number of records to skip.
// Returns:
//   - []domain.AnalysisLog: matching audit rows.
//   - error: non-nil if the query fails.
func (r *AnalysisLogRepository) ListByUser(ctx context.Context, userID string, limit, offset int) ([]domain.AnalysisLog, error) {
	var logs []domain.AnalysisLog
	if err := r.db.WithContext(ctx).
		Where("user_id = ?", userID).
		Order("created_at DESC").
		Limit(limit).
		Offset(offset).
		Find(&logs).Error; err != nil {
		return nil, err
	}
	return logs, nil
}

// CountByUser counts audit rows for a user.
// Parameters:
//   - ctx: context for cancellation and deadlines.
//   - userID: owning user ID.
// Returns:
//   - int64: number of audit rows.
//   - error: non-nil if the query fails.
func (r *AnalysisLogRepository) CountByUser(ctx context.Context, userID string) (int64, error) {
	var count int64
	if err := r.db.WithContext(ctx).
		Model(&domain.AnalysisLog{}).
		Where("user_id = ?", userID).
		Count(&count).Error; err != nil {
		return 0, err
	}
	return count, nil
}
