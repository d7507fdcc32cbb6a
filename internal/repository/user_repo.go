package repository

import (
	"context"

	"gorm.io/gorm"

	"serpgap/internal/domain"
)

// UserRepository handles user account operations.
type UserRepository struct {
	db *gorm.DB
}

// NewUserRepository creates a new UserRepository.
// Parameters:
//   - db: GORM database handle used for queries.
// Returns:
//   - *UserRepository: repository instance bound to db.
func NewUserRepository(db *gorm.DB) *UserRepository {
	return &UserRepository{db: db}
}

// Create inserts a new user record.
// Parameters:
//   - ctx: context for cancellation and deadlines.
//   - user: user record to persist.
// Returns:
//   - error: non-nil if the insert fails.
func (r *UserRepository) Create(ctx context.Context, user *domain.User) error {
	return r.db.WithContext(ctx).Create(user).Error
}

// GetByID retrieves a user by ID.
// Parameters:
//   - ctx: context for cancellation and deadlines.
//   - id: user ID.
// Returns:
//   - *domain.User: user record if found.
//   - error: non-nil if lookup fails.
func (r *UserRepository) GetByID(ctx context.Context, id string) (*domain.User, error) {
	var user domain.User
	if err := r.db.WithContext(ctx).First(&user, "id = ?", id).Error; err != nil {
		return nil, err
	}
	return &user, nil
}

// GetByEmail retrieves a user by email.
// Parameters:
//   - ctx: context for cancellation and deadlines.
//   - email: account email.
// Returns:
//   - *domain.User: user record if found.
//   - error: non-nil if lookup fails.
func (r *UserRepository) GetByEmail(ctx context.Context, email string) (*domain.User, error) {
	var user domain.User
	if err := r.db.WithContext(ctx).First(&user, "email = ?", email).Error; err != nil {
		return nil, err
	}
	return &user, nil
}

// GetByWebhookTokenHash retrieves a user by the hash of their webhook token.
// Parameters:
//   - ctx: context for cancellation and deadlines.
//   - hash: SHA-256 hex of the presented token.
// Returns:
//   - *domain.User: user record if found.
//   - error: non-nil if lookup fails.
func (r *UserRepository) GetByWebhookTokenHash(ctx context.Context, hash string) (*domain.User, error) {
	var user domain.User
	if err := r.db.WithContext(ctx).First(&user, "webhook_token_hash = ?", hash).Error; err != nil {
		return nil, err
	}
	return &user, nil
}

// UpdateWebhookTokenHash replaces a user's webhook token hash.
// Parameters:
//   - ctx: context for cancellation and deadlines.
//   - userID: user ID.
//   - hash: SHA-256 hex of the new token.
// Returns:
//   - error: non-nil if the update fails.
func (r *UserRepository) UpdateWebhookTokenHash(ctx context.Context, userID, hash string) error {
	return r.db.WithContext(ctx).
		Model(&domain.User{}).
		Where("id = ?", userID).
		Update("webhook_token_hash", hash).Error
}
