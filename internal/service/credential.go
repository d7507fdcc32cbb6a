package service

import (
	"context"
	"fmt"

	"github.com/google/uuid"

	"serpgap/internal/domain"
	"serpgap/internal/logger"
	"serpgap/internal/repository"
)

// CredentialService handles dashboard credential management. Batch-time
// selection and state transitions live in CredentialPool; this service covers
// the CRUD surface.
type CredentialService struct {
	repo   *repository.CredentialRepository
	logger *logger.Logger
}

// NewCredentialService creates a new credential service.
// Parameters:
//   - repo: credential repository.
//   - log: logger instance.
// Returns:
//   - *CredentialService: initialized service.
func NewCredentialService(repo *repository.CredentialRepository, log *logger.Logger) *CredentialService {
	return &CredentialService{repo: repo, logger: log}
}

// Create registers a new credential for the user, starting active.
// Parameters:
//   - ctx: context for cancellation and deadlines.
//   - userID: owning user.
//   - label: human-readable name.
//   - apiKey: remote provider API key, stored as-is.
// Returns:
//   - *domain.Credential: created credential.
//   - error: non-nil if the insert fails.
func (s *CredentialService) Create(ctx context.Context, userID, label, apiKey string) (*domain.Credential, error) {
	cred := &domain.Credential{
		ID:     uuid.New().String(),
		UserID: userID,
		Label:  label,
		APIKey: apiKey,
		Status: domain.CredentialStatusActive,
	}
	if err := s.repo.Create(ctx, cred); err != nil {
		return nil, fmt.Errorf("failed to create credential: %w", err)
	}
	logger.CtxInfo(ctx, "Credential created: credential=%s", cred.ID)
	return cred, nil
}

// List returns all of the user's credentials, regardless of status.
// Parameters:
//   - ctx: context for cancellation and deadlines.
//   - userID: owning user.
// Returns:
//   - []domain.Credential: credentials, newest first.
//   - error: non-nil if the query fails.
func (s *CredentialService) List(ctx context.Context, userID string) ([]domain.Credential, error) {
	return s.repo.ListByUser(ctx, userID)
}

// Get returns one credential, scoped to the owning user.
// Parameters:
//   - ctx: context for cancellation and deadlines.
//   - userID: owning user.
//   - id: credential ID.
// Returns:
//   - *domain.Credential: credential if found and owned by userID.
//   - error: gorm.ErrRecordNotFound or a query error.
func (s *CredentialService) Get(ctx context.Context, userID, id string) (*domain.Credential, error) {
	return s.repo.GetByID(ctx, userID, id)
}

// Delete removes a credential, scoped to the owning user.
// Parameters:
//   - ctx: context for cancellation and deadlines.
//   - userID: owning user.
//   - id: credential ID.
// Returns:
//   - error: gorm.ErrRecordNotFound when nothing matched, or a delete error.
func (s *CredentialService) Delete(ctx context.Context, userID, id string) error {
	if err := s.repo.Delete(ctx, userID, id); err != nil {
		return err
	}
	logger.CtxInfo(ctx, "Credential deleted: credential=%s", id)
	return nil
}

// Reactivate manually returns a failed or rate-limited credential to active.
// Failure counts and usage timestamps are preserved.
// Parameters:
//   - ctx: context for cancellation and deadlines.
//   - userID: owning user.
//   - id: credential ID.
// Returns:
//   - error: gorm.ErrRecordNotFound when nothing matched, or an update error.
func (s *CredentialService) Reactivate(ctx context.Context, userID, id string) error {
	if err := s.repo.Reactivate(ctx, userID, id); err != nil {
		return err
	}
	logger.CtxInfo(ctx, "Credential reactivated: credential=%s", id)
	return nil
}
