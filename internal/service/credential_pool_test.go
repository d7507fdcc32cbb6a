package service

import (
	"context"
	"errors"
	"fmt"
	"testing"
	"time"

	"gorm.io/driver/sqlite"
	"gorm.io/gorm"

	"serpgap/internal/apify"
	"serpgap/internal/domain"
	"serpgap/internal/logger"
	"serpgap/internal/repository"
)

func newTestDB(t *testing.T) *gorm.DB {
	t.Helper()

	dsn := fmt.Sprintf("file:%s?mode=memory&cache=shared", t.Name())
	db, err := gorm.Open(sqlite.Open(dsn), &gorm.Config{})
	if err != nil {
		t.Fatalf("failed to open test database: %v", err)
	}
	// One connection keeps concurrent batch writers serialized; sqlite's
	// shared-cache mode errors instead of waiting on write contention.
	sqlDB, err := db.DB()
	if err != nil {
		t.Fatalf("failed to access sql.DB: %v", err)
	}
	sqlDB.SetMaxOpenConns(1)
	if err := repository.Migrate(db); err != nil {
		t.Fatalf("failed to migrate test database: %v", err)
	}
	return db
}

func seedCredential(t *testing.T, db *gorm.DB, cred *domain.Credential) {
	t.Helper()
	if err := db.Create(cred).Error; err != nil {
		t.Fatalf("failed to seed credential: %v", err)
	}
}

func TestCredentialPool_ListUsable_Empty(t *testing.T) {
	db := newTestDB(t)
	pool := NewCredentialPool(repository.NewCredentialRepository(db), logger.NewDefault())

	_, err := pool.ListUsable(context.Background(), "user-1")
	if !errors.Is(err, ErrNoCredentialsAvailable) {
		t.Errorf("expected ErrNoCredentialsAvailable, got %v", err)
	}
}

func TestCredentialPool_ListUsable_Ordering(t *testing.T) {
	db := newTestDB(t)
	pool := NewCredentialPool(repository.NewCredentialRepository(db), logger.NewDefault())

	older := time.Now().UTC().Add(-2 * time.Hour)
	newer := time.Now().UTC().Add(-1 * time.Hour)

	seedCredential(t, db, &domain.Credential{
		ID: "used-newer", UserID: "user-1", Label: "d", APIKey: "key-d",
		Status: domain.CredentialStatusActive, LastUsedAt: &newer,
	})
	seedCredential(t, db, &domain.Credential{
		ID: "fresh-failed", UserID: "user-1", Label: "b", APIKey: "key-b",
		Status: domain.CredentialStatusFailed,
	})
	seedCredential(t, db, &domain.Credential{
		ID: "fresh-active", UserID: "user-1", Label: "a", APIKey: "key-a",
		Status: domain.CredentialStatusActive,
	})
	seedCredential(t, db, &domain.Credential{
		ID: "used-older", UserID: "user-1", Label: "c", APIKey: "key-c",
		Status: domain.CredentialStatusActive, LastUsedAt: &older,
	})
	// Another user's credential never appears
	seedCredential(t, db, &domain.Credential{
		ID: "other-user", UserID: "user-2", Label: "x", APIKey: "key-x",
		Status: domain.CredentialStatusActive,
	})

	creds, err := pool.ListUsable(context.Background(), "user-1")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	// Never-used first with active before degraded, then least recently used
	expected := []string{"fresh-active", "fresh-failed", "used-older", "used-newer"}
	if len(creds) != len(expected) {
		t.Fatalf("expected %d credentials, got %d", len(expected), len(creds))
	}
	for i, id := range expected {
		if creds[i].ID != id {
			t.Errorf("expected %s at index %d, got %s", id, i, creds[i].ID)
		}
	}
}

func TestCredentialPool_FailureThenSuccessRoundTrip(t *testing.T) {
	db := newTestDB(t)
	repo := repository.NewCredentialRepository(db)
	pool := NewCredentialPool(repo, logger.NewDefault())
	ctx := context.Background()

	seedCredential(t, db, &domain.Credential{
		ID: "cred-1", UserID: "user-1", Label: "main", APIKey: "key-1",
		Status: domain.CredentialStatusActive,
	})

	kind, err := pool.RecordFailure(ctx, "cred-1", &apify.JobError{
		Kind:       apify.KindSubmission,
		Op:         "serp",
		StatusCode: 429,
		Message:    "monthly credit limit reached",
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if kind != FailureRateLimited {
		t.Errorf("expected rate_limited classification, got %s", kind)
	}

	cred, err := repo.GetByID(ctx, "user-1", "cred-1")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if cred.Status != domain.CredentialStatusRateLimited {
		t.Errorf("expected status rate_limited, got %s", cred.Status)
	}
	if cred.FailureCount != 1 {
		t.Errorf("expected failure count 1, got %d", cred.FailureCount)
	}
	if cred.LastFailedAt == nil {
		t.Error("expected last_failed_at to be set")
	}
	if cred.LastUsedAt != nil {
		t.Error("expected last_used_at to stay unset after a failure")
	}

	if err := pool.RecordSuccess(ctx, "cred-1"); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	cred, err = repo.GetByID(ctx, "user-1", "cred-1")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if cred.Status != domain.CredentialStatusActive {
		t.Errorf("expected status active after success, got %s", cred.Status)
	}
	if cred.FailureCount != 0 {
		t.Errorf("expected failure count reset to 0, got %d", cred.FailureCount)
	}
	if cred.LastFailedAt != nil {
		t.Error("expected last_failed_at cleared after success")
	}
	if cred.LastUsedAt == nil {
		t.Error("expected last_used_at set after success")
	}
}
