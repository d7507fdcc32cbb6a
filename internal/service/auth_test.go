package service

import (
	"context"
	"errors"
	"testing"
	"time"

	"serpgap/internal/logger"
	"serpgap/internal/repository"
)

func newTestAuthService(t *testing.T) *AuthService {
	t.Helper()
	db := newTestDB(t)
	return NewAuthService(repository.NewUserRepository(db), "test-secret", time.Hour, logger.NewDefault())
}

func TestAuthService_RegisterAndLogin(t *testing.T) {
	svc := newTestAuthService(t)
	ctx := context.Background()

	user, webhookToken, err := svc.Register(ctx, "analyst@example.com", "correct horse battery")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if user.ID == "" {
		t.Error("expected user ID to be assigned")
	}
	if webhookToken == "" {
		t.Fatal("expected a webhook token at registration")
	}
	if user.PasswordHash == "correct horse battery" {
		t.Error("password must not be stored in plaintext")
	}
	if user.WebhookTokenHash == webhookToken {
		t.Error("webhook token must be stored hashed")
	}

	token, loggedIn, err := svc.Login(ctx, "analyst@example.com", "correct horse battery")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if loggedIn.ID != user.ID {
		t.Errorf("expected user %s, got %s", user.ID, loggedIn.ID)
	}

	userID, err := svc.VerifyJWT(token)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if userID != user.ID {
		t.Errorf("expected subject %s, got %s", user.ID, userID)
	}
}

func TestAuthService_LoginRejectsBadPassword(t *testing.T) {
	svc := newTestAuthService(t)
	ctx := context.Background()

	if _, _, err := svc.Register(ctx, "analyst@example.com", "correct horse battery"); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if _, _, err := svc.Login(ctx, "analyst@example.com", "wrong"); !errors.Is(err, ErrInvalidCredentials) {
		t.Errorf("expected ErrInvalidCredentials, got %v", err)
	}
	if _, _, err := svc.Login(ctx, "nobody@example.com", "whatever"); !errors.Is(err, ErrInvalidCredentials) {
		t.Errorf("expected ErrInvalidCredentials for unknown email, got %v", err)
	}
}

func TestAuthService_RegisterRejectsDuplicateEmail(t *testing.T) {
	svc := newTestAuthService(t)
	ctx := context.Background()

	if _, _, err := svc.Register(ctx, "analyst@example.com", "correct horse battery"); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if _, _, err := svc.Register(ctx, "analyst@example.com", "another password"); !errors.Is(err, ErrEmailTaken) {
		t.Errorf("expected ErrEmailTaken, got %v", err)
	}
}

func TestAuthService_WebhookTokenRotation(t *testing.T) {
	svc := newTestAuthService(t)
	ctx := context.Background()

	user, oldToken, err := svc.Register(ctx, "analyst@example.com", "correct horse battery")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	resolved, err := svc.VerifyWebhookToken(ctx, oldToken)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if resolved.ID != user.ID {
		t.Errorf("expected user %s, got %s", user.ID, resolved.ID)
	}

	newToken, err := svc.RotateWebhookToken(ctx, user.ID)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if newToken == oldToken {
		t.Error("expected rotation to produce a different token")
	}

	// Old token is dead immediately, new one resolves
	if _, err := svc.VerifyWebhookToken(ctx, oldToken); !errors.Is(err, ErrInvalidToken) {
		t.Errorf("expected ErrInvalidToken for rotated-out token, got %v", err)
	}
	resolved, err = svc.VerifyWebhookToken(ctx, newToken)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if resolved.ID != user.ID {
		t.Errorf("expected user %s, got %s", user.ID, resolved.ID)
	}
}

func TestAuthService_VerifyJWTRejectsGarbage(t *testing.T) {
	svc := newTestAuthService(t)

	for _, token := range []string{"", "not-a-jwt", "aaa.bbb.ccc"} {
		if _, err := svc.VerifyJWT(token); !errors.Is(err, ErrInvalidToken) {
			t.Errorf("expected ErrInvalidToken for %q, got %v", token, err)
		}
	}
}
