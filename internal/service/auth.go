package service

import (
	"context"
	"crypto/rand"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
	"golang.org/x/crypto/bcrypt"
	"gorm.io/gorm"

	"serpgap/internal/domain"
	"serpgap/internal/logger"
	"serpgap/internal/repository"
)

var (
	// ErrEmailTaken is returned by Register when the email already has an account.
	ErrEmailTaken = errors.New("email already registered")
	// ErrInvalidCredentials is returned by Login on a bad email or password.
	ErrInvalidCredentials = errors.New("invalid email or password")
	// ErrInvalidToken is returned when a JWT or webhook token does not resolve
	// to a user.
	ErrInvalidToken = errors.New("invalid token")
)

// webhookTokenBytes is the entropy of a webhook token before hex encoding.
const webhookTokenBytes = 32

// AuthService handles account registration, dashboard login, and webhook
// token verification. Passwords are stored as bcrypt hashes; webhook tokens
// are opaque random strings stored only as SHA-256 hashes, shown in plaintext
// exactly once at generation time.
type AuthService struct {
	users     *repository.UserRepository
	jwtSecret []byte
	tokenTTL  time.Duration
	logger    *logger.Logger
}

// NewAuthService creates a new auth service.
// Parameters:
//   - users: user repository.
//   - jwtSecret: HMAC key for dashboard session tokens.
//   - tokenTTL: dashboard session lifetime.
//   - log: logger instance.
// Returns:
//   - *AuthService: initialized service.
func NewAuthService(users *repository.UserRepository, jwtSecret string, tokenTTL time.Duration, log *logger.Logger) *AuthService {
	return &AuthService{
		users:     users,
		jwtSecret: []byte(jwtSecret),
		tokenTTL:  tokenTTL,
		logger:    log,
	}
}

// Register creates a user account and generates their first webhook token.
// Parameters:
//   - ctx: context for cancellation and deadlines.
//   - email: account email, unique.
//   - password: plaintext password, bcrypt-hashed before storage.
// Returns:
//   - *domain.User: created account.
//   - string: plaintext webhook token; not recoverable afterwards.
//   - error: ErrEmailTaken or a persistence error.
func (s *AuthService) Register(ctx context.Context, email, password string) (*domain.User, string, error) {
	if _, err := s.users.GetByEmail(ctx, email); err == nil {
		return nil, "", ErrEmailTaken
	} else if !errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, "", fmt.Errorf("failed to check existing email: %w", err)
	}

	passwordHash, err := bcrypt.GenerateFromPassword([]byte(password), bcrypt.DefaultCost)
	if err != nil {
		return nil, "", fmt.Errorf("failed to hash password: %w", err)
	}

	token, tokenHash, err := newWebhookToken()
	if err != nil {
		return nil, "", err
	}

	user := &domain.User{
		ID:               uuid.New().String(),
		Email:            email,
		PasswordHash:     string(passwordHash),
		WebhookTokenHash: tokenHash,
	}
	if err := s.users.Create(ctx, user); err != nil {
		return nil, "", fmt.Errorf("failed to create user: %w", err)
	}

	logger.CtxInfo(ctx, "User registered: user=%s", user.ID)
	return user, token, nil
}

// Login verifies the password and issues a dashboard session token.
// Parameters:
//   - ctx: context for cancellation and deadlines.
//   - email: account email.
//   - password: plaintext password.
// Returns:
//   - string: signed HS256 JWT.
//   - *domain.User: authenticated account.
//   - error: ErrInvalidCredentials on any mismatch; lookup and comparison
//     failures are deliberately indistinguishable to the caller.
func (s *AuthService) Login(ctx context.Context, email, password string) (string, *domain.User, error) {
	user, err := s.users.GetByEmail(ctx, email)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return "", nil, ErrInvalidCredentials
		}
		return "", nil, fmt.Errorf("failed to look up user: %w", err)
	}

	if err := bcrypt.CompareHashAndPassword([]byte(user.PasswordHash), []byte(password)); err != nil {
		return "", nil, ErrInvalidCredentials
	}

	token, err := s.issueJWT(user)
	if err != nil {
		return "", nil, err
	}
	return token, user, nil
}

// VerifyWebhookToken resolves a presented webhook token to its owning user.
// Parameters:
//   - ctx: context for cancellation and deadlines.
//   - token: plaintext token from the Authorization header.
// Returns:
//   - *domain.User: owning account.
//   - error: ErrInvalidToken when no account matches.
func (s *AuthService) VerifyWebhookToken(ctx context.Context, token string) (*domain.User, error) {
	if token == "" {
		return nil, ErrInvalidToken
	}
	user, err := s.users.GetByWebhookTokenHash(ctx, hashToken(token))
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrInvalidToken
		}
		return nil, fmt.Errorf("failed to look up webhook token: %w", err)
	}
	return user, nil
}

// WebhookTokenStatus reports whether the user has a webhook token configured.
// The token itself is unrecoverable; only its presence is visible.
// Parameters:
//   - ctx: context for cancellation and deadlines.
//   - userID: account to inspect.
// Returns:
//   - bool: true when a token hash is stored.
//   - time.Time: last account update, which bounds the last rotation.
//   - error: non-nil if the lookup fails.
func (s *AuthService) WebhookTokenStatus(ctx context.Context, userID string) (bool, time.Time, error) {
	user, err := s.users.GetByID(ctx, userID)
	if err != nil {
		return false, time.Time{}, fmt.Errorf("failed to look up user: %w", err)
	}
	return user.WebhookTokenHash != "", user.UpdatedAt, nil
}

// RotateWebhookToken replaces the user's webhook token, invalidating the old
// one immediately.
// Parameters:
//   - ctx: context for cancellation and deadlines.
//   - userID: account to rotate.
// Returns:
//   - string: new plaintext token; not recoverable afterwards.
//   - error: non-nil if generation or persistence fails.
func (s *AuthService) RotateWebhookToken(ctx context.Context, userID string) (string, error) {
	token, tokenHash, err := newWebhookToken()
	if err != nil {
		return "", err
	}
	if err := s.users.UpdateWebhookTokenHash(ctx, userID, tokenHash); err != nil {
		return "", fmt.Errorf("failed to rotate webhook token: %w", err)
	}
	logger.CtxInfo(ctx, "Webhook token rotated: user=%s", userID)
	return token, nil
}

// VerifyJWT validates a dashboard session token and returns the user ID.
// Parameters:
//   - token: signed JWT from the Authorization header.
// Returns:
//   - string: user ID from the subject claim.
//   - error: ErrInvalidToken on any validation failure.
func (s *AuthService) VerifyJWT(token string) (string, error) {
	parsed, err := jwt.Parse(token, func(t *jwt.Token) (interface{}, error) {
		if _, ok := t.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("unexpected signing method: %v", t.Header["alg"])
		}
		return s.jwtSecret, nil
	})
	if err != nil || !parsed.Valid {
		return "", ErrInvalidToken
	}
	sub, err := parsed.Claims.GetSubject()
	if err != nil || sub == "" {
		return "", ErrInvalidToken
	}
	return sub, nil
}

func (s *AuthService) issueJWT(user *domain.User) (string, error) {
	now := time.Now()
	claims := jwt.MapClaims{
		"sub":   user.ID,
		"email": user.Email,
		"iat":   now.Unix(),
		"exp":   now.Add(s.tokenTTL).Unix(),
	}
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	signed, err := token.SignedString(s.jwtSecret)
	if err != nil {
		return "", fmt.Errorf("failed to sign token: %w", err)
	}
	return signed, nil
}

// newWebhookToken generates a fresh token and its storage hash.
func newWebhookToken() (token, hash string, err error) {
	buf := make([]byte, webhookTokenBytes)
	if _, err := rand.Read(buf); err != nil {
		return "", "", fmt.Errorf("failed to generate token: %w", err)
	}
	token = hex.EncodeToString(buf)
	return token, hashToken(token), nil
}

// hashToken returns the SHA-256 hex digest used for token storage and lookup.
func hashToken(token string) string {
	sum := sha256.Sum256([]byte(token))
	return hex.EncodeToString(sum[:])
}
