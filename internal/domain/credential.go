package domain

import (
	"strings"
	"time"
)

// CredentialStatus represents the rotation status of a stored API credential.
// Values include CredentialStatusActive, CredentialStatusFailed, and CredentialStatusRateLimited.
type CredentialStatus string

const (
	CredentialStatusActive      CredentialStatus = "active"
	CredentialStatusFailed      CredentialStatus = "failed"
	CredentialStatusRateLimited CredentialStatus = "rate_limited"
)

// Credential represents a third-party API key owned by a user.
// The key value is never serialized to API responses; clients see a masked preview.
type Credential struct {
	ID           string           `gorm:"type:text;primaryKey" json:"id"`
	UserID       string           `gorm:"type:text;not null;index:idx_credentials_user" json:"user_id"`
	Label        string           `gorm:"type:text;not null" json:"label"`
	APIKey       string           `gorm:"column:api_key;type:text;not null" json:"-"`
	Status       CredentialStatus `gorm:"type:text;index:idx_credentials_status;default:active" json:"status"`
	FailureCount int              `gorm:"not null;default:0" json:"failure_count"`
	LastUsedAt   *time.Time       `json:"last_used_at,omitempty"`
	LastFailedAt *time.Time       `json:"last_failed_at,omitempty"`
	CreatedAt    time.Time        `json:"created_at"`
	UpdatedAt    time.Time        `json:"updated_at"`
}

// TableName returns the database table name for Credential.
// Parameters: none.
// Returns:
//   - string: table name for GORM mapping.
func (Credential) TableName() string {
	return "credentials"
}

// MaskedKey returns a masked preview of the API key suitable for dashboards.
// Parameters: none.
// Returns:
//   - string: first and last four characters with the middle elided.
func (c *Credential) MaskedKey() string {
	if len(c.APIKey) <= 8 {
		return strings.Repeat("*", len(c.APIKey))
	}
	return c.APIKey[:4] + "..." + c.APIKey[len(c.APIKey)-4:]
}
