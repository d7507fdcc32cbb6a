package domain

import "time"

// User represents a dashboard account.
// PasswordHash is a bcrypt hash; WebhookTokenHash is the SHA-256 of the per-user
// webhook token. Neither is ever serialized to API responses.
type User struct {
	ID               string    `gorm:"type:text;primaryKey" json:"id"`
	Email            string    `gorm:"type:text;not null;uniqueIndex:idx_users_email" json:"email"`
	PasswordHash     string    `gorm:"type:text;not null" json:"-"`
	WebhookTokenHash string    `gorm:"type:text;index:idx_users_webhook_token" json:"-"`
	CreatedAt        time.Time `json:"created_at"`
	UpdatedAt        time.Time `json:"updated_at"`
}

// TableName returns the database table name for User.
// Parameters: none.
// Returns:
//   - string: table name for GORM mapping.
func (User) TableName() string {
	return "users"
}
