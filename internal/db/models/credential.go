package models

import "time"

// Credential stores the OAuth tokens a user granted for one provider.
// At most one row exists per (user_id, provider).
type Credential struct {
	ID           string     `gorm:"primaryKey"` // UUID
	UserID       string     `gorm:"uniqueIndex:idx_credential_user_provider;not null"`
	Provider     string     `gorm:"uniqueIndex:idx_credential_user_provider;not null"` // registry id, e.g. "google"
	AccessToken  string     `gorm:"type:text;not null"`
	RefreshToken string     `gorm:"type:text"`
	ExpiresAt    *time.Time // nil when the provider issued a non-expiring token
	Scopes       string
	CreatedAt    time.Time
	UpdatedAt    time.Time
}

// Expired reports whether the access token is past its expiry at now.
func (c *Credential) Expired(now time.Time) bool {
	return c.ExpiresAt != nil && !now.Before(*c.ExpiresAt)
}
