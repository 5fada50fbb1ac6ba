package models

import "time"

// ResetToken is a pending password reset. Only the token hash is stored.
type ResetToken struct {
	TokenHash string
	UserID    string
	ExpiresAt time.Time
	CreatedAt time.Time
}

// IsExpired reports whether the token expired before now.
func (t *ResetToken) IsExpired(now time.Time) bool {
	return t.ExpiresAt.Before(now)
}
