package models

import "time"

// Session is an issued bearer token. Only the token hash is stored.
type Session struct {
	TokenHash string
	UserID    string
	ExpiresAt time.Time
	CreatedAt time.Time
}

// IsExpired reports whether the session is no longer valid at now.
func (s *Session) IsExpired(now time.Time) bool {
	return !now.Before(s.ExpiresAt)
}
