package models

import "time"

// SMSCode is the single pending one-time code of a phone.
type SMSCode struct {
	Phone     string
	Code      string
	ExpiresAt time.Time
	CreatedAt time.Time
}

// IsExpired reports whether the code expired before now.
func (c *SMSCode) IsExpired(now time.Time) bool {
	return c.ExpiresAt.Before(now)
}
