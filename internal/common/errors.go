// Package common defines shared constants and sentinel errors used across
// the service layers. Callers should use errors.Is to match these values.
package common

import "errors"

var (
	// Repository-level errors.
	ErrorNotFound    = errors.New("not found")
	ErrAlreadyExists = errors.New("already exists")

	// Service-level errors (generic/internal flow control).
	ErrorInternal     = errors.New("internal error")
	ErrorUnauthorized = errors.New("unauthorized")
	ErrValidation     = errors.New("validation error")
	ErrRateLimited    = errors.New("too many requests")

	// ErrInvalidCredentials is returned for both unknown identities and wrong
	// passwords so callers cannot enumerate accounts.
	ErrInvalidCredentials = errors.New("invalid phone/email or password")

	// One-time code errors.
	ErrCodeNotFound = errors.New("code not found")
	ErrCodeExpired  = errors.New("code expired")
	ErrCodeMismatch = errors.New("code mismatch")

	// Token lifecycle errors.
	ErrInvalidToken  = errors.New("invalid token")
	ErrTokenNotFound = errors.New("token not found")
	ErrTokenExpired  = errors.New("token expired")
)
