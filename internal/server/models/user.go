// Package models holds the persistent records of the auth service.
package models

import "time"

// User is an account keyed by phone and/or email. PasswordHash is empty for
// accounts created through SMS code login only.
type User struct {
	ID                string
	Phone             string
	Email             string
	PasswordHash      string
	FullName          string
	PassportSeries    string
	PassportNumber    string
	PassportIssuedBy  string
	PassportIssueDate string
	DateOfBirth       string
	CreatedAt         time.Time
	UpdatedAt         time.Time
}

// HasPassword reports whether the account can log in with a password.
func (u *User) HasPassword() bool {
	return u.PasswordHash != ""
}
