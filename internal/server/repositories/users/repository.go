// Package users declares the credential store: persistence of user records
// keyed by phone and/or email.
package users

import (
	"context"

	"github.com/dmitrijs2005/eventhub/internal/server/models"
)

// Repository defines the operations AuthService needs on user records.
type Repository interface {
	// Create inserts user (ID assigned by the caller) and fills its timestamps.
	// A phone or email already taken yields common.ErrAlreadyExists.
	Create(ctx context.Context, user *models.User) (*models.User, error)

	// GetByID, GetByPhone and GetByEmail return common.ErrorNotFound when absent.
	GetByID(ctx context.Context, id string) (*models.User, error)
	GetByPhone(ctx context.Context, phone string) (*models.User, error)
	GetByEmail(ctx context.Context, email string) (*models.User, error)

	// DeleteByIdentity removes every user holding phone or email. Empty
	// values are ignored. It returns the number of deleted rows.
	DeleteByIdentity(ctx context.Context, phone, email string) (int64, error)

	// UpdatePassword replaces the stored credential of a user.
	UpdatePassword(ctx context.Context, userID, passwordHash string) error
}
