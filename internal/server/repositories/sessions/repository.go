// Package sessions declares the issued bearer token store used to verify
// and revoke session tokens.
package sessions

import (
	"context"
	"time"

	"github.com/dmitrijs2005/eventhub/internal/server/models"
)

// Repository defines operations for issuing, retrieving, and revoking sessions.
type Repository interface {
	// Create stores a new session keyed by its token hash.
	Create(ctx context.Context, session *models.Session) error

	// Find looks up a session by token hash.
	// Implementations should return common.ErrorNotFound when the token is absent.
	Find(ctx context.Context, tokenHash string) (*models.Session, error)

	// Delete removes a single session. Deleting a non-existent session is not an error.
	Delete(ctx context.Context, tokenHash string) error

	// DeleteByUser revokes every session of userID.
	DeleteByUser(ctx context.Context, userID string) (int64, error)

	DeleteExpired(ctx context.Context, now time.Time) (int64, error)
}
