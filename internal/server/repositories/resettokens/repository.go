// Package resettokens persists pending password reset tokens by hash.
package resettokens

import (
	"context"
	"time"

	"github.com/dmitrijs2005/eventhub/internal/server/models"
)

// Repository defines the reset token ledger.
type Repository interface {
	Create(ctx context.Context, token *models.ResetToken) error

	// GetForUpdate looks up a token by hash and locks its row. Absent rows
	// yield common.ErrorNotFound.
	GetForUpdate(ctx context.Context, tokenHash string) (*models.ResetToken, error)

	// DeleteByUser removes every reset token of userID, not only the redeemed one.
	DeleteByUser(ctx context.Context, userID string) (int64, error)

	DeleteExpired(ctx context.Context, now time.Time) (int64, error)
}
