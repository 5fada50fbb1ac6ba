// Package smscodes is the keyed store of pending one-time codes: at most one
// code per phone, replaced atomically on every send.
package smscodes

import (
	"context"
	"time"

	"github.com/dmitrijs2005/eventhub/internal/server/models"
)

type Repository interface {
	// Replace stores code as the only pending code of its phone, overwriting
	// any previous code, expiry and creation time in a single statement.
	Replace(ctx context.Context, code *models.SMSCode) error

	// GetForUpdate returns the pending code of phone and locks the row for
	// the rest of the transaction. Absent rows yield common.ErrorNotFound.
	GetForUpdate(ctx context.Context, phone string) (*models.SMSCode, error)

	// Delete consumes the code of phone.
	Delete(ctx context.Context, phone string) error

	// DeleteExpired purges codes that expired before now.
	DeleteExpired(ctx context.Context, now time.Time) (int64, error)
}
