package services

import (
	"context"
	"time"

	"github.com/dmitrijs2005/eventhub/internal/dbx"
	"github.com/dmitrijs2005/eventhub/internal/logging"
	"github.com/dmitrijs2005/eventhub/internal/server/repositories/repomanager"
)

// Janitor purges expired codes, reset tokens and sessions. Expired rows are
// already treated as invalid; this only reclaims space.
type Janitor struct {
	store       dbx.Transactor
	repomanager repomanager.RepositoryManager
	logger      logging.Logger
	now         func() time.Time
}

func NewJanitor(store dbx.Transactor, m repomanager.RepositoryManager, logger logging.Logger) *Janitor {
	return &Janitor{store: store, repomanager: m, logger: logger.With("module", "janitor"), now: time.Now}
}

// Sweep runs one purge pass and reports how many rows went away per table.
func (j *Janitor) Sweep(ctx context.Context) (map[string]int64, error) {
	now := j.now()
	db := j.store.Conn()

	purged := make(map[string]int64, 3)
	steps := []struct {
		name string
		fn   func(context.Context, time.Time) (int64, error)
	}{
		{"sms_codes", j.repomanager.SMSCodes(db).DeleteExpired},
		{"password_reset_tokens", j.repomanager.ResetTokens(db).DeleteExpired},
		{"sessions", j.repomanager.Sessions(db).DeleteExpired},
	}
	for _, step := range steps {
		n, err := step.fn(ctx, now)
		if err != nil {
			return purged, err
		}
		purged[step.name] = n
	}
	return purged, nil
}

// Run sweeps every interval until ctx is done.
func (j *Janitor) Run(ctx context.Context, interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			purged, err := j.Sweep(ctx)
			if err != nil {
				j.logger.Error(ctx, "cleanup failed", "error", err)
				continue
			}
			j.logger.Debug(ctx, "cleanup done", "purged", purged)
		}
	}
}
