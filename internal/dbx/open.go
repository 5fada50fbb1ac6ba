package dbx

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	_ "github.com/jackc/pgx/v5/stdlib"
	"github.com/sethvargo/go-retry"
)

// Open opens a pgx-backed pool and pings it, retrying while the database
// is still starting up.
func Open(ctx context.Context, dsn string, attempts uint64) (*sql.DB, error) {
	db, err := sql.Open("pgx", dsn)
	if err != nil {
		return nil, fmt.Errorf("db open error: %w", err)
	}

	if err := Ping(ctx, db, attempts, 500*time.Millisecond); err != nil {
		_ = db.Close()
		return nil, err
	}
	return db, nil
}

// Ping pings db up to attempts+1 times with exponential backoff.
func Ping(ctx context.Context, db *sql.DB, attempts uint64, base time.Duration) error {
	b := retry.WithMaxRetries(attempts, retry.NewExponential(base))
	err := retry.Do(ctx, b, func(ctx context.Context) error {
		if err := db.PingContext(ctx); err != nil {
			return retry.RetryableError(err)
		}
		return nil
	})
	if err != nil {
		return fmt.Errorf("db ping error: %w", err)
	}
	return nil
}
