// Package dbx provides tiny DB abstractions shared by repositories:
// a minimal interface (DBTX) implemented by both *sql.DB and *sql.Tx,
// a helper to run functions inside a transaction, and a Store that
// retries transactions aborted by Postgres serialization conflicts.
package dbx

import (
	"context"
	"database/sql"
	"errors"
	"time"

	"github.com/jackc/pgerrcode"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/sethvargo/go-retry"
)

// DBTX is the subset of database/sql used by our repos.
// Both *sql.DB and *sql.Tx satisfy this interface.
type DBTX interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
	QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error)
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
}

// TxFunc is the body of a transaction.
type TxFunc func(ctx context.Context, tx DBTX) error

// Transactor is what services depend on: a plain handle for single
// statements and a transaction runner for read-check-write sequences.
type Transactor interface {
	Conn() DBTX
	WithTx(ctx context.Context, fn TxFunc) error
}

// WithTx begins a transaction, runs fn with a transactional handle, and then
// commits on success or rolls back on error/panic. Panics are rethrown.
//
// Typical use:
//
//	err := dbx.WithTx(ctx, db, nil, func(ctx context.Context, tx dbx.DBTX) error {
//	    _, err := tx.ExecContext(ctx, "UPDATE ...")
//	    return err
//	})
func WithTx(ctx context.Context, db *sql.DB, opts *sql.TxOptions, fn TxFunc) (err error) {
	tx, err := db.BeginTx(ctx, opts)
	if err != nil {
		return err
	}

	defer func() {
		if p := recover(); p != nil {
			_ = tx.Rollback()
			panic(p)
		}
		if err != nil {
			_ = tx.Rollback()
			return
		}
		err = tx.Commit()
	}()

	err = fn(ctx, tx)
	return err
}

// IsRetryable reports whether err is a Postgres serialization failure or
// deadlock, i.e. the whole transaction can safely be run again.
func IsRetryable(err error) bool {
	var pgErr *pgconn.PgError
	if !errors.As(err, &pgErr) {
		return false
	}
	return pgErr.Code == pgerrcode.SerializationFailure || pgErr.Code == pgerrcode.DeadlockDetected
}

// IsUniqueViolation reports whether err is a unique constraint violation.
func IsUniqueViolation(err error) bool {
	var pgErr *pgconn.PgError
	return errors.As(err, &pgErr) && pgErr.Code == pgerrcode.UniqueViolation
}

// Store wraps *sql.DB and implements Transactor.
type Store struct {
	db         *sql.DB
	opts       *sql.TxOptions
	maxRetries uint64
	baseDelay  time.Duration
}

// Option customizes a Store.
type Option func(*Store)

// WithTxOptions sets the options used for every transaction.
func WithTxOptions(opts *sql.TxOptions) Option {
	return func(s *Store) { s.opts = opts }
}

// WithRetries sets how many times a retryable transaction is re-run and the
// initial backoff delay.
func WithRetries(max uint64, base time.Duration) Option {
	return func(s *Store) {
		s.maxRetries = max
		s.baseDelay = base
	}
}

// NewStore builds a Store. By default a conflicting transaction is retried
// up to 3 times starting at 20ms.
func NewStore(db *sql.DB, opts ...Option) *Store {
	s := &Store{db: db, maxRetries: 3, baseDelay: 20 * time.Millisecond}
	for _, o := range opts {
		o(s)
	}
	return s
}

// DB exposes the underlying pool.
func (s *Store) DB() *sql.DB { return s.db }

// Conn returns a non-transactional handle.
func (s *Store) Conn() DBTX { return s.db }

// WithTx runs fn in a transaction, re-running it on serialization failures.
func (s *Store) WithTx(ctx context.Context, fn TxFunc) error {
	b := retry.WithMaxRetries(s.maxRetries, retry.NewExponential(s.baseDelay))
	return retry.Do(ctx, b, func(ctx context.Context) error {
		err := WithTx(ctx, s.db, s.opts, fn)
		if IsRetryable(err) {
			return retry.RetryableError(err)
		}
		return err
	})
}
