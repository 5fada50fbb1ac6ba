package smscodes

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/dmitrijs2005/eventhub/internal/common"
	"github.com/dmitrijs2005/eventhub/internal/dbx"
	"github.com/dmitrijs2005/eventhub/internal/server/models"
)

type PostgresRepository struct {
	db dbx.DBTX
}

func NewPostgresRepository(db dbx.DBTX) *PostgresRepository {
	return &PostgresRepository{db: db}
}

func (r *PostgresRepository) Replace(ctx context.Context, code *models.SMSCode) error {
	query := `
		INSERT INTO sms_codes (phone, code, expires_at, created_at)
		VALUES ($1, $2, $3, $4)
		ON CONFLICT (phone) DO UPDATE
		SET code = EXCLUDED.code, expires_at = EXCLUDED.expires_at, created_at = EXCLUDED.created_at
	`
	if _, err := r.db.ExecContext(ctx, query, code.Phone, code.Code, code.ExpiresAt, code.CreatedAt); err != nil {
		return fmt.Errorf("db error: %w", err)
	}
	return nil
}

func (r *PostgresRepository) GetForUpdate(ctx context.Context, phone string) (*models.SMSCode, error) {
	query := `
		SELECT phone, code, expires_at, created_at
		FROM sms_codes
		WHERE phone = $1
		FOR UPDATE
	`
	c := &models.SMSCode{}
	err := r.db.QueryRowContext(ctx, query, phone).Scan(&c.Phone, &c.Code, &c.ExpiresAt, &c.CreatedAt)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, common.ErrorNotFound
		}
		return nil, fmt.Errorf("db error: %w", err)
	}
	return c, nil
}

func (r *PostgresRepository) Delete(ctx context.Context, phone string) error {
	if _, err := r.db.ExecContext(ctx, `DELETE FROM sms_codes WHERE phone = $1`, phone); err != nil {
		return fmt.Errorf("db error: %w", err)
	}
	return nil
}

func (r *PostgresRepository) DeleteExpired(ctx context.Context, now time.Time) (int64, error) {
	res, err := r.db.ExecContext(ctx, `DELETE FROM sms_codes WHERE expires_at < $1`, now)
	if err != nil {
		return 0, fmt.Errorf("db error: %w", err)
	}
	return res.RowsAffected()
}
