package users

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

const userColumns = `id, phone, email, password_hash, full_name, passport_series, passport_number,
		passport_issued_by, passport_issue_date, date_of_birth, created_at, updated_at`

// PostgresRepository implements Repository over dbx.DBTX.
type PostgresRepository struct {
	db dbx.DBTX
}

func NewPostgresRepository(db dbx.DBTX) *PostgresRepository {
	return &PostgresRepository{db: db}
}

func (r *PostgresRepository) Create(ctx context.Context, user *models.User) (*models.User, error) {
	query := `
		INSERT INTO users (id, phone, email, password_hash, full_name, passport_series, passport_number,
			passport_issued_by, passport_issue_date, date_of_birth)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)
		RETURNING created_at, updated_at
	`
	err := r.db.QueryRowContext(ctx, query,
		user.ID, nullString(user.Phone), nullString(user.Email), nullString(user.PasswordHash),
		user.FullName, user.PassportSeries, user.PassportNumber,
		user.PassportIssuedBy, user.PassportIssueDate, user.DateOfBirth,
	).Scan(&user.CreatedAt, &user.UpdatedAt)
	if err != nil {
		if dbx.IsUniqueViolation(err) {
			return nil, fmt.Errorf("%w: %v", common.ErrAlreadyExists, err)
		}
		return nil, fmt.Errorf("db error: %w", err)
	}

	return user, nil
}

func (r *PostgresRepository) GetByID(ctx context.Context, id string) (*models.User, error) {
	return r.getBy(ctx, `SELECT `+userColumns+` FROM users WHERE id = $1`, id)
}

func (r *PostgresRepository) GetByPhone(ctx context.Context, phone string) (*models.User, error) {
	return r.getBy(ctx, `SELECT `+userColumns+` FROM users WHERE phone = $1`, phone)
}

func (r *PostgresRepository) GetByEmail(ctx context.Context, email string) (*models.User, error) {
	return r.getBy(ctx, `SELECT `+userColumns+` FROM users WHERE lower(email) = lower($1)`, email)
}

func (r *PostgresRepository) getBy(ctx context.Context, query string, arg string) (*models.User, error) {
	user, err := scanUser(r.db.QueryRowContext(ctx, query, arg))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, common.ErrorNotFound
		}
		return nil, fmt.Errorf("db error: %w", err)
	}
	return user, nil
}

func (r *PostgresRepository) DeleteByIdentity(ctx context.Context, phone, email string) (int64, error) {
	if phone == "" && email == "" {
		return 0, nil
	}

	query := `
		DELETE FROM users
		WHERE ($1::text IS NOT NULL AND phone = $1)
		   OR ($2::text IS NOT NULL AND lower(email) = lower($2))
	`
	res, err := r.db.ExecContext(ctx, query, nullString(phone), nullString(email))
	if err != nil {
		return 0, fmt.Errorf("db error: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("db error: %w", err)
	}
	return n, nil
}

func (r *PostgresRepository) UpdatePassword(ctx context.Context, userID, passwordHash string) error {
	query := `
		UPDATE users SET password_hash = $2, updated_at = $3
		WHERE id = $1
	`
	res, err := r.db.ExecContext(ctx, query, userID, passwordHash, time.Now().UTC())
	if err != nil {
		return fmt.Errorf("db error: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("db error: %w", err)
	}
	if n == 0 {
		return common.ErrorNotFound
	}
	return nil
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanUser(row rowScanner) (*models.User, error) {
	var (
		u                     models.User
		phone, email, pwdHash sql.NullString
	)
	err := row.Scan(&u.ID, &phone, &email, &pwdHash, &u.FullName, &u.PassportSeries, &u.PassportNumber,
		&u.PassportIssuedBy, &u.PassportIssueDate, &u.DateOfBirth, &u.CreatedAt, &u.UpdatedAt)
	if err != nil {
		return nil, err
	}
	u.Phone, u.Email, u.PasswordHash = phone.String, email.String, pwdHash.String
	return &u, nil
}

// nullString maps "" to SQL NULL so unique constraints ignore absent identities.
func nullString(s string) sql.NullString {
	return sql.NullString{String: s, Valid: s != ""}
}
