package users

import (
	"context"
	"database/sql"
	"errors"
	"regexp"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/dmitrijs2005/eventhub/internal/common"
	"github.com/dmitrijs2005/eventhub/internal/server/models"
	"github.com/jackc/pgerrcode"
	"github.com/jackc/pgx/v5/pgconn"
)

var userCols = []string{"id", "phone", "email", "password_hash", "full_name", "passport_series", "passport_number",
	"passport_issued_by", "passport_issue_date", "date_of_birth", "created_at", "updated_at"}

func newRepoWithMock(t *testing.T) (*PostgresRepository, sqlmock.Sqlmock, *sql.DB) {
	t.Helper()
	db, mock, err := sqlmock.New(sqlmock.QueryMatcherOption(sqlmock.QueryMatcherRegexp))
	if err != nil {
		t.Fatalf("sqlmock.New error: %v", err)
	}
	return NewPostgresRepository(db), mock, db
}

func sampleUser() *models.User {
	return &models.User{
		ID:                "8d3c8c36-5b52-4a45-9a43-1f5f0f4d7a10",
		Phone:             "+15550001",
		PasswordHash:      "salt$digest",
		FullName:          "Ann Lee",
		PassportSeries:    "AB",
		PassportNumber:    "123456",
		PassportIssuedBy:  "Dept 1",
		PassportIssueDate: "2015-04-01",
		DateOfBirth:       "1990-01-01",
	}
}

const insertQ = `(?s)^\s*INSERT\s+INTO\s+users\s*\(id,\s*phone,\s*email,\s*password_hash,.*VALUES\s*\(\$1,.*\$10\)\s*RETURNING\s+created_at,\s*updated_at\s*$`

func TestCreate_Success(t *testing.T) {
	repo, mock, db := newRepoWithMock(t)
	defer db.Close()

	u := sampleUser()
	now := time.Now()

	mock.ExpectQuery(insertQ).
		WithArgs(u.ID, "+15550001", nil, "salt$digest", "Ann Lee", "AB", "123456", "Dept 1", "2015-04-01", "1990-01-01").
		WillReturnRows(sqlmock.NewRows([]string{"created_at", "updated_at"}).AddRow(now, now))

	got, err := repo.Create(context.Background(), u)
	if err != nil {
		t.Fatalf("Create error: %v", err)
	}
	if !got.CreatedAt.Equal(now) || !got.UpdatedAt.Equal(now) {
		t.Fatalf("timestamps not filled: %+v", got)
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Fatalf("unmet expectations: %v", err)
	}
}

func TestCreate_CodeOnlyUserHasNullPassword(t *testing.T) {
	repo, mock, db := newRepoWithMock(t)
	defer db.Close()

	u := &models.User{ID: "id-1", Phone: "+1555"}
	now := time.Now()

	mock.ExpectQuery(insertQ).
		WithArgs("id-1", "+1555", nil, nil, "", "", "", "", "", "").
		WillReturnRows(sqlmock.NewRows([]string{"created_at", "updated_at"}).AddRow(now, now))

	if _, err := repo.Create(context.Background(), u); err != nil {
		t.Fatalf("Create error: %v", err)
	}
}

func TestCreate_UniqueViolation(t *testing.T) {
	repo, mock, db := newRepoWithMock(t)
	defer db.Close()

	mock.ExpectQuery(insertQ).
		WillReturnError(&pgconn.PgError{Code: pgerrcode.UniqueViolation})

	_, err := repo.Create(context.Background(), sampleUser())
	if !errors.Is(err, common.ErrAlreadyExists) {
		t.Fatalf("want common.ErrAlreadyExists, got %v", err)
	}
}

func TestCreate_DBError(t *testing.T) {
	repo, mock, db := newRepoWithMock(t)
	defer db.Close()

	mock.ExpectQuery(insertQ).
		WillReturnError(errors.New("db down"))

	_, err := repo.Create(context.Background(), sampleUser())
	if err == nil || !regexp.MustCompile(`db error: .*db down`).MatchString(err.Error()) {
		t.Fatalf("expected wrapped db error, got %v", err)
	}
}

func TestGetByPhone_Found(t *testing.T) {
	repo, mock, db := newRepoWithMock(t)
	defer db.Close()

	q := `(?s)^SELECT\s+id,\s*phone,.*FROM\s+users\s+WHERE\s+phone\s*=\s*\$1$`
	now := time.Now()
	rows := sqlmock.NewRows(userCols).
		AddRow("u-1", "+1555", nil, nil, "Ann", "", "", "", "", "", now, now)
	mock.ExpectQuery(q).WithArgs("+1555").WillReturnRows(rows)

	got, err := repo.GetByPhone(context.Background(), "+1555")
	if err != nil {
		t.Fatalf("GetByPhone error: %v", err)
	}
	if got.ID != "u-1" || got.Phone != "+1555" || got.Email != "" || got.HasPassword() {
		t.Fatalf("unexpected user: %+v", got)
	}
}

func TestGetByEmail_CaseInsensitive(t *testing.T) {
	repo, mock, db := newRepoWithMock(t)
	defer db.Close()

	q := `(?s)^SELECT\s+id,.*FROM\s+users\s+WHERE\s+lower\(email\)\s*=\s*lower\(\$1\)$`
	now := time.Now()
	rows := sqlmock.NewRows(userCols).
		AddRow("u-2", nil, "ann@example.com", "s$d", "Ann", "", "", "", "", "", now, now)
	mock.ExpectQuery(q).WithArgs("Ann@Example.com").WillReturnRows(rows)

	got, err := repo.GetByEmail(context.Background(), "Ann@Example.com")
	if err != nil {
		t.Fatalf("GetByEmail error: %v", err)
	}
	if got.Email != "ann@example.com" || got.PasswordHash != "s$d" {
		t.Fatalf("unexpected user: %+v", got)
	}
}

func TestGetByID_NotFound(t *testing.T) {
	repo, mock, db := newRepoWithMock(t)
	defer db.Close()

	q := `(?s)^SELECT\s+id,.*FROM\s+users\s+WHERE\s+id\s*=\s*\$1$`
	mock.ExpectQuery(q).WithArgs("ghost").WillReturnError(sql.ErrNoRows)

	_, err := repo.GetByID(context.Background(), "ghost")
	if !errors.Is(err, common.ErrorNotFound) {
		t.Fatalf("want common.ErrorNotFound, got %v", err)
	}
}

func TestGetByPhone_DBError(t *testing.T) {
	repo, mock, db := newRepoWithMock(t)
	defer db.Close()

	q := `(?s)^SELECT\s+id,.*FROM\s+users\s+WHERE\s+phone\s*=\s*\$1$`
	mock.ExpectQuery(q).WithArgs("+1").WillReturnError(errors.New("db err"))

	_, err := repo.GetByPhone(context.Background(), "+1")
	if err == nil || !regexp.MustCompile(`db error: .*db err`).MatchString(err.Error()) {
		t.Fatalf("expected wrapped db error, got %v", err)
	}
}

func TestDeleteByIdentity(t *testing.T) {
	repo, mock, db := newRepoWithMock(t)
	defer db.Close()

	q := `(?s)^\s*DELETE\s+FROM\s+users\s+WHERE.*phone\s*=\s*\$1.*lower\(email\)\s*=\s*lower\(\$2\)\)\s*$`
	mock.ExpectExec(q).WithArgs("+1555", nil).WillReturnResult(sqlmock.NewResult(0, 1))

	n, err := repo.DeleteByIdentity(context.Background(), "+1555", "")
	if err != nil {
		t.Fatalf("DeleteByIdentity error: %v", err)
	}
	if n != 1 {
		t.Fatalf("want 1 deleted row, got %d", n)
	}
}

func TestDeleteByIdentity_NothingToMatch(t *testing.T) {
	repo, mock, db := newRepoWithMock(t)
	defer db.Close()

	n, err := repo.DeleteByIdentity(context.Background(), "", "")
	if err != nil || n != 0 {
		t.Fatalf("want (0, nil), got (%d, %v)", n, err)
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Fatalf("unexpected query: %v", err)
	}
}

func TestDeleteByIdentity_DBError(t *testing.T) {
	repo, mock, db := newRepoWithMock(t)
	defer db.Close()

	mock.ExpectExec(`DELETE\s+FROM\s+users`).WillReturnError(errors.New("db err"))

	_, err := repo.DeleteByIdentity(context.Background(), "", "a@b.c")
	if err == nil || !regexp.MustCompile(`db error: .*db err`).MatchString(err.Error()) {
		t.Fatalf("expected wrapped db error, got %v", err)
	}
}

func TestUpdatePassword(t *testing.T) {
	repo, mock, db := newRepoWithMock(t)
	defer db.Close()

	q := `(?s)^\s*UPDATE\s+users\s+SET\s+password_hash\s*=\s*\$2,\s*updated_at\s*=\s*\$3\s+WHERE\s+id\s*=\s*\$1\s*$`
	mock.ExpectExec(q).WithArgs("u-1", "new$hash", sqlmock.AnyArg()).WillReturnResult(sqlmock.NewResult(0, 1))

	if err := repo.UpdatePassword(context.Background(), "u-1", "new$hash"); err != nil {
		t.Fatalf("UpdatePassword error: %v", err)
	}
}

func TestUpdatePassword_NotFound(t *testing.T) {
	repo, mock, db := newRepoWithMock(t)
	defer db.Close()

	mock.ExpectExec(`UPDATE\s+users`).WillReturnResult(sqlmock.NewResult(0, 0))

	err := repo.UpdatePassword(context.Background(), "ghost", "h")
	if !errors.Is(err, common.ErrorNotFound) {
		t.Fatalf("want common.ErrorNotFound, got %v", err)
	}
}
