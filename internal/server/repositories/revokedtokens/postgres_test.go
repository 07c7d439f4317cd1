package revokedtokens

import (
	"context"
	"database/sql"
	"errors"
	"regexp"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
)

func newRepoWithMock(t *testing.T) (*PostgresRepository, sqlmock.Sqlmock, *sql.DB) {
	t.Helper()
	db, mock, err := sqlmock.New(sqlmock.QueryMatcherOption(sqlmock.QueryMatcherRegexp))
	if err != nil {
		t.Fatalf("sqlmock.New error: %v", err)
	}
	return NewPostgresRepository(db), mock, db
}

const insertQ = `(?s)^\s*INSERT\s+INTO\s+revoked_tokens\b.*VALUES\s*\(\$1,\s*\$2\)\s*ON\s+CONFLICT\s*\(token_id\)\s*DO\s+NOTHING\s*$`

func TestCreate_Success(t *testing.T) {
	repo, mock, db := newRepoWithMock(t)
	defer db.Close()

	exp := time.Now().Add(time.Hour)
	mock.ExpectExec(insertQ).
		WithArgs("jti-1", exp).
		WillReturnResult(sqlmock.NewResult(0, 1))

	if err := repo.Create(context.Background(), "jti-1", exp); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Fatalf("unmet expectations: %v", err)
	}
}

func TestCreate_DBError(t *testing.T) {
	repo, mock, db := newRepoWithMock(t)
	defer db.Close()

	mock.ExpectExec(insertQ).
		WithArgs("jti-1", sqlmock.AnyArg()).
		WillReturnError(errors.New("db down"))

	err := repo.Create(context.Background(), "jti-1", time.Now())
	if err == nil || !regexp.MustCompile(`error performing sql request: .*db down`).MatchString(err.Error()) {
		t.Fatalf("expected wrapped db error, got %v", err)
	}
}

func TestExists(t *testing.T) {
	repo, mock, db := newRepoWithMock(t)
	defer db.Close()

	q := `^SELECT\s+EXISTS\s*\(SELECT\s+1\s+FROM\s+revoked_tokens\s+WHERE\s+token_id\s*=\s*\$1\s+AND\s+expires_at\s*>\s*now\(\)\)$`
	mock.ExpectQuery(q).WithArgs("jti-1").
		WillReturnRows(sqlmock.NewRows([]string{"exists"}).AddRow(true))
	mock.ExpectQuery(q).WithArgs("jti-2").
		WillReturnRows(sqlmock.NewRows([]string{"exists"}).AddRow(false))

	found, err := repo.Exists(context.Background(), "jti-1")
	if err != nil || !found {
		t.Fatalf("jti-1: got %v, %v", found, err)
	}
	found, err = repo.Exists(context.Background(), "jti-2")
	if err != nil || found {
		t.Fatalf("jti-2: got %v, %v", found, err)
	}
}

func TestExists_DBError(t *testing.T) {
	repo, mock, db := newRepoWithMock(t)
	defer db.Close()

	mock.ExpectQuery(`revoked_tokens`).WillReturnError(errors.New("db err"))

	if _, err := repo.Exists(context.Background(), "jti-1"); err == nil || !regexp.MustCompile(`db error: .*db err`).MatchString(err.Error()) {
		t.Fatalf("expected wrapped db error, got %v", err)
	}
}

func TestDeleteExpired(t *testing.T) {
	repo, mock, db := newRepoWithMock(t)
	defer db.Close()

	mock.ExpectExec(`^DELETE\s+FROM\s+revoked_tokens\s+WHERE\s+expires_at\s*<=\s*now\(\)$`).
		WillReturnResult(sqlmock.NewResult(0, 3))

	n, err := repo.DeleteExpired(context.Background())
	if err != nil || n != 3 {
		t.Fatalf("got %d, %v", n, err)
	}
}
