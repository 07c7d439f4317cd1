package fields

import (
	"bytes"
	"context"
	"database/sql"
	"errors"
	"regexp"
	"testing"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/placementhub/vault/internal/common"
	"github.com/placementhub/vault/internal/cryptox"
	"github.com/placementhub/vault/internal/server/models"
)

func newRepoWithMock(t *testing.T) (*PostgresRepository, sqlmock.Sqlmock, *sql.DB) {
	t.Helper()
	db, mock, err := sqlmock.New(sqlmock.QueryMatcherOption(sqlmock.QueryMatcherRegexp))
	if err != nil {
		t.Fatalf("sqlmock.New error: %v", err)
	}
	return NewPostgresRepository(db), mock, db
}

func sealed(version uint32) cryptox.EncryptedField {
	return cryptox.EncryptedField{
		Ciphertext: []byte("ct"),
		IV:         bytes.Repeat([]byte{1}, cryptox.IVSize),
		AuthTag:    bytes.Repeat([]byte{2}, cryptox.TagSize),
		KeyVersion: version,
	}
}

const upsertQ = `(?s)^\s*INSERT\s+INTO\s+user_encrypted_fields\b.*ON\s+CONFLICT\s*\(user_id,\s*field_name\)\s*DO\s+UPDATE\s+SET.*$`

func TestUpsert_Success(t *testing.T) {
	repo, mock, db := newRepoWithMock(t)
	defer db.Close()

	f := sealed(2)
	mock.ExpectExec(upsertQ).
		WithArgs("u-1", "contactNumber", f.Ciphertext, f.IV, f.AuthTag, int64(2)).
		WillReturnResult(sqlmock.NewResult(0, 1))

	err := repo.Upsert(context.Background(), &models.EncryptedFieldRow{UserID: "u-1", Name: models.FieldContactNumber, Field: f})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Fatalf("unmet expectations: %v", err)
	}
}

func TestUpsert_RejectsPartialTriple(t *testing.T) {
	repo, mock, db := newRepoWithMock(t)
	defer db.Close()

	f := sealed(1)
	f.AuthTag = nil
	err := repo.Upsert(context.Background(), &models.EncryptedFieldRow{UserID: "u-1", Name: models.FieldGender, Field: f})
	if !errors.Is(err, cryptox.ErrMalformedInput) {
		t.Fatalf("want cryptox.ErrMalformedInput, got %v", err)
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Fatalf("no query expected: %v", err)
	}
}

func TestUpsert_UnknownUser(t *testing.T) {
	repo, mock, db := newRepoWithMock(t)
	defer db.Close()

	mock.ExpectExec(upsertQ).WillReturnError(&pgconn.PgError{Code: "23503"})

	err := repo.Upsert(context.Background(), &models.EncryptedFieldRow{UserID: "ghost", Name: models.FieldSapID, Field: sealed(1)})
	if !errors.Is(err, common.ErrNotFound) {
		t.Fatalf("want common.ErrNotFound, got %v", err)
	}
}

func TestDelete(t *testing.T) {
	repo, mock, db := newRepoWithMock(t)
	defer db.Close()

	q := `^DELETE\s+FROM\s+user_encrypted_fields\s+WHERE\s+user_id\s*=\s*\$1\s+AND\s+field_name\s*=\s*\$2$`
	mock.ExpectExec(q).WithArgs("u-1", "dob").WillReturnResult(sqlmock.NewResult(0, 0))
	mock.ExpectExec(q).WithArgs("u-1", "dob").WillReturnError(errors.New("db down"))

	if err := repo.Delete(context.Background(), "u-1", models.FieldDOB); err != nil {
		t.Fatalf("deleting an absent field should succeed: %v", err)
	}
	err := repo.Delete(context.Background(), "u-1", models.FieldDOB)
	if err == nil || !regexp.MustCompile(`db error: .*db down`).MatchString(err.Error()) {
		t.Fatalf("expected wrapped db error, got %v", err)
	}
}

var fieldCols = []string{"user_id", "field_name", "ciphertext", "iv", "auth_tag", "key_version"}

func TestListByUser(t *testing.T) {
	repo, mock, db := newRepoWithMock(t)
	defer db.Close()

	f := sealed(3)
	q := `(?s)^\s*SELECT\s+user_id,\s*field_name,.*FROM\s+user_encrypted_fields\s+WHERE\s+user_id\s*=\s*\$1\s+ORDER\s+BY\s+field_name\s*$`
	mock.ExpectQuery(q).WithArgs("u-1").
		WillReturnRows(sqlmock.NewRows(fieldCols).
			AddRow("u-1", "address.city", f.Ciphertext, f.IV, f.AuthTag, int64(3)).
			AddRow("u-1", "contactNumber", f.Ciphertext, f.IV, f.AuthTag, int64(1)))

	got, err := repo.ListByUser(context.Background(), "u-1")
	if err != nil {
		t.Fatalf("ListByUser error: %v", err)
	}
	if len(got) != 2 {
		t.Fatalf("want 2 rows, got %d", len(got))
	}
	if got[0].Name != models.FieldAddressCity || got[0].Field.KeyVersion != 3 {
		t.Fatalf("unexpected first row: %+v", got[0])
	}
	if got[1].Name != models.FieldContactNumber || got[1].Field.KeyVersion != 1 {
		t.Fatalf("unexpected second row: %+v", got[1])
	}
}

func TestListByUser_UnknownFieldName(t *testing.T) {
	repo, mock, db := newRepoWithMock(t)
	defer db.Close()

	f := sealed(1)
	mock.ExpectQuery(`FROM\s+user_encrypted_fields`).WithArgs("u-1").
		WillReturnRows(sqlmock.NewRows(fieldCols).AddRow("u-1", "ssn", f.Ciphertext, f.IV, f.AuthTag, int64(1)))

	if _, err := repo.ListByUser(context.Background(), "u-1"); err == nil {
		t.Fatal("expected error for unknown field name")
	}
}

func TestListByKeyVersion(t *testing.T) {
	repo, mock, db := newRepoWithMock(t)
	defer db.Close()

	f := sealed(1)
	q := `(?s)WHERE\s+key_version\s*=\s*\$1.*LIMIT\s+\$2\s+FOR\s+UPDATE\s*$`
	mock.ExpectQuery(q).WithArgs(int64(1), 100).
		WillReturnRows(sqlmock.NewRows(fieldCols).AddRow("u-1", "rollNo", f.Ciphertext, f.IV, f.AuthTag, int64(1)))

	got, err := repo.ListByKeyVersion(context.Background(), 1, 100)
	if err != nil {
		t.Fatalf("ListByKeyVersion error: %v", err)
	}
	if len(got) != 1 || got[0].Name != models.FieldRollNo {
		t.Fatalf("unexpected rows: %+v", got)
	}
}

func TestListByKeyVersion_DBError(t *testing.T) {
	repo, mock, db := newRepoWithMock(t)
	defer db.Close()

	mock.ExpectQuery(`FOR\s+UPDATE`).WillReturnError(errors.New("boom"))

	_, err := repo.ListByKeyVersion(context.Background(), 1, 10)
	if err == nil || !regexp.MustCompile(`failed to select fields: .*boom`).MatchString(err.Error()) {
		t.Fatalf("expected wrapped error, got %v", err)
	}
}

func TestReplaceSealed(t *testing.T) {
	repo, mock, db := newRepoWithMock(t)
	defer db.Close()

	f := sealed(2)
	q := `(?s)^\s*UPDATE\s+user_encrypted_fields\s+SET.*WHERE\s+user_id\s*=\s*\$1\s+AND\s+field_name\s*=\s*\$2\s+AND\s+key_version\s*=\s*\$7\s*$`
	mock.ExpectExec(q).
		WithArgs("u-1", "gender", f.Ciphertext, f.IV, f.AuthTag, int64(2), int64(1)).
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectExec(q).
		WithArgs("u-1", "gender", f.Ciphertext, f.IV, f.AuthTag, int64(2), int64(1)).
		WillReturnResult(sqlmock.NewResult(0, 0))

	row := &models.EncryptedFieldRow{UserID: "u-1", Name: models.FieldGender, Field: f}
	if err := repo.ReplaceSealed(context.Background(), row, 1); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if err := repo.ReplaceSealed(context.Background(), row, 1); !errors.Is(err, common.ErrVersionConflict) {
		t.Fatalf("want common.ErrVersionConflict, got %v", err)
	}
}
