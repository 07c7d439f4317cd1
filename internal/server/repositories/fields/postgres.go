// Package fields provides the PostgreSQL repository for encrypted user fields.
//
// Ciphertext, IV, auth tag and key version live in one row, so replacing a
// field is a single statement and never leaves a partially written triple.
package fields

import (
	"context"
	"fmt"

	"github.com/placementhub/vault/internal/common"
	"github.com/placementhub/vault/internal/dbx"
	"github.com/placementhub/vault/internal/server/models"
)

// PostgresRepository implements Repository over a dbx.DBTX (*sql.DB or *sql.Tx).
type PostgresRepository struct {
	db dbx.DBTX
}

// NewPostgresRepository constructs a repository bound to the given DBTX.
func NewPostgresRepository(db dbx.DBTX) *PostgresRepository {
	return &PostgresRepository{db: db}
}

// Upsert writes the whole encrypted triple for (user, field).
// A missing user yields common.ErrNotFound.
func (r *PostgresRepository) Upsert(ctx context.Context, row *models.EncryptedFieldRow) error {
	if err := row.Field.Validate(); err != nil {
		return err
	}
	query := `
		INSERT INTO user_encrypted_fields (user_id, field_name, ciphertext, iv, auth_tag, key_version)
		VALUES ($1, $2, $3, $4, $5, $6)
		ON CONFLICT (user_id, field_name)
		DO UPDATE SET
			ciphertext = EXCLUDED.ciphertext,
			iv = EXCLUDED.iv,
			auth_tag = EXCLUDED.auth_tag,
			key_version = EXCLUDED.key_version,
			updated_at = now()
	`
	_, err := r.db.ExecContext(ctx, query,
		row.UserID, string(row.Name), row.Field.Ciphertext, row.Field.IV, row.Field.AuthTag, int64(row.Field.KeyVersion))
	if err != nil {
		if dbx.IsForeignKeyViolation(err) {
			return common.ErrNotFound
		}
		return fmt.Errorf("db error: %w", err)
	}
	return nil
}

// Delete clears a field. Deleting an absent field is not an error.
func (r *PostgresRepository) Delete(ctx context.Context, userID string, name models.FieldName) error {
	query := `DELETE FROM user_encrypted_fields WHERE user_id = $1 AND field_name = $2`
	if _, err := r.db.ExecContext(ctx, query, userID, string(name)); err != nil {
		return fmt.Errorf("db error: %w", err)
	}
	return nil
}

// ListByUser returns every encrypted field stored for userID.
func (r *PostgresRepository) ListByUser(ctx context.Context, userID string) ([]*models.EncryptedFieldRow, error) {
	query := `
		SELECT user_id, field_name, ciphertext, iv, auth_tag, key_version
		FROM user_encrypted_fields
		WHERE user_id = $1
		ORDER BY field_name
	`
	return r.list(ctx, query, userID)
}

// ListByKeyVersion must run inside a transaction for the row locks to matter.
func (r *PostgresRepository) ListByKeyVersion(ctx context.Context, version uint32, limit int) ([]*models.EncryptedFieldRow, error) {
	query := `
		SELECT user_id, field_name, ciphertext, iv, auth_tag, key_version
		FROM user_encrypted_fields
		WHERE key_version = $1
		ORDER BY user_id, field_name
		LIMIT $2
		FOR UPDATE
	`
	return r.list(ctx, query, int64(version), limit)
}

func (r *PostgresRepository) list(ctx context.Context, query string, args ...any) ([]*models.EncryptedFieldRow, error) {
	rows, err := r.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to select fields: %w", err)
	}
	defer rows.Close()

	var result []*models.EncryptedFieldRow
	for rows.Next() {
		var (
			item    models.EncryptedFieldRow
			name    string
			version int64
		)
		if err := rows.Scan(&item.UserID, &name, &item.Field.Ciphertext, &item.Field.IV, &item.Field.AuthTag, &version); err != nil {
			return nil, err
		}
		fn, err := models.ParseFieldName(name)
		if err != nil {
			return nil, err
		}
		item.Name = fn
		item.Field.KeyVersion = uint32(version)
		result = append(result, &item)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return result, nil
}

// ReplaceSealed returns common.ErrVersionConflict if the row was rewritten
// or removed since it was read.
func (r *PostgresRepository) ReplaceSealed(ctx context.Context, row *models.EncryptedFieldRow, fromVersion uint32) error {
	if err := row.Field.Validate(); err != nil {
		return err
	}
	query := `
		UPDATE user_encrypted_fields
		SET ciphertext = $3, iv = $4, auth_tag = $5, key_version = $6, updated_at = now()
		WHERE user_id = $1 AND field_name = $2 AND key_version = $7
	`
	res, err := r.db.ExecContext(ctx, query,
		row.UserID, string(row.Name), row.Field.Ciphertext, row.Field.IV, row.Field.AuthTag,
		int64(row.Field.KeyVersion), int64(fromVersion))
	if err != nil {
		return fmt.Errorf("db error: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("rows affected error: %w", err)
	}
	if n != 1 {
		return common.ErrVersionConflict
	}
	return nil
}
