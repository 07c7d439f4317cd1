// Package documents provides the PostgreSQL repository for document metadata.
package documents

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/placementhub/vault/internal/common"
	"github.com/placementhub/vault/internal/dbx"
	"github.com/placementhub/vault/internal/server/models"
)

const selectDocument = `SELECT id, owner_id, kind, original_filename, stored_filename,
		storage_path, mime_type, size_bytes, uploaded_at
	FROM documents`

// PostgresRepository implements Repository over a dbx.DBTX (*sql.DB or *sql.Tx).
type PostgresRepository struct {
	db dbx.DBTX
}

// NewPostgresRepository constructs a repository bound to the given DBTX.
func NewPostgresRepository(db dbx.DBTX) *PostgresRepository {
	return &PostgresRepository{db: db}
}

// Create inserts doc. ID must already be set; UploadedAt is filled from the database.
func (r *PostgresRepository) Create(ctx context.Context, doc *models.Document) error {
	query := `
		INSERT INTO documents (id, owner_id, kind, original_filename, stored_filename,
			storage_path, mime_type, size_bytes)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
		RETURNING uploaded_at
	`
	err := r.db.QueryRowContext(ctx, query,
		doc.ID, doc.OwnerID, string(doc.Kind), doc.OriginalFilename, doc.StoredFilename,
		doc.StoragePath, doc.MimeType, doc.SizeBytes,
	).Scan(&doc.UploadedAt)
	if err != nil {
		if dbx.IsUniqueViolation(err, "") {
			return common.ErrDuplicate
		}
		if dbx.IsForeignKeyViolation(err) {
			return common.ErrNotFound
		}
		return fmt.Errorf("db error: %w", err)
	}
	return nil
}

type scanner interface {
	Scan(dest ...any) error
}

func scanDocument(row scanner) (*models.Document, error) {
	var (
		d    models.Document
		kind string
	)
	if err := row.Scan(&d.ID, &d.OwnerID, &kind, &d.OriginalFilename, &d.StoredFilename,
		&d.StoragePath, &d.MimeType, &d.SizeBytes, &d.UploadedAt); err != nil {
		return nil, err
	}
	k, err := models.ParseDocumentKind(kind)
	if err != nil {
		return nil, err
	}
	d.Kind = k
	return &d, nil
}

func (r *PostgresRepository) getOne(ctx context.Context, query, id string) (*models.Document, error) {
	d, err := scanDocument(r.db.QueryRowContext(ctx, query, id))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, common.ErrNotFound
		}
		return nil, fmt.Errorf("db error: %w", err)
	}
	return d, nil
}

// GetByID returns the document or common.ErrNotFound.
func (r *PostgresRepository) GetByID(ctx context.Context, id string) (*models.Document, error) {
	return r.getOne(ctx, selectDocument+` WHERE id = $1`, id)
}

// GetByIDForUpdate is GetByID with a row lock. Concurrent deleters block here
// and then see common.ErrNotFound once the first one commits.
func (r *PostgresRepository) GetByIDForUpdate(ctx context.Context, id string) (*models.Document, error) {
	return r.getOne(ctx, selectDocument+` WHERE id = $1 FOR UPDATE`, id)
}

// ListByOwner returns the owner's documents, oldest first.
func (r *PostgresRepository) ListByOwner(ctx context.Context, ownerID string) ([]*models.Document, error) {
	rows, err := r.db.QueryContext(ctx, selectDocument+` WHERE owner_id = $1 ORDER BY uploaded_at, id`, ownerID)
	if err != nil {
		return nil, fmt.Errorf("failed to select documents: %w", err)
	}
	defer rows.Close()

	var result []*models.Document
	for rows.Next() {
		d, err := scanDocument(rows)
		if err != nil {
			return nil, err
		}
		result = append(result, d)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return result, nil
}

// Delete removes the metadata row. Exactly one row must be affected.
func (r *PostgresRepository) Delete(ctx context.Context, id string) error {
	res, err := r.db.ExecContext(ctx, `DELETE FROM documents WHERE id = $1`, id)
	if err != nil {
		return fmt.Errorf("db error: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("rows affected error: %w", err)
	}
	if n != 1 {
		return common.ErrNotFound
	}
	return nil
}
