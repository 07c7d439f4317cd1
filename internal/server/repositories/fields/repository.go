package fields

import (
	"context"

	"github.com/placementhub/vault/internal/server/models"
)

// Repository stores encrypted PII fields, one row per (user, field).
type Repository interface {
	Upsert(ctx context.Context, row *models.EncryptedFieldRow) error
	Delete(ctx context.Context, userID string, name models.FieldName) error
	ListByUser(ctx context.Context, userID string) ([]*models.EncryptedFieldRow, error)

	// ListByKeyVersion returns up to limit rows sealed with version, locked
	// for update. Used by key rotation.
	ListByKeyVersion(ctx context.Context, version uint32, limit int) ([]*models.EncryptedFieldRow, error)

	// ReplaceSealed overwrites a row only if it is still sealed with fromVersion.
	ReplaceSealed(ctx context.Context, row *models.EncryptedFieldRow, fromVersion uint32) error
}
