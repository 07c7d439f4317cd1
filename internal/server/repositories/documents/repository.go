package documents

import (
	"context"

	"github.com/placementhub/vault/internal/server/models"
)

// Repository stores document metadata. The bytes live in a blobstore.Store.
type Repository interface {
	Create(ctx context.Context, doc *models.Document) error
	GetByID(ctx context.Context, id string) (*models.Document, error)
	// GetByIDForUpdate locks the row until the surrounding transaction ends.
	GetByIDForUpdate(ctx context.Context, id string) (*models.Document, error)
	ListByOwner(ctx context.Context, ownerID string) ([]*models.Document, error)
	Delete(ctx context.Context, id string) error
}
