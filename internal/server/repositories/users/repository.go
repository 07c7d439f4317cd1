package users

import (
	"context"

	"github.com/placementhub/vault/internal/server/models"
)

// Repository persists the plaintext part of user records.
type Repository interface {
	Create(ctx context.Context, user *models.User) (*models.User, error)
	GetByID(ctx context.Context, id string) (*models.User, error)
	GetByEmail(ctx context.Context, email string) (*models.User, error)
	UpdatePasswordHash(ctx context.Context, id, hash string) error

	// BumpVersion increments the record version. A positive expected version
	// makes the update conditional (optimistic concurrency).
	BumpVersion(ctx context.Context, id string, expected int64) (int64, error)

	SetResume(ctx context.Context, id string, documentID *string) error
	Delete(ctx context.Context, id string) error
}
