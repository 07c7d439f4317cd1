// Package revokedtokens declares the repository contract for the session
// token denylist kept in persistent storage.
package revokedtokens

import (
	"context"
	"time"
)

// Repository records revoked token ids until the token would have expired anyway.
type Repository interface {
	// Create revokes tokenID until expiresAt. Revoking twice is not an error.
	Create(ctx context.Context, tokenID string, expiresAt time.Time) error

	// Exists reports whether tokenID is revoked and not yet expired.
	Exists(ctx context.Context, tokenID string) (bool, error)

	// DeleteExpired purges rows whose tokens have expired and returns how many were removed.
	DeleteExpired(ctx context.Context) (int64, error)
}
