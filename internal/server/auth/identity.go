package auth

import (
	"context"
	"time"

	"github.com/placementhub/vault/internal/server/models"
)

// Identity is the verified caller. It only ever comes from a verified token.
type Identity struct {
	SubjectID string
	Role      models.Role
	TokenID   string
	IssuedAt  time.Time
	ExpiresAt time.Time
}

func (i *Identity) IsAdmin() bool {
	return i != nil && i.Role == models.RoleAdmin
}

type identityKey struct{}

// WithIdentity returns a copy of ctx carrying id.
func WithIdentity(ctx context.Context, id *Identity) context.Context {
	return context.WithValue(ctx, identityKey{}, id)
}

// FromContext returns the identity stored by WithIdentity.
func FromContext(ctx context.Context) (*Identity, bool) {
	id, ok := ctx.Value(identityKey{}).(*Identity)
	return id, ok && id != nil
}
