// Package revocation keeps the ids of logged-out session tokens until they
// would have expired anyway.
package revocation

import (
	"context"
	"database/sql"
	"time"

	"github.com/placementhub/vault/internal/logging"
	"github.com/placementhub/vault/internal/server/repositories/revokedtokens"
	goredis "github.com/redis/go-redis/v9"
)

// Denylist is consulted by the session middleware after signature checks.
type Denylist interface {
	Revoke(ctx context.Context, tokenID string, expiresAt time.Time) error
	IsRevoked(ctx context.Context, tokenID string) (bool, error)
}

const keyPrefix = "vault:revoked:"

// redisCmdable is the subset of *goredis.Client used by Redis.
type redisCmdable interface {
	Set(ctx context.Context, key string, value any, expiration time.Duration) *goredis.StatusCmd
	Exists(ctx context.Context, keys ...string) *goredis.IntCmd
}

// Redis stores each revoked id as a key with a TTL equal to the token's remaining life.
type Redis struct {
	rdb redisCmdable
	now func() time.Time
}

func NewRedis(rdb *goredis.Client) *Redis {
	return &Redis{rdb: rdb, now: time.Now}
}

func (r *Redis) Revoke(ctx context.Context, tokenID string, expiresAt time.Time) error {
	ttl := expiresAt.Sub(r.now())
	if ttl <= 0 {
		return nil
	}
	return r.rdb.Set(ctx, keyPrefix+tokenID, "1", ttl).Err()
}

func (r *Redis) IsRevoked(ctx context.Context, tokenID string) (bool, error) {
	n, err := r.rdb.Exists(ctx, keyPrefix+tokenID).Result()
	if err != nil {
		return false, err
	}
	return n > 0, nil
}

// Postgres keeps revoked ids in the revoked_tokens table.
type Postgres struct {
	repo revokedtokens.Repository
	log  logging.Logger
}

func NewPostgres(db *sql.DB, log logging.Logger) *Postgres {
	return &Postgres{repo: revokedtokens.NewPostgresRepository(db), log: log}
}

func (p *Postgres) Revoke(ctx context.Context, tokenID string, expiresAt time.Time) error {
	return p.repo.Create(ctx, tokenID, expiresAt)
}

func (p *Postgres) IsRevoked(ctx context.Context, tokenID string) (bool, error) {
	return p.repo.Exists(ctx, tokenID)
}

// Sweep purges expired rows every interval until ctx is done.
func (p *Postgres) Sweep(ctx context.Context, interval time.Duration) {
	t := time.NewTicker(interval)
	defer t.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-t.C:
			n, err := p.repo.DeleteExpired(ctx)
			if err != nil {
				p.log.Warn(ctx, "revoked token sweep failed", "error", err)
				continue
			}
			if n > 0 {
				p.log.Debug(ctx, "revoked tokens purged", "count", n)
			}
		}
	}
}
