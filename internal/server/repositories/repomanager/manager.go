package repomanager

import (
	"context"
	"database/sql"

	"github.com/placementhub/vault/internal/dbx"
	"github.com/placementhub/vault/internal/server/repositories/documents"
	"github.com/placementhub/vault/internal/server/repositories/fields"
	"github.com/placementhub/vault/internal/server/repositories/revokedtokens"
	"github.com/placementhub/vault/internal/server/repositories/users"
)

// RepositoryManager hands out repositories bound to a DBTX so services can
// choose between the pool and an open transaction per call.
type RepositoryManager interface {
	RunMigrations(context.Context, *sql.DB) error
	Users(db dbx.DBTX) users.Repository
	Fields(db dbx.DBTX) fields.Repository
	Documents(db dbx.DBTX) documents.Repository
	RevokedTokens(db dbx.DBTX) revokedtokens.Repository
}
