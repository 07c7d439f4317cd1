// Package users contains the PostgreSQL repository for user records.
package users

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/placementhub/vault/internal/common"
	"github.com/placementhub/vault/internal/dbx"
	"github.com/placementhub/vault/internal/server/models"
)

const emailConstraint = "users_email_key"

const selectUser = `SELECT id, name, email, password_hash, role, status, visibility,
		cgpa, tenth_percentage, twelfth_percentage, branch, graduation_year,
		resume_id, version, created_at, updated_at
	FROM users`

// PostgresRepository implements Repository over a dbx.DBTX (*sql.DB or *sql.Tx).
type PostgresRepository struct {
	db dbx.DBTX
}

// NewPostgresRepository constructs a repository bound to the given DBTX.
func NewPostgresRepository(db dbx.DBTX) *PostgresRepository {
	return &PostgresRepository{db: db}
}

// Create inserts user and fills in the server-assigned columns.
// A duplicate email yields common.ErrDuplicate.
func (r *PostgresRepository) Create(ctx context.Context, user *models.User) (*models.User, error) {
	query := `
		INSERT INTO users (name, email, password_hash, role, status, visibility,
			cgpa, tenth_percentage, twelfth_percentage, branch, graduation_year)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11)
		RETURNING id, version, created_at, updated_at
	`
	err := r.db.QueryRowContext(ctx, query,
		user.Name, user.Email, user.PasswordHash,
		string(user.Role), string(user.Status), string(user.Visibility),
		user.CGPA, user.TenthPercentage, user.TwelfthPercentage, user.Branch, user.GraduationYear,
	).Scan(&user.ID, &user.Version, &user.CreatedAt, &user.UpdatedAt)
	if err != nil {
		if dbx.IsUniqueViolation(err, emailConstraint) {
			return nil, common.ErrDuplicate
		}
		return nil, fmt.Errorf("db error: %w", err)
	}
	return user, nil
}

func scanUser(row *sql.Row) (*models.User, error) {
	var (
		u                        models.User
		role, status, visibility string
		cgpa, tenth, twelfth     sql.NullFloat64
		gradYear                 sql.NullInt64
		resumeID                 sql.NullString
	)
	err := row.Scan(&u.ID, &u.Name, &u.Email, &u.PasswordHash, &role, &status, &visibility,
		&cgpa, &tenth, &twelfth, &u.Branch, &gradYear,
		&resumeID, &u.Version, &u.CreatedAt, &u.UpdatedAt)
	if err != nil {
		return nil, err
	}

	if u.Role, err = models.ParseRole(role); err != nil {
		return nil, err
	}
	if u.Status, err = models.ParseStatus(status); err != nil {
		return nil, err
	}
	if u.Visibility, err = models.ParseVisibility(visibility); err != nil {
		return nil, err
	}
	if cgpa.Valid {
		u.CGPA = &cgpa.Float64
	}
	if tenth.Valid {
		u.TenthPercentage = &tenth.Float64
	}
	if twelfth.Valid {
		u.TwelfthPercentage = &twelfth.Float64
	}
	if gradYear.Valid {
		y := int(gradYear.Int64)
		u.GraduationYear = &y
	}
	if resumeID.Valid {
		u.ResumeID = &resumeID.String
	}
	return &u, nil
}

func (r *PostgresRepository) getOne(ctx context.Context, query string, arg any) (*models.User, error) {
	u, err := scanUser(r.db.QueryRowContext(ctx, query, arg))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, common.ErrNotFound
		}
		return nil, fmt.Errorf("db error: %w", err)
	}
	return u, nil
}

// GetByID returns the user with the given id or common.ErrNotFound.
func (r *PostgresRepository) GetByID(ctx context.Context, id string) (*models.User, error) {
	return r.getOne(ctx, selectUser+` WHERE id = $1`, id)
}

// GetByEmail looks a user up by the unique email index.
func (r *PostgresRepository) GetByEmail(ctx context.Context, email string) (*models.User, error) {
	return r.getOne(ctx, selectUser+` WHERE email = $1`, email)
}

// UpdatePasswordHash stores a new hash and bumps the record version.
func (r *PostgresRepository) UpdatePasswordHash(ctx context.Context, id, hash string) error {
	query := `UPDATE users SET password_hash = $2, version = version + 1, updated_at = now() WHERE id = $1`
	return r.execOne(ctx, query, id, hash)
}

// BumpVersion increments the record version. When expected is positive the
// update only applies if the stored version still equals it, otherwise
// common.ErrVersionConflict is returned, as it is when a concurrent
// transaction forced a serialization failure. Unknown ids yield
// common.ErrNotFound.
func (r *PostgresRepository) BumpVersion(ctx context.Context, id string, expected int64) (int64, error) {
	query := `
		UPDATE users SET version = version + 1, updated_at = now()
		WHERE id = $1 AND ($2 = 0 OR version = $2)
		RETURNING version
	`
	var version int64
	err := r.db.QueryRowContext(ctx, query, id, expected).Scan(&version)
	if err == nil {
		return version, nil
	}
	if dbx.IsSerializationFailure(err) {
		return 0, common.ErrVersionConflict
	}
	if !errors.Is(err, sql.ErrNoRows) {
		return 0, fmt.Errorf("db error: %w", err)
	}
	if expected == 0 {
		return 0, common.ErrNotFound
	}

	var exists bool
	query = `SELECT EXISTS (SELECT 1 FROM users WHERE id = $1)`
	if err := r.db.QueryRowContext(ctx, query, id).Scan(&exists); err != nil {
		return 0, fmt.Errorf("db error: %w", err)
	}
	if exists {
		return 0, common.ErrVersionConflict
	}
	return 0, common.ErrNotFound
}

// SetResume points the user at a resume document, or clears it when documentID is nil.
func (r *PostgresRepository) SetResume(ctx context.Context, id string, documentID *string) error {
	query := `UPDATE users SET resume_id = $2, version = version + 1, updated_at = now() WHERE id = $1`
	return r.execOne(ctx, query, id, documentID)
}

// Delete removes the user row. Encrypted fields go with it via ON DELETE CASCADE;
// documents must be removed first.
func (r *PostgresRepository) Delete(ctx context.Context, id string) error {
	return r.execOne(ctx, `DELETE FROM users WHERE id = $1`, id)
}

func (r *PostgresRepository) execOne(ctx context.Context, query string, args ...any) error {
	res, err := r.db.ExecContext(ctx, query, args...)
	if err != nil {
		return fmt.Errorf("db error: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("rows affected error: %w", err)
	}
	if n == 0 {
		return common.ErrNotFound
	}
	return nil
}
