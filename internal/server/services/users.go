// Package services contains server-side business logic. This file implements
// UserService: registration, login, password changes, encrypted profile
// fields, key rotation and account deletion.
package services

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"sync"

	"golang.org/x/crypto/bcrypt"

	"github.com/placementhub/vault/internal/common"
	"github.com/placementhub/vault/internal/cryptox"
	"github.com/placementhub/vault/internal/dbx"
	"github.com/placementhub/vault/internal/fieldcodec"
	"github.com/placementhub/vault/internal/logging"
	"github.com/placementhub/vault/internal/server/auth"
	"github.com/placementhub/vault/internal/server/config"
	"github.com/placementhub/vault/internal/server/models"
	"github.com/placementhub/vault/internal/server/repositories/repomanager"
	"github.com/placementhub/vault/internal/server/revocation"
)

const rotationPageSize = 500

// Registration is the input to CreateUser. Fields holds plaintext PII keyed
// by field name; absent keys are simply not stored.
type Registration struct {
	Name           string
	Email          string
	Password       string
	Role           models.Role
	Visibility     models.Visibility
	CGPA           *float64
	Tenth          *float64
	Twelfth        *float64
	Branch         string
	GraduationYear *int
	Fields         map[models.FieldName]string
}

// Profile is a user record with its encrypted fields decrypted.
type Profile struct {
	User           *models.User
	Fields         map[models.FieldName]string
	CertificateIDs []string
}

// ownedDocumentPurger removes every document of a user, blob first.
type ownedDocumentPurger interface {
	DeleteAllOwnedBy(ctx context.Context, ownerID string) error
}

// UserService owns user records and their encrypted fields.
type UserService struct {
	db          *sql.DB
	repomanager repomanager.RepositoryManager
	engine      *cryptox.Engine
	codec       *fieldcodec.Codec
	tokens      *auth.TokenManager
	documents   ownedDocumentPurger
	denylist    revocation.Denylist
	log         logging.Logger

	bcryptCost int
	dummyHash  []byte

	// rotation is held for writing while RotateKey runs so no field is
	// sealed with a key version that is being retired.
	rotation sync.RWMutex
}

// NewUserService wires a UserService. denylist may be nil, in which case
// logout only clears the client cookie.
func NewUserService(
	db *sql.DB,
	m repomanager.RepositoryManager,
	engine *cryptox.Engine,
	tokens *auth.TokenManager,
	documents ownedDocumentPurger,
	denylist revocation.Denylist,
	cfg *config.Config,
	log logging.Logger,
) (*UserService, error) {
	cost := cfg.BcryptCost
	if cost == 0 {
		cost = bcrypt.DefaultCost
	}
	dummy, err := bcrypt.GenerateFromPassword([]byte("not-a-real-password"), cost)
	if err != nil {
		return nil, fmt.Errorf("prepare dummy hash: %w", err)
	}
	return &UserService{
		db:          db,
		repomanager: m,
		engine:      engine,
		codec:       fieldcodec.New(engine),
		tokens:      tokens,
		documents:   documents,
		denylist:    denylist,
		log:         log,
		bcryptCost:  cost,
		dummyHash:   dummy,
	}, nil
}

// CreateUser validates reg, hashes the password, encrypts every provided
// field and stores the user with its fields in one transaction.
func (s *UserService) CreateUser(ctx context.Context, reg Registration) (*models.User, error) {
	user, err := s.newUser(reg)
	if err != nil {
		return nil, err
	}

	s.rotation.RLock()
	defer s.rotation.RUnlock()

	rows := make([]*models.EncryptedFieldRow, 0, len(reg.Fields))
	for _, name := range models.EncryptedFields {
		v, ok := reg.Fields[name]
		if !ok {
			continue
		}
		sealed, err := s.seal(name, v)
		if err != nil {
			return nil, err
		}
		rows = append(rows, &models.EncryptedFieldRow{Name: name, Field: *sealed})
	}

	err = dbx.WithTx(ctx, s.db, nil, func(ctx context.Context, tx dbx.DBTX) error {
		created, err := s.repomanager.Users(tx).Create(ctx, user)
		if err != nil {
			return err
		}
		fields := s.repomanager.Fields(tx)
		for _, row := range rows {
			row.UserID = created.ID
			if err := fields.Upsert(ctx, row); err != nil {
				return fmt.Errorf("error storing field %s: %w", row.Name, err)
			}
		}
		user = created
		return nil
	})
	if err != nil {
		return nil, err
	}

	s.log.Info(ctx, "user created", "user_id", user.ID, "role", user.Role)
	return user, nil
}

func (s *UserService) newUser(reg Registration) (*models.User, error) {
	name, err := validateName(reg.Name)
	if err != nil {
		return nil, err
	}
	email, err := normalizeEmail(reg.Email)
	if err != nil {
		return nil, err
	}
	if err := validatePassword(reg.Password); err != nil {
		return nil, err
	}
	if !reg.Role.Valid() {
		return nil, common.NewValidationError(common.KindInvalidInput, "unknown role %q", reg.Role)
	}
	visibility := models.VisibilityPrivate
	if reg.Visibility != "" {
		if visibility, err = models.ParseVisibility(string(reg.Visibility)); err != nil {
			return nil, common.NewValidationError(common.KindInvalidInput, "%v", err)
		}
	}
	for name, v := range reg.Fields {
		if _, err := parseField(string(name)); err != nil {
			return nil, err
		}
		if err := validateFieldValue(name, v); err != nil {
			return nil, err
		}
	}

	hash, err := bcrypt.GenerateFromPassword([]byte(reg.Password), s.bcryptCost)
	if err != nil {
		return nil, fmt.Errorf("error hashing password: %w", err)
	}

	return &models.User{
		Name:              name,
		Email:             email,
		PasswordHash:      string(hash),
		Role:              reg.Role,
		Status:            models.StatusActive,
		Visibility:        visibility,
		CGPA:              reg.CGPA,
		TenthPercentage:   reg.Tenth,
		TwelfthPercentage: reg.Twelfth,
		Branch:            reg.Branch,
		GraduationYear:    reg.GraduationYear,
	}, nil
}

// seal encrypts v as the scalar type field holds.
func (s *UserService) seal(field models.FieldName, v string) (*cryptox.EncryptedField, error) {
	if field.IsDate() {
		d, err := fieldcodec.ParseDate(v)
		if err != nil {
			return nil, common.NewValidationError(common.KindInvalidField, "%s must be a date in YYYY-MM-DD form", field)
		}
		return s.codec.EncodeDate(&d)
	}
	return s.codec.EncodeString(&v)
}

func (s *UserService) open(field models.FieldName, f *cryptox.EncryptedField) (string, error) {
	if field.IsDate() {
		d, err := s.codec.DecodeDate(f)
		if err != nil {
			return "", err
		}
		return d.String(), nil
	}
	v, err := s.codec.DecodeString(f)
	if err != nil {
		return "", err
	}
	return *v, nil
}

// UpdateEncryptedField replaces (or with a nil value, clears) one encrypted
// field and bumps the record version in the same transaction. A positive
// expectedVersion must match the stored version or common.ErrVersionConflict
// is returned. The new version is returned.
func (s *UserService) UpdateEncryptedField(ctx context.Context, userID, field string, value *string, expectedVersion int64) (int64, error) {
	name, err := parseField(field)
	if err != nil {
		return 0, err
	}
	if expectedVersion < 0 {
		return 0, common.NewValidationError(common.KindInvalidInput, "version must not be negative")
	}

	s.rotation.RLock()
	defer s.rotation.RUnlock()

	var sealed *cryptox.EncryptedField
	if value != nil {
		if err := validateFieldValue(name, *value); err != nil {
			return 0, err
		}
		if sealed, err = s.seal(name, *value); err != nil {
			return 0, err
		}
	}

	var version int64
	err = dbx.WithTx(ctx, s.db, nil, func(ctx context.Context, tx dbx.DBTX) error {
		v, err := s.repomanager.Users(tx).BumpVersion(ctx, userID, expectedVersion)
		if err != nil {
			return err
		}
		fields := s.repomanager.Fields(tx)
		if sealed == nil {
			err = fields.Delete(ctx, userID, name)
		} else {
			err = fields.Upsert(ctx, &models.EncryptedFieldRow{UserID: userID, Name: name, Field: *sealed})
		}
		if err != nil {
			return err
		}
		version = v
		return nil
	})
	if err != nil {
		return 0, err
	}
	return version, nil
}

// GetProfile returns the user with every encrypted field decrypted. If any
// field fails to authenticate the whole projection fails with
// common.ErrDataIntegrity; the cause is logged, never returned to callers.
func (s *UserService) GetProfile(ctx context.Context, userID string) (*Profile, error) {
	user, err := s.repomanager.Users(s.db).GetByID(ctx, userID)
	if err != nil {
		return nil, err
	}
	rows, err := s.repomanager.Fields(s.db).ListByUser(ctx, userID)
	if err != nil {
		return nil, err
	}

	p := &Profile{User: user, Fields: make(map[models.FieldName]string, len(rows))}
	for _, row := range rows {
		v, err := s.open(row.Name, &row.Field)
		if err != nil {
			s.log.Error(ctx, "field decryption failed",
				"user_id", userID, "field", string(row.Name), "key_version", row.Field.KeyVersion, "error", err)
			return nil, fmt.Errorf("%w: field %s", common.ErrDataIntegrity, row.Name)
		}
		p.Fields[row.Name] = v
	}

	docs, err := s.repomanager.Documents(s.db).ListByOwner(ctx, userID)
	if err != nil {
		return nil, err
	}
	for _, d := range docs {
		if d.Kind == models.KindCertificate {
			p.CertificateIDs = append(p.CertificateIDs, d.ID)
		}
	}
	return p, nil
}

// credentials returns the user owning email if password matches. Unknown
// emails are compared against a dummy hash so both paths cost one bcrypt run.
func (s *UserService) credentials(ctx context.Context, email, password string) (*models.User, error) {
	email, err := normalizeEmail(email)
	if err != nil {
		_ = bcrypt.CompareHashAndPassword(s.dummyHash, []byte(password))
		return nil, common.ErrUnauthenticated
	}

	user, err := s.repomanager.Users(s.db).GetByEmail(ctx, email)
	if err != nil {
		if errors.Is(err, common.ErrNotFound) {
			_ = bcrypt.CompareHashAndPassword(s.dummyHash, []byte(password))
			return nil, common.ErrUnauthenticated
		}
		return nil, err
	}
	if err := bcrypt.CompareHashAndPassword([]byte(user.PasswordHash), []byte(password)); err != nil {
		return nil, common.ErrUnauthenticated
	}
	return user, nil
}

// VerifyPassword reports whether candidate is the password of the account
// registered under email.
func (s *UserService) VerifyPassword(ctx context.Context, email, candidate string) (bool, error) {
	if _, err := s.credentials(ctx, email, candidate); err != nil {
		if errors.Is(err, common.ErrUnauthenticated) {
			return false, nil
		}
		return false, err
	}
	return true, nil
}

// Authenticate checks credentials and issues a session token for active accounts.
func (s *UserService) Authenticate(ctx context.Context, email, password string) (string, *auth.Identity, error) {
	user, err := s.credentials(ctx, email, password)
	if err != nil {
		return "", nil, err
	}
	if user.Status != models.StatusActive {
		s.log.Warn(ctx, "login for inactive account", "user_id", user.ID, "status", user.Status)
		return "", nil, common.ErrUnauthenticated
	}
	token, id, err := s.tokens.Issue(user.ID, user.Role)
	if err != nil {
		return "", nil, fmt.Errorf("error issuing token: %w", err)
	}
	return token, id, nil
}

// ChangePassword re-hashes the password after checking the current one.
func (s *UserService) ChangePassword(ctx context.Context, userID, oldPassword, newPassword string) error {
	if err := validatePassword(newPassword); err != nil {
		return err
	}
	user, err := s.repomanager.Users(s.db).GetByID(ctx, userID)
	if err != nil {
		return err
	}
	if err := bcrypt.CompareHashAndPassword([]byte(user.PasswordHash), []byte(oldPassword)); err != nil {
		return common.ErrUnauthenticated
	}
	hash, err := bcrypt.GenerateFromPassword([]byte(newPassword), s.bcryptCost)
	if err != nil {
		return fmt.Errorf("error hashing password: %w", err)
	}
	// The repository bumps the record version along with the hash.
	return s.repomanager.Users(s.db).UpdatePasswordHash(ctx, userID, string(hash))
}

// Logout revokes the session token until it would have expired.
func (s *UserService) Logout(ctx context.Context, id *auth.Identity) error {
	if id == nil || s.denylist == nil {
		return nil
	}
	if err := s.denylist.Revoke(ctx, id.TokenID, id.ExpiresAt); err != nil {
		return fmt.Errorf("error revoking token: %w", err)
	}
	return nil
}

// RotateKey re-encrypts every field sealed with oldVersion under newVersion,
// one page per transaction. Field writes wait until it returns. The number
// of re-encrypted fields is returned, also on error.
func (s *UserService) RotateKey(ctx context.Context, oldVersion, newVersion uint32) (int, error) {
	if oldVersion == newVersion {
		return 0, common.NewValidationError(common.KindInvalidInput, "old and new key versions are equal")
	}
	for _, v := range []uint32{oldVersion, newVersion} {
		if !s.engine.HasVersion(v) {
			return 0, common.NewValidationError(common.KindInvalidInput, "key version %d is not configured", v)
		}
	}

	s.rotation.Lock()
	defer s.rotation.Unlock()

	total := 0
	for {
		var n int
		err := dbx.WithTx(ctx, s.db, nil, func(ctx context.Context, tx dbx.DBTX) error {
			repo := s.repomanager.Fields(tx)
			rows, err := repo.ListByKeyVersion(ctx, oldVersion, rotationPageSize)
			if err != nil {
				return err
			}
			for _, row := range rows {
				plain, err := s.engine.Decrypt(&row.Field)
				if err != nil {
					s.log.Error(ctx, "field decryption failed during rotation",
						"user_id", row.UserID, "field", string(row.Name), "error", err)
					return fmt.Errorf("%w: field %s of user %s", common.ErrDataIntegrity, row.Name, row.UserID)
				}
				sealed, err := s.engine.EncryptWith(newVersion, plain)
				common.WipeByteArray(plain)
				if err != nil {
					return err
				}
				row.Field = *sealed
				if err := repo.ReplaceSealed(ctx, row, oldVersion); err != nil {
					return err
				}
			}
			n = len(rows)
			return nil
		})
		if err != nil {
			return total, err
		}
		total += n
		if n < rotationPageSize {
			break
		}
	}

	s.log.Info(ctx, "key rotation finished", "from", oldVersion, "to", newVersion, "fields", total)
	return total, nil
}

// DeleteUser removes every document the user owns and then the user row.
// Encrypted fields go with the row. If a document cannot be removed the
// user row is left in place.
func (s *UserService) DeleteUser(ctx context.Context, userID string) error {
	if _, err := s.repomanager.Users(s.db).GetByID(ctx, userID); err != nil {
		return err
	}
	if err := s.documents.DeleteAllOwnedBy(ctx, userID); err != nil {
		return fmt.Errorf("error deleting documents: %w", err)
	}
	if err := s.repomanager.Users(s.db).Delete(ctx, userID); err != nil {
		return err
	}
	s.log.Info(ctx, "user deleted", "user_id", userID)
	return nil
}
