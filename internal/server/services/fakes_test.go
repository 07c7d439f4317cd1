package services

import (
	"bytes"
	"context"
	"database/sql"
	"fmt"
	"io"
	"sort"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/google/uuid"
	"github.com/stretchr/testify/require"
	"golang.org/x/crypto/bcrypt"

	"github.com/placementhub/vault/internal/common"
	"github.com/placementhub/vault/internal/cryptox"
	"github.com/placementhub/vault/internal/dbx"
	"github.com/placementhub/vault/internal/logging"
	"github.com/placementhub/vault/internal/server/auth"
	"github.com/placementhub/vault/internal/server/config"
	"github.com/placementhub/vault/internal/server/models"
	"github.com/placementhub/vault/internal/server/repositories/documents"
	"github.com/placementhub/vault/internal/server/repositories/fields"
	"github.com/placementhub/vault/internal/server/repositories/revokedtokens"
	"github.com/placementhub/vault/internal/server/repositories/users"
)

// memStore backs the fake repositories. Repositories ignore the DBTX they
// are bound to; transactions are only observed through sqlmock.
type memStore struct {
	mu     sync.Mutex
	users  map[string]*models.User
	fields map[string]map[models.FieldName]cryptox.EncryptedField
	docs   map[string]*models.Document

	createDocErr error
	replaceErr   error
}

func newMemStore() *memStore {
	return &memStore{
		users:  map[string]*models.User{},
		fields: map[string]map[models.FieldName]cryptox.EncryptedField{},
		docs:   map[string]*models.Document{},
	}
}

func cloneField(f cryptox.EncryptedField) cryptox.EncryptedField {
	return cryptox.EncryptedField{
		Ciphertext: bytes.Clone(f.Ciphertext),
		IV:         bytes.Clone(f.IV),
		AuthTag:    bytes.Clone(f.AuthTag),
		KeyVersion: f.KeyVersion,
	}
}

type fakeUsersRepo struct{ s *memStore }

func (r *fakeUsersRepo) Create(_ context.Context, u *models.User) (*models.User, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	for _, existing := range r.s.users {
		if existing.Email == u.Email {
			return nil, common.ErrDuplicate
		}
	}
	cp := *u
	cp.ID = uuid.NewString()
	cp.Version = 1
	cp.CreatedAt = time.Now()
	cp.UpdatedAt = cp.CreatedAt
	r.s.users[cp.ID] = &cp
	out := cp
	return &out, nil
}

func (r *fakeUsersRepo) GetByID(_ context.Context, id string) (*models.User, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	u, ok := r.s.users[id]
	if !ok {
		return nil, common.ErrNotFound
	}
	cp := *u
	return &cp, nil
}

func (r *fakeUsersRepo) GetByEmail(_ context.Context, email string) (*models.User, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	for _, u := range r.s.users {
		if u.Email == email {
			cp := *u
			return &cp, nil
		}
	}
	return nil, common.ErrNotFound
}

func (r *fakeUsersRepo) UpdatePasswordHash(_ context.Context, id, hash string) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	u, ok := r.s.users[id]
	if !ok {
		return common.ErrNotFound
	}
	u.PasswordHash = hash
	u.Version++
	return nil
}

func (r *fakeUsersRepo) BumpVersion(_ context.Context, id string, expected int64) (int64, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	u, ok := r.s.users[id]
	if !ok {
		return 0, common.ErrNotFound
	}
	if expected > 0 && u.Version != expected {
		return 0, common.ErrVersionConflict
	}
	u.Version++
	return u.Version, nil
}

func (r *fakeUsersRepo) SetResume(_ context.Context, id string, documentID *string) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	u, ok := r.s.users[id]
	if !ok {
		return common.ErrNotFound
	}
	u.ResumeID = documentID
	return nil
}

func (r *fakeUsersRepo) Delete(_ context.Context, id string) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	if _, ok := r.s.users[id]; !ok {
		return common.ErrNotFound
	}
	for _, d := range r.s.docs {
		if d.OwnerID == id {
			return fmt.Errorf("db error: documents still reference user %s", id)
		}
	}
	delete(r.s.users, id)
	delete(r.s.fields, id)
	return nil
}

type fakeFieldsRepo struct{ s *memStore }

func (r *fakeFieldsRepo) Upsert(_ context.Context, row *models.EncryptedFieldRow) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	if _, ok := r.s.users[row.UserID]; !ok {
		return common.ErrNotFound
	}
	if r.s.fields[row.UserID] == nil {
		r.s.fields[row.UserID] = map[models.FieldName]cryptox.EncryptedField{}
	}
	r.s.fields[row.UserID][row.Name] = cloneField(row.Field)
	return nil
}

func (r *fakeFieldsRepo) Delete(_ context.Context, userID string, name models.FieldName) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	delete(r.s.fields[userID], name)
	return nil
}

func (r *fakeFieldsRepo) ListByUser(_ context.Context, userID string) ([]*models.EncryptedFieldRow, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	var out []*models.EncryptedFieldRow
	for name, f := range r.s.fields[userID] {
		out = append(out, &models.EncryptedFieldRow{UserID: userID, Name: name, Field: cloneField(f)})
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	return out, nil
}

func (r *fakeFieldsRepo) ListByKeyVersion(_ context.Context, version uint32, limit int) ([]*models.EncryptedFieldRow, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	var out []*models.EncryptedFieldRow
	for userID, byName := range r.s.fields {
		for name, f := range byName {
			if f.KeyVersion == version {
				out = append(out, &models.EncryptedFieldRow{UserID: userID, Name: name, Field: cloneField(f)})
			}
		}
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].UserID != out[j].UserID {
			return out[i].UserID < out[j].UserID
		}
		return out[i].Name < out[j].Name
	})
	if len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

func (r *fakeFieldsRepo) ReplaceSealed(_ context.Context, row *models.EncryptedFieldRow, fromVersion uint32) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	if r.s.replaceErr != nil {
		return r.s.replaceErr
	}
	cur, ok := r.s.fields[row.UserID][row.Name]
	if !ok || cur.KeyVersion != fromVersion {
		return common.ErrVersionConflict
	}
	r.s.fields[row.UserID][row.Name] = cloneField(row.Field)
	return nil
}

type fakeDocumentsRepo struct{ s *memStore }

func (r *fakeDocumentsRepo) Create(_ context.Context, doc *models.Document) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	if r.s.createDocErr != nil {
		return r.s.createDocErr
	}
	if _, ok := r.s.docs[doc.ID]; ok {
		return common.ErrDuplicate
	}
	doc.UploadedAt = time.Now()
	cp := *doc
	r.s.docs[doc.ID] = &cp
	return nil
}

func (r *fakeDocumentsRepo) GetByID(_ context.Context, id string) (*models.Document, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	d, ok := r.s.docs[id]
	if !ok {
		return nil, common.ErrNotFound
	}
	cp := *d
	return &cp, nil
}

func (r *fakeDocumentsRepo) GetByIDForUpdate(ctx context.Context, id string) (*models.Document, error) {
	return r.GetByID(ctx, id)
}

func (r *fakeDocumentsRepo) ListByOwner(_ context.Context, ownerID string) ([]*models.Document, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	var out []*models.Document
	for _, d := range r.s.docs {
		if d.OwnerID == ownerID {
			cp := *d
			out = append(out, &cp)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}

func (r *fakeDocumentsRepo) Delete(_ context.Context, id string) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	if _, ok := r.s.docs[id]; !ok {
		return common.ErrNotFound
	}
	delete(r.s.docs, id)
	for _, u := range r.s.users {
		if u.ResumeID != nil && *u.ResumeID == id {
			u.ResumeID = nil
		}
	}
	return nil
}

type fakeRepoManager struct{ s *memStore }

func (m *fakeRepoManager) RunMigrations(context.Context, *sql.DB) error { return nil }
func (m *fakeRepoManager) Users(dbx.DBTX) users.Repository              { return &fakeUsersRepo{m.s} }
func (m *fakeRepoManager) Fields(dbx.DBTX) fields.Repository            { return &fakeFieldsRepo{m.s} }
func (m *fakeRepoManager) Documents(dbx.DBTX) documents.Repository      { return &fakeDocumentsRepo{m.s} }
func (m *fakeRepoManager) RevokedTokens(dbx.DBTX) revokedtokens.Repository {
	return nil
}

// memBlobs is an in-memory blobstore.Store with failure injection.
type memBlobs struct {
	mu       sync.Mutex
	data     map[string][]byte
	puts     int
	putFails int // number of leading Put calls that fail
	putBlock bool
	delErr   error
}

func newMemBlobs() *memBlobs { return &memBlobs{data: map[string][]byte{}} }

func (b *memBlobs) Put(ctx context.Context, key string, r io.Reader, size int64, _ string) error {
	b.mu.Lock()
	b.puts++
	fail := b.puts <= b.putFails
	block := b.putBlock
	b.mu.Unlock()

	if block {
		<-ctx.Done()
		return ctx.Err()
	}
	if fail {
		return fmt.Errorf("connection reset")
	}
	data, err := io.ReadAll(r)
	if err != nil {
		return err
	}
	if int64(len(data)) != size {
		return fmt.Errorf("short write")
	}
	b.mu.Lock()
	b.data[key] = data
	b.mu.Unlock()
	return nil
}

func (b *memBlobs) Get(_ context.Context, key string) (io.ReadCloser, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	d, ok := b.data[key]
	if !ok {
		return nil, common.ErrNotFound
	}
	return io.NopCloser(bytes.NewReader(d)), nil
}

func (b *memBlobs) Delete(_ context.Context, key string) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.delErr != nil {
		return b.delErr
	}
	delete(b.data, key)
	return nil
}

func (b *memBlobs) has(key string) bool {
	b.mu.Lock()
	defer b.mu.Unlock()
	_, ok := b.data[key]
	return ok
}

func (b *memBlobs) count() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return len(b.data)
}

type fakeDenylist struct {
	revoked map[string]time.Time
}

func (d *fakeDenylist) Revoke(_ context.Context, tokenID string, expiresAt time.Time) error {
	if d.revoked == nil {
		d.revoked = map[string]time.Time{}
	}
	d.revoked[tokenID] = expiresAt
	return nil
}

func (d *fakeDenylist) IsRevoked(_ context.Context, tokenID string) (bool, error) {
	_, ok := d.revoked[tokenID]
	return ok, nil
}

var testSigningSecret = []byte(strings.Repeat("k", 32))

func testConfig() *config.Config {
	return &config.Config{
		BcryptCost:       bcrypt.MinCost,
		AllowedFileTypes: []string{"application/pdf", "image/png"},
		MaxFileSize:      1024,
		IOTimeout:        time.Second,
		StorageRetries:   0,
		SessionTTL:       time.Hour,
	}
}

func testEngine(t *testing.T, active uint32) *cryptox.Engine {
	t.Helper()
	kr, err := cryptox.NewKeyring(map[uint32][]byte{
		1: bytes.Repeat([]byte{1}, cryptox.KeySize),
		2: bytes.Repeat([]byte{2}, cryptox.KeySize),
	}, active)
	require.NoError(t, err)
	return cryptox.NewEngine(kr)
}

type fixture struct {
	db       *sql.DB
	mock     sqlmock.Sqlmock
	store    *memStore
	blobs    *memBlobs
	denylist *fakeDenylist
	tokens   *auth.TokenManager
	docs     *DocumentService
	users    *UserService
	cfg      *config.Config
	logs     *bytes.Buffer
}

func newFixture(t *testing.T, cfg *config.Config) *fixture {
	t.Helper()
	if cfg == nil {
		cfg = testConfig()
	}
	db, mock, err := sqlmock.New()
	if err != nil {
		t.Fatalf("sqlmock.New error: %v", err)
	}
	t.Cleanup(func() { _ = db.Close() })

	f := &fixture{
		db:       db,
		mock:     mock,
		store:    newMemStore(),
		blobs:    newMemBlobs(),
		denylist: &fakeDenylist{},
		cfg:      cfg,
		logs:     &bytes.Buffer{},
	}
	log := logging.NewSlogText(f.logs)
	rm := &fakeRepoManager{s: f.store}

	f.tokens, err = auth.NewTokenManager(testSigningSecret, time.Hour)
	require.NoError(t, err)

	f.docs = NewDocumentService(db, rm, f.blobs, cfg, log)
	f.docs.now = func() time.Time { return time.Date(2026, time.March, 7, 10, 0, 0, 0, time.UTC) }

	f.users, err = NewUserService(db, rm, testEngine(t, 1), f.tokens, f.docs, f.denylist, cfg, log)
	require.NoError(t, err)
	return f
}

// expectTx queues n successful transactions.
func (f *fixture) expectTx(n int) {
	for i := 0; i < n; i++ {
		f.mock.ExpectBegin()
		f.mock.ExpectCommit()
	}
}

func (f *fixture) expectRollback() {
	f.mock.ExpectBegin()
	f.mock.ExpectRollback()
}

func (f *fixture) verify(t *testing.T) {
	t.Helper()
	if err := f.mock.ExpectationsWereMet(); err != nil {
		t.Fatalf("sql expectations: %v", err)
	}
}

func ptr[T any](v T) *T { return &v }
