package services

import (
	"bytes"
	"context"
	"database/sql"
	"errors"
	"fmt"
	"io"
	"path"
	"strings"
	"time"
	"unicode"

	"github.com/gabriel-vasile/mimetype"
	"github.com/google/uuid"

	"github.com/placementhub/vault/internal/common"
	"github.com/placementhub/vault/internal/dbx"
	"github.com/placementhub/vault/internal/logging"
	"github.com/placementhub/vault/internal/retryx"
	"github.com/placementhub/vault/internal/server/auth"
	"github.com/placementhub/vault/internal/server/blobstore"
	"github.com/placementhub/vault/internal/server/config"
	"github.com/placementhub/vault/internal/server/models"
	"github.com/placementhub/vault/internal/server/repositories/documents"
	"github.com/placementhub/vault/internal/server/repositories/repomanager"
)

const (
	maxOriginalFilenameLen = 255
	octetStream            = "application/octet-stream"
)

// Upload is an incoming file. DeclaredSize is -1 when unknown.
type Upload struct {
	Kind         string
	Filename     string
	DeclaredType string
	DeclaredSize int64
	Body         io.Reader
}

// DocumentService stores uploaded files and enforces that only their owner
// (or an administrator, when the override is enabled) can read or delete them.
type DocumentService struct {
	db            *sql.DB
	repomanager   repomanager.RepositoryManager
	blobs         blobstore.Store
	log           logging.Logger
	allowed       []string
	maxSize       int64
	ioTimeout     time.Duration
	retry         retryx.Policy
	adminOverride bool
	now           func() time.Time
}

// NewDocumentService constructs a DocumentService from server config.
func NewDocumentService(db *sql.DB, m repomanager.RepositoryManager, blobs blobstore.Store, cfg *config.Config, log logging.Logger) *DocumentService {
	return &DocumentService{
		db:            db,
		repomanager:   m,
		blobs:         blobs,
		log:           log,
		allowed:       cfg.AllowedFileTypes,
		maxSize:       cfg.MaxFileSize,
		ioTimeout:     cfg.IOTimeout,
		retry:         retryx.Policy{MaxRetries: cfg.StorageRetries},
		adminOverride: cfg.AdminOverride,
		now:           time.Now,
	}
}

// Upload validates the file and stores it for the caller. Validation happens
// before the blob store is touched; if the metadata insert fails the blob is
// removed again.
func (s *DocumentService) Upload(ctx context.Context, id *auth.Identity, up Upload) (*models.Document, error) {
	if id == nil {
		return nil, common.ErrUnauthenticated
	}
	kind, err := models.ParseDocumentKind(up.Kind)
	if err != nil {
		return nil, common.NewValidationError(common.KindInvalidInput, "%v", err)
	}
	if up.DeclaredSize > s.maxSize {
		return nil, s.tooLarge()
	}

	data, err := io.ReadAll(io.LimitReader(up.Body, s.maxSize+1))
	if err != nil {
		if ctxErr := ctx.Err(); ctxErr != nil {
			return nil, ctxErr
		}
		return nil, common.NewValidationError(common.KindInvalidInput, "could not read upload")
	}
	if int64(len(data)) > s.maxSize {
		return nil, s.tooLarge()
	}
	if len(data) == 0 {
		return nil, common.NewValidationError(common.KindFileEmpty, "file is empty")
	}

	mimeType, ext, err := s.detectType(data, up.DeclaredType)
	if err != nil {
		return nil, err
	}

	now := s.now().UTC()
	docID := uuid.NewString()
	stored := docID + ext
	doc := &models.Document{
		ID:               docID,
		OwnerID:          id.SubjectID,
		Kind:             kind,
		OriginalFilename: cleanFilename(up.Filename),
		StoredFilename:   stored,
		StoragePath:      path.Join("documents", now.Format("2006/01/02"), stored),
		MimeType:         mimeType,
		SizeBytes:        int64(len(data)),
	}

	if err := s.putBlob(ctx, doc.StoragePath, data, mimeType); err != nil {
		return nil, err
	}

	err = dbx.WithTx(ctx, s.db, nil, func(ctx context.Context, tx dbx.DBTX) error {
		if err := s.repomanager.Documents(tx).Create(ctx, doc); err != nil {
			return err
		}
		if kind == models.KindResume {
			return s.repomanager.Users(tx).SetResume(ctx, id.SubjectID, &doc.ID)
		}
		return nil
	})
	if err != nil {
		s.discardBlob(ctx, doc.StoragePath)
		return nil, err
	}

	s.log.Info(ctx, "document uploaded",
		"document_id", doc.ID, "owner_id", doc.OwnerID, "kind", doc.Kind, "mime", doc.MimeType, "size", doc.SizeBytes)
	return doc, nil
}

func (s *DocumentService) tooLarge() error {
	return common.NewValidationError(common.KindFileTooLarge, "file exceeds the %d byte limit", s.maxSize)
}

// detectType sniffs the content, checks it against the allow-list and the
// declared type family, and returns the canonical MIME type and extension.
func (s *DocumentService) detectType(data []byte, declared string) (string, string, error) {
	mt := mimetype.Detect(data)

	allowed := false
	for _, a := range s.allowed {
		if mt.Is(a) {
			allowed = true
			break
		}
	}
	if !allowed {
		return "", "", common.NewValidationError(common.KindFileTypeNotAllowed,
			"file type %s is not allowed; allowed types: %s", baseType(mt.String()), strings.Join(s.allowed, ", "))
	}

	declared = baseType(declared)
	if declared != "" && declared != octetStream && family(declared) != family(mt.String()) {
		return "", "", common.NewValidationError(common.KindFileTypeNotAllowed,
			"file content does not match declared type %s", declared)
	}
	return baseType(mt.String()), mt.Extension(), nil
}

// baseType strips parameters and normalizes case: "Text/Plain; charset=x" -> "text/plain".
func baseType(s string) string {
	if i := strings.IndexByte(s, ';'); i >= 0 {
		s = s[:i]
	}
	return strings.ToLower(strings.TrimSpace(s))
}

func family(mimeType string) string {
	if i := strings.IndexByte(mimeType, '/'); i >= 0 {
		return mimeType[:i]
	}
	return mimeType
}

// cleanFilename keeps only the last path element of a client-supplied name.
// The result is display metadata and never used to build paths.
func cleanFilename(name string) string {
	name = strings.Map(func(r rune) rune {
		if unicode.IsControl(r) {
			return -1
		}
		return r
	}, name)
	name = path.Base(strings.ReplaceAll(name, "\\", "/"))
	if name == "." || name == "/" || name == ".." {
		name = "file"
	}
	if len(name) > maxOriginalFilenameLen {
		name = strings.ToValidUTF8(name[:maxOriginalFilenameLen], "")
	}
	return name
}

func (s *DocumentService) putBlob(ctx context.Context, key string, data []byte, contentType string) error {
	err := retryx.Do(ctx, s.retry, func(ctx context.Context) error {
		ctx, cancel := context.WithTimeout(ctx, s.ioTimeout)
		defer cancel()
		return s.blobs.Put(ctx, key, bytes.NewReader(data), int64(len(data)), contentType)
	})
	return storageError("store document", err)
}

// discardBlob removes a blob whose metadata was never committed. It runs
// even if the request context is already done.
func (s *DocumentService) discardBlob(ctx context.Context, key string) {
	ctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), s.ioTimeout)
	defer cancel()
	if err := s.blobs.Delete(ctx, key); err != nil {
		s.log.Error(ctx, "orphaned blob left behind", "key", key, "error", err)
	}
}

func (s *DocumentService) deleteBlob(ctx context.Context, key string) error {
	err := retryx.Do(ctx, s.retry, func(ctx context.Context) error {
		ctx, cancel := context.WithTimeout(ctx, s.ioTimeout)
		defer cancel()
		return s.blobs.Delete(ctx, key)
	})
	return storageError("delete document", err)
}

// openBlob opens key for reading. The returned reader must be closed; the
// I/O deadline covers the whole read.
func (s *DocumentService) openBlob(ctx context.Context, key string) (io.ReadCloser, error) {
	var rc io.ReadCloser
	err := retryx.Do(ctx, s.retry, func(ctx context.Context) error {
		ctx, cancel := context.WithTimeout(ctx, s.ioTimeout)
		r, err := s.blobs.Get(ctx, key)
		if err != nil {
			cancel()
			if errors.Is(err, common.ErrNotFound) {
				return retryx.Permanent(err)
			}
			return err
		}
		rc = &cancelOnClose{ReadCloser: r, cancel: cancel}
		return nil
	})
	if err != nil {
		return nil, storageError("open document", err)
	}
	return rc, nil
}

type cancelOnClose struct {
	io.ReadCloser
	cancel context.CancelFunc
}

func (c *cancelOnClose) Close() error {
	defer c.cancel()
	return c.ReadCloser.Close()
}

// storageError classifies blob store failures. Deadline expiry becomes
// common.ErrStorageTimeout; caller cancellation is passed through.
func storageError(op string, err error) error {
	switch {
	case err == nil:
		return nil
	case errors.Is(err, context.DeadlineExceeded):
		return fmt.Errorf("%w: %s: %v", common.ErrStorageTimeout, op, err)
	case errors.Is(err, context.Canceled):
		return err
	default:
		return fmt.Errorf("%w: %s: %v", common.ErrStorage, op, err)
	}
}

// List returns the caller's documents, oldest first.
func (s *DocumentService) List(ctx context.Context, id *auth.Identity) ([]*models.Document, error) {
	if id == nil {
		return nil, common.ErrUnauthenticated
	}
	return s.repomanager.Documents(s.db).ListByOwner(ctx, id.SubjectID)
}

// owned loads a document for its owner. Missing ids and other people's
// documents both yield common.ErrForbidden so ids can't be probed.
func owned(ctx context.Context, repo documents.Repository, id *auth.Identity, docID string, forUpdate bool) (*models.Document, error) {
	if id == nil {
		return nil, common.ErrUnauthenticated
	}
	if _, err := uuid.Parse(docID); err != nil {
		return nil, common.ErrForbidden
	}
	var (
		doc *models.Document
		err error
	)
	if forUpdate {
		doc, err = repo.GetByIDForUpdate(ctx, docID)
	} else {
		doc, err = repo.GetByID(ctx, docID)
	}
	if err != nil {
		if errors.Is(err, common.ErrNotFound) {
			return nil, common.ErrForbidden
		}
		return nil, err
	}
	if doc.OwnerID != id.SubjectID {
		return nil, common.ErrForbidden
	}
	return doc, nil
}

// Fetch returns the caller's document and a reader over its bytes.
func (s *DocumentService) Fetch(ctx context.Context, id *auth.Identity, docID string) (*models.Document, io.ReadCloser, error) {
	doc, err := owned(ctx, s.repomanager.Documents(s.db), id, docID, false)
	if err != nil {
		return nil, nil, err
	}
	rc, err := s.openBlob(ctx, doc.StoragePath)
	if err != nil {
		return nil, nil, err
	}
	return doc, rc, nil
}

// Delete removes the caller's document. The row stays locked while the
// blob is removed, so of two concurrent deletes exactly one succeeds.
func (s *DocumentService) Delete(ctx context.Context, id *auth.Identity, docID string) error {
	return dbx.WithTx(ctx, s.db, nil, func(ctx context.Context, tx dbx.DBTX) error {
		repo := s.repomanager.Documents(tx)
		doc, err := owned(ctx, repo, id, docID, true)
		if err != nil {
			return err
		}
		return s.removeLocked(ctx, repo, doc)
	})
}

func (s *DocumentService) removeLocked(ctx context.Context, repo documents.Repository, doc *models.Document) error {
	if err := s.deleteBlob(ctx, doc.StoragePath); err != nil {
		return err
	}
	if err := repo.Delete(ctx, doc.ID); err != nil {
		return err
	}
	s.log.Info(ctx, "document deleted", "document_id", doc.ID, "owner_id", doc.OwnerID)
	return nil
}

// DeleteAllOwnedBy removes every document of ownerID, one transaction each.
// It stops at the first failure.
func (s *DocumentService) DeleteAllOwnedBy(ctx context.Context, ownerID string) error {
	docs, err := s.repomanager.Documents(s.db).ListByOwner(ctx, ownerID)
	if err != nil {
		return err
	}
	for _, d := range docs {
		err := dbx.WithTx(ctx, s.db, nil, func(ctx context.Context, tx dbx.DBTX) error {
			repo := s.repomanager.Documents(tx)
			doc, err := repo.GetByIDForUpdate(ctx, d.ID)
			if err != nil {
				return err
			}
			return s.removeLocked(ctx, repo, doc)
		})
		if err != nil && !errors.Is(err, common.ErrNotFound) {
			return fmt.Errorf("document %s: %w", d.ID, err)
		}
	}
	return nil
}

func (s *DocumentService) checkAdmin(ctx context.Context, id *auth.Identity) error {
	if id == nil {
		return common.ErrUnauthenticated
	}
	if !s.adminOverride || !id.IsAdmin() {
		s.log.Warn(ctx, "admin override refused", "subject_id", id.SubjectID, "role", id.Role)
		return common.ErrForbidden
	}
	return nil
}

// FetchAsAdmin reads any document. It requires the admin override to be
// enabled and an ADMIN identity, and is recorded in the audit log.
func (s *DocumentService) FetchAsAdmin(ctx context.Context, id *auth.Identity, docID string) (*models.Document, io.ReadCloser, error) {
	if err := s.checkAdmin(ctx, id); err != nil {
		return nil, nil, err
	}
	if _, err := uuid.Parse(docID); err != nil {
		return nil, nil, common.ErrNotFound
	}
	doc, err := s.repomanager.Documents(s.db).GetByID(ctx, docID)
	if err != nil {
		return nil, nil, err
	}
	s.audit(ctx, "fetch", id, doc)
	rc, err := s.openBlob(ctx, doc.StoragePath)
	if err != nil {
		return nil, nil, err
	}
	return doc, rc, nil
}

// DeleteAsAdmin removes any document under the same rules as FetchAsAdmin.
func (s *DocumentService) DeleteAsAdmin(ctx context.Context, id *auth.Identity, docID string) error {
	if err := s.checkAdmin(ctx, id); err != nil {
		return err
	}
	if _, err := uuid.Parse(docID); err != nil {
		return common.ErrNotFound
	}
	return dbx.WithTx(ctx, s.db, nil, func(ctx context.Context, tx dbx.DBTX) error {
		repo := s.repomanager.Documents(tx)
		doc, err := repo.GetByIDForUpdate(ctx, docID)
		if err != nil {
			return err
		}
		s.audit(ctx, "delete", id, doc)
		return s.removeLocked(ctx, repo, doc)
	})
}

func (s *DocumentService) audit(ctx context.Context, action string, id *auth.Identity, doc *models.Document) {
	s.log.Warn(ctx, "audit: admin document access",
		"action", action, "admin_id", id.SubjectID, "document_id", doc.ID, "owner_id", doc.OwnerID)
}
