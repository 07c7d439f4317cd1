package httpapi

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"path"
	"strings"

	"github.com/gin-gonic/gin"
	"github.com/gosimple/slug"

	"github.com/placementhub/vault/internal/server/auth"
	"github.com/placementhub/vault/internal/server/models"
	"github.com/placementhub/vault/internal/server/services"
)

// UploadDocument stores the multipart "file" part for the caller.
// POST /api/v1/documents
func (h *Handler) UploadDocument(c *gin.Context) {
	id, found := mustIdentity(c)
	if !found {
		return
	}

	fh, err := c.FormFile("file")
	if err != nil {
		var tooBig *http.MaxBytesError
		if errors.As(err, &tooBig) {
			writeError(c, h.log, err)
			return
		}
		badRequest(c, `multipart field "file" is required`)
		return
	}
	f, err := fh.Open()
	if err != nil {
		writeError(c, h.log, fmt.Errorf("open upload: %w", err))
		return
	}
	defer f.Close()

	doc, err := h.docs.Upload(c.Request.Context(), id, services.Upload{
		Kind:         c.PostForm("kind"),
		Filename:     fh.Filename,
		DeclaredType: fh.Header.Get("Content-Type"),
		DeclaredSize: fh.Size,
		Body:         f,
	})
	if err != nil {
		writeError(c, h.log, err)
		return
	}
	created(c, uploadResponse{ID: doc.ID, Filename: doc.OriginalFilename, UploadedAt: doc.UploadedAt})
}

// ListDocuments lists the caller's documents.
// GET /api/v1/documents
func (h *Handler) ListDocuments(c *gin.Context) {
	id, found := mustIdentity(c)
	if !found {
		return
	}
	docs, err := h.docs.List(c.Request.Context(), id)
	if err != nil {
		writeError(c, h.log, err)
		return
	}
	out := make([]documentResponse, 0, len(docs))
	for _, d := range docs {
		out = append(out, toDocumentResponse(d))
	}
	success(c, out)
}

// DownloadDocument streams one of the caller's documents.
// GET /api/v1/documents/:id
func (h *Handler) DownloadDocument(c *gin.Context) {
	h.download(c, h.docs.Fetch)
}

// DeleteDocument deletes one of the caller's documents.
// DELETE /api/v1/documents/:id
func (h *Handler) DeleteDocument(c *gin.Context) {
	h.remove(c, h.docs.Delete)
}

// AdminDownloadDocument streams any document when the admin override is on.
// GET /api/v1/admin/documents/:id
func (h *Handler) AdminDownloadDocument(c *gin.Context) {
	h.download(c, h.docs.FetchAsAdmin)
}

// AdminDeleteDocument deletes any document when the admin override is on.
// DELETE /api/v1/admin/documents/:id
func (h *Handler) AdminDeleteDocument(c *gin.Context) {
	h.remove(c, h.docs.DeleteAsAdmin)
}

type fetchFunc func(ctx context.Context, id *auth.Identity, docID string) (*models.Document, io.ReadCloser, error)

func (h *Handler) download(c *gin.Context, fetch fetchFunc) {
	id, found := mustIdentity(c)
	if !found {
		return
	}
	doc, rc, err := fetch(c.Request.Context(), id, c.Param("id"))
	if err != nil {
		writeError(c, h.log, err)
		return
	}
	defer rc.Close()

	c.DataFromReader(http.StatusOK, doc.SizeBytes, doc.MimeType, rc, map[string]string{
		"Content-Disposition": fmt.Sprintf(`attachment; filename="%s"`, downloadName(doc)),
	})
}

func (h *Handler) remove(c *gin.Context, del func(ctx context.Context, id *auth.Identity, docID string) error) {
	id, found := mustIdentity(c)
	if !found {
		return
	}
	if err := del(c.Request.Context(), id, c.Param("id")); err != nil {
		writeError(c, h.log, err)
		return
	}
	success(c, nil)
}

// downloadName builds a header-safe file name from the original name and
// the extension of the validated type, e.g. "Asha Rao CV.PDF" -> "asha-rao-cv.pdf".
func downloadName(doc *models.Document) string {
	base := strings.TrimSuffix(doc.OriginalFilename, path.Ext(doc.OriginalFilename))
	name := slug.Make(base)
	if name == "" {
		name = "document"
	}
	return name + path.Ext(doc.StoredFilename)
}
