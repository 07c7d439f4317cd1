// Package httpapi exposes the vault over HTTP with gin: session cookies,
// profile and encrypted field endpoints, and document upload/download.
package httpapi

import (
	"context"
	"errors"
	"io"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/placementhub/vault/internal/common"
	"github.com/placementhub/vault/internal/logging"
	"github.com/placementhub/vault/internal/server/auth"
	"github.com/placementhub/vault/internal/server/models"
	"github.com/placementhub/vault/internal/server/services"
)

// UserStore is the part of services.UserService the API uses.
type UserStore interface {
	CreateUser(ctx context.Context, reg services.Registration) (*models.User, error)
	Authenticate(ctx context.Context, email, password string) (string, *auth.Identity, error)
	Logout(ctx context.Context, id *auth.Identity) error
	GetProfile(ctx context.Context, userID string) (*services.Profile, error)
	UpdateEncryptedField(ctx context.Context, userID, field string, value *string, expectedVersion int64) (int64, error)
	ChangePassword(ctx context.Context, userID, oldPassword, newPassword string) error
	DeleteUser(ctx context.Context, userID string) error
}

// DocumentStore is the part of services.DocumentService the API uses.
type DocumentStore interface {
	Upload(ctx context.Context, id *auth.Identity, up services.Upload) (*models.Document, error)
	List(ctx context.Context, id *auth.Identity) ([]*models.Document, error)
	Fetch(ctx context.Context, id *auth.Identity, docID string) (*models.Document, io.ReadCloser, error)
	Delete(ctx context.Context, id *auth.Identity, docID string) error
	FetchAsAdmin(ctx context.Context, id *auth.Identity, docID string) (*models.Document, io.ReadCloser, error)
	DeleteAsAdmin(ctx context.Context, id *auth.Identity, docID string) error
}

// CookieConfig controls the session cookie attributes.
type CookieConfig struct {
	Secure   bool
	SameSite http.SameSite
}

// ParseSameSite maps "lax" or "strict" (any case) to http.SameSite. Anything
// else falls back to Lax.
func ParseSameSite(s string) http.SameSite {
	if strings.EqualFold(s, "strict") {
		return http.SameSiteStrictMode
	}
	return http.SameSiteLaxMode
}

// selfServiceRoles may be chosen at registration. Other roles are created
// by an operator.
var selfServiceRoles = []models.Role{models.RoleStudent, models.RoleRecruiter}

// Handler serves the REST API.
type Handler struct {
	users  UserStore
	docs   DocumentStore
	cookie CookieConfig
	log    logging.Logger
}

// NewHandler returns a Handler.
func NewHandler(users UserStore, docs DocumentStore, cookie CookieConfig, log logging.Logger) *Handler {
	return &Handler{users: users, docs: docs, cookie: cookie, log: log}
}

func (h *Handler) setSession(c *gin.Context, token string, expiresAt time.Time) {
	http.SetCookie(c.Writer, &http.Cookie{
		Name:     common.SessionCookieName,
		Value:    token,
		Path:     "/",
		Expires:  expiresAt,
		MaxAge:   int(time.Until(expiresAt).Seconds()),
		HttpOnly: true,
		Secure:   h.cookie.Secure,
		SameSite: h.cookie.SameSite,
	})
}

func (h *Handler) clearSession(c *gin.Context) {
	http.SetCookie(c.Writer, &http.Cookie{
		Name:     common.SessionCookieName,
		Value:    "",
		Path:     "/",
		MaxAge:   -1,
		HttpOnly: true,
		Secure:   h.cookie.Secure,
		SameSite: h.cookie.SameSite,
	})
}

// Register creates a STUDENT or RECRUITER account.
// POST /api/v1/auth/register
func (h *Handler) Register(c *gin.Context) {
	var req registerRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, "invalid registration payload")
		return
	}

	role := models.RoleStudent
	if req.Role != "" {
		r, err := models.ParseRole(req.Role)
		if err != nil || !isSelfServiceRole(r) {
			badRequest(c, "role must be STUDENT or RECRUITER")
			return
		}
		role = r
	}

	fields := make(map[models.FieldName]string, len(req.Fields))
	for k, v := range req.Fields {
		name, err := models.ParseFieldName(k)
		if err != nil {
			fail(c, http.StatusBadRequest, common.KindInvalidField, "unknown field "+strconv.Quote(k))
			return
		}
		fields[name] = v
	}

	user, err := h.users.CreateUser(c.Request.Context(), services.Registration{
		Name:           req.Name,
		Email:          req.Email,
		Password:       req.Password,
		Role:           role,
		Visibility:     models.Visibility(strings.ToUpper(req.Visibility)),
		CGPA:           req.CGPA,
		Tenth:          req.TenthPercentage,
		Twelfth:        req.TwelfthPercentage,
		Branch:         req.Branch,
		GraduationYear: req.GraduationYear,
		Fields:         fields,
	})
	if err != nil {
		writeError(c, h.log, err)
		return
	}
	created(c, toUserResponse(user))
}

func isSelfServiceRole(r models.Role) bool {
	for _, allowed := range selfServiceRoles {
		if r == allowed {
			return true
		}
	}
	return false
}

// Login checks credentials and sets the session cookie. The token itself is
// never put in the response body.
// POST /api/v1/auth/login
func (h *Handler) Login(c *gin.Context) {
	var req loginRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, "email and password are required")
		return
	}
	token, id, err := h.users.Authenticate(c.Request.Context(), req.Email, req.Password)
	if err != nil {
		if errors.Is(err, common.ErrUnauthenticated) {
			fail(c, http.StatusUnauthorized, CodeUnauthenticated, "invalid email or password")
			return
		}
		writeError(c, h.log, err)
		return
	}
	h.setSession(c, token, id.ExpiresAt)
	success(c, sessionResponse{UserID: id.SubjectID, Role: string(id.Role), ExpiresAt: id.ExpiresAt})
}

// Logout revokes the current token and clears the cookie.
// POST /api/v1/auth/logout
func (h *Handler) Logout(c *gin.Context) {
	id, found := mustIdentity(c)
	if !found {
		return
	}
	if err := h.users.Logout(c.Request.Context(), id); err != nil {
		writeError(c, h.log, err)
		return
	}
	h.clearSession(c)
	success(c, nil)
}

// Me returns the caller's profile with decrypted fields.
// GET /api/v1/users/me
func (h *Handler) Me(c *gin.Context) {
	id, found := mustIdentity(c)
	if !found {
		return
	}
	p, err := h.users.GetProfile(c.Request.Context(), id.SubjectID)
	if err != nil {
		writeError(c, h.log, err)
		return
	}
	c.Header("ETag", strconv.Quote(strconv.FormatInt(p.User.Version, 10)))
	success(c, toProfileResponse(p))
}

// UpdateField sets or clears one encrypted field. An If-Match header
// carrying the record version makes the write conditional.
// PUT /api/v1/users/me/fields/:field
func (h *Handler) UpdateField(c *gin.Context) {
	id, found := mustIdentity(c)
	if !found {
		return
	}
	expected, err := parseIfMatch(c.GetHeader("If-Match"))
	if err != nil {
		badRequest(c, "If-Match must be a record version")
		return
	}
	var req updateFieldRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, "invalid field payload")
		return
	}

	version, err := h.users.UpdateEncryptedField(c.Request.Context(), id.SubjectID, c.Param("field"), req.Value, expected)
	if err != nil {
		writeError(c, h.log, err)
		return
	}
	c.Header("ETag", strconv.Quote(strconv.FormatInt(version, 10)))
	success(c, versionResponse{Version: version})
}

// parseIfMatch accepts 7, "7" and W/"7". An empty header means unconditional.
func parseIfMatch(h string) (int64, error) {
	h = strings.TrimSpace(h)
	if h == "" {
		return 0, nil
	}
	h = strings.TrimPrefix(h, "W/")
	h = strings.Trim(h, `"`)
	v, err := strconv.ParseInt(h, 10, 64)
	if err != nil || v <= 0 {
		return 0, errors.New("invalid version")
	}
	return v, nil
}

// ChangePassword replaces the caller's password.
// PUT /api/v1/users/me/password
func (h *Handler) ChangePassword(c *gin.Context) {
	id, found := mustIdentity(c)
	if !found {
		return
	}
	var req changePasswordRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, "oldPassword and newPassword are required")
		return
	}
	if err := h.users.ChangePassword(c.Request.Context(), id.SubjectID, req.OldPassword, req.NewPassword); err != nil {
		if errors.Is(err, common.ErrUnauthenticated) {
			fail(c, http.StatusForbidden, CodeForbidden, "current password is incorrect")
			return
		}
		writeError(c, h.log, err)
		return
	}
	success(c, nil)
}

// DeleteMe deletes the caller's account and every document they own.
// DELETE /api/v1/users/me
func (h *Handler) DeleteMe(c *gin.Context) {
	id, found := mustIdentity(c)
	if !found {
		return
	}
	if err := h.users.DeleteUser(c.Request.Context(), id.SubjectID); err != nil {
		writeError(c, h.log, err)
		return
	}
	if err := h.users.Logout(c.Request.Context(), id); err != nil {
		h.log.Warn(c.Request.Context(), "revoking session of deleted user failed", "error", err)
	}
	h.clearSession(c)
	success(c, nil)
}
