package httpapi

import (
	"context"
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/placementhub/vault/internal/common"
	"github.com/placementhub/vault/internal/logging"
)

// Response is the JSON envelope of every API reply. Code is "OK" on success
// and a machine readable error kind otherwise.
type Response struct {
	Code    string `json:"code"`
	Message string `json:"message"`
	Data    any    `json:"data,omitempty"`
}

// Error codes that are not validation kinds.
const (
	CodeOK              = "OK"
	CodeUnauthenticated = "UNAUTHENTICATED"
	CodeForbidden       = "FORBIDDEN"
	CodeNotFound        = "NOT_FOUND"
	CodeDuplicate       = "DUPLICATE"
	CodeVersionConflict = "VERSION_CONFLICT"
	CodeDataIntegrity   = "DATA_INTEGRITY"
	CodeStorageTimeout  = "STORAGE_TIMEOUT"
	CodeStorageError    = "STORAGE_ERROR"
	CodeRequestCanceled = "REQUEST_CANCELED"
	CodeInternal        = "INTERNAL"
	CodeServiceNotReady = "NOT_READY"
)

const (
	retryAfterSeconds    = "5"
	unauthenticatedReply = "authentication required"
)

func success(c *gin.Context, data any) {
	c.JSON(http.StatusOK, Response{Code: CodeOK, Message: "success", Data: data})
}

func created(c *gin.Context, data any) {
	c.JSON(http.StatusCreated, Response{Code: CodeOK, Message: "success", Data: data})
}

func fail(c *gin.Context, status int, code, message string) {
	c.AbortWithStatusJSON(status, Response{Code: code, Message: message})
}

func unauthenticated(c *gin.Context) {
	fail(c, http.StatusUnauthorized, CodeUnauthenticated, unauthenticatedReply)
}

func badRequest(c *gin.Context, message string) {
	fail(c, http.StatusBadRequest, common.KindInvalidInput, message)
}

// writeError is the single place that maps service errors to HTTP replies.
// Messages never include internal detail; 5xx causes are logged instead.
func writeError(c *gin.Context, log logging.Logger, err error) {
	_ = c.Error(err)

	var ve *common.ValidationError
	var tooBig *http.MaxBytesError
	switch {
	case errors.As(err, &ve):
		status := http.StatusBadRequest
		if ve.Kind == common.KindFileTooLarge {
			status = http.StatusRequestEntityTooLarge
		}
		fail(c, status, ve.Kind, ve.Message)
	case errors.As(err, &tooBig):
		fail(c, http.StatusRequestEntityTooLarge, common.KindFileTooLarge, "request body too large")
	case errors.Is(err, common.ErrUnauthenticated),
		errors.Is(err, common.ErrInvalidToken),
		errors.Is(err, common.ErrTokenExpired):
		unauthenticated(c)
	case errors.Is(err, common.ErrForbidden):
		fail(c, http.StatusForbidden, CodeForbidden, "access denied")
	case errors.Is(err, common.ErrNotFound):
		fail(c, http.StatusNotFound, CodeNotFound, "not found")
	case errors.Is(err, common.ErrDuplicate):
		fail(c, http.StatusConflict, CodeDuplicate, "already exists")
	case errors.Is(err, common.ErrVersionConflict):
		fail(c, http.StatusConflict, CodeVersionConflict, "record was modified concurrently; reload and retry")
	case errors.Is(err, common.ErrDataIntegrity):
		log.Error(c.Request.Context(), "integrity failure", "path", c.FullPath(), "error", err)
		fail(c, http.StatusInternalServerError, CodeDataIntegrity, "stored data failed an integrity check")
	case errors.Is(err, common.ErrStorageTimeout):
		log.Warn(c.Request.Context(), "storage timeout", "path", c.FullPath(), "error", err)
		c.Header("Retry-After", retryAfterSeconds)
		fail(c, http.StatusServiceUnavailable, CodeStorageTimeout, "storage did not respond in time; retry later")
	case errors.Is(err, common.ErrStorage):
		log.Error(c.Request.Context(), "storage failure", "path", c.FullPath(), "error", err)
		fail(c, http.StatusInternalServerError, CodeStorageError, "storage failure")
	case errors.Is(err, context.Canceled):
		fail(c, http.StatusRequestTimeout, CodeRequestCanceled, "request canceled")
	default:
		log.Error(c.Request.Context(), "request failed", "path", c.FullPath(), "error", err)
		fail(c, http.StatusInternalServerError, CodeInternal, "internal error")
	}
}
