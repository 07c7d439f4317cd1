package httpapi

import (
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/placementhub/vault/internal/common"
	"github.com/placementhub/vault/internal/logging"
	"github.com/placementhub/vault/internal/server/auth"
	"github.com/placementhub/vault/internal/server/models"
	"github.com/placementhub/vault/internal/server/revocation"
)

const (
	requestIDKey    = "request_id"
	requestIDMaxLen = 64
	identityKey     = "identity"
)

// RequestID propagates X-Request-ID, generating one when absent or too long.
// The id also rides on the request context so service logs carry it.
func RequestID() gin.HandlerFunc {
	return func(c *gin.Context) {
		rid := c.GetHeader(common.RequestIDHeader)
		if rid == "" || len(rid) > requestIDMaxLen {
			rid = uuid.NewString()
		}
		c.Set(requestIDKey, rid)
		c.Header(common.RequestIDHeader, rid)
		c.Request = c.Request.WithContext(logging.WithRequestID(c.Request.Context(), rid))
		c.Next()
	}
}

// Logger writes one structured line per request. Query strings and bodies
// are not logged.
func Logger(logger *zap.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		c.Next()

		status := c.Writer.Status()
		fields := []zap.Field{
			zap.Int("status", status),
			zap.String("method", c.Request.Method),
			zap.String("route", c.FullPath()),
			zap.String("ip", c.ClientIP()),
			zap.Duration("latency", time.Since(start)),
			zap.String("request_id", c.GetString(requestIDKey)),
		}
		if id, ok := identityFrom(c); ok {
			fields = append(fields, zap.String("subject_id", id.SubjectID))
		}
		if len(c.Errors) > 0 {
			fields = append(fields, zap.String("errors", c.Errors.ByType(gin.ErrorTypePrivate).String()))
		}

		switch {
		case status >= 500:
			logger.Error("request failed", fields...)
		case status >= 400:
			logger.Warn("client error", fields...)
		default:
			logger.Info("request completed", fields...)
		}
	}
}

// SecurityHeaders sets conservative response headers for a JSON/file API.
func SecurityHeaders() gin.HandlerFunc {
	return func(c *gin.Context) {
		c.Header("X-Frame-Options", "DENY")
		c.Header("X-Content-Type-Options", "nosniff")
		c.Header("Referrer-Policy", "no-referrer")
		c.Header("Content-Security-Policy", "default-src 'none'; frame-ancestors 'none'")
		c.Header("Cache-Control", "no-store")
		c.Next()
	}
}

// BodyLimit caps the request body. Handlers see *http.MaxBytesError once
// the limit is crossed.
func BodyLimit(maxBytes int64) gin.HandlerFunc {
	return func(c *gin.Context) {
		if c.Request.ContentLength > maxBytes {
			fail(c, http.StatusRequestEntityTooLarge, common.KindFileTooLarge, "request body too large")
			return
		}
		if c.Request.Body != nil {
			c.Request.Body = http.MaxBytesReader(c.Writer, c.Request.Body, maxBytes)
		}
		c.Next()
	}
}

// SessionAuth authenticates requests by the session cookie only; the
// Authorization header and query parameters are ignored. Every failure is a
// 401 with the same body. A denylist lookup error rejects the request.
func SessionAuth(tokens *auth.TokenManager, denylist revocation.Denylist, log logging.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		raw, err := c.Cookie(common.SessionCookieName)
		if err != nil || raw == "" {
			unauthenticated(c)
			return
		}

		id, err := tokens.Verify(raw)
		if err != nil {
			log.Debug(c.Request.Context(), "session rejected", "reason", err.Error())
			unauthenticated(c)
			return
		}

		if denylist != nil {
			revoked, err := denylist.IsRevoked(c.Request.Context(), id.TokenID)
			if err != nil {
				log.Error(c.Request.Context(), "denylist lookup failed", "error", err)
				unauthenticated(c)
				return
			}
			if revoked {
				unauthenticated(c)
				return
			}
		}

		c.Set(identityKey, id)
		c.Request = c.Request.WithContext(auth.WithIdentity(c.Request.Context(), id))
		c.Next()
	}
}

// RoleAuth admits only identities holding one of roles. It must run after
// SessionAuth.
func RoleAuth(roles ...models.Role) gin.HandlerFunc {
	return func(c *gin.Context) {
		id, ok := identityFrom(c)
		if !ok {
			unauthenticated(c)
			return
		}
		for _, r := range roles {
			if id.Role == r {
				c.Next()
				return
			}
		}
		fail(c, http.StatusForbidden, CodeForbidden, "access denied")
	}
}

func identityFrom(c *gin.Context) (*auth.Identity, bool) {
	v, exists := c.Get(identityKey)
	if !exists {
		return nil, false
	}
	id, ok := v.(*auth.Identity)
	return id, ok && id != nil
}

// mustIdentity writes a 401 and returns false when no identity is attached.
func mustIdentity(c *gin.Context) (*auth.Identity, bool) {
	id, ok := identityFrom(c)
	if !ok {
		unauthenticated(c)
	}
	return id, ok
}
