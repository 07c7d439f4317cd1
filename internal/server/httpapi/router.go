package httpapi

import (
	"context"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"github.com/placementhub/vault/internal/logging"
	"github.com/placementhub/vault/internal/server/auth"
	"github.com/placementhub/vault/internal/server/models"
	"github.com/placementhub/vault/internal/server/revocation"
)

// jsonBodyLimit bounds every non-upload request body.
const (
	jsonBodyLimit     = 64 << 10
	multipartOverhead = 64 << 10
	readyTimeout      = 2 * time.Second
)

// Deps are the collaborators of the router. Denylist and Ready may be nil.
type Deps struct {
	Users       UserStore
	Documents   DocumentStore
	Tokens      *auth.TokenManager
	Denylist    revocation.Denylist
	Cookie      CookieConfig
	MaxFileSize int64
	Ready       func(ctx context.Context) error
	Logger      *zap.Logger
}

// NewRouter builds the gin engine with every route of the API.
func NewRouter(d Deps) *gin.Engine {
	log := logging.NewZapLogger(d.Logger)
	h := NewHandler(d.Users, d.Documents, d.Cookie, log)

	r := gin.New()
	// Keep the whole upload in memory so nothing reaches a temp file before
	// the MIME allow-list has run.
	if d.MaxFileSize > 0 {
		r.MaxMultipartMemory = d.MaxFileSize + multipartOverhead
	}
	r.Use(gin.Recovery())
	r.Use(RequestID())
	r.Use(Logger(d.Logger))
	r.Use(SecurityHeaders())

	r.GET("/health", func(c *gin.Context) {
		if d.Ready != nil {
			ctx, cancel := context.WithTimeout(c.Request.Context(), readyTimeout)
			defer cancel()
			if err := d.Ready(ctx); err != nil {
				log.Error(ctx, "readiness check failed", "error", err)
				fail(c, http.StatusServiceUnavailable, CodeServiceNotReady, "not ready")
				return
			}
		}
		c.JSON(http.StatusOK, gin.H{"status": "ok"})
	})

	jsonLimit := BodyLimit(jsonBodyLimit)
	session := SessionAuth(d.Tokens, d.Denylist, log)

	v1 := r.Group("/api/v1")
	{
		authGroup := v1.Group("/auth")
		{
			authGroup.POST("/register", jsonLimit, h.Register)
			authGroup.POST("/login", jsonLimit, h.Login)
			authGroup.POST("/logout", session, h.Logout)
		}

		users := v1.Group("/users/me", session)
		{
			users.GET("", h.Me)
			users.PUT("/fields/:field", jsonLimit, h.UpdateField)
			users.PUT("/password", jsonLimit, h.ChangePassword)
			users.DELETE("", h.DeleteMe)
		}

		docs := v1.Group("/documents", session)
		{
			docs.POST("", BodyLimit(d.MaxFileSize+multipartOverhead), h.UploadDocument)
			docs.GET("", h.ListDocuments)
			docs.GET("/:id", h.DownloadDocument)
			docs.DELETE("/:id", h.DeleteDocument)
		}

		admin := v1.Group("/admin", session, RoleAuth(models.RoleAdmin))
		{
			admin.GET("/documents/:id", h.AdminDownloadDocument)
			admin.DELETE("/documents/:id", h.AdminDeleteDocument)
		}
	}

	return r
}
