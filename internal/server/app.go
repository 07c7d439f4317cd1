// Package server wires the vault together: configuration, database, blob
// storage, token revocation, services, the HTTP API and the admin gRPC
// endpoint. It also owns graceful shutdown.
package server

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"sync"
	"syscall"
	"time"

	goredis "github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"github.com/placementhub/vault/internal/cryptox"
	"github.com/placementhub/vault/internal/logging"
	"github.com/placementhub/vault/internal/server/auth"
	"github.com/placementhub/vault/internal/server/blobstore"
	"github.com/placementhub/vault/internal/server/config"
	"github.com/placementhub/vault/internal/server/httpapi"
	"github.com/placementhub/vault/internal/server/repositories/repomanager"
	"github.com/placementhub/vault/internal/server/revocation"
	"github.com/placementhub/vault/internal/server/services"

	gs "github.com/placementhub/vault/internal/server/grpc"
)

const (
	sweepInterval     = 10 * time.Minute
	readHeaderTimeout = 10 * time.Second
)

type App struct {
	config    *config.Config
	zap       *zap.Logger
	logger    logging.Logger
	db        *sql.DB
	redis     *goredis.Client
	tokens    *auth.TokenManager
	denylist  revocation.Denylist
	sweeper   *revocation.Postgres
	users     *services.UserService
	documents *services.DocumentService
}

// NewApp connects every dependency named by c and runs pending migrations.
// Call Close when done.
func NewApp(ctx context.Context, c *config.Config) (*App, error) {
	zl, err := logging.NewZap(c.LogLevel, c.LogFormat)
	if err != nil {
		return nil, err
	}
	app := &App{config: c, zap: zl, logger: logging.NewZapLogger(zl)}
	if err := app.init(ctx); err != nil {
		app.Close()
		return nil, err
	}
	return app, nil
}

func (app *App) init(ctx context.Context) error {
	c := app.config

	keyring, err := c.Keyring()
	if err != nil {
		return fmt.Errorf("keyring init error: %w", err)
	}
	engine := cryptox.NewEngine(keyring)

	app.db, err = repomanager.Open(ctx, c.DatabaseDSN)
	if err != nil {
		return err
	}
	rm := repomanager.NewPostgresRepositoryManager()
	if err := rm.RunMigrations(ctx, app.db); err != nil {
		return fmt.Errorf("db migration error: %w", err)
	}

	blobs, err := app.newBlobStore(ctx)
	if err != nil {
		return err
	}
	if err := app.newDenylist(ctx); err != nil {
		return err
	}

	app.tokens, err = auth.NewTokenManager([]byte(c.SigningSecret), c.SessionTTL)
	if err != nil {
		return fmt.Errorf("token manager init error: %w", err)
	}

	app.documents = services.NewDocumentService(app.db, rm, blobs, c, app.logger.With("module", "documents"))
	app.users, err = services.NewUserService(app.db, rm, engine, app.tokens, app.documents, app.denylist, c,
		app.logger.With("module", "users"))
	if err != nil {
		return err
	}

	return nil
}

func (app *App) newBlobStore(ctx context.Context) (blobstore.Store, error) {
	switch app.config.StorageBackend {
	case "s3":
		s, err := blobstore.NewS3(ctx, blobstore.S3Config{
			Region:       app.config.S3Region,
			Endpoint:     app.config.S3Endpoint,
			Bucket:       app.config.S3Bucket,
			AccessKey:    app.config.S3AccessKey,
			SecretKey:    app.config.S3SecretKey,
			UsePathStyle: app.config.S3UsePathStyle,
		})
		if err != nil {
			return nil, fmt.Errorf("s3 init error: %w", err)
		}
		return s, nil
	default:
		l, err := blobstore.NewLocal(app.config.UploadDir)
		if err != nil {
			return nil, fmt.Errorf("upload dir init error: %w", err)
		}
		return l, nil
	}
}

func (app *App) newDenylist(ctx context.Context) error {
	switch app.config.RevocationBackend {
	case "redis":
		app.redis = goredis.NewClient(&goredis.Options{
			Addr:     app.config.RedisAddr,
			Password: app.config.RedisPassword,
			DB:       app.config.RedisDB,
		})
		if err := app.redis.Ping(ctx).Err(); err != nil {
			return fmt.Errorf("redis ping error: %w", err)
		}
		app.denylist = revocation.NewRedis(app.redis)
	case "postgres":
		app.sweeper = revocation.NewPostgres(app.db, app.logger.With("module", "revocation"))
		app.denylist = app.sweeper
	default:
		app.logger.Warn(ctx, "token revocation disabled; logout only clears the cookie")
	}
	return nil
}

// Users exposes the user service for operator tooling.
func (app *App) Users() *services.UserService { return app.users }

// Tokens exposes the session token manager for operator tooling.
func (app *App) Tokens() *auth.TokenManager { return app.tokens }

func (app *App) initSignalHandler(cancelFunc context.CancelFunc) {
	sigs := make(chan os.Signal, 1)
	signal.Notify(sigs, syscall.SIGINT, syscall.SIGTERM, syscall.SIGQUIT)

	go func() {
		<-sigs
		cancelFunc()
	}()
}

func (app *App) startHTTPServer(ctx context.Context, cancelFunc context.CancelFunc) {
	router := httpapi.NewRouter(httpapi.Deps{
		Users:     app.users,
		Documents: app.documents,
		Tokens:    app.tokens,
		Denylist:  app.denylist,
		Cookie: httpapi.CookieConfig{
			Secure:   app.config.CookieSecure,
			SameSite: httpapi.ParseSameSite(app.config.CookieSameSite),
		},
		MaxFileSize: app.config.MaxFileSize,
		Ready:       app.db.PingContext,
		Logger:      app.zap.Named("http"),
	})

	srv := &http.Server{
		Addr:              app.config.HTTPAddr,
		Handler:           router,
		ReadHeaderTimeout: readHeaderTimeout,
	}

	go func() {
		<-ctx.Done()
		app.logger.Info(ctx, "Stopping HTTP server...")
		shutdownCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), app.config.ShutdownTimeout)
		defer cancel()
		if err := srv.Shutdown(shutdownCtx); err != nil {
			app.logger.Error(ctx, "http shutdown error", "error", err)
		}
	}()

	app.logger.Info(ctx, "Starting HTTP server", "address", app.config.HTTPAddr)
	if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		app.logger.Error(ctx, err.Error())
		cancelFunc()
	}
}

func (app *App) startGRPCServer(ctx context.Context, cancelFunc context.CancelFunc) {
	if app.config.GRPCAddr == "" {
		return
	}
	s := gs.NewGRPCServer(app.config.GRPCAddr, app.logger, app.users, app.tokens, app.denylist)
	if err := s.Run(ctx); err != nil {
		app.logger.Error(ctx, err.Error())
		cancelFunc()
	}
}

// Run serves HTTP and gRPC until ctx is canceled or a termination signal
// arrives, then shuts both down.
func (app *App) Run(ctx context.Context) {
	ctx, cancelFunc := context.WithCancel(ctx)
	defer cancelFunc()

	app.logger.Info(ctx, "Starting app...", "config", app.config.String())

	app.initSignalHandler(cancelFunc)

	var wg sync.WaitGroup

	wg.Add(1)
	go func() {
		defer wg.Done()
		app.startHTTPServer(ctx, cancelFunc)
	}()

	wg.Add(1)
	go func() {
		defer wg.Done()
		app.startGRPCServer(ctx, cancelFunc)
	}()

	if app.sweeper != nil {
		wg.Add(1)
		go func() {
			defer wg.Done()
			app.sweeper.Sweep(ctx, sweepInterval)
		}()
	}

	wg.Wait()
	app.logger.Info(context.Background(), "App stopped")
}

// Close releases connections opened by NewApp.
func (app *App) Close() error {
	var errs []error
	if app.redis != nil {
		errs = append(errs, app.redis.Close())
	}
	if app.db != nil {
		errs = append(errs, app.db.Close())
	}
	if app.zap != nil {
		_ = app.zap.Sync()
	}
	return errors.Join(errs...)
}
