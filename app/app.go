package app

import (
	"context"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/template/django/v3"
	auth "github.com/goliatone/go-auth-starter"
	"github.com/goliatone/go-auth-starter/config"
	"github.com/goliatone/go-auth-starter/logging"
	"github.com/goliatone/go-auth-starter/notification"
	"github.com/goliatone/go-router"
	"github.com/redis/go-redis/v9"
	"github.com/uptrace/bun"
	"go.uber.org/zap"
)

// App is built once at startup and handed to every component
type App struct {
	config *config.Config
	logger *logging.ZapLogger

	bunDB *bun.DB
	repo  auth.RepositoryManager
	redis redis.UniversalClient

	hasher  *auth.Deferred[auth.PasswordHasher]
	hashids *auth.Deferred[auth.IDCodec]
	queue   *auth.Deferred[*notification.RedisQueue]

	mailer   notification.Mailer
	gateway  *notification.Gateway
	activity auth.ActivitySink

	views      *django.Engine
	translator *auth.Translator
	emails     *auth.EmailComposer

	auther   *auth.Auther
	httpAuth *auth.RouteAuthenticator
	admin    *auth.UserAdmin
	srv      router.Server[*fiber.App]
	fiber    *fiber.App
}

// Initializer is one step of Bootstrap
type Initializer func(ctx context.Context, app *App) error

// New returns an App with unbound hasher, hashids and queue handles
func New(cfg *config.Config, lgr *zap.Logger) *App {
	if lgr == nil {
		lgr = zap.NewNop()
	}
	return &App{
		config:  cfg,
		logger:  logging.NewZapLogger(lgr),
		hasher:  auth.NewDeferred[auth.PasswordHasher]("hasher"),
		hashids: auth.NewDeferred[auth.IDCodec]("hashids"),
		queue:   auth.NewDeferred[*notification.RedisQueue]("queue"),
	}
}

// Bootstrap runs every initializer needed by the HTTP server
func Bootstrap(ctx context.Context, app *App, extra ...Initializer) error {
	steps := []Initializer{
		WithSecrets,
		WithCrypto,
		WithPersistence,
		WithRedis,
		WithNotifications,
		WithViews,
		WithAdmin,
		WithHTTPServer,
	}
	return run(ctx, app, append(steps, extra...))
}

// BootstrapAdmin only wires what the user management commands need
func BootstrapAdmin(ctx context.Context, app *App) error {
	return run(ctx, app, []Initializer{
		WithCrypto,
		WithPersistence,
		WithAdmin,
	})
}

// WithSecrets refuses to serve with the public default secret key. Debug
// mode only logs a warning.
func WithSecrets(_ context.Context, app *App) error {
	cfg := app.Config()
	if err := cfg.CheckSecrets(); err != nil {
		return err
	}
	if cfg.UsesDefaultSecret() {
		app.GetLogger("config").Warn("app.secret_key is the public default, session cookies can be forged")
	}
	return nil
}

func run(ctx context.Context, app *App, steps []Initializer) error {
	for _, step := range steps {
		if err := step(ctx, app); err != nil {
			return err
		}
	}
	return nil
}

func (a *App) Config() *config.Config {
	return a.config
}

func (a *App) GetLogger(name string) auth.Logger {
	return a.logger.Named(name)
}

func (a *App) SetDB(db *bun.DB) {
	a.bunDB = db
}

func (a *App) DB() *bun.DB {
	return a.bunDB
}

func (a *App) SetRepository(repo auth.RepositoryManager) {
	a.repo = repo
}

func (a *App) Repository() auth.RepositoryManager {
	return a.repo
}

// SetMailer overrides the mailer picked from the configuration
func (a *App) SetMailer(mailer notification.Mailer) {
	a.mailer = mailer
}

func (a *App) Mailer() notification.Mailer {
	return a.mailer
}

func (a *App) Gateway() *notification.Gateway {
	return a.gateway
}

func (a *App) SetActivitySink(sink auth.ActivitySink) {
	a.activity = sink
}

func (a *App) SetRedis(client redis.UniversalClient) {
	a.redis = client
}

func (a *App) Redis() redis.UniversalClient {
	return a.redis
}

func (a *App) Hasher() auth.PasswordHasher {
	return a.hasher.Get()
}

func (a *App) Hashids() auth.IDCodec {
	return a.hashids.Get()
}

func (a *App) Admin() *auth.UserAdmin {
	return a.admin
}

func (a *App) Auther() *auth.Auther {
	return a.auther
}

// HTTPServer returns the fiber app behind the router
func (a *App) HTTPServer() *fiber.App {
	return a.fiber
}

// Close releases the database and Redis connections
func (a *App) Close() error {
	var first error
	if a.redis != nil {
		if err := a.redis.Close(); err != nil {
			first = err
		}
	}
	if a.bunDB != nil {
		if err := a.bunDB.Close(); err != nil && first == nil {
			first = err
		}
	}
	_ = a.logger.Sync()
	return first
}
