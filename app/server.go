package app

import (
	"context"
	"crypto/sha256"
	"os"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/logger"
	"github.com/gofiber/fiber/v2/middleware/recover"
	"github.com/gofiber/fiber/v2/middleware/session"
	auth "github.com/goliatone/go-auth-starter"
	"github.com/goliatone/go-auth-starter/activitymap"
	"github.com/goliatone/go-auth-starter/middleware/csrf"
	"github.com/goliatone/go-auth-starter/storage"
	"github.com/goliatone/go-router"
	mflash "github.com/goliatone/go-router/middleware/flash"
	"github.com/google/uuid"
)

// SessionCookie is the name of the session id cookie
const SessionCookie = "session_id"

// WithViews loads the templates and the translator
func WithViews(_ context.Context, app *App) error {
	cfg := app.Config()

	engine, err := auth.NewViews(cfg.App.Debug)
	if err != nil {
		return err
	}
	app.views = engine

	translator, err := auth.NewTranslator(cfg.App.Languages, cfg.App.DefaultLocale)
	if err != nil {
		return err
	}
	app.translator = translator

	app.emails = auth.NewEmailComposer(engine, cfg.App.Name, cfg.App.BaseURL)
	return nil
}

func (a *App) activitySink() auth.ActivitySink {
	if a.activity != nil {
		return a.activity
	}

	logged := auth.LoggerActivitySink{Logger: a.GetLogger("activity")}
	if a.Redis() == nil {
		a.activity = logged
		return a.activity
	}

	a.activity = activitymap.Tee{
		logged,
		activitymap.NewFeed(a.Redis(), activitymap.DefaultFeedKey, activitymap.DefaultFeedSize),
	}
	return a.activity
}

// WithAdmin builds the user management operations
func WithAdmin(_ context.Context, app *App) error {
	app.admin = auth.NewUserAdmin(
		app.Repository(),
		deferredHasher{d: app.hasher},
		deferredCodec{d: app.hashids},
	).
		WithActivitySink(app.activitySink()).
		WithLogger(app.GetLogger("auth:admin"))
	return nil
}

// WithHTTPServer builds the auth flows and mounts them on a fiber backed router
func WithHTTPServer(_ context.Context, app *App) error {
	cfg := app.Config()
	repo := app.Repository()
	hasher := deferredHasher{d: app.hasher}
	codec := deferredCodec{d: app.hashids}
	activity := app.activitySink()
	gateway := app.Gateway()

	verifier := auth.NewIdentityVerifier(repo, app.GetLogger("auth:session"))
	provider := auth.NewUserProvider(repo.Users(), hasher).
		WithLogger(app.GetLogger("auth:prv"))

	key := sha256.Sum256([]byte(cfg.App.SecretKey))
	remember := auth.NewRememberTokenService(key[:], cfg.Session.RememberDuration, cfg.App.Name, app.GetLogger("auth:remember"))

	app.auther = auth.NewAuthenticator(provider, verifier, remember).
		WithLogger(app.GetLogger("auth:authn")).
		WithActivitySink(activity)

	sessionCfg := session.Config{
		Expiration:     cfg.Session.Expiration,
		KeyLookup:      "cookie:" + SessionCookie,
		CookieSecure:   cfg.Session.CookieSecure,
		CookieHTTPOnly: true,
		CookieSameSite: "Lax",
		KeyGenerator:   uuid.NewString,
	}
	if app.Redis() != nil {
		sessionCfg.Storage = storage.NewRedisStorage(app.Redis(), storage.DefaultPrefix)
	}
	store := session.New(sessionCfg)

	app.httpAuth = auth.NewHTTPAuthenticator(store, app.auther, verifier, app.translator, codec, auth.HTTPAuthenticatorConfig{
		CookieSecure:    cfg.Session.CookieSecure,
		SiteName:        cfg.App.Name,
		DefaultTimezone: cfg.App.DefaultTimezone,
	}).WithLogger(app.GetLogger("auth:http"))

	resetInit := auth.NewInitializePasswordResetHandler(repo, gateway, app.emails).
		WithActivitySink(activity).
		WithLogger(app.GetLogger("auth:reset"))
	resetFinalize := auth.NewFinalizePasswordResetHandler(repo, hasher, gateway, app.emails).
		WithActivitySink(activity).
		WithLogger(app.GetLogger("auth:reset"))
	invite := auth.NewIssueInvitationHandler(repo, gateway, app.emails).
		WithActivitySink(activity).
		WithLogger(app.GetLogger("auth:invite"))
	signup := auth.NewSignupHandler(repo, hasher, app.translator.Languages()).
		WithActivitySink(activity).
		WithLogger(app.GetLogger("auth:signup"))

	var fiberApp *fiber.App
	srv := router.NewFiberAdapter(func(*fiber.App) *fiber.App {
		fiberApp = router.DefaultFiberOptions(fiber.New(fiber.Config{
			AppName:           cfg.App.Name,
			Views:             app.views,
			ReadTimeout:       cfg.Server.ReadTimeout,
			ErrorHandler:      auth.NewErrorHandler(app.httpAuth),
			PassLocalsToViews: true,
		}))
		return fiberApp
	})

	// session, identity and CSRF run ahead of every route, error pages included
	fiberApp.Use(recover.New(recover.Config{EnableStackTrace: cfg.App.Debug}))
	if cfg.App.Debug {
		fiberApp.Use(logger.New(logger.Config{Output: os.Stdout}))
	}
	fiberApp.Use(app.httpAuth.SessionMiddleware())
	fiberApp.Use(app.httpAuth.CurrentUserMiddleware())
	fiberApp.Use(csrf.New(csrf.Config{Storage: auth.CSRFStorage{}}))

	srv.Router().Use(mflash.New(mflash.ConfigDefault))

	csrf.RegisterRoutes(srv.Router())

	controller := auth.NewAuthController(app.httpAuth, app.auther, resetInit, resetFinalize, invite, signup,
		auth.WithControllerDebug(cfg.App.Debug),
		auth.WithControllerLogger(app.GetLogger("auth:ctrl")),
	)
	auth.RegisterAuthRoutes(srv.Router(), controller)

	app.srv = srv
	app.fiber = fiberApp
	return nil
}

// Serve listens on the configured address until ctx is done
func (a *App) Serve(ctx context.Context) error {
	errc := make(chan error, 1)
	go func() {
		errc <- a.srv.Serve(a.Config().Server.Addr)
	}()

	select {
	case err := <-errc:
		return err
	case <-ctx.Done():
		return a.fiber.Shutdown()
	}
}
