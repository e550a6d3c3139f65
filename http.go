package auth

import (
	"net/url"
	"strings"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/session"
	"github.com/goliatone/go-router"
	"github.com/goliatone/go-router/flash"
)

const (
	sessionLocalsKey = "_session"
	sessionUserKey   = "_user_id"
	sessionFreshKey  = "_fresh"
	sessionCSRFKey   = "_csrf_token"

	// DefaultRememberCookie is the name of the remember me cookie
	DefaultRememberCookie = "remember_token"
)

// RouteAuthenticator binds sessions, remember cookies and the current
// user to requests. Session loading runs as fiber middleware so the CSRF
// check and the error pages see it. Route guards run on the router.
type RouteAuthenticator struct {
	store           *session.Store
	auth            *Auther
	verifier        *IdentityVerifier
	translator      *Translator
	codec           IDCodec
	rememberCookie  string
	cookieSecure    bool
	siteName        string
	defaultTimezone string
	Logger          Logger
}

// HTTPAuthenticatorConfig holds the transport settings
type HTTPAuthenticatorConfig struct {
	RememberCookie  string
	CookieSecure    bool
	SiteName        string
	DefaultTimezone string
}

// NewHTTPAuthenticator wires the session store to the auth flows
func NewHTTPAuthenticator(store *session.Store, auther *Auther, verifier *IdentityVerifier, translator *Translator, codec IDCodec, cfg HTTPAuthenticatorConfig) *RouteAuthenticator {
	if cfg.RememberCookie == "" {
		cfg.RememberCookie = DefaultRememberCookie
	}
	if cfg.DefaultTimezone == "" {
		cfg.DefaultTimezone = DefaultTimezone
	}

	return &RouteAuthenticator{
		store:           store,
		auth:            auther,
		verifier:        verifier,
		translator:      translator,
		codec:           codec,
		rememberCookie:  cfg.RememberCookie,
		cookieSecure:    cfg.CookieSecure,
		siteName:        cfg.SiteName,
		defaultTimezone: cfg.DefaultTimezone,
		Logger:          defLogger{},
	}
}

// WithLogger overrides the logger
func (a *RouteAuthenticator) WithLogger(logger Logger) *RouteAuthenticator {
	a.Logger = normalizeLogger(logger)
	return a
}

// Translator returns the locale resolver
func (a *RouteAuthenticator) Translator() *Translator {
	return a.translator
}

func sessionFrom(c Locals) *session.Session {
	sess, _ := c.Locals(sessionLocalsKey).(*session.Session)
	return sess
}

// SessionMiddleware loads the session once per request and saves it after
// the handler chain returns.
func (a *RouteAuthenticator) SessionMiddleware() fiber.Handler {
	return func(c *fiber.Ctx) error {
		sess, err := a.store.Get(c)
		if err != nil {
			a.Logger.Error("failed to load session", "error", err)
			return fiber.ErrInternalServerError
		}
		c.Locals(sessionLocalsKey, sess)

		herr := c.Next()

		// Save releases the session back to the pool
		defer c.Locals(sessionLocalsKey, nil)
		if err := sess.Save(); err != nil {
			a.Logger.Error("failed to save session", "error", err)
			if herr == nil {
				herr = fiber.ErrInternalServerError
			}
		}
		return herr
	}
}

// CurrentUserMiddleware resolves the session identity, or the remember
// cookie when the session is empty, to the current user.
func (a *RouteAuthenticator) CurrentUserMiddleware() fiber.Handler {
	return func(c *fiber.Ctx) error {
		sess := sessionFrom(c)
		if sess == nil {
			return c.Next()
		}

		if identity, _ := sess.Get(sessionUserKey).(string); identity != "" {
			user, err := a.verifier.Verify(c.UserContext(), identity)
			if err == nil {
				c.Locals(LocalsUserKey, user)
				c.SetUserContext(WithContext(c.UserContext(), user))
				return c.Next()
			}
			a.Logger.Debug("session identity rejected", "error", err)
			sess.Delete(sessionUserKey)
			sess.Delete(sessionFreshKey)
		}

		if token := c.Cookies(a.rememberCookie); token != "" {
			user, identity, err := a.auth.Restore(c.UserContext(), token)
			if err != nil {
				a.Logger.Debug("remember token rejected", "error", err)
				c.Cookie(&fiber.Cookie{
					Name:     a.rememberCookie,
					Path:     "/",
					Expires:  time.Now().Add(-time.Hour * (24 * 365)),
					HTTPOnly: true,
					Secure:   a.cookieSecure,
					SameSite: fiber.CookieSameSiteLaxMode,
				})
				return c.Next()
			}
			sess.Set(sessionUserKey, identity)
			sess.Set(sessionFreshKey, false)
			c.Locals(LocalsUserKey, user)
			c.SetUserContext(WithContext(c.UserContext(), user))
		}

		return c.Next()
	}
}

// LoginRequired redirects anonymous visitors to the login page
func (a *RouteAuthenticator) LoginRequired() router.MiddlewareFunc {
	return func(next router.HandlerFunc) router.HandlerFunc {
		return func(ctx router.Context) error {
			if _, ok := CurrentUser(ctx); ok {
				return next(ctx)
			}
			return a.Flash(ctx, FlashInfo, "Please login to continue").
				Redirect("/login?next="+url.QueryEscape(ctx.OriginalURL()), fiber.StatusFound)
		}
	}
}

// FreshLoginRequired also requires a session that was not restored from a
// remember cookie.
func (a *RouteAuthenticator) FreshLoginRequired() router.MiddlewareFunc {
	loginRequired := a.LoginRequired()
	return func(next router.HandlerFunc) router.HandlerFunc {
		anonymous := loginRequired(next)
		return func(ctx router.Context) error {
			if _, ok := CurrentUser(ctx); !ok {
				return anonymous(ctx)
			}
			if a.IsFresh(ctx) {
				return next(ctx)
			}
			return a.Flash(ctx, FlashInfo, "Please reauthenticate to access this page").
				Redirect("/reauthenticate?next="+url.QueryEscape(ctx.OriginalURL()), fiber.StatusFound)
		}
	}
}

// IsFresh reports whether the session came from a password login
func (a *RouteAuthenticator) IsFresh(c Locals) bool {
	sess := sessionFrom(c)
	if sess == nil {
		return false
	}
	fresh, _ := sess.Get(sessionFreshKey).(bool)
	return fresh
}

// Login starts a fresh session for result, with a new session id
func (a *RouteAuthenticator) Login(ctx router.Context, result *LoginResult) error {
	sess := sessionFrom(ctx)
	if sess == nil {
		return fiber.ErrInternalServerError
	}

	if err := sess.Reset(); err != nil {
		return err
	}
	sess.Set(sessionUserKey, result.Identity)
	sess.Set(sessionFreshKey, true)

	if result.RememberToken != "" {
		a.setRememberCookie(ctx, result.RememberToken, time.Now().Add(a.auth.RememberTokens().Duration()))
	}

	ctx.Locals(LocalsUserKey, result.User)
	ctx.SetContext(WithContext(ctx.Context(), result.User))
	return nil
}

// MarkFresh flags the session as freshly authenticated
func (a *RouteAuthenticator) MarkFresh(c Locals) {
	if sess := sessionFrom(c); sess != nil {
		sess.Set(sessionFreshKey, true)
	}
}

// Logout drops the session data, its id and the remember cookie. The CSRF
// token survives so a page rendered before the logout can still be posted.
func (a *RouteAuthenticator) Logout(ctx router.Context) error {
	if user, ok := CurrentUser(ctx); ok {
		a.auth.Logout(ctx.Context(), user)
	}

	ctx.Locals(LocalsUserKey, nil)
	a.setRememberCookie(ctx, "", time.Now().Add(-time.Hour*(24*365)))

	sess := sessionFrom(ctx)
	if sess == nil {
		return nil
	}

	token, _ := sess.Get(sessionCSRFKey).(string)
	if err := sess.Reset(); err != nil {
		return err
	}
	if token != "" {
		sess.Set(sessionCSRFKey, token)
	}
	return nil
}

// SafeRedirect returns next when it points to this host, fallback otherwise
func (a *RouteAuthenticator) SafeRedirect(ctx router.Context, next, fallback string) string {
	if next != "" && IsSafeURL("http://"+ctx.Header(fiber.HeaderHost), next) {
		return next
	}
	return fallback
}

// IsSafeURL reports whether target, resolved against base, stays on the
// same host over http or https.
func IsSafeURL(base, target string) bool {
	if strings.TrimSpace(target) == "" || strings.Contains(target, "\\") {
		return false
	}

	ref, err := url.Parse(base)
	if err != nil {
		return false
	}

	test, err := url.Parse(target)
	if err != nil {
		return false
	}

	resolved := ref.ResolveReference(test)
	if resolved.Scheme != "http" && resolved.Scheme != "https" {
		return false
	}
	return resolved.Host == ref.Host
}

func (a *RouteAuthenticator) setRememberCookie(ctx router.Context, token string, expires time.Time) {
	ctx.Cookie(&router.Cookie{
		Name:     a.rememberCookie,
		Value:    token,
		Path:     "/",
		Expires:  expires,
		HTTPOnly: true,
		Secure:   a.cookieSecure,
		SameSite: fiber.CookieSameSiteLaxMode,
	})
}

// Flash levels rendered by the layout
const (
	FlashSuccess = "success"
	FlashError   = "error"
	FlashWarning = "warning"
	FlashInfo    = "info"
)

// Message returns a translated flash payload for the current request
func (a *RouteAuthenticator) Message(ctx router.Context, level, key string) router.ViewContext {
	locale := a.translator.Locale(ctx, ctx.Header(fiber.HeaderAcceptLanguage))
	return router.ViewContext{
		"system_message": a.translator.T(locale, key),
		"level":          level,
	}
}

// Flash queues a translated message for the next page the visitor loads
func (a *RouteAuthenticator) Flash(ctx router.Context, level, key string) router.Context {
	data := a.Message(ctx, level, key)
	if level == FlashError || level == FlashWarning {
		return flash.WithError(ctx, data)
	}
	return flash.WithSuccess(ctx, data)
}

// CSRFStorage keeps the CSRF token in the request session
type CSRFStorage struct{}

func (CSRFStorage) Token(c *fiber.Ctx) (string, error) {
	sess := sessionFrom(c)
	if sess == nil {
		return "", fiber.ErrInternalServerError
	}
	token, _ := sess.Get(sessionCSRFKey).(string)
	return token, nil
}

func (CSRFStorage) SetToken(c *fiber.Ctx, token string) error {
	sess := sessionFrom(c)
	if sess == nil {
		return fiber.ErrInternalServerError
	}
	sess.Set(sessionCSRFKey, token)
	return nil
}
