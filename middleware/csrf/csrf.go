// Package csrf protects state changing requests with a token bound to the
// visitor session.
package csrf

import (
	"crypto/rand"
	"crypto/subtle"
	"encoding/hex"
	"errors"
	"html"
	"io"
	"slices"
	"strings"

	"github.com/gofiber/fiber/v2"
)

var (
	ErrTokenMismatch  = errors.New("CSRF token mismatch")
	ErrTokenMissing   = errors.New("CSRF token missing")
	ErrStorageMissing = errors.New("CSRF storage is required")
)

const (
	// DefaultTokenLength is the number of random bytes in a token
	DefaultTokenLength = 32
	// DefaultContextKey is the locals key holding the request token
	DefaultContextKey = "csrf_token"
	// DefaultFormFieldName is the form field carrying the token
	DefaultFormFieldName = "_csrf"
	// DefaultHeaderName is the header carrying the token on ajax calls
	DefaultHeaderName = "X-CSRF-Token"
)

// Storage binds tokens to the session of the request
type Storage interface {
	Token(c *fiber.Ctx) (string, error)
	SetToken(c *fiber.Ctx, token string) error
}

// Config defines the configuration for CSRF middleware
type Config struct {
	// Storage keeps one token per session. Required.
	Storage Storage

	// Skip bypasses the middleware for matching requests
	Skip func(*fiber.Ctx) bool

	TokenLength   int
	ContextKey    string
	FormFieldName string
	HeaderName    string

	// SafeMethods are never validated
	SafeMethods []string

	// ErrorHandler receives ErrTokenMissing, ErrTokenMismatch or a
	// storage error.
	ErrorHandler fiber.ErrorHandler
}

// New creates a new CSRF middleware. It panics when cfg has no Storage.
func New(config ...Config) fiber.Handler {
	cfg := configDefault(config...)

	return func(c *fiber.Ctx) error {
		if cfg.Skip != nil && cfg.Skip(c) {
			return c.Next()
		}

		token, err := sessionToken(c, cfg)
		if err != nil {
			return cfg.ErrorHandler(c, err)
		}

		c.Locals(cfg.ContextKey, token)
		c.Locals(cfg.ContextKey+"_field", cfg.FormFieldName)
		c.Locals(cfg.ContextKey+"_header", cfg.HeaderName)

		if slices.Contains(cfg.SafeMethods, strings.ToUpper(c.Method())) {
			return c.Next()
		}

		if err := verify(c, cfg, token); err != nil {
			return cfg.ErrorHandler(c, err)
		}

		return c.Next()
	}
}

// TokenFromContext returns the token stored by the middleware
func TokenFromContext(c *fiber.Ctx, key ...string) string {
	k := DefaultContextKey
	if len(key) > 0 && key[0] != "" {
		k = key[0]
	}
	token, _ := c.Locals(k).(string)
	return token
}

// sessionToken returns the session token, minting one on first use
func sessionToken(c *fiber.Ctx, cfg Config) (string, error) {
	token, err := cfg.Storage.Token(c)
	if err != nil {
		return "", err
	}
	if token != "" {
		return token, nil
	}

	buf := make([]byte, cfg.TokenLength)
	if _, err := io.ReadFull(rand.Reader, buf); err != nil {
		return "", err
	}
	token = hex.EncodeToString(buf)

	if err := cfg.Storage.SetToken(c, token); err != nil {
		return "", err
	}
	return token, nil
}

func verify(c *fiber.Ctx, cfg Config, expected string) error {
	received := c.FormValue(cfg.FormFieldName)
	if received == "" {
		received = c.Get(cfg.HeaderName)
	}
	if received == "" {
		return ErrTokenMissing
	}
	if expected == "" || subtle.ConstantTimeCompare([]byte(received), []byte(expected)) != 1 {
		return ErrTokenMismatch
	}
	return nil
}

func configDefault(config ...Config) Config {
	cfg := Config{}
	if len(config) > 0 {
		cfg = config[0]
	}

	if cfg.Storage == nil {
		panic(ErrStorageMissing)
	}
	if cfg.TokenLength <= 0 {
		cfg.TokenLength = DefaultTokenLength
	}
	if cfg.ContextKey == "" {
		cfg.ContextKey = DefaultContextKey
	}
	if cfg.FormFieldName == "" {
		cfg.FormFieldName = DefaultFormFieldName
	}
	if cfg.HeaderName == "" {
		cfg.HeaderName = DefaultHeaderName
	}
	if cfg.SafeMethods == nil {
		cfg.SafeMethods = []string{fiber.MethodGet, fiber.MethodHead, fiber.MethodOptions, fiber.MethodTrace}
	}
	if cfg.ErrorHandler == nil {
		cfg.ErrorHandler = forbidden
	}
	return cfg
}

// forbidden hands a 403 to the application error handler
func forbidden(_ *fiber.Ctx, err error) error {
	if errors.Is(err, ErrTokenMissing) || errors.Is(err, ErrTokenMismatch) {
		return fiber.NewError(fiber.StatusForbidden, err.Error())
	}
	return fiber.NewError(fiber.StatusInternalServerError, "CSRF storage error")
}

// Locals reads request scoped values. *fiber.Ctx and router.Context both
// satisfy it.
type Locals interface {
	Locals(key any, value ...any) any
}

// TemplateHelpers returns the values templates need to embed the token
func TemplateHelpers(c Locals, tokenKey string) map[string]any {
	if tokenKey == "" {
		tokenKey = DefaultContextKey
	}

	token, _ := c.Locals(tokenKey).(string)

	fieldName := DefaultFormFieldName
	if val, ok := c.Locals(tokenKey + "_field").(string); ok && val != "" {
		fieldName = val
	}

	headerName := DefaultHeaderName
	if val, ok := c.Locals(tokenKey + "_header").(string); ok && val != "" {
		headerName = val
	}

	escaped := html.EscapeString(token)
	return map[string]any{
		"csrf_token":       token,
		"csrf_field_name":  fieldName,
		"csrf_field":       `<input type="hidden" name="` + html.EscapeString(fieldName) + `" value="` + escaped + `">`,
		"csrf_meta":        `<meta name="csrf-token" content="` + escaped + `">`,
		"csrf_header_name": headerName,
	}
}
