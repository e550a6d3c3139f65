package auth

import (
	"errors"
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"
	goerrors "github.com/goliatone/go-errors"
	"github.com/google/uuid"
)

// ErrTokenExpired is returned when a remember token is past its expiry
var ErrTokenExpired = goerrors.New("remember token expired", goerrors.CategoryAuth).
	WithTextCode("TOKEN_EXPIRED").
	WithCode(goerrors.CodeUnauthorized)

// ErrTokenMalformed is returned when a remember token can't be parsed
var ErrTokenMalformed = goerrors.New("remember token malformed", goerrors.CategoryAuth).
	WithTextCode("TOKEN_MALFORMED").
	WithCode(goerrors.CodeUnauthorized)

// RememberClaims carries the session identity inside a remember-me token
type RememberClaims struct {
	jwt.RegisteredClaims
	SessionIdentity string `json:"sid"`
}

// RememberTokenService mints and validates remember-me tokens. The token
// only wraps the session identity, so a serial rotation invalidates it.
type RememberTokenService struct {
	signingKey []byte
	duration   time.Duration
	issuer     string
	clock      Clock
	logger     Logger
}

// NewRememberTokenService creates a service signing with key
func NewRememberTokenService(key []byte, duration time.Duration, issuer string, logger Logger) *RememberTokenService {
	return &RememberTokenService{
		signingKey: key,
		duration:   duration,
		issuer:     issuer,
		clock:      DefaultClock,
		logger:     normalizeLogger(logger),
	}
}

// WithClock overrides the time source
func (ts *RememberTokenService) WithClock(clock Clock) *RememberTokenService {
	ts.clock = normalizeClock(clock)
	return ts
}

// Duration is the lifetime of issued tokens
func (ts *RememberTokenService) Duration() time.Duration {
	return ts.duration
}

// Generate wraps identity in a signed token
func (ts *RememberTokenService) Generate(identity string) (string, error) {
	now := ts.clock()
	claims := &RememberClaims{
		RegisteredClaims: jwt.RegisteredClaims{
			ID:        uuid.NewString(),
			Issuer:    ts.issuer,
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(ts.duration)),
		},
		SessionIdentity: identity,
	}

	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	signed, err := token.SignedString(ts.signingKey)
	if err != nil {
		return "", fmt.Errorf("failed to sign remember token: %w", err)
	}
	return signed, nil
}

// Validate returns the session identity carried by tokenString
func (ts *RememberTokenService) Validate(tokenString string) (string, error) {
	opts := []jwt.ParserOption{
		jwt.WithTimeFunc(ts.clock),
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
	}
	if ts.issuer != "" {
		opts = append(opts, jwt.WithIssuer(ts.issuer))
	}

	token, err := jwt.ParseWithClaims(tokenString, &RememberClaims{}, func(t *jwt.Token) (any, error) {
		if _, ok := t.Method.(*jwt.SigningMethodHMAC); !ok {
			ts.logger.Error("remember token with unexpected signing method", "alg", t.Header["alg"])
			return nil, fmt.Errorf("unexpected signing method: %v", t.Header["alg"])
		}
		return ts.signingKey, nil
	}, opts...)

	if err != nil {
		if errors.Is(err, jwt.ErrTokenExpired) {
			return "", withCause(ErrTokenExpired, err)
		}
		return "", withCause(ErrTokenMalformed, err)
	}

	claims, ok := token.Claims.(*RememberClaims)
	if !ok || !token.Valid || claims.SessionIdentity == "" {
		return "", ErrTokenMalformed
	}

	return claims.SessionIdentity, nil
}
