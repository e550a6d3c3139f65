package auth

import (
	"errors"
	"fmt"
	"strings"

	validation "github.com/go-ozzo/ozzo-validation"
	goerrors "github.com/goliatone/go-errors"
)

const (
	TextCodeMalformedIdentity     = "MALFORMED_IDENTITY"
	TextCodeNoSession             = "NO_SESSION"
	TextCodeInvalidCredentials    = "INVALID_CREDENTIALS"
	TextCodeInvalidOrExpiredToken = "INVALID_OR_EXPIRED_TOKEN"
	TextCodeInvalidToken          = "INVALID_TOKEN"
	TextCodeDuplicateUser         = "DUPLICATE_USER"
	TextCodeTransientStore        = "TRANSIENT_STORE"
	TextCodeNoInvitationsLeft     = "NO_INVITATIONS_LEFT"
	TextCodeUserNotFound          = "USER_NOT_FOUND"
	TextCodeAlreadyActive         = "ALREADY_ACTIVE"
	TextCodeNotActive             = "NOT_ACTIVE"
	TextCodeInactiveUser          = "INACTIVE_USER"
	TextCodeNoEmptyString         = "EMPTY_PASSWORD"
)

// ErrMalformedIdentity is returned when a session identity has no separator
var ErrMalformedIdentity = goerrors.New("malformed session identity", goerrors.CategoryAuth).
	WithTextCode(TextCodeMalformedIdentity).
	WithCode(goerrors.CodeUnauthorized)

// ErrNoSession covers every reason an identity does not resolve to a user
var ErrNoSession = goerrors.New("no such session", goerrors.CategoryAuth).
	WithTextCode(TextCodeNoSession).
	WithCode(goerrors.CodeUnauthorized)

// ErrInvalidCredentials is the generic login failure
var ErrInvalidCredentials = goerrors.New("Invalid credentials", goerrors.CategoryAuth).
	WithTextCode(TextCodeInvalidCredentials).
	WithCode(goerrors.CodeUnauthorized)

// ErrInvalidOrExpiredToken is returned for unusable password reset tokens
var ErrInvalidOrExpiredToken = goerrors.New("Invalid password reset token provided", goerrors.CategoryAuth).
	WithTextCode(TextCodeInvalidOrExpiredToken).
	WithCode(goerrors.CodeBadRequest)

// ErrInvalidToken is returned for unusable invitation tokens
var ErrInvalidToken = goerrors.New("Token is not valid", goerrors.CategoryAuth).
	WithTextCode(TextCodeInvalidToken).
	WithCode(goerrors.CodeBadRequest)

// ErrDuplicateUser is returned on username or email uniqueness violations
var ErrDuplicateUser = goerrors.New("A user with those details already exists", goerrors.CategoryConflict).
	WithTextCode(TextCodeDuplicateUser).
	WithCode(goerrors.CodeConflict)

// ErrTransientStore is returned when a commit fails
var ErrTransientStore = goerrors.New("Failed to store changes", goerrors.CategoryInternal).
	WithTextCode(TextCodeTransientStore).
	WithCode(goerrors.CodeInternal)

// ErrNoInvitationsLeft is returned when the issuer has no invitations
var ErrNoInvitationsLeft = goerrors.New("You have no invitations left", goerrors.CategoryValidation).
	WithTextCode(TextCodeNoInvitationsLeft).
	WithCode(goerrors.CodeBadRequest)

// ErrUserNotFound is used by administrative operations
var ErrUserNotFound = goerrors.New("User does not exist", goerrors.CategoryNotFound).
	WithTextCode(TextCodeUserNotFound).
	WithCode(goerrors.CodeNotFound)

// ErrAlreadyActive is returned when activating an active user
var ErrAlreadyActive = goerrors.New("User is already active", goerrors.CategoryConflict).
	WithTextCode(TextCodeAlreadyActive).
	WithCode(goerrors.CodeConflict)

// ErrNotActive is returned when deactivating an inactive user
var ErrNotActive = goerrors.New("User is not active", goerrors.CategoryConflict).
	WithTextCode(TextCodeNotActive).
	WithCode(goerrors.CodeConflict)

// ErrInactiveUser is returned when the current user was deactivated
var ErrInactiveUser = goerrors.New("User is not active", goerrors.CategoryAuth).
	WithTextCode(TextCodeInactiveUser).
	WithCode(goerrors.CodeForbidden)

// ErrNoEmptyString is returned when hashing an empty password
var ErrNoEmptyString = goerrors.New("password can not be empty", goerrors.CategoryValidation).
	WithTextCode(TextCodeNoEmptyString).
	WithCode(goerrors.CodeBadRequest)

// withCause attaches cause to a sentinel. The result matches both through
// errors.Is and keeps the sentinel category for CategoryOf.
func withCause(sentinel *goerrors.Error, cause error) error {
	return fmt.Errorf("%w: %w", sentinel, cause)
}

// ValidationError holds form level errors keyed by field name
type ValidationError struct {
	Fields map[string]string
}

func (v *ValidationError) Error() string {
	parts := make([]string, 0, len(v.Fields))
	for k, msg := range v.Fields {
		parts = append(parts, k+": "+msg)
	}
	return "validation failed: " + strings.Join(parts, "; ")
}

// FormatValidationErrorToMap flattens ozzo validation errors into field messages
func FormatValidationErrorToMap(err error) map[string]string {
	out := map[string]string{}
	if err == nil {
		return out
	}

	var verrs validation.Errors
	if errors.As(err, &verrs) {
		for field, ferr := range verrs {
			if ferr != nil {
				out[field] = ferr.Error()
			}
		}
		return out
	}

	var verr *ValidationError
	if errors.As(err, &verr) {
		for k, v := range verr.Fields {
			out[k] = v
		}
		return out
	}

	out["form"] = err.Error()
	return out
}

// NewValidationError wraps ozzo errors into a ValidationError
func NewValidationError(err error) *ValidationError {
	return &ValidationError{Fields: FormatValidationErrorToMap(err)}
}

// IsUniqueViolation reports whether err comes from a unique constraint.
// Drivers don't share a type for this so we match on the message.
func IsUniqueViolation(err error) bool {
	if err == nil {
		return false
	}
	msg := strings.ToLower(err.Error())
	return strings.Contains(msg, "unique constraint") ||
		strings.Contains(msg, "duplicate key value") ||
		strings.Contains(msg, "sqlstate 23505")
}

// CategoryOf returns the category of a taxonomy error, internal otherwise
func CategoryOf(err error) goerrors.Category {
	var rich *goerrors.Error
	if goerrors.As(err, &rich) {
		return rich.Category
	}
	return goerrors.CategoryInternal
}
