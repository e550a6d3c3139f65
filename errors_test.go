package auth_test

import (
	"errors"
	"fmt"
	"strconv"
	"testing"

	validation "github.com/go-ozzo/ozzo-validation"
	auth "github.com/goliatone/go-auth-starter"
	goerrors "github.com/goliatone/go-errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSentinelsCarryCategoryAndCode(t *testing.T) {
	assert.Equal(t, goerrors.CategoryConflict, auth.ErrDuplicateUser.Category)
	assert.Equal(t, auth.TextCodeDuplicateUser, auth.ErrDuplicateUser.TextCode)
	assert.Equal(t, goerrors.CodeConflict, auth.ErrDuplicateUser.Code)
	assert.Equal(t, "A user with those details already exists", auth.ErrDuplicateUser.Message)

	assert.Equal(t, goerrors.CategoryNotFound, auth.ErrUserNotFound.Category)
	assert.Equal(t, goerrors.CodeForbidden, auth.ErrInactiveUser.Code)
}

func TestCausedErrorsMatchSentinelAndCause(t *testing.T) {
	_, _, err := auth.DecodeIdentity("abc_serial")
	require.Error(t, err)

	assert.True(t, errors.Is(err, auth.ErrMalformedIdentity))
	assert.True(t, errors.Is(err, strconv.ErrSyntax))
	assert.False(t, errors.Is(err, auth.ErrNoSession))
	assert.True(t, errors.Is(fmt.Errorf("outer: %w", err), auth.ErrMalformedIdentity))
	assert.Equal(t, goerrors.CategoryAuth, auth.CategoryOf(err))
}

func TestCategoryOf(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want goerrors.Category
	}{
		{"auth", auth.ErrInvalidCredentials, goerrors.CategoryAuth},
		{"conflict", fmt.Errorf("%w: %w", auth.ErrDuplicateUser, errors.New("x")), goerrors.CategoryConflict},
		{"validation", auth.ErrNoInvitationsLeft, goerrors.CategoryValidation},
		{"not found", auth.ErrUserNotFound, goerrors.CategoryNotFound},
		{"plain", errors.New("plain"), goerrors.CategoryInternal},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, auth.CategoryOf(tt.err))
		})
	}
}

func TestFormatValidationErrorToMap(t *testing.T) {
	t.Run("ozzo errors", func(t *testing.T) {
		err := validation.Errors{
			"email":    errors.New("must be a valid email address"),
			"password": nil,
		}
		got := auth.FormatValidationErrorToMap(err)
		assert.Equal(t, map[string]string{"email": "must be a valid email address"}, got)
	})

	t.Run("validation error", func(t *testing.T) {
		err := &auth.ValidationError{Fields: map[string]string{"confirm_password": "Passwords must match"}}
		got := auth.FormatValidationErrorToMap(fmt.Errorf("wrapped: %w", err))
		assert.Equal(t, map[string]string{"confirm_password": "Passwords must match"}, got)
	})

	t.Run("other", func(t *testing.T) {
		got := auth.FormatValidationErrorToMap(errors.New("nope"))
		assert.Equal(t, map[string]string{"form": "nope"}, got)
	})

	t.Run("nil", func(t *testing.T) {
		assert.Empty(t, auth.FormatValidationErrorToMap(nil))
	})
}

func TestIsUniqueViolation(t *testing.T) {
	assert.True(t, auth.IsUniqueViolation(errors.New("UNIQUE constraint failed: users.email")))
	assert.True(t, auth.IsUniqueViolation(errors.New(`ERROR: duplicate key value violates unique constraint "users_email_key" (SQLSTATE 23505)`)))
	assert.False(t, auth.IsUniqueViolation(errors.New("no such table: users")))
	assert.False(t, auth.IsUniqueViolation(nil))
}
