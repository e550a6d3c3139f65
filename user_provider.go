package auth

import (
	"context"
	"errors"

	goerrors "github.com/goliatone/go-errors"
)

// LoginLookup finds active users by username or email
type LoginLookup interface {
	GetActiveByLogin(ctx context.Context, identity string) (*User, error)
}

// UserProvider verifies credentials against the credential store
type UserProvider struct {
	store  LoginLookup
	hasher PasswordHasher
	logger Logger
}

// NewUserProvider will create a new UserProvider
func NewUserProvider(store LoginLookup, hasher PasswordHasher) *UserProvider {
	return &UserProvider{
		store:  store,
		hasher: hasher,
		logger: defLogger{},
	}
}

func (u *UserProvider) WithLogger(l Logger) *UserProvider {
	u.logger = normalizeLogger(l)
	return u
}

// VerifyIdentity will find the active user matching identity and compare
// the password. Unknown identities still pay for a hash comparison.
func (u *UserProvider) VerifyIdentity(ctx context.Context, identity, password string) (*User, error) {
	user, err := u.store.GetActiveByLogin(ctx, identity)
	if err != nil {
		u.hasher.VerifyDummy(password)
		if IsRecordNotFound(err) {
			return nil, ErrInvalidCredentials
		}
		return nil, goerrors.Wrap(err, goerrors.CategoryInternal, "failed to retrieve user during verification")
	}

	if err := u.VerifyPassword(user, password); err != nil {
		return nil, err
	}

	return user, nil
}

// VerifyPassword compares password against the stored hash of user
func (u *UserProvider) VerifyPassword(user *User, password string) error {
	if err := u.hasher.Verify(password, user.Password); err != nil {
		if !errors.Is(err, ErrMismatchedHashAndPassword) {
			u.logger.Warn("password verification error", "user_id", user.ID, "error", err)
		}
		return ErrInvalidCredentials
	}
	return nil
}
