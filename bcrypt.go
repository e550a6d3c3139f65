package auth

import (
	"errors"
	"sync"

	goerrors "github.com/goliatone/go-errors"
	"golang.org/x/crypto/bcrypt"
)

// DefaultBcryptCost is the work factor used when none is configured
const DefaultBcryptCost = 14

// ErrMismatchedHashAndPassword is returned when a password does not match
var ErrMismatchedHashAndPassword = goerrors.New("password does not match", goerrors.CategoryAuth).
	WithTextCode("PASSWORD_MISMATCH").
	WithCode(goerrors.CodeUnauthorized)

// BcryptHasher implements PasswordHasher over bcrypt
type BcryptHasher struct {
	cost int

	dummyOnce sync.Once
	dummyHash []byte
}

var _ PasswordHasher = (*BcryptHasher)(nil)

// NewBcryptHasher returns a hasher for the given cost. Out of range values
// fall back to DefaultBcryptCost.
func NewBcryptHasher(cost int) *BcryptHasher {
	if cost < bcrypt.MinCost || cost > bcrypt.MaxCost {
		cost = DefaultBcryptCost
	}
	return &BcryptHasher{cost: cost}
}

// Cost returns the configured work factor
func (b *BcryptHasher) Cost() int {
	return b.cost
}

// Hash will generate a password hash
func (b *BcryptHasher) Hash(password string) (string, error) {
	if password == "" {
		return "", ErrNoEmptyString
	}

	h, err := bcrypt.GenerateFromPassword([]byte(password), b.cost)
	return string(h), err
}

// Verify will validate the given cleartext password matches the hashed password
func (b *BcryptHasher) Verify(password, hash string) error {
	if err := bcrypt.CompareHashAndPassword([]byte(hash), []byte(password)); err != nil {
		if errors.Is(err, bcrypt.ErrMismatchedHashAndPassword) {
			return ErrMismatchedHashAndPassword
		}
		return err
	}
	return nil
}

// VerifyDummy runs a comparison against a throwaway hash of the same cost
func (b *BcryptHasher) VerifyDummy(password string) {
	b.dummyOnce.Do(func() {
		b.dummyHash, _ = bcrypt.GenerateFromPassword([]byte("dummy-password-for-timing"), b.cost)
	})
	_ = bcrypt.CompareHashAndPassword(b.dummyHash, []byte(password))
}
