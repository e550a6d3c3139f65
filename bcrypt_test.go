package auth_test

import (
	"testing"

	auth "github.com/goliatone/go-auth-starter"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/crypto/bcrypt"
)

func TestBcryptHasher(t *testing.T) {
	hasher := newHasher()

	tests := []struct {
		name     string
		password string
		wantErr  bool
	}{
		{name: "Valid password", password: "securePassword123!"},
		{name: "Unicode password", password: "contraseña-ñandú"},
		{name: "Empty password", password: "", wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			hash, err := hasher.Hash(tt.password)
			if tt.wantErr {
				assert.ErrorIs(t, err, auth.ErrNoEmptyString)
				return
			}

			require.NoError(t, err)
			assert.NotEqual(t, tt.password, hash)
			assert.NoError(t, hasher.Verify(tt.password, hash))
			assert.ErrorIs(t, hasher.Verify(tt.password+"x", hash), auth.ErrMismatchedHashAndPassword)
		})
	}
}

func TestBcryptHasherCost(t *testing.T) {
	assert.Equal(t, auth.DefaultBcryptCost, auth.NewBcryptHasher(0).Cost())
	assert.Equal(t, auth.DefaultBcryptCost, auth.NewBcryptHasher(bcrypt.MaxCost+1).Cost())
	assert.Equal(t, 12, auth.NewBcryptHasher(12).Cost())

	hash, err := newHasher().Hash("secret123")
	require.NoError(t, err)

	cost, err := bcrypt.Cost([]byte(hash))
	require.NoError(t, err)
	assert.Equal(t, bcrypt.MinCost, cost)
}

func TestBcryptHasherInvalidHash(t *testing.T) {
	err := newHasher().Verify("secret123", "not-a-hash")
	require.Error(t, err)
	assert.NotErrorIs(t, err, auth.ErrMismatchedHashAndPassword)
}

func TestBcryptHasherVerifyDummy(t *testing.T) {
	hasher := newHasher()
	assert.NotPanics(t, func() {
		hasher.VerifyDummy("whatever")
		hasher.VerifyDummy("")
	})
}
