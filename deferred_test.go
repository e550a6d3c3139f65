package auth_test

import (
	"testing"

	auth "github.com/goliatone/go-auth-starter"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDeferredPanicsBeforeBind(t *testing.T) {
	d := auth.NewDeferred[auth.PasswordHasher]("hasher")
	assert.False(t, d.IsBound())
	assert.PanicsWithValue(t, `deferred "hasher" used before it was bound`, func() {
		d.Get()
	})
}

func TestDeferredBindOnce(t *testing.T) {
	d := auth.NewDeferred[auth.IDCodec]("hashids")

	codec, err := auth.NewHashids("salt", 10)
	require.NoError(t, err)

	require.NoError(t, d.Bind(codec))
	assert.True(t, d.IsBound())
	assert.Same(t, codec, d.Get())

	other, err := auth.NewHashids("other", 10)
	require.NoError(t, err)
	assert.Error(t, d.Bind(other))
	assert.Same(t, codec, d.Get())
}
