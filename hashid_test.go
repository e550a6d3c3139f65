package auth_test

import (
	"testing"

	auth "github.com/goliatone/go-auth-starter"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestHashidsRoundTrip(t *testing.T) {
	codec, err := auth.NewHashids("pepper", 0)
	require.NoError(t, err)

	for _, id := range []int64{0, 1, 42, 1 << 40} {
		hash, err := codec.Encode(id)
		require.NoError(t, err)
		assert.GreaterOrEqual(t, len(hash), auth.DefaultHashidMinLength)

		decoded, err := codec.Decode(hash)
		require.NoError(t, err)
		assert.Equal(t, id, decoded)
	}
}

func TestHashidsSaltChangesOutput(t *testing.T) {
	a, err := auth.NewHashids("salt-a", 10)
	require.NoError(t, err)
	b, err := auth.NewHashids("salt-b", 10)
	require.NoError(t, err)

	ha, err := a.Encode(1)
	require.NoError(t, err)
	hb, err := b.Encode(1)
	require.NoError(t, err)

	assert.NotEqual(t, ha, hb)
}

func TestHashidsDecodeInvalid(t *testing.T) {
	codec, err := auth.NewHashids("pepper", 10)
	require.NoError(t, err)

	_, err = codec.Decode("!!invalid!!")
	assert.Error(t, err)
}

func TestHashidsNegative(t *testing.T) {
	codec, err := auth.NewHashids("pepper", 10)
	require.NoError(t, err)

	_, err = codec.Encode(-1)
	assert.Error(t, err)
}
