package keys

import (
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestEnsureKeyPairIsIdempotent(t *testing.T) {
	ring := NewRing(nil)
	userID := uuid.New()

	first, err := ring.EnsureKeyPair(userID)
	require.NoError(t, err)
	assert.True(t, first.Created)
	assert.Equal(t, 1, first.Version)
	assert.NotEmpty(t, first.PrivateKey)
	assert.Len(t, first.PublicKey, 32)

	second, err := ring.EnsureKeyPair(userID)
	require.NoError(t, err)
	assert.False(t, second.Created)
	assert.Equal(t, 1, second.Version)
	assert.Empty(t, second.PrivateKey, "private key is only released at generation")
	assert.Equal(t, first.PublicKey, second.PublicKey)
}

func TestRotateKeyIncrementsVersionAndKeepsHistory(t *testing.T) {
	ring := NewRing(nil)
	userID := uuid.New()

	_, err := ring.RotateKey(userID)
	assert.ErrorIs(t, err, ErrKeyUnavailable, "rotation before generation")

	first, err := ring.EnsureKeyPair(userID)
	require.NoError(t, err)

	rotated, err := ring.RotateKey(userID)
	require.NoError(t, err)
	assert.Equal(t, 2, rotated.Version)
	assert.True(t, rotated.Created)
	assert.NotEqual(t, first.PublicKey, rotated.PublicKey)

	// The old version stays resolvable for envelopes pinned to it.
	old, err := ring.PublicKey(userID, 1)
	require.NoError(t, err)
	assert.Equal(t, first.PublicKey, old.PublicKey)

	latest, err := ring.PublicKey(userID, 0)
	require.NoError(t, err)
	assert.Equal(t, 2, latest.Version)
	assert.Equal(t, 2, ring.CurrentVersion(userID))
}

func TestWrapUnwrapRoundTrip(t *testing.T) {
	ring := NewRing(nil)
	recipient := uuid.New()

	pair, err := ring.EnsureKeyPair(recipient)
	require.NoError(t, err)

	raw, err := NewSymmetricKey()
	require.NoError(t, err)

	wrapped, err := WrapSymmetricKey(pair.PublicKey, raw)
	require.NoError(t, err)
	assert.NotEqual(t, raw, wrapped.Ciphertext)

	got, err := UnwrapSymmetricKey(pair.PrivateKey, wrapped)
	require.NoError(t, err)
	assert.Equal(t, raw, got)
}

func TestUnwrapWithWrongKeyFails(t *testing.T) {
	ring := NewRing(nil)

	alice, err := ring.EnsureKeyPair(uuid.New())
	require.NoError(t, err)
	mallory, err := ring.EnsureKeyPair(uuid.New())
	require.NoError(t, err)

	raw, err := NewSymmetricKey()
	require.NoError(t, err)
	wrapped, err := WrapSymmetricKey(alice.PublicKey, raw)
	require.NoError(t, err)

	_, err = UnwrapSymmetricKey(mallory.PrivateKey, wrapped)
	assert.ErrorIs(t, err, ErrBadWrappedKey)
}

func TestWrapRejectsBadPublicKey(t *testing.T) {
	raw, err := NewSymmetricKey()
	require.NoError(t, err)

	_, err = WrapSymmetricKey([]byte("short"), raw)
	assert.ErrorIs(t, err, ErrBadPublicKey)
}
