package sessioncrypt

import (
	"bytes"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func key(b byte) []byte { return bytes.Repeat([]byte{b}, keySize) }

func TestKeyring_SealOpen(t *testing.T) {
	ring, err := NewKeyring(key(1))
	require.NoError(t, err)

	sealed, err := ring.Seal([]byte(`{"access_token":"abc"}`), "sess-1")
	require.NoError(t, err)
	assert.True(t, strings.HasPrefix(sealed, keyedPrefix+ring.PrimaryKeyID()+":"))
	assert.NotContains(t, sealed, "abc")

	got, err := ring.Open(sealed, "sess-1")
	require.NoError(t, err)
	assert.JSONEq(t, `{"access_token":"abc"}`, string(got))
}

func TestKeyring_BoundToSession(t *testing.T) {
	ring, err := NewKeyring(key(1))
	require.NoError(t, err)

	sealed, err := ring.Seal([]byte("token"), "sess-1")
	require.NoError(t, err)

	_, err = ring.Open(sealed, "sess-2")
	assert.Error(t, err)
}

func TestKeyring_Rotation(t *testing.T) {
	old, err := NewKeyring(key(1))
	require.NoError(t, err)
	sealed, err := old.Seal([]byte("token"), "sess-1")
	require.NoError(t, err)

	rotated, err := NewKeyring(key(2), key(1))
	require.NoError(t, err)
	got, err := rotated.Open(sealed, "sess-1")
	require.NoError(t, err)
	assert.Equal(t, "token", string(got))

	fresh, err := NewKeyring(key(2))
	require.NoError(t, err)
	_, err = fresh.Open(sealed, "sess-1")
	assert.ErrorIs(t, err, ErrUnknownKey)
}

func TestKeyring_OpensPlainValues(t *testing.T) {
	ring, err := NewKeyring(key(1))
	require.NoError(t, err)
	plain, err := Plain{}.Seal([]byte("legacy"), "sess-1")
	require.NoError(t, err)

	got, err := ring.Open(plain, "sess-1")
	require.NoError(t, err)
	assert.Equal(t, "legacy", string(got))
}

func TestKeyring_Malformed(t *testing.T) {
	ring, err := NewKeyring(key(1))
	require.NoError(t, err)

	for _, in := range []string{"", "v1:abc", "k1:nokid", "k1:" + ring.PrimaryKeyID() + ":!!", "k1:" + ring.PrimaryKeyID() + ":AA"} {
		_, err := ring.Open(in, "s")
		assert.Error(t, err, in)
	}
}

func TestNewKeyring_RejectsShortKey(t *testing.T) {
	_, err := NewKeyring([]byte("short"))
	assert.Error(t, err)
	_, err = NewKeyring(key(1), []byte("short"))
	assert.ErrorContains(t, err, "key 1")
}

func TestDeriveKey(t *testing.T) {
	hexKey := strings.Repeat("ab", keySize)
	assert.Equal(t, bytes.Repeat([]byte{0xab}, keySize), DeriveKey(hexKey))
	assert.Len(t, DeriveKey("correct horse battery staple"), keySize)
	assert.Equal(t, DeriveKey("pass"), DeriveKey(" pass "))
}
