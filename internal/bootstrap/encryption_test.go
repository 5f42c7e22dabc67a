package bootstrap

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/hredge/portal/internal/sessioncrypt"
)

func TestCreateSessionSealer_EmptyIsPlain(t *testing.T) {
	s, err := CreateSessionSealer(" , ", nil)
	require.NoError(t, err)
	assert.IsType(t, sessioncrypt.Plain{}, s)
}

func TestCreateSessionSealer_RotationList(t *testing.T) {
	oldRing, err := CreateSessionSealer("old-passphrase", nil)
	require.NoError(t, err)
	sealed, err := oldRing.Seal([]byte("tok"), "sess")
	require.NoError(t, err)

	rotated, err := CreateSessionSealer("new-passphrase, old-passphrase", nil)
	require.NoError(t, err)
	ring, ok := rotated.(*sessioncrypt.Keyring)
	require.True(t, ok)

	got, err := ring.Open(sealed, "sess")
	require.NoError(t, err)
	assert.Equal(t, "tok", string(got))
	assert.NotEqual(t, oldRing.(*sessioncrypt.Keyring).PrimaryKeyID(), ring.PrimaryKeyID())
}
