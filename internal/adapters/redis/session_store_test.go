package redis

import (
	"context"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	domainauth "github.com/hredge/portal/internal/domain/auth"
	"github.com/hredge/portal/internal/sessioncrypt"
	"github.com/hredge/portal/internal/testutil"
)

func newTestSession(id string) domainauth.Session {
	return domainauth.Session{
		ID:         id,
		IdentityID: "user-123",
		FirstName:  "Ada",
		LastName:   "Lovelace",
		Email:      "user@example.com",
		ExpiresAt:  time.Now().Add(30 * time.Minute),
		Token: domainauth.Token{
			AccessToken:  "access-abc",
			RefreshToken: "refresh-abc",
			IDToken:      "id-abc",
			Expiry:       time.Now().Add(10 * time.Minute),
		},
	}
}

func testSealer(t *testing.T) *sessioncrypt.Keyring {
	t.Helper()
	ring, err := sessioncrypt.NewKeyring([]byte("0123456789abcdef0123456789abcdef"))
	require.NoError(t, err)
	return ring
}

func TestSessionStore_SaveAndGet(t *testing.T) {
	client, _ := testutil.SetupTestRedis(t)
	store := NewSessionStore(SessionStoreOptions{Client: client, Sealer: testSealer(t)})
	ctx := context.Background()

	session := newTestSession("test-session-1")
	require.NoError(t, store.Save(ctx, session))

	got, err := store.Get(ctx, "test-session-1")
	require.NoError(t, err)
	assert.Equal(t, session.IdentityID, got.IdentityID)
	assert.Equal(t, session.Email, got.Email)
	assert.Equal(t, session.Token.IDToken, got.Token.IDToken)
	assert.Equal(t, session.Token.RefreshToken, got.Token.RefreshToken)
	assert.WithinDuration(t, session.ExpiresAt, got.ExpiresAt, time.Second)
	assert.WithinDuration(t, session.Token.Expiry, got.Token.Expiry, time.Second)
}

func TestSessionStore_TokenSealedAtRest(t *testing.T) {
	client, _ := testutil.SetupTestRedis(t)
	ring := testSealer(t)
	store := NewSessionStore(SessionStoreOptions{Client: client, Sealer: ring})
	ctx := context.Background()

	require.NoError(t, store.Save(ctx, newTestSession("sealed")))

	raw, err := client.Get(ctx, DefaultSessionPrefix+"sealed").Result()
	require.NoError(t, err)
	assert.NotContains(t, raw, "access-abc")
	assert.NotContains(t, raw, "refresh-abc")
	assert.Contains(t, raw, `"sealed_token":"k1:`+ring.PrimaryKeyID()+":")
}

func TestSessionStore_SealedTokenCannotMoveBetweenSessions(t *testing.T) {
	client, _ := testutil.SetupTestRedis(t)
	store := NewSessionStore(SessionStoreOptions{Client: client, Sealer: testSealer(t)})
	ctx := context.Background()

	require.NoError(t, store.Save(ctx, newTestSession("victim")))
	raw, err := client.Get(ctx, DefaultSessionPrefix+"victim").Result()
	require.NoError(t, err)
	require.NoError(t, client.Set(ctx, DefaultSessionPrefix+"attacker", raw, time.Minute).Err())

	_, err = store.Get(ctx, "attacker")
	assert.ErrorContains(t, err, "open session token")
}

func TestSessionStore_TTLFollowsExpiry(t *testing.T) {
	client, mr := testutil.SetupTestRedis(t)
	if mr == nil {
		t.Skip("TTL fast-forward needs miniredis")
	}
	store := NewSessionStore(SessionStoreOptions{Client: client})
	ctx := context.Background()

	require.NoError(t, store.Save(ctx, newTestSession("ttl")))
	ttl := mr.TTL(DefaultSessionPrefix + "ttl")
	assert.InDelta(t, (30 * time.Minute).Seconds(), ttl.Seconds(), 5)

	mr.FastForward(31 * time.Minute)
	_, err := store.Get(ctx, "ttl")
	assert.Equal(t, ErrNotFound, err)
}

func TestSessionStore_GetNonExistent(t *testing.T) {
	client, _ := testutil.SetupTestRedis(t)
	store := NewSessionStore(SessionStoreOptions{Client: client})

	_, err := store.Get(context.Background(), "non-existent")
	assert.Equal(t, ErrNotFound, err)

	_, err = store.Get(context.Background(), "")
	assert.Equal(t, ErrNotFound, err)
}

func TestSessionStore_Delete(t *testing.T) {
	client, _ := testutil.SetupTestRedis(t)
	store := NewSessionStore(SessionStoreOptions{Client: client})
	ctx := context.Background()

	require.NoError(t, store.Save(ctx, newTestSession("test-session-delete")))
	require.NoError(t, store.Delete(ctx, "test-session-delete"))

	_, err := store.Get(ctx, "test-session-delete")
	assert.Equal(t, ErrNotFound, err)

	assert.NoError(t, store.Delete(ctx, ""))
}

func TestSessionStore_RejectsInvalid(t *testing.T) {
	client, _ := testutil.SetupTestRedis(t)
	store := NewSessionStore(SessionStoreOptions{Client: client})
	ctx := context.Background()

	err := store.Save(ctx, domainauth.Session{ExpiresAt: time.Now().Add(time.Minute)})
	require.Error(t, err)

	expired := newTestSession("old")
	expired.ExpiresAt = time.Now().Add(-time.Minute)
	err = store.Save(ctx, expired)
	require.Error(t, err)
	assert.True(t, strings.Contains(err.Error(), "expired"))
}

func TestSessionStore_CustomPrefix(t *testing.T) {
	client, _ := testutil.SetupTestRedis(t)
	store := NewSessionStore(SessionStoreOptions{Client: client, Prefix: "portal:sess:"})
	ctx := context.Background()

	require.NoError(t, store.Save(ctx, newTestSession("p1")))
	n, err := client.Exists(ctx, "portal:sess:p1").Result()
	require.NoError(t, err)
	assert.Equal(t, int64(1), n)
}

func TestSessionStore_TokenlessSession(t *testing.T) {
	client, _ := testutil.SetupTestRedis(t)
	store := NewSessionStore(SessionStoreOptions{Client: client, Sealer: testSealer(t)})
	ctx := context.Background()

	sess := newTestSession("no-token")
	sess.Token = domainauth.Token{}
	require.NoError(t, store.Save(ctx, sess))

	got, err := store.Get(ctx, "no-token")
	require.NoError(t, err)
	assert.Equal(t, domainauth.Token{}, got.Token)
}
