package service

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/sync/singleflight"

	domainauth "github.com/hredge/portal/internal/domain/auth"
	mocks "github.com/hredge/portal/internal/mocks/auth"
)

func saveSession(t *testing.T, store *mocks.MemorySessionStore, tok domainauth.Token) {
	t.Helper()
	require.NoError(t, store.Save(context.Background(), domainauth.Session{
		ID:         "sess-1",
		IdentityID: "u1",
		ExpiresAt:  time.Now().Add(time.Hour),
		Token:      tok,
	}))
}

func TestSessionTokenSource_State(t *testing.T) {
	ctx := context.Background()
	store := mocks.NewMemorySessionStore()
	src := NewSessionTokenSource(SessionTokenSourceOptions{SessionID: "sess-1", Sessions: store})

	assert.Equal(t, domainauth.SignedOut(), src.State(ctx), "missing session")

	saveSession(t, store, domainauth.Token{IDToken: "id"})
	assert.Equal(t, domainauth.SignedInAs("u1"), src.State(ctx))

	store.GetErr = errors.New("redis down")
	assert.Equal(t, domainauth.NotLoaded(), src.State(ctx), "store outage is not a sign-out")

	anon := NewSessionTokenSource(SessionTokenSourceOptions{Sessions: store})
	assert.Equal(t, domainauth.SignedOut(), anon.State(ctx))
}

func TestSessionTokenSource_State_ExpiredSession(t *testing.T) {
	store := mocks.NewMemorySessionStore()
	saveSession(t, store, domainauth.Token{})
	src := NewSessionTokenSource(SessionTokenSourceOptions{
		SessionID: "sess-1",
		Sessions:  store,
		Now:       func() time.Time { return time.Now().Add(2 * time.Hour) },
	})

	assert.Equal(t, domainauth.SignedOut(), src.State(context.Background()))
}

func TestSessionTokenSource_TokenTemplates(t *testing.T) {
	ctx := context.Background()
	store := mocks.NewMemorySessionStore()
	saveSession(t, store, domainauth.Token{
		AccessToken: "access",
		IDToken:     "id",
		Expiry:      time.Now().Add(time.Hour),
	})
	src := NewSessionTokenSource(SessionTokenSourceOptions{SessionID: "sess-1", Sessions: store})

	tok, err := src.Token(ctx, domainauth.TokenRequest{})
	require.NoError(t, err)
	assert.Equal(t, "id", tok)

	tok, err = src.Token(ctx, domainauth.TokenRequest{Template: domainauth.TemplateAccessToken})
	require.NoError(t, err)
	assert.Equal(t, "access", tok)
}

func TestSessionTokenSource_NoSessionMeansNoToken(t *testing.T) {
	src := NewSessionTokenSource(SessionTokenSourceOptions{SessionID: "gone", Sessions: mocks.NewMemorySessionStore()})

	tok, err := src.Token(context.Background(), domainauth.TokenRequest{})
	require.NoError(t, err)
	assert.Empty(t, tok)
}

func TestSessionTokenSource_RefreshesExpiredToken(t *testing.T) {
	ctx := context.Background()
	store := mocks.NewMemorySessionStore()
	saveSession(t, store, domainauth.Token{
		AccessToken:  "a",
		IDToken:      "i",
		RefreshToken: "r",
		Expiry:       time.Now().Add(-time.Minute),
	})
	provider := mocks.NewMockAuthProvider()
	src := NewSessionTokenSource(SessionTokenSourceOptions{SessionID: "sess-1", Sessions: store, Provider: provider})

	var wg sync.WaitGroup
	got := make([]string, 8)
	for i := range got {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			tok, err := src.Token(ctx, domainauth.TokenRequest{})
			assert.NoError(t, err)
			got[i] = tok
		}(i)
	}
	wg.Wait()

	assert.Equal(t, 1, provider.RefreshCount(), "concurrent callers share one refresh")
	for _, tok := range got {
		assert.Equal(t, "i-r1", tok)
	}

	stored, err := store.Get(ctx, "sess-1")
	require.NoError(t, err)
	assert.Equal(t, "i-r1", stored.Token.IDToken, "refreshed token persisted")
}

func TestSessionTokenSource_SourcesShareRefreshGroup(t *testing.T) {
	store := mocks.NewMemorySessionStore()
	saveSession(t, store, domainauth.Token{IDToken: "i", RefreshToken: "r", Expiry: time.Now().Add(-time.Minute)})
	gate := make(chan struct{})
	var refreshes atomic.Int32
	provider := &mocks.MockAuthProvider{
		RefreshFunc: func(_ context.Context, tok domainauth.Token) (domainauth.Token, error) {
			refreshes.Add(1)
			<-gate
			return domainauth.Token{IDToken: "fresh", RefreshToken: tok.RefreshToken, Expiry: time.Now().Add(time.Hour)}, nil
		},
	}
	group := new(singleflight.Group)
	newSource := func() *SessionTokenSource {
		return NewSessionTokenSource(SessionTokenSourceOptions{
			SessionID: "sess-1", Sessions: store, Provider: provider, Refreshes: group,
		})
	}

	// One source per request, as the session middleware builds them.
	var wg sync.WaitGroup
	got := make([]string, 4)
	for i := range got {
		wg.Add(1)
		go func() {
			defer wg.Done()
			tok, err := newSource().Token(t.Context(), domainauth.TokenRequest{})
			assert.NoError(t, err)
			got[i] = tok
		}()
	}
	require.Eventually(t, func() bool { return refreshes.Load() == 1 }, time.Second, time.Millisecond)
	time.Sleep(20 * time.Millisecond)
	close(gate)
	wg.Wait()

	assert.Equal(t, int32(1), refreshes.Load())
	assert.Equal(t, []string{"fresh", "fresh", "fresh", "fresh"}, got)
}

func TestSessionTokenSource_RefreshFailure(t *testing.T) {
	store := mocks.NewMemorySessionStore()
	saveSession(t, store, domainauth.Token{IDToken: "i", RefreshToken: "r", Expiry: time.Now().Add(-time.Minute)})
	provider := &mocks.MockAuthProvider{
		RefreshFunc: func(context.Context, domainauth.Token) (domainauth.Token, error) {
			return domainauth.Token{}, errors.New("invalid_grant")
		},
	}
	src := NewSessionTokenSource(SessionTokenSourceOptions{SessionID: "sess-1", Sessions: store, Provider: provider})

	tok, err := src.Token(context.Background(), domainauth.TokenRequest{})
	require.Error(t, err)
	assert.Empty(t, tok)
}

func TestSessionTokenSource_ExpiredWithoutRefreshToken(t *testing.T) {
	store := mocks.NewMemorySessionStore()
	saveSession(t, store, domainauth.Token{IDToken: "i", Expiry: time.Now().Add(-time.Minute)})
	src := NewSessionTokenSource(SessionTokenSourceOptions{SessionID: "sess-1", Sessions: store, Provider: mocks.NewMockAuthProvider()})

	_, err := src.Token(context.Background(), domainauth.TokenRequest{})
	require.Error(t, err)
}
