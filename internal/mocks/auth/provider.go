package auth

import (
	"context"
	"errors"
	"strconv"
	"sync"
	"time"

	domainauth "github.com/hredge/portal/internal/domain/auth"
	"github.com/hredge/portal/internal/ports"
)

const mockAuthURL = "https://mock-idp/auth"

var errNoRefreshToken = errors.New("no refresh token")

// MockAuthProvider is an IdP that hands out numbered state and nonce values
// and tokens derived from the identity ID.
//
// Exchange returns DefaultUser as configured, including its ExpiresAt, so a
// test can pin the IdP expiry. A zero DefaultUser falls back to mock-user-1.
type MockAuthProvider struct {
	BeginFunc    func(ctx context.Context, in ports.BeginInput) (authURL, state, nonce string, err error)
	ExchangeFunc func(ctx context.Context, in ports.ExchangeInput) (ports.ExchangeResult, error)
	RefreshFunc  func(ctx context.Context, tok domainauth.Token) (domainauth.Token, error)

	AuthURL     string
	DefaultUser domainauth.Identity

	mu       sync.Mutex
	begins   int
	refreshs int
}

// NewMockAuthProvider returns a provider whose default user expires in an hour.
func NewMockAuthProvider() *MockAuthProvider {
	return &MockAuthProvider{AuthURL: mockAuthURL, DefaultUser: defaultIdentity()}
}

func defaultIdentity() domainauth.Identity {
	return domainauth.Identity{
		ID:        "mock-user-1",
		FirstName: "Mock",
		LastName:  "User",
		Email:     "mock.user@example.com",
		ExpiresAt: time.Now().Add(time.Hour),
	}
}

func (m *MockAuthProvider) bump(counter *int) int {
	m.mu.Lock()
	defer m.mu.Unlock()
	*counter++
	return *counter
}

func (m *MockAuthProvider) Begin(ctx context.Context, in ports.BeginInput) (string, string, string, error) {
	if m.BeginFunc != nil {
		return m.BeginFunc(ctx, in)
	}
	seq := strconv.Itoa(m.bump(&m.begins))
	url := m.AuthURL
	if url == "" {
		url = mockAuthURL
	}
	return url, "state-" + seq, "nonce-" + seq, nil
}

func (m *MockAuthProvider) Exchange(ctx context.Context, in ports.ExchangeInput) (ports.ExchangeResult, error) {
	if m.ExchangeFunc != nil {
		return m.ExchangeFunc(ctx, in)
	}
	who := m.DefaultUser
	if who.ID == "" {
		who = defaultIdentity()
	}
	return ports.ExchangeResult{Identity: who, Token: tokensFor(who)}, nil
}

func tokensFor(who domainauth.Identity) domainauth.Token {
	return domainauth.Token{
		AccessToken:  "access-" + who.ID,
		RefreshToken: "refresh-" + who.ID,
		IDToken:      "id-" + who.ID,
		Expiry:       who.ExpiresAt,
	}
}

// Refresh suffixes the access and ID tokens with -rN and keeps the refresh token.
func (m *MockAuthProvider) Refresh(ctx context.Context, tok domainauth.Token) (domainauth.Token, error) {
	if m.RefreshFunc != nil {
		return m.RefreshFunc(ctx, tok)
	}
	if tok.RefreshToken == "" {
		return domainauth.Token{}, errNoRefreshToken
	}
	suffix := "-r" + strconv.Itoa(m.bump(&m.refreshs))
	return domainauth.Token{
		AccessToken:  tok.AccessToken + suffix,
		RefreshToken: tok.RefreshToken,
		IDToken:      tok.IDToken + suffix,
		Expiry:       time.Now().Add(time.Hour),
	}, nil
}

// RefreshCount reports how many default refreshes have run.
func (m *MockAuthProvider) RefreshCount() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.refreshs
}
