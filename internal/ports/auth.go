package ports

// Package ports defines interfaces (hexagonal ports) for auth-related behavior.
// Implementations live in internal/adapters; orchestration in internal/service.

import (
	"context"

	"github.com/hredge/portal/internal/domain/access"
	domainauth "github.com/hredge/portal/internal/domain/auth"
	"github.com/hredge/portal/internal/domain/profile"
)

// BeginInput carries inputs for initiating an auth flow.
type BeginInput struct {
	RedirectURL string
}

// ExchangeInput groups parameters for the code/token exchange.
type ExchangeInput struct {
	Code  string
	State string
	Nonce string
}

// ExchangeResult is what a completed login yields.
type ExchangeResult struct {
	Identity domainauth.Identity
	Token    domainauth.Token
}

// AuthProvider initiates and completes an authentication flow against an IdP.
type AuthProvider interface {
	// Begin starts the login flow and returns the provider auth URL, an opaque state, and a nonce.
	Begin(ctx context.Context, in BeginInput) (authURL, state, nonce string, err error)

	// Exchange completes the login flow, verifying state and nonce, and returns the identity and its token.
	Exchange(ctx context.Context, in ExchangeInput) (ExchangeResult, error)

	// Refresh returns a fresh token for an expired one.
	Refresh(ctx context.Context, tok domainauth.Token) (domainauth.Token, error)
}

// SessionStore persists and retrieves browser sessions.
type SessionStore interface {
	Save(ctx context.Context, sess domainauth.Session) error
	Get(ctx context.Context, id string) (domainauth.Session, error)
	Delete(ctx context.Context, id string) error
}

// TokenSource is the core's only view of the identity provider.
// State reports what the provider knows about the caller; Token returns a bearer
// token valid right now, or "" when none is obtainable.
type TokenSource interface {
	State(ctx context.Context) domainauth.SessionState
	Token(ctx context.Context, req domainauth.TokenRequest) (string, error)
}

// ProfileFetcher loads the domain profile for an identity.
type ProfileFetcher interface {
	FetchProfile(ctx context.Context, identityID string) (*profile.Profile, error)
}

// AuditRecorder persists access decisions worth keeping for audit.
type AuditRecorder interface {
	Record(ctx context.Context, ev access.AuditEvent) error
}
