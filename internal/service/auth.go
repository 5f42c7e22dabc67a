package service

import (
	"context"
	"crypto/rand"
	"encoding/base64"
	"errors"
	"fmt"
	"log/slog"
	"time"

	domainauth "github.com/hredge/portal/internal/domain/auth"
	apperrors "github.com/hredge/portal/internal/errors"
	"github.com/hredge/portal/internal/ports"
)

// DefaultSessionMaxAge caps a browser session when the IdP grants longer, or
// reports no expiry at all.
const DefaultSessionMaxAge = 12 * time.Hour

// ErrSessionExpired is returned by GetSession for a session past ExpiresAt.
// It matches domainauth.ErrSessionNotFound so callers can treat both as signed out.
var ErrSessionExpired = fmt.Errorf("session expired: %w", domainauth.ErrSessionNotFound)

// AuthServiceOptions groups dependencies for AuthService.
type AuthServiceOptions struct {
	Provider ports.AuthProvider
	Sessions ports.SessionStore
	Logger   *slog.Logger
	// MaxAge defaults to DefaultSessionMaxAge.
	MaxAge time.Duration
	Now    func() time.Time
}

// AuthService runs the sign-in flow and owns browser sessions.
// Roles never pass through here; the profile fetched from the HR service carries them.
type AuthService struct {
	provider ports.AuthProvider
	sessions ports.SessionStore
	logger   *slog.Logger
	maxAge   time.Duration
	now      func() time.Time
}

// NewAuthService constructs an AuthService.
func NewAuthService(opts AuthServiceOptions) *AuthService {
	s := &AuthService{
		provider: opts.Provider,
		sessions: opts.Sessions,
		logger:   opts.Logger,
		maxAge:   opts.MaxAge,
		now:      opts.Now,
	}
	if s.logger == nil {
		s.logger = slog.Default()
	}
	if s.maxAge <= 0 {
		s.maxAge = DefaultSessionMaxAge
	}
	if s.now == nil {
		s.now = time.Now
	}
	return s
}

// BeginLoginResult carries what the browser needs to start the redirect dance.
type BeginLoginResult struct {
	AuthURL string
	State   string
	Nonce   string
}

// BeginLogin asks the provider for an authorization URL bound to a fresh state and nonce.
func (s *AuthService) BeginLogin(ctx context.Context, redirectURL string) (*BeginLoginResult, error) {
	if redirectURL == "" {
		return nil, apperrors.ValidationField("redirect_url", "redirect URL is required")
	}
	authURL, state, nonce, err := s.provider.Begin(ctx, ports.BeginInput{RedirectURL: redirectURL})
	if err != nil {
		return nil, fmt.Errorf("begin auth flow: %w", err)
	}
	return &BeginLoginResult{AuthURL: authURL, State: state, Nonce: nonce}, nil
}

// CompleteLoginInput is the callback query plus the nonce from the login cookie.
type CompleteLoginInput struct {
	Code  string
	State string
	Nonce string
}

func (in CompleteLoginInput) validate() error {
	switch {
	case in.Code == "":
		return apperrors.ValidationField("code", "authorization code is required")
	case in.State == "":
		return apperrors.ValidationField("state", "state parameter is required")
	case in.Nonce == "":
		return apperrors.ValidationField("nonce", "nonce parameter is required")
	}
	return nil
}

// CompleteLoginResult holds the newly persisted session.
type CompleteLoginResult struct {
	Session domainauth.Session
}

// CompleteLogin exchanges the authorization code and persists a session for
// the returned identity. The session carries the IdP token so backend calls
// can present it later.
func (s *AuthService) CompleteLogin(ctx context.Context, in CompleteLoginInput) (*CompleteLoginResult, error) {
	if err := in.validate(); err != nil {
		return nil, err
	}

	res, err := s.provider.Exchange(ctx, ports.ExchangeInput{Code: in.Code, State: in.State, Nonce: in.Nonce})
	if err != nil {
		return nil, fmt.Errorf("exchange authorization code: %w", err)
	}
	id := res.Identity
	if id.ID == "" {
		return nil, apperrors.Unauthenticated("identity provider returned no subject")
	}

	sid, err := newSessionID()
	if err != nil {
		return nil, err
	}
	sess := domainauth.Session{
		ID:         sid,
		IdentityID: id.ID,
		FirstName:  id.FirstName,
		LastName:   id.LastName,
		Email:      id.Email,
		ExpiresAt:  s.sessionExpiry(id.ExpiresAt),
		Token:      res.Token,
	}
	if err := s.sessions.Save(ctx, sess); err != nil {
		return nil, fmt.Errorf("save session: %w", err)
	}

	s.logger.InfoContext(ctx, "session created",
		"identity_id", sess.IdentityID,
		"expires_at", sess.ExpiresAt,
		"has_refresh_token", sess.Token.RefreshToken != "",
	)
	return &CompleteLoginResult{Session: sess}, nil
}

// sessionExpiry is the IdP expiry clamped to now+maxAge.
func (s *AuthService) sessionExpiry(idp time.Time) time.Time {
	limit := s.now().Add(s.maxAge)
	if idp.IsZero() || idp.After(limit) {
		return limit
	}
	return idp
}

// GetSession loads a live session. Expired records are deleted on sight.
func (s *AuthService) GetSession(ctx context.Context, sessionID string) (*domainauth.Session, error) {
	if sessionID == "" {
		return nil, apperrors.Unauthenticated("no session")
	}
	sess, err := s.sessions.Get(ctx, sessionID)
	if err != nil {
		return nil, fmt.Errorf("get session: %w", err)
	}
	if s.now().Before(sess.ExpiresAt) {
		return &sess, nil
	}
	if delErr := s.sessions.Delete(ctx, sessionID); delErr != nil {
		return nil, errors.Join(ErrSessionExpired, fmt.Errorf("delete expired session: %w", delErr))
	}
	return nil, ErrSessionExpired
}

// Logout deletes the session. An empty ID is a no-op.
func (s *AuthService) Logout(ctx context.Context, sessionID string) error {
	if sessionID == "" {
		return nil
	}
	if err := s.sessions.Delete(ctx, sessionID); err != nil {
		return fmt.Errorf("delete session: %w", err)
	}
	return nil
}

// newSessionID returns 256 random bits, base64url encoded.
func newSessionID() (string, error) {
	b := make([]byte, 32)
	if _, err := rand.Read(b); err != nil {
		return "", fmt.Errorf("generate session id: %w", err)
	}
	return base64.RawURLEncoding.EncodeToString(b), nil
}
