package service

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"golang.org/x/sync/singleflight"

	domainauth "github.com/hredge/portal/internal/domain/auth"
	"github.com/hredge/portal/internal/ports"
)

// DefaultTokenLeeway refreshes tokens slightly before they lapse.
const DefaultTokenLeeway = 30 * time.Second

// SessionTokenSourceOptions groups dependencies for SessionTokenSource.
type SessionTokenSourceOptions struct {
	SessionID string
	Sessions  ports.SessionStore
	Provider  ports.AuthProvider
	Logger    *slog.Logger
	// DefaultTemplate applies when a TokenRequest names none.
	DefaultTemplate string
	Leeway          time.Duration
	Now             func() time.Time
	// Refreshes is shared by every source built for the portal, so requests
	// of one session that race on an expired token refresh it once. Nil gives
	// the source a private group.
	Refreshes *singleflight.Group
}

// SessionTokenSource exposes one browser session as a ports.TokenSource.
//
// It rereads the session on every call so sign-out and expiry are observed
// immediately, and refreshes expired tokens through the provider. Concurrent
// refreshes of one session are collapsed by session ID.
type SessionTokenSource struct {
	sessionID string
	sessions  ports.SessionStore
	provider  ports.AuthProvider
	logger    *slog.Logger
	template  string
	leeway    time.Duration
	now       func() time.Time
	refreshes *singleflight.Group
}

// NewSessionTokenSource constructs a SessionTokenSource.
func NewSessionTokenSource(opts SessionTokenSourceOptions) *SessionTokenSource {
	logger := opts.Logger
	if logger == nil {
		logger = slog.Default()
	}
	template := opts.DefaultTemplate
	if template == "" {
		template = domainauth.TemplateIDToken
	}
	leeway := opts.Leeway
	if leeway <= 0 {
		leeway = DefaultTokenLeeway
	}
	now := opts.Now
	if now == nil {
		now = time.Now
	}
	refreshes := opts.Refreshes
	if refreshes == nil {
		refreshes = new(singleflight.Group)
	}
	return &SessionTokenSource{
		sessionID: opts.SessionID,
		sessions:  opts.Sessions,
		provider:  opts.Provider,
		logger:    logger,
		template:  template,
		leeway:    leeway,
		now:       now,
		refreshes: refreshes,
	}
}

// SessionID returns the session this source reads.
func (s *SessionTokenSource) SessionID() string { return s.sessionID }

// State reports the session as the core observes it. A store outage reports
// NotLoaded so guards wait instead of denying.
func (s *SessionTokenSource) State(ctx context.Context) domainauth.SessionState {
	if s.sessionID == "" || s.sessions == nil {
		return domainauth.SignedOut()
	}
	sess, err := s.sessions.Get(ctx, s.sessionID)
	switch {
	case errors.Is(err, domainauth.ErrSessionNotFound):
		return domainauth.SignedOut()
	case err != nil:
		s.logger.WarnContext(ctx, "session lookup failed", "error", err)
		return domainauth.NotLoaded()
	case sess.Expired(s.now()) || sess.IdentityID == "":
		return domainauth.SignedOut()
	}
	return domainauth.SignedInAs(sess.IdentityID)
}

// Token returns a bearer credential valid now, or "" when the session has none.
func (s *SessionTokenSource) Token(ctx context.Context, req domainauth.TokenRequest) (string, error) {
	if s.sessionID == "" || s.sessions == nil {
		return "", nil
	}
	sess, err := s.load(ctx)
	if err != nil || sess == nil {
		return "", err
	}

	tok := sess.Token
	if tok.Expired(s.now(), s.leeway) {
		tok, err = s.refresh(ctx)
		if err != nil {
			return "", err
		}
	}
	return s.pick(tok, req), nil
}

func (s *SessionTokenSource) load(ctx context.Context) (*domainauth.Session, error) {
	sess, err := s.sessions.Get(ctx, s.sessionID)
	if errors.Is(err, domainauth.ErrSessionNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("load session: %w", err)
	}
	if sess.Expired(s.now()) {
		return nil, nil
	}
	return &sess, nil
}

// refresh runs under the caller's ctx; callers that join it share the outcome.
func (s *SessionTokenSource) refresh(ctx context.Context) (domainauth.Token, error) {
	v, err, _ := s.refreshes.Do(s.sessionID, func() (any, error) {
		return s.refreshOnce(ctx)
	})
	if err != nil {
		return domainauth.Token{}, err
	}
	tok, _ := v.(domainauth.Token)
	return tok, nil
}

func (s *SessionTokenSource) refreshOnce(ctx context.Context) (domainauth.Token, error) {
	// A call that finished just before this one may already have refreshed.
	sess, err := s.load(ctx)
	if err != nil {
		return domainauth.Token{}, err
	}
	if sess == nil {
		return domainauth.Token{}, nil
	}
	if !sess.Token.Expired(s.now(), s.leeway) {
		return sess.Token, nil
	}
	if s.provider == nil || sess.Token.RefreshToken == "" {
		return domainauth.Token{}, errors.New("token expired and cannot be refreshed")
	}

	fresh, err := s.provider.Refresh(ctx, sess.Token)
	if err != nil {
		return domainauth.Token{}, fmt.Errorf("refresh token: %w", err)
	}
	sess.Token = fresh
	if saveErr := s.sessions.Save(ctx, *sess); saveErr != nil {
		// The fresh token is still good for this call.
		s.logger.WarnContext(ctx, "persist refreshed token failed", "error", saveErr)
	}
	return fresh, nil
}

func (s *SessionTokenSource) pick(tok domainauth.Token, req domainauth.TokenRequest) string {
	template := req.Template
	if template == "" {
		template = s.template
	}
	if template == domainauth.TemplateAccessToken {
		return tok.AccessToken
	}
	if tok.IDToken != "" {
		return tok.IDToken
	}
	return tok.AccessToken
}
