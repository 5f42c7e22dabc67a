// Package oidc signs portal users in against an OpenID Connect identity provider.
package oidc

import (
	"context"
	"crypto/hmac"
	"crypto/rand"
	"crypto/sha256"
	"encoding/base64"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"slices"
	"strings"
	"time"

	gooidc "github.com/coreos/go-oidc/v3/oidc"
	"golang.org/x/oauth2"

	domainauth "github.com/hredge/portal/internal/domain/auth"
	"github.com/hredge/portal/internal/ports"
)

const (
	discoverySuffix = "/.well-known/openid-configuration"
	randomBytes     = 24 // 32 base64url characters
	// fallbackSessionTTL applies when the token response carries no expiry.
	fallbackSessionTTL = time.Hour
)

// ProviderConfig holds configuration for the OIDC provider.
type ProviderConfig struct {
	ClientID     string
	ClientSecret string
	RedirectURL  string
	Scope        string
	// DiscoveryURL may be the issuer or the full .well-known document URL.
	DiscoveryURL string
	// LogoutURL overrides the discovered end_session_endpoint.
	LogoutURL  string
	HTTPClient *http.Client
}

func (c ProviderConfig) validate() error {
	var missing []string
	for _, f := range []struct{ name, v string }{
		{"client ID", c.ClientID},
		{"client secret", c.ClientSecret},
		{"redirect URL", c.RedirectURL},
		{"discovery URL", c.DiscoveryURL},
	} {
		if f.v == "" {
			missing = append(missing, f.name+" is required")
		}
	}
	if len(missing) > 0 {
		return errors.New(strings.Join(missing, "; "))
	}
	return nil
}

// Provider implements ports.AuthProvider with the authorization code flow
// plus PKCE. The code verifier is derived from the login nonce, so nothing
// beyond the state and nonce cookies has to survive the redirect.
type Provider struct {
	oauth      *oauth2.Config
	op         *gooidc.Provider
	verifier   *gooidc.IDTokenVerifier
	client     *http.Client
	endSession string
	pkceKey    []byte
}

var _ ports.AuthProvider = (*Provider)(nil)

// NewProvider runs discovery and returns a ready Provider.
func NewProvider(cfg ProviderConfig) (*Provider, error) {
	if err := cfg.validate(); err != nil {
		return nil, err
	}
	client := cfg.HTTPClient
	if client == nil {
		client = &http.Client{Timeout: 30 * time.Second}
	}

	p := &Provider{client: client, endSession: cfg.LogoutURL}
	op, err := gooidc.NewProvider(p.withClient(context.Background()), issuerFromDiscovery(cfg.DiscoveryURL))
	if err != nil {
		return nil, fmt.Errorf("oidc discovery: %w", err)
	}
	p.op = op
	p.verifier = op.Verifier(&gooidc.Config{ClientID: cfg.ClientID})

	if p.endSession == "" {
		var doc struct {
			EndSession string `json:"end_session_endpoint"`
		}
		if op.Claims(&doc) == nil {
			p.endSession = doc.EndSession
		}
	}

	p.oauth = &oauth2.Config{
		ClientID:     cfg.ClientID,
		ClientSecret: cfg.ClientSecret,
		RedirectURL:  cfg.RedirectURL,
		Scopes:       strings.Fields(cfg.Scope),
		Endpoint:     op.Endpoint(),
	}
	mac := hmac.New(sha256.New, []byte(cfg.ClientSecret))
	mac.Write([]byte("portal-pkce"))
	p.pkceKey = mac.Sum(nil)
	return p, nil
}

func issuerFromDiscovery(raw string) string {
	issuer := strings.TrimSuffix(raw, "/")
	return strings.TrimSuffix(issuer, discoverySuffix)
}

func (p *Provider) withClient(ctx context.Context) context.Context {
	return context.WithValue(ctx, oauth2.HTTPClient, p.client)
}

// pkceVerifier is HMAC(pkceKey, nonce): 43 base64url characters, within the
// RFC 7636 verifier length.
func (p *Provider) pkceVerifier(nonce string) string {
	mac := hmac.New(sha256.New, p.pkceKey)
	mac.Write([]byte(nonce))
	return base64.RawURLEncoding.EncodeToString(mac.Sum(nil))
}

// Begin returns the authorization URL with fresh state and nonce values.
// RedirectURL is where the portal sends the user after sign-in; the OAuth
// redirect_uri stays the configured callback.
func (p *Provider) Begin(_ context.Context, in ports.BeginInput) (string, string, string, error) {
	if in.RedirectURL == "" {
		return "", "", "", errors.New("redirect URL is required")
	}
	state, err := randomValue()
	if err != nil {
		return "", "", "", fmt.Errorf("generate state: %w", err)
	}
	nonce, err := randomValue()
	if err != nil {
		return "", "", "", fmt.Errorf("generate nonce: %w", err)
	}

	authURL := p.oauth.AuthCodeURL(state,
		gooidc.Nonce(nonce),
		oauth2.S256ChallengeOption(p.pkceVerifier(nonce)),
		oauth2.SetAuthURLParam("prompt", "select_account"),
	)
	return authURL, state, nonce, nil
}

// Exchange redeems the code and builds the identity from the verified ID
// token, topping up missing fields from the userinfo endpoint.
func (p *Provider) Exchange(ctx context.Context, in ports.ExchangeInput) (ports.ExchangeResult, error) {
	switch {
	case in.Code == "":
		return ports.ExchangeResult{}, errors.New("authorization code is required")
	case in.State == "":
		return ports.ExchangeResult{}, errors.New("state is required")
	case in.Nonce == "":
		return ports.ExchangeResult{}, errors.New("nonce is required")
	}

	ctx = p.withClient(ctx)
	tok, err := p.oauth.Exchange(ctx, in.Code, oauth2.VerifierOption(p.pkceVerifier(in.Nonce)))
	if err != nil {
		return ports.ExchangeResult{}, fmt.Errorf("exchange code for token: %w", err)
	}

	var claims claimSet
	if slices.Contains(p.oauth.Scopes, gooidc.ScopeOpenID) {
		if claims, err = p.verifiedClaims(ctx, tok, in.Nonce); err != nil {
			return ports.ExchangeResult{}, err
		}
	}
	if !claims.complete() {
		extra, uiErr := p.userInfo(ctx, tok)
		if uiErr != nil {
			return ports.ExchangeResult{}, uiErr
		}
		claims = claims.merge(extra)
	}

	id := claims.identity()
	if id.ID == "" {
		return ports.ExchangeResult{}, errors.New("identity has no subject")
	}
	out := toDomainToken(tok)
	id.ExpiresAt = out.Expiry
	if id.ExpiresAt.IsZero() {
		id.ExpiresAt = time.Now().Add(fallbackSessionTTL)
	}
	return ports.ExchangeResult{Identity: id, Token: out}, nil
}

func (p *Provider) verifiedClaims(ctx context.Context, tok *oauth2.Token, nonce string) (claimSet, error) {
	raw, ok := tok.Extra("id_token").(string)
	if !ok || raw == "" {
		return claimSet{}, errors.New("token response has no id_token")
	}
	idTok, err := p.verifier.Verify(ctx, raw)
	if err != nil {
		return claimSet{}, fmt.Errorf("verify id_token: %w", err)
	}
	if nonceMismatch(idTok.Nonce, nonce) {
		return claimSet{}, errors.New("id_token nonce does not match the login")
	}
	var c claimSet
	if err := idTok.Claims(&c); err != nil {
		return claimSet{}, fmt.Errorf("parse id_token claims: %w", err)
	}
	return c, nil
}

func nonceMismatch(got, want string) bool {
	return !hmac.Equal([]byte(got), []byte(want))
}

func (p *Provider) userInfo(ctx context.Context, tok *oauth2.Token) (claimSet, error) {
	ui, err := p.op.UserInfo(ctx, oauth2.StaticTokenSource(tok))
	if err != nil {
		return claimSet{}, fmt.Errorf("get user info: %w", err)
	}
	var c claimSet
	if err := ui.Claims(&c); err != nil {
		return claimSet{}, fmt.Errorf("decode user info: %w", err)
	}
	return c, nil
}

// Refresh trades the refresh token for a new token set. IdPs that omit
// id_token or refresh_token on refresh keep the previous values.
func (p *Provider) Refresh(ctx context.Context, prev domainauth.Token) (domainauth.Token, error) {
	if prev.RefreshToken == "" {
		return domainauth.Token{}, errors.New("no refresh token")
	}
	// An expiry in the past forces the token source to hit the token endpoint.
	src := p.oauth.TokenSource(p.withClient(ctx), &oauth2.Token{
		RefreshToken: prev.RefreshToken,
		Expiry:       time.Unix(1, 0),
	})
	fresh, err := src.Token()
	if err != nil {
		return domainauth.Token{}, fmt.Errorf("refresh token: %w", err)
	}

	next := toDomainToken(fresh)
	if next.IDToken == "" {
		next.IDToken = prev.IDToken
	} else if _, err := p.verifier.Verify(ctx, next.IDToken); err != nil {
		return domainauth.Token{}, fmt.Errorf("verify refreshed id_token: %w", err)
	}
	if next.RefreshToken == "" {
		next.RefreshToken = prev.RefreshToken
	}
	return next, nil
}

// LogoutURL returns the IdP end-session URL, or "" when the IdP has none.
func (p *Provider) LogoutURL(postLogoutRedirect string) string {
	if p.endSession == "" {
		return ""
	}
	u, err := url.Parse(p.endSession)
	if err != nil {
		return ""
	}
	if postLogoutRedirect != "" {
		q := u.Query()
		q.Set("post_logout_redirect_uri", postLogoutRedirect)
		q.Set("client_id", p.oauth.ClientID)
		u.RawQuery = q.Encode()
	}
	return u.String()
}

func toDomainToken(t *oauth2.Token) domainauth.Token {
	out := domainauth.Token{
		AccessToken:  t.AccessToken,
		RefreshToken: t.RefreshToken,
		Expiry:       t.Expiry,
	}
	out.IDToken, _ = t.Extra("id_token").(string)
	return out
}

func randomValue() (string, error) {
	b := make([]byte, randomBytes)
	if _, err := rand.Read(b); err != nil {
		return "", err
	}
	return base64.RawURLEncoding.EncodeToString(b), nil
}
