// Package devauth signs a fixed identity in without an IdP. It mints HS256
// tokens so the backend still receives a verifiable bearer credential.
package devauth

import (
	"context"
	"crypto/rand"
	"encoding/base64"
	"errors"
	"fmt"
	"net/url"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"

	domainauth "github.com/hredge/portal/internal/domain/auth"
	"github.com/hredge/portal/internal/ports"
)

const (
	defaultIssuer      = "portal-devauth"
	audience           = "portal"
	defaultTokenTTL    = 15 * time.Minute
	defaultSessionSpan = 8 * time.Hour
	minSigningKeyLen   = 32
)

const (
	useID      = "id"
	useAccess  = "access"
	useRefresh = "refresh"
)

var errWrongTokenUse = errors.New("wrong token use")

// Config describes the identity to sign in. UserID, Email and a SigningKey of
// at least 32 bytes are required.
type Config struct {
	UserID     string
	Email      string
	FirstName  string
	LastName   string
	SigningKey []byte
	Issuer     string

	SessionDuration time.Duration
	TokenTTL        time.Duration
}

func (c *Config) check() error {
	var errs []error
	if c.UserID == "" {
		errs = append(errs, errors.New("UserID is required"))
	}
	if c.Email == "" {
		errs = append(errs, errors.New("Email is required"))
	}
	if len(c.SigningKey) < minSigningKeyLen {
		errs = append(errs, fmt.Errorf("SigningKey must be at least %d bytes", minSigningKeyLen))
	}
	if err := errors.Join(errs...); err != nil {
		return fmt.Errorf("dev auth: %w", err)
	}
	if c.SessionDuration <= 0 {
		c.SessionDuration = defaultSessionSpan
	}
	if c.TokenTTL <= 0 {
		c.TokenTTL = defaultTokenTTL
	}
	if c.Issuer == "" {
		c.Issuer = defaultIssuer
	}
	return nil
}

// Claims is the payload of every token the provider mints. TokenUse tells the
// three tokens of a set apart.
type Claims struct {
	Email      string `json:"email,omitempty"`
	GivenName  string `json:"given_name,omitempty"`
	FamilyName string `json:"family_name,omitempty"`
	Nonce      string `json:"nonce,omitempty"`
	TokenUse   string `json:"token_use"`
	jwt.RegisteredClaims
}

// Provider is a ports.AuthProvider whose Begin redirects straight back to the
// portal callback.
type Provider struct {
	cfg Config
	now func() time.Time
}

func NewProvider(cfg Config) (*Provider, error) {
	if err := cfg.check(); err != nil {
		return nil, err
	}
	return &Provider{cfg: cfg, now: time.Now}, nil
}

func (p *Provider) Begin(context.Context, ports.BeginInput) (string, string, string, error) {
	state, err := opaque()
	if err != nil {
		return "", "", "", fmt.Errorf("dev auth state: %w", err)
	}
	nonce, err := opaque()
	if err != nil {
		return "", "", "", fmt.Errorf("dev auth nonce: %w", err)
	}
	q := url.Values{"code": {"dev"}, "state": {state}}
	return "/auth/callback?" + q.Encode(), state, nonce, nil
}

// Exchange accepts any code. The callback handler has already matched state.
func (p *Provider) Exchange(_ context.Context, in ports.ExchangeInput) (ports.ExchangeResult, error) {
	set, err := p.issue(in.Nonce)
	if err != nil {
		return ports.ExchangeResult{}, err
	}
	return ports.ExchangeResult{
		Identity: domainauth.Identity{
			ID:        p.cfg.UserID,
			FirstName: p.cfg.FirstName,
			LastName:  p.cfg.LastName,
			Email:     p.cfg.Email,
			ExpiresAt: p.now().Add(p.cfg.SessionDuration),
		},
		Token: set,
	}, nil
}

// Refresh issues a new set when tok.RefreshToken is a live refresh token from
// this provider.
func (p *Provider) Refresh(_ context.Context, tok domainauth.Token) (domainauth.Token, error) {
	claims, err := p.Verify(tok.RefreshToken)
	if err == nil && claims.TokenUse != useRefresh {
		err = errWrongTokenUse
	}
	if err != nil {
		return domainauth.Token{}, fmt.Errorf("refresh token: %w", err)
	}
	return p.issue("")
}

// Verify checks signature, issuer, audience and lifetime of raw.
func (p *Provider) Verify(raw string) (*Claims, error) {
	if raw == "" {
		return nil, errors.New("empty token")
	}
	var claims Claims
	keyFn := func(*jwt.Token) (any, error) { return p.cfg.SigningKey, nil }
	if _, err := jwt.ParseWithClaims(raw, &claims, keyFn,
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
		jwt.WithIssuer(p.cfg.Issuer),
		jwt.WithAudience(audience),
		jwt.WithTimeFunc(p.now),
	); err != nil {
		return nil, err
	}
	return &claims, nil
}

func (p *Provider) issue(nonce string) (domainauth.Token, error) {
	now := p.now()
	short := now.Add(p.cfg.TokenTTL)
	set := domainauth.Token{Expiry: short}

	for _, t := range []struct {
		use   string
		nonce string
		exp   time.Time
		dst   *string
	}{
		{useID, nonce, short, &set.IDToken},
		{useAccess, "", short, &set.AccessToken},
		{useRefresh, "", now.Add(p.cfg.SessionDuration), &set.RefreshToken},
	} {
		signed, err := p.sign(t.use, t.nonce, now, t.exp)
		if err != nil {
			return domainauth.Token{}, err
		}
		*t.dst = signed
	}
	return set, nil
}

func (p *Provider) sign(use, nonce string, iat, exp time.Time) (string, error) {
	claims := Claims{
		Email:      p.cfg.Email,
		GivenName:  p.cfg.FirstName,
		FamilyName: p.cfg.LastName,
		Nonce:      nonce,
		TokenUse:   use,
		RegisteredClaims: jwt.RegisteredClaims{
			ID:        uuid.NewString(),
			Issuer:    p.cfg.Issuer,
			Subject:   p.cfg.UserID,
			Audience:  jwt.ClaimStrings{audience},
			IssuedAt:  jwt.NewNumericDate(iat),
			NotBefore: jwt.NewNumericDate(iat),
			ExpiresAt: jwt.NewNumericDate(exp),
		},
	}
	signed, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(p.cfg.SigningKey)
	if err != nil {
		return "", fmt.Errorf("sign %s token: %w", use, err)
	}
	return signed, nil
}

// opaque returns 24 URL-safe characters of randomness.
func opaque() (string, error) {
	b := make([]byte, 18)
	if _, err := rand.Read(b); err != nil {
		return "", err
	}
	return base64.RawURLEncoding.EncodeToString(b), nil
}
