package auth

// Package auth contains domain-level types for authentication and sessions.
// It is pure and free of framework/adapter concerns.

import (
	"errors"
	"slices"
	"strings"
	"time"
)

// Role represents a portal authorization role owned by the backend profile.
// Keep string form for easy persistence and JSON.
type Role string

const (
	RoleEmployee  Role = "employee"
	RoleHRManager Role = "hr_manager"
	RoleAdmin     Role = "admin"
)

// Roles lists every known role in ascending privilege order.
func Roles() []Role {
	return []Role{RoleEmployee, RoleHRManager, RoleAdmin}
}

// Valid reports whether r is one of the known roles.
func (r Role) Valid() bool {
	return slices.Contains(Roles(), r)
}

// ParseRole normalizes s and returns the matching role.
func ParseRole(s string) (Role, bool) {
	r := Role(strings.ToLower(strings.TrimSpace(s)))
	return r, r.Valid()
}

// Identity represents the authenticated principal returned by an IdP.
// Adapters map provider-specific claims into this shape.
type Identity struct {
	ID        string // stable identifier (sub)
	FirstName string
	LastName  string
	Email     string
	ExpiresAt time.Time // absolute expiry from IdP token
}

// Token is the credential material an IdP hands back on login or refresh.
type Token struct {
	AccessToken  string    `json:"access_token"`
	RefreshToken string    `json:"refresh_token,omitempty"`
	IDToken      string    `json:"id_token,omitempty"`
	Expiry       time.Time `json:"expiry"`
}

// Expired reports whether the token is past its expiry, with leeway applied.
// A zero expiry never expires.
func (t Token) Expired(now time.Time, leeway time.Duration) bool {
	if t.Expiry.IsZero() {
		return false
	}
	return !now.Add(leeway).Before(t.Expiry)
}

// ErrSessionNotFound is matched (via errors.Is) by every SessionStore miss.
var ErrSessionNotFound = errors.New("session not found")

// Session is the server-side record we persist for an authenticated browser.
// ID is an opaque session identifier carried in the session cookie.
type Session struct {
	ID         string    `json:"id"`
	IdentityID string    `json:"identity_id"`
	FirstName  string    `json:"first_name"`
	LastName   string    `json:"last_name"`
	Email      string    `json:"email"`
	ExpiresAt  time.Time `json:"expires_at"`
	Token      Token     `json:"-"`
}

// Expired reports whether the session itself has lapsed.
func (s Session) Expired(now time.Time) bool {
	return !now.Before(s.ExpiresAt)
}

// SessionState is what the core observes of the identity provider:
// whether it has finished loading, whether someone is signed in, and who.
type SessionState struct {
	Loaded     bool
	SignedIn   bool
	IdentityID string
}

// Authenticated reports whether the state carries a usable identity.
func (s SessionState) Authenticated() bool {
	return s.Loaded && s.SignedIn && s.IdentityID != ""
}

// NotLoaded is the state before the session provider has answered.
func NotLoaded() SessionState { return SessionState{} }

// SignedOut is the loaded, unauthenticated state.
func SignedOut() SessionState { return SessionState{Loaded: true} }

// SignedInAs is the loaded, authenticated state for identityID.
func SignedInAs(identityID string) SessionState {
	return SessionState{Loaded: true, SignedIn: true, IdentityID: identityID}
}

// TokenRequest carries options for requesting a bearer token.
// Template names which credential the backend expects ("id_token" or "access_token").
type TokenRequest struct {
	Template string
}

const (
	TemplateIDToken     = "id_token"
	TemplateAccessToken = "access_token"
)
