package httpx

import (
	"context"

	domainauth "github.com/hredge/portal/internal/domain/auth"
	"github.com/hredge/portal/internal/ports"
)

// RequestAuth is what the session middleware learned about the caller.
// State is read once per request; Tokens rereads the session on each call.
type RequestAuth struct {
	SessionID string
	Tokens    ports.TokenSource
	State     domainauth.SessionState
}

// requestAuthKey is an unexported context key type to avoid collisions across packages.
type requestAuthKey struct{}

// SetRequestAuth returns a child context that carries a.
func SetRequestAuth(ctx context.Context, a RequestAuth) context.Context {
	return context.WithValue(ctx, requestAuthKey{}, a)
}

// GetRequestAuth returns the request's auth info. Without the session middleware
// the caller is reported as signed out.
func GetRequestAuth(ctx context.Context) RequestAuth {
	if a, ok := ctx.Value(requestAuthKey{}).(RequestAuth); ok {
		return a
	}
	return RequestAuth{State: domainauth.SignedOut()}
}
