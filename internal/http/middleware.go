package httpx

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"runtime/debug"
	"strings"
	"time"

	"github.com/go-chi/httprate"
	"github.com/unrolled/secure"

	apperrors "github.com/hredge/portal/internal/errors"
	"github.com/hredge/portal/internal/ports"
)

// Recover turns a handler panic into a 500 and logs the stack.
// http.ErrAbortHandler is re-raised so the server can drop the connection.
func Recover(logger *slog.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			defer func() {
				rec := recover()
				if rec == nil {
					return
				}
				if rec == http.ErrAbortHandler { //nolint:errorlint // sentinel compared as recovered value
					panic(rec)
				}
				logger.ErrorContext(r.Context(), "handler panic",
					slog.String("request_id", RequestID(r.Context())),
					slog.String("method", r.Method),
					slog.String("path", r.URL.Path),
					slog.Any("panic", rec),
					slog.String("stack", string(debug.Stack())),
				)
				if IsBrowserRequest(r) {
					http.Error(w, "Internal Server Error", http.StatusInternalServerError)
					return
				}
				WriteAppError(w, apperrors.Wrap(fmt.Errorf("panic: %v", rec), apperrors.ErrCodeInternal, "internal error"))
			}()
			next.ServeHTTP(w, r)
		})
	}
}

var errTooManyRequests = errors.New("too many requests")

// SessionCookieName carries the portal session ID.
const SessionCookieName = "session_id"

// TokenSourceFactory builds the token source for one session ID.
type TokenSourceFactory func(sessionID string) ports.TokenSource

// Session resolves the session cookie into a RequestAuth. The session is read
// once here so every decision in the request sees the same snapshot.
func Session(newTokens TokenSourceFactory) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			ctx := r.Context()
			a := GetRequestAuth(ctx)
			if c, err := r.Cookie(SessionCookieName); err == nil && c.Value != "" && newTokens != nil {
				ts := newTokens(c.Value)
				a = RequestAuth{SessionID: c.Value, Tokens: ts, State: ts.State(ctx)}
			}
			if a.State.Authenticated() {
				annotate(ctx, slog.String("identity_id", a.State.IdentityID))
			}
			next.ServeHTTP(w, r.WithContext(SetRequestAuth(ctx, a)))
		})
	}
}

// SecurityConfig configures security headers.
type SecurityConfig struct {
	// IsDevelopment disables HSTS and host checks for local work.
	IsDevelopment bool
	AllowedHosts  []string
}

// portalCSP allows the inline styles the templates use and nothing off-origin.
const portalCSP = "default-src 'self'; style-src 'self' 'unsafe-inline'; img-src 'self' data:; frame-ancestors 'none'; form-action 'self'"

// SecurityHeaders sets HSTS, framing, sniffing and CSP headers via unrolled/secure.
func SecurityHeaders(cfg SecurityConfig) func(http.Handler) http.Handler {
	return secure.New(secure.Options{
		AllowedHosts:          cfg.AllowedHosts,
		SSLProxyHeaders:       map[string]string{"X-Forwarded-Proto": "https"},
		STSSeconds:            int64((365 * 24 * time.Hour).Seconds()),
		STSIncludeSubdomains:  true,
		FrameDeny:             true,
		ContentTypeNosniff:    true,
		ReferrerPolicy:        "same-origin",
		ContentSecurityPolicy: portalCSP,
		IsDevelopment:         cfg.IsDevelopment,
	}).Handler
}

// RateLimit caps requests per client IP. A non-positive limit disables it.
func RateLimit(requests int, window time.Duration) func(http.Handler) http.Handler {
	if requests <= 0 {
		return func(next http.Handler) http.Handler { return next }
	}
	return httprate.Limit(requests, window,
		httprate.WithKeyFuncs(httprate.KeyByIP),
		httprate.WithLimitHandler(func(w http.ResponseWriter, r *http.Request) {
			annotate(r.Context(), slog.Bool("rate_limited", true))
			if IsBrowserRequest(r) {
				http.Error(w, "Too many requests, slow down.", http.StatusTooManyRequests)
				return
			}
			WriteError(w, ErrorParams{
				Code:    http.StatusTooManyRequests,
				ErrCode: "rate_limited",
				Err:     errTooManyRequests,
			})
		}),
	)
}

type browserRequestKey struct{}

// BrowserDetection decides once per request whether the caller wants HTML.
func BrowserDetection() func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			ctx := context.WithValue(r.Context(), browserRequestKey{}, wantsHTML(r))
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}

// IsBrowserRequest reports whether the response should be an HTML page.
func IsBrowserRequest(r *http.Request) bool {
	if v, ok := r.Context().Value(browserRequestKey{}).(bool); ok {
		return v
	}
	return wantsHTML(r)
}

// wantsHTML: /api/ is always JSON; htmx and callers with no Accept get pages.
func wantsHTML(r *http.Request) bool {
	switch {
	case strings.HasPrefix(r.URL.Path, "/api/"):
		return false
	case IsHTMX(r):
		return true
	}
	accept := r.Header.Get("Accept")
	return accept == "" || strings.Contains(accept, "text/html")
}

// Chain applies middlewares so the first one listed runs first.
func Chain(h http.Handler, mws ...func(http.Handler) http.Handler) http.Handler {
	for i := len(mws) - 1; i >= 0; i-- {
		h = mws[i](h)
	}
	return h
}
