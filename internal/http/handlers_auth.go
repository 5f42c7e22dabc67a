package httpx

import (
	"context"
	"log/slog"
	"net/http"
	"net/url"
	"time"

	domainauth "github.com/hredge/portal/internal/domain/auth"
	apperrors "github.com/hredge/portal/internal/errors"
	"github.com/hredge/portal/internal/service"
)

// Cookies carried across the identity provider round trip.
const (
	oauthStateCookie        = "oauth_state"
	oauthNonceCookie        = "oauth_nonce"
	postLoginRedirectCookie = "post_login_redirect"
	loginFlowTTL            = 10 * time.Minute
)

// AuthServiceInterface is the sign-in flow the handlers drive.
type AuthServiceInterface interface {
	BeginLogin(ctx context.Context, redirectURL string) (*service.BeginLoginResult, error)
	CompleteLogin(ctx context.Context, input service.CompleteLoginInput) (*service.CompleteLoginResult, error)
	GetSession(ctx context.Context, sessionID string) (*domainauth.Session, error)
	Logout(ctx context.Context, sessionID string) error
}

// AuthHandlers serve sign-in, sign-out and session status.
type AuthHandlers struct {
	Svc AuthServiceInterface
	// Registry, when set, has the session's resolver dropped on logout.
	Registry     *service.ResolverRegistry
	Renderer     *TemplateRenderer
	CookieDomain string
	Logger       *slog.Logger
}

func (h *AuthHandlers) logger() *slog.Logger {
	if h != nil && h.Logger != nil {
		return h.Logger
	}
	return slog.Default()
}

// Login starts the identity provider round trip.
// GET /auth/login?redirect_uri=<optional_redirect>.
func (h *AuthHandlers) Login(w http.ResponseWriter, r *http.Request) {
	redirectURI := safeRedirectPath(r.URL.Query().Get("redirect_uri"))

	result, err := h.Svc.BeginLogin(r.Context(), redirectURI)
	if err != nil {
		h.loginFailed(w, r, "login_failed", apperrors.Wrap(err, apperrors.ErrCodeUpstream, "could not reach the identity provider"))
		return
	}

	flowAge := int(loginFlowTTL.Seconds())
	http.SetCookie(w, h.cookie(r, oauthStateCookie, result.State, flowAge))
	http.SetCookie(w, h.cookie(r, oauthNonceCookie, result.Nonce, flowAge))
	http.SetCookie(w, h.cookie(r, postLoginRedirectCookie, redirectURI, flowAge))

	http.Redirect(w, r, result.AuthURL, http.StatusFound)
}

// Callback finishes the round trip and issues the portal session cookie.
// GET /auth/callback?code=<code>&state=<state>.
func (h *AuthHandlers) Callback(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	code, state := q.Get("code"), q.Get("state")

	switch {
	case code == "":
		h.loginFailed(w, r, "missing_code", apperrors.ValidationField("code", "authorization code is required"))
		return
	case state == "":
		h.loginFailed(w, r, "missing_state", apperrors.ValidationField("state", "state parameter is required"))
		return
	}
	if c, err := r.Cookie(oauthStateCookie); err != nil || c.Value != state {
		h.loginFailed(w, r, "invalid_state", apperrors.ValidationField("state", "sign-in expired or was started elsewhere"))
		return
	}
	nonce, err := r.Cookie(oauthNonceCookie)
	if err != nil {
		h.loginFailed(w, r, "missing_nonce", apperrors.ValidationField("nonce", "sign-in expired; start again"))
		return
	}

	result, err := h.Svc.CompleteLogin(r.Context(), service.CompleteLoginInput{
		Code:  code,
		State: state,
		Nonce: nonce.Value,
	})
	if err != nil {
		h.loginFailed(w, r, "login_completion_failed", apperrors.Wrap(err, apperrors.ErrCodeUpstream, "sign-in could not be completed"))
		return
	}

	http.SetCookie(w, h.cookie(r, SessionCookieName, result.Session.ID, int(time.Until(result.Session.ExpiresAt).Seconds())))
	destination := "/"
	if c, cookieErr := r.Cookie(postLoginRedirectCookie); cookieErr == nil {
		destination = safeRedirectPath(c.Value)
	}
	for _, name := range []string{oauthStateCookie, oauthNonceCookie, postLoginRedirectCookie} {
		http.SetCookie(w, h.cookie(r, name, "", -1))
	}

	http.Redirect(w, r, destination, http.StatusFound)
}

// loginFailed reports a broken sign-in. Browsers get a page with a way back in;
// scripted callers get the code and message as JSON.
func (h *AuthHandlers) loginFailed(w http.ResponseWriter, r *http.Request, code string, err *apperrors.AppError) {
	status := apperrors.HTTPStatus(err)
	if status >= http.StatusInternalServerError {
		h.logger().ErrorContext(r.Context(), "sign-in failed", slog.String("code", code), slog.Any("error", err))
	} else {
		h.logger().InfoContext(r.Context(), "sign-in rejected", slog.String("code", code), slog.String("reason", err.Message))
	}

	if h.Renderer == nil || !IsBrowserRequest(r) {
		WriteJSON(w, status, map[string]string{"error": code, "message": err.Message})
		return
	}
	data := newPageData(r, "Sign-in failed")
	data.Error = err.Message + ". Please sign in again."
	if renderErr := h.Renderer.Render(w, status, PageError, data); renderErr != nil {
		http.Error(w, http.StatusText(http.StatusInternalServerError), http.StatusInternalServerError)
	}
}

// Logout ends the portal session and discards its resolver.
// POST /auth/logout.
func (h *AuthHandlers) Logout(w http.ResponseWriter, r *http.Request) {
	if c, err := r.Cookie(SessionCookieName); err == nil {
		if logoutErr := h.Svc.Logout(r.Context(), c.Value); logoutErr != nil {
			h.logger().WarnContext(r.Context(), "logout failed", "error", logoutErr)
		}
		// Any in-flight profile fetch for this session is discarded.
		if h.Registry != nil {
			h.Registry.Drop(c.Value)
		}
	}
	http.SetCookie(w, h.cookie(r, SessionCookieName, "", -1))

	// The destination to return to after signing in again.
	back := r.FormValue("redirect_uri")
	if back == "" {
		back = "/"
	}
	u := url.URL{Path: "/auth/signed-out", RawQuery: url.Values{"redirect_uri": {safeRedirectPath(back)}}.Encode()}
	signedOutURL := u.String()

	if IsHTMX(r) || !IsBrowserRequest(r) || r.Header.Get("X-Requested-With") == "XMLHttpRequest" {
		WriteJSON(w, http.StatusOK, map[string]string{
			"status":      "success",
			"redirect_to": signedOutURL,
		})
		return
	}
	http.Redirect(w, r, signedOutURL, http.StatusFound)
}

type statusUser struct {
	ID        string `json:"id"`
	FirstName string `json:"first_name"`
	LastName  string `json:"last_name"`
	Email     string `json:"email"`
}

type statusResponse struct {
	Authenticated bool        `json:"authenticated"`
	User          *statusUser `json:"user,omitempty"`
	ExpiresAt     *time.Time  `json:"expires_at,omitempty"`
}

// Status reports whether the caller holds a live portal session.
// GET /auth/status.
func (h *AuthHandlers) Status(w http.ResponseWriter, r *http.Request) {
	c, err := r.Cookie(SessionCookieName)
	if err != nil {
		WriteJSON(w, http.StatusOK, statusResponse{})
		return
	}

	session, err := h.Svc.GetSession(r.Context(), c.Value)
	if err != nil {
		http.SetCookie(w, h.cookie(r, SessionCookieName, "", -1))
		WriteJSON(w, http.StatusOK, statusResponse{})
		return
	}

	expires := session.ExpiresAt
	WriteJSON(w, http.StatusOK, statusResponse{
		Authenticated: true,
		User: &statusUser{
			ID:        session.IdentityID,
			FirstName: session.FirstName,
			LastName:  session.LastName,
			Email:     session.Email,
		},
		ExpiresAt: &expires,
	})
}

// SignedOut confirms sign-out and offers to sign in again.
// GET /auth/signed-out?redirect_uri=<optional_redirect>.
func (h *AuthHandlers) SignedOut(w http.ResponseWriter, r *http.Request) {
	redirectURI := safeRedirectPath(r.URL.Query().Get("redirect_uri"))
	if h.Renderer == nil {
		WriteJSON(w, http.StatusOK, map[string]any{"authenticated": false, "login_url": loginURL(redirectURI)})
		return
	}
	data := newPageData(r, "Signed out")
	data.Data = redirectURI
	if err := h.Renderer.Render(w, http.StatusOK, PageSignedOut, data); err != nil {
		http.Error(w, http.StatusText(http.StatusInternalServerError), http.StatusInternalServerError)
	}
}

// LoginAlias sends /login to the sign-in flow, keeping the requested destination.
// GET /login.
func (h *AuthHandlers) LoginAlias(w http.ResponseWriter, r *http.Request) {
	http.Redirect(w, r, loginURL(safeRedirectPath(r.URL.Query().Get("redirect_uri"))), http.StatusFound)
}

func loginURL(redirectURI string) string {
	u := url.URL{Path: "/auth/login", RawQuery: url.Values{"redirect_uri": {redirectURI}}.Encode()}
	return u.String()
}

// cookie builds an HttpOnly, host-scoped cookie. A negative maxAge deletes it;
// deletions repeat the attributes used when setting so every browser drops it.
func (h *AuthHandlers) cookie(r *http.Request, name, value string, maxAge int) *http.Cookie {
	c := &http.Cookie{
		Name:     name,
		Value:    value,
		Path:     "/",
		Domain:   h.CookieDomain,
		HttpOnly: true,
		Secure:   isSecureRequest(r),
		SameSite: http.SameSiteLaxMode,
		MaxAge:   maxAge,
	}
	if maxAge < 0 {
		c.Expires = time.Unix(0, 0).UTC()
	}
	return c
}
