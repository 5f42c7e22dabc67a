package httpx

import (
	"context"
	"crypto/rand"
	"crypto/subtle"
	"encoding/base64"
	"errors"
	"mime"
	"net/http"
	"strings"
	"time"
)

const (
	// DefaultCSRFCookieName also names the hidden form field.
	DefaultCSRFCookieName = "csrf_token"
	// DefaultCSRFHeaderName is sent by htmx and page scripts.
	DefaultCSRFHeaderName = "X-Csrf-Token"

	csrfTokenBytes = 32
	csrfCookieTTL  = 12 * time.Hour
)

var (
	errCSRFCrossSite = errors.New("cross-site request refused")
	errCSRFMismatch  = errors.New("CSRF token validation failed")
)

// CSRFConfig configures CSRFProtection. Zero values take the defaults above.
type CSRFConfig struct {
	CookieName   string
	HeaderName   string
	CookieDomain string
}

type csrfGuard struct {
	cookie string
	header string
	domain string
}

// CSRFProtection guards unsafe methods with a double-submit cookie. Browsers
// that send Sec-Fetch-Site: cross-site are refused before the token is looked at.
// The token is available to templates through GetCSRFToken.
func CSRFProtection(cfg CSRFConfig) func(http.Handler) http.Handler {
	g := csrfGuard{cookie: cfg.CookieName, header: cfg.HeaderName, domain: cfg.CookieDomain}
	if g.cookie == "" {
		g.cookie = DefaultCSRFCookieName
	}
	if g.header == "" {
		g.header = DefaultCSRFHeaderName
	}
	return g.middleware
}

func (g csrfGuard) middleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		token, err := g.ensureToken(w, r)
		if err != nil {
			http.Error(w, "unable to issue CSRF token", http.StatusInternalServerError)
			return
		}
		r = r.WithContext(context.WithValue(r.Context(), csrfTokenKey{}, token))

		if isSafeMethod(r.Method) {
			next.ServeHTTP(w, r)
			return
		}
		if err := g.check(r, token); err != nil {
			g.reject(w, r, err)
			return
		}
		next.ServeHTTP(w, r)
	})
}

func (g csrfGuard) ensureToken(w http.ResponseWriter, r *http.Request) (string, error) {
	if c, err := r.Cookie(g.cookie); err == nil && c.Value != "" {
		return c.Value, nil
	}
	b := make([]byte, csrfTokenBytes)
	if _, err := rand.Read(b); err != nil {
		return "", err
	}
	token := base64.RawURLEncoding.EncodeToString(b)
	http.SetCookie(w, &http.Cookie{
		Name:   g.cookie,
		Value:  token,
		Path:   "/",
		Domain: g.domain,
		// Page scripts read it to set the header on JSON posts.
		HttpOnly: false,
		Secure:   isSecureRequest(r),
		SameSite: http.SameSiteStrictMode,
		MaxAge:   int(csrfCookieTTL.Seconds()),
	})
	return token, nil
}

func (g csrfGuard) check(r *http.Request, token string) error {
	if strings.EqualFold(r.Header.Get("Sec-Fetch-Site"), "cross-site") {
		return errCSRFCrossSite
	}
	submitted := r.Header.Get(g.header)
	if submitted == "" && isFormPost(r) {
		submitted = r.PostFormValue(g.cookie)
	}
	if submitted == "" || subtle.ConstantTimeCompare([]byte(submitted), []byte(token)) != 1 {
		return errCSRFMismatch
	}
	return nil
}

func (g csrfGuard) reject(w http.ResponseWriter, r *http.Request, err error) {
	if IsBrowserRequest(r) {
		http.Error(w, err.Error(), http.StatusForbidden)
		return
	}
	WriteError(w, ErrorParams{Code: http.StatusForbidden, ErrCode: "csrf_failed", Err: err})
}

func isSafeMethod(method string) bool {
	switch method {
	case http.MethodGet, http.MethodHead, http.MethodOptions, http.MethodTrace:
		return true
	}
	return false
}

func isFormPost(r *http.Request) bool {
	mt, _, err := mime.ParseMediaType(r.Header.Get("Content-Type"))
	if err != nil {
		return false
	}
	return mt == "application/x-www-form-urlencoded" || mt == "multipart/form-data"
}

// isSecureRequest reports HTTPS, including behind a TLS-terminating proxy.
func isSecureRequest(r *http.Request) bool {
	if r.TLS != nil {
		return true
	}
	for proto := range strings.SplitSeq(r.Header.Get("X-Forwarded-Proto"), ",") {
		if strings.EqualFold(strings.TrimSpace(proto), "https") {
			return true
		}
	}
	return false
}

type csrfTokenKey struct{}

// GetCSRFToken returns the token for embedding in forms.
func GetCSRFToken(r *http.Request) string {
	token, _ := r.Context().Value(csrfTokenKey{}).(string)
	return token
}
