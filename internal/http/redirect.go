package httpx

import (
	"net/http"
	"net/url"
	"strings"
)

// redirectToLogin sends the browser into sign-in, remembering where it was headed.
// htmx requests get an HX-Redirect to the signed-out page instead of a 303 the
// swap would swallow.
func redirectToLogin(w http.ResponseWriter, r *http.Request) {
	back := url.QueryEscape(returnPath(r))
	if IsHTMX(r) {
		SetHXRedirect(w, "/auth/signed-out?redirect_uri="+back)
		w.WriteHeader(http.StatusOK)
		return
	}
	http.Redirect(w, r, "/auth/login?redirect_uri="+back, http.StatusSeeOther)
}

// returnPath picks the page the user should land on after sign-in: the htmx
// host page, the referring page for form posts, or the request itself.
func returnPath(r *http.Request) string {
	candidates := []string{}
	if IsHTMX(r) {
		candidates = append(candidates, r.Header.Get("Hx-Current-Url"))
	}
	if r.Method != http.MethodGet {
		candidates = append(candidates, r.Header.Get("Referer"))
	}
	for _, c := range candidates {
		if p := safeRedirectFromURL(c); p != "" {
			return p
		}
	}
	return safeRedirectPath(r.URL.RequestURI())
}

// safeRedirectFromURL reduces an absolute or relative URL to a local path.
// It returns "" when raw is empty or unparsable.
func safeRedirectFromURL(raw string) string {
	if raw == "" {
		return ""
	}
	u, err := url.Parse(raw)
	if err != nil {
		return ""
	}
	switch {
	case u.IsAbs():
		return safeRedirectPath(u.RequestURI())
	case u.Host != "":
		// scheme-relative: //evil.example/x
		return ""
	}
	return safeRedirectPath(raw)
}

// safeRedirectPath returns candidate when it is a same-origin absolute path,
// otherwise "/".
func safeRedirectPath(candidate string) string {
	u, err := url.Parse(candidate)
	if candidate == "" || err != nil || u.IsAbs() || u.Host != "" {
		return "/"
	}
	if !strings.HasPrefix(u.Path, "/") || strings.HasPrefix(u.Path, "//") || strings.Contains(u.Path, `\`) {
		return "/"
	}
	return candidate
}
