package httpx

import (
	"net/http"

	"github.com/hredge/portal/internal/domain/profile"
)

// PageData is what every page template receives.
type PageData struct {
	Title       string
	CurrentPath string
	CSRFToken   string
	Nav         []NavLink
	Profile     *profile.Profile
	Flash       string
	Error       string
	FieldErrors map[string]string
	Reason      string
	// RefreshSeconds makes the page reload itself; zero disables it.
	RefreshSeconds int
	Data           any
}

// newPageData seeds the fields every page needs from the request.
func newPageData(r *http.Request, title string) PageData {
	return PageData{
		Title:       title,
		CurrentPath: r.URL.Path,
		CSRFToken:   GetCSRFToken(r),
		Flash:       r.URL.Query().Get("flash"),
	}
}
