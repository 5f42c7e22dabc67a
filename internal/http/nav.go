package httpx

import (
	"strings"

	"github.com/hredge/portal/internal/domain/profile"
)

// NavLink is one entry in the portal navigation.
type NavLink struct {
	Title  string `json:"title"`
	Href   string `json:"href"`
	Active bool   `json:"active"`
}

// Navigation lists the routes the resolved profile may open. While the profile
// is loading, or when no profile is available, it returns nothing rather than
// guessing from a stale or missing role.
func Navigation(t *RouteTable, state profile.ResolutionState, currentPath string) []NavLink {
	if state.Loading || state.Profile == nil || !state.Profile.IsActive {
		return nil
	}
	var links []NavLink
	for _, s := range t.Specs() {
		if s.Title == "" {
			continue
		}
		if !s.Required.Empty() && !s.Required.Allows(state.Profile.Role) {
			continue
		}
		href := s.Href()
		active := currentPath == href || (href != "/" && strings.HasPrefix(currentPath, href+"/"))
		links = append(links, NavLink{Title: s.Title, Href: href, Active: active})
	}
	return links
}
