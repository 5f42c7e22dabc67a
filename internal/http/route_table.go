package httpx

import (
	"fmt"
	"strings"

	"github.com/hredge/portal/internal/domain/access"
	domainauth "github.com/hredge/portal/internal/domain/auth"
)

// View names the page a guarded route renders.
type View string

const (
	ViewHome           View = "home"
	ViewMyProfile      View = "my-profile"
	ViewMyPayStubs     View = "my-paystubs"
	ViewHRDashboard    View = "hr-dashboard"
	ViewAdminDashboard View = "admin-dashboard"
)

// RouteSpec binds a path pattern to the roles it requires and the view it renders.
// A pattern ending in "/*" matches the prefix itself and everything below it;
// any other pattern matches exactly.
type RouteSpec struct {
	Pattern  string
	Required access.RoleSet
	View     View
	// Title is the navigation label; routes without one are not listed in navigation.
	Title string
}

func (s RouteSpec) prefix() (string, bool) {
	if p, ok := strings.CutSuffix(s.Pattern, "/*"); ok {
		return p, true
	}
	return s.Pattern, false
}

// Href is the path navigation links point at.
func (s RouteSpec) Href() string {
	p, _ := s.prefix()
	if p == "" {
		return "/"
	}
	return p
}

func (s RouteSpec) matches(path string) bool {
	p, wildcard := s.prefix()
	if !wildcard {
		return path == p
	}
	return path == p || strings.HasPrefix(path, p+"/")
}

// RouteTable is the static set of guarded routes. It is immutable after construction.
type RouteTable struct {
	specs []RouteSpec
}

// NewRouteTable validates specs and builds a table.
func NewRouteTable(specs ...RouteSpec) (*RouteTable, error) {
	seen := make(map[string]struct{}, len(specs))
	out := make([]RouteSpec, 0, len(specs))
	for _, s := range specs {
		if !strings.HasPrefix(s.Pattern, "/") {
			return nil, fmt.Errorf("route %q: pattern must start with /", s.Pattern)
		}
		if _, dup := seen[s.Pattern]; dup {
			return nil, fmt.Errorf("route %q: duplicate pattern", s.Pattern)
		}
		for _, r := range s.Required {
			if !r.Valid() {
				return nil, fmt.Errorf("route %q: unknown role %q", s.Pattern, r)
			}
		}
		seen[s.Pattern] = struct{}{}
		s.Required = access.Require(s.Required...)
		out = append(out, s)
	}
	return &RouteTable{specs: out}, nil
}

// DefaultRoutes is the portal's route surface.
func DefaultRoutes() *RouteTable {
	t, err := NewRouteTable(
		RouteSpec{Pattern: "/", View: ViewHome, Title: "Home"},
		RouteSpec{Pattern: "/my-profile", View: ViewMyProfile, Title: "My Profile"},
		RouteSpec{Pattern: "/my-paystubs", View: ViewMyPayStubs, Title: "My Pay Stubs"},
		RouteSpec{
			Pattern:  "/hr-dashboard/*",
			Required: access.Require(domainauth.RoleHRManager, domainauth.RoleAdmin),
			View:     ViewHRDashboard,
			Title:    "HR Dashboard",
		},
		RouteSpec{
			Pattern:  "/admin-dashboard/*",
			Required: access.Require(domainauth.RoleAdmin),
			View:     ViewAdminDashboard,
			Title:    "Admin Dashboard",
		},
	)
	if err != nil {
		panic(err)
	}
	return t
}

// Match returns the most specific spec for path. Exact patterns win over
// wildcards, and longer prefixes win over shorter ones.
func (t *RouteTable) Match(path string) (RouteSpec, bool) {
	if t == nil {
		return RouteSpec{}, false
	}
	var (
		best    RouteSpec
		bestLen = -1
		found   bool
	)
	for _, s := range t.specs {
		if !s.matches(path) {
			continue
		}
		p, wildcard := s.prefix()
		n := len(p) * 2
		if !wildcard {
			n++
		}
		if n > bestLen {
			best, bestLen, found = s, n, true
		}
	}
	return best, found
}

// Specs returns a copy of the table's routes in declaration order.
func (t *RouteTable) Specs() []RouteSpec {
	if t == nil {
		return nil
	}
	out := make([]RouteSpec, len(t.specs))
	copy(out, t.specs)
	return out
}
