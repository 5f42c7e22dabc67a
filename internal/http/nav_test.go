package httpx

import (
	"testing"

	"github.com/stretchr/testify/assert"

	domainauth "github.com/hredge/portal/internal/domain/auth"
	"github.com/hredge/portal/internal/domain/profile"
)

func navTitles(links []NavLink) []string {
	out := make([]string, len(links))
	for i, l := range links {
		out[i] = l.Title
	}
	return out
}

func TestNavigation_ByRole(t *testing.T) {
	rt := DefaultRoutes()
	tests := []struct {
		role domainauth.Role
		want []string
	}{
		{domainauth.RoleEmployee, []string{"Home", "My Profile", "My Pay Stubs"}},
		{domainauth.RoleHRManager, []string{"Home", "My Profile", "My Pay Stubs", "HR Dashboard"}},
		{domainauth.RoleAdmin, []string{"Home", "My Profile", "My Pay Stubs", "HR Dashboard", "Admin Dashboard"}},
	}
	for _, tt := range tests {
		t.Run(string(tt.role), func(t *testing.T) {
			st := profile.ResolutionState{Profile: testProfile("u1", tt.role, true), Phase: profile.PhaseResolved}
			assert.Equal(t, tt.want, navTitles(Navigation(rt, st, "/")))
		})
	}
}

func TestNavigation_HiddenWhileUnresolved(t *testing.T) {
	rt := DefaultRoutes()
	p := testProfile("u1", domainauth.RoleAdmin, true)

	assert.Empty(t, Navigation(rt, profile.ResolutionState{Profile: p, Loading: true}, "/"))
	assert.Empty(t, Navigation(rt, profile.ResolutionState{}, "/"))
	assert.Empty(t, Navigation(rt, profile.ResolutionState{Profile: testProfile("u1", domainauth.RoleAdmin, false)}, "/"))
}

func TestNavigation_ActiveLink(t *testing.T) {
	st := profile.ResolutionState{Profile: testProfile("u1", domainauth.RoleAdmin, true)}
	links := Navigation(DefaultRoutes(), st, "/admin-dashboard/users")

	active := map[string]bool{}
	for _, l := range links {
		active[l.Href] = l.Active
	}
	assert.True(t, active["/admin-dashboard"])
	assert.False(t, active["/"])
	assert.False(t, active["/hr-dashboard"])
}
