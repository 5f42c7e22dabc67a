package httpx

import (
	"encoding/json"
	"net/http"
	"net/url"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	domainauth "github.com/hredge/portal/internal/domain/auth"
)

func TestPortal_RolePatchThenRefetchGrantsAdminRoute(t *testing.T) {
	fb := newFakeBackend(t, employeeUser("u1"), adminUser("a1"))
	tp := newTestPortal(t, fb)
	tp.signIn("s-u1", "u1")
	tp.signIn("s-a1", "a1")

	rec := tp.do(t, http.MethodGet, "/admin-dashboard/", reqOpts{session: "s-u1"})
	require.Equal(t, http.StatusForbidden, rec.Code)
	assert.Contains(t, rec.Body.String(), "Access denied")

	rec = tp.do(t, http.MethodGet, "/my-profile", reqOpts{session: "s-u1"})
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), "Uma One")
	assert.NotContains(t, rec.Body.String(), `href="/admin-dashboard"`)

	rec = tp.do(t, http.MethodPost, "/admin-dashboard/users/u1/role", reqOpts{
		session: "s-a1",
		form:    url.Values{"role": {"admin"}},
	})
	require.Equal(t, http.StatusSeeOther, rec.Code, rec.Body.String())
	assert.True(t, strings.HasPrefix(rec.Header().Get("Location"), "/admin-dashboard/?flash="))

	rec = tp.do(t, http.MethodGet, "/admin-dashboard/", reqOpts{session: "s-u1"})
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	assert.Contains(t, rec.Body.String(), "Admin dashboard")
	assert.Contains(t, rec.Body.String(), `href="/admin-dashboard"`)

	// One fetch per session plus the refetch after the role change.
	assert.Equal(t, 3, fb.callCount("GET /api/me/"))
}

func TestPortal_ProfileFetchedOncePerSession(t *testing.T) {
	fb := newFakeBackend(t, employeeUser("u1"))
	tp := newTestPortal(t, fb)
	tp.signIn("s-u1", "u1")

	for _, path := range []string{"/", "/my-profile", "/my-paystubs", "/"} {
		rec := tp.do(t, http.MethodGet, path, reqOpts{session: "s-u1"})
		require.Equal(t, http.StatusOK, rec.Code, path)
	}
	assert.Equal(t, 1, fb.callCount("GET /api/me/"))
	assert.Equal(t, 2, fb.callCount("GET /api/employees/"))
}

func TestPortal_HomeShowsDirectory(t *testing.T) {
	fb := newFakeBackend(t, employeeUser("u1"), adminUser("a1"))
	tp := newTestPortal(t, fb)
	tp.signIn("s-u1", "u1")

	rec := tp.do(t, http.MethodGet, "/", reqOpts{session: "s-u1"})
	require.Equal(t, http.StatusOK, rec.Code)
	body := rec.Body.String()
	assert.Contains(t, body, "Welcome, Uma One")
	assert.Contains(t, body, "a1@example.com")
}

func TestPortal_UnmatchedPaths(t *testing.T) {
	fb := newFakeBackend(t, employeeUser("u1"))
	tp := newTestPortal(t, fb)
	tp.signIn("s-u1", "u1")

	rec := tp.do(t, http.MethodGet, "/nowhere", reqOpts{session: "s-u1"})
	assert.Equal(t, http.StatusSeeOther, rec.Code)
	assert.Equal(t, "/", rec.Header().Get("Location"))

	rec = tp.do(t, http.MethodGet, "/nowhere", reqOpts{})
	assert.Equal(t, http.StatusSeeOther, rec.Code)
	assert.True(t, strings.HasPrefix(rec.Header().Get("Location"), "/auth/login?redirect_uri="))

	rec = tp.do(t, http.MethodGet, "/api/nowhere", reqOpts{json: true})
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestPortal_SessionAPI(t *testing.T) {
	fb := newFakeBackend(t, employeeUser("u1"))
	tp := newTestPortal(t, fb)
	tp.signIn("s-u1", "u1")

	// Resolve the profile through a guarded page first.
	require.Equal(t, http.StatusOK, tp.do(t, http.MethodGet, "/", reqOpts{session: "s-u1"}).Code)

	rec := tp.do(t, http.MethodGet, "/api/session?path=/hr-dashboard/", reqOpts{session: "s-u1", json: true})
	require.Equal(t, http.StatusOK, rec.Code)

	var resp struct {
		Session struct {
			SignedIn   bool   `json:"signed_in"`
			IdentityID string `json:"identity_id"`
		} `json:"session"`
		Profile struct {
			Role domainauth.Role `json:"role"`
		} `json:"profile"`
		Loading    bool      `json:"loading"`
		Phase      string    `json:"phase"`
		Navigation []NavLink `json:"navigation"`
		Access     struct {
			Decision string `json:"decision"`
		} `json:"access"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	assert.True(t, resp.Session.SignedIn)
	assert.Equal(t, "u1", resp.Session.IdentityID)
	assert.Equal(t, domainauth.RoleEmployee, resp.Profile.Role)
	assert.False(t, resp.Loading)
	assert.Equal(t, "resolved", resp.Phase)
	assert.Len(t, resp.Navigation, 3)
	assert.Equal(t, "denied_unauthorized", resp.Access.Decision)
}

func TestPortal_RefetchAPI(t *testing.T) {
	fb := newFakeBackend(t, employeeUser("u1"))
	tp := newTestPortal(t, fb)
	tp.signIn("s-u1", "u1")
	require.Equal(t, http.StatusOK, tp.do(t, http.MethodGet, "/", reqOpts{session: "s-u1"}).Code)

	fb.setRole("u1", domainauth.RoleHRManager)
	rec := tp.do(t, http.MethodPost, "/api/profile/refetch", reqOpts{session: "s-u1", json: true})
	require.Equal(t, http.StatusAccepted, rec.Code)

	rec = tp.do(t, http.MethodGet, "/hr-dashboard/", reqOpts{session: "s-u1"})
	assert.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	assert.Contains(t, rec.Body.String(), "HR dashboard")

	rec = tp.do(t, http.MethodPost, "/api/profile/refetch", reqOpts{json: true})
	assert.Equal(t, http.StatusUnauthorized, rec.Code)
}

func TestPortal_CSRFRequiredForPosts(t *testing.T) {
	fb := newFakeBackend(t, adminUser("a1"))
	tp := newTestPortal(t, fb)
	tp.signIn("s-a1", "a1")

	req := strings.NewReader(url.Values{"role": {"admin"}}.Encode())
	r := newFormRequest(t, "/admin-dashboard/users/a1/role", req)
	r.AddCookie(&http.Cookie{Name: SessionCookieName, Value: "s-a1"})
	rec := serve(tp.handler, r)
	assert.Equal(t, http.StatusForbidden, rec.Code)
	assert.Equal(t, 0, fb.callCount("PATCH /api/admin/users/a1/"))
}
