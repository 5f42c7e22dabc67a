package httpx

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/mock/gomock"

	"github.com/hredge/portal/internal/domain/access"
	domainauth "github.com/hredge/portal/internal/domain/auth"
	"github.com/hredge/portal/internal/domain/profile"
	"github.com/hredge/portal/internal/mocks"
	mockauth "github.com/hredge/portal/internal/mocks/auth"
	"github.com/hredge/portal/internal/observability/statsd"
	"github.com/hredge/portal/internal/ports"
	"github.com/hredge/portal/internal/service"
)

// releasedFetcher blocks every fetch until release is closed.
type releasedFetcher struct {
	release chan struct{}
	profile *profile.Profile
	err     error
}

func newReleasedFetcher(p *profile.Profile, err error) *releasedFetcher {
	return &releasedFetcher{release: make(chan struct{}), profile: p, err: err}
}

func (f *releasedFetcher) FetchProfile(ctx context.Context, _ string) (*profile.Profile, error) {
	select {
	case <-f.release:
	case <-ctx.Done():
		return nil, ctx.Err()
	}
	if f.err != nil {
		return nil, f.err
	}
	return f.profile.Clone(), nil
}

func testProfile(id string, role domainauth.Role, active bool) *profile.Profile {
	return &profile.Profile{IdentityID: id, Email: id + "@example.com", FirstName: "Test", LastName: "User", Role: role, IsActive: active}
}

type guardFixture struct {
	guard    *Guard
	registry *service.ResolverRegistry
	handler  http.Handler
	source   *mockauth.StaticTokenSource
	metrics  *statsd.Recorder
}

func newGuardFixture(t *testing.T, f ports.ProfileFetcher, state domainauth.SessionState) *guardFixture {
	t.Helper()
	fx := &guardFixture{
		source:  mockauth.NewStaticTokenSource(state, "tok"),
		metrics: &statsd.Recorder{},
	}
	fx.registry = service.NewResolverRegistry(service.ResolverRegistryOptions{
		NewFetcher:   func(ports.TokenSource) ports.ProfileFetcher { return f },
		FetchTimeout: 5 * time.Second,
	})
	fx.guard = &Guard{
		Registry:    fx.registry,
		Routes:      DefaultRoutes(),
		Metrics:     fx.metrics,
		PendingWait: -1,
	}
	ok := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		res, found := GetGuardResult(r.Context())
		require.True(t, found)
		WriteJSON(w, http.StatusOK, map[string]string{"decision": res.Outcome.Decision.String()})
	})
	factory := func(string) ports.TokenSource { return fx.source }
	fx.handler = Chain(ok, Session(factory), fx.guard.Middleware)
	return fx
}

func (fx *guardFixture) get(t *testing.T, path string, browser bool) (*httptest.ResponseRecorder, map[string]string) {
	t.Helper()
	req := httptest.NewRequest(http.MethodGet, path, nil)
	req.AddCookie(&http.Cookie{Name: SessionCookieName, Value: "sess-1"})
	if browser {
		req.Header.Set("Accept", "text/html")
	} else {
		req.Header.Set("Accept", "application/json")
	}
	rec := httptest.NewRecorder()
	fx.handler.ServeHTTP(rec, req)
	body := map[string]string{}
	if !browser {
		_ = json.Unmarshal(rec.Body.Bytes(), &body)
	}
	return rec, body
}

func (fx *guardFixture) settle(t *testing.T) {
	t.Helper()
	res, ok := fx.registry.Lookup("sess-1")
	require.True(t, ok)
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	_, err := res.Wait(ctx)
	require.NoError(t, err)
}

func TestGuard_NoDenialWhileProfileLoading(t *testing.T) {
	f := newReleasedFetcher(testProfile("u1", domainauth.RoleEmployee, true), nil)
	fx := newGuardFixture(t, f, domainauth.SignedInAs("u1"))

	for range 3 {
		rec, body := fx.get(t, "/admin-dashboard/", false)
		require.Equal(t, http.StatusAccepted, rec.Code)
		assert.Equal(t, "pending", body["decision"])
		assert.Equal(t, access.ReasonResolvingProfile, body["reason"])
	}

	close(f.release)
	fx.settle(t)

	rec, body := fx.get(t, "/admin-dashboard/", false)
	assert.Equal(t, http.StatusForbidden, rec.Code)
	assert.Equal(t, "denied_unauthorized", body["decision"])
	assert.Equal(t, access.ReasonRoleMismatch, body["reason"])

	rec, body = fx.get(t, "/my-profile", false)
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "granted", body["decision"])
}

func TestGuard_WaitsForInFlightFetch(t *testing.T) {
	f := newReleasedFetcher(testProfile("u1", domainauth.RoleAdmin, true), nil)
	fx := newGuardFixture(t, f, domainauth.SignedInAs("u1"))
	fx.guard.PendingWait = 2 * time.Second

	go func() {
		time.Sleep(50 * time.Millisecond)
		close(f.release)
	}()

	rec, body := fx.get(t, "/admin-dashboard/users", false)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "granted", body["decision"])

	waits := fx.metrics.Named("guard.pending_wait")
	require.Len(t, waits, 1)
	assert.Equal(t, "granted", waits[0].Tags["decision"])
	assert.Equal(t, "/admin-dashboard/*", waits[0].Tags["route"])
}

func TestGuard_SessionStates(t *testing.T) {
	f := newReleasedFetcher(nil, nil)

	t.Run("not loaded is pending", func(t *testing.T) {
		fx := newGuardFixture(t, f, domainauth.NotLoaded())
		rec, body := fx.get(t, "/", false)
		assert.Equal(t, http.StatusAccepted, rec.Code)
		assert.Equal(t, access.ReasonResolvingAuth, body["reason"])
	})

	t.Run("signed out api caller gets 401", func(t *testing.T) {
		fx := newGuardFixture(t, f, domainauth.SignedOut())
		rec, body := fx.get(t, "/my-paystubs", false)
		assert.Equal(t, http.StatusUnauthorized, rec.Code)
		assert.Equal(t, "denied_unauthenticated", body["decision"])
	})

	t.Run("signed out browser is sent to sign in", func(t *testing.T) {
		fx := newGuardFixture(t, f, domainauth.SignedOut())
		rec, _ := fx.get(t, "/hr-dashboard/", true)
		assert.Equal(t, http.StatusSeeOther, rec.Code)
		assert.Equal(t, "/auth/login?redirect_uri=%2Fhr-dashboard%2F", rec.Header().Get("Location"))
	})
}

func TestGuard_ProfileErrorIsNotADenial(t *testing.T) {
	f := newReleasedFetcher(nil, errors.New("backend down"))
	close(f.release)
	fx := newGuardFixture(t, f, domainauth.SignedInAs("u1"))
	fx.guard.PendingWait = time.Second

	// Every route fails closed with the same outcome, open or gated.
	for _, path := range []string{"/", "/admin-dashboard/"} {
		rec, body := fx.get(t, path, false)
		assert.Equal(t, http.StatusServiceUnavailable, rec.Code, path)
		assert.Equal(t, "profile_error", body["decision"], path)
	}
}

func TestGuard_InactiveProfileDeniedEverywhere(t *testing.T) {
	f := newReleasedFetcher(testProfile("u1", domainauth.RoleAdmin, false), nil)
	close(f.release)
	fx := newGuardFixture(t, f, domainauth.SignedInAs("u1"))
	fx.guard.PendingWait = time.Second

	rec, body := fx.get(t, "/", false)
	assert.Equal(t, http.StatusForbidden, rec.Code)
	assert.Equal(t, access.ReasonInactive, body["reason"])
}

func TestGuard_MisconfiguredIsAuditedAndBlocking(t *testing.T) {
	ctrl := gomock.NewController(t)
	audit := mocks.NewMockAuditRecorder(ctrl)

	var got access.AuditEvent
	audit.EXPECT().Record(gomock.Any(), gomock.Any()).DoAndReturn(func(_ context.Context, ev access.AuditEvent) error {
		got = ev
		return nil
	})

	fx := newGuardFixture(t, newReleasedFetcher(nil, nil), domainauth.SignedInAs("u1"))
	fx.guard.Registry = nil
	fx.guard.Audit = audit

	rec, body := fx.get(t, "/hr-dashboard/", false)
	assert.Equal(t, http.StatusInternalServerError, rec.Code)
	assert.Equal(t, "misconfigured", body["decision"])

	assert.Equal(t, access.Misconfigured, got.Decision)
	assert.Equal(t, "sess-1", got.SessionID)
	assert.Equal(t, "u1", got.IdentityID)
	assert.Equal(t, "/hr-dashboard/", got.Path)
	assert.Equal(t, "hr_manager,admin", got.Required.String())
}

func TestGuard_GrantsAreNotAudited(t *testing.T) {
	ctrl := gomock.NewController(t)
	audit := mocks.NewMockAuditRecorder(ctrl)
	audit.EXPECT().Record(gomock.Any(), gomock.Any()).Times(0)

	f := newReleasedFetcher(testProfile("u1", domainauth.RoleEmployee, true), nil)
	close(f.release)
	fx := newGuardFixture(t, f, domainauth.SignedInAs("u1"))
	fx.guard.Audit = audit
	fx.guard.PendingWait = time.Second

	rec, _ := fx.get(t, "/my-profile", false)
	assert.Equal(t, http.StatusOK, rec.Code)

	counts := fx.metrics.Named("guard.decision")
	require.NotEmpty(t, counts)
	assert.Equal(t, "granted", counts[len(counts)-1].Tags["decision"])
}

func TestGuard_SignedOutVisitorsAreNotAudited(t *testing.T) {
	ctrl := gomock.NewController(t)
	audit := mocks.NewMockAuditRecorder(ctrl)
	audit.EXPECT().Record(gomock.Any(), gomock.Any()).Times(0)

	fx := newGuardFixture(t, newReleasedFetcher(nil, nil), domainauth.SignedOut())
	fx.guard.Audit = audit

	rec, _ := fx.get(t, "/hr-dashboard/", true)
	assert.Equal(t, http.StatusSeeOther, rec.Code)
	rec, body := fx.get(t, "/my-paystubs", false)
	assert.Equal(t, http.StatusUnauthorized, rec.Code)
	assert.Equal(t, "denied_unauthenticated", body["decision"])
}

func TestGuard_UnmatchedPathsPassThrough(t *testing.T) {
	fx := newGuardFixture(t, newReleasedFetcher(nil, nil), domainauth.SignedOut())
	fx.guard.Registry = nil

	req := httptest.NewRequest(http.MethodGet, "/healthz", nil)
	rec := httptest.NewRecorder()
	reached := false
	Chain(http.HandlerFunc(func(http.ResponseWriter, *http.Request) { reached = true }), fx.guard.Middleware).ServeHTTP(rec, req)
	assert.True(t, reached)
}
