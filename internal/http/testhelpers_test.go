package httpx

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"net/url"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/hredge/portal/internal/adapters/backend"
	domainauth "github.com/hredge/portal/internal/domain/auth"
	mockauth "github.com/hredge/portal/internal/mocks/auth"
	"github.com/hredge/portal/internal/observability/statsd"
	"github.com/hredge/portal/internal/ports"
	"github.com/hredge/portal/internal/service"
)

const testCSRFToken = "test-csrf-token"

// fakeUser is one account in the fake HR backend.
type fakeUser struct {
	ID     string
	Email  string
	First  string
	Last   string
	Role   domainauth.Role
	Active bool
	Title  string
}

// fakeBackend is a minimal HR backend. Callers authenticate with "Bearer tok-<id>".
type fakeBackend struct {
	mu    sync.Mutex
	users map[string]*fakeUser
	calls []string
	srv   *httptest.Server
}

func newFakeBackend(t *testing.T, users ...fakeUser) *fakeBackend {
	t.Helper()
	fb := &fakeBackend{users: make(map[string]*fakeUser)}
	for i := range users {
		u := users[i]
		fb.users[u.ID] = &u
	}

	hr := []domainauth.Role{domainauth.RoleHRManager, domainauth.RoleAdmin}
	mux := http.NewServeMux()
	mux.HandleFunc("GET /api/me/", fb.me)
	mux.HandleFunc("GET /api/employees/", fb.employees)
	mux.HandleFunc("GET /api/my/paystubs/", func(w http.ResponseWriter, r *http.Request) {
		if fb.caller(w, r) == nil {
			return
		}
		writeTestJSON(w, http.StatusOK, []backend.MyPayStub{{ID: 1, PayDate: "2024-01-31", GrossPay: "1000.00", NetPay: "800.00"}})
	})
	mux.HandleFunc("GET /api/manage/employee/{id}/", fb.requireRole(fb.employee, hr...))
	mux.HandleFunc("PUT /api/manage/employee/{id}/", fb.requireRole(fb.updateEmployee, hr...))
	mux.HandleFunc("GET /api/admin/users/", fb.listUsers)
	mux.HandleFunc("PATCH /api/admin/users/{id}/", fb.patchUser)
	mux.HandleFunc("GET /api/admin/stats/", fb.requireRole(func(w http.ResponseWriter, _ *http.Request) {
		writeTestJSON(w, http.StatusOK, backend.AdminStats{TotalUsers: len(fb.users), ActiveUsers: len(fb.users), Departments: 1})
	}, domainauth.RoleAdmin))
	mux.HandleFunc("GET /api/departments/", func(w http.ResponseWriter, r *http.Request) {
		if fb.caller(w, r) == nil {
			return
		}
		writeTestJSON(w, http.StatusOK, []backend.Department{{ID: 1, Name: "Engineering"}})
	})
	mux.HandleFunc("POST /api/departments/", fb.requireRole(func(w http.ResponseWriter, r *http.Request) {
		var in backend.DepartmentInput
		if err := json.NewDecoder(r.Body).Decode(&in); err != nil || in.Name == "" {
			writeTestJSON(w, http.StatusBadRequest, map[string][]string{"name": {"This field is required."}})
			return
		}
		writeTestJSON(w, http.StatusCreated, backend.Department{ID: 2, Name: in.Name})
	}, domainauth.RoleHRManager, domainauth.RoleAdmin))
	mux.HandleFunc("GET /api/hr/stats/", fb.requireRole(func(w http.ResponseWriter, _ *http.Request) {
		writeTestJSON(w, http.StatusOK, backend.HRStats{ActiveEmployees: 3, PendingOnboarding: 1, PendingPayRuns: 1})
	}, hr...))
	mux.HandleFunc("GET /api/payroll/runs/", fb.requireRole(func(w http.ResponseWriter, _ *http.Request) {
		writeTestJSON(w, http.StatusOK, []backend.PayRun{{ID: 7, StartDate: "2024-01-01", EndDate: "2024-01-31", PayDate: "2024-02-01", Status: backend.PayRunPending}})
	}, hr...))
	mux.HandleFunc("POST /api/payroll/runs/", fb.requireRole(func(w http.ResponseWriter, r *http.Request) {
		var in backend.PayRunInput
		_ = json.NewDecoder(r.Body).Decode(&in)
		writeTestJSON(w, http.StatusCreated, backend.PayRun{ID: 8, StartDate: in.StartDate, EndDate: in.EndDate, PayDate: in.PayDate, Status: backend.PayRunPending})
	}, hr...))
	mux.HandleFunc("POST /api/payroll/runs/{id}/process_payroll/", fb.requireRole(func(w http.ResponseWriter, r *http.Request) {
		if r.PathValue("id") != "7" {
			writeTestJSON(w, http.StatusBadRequest, map[string]string{"error": "Payroll can only be processed from Pending status."})
			return
		}
		writeTestJSON(w, http.StatusOK, map[string]string{"message": "Payroll processed."})
	}, hr...))
	mux.HandleFunc("GET /api/hr/onboarding/pending/", fb.requireRole(func(w http.ResponseWriter, _ *http.Request) {
		writeTestJSON(w, http.StatusOK, []any{})
	}, hr...))

	fb.srv = httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		fb.mu.Lock()
		fb.calls = append(fb.calls, r.Method+" "+r.URL.Path)
		fb.mu.Unlock()
		mux.ServeHTTP(w, r)
	}))
	t.Cleanup(fb.srv.Close)
	return fb
}

func writeTestJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

// caller resolves the bearer token or writes 401.
func (fb *fakeBackend) caller(w http.ResponseWriter, r *http.Request) *fakeUser {
	id, ok := strings.CutPrefix(r.Header.Get("Authorization"), "Bearer tok-")
	fb.mu.Lock()
	u, found := fb.users[id]
	var cp fakeUser
	if found {
		cp = *u
	}
	fb.mu.Unlock()
	if !ok || !found {
		writeTestJSON(w, http.StatusUnauthorized, map[string]string{"detail": "Authentication credentials were not provided."})
		return nil
	}
	return &cp
}

func (fb *fakeBackend) requireRole(next http.HandlerFunc, roles ...domainauth.Role) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		u := fb.caller(w, r)
		if u == nil {
			return
		}
		for _, role := range roles {
			if u.Role == role {
				next(w, r)
				return
			}
		}
		writeTestJSON(w, http.StatusForbidden, map[string]string{"detail": "Forbidden"})
	}
}

func (fb *fakeBackend) me(w http.ResponseWriter, r *http.Request) {
	u := fb.caller(w, r)
	if u == nil {
		return
	}
	writeTestJSON(w, http.StatusOK, profileBody(u))
}

func (fb *fakeBackend) employee(w http.ResponseWriter, r *http.Request) {
	fb.mu.Lock()
	u, ok := fb.users[r.PathValue("id")]
	var cp fakeUser
	if ok {
		cp = *u
	}
	fb.mu.Unlock()
	if !ok {
		writeTestJSON(w, http.StatusNotFound, map[string]string{"detail": "Not found."})
		return
	}
	writeTestJSON(w, http.StatusOK, profileBody(&cp))
}

func (fb *fakeBackend) updateEmployee(w http.ResponseWriter, r *http.Request) {
	var in backend.EmployeeUpdate
	if err := json.NewDecoder(r.Body).Decode(&in); err != nil {
		writeTestJSON(w, http.StatusBadRequest, map[string]string{"error": "bad body"})
		return
	}
	if in.JobTitle == "Forbidden Title" {
		writeTestJSON(w, http.StatusBadRequest, map[string][]string{"job_title": {"Not an allowed title."}})
		return
	}
	fb.mu.Lock()
	u, ok := fb.users[r.PathValue("id")]
	var cp fakeUser
	if ok {
		u.Title = in.JobTitle
		cp = *u
	}
	fb.mu.Unlock()
	if !ok {
		writeTestJSON(w, http.StatusNotFound, map[string]string{"detail": "Not found."})
		return
	}
	writeTestJSON(w, http.StatusOK, profileBody(&cp))
}

func profileBody(u *fakeUser) map[string]any {
	title := u.Title
	if title == "" {
		title = "Engineer"
	}
	return map[string]any{
		"user": map[string]any{
			"clerk_id":   u.ID,
			"email":      u.Email,
			"first_name": u.First,
			"last_name":  u.Last,
			"role":       string(u.Role),
			"is_active":  u.Active,
		},
		"job_title":       title,
		"department":      1,
		"department_name": "Engineering",
		"current_salary":  nil,
	}
}

func (fb *fakeBackend) employees(w http.ResponseWriter, r *http.Request) {
	if fb.caller(w, r) == nil {
		return
	}
	fb.mu.Lock()
	defer fb.mu.Unlock()
	out := make([]backend.EmployeeSummary, 0, len(fb.users))
	for _, u := range fb.users {
		out = append(out, backend.EmployeeSummary{ClerkID: u.ID, FirstName: u.First, LastName: u.Last, Email: u.Email})
	}
	writeTestJSON(w, http.StatusOK, out)
}

func (fb *fakeBackend) listUsers(w http.ResponseWriter, r *http.Request) {
	fb.requireRole(func(w http.ResponseWriter, _ *http.Request) {
		fb.mu.Lock()
		defer fb.mu.Unlock()
		out := make([]backend.User, 0, len(fb.users))
		for _, u := range fb.users {
			out = append(out, backend.User{ClerkID: u.ID, Email: u.Email, Role: u.Role, IsActive: u.Active})
		}
		writeTestJSON(w, http.StatusOK, out)
	}, domainauth.RoleAdmin)(w, r)
}

func (fb *fakeBackend) patchUser(w http.ResponseWriter, r *http.Request) {
	fb.requireRole(func(w http.ResponseWriter, r *http.Request) {
		var body struct {
			Role string `json:"role"`
		}
		if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
			writeTestJSON(w, http.StatusBadRequest, map[string]string{"error": "bad body"})
			return
		}
		fb.mu.Lock()
		defer fb.mu.Unlock()
		u, ok := fb.users[r.PathValue("id")]
		if !ok {
			writeTestJSON(w, http.StatusNotFound, map[string]string{"detail": "Not found."})
			return
		}
		u.Role = domainauth.Role(body.Role)
		writeTestJSON(w, http.StatusOK, backend.User{ClerkID: u.ID, Email: u.Email, Role: u.Role, IsActive: u.Active})
	}, domainauth.RoleAdmin)(w, r)
}

func (fb *fakeBackend) setRole(id string, role domainauth.Role) {
	fb.mu.Lock()
	defer fb.mu.Unlock()
	fb.users[id].Role = role
}

func (fb *fakeBackend) callCount(call string) int {
	fb.mu.Lock()
	defer fb.mu.Unlock()
	n := 0
	for _, c := range fb.calls {
		if c == call {
			n++
		}
	}
	return n
}

// testPortal is a fully wired router against a fake backend.
type testPortal struct {
	handler  http.Handler
	registry *service.ResolverRegistry
	metrics  *statsd.Recorder

	mu       sync.Mutex
	sessions map[string]*mockauth.StaticTokenSource
}

type portalOption func(*RouterServices)

func newTestPortal(t *testing.T, fb *fakeBackend, opts ...portalOption) *testPortal {
	t.Helper()
	client, err := backend.New(backend.Options{BaseURL: fb.srv.URL + "/api", Timeout: 2 * time.Second})
	require.NoError(t, err)

	tp := &testPortal{
		metrics:  &statsd.Recorder{},
		sessions: make(map[string]*mockauth.StaticTokenSource),
	}
	tp.registry = service.NewResolverRegistry(service.ResolverRegistryOptions{
		NewFetcher:   func(ts ports.TokenSource) ports.ProfileFetcher { return client.As(ts) },
		FetchTimeout: 2 * time.Second,
	})

	svcs := RouterServices{
		Auth:     service.NewAuthService(service.AuthServiceOptions{Provider: mockauth.NewMockAuthProvider(), Sessions: mockauth.NewMemorySessionStore()}),
		Registry: tp.registry,
		Backend:  client,
		Tokens:   tp.tokens,
		Metrics:  tp.metrics,
		Security: SecurityConfig{IsDevelopment: true},
	}
	for _, o := range opts {
		o(&svcs)
	}
	tp.handler, err = NewRouter(svcs)
	require.NoError(t, err)
	return tp
}

func (tp *testPortal) tokens(sessionID string) ports.TokenSource {
	tp.mu.Lock()
	defer tp.mu.Unlock()
	if ts, ok := tp.sessions[sessionID]; ok {
		return ts
	}
	return mockauth.NewStaticTokenSource(domainauth.SignedOut(), "")
}

// signIn registers a session for identityID whose token the fake backend accepts.
func (tp *testPortal) signIn(sessionID, identityID string) *mockauth.StaticTokenSource {
	ts := mockauth.SignedInTokenSource(identityID, "tok-"+identityID)
	tp.mu.Lock()
	tp.sessions[sessionID] = ts
	tp.mu.Unlock()
	return ts
}

type reqOpts struct {
	session string
	json    bool
	form    url.Values
}

func (tp *testPortal) do(t *testing.T, method, target string, o reqOpts) *httptest.ResponseRecorder {
	t.Helper()
	var req *http.Request
	if o.form != nil {
		o.form.Set(DefaultCSRFCookieName, testCSRFToken)
		req = httptest.NewRequest(method, target, strings.NewReader(o.form.Encode()))
		req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	} else {
		req = httptest.NewRequest(method, target, nil)
		req.Header.Set(DefaultCSRFHeaderName, testCSRFToken)
	}
	req.AddCookie(&http.Cookie{Name: DefaultCSRFCookieName, Value: testCSRFToken})
	if o.session != "" {
		req.AddCookie(&http.Cookie{Name: SessionCookieName, Value: o.session})
	}
	if o.json {
		req.Header.Set("Accept", "application/json")
	} else {
		req.Header.Set("Accept", "text/html")
	}
	rec := httptest.NewRecorder()
	tp.handler.ServeHTTP(rec, req)
	return rec
}

func employeeUser(id string) fakeUser {
	return fakeUser{ID: id, Email: id + "@example.com", First: "Uma", Last: "One", Role: domainauth.RoleEmployee, Active: true}
}

func adminUser(id string) fakeUser {
	return fakeUser{ID: id, Email: id + "@example.com", First: "Ada", Last: "Admin", Role: domainauth.RoleAdmin, Active: true}
}

func newFormRequest(t *testing.T, target string, body *strings.Reader) *http.Request {
	t.Helper()
	req := httptest.NewRequest(http.MethodPost, target, body)
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	req.Header.Set("Accept", "text/html")
	return req
}

func serve(h http.Handler, r *http.Request) *httptest.ResponseRecorder {
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, r)
	return rec
}
