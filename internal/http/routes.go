package httpx

import (
	"errors"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/hredge/portal/internal/adapters/backend"
	"github.com/hredge/portal/internal/observability/statsd"
	"github.com/hredge/portal/internal/ports"
	"github.com/hredge/portal/internal/service"
)

// DefaultAuthRateLimit is the per-IP request budget for /auth/ routes per minute.
const DefaultAuthRateLimit = 30

// RouterServices holds everything the HTTP router needs.
type RouterServices struct {
	Auth     AuthServiceInterface
	Registry *service.ResolverRegistry
	Backend  *backend.Client
	// Tokens builds the per-session token source; nil treats every caller as signed out.
	Tokens TokenSourceFactory
	// Routes defaults to DefaultRoutes.
	Routes *RouteTable
	// Renderer defaults to the embedded views.
	Renderer *TemplateRenderer
	Audit    ports.AuditRecorder
	Metrics  statsd.Sink
	// Readiness checks are served at /readyz.
	Readiness map[string]ReadinessCheck

	CookieDomain  string
	PendingWait   time.Duration
	Security      SecurityConfig
	AuthRateLimit int
	Logger        *slog.Logger
}

// NewRouter builds the portal handler: public auth and health routes, the
// session API, and the guarded views.
func NewRouter(services RouterServices) (http.Handler, error) {
	if services.Backend == nil {
		return nil, errors.New("backend client is required")
	}
	logger := services.Logger
	if logger == nil {
		logger = slog.Default()
	}
	routes := services.Routes
	if routes == nil {
		routes = DefaultRoutes()
	}
	renderer := services.Renderer
	if renderer == nil {
		var err error
		renderer, err = NewTemplateRenderer(TemplateRendererConfig{Logger: logger})
		if err != nil {
			return nil, err
		}
	}
	authLimit := services.AuthRateLimit
	if authLimit == 0 {
		authLimit = DefaultAuthRateLimit
	}

	mux := http.NewServeMux()
	mux.Handle("GET /healthz", http.HandlerFunc(healthHandler))
	mux.Handle("HEAD /healthz", http.HandlerFunc(healthHandler))
	mux.Handle("GET /readyz", readinessHandler(services.Readiness))

	if services.Auth != nil {
		authHandlers := &AuthHandlers{
			Svc:          services.Auth,
			Registry:     services.Registry,
			Renderer:     renderer,
			CookieDomain: services.CookieDomain,
			Logger:       logger,
		}
		registerAuthRoutes(mux, authHandlers, RateLimit(authLimit, time.Minute))
	}

	api := &APIHandlers{Registry: services.Registry, Routes: routes}
	mux.HandleFunc("GET /api/session", api.Session)
	mux.HandleFunc("POST /api/profile/refetch", api.Refetch)

	portal := &PortalHandlers{
		Backend:  services.Backend,
		Registry: services.Registry,
		Routes:   routes,
		Renderer: renderer,
		Logger:   logger,
	}
	registerPortalRoutes(mux, portal)
	mux.HandleFunc("/", unmatchedHandler)

	guard := &Guard{
		Registry:    services.Registry,
		Routes:      routes,
		Renderer:    renderer,
		Audit:       services.Audit,
		Metrics:     services.Metrics,
		Logger:      logger,
		PendingWait: services.PendingWait,
	}

	return Chain(mux,
		Logging(logger),
		Recover(logger),
		SecurityHeaders(services.Security),
		BrowserDetection(),
		Session(services.Tokens),
		CSRFProtection(CSRFConfig{CookieDomain: services.CookieDomain}),
		guard.Middleware,
	), nil
}

func registerAuthRoutes(mux *http.ServeMux, h *AuthHandlers, limit func(http.Handler) http.Handler) {
	mux.Handle("GET /auth/login", limit(http.HandlerFunc(h.Login)))
	mux.Handle("GET /auth/callback", limit(http.HandlerFunc(h.Callback)))
	mux.Handle("POST /auth/logout", limit(http.HandlerFunc(h.Logout)))
	mux.HandleFunc("GET /auth/status", h.Status)
	mux.HandleFunc("GET /auth/signed-out", h.SignedOut)
	mux.HandleFunc("GET /login", h.LoginAlias)
}

// registerPortalRoutes mounts the views named in the route table. The guard
// has already matched the path against the table before these run.
func registerPortalRoutes(mux *http.ServeMux, h *PortalHandlers) {
	mux.HandleFunc("GET /{$}", h.Home)
	mux.HandleFunc("GET /my-profile", h.MyProfile)
	mux.HandleFunc("GET /my-paystubs", h.MyPayStubs)

	mux.HandleFunc("GET /hr-dashboard/", h.HRDashboard)
	mux.HandleFunc("POST /hr-dashboard/departments", h.CreateDepartment)
	mux.HandleFunc("POST /hr-dashboard/payroll/runs", h.CreatePayRun)
	mux.HandleFunc("POST /hr-dashboard/payroll/runs/{id}/process", h.ProcessPayRun)
	mux.HandleFunc("GET /hr-dashboard/employees/{id}", h.EditEmployee)
	mux.HandleFunc("POST /hr-dashboard/employees/{id}", h.UpdateEmployee)

	mux.HandleFunc("GET /admin-dashboard/", h.AdminDashboard)
	mux.HandleFunc("POST /admin-dashboard/users/{id}/role", h.SetUserRole)
}

// unmatchedHandler answers paths no route claims: signed-in browsers go home,
// everyone else is sent to sign in. API paths get a plain 404.
func unmatchedHandler(w http.ResponseWriter, r *http.Request) {
	if strings.HasPrefix(r.URL.Path, "/api/") || !IsBrowserRequest(r) {
		WriteError(w, ErrorParams{
			Code:    http.StatusNotFound,
			ErrCode: "not_found",
			Err:     errors.New("no such route"),
		})
		return
	}
	if GetRequestAuth(r.Context()).State.Authenticated() {
		http.Redirect(w, r, "/", http.StatusSeeOther)
		return
	}
	redirectToLogin(w, r)
}
