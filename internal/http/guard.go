package httpx

import (
	"context"
	"log/slog"
	"net/http"
	"time"

	"github.com/hredge/portal/internal/domain/access"
	"github.com/hredge/portal/internal/domain/profile"
	"github.com/hredge/portal/internal/observability/metrics"
	"github.com/hredge/portal/internal/observability/statsd"
	"github.com/hredge/portal/internal/ports"
	"github.com/hredge/portal/internal/service"
)

const (
	// DefaultPendingWait bounds how long a request is held for an in-flight profile fetch.
	DefaultPendingWait = 2 * time.Second
	auditWriteTimeout  = 2 * time.Second
)

// Guard decides access for every path in its route table and renders every
// outcome other than Granted. Paths the table does not match pass through.
type Guard struct {
	Registry *service.ResolverRegistry
	Routes   *RouteTable
	Renderer *TemplateRenderer
	Audit    ports.AuditRecorder
	Metrics  statsd.Sink
	Logger   *slog.Logger
	// PendingWait is how long the guard waits on a loading profile before
	// answering Pending. Negative disables waiting; zero uses DefaultPendingWait.
	PendingWait time.Duration
	Now         func() time.Time
}

// GuardResult is what a granted handler learns from the guard.
type GuardResult struct {
	Route   RouteSpec
	Outcome access.Outcome
	State   profile.ResolutionState
}

type guardResultKey struct{}

// GetGuardResult returns the guard's result for a granted request.
func GetGuardResult(ctx context.Context) (GuardResult, bool) {
	res, ok := ctx.Value(guardResultKey{}).(GuardResult)
	return res, ok
}

func (g *Guard) logger() *slog.Logger {
	if g.Logger != nil {
		return g.Logger
	}
	return slog.Default()
}

func (g *Guard) now() time.Time {
	if g.Now != nil {
		return g.Now()
	}
	return time.Now()
}

func (g *Guard) pendingWait() time.Duration {
	switch {
	case g.PendingWait < 0:
		return 0
	case g.PendingWait == 0:
		return DefaultPendingWait
	default:
		return g.PendingWait
	}
}

// Middleware applies the guard ahead of next.
func (g *Guard) Middleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		spec, ok := g.Routes.Match(r.URL.Path)
		if !ok {
			next.ServeHTTP(w, r)
			return
		}

		res, waited := g.Evaluate(r, spec)
		out := res.Outcome
		annotate(r.Context(), slog.String("route", spec.Pattern), slog.String("decision", out.Decision.String()))
		metrics.EmitGuardDecision(g.Metrics, metrics.GuardMetric{
			Route:    spec.Pattern,
			Decision: out.Decision.String(),
			Reason:   out.Reason,
			Waited:   waited,
		})
		if out.Decision.Audited() {
			g.record(r, res)
		}

		if out.Decision == access.Granted {
			next.ServeHTTP(w, r.WithContext(context.WithValue(r.Context(), guardResultKey{}, res)))
			return
		}
		g.render(w, r, res)
	})
}

// Evaluate computes the decision for spec. When the profile is still loading it
// waits up to PendingWait for the fetch to settle and decides again, so a fast
// backend never shows the pending page. It returns how long it waited.
func (g *Guard) Evaluate(r *http.Request, spec RouteSpec) (GuardResult, time.Duration) {
	auth := GetRequestAuth(r.Context())
	res := GuardResult{Route: spec}

	if g.Registry == nil {
		res.Outcome = access.Decide(auth.State, nil, spec.Required)
		return res, 0
	}

	// A session the registry does not track is not signed in; it decides on an
	// empty state rather than as misconfigured.
	resolver := g.Registry.Observe(auth.SessionID, auth.Tokens, auth.State)
	if resolver != nil {
		res.State = resolver.Snapshot()
	}
	res.Outcome = access.Decide(auth.State, &res.State, spec.Required)

	wait := g.pendingWait()
	if res.Outcome.Decision != access.Pending || resolver == nil || !res.State.Loading || wait == 0 {
		return res, 0
	}

	ctx, cancel := context.WithTimeout(r.Context(), wait)
	defer cancel()
	start := g.now()
	res.State, _ = resolver.Wait(ctx)
	res.Outcome = access.Decide(auth.State, &res.State, spec.Required)
	return res, g.now().Sub(start)
}

func (g *Guard) record(r *http.Request, res GuardResult) {
	if g.Audit == nil {
		return
	}
	auth := GetRequestAuth(r.Context())
	ev := access.AuditEvent{
		SessionID:  auth.SessionID,
		IdentityID: auth.State.IdentityID,
		Method:     r.Method,
		Path:       r.URL.Path,
		Decision:   res.Outcome.Decision,
		Reason:     res.Outcome.Reason,
		Required:   res.Route.Required,
		OccurredAt: g.now(),
	}
	if p := res.Outcome.Profile; p != nil {
		ev.Role = p.Role
	}

	ctx, cancel := context.WithTimeout(context.WithoutCancel(r.Context()), auditWriteTimeout)
	defer cancel()
	if err := g.Audit.Record(ctx, ev); err != nil {
		g.logger().WarnContext(r.Context(), "audit write failed",
			slog.String("path", ev.Path),
			slog.String("decision", ev.Decision.String()),
			slog.Any("error", err),
		)
	}
}

func (g *Guard) render(w http.ResponseWriter, r *http.Request, res GuardResult) {
	out := res.Outcome
	status, page := http.StatusOK, PagePending

	switch out.Decision {
	case access.Pending:
		status, page = http.StatusAccepted, PagePending
	case access.DeniedUnauthenticated:
		if IsBrowserRequest(r) {
			redirectToLogin(w, r)
			return
		}
		status = http.StatusUnauthorized
	case access.DeniedUnauthorized:
		status, page = http.StatusForbidden, PageAccessDenied
	case access.ProfileError:
		g.logger().WarnContext(r.Context(), "profile unavailable",
			slog.String("path", r.URL.Path),
			slog.Any("error", out.Err),
		)
		status, page = http.StatusServiceUnavailable, PageProfileError
	case access.Misconfigured:
		g.logger().ErrorContext(r.Context(), "route guard misconfigured",
			slog.String("path", r.URL.Path),
			slog.Any("error", out.Err),
		)
		status, page = http.StatusInternalServerError, PageError
	case access.Granted:
		return
	}

	if !IsBrowserRequest(r) || g.Renderer == nil {
		WriteJSON(w, status, map[string]string{
			"decision": out.Decision.String(),
			"reason":   out.Reason,
		})
		return
	}

	data := newPageData(r, "")
	data.Reason = out.Reason
	data.Nav = Navigation(g.Routes, res.State, r.URL.Path)
	data.Profile = res.State.Profile
	switch out.Decision {
	case access.Pending:
		// Browsers render 200 so the refresh meta tag is honored everywhere.
		status = http.StatusOK
		data.Title = "Loading"
		data.RefreshSeconds = pendingRefreshSeconds
	case access.Misconfigured:
		data.Title = "Portal unavailable"
		data.Error = "The portal is not configured correctly. Please contact support."
	}
	if err := g.Renderer.Render(w, status, page, data); err != nil {
		http.Error(w, http.StatusText(status), status)
	}
}
