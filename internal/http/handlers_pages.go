package httpx

import (
	"log/slog"
	"net/http"
	"strconv"

	"golang.org/x/sync/errgroup"

	"github.com/hredge/portal/internal/adapters/backend"
	domainauth "github.com/hredge/portal/internal/domain/auth"
	"github.com/hredge/portal/internal/domain/profile"
	apperrors "github.com/hredge/portal/internal/errors"
	"github.com/hredge/portal/internal/service"
)

// PortalHandlers serves the guarded views and the HR and admin form posts.
// Every handler here runs behind the Guard, so the profile is resolved and the
// role check has passed by the time it is called.
type PortalHandlers struct {
	Backend  *backend.Client
	Registry *service.ResolverRegistry
	Routes   *RouteTable
	Renderer *TemplateRenderer
	Logger   *slog.Logger
}

func (h *PortalHandlers) logger() *slog.Logger {
	if h != nil && h.Logger != nil {
		return h.Logger
	}
	return slog.Default()
}

// caller authenticates backend calls as the requesting session.
func (h *PortalHandlers) caller(r *http.Request) *backend.Caller {
	return h.Backend.As(GetRequestAuth(r.Context()).Tokens)
}

// page seeds page data with the guard's view of the caller.
func (h *PortalHandlers) page(r *http.Request, title string) PageData {
	data := newPageData(r, title)
	if res, ok := GetGuardResult(r.Context()); ok {
		data.Profile = res.Outcome.Profile
		data.Nav = Navigation(h.Routes, res.State, r.URL.Path)
	}
	return data
}

func (h *PortalHandlers) render(w http.ResponseWriter, status int, page string, data PageData) {
	if err := h.Renderer.Render(w, status, page, data); err != nil {
		http.Error(w, http.StatusText(http.StatusInternalServerError), http.StatusInternalServerError)
	}
}

// HomeData backs the home page.
type HomeData struct {
	Search         string
	Employees      []backend.EmployeeSummary
	DirectoryError string
}

// Home renders the profile summary and the employee directory.
// GET /.
func (h *PortalHandlers) Home(w http.ResponseWriter, r *http.Request) {
	data := h.page(r, "Home")
	home := HomeData{Search: r.URL.Query().Get("search")}

	employees, err := h.caller(r).ListEmployees(r.Context(), backend.EmployeeFilter{
		Search:     home.Search,
		Department: r.URL.Query().Get("department"),
	})
	if err != nil {
		h.logger().WarnContext(r.Context(), "employee directory unavailable", slog.Any("error", err))
		home.DirectoryError = "The employee directory is unavailable right now."
	}
	home.Employees = employees
	data.Data = home
	h.render(w, http.StatusOK, PageHome, data)
}

// MyProfile renders the caller's own profile.
// GET /my-profile.
func (h *PortalHandlers) MyProfile(w http.ResponseWriter, r *http.Request) {
	h.render(w, http.StatusOK, PageMyProfile, h.page(r, "My Profile"))
}

// PayStubsData backs the pay stub page.
type PayStubsData struct {
	Stubs []backend.MyPayStub
}

// MyPayStubs lists the caller's pay stubs.
// GET /my-paystubs.
func (h *PortalHandlers) MyPayStubs(w http.ResponseWriter, r *http.Request) {
	stubs, err := h.caller(r).MyPayStubs(r.Context())
	if err != nil {
		h.backendFailure(w, r, err)
		return
	}
	data := h.page(r, "My Pay Stubs")
	data.Data = PayStubsData{Stubs: stubs}
	h.render(w, http.StatusOK, PageMyPayStubs, data)
}

// HRDashboardData backs the HR dashboard.
type HRDashboardData struct {
	Stats       backend.HRStats
	Employees   []backend.EmployeeSummary
	Departments []backend.Department
	PayRuns     []backend.PayRun
	Onboarding  []profile.Profile
	// Stubs is set when a pay run is selected with ?pay_run=.
	Stubs []backend.PayStub
}

// HRDashboard fetches every HR panel concurrently.
// GET /hr-dashboard/.
func (h *PortalHandlers) HRDashboard(w http.ResponseWriter, r *http.Request) {
	var payRunID int64
	if raw := r.URL.Query().Get("pay_run"); raw != "" {
		id, err := strconv.ParseInt(raw, 10, 64)
		if err != nil || id <= 0 {
			h.badRequest(w, r, map[string]string{"pay_run": "must be a positive number"})
			return
		}
		payRunID = id
	}

	c := h.caller(r)
	var d HRDashboardData
	g, ctx := errgroup.WithContext(r.Context())
	g.Go(func() error {
		s, err := c.HRStats(ctx)
		if err == nil {
			d.Stats = *s
		}
		return err
	})
	g.Go(func() (err error) {
		d.Employees, err = c.ListEmployees(ctx, backend.EmployeeFilter{})
		return err
	})
	g.Go(func() (err error) {
		d.Departments, err = c.ListDepartments(ctx)
		return err
	})
	g.Go(func() (err error) {
		d.PayRuns, err = c.ListPayRuns(ctx)
		return err
	})
	g.Go(func() (err error) {
		d.Onboarding, err = c.PendingOnboarding(ctx)
		return err
	})
	if payRunID > 0 {
		g.Go(func() (err error) {
			d.Stubs, err = c.ListPayStubs(ctx, payRunID)
			return err
		})
	}
	if err := g.Wait(); err != nil {
		h.backendFailure(w, r, err)
		return
	}

	data := h.page(r, "HR Dashboard")
	data.Data = d
	h.render(w, http.StatusOK, PageHRDashboard, data)
}

// EmployeeEditData backs the employee editor.
type EmployeeEditData struct {
	Employee    *profile.Profile
	Departments []backend.Department
	Statuses    []string
}

// InDepartment reports whether the employee belongs to department id.
func (d EmployeeEditData) InDepartment(id int64) bool {
	return d.Employee != nil && d.Employee.Employment.DepartmentID != nil && *d.Employee.Employment.DepartmentID == id
}

// EditEmployee renders one employee's record for editing.
// GET /hr-dashboard/employees/{id}.
func (h *PortalHandlers) EditEmployee(w http.ResponseWriter, r *http.Request) {
	clerkID := r.PathValue("id")
	if clerkID == "" {
		h.badRequest(w, r, map[string]string{"id": "is required"})
		return
	}

	c := h.caller(r)
	d := EmployeeEditData{Statuses: backend.OnboardingStatuses}
	g, ctx := errgroup.WithContext(r.Context())
	g.Go(func() (err error) {
		d.Employee, err = c.GetEmployee(ctx, clerkID)
		return err
	})
	g.Go(func() (err error) {
		d.Departments, err = c.ListDepartments(ctx)
		return err
	})
	if err := g.Wait(); err != nil {
		h.backendFailure(w, r, err)
		return
	}

	if !IsBrowserRequest(r) {
		WriteJSON(w, http.StatusOK, d)
		return
	}
	data := h.page(r, "Edit "+d.Employee.DisplayName())
	data.Data = d
	h.render(w, http.StatusOK, PageEmployeeEdit, data)
}

// AdminDashboardData backs the admin dashboard.
type AdminDashboardData struct {
	Stats       backend.AdminStats
	Users       []backend.User
	Departments []backend.Department
	Roles       []domainauth.Role
}

// AdminDashboard fetches the admin panels concurrently.
// GET /admin-dashboard/.
func (h *PortalHandlers) AdminDashboard(w http.ResponseWriter, r *http.Request) {
	c := h.caller(r)
	d := AdminDashboardData{Roles: domainauth.Roles()}
	g, ctx := errgroup.WithContext(r.Context())
	g.Go(func() error {
		s, err := c.AdminStats(ctx)
		if err == nil {
			d.Stats = *s
		}
		return err
	})
	g.Go(func() (err error) {
		d.Users, err = c.ListUsers(ctx)
		return err
	})
	g.Go(func() (err error) {
		d.Departments, err = c.ListDepartments(ctx)
		return err
	})
	if err := g.Wait(); err != nil {
		h.backendFailure(w, r, err)
		return
	}

	data := h.page(r, "Admin Dashboard")
	data.Data = d
	h.render(w, http.StatusOK, PageAdminDashboard, data)
}

// backendFailure reports a failed backend call. The backend's own refusals and
// misses pass through; anything else is a bad gateway.
func (h *PortalHandlers) backendFailure(w http.ResponseWriter, r *http.Request, err error) {
	status := 0
	if apiErr, ok := backend.AsAPIError(err); ok {
		status = apiErr.Status
	}
	appErr := apperrors.FromBackendStatus(status, err)
	if r.Context().Err() != nil {
		// The client went away; nobody is left to answer.
		return
	}
	h.logger().WarnContext(r.Context(), "backend call failed",
		slog.String("path", r.URL.Path),
		slog.String("code", string(appErr.Code)),
		slog.Any("error", err),
	)

	if !IsBrowserRequest(r) {
		WriteAppError(w, appErr)
		return
	}
	data := h.page(r, "Something went wrong")
	data.Error = appErr.Message
	h.render(w, apperrors.HTTPStatus(appErr), PageError, data)
}

func (h *PortalHandlers) badRequest(w http.ResponseWriter, r *http.Request, fields map[string]string) {
	if !IsBrowserRequest(r) {
		WriteJSON(w, http.StatusBadRequest, map[string]any{
			"error":   "validation",
			"message": "validation failed",
			"fields":  fields,
		})
		return
	}
	data := h.page(r, "Please check your input")
	data.FieldErrors = fields
	h.render(w, http.StatusBadRequest, PageError, data)
}
