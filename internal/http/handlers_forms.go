package httpx

import (
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"net/url"
	"reflect"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/go-playground/validator/v10"

	"github.com/hredge/portal/internal/adapters/backend"
	domainauth "github.com/hredge/portal/internal/domain/auth"
)

const dateLayout = "2006-01-02"

var (
	formValidatorOnce sync.Once
	formValidator     *validator.Validate
)

// validate returns the shared validator. Field errors are keyed by the form
// field name rather than the Go field name.
func validate() *validator.Validate {
	formValidatorOnce.Do(func() {
		v := validator.New(validator.WithRequiredStructEnabled())
		v.RegisterTagNameFunc(func(f reflect.StructField) string {
			name, _, _ := strings.Cut(f.Tag.Get("form"), ",")
			if name == "" || name == "-" {
				return f.Name
			}
			return name
		})
		formValidator = v
	})
	return formValidator
}

// fieldErrors runs the validator and flattens its failures.
func fieldErrors(form any) map[string]string {
	err := validate().Struct(form)
	if err == nil {
		return nil
	}
	var verrs validator.ValidationErrors
	if !errors.As(err, &verrs) {
		return map[string]string{"general": err.Error()}
	}
	out := make(map[string]string, len(verrs))
	for _, fe := range verrs {
		out[fe.Field()] = validationMessage(fe)
	}
	return out
}

func validationMessage(fe validator.FieldError) string {
	switch fe.Tag() {
	case "required":
		return "is required"
	case "max":
		return "must be at most " + fe.Param() + " characters"
	case "oneof":
		return "must be one of: " + fe.Param()
	case "datetime":
		return "must be a date (YYYY-MM-DD)"
	case "numeric":
		return "must be a number"
	default:
		return "is invalid"
	}
}

type departmentForm struct {
	Name    string `form:"name" json:"name" validate:"required,max=100"`
	Manager string `form:"manager" json:"manager" validate:"omitempty,numeric"`
}

type payRunForm struct {
	StartDate string `form:"start_date" json:"start_date" validate:"required,datetime=2006-01-02"`
	EndDate   string `form:"end_date" json:"end_date" validate:"required,datetime=2006-01-02"`
	PayDate   string `form:"pay_date" json:"pay_date" validate:"required,datetime=2006-01-02"`
}

// check enforces ordering the tag validators cannot express.
func (f payRunForm) check() map[string]string {
	start, _ := time.Parse(dateLayout, f.StartDate)
	end, _ := time.Parse(dateLayout, f.EndDate)
	pay, _ := time.Parse(dateLayout, f.PayDate)
	out := map[string]string{}
	if end.Before(start) {
		out["end_date"] = "must not be before start_date"
	}
	if pay.Before(end) {
		out["pay_date"] = "must not be before end_date"
	}
	if len(out) == 0 {
		return nil
	}
	return out
}

type employeeForm struct {
	JobTitle            string `form:"job_title" json:"job_title" validate:"required,max=100"`
	Department          string `form:"department" json:"department" validate:"omitempty,numeric"`
	HireDate            string `form:"hire_date" json:"hire_date" validate:"omitempty,datetime=2006-01-02"`
	PhoneNumber         string `form:"phone_number" json:"phone_number" validate:"max=20"`
	Address             string `form:"address" json:"address" validate:"max=500"`
	OnboardingStatus    string `form:"onboarding_status" json:"onboarding_status" validate:"omitempty,oneof=Pending Scheduled InProgress Completed Cancelled"`
	OnboardingStartDate string `form:"onboarding_start_date" json:"onboarding_start_date" validate:"omitempty,datetime=2006-01-02"`
}

// update converts a validated form. Blank department and dates become null.
func (f employeeForm) update() backend.EmployeeUpdate {
	in := backend.EmployeeUpdate{
		JobTitle:         f.JobTitle,
		PhoneNumber:      f.PhoneNumber,
		Address:          f.Address,
		OnboardingStatus: f.OnboardingStatus,
	}
	if id, err := strconv.ParseInt(f.Department, 10, 64); err == nil {
		in.Department = &id
	}
	if f.HireDate != "" {
		in.HireDate = &f.HireDate
	}
	if f.OnboardingStartDate != "" {
		in.OnboardingStartDate = &f.OnboardingStartDate
	}
	return in
}

type roleForm struct {
	Role string `form:"role" json:"role" validate:"required,oneof=employee hr_manager admin"`
}

func isJSONRequest(r *http.Request) bool {
	return strings.HasPrefix(r.Header.Get("Content-Type"), "application/json")
}

// decodeForm fills dst from a JSON body or from posted form values keyed by `form` tags.
func decodeForm(w http.ResponseWriter, r *http.Request, dst any) bool {
	if isJSONRequest(r) {
		return DecodeJSON(w, r, dst)
	}
	if err := r.ParseForm(); err != nil {
		WriteError(w, ErrorParams{Code: http.StatusBadRequest, ErrCode: "invalid_form", Err: err})
		return false
	}
	v := reflect.ValueOf(dst).Elem()
	t := v.Type()
	for i := range t.NumField() {
		name, _, _ := strings.Cut(t.Field(i).Tag.Get("form"), ",")
		if name == "" || v.Field(i).Kind() != reflect.String {
			continue
		}
		v.Field(i).SetString(strings.TrimSpace(r.PostForm.Get(name)))
	}
	return true
}

// done answers a successful post: browsers go back to the dashboard with a
// flash message, API callers get the result.
func (h *PortalHandlers) done(w http.ResponseWriter, r *http.Request, back, flash string, status int, result any) {
	if isJSONRequest(r) || !IsBrowserRequest(r) {
		WriteJSON(w, status, result)
		return
	}
	target := back + "?flash=" + url.QueryEscape(flash)
	if IsHTMX(r) {
		SetHXRedirect(w, target)
		w.WriteHeader(http.StatusOK)
		return
	}
	http.Redirect(w, r, target, http.StatusSeeOther)
}

// postFailure reports a failed backend write, surfacing backend field errors as
// validation failures.
func (h *PortalHandlers) postFailure(w http.ResponseWriter, r *http.Request, err error) {
	if apiErr, ok := backend.AsAPIError(err); ok && apiErr.Status == http.StatusBadRequest {
		fields := make(map[string]string, len(apiErr.Fields)+1)
		for k, msgs := range apiErr.Fields {
			fields[k] = strings.Join(msgs, " ")
		}
		if len(fields) == 0 {
			fields["general"] = apiErr.Message
		}
		h.badRequest(w, r, fields)
		return
	}
	h.backendFailure(w, r, err)
}

// CreateDepartment adds a department.
// POST /hr-dashboard/departments.
func (h *PortalHandlers) CreateDepartment(w http.ResponseWriter, r *http.Request) {
	var form departmentForm
	if !decodeForm(w, r, &form) {
		return
	}
	if errs := fieldErrors(form); errs != nil {
		h.badRequest(w, r, errs)
		return
	}

	in := backend.DepartmentInput{Name: form.Name}
	if form.Manager != "" {
		id, err := strconv.ParseInt(form.Manager, 10, 64)
		if err != nil {
			h.badRequest(w, r, map[string]string{"manager": "must be a number"})
			return
		}
		in.Manager = &id
	}

	dept, err := h.caller(r).CreateDepartment(r.Context(), in)
	if err != nil {
		h.postFailure(w, r, err)
		return
	}
	h.logger().InfoContext(r.Context(), "department created",
		slog.Int64("department_id", dept.ID),
		slog.String("identity_id", GetRequestAuth(r.Context()).State.IdentityID),
	)
	h.done(w, r, "/hr-dashboard/", fmt.Sprintf("Department %q created.", dept.Name), http.StatusCreated, dept)
}

// CreatePayRun schedules a pay run.
// POST /hr-dashboard/payroll/runs.
func (h *PortalHandlers) CreatePayRun(w http.ResponseWriter, r *http.Request) {
	var form payRunForm
	if !decodeForm(w, r, &form) {
		return
	}
	errs := fieldErrors(form)
	if errs == nil {
		errs = form.check()
	}
	if errs != nil {
		h.badRequest(w, r, errs)
		return
	}

	run, err := h.caller(r).CreatePayRun(r.Context(), backend.PayRunInput{
		StartDate: form.StartDate,
		EndDate:   form.EndDate,
		PayDate:   form.PayDate,
	})
	if err != nil {
		h.postFailure(w, r, err)
		return
	}
	h.logger().InfoContext(r.Context(), "pay run created", slog.Int64("pay_run_id", run.ID))
	h.done(w, r, "/hr-dashboard/", "Pay run created.", http.StatusCreated, run)
}

// ProcessPayRun triggers processing of a pending pay run.
// POST /hr-dashboard/payroll/runs/{id}/process.
func (h *PortalHandlers) ProcessPayRun(w http.ResponseWriter, r *http.Request) {
	id, err := strconv.ParseInt(r.PathValue("id"), 10, 64)
	if err != nil || id <= 0 {
		h.badRequest(w, r, map[string]string{"id": "must be a positive number"})
		return
	}
	if err := h.caller(r).ProcessPayRun(r.Context(), id); err != nil {
		h.postFailure(w, r, err)
		return
	}
	h.logger().InfoContext(r.Context(), "pay run processed", slog.Int64("pay_run_id", id))
	h.done(w, r, "/hr-dashboard/", "Pay run processed.", http.StatusOK, map[string]any{"id": id, "processed": true})
}

// UpdateEmployee saves HR edits to an employee record, then re-resolves that
// employee's open sessions so their profile page shows the new record.
// POST /hr-dashboard/employees/{id}.
func (h *PortalHandlers) UpdateEmployee(w http.ResponseWriter, r *http.Request) {
	clerkID := r.PathValue("id")
	if clerkID == "" {
		h.badRequest(w, r, map[string]string{"id": "is required"})
		return
	}
	var form employeeForm
	if !decodeForm(w, r, &form) {
		return
	}
	if errs := fieldErrors(form); errs != nil {
		h.badRequest(w, r, errs)
		return
	}

	emp, err := h.caller(r).UpdateEmployee(r.Context(), clerkID, form.update())
	if err != nil {
		h.postFailure(w, r, err)
		return
	}

	refetched := 0
	if h.Registry != nil {
		refetched = h.Registry.RefetchIdentity(clerkID)
	}
	h.logger().InfoContext(r.Context(), "employee updated",
		slog.String("target_identity_id", clerkID),
		slog.Int("sessions_refetched", refetched),
	)
	h.done(w, r, employeeEditPath(clerkID), emp.DisplayName()+" updated.", http.StatusOK, emp)
}

func employeeEditPath(clerkID string) string {
	return "/hr-dashboard/employees/" + url.PathEscape(clerkID)
}

// SetUserRole changes a user's role and re-resolves every open session of that
// user so their navigation and access follow the new role.
// POST /admin-dashboard/users/{id}/role.
func (h *PortalHandlers) SetUserRole(w http.ResponseWriter, r *http.Request) {
	clerkID := r.PathValue("id")
	if clerkID == "" {
		h.badRequest(w, r, map[string]string{"id": "is required"})
		return
	}
	var form roleForm
	if !decodeForm(w, r, &form) {
		return
	}
	if errs := fieldErrors(form); errs != nil {
		h.badRequest(w, r, errs)
		return
	}

	user, err := h.caller(r).SetUserRole(r.Context(), clerkID, domainauth.Role(form.Role))
	if err != nil {
		h.postFailure(w, r, err)
		return
	}

	refetched := 0
	if h.Registry != nil {
		refetched = h.Registry.RefetchIdentity(clerkID)
	}
	h.logger().InfoContext(r.Context(), "user role changed",
		slog.String("target_identity_id", clerkID),
		slog.String("role", string(user.Role)),
		slog.Int("sessions_refetched", refetched),
	)
	h.done(w, r, "/admin-dashboard/", fmt.Sprintf("%s is now %s.", user.Email, user.Role), http.StatusOK, user)
}
