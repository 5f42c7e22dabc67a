package backend

import (
	"context"
	"fmt"
	"net/http"
	"net/url"
	"strconv"

	domainauth "github.com/hredge/portal/internal/domain/auth"
	"github.com/hredge/portal/internal/domain/profile"
)

// EmployeeSummary is one row of the employee directory.
type EmployeeSummary struct {
	ClerkID        string `json:"clerk_id"`
	FirstName      string `json:"first_name"`
	LastName       string `json:"last_name"`
	Email          string `json:"email"`
	JobTitle       string `json:"job_title"`
	DepartmentName string `json:"department_name"`
}

// User is an account as the admin endpoints expose it.
type User struct {
	ClerkID   string          `json:"clerk_id"`
	Email     string          `json:"email"`
	FirstName string          `json:"first_name"`
	LastName  string          `json:"last_name"`
	Role      domainauth.Role `json:"role"`
	IsActive  bool            `json:"is_active"`
	CreatedAt string          `json:"created_at,omitempty"`
}

// Department is an organizational unit.
type Department struct {
	ID           int64  `json:"id"`
	Name         string `json:"name"`
	Manager      *int64 `json:"manager"`
	ManagerEmail string `json:"manager_email,omitempty"`
}

// DepartmentInput creates a department.
type DepartmentInput struct {
	Name    string `json:"name"`
	Manager *int64 `json:"manager,omitempty"`
}

// PayRun is a payroll period.
type PayRun struct {
	ID          int64  `json:"id"`
	StartDate   string `json:"start_date"`
	EndDate     string `json:"end_date"`
	PayDate     string `json:"pay_date"`
	Status      string `json:"status"`
	CreatedAt   string `json:"created_at"`
	ProcessedAt string `json:"processed_at,omitempty"`
}

// Pay run statuses.
const (
	PayRunPending    = "Pending"
	PayRunProcessing = "Processing"
	PayRunCompleted  = "Completed"
	PayRunFailed     = "Failed"
)

// Processable reports whether the run can still be processed.
func (p PayRun) Processable() bool { return p.Status == PayRunPending }

// PayRunInput creates a pay run.
type PayRunInput struct {
	StartDate string `json:"start_date"`
	EndDate   string `json:"end_date"`
	PayDate   string `json:"pay_date"`
}

// PayStub is one employee's pay for one run, as HR sees it.
type PayStub struct {
	ID            int64  `json:"id"`
	PayRun        int64  `json:"pay_run"`
	PayRunInfo    string `json:"pay_run_info"`
	Employee      int64  `json:"employee"`
	EmployeeEmail string `json:"employee_email"`
	EmployeeName  string `json:"employee_name"`
	GrossPay      string `json:"gross_pay"`
	Deductions    string `json:"deductions"`
	NetPay        string `json:"net_pay"`
	CreatedAt     string `json:"created_at"`
}

// MyPayStub is the employee's own, reduced view of a pay stub.
type MyPayStub struct {
	ID              int64  `json:"id"`
	PayDate         string `json:"pay_date"`
	PeriodStartDate string `json:"period_start_date"`
	PeriodEndDate   string `json:"period_end_date"`
	GrossPay        string `json:"gross_pay"`
	Deductions      string `json:"deductions"`
	NetPay          string `json:"net_pay"`
}

// EmployeeUpdate is the HR-editable part of an employee record. Nil
// department and dates are sent as null and clear the stored value.
type EmployeeUpdate struct {
	JobTitle            string  `json:"job_title"`
	Department          *int64  `json:"department"`
	HireDate            *string `json:"hire_date"`
	PhoneNumber         string  `json:"phone_number"`
	Address             string  `json:"address"`
	OnboardingStatus    string  `json:"onboarding_status,omitempty"`
	OnboardingStartDate *string `json:"onboarding_start_date"`
}

// OnboardingStatuses lists the onboarding states the backend accepts.
//
//nolint:gochecknoglobals // static read-only lookup
var OnboardingStatuses = []string{"Pending", "Scheduled", "InProgress", "Completed", "Cancelled"}

// HRStats are the HR dashboard headline numbers.
type HRStats struct {
	ActiveEmployees   int `json:"active_employees_count"`
	PendingOnboarding int `json:"pending_onboarding_count"`
	PendingPayRuns    int `json:"pending_payruns_count"`
}

// AdminStats are the admin dashboard headline numbers.
type AdminStats struct {
	TotalUsers  int `json:"total_users_count"`
	ActiveUsers int `json:"active_users_count"`
	Departments int `json:"department_count"`
}

// EmployeeFilter narrows the employee directory.
type EmployeeFilter struct {
	Search     string
	Department string
}

func (f EmployeeFilter) values() url.Values {
	q := url.Values{}
	if f.Search != "" {
		q.Set("search", f.Search)
	}
	if f.Department != "" {
		q.Set("department", f.Department)
	}
	return q
}

// ListEmployees returns the employee directory.
func (k *Caller) ListEmployees(ctx context.Context, f EmployeeFilter) ([]EmployeeSummary, error) {
	var out []EmployeeSummary
	if err := k.get(ctx, "employees", "employees/", f.values(), &out); err != nil {
		return nil, err
	}
	return out, nil
}

// GetEmployee returns one employee's full record.
func (k *Caller) GetEmployee(ctx context.Context, clerkID string) (*profile.Profile, error) {
	var out meResponse
	if err := k.get(ctx, "employee", employeePath(clerkID), nil, &out); err != nil {
		return nil, err
	}
	return out.toProfile()
}

// UpdateEmployee replaces the HR-editable fields of one employee.
func (k *Caller) UpdateEmployee(ctx context.Context, clerkID string, in EmployeeUpdate) (*profile.Profile, error) {
	var out meResponse
	if err := k.send(ctx, http.MethodPut, "employee", employeePath(clerkID), in, &out); err != nil {
		return nil, err
	}
	return out.toProfile()
}

func employeePath(clerkID string) string {
	return "manage/employee/" + url.PathEscape(clerkID) + "/"
}

// ListDepartments returns every department.
func (k *Caller) ListDepartments(ctx context.Context) ([]Department, error) {
	var out []Department
	if err := k.get(ctx, "departments", "departments/", nil, &out); err != nil {
		return nil, err
	}
	return out, nil
}

// CreateDepartment adds a department.
func (k *Caller) CreateDepartment(ctx context.Context, in DepartmentInput) (*Department, error) {
	var out Department
	if err := k.send(ctx, http.MethodPost, "departments", "departments/", in, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

// ListPayRuns returns every pay run.
func (k *Caller) ListPayRuns(ctx context.Context) ([]PayRun, error) {
	var out []PayRun
	if err := k.get(ctx, "payroll.runs", "payroll/runs/", nil, &out); err != nil {
		return nil, err
	}
	return out, nil
}

// CreatePayRun opens a new pay run.
func (k *Caller) CreatePayRun(ctx context.Context, in PayRunInput) (*PayRun, error) {
	var out PayRun
	if err := k.send(ctx, http.MethodPost, "payroll.runs", "payroll/runs/", in, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

// ProcessPayRun asks the backend to generate stubs for a pay run.
func (k *Caller) ProcessPayRun(ctx context.Context, id int64) error {
	path := fmt.Sprintf("payroll/runs/%d/process_payroll/", id)
	return k.send(ctx, http.MethodPost, "payroll.process", path, nil, nil)
}

// ListPayStubs returns every pay stub, optionally for one run.
func (k *Caller) ListPayStubs(ctx context.Context, payRunID int64) ([]PayStub, error) {
	q := url.Values{}
	if payRunID > 0 {
		q.Set("pay_run", strconv.FormatInt(payRunID, 10))
	}
	var out []PayStub
	if err := k.get(ctx, "payroll.stubs", "payroll/stubs-admin/", q, &out); err != nil {
		return nil, err
	}
	return out, nil
}

// MyPayStubs returns the caller's own pay stubs.
func (k *Caller) MyPayStubs(ctx context.Context) ([]MyPayStub, error) {
	var out []MyPayStub
	if err := k.get(ctx, "my.paystubs", "my/paystubs/", nil, &out); err != nil {
		return nil, err
	}
	return out, nil
}

// ListUsers returns every account.
func (k *Caller) ListUsers(ctx context.Context) ([]User, error) {
	var out []User
	if err := k.get(ctx, "admin.users", "admin/users/", nil, &out); err != nil {
		return nil, err
	}
	return out, nil
}

// SetUserRole changes an account's role.
func (k *Caller) SetUserRole(ctx context.Context, clerkID string, role domainauth.Role) (*User, error) {
	if !role.Valid() {
		return nil, fmt.Errorf("invalid role %q", role)
	}
	var out User
	path := "admin/users/" + url.PathEscape(clerkID) + "/"
	if err := k.send(ctx, http.MethodPatch, "admin.users", path, map[string]string{"role": string(role)}, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

// PendingOnboarding lists employees whose onboarding is not complete.
func (k *Caller) PendingOnboarding(ctx context.Context) ([]profile.Profile, error) {
	var rows []meResponse
	if err := k.get(ctx, "hr.onboarding", "hr/onboarding/pending/", nil, &rows); err != nil {
		return nil, err
	}
	out := make([]profile.Profile, 0, len(rows))
	for _, row := range rows {
		p, err := row.toProfile()
		if err != nil {
			return nil, err
		}
		out = append(out, *p)
	}
	return out, nil
}

// HRStats returns the HR dashboard figures.
func (k *Caller) HRStats(ctx context.Context) (*HRStats, error) {
	var out HRStats
	if err := k.get(ctx, "hr.stats", "hr/stats/", nil, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

// AdminStats returns the admin dashboard figures.
func (k *Caller) AdminStats(ctx context.Context) (*AdminStats, error) {
	var out AdminStats
	if err := k.get(ctx, "admin.stats", "admin/stats/", nil, &out); err != nil {
		return nil, err
	}
	return &out, nil
}
