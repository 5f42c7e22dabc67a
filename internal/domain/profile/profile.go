// Package profile holds the internally-owned employee profile and the
// resolution state the portal derives from fetching it.
package profile

import (
	"errors"

	domainauth "github.com/hredge/portal/internal/domain/auth"
)

// Salary is the current compensation record, when the backend exposes one.
type Salary struct {
	Amount        string `json:"amount"`
	EffectiveDate string `json:"effective_date"`
}

// Employment carries the employment attributes of a profile.
type Employment struct {
	JobTitle            string `json:"job_title"`
	DepartmentID        *int64 `json:"department_id,omitempty"`
	DepartmentName      string `json:"department_name,omitempty"`
	HireDate            string `json:"hire_date,omitempty"`
	PhoneNumber         string `json:"phone_number,omitempty"`
	Address             string `json:"address,omitempty"`
	OnboardingStatus    string `json:"onboarding_status,omitempty"`
	OnboardingStartDate string `json:"onboarding_start_date,omitempty"`
}

// Profile is the role and employment record for one identity.
// A Profile is never mutated in place; every fetch yields a new value.
type Profile struct {
	IdentityID string          `json:"identity_id"`
	Email      string          `json:"email"`
	FirstName  string          `json:"first_name"`
	LastName   string          `json:"last_name"`
	Role       domainauth.Role `json:"role"`
	IsActive   bool            `json:"is_active"`
	Employment Employment      `json:"employment"`
	Salary     *Salary         `json:"salary,omitempty"`
}

// DisplayName returns the best available human-readable name.
func (p Profile) DisplayName() string {
	switch {
	case p.FirstName != "" && p.LastName != "":
		return p.FirstName + " " + p.LastName
	case p.FirstName != "":
		return p.FirstName
	case p.Email != "":
		return p.Email
	default:
		return "User"
	}
}

// HasAnyRole reports whether the profile's role is in roles.
func (p Profile) HasAnyRole(roles ...domainauth.Role) bool {
	for _, r := range roles {
		if p.Role == r {
			return true
		}
	}
	return false
}

// Clone returns a deep copy so callers can never alias resolver-owned data.
func (p *Profile) Clone() *Profile {
	if p == nil {
		return nil
	}
	out := *p
	if p.Employment.DepartmentID != nil {
		id := *p.Employment.DepartmentID
		out.Employment.DepartmentID = &id
	}
	if p.Salary != nil {
		s := *p.Salary
		out.Salary = &s
	}
	return &out
}

// ErrIdentityMismatch is returned when a fetched profile belongs to another identity.
var ErrIdentityMismatch = errors.New("profile identity mismatch")
