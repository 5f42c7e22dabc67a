package backend

import (
	"context"
	"fmt"

	domainauth "github.com/hredge/portal/internal/domain/auth"
	"github.com/hredge/portal/internal/domain/profile"
)

// meResponse is the wire shape of GET /me/.
type meResponse struct {
	User struct {
		ClerkID   string `json:"clerk_id"`
		Email     string `json:"email"`
		FirstName string `json:"first_name"`
		LastName  string `json:"last_name"`
		Role      string `json:"role"`
		IsActive  bool   `json:"is_active"`
	} `json:"user"`
	Department          *int64  `json:"department"`
	DepartmentName      string  `json:"department_name"`
	JobTitle            string  `json:"job_title"`
	HireDate            string  `json:"hire_date"`
	PhoneNumber         string  `json:"phone_number"`
	Address             string  `json:"address"`
	OnboardingStatus    string  `json:"onboarding_status"`
	OnboardingStartDate string  `json:"onboarding_start_date"`
	CurrentSalary       *salary `json:"current_salary"`
}

type salary struct {
	Amount        string `json:"amount"`
	EffectiveDate string `json:"effective_date"`
}

func (m meResponse) toProfile() (*profile.Profile, error) {
	role, ok := domainauth.ParseRole(m.User.Role)
	if !ok {
		return nil, fmt.Errorf("unknown role %q", m.User.Role)
	}
	p := &profile.Profile{
		IdentityID: m.User.ClerkID,
		Email:      m.User.Email,
		FirstName:  m.User.FirstName,
		LastName:   m.User.LastName,
		Role:       role,
		IsActive:   m.User.IsActive,
		Employment: profile.Employment{
			JobTitle:            m.JobTitle,
			DepartmentID:        m.Department,
			DepartmentName:      m.DepartmentName,
			HireDate:            m.HireDate,
			PhoneNumber:         m.PhoneNumber,
			Address:             m.Address,
			OnboardingStatus:    m.OnboardingStatus,
			OnboardingStartDate: m.OnboardingStartDate,
		},
	}
	if m.CurrentSalary != nil {
		p.Salary = &profile.Salary{Amount: m.CurrentSalary.Amount, EffectiveDate: m.CurrentSalary.EffectiveDate}
	}
	return p, nil
}

// FetchProfile loads the caller's own profile. The backend derives the identity
// from the bearer token; identityID is only used to label errors.
func (k *Caller) FetchProfile(ctx context.Context, identityID string) (*profile.Profile, error) {
	var me meResponse
	if err := k.get(ctx, "me", "me/", nil, &me); err != nil {
		return nil, fmt.Errorf("fetch profile for %s: %w", identityID, err)
	}
	p, err := me.toProfile()
	if err != nil {
		return nil, fmt.Errorf("fetch profile for %s: %w", identityID, err)
	}
	return p, nil
}
