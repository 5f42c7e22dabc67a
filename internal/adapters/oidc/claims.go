package oidc

import domainauth "github.com/hredge/portal/internal/domain/auth"

// claimSet reads both standard OIDC claims and the Active Directory / ADFS
// spellings some corporate IdPs emit instead. Standard names win.
type claimSet struct {
	Subject    string `json:"sub"`
	Email      string `json:"email"`
	GivenName  string `json:"given_name"`
	FamilyName string `json:"family_name"`

	SAMAccountName string `json:"samaccountname"`
	Mail           string `json:"mail"`
	FirstName      string `json:"firstname"`
	LastName       string `json:"lastname"`
}

func (c claimSet) identity() domainauth.Identity {
	return domainauth.Identity{
		ID:        firstNonEmpty(c.Subject, c.SAMAccountName),
		Email:     firstNonEmpty(c.Email, c.Mail),
		FirstName: firstNonEmpty(c.GivenName, c.FirstName),
		LastName:  firstNonEmpty(c.FamilyName, c.LastName),
	}
}

// complete reports whether userinfo has nothing left to add.
func (c claimSet) complete() bool {
	id := c.identity()
	return id.ID != "" && id.Email != ""
}

// merge fills c's empty claims from other.
func (c claimSet) merge(other claimSet) claimSet {
	fill := func(dst *string, src string) {
		if *dst == "" {
			*dst = src
		}
	}
	fill(&c.Subject, other.Subject)
	fill(&c.Email, other.Email)
	fill(&c.GivenName, other.GivenName)
	fill(&c.FamilyName, other.FamilyName)
	fill(&c.SAMAccountName, other.SAMAccountName)
	fill(&c.Mail, other.Mail)
	fill(&c.FirstName, other.FirstName)
	fill(&c.LastName, other.LastName)
	return c
}

func firstNonEmpty(vals ...string) string {
	for _, v := range vals {
		if v != "" {
			return v
		}
	}
	return ""
}
