package access

import (
	"time"

	domainauth "github.com/hredge/portal/internal/domain/auth"
)

// AuditEvent records one terminal guard decision for a navigation target.
type AuditEvent struct {
	ID         string
	SessionID  string
	IdentityID string
	Role       domainauth.Role
	Method     string
	Path       string
	Decision   Decision
	Reason     string
	Required   RoleSet
	OccurredAt time.Time
}

// Audited reports whether decisions of this kind are written to the audit log.
// Only decisions about a signed-in session are kept. Grants, pending states and
// signed-out visitors are left to metrics; recording a signed-out hit would put
// a database write in front of every sign-in redirect.
func (d Decision) Audited() bool {
	switch d {
	case DeniedUnauthorized, ProfileError, Misconfigured:
		return true
	default:
		return false
	}
}
