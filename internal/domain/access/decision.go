// Package access derives a per-view access decision from the observed session
// state, the profile resolution state and the roles a view requires.
// Everything here is pure; nothing is stored.
package access

import (
	"errors"
	"slices"
	"strings"

	domainauth "github.com/hredge/portal/internal/domain/auth"
	"github.com/hredge/portal/internal/domain/profile"
)

// Decision is the terminal output of the guard for one navigation target.
type Decision int

const (
	// Pending means authentication or profile resolution is still in progress.
	Pending Decision = iota
	// DeniedUnauthenticated means nobody is signed in; the caller should start sign-in.
	DeniedUnauthenticated
	// DeniedUnauthorized means the signed-in profile may not see the view.
	DeniedUnauthorized
	// Granted means the view may be rendered.
	Granted
	// ProfileError means the profile could not be fetched and no cached copy exists.
	ProfileError
	// Misconfigured means the guard was invoked without a resolver wired in.
	Misconfigured
)

func (d Decision) String() string {
	switch d {
	case Pending:
		return "pending"
	case DeniedUnauthenticated:
		return "denied_unauthenticated"
	case DeniedUnauthorized:
		return "denied_unauthorized"
	case Granted:
		return "granted"
	case ProfileError:
		return "profile_error"
	case Misconfigured:
		return "misconfigured"
	default:
		return "unknown"
	}
}

// Terminal reports whether the decision will not change without a new session or profile event.
func (d Decision) Terminal() bool { return d != Pending }

// Pending reasons, surfaced to the user as "please wait" copy.
const (
	ReasonResolvingAuth    = "resolving authentication"
	ReasonResolvingProfile = "resolving profile"
	ReasonVerifyingRole    = "verifying role"
	ReasonInactive         = "account inactive"
	ReasonRoleMismatch     = "role not permitted"
	ReasonSignInRequired   = "sign-in required"
	ReasonNoResolver       = "profile resolver not configured"
	ReasonProfileFailed    = "profile unavailable"
)

// ErrNoResolver is attached to Misconfigured outcomes.
var ErrNoResolver = errors.New("access: profile resolver not wired")

// Outcome is a decision plus the detail needed to render it.
type Outcome struct {
	Decision Decision
	Reason   string
	Err      error
	Profile  *profile.Profile
}

// RoleSet is the set of roles a view requires. An empty set admits any signed-in profile.
type RoleSet []domainauth.Role

// Any returns the empty role set.
func Any() RoleSet { return nil }

// Require builds a role set from roles, dropping duplicates.
func Require(roles ...domainauth.Role) RoleSet {
	out := make(RoleSet, 0, len(roles))
	for _, r := range roles {
		if !slices.Contains(out, r) {
			out = append(out, r)
		}
	}
	return out
}

// Empty reports whether no role is required.
func (s RoleSet) Empty() bool { return len(s) == 0 }

// Allows reports whether r is in the set.
func (s RoleSet) Allows(r domainauth.Role) bool { return slices.Contains(s, r) }

func (s RoleSet) String() string {
	if s.Empty() {
		return "any"
	}
	parts := make([]string, len(s))
	for i, r := range s {
		parts[i] = string(r)
	}
	return strings.Join(parts, ",")
}

// Decide computes the access decision. The checks run in a fixed priority order
// and the first match wins: pendingness is always resolved before any role check,
// so an absent role is never mistaken for a denial while the profile is loading.
// A nil state means no resolver is reachable from the guard.
func Decide(session domainauth.SessionState, state *profile.ResolutionState, required RoleSet) Outcome {
	if state == nil {
		return Outcome{Decision: Misconfigured, Reason: ReasonNoResolver, Err: ErrNoResolver}
	}
	if !session.Loaded {
		return Outcome{Decision: Pending, Reason: ReasonResolvingAuth}
	}
	if state.Loading {
		return Outcome{Decision: Pending, Reason: ReasonResolvingProfile}
	}
	if state.Err != nil && state.Profile == nil {
		return Outcome{Decision: ProfileError, Reason: ReasonProfileFailed, Err: state.Err}
	}
	if !session.SignedIn {
		return Outcome{Decision: DeniedUnauthenticated, Reason: ReasonSignInRequired}
	}

	p := state.Profile
	if p != nil && !p.IsActive {
		return Outcome{Decision: DeniedUnauthorized, Reason: ReasonInactive, Profile: p}
	}
	if !required.Empty() {
		if p == nil {
			return Outcome{Decision: Pending, Reason: ReasonVerifyingRole}
		}
		if !required.Allows(p.Role) {
			return Outcome{Decision: DeniedUnauthorized, Reason: ReasonRoleMismatch, Profile: p}
		}
	}
	return Outcome{Decision: Granted, Profile: p}
}
