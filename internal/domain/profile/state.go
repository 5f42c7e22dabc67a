package profile

// Phase is the resolver's position in its state machine.
type Phase int

const (
	// PhaseIdle means no identity is being tracked.
	PhaseIdle Phase = iota
	// PhaseFetching means a fetch tagged with the current epoch is in flight.
	PhaseFetching
	// PhaseResolved means the last authoritative fetch succeeded.
	PhaseResolved
	// PhaseFailed means the last authoritative fetch failed.
	PhaseFailed
)

func (p Phase) String() string {
	switch p {
	case PhaseIdle:
		return "idle"
	case PhaseFetching:
		return "fetching"
	case PhaseResolved:
		return "resolved"
	case PhaseFailed:
		return "failed"
	default:
		return "unknown"
	}
}

// Tag binds an asynchronous fetch to the identity and epoch that issued it.
// A completion is authoritative only when its Tag equals the resolver's current Tag.
type Tag struct {
	IdentityID string
	Epoch      uint64
}

// ResolutionState is the read-only view consumers get of a resolver.
// Profile is a private copy; mutating it has no effect on the resolver.
type ResolutionState struct {
	Profile *Profile
	Loading bool
	Err     error
	Phase   Phase
	Tag     Tag
}

// HasProfile reports whether a profile is available.
func (s ResolutionState) HasProfile() bool { return s.Profile != nil }
