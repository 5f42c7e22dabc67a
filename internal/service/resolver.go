package service

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	domainauth "github.com/hredge/portal/internal/domain/auth"
	"github.com/hredge/portal/internal/domain/profile"
	"github.com/hredge/portal/internal/observability/metrics"
	"github.com/hredge/portal/internal/observability/statsd"
	"github.com/hredge/portal/internal/ports"
)

// DefaultProfileFetchTimeout bounds a single profile fetch.
const DefaultProfileFetchTimeout = 10 * time.Second

// errEmptyProfile is reported when a fetcher returns neither a profile nor an error.
var errEmptyProfile = errors.New("profile fetch returned no profile")

// ProfileResolverOptions groups dependencies for ProfileResolver.
type ProfileResolverOptions struct {
	Fetcher ports.ProfileFetcher
	// BaseContext parents every fetch; cancel it to abandon in-flight fetches at shutdown.
	BaseContext context.Context
	Timeout     time.Duration
	Logger      *slog.Logger
	Metrics     statsd.Sink
}

// ProfileResolver keeps one authoritative profile matching the observed identity.
//
// It is an explicit state machine over {Idle, Fetching, Resolved, Failed}. Every
// fetch is tagged with (identity, epoch); a completion is applied only when its tag
// still equals the current one, so a slow fetch for a superseded identity can never
// overwrite newer state. The resolver is safe for concurrent use.
type ProfileResolver struct {
	fetcher ports.ProfileFetcher
	baseCtx context.Context
	timeout time.Duration
	logger  *slog.Logger
	metrics statsd.Sink

	mu       sync.Mutex
	identity string
	epoch    uint64
	phase    profile.Phase
	current  *profile.Profile
	err      error
	changed  chan struct{}
	lastSeen time.Time
}

// NewProfileResolver constructs an idle resolver.
func NewProfileResolver(opts ProfileResolverOptions) *ProfileResolver {
	ctx := opts.BaseContext
	if ctx == nil {
		ctx = context.Background()
	}
	timeout := opts.Timeout
	if timeout <= 0 {
		timeout = DefaultProfileFetchTimeout
	}
	logger := opts.Logger
	if logger == nil {
		logger = slog.Default()
	}
	return &ProfileResolver{
		fetcher:  opts.Fetcher,
		baseCtx:  ctx,
		timeout:  timeout,
		logger:   logger,
		metrics:  opts.Metrics,
		phase:    profile.PhaseIdle,
		changed:  make(chan struct{}),
		lastSeen: time.Now(),
	}
}

// Observe feeds the latest session state into the resolver.
//
// Entering an authenticated state for a new identity clears the previous profile
// and issues exactly one fetch. Observing the identity already tracked is a no-op.
// Any unauthenticated or not-yet-loaded state clears everything immediately and
// invalidates whatever fetch is still in flight.
func (r *ProfileResolver) Observe(s domainauth.SessionState) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.lastSeen = time.Now()

	if !s.Authenticated() {
		r.resetLocked()
		return
	}
	if s.IdentityID == r.identity && r.phase != profile.PhaseIdle {
		return
	}
	r.startLocked(s.IdentityID, true)
}

// Refetch re-resolves the current identity. The cached profile stays in place
// until the new result arrives. Returns false when no identity is tracked.
func (r *ProfileResolver) Refetch() bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.identity == "" {
		return false
	}
	r.startLocked(r.identity, false)
	return true
}

// Snapshot returns the current resolution state.
func (r *ProfileResolver) Snapshot() profile.ResolutionState {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.snapshotLocked()
}

// Wait blocks until no fetch is in flight or ctx is done, then returns the state.
func (r *ProfileResolver) Wait(ctx context.Context) (profile.ResolutionState, error) {
	for {
		r.mu.Lock()
		if r.phase != profile.PhaseFetching {
			st := r.snapshotLocked()
			r.mu.Unlock()
			return st, nil
		}
		ch := r.changed
		r.mu.Unlock()

		select {
		case <-ch:
		case <-ctx.Done():
			return r.Snapshot(), ctx.Err()
		}
	}
}

// Identity returns the identity currently tracked, or "".
func (r *ProfileResolver) Identity() string {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.identity
}

// LastSeen returns when the resolver was last observed.
func (r *ProfileResolver) LastSeen() time.Time {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.lastSeen
}

func (r *ProfileResolver) snapshotLocked() profile.ResolutionState {
	return profile.ResolutionState{
		Profile: r.current.Clone(),
		Loading: r.phase == profile.PhaseFetching,
		Err:     r.err,
		Phase:   r.phase,
		Tag:     profile.Tag{IdentityID: r.identity, Epoch: r.epoch},
	}
}

func (r *ProfileResolver) resetLocked() {
	if r.phase == profile.PhaseIdle && r.identity == "" && r.current == nil && r.err == nil {
		return
	}
	r.epoch++
	r.identity = ""
	r.phase = profile.PhaseIdle
	r.current = nil
	r.err = nil
	r.notifyLocked()
}

func (r *ProfileResolver) startLocked(identityID string, clearProfile bool) {
	r.epoch++
	r.identity = identityID
	r.phase = profile.PhaseFetching
	r.err = nil
	if clearProfile {
		r.current = nil
	}
	tag := profile.Tag{IdentityID: identityID, Epoch: r.epoch}
	r.notifyLocked()

	if r.fetcher == nil {
		r.phase = profile.PhaseFailed
		r.err = errors.New("profile resolver has no fetcher")
		r.notifyLocked()
		return
	}
	go r.fetch(tag)
}

func (r *ProfileResolver) fetch(tag profile.Tag) {
	ctx, cancel := context.WithTimeout(r.baseCtx, r.timeout)
	defer cancel()

	start := time.Now()
	p, err := r.fetcher.FetchProfile(ctx, tag.IdentityID)
	if err == nil && p == nil {
		err = errEmptyProfile
	}
	if err == nil && p.IdentityID != "" && p.IdentityID != tag.IdentityID {
		err = fmt.Errorf("%w: want %q, got %q", profile.ErrIdentityMismatch, tag.IdentityID, p.IdentityID)
	}

	applied := r.complete(tag, p, err)

	result := metrics.ResultSuccess
	switch {
	case !applied:
		result = metrics.ResultStale
	case err != nil:
		result = metrics.ResultError
	}
	metrics.EmitProfileFetch(r.metrics, metrics.ProfileFetchMetric{
		Result:   result,
		Duration: time.Since(start),
		Err:      err,
	})
}

// complete applies a fetch result if tag is still authoritative.
func (r *ProfileResolver) complete(tag profile.Tag, p *profile.Profile, err error) bool {
	r.mu.Lock()
	defer r.mu.Unlock()

	if tag.IdentityID != r.identity || tag.Epoch != r.epoch {
		r.logger.Debug("discarding superseded profile fetch",
			"identity_id", tag.IdentityID,
			"epoch", tag.Epoch,
			"current_epoch", r.epoch)
		return false
	}

	if err != nil {
		r.phase = profile.PhaseFailed
		r.err = err
		r.logger.Warn("profile fetch failed", "identity_id", tag.IdentityID, "error", err)
	} else {
		r.phase = profile.PhaseResolved
		r.current = p.Clone()
		r.err = nil
	}
	r.notifyLocked()
	return true
}

func (r *ProfileResolver) notifyLocked() {
	close(r.changed)
	r.changed = make(chan struct{})
}
