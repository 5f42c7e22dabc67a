package service

import (
	"context"
	"log/slog"
	"sync"
	"time"

	domainauth "github.com/hredge/portal/internal/domain/auth"
	"github.com/hredge/portal/internal/observability/statsd"
	"github.com/hredge/portal/internal/ports"
)

// DefaultResolverIdleTTL is how long an unobserved resolver is kept.
const DefaultResolverIdleTTL = 30 * time.Minute

// FetcherFactory builds a profile fetcher that authenticates as ts.
type FetcherFactory func(ts ports.TokenSource) ports.ProfileFetcher

// ResolverRegistryOptions groups dependencies for ResolverRegistry.
type ResolverRegistryOptions struct {
	NewFetcher   FetcherFactory
	BaseContext  context.Context
	FetchTimeout time.Duration
	IdleTTL      time.Duration
	Logger       *slog.Logger
	Metrics      statsd.Sink
}

// ResolverRegistry owns one ProfileResolver per browser session.
//
// It is constructed once at startup and handed to the guard and handlers
// explicitly. Each resolver fetches with its own session's TokenSource; two
// sessions of one identity never share a backend call or its result.
type ResolverRegistry struct {
	newFetcher FetcherFactory
	baseCtx    context.Context
	timeout    time.Duration
	idleTTL    time.Duration
	logger     *slog.Logger
	metrics    statsd.Sink

	mu        sync.Mutex
	resolvers map[string]*ProfileResolver
}

// NewResolverRegistry constructs a registry.
func NewResolverRegistry(opts ResolverRegistryOptions) *ResolverRegistry {
	ctx := opts.BaseContext
	if ctx == nil {
		ctx = context.Background()
	}
	idle := opts.IdleTTL
	if idle <= 0 {
		idle = DefaultResolverIdleTTL
	}
	logger := opts.Logger
	if logger == nil {
		logger = slog.Default()
	}
	return &ResolverRegistry{
		newFetcher: opts.NewFetcher,
		baseCtx:    ctx,
		timeout:    opts.FetchTimeout,
		idleTTL:    idle,
		logger:     logger,
		metrics:    opts.Metrics,
		resolvers:  make(map[string]*ProfileResolver),
	}
}

// Observe routes state into the session's resolver, creating it on first sight
// of an authenticated state, and returns the resolver. It returns nil for
// sessions that have no resolver and are not authenticated.
func (r *ResolverRegistry) Observe(sessionID string, ts ports.TokenSource, state domainauth.SessionState) *ProfileResolver {
	if sessionID == "" {
		return nil
	}

	r.mu.Lock()
	res, ok := r.resolvers[sessionID]
	if !ok {
		if !state.Authenticated() {
			r.mu.Unlock()
			return nil
		}
		res = r.newResolver(ts)
		r.resolvers[sessionID] = res
	}
	r.mu.Unlock()

	res.Observe(state)
	return res
}

// Lookup returns the resolver for sessionID without observing anything.
func (r *ResolverRegistry) Lookup(sessionID string) (*ProfileResolver, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	res, ok := r.resolvers[sessionID]
	return res, ok
}

// Drop clears and forgets the session's resolver; any in-flight fetch is discarded.
func (r *ResolverRegistry) Drop(sessionID string) {
	r.mu.Lock()
	res, ok := r.resolvers[sessionID]
	delete(r.resolvers, sessionID)
	r.mu.Unlock()

	if ok {
		res.Observe(domainauth.SignedOut())
	}
}

// RefetchIdentity re-resolves every session currently showing identityID and
// returns how many were refetched. Used after server-side profile changes.
func (r *ResolverRegistry) RefetchIdentity(identityID string) int {
	if identityID == "" {
		return 0
	}
	r.mu.Lock()
	var targets []*ProfileResolver
	for _, res := range r.resolvers {
		if res.Identity() == identityID {
			targets = append(targets, res)
		}
	}
	r.mu.Unlock()

	n := 0
	for _, res := range targets {
		if res.Refetch() {
			n++
		}
	}
	return n
}

// Len reports how many resolvers are live.
func (r *ResolverRegistry) Len() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.resolvers)
}

// Sweep evicts resolvers not observed since now minus the idle TTL.
func (r *ResolverRegistry) Sweep(now time.Time) int {
	cutoff := now.Add(-r.idleTTL)

	r.mu.Lock()
	var evicted []*ProfileResolver
	for id, res := range r.resolvers {
		if res.LastSeen().Before(cutoff) {
			evicted = append(evicted, res)
			delete(r.resolvers, id)
		}
	}
	r.mu.Unlock()

	for _, res := range evicted {
		res.Observe(domainauth.SignedOut())
	}
	if len(evicted) > 0 {
		r.logger.Debug("evicted idle profile resolvers", "count", len(evicted))
	}
	if r.metrics != nil {
		r.metrics.Gauge("profile.resolvers", float64(r.Len()), nil)
	}
	return len(evicted)
}

// Run sweeps idle resolvers on interval until ctx is done.
func (r *ResolverRegistry) Run(ctx context.Context, interval time.Duration) {
	if interval <= 0 {
		interval = time.Minute
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case now := <-ticker.C:
			r.Sweep(now)
		}
	}
}

func (r *ResolverRegistry) newResolver(ts ports.TokenSource) *ProfileResolver {
	var fetcher ports.ProfileFetcher
	if r.newFetcher != nil {
		fetcher = r.newFetcher(ts)
	}
	return NewProfileResolver(ProfileResolverOptions{
		Fetcher:     fetcher,
		BaseContext: r.baseCtx,
		Timeout:     r.timeout,
		Logger:      r.logger,
		Metrics:     r.metrics,
	})
}
