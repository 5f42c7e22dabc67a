package service

import (
	"context"
	"crypto/rand"
	"encoding/binary"
	"errors"
	"fmt"
	"log/slog"
	"time"

	obserrors "github.com/hredge/portal/internal/observability/errors"
	"github.com/hredge/portal/internal/observability/metrics"
	"github.com/hredge/portal/internal/observability/statsd"
)

// AuditPruneStore deletes audit rows older than a cutoff.
type AuditPruneStore interface {
	Prune(ctx context.Context, cutoff time.Time) (int64, error)
}

// AuditPrunerOptions groups dependencies for AuditPruner.
type AuditPrunerOptions struct {
	Store     AuditPruneStore // Required
	Retention time.Duration   // Required: rows older than this are deleted
	Interval  time.Duration   // Required: time between prune passes
	Logger    *slog.Logger
	Metrics   statsd.Sink
	Now       func() time.Time
}

// AuditPruner keeps the access audit log bounded by deleting rows past retention.
type AuditPruner struct {
	store     AuditPruneStore
	retention time.Duration
	interval  time.Duration
	logger    *slog.Logger
	metrics   statsd.Sink
	now       func() time.Time
}

// NewAuditPruner constructs an AuditPruner.
func NewAuditPruner(opts AuditPrunerOptions) (*AuditPruner, error) {
	if opts.Store == nil {
		return nil, errors.New("audit prune store is required")
	}
	if opts.Retention <= 0 {
		return nil, errors.New("audit retention must be positive")
	}
	if opts.Interval <= 0 {
		return nil, errors.New("audit prune interval must be positive")
	}
	logger := opts.Logger
	if logger == nil {
		logger = slog.Default()
	}
	now := opts.Now
	if now == nil {
		now = time.Now
	}
	return &AuditPruner{
		store:     opts.Store,
		retention: opts.Retention,
		interval:  opts.Interval,
		logger:    logger.With("component", "audit_pruner"),
		metrics:   opts.Metrics,
		now:       now,
	}, nil
}

// Run prunes immediately, then on every interval until ctx is cancelled.
// Returns nil on graceful shutdown.
func (p *AuditPruner) Run(ctx context.Context) error {
	p.logger.InfoContext(ctx, "starting audit pruner", "interval", p.interval, "retention", p.retention)

	// Spread passes when several instances start together.
	p.waitWithJitter(ctx)

	ticker := time.NewTicker(p.interval)
	defer ticker.Stop()

	if _, err := p.PruneOnce(ctx); err != nil {
		p.logPruneError(ctx, err)
	}

	for {
		select {
		case <-ctx.Done():
			p.logger.InfoContext(ctx, "audit pruner stopping", "reason", ctx.Err())
			if errors.Is(ctx.Err(), context.Canceled) {
				return nil
			}
			return ctx.Err()
		case <-ticker.C:
			if _, err := p.PruneOnce(ctx); err != nil {
				p.logPruneError(ctx, err)
			}
		}
	}
}

// PruneOnce deletes rows older than the retention window and reports how many went.
func (p *AuditPruner) PruneOnce(ctx context.Context) (int64, error) {
	start := time.Now()
	cutoff := p.now().Add(-p.retention)
	n, err := p.store.Prune(ctx, cutoff)
	p.emitMetrics(n, err, time.Since(start))
	if err != nil {
		return n, fmt.Errorf("prune audit log: %w", err)
	}
	if n > 0 {
		p.logger.InfoContext(ctx, "pruned audit events", "count", n, "cutoff", cutoff)
	}
	return n, nil
}

// waitWithJitter delays up to 10% of the interval.
func (p *AuditPruner) waitWithJitter(ctx context.Context) {
	maxJitter := int64(p.interval / 10)
	if maxJitter <= 0 {
		return
	}

	var buf [8]byte
	if _, err := rand.Read(buf[:]); err != nil {
		p.logger.WarnContext(ctx, "failed to generate jitter, skipping", "error", err)
		return
	}

	jitterNanos := binary.BigEndian.Uint64(buf[:]) % uint64(maxJitter)
	jitter := time.Duration(int64(jitterNanos)) // #nosec G115 - bounded by maxJitter which is int64

	select {
	case <-time.After(jitter):
	case <-ctx.Done():
	}
}

func (p *AuditPruner) emitMetrics(count int64, err error, elapsed time.Duration) {
	if p.metrics == nil {
		return
	}

	result := metrics.ResultSuccess
	switch {
	case err != nil && !isContextCancellation(err):
		result = metrics.ResultError
	case count == 0:
		result = metrics.ResultNoop
	}
	tags := map[string]string{"result": result}
	if result == metrics.ResultError {
		if class := obserrors.Classify(err); class != "" {
			tags["error_class"] = class
		}
	}

	p.metrics.Count("audit.prune", 1, tags)
	p.metrics.Timing("audit.prune_duration", elapsed, metrics.CloneTags(tags))
	if count > 0 {
		p.metrics.Count("audit.pruned_rows", count, nil)
	}
	if err == nil {
		p.metrics.Gauge("audit.prune_last_success_epoch", float64(p.now().Unix()), nil)
	}
}

func (p *AuditPruner) logPruneError(ctx context.Context, err error) {
	if isContextCancellation(err) {
		p.logger.DebugContext(ctx, "audit prune cancelled by context", "error", err)
		return
	}
	p.logger.ErrorContext(ctx, "audit prune failed", "error", err)
}

func isContextCancellation(err error) bool {
	if err == nil {
		return false
	}
	return errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded)
}
