package bootstrap

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/redis/go-redis/v9"
	"golang.org/x/sync/errgroup"

	"github.com/hredge/portal/config"
	"github.com/hredge/portal/internal/service"
)

const (
	httpDrainTimeout = 10 * time.Second
	// shutdownWaitTimeout bounds how long runners get to return after cancel.
	shutdownWaitTimeout = 15 * time.Second
)

// ServiceOrchestrationConfig contains configuration for service orchestration.
type ServiceOrchestrationConfig struct {
	Config      *config.AppConfig
	Services    ServiceContainer
	DB          *sql.DB
	RedisClient redis.UniversalClient
	Logger      *slog.Logger
}

// runner is one long-lived component of a service mode. run returns nil when
// ctx is canceled and an error only when the component itself failed.
type runner struct {
	name string
	run  func(ctx context.Context) error
}

// planRunners lists the runners for the enabled modes. The resolver sweeper
// rides with http because the registry lives in the HTTP process.
func planRunners(cfg *ServiceOrchestrationConfig, enabled map[config.ServiceMode]bool, logger *slog.Logger) ([]runner, error) {
	var runners []runner

	if enabled[config.ServiceModeHTTP] {
		srv, err := NewHTTPServer(&HTTPServerConfig{
			Config:      cfg.Config,
			Services:    cfg.Services,
			DB:          cfg.DB,
			RedisClient: cfg.RedisClient,
			Logger:      logger,
		})
		if err != nil {
			return nil, err
		}
		runners = append(runners, runner{
			name: "http",
			run:  func(ctx context.Context) error { return serveHTTP(ctx, srv, logger) },
		})

		if reg := cfg.Services.Registry; reg != nil {
			interval := cfg.Config.Backend.ResolverSweepInterval
			runners = append(runners, runner{
				name: "resolver sweeper",
				run: func(ctx context.Context) error {
					reg.Run(ctx, interval)
					return nil
				},
			})
		}
	}

	if enabled[config.ServiceModeAuditPruner] {
		if cfg.Services.AuditRepo == nil {
			return nil, errors.New("audit pruner requires a database")
		}
		pruner, err := service.NewAuditPruner(service.AuditPrunerOptions{
			Store:     cfg.Services.AuditRepo,
			Retention: cfg.Config.Audit.Retention,
			Interval:  cfg.Config.Audit.PruneInterval,
			Logger:    logger,
			Metrics:   cfg.Services.Observability.MetricsSink,
		})
		if err != nil {
			return nil, fmt.Errorf("create audit pruner: %w", err)
		}
		runners = append(runners, runner{name: "audit pruner", run: pruner.Run})
	}

	return runners, nil
}

// RunServicesWithShutdown runs every enabled service mode until SIGINT or
// SIGTERM, or until one of them fails, which stops the others.
func RunServicesWithShutdown(cfg *ServiceOrchestrationConfig) error {
	if cfg == nil || cfg.Config == nil {
		return errors.New("service orchestration config with AppConfig is required")
	}
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}

	enabled, err := cfg.Config.EnabledServices()
	if err != nil {
		return fmt.Errorf("determine enabled services: %w", err)
	}
	runners, err := planRunners(cfg, enabled, logger)
	if err != nil {
		return fmt.Errorf("start services: %w", err)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()
	return runAll(ctx, runners, logger, shutdownWaitTimeout)
}

// runAll runs runners in an errgroup and waits up to grace for them to return
// once the group's context ends.
func runAll(ctx context.Context, runners []runner, logger *slog.Logger, grace time.Duration) error {
	g, gctx := errgroup.WithContext(ctx)
	for _, r := range runners {
		g.Go(func() error {
			logger.InfoContext(gctx, "service started", "service", r.name)
			if err := r.run(gctx); err != nil {
				return fmt.Errorf("%s: %w", r.name, err)
			}
			logger.InfoContext(gctx, "service stopped", "service", r.name)
			return nil
		})
	}

	done := make(chan error, 1)
	go func() { done <- g.Wait() }()

	select {
	case err := <-done:
		return err
	case <-gctx.Done():
		logger.Info("shutting down services", "cause", context.Cause(gctx))
	}

	select {
	case err := <-done:
		return err
	case <-time.After(grace):
		return fmt.Errorf("services did not stop within %s", grace)
	}
}
