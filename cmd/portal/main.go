// Command portal serves the HR portal and, when configured, prunes the access audit log.
package main

import (
	"context"
	"database/sql"
	"fmt"
	"log/slog"
	"os"

	"github.com/redis/go-redis/v9"

	"github.com/hredge/portal/config"
	"github.com/hredge/portal/internal/bootstrap"
)

func main() {
	logger := bootstrap.InitLogger()
	if err := run(context.Background(), logger); err != nil {
		logger.Error("portal exited", "error", err)
		os.Exit(1) //nolint:forbidigo // non-zero status tells the supervisor to restart us
	}
}

// teardown runs release funcs in reverse registration order.
type teardown struct {
	logger *slog.Logger
	steps  []func()
}

func (t *teardown) add(what string, closeFn func() error) {
	t.steps = append(t.steps, func() {
		if err := closeFn(); err != nil {
			t.logger.Warn("release failed", "resource", what, "error", err)
		}
	})
}

func (t *teardown) run() {
	for i := len(t.steps) - 1; i >= 0; i-- {
		t.steps[i]()
	}
}

func run(ctx context.Context, logger *slog.Logger) error {
	cfg, err := bootstrap.LoadConfig()
	if err != nil {
		return err
	}
	if err = bootstrap.ValidateServiceConfig(&cfg); err != nil {
		return err
	}
	announce(ctx, logger, &cfg)

	td := &teardown{logger: logger}
	defer td.run()

	rdb, db, err := connect(ctx, &cfg, logger, td)
	if err != nil {
		return err
	}

	// Profile fetches may outlive the request that started them, never the process.
	baseCtx, cancel := context.WithCancel(ctx)
	defer cancel()

	services, err := bootstrap.NewServices(&bootstrap.ServiceDeps{
		Config:      &cfg,
		DB:          db,
		RedisClient: rdb,
		Logger:      logger,
		BaseContext: baseCtx,
	})
	if err != nil {
		return fmt.Errorf("build services: %w", err)
	}
	td.add("metrics", services.Observability.MetricsSink.Close)

	return bootstrap.RunServicesWithShutdown(&bootstrap.ServiceOrchestrationConfig{
		Config:      &cfg,
		Services:    services,
		DB:          db,
		RedisClient: rdb,
		Logger:      logger,
	})
}

func announce(ctx context.Context, logger *slog.Logger, cfg *config.AppConfig) {
	logger.InfoContext(ctx, "starting portal",
		"auth_mode", string(cfg.Auth.Mode),
		"backend_base_url", cfg.Backend.BaseURL,
		"http_addr", cfg.HTTP.Addr,
		"audit_enabled", cfg.Audit.Enabled,
		"enabled_services", bootstrap.GetEnabledServices(cfg))
}

// connect opens Redis and, if some enabled component writes audit events,
// Postgres with migrations applied. db is nil otherwise. Every opened handle
// is registered with td.
//
//nolint:ireturn // UniversalClient keeps sentinel and cluster deployments possible.
func connect(ctx context.Context, cfg *config.AppConfig, logger *slog.Logger, td *teardown) (redis.UniversalClient, *sql.DB, error) {
	conn := bootstrap.DatabaseConfig{DBConfig: cfg.Postgres, RedisConfig: cfg.Redis, Logger: logger}

	rdb, err := bootstrap.ConnectRedis(ctx, conn)
	if err != nil {
		return nil, nil, fmt.Errorf("connect redis: %w", err)
	}
	td.add("redis", rdb.Close)

	if !bootstrap.NeedsDatabase(cfg) {
		logger.InfoContext(ctx, "postgres not needed by enabled components")
		return rdb, nil, nil
	}
	db, err := bootstrap.ConnectDB(ctx, conn)
	if err != nil {
		return nil, nil, fmt.Errorf("connect db: %w", err)
	}
	td.add("postgres", db.Close)

	if !cfg.Postgres.RunMigrationsOnStart {
		logger.InfoContext(ctx, "startup migrations disabled")
		return rdb, db, nil
	}
	if err := bootstrap.RunMigrations(ctx, db, logger); err != nil {
		return nil, nil, err
	}
	return rdb, db, nil
}
