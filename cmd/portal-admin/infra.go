package main

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/hredge/portal/config"
	"github.com/hredge/portal/internal/bootstrap"
)

var errRedisNotConfigured = errors.New("redis not configured: set REDIS_URI, REDIS_SENTINEL_NODES or REDIS_CLUSTER_NODES")

// withDatabase opens the audit database for one command. SIGINT and SIGTERM
// cancel the context handed to fn.
func withDatabase(cmdCtx *commandContext, timeout time.Duration, fn func(context.Context, *sql.DB) error) error {
	ctx, stop := signal.NotifyContext(cmdCtx.Ctx, os.Interrupt, syscall.SIGTERM)
	defer stop()
	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	db, err := bootstrap.ConnectDB(ctx, bootstrap.DatabaseConfig{
		DBConfig: cmdCtx.Config.Postgres,
		Logger:   cmdCtx.Logger,
	})
	if err != nil {
		return fmt.Errorf("connect db: %w", err)
	}
	defer func() {
		if cerr := db.Close(); cerr != nil {
			cmdCtx.Logger.Warn("db close failed", "error", cerr)
		}
	}()
	return fn(ctx, db)
}

// withRedis is withDatabase for the session store.
func withRedis(cmdCtx *commandContext, fn func(context.Context, redis.UniversalClient) error) error {
	cfg := cmdCtx.Config.Redis
	if !hasRedisConfig(&cfg) {
		return errRedisNotConfigured
	}
	client, err := bootstrap.ConnectRedis(cmdCtx.Ctx, bootstrap.DatabaseConfig{RedisConfig: cfg, Logger: cmdCtx.Logger})
	if err != nil {
		return fmt.Errorf("connect redis: %w", err)
	}
	defer func() {
		if cerr := client.Close(); cerr != nil {
			cmdCtx.Logger.Warn("redis close failed", "error", cerr)
		}
	}()
	return fn(cmdCtx.Ctx, client)
}

func hasRedisConfig(cfg *config.RedisConfig) bool {
	switch {
	case cfg == nil:
		return false
	case cfg.UseCluster:
		return len(cfg.ClusterNodes) > 0 || cfg.URI != ""
	case cfg.UseSentinel:
		return len(cfg.SentinelNodes) > 0
	}
	return cfg.URI != ""
}
