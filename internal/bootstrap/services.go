package bootstrap

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"

	"github.com/redis/go-redis/v9"
	"golang.org/x/sync/singleflight"

	"github.com/hredge/portal/config"
	"github.com/hredge/portal/internal/adapters/backend"
	"github.com/hredge/portal/internal/adapters/postgres"
	redisadapter "github.com/hredge/portal/internal/adapters/redis"
	"github.com/hredge/portal/internal/observability/statsd"
	"github.com/hredge/portal/internal/ports"
	"github.com/hredge/portal/internal/service"
)

// ServiceContainer holds all application services.
type ServiceContainer struct {
	Auth     *service.AuthService
	Provider ports.AuthProvider
	Sessions ports.SessionStore
	Registry *service.ResolverRegistry
	Backend  *backend.Client
	// AuditRepo is nil when neither auditing nor the pruner needs Postgres.
	AuditRepo     *postgres.AuditRepository
	Observability ObservabilityContainer
}

// ObservabilityContainer groups shared observability dependencies.
type ObservabilityContainer struct {
	// MetricsSink is never nil; it is a disabled client when metrics are off.
	MetricsSink   *statsd.Client
	MetricsConfig config.ObservabilityMetricsConfig
}

// ServiceDeps groups dependencies for service initialization.
type ServiceDeps struct {
	Config      *config.AppConfig
	DB          *sql.DB
	RedisClient redis.UniversalClient
	Logger      *slog.Logger
	// BaseContext parents every profile fetch; cancel it to abort in-flight fetches.
	BaseContext context.Context
}

// buildObservability configures the metrics client.
func buildObservability(logger *slog.Logger, cfg config.ObservabilityConfig) ObservabilityContainer {
	obsLogger := logger
	if obsLogger == nil {
		obsLogger = slog.Default()
	}

	client, err := statsd.NewClient(statsd.Config{
		Enabled: cfg.Metrics.IsEnabled(),
		Address: cfg.Metrics.StatsdAddress,
		Prefix:  cfg.Metrics.Prefix,
		Logger:  obsLogger,
	})
	if err != nil {
		obsLogger.Error("failed to initialise statsd client, metrics disabled", "error", err)
		client, _ = statsd.NewClient(statsd.Config{Logger: obsLogger})
	}

	return ObservabilityContainer{
		MetricsSink:   client,
		MetricsConfig: cfg.Metrics,
	}
}

// TokenSources returns the per-session token source factory used by the HTTP
// session middleware. Every source it builds shares one refresh group.
func (c ServiceContainer) TokenSources(cfg config.AuthConfig, logger *slog.Logger) func(string) ports.TokenSource {
	refreshes := new(singleflight.Group)
	return func(sessionID string) ports.TokenSource {
		return service.NewSessionTokenSource(service.SessionTokenSourceOptions{
			SessionID:       sessionID,
			Sessions:        c.Sessions,
			Provider:        c.Provider,
			Logger:          logger,
			DefaultTemplate: cfg.TokenTemplate,
			Refreshes:       refreshes,
		})
	}
}

// NewServices wires the portal's services. Nothing here starts goroutines.
func NewServices(deps *ServiceDeps) (ServiceContainer, error) {
	if deps == nil || deps.Config == nil {
		return ServiceContainer{}, errors.New("service deps with config are required")
	}
	if deps.RedisClient == nil {
		return ServiceContainer{}, errors.New("redis client is required for sessions")
	}
	cfg := deps.Config
	logger := deps.Logger
	if logger == nil {
		logger = slog.Default()
	}
	baseCtx := deps.BaseContext
	if baseCtx == nil {
		baseCtx = context.Background()
	}

	obs := buildObservability(logger, cfg.Observability)

	sealer, err := CreateSessionSealer(cfg.Auth.SessionEncryptionKey, logger)
	if err != nil {
		return ServiceContainer{}, err
	}
	sessions := redisadapter.NewSessionStore(redisadapter.SessionStoreOptions{
		Client: deps.RedisClient,
		Prefix: cfg.Redis.SessionPrefix,
		Sealer: sealer,
	})

	authBundle, err := BuildAuthService(AuthConfig{Auth: cfg.Auth, Sessions: sessions, Logger: logger})
	if err != nil {
		return ServiceContainer{}, fmt.Errorf("build auth: %w", err)
	}

	client, err := backend.New(backend.Options{
		BaseURL:       cfg.Backend.BaseURL,
		Timeout:       cfg.Backend.Timeout,
		TokenTemplate: cfg.Auth.TokenTemplate,
		Logger:        logger,
		Metrics:       obs.MetricsSink,
	})
	if err != nil {
		return ServiceContainer{}, fmt.Errorf("build backend client: %w", err)
	}

	registry := service.NewResolverRegistry(service.ResolverRegistryOptions{
		NewFetcher: func(ts ports.TokenSource) ports.ProfileFetcher {
			return client.As(ts)
		},
		BaseContext:  baseCtx,
		FetchTimeout: cfg.Backend.ProfileFetchTimeout,
		IdleTTL:      cfg.Backend.ResolverIdleTTL,
		Logger:       logger,
		Metrics:      obs.MetricsSink,
	})

	var auditRepo *postgres.AuditRepository
	if deps.DB != nil {
		auditRepo = postgres.NewAuditRepository(deps.DB)
	}

	return ServiceContainer{
		Auth:          authBundle.Service,
		Provider:      authBundle.Provider,
		Sessions:      sessions,
		Registry:      registry,
		Backend:       client,
		AuditRepo:     auditRepo,
		Observability: obs,
	}, nil
}
