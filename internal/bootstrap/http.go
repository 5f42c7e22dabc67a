package bootstrap

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/hredge/portal/config"
	httpx "github.com/hredge/portal/internal/http"
	"github.com/hredge/portal/internal/ports"
)

// HTTPServerConfig contains configuration for HTTP server.
type HTTPServerConfig struct {
	Config      *config.AppConfig
	Services    ServiceContainer
	DB          *sql.DB
	RedisClient redis.UniversalClient
	Logger      *slog.Logger
}

// NewHTTPServer builds the portal server without starting it.
func NewHTTPServer(cfg *HTTPServerConfig) (*http.Server, error) {
	if cfg == nil || cfg.Config == nil {
		return nil, errors.New("http server config is required")
	}
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}
	handler, err := BuildHTTPHandler(cfg.Config, cfg.Services, HTTPHandlerDeps{
		DB:          cfg.DB,
		RedisClient: cfg.RedisClient,
		Logger:      logger,
	})
	if err != nil {
		return nil, fmt.Errorf("build router: %w", err)
	}

	addr := cfg.Config.HTTP.Addr
	if addr == "" {
		addr = ":8080"
	}
	return &http.Server{
		Addr:              addr,
		Handler:           handler,
		ReadHeaderTimeout: 10 * time.Second,
		ReadTimeout:       30 * time.Second,
		WriteTimeout:      30 * time.Second,
		IdleTimeout:       120 * time.Second,
		ErrorLog:          slog.NewLogLogger(logger.Handler(), slog.LevelWarn),
	}, nil
}

// serveHTTP runs srv until ctx ends, then drains in-flight requests for up to
// httpDrainTimeout. A listen failure is returned immediately.
func serveHTTP(ctx context.Context, srv *http.Server, logger *slog.Logger) error {
	listenErr := make(chan error, 1)
	go func() {
		logger.InfoContext(ctx, "starting HTTP server", "addr", srv.Addr)
		listenErr <- srv.ListenAndServe()
	}()

	select {
	case err := <-listenErr:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return fmt.Errorf("listen on %s: %w", srv.Addr, err)
	case <-ctx.Done():
	}

	logger.Info("draining HTTP server", "timeout", httpDrainTimeout)
	drainCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), httpDrainTimeout)
	defer cancel()
	if err := srv.Shutdown(drainCtx); err != nil {
		return fmt.Errorf("http shutdown: %w", err)
	}
	logger.Info("HTTP server stopped")
	return nil
}

// HTTPHandlerDeps are the infrastructure handles probed by /readyz.
type HTTPHandlerDeps struct {
	DB          *sql.DB
	RedisClient redis.UniversalClient
	Logger      *slog.Logger
}

// BuildHTTPHandler assembles the portal router from the service container.
func BuildHTTPHandler(appCfg *config.AppConfig, svcs ServiceContainer, deps HTTPHandlerDeps) (http.Handler, error) {
	var audit ports.AuditRecorder
	if appCfg.Audit.Enabled && svcs.AuditRepo != nil {
		audit = svcs.AuditRepo
	}

	authLimit := appCfg.HTTP.AuthRateLimit
	if authLimit == 0 {
		authLimit = -1 // the router treats zero as "use default"
	}

	pendingWait := appCfg.HTTP.PendingWait
	if pendingWait == 0 {
		pendingWait = -1
	}

	var auth httpx.AuthServiceInterface
	if svcs.Auth != nil {
		auth = svcs.Auth
	}

	return httpx.NewRouter(httpx.RouterServices{
		Auth:          auth,
		Registry:      svcs.Registry,
		Backend:       svcs.Backend,
		Tokens:        svcs.TokenSources(appCfg.Auth, deps.Logger),
		Audit:         audit,
		Metrics:       svcs.Observability.MetricsSink,
		Readiness:     readinessChecks(deps),
		CookieDomain:  appCfg.HTTP.CookieDomain,
		PendingWait:   pendingWait,
		AuthRateLimit: authLimit,
		Security: httpx.SecurityConfig{
			IsDevelopment: appCfg.IsDev,
			AllowedHosts:  appCfg.HTTP.AllowedHosts,
		},
		Logger: deps.Logger,
	})
}

func readinessChecks(deps HTTPHandlerDeps) map[string]httpx.ReadinessCheck {
	checks := make(map[string]httpx.ReadinessCheck, 2)
	if deps.RedisClient != nil {
		checks["redis"] = func(ctx context.Context) error {
			return deps.RedisClient.Ping(ctx).Err()
		}
	}
	if deps.DB != nil {
		checks["postgres"] = deps.DB.PingContext
	}
	return checks
}
