package bootstrap

import (
	"errors"
	"fmt"
	"log/slog"

	"github.com/hredge/portal/config"
	"github.com/hredge/portal/internal/adapters/devauth"
	"github.com/hredge/portal/internal/adapters/oidc"
	"github.com/hredge/portal/internal/ports"
	"github.com/hredge/portal/internal/service"
)

// AuthConfig contains configuration for the auth service.
type AuthConfig struct {
	Auth     config.AuthConfig
	Sessions ports.SessionStore
	Logger   *slog.Logger
}

// AuthBundle is the auth service plus the provider it was built on. The
// provider is shared with per-session token sources for token refresh.
type AuthBundle struct {
	Service  *service.AuthService
	Provider ports.AuthProvider
}

// BuildAuthService creates an auth service for the configured auth mode.
func BuildAuthService(cfg AuthConfig) (AuthBundle, error) {
	if cfg.Sessions == nil {
		return AuthBundle{}, errors.New("auth requires a session store")
	}

	var (
		prov ports.AuthProvider
		err  error
	)
	switch cfg.Auth.Mode {
	case config.AuthModeMock:
		prov, err = buildDevAuthProvider(cfg)
	case config.AuthModeOAuth, "":
		prov, err = buildOAuthProvider(cfg)
	default:
		err = fmt.Errorf("unsupported auth mode %q", cfg.Auth.Mode)
	}
	if err != nil {
		return AuthBundle{}, err
	}

	return AuthBundle{
		Service: service.NewAuthService(service.AuthServiceOptions{
			Provider: prov,
			Sessions: cfg.Sessions,
			Logger:   cfg.Logger,
			MaxAge:   cfg.Auth.SessionMaxAge,
		}),
		Provider: prov,
	}, nil
}

//nolint:ireturn // both providers satisfy the same port.
func buildDevAuthProvider(cfg AuthConfig) (ports.AuthProvider, error) {
	dev := cfg.Auth.DevAuth
	prov, err := devauth.NewProvider(devauth.Config{
		UserID:     dev.UserID,
		Email:      dev.Email,
		FirstName:  dev.FirstName,
		LastName:   dev.LastName,
		SigningKey: []byte(dev.SigningKey),
	})
	if err != nil {
		return nil, fmt.Errorf("create dev auth provider: %w", err)
	}
	if cfg.Logger != nil {
		cfg.Logger.Warn("dev auth enabled; every sign-in is the configured identity", "user_id", dev.UserID)
	}
	return prov, nil
}

//nolint:ireturn // both providers satisfy the same port.
func buildOAuthProvider(cfg AuthConfig) (ports.AuthProvider, error) {
	oauth := cfg.Auth.OAuth
	if oauth.DiscoveryURL == "" || oauth.ClientID == "" || oauth.ClientSecret == "" {
		return nil, errors.New("oauth mode requires discovery URL, client ID and client secret")
	}

	prov, err := oidc.NewProvider(oidc.ProviderConfig{
		ClientID:     oauth.ClientID,
		ClientSecret: oauth.ClientSecret,
		RedirectURL:  oauth.RedirectURL,
		Scope:        oauth.Scope,
		DiscoveryURL: oauth.DiscoveryURL,
		LogoutURL:    oauth.LogoutURL,
	})
	if err != nil {
		return nil, fmt.Errorf("create OIDC provider: %w", err)
	}
	return prov, nil
}
