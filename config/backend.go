package config

import (
	"errors"
	"fmt"
	"net/url"
	"strings"
	"time"
)

// BackendConfig points the portal at the HR backend and tunes profile resolution.
type BackendConfig struct {
	// BaseURL is the backend API root, e.g. https://hr-api.example.com/.
	BaseURL string `env:"BACKEND_BASE_URL" envDefault:"http://localhost:8000/"`

	// Timeout bounds every backend call.
	Timeout time.Duration `env:"BACKEND_TIMEOUT" envDefault:"10s"`

	// ProfileFetchTimeout bounds a single profile resolution.
	ProfileFetchTimeout time.Duration `env:"PROFILE_FETCH_TIMEOUT" envDefault:"10s"`

	// ResolverIdleTTL drops per-session resolvers not observed for this long.
	ResolverIdleTTL time.Duration `env:"RESOLVER_IDLE_TTL" envDefault:"30m"`

	// ResolverSweepInterval is how often idle resolvers are swept.
	ResolverSweepInterval time.Duration `env:"RESOLVER_SWEEP_INTERVAL" envDefault:"1m"`
}

// Sanitize applies floors to durations.
func (b *BackendConfig) Sanitize() {
	b.BaseURL = strings.TrimSpace(b.BaseURL)
	if b.Timeout <= 0 {
		b.Timeout = 10 * time.Second
	}
	if b.ProfileFetchTimeout <= 0 {
		b.ProfileFetchTimeout = b.Timeout
	}
	if b.ResolverIdleTTL < time.Minute {
		b.ResolverIdleTTL = time.Minute
	}
	if b.ResolverSweepInterval <= 0 || b.ResolverSweepInterval > b.ResolverIdleTTL {
		b.ResolverSweepInterval = b.ResolverIdleTTL
	}
}

// Validate checks that BaseURL is an absolute http(s) URL.
func (b *BackendConfig) Validate() error {
	if b.BaseURL == "" {
		return errors.New("BACKEND_BASE_URL is required")
	}
	u, err := url.Parse(b.BaseURL)
	if err != nil {
		return fmt.Errorf("parse BACKEND_BASE_URL: %w", err)
	}
	if (u.Scheme != "http" && u.Scheme != "https") || u.Host == "" {
		return fmt.Errorf("BACKEND_BASE_URL must be an absolute http(s) URL, got %q", b.BaseURL)
	}
	return nil
}
