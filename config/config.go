package config

import (
	"errors"
	"os"
	"slices"
	"strings"
)

// AppConfig is the full portal configuration, read from the environment with
// github.com/caarlos0/env. Each concern lives in its own file:
//   - auth.go: sign-in and session lifetime
//   - backend.go: HR backend and profile resolution
//   - database.go: Postgres, Redis and audit retention
//   - http.go: listener and guard
//   - services.go: which runners this process starts
type AppConfig struct {
	// IsDev relaxes security headers and allows the dev auth provider.
	// NODE_ENV=development also turns it on.
	IsDev bool `env:"DEV" envDefault:"false"`

	Auth    AuthConfig
	Backend BackendConfig

	Postgres DBConfig    `envPrefix:"DB_"`
	Redis    RedisConfig `envPrefix:"REDIS_"`
	Audit    AuditConfig

	HTTP HTTPConfig

	// Services is a comma-delimited list of ServiceMode values.
	Services string `env:"SERVICES" envDefault:"http"`

	Observability ObservabilityConfig
}

var devNodeEnvs = []string{"development", "dev"}

// Sanitize clamps out-of-range values to their defaults. Call it once after
// parsing and before Validate.
func (c *AppConfig) Sanitize() {
	c.HTTP.Sanitize()
	c.Backend.Sanitize()
	c.Audit.Sanitize()
	c.Observability.Sanitize()

	if !c.IsDev {
		c.IsDev = slices.Contains(devNodeEnvs, strings.ToLower(os.Getenv("NODE_ENV")))
	}
}

// Validate reports every setting Sanitize could not repair.
func (c *AppConfig) Validate() error {
	_, svcErr := c.EnabledServices()
	return errors.Join(
		svcErr,
		c.HTTP.Validate(),
		c.Auth.Validate(c.IsDev),
		c.Backend.Validate(),
	)
}

// EnabledServices parses Services.
func (c *AppConfig) EnabledServices() (map[ServiceMode]bool, error) {
	return ParseServices(c.Services)
}

// Runs reports whether mode is listed in Services. An unparsable list runs nothing.
func (c *AppConfig) Runs(mode ServiceMode) bool {
	enabled, err := c.EnabledServices()
	return err == nil && enabled[mode]
}
