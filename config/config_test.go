package config

import (
	"reflect"
	"testing"
	"time"

	env "github.com/caarlos0/env/v11"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseServices(t *testing.T) {
	tests := []struct {
		name        string
		input       string
		expected    map[ServiceMode]bool
		expectError bool
	}{
		{
			name:     "single service - http",
			input:    "http",
			expected: map[ServiceMode]bool{ServiceModeHTTP: true},
		},
		{
			name:     "both services with spaces",
			input:    " http , audit-pruner ",
			expected: map[ServiceMode]bool{ServiceModeHTTP: true, ServiceModeAuditPruner: true},
		},
		{
			name:     "duplicate services",
			input:    "http,http",
			expected: map[ServiceMode]bool{ServiceModeHTTP: true},
		},
		{
			name:        "empty string",
			input:       "",
			expectError: true,
		},
		{
			name:        "only commas",
			input:       ",,",
			expectError: true,
		},
		{
			name:        "unknown service",
			input:       "http,scheduler",
			expectError: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := ParseServices(tt.input)
			if tt.expectError {
				if err == nil {
					t.Fatalf("ParseServices(%q) expected error, got %v", tt.input, got)
				}
				return
			}
			if err != nil {
				t.Fatalf("ParseServices(%q) unexpected error: %v", tt.input, err)
			}
			if !reflect.DeepEqual(got, tt.expected) {
				t.Fatalf("ParseServices(%q) = %v, want %v", tt.input, got, tt.expected)
			}
		})
	}
}

func TestConfig_ServiceEnabledMethods(t *testing.T) {
	cfg := AppConfig{Services: "audit-pruner"}
	assert.False(t, cfg.Runs(ServiceModeHTTP))
	assert.True(t, cfg.Runs(ServiceModeAuditPruner))

	cfg.Services = "bogus"
	assert.False(t, cfg.Runs(ServiceModeHTTP))
	assert.False(t, cfg.Runs(ServiceModeAuditPruner))
}

func TestValidServiceModes(t *testing.T) {
	for _, mode := range ValidServiceModes() {
		_, err := ParseServices(string(mode))
		assert.NoError(t, err, mode)
	}
}

func TestAppConfig_ParseEnv(t *testing.T) {
	t.Setenv("AUTH_MODE", "OAuth")
	t.Setenv("OAUTH_CLIENT_ID", "portal-client")
	t.Setenv("OAUTH_CLIENT_SECRET", "super-secret")
	t.Setenv("OAUTH_REDIRECT_URL", "https://portal.example.com/auth/callback")
	t.Setenv("OAUTH_DISCOVERY_URL", "https://login.example.com/.well-known/openid-configuration")
	t.Setenv("AUTH_TOKEN_TEMPLATE", "access_token")
	t.Setenv("BACKEND_BASE_URL", "https://hr-api.example.com/api/")
	t.Setenv("RESOLVER_IDLE_TTL", "45m")
	t.Setenv("GUARD_PENDING_WAIT", "1500ms")
	t.Setenv("HTTP_ALLOWED_HOSTS", "portal.example.com,hr.example.com")
	t.Setenv("AUDIT_ENABLED", "false")

	var cfg AppConfig
	require.NoError(t, env.Parse(&cfg))

	assert.Equal(t, AuthConfig{
		Mode: AuthModeOAuth,
		OAuth: OAuthConfig{
			ClientID:     "portal-client",
			ClientSecret: "super-secret",
			RedirectURL:  "https://portal.example.com/auth/callback",
			Scope:        "openid profile email offline_access",
			DiscoveryURL: "https://login.example.com/.well-known/openid-configuration",
		},
		DevAuth: DevAuthConfig{
			UserID:    "dev-user",
			Email:     "dev@example.com",
			FirstName: "Dev",
			LastName:  "User",
		},
		TokenTemplate: "access_token",
		SessionMaxAge: 12 * time.Hour,
	}, cfg.Auth)
	assert.Equal(t, "https://hr-api.example.com/api/", cfg.Backend.BaseURL)
	assert.Equal(t, 45*time.Minute, cfg.Backend.ResolverIdleTTL)
	assert.Equal(t, 1500*time.Millisecond, cfg.HTTP.PendingWait)
	assert.Equal(t, []string{"portal.example.com", "hr.example.com"}, cfg.HTTP.AllowedHosts)
	assert.False(t, cfg.Audit.Enabled)
	assert.Equal(t, "http", cfg.Services)
	assert.Equal(t, "portal:session:", cfg.Redis.SessionPrefix)
}

func TestAppConfig_InvalidAuthMode(t *testing.T) {
	t.Setenv("AUTH_MODE", "saml")
	var cfg AppConfig
	require.Error(t, env.Parse(&cfg))
}

func TestAppConfig_DetectDevModeFromNodeEnv(t *testing.T) {
	t.Setenv("NODE_ENV", "development")
	cfg := AppConfig{}
	cfg.Sanitize()
	assert.True(t, cfg.IsDev)
}

func TestAppConfig_Validate(t *testing.T) {
	valid := func() AppConfig {
		return AppConfig{
			Services: "http",
			Auth: AuthConfig{
				Mode:          AuthModeOAuth,
				TokenTemplate: "id_token",
				SessionMaxAge: 8 * time.Hour,
				OAuth:         OAuthConfig{ClientID: "c", ClientSecret: "s", DiscoveryURL: "https://login.example.com"},
			},
			Backend: BackendConfig{BaseURL: "https://hr-api.example.com/"},
			HTTP:    HTTPConfig{BaseURL: "https://portal.example.com"},
		}
	}

	tests := []struct {
		name    string
		mutate  func(*AppConfig)
		wantErr string
	}{
		{name: "valid", mutate: func(*AppConfig) {}},
		{
			name:    "missing oauth settings",
			mutate:  func(c *AppConfig) { c.Auth.OAuth = OAuthConfig{} },
			wantErr: "OAUTH_CLIENT_ID, OAUTH_CLIENT_SECRET, OAUTH_DISCOVERY_URL",
		},
		{
			name:    "session max age too short",
			mutate:  func(c *AppConfig) { c.Auth.SessionMaxAge = time.Minute },
			wantErr: "SESSION_MAX_AGE",
		},
		{
			name: "mock auth outside dev",
			mutate: func(c *AppConfig) {
				c.Auth.Mode = AuthModeMock
				c.Auth.DevAuth.SigningKey = "0123456789abcdef0123456789abcdef"
			},
			wantErr: "requires DEV=true",
		},
		{
			name: "mock auth short key",
			mutate: func(c *AppConfig) {
				c.IsDev = true
				c.Auth.Mode = AuthModeMock
				c.Auth.DevAuth.SigningKey = "short"
			},
			wantErr: "at least 32 bytes",
		},
		{
			name:    "bad token template",
			mutate:  func(c *AppConfig) { c.Auth.TokenTemplate = "cookie" },
			wantErr: "AUTH_TOKEN_TEMPLATE",
		},
		{
			name:    "relative backend url",
			mutate:  func(c *AppConfig) { c.Backend.BaseURL = "/api/" },
			wantErr: "absolute http(s) URL",
		},
		{
			name:    "unknown service",
			mutate:  func(c *AppConfig) { c.Services = "http,reaper" },
			wantErr: "invalid service name",
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := valid()
			tt.mutate(&cfg)
			err := cfg.Validate()
			if tt.wantErr == "" {
				require.NoError(t, err)
				return
			}
			require.ErrorContains(t, err, tt.wantErr)
		})
	}
}

func TestHTTPConfig_CookieDomain(t *testing.T) {
	tests := []struct {
		domain  string
		baseURL string
		wantErr bool
	}{
		{domain: "", baseURL: "http://localhost:8080"},
		{domain: "example.com", baseURL: "https://portal.example.com"},
		{domain: ".Example.com ", baseURL: "https://portal.example.com"},
		{domain: "portal.example.com", baseURL: "https://portal.example.com"},
		{domain: "com", baseURL: "https://portal.example.com", wantErr: true},
		{domain: "co.uk", baseURL: "https://portal.example.co.uk", wantErr: true},
		{domain: "github.io", baseURL: "https://portal.github.io", wantErr: true},
		{domain: "other.com", baseURL: "https://portal.example.com", wantErr: true},
		{domain: "ample.com", baseURL: "https://portal.example.com", wantErr: true},
	}
	for _, tt := range tests {
		t.Run(tt.domain, func(t *testing.T) {
			h := HTTPConfig{CookieDomain: tt.domain, BaseURL: tt.baseURL}
			h.Sanitize()
			err := h.Validate()
			if tt.wantErr {
				assert.Error(t, err)
			} else {
				assert.NoError(t, err)
			}
		})
	}
}

func TestHTTPConfig_Sanitize(t *testing.T) {
	h := HTTPConfig{AuthRateLimit: -5, PendingWait: time.Minute}
	h.Sanitize()
	assert.Zero(t, h.AuthRateLimit)
	assert.Equal(t, 10*time.Second, h.PendingWait)

	h = HTTPConfig{PendingWait: -time.Second}
	h.Sanitize()
	assert.Zero(t, h.PendingWait)
}

func TestBackendConfig_Sanitize(t *testing.T) {
	b := BackendConfig{ResolverIdleTTL: time.Second, ResolverSweepInterval: time.Hour}
	b.Sanitize()
	assert.Equal(t, 10*time.Second, b.Timeout)
	assert.Equal(t, 10*time.Second, b.ProfileFetchTimeout)
	assert.Equal(t, time.Minute, b.ResolverIdleTTL)
	assert.Equal(t, time.Minute, b.ResolverSweepInterval)
}

func TestAuditConfig_Sanitize(t *testing.T) {
	a := AuditConfig{Retention: time.Hour}
	a.Sanitize()
	assert.Equal(t, 24*time.Hour, a.Retention)
	assert.Equal(t, time.Minute, a.PruneInterval)
}

func TestObservabilityMetricsConfig_Sanitize(t *testing.T) {
	tests := []struct {
		name        string
		input       ObservabilityMetricsConfig
		wantEnabled bool
		wantPrefix  string
	}{
		{
			name:        "enabled with address",
			input:       ObservabilityMetricsConfig{Enabled: true, StatsdAddress: " 127.0.0.1:8125 "},
			wantEnabled: true,
			wantPrefix:  "portal",
		},
		{
			name:        "blank address disables",
			input:       ObservabilityMetricsConfig{Enabled: true, StatsdAddress: "   ", Prefix: "hr"},
			wantEnabled: false,
			wantPrefix:  "hr",
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := tt.input
			cfg.Sanitize()
			assert.Equal(t, tt.wantEnabled, cfg.IsEnabled())
			assert.Equal(t, tt.wantPrefix, cfg.Prefix)
		})
	}
}
