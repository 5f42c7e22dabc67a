package config

import (
	"errors"
	"fmt"
	"strings"
	"time"
)

// AuthMode represents the authentication mode for the application.
type AuthMode string

const (
	// AuthModeOAuth uses OAuth/OIDC for authentication.
	AuthModeOAuth AuthMode = "oauth"
	// AuthModeMock uses mock/dev authentication (for development only).
	AuthModeMock AuthMode = "mock"
)

// UnmarshalText implements encoding.TextUnmarshaler for AuthMode.
func (a *AuthMode) UnmarshalText(text []byte) error {
	v := strings.ToLower(string(text))
	switch v {
	case "oauth", "mock":
		*a = AuthMode(v)
		return nil
	default:
		return fmt.Errorf("invalid AuthMode: %q (valid options: oauth, mock)", v)
	}
}

// OAuthConfig contains OAuth/OIDC configuration.
type OAuthConfig struct {
	ClientID     string `env:"CLIENT_ID"`
	ClientSecret string `env:"CLIENT_SECRET"`
	RedirectURL  string `env:"REDIRECT_URL"  envDefault:"http://localhost:8080/auth/callback"`
	Scope        string `env:"SCOPE"         envDefault:"openid profile email offline_access"`
	DiscoveryURL string `env:"DISCOVERY_URL"`
	LogoutURL    string `env:"LOGOUT_URL"`
}

// DevAuthConfig controls the mock identity used when AUTH_MODE=mock.
type DevAuthConfig struct {
	UserID    string `env:"USER_ID"    envDefault:"dev-user"`
	Email     string `env:"EMAIL"      envDefault:"dev@example.com"`
	FirstName string `env:"FIRST_NAME" envDefault:"Dev"`
	LastName  string `env:"LAST_NAME"  envDefault:"User"`
	// SigningKey signs dev bearer tokens; the backend must share it to accept them.
	SigningKey string `env:"SIGNING_KEY"`
}

// AuthConfig groups all authentication-related configuration.
type AuthConfig struct {
	// Mode determines which authentication provider to use.
	Mode AuthMode `env:"AUTH_MODE" envDefault:"oauth"`

	// OAuth configuration (used when Mode=oauth).
	OAuth OAuthConfig `envPrefix:"OAUTH_"`

	// DevAuth configuration (used when Mode=mock).
	DevAuth DevAuthConfig `envPrefix:"DEV_AUTH_"`

	// TokenTemplate names the credential presented to the backend: id_token or access_token.
	TokenTemplate string `env:"AUTH_TOKEN_TEMPLATE" envDefault:"id_token"`

	// SessionEncryptionKey seals IdP tokens stored in Redis. Comma-separated
	// hex keys or passphrases; the first seals, the rest are accepted on read.
	SessionEncryptionKey string `env:"SESSION_ENCRYPTION_KEY"`

	// SessionMaxAge caps a session regardless of the IdP token lifetime.
	SessionMaxAge time.Duration `env:"SESSION_MAX_AGE" envDefault:"12h"`
}

// Validate checks the fields the selected mode depends on.
func (a *AuthConfig) Validate(isDev bool) error {
	switch a.TokenTemplate {
	case "id_token", "access_token":
	default:
		return fmt.Errorf("invalid AUTH_TOKEN_TEMPLATE %q (valid options: id_token, access_token)", a.TokenTemplate)
	}

	if a.SessionMaxAge < 5*time.Minute {
		return fmt.Errorf("SESSION_MAX_AGE must be at least 5m, got %s", a.SessionMaxAge)
	}

	switch a.Mode {
	case AuthModeMock:
		if !isDev {
			return errors.New("AUTH_MODE=mock requires DEV=true")
		}
		if len(a.DevAuth.SigningKey) < 32 {
			return errors.New("DEV_AUTH_SIGNING_KEY must be at least 32 bytes")
		}
	case AuthModeOAuth, "":
		var missing []string
		if a.OAuth.ClientID == "" {
			missing = append(missing, "OAUTH_CLIENT_ID")
		}
		if a.OAuth.ClientSecret == "" {
			missing = append(missing, "OAUTH_CLIENT_SECRET")
		}
		if a.OAuth.DiscoveryURL == "" {
			missing = append(missing, "OAUTH_DISCOVERY_URL")
		}
		if len(missing) > 0 {
			return fmt.Errorf("oauth mode requires %s", strings.Join(missing, ", "))
		}
	}
	return nil
}
