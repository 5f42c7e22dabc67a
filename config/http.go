package config

import (
	"fmt"
	"net/url"
	"strings"
	"time"

	"golang.org/x/net/publicsuffix"
)

// HTTPConfig contains HTTP server configuration.
type HTTPConfig struct {
	// Addr is the address to bind the HTTP server to.
	Addr string `env:"HTTP_ADDR" envDefault:":8080"`

	// BaseURL is the public URL of the portal (e.g., "https://portal.example.com").
	BaseURL string `env:"APP_BASE_URL" envDefault:"http://localhost:8080"`

	// CookieDomain is the domain for session cookies.
	// Leave empty to use the request domain.
	CookieDomain string `env:"APP_COOKIE_DOMAIN" envDefault:""`

	// AllowedHosts restricts the Host header when set.
	AllowedHosts []string `env:"HTTP_ALLOWED_HOSTS" envSeparator:","`

	// AuthRateLimit caps /auth/* requests per client IP per minute. 0 disables.
	AuthRateLimit int `env:"HTTP_AUTH_RATE_LIMIT" envDefault:"30"`

	// PendingWait is how long the guard holds a request for an in-flight profile fetch.
	PendingWait time.Duration `env:"GUARD_PENDING_WAIT" envDefault:"2s"`
}

// Sanitize applies guardrails to HTTP configuration values.
func (h *HTTPConfig) Sanitize() {
	h.CookieDomain = strings.ToLower(strings.TrimSpace(h.CookieDomain))
	if h.AuthRateLimit < 0 {
		h.AuthRateLimit = 0
	}
	if h.PendingWait < 0 {
		h.PendingWait = 0
	}
	if h.PendingWait > 10*time.Second {
		h.PendingWait = 10 * time.Second
	}
}

// Validate rejects cookie domains browsers would refuse or that would leak the
// session cookie to unrelated sites.
func (h *HTTPConfig) Validate() error {
	if h.CookieDomain == "" {
		return nil
	}
	domain := strings.TrimPrefix(h.CookieDomain, ".")
	if suffix, _ := publicsuffix.PublicSuffix(domain); suffix == domain {
		return fmt.Errorf("APP_COOKIE_DOMAIN %q is a public suffix", h.CookieDomain)
	}
	if _, err := publicsuffix.EffectiveTLDPlusOne(domain); err != nil {
		return fmt.Errorf("APP_COOKIE_DOMAIN %q: %w", h.CookieDomain, err)
	}

	u, err := url.Parse(h.BaseURL)
	if err != nil || u.Hostname() == "" {
		return fmt.Errorf("APP_BASE_URL %q is not an absolute URL", h.BaseURL)
	}
	host := strings.ToLower(u.Hostname())
	if host != domain && !strings.HasSuffix(host, "."+domain) {
		return fmt.Errorf("APP_COOKIE_DOMAIN %q does not cover APP_BASE_URL host %q", h.CookieDomain, host)
	}
	return nil
}
