// Package testutil wires portal tests to Postgres and Redis.
//
// Redis tests run against miniredis unless REDIS_ADDR points at a live server.
// Postgres tests skip when the audit database is unreachable, or fail when
// TEST_REQUIRE_DB or TEST_REQUIRE_INFRA is set.
package testutil

import (
	"os"
	"strconv"
	"strings"
)

// TB is the subset of testing.TB the helpers need.
type TB interface {
	Helper()
	Skip(args ...any)
	Fatal(args ...any)
	Fatalf(format string, args ...any)
	Logf(format string, args ...any)
	Cleanup(func())
}

// infraEnv captures the TEST_* variables read by the helpers.
type infraEnv struct {
	dbHost, dbPort, dbUser, dbPassword, dbName, dbSSLMode string

	ephemeral    bool
	requireDB    bool
	requireRedis bool

	redisAddr string
	redisDB   int
}

func loadInfraEnv() infraEnv {
	all := truthy(os.Getenv("TEST_REQUIRE_INFRA"))
	return infraEnv{
		dbHost:       envOr("TEST_DB_HOST", "localhost"),
		dbPort:       envOr("TEST_DB_PORT", "55432"),
		dbUser:       envOr("TEST_DB_USER", "portal"),
		dbPassword:   envOr("TEST_DB_PASSWORD", "portal"),
		dbName:       envOr("TEST_DB_NAME", "portal_test"),
		dbSSLMode:    envOr("DB_SSL_MODE", "disable"),
		ephemeral:    truthy(os.Getenv("TEST_DB_EPHEMERAL")),
		requireDB:    all || truthy(os.Getenv("TEST_REQUIRE_DB")),
		requireRedis: all || truthy(os.Getenv("TEST_REQUIRE_REDIS")),
		redisAddr:    strings.TrimSpace(os.Getenv("REDIS_ADDR")),
		redisDB:      nonNegativeInt(os.Getenv("TEST_REDIS_DB"), 1),
	}
}

func envOr(key, fallback string) string {
	if v := strings.TrimSpace(os.Getenv(key)); v != "" {
		return v
	}
	return fallback
}

func truthy(v string) bool {
	switch strings.ToLower(strings.TrimSpace(v)) {
	case "1", "true", "yes", "y", "on":
		return true
	}
	return false
}

func nonNegativeInt(v string, fallback int) int {
	n, err := strconv.Atoi(strings.TrimSpace(v))
	if err != nil || n < 0 {
		return fallback
	}
	return n
}

func skipOrFail(t TB, required bool, args ...any) {
	t.Helper()
	if required {
		t.Fatal(args...)
	}
	t.Skip(args...)
}

func closeQuietly(t TB, what string, c interface{ Close() error }) {
	if err := c.Close(); err != nil {
		t.Logf("close %s: %v", what, err)
	}
}
