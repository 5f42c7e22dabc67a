package testutil

import (
	"context"
	"crypto/rand"
	"database/sql"
	"encoding/hex"
	"net"
	"net/url"
	"time"

	// Registers the "pgx" database/sql driver.
	_ "github.com/jackc/pgx/v5/stdlib"

	"github.com/hredge/portal/internal/migrate"
)

func (e infraEnv) dsn() string {
	u := url.URL{
		Scheme: "postgres",
		User:   url.UserPassword(e.dbUser, e.dbPassword),
		Host:   net.JoinHostPort(e.dbHost, e.dbPort),
		Path:   "/" + e.dbName,
	}
	q := url.Values{}
	q.Set("sslmode", e.dbSSLMode)
	u.RawQuery = q.Encode()
	return u.String()
}

// WithAutoDB hands fn a migrated audit database with an empty
// access_audit_events table. With TEST_DB_EPHEMERAL set the database is a
// throwaway schema dropped on cleanup.
func WithAutoDB(t TB, fn func(*sql.DB)) {
	t.Helper()
	env := loadInfraEnv()
	admin := openReachable(t, env)
	if admin == nil {
		return
	}

	if !env.ephemeral {
		t.Cleanup(func() { closeQuietly(t, "audit db", admin) })
		migrateAndTruncate(t, admin)
		fn(admin)
		return
	}

	fn(ephemeralSchema(t, env, admin))
}

func openReachable(t TB, env infraEnv) *sql.DB {
	t.Helper()
	db, err := sql.Open("pgx", env.dsn())
	if err != nil {
		skipOrFail(t, env.requireDB, "audit database unavailable:", err)
		return nil
	}
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	if err := db.PingContext(ctx); err != nil {
		closeQuietly(t, "audit db", db)
		skipOrFail(t, env.requireDB, "audit database unavailable (docker compose up -d postgres):", err)
		return nil
	}
	return db
}

func migrateAndTruncate(t TB, db *sql.DB) {
	t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := migrate.Run(ctx, db); err != nil {
		t.Fatalf("migrate audit db: %v", err)
	}
	if _, err := db.ExecContext(ctx, "TRUNCATE access_audit_events"); err != nil {
		t.Fatalf("truncate access_audit_events: %v", err)
	}
}

func ephemeralSchema(t TB, env infraEnv, admin *sql.DB) *sql.DB {
	t.Helper()
	schema := "portal_t_" + randomSuffix()
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	if _, err := admin.ExecContext(ctx, "CREATE SCHEMA "+schema); err != nil {
		closeQuietly(t, "audit db", admin)
		t.Fatalf("create schema %s: %v", schema, err)
	}

	u, err := url.Parse(env.dsn())
	if err != nil {
		t.Fatalf("parse dsn: %v", err)
	}
	q := u.Query()
	q.Set("search_path", schema)
	u.RawQuery = q.Encode()

	scoped, err := sql.Open("pgx", u.String())
	if err != nil {
		t.Fatalf("open schema %s: %v", schema, err)
	}
	t.Cleanup(func() {
		closeQuietly(t, "schema db", scoped)
		dctx, dcancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer dcancel()
		if _, err := admin.ExecContext(dctx, "DROP SCHEMA IF EXISTS "+schema+" CASCADE"); err != nil {
			t.Logf("drop schema %s: %v", schema, err)
		}
		closeQuietly(t, "audit db", admin)
	})

	migrateAndTruncate(t, scoped)
	return scoped
}

func randomSuffix() string {
	b := make([]byte, 4)
	if _, err := rand.Read(b); err != nil {
		return hex.EncodeToString([]byte(time.Now().Format("150405.0")))[:8]
	}
	return hex.EncodeToString(b)
}
