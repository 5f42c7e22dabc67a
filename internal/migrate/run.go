// Package migrate applies the portal's embedded SQL migrations.
//
// Each file under migrations/ is one version, named by its file name without
// the .sql suffix, and applied in lexical order inside its own transaction.
// A transaction-scoped advisory lock lets several replicas start at once.
package migrate

import (
	"context"
	"database/sql"
	"embed"
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"path"
	"slices"
	"strings"
)

//go:embed migrations/*.sql
var embedded embed.FS

// lockKey is an arbitrary constant shared by every portal replica.
const lockKey int64 = 0x706f7274616c

const ledgerDDL = `
CREATE TABLE IF NOT EXISTS schema_migrations (
	version    TEXT PRIMARY KEY,
	applied_at TIMESTAMPTZ NOT NULL DEFAULT now()
)`

// Status reports whether one migration has been applied.
type Status struct {
	Version string
	Applied bool
}

// Run applies every pending migration. Calling it again is a no-op.
func Run(ctx context.Context, db *sql.DB) error {
	pending, err := plan(ctx, db)
	if err != nil {
		return err
	}
	logger := slog.Default().With("component", "migrate")
	for _, s := range pending {
		if s.Applied {
			continue
		}
		if err := apply(ctx, db, s.Version, logger); err != nil {
			return err
		}
	}
	return nil
}

// List returns every embedded migration in apply order.
func List(ctx context.Context, db *sql.DB) ([]Status, error) {
	return plan(ctx, db)
}

func plan(ctx context.Context, db *sql.DB) ([]Status, error) {
	if _, err := db.ExecContext(ctx, ledgerDDL); err != nil {
		return nil, fmt.Errorf("create migration ledger: %w", err)
	}
	vs, err := versions()
	if err != nil {
		return nil, err
	}
	done, err := appliedVersions(ctx, db)
	if err != nil {
		return nil, err
	}
	out := make([]Status, len(vs))
	for i, v := range vs {
		out[i] = Status{Version: v, Applied: done[v]}
	}
	return out, nil
}

func versions() ([]string, error) {
	names, err := fs.Glob(embedded, "migrations/*.sql")
	if err != nil {
		return nil, fmt.Errorf("list migrations: %w", err)
	}
	out := make([]string, len(names))
	for i, n := range names {
		out[i] = strings.TrimSuffix(path.Base(n), ".sql")
	}
	slices.Sort(out)
	return out, nil
}

func appliedVersions(ctx context.Context, db *sql.DB) (map[string]bool, error) {
	rows, err := db.QueryContext(ctx, `SELECT version FROM schema_migrations`)
	if err != nil {
		return nil, fmt.Errorf("read migration ledger: %w", err)
	}
	defer rows.Close()
	done := map[string]bool{}
	for rows.Next() {
		var v string
		if err := rows.Scan(&v); err != nil {
			return nil, fmt.Errorf("scan migration ledger: %w", err)
		}
		done[v] = true
	}
	return done, rows.Err()
}

func apply(ctx context.Context, db *sql.DB, version string, logger *slog.Logger) (err error) {
	body, err := embedded.ReadFile("migrations/" + version + ".sql")
	if err != nil {
		return fmt.Errorf("read migration %s: %w", version, err)
	}

	tx, err := db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin migration %s: %w", version, err)
	}
	defer func() {
		if err != nil {
			err = errors.Join(err, ignoreDone(tx.Rollback()))
		}
	}()

	if _, err = tx.ExecContext(ctx, `SELECT pg_advisory_xact_lock($1)`, lockKey); err != nil {
		return fmt.Errorf("lock migration ledger: %w", err)
	}
	// Another replica may have applied it while we waited for the lock.
	var already bool
	if err = tx.QueryRowContext(ctx,
		`SELECT EXISTS(SELECT 1 FROM schema_migrations WHERE version = $1)`, version,
	).Scan(&already); err != nil {
		return fmt.Errorf("check migration %s: %w", version, err)
	}
	if already {
		return tx.Commit()
	}

	logger.InfoContext(ctx, "applying migration", "version", version)
	if _, err = tx.ExecContext(ctx, string(body)); err != nil {
		return fmt.Errorf("exec migration %s: %w", version, err)
	}
	if _, err = tx.ExecContext(ctx, `INSERT INTO schema_migrations (version) VALUES ($1)`, version); err != nil {
		return fmt.Errorf("record migration %s: %w", version, err)
	}
	if err = tx.Commit(); err != nil {
		return fmt.Errorf("commit migration %s: %w", version, err)
	}
	return nil
}

func ignoreDone(err error) error {
	if errors.Is(err, sql.ErrTxDone) {
		return nil
	}
	return err
}
