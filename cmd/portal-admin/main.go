// Command portal-admin performs operator tasks against the portal's Postgres
// and Redis: migrations, session revocation and audit log maintenance.
package main

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"os"

	"github.com/hredge/portal/config"
	"github.com/hredge/portal/internal/bootstrap"
)

type commandFn func(ctx *commandContext, args []string) error

type command struct {
	name        string
	description string
	run         commandFn
}

type commandContext struct {
	Ctx    context.Context
	Logger *slog.Logger
	Config config.AppConfig
	// Prompt defaults to stdin/stderr on first use.
	Prompt *prompter
}

const (
	exitOK    = 0
	exitFail  = 1
	exitUsage = 2
)

func main() {
	os.Exit(dispatch(os.Args[1:], bootstrap.InitLogger())) //nolint:forbidigo // shell scripts rely on the exit status
}

// commands is kept sorted by name; usage output follows this order.
func commands() []command {
	return []command{
		{"audit-list", "List recent access audit events", runAuditList},
		{"audit-prune", "Delete access audit events older than a cutoff", runAuditPrune},
		{"migrate", "Run database migrations", runMigrations},
		{"migrate-status", "List embedded migrations and whether each has been applied", runMigrateStatus},
		{"revoke-session", "Delete a session from Redis, signing its browser out", runRevokeSession},
		{"routes", "Print the route table with required roles", runRoutes},
	}
}

func lookup(name string) (command, bool) {
	for _, c := range commands() {
		if c.name == name {
			return c, true
		}
	}
	return command{}, false
}

func dispatch(args []string, logger *slog.Logger) int {
	if len(args) == 0 {
		reportUsage(os.Stdout, logger)
		return exitUsage
	}
	cmd, ok := lookup(args[0])
	if !ok {
		if err := writef(os.Stderr, "unknown command %q\n\n", args[0]); err != nil {
			logger.Error("write to stderr", "error", err)
		}
		reportUsage(os.Stdout, logger)
		return exitUsage
	}

	// Only Postgres and Redis settings matter here, so the IdP block is not validated.
	cfg, err := bootstrap.LoadRawConfig()
	if err != nil {
		logger.Error("load config", "error", err)
		return exitFail
	}
	cmdCtx := &commandContext{Ctx: context.Background(), Logger: logger, Config: cfg}
	if err := cmd.run(cmdCtx, args[1:]); err != nil {
		logger.Error("command failed", "command", cmd.name, "error", err)
		return exitFail
	}
	return exitOK
}

func reportUsage(w io.Writer, logger *slog.Logger) {
	if err := printUsage(w); err != nil {
		logger.Error("print usage", "error", err)
	}
}

func printUsage(w io.Writer) error {
	if err := writef(w, "Usage: portal-admin <command> [flags]\n\nCommands:\n"); err != nil {
		return err
	}
	for _, c := range commands() {
		if err := writef(w, "  %-24s %s\n", c.name, c.description); err != nil {
			return err
		}
	}
	return nil
}

func writef(w io.Writer, format string, args ...any) error {
	_, err := fmt.Fprintf(w, format, args...)
	return err
}

func write(w io.Writer, args ...any) error {
	_, err := fmt.Fprint(w, args...)
	return err
}

func writeln(w io.Writer, args ...any) error {
	_, err := fmt.Fprintln(w, args...)
	return err
}
