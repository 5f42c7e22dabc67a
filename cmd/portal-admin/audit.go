package main

import (
	"context"
	"database/sql"
	"errors"
	"flag"
	"fmt"
	"io"
	"os"
	"strings"
	"text/tabwriter"
	"time"

	"github.com/hredge/portal/internal/adapters/postgres"
)

const defaultAuditTimeout = 30 * time.Second

type auditListOptions struct {
	IdentityID string
	Since      time.Duration
	Limit      int
	Timeout    time.Duration
}

type auditPruneOptions struct {
	OlderThan   time.Duration
	DryRun      bool
	Yes         bool
	AllowRemote bool
	Timeout     time.Duration
}

func runAuditList(cmdCtx *commandContext, args []string) error {
	opts, err := parseAuditListFlags(args)
	if err != nil {
		return err
	}

	return withDatabase(cmdCtx, opts.Timeout, func(ctx context.Context, db *sql.DB) error {
		filter := postgres.AuditFilter{
			IdentityID: opts.IdentityID,
			Limit:      opts.Limit,
		}
		if opts.Since > 0 {
			filter.Since = time.Now().Add(-opts.Since)
		}
		records, listErr := postgres.NewAuditRepository(db).List(ctx, filter)
		if listErr != nil {
			return fmt.Errorf("list audit events: %w", listErr)
		}
		return printAuditRecords(os.Stdout, records)
	})
}

func printAuditRecords(w io.Writer, records []postgres.AuditRecord) error {
	if len(records) == 0 {
		return writeln(w, "No audit events matched.")
	}
	tw := tabwriter.NewWriter(w, 0, 0, 2, ' ', 0)
	if err := writeln(tw, "OCCURRED AT\tDECISION\tIDENTITY\tROLE\tREQUEST\tREQUIRED\tREASON"); err != nil {
		return fmt.Errorf("write audit header: %w", err)
	}
	for _, r := range records {
		if err := writef(tw, "%s\t%s\t%s\t%s\t%s %s\t%s\t%s\n",
			r.OccurredAt.UTC().Format(time.RFC3339),
			r.Decision,
			orDash(r.IdentityID),
			orDash(r.Role),
			r.Method, r.Path,
			r.Required(),
			orDash(r.Reason),
		); err != nil {
			return fmt.Errorf("write audit row: %w", err)
		}
	}
	return tw.Flush()
}

func runAuditPrune(cmdCtx *commandContext, args []string) error {
	opts, err := parseAuditPruneFlags(args)
	if err != nil {
		return err
	}

	host := cmdCtx.Config.Postgres.Host
	remote, err := checkRemoteDB(host, opts.AllowRemote)
	if err != nil {
		return err
	}

	cutoff := time.Now().Add(-opts.OlderThan).UTC()
	if opts.DryRun {
		return writef(os.Stdout, "Dry run: would delete audit events older than %s.\n", cutoff.Format(time.RFC3339))
	}

	c := confirmation{
		Action:      "delete access audit events",
		Target:      "events older than " + cutoff.Format(time.RFC3339),
		Warning:     "WARNING: this permanently deletes access audit events.",
		Preapproved: opts.Yes,
	}
	if remote {
		c.Warning += fmt.Sprintf(" Host %q is not local.", host)
		c.Phrase = host
	}
	if err := cmdCtx.prompter().confirm(c); err != nil {
		return err
	}

	return withDatabase(cmdCtx, opts.Timeout, func(ctx context.Context, db *sql.DB) error {
		n, pruneErr := postgres.NewAuditRepository(db).Prune(ctx, cutoff)
		if pruneErr != nil {
			return pruneErr
		}
		cmdCtx.Logger.Info("audit events pruned", "deleted", n, "cutoff", cutoff)
		return writef(os.Stdout, "Deleted %d audit event(s) older than %s.\n", n, cutoff.Format(time.RFC3339))
	})
}

func parseAuditListFlags(args []string) (auditListOptions, error) {
	fs := flag.NewFlagSet("audit-list", flag.ContinueOnError)
	fs.SetOutput(os.Stderr)

	opts := auditListOptions{
		Limit:   postgres.DefaultAuditListLimit,
		Timeout: defaultAuditTimeout,
	}
	fs.StringVar(&opts.IdentityID, "identity", "", "Only show events for this identity ID")
	fs.DurationVar(&opts.Since, "since", 0, "Only show events newer than this duration (e.g. 24h)")
	fs.IntVar(&opts.Limit, "limit", postgres.DefaultAuditListLimit, "Maximum number of events to show (max 1000)")
	fs.DurationVar(&opts.Timeout, "timeout", defaultAuditTimeout, "Maximum duration for the query")

	if err := fs.Parse(args); err != nil {
		return auditListOptions{}, err
	}

	opts.IdentityID = strings.TrimSpace(opts.IdentityID)
	if opts.Limit <= 0 || opts.Limit > 1000 {
		return auditListOptions{}, errors.New("--limit must be between 1 and 1000")
	}
	if opts.Since < 0 {
		return auditListOptions{}, errors.New("--since must not be negative")
	}
	if opts.Timeout <= 0 {
		return auditListOptions{}, errors.New("--timeout must be greater than zero")
	}
	return opts, nil
}

func parseAuditPruneFlags(args []string) (auditPruneOptions, error) {
	fs := flag.NewFlagSet("audit-prune", flag.ContinueOnError)
	fs.SetOutput(os.Stderr)

	var opts auditPruneOptions
	fs.DurationVar(&opts.OlderThan, "older-than", 0, "Delete events older than this duration (required, at least 24h)")
	fs.BoolVar(&opts.DryRun, "dry-run", false, "Print the cutoff without deleting anything")
	fs.BoolVar(&opts.Yes, "yes", false, "Skip the confirmation prompt")
	fs.BoolVar(&opts.AllowRemote, "allow-remote", false, "Allow running against a non-local database host")
	fs.DurationVar(&opts.Timeout, "timeout", defaultAuditTimeout, "Maximum duration for the delete")

	if err := fs.Parse(args); err != nil {
		return auditPruneOptions{}, err
	}

	if opts.OlderThan < 24*time.Hour {
		return auditPruneOptions{}, errors.New("--older-than is required and must be at least 24h")
	}
	if opts.Timeout <= 0 {
		return auditPruneOptions{}, errors.New("--timeout must be greater than zero")
	}
	return opts, nil
}

func orDash(s string) string {
	if s == "" {
		return "-"
	}
	return s
}
