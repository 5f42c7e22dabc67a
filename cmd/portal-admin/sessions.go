package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"os"
	"strings"

	"github.com/redis/go-redis/v9"

	redisadapter "github.com/hredge/portal/internal/adapters/redis"
)

type revokeSessionOptions struct {
	SessionID string
	Yes       bool
}

func runRevokeSession(cmdCtx *commandContext, args []string) error {
	opts, err := parseRevokeSessionFlags(args)
	if err != nil {
		return err
	}

	if err := cmdCtx.prompter().confirm(confirmation{
		Action:      "revoke session",
		Target:      fmt.Sprintf("session %q", opts.SessionID),
		Warning:     "WARNING: the session's user will be signed out on their next request.",
		Preapproved: opts.Yes,
	}); err != nil {
		return err
	}

	return withRedis(cmdCtx, func(ctx context.Context, client redis.UniversalClient) error {
		// Delete only touches the key, so no sealer is needed.
		store := redisadapter.NewSessionStore(redisadapter.SessionStoreOptions{
			Client: client,
			Prefix: cmdCtx.Config.Redis.SessionPrefix,
		})
		if delErr := store.Delete(ctx, opts.SessionID); delErr != nil {
			return fmt.Errorf("delete session: %w", delErr)
		}
		cmdCtx.Logger.Info("session revoked", "session_id", opts.SessionID)
		return writef(os.Stdout, "Session %q revoked.\n", opts.SessionID)
	})
}

func parseRevokeSessionFlags(args []string) (revokeSessionOptions, error) {
	fs := flag.NewFlagSet("revoke-session", flag.ContinueOnError)
	fs.SetOutput(os.Stderr)

	var opts revokeSessionOptions
	fs.StringVar(&opts.SessionID, "id", "", "Session ID to revoke")
	fs.BoolVar(&opts.Yes, "yes", false, "Skip the confirmation prompt")

	if err := fs.Parse(args); err != nil {
		return revokeSessionOptions{}, err
	}
	if opts.SessionID == "" && fs.NArg() > 0 {
		opts.SessionID = fs.Arg(0)
	}
	opts.SessionID = strings.TrimSpace(opts.SessionID)
	if opts.SessionID == "" {
		return revokeSessionOptions{}, errors.New("session ID is required (--id or positional argument)")
	}
	return opts, nil
}
