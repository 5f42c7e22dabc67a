package main

import (
	"bytes"
	"context"
	"io"
	"log/slog"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/hredge/portal/config"
)

func TestPrompterConfirm(t *testing.T) {
	tests := []struct {
		name    string
		input   string
		c       confirmation
		wantErr bool
	}{
		{name: "preapproved skips prompt", c: confirmation{Preapproved: true}},
		{name: "yes", input: "y\n", c: confirmation{Action: "revoke session"}},
		{name: "YES without newline", input: "YES", c: confirmation{}},
		{name: "default is no", input: "\n", c: confirmation{}, wantErr: true},
		{name: "eof", input: "", c: confirmation{}, wantErr: true},
		{name: "phrase match", input: "db.prod\n", c: confirmation{Phrase: "db.prod"}},
		{name: "phrase ignores preapproval", input: "y\n", c: confirmation{Phrase: "db.prod", Preapproved: true}, wantErr: true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var out bytes.Buffer
			err := newPrompter(strings.NewReader(tt.input), &out).confirm(tt.c)
			if tt.wantErr {
				assert.ErrorIs(t, err, errAborted)
				return
			}
			assert.NoError(t, err)
		})
	}
}

func TestPrompterConfirmPrintsTarget(t *testing.T) {
	var out bytes.Buffer
	err := newPrompter(strings.NewReader("n\n"), &out).confirm(confirmation{
		Action:  "revoke session",
		Target:  `session "abc"`,
		Warning: "WARNING: signs the user out.",
	})
	require.ErrorIs(t, err, errAborted)
	assert.Contains(t, out.String(), "WARNING: signs the user out.")
	assert.Contains(t, out.String(), `About to revoke session for session "abc".`)
	assert.Contains(t, out.String(), "Continue? [y/N]: ")
}

func TestCheckRemoteDB(t *testing.T) {
	remote, err := checkRemoteDB("localhost", false)
	require.NoError(t, err)
	assert.False(t, remote)

	remote, err = checkRemoteDB("db.prod.internal", true)
	require.NoError(t, err)
	assert.True(t, remote)

	_, err = checkRemoteDB("10.0.0.5", false)
	assert.ErrorContains(t, err, "--allow-remote")
}

func TestRunAuditPruneRemoteRequiresTypedHost(t *testing.T) {
	var out bytes.Buffer
	cmdCtx := &commandContext{
		Ctx:    context.Background(),
		Logger: slog.New(slog.NewTextHandler(io.Discard, nil)),
		Config: config.AppConfig{Postgres: config.DBConfig{Host: "db.prod.internal"}},
		Prompt: newPrompter(strings.NewReader("y\n"), &out),
	}
	err := runAuditPrune(cmdCtx, []string{"--older-than", "48h", "--yes", "--allow-remote"})
	require.ErrorIs(t, err, errAborted)
	assert.Contains(t, out.String(), `Type "db.prod.internal" to continue`)
}

func TestRunRevokeSessionDeclined(t *testing.T) {
	var out bytes.Buffer
	cmdCtx := &commandContext{
		Ctx:    context.Background(),
		Logger: slog.New(slog.NewTextHandler(io.Discard, nil)),
		Prompt: newPrompter(strings.NewReader("no\n"), &out),
	}
	err := runRevokeSession(cmdCtx, []string{"abc"})
	require.ErrorIs(t, err, errAborted)
	assert.Contains(t, out.String(), `session "abc"`)
}
