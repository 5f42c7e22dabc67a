// Package auth holds hand-written fakes for the auth ports. They keep state in
// memory, count their calls, and let a test override any single behaviour
// with a func field.
package auth

import "github.com/hredge/portal/internal/ports"

var (
	_ ports.AuthProvider = (*MockAuthProvider)(nil)
	_ ports.SessionStore = (*MemorySessionStore)(nil)
	_ ports.TokenSource  = (*StaticTokenSource)(nil)
)
