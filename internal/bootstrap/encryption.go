package bootstrap

import (
	"fmt"
	"log/slog"
	"strings"

	"github.com/hredge/portal/internal/sessioncrypt"
)

// CreateSessionSealer builds the sealer for session tokens from
// SESSION_ENCRYPTION_KEY. The value is a comma-separated list; the first key
// seals and the rest only open, which allows rotation without logging
// everyone out. An empty value stores tokens unsealed.
//
//nolint:ireturn // callers only need the Sealer contract
func CreateSessionSealer(keys string, logger *slog.Logger) (sessioncrypt.Sealer, error) {
	parts := splitKeys(keys)
	if len(parts) == 0 {
		if logger != nil {
			logger.Warn("SESSION_ENCRYPTION_KEY is empty; session tokens are stored unsealed")
		}
		return sessioncrypt.Plain{}, nil
	}

	derived := make([][]byte, len(parts))
	for i, p := range parts {
		derived[i] = sessioncrypt.DeriveKey(p)
	}
	ring, err := sessioncrypt.NewKeyring(derived[0], derived[1:]...)
	if err != nil {
		return nil, fmt.Errorf("session encryption key: %w", err)
	}
	if logger != nil {
		logger.Info("session token sealing enabled", "key_id", ring.PrimaryKeyID(), "previous_keys", len(parts)-1)
	}
	return ring, nil
}

func splitKeys(s string) []string {
	var out []string
	for _, p := range strings.Split(s, ",") {
		if p = strings.TrimSpace(p); p != "" {
			out = append(out, p)
		}
	}
	return out
}
