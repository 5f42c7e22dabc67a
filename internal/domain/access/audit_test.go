package access

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestDecision_Audited(t *testing.T) {
	audited := map[Decision]bool{
		Granted:               false,
		Pending:               false,
		DeniedUnauthenticated: false,
		DeniedUnauthorized:    true,
		ProfileError:          true,
		Misconfigured:         true,
	}
	for d, want := range audited {
		assert.Equal(t, want, d.Audited(), d.String())
	}
}
