// Package chainid generates the provenance chain identifiers that tag every
// fund-issuing event. Format: CHN-XXXXXXXX-XXXXXXXXXXXX (8 + 12 hex chars),
// derived from a v4 UUID so collisions are practically impossible; the store
// layer still guards with a unique constraint and regenerates on violation.
package chainid

import (
	"encoding/hex"
	"strings"

	"github.com/google/uuid"
)

const Prefix = "CHN-"

// New returns a fresh chain id.
func New() string {
	u := uuid.New()
	h := hex.EncodeToString(u[:])
	return Prefix + strings.ToUpper(h[:8]) + "-" + strings.ToUpper(h[20:])
}

// Valid reports whether s has the chain id shape. Used when accepting a
// caller-supplied parent chain id before hitting the database.
func Valid(s string) bool {
	if !strings.HasPrefix(s, Prefix) {
		return false
	}
	rest := s[len(Prefix):]
	parts := strings.Split(rest, "-")
	if len(parts) != 2 || len(parts[0]) != 8 || len(parts[1]) != 12 {
		return false
	}
	for _, p := range parts {
		if _, err := hex.DecodeString(strings.ToLower(p)); err != nil {
			return false
		}
	}
	return true
}
