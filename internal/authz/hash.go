package authz

import (
	"crypto/sha256"
	"encoding/hex"
)

// HashSessionID truncates a SHA-256 digest to 12 hex characters, per
// spec.md §4.5 — raw session ids never appear in logs or the audit trail,
// but a stable short hash still lets an operator correlate rows to a caller.
func HashSessionID(sessionID string) string {
	sum := sha256.Sum256([]byte(sessionID))
	return hex.EncodeToString(sum[:])[:12]
}
