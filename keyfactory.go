package store

import (
	"encoding/hex"

	"github.com/google/uuid"
)

// KeyFactory produces a primary-key value for a record created without
// one. Supply a custom one via WithKeyFactory to use, e.g., sequential
// or domain-specific ids.
type KeyFactory func() any

// randomHexKey is the default KeyFactory: a random 128-bit value hex
// encoded, per spec.md §4.5 ("default a random 128-bit hex"). It uses
// uuid.New() purely for its CSPRNG-backed random bytes, hex-encoding the
// raw 16 bytes rather than uuid's dashed string form.
func randomHexKey() any {
	id := uuid.New()
	return hex.EncodeToString(id[:])
}
