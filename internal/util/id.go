package util

import "github.com/google/uuid"

// ShortID returns an 8-character opaque identifier, the leading hex of a
// random UUID. Used for incident and lease ids, where collisions within a
// single guardian's lifetime are the only concern.
func ShortID() string {
	return uuid.NewString()[:8]
}
