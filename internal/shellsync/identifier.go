package shellsync

import "github.com/google/uuid"

// NewIdentifier produces a fresh opaque string guaranteed to differ from any
// identifier produced previously in this process, and vanishingly unlikely
// to collide with one produced by a peer process. Callers must never compare
// identifiers for ordering, only for equality.
func NewIdentifier() string {
	return uuid.NewString()
}
