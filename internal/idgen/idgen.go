// Package idgen generates correspondence identifiers.
package idgen

import "github.com/google/uuid"

// NewCorrespondenceID returns a collision-resistant identifier suitable for
// a new correspondence. A v4 UUID (36 chars, hyphenated) is sufficiently
// collision-resistant; callers must treat the value as opaque.
func NewCorrespondenceID() string {
	return uuid.NewString()
}

// NewPeerID returns a collision-resistant identifier suitable for a Peer's
// opaque logging id. Peer ids share no namespace with correspondence ids;
// this is purely a separate name for the same generator.
func NewPeerID() string {
	return uuid.NewString()
}
