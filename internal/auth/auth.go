// Package auth provides the optional authorization hook a Peer or Server
// may consult against MessageHeader.Authorization when a correspondence is
// created. The protocol only carries the opaque string; validation policy
// is external and injected.
package auth

import (
	"crypto/subtle"
	"errors"
)

var ErrUnauthorized = errors.New("auth: unauthorized")

// Validator validates an authentication token.
type Validator interface {
	Validate(token string) error
}

// StaticToken validates a header's Authorization string against one shared
// secret. An empty Token always rejects; there is no usable zero value.
type StaticToken struct {
	Token string
}

// Validate reports ErrUnauthorized unless token matches s.Token exactly,
// comparing in constant time.
func (s StaticToken) Validate(token string) error {
	if s.Token == "" {
		return ErrUnauthorized
	}
	match := subtle.ConstantTimeCompare([]byte(s.Token), []byte(token)) == 1
	if !match {
		return ErrUnauthorized
	}
	return nil
}

// FuncValidator adapts a plain function into a Validator, for callers whose
// policy doesn't warrant its own named type (a lookup against a database of
// issued tokens, an expiry check, and so on).
type FuncValidator func(token string) error

func (f FuncValidator) Validate(token string) error {
	return f(token)
}
