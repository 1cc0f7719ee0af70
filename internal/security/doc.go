// Package security validates TLS/mTLS settings for the transport adapters
// against a development/production security mode. Transport negotiation
// itself is out of the core's scope; this package is consulted only by
// config loading and the listener/dialer helpers in cmd/correspondctl and
// cmd/correspondchat.
package security
