// Package protocol owns the wire contract for correspond: the Message
// shape, its validation rules, and the newline-delimited JSON codec that
// frames a byte stream into a sequence of Messages.
package protocol
