package protocol

import "errors"

// ErrInvalidMessage marks a well-formed JSON value that violates the
// message schema.
var ErrInvalidMessage = errors.New("protocol: invalid message")

// StreamingError wraps a transport-level framing failure: a line that
// failed to parse as JSON, or an I/O error while reading lines. It carries
// the raw line so callers can log it without re-reading the stream.
type StreamingError struct {
	Line []byte
	Err  error
}

func (e *StreamingError) Error() string {
	return "protocol: streaming error: " + e.Err.Error()
}

func (e *StreamingError) Unwrap() error {
	return e.Err
}
