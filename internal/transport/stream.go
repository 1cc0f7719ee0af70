package transport

import "io"

// Stream is the minimal bidirectional byte stream a Peer requires. Closing
// it unblocks any pending Read/Write.
type Stream interface {
	io.Reader
	io.Writer
	io.Closer
}
