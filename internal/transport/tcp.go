package transport

import "net"

// TCPStream wraps a net.Conn as a Stream. Close unblocks any pending
// Read/Write per normal net.Conn semantics.
type TCPStream struct {
	conn net.Conn
}

// NewTCPStream wraps an already-established connection (from net.Dial or a
// net.Listener.Accept).
func NewTCPStream(conn net.Conn) *TCPStream {
	return &TCPStream{conn: conn}
}

func (s *TCPStream) Read(p []byte) (int, error)  { return s.conn.Read(p) }
func (s *TCPStream) Write(p []byte) (int, error) { return s.conn.Write(p) }
func (s *TCPStream) Close() error                { return s.conn.Close() }

// Conn exposes the underlying net.Conn for callers that need deadlines or
// address information.
func (s *TCPStream) Conn() net.Conn { return s.conn }
