package transport

import "net"

// PipeStream wraps one end of a net.Pipe() for in-process tests connecting
// two Peers without a real socket.
type PipeStream struct {
	conn net.Conn
}

// NewPipe returns two connected Streams, each the Stream view of one end of
// net.Pipe().
func NewPipe() (*PipeStream, *PipeStream) {
	a, b := net.Pipe()
	return &PipeStream{conn: a}, &PipeStream{conn: b}
}

func (s *PipeStream) Read(p []byte) (int, error)  { return s.conn.Read(p) }
func (s *PipeStream) Write(p []byte) (int, error) { return s.conn.Write(p) }
func (s *PipeStream) Close() error                { return s.conn.Close() }
