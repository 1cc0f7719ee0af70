package transport

import (
	"io"

	"github.com/gorilla/websocket"
)

// WebSocketStream presents a *websocket.Conn as a plain byte stream,
// reading/writing whole WebSocket binary messages as opaque byte ranges.
// A Read that spans a message boundary advances to the next message,
// mirroring how gorilla/websocket exposes one message per NextReader call.
type WebSocketStream struct {
	conn *websocket.Conn
	r    io.Reader
}

// NewWebSocketStream wraps an established WebSocket connection.
func NewWebSocketStream(conn *websocket.Conn) *WebSocketStream {
	return &WebSocketStream{conn: conn}
}

func (s *WebSocketStream) Write(p []byte) (int, error) {
	if err := s.conn.WriteMessage(websocket.BinaryMessage, p); err != nil {
		return 0, err
	}
	return len(p), nil
}

func (s *WebSocketStream) Read(p []byte) (int, error) {
	for {
		if s.r == nil {
			var err error
			_, s.r, err = s.conn.NextReader()
			if err != nil {
				return 0, err
			}
		}
		n, err := s.r.Read(p)
		if err == io.EOF {
			s.r = nil
			if n > 0 {
				return n, nil
			}
			continue
		}
		return n, err
	}
}

func (s *WebSocketStream) Close() error {
	return s.conn.Close()
}
