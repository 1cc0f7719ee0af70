package transport

import (
	"crypto/tls"
	"fmt"
	"net"
	"net/http"

	"github.com/gorilla/websocket"
)

// Listener accepts Streams one at a time. TCPListener and WebSocketListener
// both satisfy it.
type Listener interface {
	Accept() (Stream, error)
	Close() error
	Addr() net.Addr
}

// Listen binds addr using the adapter named by kind, wrapping accepted
// connections in TLS when tlsConfig is non-nil.
func Listen(kind Kind, addr string, tlsConfig *tls.Config) (Listener, error) {
	switch kind {
	case KindTCP:
		return listenTCP(addr, tlsConfig)
	case KindWebSocket:
		return listenWebSocket(addr, tlsConfig)
	default:
		return nil, fmt.Errorf("transport: unknown listen kind %q", kind)
	}
}

// TCPListener wraps a net.Listener, producing a TCPStream per Accept.
type TCPListener struct {
	ln net.Listener
}

func listenTCP(addr string, tlsConfig *tls.Config) (*TCPListener, error) {
	var ln net.Listener
	var err error
	if tlsConfig != nil {
		ln, err = tls.Listen("tcp", addr, tlsConfig)
	} else {
		ln, err = net.Listen("tcp", addr)
	}
	if err != nil {
		return nil, fmt.Errorf("transport: listen %s: %w", addr, err)
	}
	return &TCPListener{ln: ln}, nil
}

func (l *TCPListener) Accept() (Stream, error) {
	conn, err := l.ln.Accept()
	if err != nil {
		return nil, err
	}
	return NewTCPStream(conn), nil
}

func (l *TCPListener) Close() error   { return l.ln.Close() }
func (l *TCPListener) Addr() net.Addr { return l.ln.Addr() }

// WebSocketListener upgrades incoming HTTP connections on "/" to
// WebSocket, producing a WebSocketStream per accepted upgrade.
type WebSocketListener struct {
	ln       net.Listener
	upgrader websocket.Upgrader
	accepted chan Stream
	errs     chan error
}

func listenWebSocket(addr string, tlsConfig *tls.Config) (*WebSocketListener, error) {
	var ln net.Listener
	var err error
	if tlsConfig != nil {
		ln, err = tls.Listen("tcp", addr, tlsConfig)
	} else {
		ln, err = net.Listen("tcp", addr)
	}
	if err != nil {
		return nil, fmt.Errorf("transport: listen %s: %w", addr, err)
	}

	l := &WebSocketListener{
		ln:       ln,
		upgrader: websocket.Upgrader{CheckOrigin: func(*http.Request) bool { return true }},
		accepted: make(chan Stream),
		errs:     make(chan error, 1),
	}
	mux := http.NewServeMux()
	mux.HandleFunc("/", func(w http.ResponseWriter, r *http.Request) {
		conn, err := l.upgrader.Upgrade(w, r, nil)
		if err != nil {
			return
		}
		l.accepted <- NewWebSocketStream(conn)
	})
	srv := &http.Server{Handler: mux}
	go func() {
		l.errs <- srv.Serve(ln)
	}()
	return l, nil
}

func (l *WebSocketListener) Accept() (Stream, error) {
	select {
	case s := <-l.accepted:
		return s, nil
	case err := <-l.errs:
		return nil, err
	}
}

func (l *WebSocketListener) Close() error   { return l.ln.Close() }
func (l *WebSocketListener) Addr() net.Addr { return l.ln.Addr() }
