package transport

import (
	"crypto/tls"
	"fmt"
	"net"
	"net/url"

	"github.com/gorilla/websocket"
)

// Kind names the adapter a Dial/Listen helper constructs.
type Kind string

const (
	KindTCP       Kind = "tcp"
	KindWebSocket Kind = "websocket"
)

// Dial opens a Stream to addr using the adapter named by kind, wrapping the
// connection in TLS when tlsConfig is non-nil.
func Dial(kind Kind, addr string, tlsConfig *tls.Config) (Stream, error) {
	switch kind {
	case KindTCP:
		return dialTCP(addr, tlsConfig)
	case KindWebSocket:
		return dialWebSocket(addr, tlsConfig)
	default:
		return nil, fmt.Errorf("transport: unknown dial kind %q", kind)
	}
}

func dialTCP(addr string, tlsConfig *tls.Config) (Stream, error) {
	if tlsConfig != nil {
		conn, err := tls.Dial("tcp", addr, tlsConfig)
		if err != nil {
			return nil, fmt.Errorf("transport: tls dial %s: %w", addr, err)
		}
		return NewTCPStream(conn), nil
	}
	conn, err := net.Dial("tcp", addr)
	if err != nil {
		return nil, fmt.Errorf("transport: dial %s: %w", addr, err)
	}
	return NewTCPStream(conn), nil
}

func dialWebSocket(addr string, tlsConfig *tls.Config) (Stream, error) {
	scheme := "ws"
	if tlsConfig != nil {
		scheme = "wss"
	}
	u := url.URL{Scheme: scheme, Host: addr, Path: "/"}
	dialer := *websocket.DefaultDialer
	dialer.TLSClientConfig = tlsConfig
	conn, _, err := dialer.Dial(u.String(), nil)
	if err != nil {
		return nil, fmt.Errorf("transport: websocket dial %s: %w", addr, err)
	}
	return NewWebSocketStream(conn), nil
}

// ResolveKind parses a config transport name into a Kind.
func ResolveKind(name string) (Kind, error) {
	switch Kind(name) {
	case KindTCP, KindWebSocket:
		return Kind(name), nil
	default:
		return "", fmt.Errorf("transport: unknown kind %q", name)
	}
}
