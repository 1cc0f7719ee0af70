// Package transport provides the byte-stream adapters a Peer binds to: a
// minimal io.Reader/io.Writer/io.Closer surface satisfied by a TCP
// connection, a WebSocket connection, or an in-memory pipe.
package transport
