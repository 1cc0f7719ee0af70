// Package peer binds one transport stream: it demultiplexes incoming
// messages into the appropriate correspondence.Correspondence (creating new
// ones on demand), serializes outgoing messages under a single writer
// lock, and owns the connection lifecycle.
package peer
