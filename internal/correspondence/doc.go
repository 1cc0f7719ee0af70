// Package correspondence implements the Correspondence runtime entity: a
// stateful bidirectional conduit identified by a correspondence id, and the
// site of both producing and consuming the message stream belonging to one
// logical exchange.
package correspondence
