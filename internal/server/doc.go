// Package server wraps any number of peer.Peer values, dispatches newly
// observed inbound correspondences to user-registered subject handlers, runs
// exception handlers when a handler fails, and enforces the "a handler must
// terminate the correspondence it owns" contract.
package server
