package peer

import "errors"

// ErrDisconnected is raised by Send, Correspond, and Receive once the Peer
// has disconnected.
var ErrDisconnected = errors.New("peer: disconnected")

// ErrDuplicateCorrespondence is raised by Send/Correspond when the caller
// supplies a correspondenceId already tracked by this Peer.
var ErrDuplicateCorrespondence = errors.New("peer: correspondence id already in use")
