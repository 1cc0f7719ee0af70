package correspondence

import (
	"errors"
	"fmt"
)

// ErrUnwritableCorrespondence is raised locally when user code writes,
// finishes, or errors a correspondence whose write side already closed.
var ErrUnwritableCorrespondence = errors.New("correspondence: unwritable")

// ErrUnreadableCorrespondence is raised locally when Next/All is called on
// a correspondence whose read side already closed.
var ErrUnreadableCorrespondence = errors.New("correspondence: unreadable")

// ErrPeerDisconnected is raised when the owning Peer has disconnected,
// either because the local side called Disconnect or the transport closed.
var ErrPeerDisconnected = errors.New("correspondence: peer disconnected")

// End is the sentinel Next returns once a Finish has been fully consumed
// (its body, if any, is delivered as its own chunk first).
var End = errors.New("correspondence: end of stream")

// RemoteError carries an Error frame received on a correspondence, routed
// to the waiter of Next/All.
type RemoteError struct {
	Type    string
	Message string
}

func (e *RemoteError) Error() string {
	return fmt.Sprintf("correspondence: remote error %s: %s", e.Type, e.Message)
}
