package metrics

import "time"

// Recorder is the collaborator the protocol core calls into for frame and
// correspondence lifecycle observability.
// Implementations must be non-blocking: the calling goroutine is either the
// Peer's single ingestion loop or a handler's own goroutine, and a blocking
// Recorder would stall the protocol.
type Recorder interface {
	FrameEncoded(msgType string)
	FrameDecoded(msgType string)
	CorrespondenceOpened()
	CorrespondenceClosed()
	DispatchDuration(subject string, d time.Duration)
	ExceptionHandled(subject string)
}

// Noop discards every observation. It is the zero-value default for
// components constructed without an injected Recorder.
type Noop struct{}

func (Noop) FrameEncoded(string)                    {}
func (Noop) FrameDecoded(string)                    {}
func (Noop) CorrespondenceOpened()                  {}
func (Noop) CorrespondenceClosed()                  {}
func (Noop) DispatchDuration(string, time.Duration) {}
func (Noop) ExceptionHandled(string)                {}
