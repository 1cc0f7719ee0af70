package correspondence

import (
	"context"
	"fmt"
	"sync"

	"github.com/danmuck/correspond/internal/logging"
	"github.com/danmuck/correspond/internal/metrics"
	"github.com/danmuck/correspond/internal/protocol"
)

// chunkBufferSize bounds the per-correspondence event channel. A full
// buffer stalls the owning Peer's Ingest call, which is the intended
// backpressure mechanism.
const chunkBufferSize = 8

// Owner is the narrow surface a Correspondence needs from whatever owns
// the wire: serialize one frame, and forget this correspondence once both
// halves have closed. A Peer implements this.
type Owner interface {
	WriteFrame(msg protocol.Message) error
	Forget(id string)
}

// ReadHandler runs once per delivered chunk/end/error event inside Next. It
// may mutate readCtx (reset to an empty map at the start of every Next
// call) or return an error, which Next then propagates to its caller.
type ReadHandler func(body any, header protocol.MessageHeader, readCtx map[string]any) error

type eventKind int

const (
	eventChunk eventKind = iota
	eventEnd
	eventError
)

type readEvent struct {
	kind   eventKind
	body   any
	header protocol.MessageHeader
	err    *protocol.MessageError
}

// Correspondence is the stateful bidirectional conduit identified by one
// correspondence id.
type Correspondence struct {
	owner   Owner
	id      string
	metrics metrics.Recorder
	logger  logging.Logger

	mu               sync.Mutex
	header           protocol.MessageHeader
	readable         bool
	writable         bool
	drained          bool
	closed           bool
	peerDisconnected bool
	readCtx          map[string]any

	events chan readEvent
	ctx    context.Context
	cancel context.CancelFunc
}

// New constructs a Correspondence bound to owner. parent is typically the
// owning Peer's lifetime context; when it is cancelled (Peer disconnect)
// every pending Next/All wakes with ErrPeerDisconnected.
func New(
	owner Owner,
	id string,
	header protocol.MessageHeader,
	parent context.Context,
	rec metrics.Recorder,
	log logging.Logger,
) *Correspondence {
	if rec == nil {
		rec = metrics.Noop{}
	}
	if log == nil {
		log = logging.Noop{}
	}
	ctx, cancel := context.WithCancel(parent)
	c := &Correspondence{
		owner:    owner,
		id:       id,
		metrics:  rec,
		logger:   log,
		header:   header,
		readable: true,
		writable: true,
		events:   make(chan readEvent, chunkBufferSize),
		ctx:      ctx,
		cancel:   cancel,
	}
	rec.CorrespondenceOpened()
	return c
}

// MarkWriteClosed reconciles write-side bookkeeping with a frame that was
// already transmitted by the caller outside Write/Finish/Error (used by
// peer.Peer.Send for the single frame that both creates and may terminate a
// locally-initiated correspondence). It is a no-op if the write side is
// already closed.
func (c *Correspondence) MarkWriteClosed() {
	c.mu.Lock()
	if !c.writable {
		c.mu.Unlock()
		return
	}
	c.writable = false
	c.mu.Unlock()
	c.maybeFinalize()
}

// ForceDisconnect closes both sides without sending a frame, used by the
// owning Peer when it disconnects. Unlike a normal Finish/Error closure,
// subsequent Write/Finish/Error calls return ErrPeerDisconnected rather
// than ErrUnwritableCorrespondence, and a pending Next/All wakes the same
// way via ctx. It is idempotent and does not call Owner.Forget; the Peer
// has already evicted this correspondence from its own map.
func (c *Correspondence) ForceDisconnect() {
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return
	}
	c.readable = false
	c.writable = false
	c.peerDisconnected = true
	c.closed = true
	c.mu.Unlock()

	c.cancel()
	c.metrics.CorrespondenceClosed()
}

// ID returns the correspondence id.
func (c *Correspondence) ID() string { return c.id }

// Header returns the most recently observed header (inbound frames replace
// it in full, so late authorization rotations and custom fields propagate).
func (c *Correspondence) Header() protocol.MessageHeader {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.header
}

// Readable reports whether the read side is still open.
func (c *Correspondence) Readable() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.readable
}

// Writable reports whether the write side is still open.
func (c *Correspondence) Writable() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.writable
}

// Context is cancelled once the correspondence fully terminates or the
// owning Peer disconnects, whichever happens first.
func (c *Correspondence) Context() context.Context { return c.ctx }

// Ingest routes one inbound frame into the read side. It is called
// exclusively by the owning Peer's ingestion loop.
func (c *Correspondence) Ingest(msg protocol.Message) {
	c.mu.Lock()
	if !c.readable {
		c.mu.Unlock()
		c.logger.Warnf("correspondence.Ingest id=%q dropped frame: already unreadable", c.id)
		return
	}
	c.header = msg.Header
	c.mu.Unlock()

	effectiveType := msg.Type
	if effectiveType == protocol.MessageTypeRequest {
		effectiveType = protocol.MessageTypeData
	}

	switch effectiveType {
	case protocol.MessageTypeData:
		c.publish(readEvent{kind: eventChunk, body: msg.Body, header: msg.Header})
	case protocol.MessageTypeFinish:
		c.mu.Lock()
		c.readable = false
		c.mu.Unlock()
		if msg.Body != nil {
			c.publish(readEvent{kind: eventChunk, body: msg.Body, header: msg.Header})
		}
		c.publish(readEvent{kind: eventEnd, header: msg.Header})
		c.maybeFinalize()
	case protocol.MessageTypeError:
		c.mu.Lock()
		c.readable = false
		c.mu.Unlock()
		c.publish(readEvent{kind: eventError, header: msg.Header, err: msg.Error})
		c.maybeFinalize()
	}
}

func (c *Correspondence) publish(ev readEvent) {
	select {
	case c.events <- ev:
	case <-c.ctx.Done():
	}
}

// Write sends a Data frame. It fails with ErrUnwritableCorrespondence if
// the write side already closed.
func (c *Correspondence) Write(body any) error {
	c.mu.Lock()
	if c.peerDisconnected {
		c.mu.Unlock()
		return ErrPeerDisconnected
	}
	if !c.writable {
		c.mu.Unlock()
		return ErrUnwritableCorrespondence
	}
	header := c.header
	c.mu.Unlock()

	if err := c.owner.WriteFrame(protocol.Message{
		Type:   protocol.MessageTypeData,
		Header: header,
		Body:   body,
	}); err != nil {
		return err
	}
	return nil
}

// Finish sends a single Finish frame, optionally carrying a body, and
// closes the write side. A Finish with a body never produces a separate
// Data frame; the body travels on the terminating frame itself.
func (c *Correspondence) Finish(body ...any) error {
	var b any
	if len(body) > 0 {
		b = body[0]
	}
	c.mu.Lock()
	if c.peerDisconnected {
		c.mu.Unlock()
		return ErrPeerDisconnected
	}
	if !c.writable {
		c.mu.Unlock()
		return ErrUnwritableCorrespondence
	}
	c.writable = false
	header := c.header
	c.mu.Unlock()

	if err := c.owner.WriteFrame(protocol.Message{
		Type:   protocol.MessageTypeFinish,
		Header: header,
		Body:   b,
	}); err != nil {
		return err
	}
	c.maybeFinalize()
	return nil
}

// Error sends an Error frame and closes the write side.
func (c *Correspondence) Error(msgErr protocol.MessageError) error {
	c.mu.Lock()
	if c.peerDisconnected {
		c.mu.Unlock()
		return ErrPeerDisconnected
	}
	if !c.writable {
		c.mu.Unlock()
		return ErrUnwritableCorrespondence
	}
	c.writable = false
	header := c.header
	c.mu.Unlock()

	errCopy := msgErr
	if err := c.owner.WriteFrame(protocol.Message{
		Type:   protocol.MessageTypeError,
		Header: header,
		Error:  &errCopy,
	}); err != nil {
		return err
	}
	c.maybeFinalize()
	return nil
}

func (c *Correspondence) maybeFinalize() {
	c.mu.Lock()
	if c.closed || c.readable || c.writable {
		c.mu.Unlock()
		return
	}
	c.closed = true
	c.mu.Unlock()

	c.cancel()
	c.metrics.CorrespondenceClosed()
	c.owner.Forget(c.id)
}

// Next cooperatively waits for the next data chunk, terminal signal, or
// cancellation. Before returning it resets the per-read context to an
// empty map and runs each handler in order.
func (c *Correspondence) Next(ctx context.Context, handlers ...ReadHandler) (any, error) {
	c.mu.Lock()
	if c.drained {
		c.mu.Unlock()
		return nil, ErrUnreadableCorrespondence
	}
	c.mu.Unlock()

	select {
	case ev := <-c.events:
		return c.resolveEvent(ev, handlers)
	case <-ctx.Done():
		return nil, ctx.Err()
	case <-c.ctx.Done():
		return nil, ErrPeerDisconnected
	}
}

func (c *Correspondence) resolveEvent(ev readEvent, handlers []ReadHandler) (any, error) {
	c.mu.Lock()
	readCtx := make(map[string]any)
	c.readCtx = readCtx
	c.mu.Unlock()

	for _, h := range handlers {
		if h == nil {
			continue
		}
		if err := h(ev.body, ev.header, readCtx); err != nil {
			if ev.kind != eventChunk {
				c.mu.Lock()
				c.drained = true
				c.mu.Unlock()
			}
			return nil, err
		}
	}

	switch ev.kind {
	case eventChunk:
		return ev.body, nil
	case eventEnd:
		c.mu.Lock()
		c.drained = true
		c.mu.Unlock()
		return nil, End
	case eventError:
		c.mu.Lock()
		c.drained = true
		c.mu.Unlock()
		if ev.err == nil {
			return nil, &RemoteError{Type: "UnknownError", Message: "remote error"}
		}
		return nil, &RemoteError{Type: ev.err.Type, Message: ev.err.Message}
	default:
		return nil, fmt.Errorf("correspondence: unknown event kind %d", ev.kind)
	}
}

// All returns a lazy, finite, range-over-func sequence: repeatedly calling
// Next until End is observed. Errors other than End are yielded once and
// stop iteration. Calling All again produces a fresh iterator over the same
// underlying cursor — there is no separate per-iterator replay state,
// matching "restartable by construction" async-generator semantics.
func (c *Correspondence) All(handlers ...ReadHandler) func(func(any, error) bool) {
	return func(yield func(any, error) bool) {
		for {
			body, err := c.Next(context.Background(), handlers...)
			if err != nil {
				if err == End {
					return
				}
				yield(nil, err)
				return
			}
			if !yield(body, nil) {
				return
			}
		}
	}
}

// WritableView exposes only the write/terminate surface of a
// Correspondence, sharing the same underlying state (both close together).
// It is handed to exception handlers, which may finish or error out a
// correspondence but should not read from it.
type WritableView struct {
	c *Correspondence
}

func (v WritableView) ID() string                              { return v.c.ID() }
func (v WritableView) Writable() bool                          { return v.c.Writable() }
func (v WritableView) Write(body any) error                    { return v.c.Write(body) }
func (v WritableView) Finish(body ...any) error                { return v.c.Finish(body...) }
func (v WritableView) Error(msgErr protocol.MessageError) error { return v.c.Error(msgErr) }

// AsWritable returns the writable view of c.
func (c *Correspondence) AsWritable() WritableView {
	return WritableView{c: c}
}
