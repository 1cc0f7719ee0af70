package peer

import (
	"context"
	"errors"
	"fmt"
	"io"
	"sync"
	"sync/atomic"

	"github.com/danmuck/correspond/internal/auth"
	"github.com/danmuck/correspond/internal/correspondence"
	"github.com/danmuck/correspond/internal/idgen"
	"github.com/danmuck/correspond/internal/logging"
	"github.com/danmuck/correspond/internal/metrics"
	"github.com/danmuck/correspond/internal/protocol"
	"github.com/danmuck/correspond/internal/transport"
)

// CorrespondenceHandler is notified when a remote-initiated correspondence
// is observed, before its first frame is ingested.
type CorrespondenceHandler func(*correspondence.Correspondence)

// ErrorHandler is notified of InvalidMessage and Streaming errors observed
// on this Peer's stream.
type ErrorHandler func(error)

// DisconnectHandler is notified once, when the Peer disconnects.
type DisconnectHandler func()

type corrSub struct {
	id uint64
	fn CorrespondenceHandler
}

type errSub struct {
	id uint64
	fn ErrorHandler
}

type discSub struct {
	id uint64
	fn DisconnectHandler
}

// Peer binds one transport.Stream, demultiplexing inbound frames into
// correspondence.Correspondence values and serializing outbound ones.
type Peer struct {
	id            string
	stream        transport.Stream
	logger        logging.Logger
	metrics       metrics.Recorder
	authValidator auth.Validator

	writeMu sync.Mutex

	mu              sync.Mutex
	correspondences map[string]*correspondence.Correspondence

	disconnected atomic.Bool
	ctx          context.Context
	cancel       context.CancelFunc

	eventMu      sync.Mutex
	nextSubID    uint64
	corrHandlers []corrSub
	errHandlers  []errSub
	discHandlers []discSub
}

// New binds a Peer to stream. id is an opaque identifier used only for
// logging.
func New(id string, stream transport.Stream) *Peer {
	ctx, cancel := context.WithCancel(context.Background())
	return &Peer{
		id:              id,
		stream:          stream,
		logger:          logging.Noop{},
		metrics:         metrics.Noop{},
		correspondences: make(map[string]*correspondence.Correspondence),
		ctx:             ctx,
		cancel:          cancel,
	}
}

// SetLogger injects the structured-logging sink. Must be called before Run.
func (p *Peer) SetLogger(log logging.Logger) {
	if log == nil {
		log = logging.Noop{}
	}
	p.logger = log
}

// SetMetrics injects the observability sink. Must be called before Run.
func (p *Peer) SetMetrics(rec metrics.Recorder) {
	if rec == nil {
		rec = metrics.Noop{}
	}
	p.metrics = rec
}

// SetAuthValidator installs the optional authorization hook consulted when
// a brand-new correspondence is created from an inbound message.
func (p *Peer) SetAuthValidator(v auth.Validator) {
	p.authValidator = v
}

// ID returns the opaque identifier this Peer was constructed with.
func (p *Peer) ID() string { return p.id }

// IsConnected reports whether Disconnect has not yet been called and the
// ingestion loop has not observed a terminal stream error.
func (p *Peer) IsConnected() bool { return !p.disconnected.Load() }

// OnCorrespondence registers fn to run synchronously for every
// remote-initiated correspondence, before its first frame is ingested. The
// returned func unregisters it.
func (p *Peer) OnCorrespondence(fn CorrespondenceHandler) func() {
	p.eventMu.Lock()
	id := p.nextSubID
	p.nextSubID++
	p.corrHandlers = append(p.corrHandlers, corrSub{id: id, fn: fn})
	p.eventMu.Unlock()
	return func() {
		p.eventMu.Lock()
		defer p.eventMu.Unlock()
		for i, h := range p.corrHandlers {
			if h.id == id {
				p.corrHandlers = append(p.corrHandlers[:i:i], p.corrHandlers[i+1:]...)
				return
			}
		}
	}
}

// OnError registers fn to run for every InvalidMessage/Streaming error
// observed on this Peer. The returned func unregisters it.
func (p *Peer) OnError(fn ErrorHandler) func() {
	p.eventMu.Lock()
	id := p.nextSubID
	p.nextSubID++
	p.errHandlers = append(p.errHandlers, errSub{id: id, fn: fn})
	p.eventMu.Unlock()
	return func() {
		p.eventMu.Lock()
		defer p.eventMu.Unlock()
		for i, h := range p.errHandlers {
			if h.id == id {
				p.errHandlers = append(p.errHandlers[:i:i], p.errHandlers[i+1:]...)
				return
			}
		}
	}
}

// OnDisconnect registers fn to run once when the Peer disconnects. The
// returned func unregisters it.
func (p *Peer) OnDisconnect(fn DisconnectHandler) func() {
	p.eventMu.Lock()
	id := p.nextSubID
	p.nextSubID++
	p.discHandlers = append(p.discHandlers, discSub{id: id, fn: fn})
	p.eventMu.Unlock()
	return func() {
		p.eventMu.Lock()
		defer p.eventMu.Unlock()
		for i, h := range p.discHandlers {
			if h.id == id {
				p.discHandlers = append(p.discHandlers[:i:i], p.discHandlers[i+1:]...)
				return
			}
		}
	}
}

func (p *Peer) fireCorrespondence(c *correspondence.Correspondence) {
	p.eventMu.Lock()
	handlers := make([]corrSub, len(p.corrHandlers))
	copy(handlers, p.corrHandlers)
	p.eventMu.Unlock()
	for _, h := range handlers {
		h.fn(c)
	}
}

func (p *Peer) fireError(err error) {
	p.eventMu.Lock()
	handlers := make([]errSub, len(p.errHandlers))
	copy(handlers, p.errHandlers)
	p.eventMu.Unlock()
	for _, h := range handlers {
		h.fn(err)
	}
}

func (p *Peer) fireDisconnect() {
	p.eventMu.Lock()
	handlers := make([]discSub, len(p.discHandlers))
	copy(handlers, p.discHandlers)
	p.eventMu.Unlock()
	for _, h := range handlers {
		h.fn()
	}
}

// WriteFrame serializes msg under the writer lock. It implements
// correspondence.Owner.
func (p *Peer) WriteFrame(msg protocol.Message) error {
	p.writeMu.Lock()
	defer p.writeMu.Unlock()
	if err := protocol.Encode(p.stream, msg); err != nil {
		return err
	}
	p.metrics.FrameEncoded(string(msg.Type))
	return nil
}

// Forget removes id from the correspondence map. It implements
// correspondence.Owner.
func (p *Peer) Forget(id string) {
	p.mu.Lock()
	delete(p.correspondences, id)
	p.mu.Unlock()
}

// Send assigns a correspondenceId if absent, validates msg, writes exactly
// one frame, records the new correspondence, and returns it.
func (p *Peer) Send(msg protocol.Message) (*correspondence.Correspondence, error) {
	if p.disconnected.Load() {
		return nil, ErrDisconnected
	}
	if msg.Header.CorrespondenceID == "" {
		msg.Header.CorrespondenceID = idgen.NewCorrespondenceID()
	}
	if err := msg.Validate(); err != nil {
		return nil, err
	}

	p.mu.Lock()
	if p.disconnected.Load() {
		p.mu.Unlock()
		return nil, ErrDisconnected
	}
	if _, exists := p.correspondences[msg.Header.CorrespondenceID]; exists {
		p.mu.Unlock()
		return nil, ErrDuplicateCorrespondence
	}
	c := correspondence.New(p, msg.Header.CorrespondenceID, msg.Header, p.ctx, p.metrics, p.logger)
	p.correspondences[msg.Header.CorrespondenceID] = c
	p.mu.Unlock()

	if err := p.WriteFrame(msg); err != nil {
		p.Forget(msg.Header.CorrespondenceID)
		return nil, err
	}
	if msg.Type == protocol.MessageTypeFinish || msg.Type == protocol.MessageTypeError {
		c.MarkWriteClosed()
	}
	return c, nil
}

// Correspond creates a correspondence without sending a frame, so the
// caller can subsequently stream data/finish as it pleases.
func (p *Peer) Correspond(header protocol.MessageHeader) (*correspondence.Correspondence, error) {
	if p.disconnected.Load() {
		return nil, ErrDisconnected
	}
	if header.Subject == "" {
		return nil, fmt.Errorf("%w: header.subject is empty", protocol.ErrInvalidMessage)
	}
	if header.CorrespondenceID == "" {
		header.CorrespondenceID = idgen.NewCorrespondenceID()
	}

	p.mu.Lock()
	defer p.mu.Unlock()
	if p.disconnected.Load() {
		return nil, ErrDisconnected
	}
	if _, exists := p.correspondences[header.CorrespondenceID]; exists {
		return nil, ErrDuplicateCorrespondence
	}
	c := correspondence.New(p, header.CorrespondenceID, header, p.ctx, p.metrics, p.logger)
	p.correspondences[header.CorrespondenceID] = c
	return c, nil
}

// Receive suspends until the next remote-initiated correspondence becomes
// known, ctx is cancelled, or the Peer disconnects.
func (p *Peer) Receive(ctx context.Context) (*correspondence.Correspondence, error) {
	ch := make(chan *correspondence.Correspondence, 1)
	unregister := p.OnCorrespondence(func(c *correspondence.Correspondence) {
		select {
		case ch <- c:
		default:
		}
	})
	defer unregister()

	select {
	case c := <-ch:
		return c, nil
	case <-ctx.Done():
		return nil, ctx.Err()
	case <-p.ctx.Done():
		return nil, ErrDisconnected
	}
}

// Disconnect detaches the ingestion loop from the stream, forcibly closes
// every live correspondence still tracked on this Peer so a handler
// holding a reference to one gets ErrPeerDisconnected instead of writing
// to a dead stream, and emits a disconnect notification. It is idempotent.
// The underlying stream is not closed here; transport adapters own that.
func (p *Peer) Disconnect() {
	if !p.disconnected.CompareAndSwap(false, true) {
		return
	}

	p.mu.Lock()
	live := make([]*correspondence.Correspondence, 0, len(p.correspondences))
	for _, c := range p.correspondences {
		live = append(live, c)
	}
	p.correspondences = make(map[string]*correspondence.Correspondence)
	p.mu.Unlock()

	for _, c := range live {
		c.ForceDisconnect()
	}

	p.cancel()
	p.fireDisconnect()
}

// Run drives the ingestion loop until the stream closes, a fatal I/O error
// occurs, or ctx is cancelled. It returns nil on a clean stream close.
// Disconnect is invoked automatically before Run returns.
func (p *Peer) Run(ctx context.Context) error {
	defer p.Disconnect()

	go func() {
		select {
		case <-ctx.Done():
			p.Disconnect()
		case <-p.ctx.Done():
		}
	}()

	parser := protocol.NewParser(p.stream)
	for {
		msg, err := parser.Next()
		if err != nil {
			if errors.Is(err, io.EOF) {
				return nil
			}
			var streamErr *protocol.StreamingError
			if errors.As(err, &streamErr) {
				p.fireError(streamErr)
				continue
			}
			p.fireError(&protocol.StreamingError{Err: err})
			return err
		}
		p.metrics.FrameDecoded(string(msg.Type))
		p.dispatch(msg)
	}
}

// dispatch validates an inbound frame, routes it to an existing
// correspondence, or creates a new one and fires the correspondence event
// before the first frame is consumed.
//
// A correspondence id can be reused as soon as both halves of the prior
// correspondence with that id have closed. The handler that observed the
// second half-close runs on its own goroutine and evicts asynchronously
// via Forget, so a frame for the reused id can reach this loop before that
// eviction lands. Routing checks for that case directly — a map entry that
// is already fully closed is treated the same as no entry at all — instead
// of relying on Forget's timing.
func (p *Peer) dispatch(msg protocol.Message) {
	if err := msg.Validate(); err != nil {
		p.fireError(err)
		return
	}

	p.mu.Lock()
	existing, ok := p.correspondences[msg.Header.CorrespondenceID]
	if ok && !existing.Readable() && !existing.Writable() {
		delete(p.correspondences, msg.Header.CorrespondenceID)
		ok = false
	}
	p.mu.Unlock()
	if ok {
		existing.Ingest(msg)
		return
	}

	if p.authValidator != nil {
		if err := p.authValidator.Validate(msg.Header.Authorization); err != nil {
			p.fireError(fmt.Errorf("%w: unauthorized correspondence %q: %v", protocol.ErrInvalidMessage, msg.Header.CorrespondenceID, err))
			return
		}
	}

	c := correspondence.New(p, msg.Header.CorrespondenceID, msg.Header, p.ctx, p.metrics, p.logger)
	p.mu.Lock()
	p.correspondences[msg.Header.CorrespondenceID] = c
	p.mu.Unlock()

	p.fireCorrespondence(c)
	c.Ingest(msg)
}
