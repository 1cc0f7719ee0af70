package server

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/danmuck/correspond/internal/auth"
	"github.com/danmuck/correspond/internal/correspondence"
	"github.com/danmuck/correspond/internal/idgen"
	"github.com/danmuck/correspond/internal/logging"
	"github.com/danmuck/correspond/internal/metrics"
	"github.com/danmuck/correspond/internal/peer"
	"github.com/danmuck/correspond/internal/protocol"
	"github.com/danmuck/correspond/internal/transport"
)

// Handler processes a newly observed correspondence. A non-nil return value
// enters the exception pipeline, the same as a recovered panic.
type Handler func(c *correspondence.Correspondence) error

// ExceptionHandler responds to a Handler failure through a writable view of
// the correspondence that threw it.
type ExceptionHandler func(view correspondence.WritableView, exc any) error

// ConnectHandler is notified when a stream is connected to the Server.
type ConnectHandler func(stream transport.Stream, p *peer.Peer)

// DisconnectHandler is notified when a Peer owned by the Server disconnects.
type DisconnectHandler func(stream transport.Stream, p *peer.Peer)

// ErrorHandler is notified of InvalidMessage/Streaming errors forwarded
// from any owned Peer, and of UnfinishedCorrespondenceErrors raised by the
// Server itself.
type ErrorHandler func(error)

// Server hosts a set of Peers, routes their newly observed correspondences
// to subject handlers, and runs an exception pipeline on handler failure.
type Server struct {
	logger        logging.Logger
	metrics       metrics.Recorder
	authValidator auth.Validator

	mu                sync.RWMutex
	handlers          map[string]Handler
	defaultHandler    Handler
	exceptionHandlers []ExceptionHandler

	peersMu sync.Mutex
	peers   map[transport.Stream]*peer.Peer

	eventMu      sync.Mutex
	onConnect    []ConnectHandler
	onDisconnect []DisconnectHandler
	onError      []ErrorHandler
}

// New constructs a Server with the built-in unknown-subject default handler
// and an empty exception chain (the built-in default exception handler
// always runs at the tail, implicitly).
func New() *Server {
	return &Server{
		logger:         logging.Noop{},
		metrics:        metrics.Noop{},
		handlers:       make(map[string]Handler),
		defaultHandler: unknownSubjectHandler,
		peers:          make(map[transport.Stream]*peer.Peer),
	}
}

// SetLogger injects the structured-logging sink applied to every
// subsequently connected Peer.
func (s *Server) SetLogger(log logging.Logger) {
	if log == nil {
		log = logging.Noop{}
	}
	s.logger = log
}

// SetMetrics injects the observability sink applied to every subsequently
// connected Peer.
func (s *Server) SetMetrics(rec metrics.Recorder) {
	if rec == nil {
		rec = metrics.Noop{}
	}
	s.metrics = rec
}

// SetAuthValidator installs the authorization hook applied to every
// subsequently connected Peer.
func (s *Server) SetAuthValidator(v auth.Validator) {
	s.authValidator = v
}

// Handle registers a single handler per subject, warning and replacing on
// duplicate registration.
func (s *Server) Handle(subject string, h Handler) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, exists := s.handlers[subject]; exists {
		s.logger.Warnf("server: replacing handler for subject %q", subject)
	}
	s.handlers[subject] = h
}

// DefaultHandler replaces the built-in unknown-subject responder.
func (s *Server) DefaultHandler(h Handler) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.defaultHandler = h
}

// HandleException prepends handlers to the exception chain so the most
// recently registered handler runs first. The built-in default exception
// handler always runs after every user handler, at the tail.
func (s *Server) HandleException(handlers ...ExceptionHandler) {
	s.mu.Lock()
	defer s.mu.Unlock()
	next := make([]ExceptionHandler, 0, len(handlers)+len(s.exceptionHandlers))
	next = append(next, handlers...)
	next = append(next, s.exceptionHandlers...)
	s.exceptionHandlers = next
}

// Configure calls fn(s); pure convenience for bundling handler registration.
func (s *Server) Configure(fn func(*Server)) {
	fn(s)
}

// Connect constructs a Peer bound to stream, subscribes to its events,
// registers it in the stream→Peer map, starts its ingestion loop, and fires
// a connect notification.
func (s *Server) Connect(stream transport.Stream) *peer.Peer {
	p := peer.New(idgen.NewPeerID(), stream)
	p.SetLogger(s.logger)
	p.SetMetrics(s.metrics)
	if s.authValidator != nil {
		p.SetAuthValidator(s.authValidator)
	}

	p.OnCorrespondence(func(c *correspondence.Correspondence) {
		s.dispatch(c)
	})
	p.OnError(func(err error) {
		s.fireError(err)
	})
	p.OnDisconnect(func() {
		s.peersMu.Lock()
		delete(s.peers, stream)
		s.peersMu.Unlock()
		s.fireDisconnect(stream, p)
	})

	s.peersMu.Lock()
	s.peers[stream] = p
	s.peersMu.Unlock()

	go func() { _ = p.Run(context.Background()) }()

	s.fireConnect(stream, p)
	return p
}

// Disconnect invokes Disconnect on the Peer bound to stream, if any.
func (s *Server) Disconnect(stream transport.Stream) {
	s.peersMu.Lock()
	p, ok := s.peers[stream]
	s.peersMu.Unlock()
	if ok {
		p.Disconnect()
	}
}

// Peers returns a snapshot of currently connected Peers.
func (s *Server) Peers() []*peer.Peer {
	s.peersMu.Lock()
	defer s.peersMu.Unlock()
	out := make([]*peer.Peer, 0, len(s.peers))
	for _, p := range s.peers {
		out = append(out, p)
	}
	return out
}

// OnConnect registers fn to run whenever a stream is connected.
func (s *Server) OnConnect(fn ConnectHandler) {
	s.eventMu.Lock()
	s.onConnect = append(s.onConnect, fn)
	s.eventMu.Unlock()
}

// OnDisconnect registers fn to run whenever an owned Peer disconnects.
func (s *Server) OnDisconnect(fn DisconnectHandler) {
	s.eventMu.Lock()
	s.onDisconnect = append(s.onDisconnect, fn)
	s.eventMu.Unlock()
}

// OnError registers fn to run for every forwarded Peer error and every
// UnfinishedCorrespondenceError raised by the Server.
func (s *Server) OnError(fn ErrorHandler) {
	s.eventMu.Lock()
	s.onError = append(s.onError, fn)
	s.eventMu.Unlock()
}

func (s *Server) fireConnect(stream transport.Stream, p *peer.Peer) {
	s.eventMu.Lock()
	handlers := append([]ConnectHandler(nil), s.onConnect...)
	s.eventMu.Unlock()
	for _, fn := range handlers {
		fn(stream, p)
	}
}

func (s *Server) fireDisconnect(stream transport.Stream, p *peer.Peer) {
	s.eventMu.Lock()
	handlers := append([]DisconnectHandler(nil), s.onDisconnect...)
	s.eventMu.Unlock()
	for _, fn := range handlers {
		fn(stream, p)
	}
}

func (s *Server) fireError(err error) {
	s.eventMu.Lock()
	handlers := append([]ErrorHandler(nil), s.onError...)
	s.eventMu.Unlock()
	for _, fn := range handlers {
		fn(err)
	}
}

func (s *Server) resolveHandler(subject string) Handler {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if h, ok := s.handlers[subject]; ok {
		return h
	}
	return s.defaultHandler
}

// dispatch runs the resolved handler on its own goroutine so a blocking
// handler never stalls the owning Peer's ingestion loop.
func (s *Server) dispatch(c *correspondence.Correspondence) {
	go func() {
		subject := c.Header().Subject
		handler := s.resolveHandler(subject)

		start := time.Now()
		exc := s.invoke(handler, c)
		s.metrics.DispatchDuration(subject, time.Since(start))

		if exc != nil {
			s.runExceptionPipeline(c, exc)
		}

		if c.Writable() {
			s.fireError(&UnfinishedCorrespondenceError{
				Subject:          subject,
				CorrespondenceID: c.ID(),
			})
		}
	}()
}

func (s *Server) invoke(h Handler, c *correspondence.Correspondence) (exc any) {
	defer func() {
		if r := recover(); r != nil {
			exc = r
		}
	}()
	if err := h(c); err != nil {
		return err
	}
	return nil
}

// runExceptionPipeline iterates the exception handlers from head to tail,
// stopping as soon as the correspondence becomes unwritable. The built-in
// default exception handler is appended at the tail of every run.
func (s *Server) runExceptionPipeline(c *correspondence.Correspondence, exc any) {
	view := c.AsWritable()

	s.mu.RLock()
	handlers := make([]ExceptionHandler, len(s.exceptionHandlers), len(s.exceptionHandlers)+1)
	copy(handlers, s.exceptionHandlers)
	s.mu.RUnlock()
	handlers = append(handlers, defaultExceptionHandler)

	for _, h := range handlers {
		if !view.Writable() {
			break
		}
		if err := s.invokeException(h, view, exc); err != nil {
			s.logger.Errf("server: exception handler failed: %v", err)
			if view.Writable() {
				_ = view.Error(protocol.MessageError{
					Type:    "GenericError",
					Message: "Failed processing correspondence",
				})
			}
			break
		}
	}
	s.metrics.ExceptionHandled(c.Header().Subject)
}

func (s *Server) invokeException(h ExceptionHandler, view correspondence.WritableView, exc any) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("%v", r)
		}
	}()
	return h(view, exc)
}

// unknownSubjectHandler is the built-in default handler.
func unknownSubjectHandler(c *correspondence.Correspondence) error {
	subject := c.Header().Subject
	return c.Error(protocol.MessageError{
		Type:    "UnknownSubject",
		Message: "Unknown subject: " + subject,
	})
}

// defaultExceptionHandler is the built-in catch-all pinned at the tail of
// every exception pipeline run.
func defaultExceptionHandler(view correspondence.WritableView, exc any) error {
	msgErr := protocol.MessageError{Type: "UnknownError", Message: "Unexpected error occurred!"}
	switch v := exc.(type) {
	case *HandlerError:
		msgErr.Type = v.Kind
		msgErr.Message = v.Message
	case error:
		msgErr.Message = v.Error()
	case string:
		msgErr.Message = v
	}
	return view.Error(msgErr)
}
