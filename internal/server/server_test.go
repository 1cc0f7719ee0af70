package server

import (
	"context"
	"sync/atomic"
	"testing"
	"time"

	"github.com/danmuck/correspond/internal/correspondence"
	"github.com/danmuck/correspond/internal/protocol"
	"github.com/danmuck/correspond/internal/testutil/testlog"
	"github.com/danmuck/correspond/internal/transport"
)

func newServerWithRemote(t *testing.T) (*Server, *transport.PipeStream, func()) {
	t.Helper()
	local, remote := transport.NewPipe()
	s := New()
	s.Connect(local)
	cleanup := func() {
		s.Disconnect(local)
		_ = local.Close()
		_ = remote.Close()
	}
	return s, remote, cleanup
}

func writeLine(t *testing.T, remote *transport.PipeStream, line string) {
	t.Helper()
	if _, err := remote.Write([]byte(line + "\n")); err != nil {
		t.Fatalf("write raw line: %v", err)
	}
}

func readFrame(t *testing.T, remote *transport.PipeStream) protocol.Message {
	t.Helper()
	parser := protocol.NewParser(remote)
	msg, err := parser.Next()
	if err != nil {
		t.Fatalf("readFrame: %v", err)
	}
	return msg
}

func readFrameWithParser(t *testing.T, parser *protocol.Parser) protocol.Message {
	t.Helper()
	msg, err := parser.Next()
	if err != nil {
		t.Fatalf("readFrame: %v", err)
	}
	return msg
}

func TestServerEchoRequestResponse(t *testing.T) {
	testlog.Start(t)
	s, remote, cleanup := newServerWithRemote(t)
	defer cleanup()

	s.Handle("echo", func(c *correspondence.Correspondence) error {
		ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
		defer cancel()
		body, err := c.Next(ctx)
		if err != nil {
			return err
		}
		return c.Finish(body)
	})

	writeLine(t, remote, `{"header":{"correspondenceId":"c1","subject":"echo"},"type":"data","body":"ping"}`)

	msg := readFrame(t, remote)
	if msg.Type != protocol.MessageTypeFinish || msg.Body != "ping" || msg.Header.CorrespondenceID != "c1" {
		t.Fatalf("unexpected response frame: %+v", msg)
	}
}

func TestServerStreamedResponse(t *testing.T) {
	testlog.Start(t)
	s, remote, cleanup := newServerWithRemote(t)
	defer cleanup()

	s.Handle("stream", func(c *correspondence.Correspondence) error {
		if err := c.Write("a"); err != nil {
			return err
		}
		if err := c.Write("b"); err != nil {
			return err
		}
		return c.Finish("c")
	})

	writeLine(t, remote, `{"header":{"correspondenceId":"c2","subject":"stream"}}`)

	parser := protocol.NewParser(remote)
	wantTypes := []protocol.MessageType{protocol.MessageTypeData, protocol.MessageTypeData, protocol.MessageTypeFinish}
	wantBodies := []any{"a", "b", "c"}
	for i := range wantTypes {
		msg := readFrameWithParser(t, parser)
		if msg.Type != wantTypes[i] || msg.Body != wantBodies[i] || msg.Header.CorrespondenceID != "c2" {
			t.Fatalf("frame %d: unexpected %+v", i, msg)
		}
	}
}

func TestServerUnknownSubject(t *testing.T) {
	testlog.Start(t)
	_, remote, cleanup := newServerWithRemote(t)
	defer cleanup()

	writeLine(t, remote, `{"header":{"correspondenceId":"c3","subject":"nope"},"type":"data","body":1}`)

	msg := readFrame(t, remote)
	if msg.Type != protocol.MessageTypeError || msg.Error == nil {
		t.Fatalf("expected error frame, got %+v", msg)
	}
	if msg.Error.Type != "UnknownSubject" || msg.Error.Message != "Unknown subject: nope" {
		t.Fatalf("unexpected error body: %+v", msg.Error)
	}
}

func TestServerHandlerThrowsDefaultExceptionHandlerRuns(t *testing.T) {
	testlog.Start(t)
	s, remote, cleanup := newServerWithRemote(t)
	defer cleanup()

	s.Handle("boom", func(c *correspondence.Correspondence) error {
		return &HandlerError{Kind: "K", Message: "m"}
	})

	writeLine(t, remote, `{"header":{"correspondenceId":"c4","subject":"boom"},"type":"data","body":null}`)

	msg := readFrame(t, remote)
	if msg.Type != protocol.MessageTypeError || msg.Error == nil {
		t.Fatalf("expected error frame, got %+v", msg)
	}
	if msg.Error.Type != "K" || msg.Error.Message != "m" {
		t.Fatalf("unexpected error body: %+v", msg.Error)
	}
}

func TestServerUnfinishedResponseEmitsServerError(t *testing.T) {
	testlog.Start(t)
	s, remote, cleanup := newServerWithRemote(t)
	defer cleanup()

	s.Handle("lazy", func(c *correspondence.Correspondence) error {
		return nil
	})

	errs := make(chan error, 1)
	s.OnError(func(err error) { errs <- err })

	writeLine(t, remote, `{"header":{"correspondenceId":"c5","subject":"lazy"},"type":"data","body":null}`)

	select {
	case err := <-errs:
		unfinished, ok := err.(*UnfinishedCorrespondenceError)
		if !ok {
			t.Fatalf("expected *UnfinishedCorrespondenceError, got %T: %v", err, err)
		}
		if unfinished.CorrespondenceID != "c5" || unfinished.Subject != "lazy" {
			t.Fatalf("unexpected unfinished correspondence error: %+v", unfinished)
		}
	case <-time.After(2 * time.Second):
		t.Fatalf("expected an UnfinishedCorrespondenceError event")
	}
}

func TestServerInvalidJSONLineThenWholeFramesStillProcessed(t *testing.T) {
	testlog.Start(t)
	s, remote, cleanup := newServerWithRemote(t)
	defer cleanup()

	s.Handle("echo", func(c *correspondence.Correspondence) error {
		ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
		defer cancel()
		body, err := c.Next(ctx)
		if err != nil {
			return err
		}
		return c.Finish(body)
	})

	errs := make(chan error, 1)
	s.OnError(func(err error) {
		select {
		case errs <- err:
		default:
		}
	})

	writeLine(t, remote, `{"header":{"correspondenceId":"c6a"`)
	writeLine(t, remote, `{"header":{"correspondenceId":"c6b","subject":"echo"},"type":"data","body":"ok"}`)

	select {
	case err := <-errs:
		if _, ok := err.(*protocol.StreamingError); !ok {
			t.Fatalf("expected *protocol.StreamingError, got %T: %v", err, err)
		}
	case <-time.After(2 * time.Second):
		t.Fatalf("expected a streaming error event for the malformed line")
	}

	msg := readFrame(t, remote)
	if msg.Type != protocol.MessageTypeFinish || msg.Body != "ok" || msg.Header.CorrespondenceID != "c6b" {
		t.Fatalf("expected the well-formed frame to still be processed, got %+v", msg)
	}
}

func TestServerLateChunkAfterFinishCreatesFreshCorrespondence(t *testing.T) {
	testlog.Start(t)
	s, remote, cleanup := newServerWithRemote(t)
	defer cleanup()

	var invocations atomic.Int32
	firstBodies := make(chan any, 4)
	secondBodies := make(chan any, 4)

	s.Handle("once", func(c *correspondence.Correspondence) error {
		n := invocations.Add(1)
		ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
		defer cancel()
		body, err := c.Next(ctx)
		if err != nil && err != correspondence.End {
			return err
		}
		if n == 1 {
			firstBodies <- body
		} else {
			secondBodies <- body
		}
		return c.Finish()
	})

	writeLine(t, remote, `{"header":{"correspondenceId":"c7","subject":"once"},"type":"data","body":"x"}`)
	writeLine(t, remote, `{"header":{"correspondenceId":"c7","subject":"once"},"type":"fin"}`)

	select {
	case body := <-firstBodies:
		if body != "x" {
			t.Fatalf("expected first invocation to observe 'x', got %v", body)
		}
	case <-time.After(2 * time.Second):
		t.Fatalf("first handler invocation never observed its chunk")
	}
	parser := protocol.NewParser(remote)
	_ = readFrameWithParser(t, parser) // the first invocation's own finish frame

	// No synchronization wait here on purpose: the id is reused immediately
	// to exercise the case where a frame for it can arrive before the
	// handler goroutine's eviction of the old entry has landed.
	writeLine(t, remote, `{"header":{"correspondenceId":"c7","subject":"once"},"type":"data","body":"y"}`)
	writeLine(t, remote, `{"header":{"correspondenceId":"c7","subject":"once"},"type":"fin"}`)

	select {
	case body := <-secondBodies:
		if body != "y" {
			t.Fatalf("expected the fresh correspondence to observe 'y', not a replay of 'x', got %v", body)
		}
	case <-time.After(2 * time.Second):
		t.Fatalf("second handler invocation never ran; id reuse after eviction did not create a fresh correspondence")
	}
	if invocations.Load() != 2 {
		t.Fatalf("expected exactly 2 handler invocations, got %d", invocations.Load())
	}
}
