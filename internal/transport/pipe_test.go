package transport

import (
	"bytes"
	"io"
	"testing"

	"github.com/danmuck/correspond/internal/testutil/testlog"
)

func TestPipeStreamRoundTripsArbitraryBytes(t *testing.T) {
	testlog.Start(t)

	a, b := NewPipe()
	defer a.Close()
	defer b.Close()

	payload := bytes.Repeat([]byte("frame-boundary-probe\x00\x01\x02"), 37)

	errCh := make(chan error, 1)
	go func() {
		_, err := a.Write(payload)
		errCh <- err
	}()

	got := make([]byte, len(payload))
	if _, err := io.ReadFull(b, got); err != nil {
		t.Fatalf("ReadFull: %v", err)
	}
	if err := <-errCh; err != nil {
		t.Fatalf("Write: %v", err)
	}
	if !bytes.Equal(got, payload) {
		t.Fatalf("round-trip mismatch: got %d bytes, want %d", len(got), len(payload))
	}
}

func TestPipeStreamCloseUnblocksPendingRead(t *testing.T) {
	testlog.Start(t)

	a, b := NewPipe()
	defer a.Close()

	done := make(chan error, 1)
	go func() {
		buf := make([]byte, 8)
		_, err := b.Read(buf)
		done <- err
	}()

	if err := b.Close(); err != nil {
		t.Fatalf("Close: %v", err)
	}
	if err := <-done; err == nil {
		t.Fatalf("expected pending Read to fail after Close")
	}
}
