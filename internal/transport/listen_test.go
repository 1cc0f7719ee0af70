package transport

import (
	"bytes"
	"io"
	"testing"

	"github.com/danmuck/correspond/internal/testutil/testlog"
)

func TestTCPListenAndDialRoundTripsArbitraryBytes(t *testing.T) {
	testlog.Start(t)

	ln, err := Listen(KindTCP, "127.0.0.1:0", nil)
	if err != nil {
		t.Fatalf("Listen: %v", err)
	}
	defer ln.Close()

	serverDone := make(chan error, 1)
	serverStream := make(chan Stream, 1)
	go func() {
		s, err := ln.Accept()
		if err != nil {
			serverDone <- err
			return
		}
		serverStream <- s
		serverDone <- nil
	}()

	client, err := Dial(KindTCP, ln.Addr().String(), nil)
	if err != nil {
		t.Fatalf("Dial: %v", err)
	}
	defer client.Close()

	if err := <-serverDone; err != nil {
		t.Fatalf("Accept: %v", err)
	}
	server := <-serverStream
	defer server.Close()

	payload := bytes.Repeat([]byte("tcp-loopback-probe\x00\x01"), 41)
	errCh := make(chan error, 1)
	go func() {
		_, err := client.Write(payload)
		errCh <- err
	}()

	got := make([]byte, len(payload))
	if _, err := io.ReadFull(server, got); err != nil {
		t.Fatalf("ReadFull: %v", err)
	}
	if err := <-errCh; err != nil {
		t.Fatalf("Write: %v", err)
	}
	if !bytes.Equal(got, payload) {
		t.Fatalf("round-trip mismatch: got %d bytes, want %d", len(got), len(payload))
	}
}

func TestResolveKindRejectsUnknownName(t *testing.T) {
	testlog.Start(t)
	if _, err := ResolveKind("carrier-pigeon"); err == nil {
		t.Fatalf("expected error for unknown transport kind")
	}
}
