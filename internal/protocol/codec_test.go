package protocol

import (
	"bytes"
	"errors"
	"io"
	"testing"

	"github.com/danmuck/correspond/internal/testutil/testlog"
)

func TestEncodeDecodeRoundTrip(t *testing.T) {
	testlog.Start(t)

	msg := Message{
		Type:   MessageTypeFinish,
		Header: MessageHeader{CorrespondenceID: "c1", Subject: "echo"},
		Body:   "ping",
	}
	var buf bytes.Buffer
	if err := Encode(&buf, msg); err != nil {
		t.Fatalf("encode: %v", err)
	}
	if buf.Bytes()[buf.Len()-1] != '\n' {
		t.Fatalf("expected trailing newline, got %q", buf.Bytes())
	}

	p := NewParser(&buf)
	decoded, err := p.Next()
	if err != nil {
		t.Fatalf("decode: %v", err)
	}
	if decoded.Header.CorrespondenceID != msg.Header.CorrespondenceID {
		t.Fatalf("correspondenceId mismatch: %+v", decoded)
	}
	if decoded.Type != msg.Type {
		t.Fatalf("type mismatch: got %q want %q", decoded.Type, msg.Type)
	}
	if decoded.Body != msg.Body {
		t.Fatalf("body mismatch: got %v want %v", decoded.Body, msg.Body)
	}
}

func TestEncodeRejectsInvalidMessage(t *testing.T) {
	testlog.Start(t)

	err := Encode(&bytes.Buffer{}, Message{})
	if !errors.Is(err, ErrInvalidMessage) {
		t.Fatalf("expected ErrInvalidMessage, got %v", err)
	}
}

func TestParserMultipleFramesInOneBuffer(t *testing.T) {
	testlog.Start(t)

	var buf bytes.Buffer
	buf.WriteString(`{"header":{"correspondenceId":"c1","subject":"s"},"type":"data","body":"a"}` + "\n")
	buf.WriteString(`{"header":{"correspondenceId":"c1","subject":"s"},"type":"fin","body":"b"}` + "\n")

	p := NewParser(&buf)
	first, err := p.Next()
	if err != nil {
		t.Fatalf("first: %v", err)
	}
	if first.Body != "a" {
		t.Fatalf("first body = %v", first.Body)
	}
	second, err := p.Next()
	if err != nil {
		t.Fatalf("second: %v", err)
	}
	if second.Body != "b" {
		t.Fatalf("second body = %v", second.Body)
	}
	if _, err := p.Next(); !errors.Is(err, io.EOF) {
		t.Fatalf("expected EOF, got %v", err)
	}
}

func TestParserResyncsAfterBadJSONLine(t *testing.T) {
	testlog.Start(t)

	var buf bytes.Buffer
	buf.WriteString("{not json}\n")
	buf.WriteString(`{"header":{"correspondenceId":"c1","subject":"s"},"type":"data","body":"ok"}` + "\n")

	p := NewParser(&buf)
	_, err := p.Next()
	var streamErr *StreamingError
	if !errors.As(err, &streamErr) {
		t.Fatalf("expected *StreamingError, got %v", err)
	}

	next, err := p.Next()
	if err != nil {
		t.Fatalf("resync failed: %v", err)
	}
	if next.Body != "ok" {
		t.Fatalf("unexpected body after resync: %v", next.Body)
	}
}

func TestParserDropsIncompleteTrailingLine(t *testing.T) {
	testlog.Start(t)

	buf := bytes.NewBufferString(`{"header":{"correspondenceId":"c1","subject":"s"}}`)
	p := NewParser(buf)
	if _, err := p.Next(); !errors.Is(err, io.EOF) {
		t.Fatalf("expected EOF for incomplete trailing line, got %v", err)
	}
}

func TestParserToleratesBlankLinesBetweenFrames(t *testing.T) {
	testlog.Start(t)

	var buf bytes.Buffer
	buf.WriteString("\n   \n")
	buf.WriteString(`{"header":{"correspondenceId":"c1","subject":"s"},"type":"data","body":"a"}` + "\n")

	p := NewParser(&buf)
	msg, err := p.Next()
	if err != nil {
		t.Fatalf("next: %v", err)
	}
	if msg.Body != "a" {
		t.Fatalf("body = %v", msg.Body)
	}
}
