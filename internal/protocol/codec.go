package protocol

import (
	"bufio"
	"bytes"
	"encoding/json"
	"io"
)

// Encode serializes one Message as compact JSON followed by a single '\n'.
// It validates the message first so a malformed local write never reaches
// the wire.
func Encode(w io.Writer, msg Message) error {
	if err := msg.Validate(); err != nil {
		return err
	}
	payload, err := json.Marshal(msg)
	if err != nil {
		return err
	}
	payload = append(payload, '\n')
	_, err = w.Write(payload)
	return err
}

// Parser frames a byte stream into a sequence of decoded Messages, one per
// newline-delimited JSON object. It does not validate messages against the
// schema rules in Message.Validate — that is a separate step the caller
// (normally a Peer) runs so framing failures and validation failures stay
// distinguishable.
type Parser struct {
	r *bufio.Reader
}

// NewParser attaches a framing parser to r. r is read through a
// bufio.Reader, so bytes read past the current '\n' stay buffered for the
// next call to Next.
func NewParser(r io.Reader) *Parser {
	return &Parser{r: bufio.NewReader(r)}
}

// Next returns the next decoded message, a *StreamingError if a line failed
// to parse as JSON (the stream is resynchronized at the following newline
// before Next returns), or io.EOF-wrapping error once the stream is
// exhausted. A trailing line with no terminating '\n' is treated as
// incomplete and never yielded as a message.
func (p *Parser) Next() (Message, error) {
	for {
		line, readErr := p.r.ReadBytes('\n')
		trimmed := bytes.TrimSpace(line)
		if len(trimmed) == 0 {
			if readErr != nil {
				return Message{}, readErr
			}
			continue
		}
		if readErr != nil {
			// Partial trailing line with no delimiter: the stream ended
			// mid-frame. Treat it as buffered-but-never-completed, not a
			// message.
			return Message{}, io.EOF
		}
		var msg Message
		if err := json.Unmarshal(trimmed, &msg); err != nil {
			return Message{}, &StreamingError{Line: trimmed, Err: err}
		}
		return msg, nil
	}
}
