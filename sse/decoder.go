// Package sse strips stream framing from completion byte streams: the
// Server-Sent-Events style "data: {json}" line framing used by most vendors
// and the bare newline-delimited JSON variant. The decoder is push fed with
// whatever byte slices the transport produces and tolerates payload lines
// split anywhere, including mid-line.
package sse

import (
	"bytes"
	"encoding/json"
	"strings"
)

// Mode selects the framing variant.
type Mode int

const (
	// ModeSSE extracts "data:" line payloads and silently skips every
	// other line (event names, ids, comments, keep-alive blanks).
	ModeSSE Mode = iota
	// ModeNDJSON treats every non-blank line as a payload.
	ModeNDJSON
)

const dataPrefix = "data:"

// doneSentinel terminates OpenAI-style streams; it is framing, not payload.
const doneSentinel = "[DONE]"

// Decoder splits a pushed byte stream into complete payloads. One decoder
// handles one stream.
type Decoder struct {
	mode Mode
	rest []byte
}

// NewDecoder returns a decoder for the given framing mode.
func NewDecoder(mode Mode) *Decoder {
	return &Decoder{mode: mode}
}

// Feed consumes the next transport chunk and returns the payloads of every
// line it completed. Bytes after the last newline are buffered until more
// input arrives.
func (d *Decoder) Feed(p []byte) []json.RawMessage {
	d.rest = append(d.rest, p...)

	var out []json.RawMessage
	for {
		i := bytes.IndexByte(d.rest, '\n')
		if i < 0 {
			return out
		}
		line := string(d.rest[:i])
		d.rest = d.rest[i+1:]
		if payload, ok := d.payload(line); ok {
			out = append(out, json.RawMessage(payload))
		}
	}
}

// Flush drains a final line that arrived without a trailing newline.
func (d *Decoder) Flush() []json.RawMessage {
	if len(d.rest) == 0 {
		return nil
	}
	line := string(d.rest)
	d.rest = nil
	if payload, ok := d.payload(line); ok {
		return []json.RawMessage{json.RawMessage(payload)}
	}
	return nil
}

func (d *Decoder) payload(line string) (string, bool) {
	line = strings.TrimSuffix(line, "\r")
	if d.mode == ModeSSE {
		if !strings.HasPrefix(line, dataPrefix) {
			return "", false
		}
		line = strings.TrimPrefix(line, dataPrefix)
	}
	line = strings.TrimSpace(line)
	if line == "" || line == doneSentinel {
		return "", false
	}
	return line, true
}
