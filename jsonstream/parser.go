// Package jsonstream implements an incremental JSON parser that accepts input
// in arbitrary byte chunks and emits structural events as soon as each token
// is confirmed, plus a Tracker that rebuilds a flat or shallow-array object
// from those events key by key. It exists because tool-call arguments arrive
// from providers as a growing stream of partial JSON text: callers need the
// resolved keys (and the best-known prefix of an open string) long before the
// document is complete, which encoding/json cannot provide.
package jsonstream

import (
	"fmt"
	"strconv"
	"strings"
	"unicode/utf16"
	"unicode/utf8"
)

// Handler receives structural events from the parser. Events fire in document
// order, as soon as the corresponding token is confirmed: a Key fires when its
// closing quote arrives, a scalar Value when its last character arrives,
// container events when the bracket arrives.
type Handler interface {
	StartObject()
	EndObject()
	StartArray()
	EndArray()
	Key(key string)
	Value(v any)
}

// ParseError reports structurally invalid input. Offset is the absolute
// character position (not byte position) of the offending character within
// the document fed so far.
type ParseError struct {
	Offset int
	Msg    string
}

func (e *ParseError) Error() string {
	return fmt.Sprintf("jsonstream: %s at position %d", e.Msg, e.Offset)
}

// parser states. Every state has a defined action for every character; any
// character without one raises a ParseError naming it and its position.
const (
	stateValue          = iota // expecting the start of a value
	stateObjectKeyFirst        // after '{': key string or '}'
	stateObjectKey             // after ',' in an object: key string
	stateObjectColon           // after a key: ':'
	stateObjectNext            // after a value in an object: ',' or '}'
	stateArrayFirst            // after '[': value or ']'
	stateArrayNext             // after a value in an array: ',' or ']'
	stateString                // inside a string
	stateStringEscape          // after '\' in a string
	stateStringUnicode         // inside a \uXXXX escape
	stateNumber                // inside a number
	stateLiteral               // inside true/false/null
	stateDone                  // top-level value complete
)

// Parser is a character-oriented recursive state machine over JSON fed in
// arbitrary chunks. Multi-byte UTF-8 sequences split across chunk boundaries
// are reassembled internally and only released once fully valid. The parser
// does not attempt recovery: after a ParseError its state is frozen at the
// offending character, which remains unconsumed; callers needing resilience
// catch the error and fall back to a best-effort extractor.
type Parser struct {
	h Handler

	state int
	stack []byte // '{' and '[' container nesting

	// rest holds bytes not yet consumed: an incomplete trailing UTF-8
	// sequence between feeds, or everything from the offending character
	// after a ParseError.
	rest []byte
	pos  int // absolute character offset of the next rune to consume

	// string scanning
	str       strings.Builder
	strIsKey  bool
	hexDigits []rune
	pendingHi rune // high surrogate awaiting its pair

	// number / literal scanning
	scalar  strings.Builder
	literal string // expected keyword ("true", "false", "null")
}

// NewParser returns a parser delivering events to h.
func NewParser(h Handler) *Parser {
	return &Parser{h: h, state: stateValue}
}

// Feed consumes the next chunk. The chunk may end mid-token, mid-escape, or
// mid-UTF-8-sequence; the parser holds whatever it cannot yet confirm. A
// returned error is always a *ParseError.
func (p *Parser) Feed(data []byte) error {
	p.rest = append(p.rest, data...)
	for len(p.rest) > 0 {
		r, size := utf8.DecodeRune(p.rest)
		if r == utf8.RuneError && size <= 1 {
			if !utf8.FullRune(p.rest) && len(p.rest) < utf8.UTFMax {
				// Incomplete trailing sequence: wait for more bytes.
				return nil
			}
			return p.errorf("invalid UTF-8 byte 0x%02x", p.rest[0])
		}
		if err := p.step(r); err != nil {
			return err
		}
		p.rest = p.rest[size:]
		p.pos++
	}
	return nil
}

// Finish flushes a lone top-level number (numbers have no terminator) and
// verifies the document is complete. It returns a ParseError when the
// document ends inside a container, string, or literal, or when nothing
// valid was fed at all.
func (p *Parser) Finish() error {
	if len(p.rest) > 0 {
		return p.errorf("truncated UTF-8 sequence at end of document")
	}
	if p.state == stateNumber && len(p.stack) == 0 {
		if err := p.finishNumber(); err != nil {
			return err
		}
	}
	if p.state != stateDone {
		return p.errorf("unexpected end of document")
	}
	return nil
}

// PartialString reports the best-known-so-far content of a string value that
// is still open. It returns false when the parser is not inside a string
// value (keys are not reported).
func (p *Parser) PartialString() (string, bool) {
	switch p.state {
	case stateString, stateStringEscape, stateStringUnicode:
		if !p.strIsKey {
			return p.str.String(), true
		}
	}
	return "", false
}

// Unconsumed returns a copy of the bytes the parser has not consumed: empty
// in normal operation, or everything from the offending character onward
// after a ParseError.
func (p *Parser) Unconsumed() []byte {
	if len(p.rest) == 0 {
		return nil
	}
	return append([]byte(nil), p.rest...)
}

func (p *Parser) step(r rune) error {
	switch p.state {
	case stateValue, stateArrayFirst:
		if isSpace(r) {
			return nil
		}
		if r == ']' && p.state == stateArrayFirst {
			return p.closeArray()
		}
		return p.beginValue(r)
	case stateObjectKeyFirst:
		switch {
		case isSpace(r):
			return nil
		case r == '}':
			return p.closeObject()
		case r == '"':
			p.beginString(true)
			return nil
		}
		return p.errorf("expected object key or '}', got %q", r)
	case stateObjectKey:
		switch {
		case isSpace(r):
			return nil
		case r == '"':
			p.beginString(true)
			return nil
		}
		return p.errorf("expected object key, got %q", r)
	case stateObjectColon:
		switch {
		case isSpace(r):
			return nil
		case r == ':':
			p.state = stateValue
			return nil
		}
		return p.errorf("expected ':', got %q", r)
	case stateObjectNext:
		switch {
		case isSpace(r):
			return nil
		case r == ',':
			p.state = stateObjectKey
			return nil
		case r == '}':
			return p.closeObject()
		}
		return p.errorf("expected ',' or '}', got %q", r)
	case stateArrayNext:
		switch {
		case isSpace(r):
			return nil
		case r == ',':
			p.state = stateValue
			return nil
		case r == ']':
			return p.closeArray()
		}
		return p.errorf("expected ',' or ']', got %q", r)
	case stateString:
		return p.stepString(r)
	case stateStringEscape:
		return p.stepStringEscape(r)
	case stateStringUnicode:
		return p.stepStringUnicode(r)
	case stateNumber:
		return p.stepNumber(r)
	case stateLiteral:
		return p.stepLiteral(r)
	case stateDone:
		if isSpace(r) {
			return nil
		}
		return p.errorf("unexpected character %q after end of document", r)
	}
	return p.errorf("unhandled parser state %d", p.state)
}

func (p *Parser) beginValue(r rune) error {
	switch {
	case r == '{':
		p.stack = append(p.stack, '{')
		p.h.StartObject()
		p.state = stateObjectKeyFirst
		return nil
	case r == '[':
		p.stack = append(p.stack, '[')
		p.h.StartArray()
		p.state = stateArrayFirst
		return nil
	case r == '"':
		p.beginString(false)
		return nil
	case r == '-' || (r >= '0' && r <= '9'):
		p.scalar.Reset()
		p.scalar.WriteRune(r)
		p.state = stateNumber
		return nil
	case r == 't':
		return p.beginLiteral("true", r)
	case r == 'f':
		return p.beginLiteral("false", r)
	case r == 'n':
		return p.beginLiteral("null", r)
	}
	return p.errorf("unexpected character %q", r)
}

func (p *Parser) beginString(isKey bool) {
	p.str.Reset()
	p.strIsKey = isKey
	p.pendingHi = 0
	p.state = stateString
}

func (p *Parser) stepString(r rune) error {
	switch {
	case r == '"':
		if p.pendingHi != 0 {
			p.str.WriteRune(utf8.RuneError)
			p.pendingHi = 0
		}
		s := p.str.String()
		if p.strIsKey {
			p.h.Key(s)
			p.state = stateObjectColon
			return nil
		}
		p.h.Value(s)
		p.endValue()
		return nil
	case r == '\\':
		p.state = stateStringEscape
		return nil
	case r < 0x20:
		return p.errorf("unescaped control character %q in string", r)
	default:
		p.flushPendingSurrogate()
		p.str.WriteRune(r)
		return nil
	}
}

func (p *Parser) stepStringEscape(r rune) error {
	if r == 'u' {
		p.hexDigits = p.hexDigits[:0]
		p.state = stateStringUnicode
		return nil
	}
	p.flushPendingSurrogate()
	var out rune
	switch r {
	case '"':
		out = '"'
	case '\\':
		out = '\\'
	case '/':
		out = '/'
	case 'b':
		out = '\b'
	case 'f':
		out = '\f'
	case 'n':
		out = '\n'
	case 'r':
		out = '\r'
	case 't':
		out = '\t'
	default:
		return p.errorf("invalid escape character %q", r)
	}
	p.str.WriteRune(out)
	p.state = stateString
	return nil
}

func (p *Parser) stepStringUnicode(r rune) error {
	if !isHex(r) {
		return p.errorf("invalid unicode escape digit %q", r)
	}
	p.hexDigits = append(p.hexDigits, r)
	if len(p.hexDigits) < 4 {
		return nil
	}
	n, err := strconv.ParseUint(string(p.hexDigits), 16, 32)
	if err != nil {
		return p.errorf("invalid unicode escape %q", string(p.hexDigits))
	}
	code := rune(n)
	switch {
	case utf16.IsSurrogate(code) && code < 0xDC00:
		// High surrogate: hold it until the low half arrives.
		p.flushPendingSurrogate()
		p.pendingHi = code
	case utf16.IsSurrogate(code):
		if p.pendingHi != 0 {
			p.str.WriteRune(utf16.DecodeRune(p.pendingHi, code))
			p.pendingHi = 0
		} else {
			p.str.WriteRune(utf8.RuneError)
		}
	default:
		p.flushPendingSurrogate()
		p.str.WriteRune(code)
	}
	p.state = stateString
	return nil
}

// flushPendingSurrogate emits a replacement character for a high surrogate
// that was never paired.
func (p *Parser) flushPendingSurrogate() {
	if p.pendingHi != 0 {
		p.str.WriteRune(utf8.RuneError)
		p.pendingHi = 0
	}
}

func (p *Parser) stepNumber(r rune) error {
	if isNumberChar(r) {
		p.scalar.WriteRune(r)
		return nil
	}
	// The character terminates the number; validate, emit, then let the
	// post-value state judge the terminator itself.
	if err := p.finishNumber(); err != nil {
		return err
	}
	return p.step(r)
}

func (p *Parser) finishNumber() error {
	text := p.scalar.String()
	if !isJSONNumber(text) {
		return p.errorf("invalid number %q", text)
	}
	if v, err := strconv.ParseInt(text, 10, 64); err == nil {
		p.h.Value(v)
		p.endValue()
		return nil
	}
	v, err := strconv.ParseFloat(text, 64)
	if err != nil {
		return p.errorf("invalid number %q", text)
	}
	p.h.Value(v)
	p.endValue()
	return nil
}

func (p *Parser) beginLiteral(want string, r rune) error {
	p.literal = want
	p.scalar.Reset()
	p.scalar.WriteRune(r)
	p.state = stateLiteral
	return nil
}

func (p *Parser) stepLiteral(r rune) error {
	p.scalar.WriteRune(r)
	got := p.scalar.String()
	if !strings.HasPrefix(p.literal, got) {
		return p.errorf("unexpected character %q in literal", r)
	}
	if got != p.literal {
		return nil
	}
	switch p.literal {
	case "true":
		p.h.Value(true)
	case "false":
		p.h.Value(false)
	case "null":
		p.h.Value(nil)
	}
	p.endValue()
	return nil
}

func (p *Parser) closeObject() error {
	if len(p.stack) == 0 || p.stack[len(p.stack)-1] != '{' {
		return p.errorf("unexpected '}'")
	}
	p.stack = p.stack[:len(p.stack)-1]
	p.h.EndObject()
	p.endValue()
	return nil
}

func (p *Parser) closeArray() error {
	if len(p.stack) == 0 || p.stack[len(p.stack)-1] != '[' {
		return p.errorf("unexpected ']'")
	}
	p.stack = p.stack[:len(p.stack)-1]
	p.h.EndArray()
	p.endValue()
	return nil
}

// endValue transitions to the state that follows a completed value given the
// enclosing container.
func (p *Parser) endValue() {
	if len(p.stack) == 0 {
		p.state = stateDone
		return
	}
	if p.stack[len(p.stack)-1] == '{' {
		p.state = stateObjectNext
		return
	}
	p.state = stateArrayNext
}

func (p *Parser) errorf(format string, args ...any) error {
	return &ParseError{Offset: p.pos, Msg: fmt.Sprintf(format, args...)}
}

func isSpace(r rune) bool {
	return r == ' ' || r == '\t' || r == '\n' || r == '\r'
}

func isHex(r rune) bool {
	return (r >= '0' && r <= '9') || (r >= 'a' && r <= 'f') || (r >= 'A' && r <= 'F')
}

func isNumberChar(r rune) bool {
	return (r >= '0' && r <= '9') || r == '-' || r == '+' || r == '.' || r == 'e' || r == 'E'
}

func isDigit(b byte) bool {
	return b >= '0' && b <= '9'
}

// isJSONNumber checks the JSON number grammar
// -?(0|[1-9][0-9]*)(\.[0-9]+)?([eE][+-]?[0-9]+)?. strconv accepts wider
// forms (leading zeros, bare "-") that must still be rejected.
func isJSONNumber(s string) bool {
	i, n := 0, len(s)
	if i < n && s[i] == '-' {
		i++
	}
	switch {
	case i < n && s[i] == '0':
		i++
	case i < n && isDigit(s[i]):
		for i < n && isDigit(s[i]) {
			i++
		}
	default:
		return false
	}
	if i < n && s[i] == '.' {
		i++
		if i >= n || !isDigit(s[i]) {
			return false
		}
		for i < n && isDigit(s[i]) {
			i++
		}
	}
	if i < n && (s[i] == 'e' || s[i] == 'E') {
		i++
		if i < n && (s[i] == '+' || s[i] == '-') {
			i++
		}
		if i >= n || !isDigit(s[i]) {
			return false
		}
		for i < n && isDigit(s[i]) {
			i++
		}
	}
	return i == n
}