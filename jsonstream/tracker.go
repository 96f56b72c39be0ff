package jsonstream

import "fmt"

// Tracker sits atop the parser to reconstruct a flat (or shallow-array)
// JSON object's fields incrementally. It is built for tool-call argument
// objects that arrive as a growing stream of partial JSON text: each time a
// key resolves, or an open string value for the active key grows, the
// progress callback fires with the best knowledge so far.
//
// Reporting rules:
//
//   - scalar value: reported once, when complete; the active key then clears.
//   - string value: reported as a strictly growing prefix while the string is
//     open, then cleared when the closing quote confirms it.
//   - array value: the whole array is re-reported every time an element lands.
//
// A parse error marks the tracker broken: further appends are ignored and no
// further progress is communicated. One recovery attempt is made for the
// known double-decoded corruption pattern (JSON-escaped content unescaped by
// an outer deserialization layer, leaving raw control characters inside
// strings): the unread remainder is re-escaped and replayed once. Deeper
// escaping levels are unsupported and mark the stream broken.
type Tracker struct {
	parser   *Parser
	progress func(key string, value any)

	depth      int
	currentKey string
	keyLive    bool

	inArray  bool
	arrDepth int
	arr      []any

	// lastPartial tracks how much of the active string value has already
	// been reported so prefixes only ever grow.
	lastPartial int

	broken  bool
	retried bool
}

// NewTracker returns a tracker that invokes progress as keys resolve.
func NewTracker(progress func(key string, value any)) *Tracker {
	t := &Tracker{progress: progress}
	t.parser = NewParser(t)
	return t
}

// Append replays the next chunk of partial JSON through the parser. Once the
// tracker is broken, appends are silently ignored.
func (t *Tracker) Append(chunk string) {
	if t.broken {
		return
	}
	if err := t.parser.Feed([]byte(chunk)); err != nil {
		if !t.retried {
			t.retried = true
			rest := t.parser.takeUnconsumed()
			if err := t.parser.Feed(escapeControlChars(rest)); err == nil {
				t.notifyPartialString()
				return
			}
		}
		t.broken = true
		return
	}
	t.notifyPartialString()
}

// Broken reports whether a parse error permanently stopped the tracker.
func (t *Tracker) Broken() bool { return t.broken }

// Finish flushes the underlying parser. A trailing error marks the tracker
// broken rather than propagating, mirroring Append.
func (t *Tracker) Finish() {
	if t.broken {
		return
	}
	if err := t.parser.Finish(); err != nil {
		t.broken = true
	}
}

// notifyPartialString reports the still-open string value for the active key
// when it has grown since the last report.
func (t *Tracker) notifyPartialString() {
	if !t.keyLive || t.inArray {
		return
	}
	prefix, ok := t.parser.PartialString()
	if !ok || len(prefix) <= t.lastPartial {
		return
	}
	t.lastPartial = len(prefix)
	t.progress(t.currentKey, prefix)
}

// Handler implementation. Only depth-1 keys are tracked; nested objects are
// structurally consumed but not reported.

// StartObject implements Handler.
func (t *Tracker) StartObject() {
	t.depth++
	if t.depth > 1 {
		// Object-valued keys are outside the flat contract; stop tracking
		// the key so no partial scalar inside leaks out under its name.
		t.keyLive = false
	}
}

// EndObject implements Handler.
func (t *Tracker) EndObject() { t.depth-- }

// StartArray implements Handler.
func (t *Tracker) StartArray() {
	if t.depth == 1 && t.keyLive && !t.inArray {
		t.inArray = true
		t.arrDepth = 0
		t.arr = nil
		return
	}
	if t.inArray {
		t.arrDepth++
	}
}

// EndArray implements Handler.
func (t *Tracker) EndArray() {
	if !t.inArray {
		return
	}
	if t.arrDepth > 0 {
		t.arrDepth--
		return
	}
	t.inArray = false
	if t.keyLive {
		t.progress(t.currentKey, append([]any(nil), t.arr...))
	}
	t.clearKey()
	t.arr = nil
}

// Key implements Handler.
func (t *Tracker) Key(key string) {
	if t.depth == 1 {
		t.currentKey = key
		t.keyLive = true
		t.lastPartial = 0
	}
}

// Value implements Handler.
func (t *Tracker) Value(v any) {
	if t.inArray {
		if t.arrDepth == 0 && t.keyLive {
			t.arr = append(t.arr, v)
			t.progress(t.currentKey, append([]any(nil), t.arr...))
		}
		return
	}
	if t.depth != 1 || !t.keyLive {
		return
	}
	// Suppress the terminal duplicate when the full string was already
	// delivered as the last partial prefix.
	if s, ok := v.(string); ok && t.lastPartial > 0 && len(s) == t.lastPartial {
		t.clearKey()
		return
	}
	t.progress(t.currentKey, v)
	t.clearKey()
}

func (t *Tracker) clearKey() {
	t.currentKey = ""
	t.keyLive = false
	t.lastPartial = 0
}

// takeUnconsumed removes and returns the parser's unconsumed bytes so a
// corrected rendition can be replayed in their place.
func (p *Parser) takeUnconsumed() []byte {
	rest := p.rest
	p.rest = nil
	return rest
}

// escapeControlChars re-escapes raw control characters that a single level of
// spurious JSON unescaping would have produced inside string content. Quotes
// and backslashes are left untouched: they cannot be disambiguated from
// legitimate structure.
func escapeControlChars(data []byte) []byte {
	out := make([]byte, 0, len(data)+8)
	for _, b := range data {
		switch {
		case b == '\n':
			out = append(out, '\\', 'n')
		case b == '\r':
			out = append(out, '\\', 'r')
		case b == '\t':
			out = append(out, '\\', 't')
		case b == '\b':
			out = append(out, '\\', 'b')
		case b == '\f':
			out = append(out, '\\', 'f')
		case b < 0x20:
			out = append(out, fmt.Sprintf("\\u%04x", b)...)
		default:
			out = append(out, b)
		}
	}
	return out
}
