// Package structured accumulates a schema-declared JSON object as it streams
// in, exposing per-property incremental reads. String properties carry a read
// cursor so callers polling mid-stream receive only newly arrived content;
// other property types always return the latest known full value. When the
// stream turns out to be malformed the accumulator degrades to a best-effort
// extraction over the raw text at Finish time instead of failing the
// completion.
package structured

import (
	"strings"

	"goa.design/completions/jsonstream"
)

// PropertyType declares how a schema property is tracked.
type PropertyType int

const (
	// TypeString properties stream incrementally with a read cursor.
	TypeString PropertyType = iota
	// TypeOther properties (numbers, booleans, arrays) report the latest
	// full value on every read.
	TypeOther
)

// Output tracks the declared properties of a streamed JSON object.
type Output struct {
	tracker *jsonstream.Tracker
	types   map[string]PropertyType

	values  map[string]any
	known   map[string]bool
	cursors map[string]int

	raw  strings.Builder
	done bool
}

// NewOutput declares the property schema and returns an empty accumulator.
func NewOutput(properties map[string]PropertyType) *Output {
	o := &Output{
		types:   properties,
		values:  make(map[string]any, len(properties)),
		known:   make(map[string]bool, len(properties)),
		cursors: make(map[string]int, len(properties)),
	}
	o.tracker = jsonstream.NewTracker(o.onProgress)
	return o
}

// Append feeds the next chunk of streamed JSON. Appends after Finish are
// ignored, as are appends once the underlying stream broke.
func (o *Output) Append(raw string) {
	if o.done {
		return
	}
	o.raw.WriteString(raw)
	o.tracker.Append(raw)
}

// ReadBufferedProperty returns what is newly known about the named property.
// For string properties it returns only the unread tail since the previous
// read and advances the cursor; for other types it returns the latest full
// value. It returns nil when the property is undeclared or still unknown.
func (o *Output) ReadBufferedProperty(name string) any {
	typ, declared := o.types[name]
	if !declared || !o.known[name] {
		return nil
	}
	if typ != TypeString {
		return o.values[name]
	}
	full, _ := o.values[name].(string)
	cursor := o.cursors[name]
	if cursor >= len(full) {
		return ""
	}
	o.cursors[name] = len(full)
	return full[cursor:]
}

// Broken reports whether the underlying JSON stream failed to parse.
func (o *Output) Broken() bool { return o.tracker.Broken() }

// Finish marks the output complete. When the stream broke mid-way it falls
// back to best-effort extraction of each unresolved property from the raw
// accumulated text; properties that cannot be recovered stay nil.
func (o *Output) Finish() {
	if o.done {
		return
	}
	o.done = true
	o.tracker.Finish()
	if !o.tracker.Broken() {
		return
	}
	raw := o.raw.String()
	for name, typ := range o.types {
		recovered, ok := extractProperty(raw, name, typ)
		if !ok {
			continue
		}
		// Prefer the recovered value only when it extends what streaming
		// already resolved.
		if typ == TypeString {
			prev, _ := o.values[name].(string)
			if s, _ := recovered.(string); len(s) < len(prev) {
				continue
			}
		}
		o.values[name] = recovered
		o.known[name] = true
	}
}

func (o *Output) onProgress(key string, value any) {
	if _, declared := o.types[key]; !declared {
		return
	}
	o.values[key] = value
	o.known[key] = true
}
