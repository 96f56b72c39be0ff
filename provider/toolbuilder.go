package provider

import (
	"encoding/json"
	"strings"

	"goa.design/completions"
	"goa.design/completions/jsonstream"
)

// toolBuilder accumulates one tool call whose JSON arguments arrive as
// string fragments. Fragments stream through a jsonstream tracker so
// partial parameter values can be reported before the arguments document
// is complete; finalization re-decodes the assembled document in one shot,
// which is authoritative when it parses.
type toolBuilder struct {
	id           string
	name         string
	providerData map[string]any

	raw     strings.Builder
	tracker *jsonstream.Tracker
	params  map[string]any
	dirty   bool
}

func newToolBuilder(id, name string) *toolBuilder {
	b := &toolBuilder{id: id, name: name, params: make(map[string]any)}
	b.tracker = jsonstream.NewTracker(func(key string, value any) {
		b.params[key] = value
		b.dirty = true
	})
	return b
}

// append consumes the next arguments fragment and, when partials are
// requested and new knowledge arrived, returns a partial tool call chunk.
func (b *toolBuilder) append(fragment string, partials bool) []completions.Chunk {
	if fragment == "" {
		return nil
	}
	b.raw.WriteString(fragment)
	b.tracker.Append(fragment)
	if !partials || !b.dirty {
		return nil
	}
	b.dirty = false
	return []completions.Chunk{completions.ToolCallChunk(&completions.ToolCall{
		ID:           b.id,
		Name:         b.name,
		Parameters:   cloneParams(b.params),
		ProviderData: b.providerData,
		Partial:      true,
	})}
}

// finalize emits the terminal tool call chunk. args, when non-empty,
// replaces the accumulated fragments (vendors that repeat the full
// arguments document on the closing event are more reliable than the
// deltas).
func (b *toolBuilder) finalize(args string) completions.Chunk {
	if args == "" {
		args = b.raw.String()
	}
	params := make(map[string]any)
	if strings.TrimSpace(args) != "" {
		if err := json.Unmarshal([]byte(args), &params); err != nil {
			// Malformed arguments document: fall back to whatever the
			// tracker resolved incrementally.
			params = cloneParams(b.params)
		}
	}
	return completions.ToolCallChunk(&completions.ToolCall{
		ID:           b.id,
		Name:         b.name,
		Parameters:   params,
		ProviderData: b.providerData,
	})
}

func cloneParams(params map[string]any) map[string]any {
	out := make(map[string]any, len(params))
	for k, v := range params {
		out[k] = v
	}
	return out
}
