// Package provider normalizes vendor completion streams into the shared
// chunk vocabulary. Each supported vendor has one message processor that
// consumes its wire shape, either a sequence of streamed event objects
// already stripped of SSE framing or one whole response body, and emits
// text, tool call, thinking and usage chunks in arrival order.
//
// Processors are stateful and single use: construct one per request, feed
// it events as they arrive, then call Finish to flush anything still open.
// They never fail on events that simply carry no data yet; unknown or
// undecodable events are skipped.
package provider

import (
	"encoding/json"
	"fmt"

	"goa.design/completions"
)

// Kind identifies a vendor wire dialect.
type Kind string

// Supported dialects.
const (
	Anthropic       Kind = "anthropic"
	OpenAIChat      Kind = "open_ai"
	OpenAIResponses Kind = "open_ai_responses"
	Nova            Kind = "nova"
)

type (
	// Options configures a processor.
	Options struct {
		// PartialToolCalls requests incremental tool call chunks as
		// argument fragments resolve, ahead of the finalized call.
		PartialToolCalls bool
	}

	// Processor turns one vendor's wire events into normalized chunks.
	Processor interface {
		// Process consumes one streamed event object.
		Process(event json.RawMessage) []completions.Chunk
		// ProcessResponse consumes one whole non-streamed response body.
		ProcessResponse(body json.RawMessage) []completions.Chunk
		// Finish flushes any still-open block and returns the remaining
		// chunks. The processor must not be fed after Finish.
		Finish() []completions.Chunk
		// Usage returns the token counts reported so far.
		Usage() completions.TokenUsage
	}
)

// New builds the processor for the given dialect. The set of dialects is
// closed; selection is by explicit switch, never by name-to-type lookup.
func New(kind Kind, opts Options) (Processor, error) {
	switch kind {
	case Anthropic:
		return newAnthropicProcessor(opts), nil
	case OpenAIChat:
		return newOpenAIChatProcessor(opts), nil
	case OpenAIResponses:
		return newOpenAIResponsesProcessor(opts), nil
	case Nova:
		return newNovaProcessor(opts), nil
	default:
		return nil, fmt.Errorf("provider: unknown dialect %q", kind)
	}
}
