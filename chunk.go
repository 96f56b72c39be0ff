// Package completions defines the provider-agnostic vocabulary shared by the
// streaming completion pipeline: the normalized Chunk event model, tool call
// and thinking payloads, token usage accounting, and the cooperative
// cancellation manager. Provider processors translate vendor wire events into
// these types so callers can consume any backend through a single contract.
package completions

type (
	// Chunk represents a normalized streaming event emitted by a provider
	// processor. The Type value indicates which payload field is populated.
	// Allowed Type values are: "text", "tool_call", "thinking", and "usage".
	//
	//   - "text":      Text carries a delta of assistant-visible output.
	//   - "tool_call": ToolCall carries a partial or finalized invocation.
	//   - "thinking":  Thinking carries a partial or finalized reasoning block.
	//   - "usage":     Usage reports token counts once known.
	//
	// There is no terminal chunk kind; end of turn is inferred from the end of
	// iteration over the source stream.
	Chunk struct {
		// Type is the chunk kind. One of: "text", "tool_call", "thinking",
		// or "usage".
		Type string
		// Text contains the assistant text delta when Type == "text". An empty
		// string is a valid delta: providers that report present-but-empty
		// content are passed through as-is.
		Text string
		// ToolCall carries the tool invocation when Type == "tool_call".
		ToolCall *ToolCall
		// Thinking carries the reasoning block when Type == "thinking".
		Thinking *Thinking
		// Usage reports token usage when Type == "usage".
		Usage *TokenUsage
	}

	// TokenUsage records token counts reported by the provider. All fields
	// are zero until the provider reports usage; Merge lets later non-zero
	// reports replace earlier ones while zero fields never erase a known
	// value.
	TokenUsage struct {
		// InputTokens counts tokens consumed by the prompt and history.
		InputTokens int
		// OutputTokens counts tokens produced in this completion, including
		// tool call arguments and thinking output.
		OutputTokens int
		// CacheReadTokens counts prompt tokens served from the provider cache.
		CacheReadTokens int
		// CacheWriteTokens counts prompt tokens written to the provider cache.
		CacheWriteTokens int
	}
)

// Chunk type constants are the well-known streaming event kinds.
const (
	ChunkTypeText     = "text"
	ChunkTypeToolCall = "tool_call"
	ChunkTypeThinking = "thinking"
	ChunkTypeUsage    = "usage"
)

// TextChunk builds a text delta chunk.
func TextChunk(text string) Chunk {
	return Chunk{Type: ChunkTypeText, Text: text}
}

// ToolCallChunk builds a tool call chunk.
func ToolCallChunk(tc *ToolCall) Chunk {
	return Chunk{Type: ChunkTypeToolCall, ToolCall: tc}
}

// ThinkingChunk builds a thinking chunk.
func ThinkingChunk(th *Thinking) Chunk {
	return Chunk{Type: ChunkTypeThinking, Thinking: th}
}

// UsageChunk builds a usage chunk.
func UsageChunk(u TokenUsage) Chunk {
	return Chunk{Type: ChunkTypeUsage, Usage: &u}
}

// Merge folds newly reported counts into u. Absent (zero) fields in delta
// never erase a known value; non-zero fields replace it, so cumulative
// reports such as Anthropic's growing output_tokens settle on the final
// count.
func (u *TokenUsage) Merge(delta TokenUsage) {
	if delta.InputTokens != 0 {
		u.InputTokens = delta.InputTokens
	}
	if delta.OutputTokens != 0 {
		u.OutputTokens = delta.OutputTokens
	}
	if delta.CacheReadTokens != 0 {
		u.CacheReadTokens = delta.CacheReadTokens
	}
	if delta.CacheWriteTokens != 0 {
		u.CacheWriteTokens = delta.CacheWriteTokens
	}
}
