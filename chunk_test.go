package completions

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestTokenUsageMerge(t *testing.T) {
	var u TokenUsage
	u.Merge(TokenUsage{InputTokens: 50})
	u.Merge(TokenUsage{OutputTokens: 3})
	// Cumulative reports settle on the final count.
	u.Merge(TokenUsage{OutputTokens: 17})
	// Absent fields never erase known values.
	u.Merge(TokenUsage{CacheReadTokens: 8})
	u.Merge(TokenUsage{})

	assert.Equal(t, TokenUsage{InputTokens: 50, OutputTokens: 17, CacheReadTokens: 8}, u)
}

func TestChunkConstructors(t *testing.T) {
	assert.Equal(t, Chunk{Type: ChunkTypeText, Text: "hi"}, TextChunk("hi"))
	assert.Equal(t, ChunkTypeText, TextChunk("").Type, "empty deltas are valid")

	tc := &ToolCall{ID: "t0", Name: "search"}
	assert.Same(t, tc, ToolCallChunk(tc).ToolCall)

	u := UsageChunk(TokenUsage{InputTokens: 1})
	assert.Equal(t, ChunkTypeUsage, u.Type)
	assert.Equal(t, 1, u.Usage.InputTokens)
}

func TestToolCallEqual(t *testing.T) {
	a := &ToolCall{ID: "t0", Name: "search", Parameters: map[string]any{"q": "cats", "n": int64(3)}}
	b := &ToolCall{ID: "t0", Name: "search", Parameters: map[string]any{"n": int64(3), "q": "cats"}}
	assert.True(t, a.Equal(b))

	b.Parameters["q"] = "dogs"
	assert.False(t, a.Equal(b))

	var nilCall *ToolCall
	assert.False(t, a.Equal(nilCall))
	assert.True(t, nilCall.Equal(nil))
}

func TestToolCallCloneIsIndependent(t *testing.T) {
	orig := &ToolCall{ID: "t0", Name: "search", Parameters: map[string]any{"q": "ca"}}
	cp := orig.Clone()
	orig.Parameters["q"] = "cats"

	assert.Equal(t, "ca", cp.Parameters["q"])
	assert.True(t, cp.Equal(&ToolCall{ID: "t0", Name: "search", Parameters: map[string]any{"q": "ca"}}))
}

func TestThinkingEqual(t *testing.T) {
	a := &Thinking{Message: "hm", Signature: "s"}
	assert.True(t, a.Equal(&Thinking{Message: "hm", Signature: "s"}))
	assert.False(t, a.Equal(&Thinking{Message: "hm"}))
	assert.False(t, a.Equal(nil))
}
