package prompt

import (
	"errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"goa.design/completions"
)

func TestPushValidTurnSequence(t *testing.T) {
	p := New("You are a helpful assistant.")

	require.NoError(t, p.PushText(TypeUser, "find cats"))
	require.NoError(t, p.PushText(TypeModel, "searching"))
	require.NoError(t, p.Push(Message{
		Type: TypeToolCall, ID: "tool_0", Name: "search",
		Content: []Part{TextPart{Text: `{"arguments":{"query":"cats"}}`}},
	}))
	require.NoError(t, p.Push(Message{
		Type: TypeTool, ID: "tool_0", Name: "search",
		Content: []Part{TextPart{Text: `{"rows":[]}`}},
	}))
	require.NoError(t, p.PushText(TypeModel, "no cats found"))

	var types []MessageType
	for _, m := range p.Messages() {
		types = append(types, m.Type)
	}
	assert.Equal(t, []MessageType{TypeSystem, TypeUser, TypeModel, TypeToolCall, TypeTool, TypeModel}, types)
}

func TestPushModelAfterModelFailsAndLeavesPromptUnchanged(t *testing.T) {
	p := New("")
	require.NoError(t, p.PushText(TypeUser, "hi"))
	require.NoError(t, p.PushText(TypeModel, "hello"))

	before := len(p.Messages())
	err := p.PushText(TypeModel, "hello again")
	require.ErrorIs(t, err, ErrInvalidTurn)
	assert.Len(t, p.Messages(), before)
}

func TestPushInvalidTurns(t *testing.T) {
	cases := []struct {
		name string
		push func(p *Prompt) error
	}{
		{"tool without preceding tool_call", func(p *Prompt) error {
			return p.Push(Message{Type: TypeTool, ID: "t0", Content: []Part{TextPart{Text: "x"}}})
		}},
		{"tool without id", func(p *Prompt) error {
			_ = p.Push(Message{Type: TypeToolCall, Name: "search"})
			return p.Push(Message{Type: TypeTool, Content: []Part{TextPart{Text: "x"}}})
		}},
		{"second system message", func(p *Prompt) error {
			return p.PushText(TypeSystem, "another system prompt")
		}},
		{"unknown type", func(p *Prompt) error {
			return p.PushText(MessageType("assistant"), "x")
		}},
		{"tool_call without name", func(p *Prompt) error {
			return p.Push(Message{Type: TypeToolCall, ID: "t0"})
		}},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			p := New("sys")
			require.NoError(t, p.PushText(TypeUser, "hi"))
			err := tc.push(p)
			require.ErrorIs(t, err, ErrInvalidTurn)
		})
	}
}

func TestPushModelResponse(t *testing.T) {
	p := New("sys")
	require.NoError(t, p.PushText(TypeUser, "look this up"))

	items := []completions.Chunk{
		completions.TextChunk("let me check"),
		completions.ToolCallChunk(&completions.ToolCall{
			ID: "call_1", Name: "search", Partial: true,
			Parameters: map[string]any{"query": "ca"},
		}),
		completions.ToolCallChunk(&completions.ToolCall{
			ID: "call_1", Name: "search",
			Parameters: map[string]any{"query": "cats"},
		}),
		completions.ThinkingChunk(&completions.Thinking{Message: "user wants cats", Signature: "sig1"}),
	}
	require.NoError(t, p.PushModelResponse(items))

	msgs := p.Messages()
	require.Len(t, msgs, 4)
	assert.Equal(t, TypeModel, msgs[2].Type)
	assert.Equal(t, "let me check", msgs[2].Text())

	last := msgs[3]
	assert.Equal(t, TypeToolCall, last.Type)
	assert.Equal(t, "call_1", last.ID)
	assert.Equal(t, "search", last.Name)
	assert.JSONEq(t, `{"arguments":{"query":"cats"}}`, last.Text())
	// Thinking metadata rides on the last appended message.
	assert.Equal(t, "user wants cats", last.Thinking)
	assert.Equal(t, "sig1", last.ThinkingSignature)
}

func TestPushModelResponseSkipsPartialsAndRedactedThinking(t *testing.T) {
	p := New("")
	require.NoError(t, p.PushText(TypeUser, "hi"))

	items := []completions.Chunk{
		completions.ThinkingChunk(&completions.Thinking{Message: "partial...", Partial: true}),
		completions.ThinkingChunk(&completions.Thinking{Signature: "opaque", Redacted: true}),
		completions.TextChunk("final answer"),
	}
	require.NoError(t, p.PushModelResponse(items))

	msgs := p.Messages()
	require.Len(t, msgs, 2)
	assert.Equal(t, "final answer", msgs[1].Text())
	assert.Equal(t, "opaque", msgs[1].RedactedThinkingSignature)
	assert.Empty(t, msgs[1].Thinking)
}

type fakeResolver struct {
	lastMaxPixels int
	err           error
}

func (r *fakeResolver) Encode(uploadID int64, maxPixels int) (Upload, error) {
	r.lastMaxPixels = maxPixels
	if r.err != nil {
		return Upload{}, r.err
	}
	return Upload{Base64: fmt.Sprintf("b64-%d", uploadID), MimeType: "image/png", Width: 10, Height: 10}, nil
}

func TestEncodedContentResolvesUploads(t *testing.T) {
	p := New("", WithMaxPixels(2048))
	msg := Message{Type: TypeUser, Content: []Part{
		TextPart{Text: "look at this: "},
		ImagePart{UploadID: 42},
	}}
	require.NoError(t, p.Push(msg))

	r := &fakeResolver{}
	parts, err := p.EncodedContent(p.Messages()[0], r)
	require.NoError(t, err)
	require.Len(t, parts, 2)
	assert.Equal(t, "look at this: ", parts[0].Text)
	require.NotNil(t, parts[1].Image)
	assert.Equal(t, "b64-42", parts[1].Image.Base64)
	assert.Equal(t, 2048, r.lastMaxPixels)
}

func TestEncodedContentRequiresResolver(t *testing.T) {
	p := New("")
	msg := Message{Type: TypeUser, Content: []Part{ImagePart{UploadID: 7}}}
	require.NoError(t, p.Push(msg))
	_, err := p.EncodedContent(msg, nil)
	require.Error(t, err)
	assert.False(t, errors.Is(err, ErrInvalidTurn))
}
