// Package prompt models a provider-agnostic, turn-validated conversation: an
// ordered sequence of system/user/model/tool/tool_call messages with
// multimodal content, the set of tools available to the model, and the
// append semantics for feeding a model's own streamed output back into the
// conversation before the next round trip. Dialects translate a Prompt into
// each provider's wire payload at request time.
package prompt

import (
	"encoding/json"
	"errors"
	"fmt"

	"goa.design/completions"
	"goa.design/completions/tool"
)

// ErrInvalidTurn reports a turn-ordering violation. It signals a programming
// error in the conversation orchestration, never a recoverable condition:
// Push leaves the prompt unchanged when returning it.
var ErrInvalidTurn = errors.New("prompt: invalid turn")

// MessageType enumerates the allowed message types.
type MessageType string

// Allowed message types.
const (
	TypeSystem   MessageType = "system"
	TypeUser     MessageType = "user"
	TypeModel    MessageType = "model"
	TypeTool     MessageType = "tool"
	TypeToolCall MessageType = "tool_call"
)

type (
	// Part is one fragment of a message's ordered multimodal content.
	// Implementations are TextPart and ImagePart.
	Part interface {
		isPart()
	}

	// TextPart carries plain text content.
	TextPart struct {
		Text string
	}

	// ImagePart references an upload by opaque identifier; the bytes are
	// resolved lazily through an UploadResolver when a dialect needs them.
	ImagePart struct {
		UploadID int64
	}

	// Message is one turn entry.
	Message struct {
		// Type is the message type.
		Type MessageType
		// Content is the ordered multimodal content.
		Content []Part
		// ID correlates tool results to tool calls.
		ID string
		// Name carries the tool name for tool/tool_call messages, or an
		// optional participant name on user messages.
		Name string
		// Thinking carries reasoning text replayed to providers that
		// require it alongside the adjacent content.
		Thinking string
		// ThinkingSignature authenticates Thinking.
		ThinkingSignature string
		// RedactedThinkingSignature carries the opaque payload of a
		// redacted reasoning block.
		RedactedThinkingSignature string
	}

	// Prompt is the ordered, validated conversation passed to a provider.
	// It is constructed once per completion request and mutated only via
	// Push/PushModelResponse between round trips.
	Prompt struct {
		messages   []Message
		tools      []*tool.Definition
		toolChoice string
		maxPixels  int
	}

	// Option configures a Prompt at construction.
	Option func(*Prompt)
)

func (TextPart) isPart()  {}
func (ImagePart) isPart() {}

// DefaultMaxPixels is the default total pixel budget for uploads referenced
// by one prompt; resolvers downscale images to fit it.
const DefaultMaxPixels = 1_048_576

// WithTools declares the tools available to the model.
func WithTools(defs ...*tool.Definition) Option {
	return func(p *Prompt) { p.tools = defs }
}

// WithToolChoice forces the model to invoke the named tool.
func WithToolChoice(name string) Option {
	return func(p *Prompt) { p.toolChoice = name }
}

// WithMaxPixels overrides the prompt's upload pixel budget.
func WithMaxPixels(n int) Option {
	return func(p *Prompt) {
		if n > 0 {
			p.maxPixels = n
		}
	}
}

// New builds a prompt. A non-empty systemPrompt becomes the single leading
// system message.
func New(systemPrompt string, opts ...Option) *Prompt {
	p := &Prompt{maxPixels: DefaultMaxPixels}
	if systemPrompt != "" {
		p.messages = append(p.messages, Message{
			Type:    TypeSystem,
			Content: []Part{TextPart{Text: systemPrompt}},
		})
	}
	for _, opt := range opts {
		opt(p)
	}
	return p
}

// Text returns the concatenated text content of the message.
func (m Message) Text() string {
	var out string
	for _, part := range m.Content {
		if tp, ok := part.(TextPart); ok {
			out += tp.Text
		}
	}
	return out
}

// Messages returns the ordered message sequence. The returned slice is a
// copy; mutating it does not affect the prompt.
func (p *Prompt) Messages() []Message {
	return append([]Message(nil), p.messages...)
}

// Tools returns the declared tool definitions.
func (p *Prompt) Tools() []*tool.Definition { return p.tools }

// SetTools replaces the declared tool definitions between round trips.
func (p *Prompt) SetTools(defs ...*tool.Definition) { p.tools = defs }

// SetToolChoice forces the model to invoke the named tool on the next round
// trip; the empty string restores provider-default selection.
func (p *Prompt) SetToolChoice(name string) { p.toolChoice = name }

// ToolChoice returns the forced tool name, or empty for provider-default
// selection.
func (p *Prompt) ToolChoice() string { return p.toolChoice }

// MaxPixels returns the prompt's upload pixel budget.
func (p *Prompt) MaxPixels() int { return p.maxPixels }

// PushText appends a text-only message of the given type.
func (p *Prompt) PushText(typ MessageType, text string) error {
	return p.Push(Message{Type: typ, Content: []Part{TextPart{Text: text}}})
}

// Push validates msg structurally and against the immediately preceding
// message, then appends it. On violation it returns ErrInvalidTurn (wrapped
// with detail) and leaves the prompt unchanged.
func (p *Prompt) Push(msg Message) error {
	if err := p.validate(msg); err != nil {
		return err
	}
	p.messages = append(p.messages, msg)
	return nil
}

func (p *Prompt) validate(msg Message) error {
	switch msg.Type {
	case TypeSystem:
		if len(p.messages) > 0 {
			return fmt.Errorf("%w: system message must be first and unique", ErrInvalidTurn)
		}
		return nil
	case TypeUser, TypeModel, TypeTool, TypeToolCall:
	default:
		return fmt.Errorf("%w: unknown message type %q", ErrInvalidTurn, msg.Type)
	}

	var prev *Message
	if n := len(p.messages); n > 0 {
		prev = &p.messages[n-1]
	}

	switch msg.Type {
	case TypeTool:
		if msg.ID == "" {
			return fmt.Errorf("%w: tool message requires an id", ErrInvalidTurn)
		}
		if prev == nil || prev.Type != TypeToolCall {
			return fmt.Errorf("%w: tool message must follow a tool_call message", ErrInvalidTurn)
		}
	case TypeToolCall:
		if msg.Name == "" {
			return fmt.Errorf("%w: tool_call message requires a tool name", ErrInvalidTurn)
		}
	case TypeModel:
		if prev != nil && prev.Type == TypeModel {
			return fmt.Errorf("%w: model message cannot follow a model message", ErrInvalidTurn)
		}
	}
	return nil
}

// PushModelResponse appends everything the model produced in one turn: text
// chunks become model messages, finalized tool calls become tool_call
// messages carrying a JSON-encoded {"arguments": ...} envelope, and at most
// one finalized thinking block rides along on the last message appended in
// this batch (providers require reasoning metadata adjacent to content, not
// as its own turn). Partial items and usage chunks are skipped.
func (p *Prompt) PushModelResponse(items []completions.Chunk) error {
	var thinking *completions.Thinking
	appended := 0
	for _, item := range items {
		switch item.Type {
		case completions.ChunkTypeText:
			if item.Text == "" {
				continue
			}
			if err := p.PushText(TypeModel, item.Text); err != nil {
				return err
			}
			appended++
		case completions.ChunkTypeToolCall:
			tc := item.ToolCall
			if tc == nil || tc.Partial {
				continue
			}
			envelope, err := json.Marshal(map[string]any{"arguments": tc.Parameters})
			if err != nil {
				return fmt.Errorf("prompt: encode tool call %s: %w", tc.Name, err)
			}
			if err := p.Push(Message{
				Type:    TypeToolCall,
				Content: []Part{TextPart{Text: string(envelope)}},
				ID:      tc.ID,
				Name:    tc.Name,
			}); err != nil {
				return err
			}
			appended++
		case completions.ChunkTypeThinking:
			if item.Thinking == nil || item.Thinking.Partial {
				continue
			}
			if thinking == nil {
				thinking = item.Thinking
			}
		}
	}
	if thinking != nil && appended > 0 {
		last := &p.messages[len(p.messages)-1]
		if thinking.Redacted {
			last.RedactedThinkingSignature = thinking.Signature
		} else {
			last.Thinking = thinking.Message
			last.ThinkingSignature = thinking.Signature
		}
	}
	return nil
}
