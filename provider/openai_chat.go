package provider

import (
	"encoding/json"

	"goa.design/completions"
)

type (
	openAIUsage struct {
		PromptTokens        int `json:"prompt_tokens"`
		CompletionTokens    int `json:"completion_tokens"`
		PromptTokensDetails *struct {
			CachedTokens int `json:"cached_tokens"`
		} `json:"prompt_tokens_details"`
	}

	openAIToolCallDelta struct {
		Index    int    `json:"index"`
		ID       string `json:"id"`
		Function struct {
			Name      string `json:"name"`
			Arguments string `json:"arguments"`
		} `json:"function"`
	}

	openAIChatEvent struct {
		Choices []struct {
			Delta struct {
				// Content distinguishes an explicit empty string from an
				// absent field; both occur on the wire and only the former
				// is real output.
				Content   *string               `json:"content"`
				ToolCalls []openAIToolCallDelta `json:"tool_calls"`
			} `json:"delta"`
			FinishReason *string `json:"finish_reason"`
		} `json:"choices"`
		Usage *openAIUsage `json:"usage"`
	}

	openAIChatProcessor struct {
		opts  Options
		usage completions.TokenUsage
		tool  *toolBuilder
	}
)

func newOpenAIChatProcessor(opts Options) *openAIChatProcessor {
	return &openAIChatProcessor{opts: opts}
}

func (p *openAIChatProcessor) Usage() completions.TokenUsage { return p.usage }

func (p *openAIChatProcessor) Process(event json.RawMessage) []completions.Chunk {
	var ev openAIChatEvent
	if err := json.Unmarshal(event, &ev); err != nil {
		return nil
	}
	if ev.Usage != nil {
		p.usage.Merge(openAITokenUsage(ev.Usage))
	}
	if len(ev.Choices) == 0 {
		return nil
	}
	choice := ev.Choices[0]

	var out []completions.Chunk
	if choice.Delta.Content != nil {
		out = append(out, completions.TextChunk(*choice.Delta.Content))
	}

	// A present-but-empty tool_calls array, like a finish_reason, closes
	// the open call.
	if choice.Delta.ToolCalls != nil && len(choice.Delta.ToolCalls) == 0 {
		out = append(out, p.finalizeTool()...)
	}
	for _, tc := range choice.Delta.ToolCalls {
		// A fresh id while a call is still accumulating is the only
		// boundary signal the wire guarantees between consecutive calls.
		if tc.ID != "" && p.tool != nil && p.tool.id != tc.ID {
			out = append(out, p.finalizeTool()...)
		}
		if p.tool == nil {
			p.tool = newToolBuilder(tc.ID, tc.Function.Name)
		}
		if p.tool.name == "" {
			p.tool.name = tc.Function.Name
		}
		out = append(out, p.tool.append(tc.Function.Arguments, p.opts.PartialToolCalls)...)
	}

	if choice.FinishReason != nil && *choice.FinishReason != "" {
		out = append(out, p.finalizeTool()...)
	}
	return out
}

func (p *openAIChatProcessor) ProcessResponse(body json.RawMessage) []completions.Chunk {
	var resp struct {
		Choices []struct {
			Message struct {
				Content   *string `json:"content"`
				ToolCalls []struct {
					ID       string `json:"id"`
					Function struct {
						Name      string `json:"name"`
						Arguments string `json:"arguments"`
					} `json:"function"`
				} `json:"tool_calls"`
			} `json:"message"`
		} `json:"choices"`
		Usage *openAIUsage `json:"usage"`
	}
	if err := json.Unmarshal(body, &resp); err != nil {
		return nil
	}
	if resp.Usage != nil {
		p.usage.Merge(openAITokenUsage(resp.Usage))
	}
	if len(resp.Choices) == 0 {
		return nil
	}

	var out []completions.Chunk
	msg := resp.Choices[0].Message
	if msg.Content != nil && *msg.Content != "" {
		out = append(out, completions.TextChunk(*msg.Content))
	}
	for _, tc := range msg.ToolCalls {
		b := newToolBuilder(tc.ID, tc.Function.Name)
		out = append(out, b.finalize(tc.Function.Arguments))
	}
	return out
}

func (p *openAIChatProcessor) Finish() []completions.Chunk {
	return p.finalizeTool()
}

func (p *openAIChatProcessor) finalizeTool() []completions.Chunk {
	if p.tool == nil {
		return nil
	}
	chunk := p.tool.finalize("")
	p.tool = nil
	return []completions.Chunk{chunk}
}

func openAITokenUsage(u *openAIUsage) completions.TokenUsage {
	out := completions.TokenUsage{
		InputTokens:  u.PromptTokens,
		OutputTokens: u.CompletionTokens,
	}
	if u.PromptTokensDetails != nil {
		out.CacheReadTokens = u.PromptTokensDetails.CachedTokens
	}
	return out
}
