package provider

import (
	"encoding/json"

	"goa.design/completions"
)

type (
	anthropicUsage struct {
		InputTokens              int `json:"input_tokens"`
		OutputTokens             int `json:"output_tokens"`
		CacheReadInputTokens     int `json:"cache_read_input_tokens"`
		CacheCreationInputTokens int `json:"cache_creation_input_tokens"`
	}

	anthropicContentBlock struct {
		Type     string          `json:"type"`
		ID       string          `json:"id"`
		Name     string          `json:"name"`
		Text     string          `json:"text"`
		Thinking string          `json:"thinking"`
		Input    json.RawMessage `json:"input"`
		// Data carries the opaque payload of a redacted_thinking block.
		Data string `json:"data"`
	}

	anthropicEvent struct {
		Type    string `json:"type"`
		Message *struct {
			Usage *anthropicUsage `json:"usage"`
		} `json:"message"`
		ContentBlock *anthropicContentBlock `json:"content_block"`
		Delta        *struct {
			Type        string `json:"type"`
			Text        string `json:"text"`
			PartialJSON string `json:"partial_json"`
			Thinking    string `json:"thinking"`
			Signature   string `json:"signature"`
		} `json:"delta"`
		Usage *anthropicUsage `json:"usage"`
		// Bedrock-proxied streams attach invocation metrics to the final
		// event instead of the standard usage payload.
		BedrockMetrics *struct {
			InputTokenCount  int `json:"inputTokenCount"`
			OutputTokenCount int `json:"outputTokenCount"`
		} `json:"amazon-bedrock-invocationMetrics"`
	}

	// anthropicProcessor tracks at most one open content block at a time,
	// which is all the wire protocol produces: blocks are strictly
	// sequential, delimited by content_block_start/stop.
	anthropicProcessor struct {
		opts  Options
		usage completions.TokenUsage

		blockType string
		tool      *toolBuilder
		thinking  *completions.Thinking
	}
)

func newAnthropicProcessor(opts Options) *anthropicProcessor {
	return &anthropicProcessor{opts: opts}
}

func (p *anthropicProcessor) Usage() completions.TokenUsage { return p.usage }

func (p *anthropicProcessor) Process(event json.RawMessage) []completions.Chunk {
	var ev anthropicEvent
	if err := json.Unmarshal(event, &ev); err != nil {
		return nil
	}
	p.mergeUsage(&ev)

	switch ev.Type {
	case "message_start", "message_delta", "message_stop", "ping":
		return nil
	case "content_block_start":
		return p.startBlock(ev.ContentBlock)
	case "content_block_delta":
		return p.deltaBlock(&ev)
	case "content_block_stop":
		return p.stopBlock()
	}
	return nil
}

func (p *anthropicProcessor) ProcessResponse(body json.RawMessage) []completions.Chunk {
	var resp struct {
		Content []anthropicContentBlock `json:"content"`
		Usage   *anthropicUsage         `json:"usage"`
	}
	if err := json.Unmarshal(body, &resp); err != nil {
		return nil
	}
	if resp.Usage != nil {
		p.usage.Merge(tokenUsage(resp.Usage))
	}

	var out []completions.Chunk
	for _, block := range resp.Content {
		switch block.Type {
		case "text":
			if block.Text != "" {
				out = append(out, completions.TextChunk(block.Text))
			}
		case "tool_use":
			params := make(map[string]any)
			if len(block.Input) > 0 {
				_ = json.Unmarshal(block.Input, &params)
			}
			out = append(out, completions.ToolCallChunk(&completions.ToolCall{
				ID: block.ID, Name: block.Name, Parameters: params,
			}))
		case "thinking":
			out = append(out, completions.ThinkingChunk(&completions.Thinking{
				Message: block.Thinking,
			}))
		case "redacted_thinking":
			out = append(out, completions.ThinkingChunk(&completions.Thinking{
				Signature: block.Data, Redacted: true,
			}))
		}
	}
	return out
}

// Finish flushes a block left open by a stream that ended without a
// content_block_stop.
func (p *anthropicProcessor) Finish() []completions.Chunk {
	return p.stopBlock()
}

func (p *anthropicProcessor) startBlock(block *anthropicContentBlock) []completions.Chunk {
	if block == nil {
		return nil
	}
	p.blockType = block.Type
	switch block.Type {
	case "tool_use":
		p.tool = newToolBuilder(block.ID, block.Name)
	case "thinking":
		p.thinking = &completions.Thinking{Message: block.Thinking, Partial: true}
		if block.Thinking != "" {
			return []completions.Chunk{completions.ThinkingChunk(&completions.Thinking{
				Message: block.Thinking, Partial: true,
			})}
		}
	case "redacted_thinking":
		p.thinking = &completions.Thinking{Signature: block.Data, Redacted: true}
	case "text":
		if block.Text != "" {
			return []completions.Chunk{completions.TextChunk(block.Text)}
		}
	}
	return nil
}

func (p *anthropicProcessor) deltaBlock(ev *anthropicEvent) []completions.Chunk {
	d := ev.Delta
	if d == nil {
		return nil
	}
	switch d.Type {
	case "text_delta":
		if d.Text == "" {
			return nil
		}
		return []completions.Chunk{completions.TextChunk(d.Text)}
	case "input_json_delta":
		if p.tool == nil {
			return nil
		}
		return p.tool.append(d.PartialJSON, p.opts.PartialToolCalls)
	case "thinking_delta":
		if p.thinking == nil || d.Thinking == "" {
			return nil
		}
		p.thinking.Message += d.Thinking
		return []completions.Chunk{completions.ThinkingChunk(&completions.Thinking{
			Message: d.Thinking, Partial: true,
		})}
	case "signature_delta":
		if p.thinking != nil {
			p.thinking.Signature += d.Signature
		}
	}
	return nil
}

func (p *anthropicProcessor) stopBlock() []completions.Chunk {
	defer func() {
		p.blockType = ""
		p.tool = nil
		p.thinking = nil
	}()

	switch p.blockType {
	case "tool_use":
		if p.tool == nil {
			return nil
		}
		return []completions.Chunk{p.tool.finalize("")}
	case "thinking", "redacted_thinking":
		if p.thinking == nil {
			return nil
		}
		final := *p.thinking
		final.Partial = false
		return []completions.Chunk{completions.ThinkingChunk(&final)}
	}
	return nil
}

func (p *anthropicProcessor) mergeUsage(ev *anthropicEvent) {
	if ev.Message != nil && ev.Message.Usage != nil {
		p.usage.Merge(tokenUsage(ev.Message.Usage))
	}
	if ev.Usage != nil {
		p.usage.Merge(tokenUsage(ev.Usage))
	}
	if m := ev.BedrockMetrics; m != nil {
		p.usage.Merge(completions.TokenUsage{
			InputTokens:  m.InputTokenCount,
			OutputTokens: m.OutputTokenCount,
		})
	}
}

func tokenUsage(u *anthropicUsage) completions.TokenUsage {
	return completions.TokenUsage{
		InputTokens:      u.InputTokens,
		OutputTokens:     u.OutputTokens,
		CacheReadTokens:  u.CacheReadInputTokens,
		CacheWriteTokens: u.CacheCreationInputTokens,
	}
}
