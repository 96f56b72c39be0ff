package provider

import (
	"encoding/json"

	"goa.design/completions"
)

type (
	novaUsage struct {
		InputTokens               int `json:"inputTokens"`
		OutputTokens              int `json:"outputTokens"`
		CacheReadInputTokenCount  int `json:"cacheReadInputTokenCount"`
		CacheWriteInputTokenCount int `json:"cacheWriteInputTokenCount"`
	}

	novaEvent struct {
		ContentBlockStart *struct {
			Start struct {
				ToolUse *struct {
					ToolUseID string `json:"toolUseId"`
					Name      string `json:"name"`
				} `json:"toolUse"`
			} `json:"start"`
		} `json:"contentBlockStart"`
		ContentBlockDelta *struct {
			Delta struct {
				Text    string `json:"text"`
				ToolUse *struct {
					Input string `json:"input"`
				} `json:"toolUse"`
			} `json:"delta"`
		} `json:"contentBlockDelta"`
		ContentBlockStop *struct{} `json:"contentBlockStop"`
		Metadata         *struct {
			Usage *novaUsage `json:"usage"`
		} `json:"metadata"`
	}

	novaProcessor struct {
		opts  Options
		usage completions.TokenUsage
		tool  *toolBuilder
	}
)

func newNovaProcessor(opts Options) *novaProcessor {
	return &novaProcessor{opts: opts}
}

func (p *novaProcessor) Usage() completions.TokenUsage { return p.usage }

func (p *novaProcessor) Process(event json.RawMessage) []completions.Chunk {
	var ev novaEvent
	if err := json.Unmarshal(event, &ev); err != nil {
		return nil
	}

	switch {
	case ev.ContentBlockStart != nil:
		if tu := ev.ContentBlockStart.Start.ToolUse; tu != nil {
			p.tool = newToolBuilder(tu.ToolUseID, tu.Name)
		}
	case ev.ContentBlockDelta != nil:
		d := ev.ContentBlockDelta.Delta
		if d.ToolUse != nil && p.tool != nil {
			return p.tool.append(d.ToolUse.Input, p.opts.PartialToolCalls)
		}
		if d.Text != "" {
			return []completions.Chunk{completions.TextChunk(d.Text)}
		}
	case ev.ContentBlockStop != nil:
		return p.finalizeTool()
	case ev.Metadata != nil:
		if ev.Metadata.Usage != nil {
			p.usage.Merge(novaTokenUsage(ev.Metadata.Usage))
		}
	}
	return nil
}

// ProcessResponse reads the fixed whole-response shape: the first content
// entry of the output message carries the text.
func (p *novaProcessor) ProcessResponse(body json.RawMessage) []completions.Chunk {
	var resp struct {
		Output struct {
			Message struct {
				Content []struct {
					Text    string `json:"text"`
					ToolUse *struct {
						ToolUseID string         `json:"toolUseId"`
						Name      string         `json:"name"`
						Input     map[string]any `json:"input"`
					} `json:"toolUse"`
				} `json:"content"`
			} `json:"message"`
		} `json:"output"`
		Usage *novaUsage `json:"usage"`
	}
	if err := json.Unmarshal(body, &resp); err != nil {
		return nil
	}
	if resp.Usage != nil {
		p.usage.Merge(novaTokenUsage(resp.Usage))
	}

	var out []completions.Chunk
	for _, c := range resp.Output.Message.Content {
		if c.Text != "" {
			out = append(out, completions.TextChunk(c.Text))
		}
		if c.ToolUse != nil {
			params := c.ToolUse.Input
			if params == nil {
				params = make(map[string]any)
			}
			out = append(out, completions.ToolCallChunk(&completions.ToolCall{
				ID: c.ToolUse.ToolUseID, Name: c.ToolUse.Name, Parameters: params,
			}))
		}
	}
	return out
}

func (p *novaProcessor) Finish() []completions.Chunk {
	return p.finalizeTool()
}

func (p *novaProcessor) finalizeTool() []completions.Chunk {
	if p.tool == nil {
		return nil
	}
	chunk := p.tool.finalize("")
	p.tool = nil
	return []completions.Chunk{chunk}
}

func novaTokenUsage(u *novaUsage) completions.TokenUsage {
	return completions.TokenUsage{
		InputTokens:      u.InputTokens,
		OutputTokens:     u.OutputTokens,
		CacheReadTokens:  u.CacheReadInputTokenCount,
		CacheWriteTokens: u.CacheWriteInputTokenCount,
	}
}
