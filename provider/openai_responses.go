package provider

import (
	"encoding/json"

	"goa.design/completions"
)

type (
	openAIResponsesItem struct {
		Type      string `json:"type"`
		ID        string `json:"id"`
		CallID    string `json:"call_id"`
		Name      string `json:"name"`
		Arguments string `json:"arguments"`
		Content   []struct {
			Type string `json:"type"`
			Text string `json:"text"`
		} `json:"content"`
	}

	openAIResponsesUsage struct {
		InputTokens        int `json:"input_tokens"`
		OutputTokens       int `json:"output_tokens"`
		InputTokensDetails *struct {
			CachedTokens int `json:"cached_tokens"`
		} `json:"input_tokens_details"`
	}

	openAIResponsesEvent struct {
		Type     string               `json:"type"`
		Delta    string               `json:"delta"`
		Item     *openAIResponsesItem `json:"item"`
		Response *struct {
			Usage *openAIResponsesUsage `json:"usage"`
		} `json:"response"`
	}

	openAIResponsesProcessor struct {
		opts  Options
		usage completions.TokenUsage
		tool  *toolBuilder
	}
)

func newOpenAIResponsesProcessor(opts Options) *openAIResponsesProcessor {
	return &openAIResponsesProcessor{opts: opts}
}

func (p *openAIResponsesProcessor) Usage() completions.TokenUsage { return p.usage }

func (p *openAIResponsesProcessor) Process(event json.RawMessage) []completions.Chunk {
	var ev openAIResponsesEvent
	if err := json.Unmarshal(event, &ev); err != nil {
		return nil
	}

	switch ev.Type {
	case "response.output_text.delta":
		if ev.Delta == "" {
			return nil
		}
		return []completions.Chunk{completions.TextChunk(ev.Delta)}

	case "response.output_item.added":
		if ev.Item == nil || ev.Item.Type != "function_call" {
			return nil
		}
		// Items carry two identifiers; call_id is what tool results must
		// reference, so it is the canonical one. The item id is kept for
		// callers that need to echo it back.
		out := p.finalizeTool("")
		p.tool = newToolBuilder(ev.Item.CallID, ev.Item.Name)
		p.tool.providerData = map[string]any{"id": ev.Item.ID}
		return out

	case "response.function_call_arguments.delta":
		if p.tool == nil {
			return nil
		}
		return p.tool.append(ev.Delta, p.opts.PartialToolCalls)

	case "response.output_item.done":
		if ev.Item == nil || ev.Item.Type != "function_call" || p.tool == nil {
			return nil
		}
		return p.finalizeTool(ev.Item.Arguments)

	case "response.completed":
		if ev.Response != nil && ev.Response.Usage != nil {
			p.usage.Merge(responsesTokenUsage(ev.Response.Usage))
		}
	}
	return nil
}

func (p *openAIResponsesProcessor) ProcessResponse(body json.RawMessage) []completions.Chunk {
	var resp struct {
		Output []openAIResponsesItem `json:"output"`
		Usage  *openAIResponsesUsage `json:"usage"`
	}
	if err := json.Unmarshal(body, &resp); err != nil {
		return nil
	}
	if resp.Usage != nil {
		p.usage.Merge(responsesTokenUsage(resp.Usage))
	}

	var out []completions.Chunk
	for _, item := range resp.Output {
		switch item.Type {
		case "message":
			for _, c := range item.Content {
				if c.Type == "output_text" && c.Text != "" {
					out = append(out, completions.TextChunk(c.Text))
				}
			}
		case "function_call":
			b := newToolBuilder(item.CallID, item.Name)
			b.providerData = map[string]any{"id": item.ID}
			out = append(out, b.finalize(item.Arguments))
		}
	}
	return out
}

func (p *openAIResponsesProcessor) Finish() []completions.Chunk {
	return p.finalizeTool("")
}

func (p *openAIResponsesProcessor) finalizeTool(args string) []completions.Chunk {
	if p.tool == nil {
		return nil
	}
	chunk := p.tool.finalize(args)
	p.tool = nil
	return []completions.Chunk{chunk}
}

func responsesTokenUsage(u *openAIResponsesUsage) completions.TokenUsage {
	out := completions.TokenUsage{
		InputTokens:  u.InputTokens,
		OutputTokens: u.OutputTokens,
	}
	if u.InputTokensDetails != nil {
		out.CacheReadTokens = u.InputTokensDetails.CachedTokens
	}
	return out
}
