package dialect

import (
	"encoding/json"

	"goa.design/completions/prompt"
)

const anthropicDefaultMaxTokens = 4096

func buildAnthropic(p *prompt.Prompt, opts Options, xml bool) ([]byte, error) {
	system, msgs := systemText(p, xml)

	maxTokens := opts.MaxTokens
	if maxTokens == 0 {
		maxTokens = anthropicDefaultMaxTokens
	}
	body := map[string]any{
		"model":      opts.Model,
		"max_tokens": maxTokens,
	}
	if system != "" {
		body["system"] = system
	}
	if opts.Temperature != nil {
		body["temperature"] = *opts.Temperature
	}
	if opts.TopP != nil {
		body["top_p"] = *opts.TopP
	}
	if len(opts.StopSequences) > 0 {
		body["stop_sequences"] = opts.StopSequences
	}
	if opts.Stream {
		body["stream"] = true
	}

	if !xml {
		if tools := p.Tools(); len(tools) > 0 {
			wire := make([]map[string]any, 0, len(tools))
			for _, def := range tools {
				wire = append(wire, map[string]any{
					"name":         def.Name,
					"description":  def.Description,
					"input_schema": def.ParametersJSONSchema(),
				})
			}
			body["tools"] = wire
			if choice := p.ToolChoice(); choice != "" {
				body["tool_choice"] = map[string]any{"type": "tool", "name": choice}
			}
		}
	}

	wireMsgs := make([]map[string]any, 0, len(msgs))
	for _, m := range msgs {
		wm, err := anthropicMessage(p, m, opts, xml)
		if err != nil {
			return nil, err
		}
		wireMsgs = append(wireMsgs, wm)
	}
	body["messages"] = wireMsgs
	return json.Marshal(body)
}

func anthropicMessage(p *prompt.Prompt, m prompt.Message, opts Options, xml bool) (map[string]any, error) {
	switch m.Type {
	case prompt.TypeUser:
		parts, err := encodeParts(p, m, opts.Uploads)
		if err != nil {
			return nil, err
		}
		content := make([]map[string]any, 0, len(parts))
		for _, part := range parts {
			if part.Image != nil {
				content = append(content, map[string]any{
					"type": "image",
					"source": map[string]any{
						"type":       "base64",
						"media_type": part.Image.MimeType,
						"data":       part.Image.Base64,
					},
				})
				continue
			}
			content = append(content, map[string]any{"type": "text", "text": part.Text})
		}
		return map[string]any{"role": "user", "content": content}, nil

	case prompt.TypeModel:
		content := []map[string]any{}
		content = appendThinkingBlocks(content, m)
		content = append(content, map[string]any{"type": "text", "text": m.Text()})
		return map[string]any{"role": "assistant", "content": content}, nil

	case prompt.TypeToolCall:
		if xml {
			return map[string]any{"role": "assistant", "content": xmlInvoke(m.Name, callArguments(m))}, nil
		}
		content := []map[string]any{}
		content = appendThinkingBlocks(content, m)
		content = append(content, map[string]any{
			"type":  "tool_use",
			"id":    m.ID,
			"name":  m.Name,
			"input": callArguments(m),
		})
		return map[string]any{"role": "assistant", "content": content}, nil

	case prompt.TypeTool:
		if xml {
			return map[string]any{"role": "user", "content": xmlToolResult(m.Text())}, nil
		}
		return map[string]any{
			"role": "user",
			"content": []map[string]any{{
				"type":        "tool_result",
				"tool_use_id": m.ID,
				"content":     m.Text(),
			}},
		}, nil
	}
	return map[string]any{"role": "user", "content": m.Text()}, nil
}

// appendThinkingBlocks replays preserved reasoning ahead of the content it
// accompanied; the vendor rejects resumed conversations without it.
func appendThinkingBlocks(content []map[string]any, m prompt.Message) []map[string]any {
	if m.Thinking != "" {
		content = append(content, map[string]any{
			"type":      "thinking",
			"thinking":  m.Thinking,
			"signature": m.ThinkingSignature,
		})
	}
	if m.RedactedThinkingSignature != "" {
		content = append(content, map[string]any{
			"type": "redacted_thinking",
			"data": m.RedactedThinkingSignature,
		})
	}
	return content
}
