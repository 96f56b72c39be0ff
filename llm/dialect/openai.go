package dialect

import (
	"encoding/json"

	"goa.design/completions/prompt"
)

func buildOpenAIChat(p *prompt.Prompt, opts Options, xml bool) ([]byte, error) {
	system, msgs := systemText(p, xml)

	body := map[string]any{"model": opts.Model}
	if opts.MaxTokens > 0 {
		body["max_completion_tokens"] = opts.MaxTokens
	}
	if opts.Temperature != nil {
		body["temperature"] = *opts.Temperature
	}
	if opts.TopP != nil {
		body["top_p"] = *opts.TopP
	}
	if len(opts.StopSequences) > 0 {
		body["stop"] = opts.StopSequences
	}
	if opts.Stream {
		body["stream"] = true
		body["stream_options"] = map[string]any{"include_usage": true}
	}

	if !xml {
		if tools := p.Tools(); len(tools) > 0 {
			wire := make([]map[string]any, 0, len(tools))
			for _, def := range tools {
				wire = append(wire, map[string]any{
					"type": "function",
					"function": map[string]any{
						"name":        def.Name,
						"description": def.Description,
						"parameters":  def.ParametersJSONSchema(),
					},
				})
			}
			body["tools"] = wire
			if choice := p.ToolChoice(); choice != "" {
				body["tool_choice"] = map[string]any{
					"type":     "function",
					"function": map[string]any{"name": choice},
				}
			}
		}
	}

	wireMsgs := make([]map[string]any, 0, len(msgs)+1)
	if system != "" {
		wireMsgs = append(wireMsgs, map[string]any{"role": "system", "content": system})
	}
	for _, m := range msgs {
		wm, err := openAIChatMessage(p, m, opts, xml)
		if err != nil {
			return nil, err
		}
		wireMsgs = append(wireMsgs, wm)
	}
	body["messages"] = wireMsgs
	return json.Marshal(body)
}

func openAIChatMessage(p *prompt.Prompt, m prompt.Message, opts Options, xml bool) (map[string]any, error) {
	switch m.Type {
	case prompt.TypeUser:
		parts, err := encodeParts(p, m, opts.Uploads)
		if err != nil {
			return nil, err
		}
		if !hasImage(parts) {
			return map[string]any{"role": "user", "content": m.Text()}, nil
		}
		content := make([]map[string]any, 0, len(parts))
		for _, part := range parts {
			if part.Image != nil {
				content = append(content, map[string]any{
					"type": "image_url",
					"image_url": map[string]any{
						"url": "data:" + part.Image.MimeType + ";base64," + part.Image.Base64,
					},
				})
				continue
			}
			content = append(content, map[string]any{"type": "text", "text": part.Text})
		}
		return map[string]any{"role": "user", "content": content}, nil

	case prompt.TypeModel:
		return map[string]any{"role": "assistant", "content": m.Text()}, nil

	case prompt.TypeToolCall:
		if xml {
			return map[string]any{"role": "assistant", "content": xmlInvoke(m.Name, callArguments(m))}, nil
		}
		args, _ := json.Marshal(callArguments(m))
		return map[string]any{
			"role": "assistant",
			"tool_calls": []map[string]any{{
				"id":   m.ID,
				"type": "function",
				"function": map[string]any{
					"name":      m.Name,
					"arguments": string(args),
				},
			}},
		}, nil

	case prompt.TypeTool:
		if xml {
			return map[string]any{"role": "user", "content": xmlToolResult(m.Text())}, nil
		}
		return map[string]any{"role": "tool", "tool_call_id": m.ID, "content": m.Text()}, nil
	}
	return map[string]any{"role": "user", "content": m.Text()}, nil
}

func buildOpenAIResponses(p *prompt.Prompt, opts Options, xml bool) ([]byte, error) {
	system, msgs := systemText(p, xml)

	body := map[string]any{"model": opts.Model}
	if opts.MaxTokens > 0 {
		body["max_output_tokens"] = opts.MaxTokens
	}
	if opts.Temperature != nil {
		body["temperature"] = *opts.Temperature
	}
	if opts.TopP != nil {
		body["top_p"] = *opts.TopP
	}
	if opts.Stream {
		body["stream"] = true
	}

	if !xml {
		if tools := p.Tools(); len(tools) > 0 {
			wire := make([]map[string]any, 0, len(tools))
			for _, def := range tools {
				wire = append(wire, map[string]any{
					"type":        "function",
					"name":        def.Name,
					"description": def.Description,
					"parameters":  def.ParametersJSONSchema(),
				})
			}
			body["tools"] = wire
			if choice := p.ToolChoice(); choice != "" {
				body["tool_choice"] = map[string]any{"type": "function", "name": choice}
			}
		}
	}

	input := make([]map[string]any, 0, len(msgs)+1)
	if system != "" {
		input = append(input, map[string]any{
			"role":    "system",
			"content": []map[string]any{{"type": "input_text", "text": system}},
		})
	}
	for _, m := range msgs {
		item, err := openAIResponsesItem(p, m, opts, xml)
		if err != nil {
			return nil, err
		}
		input = append(input, item)
	}
	body["input"] = input
	return json.Marshal(body)
}

func openAIResponsesItem(p *prompt.Prompt, m prompt.Message, opts Options, xml bool) (map[string]any, error) {
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
					"type":      "input_image",
					"image_url": "data:" + part.Image.MimeType + ";base64," + part.Image.Base64,
				})
				continue
			}
			content = append(content, map[string]any{"type": "input_text", "text": part.Text})
		}
		return map[string]any{"role": "user", "content": content}, nil

	case prompt.TypeModel:
		return map[string]any{
			"role":    "assistant",
			"content": []map[string]any{{"type": "output_text", "text": m.Text()}},
		}, nil

	case prompt.TypeToolCall:
		if xml {
			return map[string]any{
				"role":    "assistant",
				"content": []map[string]any{{"type": "output_text", "text": xmlInvoke(m.Name, callArguments(m))}},
			}, nil
		}
		args, _ := json.Marshal(callArguments(m))
		return map[string]any{
			"type":      "function_call",
			"call_id":   m.ID,
			"name":      m.Name,
			"arguments": string(args),
		}, nil

	case prompt.TypeTool:
		if xml {
			return map[string]any{
				"role":    "user",
				"content": []map[string]any{{"type": "input_text", "text": xmlToolResult(m.Text())}},
			}, nil
		}
		return map[string]any{
			"type":    "function_call_output",
			"call_id": m.ID,
			"output":  m.Text(),
		}, nil
	}
	return map[string]any{
		"role":    "user",
		"content": []map[string]any{{"type": "input_text", "text": m.Text()}},
	}, nil
}

func hasImage(parts []prompt.EncodedPart) bool {
	for _, part := range parts {
		if part.Image != nil {
			return true
		}
	}
	return false
}
