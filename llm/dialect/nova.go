package dialect

import (
	"encoding/json"
	"strings"

	"goa.design/completions/prompt"
)

func buildNova(p *prompt.Prompt, opts Options, xml bool) ([]byte, error) {
	system, msgs := systemText(p, xml)

	body := map[string]any{}
	if system != "" {
		body["system"] = []map[string]any{{"text": system}}
	}

	inference := map[string]any{}
	if opts.MaxTokens > 0 {
		inference["maxTokens"] = opts.MaxTokens
	}
	if opts.Temperature != nil {
		inference["temperature"] = *opts.Temperature
	}
	if opts.TopP != nil {
		inference["topP"] = *opts.TopP
	}
	if len(opts.StopSequences) > 0 {
		inference["stopSequences"] = opts.StopSequences
	}
	if len(inference) > 0 {
		body["inferenceConfig"] = inference
	}

	if !xml {
		if tools := p.Tools(); len(tools) > 0 {
			wire := make([]map[string]any, 0, len(tools))
			for _, def := range tools {
				wire = append(wire, map[string]any{
					"toolSpec": map[string]any{
						"name":        def.Name,
						"description": def.Description,
						"inputSchema": map[string]any{"json": def.ParametersJSONSchema()},
					},
				})
			}
			body["toolConfig"] = map[string]any{"tools": wire}
		}
	}

	wireMsgs := make([]map[string]any, 0, len(msgs))
	for _, m := range msgs {
		wm, err := novaMessage(p, m, opts, xml)
		if err != nil {
			return nil, err
		}
		wireMsgs = append(wireMsgs, wm)
	}
	body["messages"] = wireMsgs
	return json.Marshal(body)
}

func novaMessage(p *prompt.Prompt, m prompt.Message, opts Options, xml bool) (map[string]any, error) {
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
					"image": map[string]any{
						"format": novaImageFormat(part.Image.MimeType),
						"source": map[string]any{"bytes": part.Image.Base64},
					},
				})
				continue
			}
			content = append(content, map[string]any{"text": part.Text})
		}
		return map[string]any{"role": "user", "content": content}, nil

	case prompt.TypeModel:
		return map[string]any{
			"role":    "assistant",
			"content": []map[string]any{{"text": m.Text()}},
		}, nil

	case prompt.TypeToolCall:
		if xml {
			return map[string]any{
				"role":    "assistant",
				"content": []map[string]any{{"text": xmlInvoke(m.Name, callArguments(m))}},
			}, nil
		}
		return map[string]any{
			"role": "assistant",
			"content": []map[string]any{{
				"toolUse": map[string]any{
					"toolUseId": m.ID,
					"name":      m.Name,
					"input":     callArguments(m),
				},
			}},
		}, nil

	case prompt.TypeTool:
		if xml {
			return map[string]any{
				"role":    "user",
				"content": []map[string]any{{"text": xmlToolResult(m.Text())}},
			}, nil
		}
		return map[string]any{
			"role": "user",
			"content": []map[string]any{{
				"toolResult": map[string]any{
					"toolUseId": m.ID,
					"content":   []map[string]any{{"text": m.Text()}},
				},
			}},
		}, nil
	}
	return map[string]any{
		"role":    "user",
		"content": []map[string]any{{"text": m.Text()}},
	}, nil
}

func novaImageFormat(mime string) string {
	format := strings.TrimPrefix(mime, "image/")
	if format == "jpg" {
		format = "jpeg"
	}
	return format
}
