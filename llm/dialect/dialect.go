// Package dialect translates the generic prompt model into each vendor's
// request payload: system prompt placement, message role mapping, native
// tool schemas or XML tool instructions, and image blocks. One Build call
// produces the complete JSON body for one request.
package dialect

import (
	"encoding/json"
	"fmt"
	"sort"
	"strings"

	"goa.design/completions/prompt"
	"goa.design/completions/provider"
	"goa.design/completions/tool"
)

type (
	// Options carries the request parameters a dialect folds into the body.
	// Nil pointer fields are omitted from the wire payload.
	Options struct {
		// Model is the vendor-side model name.
		Model string
		// MaxTokens caps the response length; dialects that require the
		// field substitute a default when zero.
		MaxTokens int
		// Temperature and TopP are sampling parameters.
		Temperature *float64
		TopP        *float64
		// StopSequences terminate generation early.
		StopSequences []string
		// Stream requests incremental delivery.
		Stream bool
		// XMLTools describes tools in the system prompt instead of the
		// native function-calling surface.
		XMLTools bool
		// Uploads resolves image references to wire bytes.
		Uploads prompt.UploadResolver
	}

	// Request is a dialect-built wire request.
	Request struct {
		// Body is the JSON payload.
		Body json.RawMessage
		// XMLTools reports that tool invocations will arrive as XML blocks
		// inside the text stream rather than native tool events.
		XMLTools bool
	}
)

// Build produces the wire request for the given dialect.
func Build(kind provider.Kind, p *prompt.Prompt, opts Options) (*Request, error) {
	xml := opts.XMLTools && len(p.Tools()) > 0
	var (
		body []byte
		err  error
	)
	switch kind {
	case provider.Anthropic:
		body, err = buildAnthropic(p, opts, xml)
	case provider.OpenAIChat:
		body, err = buildOpenAIChat(p, opts, xml)
	case provider.OpenAIResponses:
		body, err = buildOpenAIResponses(p, opts, xml)
	case provider.Nova:
		body, err = buildNova(p, opts, xml)
	default:
		return nil, fmt.Errorf("dialect: unknown dialect %q", kind)
	}
	if err != nil {
		return nil, err
	}
	return &Request{Body: body, XMLTools: xml}, nil
}

// systemText returns the leading system message's text, with XML tool
// instructions appended when native function calling is off, plus the
// remaining conversation messages.
func systemText(p *prompt.Prompt, xml bool) (string, []prompt.Message) {
	msgs := p.Messages()
	var system string
	if len(msgs) > 0 && msgs[0].Type == prompt.TypeSystem {
		system = msgs[0].Text()
		msgs = msgs[1:]
	}
	if xml {
		instructions := xmlToolInstructions(p.Tools(), p.ToolChoice())
		if system != "" {
			system += "\n\n"
		}
		system += instructions
	}
	return system, msgs
}

// callArguments decodes the {"arguments": ...} envelope a tool_call message
// carries.
func callArguments(m prompt.Message) map[string]any {
	var envelope struct {
		Arguments map[string]any `json:"arguments"`
	}
	if err := json.Unmarshal([]byte(m.Text()), &envelope); err != nil || envelope.Arguments == nil {
		return map[string]any{}
	}
	return envelope.Arguments
}

func encodeParts(p *prompt.Prompt, m prompt.Message, resolver prompt.UploadResolver) ([]prompt.EncodedPart, error) {
	parts, err := p.EncodedContent(m, resolver)
	if err != nil {
		return nil, fmt.Errorf("dialect: %w", err)
	}
	return parts, nil
}

// xmlToolInstructions renders the tool roster and calling convention for
// models without native function calling. The model is expected to reply
// with the same XML block shape the xmltool package consumes.
func xmlToolInstructions(tools []*tool.Definition, choice string) string {
	var b strings.Builder
	b.WriteString("You have access to the following tools. To call a tool, reply with a block of this exact form:\n\n")
	b.WriteString("<function_calls>\n<invoke>\n<tool_name>$TOOL_NAME</tool_name>\n<parameters>\n<$PARAMETER_NAME>$VALUE</$PARAMETER_NAME>\n</parameters>\n</invoke>\n</function_calls>\n\nTools:\n")
	for _, def := range tools {
		schema, _ := json.Marshal(def.ParametersJSONSchema())
		fmt.Fprintf(&b, "- %s: %s\n  parameters: %s\n", def.Name, def.Description, schema)
	}
	if choice != "" {
		fmt.Fprintf(&b, "\nYou must call the %s tool.\n", choice)
	}
	return b.String()
}

// xmlInvoke renders a historical tool call back into the XML wire shape so
// the model sees its own prior calls the way it produced them.
func xmlInvoke(name string, args map[string]any) string {
	keys := make([]string, 0, len(args))
	for k := range args {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	var b strings.Builder
	b.WriteString("<function_calls>\n<invoke>\n<tool_name>")
	b.WriteString(name)
	b.WriteString("</tool_name>\n<parameters>\n")
	for _, k := range keys {
		fmt.Fprintf(&b, "<%s>%v</%s>\n", k, args[k], k)
	}
	b.WriteString("</parameters>\n</invoke>\n</function_calls>")
	return b.String()
}

func xmlToolResult(text string) string {
	return "<function_results>\n" + text + "\n</function_results>"
}
