// Package xmltool separates tool invocations from prose in provider streams
// that emit tool calls as literal XML-like text rather than native function
// calling. The tag vocabulary is tiny and machine-generated
// (<function_calls>, <invoke>, <tool_name>, <parameters>), so extraction is
// a small dedicated scanner over a rolling buffer, not a general XML parser:
// that keeps the tolerance for malformed nesting and CDATA unwrapping
// identical to what the generating models actually produce.
package xmltool

import (
	"fmt"
	"reflect"
	"regexp"
	"strings"

	"goa.design/completions"
	"goa.design/completions/tool"
)

const (
	openTag  = "<function_calls>"
	closeTag = "</function_calls>"
)

var (
	invokeRe      = regexp.MustCompile(`(?s)<invoke>(.*?)</invoke>`)
	openInvokeRe  = regexp.MustCompile(`(?s)<invoke>(.*)$`)
	toolNameRe    = regexp.MustCompile(`(?s)<tool_name>(.*?)</tool_name>`)
	parametersRe  = regexp.MustCompile(`(?s)<parameters>(.*?)</parameters>`)
	openParamsRe  = regexp.MustCompile(`(?s)<parameters>(.*)$`)
	paramStartRe  = regexp.MustCompile(`<([a-zA-Z0-9_-]+)>`)
	cdataRe       = regexp.MustCompile(`(?s)^\s*<!\[CDATA\[(.*)\]\]>\s*$`)
)

type (
	// Options configures a Processor.
	Options struct {
		// PartialToolCalls requests incremental ToolCall chunks while the
		// block is still streaming in, updated as parameters resolve.
		PartialToolCalls bool
		// Tools supplies definitions used to coerce parameter values at
		// finalization; parameters without a matching definition stay
		// strings.
		Tools []*tool.Definition
	}

	// Processor consumes streamed text and splits it into prose chunks and
	// tool call chunks. One processor handles one streamed turn.
	Processor struct {
		opts Options

		// pending withholds a trailing fragment that may turn out to be
		// the opening tag (or whitespace preceding it) once more bytes
		// arrive.
		pending string
		buf     strings.Builder
		inTool  bool
		cancel  bool

		lastPartialParams map[string]any
	}
)

// NewProcessor returns a processor for a single streamed turn.
func NewProcessor(opts Options) *Processor {
	return &Processor{opts: opts}
}

// ShouldCancel reports that the closing </function_calls> tag was observed:
// the caller should stop producing further text for this turn and discard
// the remainder of the stream.
func (p *Processor) ShouldCancel() bool { return p.cancel }

// Process consumes the next text fragment and returns the chunks it can
// confirm so far: prose that provably precedes any tool block, plus partial
// tool calls when requested.
func (p *Processor) Process(text string) []completions.Chunk {
	if p.cancel {
		return nil
	}
	if p.inTool {
		p.buf.WriteString(text)
		return p.scanToolBuffer()
	}

	combined := p.pending + text
	p.pending = ""

	if i := strings.Index(combined, openTag); i >= 0 {
		var out []completions.Chunk
		if prose := strings.TrimRight(combined[:i], " \t\r\n"); prose != "" {
			out = append(out, completions.TextChunk(prose))
		}
		p.inTool = true
		p.buf.WriteString(combined[i:])
		return append(out, p.scanToolBuffer()...)
	}

	// Withhold any trailing fragment that could still become the opening
	// tag: trailing whitespace plus a proper prefix of the tag. Everything
	// before it is confirmed prose.
	hold := holdbackLen(combined)
	if hold < len(combined) {
		p.pending = combined[len(combined)-hold:]
		if emit := combined[:len(combined)-hold]; emit != "" {
			return []completions.Chunk{completions.TextChunk(emit)}
		}
		return nil
	}
	p.pending = combined
	return nil
}

// Finish flushes withheld prose (when no tool block ever materialized) or
// parses the complete buffered tool block and returns the finalized tool
// calls with sequential ids.
func (p *Processor) Finish() []completions.Chunk {
	if !p.inTool {
		if p.pending == "" {
			return nil
		}
		out := []completions.Chunk{completions.TextChunk(p.pending)}
		p.pending = ""
		return out
	}

	var out []completions.Chunk
	block := p.buf.String()
	for i, m := range invokeRe.FindAllStringSubmatch(block, -1) {
		tc := p.parseInvoke(m[1], i, false)
		if tc != nil {
			out = append(out, completions.ToolCallChunk(tc))
		}
	}
	return out
}

// scanToolBuffer handles close-tag detection and, when requested, partial
// tool call emission from the still-open invoke block.
func (p *Processor) scanToolBuffer() []completions.Chunk {
	block := p.buf.String()
	if strings.Contains(block, closeTag) {
		p.cancel = true
	}
	if !p.opts.PartialToolCalls {
		return nil
	}

	// The in-flight invoke is whatever follows the last complete one.
	searchFrom := 0
	complete := invokeRe.FindAllStringIndex(block, -1)
	if n := len(complete); n > 0 {
		searchFrom = complete[n-1][1]
	}
	open := openInvokeRe.FindStringSubmatch(block[searchFrom:])
	if open == nil {
		return nil
	}
	tc := p.parseInvoke(open[1], len(complete), true)
	if tc == nil || len(tc.Parameters) == 0 {
		return nil
	}
	if reflect.DeepEqual(tc.Parameters, p.lastPartialParams) {
		return nil
	}
	p.lastPartialParams = tc.Parameters
	return []completions.Chunk{completions.ToolCallChunk(tc)}
}

// parseInvoke extracts the tool name and parameters from one invoke body.
// Partial extraction tolerates an unterminated parameters block and only
// reports fully closed parameter pairs.
func (p *Processor) parseInvoke(body string, seq int, partial bool) *completions.ToolCall {
	nameMatch := toolNameRe.FindStringSubmatch(body)
	if nameMatch == nil {
		return nil
	}
	name := strings.TrimSpace(unwrapCDATA(nameMatch[1]))
	if name == "" {
		return nil
	}

	var paramsBody string
	if m := parametersRe.FindStringSubmatch(body); m != nil {
		paramsBody = m[1]
	} else if partial {
		if m := openParamsRe.FindStringSubmatch(body); m != nil {
			paramsBody = m[1]
		}
	}

	params := parseParameters(paramsBody)
	if def := p.definition(name); def != nil {
		params = def.CoerceParameters(params)
	}
	return &completions.ToolCall{
		ID:         fmt.Sprintf("tool_%d", seq),
		Name:       name,
		Parameters: params,
		Partial:    partial,
	}
}

func (p *Processor) definition(name string) *tool.Definition {
	for _, def := range p.opts.Tools {
		if def != nil && def.Name == name {
			return def
		}
	}
	return nil
}

// parseParameters scans <key>value</key> pairs. Go's regexp has no
// backreferences, so closing tags are matched with an explicit index scan.
func parseParameters(body string) map[string]any {
	params := make(map[string]any)
	for body != "" {
		loc := paramStartRe.FindStringSubmatchIndex(body)
		if loc == nil {
			break
		}
		key := body[loc[2]:loc[3]]
		rest := body[loc[1]:]
		end := strings.Index(rest, "</"+key+">")
		if end < 0 {
			break
		}
		params[key] = unwrapCDATA(rest[:end])
		body = rest[end+len(key)+3:]
	}
	return params
}

func unwrapCDATA(s string) string {
	if m := cdataRe.FindStringSubmatch(s); m != nil {
		return m[1]
	}
	return s
}

// holdbackLen computes how many trailing characters of s must be withheld
// because they could still begin the opening tag: optional whitespace
// followed by a proper prefix of "<function_calls>". The window is bounded
// by the tag length plus the trailing whitespace run.
func holdbackLen(s string) int {
	// Longest proper prefix of openTag that suffixes s.
	tagHold := 0
	max := len(openTag) - 1
	if max > len(s) {
		max = len(s)
	}
	for n := max; n > 0; n-- {
		if strings.HasSuffix(s, openTag[:n]) {
			tagHold = n
			break
		}
	}
	rest := s[:len(s)-tagHold]
	wsHold := len(rest) - len(strings.TrimRight(rest, " \t\r\n"))
	return tagHold + wsHold
}
