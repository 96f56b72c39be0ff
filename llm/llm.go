// Package llm is the entry point for issuing completion requests: it
// resolves logical model identifiers to configurations, builds the
// dialect-specific wire request, drives the transport read loop and
// normalizes everything the model produces into the shared chunk
// vocabulary, in arrival order.
package llm

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/metric"
	"go.opentelemetry.io/otel/trace"
	"goa.design/clue/log"

	"goa.design/completions"
	"goa.design/completions/llm/dialect"
	"goa.design/completions/prompt"
	"goa.design/completions/provider"
	"goa.design/completions/sse"
	"goa.design/completions/structured"
	"goa.design/completions/xmltool"
)

const otelName = "goa.design/completions/llm"

type (
	// Model is a resolved completion endpoint ready to generate.
	Model struct {
		cfg       ModelConfig
		transport Transport
	}

	// Options are the per-request generation parameters. Nil pointer
	// fields are dropped rather than sent as zero values.
	Options struct {
		// MaxTokens caps the response length; falls back to the model
		// configuration when zero.
		MaxTokens int
		// Temperature and TopP are sampling parameters.
		Temperature *float64
		TopP        *float64
		// StopSequences terminate generation early.
		StopSequences []string
		// PartialToolCalls streams incremental tool call updates to the
		// partial callback ahead of the finalized call.
		PartialToolCalls bool
		// Cancel, when supplied, stops the read loop promptly once
		// cancelled and runs registered cleanup callbacks exactly once.
		Cancel *completions.CancelManager
		// Uploads resolves image references when the prompt carries any.
		Uploads prompt.UploadResolver
		// StructuredOutput, when supplied, additionally receives every
		// text delta so callers can poll typed properties as they
		// resolve. Generate finishes it before returning.
		StructuredOutput *structured.Output
	}
)

// Proxy resolves a logical model identifier to a ready Model speaking the
// configured dialect over HTTP. Unknown identifiers fail with
// ErrUnknownModel.
func Proxy(r Resolver, id string) (*Model, error) {
	cfg, err := r.Resolve(id)
	if err != nil {
		return nil, err
	}
	return &Model{cfg: cfg, transport: &HTTPTransport{}}, nil
}

// WithTransport replaces the transport, typically with a CannedTransport
// in tests.
func (m *Model) WithTransport(t Transport) *Model {
	m.transport = t
	return m
}

// Config returns the resolved model configuration.
func (m *Model) Config() ModelConfig { return m.cfg }

// Generate runs one completion round trip. input is a *prompt.Prompt, a
// bare string (coerced to a single user message) or a []string (coerced to
// alternating user/model messages). When onPartial is non-nil the request
// streams and onPartial observes every normalized chunk in arrival order,
// partials included; the returned slice holds only the finalized items.
func (m *Model) Generate(ctx context.Context, input any, opts Options, onPartial func(completions.Chunk)) ([]completions.Chunk, error) {
	p, err := coercePrompt(input)
	if err != nil {
		return nil, err
	}

	reqID := uuid.NewString()
	ctx = log.With(ctx, log.KV{K: "model", V: m.cfg.ID}, log.KV{K: "request_id", V: reqID})

	tracer := otel.Tracer(otelName)
	ctx, span := tracer.Start(ctx, "llm.generate", trace.WithAttributes(
		attribute.String("llm.model", m.cfg.ID),
		attribute.String("llm.request_id", reqID),
	))
	defer span.End()

	stream := onPartial != nil
	dreq, err := dialect.Build(m.cfg.Provider, p, dialect.Options{
		Model:         m.cfg.Name,
		MaxTokens:     firstNonZero(opts.MaxTokens, m.cfg.MaxTokens),
		Temperature:   opts.Temperature,
		TopP:          opts.TopP,
		StopSequences: opts.StopSequences,
		Stream:        stream,
		XMLTools:      m.cfg.XMLTools,
		Uploads:       opts.Uploads,
	})
	if err != nil {
		span.SetStatus(codes.Error, err.Error())
		return nil, err
	}
	proc, err := provider.New(m.cfg.Provider, provider.Options{PartialToolCalls: opts.PartialToolCalls})
	if err != nil {
		span.SetStatus(codes.Error, err.Error())
		return nil, err
	}

	if opts.Cancel != nil {
		var stop context.CancelFunc
		ctx, stop = context.WithCancel(ctx)
		defer stop()
		opts.Cancel.OnCancel(stop)
	}

	g := &generation{
		model:     m,
		prompt:    p,
		opts:      opts,
		proc:      proc,
		onPartial: onPartial,
	}
	if dreq.XMLTools {
		g.xml = xmltool.NewProcessor(xmltool.Options{
			PartialToolCalls: opts.PartialToolCalls,
			Tools:            p.Tools(),
		})
	}

	req := &Request{ID: reqID, Config: m.cfg, Body: dreq.Body, Stream: stream}
	log.Debug(ctx, log.KV{K: "msg", V: "completion start"}, log.KV{K: "stream", V: stream})

	if stream {
		err = g.runStream(ctx, req)
	} else {
		err = g.runWhole(ctx, req)
	}
	if err != nil {
		span.SetStatus(codes.Error, err.Error())
		log.Error(ctx, err, log.KV{K: "msg", V: "completion failed"})
		return nil, err
	}

	g.finish(ctx)
	usage := proc.Usage()
	if usage != (completions.TokenUsage{}) {
		recordUsage(ctx, m.cfg.ID, usage)
		g.record(ctx, completions.UsageChunk(usage))
	}
	span.SetAttributes(
		attribute.Int("llm.input_tokens", usage.InputTokens),
		attribute.Int("llm.output_tokens", usage.OutputTokens),
	)
	log.Debug(ctx, log.KV{K: "msg", V: "completion done"}, log.KV{K: "items", V: len(g.results)})
	return g.results, nil
}

// generation holds the per-request processing chain. Nothing here is
// shared across requests.
type generation struct {
	model     *Model
	prompt    *prompt.Prompt
	opts      Options
	proc      provider.Processor
	xml       *xmltool.Processor
	onPartial func(completions.Chunk)
	results   []completions.Chunk
}

func (g *generation) runStream(ctx context.Context, req *Request) error {
	dec := sse.NewDecoder(framing(g.model.cfg.Provider))
	deliver := func(b []byte) {
		if g.cancelled() {
			return
		}
		for _, ev := range dec.Feed(b) {
			g.emit(ctx, g.proc.Process(ev))
		}
	}
	if _, err := g.model.transport.Send(ctx, req, deliver); err != nil {
		// A cancelled request that aborted the transport is a clean stop,
		// not a failure.
		if g.cancelled() && errors.Is(err, context.Canceled) {
			return nil
		}
		return err
	}
	for _, ev := range dec.Flush() {
		g.emit(ctx, g.proc.Process(ev))
	}
	return nil
}

func (g *generation) runWhole(ctx context.Context, req *Request) error {
	body, err := g.model.transport.Send(ctx, req, nil)
	if err != nil {
		return err
	}
	g.emit(ctx, g.proc.ProcessResponse(body))
	return nil
}

// finish flushes every stage of the chain in order.
func (g *generation) finish(ctx context.Context) {
	g.emit(ctx, g.proc.Finish())
	if g.xml != nil {
		for _, c := range g.xml.Finish() {
			g.record(ctx, c)
		}
	}
	if g.opts.StructuredOutput != nil {
		g.opts.StructuredOutput.Finish()
	}
}

// emit routes processor chunks onward: text goes through the XML tool
// extractor when one is active, everything else is recorded directly.
func (g *generation) emit(ctx context.Context, chunks []completions.Chunk) {
	for _, c := range chunks {
		if g.xml != nil && c.Type == completions.ChunkTypeText {
			for _, sub := range g.xml.Process(c.Text) {
				g.record(ctx, sub)
			}
			if g.xml.ShouldCancel() && g.opts.Cancel != nil {
				g.opts.Cancel.Cancel()
			}
			continue
		}
		g.record(ctx, c)
	}
}

func (g *generation) record(ctx context.Context, c completions.Chunk) {
	if g.opts.StructuredOutput != nil && c.Type == completions.ChunkTypeText {
		g.opts.StructuredOutput.Append(c.Text)
	}
	if g.onPartial != nil {
		g.onPartial(c)
	}
	if partial(c) {
		return
	}
	if c.Type == completions.ChunkTypeToolCall {
		g.validateCall(ctx, c.ToolCall)
	}
	// Consecutive text deltas fold into one result item so the returned
	// slice can be replayed through a prompt as whole messages.
	if c.Type == completions.ChunkTypeText {
		if n := len(g.results); n > 0 && g.results[n-1].Type == completions.ChunkTypeText {
			g.results[n-1].Text += c.Text
			return
		}
	}
	g.results = append(g.results, c)
}

// validateCall checks finalized arguments against the tool's compiled
// schema. Violations are reported, never fatal: validation strictness is
// the tool runtime's call.
func (g *generation) validateCall(ctx context.Context, tc *completions.ToolCall) {
	for _, def := range g.prompt.Tools() {
		if def.Name != tc.Name {
			continue
		}
		if err := def.ValidateArguments(tc.Parameters); err != nil {
			log.Warn(ctx,
				log.KV{K: "msg", V: "tool call arguments failed schema validation"},
				log.KV{K: "tool", V: tc.Name},
				log.KV{K: "err", V: err.Error()},
			)
		}
		return
	}
}

func (g *generation) cancelled() bool {
	return g.opts.Cancel != nil && g.opts.Cancel.Cancelled()
}

func partial(c completions.Chunk) bool {
	switch c.Type {
	case completions.ChunkTypeToolCall:
		return c.ToolCall != nil && c.ToolCall.Partial
	case completions.ChunkTypeThinking:
		return c.Thinking != nil && c.Thinking.Partial
	}
	return false
}

// framing selects the line framing per dialect. Nova endpoints deliver
// newline-delimited JSON; the rest use SSE data lines.
func framing(kind provider.Kind) sse.Mode {
	if kind == provider.Nova {
		return sse.ModeNDJSON
	}
	return sse.ModeSSE
}

func coercePrompt(input any) (*prompt.Prompt, error) {
	switch v := input.(type) {
	case *prompt.Prompt:
		return v, nil
	case string:
		p := prompt.New("")
		if err := p.PushText(prompt.TypeUser, v); err != nil {
			return nil, err
		}
		return p, nil
	case []string:
		p := prompt.New("")
		for i, s := range v {
			typ := prompt.TypeUser
			if i%2 == 1 {
				typ = prompt.TypeModel
			}
			if err := p.PushText(typ, s); err != nil {
				return nil, err
			}
		}
		return p, nil
	default:
		return nil, fmt.Errorf("llm: unsupported prompt input %T", input)
	}
}

func recordUsage(ctx context.Context, model string, usage completions.TokenUsage) {
	meter := otel.Meter(otelName)
	attrs := metric.WithAttributes(attribute.String("llm.model", model))
	if counter, err := meter.Int64Counter("llm.input_tokens"); err == nil {
		counter.Add(ctx, int64(usage.InputTokens), attrs)
	}
	if counter, err := meter.Int64Counter("llm.output_tokens"); err == nil {
		counter.Add(ctx, int64(usage.OutputTokens), attrs)
	}
}

func firstNonZero(values ...int) int {
	for _, v := range values {
		if v != 0 {
			return v
		}
	}
	return 0
}
