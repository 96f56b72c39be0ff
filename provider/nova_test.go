package provider

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"goa.design/completions"
)

func TestNovaTextStream(t *testing.T) {
	p := newNovaProcessor(Options{})
	chunks := feedEvents(t, p,
		`{"messageStart":{"role":"assistant"}}`,
		`{"contentBlockDelta":{"delta":{"text":"Here "},"contentBlockIndex":0}}`,
		`{"contentBlockDelta":{"delta":{"text":"you go"},"contentBlockIndex":0}}`,
		`{"contentBlockStop":{"contentBlockIndex":0}}`,
		`{"metadata":{"usage":{"inputTokens":30,"outputTokens":6,"cacheReadInputTokenCount":12}}}`,
	)

	assert.Equal(t, "Here you go", textOf(chunks))
	assert.Equal(t, completions.TokenUsage{InputTokens: 30, OutputTokens: 6, CacheReadTokens: 12}, p.Usage())
}

func TestNovaToolUseStream(t *testing.T) {
	p := newNovaProcessor(Options{PartialToolCalls: true})
	chunks := feedEvents(t, p,
		`{"contentBlockStart":{"start":{"toolUse":{"toolUseId":"nova_1","name":"search"}},"contentBlockIndex":1}}`,
		`{"contentBlockDelta":{"delta":{"toolUse":{"input":"{\"query\": \"ca"}},"contentBlockIndex":1}}`,
		`{"contentBlockDelta":{"delta":{"toolUse":{"input":"ts\"}"}},"contentBlockIndex":1}}`,
		`{"contentBlockStop":{"contentBlockIndex":1}}`,
	)

	calls := callsOf(chunks)
	require.Len(t, calls, 3)
	assert.True(t, calls[0].Partial)
	assert.Equal(t, map[string]any{"query": "ca"}, calls[0].Parameters)

	final := calls[2]
	assert.False(t, final.Partial)
	assert.Equal(t, "nova_1", final.ID)
	assert.Equal(t, "search", final.Name)
	assert.Equal(t, map[string]any{"query": "cats"}, final.Parameters)
}

func TestNovaUsageSurvivesLaterMetadataWithoutUsage(t *testing.T) {
	p := newNovaProcessor(Options{})
	p.Process(json.RawMessage(`{"metadata":{"usage":{"inputTokens":21,"outputTokens":2}}}`))
	p.Process(json.RawMessage(`{"metadata":{"metrics":{"latencyMs":104}}}`))

	assert.Equal(t, 21, p.Usage().InputTokens)
}

func TestNovaProcessResponse(t *testing.T) {
	p := newNovaProcessor(Options{})
	chunks := p.ProcessResponse(json.RawMessage(`{
		"output": {"message": {"content": [{"text": "the answer"}]}},
		"usage": {"inputTokens": 9, "outputTokens": 4}
	}`))

	assert.Equal(t, "the answer", textOf(chunks))
	assert.Equal(t, completions.TokenUsage{InputTokens: 9, OutputTokens: 4}, p.Usage())
}

func TestNewSelectsDialect(t *testing.T) {
	for _, kind := range []Kind{Anthropic, OpenAIChat, OpenAIResponses, Nova} {
		p, err := New(kind, Options{})
		require.NoError(t, err, string(kind))
		assert.NotNil(t, p)
	}

	_, err := New(Kind("mystery"), Options{})
	assert.ErrorContains(t, err, "unknown dialect")
}
