package tool

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func searchTool(t *testing.T) *Definition {
	t.Helper()
	def, err := NewDefinition("search", "Search the forum", []Parameter{
		{Name: "query", Description: "Search terms", Type: TypeString, Required: true},
		{Name: "limit", Description: "Max results", Type: TypeInteger},
		{Name: "order", Description: "Sort order", Type: TypeString, Enum: []any{"latest", "oldest"}},
		{Name: "tags", Description: "Filter tags", Type: TypeArray, ItemType: TypeString},
	})
	require.NoError(t, err)
	return def
}

func TestNewDefinitionRejectsInvalidParameters(t *testing.T) {
	_, err := NewDefinition("t", "", []Parameter{
		{Name: "a", Type: TypeString},
		{Name: "a", Type: TypeString},
	})
	assert.ErrorContains(t, err, "duplicate parameter")

	_, err = NewDefinition("t", "", []Parameter{
		{Name: "a", Type: TypeInteger, Enum: []any{"one"}},
	})
	assert.ErrorContains(t, err, "does not match type")

	_, err = NewDefinition("t", "", []Parameter{
		{Name: "a", Type: TypeString, ItemType: TypeString},
	})
	assert.ErrorContains(t, err, "not an array")

	_, err = NewDefinition("t", "", []Parameter{
		{Name: "a", Type: "object"},
	})
	assert.ErrorContains(t, err, "invalid type")
}

func TestParametersJSONSchema(t *testing.T) {
	def := searchTool(t)
	schema := def.ParametersJSONSchema()

	assert.Equal(t, "object", schema["type"])
	assert.Equal(t, []any{"query"}, schema["required"])

	props, ok := schema["properties"].(map[string]any)
	require.True(t, ok)
	query := props["query"].(map[string]any)
	assert.Equal(t, "string", query["type"])
	assert.Equal(t, "Search terms", query["description"])
	tags := props["tags"].(map[string]any)
	assert.Equal(t, map[string]any{"type": "string"}, tags["items"])
	order := props["order"].(map[string]any)
	assert.Equal(t, []any{"latest", "oldest"}, order["enum"])
}

func TestValidateArguments(t *testing.T) {
	def := searchTool(t)
	require.NoError(t, def.ValidateArguments(map[string]any{
		"query": "cats",
		"limit": 5,
		"tags":  []any{"pets"},
	}))

	err := def.ValidateArguments(map[string]any{"limit": 5})
	assert.Error(t, err, "missing required query")

	err = def.ValidateArguments(map[string]any{"query": "cats", "order": "newest"})
	assert.Error(t, err, "enum mismatch")
}

func TestCoerceParameters(t *testing.T) {
	def := searchTool(t)
	got := def.CoerceParameters(map[string]any{
		"query": "cats",
		"limit": "25",
		"order": "latest",
		"tags":  `["a", "b"]`,
	})
	assert.Equal(t, map[string]any{
		"query": "cats",
		"limit": int64(25),
		"order": "latest",
		"tags":  []any{"a", "b"},
	}, got)
}

func TestCoerceParametersDropsBadValues(t *testing.T) {
	def := searchTool(t)
	got := def.CoerceParameters(map[string]any{
		"query":   "ok",
		"limit":   "not-a-number", // coercion failure resolves to absent
		"order":   "newest",       // enum mismatch resolves to absent
		"unknown": "x",            // undeclared parameter dropped
	})
	assert.Equal(t, map[string]any{"query": "ok"}, got)
}

func TestCoerceBooleanAndNumber(t *testing.T) {
	def, err := NewDefinition("flags", "", []Parameter{
		{Name: "deep", Type: TypeBoolean},
		{Name: "score", Type: TypeNumber},
	})
	require.NoError(t, err)
	got := def.CoerceParameters(map[string]any{"deep": "true", "score": "0.5"})
	assert.Equal(t, map[string]any{"deep": true, "score": 0.5}, got)
}
