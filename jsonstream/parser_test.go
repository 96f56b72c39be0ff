package jsonstream

import (
	"encoding/json"
	"errors"
	"fmt"
	"reflect"
	"testing"

	"github.com/leanovate/gopter"
	"github.com/leanovate/gopter/gen"
	"github.com/leanovate/gopter/prop"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// buildHandler reconstructs the parsed document from parser events so tests
// can compare against encoding/json.
type buildHandler struct {
	stack []any
	keys  []string
	root  any
	done  bool
}

func (b *buildHandler) StartObject() { b.stack = append(b.stack, map[string]any{}) }
func (b *buildHandler) StartArray()  { b.stack = append(b.stack, []any{}) }

func (b *buildHandler) EndObject() { b.pop() }
func (b *buildHandler) EndArray()  { b.pop() }

func (b *buildHandler) Key(key string) { b.keys = append(b.keys, key) }

func (b *buildHandler) Value(v any) { b.place(v) }

func (b *buildHandler) pop() {
	top := b.stack[len(b.stack)-1]
	b.stack = b.stack[:len(b.stack)-1]
	b.place(top)
}

func (b *buildHandler) place(v any) {
	if len(b.stack) == 0 {
		b.root = v
		b.done = true
		return
	}
	switch parent := b.stack[len(b.stack)-1].(type) {
	case map[string]any:
		key := b.keys[len(b.keys)-1]
		b.keys = b.keys[:len(b.keys)-1]
		parent[key] = v
	case []any:
		b.stack[len(b.stack)-1] = append(parent, v)
	}
}

func parseAll(t *testing.T, doc string, chunks []string) any {
	t.Helper()
	h := &buildHandler{}
	p := NewParser(h)
	for _, c := range chunks {
		require.NoError(t, p.Feed([]byte(c)), "feeding %q of %q", c, doc)
	}
	require.NoError(t, p.Finish())
	require.True(t, h.done, "document %q did not complete", doc)
	return h.root
}

// normalize converts parser output (int64 for integers) into the float64
// shape encoding/json produces so documents compare equal.
func normalize(v any) any {
	switch x := v.(type) {
	case int64:
		return float64(x)
	case []any:
		out := make([]any, len(x))
		for i, e := range x {
			out[i] = normalize(e)
		}
		return out
	case map[string]any:
		out := make(map[string]any, len(x))
		for k, e := range x {
			out[k] = normalize(e)
		}
		return out
	default:
		return v
	}
}

func TestParserScalars(t *testing.T) {
	cases := map[string]any{
		`"hello"`:       "hello",
		`"he\"llo"`:     `he"llo`,
		`"tab\tnl\n"`:   "tab\tnl\n",
		`"é"`:      "é",
		`"😀"`: "😀",
		`true`:          true,
		`false`:         false,
		`null`:          nil,
		`42`:            int64(42),
		`-7`:            int64(-7),
		`3.25`:          3.25,
		`1e3`:           float64(1000),
		`-2.5E-1`:       -0.25,
	}
	for doc, want := range cases {
		got := parseAll(t, doc, []string{doc})
		assert.Equal(t, want, got, "doc %s", doc)
	}
}

func TestParserNestedDocument(t *testing.T) {
	doc := `{"name": "search", "args": {"query": "cats", "limit": 5}, "tags": ["a", ["b"], {"c": null}]}`
	got := parseAll(t, doc, []string{doc})

	var want any
	require.NoError(t, json.Unmarshal([]byte(doc), &want))
	assert.Equal(t, want, normalize(got))
}

func TestParserSplitUTF8AcrossChunks(t *testing.T) {
	doc := `{"msg": "héllo wörld 😀"}`
	raw := []byte(doc)
	// Split at every byte boundary; multi-byte sequences land mid-codepoint.
	for i := 1; i < len(raw); i++ {
		h := &buildHandler{}
		p := NewParser(h)
		require.NoError(t, p.Feed(raw[:i]), "split at %d", i)
		require.NoError(t, p.Feed(raw[i:]), "split at %d", i)
		require.NoError(t, p.Finish())
		require.Equal(t, map[string]any{"msg": "héllo wörld 😀"}, h.root, "split at %d", i)
	}
}

func TestParserEscapeSplitAcrossChunks(t *testing.T) {
	doc := `{"a": "xéy"}`
	for i := 1; i < len(doc); i++ {
		got := parseAll(t, doc, []string{doc[:i], doc[i:]})
		assert.Equal(t, map[string]any{"a": "xéy"}, got, "split at %d", i)
	}
}

func TestParserTopLevelNumberNeedsFinish(t *testing.T) {
	h := &buildHandler{}
	p := NewParser(h)
	require.NoError(t, p.Feed([]byte("123")))
	require.False(t, h.done, "number must not resolve before Finish")
	require.NoError(t, p.Finish())
	assert.Equal(t, int64(123), h.root)
}

func TestParserErrors(t *testing.T) {
	cases := []struct {
		doc    string
		offset int
	}{
		{`{"a" 1}`, 5},
		{`[1,]`, 3},
		{`{"a": tru}`, 9},
		{`{"a": "b"`, -1}, // unterminated: error only at Finish
		{`hello`, 0},
		{"\"a\nb\"", 2},
	}
	for _, tc := range cases {
		p := NewParser(&buildHandler{})
		err := p.Feed([]byte(tc.doc))
		if err == nil {
			err = p.Finish()
		}
		require.Error(t, err, "doc %q", tc.doc)
		var perr *ParseError
		require.ErrorAs(t, err, &perr, "doc %q", tc.doc)
		if tc.offset >= 0 {
			assert.Equal(t, tc.offset, perr.Offset, "doc %q: %v", tc.doc, err)
		}
	}
}

func TestParserNumberGrammar(t *testing.T) {
	// strconv is laxer than the JSON grammar; forms it accepts must still
	// be rejected.
	for _, doc := range []string{`[007]`, `[-]`, `[1.]`, `[.5]`, `[1.e3]`, `[1e]`, `[1e+]`, `{"a": 01}`} {
		p := NewParser(&buildHandler{})
		err := p.Feed([]byte(doc))
		if err == nil {
			err = p.Finish()
		}
		var perr *ParseError
		require.ErrorAs(t, err, &perr, "doc %q", doc)
	}

	for doc, want := range map[string]any{
		`0`:       int64(0),
		`-0`:      int64(0),
		`10.25`:   10.25,
		`-0.5`:    -0.5,
		`1e+10`:   1e10,
		`2E-2`:    0.02,
		`1234567`: int64(1234567),
	} {
		h := &buildHandler{}
		p := NewParser(h)
		require.NoError(t, p.Feed([]byte(doc)), "doc %q", doc)
		require.NoError(t, p.Finish(), "doc %q", doc)
		assert.Equal(t, want, h.root, "doc %q", doc)
	}
}

func TestParserErrorLeavesOffendingInputUnconsumed(t *testing.T) {
	p := NewParser(&buildHandler{})
	err := p.Feed([]byte(`{"a": "x` + "\n" + `y"}`))
	require.Error(t, err)
	assert.Equal(t, []byte("\ny\"}"), p.Unconsumed())
}

func TestParserPartialString(t *testing.T) {
	p := NewParser(&buildHandler{})
	require.NoError(t, p.Feed([]byte(`{"a": "hel`)))
	got, ok := p.PartialString()
	require.True(t, ok)
	assert.Equal(t, "hel", got)

	// Keys are never reported as partial values.
	p2 := NewParser(&buildHandler{})
	require.NoError(t, p2.Feed([]byte(`{"lon`)))
	_, ok = p2.PartialString()
	assert.False(t, ok)
}

// TestParserChunkInvariance verifies that for any generated JSON document and
// any partition of its bytes, incremental parsing produces the same value as
// one-shot decoding.
func TestParserChunkInvariance(t *testing.T) {
	parameters := gopter.DefaultTestParameters()
	parameters.MinSuccessfulTests = 200
	properties := gopter.NewProperties(parameters)

	properties.Property("chunked parse equals one-shot parse", prop.ForAll(
		func(doc docCase, seed int64) bool {
			raw, err := json.Marshal(doc.value)
			if err != nil {
				return false
			}
			chunks := partition(raw, seed)

			h := &buildHandler{}
			p := NewParser(h)
			for _, c := range chunks {
				if err := p.Feed(c); err != nil {
					return false
				}
			}
			if err := p.Finish(); err != nil {
				return false
			}

			var want any
			if err := json.Unmarshal(raw, &want); err != nil {
				return false
			}
			return assert.ObjectsAreEqual(want, normalize(h.root))
		},
		genDocCase(),
		gen.Int64(),
	))

	properties.TestingRun(t)
}

type docCase struct {
	value any
}

// asAny reports each generated value with an interface{} result type so
// that gen.MapOf builds a map[string]any even though the underlying
// generators produce differing concrete types.
func asAny(g gopter.Gen) gopter.Gen {
	anyType := reflect.TypeOf((*any)(nil)).Elem()
	return func(params *gopter.GenParameters) *gopter.GenResult {
		result := g(params)
		result.ResultType = anyType
		// Type-specific sieves and shrinkers from the underlying
		// generators cannot be applied across mixed value types.
		result.Sieve = nil
		result.Shrinker = gopter.NoShrinker
		return result
	}
}

func genDocCase() gopter.Gen {
	scalar := asAny(gen.OneGenOf(
		gen.AnyString(),
		gen.Int64Range(-1_000_000, 1_000_000),
		gen.Float64Range(-1e6, 1e6),
		gen.Bool(),
		gen.Const(any(nil)),
		// Multi-byte content exercises the UTF-8 reassembly buffer.
		gen.Const(any("héllo 😀 wörld ✓")),
	))
	return gen.MapOf(gen.Identifier(), scalar).Map(func(m map[string]any) docCase {
		return docCase{value: m}
	})
}

// partition splits raw into deterministic pseudo-random chunks derived from
// seed, covering 1-byte splits up to whole-document feeds.
func partition(raw []byte, seed int64) [][]byte {
	if len(raw) == 0 {
		return nil
	}
	state := uint64(seed)
	next := func(max int) int {
		state = state*6364136223846793005 + 1442695040888963407
		return int(state>>33)%max + 1
	}
	var chunks [][]byte
	for i := 0; i < len(raw); {
		n := next(5)
		if i+n > len(raw) {
			n = len(raw) - i
		}
		chunks = append(chunks, raw[i:i+n])
		i += n
	}
	return chunks
}

func TestParseErrorMessage(t *testing.T) {
	err := &ParseError{Offset: 12, Msg: fmt.Sprintf("unexpected character %q", 'x')}
	assert.Equal(t, `jsonstream: unexpected character 'x' at position 12`, err.Error())
	assert.True(t, errors.As(error(err), new(*ParseError)))
}
