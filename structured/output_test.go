package structured

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newAnswerOutput() *Output {
	return NewOutput(map[string]PropertyType{
		"answer":     TypeString,
		"confidence": TypeOther,
		"tags":       TypeOther,
	})
}

func TestOutputStringCursorReturnsOnlyUnreadTail(t *testing.T) {
	o := newAnswerOutput()

	o.Append(`{"answer": "The qui`)
	assert.Equal(t, "The qui", o.ReadBufferedProperty("answer"))
	// Nothing new arrived; the cursor does not rewind.
	assert.Equal(t, "", o.ReadBufferedProperty("answer"))

	o.Append(`ck brown fox"`)
	assert.Equal(t, "ck brown fox", o.ReadBufferedProperty("answer"))

	o.Append(`, "confidence": 0.87}`)
	o.Finish()
	assert.Equal(t, "", o.ReadBufferedProperty("answer"))
	assert.Equal(t, 0.87, o.ReadBufferedProperty("confidence"))
}

func TestOutputNonStringReturnsLatestFullValue(t *testing.T) {
	o := newAnswerOutput()
	o.Append(`{"tags": ["a", "b"`)
	assert.Equal(t, []any{"a", "b"}, o.ReadBufferedProperty("tags"))
	o.Append(`, "c"]}`)
	o.Finish()
	assert.Equal(t, []any{"a", "b", "c"}, o.ReadBufferedProperty("tags"))
	require.False(t, o.Broken())
}

func TestOutputUndeclaredPropertyIsNil(t *testing.T) {
	o := newAnswerOutput()
	o.Append(`{"answer": "x", "other": 1}`)
	o.Finish()
	assert.Nil(t, o.ReadBufferedProperty("other"))
	assert.Nil(t, o.ReadBufferedProperty("missing"))
}

func TestOutputBrokenStreamFallsBackOnFinish(t *testing.T) {
	o := newAnswerOutput()
	// The model wrapped its JSON in prose; streaming parse fails outright.
	o.Append("Sure! Here is the JSON:\n")
	o.Append(`{"answer": "forty-two", "confidence": 0.5}`)
	require.True(t, o.Broken())

	// No partial updates while broken.
	assert.Nil(t, o.ReadBufferedProperty("answer"))

	o.Finish()
	assert.Equal(t, "forty-two", o.ReadBufferedProperty("answer"))
	assert.Equal(t, 0.5, o.ReadBufferedProperty("confidence"))
	assert.Nil(t, o.ReadBufferedProperty("tags"))
}

func TestOutputFallbackToleratesTruncatedString(t *testing.T) {
	o := NewOutput(map[string]PropertyType{"answer": TypeString})
	o.Append("oops ")
	o.Append(`{"answer": "cut off mid\nsente`)
	o.Finish()
	assert.Equal(t, "cut off mid\nsente", o.ReadBufferedProperty("answer"))
}

func TestOutputAppendAfterFinishIgnored(t *testing.T) {
	o := NewOutput(map[string]PropertyType{"answer": TypeString})
	o.Append(`{"answer": "done"}`)
	o.Finish()
	o.Append(`{"answer": "more"}`)
	assert.Equal(t, "done", o.ReadBufferedProperty("answer"))
}
