package structured

import (
	"encoding/json"
	"regexp"
	"strings"
)

// extractProperty scans raw text for the named key and recovers its value
// without requiring the surrounding document to be well formed. It is the
// non-authoritative fallback used when the streaming parse broke; nil/false
// means unrecoverable.
func extractProperty(raw, name string, typ PropertyType) (any, bool) {
	key := regexp.QuoteMeta(name)
	if typ == TypeString {
		return extractString(raw, key)
	}
	return extractValue(raw, key)
}

func extractString(raw, key string) (any, bool) {
	// Capture escaped string content, tolerating a missing closing quote on
	// truncated streams.
	re := regexp.MustCompile(`"` + key + `"\s*:\s*"((?:[^"\\]|\\.)*)`)
	m := re.FindStringSubmatch(raw)
	if m == nil {
		return nil, false
	}
	content := m[1]
	// A trailing lone backslash is an incomplete escape; drop it so the
	// re-quote below stays decodable.
	if strings.HasSuffix(content, `\`) && !strings.HasSuffix(content, `\\`) {
		content = content[:len(content)-1]
	}
	var s string
	if err := json.Unmarshal([]byte(`"`+content+`"`), &s); err != nil {
		return nil, false
	}
	return s, true
}

func extractValue(raw, key string) (any, bool) {
	re := regexp.MustCompile(`"` + key + `"\s*:\s*`)
	loc := re.FindStringIndex(raw)
	if loc == nil {
		return nil, false
	}
	rest := raw[loc[1]:]
	// Decode exactly one JSON value; trailing garbage after it is fine.
	dec := json.NewDecoder(strings.NewReader(rest))
	dec.UseNumber()
	var v any
	if err := dec.Decode(&v); err != nil {
		return nil, false
	}
	return normalizeNumbers(v), true
}

// normalizeNumbers converts json.Number values into the int64/float64 shapes
// the streaming tracker reports, so recovered values compare equal to
// streamed ones.
func normalizeNumbers(v any) any {
	switch x := v.(type) {
	case json.Number:
		if n, err := x.Int64(); err == nil {
			return n
		}
		if f, err := x.Float64(); err == nil {
			return f
		}
		return x.String()
	case []any:
		for i, e := range x {
			x[i] = normalizeNumbers(e)
		}
		return x
	case map[string]any:
		for k, e := range x {
			x[k] = normalizeNumbers(e)
		}
		return x
	default:
		return v
	}
}
