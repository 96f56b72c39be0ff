package completions

import "reflect"

type (
	// ToolCall captures a tool invocation requested by the model. While a
	// call is still streaming in, processors may emit intermediate copies
	// with Partial set; parameters on partial copies only ever gain
	// knowledge (a resolved key is never un-resolved) until the terminal
	// non-partial copy is emitted.
	ToolCall struct {
		// ID is the provider identifier for the call, used to correlate the
		// eventual tool result. Processors that receive no id synthesize a
		// sequential one ("tool_0", "tool_1", ...).
		ID string
		// Name identifies the tool to invoke.
		Name string
		// Parameters holds the parsed JSON arguments keyed by parameter name.
		Parameters map[string]any
		// ProviderData carries provider-specific correlation metadata (for
		// example the OpenAI Responses item id alongside the call id).
		ProviderData map[string]any
		// Partial marks an in-flight accumulation. A finalized call always
		// has Partial false and fully parsed parameters.
		Partial bool
	}

	// Thinking represents a reasoning block some providers stream separately
	// from the answer. Redacted thinking carries only an opaque signature
	// with no message text.
	Thinking struct {
		// Message is the plaintext reasoning when available.
		Message string
		// Signature authenticates Message for replay to the provider.
		Signature string
		// Redacted indicates Signature is an opaque redacted payload and
		// Message is empty.
		Redacted bool
		// Partial marks an in-flight block still accumulating deltas.
		Partial bool
	}
)

// Equal reports structural equality with other, comparing parsed parameters
// and provider data deeply.
func (tc *ToolCall) Equal(other *ToolCall) bool {
	if tc == nil || other == nil {
		return tc == other
	}
	if tc.ID != other.ID || tc.Name != other.Name || tc.Partial != other.Partial {
		return false
	}
	return reflect.DeepEqual(tc.Parameters, other.Parameters) &&
		reflect.DeepEqual(tc.ProviderData, other.ProviderData)
}

// Clone returns a deep-enough copy safe to hand to callers while the
// processor keeps mutating its own accumulation state.
func (tc *ToolCall) Clone() *ToolCall {
	if tc == nil {
		return nil
	}
	cp := *tc
	if tc.Parameters != nil {
		cp.Parameters = make(map[string]any, len(tc.Parameters))
		for k, v := range tc.Parameters {
			cp.Parameters[k] = v
		}
	}
	if tc.ProviderData != nil {
		cp.ProviderData = make(map[string]any, len(tc.ProviderData))
		for k, v := range tc.ProviderData {
			cp.ProviderData[k] = v
		}
	}
	return &cp
}

// Equal reports structural equality with other.
func (th *Thinking) Equal(other *Thinking) bool {
	if th == nil || other == nil {
		return th == other
	}
	return *th == *other
}
