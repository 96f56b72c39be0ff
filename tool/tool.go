// Package tool defines the tool schema vocabulary handed to model providers:
// named tools with typed, validated parameter lists, their JSON Schema export
// for providers with native function calling, and best-effort coercion of
// streamed argument values against the declared types.
package tool

import (
	"bytes"
	"encoding/json"
	"fmt"
	"strconv"

	"github.com/santhosh-tekuri/jsonschema/v6"
)

// ParameterType enumerates the allowed parameter types.
type ParameterType string

// Allowed parameter types.
const (
	TypeString  ParameterType = "string"
	TypeBoolean ParameterType = "boolean"
	TypeInteger ParameterType = "integer"
	TypeArray   ParameterType = "array"
	TypeNumber  ParameterType = "number"
)

type (
	// Parameter describes one tool parameter.
	Parameter struct {
		// Name identifies the parameter within the tool's argument object.
		Name string
		// Description documents the parameter for prompting purposes.
		Description string
		// Type is the declared parameter type.
		Type ParameterType
		// Required marks the parameter as mandatory in the exported schema.
		Required bool
		// Enum restricts the parameter to a fixed set of values. Every value
		// must match Type.
		Enum []any
		// ItemType declares the element type when Type is "array".
		ItemType ParameterType
	}

	// Definition describes a tool offered to the model: a name, a prompting
	// description, and an ordered parameter list validated at construction.
	Definition struct {
		// Name identifies the tool to the model.
		Name string
		// Description documents when and how to invoke the tool.
		Description string
		// Parameters is the ordered parameter list.
		Parameters []Parameter

		compiled *jsonschema.Schema
	}
)

// NewDefinition validates the parameter list and returns the definition.
// Duplicate parameter names, enum values that do not match the declared
// type, and item types on non-array parameters are construction errors.
func NewDefinition(name, description string, params []Parameter) (*Definition, error) {
	if name == "" {
		return nil, fmt.Errorf("tool: name is required")
	}
	seen := make(map[string]struct{}, len(params))
	for _, p := range params {
		if p.Name == "" {
			return nil, fmt.Errorf("tool %s: parameter name is required", name)
		}
		if _, dup := seen[p.Name]; dup {
			return nil, fmt.Errorf("tool %s: duplicate parameter %q", name, p.Name)
		}
		seen[p.Name] = struct{}{}
		if !validType(p.Type) {
			return nil, fmt.Errorf("tool %s: parameter %q has invalid type %q", name, p.Name, p.Type)
		}
		if p.ItemType != "" && p.Type != TypeArray {
			return nil, fmt.Errorf("tool %s: parameter %q declares item_type but is not an array", name, p.Name)
		}
		if p.ItemType != "" && !validType(p.ItemType) {
			return nil, fmt.Errorf("tool %s: parameter %q has invalid item_type %q", name, p.Name, p.ItemType)
		}
		for _, e := range p.Enum {
			if !matchesType(e, p.Type) {
				return nil, fmt.Errorf("tool %s: parameter %q enum value %v does not match type %q", name, p.Name, e, p.Type)
			}
		}
	}
	return &Definition{Name: name, Description: description, Parameters: params}, nil
}

// ParametersJSONSchema exports the parameter list as a standard JSON Schema
// object shape ({"type": "object", "properties": ..., "required": ...}),
// the format handed to providers with native function calling.
func (d *Definition) ParametersJSONSchema() map[string]any {
	properties := make(map[string]any, len(d.Parameters))
	required := make([]any, 0, len(d.Parameters))
	for _, p := range d.Parameters {
		prop := map[string]any{
			"type":        string(p.Type),
			"description": p.Description,
		}
		if p.Type == TypeArray && p.ItemType != "" {
			prop["items"] = map[string]any{"type": string(p.ItemType)}
		}
		if len(p.Enum) > 0 {
			prop["enum"] = append([]any(nil), p.Enum...)
		}
		properties[p.Name] = prop
		if p.Required {
			required = append(required, p.Name)
		}
	}
	return map[string]any{
		"type":       "object",
		"properties": properties,
		"required":   required,
	}
}

// ValidateArguments checks a finalized argument object against the compiled
// JSON Schema for this tool. The schema compiles lazily on first use.
func (d *Definition) ValidateArguments(args map[string]any) error {
	if d.compiled == nil {
		sch, err := compileSchema(d.ParametersJSONSchema())
		if err != nil {
			return fmt.Errorf("tool %s: compile schema: %w", d.Name, err)
		}
		d.compiled = sch
	}
	// Round-trip through JSON so argument values use the exact shapes the
	// validator expects regardless of how they were produced.
	raw, err := json.Marshal(args)
	if err != nil {
		return fmt.Errorf("tool %s: encode arguments: %w", d.Name, err)
	}
	inst, err := jsonschema.UnmarshalJSON(bytes.NewReader(raw))
	if err != nil {
		return fmt.Errorf("tool %s: decode arguments: %w", d.Name, err)
	}
	if err := d.compiled.Validate(inst); err != nil {
		return fmt.Errorf("tool %s: %w", d.Name, err)
	}
	return nil
}

// Parameter returns the named parameter definition, if declared.
func (d *Definition) Parameter(name string) (Parameter, bool) {
	for _, p := range d.Parameters {
		if p.Name == name {
			return p, true
		}
	}
	return Parameter{}, false
}

// CoerceParameters converts raw argument values (typically strings extracted
// from XML tool syntax, or loosely typed JSON) to the declared parameter
// types. Values that cannot be coerced, fail an enum restriction, or name an
// undeclared parameter are dropped; validation strictness beyond that is the
// tool runtime's concern.
func (d *Definition) CoerceParameters(raw map[string]any) map[string]any {
	out := make(map[string]any, len(raw))
	for name, value := range raw {
		p, ok := d.Parameter(name)
		if !ok {
			continue
		}
		coerced, ok := coerceValue(value, p)
		if !ok {
			continue
		}
		out[name] = coerced
	}
	return out
}

func coerceValue(value any, p Parameter) (any, bool) {
	v, ok := coerceScalar(value, p.Type, p.ItemType)
	if !ok {
		return nil, false
	}
	if len(p.Enum) > 0 && !enumAllows(p.Enum, v) {
		return nil, false
	}
	return v, true
}

func coerceScalar(value any, typ, itemType ParameterType) (any, bool) {
	switch typ {
	case TypeString:
		if s, ok := value.(string); ok {
			return s, true
		}
		return nil, false
	case TypeBoolean:
		switch v := value.(type) {
		case bool:
			return v, true
		case string:
			b, err := strconv.ParseBool(v)
			if err != nil {
				return nil, false
			}
			return b, true
		}
		return nil, false
	case TypeInteger:
		switch v := value.(type) {
		case int:
			return int64(v), true
		case int64:
			return v, true
		case float64:
			return int64(v), true
		case string:
			n, err := strconv.ParseInt(v, 10, 64)
			if err != nil {
				if f, ferr := strconv.ParseFloat(v, 64); ferr == nil {
					return int64(f), true
				}
				return nil, false
			}
			return n, true
		}
		return nil, false
	case TypeNumber:
		switch v := value.(type) {
		case int:
			return float64(v), true
		case int64:
			return float64(v), true
		case float64:
			return v, true
		case string:
			f, err := strconv.ParseFloat(v, 64)
			if err != nil {
				return nil, false
			}
			return f, true
		}
		return nil, false
	case TypeArray:
		var elems []any
		switch v := value.(type) {
		case []any:
			elems = v
		case string:
			if err := json.Unmarshal([]byte(v), &elems); err != nil {
				return nil, false
			}
		default:
			return nil, false
		}
		if itemType == "" {
			return elems, true
		}
		out := make([]any, 0, len(elems))
		for _, e := range elems {
			c, ok := coerceScalar(e, itemType, "")
			if !ok {
				return nil, false
			}
			out = append(out, c)
		}
		return out, true
	}
	return nil, false
}

func enumAllows(enum []any, v any) bool {
	for _, e := range enum {
		if equalLoose(e, v) {
			return true
		}
	}
	return false
}

// equalLoose compares enum entries to coerced values across the int/float
// representations JSON decoding produces.
func equalLoose(a, b any) bool {
	if a == b {
		return true
	}
	af, aok := toFloat(a)
	bf, bok := toFloat(b)
	return aok && bok && af == bf
}

func toFloat(v any) (float64, bool) {
	switch x := v.(type) {
	case int:
		return float64(x), true
	case int64:
		return float64(x), true
	case float64:
		return x, true
	}
	return 0, false
}

func validType(t ParameterType) bool {
	switch t {
	case TypeString, TypeBoolean, TypeInteger, TypeArray, TypeNumber:
		return true
	}
	return false
}

func matchesType(v any, t ParameterType) bool {
	switch t {
	case TypeString:
		_, ok := v.(string)
		return ok
	case TypeBoolean:
		_, ok := v.(bool)
		return ok
	case TypeInteger:
		switch v.(type) {
		case int, int64:
			return true
		case float64:
			f := v.(float64)
			return f == float64(int64(f))
		}
		return false
	case TypeNumber:
		_, ok := toFloat(v)
		return ok
	case TypeArray:
		_, ok := v.([]any)
		return ok
	}
	return false
}

func compileSchema(schema map[string]any) (*jsonschema.Schema, error) {
	raw, err := json.Marshal(schema)
	if err != nil {
		return nil, err
	}
	doc, err := jsonschema.UnmarshalJSON(bytes.NewReader(raw))
	if err != nil {
		return nil, err
	}
	c := jsonschema.NewCompiler()
	if err := c.AddResource("tool.json", doc); err != nil {
		return nil, err
	}
	return c.Compile("tool.json")
}
