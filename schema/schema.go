// Package schema provides the JSON-Schema-subset helpers shared by tool
// definition sanitization and the structured output engine: a minimal
// validator and the recursive format-stripping pass OpenAI-family
// providers require.
package schema

import (
	"encoding/json"
	"fmt"
	"strings"
)

// Schema is a JSON-Schema subset document plus a decode target name, used
// by the structured output engine. Raw is the schema as sent to providers
// that support native structured output (OpenAI response_format, Anthropic
// tool-use).
type Schema struct {
	Name string
	Raw  map[string]any
}

// New builds a Schema from a raw JSON-Schema-subset document.
func New(name string, raw map[string]any) Schema {
	return Schema{Name: name, Raw: raw}
}

// allowedStringFormats are the only `format` values the OpenAI-family
// API accepts on string properties.
var allowedStringFormats = map[string]bool{"enum": true, "date-time": true}

// StripUnsupportedFormats returns a deep copy of raw with any `format` key
// removed from string-typed property schemas whose value is not in
// allowedStringFormats. The input is never mutated.
func StripUnsupportedFormats(raw map[string]any) map[string]any {
	return stripFormats(deepCopyMap(raw)).(map[string]any)
}

func stripFormats(v any) any {
	switch t := v.(type) {
	case map[string]any:
		isStringType := t["type"] == "string"
		if isStringType {
			if fmtVal, ok := t["format"].(string); ok && !allowedStringFormats[fmtVal] {
				delete(t, "format")
			}
		}
		for k, val := range t {
			t[k] = stripFormats(val)
		}
		return t
	case []any:
		for i, val := range t {
			t[i] = stripFormats(val)
		}
		return t
	default:
		return v
	}
}

func deepCopyMap(m map[string]any) map[string]any {
	b, err := json.Marshal(m)
	if err != nil {
		// Fall back to a shallow copy; callers pass JSON-compatible maps
		// by construction so this path is not expected in practice.
		out := make(map[string]any, len(m))
		for k, v := range m {
			out[k] = v
		}
		return out
	}
	var out map[string]any
	_ = json.Unmarshal(b, &out)
	return out
}

// EnsureStrictAdditionalPropertiesFalse sets additionalProperties:false on
// the root and every nested object schema, as OpenAI strict structured
// outputs require.
func EnsureStrictAdditionalPropertiesFalse(raw map[string]any) map[string]any {
	out := deepCopyMap(raw)
	forceStrict(out)
	return out
}

func forceStrict(v any) {
	switch t := v.(type) {
	case map[string]any:
		if t["type"] == "object" {
			t["additionalProperties"] = false
		}
		for _, val := range t {
			forceStrict(val)
		}
	case []any:
		for _, val := range t {
			forceStrict(val)
		}
	}
}

// Validate performs a minimal structural check of candidate against the
// schema's required-property and type declarations. It is intentionally
// not a full JSON Schema implementation; it checks just enough to drive
// the structured-output retry loop.
func (s Schema) Validate(candidate json.RawMessage) error {
	var data map[string]any
	if err := json.Unmarshal(candidate, &data); err != nil {
		return fmt.Errorf("candidate is not a JSON object: %w", err)
	}
	return validateAgainst(s.Raw, data)
}

func validateAgainst(schemaNode map[string]any, data map[string]any) error {
	required, _ := schemaNode["required"].([]any)
	for _, r := range required {
		name, ok := r.(string)
		if !ok {
			continue
		}
		if _, present := data[name]; !present {
			return fmt.Errorf("missing required property %q", name)
		}
	}
	props, _ := schemaNode["properties"].(map[string]any)
	for name, propSchemaAny := range props {
		val, present := data[name]
		if !present {
			continue
		}
		propSchema, ok := propSchemaAny.(map[string]any)
		if !ok {
			continue
		}
		if err := validateType(name, propSchema, val); err != nil {
			return err
		}
	}
	return nil
}

func validateType(name string, propSchema map[string]any, val any) error {
	wantType, _ := propSchema["type"].(string)
	switch wantType {
	case "string":
		if _, ok := val.(string); !ok {
			return fmt.Errorf("property %q must be a string", name)
		}
	case "number", "integer":
		if _, ok := val.(float64); !ok {
			return fmt.Errorf("property %q must be a number", name)
		}
	case "boolean":
		if _, ok := val.(bool); !ok {
			return fmt.Errorf("property %q must be a boolean", name)
		}
	case "object":
		nested, ok := val.(map[string]any)
		if !ok {
			return fmt.Errorf("property %q must be an object", name)
		}
		return validateAgainst(propSchema, nested)
	case "array":
		if _, ok := val.([]any); !ok {
			return fmt.Errorf("property %q must be an array", name)
		}
	}
	return nil
}

// ExtractJSONCandidate accepts either bare JSON (starting with '{' or '[')
// or the first fenced code block in text, and returns the candidate
// substring for parsing.
func ExtractJSONCandidate(text string) (string, bool) {
	trimmed := strings.TrimSpace(text)
	if len(trimmed) > 0 && (trimmed[0] == '{' || trimmed[0] == '[') {
		return trimmed, true
	}
	if block, ok := firstFencedBlock(text); ok {
		return strings.TrimSpace(block), true
	}
	return "", false
}

func firstFencedBlock(text string) (string, bool) {
	const fence = "```"
	start := strings.Index(text, fence)
	if start < 0 {
		return "", false
	}
	rest := text[start+len(fence):]
	// Skip an optional language tag up to the first newline.
	if nl := strings.Index(rest, "\n"); nl >= 0 {
		rest = rest[nl+1:]
	}
	end := strings.Index(rest, fence)
	if end < 0 {
		return "", false
	}
	return rest[:end], true
}
