package toolcall

import (
	"encoding/json"
	"maps"
	"math"
	"strconv"
	"strings"
)

// CoerceArguments parses a call's raw argument string and converts each declared
// parameter to its schema type when the model sent it as a string:
//
//   - number/integer: numeric-looking strings become float64
//   - boolean: "true"/"false" in any case become bool
//   - object/array: JSON-looking strings are parsed; the original is kept on failure
//
// Parameters the schema does not declare pass through unchanged. Empty or
// whitespace-only input and a literal null both mean "no arguments". A top-level
// parse failure is an *ArgumentParseError naming the function.
func CoerceArguments(function, raw string, schema map[string]any) (map[string]any, error) {
	trimmed := strings.TrimSpace(raw)
	if trimmed == "" {
		return map[string]any{}, nil
	}
	var parsed any
	if err := json.Unmarshal([]byte(trimmed), &parsed); err != nil {
		return nil, &ArgumentParseError{Function: function, Err: err}
	}
	if parsed == nil {
		return map[string]any{}, nil
	}
	args, ok := parsed.(map[string]any)
	if !ok {
		return nil, &InvalidArgumentsError{Function: function, Reason: "arguments must be a JSON object"}
	}
	return CoerceValues(args, schema), nil
}

// CoerceValues applies the same per-parameter conversions to an already-parsed
// argument map. args is not mutated.
func CoerceValues(args map[string]any, schema map[string]any) map[string]any {
	out := maps.Clone(args)
	if out == nil {
		out = map[string]any{}
	}
	for name, typ := range propertyTypes(schema) {
		v, ok := out[name]
		if !ok {
			continue
		}
		out[name] = coerceValue(v, typ)
	}
	return out
}

func coerceValue(v any, typ string) any {
	s, ok := v.(string)
	if !ok {
		return v
	}
	switch typ {
	case "number", "integer":
		if f, ok := parseNumber(s); ok {
			return f
		}
	case "boolean":
		switch {
		case strings.EqualFold(strings.TrimSpace(s), "true"):
			return true
		case strings.EqualFold(strings.TrimSpace(s), "false"):
			return false
		}
	case "object":
		if m, ok := parseNested(s, '{').(map[string]any); ok {
			return m
		}
	case "array":
		if a, ok := parseNested(s, '[').([]any); ok {
			return a
		}
	}
	return v
}

// parseNumber accepts finite decimal numbers only; "NaN" and "Inf" stay strings.
func parseNumber(s string) (float64, bool) {
	s = strings.TrimSpace(s)
	if s == "" {
		return 0, false
	}
	f, err := strconv.ParseFloat(s, 64)
	if err != nil || math.IsNaN(f) || math.IsInf(f, 0) {
		return 0, false
	}
	return f, true
}

func parseNested(s string, open byte) any {
	s = strings.TrimSpace(s)
	if s == "" || s[0] != open {
		return nil
	}
	var v any
	if err := json.Unmarshal([]byte(s), &v); err != nil {
		return nil
	}
	return v
}
