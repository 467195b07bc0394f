package toolcall

import (
	"encoding/json"
	"maps"
	"reflect"

	"github.com/google/jsonschema-go/jsonschema"
)

// Extractor provides JSON Schema generation and two-layer validation (schema +
// Validatable) for an argument struct T. Built-in functions use it to turn the
// coerced argument map into T.
type Extractor[T any] struct {
	schemaMap map[string]any
	resolved  *jsonschema.Resolved
}

// NewExtractor creates an Extractor for type T. When strict is true, the generated schema
// has additionalProperties: false for all objects and all properties required.
func NewExtractor[T any](strict bool) (*Extractor[T], error) {
	schemaMap, resolved, err := generateSchema[T](strict)
	if err != nil {
		return nil, err
	}
	return &Extractor[T]{
		schemaMap: schemaMap,
		resolved:  resolved,
	}, nil
}

// Schema returns a shallow copy of the JSON Schema (top-level keys only).
// Nested maps are shared; callers must not mutate them.
func (e *Extractor[T]) Schema() map[string]any {
	return maps.Clone(e.schemaMap)
}

// Parse converts args into T, running schema validation and then Validatable.
// Failures are *InvalidArgumentsError so the message can go back to the model.
func (e *Extractor[T]) Parse(function string, args map[string]any) (T, error) {
	var zero T
	if args == nil {
		args = map[string]any{}
	}
	data, err := json.Marshal(args)
	if err != nil {
		return zero, &InvalidArgumentsError{Function: function, Reason: err.Error(), Err: err}
	}
	var v any
	if err := json.Unmarshal(data, &v); err != nil {
		return zero, &InvalidArgumentsError{Function: function, Reason: err.Error(), Err: err}
	}
	if err := e.resolved.Validate(v); err != nil {
		return zero, &InvalidArgumentsError{Function: function, Reason: err.Error(), Err: err}
	}
	var out T
	if err := json.Unmarshal(data, &out); err != nil {
		return zero, &InvalidArgumentsError{Function: function, Reason: err.Error(), Err: err}
	}
	if err := runValidateHook(out); err != nil {
		return zero, &InvalidArgumentsError{Function: function, Reason: err.Error(), Err: err}
	}
	return out, nil
}

// runValidateHook calls Validate on args, or on &args when only the pointer
// implements Validatable. Validate runs at most once.
func runValidateHook[T any](args T) error {
	if err := validateCustom(any(args)); err != nil {
		return err
	}
	if _, ok := any(args).(Validatable); ok {
		return nil
	}
	typ := reflect.TypeOf(args)
	if typ == nil || typ.Kind() == reflect.Pointer {
		return nil
	}
	return validateCustom(any(&args))
}
