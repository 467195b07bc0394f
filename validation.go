package toolcall

import (
	"bytes"
	"encoding/json"
	"fmt"

	"github.com/santhosh-tekuri/jsonschema/v6"
)

// Validatable is implemented by built-in argument structs that need business
// validation. Called after schema validation and unmarshaling.
type Validatable interface {
	Validate() error
}

// schemaValidator validates a JSON-like value (e.g. map[string]any from json.Unmarshal).
// Both *jsonschema.Schema and the reflected validators of built-ins implement it.
type schemaValidator interface {
	Validate(v any) error
}

const declaredSchemaURL = "mem://toolcall/parameters.json"

// compileDeclaredSchema compiles a function's declared parameters schema. It is
// called at registration so broken schemas are rejected before they are advertised.
func compileDeclaredSchema(params map[string]any) (*jsonschema.Schema, error) {
	data, err := json.Marshal(params)
	if err != nil {
		return nil, err
	}
	doc, err := jsonschema.UnmarshalJSON(bytes.NewReader(data))
	if err != nil {
		return nil, err
	}
	c := jsonschema.NewCompiler()
	if err := c.AddResource(declaredSchemaURL, doc); err != nil {
		return nil, err
	}
	return c.Compile(declaredSchemaURL)
}

// validateAgainstSchema checks already-parsed args. Values are normalized through
// JSON first so numeric types match what the validator expects.
func validateAgainstSchema(function string, validate schemaValidator, args map[string]any) error {
	data, err := json.Marshal(args)
	if err != nil {
		return &InvalidArgumentsError{Function: function, Reason: err.Error(), Err: err}
	}
	v, err := jsonschema.UnmarshalJSON(bytes.NewReader(data))
	if err != nil {
		return &InvalidArgumentsError{Function: function, Reason: err.Error(), Err: err}
	}
	if err := validate.Validate(v); err != nil {
		return &InvalidArgumentsError{Function: function, Reason: fmt.Sprint(err), Err: err}
	}
	return nil
}

// validateCustom runs Validatable if args implements it.
func validateCustom(args any) error {
	if v, ok := args.(Validatable); ok {
		return v.Validate()
	}
	return nil
}
