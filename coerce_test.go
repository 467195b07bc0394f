package toolcall

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func coerceSchema() map[string]any {
	return map[string]any{
		"type": "object",
		"properties": map[string]any{
			"a":      map[string]any{"type": "number"},
			"n":      map[string]any{"type": "integer"},
			"flag":   map[string]any{"type": "boolean"},
			"opts":   map[string]any{"type": "object"},
			"items":  map[string]any{"type": "array"},
			"label":  map[string]any{"type": "string"},
			"maybe":  map[string]any{"type": []any{"null", "number"}},
			"broken": "not a schema",
		},
	}
}

func TestCoerceArguments_Conversions(t *testing.T) {
	raw := `{"a":"2.5","n":" 7 ","flag":"TRUE","opts":"{\"k\":1}","items":"[1,2]","label":"42","maybe":"3","extra":"9"}`
	args, err := CoerceArguments("f", raw, coerceSchema())
	require.NoError(t, err)

	assert.Equal(t, 2.5, args["a"])
	assert.Equal(t, 7.0, args["n"])
	assert.Equal(t, true, args["flag"])
	assert.Equal(t, map[string]any{"k": 1.0}, args["opts"])
	assert.Equal(t, []any{1.0, 2.0}, args["items"])
	assert.Equal(t, "42", args["label"], "string parameters stay strings")
	assert.Equal(t, 3.0, args["maybe"], "union types use the first non-null member")
	assert.Equal(t, "9", args["extra"], "undeclared parameters pass through")
}

func TestCoerceArguments_LeavesUnconvertibleValues(t *testing.T) {
	raw := `{"a":"abc","n":"NaN","flag":"yes","opts":"{oops","items":"not a list"}`
	args, err := CoerceArguments("f", raw, coerceSchema())
	require.NoError(t, err)

	assert.Equal(t, "abc", args["a"])
	assert.Equal(t, "NaN", args["n"])
	assert.Equal(t, "yes", args["flag"])
	assert.Equal(t, "{oops", args["opts"])
	assert.Equal(t, "not a list", args["items"])
}

func TestCoerceArguments_TypedValuesUnchanged(t *testing.T) {
	args, err := CoerceArguments("f", `{"a":2,"flag":false,"opts":{"x":true}}`, coerceSchema())
	require.NoError(t, err)
	assert.Equal(t, 2.0, args["a"])
	assert.Equal(t, false, args["flag"])
	assert.Equal(t, map[string]any{"x": true}, args["opts"])
}

func TestCoerceArguments_Empty(t *testing.T) {
	for _, raw := range []string{"", "   ", "null", "\n"} {
		args, err := CoerceArguments("f", raw, coerceSchema())
		require.NoError(t, err, "raw %q", raw)
		assert.Empty(t, args)
		assert.NotNil(t, args)
	}
}

func TestCoerceArguments_InvalidJSON(t *testing.T) {
	_, err := CoerceArguments("calc", `{"a":`, coerceSchema())
	require.Error(t, err)
	var ape *ArgumentParseError
	require.True(t, errors.As(err, &ape))
	assert.Equal(t, "calc", ape.Function)
	assert.ErrorIs(t, err, ErrInvalidArguments)
}

func TestCoerceArguments_NotAnObject(t *testing.T) {
	for _, raw := range []string{`[1,2]`, `"text"`, `3`} {
		_, err := CoerceArguments("calc", raw, coerceSchema())
		var iae *InvalidArgumentsError
		require.True(t, errors.As(err, &iae), "raw %q", raw)
		assert.Equal(t, "calc", iae.Function)
	}
}

func TestCoerceArguments_NoSchema(t *testing.T) {
	args, err := CoerceArguments("f", `{"a":"1"}`, nil)
	require.NoError(t, err)
	assert.Equal(t, "1", args["a"])
}

func TestCoerceValues_DoesNotMutateInput(t *testing.T) {
	in := map[string]any{"a": "1"}
	out := CoerceValues(in, coerceSchema())
	assert.Equal(t, 1.0, out["a"])
	assert.Equal(t, "1", in["a"])

	assert.NotNil(t, CoerceValues(nil, coerceSchema()))
}
