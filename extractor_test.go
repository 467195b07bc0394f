package toolcall

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type sumArgs struct {
	Numbers []float64 `json:"numbers" description:"Values to add"`
	Label   string    `json:"label,omitempty"`
}

func TestExtractor_Parse(t *testing.T) {
	ext, err := NewExtractor[sumArgs](false)
	require.NoError(t, err)

	got, err := ext.Parse("sum", map[string]any{"numbers": []any{1.0, 2.5}})
	require.NoError(t, err)
	assert.Equal(t, []float64{1, 2.5}, got.Numbers)
}

func TestExtractor_SchemaFailure(t *testing.T) {
	ext, err := NewExtractor[sumArgs](false)
	require.NoError(t, err)

	_, err = ext.Parse("sum", map[string]any{"numbers": "1,2"})
	var iae *InvalidArgumentsError
	require.ErrorAs(t, err, &iae)
	assert.Equal(t, "sum", iae.Function)
}

func TestExtractor_StrictRejectsUnknown(t *testing.T) {
	ext, err := NewExtractor[sumArgs](true)
	require.NoError(t, err)

	_, err = ext.Parse("sum", map[string]any{"numbers": []any{1.0}, "label": "x", "extra": true})
	assert.ErrorIs(t, err, ErrInvalidArguments)
}

func TestExtractor_Validatable(t *testing.T) {
	ext, err := NewExtractor[checkedArgs](false)
	require.NoError(t, err)

	_, err = ext.Parse("f", map[string]any{"n": 50.0})
	require.ErrorIs(t, err, ErrInvalidArguments)
	assert.Contains(t, err.Error(), "n must be at most 10")
}

func TestExtractor_NilArgs(t *testing.T) {
	ext, err := NewExtractor[checkedArgs](false)
	require.NoError(t, err)
	got, err := ext.Parse("f", nil)
	require.NoError(t, err)
	assert.Zero(t, got.N)
}

func TestExtractor_SchemaCopy(t *testing.T) {
	ext, err := NewExtractor[sumArgs](false)
	require.NoError(t, err)
	s := ext.Schema()
	s["type"] = "array"
	assert.Equal(t, "object", ext.Schema()["type"])
}
