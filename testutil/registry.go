package testutil

import (
	"github.com/kristerhedfors/toolcall"
)

// NumberParams is a parameters schema with two required number properties a and b.
func NumberParams() map[string]any {
	return map[string]any{
		"type": "object",
		"properties": map[string]any{
			"a": map[string]any{"type": "number"},
			"b": map[string]any{"type": "number"},
		},
		"required": []any{"a", "b"},
	}
}

// HandlerEntry builds a built-in entry around exec.
func HandlerEntry(name string, params map[string]any, exec toolcall.Executable) toolcall.Entry {
	if params == nil {
		params = map[string]any{"type": "object", "properties": map[string]any{}}
	}
	return toolcall.Entry{
		Name:       name,
		Handler:    exec,
		Definition: toolcall.ToolDefinition{Name: name, Description: name + " (test)", Parameters: params},
		Source:     toolcall.BuiltIn(),
	}
}

// NewTestRegistry returns a Registry with every entry registered and enabled.
// It panics on invalid entries.
func NewTestRegistry(entries ...toolcall.Entry) *toolcall.Registry {
	reg := toolcall.NewRegistry()
	for _, e := range entries {
		if err := reg.RegisterEnabled(e); err != nil {
			panic(err)
		}
	}
	return reg
}
