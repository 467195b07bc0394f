package toolcall

import (
	"context"
	"errors"
	"fmt"
)

// NewBuiltin builds a registry Entry from a typed Go function. The parameters
// schema is reflected from T and arguments are validated before fn runs.
// The entry is not registered; pass it to Registry.RegisterEnabled.
func NewBuiltin[T any, R any](
	name, description string,
	fn func(ctx context.Context, args T, caps *Capabilities) (R, error),
	opts ...BuiltinOption,
) (Entry, error) {
	if fn == nil {
		return Entry{}, errors.New("builtin handler must not be nil")
	}
	o := builtinOptions{source: BuiltIn()}
	for _, opt := range opts {
		opt(&o)
	}
	ext, err := NewExtractor[T](o.strict)
	if err != nil {
		return Entry{}, fmt.Errorf("builtin %q: %w", name, err)
	}
	handler := ExecutableFunc(func(ctx context.Context, args map[string]any, caps *Capabilities) (any, error) {
		parsed, err := ext.Parse(name, args)
		if err != nil {
			return nil, err
		}
		return fn(ctx, parsed, caps)
	})
	return Entry{
		Name: name,
		Definition: ToolDefinition{
			Name:        name,
			Description: description,
			Parameters:  ext.Schema(),
		},
		Handler: handler,
		Source:  o.source,
		GroupID: o.groupID,
		Timeout: o.timeout,
	}, nil
}

// NewDynamicBuiltin builds an Entry from a raw parameters schema and an untyped
// handler. Arguments are validated against the schema before fn runs. Useful for
// functions bridged from a provider whose schemas are only known at runtime.
// The caller's schema map is not mutated.
func NewDynamicBuiltin(
	name, description string,
	schemaMap map[string]any,
	fn func(ctx context.Context, args map[string]any, caps *Capabilities) (any, error),
	opts ...BuiltinOption,
) (Entry, error) {
	if schemaMap == nil {
		return Entry{}, errors.New("dynamic schema map must not be nil")
	}
	if fn == nil {
		return Entry{}, errors.New("builtin handler must not be nil")
	}
	o := builtinOptions{source: BuiltIn()}
	for _, opt := range opts {
		opt(&o)
	}
	schemaCopy := cloneSchema(schemaMap)
	if o.strict {
		applyStrictMode(schemaCopy)
	}
	stripSchemaIDs(schemaCopy)
	compiled, err := compileDeclaredSchema(schemaCopy)
	if err != nil {
		return Entry{}, fmt.Errorf("failed to compile dynamic schema: %w", err)
	}
	handler := ExecutableFunc(func(ctx context.Context, args map[string]any, caps *Capabilities) (any, error) {
		if args == nil {
			args = map[string]any{}
		}
		if err := validateAgainstSchema(name, compiled, args); err != nil {
			return nil, err
		}
		return fn(ctx, args, caps)
	})
	return Entry{
		Name: name,
		Definition: ToolDefinition{
			Name:        name,
			Description: description,
			Parameters:  schemaCopy,
		},
		Handler: handler,
		Source:  o.source,
		GroupID: o.groupID,
		Timeout: o.timeout,
	}, nil
}
