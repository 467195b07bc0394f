package toolcall

import "context"

// Executable is a function body that runs against parsed arguments and the
// whitelisted capabilities. Implementations must honor ctx cancellation on a
// best-effort basis; the Executor abandons them on timeout regardless.
//
// The returned value is serialized to JSON by the Executor. A json.RawMessage is
// passed through after validation.
type Executable interface {
	Run(ctx context.Context, args map[string]any, caps *Capabilities) (any, error)
}

// ExecutableFunc adapts an ordinary function to Executable.
type ExecutableFunc func(ctx context.Context, args map[string]any, caps *Capabilities) (any, error)

// Run calls f.
func (f ExecutableFunc) Run(ctx context.Context, args map[string]any, caps *Capabilities) (any, error) {
	return f(ctx, args, caps)
}

// Compiler turns the code of a user-defined function into an Executable.
// Compile errors should be *RuntimeError with Kind RuntimeSyntax.
type Compiler interface {
	Compile(name, code string) (Executable, error)
}

// CompilerFunc adapts an ordinary function to Compiler.
type CompilerFunc func(name, code string) (Executable, error)

// Compile calls f.
func (f CompilerFunc) Compile(name, code string) (Executable, error) { return f(name, code) }
