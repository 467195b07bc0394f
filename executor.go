package toolcall

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"time"
)

// Execution is the outcome of one successful function run.
type Execution struct {
	// Result is the JSON encoding of the returned value.
	Result   json.RawMessage
	Duration time.Duration
	// Console holds what the function logged, oldest first.
	Console []ConsoleEntry
}

// ExecutionTimeMs returns Duration in whole milliseconds.
func (e Execution) ExecutionTimeMs() int64 { return e.Duration.Milliseconds() }

// Executor runs registered functions against a fresh capability set under a
// wall-clock budget. It resolves names through the Registry on every call.
type Executor struct {
	reg  *Registry
	opts executorOptions
}

// NewExecutor creates an Executor bound to reg.
func NewExecutor(reg *Registry, opts ...ExecutorOption) *Executor {
	o := executorOptions{
		timeout: DefaultExecutionTimeout,
		logger:  slog.Default(),
	}
	for _, opt := range opts {
		opt(&o)
	}
	if o.timeout <= 0 {
		o.timeout = DefaultExecutionTimeout
	}
	return &Executor{reg: reg, opts: o}
}

// Registry returns the registry the executor resolves names in.
func (x *Executor) Registry() *Registry { return x.reg }

// Execute resolves name and runs it with args. Errors are *FunctionNotFoundError,
// *FunctionDisabledError, *InvalidArgumentsError, *RuntimeError,
// *ExecutionTimeoutError or *NonSerializableResultError; if ctx is done first the
// context error is returned and any late result is discarded.
func (x *Executor) Execute(ctx context.Context, name string, args map[string]any) (Execution, error) {
	entry, err := x.reg.Resolve(name)
	if err != nil {
		return Execution{}, err
	}
	return x.ExecuteEntry(ctx, entry, args)
}

type outcome struct {
	value any
	err   error
}

// ExecuteEntry runs an already-resolved entry. See Execute.
func (x *Executor) ExecuteEntry(ctx context.Context, entry Entry, args map[string]any) (Execution, error) {
	name := entry.Name
	if args == nil {
		args = map[string]any{}
	}
	exe, err := x.executable(entry)
	if err != nil {
		x.opts.metrics.observe(name, outcomeError, 0)
		return Execution{}, x.classify(name, err)
	}
	if x.opts.validateSchema && entry.Definition.Parameters != nil {
		compiled := entry.schema
		if compiled == nil {
			// entries that bypassed Register
			compiled, err = compileDeclaredSchema(entry.Definition.Parameters)
			if err != nil {
				x.opts.metrics.observe(name, outcomeError, 0)
				return Execution{}, &InvalidArgumentsError{Function: name, Reason: err.Error(), Err: err}
			}
		}
		if err := validateAgainstSchema(name, compiled, args); err != nil {
			x.opts.metrics.observe(name, outcomeError, 0)
			return Execution{}, err
		}
	}

	timeout := x.opts.timeout
	if entry.Timeout > 0 {
		timeout = entry.Timeout
	}
	console := NewConsole(x.opts.consoleEntries, x.opts.logger.With("function", name))
	caps := &Capabilities{
		Fetcher:  x.opts.fetcher,
		Console:  console,
		MaxSleep: x.opts.maxSleep,
	}

	runCtx, cancel := context.WithTimeout(withFunctionName(ctx, name), timeout)
	defer cancel()

	done := make(chan outcome, 1)
	start := time.Now()
	go func() {
		v, err := exe.Run(runCtx, args, caps)
		done <- outcome{value: v, err: err}
	}()

	var out outcome
	select {
	case <-runCtx.Done():
		return Execution{}, x.abandoned(ctx, name, timeout, time.Since(start))
	case out = <-done:
	}
	dur := time.Since(start)

	if ctx.Err() != nil {
		return Execution{}, x.abandoned(ctx, name, timeout, dur)
	}
	if out.err != nil {
		if errors.Is(runCtx.Err(), context.DeadlineExceeded) {
			return Execution{}, x.abandoned(ctx, name, timeout, dur)
		}
		x.opts.metrics.observe(name, outcomeError, dur)
		return Execution{}, x.classify(name, out.err)
	}

	result, err := serializeResult(name, out.value)
	if err != nil {
		x.opts.metrics.observe(name, outcomeError, dur)
		return Execution{}, err
	}
	x.opts.metrics.observe(name, outcomeOK, dur)
	return Execution{Result: result, Duration: dur, Console: console.Entries()}, nil
}

// abandoned reports why a run stopped waiting. The body may still be running;
// whatever it sends later lands in the buffered channel and is dropped.
func (x *Executor) abandoned(ctx context.Context, name string, timeout, dur time.Duration) error {
	if err := ctx.Err(); err != nil {
		x.opts.metrics.observe(name, outcomeAborted, dur)
		x.opts.logger.DebugContext(ctx, "execution aborted", "function", name, "error", err)
		return err
	}
	x.opts.metrics.observe(name, outcomeTimeout, dur)
	x.opts.logger.WarnContext(ctx, "execution timed out", "function", name, "timeout", timeout)
	return &ExecutionTimeoutError{Function: name, Timeout: timeout}
}

func (x *Executor) executable(entry Entry) (Executable, error) {
	if entry.Handler != nil {
		return chain(entry.Handler, x.opts.middlewares), nil
	}
	if entry.Code == "" {
		return nil, fmt.Errorf("function %q: %w", entry.Name, ErrIncompleteDefinition)
	}
	if x.opts.compiler == nil {
		return nil, fmt.Errorf("function %q: %w", entry.Name, ErrNoCompiler)
	}
	exe, err := x.opts.compiler.Compile(entry.Name, entry.Code)
	if err != nil {
		return nil, err
	}
	return chain(exe, x.opts.middlewares), nil
}

// classify maps a failure from a function body onto the error taxonomy. Errors
// that are already typed keep their type and gain the function name.
func (x *Executor) classify(name string, err error) error {
	var (
		re  *RuntimeError
		iae *InvalidArgumentsError
		ape *ArgumentParseError
		nse *NonSerializableResultError
		ute *json.UnmarshalTypeError
		se  *json.SyntaxError
	)
	switch {
	case errors.As(err, &re):
		if re.Function == "" {
			re.Function = name
		}
		return re
	case errors.As(err, &iae):
		if iae.Function == "" {
			iae.Function = name
		}
		return iae
	case errors.As(err, &ape):
		if ape.Function == "" {
			ape.Function = name
		}
		return ape
	case errors.As(err, &nse):
		if nse.Function == "" {
			nse.Function = name
		}
		return nse
	case errors.Is(err, ErrNoCompiler), errors.Is(err, ErrIncompleteDefinition):
		return err
	case errors.As(err, &ute):
		return &RuntimeError{Function: name, Kind: RuntimeType, Message: ute.Error(), Err: err}
	case errors.As(err, &se):
		return &RuntimeError{Function: name, Kind: RuntimeSyntax, Message: se.Error(), Err: err}
	default:
		return &RuntimeError{Function: name, Kind: RuntimeGeneric, Message: err.Error(), Err: err}
	}
}

// serializeResult encodes v for the wire. Cycles, NaN, functions and channels
// fail with *NonSerializableResultError; nothing partial is returned.
func serializeResult(name string, v any) (json.RawMessage, error) {
	switch r := v.(type) {
	case nil:
		return json.RawMessage("null"), nil
	case json.RawMessage:
		if !json.Valid(r) {
			return nil, &NonSerializableResultError{Function: name, Err: errors.New("raw result is not valid JSON")}
		}
		return r, nil
	}
	b, err := json.Marshal(v)
	if err != nil {
		return nil, &NonSerializableResultError{Function: name, Err: err}
	}
	return b, nil
}
