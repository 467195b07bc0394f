// Package starlarkrt runs user-defined functions written in Starlark.
//
// A function's code is a Starlark file that defines a function with the
// registered name (or main). The file is compiled once; every call gets a fresh
// thread whose only reachable host surface is the injected builtins: fetch,
// sleep, log, print and the json, math and time modules. Execution is bounded
// by a step budget and cancelled when the caller's context is done.
//
// This is capability limiting inside the host process, not OS isolation.
package starlarkrt

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"go.starlark.net/resolve"
	"go.starlark.net/starlark"
	"go.starlark.net/syntax"

	"github.com/kristerhedfors/toolcall"
)

// DefaultMaxSteps bounds the computation of one call.
const DefaultMaxSteps = 10_000_000

// Compiler implements toolcall.Compiler for Starlark source.
type Compiler struct {
	maxSteps uint64
}

// Option configures a Compiler.
type Option func(*Compiler)

// WithMaxSteps sets the execution step budget. Zero disables the limit.
func WithMaxSteps(n uint64) Option {
	return func(c *Compiler) {
		c.maxSteps = n
	}
}

// New returns a Starlark compiler.
func New(opts ...Option) *Compiler {
	c := &Compiler{maxSteps: DefaultMaxSteps}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

var fileOptions = &syntax.FileOptions{
	Set:             true,
	While:           true,
	TopLevelControl: true,
	GlobalReassign:  true,
	Recursion:       true,
}

// Compile parses and resolves code. Syntax and resolution failures are
// *toolcall.RuntimeError with Kind RuntimeSyntax or RuntimeReference.
func (c *Compiler) Compile(name, code string) (toolcall.Executable, error) {
	predeclared := builtins()
	_, prog, err := starlark.SourceProgramOptions(fileOptions, name+".star", code, predeclared.Has)
	if err != nil {
		return nil, classify(err)
	}
	return &function{name: name, prog: prog, predeclared: predeclared, maxSteps: c.maxSteps}, nil
}

type function struct {
	name        string
	prog        *starlark.Program
	predeclared starlark.StringDict
	maxSteps    uint64
}

const (
	localContext      = "toolcall.context"
	localCapabilities = "toolcall.capabilities"
)

// Run implements toolcall.Executable.
func (f *function) Run(ctx context.Context, args map[string]any, caps *toolcall.Capabilities) (any, error) {
	thread := &starlark.Thread{
		Name: f.name,
		Print: func(_ *starlark.Thread, msg string) {
			caps.Log("log", msg)
		},
	}
	thread.SetLocal(localContext, ctx)
	thread.SetLocal(localCapabilities, caps)
	if f.maxSteps > 0 {
		thread.SetMaxExecutionSteps(f.maxSteps)
	}
	stop := context.AfterFunc(ctx, func() {
		thread.Cancel(context.Cause(ctx).Error())
	})
	defer stop()

	globals, err := f.prog.Init(thread, f.predeclared)
	if err != nil {
		return nil, classify(err)
	}
	fn, err := f.entryPoint(globals)
	if err != nil {
		return nil, err
	}
	kwargs, err := keywordArgs(fn, args)
	if err != nil {
		return nil, err
	}
	v, err := starlark.Call(thread, fn, nil, kwargs)
	if err != nil {
		return nil, classify(err)
	}
	out, err := toGo(v)
	if err != nil {
		return nil, &toolcall.NonSerializableResultError{Function: f.name, Err: err}
	}
	return out, nil
}

func (f *function) entryPoint(globals starlark.StringDict) (*starlark.Function, error) {
	for _, name := range []string{f.name, "main"} {
		v, ok := globals[name]
		if !ok {
			continue
		}
		fn, ok := v.(*starlark.Function)
		if !ok {
			return nil, toolcall.NewRuntimeError(toolcall.RuntimeType, fmt.Sprintf("%s is a %s, not a function", name, v.Type()), nil)
		}
		return fn, nil
	}
	return nil, toolcall.NewRuntimeError(toolcall.RuntimeReference, fmt.Sprintf("code does not define %s or main", f.name), nil)
}

// keywordArgs passes each argument by name. Unless fn accepts **kwargs, names it
// does not declare are dropped.
func keywordArgs(fn *starlark.Function, args map[string]any) ([]starlark.Tuple, error) {
	accept := func(string) bool { return true }
	if !fn.HasKwargs() {
		declared := make(map[string]bool, fn.NumParams())
		for i := range fn.NumParams() {
			p, _ := fn.Param(i)
			declared[p] = true
		}
		accept = func(name string) bool { return declared[name] }
	}
	kwargs := make([]starlark.Tuple, 0, len(args))
	for _, k := range sortedKeys(args) {
		if !accept(k) {
			continue
		}
		v, err := toStarlark(args[k])
		if err != nil {
			return nil, toolcall.NewRuntimeError(toolcall.RuntimeType, fmt.Sprintf("argument %s: %v", k, err), err)
		}
		kwargs = append(kwargs, starlark.Tuple{starlark.String(k), v})
	}
	return kwargs, nil
}

// classify maps interpreter failures onto runtime error kinds. Only the message
// is kept; call stacks stay in the wrapped error.
func classify(err error) error {
	var (
		synErr  syntax.Error
		resErrs resolve.ErrorList
		evalErr *starlark.EvalError
		rtErr   *toolcall.RuntimeError
	)
	switch {
	case errors.As(err, &rtErr):
		return rtErr
	case errors.As(err, &synErr):
		return toolcall.NewRuntimeError(toolcall.RuntimeSyntax, synErr.Error(), err)
	case errors.As(err, &resErrs):
		kind := toolcall.RuntimeSyntax
		for _, e := range resErrs {
			if strings.Contains(e.Msg, "undefined") {
				kind = toolcall.RuntimeReference
				break
			}
		}
		return toolcall.NewRuntimeError(kind, resErrs.Error(), err)
	case errors.As(err, &evalErr):
		return toolcall.NewRuntimeError(evalKind(evalErr.Msg), evalErr.Msg, err)
	default:
		return toolcall.NewRuntimeError(toolcall.RuntimeGeneric, err.Error(), err)
	}
}

func evalKind(msg string) toolcall.RuntimeErrorKind {
	switch {
	case containsAny(msg, "undefined", "has no .", "has no field or method", "referenced before assignment", "not defined"):
		return toolcall.RuntimeReference
	case containsAny(msg, "unsupported", "want ", "not callable", "unknown binary op", "unhashable", "got ", "not iterable", "not indexable"):
		return toolcall.RuntimeType
	default:
		return toolcall.RuntimeGeneric
	}
}

func containsAny(s string, subs ...string) bool {
	for _, sub := range subs {
		if strings.Contains(s, sub) {
			return true
		}
	}
	return false
}
