// Package wasmrt runs user-defined functions compiled to WebAssembly (WASI).
//
// A function's code is the base64 encoding of a WASI command module. Each call
// instantiates the module with the JSON arguments on stdin; whatever the module
// writes to stdout must be a single JSON value and becomes the result. Stderr
// lines go to the function console. Modules get no filesystem and no network.
package wasmrt

import (
	"bufio"
	"bytes"
	"context"
	"crypto/sha256"
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"sync"

	"github.com/tetratelabs/wazero"
	"github.com/tetratelabs/wazero/imports/wasi_snapshot_preview1"
	"github.com/tetratelabs/wazero/sys"

	"github.com/kristerhedfors/toolcall"
	"github.com/kristerhedfors/toolcall/adapters/sandbox/internal/capture"
)

var wasmMagic = []byte("\x00asm")

// Compiler implements toolcall.Compiler for WASI modules. It owns a wazero
// runtime; call Close when done.
type Compiler struct {
	runtime wazero.Runtime
	maxOut  int

	mu    sync.Mutex
	cache map[[sha256.Size]byte]wazero.CompiledModule
}

// DefaultMaxOutput caps what a module may write to stdout and stderr.
const DefaultMaxOutput = 1 << 20

// Option configures a Compiler.
type Option func(*Compiler)

// WithMaxOutput caps stdout and stderr in bytes. Larger stdout fails the call.
func WithMaxOutput(n int) Option {
	return func(c *Compiler) {
		c.maxOut = n
	}
}

// New creates a runtime with WASI preview1 and context-driven termination.
func New(ctx context.Context, opts ...Option) *Compiler {
	r := wazero.NewRuntimeWithConfig(ctx, wazero.NewRuntimeConfig().WithCloseOnContextDone(true))
	wasi_snapshot_preview1.MustInstantiate(ctx, r)
	c := &Compiler{
		runtime: r,
		maxOut:  DefaultMaxOutput,
		cache:   make(map[[sha256.Size]byte]wazero.CompiledModule),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Close releases the runtime and every compiled module.
func (c *Compiler) Close(ctx context.Context) error {
	return c.runtime.Close(ctx)
}

// Compile decodes and compiles code. Identical modules are compiled once.
func (c *Compiler) Compile(name, code string) (toolcall.Executable, error) {
	bin, err := base64.StdEncoding.DecodeString(strings.TrimSpace(code))
	if err != nil {
		return nil, toolcall.NewRuntimeError(toolcall.RuntimeSyntax, "code is not base64", err)
	}
	if !bytes.HasPrefix(bin, wasmMagic) {
		return nil, toolcall.NewRuntimeError(toolcall.RuntimeSyntax, "code is not a WebAssembly module", nil)
	}
	key := sha256.Sum256(bin)

	c.mu.Lock()
	defer c.mu.Unlock()
	if compiled, ok := c.cache[key]; ok {
		return &module{name: name, runtime: c.runtime, compiled: compiled, maxOut: c.maxOut}, nil
	}
	compiled, err := c.runtime.CompileModule(context.Background(), bin)
	if err != nil {
		return nil, toolcall.NewRuntimeError(toolcall.RuntimeSyntax, err.Error(), err)
	}
	c.cache[key] = compiled
	return &module{name: name, runtime: c.runtime, compiled: compiled, maxOut: c.maxOut}, nil
}

type module struct {
	name     string
	runtime  wazero.Runtime
	compiled wazero.CompiledModule
	maxOut   int
}

// Run implements toolcall.Executable.
func (m *module) Run(ctx context.Context, args map[string]any, caps *toolcall.Capabilities) (any, error) {
	input, err := json.Marshal(args)
	if err != nil {
		return nil, toolcall.NewRuntimeError(toolcall.RuntimeType, "arguments are not JSON", err)
	}
	stdout := capture.New(m.maxOut)
	stderr := capture.New(m.maxOut)
	cfg := wazero.NewModuleConfig().
		WithName("").
		WithArgs(m.name).
		WithStdin(bytes.NewReader(input)).
		WithStdout(stdout).
		WithStderr(stderr).
		WithSysWalltime().
		WithSysNanotime()

	mod, err := m.runtime.InstantiateModule(ctx, m.compiled, cfg)
	if mod != nil {
		defer mod.Close(context.WithoutCancel(ctx))
	}
	logLines(caps, stderr)
	if err != nil {
		if ctxErr := ctx.Err(); ctxErr != nil {
			return nil, ctxErr
		}
		var exitErr *sys.ExitError
		if !errors.As(err, &exitErr) || exitErr.ExitCode() != 0 {
			msg := strings.TrimSpace(stderr.String())
			if msg == "" {
				msg = err.Error()
			}
			return nil, toolcall.NewRuntimeError(toolcall.RuntimeGeneric, msg, err)
		}
	}

	if stdout.Truncated() {
		return nil, &toolcall.NonSerializableResultError{Err: fmt.Errorf("output exceeds %d bytes", m.maxOut)}
	}
	out := bytes.TrimSpace(stdout.Bytes())
	if len(out) == 0 {
		return nil, nil
	}
	if !json.Valid(out) {
		return nil, &toolcall.NonSerializableResultError{Err: fmt.Errorf("module wrote %d bytes of non-JSON output", len(out))}
	}
	return json.RawMessage(out), nil
}

func logLines(caps *toolcall.Capabilities, stderr *capture.Buffer) {
	sc := bufio.NewScanner(bytes.NewReader(stderr.Bytes()))
	for sc.Scan() {
		if line := sc.Text(); line != "" {
			caps.Log("error", line)
		}
	}
}
