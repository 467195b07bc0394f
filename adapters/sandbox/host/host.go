// Package host runs user-defined functions as shell commands on the host.
//
// A function's code is a shell script run with sh -c. Arguments arrive as one
// JSON object on stdin and the script must print a single JSON value on stdout.
// Stderr lines go to the function console. The child gets a minimal environment
// but no isolation: only register code you trust.
package host

import (
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os/exec"
	"strings"
	"time"

	"github.com/kristerhedfors/toolcall"
	"github.com/kristerhedfors/toolcall/adapters/sandbox/internal/capture"
)

// Compiler implements toolcall.Compiler for shell scripts.
type Compiler struct {
	shell   string
	dir     string
	env     []string
	maxOut  int
	waitFor time.Duration
}

// Option configures a Compiler.
type Option func(*Compiler)

// WithShell sets the interpreter invoked as "<shell> -c <code>".
func WithShell(path string) Option {
	return func(c *Compiler) {
		c.shell = path
	}
}

// WithDir sets the working directory of every run.
func WithDir(dir string) Option {
	return func(c *Compiler) {
		c.dir = dir
	}
}

// WithEnv adds KEY=VALUE pairs to the child environment.
func WithEnv(kv map[string]string) Option {
	return func(c *Compiler) {
		for k, v := range kv {
			c.env = append(c.env, k+"="+v)
		}
	}
}

// WithMaxOutput caps stdout and stderr in bytes. Larger stdout fails the call.
func WithMaxOutput(n int) Option {
	return func(c *Compiler) {
		c.maxOut = n
	}
}

// New returns a shell compiler.
func New(opts ...Option) *Compiler {
	c := &Compiler{
		shell:   "/bin/sh",
		env:     []string{"PATH=/usr/local/bin:/usr/bin:/bin", "LANG=C.UTF-8"},
		maxOut:  1 << 20,
		waitFor: time.Second,
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Compile checks that code is non-empty. The shell parses it on each run.
func (c *Compiler) Compile(name, code string) (toolcall.Executable, error) {
	if strings.TrimSpace(code) == "" {
		return nil, toolcall.NewRuntimeError(toolcall.RuntimeSyntax, "empty script", nil)
	}
	return &script{name: name, code: code, c: c}, nil
}

type script struct {
	name string
	code string
	c    *Compiler
}

// Run implements toolcall.Executable.
func (s *script) Run(ctx context.Context, args map[string]any, caps *toolcall.Capabilities) (any, error) {
	input, err := json.Marshal(args)
	if err != nil {
		return nil, toolcall.NewRuntimeError(toolcall.RuntimeType, "arguments are not JSON", err)
	}
	cmd := exec.CommandContext(ctx, s.c.shell, "-c", s.code)
	cmd.Dir = s.c.dir
	cmd.Env = append(append([]string(nil), s.c.env...), "TOOLCALL_FUNCTION="+s.name)
	cmd.Stdin = bytes.NewReader(input)
	cmd.WaitDelay = s.c.waitFor

	stdout := capture.New(s.c.maxOut)
	stderr := capture.New(s.c.maxOut)
	cmd.Stdout = stdout
	cmd.Stderr = stderr
	runErr := cmd.Run()

	sc := bufio.NewScanner(bytes.NewReader(stderr.Bytes()))
	for sc.Scan() {
		if line := sc.Text(); line != "" {
			caps.Log("error", line)
		}
	}
	if runErr != nil {
		if ctxErr := ctx.Err(); ctxErr != nil {
			return nil, ctxErr
		}
		var exitErr *exec.ExitError
		if errors.As(runErr, &exitErr) {
			msg := strings.TrimSpace(stderr.String())
			if msg == "" {
				msg = fmt.Sprintf("exit status %d", exitErr.ExitCode())
			}
			kind := toolcall.RuntimeGeneric
			switch exitErr.ExitCode() {
			case 2:
				kind = toolcall.RuntimeSyntax
			case 127:
				kind = toolcall.RuntimeReference
			}
			return nil, toolcall.NewRuntimeError(kind, msg, runErr)
		}
		return nil, toolcall.NewRuntimeError(toolcall.RuntimeGeneric, runErr.Error(), runErr)
	}
	if stdout.Truncated() {
		return nil, &toolcall.NonSerializableResultError{Err: fmt.Errorf("output exceeds %d bytes", s.c.maxOut)}
	}
	out := bytes.TrimSpace(stdout.Bytes())
	if len(out) == 0 {
		return nil, nil
	}
	if !json.Valid(out) {
		return nil, &toolcall.NonSerializableResultError{Err: errors.New("script output is not JSON")}
	}
	return json.RawMessage(out), nil
}
