package wasmrt

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/goleak"

	"github.com/kristerhedfors/toolcall"
)

func TestMain(m *testing.M) {
	goleak.VerifyTestMain(m)
}

// Hand-assembled modules; every section is shorter than 128 bytes so sizes fit
// in one LEB128 byte.

func section(id byte, content ...byte) []byte {
	return append([]byte{id, byte(len(content))}, content...)
}

func name(s string) []byte {
	return append([]byte{byte(len(s))}, s...)
}

func concat(parts ...[]byte) []byte {
	var out []byte
	for _, p := range parts {
		out = append(out, p...)
	}
	return out
}

var header = []byte{0x00, 0x61, 0x73, 0x6d, 0x01, 0x00, 0x00, 0x00}

// startModule exports a _start function with the given body (locals and end included).
func startModule(body ...byte) []byte {
	return concat(
		header,
		section(0x01, 0x01, 0x60, 0x00, 0x00),
		section(0x03, 0x01, 0x00),
		section(0x07, concat([]byte{0x01}, name("_start"), []byte{0x00, 0x00})...),
		section(0x0a, concat([]byte{0x01, byte(len(body))}, body)...),
	)
}

// printModule writes payload to stdout through fd_write and returns.
func printModule(payload string) []byte {
	data := concat(
		[]byte{0x08, 0x00, 0x00, 0x00, byte(len(payload)), 0x00, 0x00, 0x00},
		[]byte(payload),
	)
	body := []byte{
		0x00,
		0x41, 0x01, // fd 1
		0x41, 0x00, // iovec at 0
		0x41, 0x01, // one iovec
		0x41, 0x20, // nwritten at 32
		0x10, 0x00, // call fd_write
		0x1a, // drop errno
		0x0b,
	}
	return concat(
		header,
		section(0x01, 0x02,
			0x60, 0x04, 0x7f, 0x7f, 0x7f, 0x7f, 0x01, 0x7f,
			0x60, 0x00, 0x00),
		section(0x02, concat([]byte{0x01}, name("wasi_snapshot_preview1"), name("fd_write"), []byte{0x00, 0x00})...),
		section(0x03, 0x01, 0x01),
		section(0x05, 0x01, 0x00, 0x01),
		section(0x07, concat([]byte{0x02}, name("_start"), []byte{0x00, 0x01}, name("memory"), []byte{0x02, 0x00})...),
		section(0x0a, concat([]byte{0x01, byte(len(body))}, body)...),
		section(0x0b, concat([]byte{0x01, 0x00, 0x41, 0x00, 0x0b, byte(len(data))}, data)...),
	)
}

func encode(b []byte) string { return base64.StdEncoding.EncodeToString(b) }

func newCompiler(t *testing.T, opts ...Option) *Compiler {
	t.Helper()
	c := New(context.Background(), opts...)
	t.Cleanup(func() { _ = c.Close(context.Background()) })
	return c
}

func TestRun_PrintsJSON(t *testing.T) {
	c := newCompiler(t)
	exe, err := c.Compile("answer", encode(printModule(`{"ok":true}`)))
	require.NoError(t, err)

	out, err := exe.Run(context.Background(), map[string]any{"x": 1}, &toolcall.Capabilities{})
	require.NoError(t, err)
	raw, ok := out.(json.RawMessage)
	require.True(t, ok)
	assert.JSONEq(t, `{"ok":true}`, string(raw))
}

func TestRun_NonJSONOutput(t *testing.T) {
	c := newCompiler(t)
	exe, err := c.Compile("bad", encode(printModule(`not json`)))
	require.NoError(t, err)
	_, err = exe.Run(context.Background(), nil, nil)
	assert.ErrorIs(t, err, toolcall.ErrNonSerializable)
}

func TestRun_OutputIsCapped(t *testing.T) {
	c := newCompiler(t, WithMaxOutput(4))
	exe, err := c.Compile("long", encode(printModule(`"0123456789"`)))
	require.NoError(t, err)
	_, err = exe.Run(context.Background(), nil, nil)
	assert.ErrorIs(t, err, toolcall.ErrNonSerializable)
	assert.ErrorContains(t, err, "output exceeds 4 bytes")
}

func TestRun_NoOutput(t *testing.T) {
	c := newCompiler(t)
	exe, err := c.Compile("noop", encode(startModule(0x00, 0x0b)))
	require.NoError(t, err)
	out, err := exe.Run(context.Background(), nil, nil)
	require.NoError(t, err)
	assert.Nil(t, out)
}

func TestRun_CancelledByContext(t *testing.T) {
	c := newCompiler(t)
	exe, err := c.Compile("spin", encode(startModule(0x00, 0x03, 0x40, 0x0c, 0x00, 0x0b, 0x0b)))
	require.NoError(t, err)

	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()
	_, err = exe.Run(ctx, nil, nil)
	assert.ErrorIs(t, err, context.DeadlineExceeded)
}

func TestRun_ExecutorTimeout(t *testing.T) {
	c := newCompiler(t)
	reg := toolcall.NewRegistry()
	require.NoError(t, reg.Add("spin", encode(startModule(0x00, 0x03, 0x40, 0x0c, 0x00, 0x0b, 0x0b)),
		toolcall.ToolDefinition{Name: "spin"}, ""))
	require.NoError(t, reg.Enable("spin"))
	x := toolcall.NewExecutor(reg, toolcall.WithCompiler(c), toolcall.WithDefaultTimeout(50*time.Millisecond))

	_, err := x.Execute(context.Background(), "spin", nil)
	assert.ErrorIs(t, err, toolcall.ErrTimeout)
}

func TestCompile_Errors(t *testing.T) {
	c := newCompiler(t)
	tests := map[string]string{
		"not base64": "%%%",
		"not wasm":   encode([]byte("hello world")),
		"corrupt":    encode(append(append([]byte{}, header...), 0xff, 0xff)),
	}
	for name, code := range tests {
		t.Run(name, func(t *testing.T) {
			_, err := c.Compile("f", code)
			var re *toolcall.RuntimeError
			require.ErrorAs(t, err, &re)
			assert.Equal(t, toolcall.RuntimeSyntax, re.Kind)
		})
	}
}

func TestCompile_Caches(t *testing.T) {
	c := newCompiler(t)
	code := encode(startModule(0x00, 0x0b))
	_, err := c.Compile("a", code)
	require.NoError(t, err)
	_, err = c.Compile("b", code)
	require.NoError(t, err)
	assert.Len(t, c.cache, 1)
}
