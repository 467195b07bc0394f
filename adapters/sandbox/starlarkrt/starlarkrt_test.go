package starlarkrt

import (
	"context"
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

func run(t *testing.T, c *Compiler, name, code string, args map[string]any, caps *toolcall.Capabilities) (any, error) {
	t.Helper()
	exe, err := c.Compile(name, code)
	require.NoError(t, err)
	return exe.Run(context.Background(), args, caps)
}

func requireKind(t *testing.T, err error, kind toolcall.RuntimeErrorKind) *toolcall.RuntimeError {
	t.Helper()
	var re *toolcall.RuntimeError
	require.ErrorAs(t, err, &re)
	assert.Equal(t, kind, re.Kind, re.Message)
	return re
}

func TestRun_Add(t *testing.T) {
	out, err := run(t, New(), "add", "def add(a, b):\n    return {\"result\": a + b}\n",
		map[string]any{"a": 2.0, "b": 3.0}, nil)
	require.NoError(t, err)
	assert.Equal(t, map[string]any{"result": int64(5)}, out)
}

func TestRun_MainFallbackAndKwargs(t *testing.T) {
	code := `
def main(**kwargs):
    return sorted(kwargs.keys())
`
	out, err := run(t, New(), "anything", code, map[string]any{"b": 1.0, "a": "x"}, nil)
	require.NoError(t, err)
	assert.Equal(t, []any{"a", "b"}, out)
}

func TestRun_DropsUndeclaredArguments(t *testing.T) {
	out, err := run(t, New(), "f", "def f(a, b=10):\n    return a * b\n", map[string]any{"a": 1.5, "zzz": true}, nil)
	require.NoError(t, err)
	assert.Equal(t, 15.0, out)
}

func TestRun_ValueConversion(t *testing.T) {
	code := `
def f(items, opts, flag, nothing):
    return {
        "len": len(items),
        "first": items[0],
        "opt": opts["k"],
        "flag": not flag,
        "none": nothing,
        "tuple": (1, "two"),
        "set": set([3]),
        "float": 0.5,
        "big": 1 << 70,
    }
`
	out, err := run(t, New(), "f", code, map[string]any{
		"items":   []any{"x", "y"},
		"opts":    map[string]any{"k": 2.0},
		"flag":    false,
		"nothing": nil,
	}, nil)
	require.NoError(t, err)
	m := out.(map[string]any)
	assert.Equal(t, int64(2), m["len"])
	assert.Equal(t, "x", m["first"])
	assert.Equal(t, int64(2), m["opt"])
	assert.Equal(t, true, m["flag"])
	assert.Nil(t, m["none"])
	assert.Equal(t, []any{int64(1), "two"}, m["tuple"])
	assert.Equal(t, []any{int64(3)}, m["set"])
	assert.Equal(t, 0.5, m["float"])
	assert.InDelta(t, 1.1805916207174113e21, m["big"], 1e6)
}

func TestCompile_Errors(t *testing.T) {
	c := New()
	_, err := c.Compile("f", "def f(:\n")
	requireKind(t, err, toolcall.RuntimeSyntax)

	_, err = c.Compile("f", "def f():\n    return missing_name\n")
	requireKind(t, err, toolcall.RuntimeReference)
}

func TestRun_Errors(t *testing.T) {
	tests := []struct {
		name string
		code string
		kind toolcall.RuntimeErrorKind
	}{
		{"type", "def f():\n    return \"a\" + 1\n", toolcall.RuntimeType},
		{"attribute", "def f():\n    return {}.nope\n", toolcall.RuntimeReference},
		{"fail", "def f():\n    fail(\"boom\")\n", toolcall.RuntimeGeneric},
		{"no entry point", "x = 1\n", toolcall.RuntimeReference},
		{"not a function", "f = 3\n", toolcall.RuntimeType},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := run(t, New(), "f", tt.code, nil, nil)
			requireKind(t, err, tt.kind)
		})
	}
}

func TestRun_NonSerializable(t *testing.T) {
	for name, code := range map[string]string{
		"cycle":    "def f():\n    l = []\n    l.append(l)\n    return l\n",
		"function": "def f():\n    return len\n",
	} {
		t.Run(name, func(t *testing.T) {
			_, err := run(t, New(), "f", code, nil, nil)
			assert.ErrorIs(t, err, toolcall.ErrNonSerializable)
		})
	}
}

func TestRun_StepLimit(t *testing.T) {
	_, err := run(t, New(WithMaxSteps(1000)), "f", "def f():\n    while True:\n        pass\n", nil, nil)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "too many steps")
}

func TestRun_ContextCancellation(t *testing.T) {
	exe, err := New(WithMaxSteps(0)).Compile("f", "def f():\n    while True:\n        pass\n")
	require.NoError(t, err)
	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Millisecond)
	defer cancel()
	_, err = exe.Run(ctx, nil, nil)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "cancelled")
}

func TestRun_ExecutorTimeout(t *testing.T) {
	reg := toolcall.NewRegistry()
	require.NoError(t, reg.Add("spin", "def spin():\n    while True:\n        pass\n", toolcall.ToolDefinition{Name: "spin"}, ""))
	require.NoError(t, reg.Enable("spin"))
	x := toolcall.NewExecutor(reg, toolcall.WithCompiler(New(WithMaxSteps(0))), toolcall.WithDefaultTimeout(30*time.Millisecond))
	_, err := x.Execute(context.Background(), "spin", nil)
	assert.ErrorIs(t, err, toolcall.ErrTimeout)
}

func TestRun_Console(t *testing.T) {
	console := toolcall.NewConsole(10, nil)
	code := `
def f():
    print("hello")
    log("careful", 42, level="warn")
    return None
`
	out, err := run(t, New(), "f", code, nil, &toolcall.Capabilities{Console: console})
	require.NoError(t, err)
	assert.Nil(t, out)
	entries := console.Entries()
	require.Len(t, entries, 2)
	assert.Equal(t, toolcall.ConsoleEntry{Level: "log", Message: "hello", Time: entries[0].Time}, entries[0])
	assert.Equal(t, "warn", entries[1].Level)
	assert.Equal(t, "careful 42", entries[1].Message)
}

type fakeFetcher struct {
	got toolcall.FetchRequest
}

func (f *fakeFetcher) Fetch(_ context.Context, req toolcall.FetchRequest) (*toolcall.FetchResponse, error) {
	f.got = req
	return &toolcall.FetchResponse{Status: 200, Headers: map[string]string{"content-type": "application/json"}, Body: `{"temp":21}`}, nil
}

func TestRun_Fetch(t *testing.T) {
	ff := &fakeFetcher{}
	code := `
def f(city):
    resp = fetch("https://weather.test/" + city, method="POST", headers={"X-Key": "k"}, body="q")
    return {"status": resp["status"], "temp": json.decode(resp["body"])["temp"]}
`
	out, err := run(t, New(), "f", code, map[string]any{"city": "lund"}, &toolcall.Capabilities{Fetcher: ff})
	require.NoError(t, err)
	assert.Equal(t, map[string]any{"status": int64(200), "temp": int64(21)}, out)
	assert.Equal(t, "https://weather.test/lund", ff.got.URL)
	assert.Equal(t, "POST", ff.got.Method)
	assert.Equal(t, map[string]string{"X-Key": "k"}, ff.got.Headers)
	assert.Equal(t, "q", ff.got.Body)
}

func TestRun_FetchUnavailable(t *testing.T) {
	_, err := run(t, New(), "f", "def f():\n    return fetch(\"https://x.test\")\n", nil, &toolcall.Capabilities{})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "capability not available")
}

func TestRun_Sleep(t *testing.T) {
	start := time.Now()
	_, err := run(t, New(), "f", "def f():\n    sleep(60)\n    return 1\n", nil, &toolcall.Capabilities{MaxSleep: 10 * time.Millisecond})
	require.NoError(t, err)
	assert.Less(t, time.Since(start), 5*time.Second)

	_, err = run(t, New(), "f", "def f():\n    sleep(\"x\")\n", nil, nil)
	require.Error(t, err)
}

func TestRun_Modules(t *testing.T) {
	code := `
def f():
    return {"sqrt": math.sqrt(16), "enc": json.encode({"a": [1, 2]})}
`
	out, err := run(t, New(), "f", code, nil, nil)
	require.NoError(t, err)
	assert.Equal(t, map[string]any{"sqrt": 4.0, "enc": `{"a":[1,2]}`}, out)
}
