package toolcall

import (
	"context"
	"encoding/json"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	"go.opentelemetry.io/otel/sdk/trace/tracetest"
)

var fixedNow = time.Date(2026, 3, 4, 5, 6, 7, 0, time.UTC)

func call(id, name, args string) ToolCall {
	return ToolCall{ID: id, Type: ToolTypeFunction, Function: FunctionCall{Name: name, Arguments: args}}
}

func addEntry() Entry {
	return handlerEntry("add", func(_ context.Context, args map[string]any, _ *Capabilities) (any, error) {
		a, _ := args["a"].(float64)
		b, _ := args["b"].(float64)
		return map[string]any{"result": a + b}, nil
	})
}

func newTestOrchestrator(t *testing.T, entries []Entry, opts ...OrchestratorOption) (*Orchestrator, *Registry) {
	t.Helper()
	x := newTestExecutor(t, entries, WithDefaultTimeout(time.Second))
	opts = append([]OrchestratorOption{WithClock(func() time.Time { return fixedNow })}, opts...)
	return NewOrchestrator(x, opts...), x.Registry()
}

func errorField(t *testing.T, content string) string {
	t.Helper()
	var body map[string]string
	require.NoError(t, json.Unmarshal([]byte(content), &body))
	assert.Equal(t, StatusError, body["status"])
	assert.Equal(t, "2026-03-04T05:06:07Z", body["timestamp"])
	return body["error"]
}

func TestProcessToolCalls_Success(t *testing.T) {
	o, _ := newTestOrchestrator(t, []Entry{addEntry()})
	msgs, err := o.ProcessToolCalls(context.Background(), []ToolCall{call("call_1", "add", `{"a":"2","b":3}`)}, nil)
	require.NoError(t, err)
	require.Len(t, msgs, 1)
	assert.Equal(t, RoleTool, msgs[0].Role)
	assert.Equal(t, "call_1", msgs[0].ToolCallID)
	assert.Equal(t, "add", msgs[0].Name)
	assert.JSONEq(t, `{"result":5}`, msgs[0].Content)
}

func TestProcessToolCalls_FailuresDoNotStopBatch(t *testing.T) {
	o, reg := newTestOrchestrator(t, []Entry{addEntry()})
	require.NoError(t, reg.Register(handlerEntry("off", okHandler(1))))

	calls := []ToolCall{
		call("c1", "nope", `{}`),
		call("c2", "off", `{}`),
		call("c3", "", `{}`),
		call("c4", "add", `{"a":`),
		call("c5", "add", `[1]`),
		call("c6", "add", `{"a":1,"b":1}`),
	}
	results, err := o.Process(context.Background(), calls, nil)
	require.NoError(t, err)
	require.Len(t, results, len(calls))

	for i, r := range results {
		assert.Equal(t, calls[i].ID, r.ToolCallID)
	}
	assert.Equal(t, `function "nope" not found`, errorField(t, string(results[0].Content)))
	assert.Equal(t, `function "off" is disabled`, errorField(t, string(results[1].Content)))
	assert.Equal(t, ErrMissingName.Error(), errorField(t, string(results[2].Content)))
	assert.Contains(t, errorField(t, string(results[3].Content)), "invalid JSON arguments")
	assert.Contains(t, errorField(t, string(results[4].Content)), "must be a JSON object")

	for _, r := range results[:5] {
		assert.Equal(t, StatusError, r.Status)
		assert.Equal(t, fixedNow, r.Timestamp)
	}
	assert.Equal(t, StatusOK, results[5].Status)
	assert.True(t, results[5].Timestamp.IsZero())
	assert.JSONEq(t, `{"result":2}`, string(results[5].Content))
}

func TestProcessToolCalls_RuntimeErrorContent(t *testing.T) {
	o, _ := newTestOrchestrator(t, []Entry{handlerEntry("f", func(context.Context, map[string]any, *Capabilities) (any, error) {
		return nil, NewRuntimeError(RuntimeType, "cannot add string and int", nil)
	})})
	msgs, err := o.ProcessToolCalls(context.Background(), []ToolCall{call("c", "f", "")}, nil)
	require.NoError(t, err)
	assert.Equal(t, `TypeError in function "f": cannot add string and int`, errorField(t, msgs[0].Content))
}

func TestProcessToolCalls_SequentialOrder(t *testing.T) {
	var order []string
	rec := func(name string) Entry {
		return handlerEntry(name, func(context.Context, map[string]any, *Capabilities) (any, error) {
			order = append(order, name)
			return name, nil
		})
	}
	o, _ := newTestOrchestrator(t, []Entry{rec("a"), rec("b"), rec("c")})
	msgs, err := o.ProcessToolCalls(context.Background(), []ToolCall{call("3", "c", ""), call("1", "a", ""), call("2", "b", "")}, nil)
	require.NoError(t, err)
	assert.Equal(t, []string{"c", "a", "b"}, order)
	assert.Equal(t, `"c"`, msgs[0].Content)
}

func TestProcessToolCalls_Empty(t *testing.T) {
	o, _ := newTestOrchestrator(t, nil)
	msgs, err := o.ProcessToolCalls(context.Background(), nil, nil)
	require.NoError(t, err)
	assert.Empty(t, msgs)
}

func TestProcessToolCalls_Cancelled(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	o, _ := newTestOrchestrator(t, []Entry{handlerEntry("stop", func(context.Context, map[string]any, *Capabilities) (any, error) {
		cancel()
		return 1, nil
	}), addEntry()})
	msgs, err := o.ProcessToolCalls(ctx, []ToolCall{call("1", "stop", ""), call("2", "add", "")}, nil)
	assert.ErrorIs(t, err, context.Canceled)
	assert.Nil(t, msgs)
}

func TestProcessToolCalls_Narration(t *testing.T) {
	o, _ := newTestOrchestrator(t, []Entry{addEntry()})
	var states []CallState
	n := NarratorFunc(func(_ context.Context, ev Event) {
		states = append(states, ev.State)
		if ev.State == StateSucceeded {
			assert.JSONEq(t, `{"result":3}`, string(ev.Result))
		}
		if ev.State == StateFailed {
			assert.ErrorIs(t, ev.Err, ErrFunctionNotFound)
		}
	})
	_, err := o.ProcessToolCalls(context.Background(), []ToolCall{call("1", "add", `{"a":1,"b":2}`), call("2", "gone", "")}, n)
	require.NoError(t, err)
	assert.Equal(t, []CallState{StatePending, StateExecuting, StateSucceeded, StatePending, StateFailed}, states)
}

func TestProcessToolCalls_NarratorDoesNotChangeResults(t *testing.T) {
	calls := []ToolCall{call("1", "add", `{"a":1,"b":2}`), call("2", "gone", "")}
	o, _ := newTestOrchestrator(t, []Entry{addEntry()})
	quiet, err := o.ProcessToolCalls(context.Background(), calls, nil)
	require.NoError(t, err)
	var lines []string
	loud, err := o.ProcessToolCalls(context.Background(), calls, &TextNarrator{
		Write: func(s string) { lines = append(lines, s) },
		Gate:  NewCategories("*"),
	})
	require.NoError(t, err)
	assert.Equal(t, quiet, loud)
	assert.NotEmpty(t, lines)
}

func TestProcessToolCalls_Spans(t *testing.T) {
	sr := tracetest.NewSpanRecorder()
	tp := sdktrace.NewTracerProvider(sdktrace.WithSpanProcessor(sr))
	t.Cleanup(func() { _ = tp.Shutdown(context.Background()) })

	o, _ := newTestOrchestrator(t, []Entry{addEntry()}, WithTracerProvider(tp))
	_, err := o.ProcessToolCalls(context.Background(), []ToolCall{call("c1", "add", `{"a":1,"b":1}`), call("c2", "nope", "")}, nil)
	require.NoError(t, err)

	spans := sr.Ended()
	require.Len(t, spans, 2)
	assert.Equal(t, "toolcall.execute", spans[0].Name())
	assert.Contains(t, spans[0].Attributes(), attribute.String("toolcall.function", "add"))
	assert.Contains(t, spans[0].Attributes(), attribute.String("toolcall.id", "c1"))
	assert.Contains(t, spans[0].Attributes(), attribute.String("toolcall.source", "builtin"))
	assert.Equal(t, codes.Ok, spans[0].Status().Code)
	assert.Equal(t, codes.Error, spans[1].Status().Code)
	require.NotEmpty(t, spans[1].Events())
	assert.Equal(t, "exception", spans[1].Events()[0].Name)
}

func TestProcessToolCalls_Timeout(t *testing.T) {
	e := handlerEntry("slow", func(ctx context.Context, _ map[string]any, _ *Capabilities) (any, error) {
		<-ctx.Done()
		return nil, errors.New("interrupted")
	})
	e.Timeout = 10 * time.Millisecond
	o, _ := newTestOrchestrator(t, []Entry{e})
	msgs, err := o.ProcessToolCalls(context.Background(), []ToolCall{call("c", "slow", "")}, nil)
	require.NoError(t, err)
	assert.Equal(t, `function "slow" timed out after 10ms`, errorField(t, msgs[0].Content))
}
