package toolcall_test

import (
	"context"
	"errors"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/kristerhedfors/toolcall"
	"github.com/kristerhedfors/toolcall/adapters/sandbox/starlarkrt"
	"github.com/kristerhedfors/toolcall/testutil"
)

const addSource = `
def add(a, b):
    log("adding", str(a), str(b))
    return {"result": a + b}
`

func newPipeline(t *testing.T, streamer toolcall.Streamer, opts ...toolcall.PipelineOption) *toolcall.Pipeline {
	t.Helper()
	reg := toolcall.NewRegistry()
	def := toolcall.ToolDefinition{Name: "add", Description: "Add two numbers", Parameters: testutil.NumberParams()}
	require.NoError(t, reg.Add("add", addSource, def, ""))
	require.NoError(t, reg.Enable("add"))
	exec := toolcall.NewExecutor(reg, toolcall.WithCompiler(starlarkrt.New()))
	return toolcall.NewPipeline(streamer, toolcall.NewOrchestrator(exec), "test-model", opts...)
}

func TestPipeline_ToolRoundTrip(t *testing.T) {
	streamer := &testutil.MockStreamer{Bodies: []string{
		testutil.SSEBody(
			testutil.ContentChunk("Let me add. "),
			testutil.ToolCallChunk(0, "call_1", "add", `{"a":"2",`),
			testutil.ToolCallChunk(0, "", "", `"b":3}`),
		),
		testutil.SSEBody(testutil.ContentChunk("The sum is "), testutil.ContentChunk("5.")),
	}}
	var streamed strings.Builder
	p := newPipeline(t, streamer, toolcall.WithContentHandler(func(d string) { streamed.WriteString(d) }))

	history := []toolcall.Message{{Role: toolcall.RoleUser, Content: "What is 2+3?"}}
	res, err := p.Run(context.Background(), history)
	require.NoError(t, err)

	assert.Equal(t, "The sum is 5.", res.Content)
	assert.Equal(t, "Let me add. ", res.Preamble)
	assert.Equal(t, "Let me add. The sum is 5.", streamed.String())
	require.Len(t, res.ToolResults, 1)
	assert.Equal(t, `{"result":5}`, res.ToolResults[0].Content)
	assert.Equal(t, "call_1", res.ToolResults[0].ToolCallID)
	assert.Len(t, history, 1)

	reqs := streamer.Requests()
	require.Len(t, reqs, 2)
	require.Len(t, reqs[0].Tools, 1)
	assert.Equal(t, "add", reqs[0].Tools[0].Function.Name)
	assert.Equal(t, "auto", reqs[0].ToolChoice)

	follow := reqs[1].Messages
	require.Len(t, follow, 3)
	assert.Equal(t, toolcall.RoleAssistant, follow[1].Role)
	assert.Empty(t, follow[1].Content)
	assert.Equal(t, `{"a":"2","b":3}`, follow[1].ToolCalls[0].Function.Arguments)
	assert.Equal(t, toolcall.RoleTool, follow[2].Role)
	assert.Equal(t, "call_1", follow[2].ToolCallID)

	require.Len(t, res.Messages, 4)
	assert.Equal(t, "The sum is 5.", res.Messages[3].Content)
}

func TestPipeline_NoToolCalls(t *testing.T) {
	streamer := &testutil.MockStreamer{Bodies: []string{testutil.SSEBody(testutil.ContentChunk("Hello!"))}}
	res, err := newPipeline(t, streamer).Run(context.Background(), []toolcall.Message{{Role: toolcall.RoleUser, Content: "hi"}})
	require.NoError(t, err)
	assert.Equal(t, "Hello!", res.Content)
	assert.Empty(t, res.ToolCalls)
	assert.Len(t, streamer.Requests(), 1)
	require.Len(t, res.Messages, 2)
	assert.Equal(t, toolcall.RoleAssistant, res.Messages[1].Role)
}

func TestPipeline_SynthesizesMissingIDs(t *testing.T) {
	streamer := &testutil.MockStreamer{Bodies: []string{
		testutil.SSEBody(testutil.ToolCallChunk(0, "", "add", `{"a":1,"b":1}`)),
		testutil.SSEBody(testutil.ContentChunk("2")),
	}}
	res, err := newPipeline(t, streamer).Run(context.Background(), nil)
	require.NoError(t, err)
	require.Len(t, res.ToolCalls, 1)
	id := res.ToolCalls[0].ID
	assert.True(t, strings.HasPrefix(id, "call_"), id)
	assert.Equal(t, id, res.ToolResults[0].ToolCallID)
}

func TestPipeline_UnknownFunctionStillFollowsUp(t *testing.T) {
	streamer := &testutil.MockStreamer{Bodies: []string{
		testutil.SSEBody(
			testutil.ToolCallChunk(0, "c1", "nope", `{}`),
			testutil.ToolCallChunk(1, "c2", "add", `{"a":4,"b":4}`),
		),
		testutil.SSEBody(testutil.ContentChunk("done")),
	}}
	res, err := newPipeline(t, streamer).Run(context.Background(), nil)
	require.NoError(t, err)
	require.Len(t, res.ToolResults, 2)
	assert.Contains(t, res.ToolResults[0].Content, `"status":"error"`)
	assert.Equal(t, `{"result":8}`, res.ToolResults[1].Content)
}

func TestPipeline_FollowUpToolCallsIgnored(t *testing.T) {
	streamer := &testutil.MockStreamer{Bodies: []string{
		testutil.SSEBody(testutil.ToolCallChunk(0, "c1", "add", `{"a":1,"b":2}`)),
		testutil.SSEBody(testutil.ContentChunk("3"), testutil.ToolCallChunk(0, "c2", "add", `{"a":3,"b":3}`)),
	}}
	res, err := newPipeline(t, streamer).Run(context.Background(), nil)
	require.NoError(t, err)
	assert.Equal(t, "3", res.Content)
	assert.Len(t, streamer.Requests(), 2)
	assert.Len(t, res.ToolResults, 1)
}

func TestPipeline_NetworkError(t *testing.T) {
	streamer := &testutil.MockStreamer{Err: &toolcall.NetworkError{StatusCode: 503, Message: "overloaded"}}
	_, err := newPipeline(t, streamer).Run(context.Background(), nil)
	var ne *toolcall.NetworkError
	require.True(t, errors.As(err, &ne))
	assert.Equal(t, 503, ne.StatusCode)
}

func TestPipeline_Cancelled(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	streamer := &testutil.MockStreamer{Bodies: []string{testutil.SSEBody(testutil.ContentChunk("x"))}}
	_, err := newPipeline(t, streamer).Run(ctx, nil)
	assert.ErrorIs(t, err, context.Canceled)
}

func TestPipeline_FreshDefinitionsEachTurn(t *testing.T) {
	streamer := &testutil.MockStreamer{Bodies: []string{
		testutil.SSEBody(testutil.ContentChunk("a")),
		testutil.SSEBody(testutil.ContentChunk("b")),
	}}
	reg := toolcall.NewRegistry()
	exec := toolcall.NewExecutor(reg)
	p := toolcall.NewPipeline(streamer, toolcall.NewOrchestrator(exec), "m")

	_, err := p.Run(context.Background(), nil)
	require.NoError(t, err)
	require.NoError(t, reg.RegisterEnabled(testutil.HandlerEntry("mock", nil, &testutil.MockExecutable{})))
	_, err = p.Run(context.Background(), nil)
	require.NoError(t, err)

	reqs := streamer.Requests()
	assert.Empty(t, reqs[0].Tools)
	require.Len(t, reqs[1].Tools, 1)
	assert.Equal(t, "mock", reqs[1].Tools[0].Function.Name)
}
