// Package testutil provides test helpers for toolcall (mock executables,
// scripted streamers and SSE bodies).
package testutil

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"strings"
	"sync"

	"github.com/kristerhedfors/toolcall"
)

// MockExecutable is a configurable Executable for tests.
type MockExecutable struct {
	RunFn func(ctx context.Context, args map[string]any, caps *toolcall.Capabilities) (any, error)

	mu    sync.Mutex
	calls []map[string]any
}

// Run records args and calls RunFn if set, otherwise returns an empty object.
func (m *MockExecutable) Run(ctx context.Context, args map[string]any, caps *toolcall.Capabilities) (any, error) {
	m.mu.Lock()
	m.calls = append(m.calls, args)
	m.mu.Unlock()
	if m.RunFn != nil {
		return m.RunFn(ctx, args, caps)
	}
	return map[string]any{}, nil
}

// Calls returns the argument maps of every Run, in order.
func (m *MockExecutable) Calls() []map[string]any {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]map[string]any(nil), m.calls...)
}

// Ensure MockExecutable implements Executable.
var _ toolcall.Executable = (*MockExecutable)(nil)

// MockStreamer replays one SSE body per Stream call and records the requests.
type MockStreamer struct {
	Bodies []string
	// Err, when set, is returned by every Stream call.
	Err error

	mu       sync.Mutex
	requests []toolcall.ChatRequest
}

// Stream implements toolcall.Streamer.
func (s *MockStreamer) Stream(_ context.Context, req toolcall.ChatRequest) (io.ReadCloser, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	n := len(s.requests)
	s.requests = append(s.requests, req)
	if s.Err != nil {
		return nil, s.Err
	}
	if n >= len(s.Bodies) {
		return nil, errors.New("testutil: no scripted body left")
	}
	return io.NopCloser(strings.NewReader(s.Bodies[n])), nil
}

// Requests returns every request received, in order.
func (s *MockStreamer) Requests() []toolcall.ChatRequest {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]toolcall.ChatRequest(nil), s.requests...)
}

var _ toolcall.Streamer = (*MockStreamer)(nil)

// SSEBody encodes each event as a "data: " line (strings are written verbatim,
// anything else as JSON) and ends with "data: [DONE]".
func SSEBody(events ...any) string {
	var b strings.Builder
	for _, ev := range events {
		b.WriteString("data: ")
		if s, ok := ev.(string); ok {
			b.WriteString(s)
		} else {
			data, err := json.Marshal(ev)
			if err != nil {
				panic(fmt.Sprintf("testutil: SSEBody: %v", err))
			}
			b.Write(data)
		}
		b.WriteString("\n\n")
	}
	b.WriteString("data: [DONE]\n\n")
	return b.String()
}

// ContentChunk is a chunk carrying only a content delta.
func ContentChunk(content string) toolcall.StreamChunk {
	return toolcall.StreamChunk{Choices: []toolcall.StreamChoice{{Delta: toolcall.StreamDelta{Content: content}}}}
}

// ToolCallChunk is a chunk carrying one tool-call delta.
func ToolCallChunk(index int, id, name, args string) toolcall.StreamChunk {
	return toolcall.StreamChunk{Choices: []toolcall.StreamChoice{{Delta: toolcall.StreamDelta{
		ToolCalls: []toolcall.ToolCallDelta{{
			Index:    index,
			ID:       id,
			Function: &toolcall.FunctionDelta{Name: name, Arguments: args},
		}},
	}}}}
}

// ChunkedReader returns r's content in reads of at most size bytes, so tests can
// split lines and multi-byte characters at arbitrary points.
func ChunkedReader(s string, size int) io.Reader {
	return &chunkedReader{data: []byte(s), size: max(size, 1)}
}

type chunkedReader struct {
	data []byte
	size int
}

func (r *chunkedReader) Read(p []byte) (int, error) {
	if len(r.data) == 0 {
		return 0, io.EOF
	}
	n := min(len(p), r.size, len(r.data))
	copy(p, r.data[:n])
	r.data = r.data[n:]
	return n, nil
}

// DiscardLogger returns a logger that drops every record.
func DiscardLogger() *slog.Logger {
	return slog.New(slog.DiscardHandler)
}
