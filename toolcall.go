package toolcall

import (
	"encoding/json"
	"time"
)

// Message roles used in a conversation.
const (
	RoleSystem    = "system"
	RoleUser      = "user"
	RoleAssistant = "assistant"
	RoleTool      = "tool"
)

// ToolTypeFunction is the only tool type emitted or accepted by this package.
const ToolTypeFunction = "function"

// Result status markers.
const (
	StatusOK    = "ok"
	StatusError = "error"
)

// ToolDefinition describes a callable function to the model. Parameters is a
// JSON-Schema object. A definition is immutable once registered.
type ToolDefinition struct {
	Name        string         `json:"name"`
	Description string         `json:"description"`
	Parameters  map[string]any `json:"parameters"`
}

// ToolSpec is the wire shape advertised in a request's tools array.
type ToolSpec struct {
	Type     string         `json:"type"`
	Function ToolDefinition `json:"function"`
}

// Spec wraps the definition for the request tools array.
func (d ToolDefinition) Spec() ToolSpec {
	return ToolSpec{Type: ToolTypeFunction, Function: d}
}

// FunctionCall is the function part of a complete tool call. Arguments holds raw JSON text.
type FunctionCall struct {
	Name      string `json:"name"`
	Arguments string `json:"arguments"`
}

// ToolCall is a complete model-issued call, built by concatenating every delta
// received for one index.
type ToolCall struct {
	ID       string       `json:"id"`
	Type     string       `json:"type"`
	Function FunctionCall `json:"function"`
}

// FunctionDelta carries name and argument fragments of a streamed tool call.
type FunctionDelta struct {
	Name      string `json:"name,omitempty"`
	Arguments string `json:"arguments,omitempty"`
}

// ToolCallDelta is one streamed fragment of a tool call, keyed by Index.
type ToolCallDelta struct {
	Index    int            `json:"index"`
	ID       string         `json:"id,omitempty"`
	Type     string         `json:"type,omitempty"`
	Function *FunctionDelta `json:"function,omitempty"`
}

// StreamDelta is the delta object of one streamed choice.
type StreamDelta struct {
	Role      string          `json:"role,omitempty"`
	Content   string          `json:"content,omitempty"`
	ToolCalls []ToolCallDelta `json:"tool_calls,omitempty"`
}

// StreamChoice is one element of a chunk's choices array.
type StreamChoice struct {
	Index        int         `json:"index"`
	Delta        StreamDelta `json:"delta"`
	FinishReason *string     `json:"finish_reason,omitempty"`
}

// StreamChunk is the JSON payload of a single "data: " event.
type StreamChunk struct {
	ID      string         `json:"id,omitempty"`
	Model   string         `json:"model,omitempty"`
	Choices []StreamChoice `json:"choices"`
}

// Message is a single conversation unit. The caller owns the conversation slice;
// this package only appends to copies of it.
type Message struct {
	Role       string     `json:"role"`
	Content    string     `json:"content"`
	ToolCalls  []ToolCall `json:"tool_calls,omitempty"`
	ToolCallID string     `json:"tool_call_id,omitempty"`
	Name       string     `json:"name,omitempty"`
}

// ChatRequest is the body of a streaming chat completion request.
type ChatRequest struct {
	Model      string     `json:"model"`
	Stream     bool       `json:"stream"`
	Messages   []Message  `json:"messages"`
	Tools      []ToolSpec `json:"tools,omitempty"`
	ToolChoice string     `json:"tool_choice,omitempty"`
}

// NewChatRequest builds the initial streaming request. When defs is non-empty the
// tools are advertised with tool_choice "auto".
func NewChatRequest(model string, messages []Message, defs []ToolDefinition) ChatRequest {
	req := ChatRequest{
		Model:    model,
		Stream:   true,
		Messages: append([]Message(nil), messages...),
	}
	if len(defs) > 0 {
		req.Tools = make([]ToolSpec, 0, len(defs))
		for _, d := range defs {
			req.Tools = append(req.Tools, d.Spec())
		}
		req.ToolChoice = "auto"
	}
	return req
}

// ExecutionResult is the outcome of one tool call. It is folded into a tool
// message immediately and discarded.
type ExecutionResult struct {
	ToolCallID string
	Name       string
	Content    json.RawMessage
	Status     string
	// Timestamp is set only when Status is StatusError.
	Timestamp time.Time
	Duration  time.Duration
}

// Message converts the result into a role="tool" conversation message.
func (r ExecutionResult) Message() Message {
	return Message{
		Role:       RoleTool,
		ToolCallID: r.ToolCallID,
		Name:       r.Name,
		Content:    string(r.Content),
	}
}

// SourceKind tags where a registered function's behavior comes from.
type SourceKind int

const (
	// SourceUserDefined functions carry code compiled by a Compiler.
	SourceUserDefined SourceKind = iota
	// SourceBuiltIn functions are native handlers shipped with the application.
	SourceBuiltIn
	// SourceProviderBridged functions forward to an external service identified by ServiceKey.
	SourceProviderBridged
)

func (k SourceKind) String() string {
	switch k {
	case SourceBuiltIn:
		return "builtin"
	case SourceProviderBridged:
		return "provider"
	default:
		return "user"
	}
}

// ToolSource is resolved once per lookup and decides how a call is dispatched.
type ToolSource struct {
	Kind       SourceKind
	ServiceKey string
}

// BuiltIn returns the source for native handlers.
func BuiltIn() ToolSource { return ToolSource{Kind: SourceBuiltIn} }

// UserDefined returns the source for code-backed functions.
func UserDefined() ToolSource { return ToolSource{Kind: SourceUserDefined} }

// ProviderBridged returns the source for a function bridged to serviceKey.
func ProviderBridged(serviceKey string) ToolSource {
	return ToolSource{Kind: SourceProviderBridged, ServiceKey: serviceKey}
}
