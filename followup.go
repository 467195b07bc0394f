package toolcall

import "slices"

// BuildFollowUp returns a copy of messages with one assistant message carrying
// calls (empty content, since the text was already streamed) followed by the
// tool results in execution order. messages is not modified.
func BuildFollowUp(messages []Message, calls []ToolCall, results []Message) []Message {
	out := make([]Message, 0, len(messages)+1+len(results))
	out = append(out, messages...)
	out = append(out, Message{
		Role:      RoleAssistant,
		Content:   "",
		ToolCalls: slices.Clone(calls),
	})
	return append(out, results...)
}

// NewFollowUpRequest derives the second streaming request from the first. Tools
// stay advertised so the model can refer to them, but this package never runs
// calls from the follow-up response.
func NewFollowUpRequest(req ChatRequest, calls []ToolCall, results []Message) ChatRequest {
	next := req
	next.Stream = true
	next.Messages = BuildFollowUp(req.Messages, calls, results)
	next.Tools = slices.Clone(req.Tools)
	return next
}
