package toolcall

import (
	"maps"
	"slices"
	"strings"
)

// Accumulator merges streamed chunks into the response text and complete tool
// calls. Only the first choice of each chunk is considered. Not safe for
// concurrent use; one Accumulator serves one streamed response.
type Accumulator struct {
	content      strings.Builder
	slots        map[int]*ToolCall
	finishReason string
	ignoreCalls  bool
	ignored      int
}

// AccumulatorOption configures an Accumulator.
type AccumulatorOption func(*Accumulator)

// IgnoreToolCalls makes the accumulator drop tool-call deltas and count them
// instead. Used for the follow-up response, which is never orchestrated.
func IgnoreToolCalls() AccumulatorOption {
	return func(a *Accumulator) {
		a.ignoreCalls = true
	}
}

// NewAccumulator returns an empty Accumulator.
func NewAccumulator(opts ...AccumulatorOption) *Accumulator {
	a := &Accumulator{slots: make(map[int]*ToolCall)}
	for _, opt := range opts {
		opt(a)
	}
	return a
}

// Add folds one decoded chunk in and returns the content fragment it carried.
func (a *Accumulator) Add(chunk StreamChunk) string {
	if len(chunk.Choices) == 0 {
		return ""
	}
	choice := chunk.Choices[0]
	if choice.FinishReason != nil && *choice.FinishReason != "" {
		a.finishReason = *choice.FinishReason
	}
	a.AddDelta(choice.Delta)
	return choice.Delta.Content
}

// AddDelta folds one delta in. Content and tool-call fragments are independent.
func (a *Accumulator) AddDelta(d StreamDelta) {
	a.content.WriteString(d.Content)
	if a.ignoreCalls {
		a.ignored += len(d.ToolCalls)
		return
	}
	for _, tc := range d.ToolCalls {
		a.addToolCallDelta(tc)
	}
}

func (a *Accumulator) addToolCallDelta(d ToolCallDelta) {
	slot, ok := a.slots[d.Index]
	if !ok {
		slot = &ToolCall{ID: d.ID}
		a.slots[d.Index] = slot
	}
	if d.ID != "" {
		slot.ID = d.ID
	}
	if d.Type != "" {
		slot.Type = d.Type
	}
	if d.Function != nil {
		slot.Function.Name += d.Function.Name
		slot.Function.Arguments += d.Function.Arguments
	}
}

// Content returns the text accumulated so far.
func (a *Accumulator) Content() string { return a.content.String() }

// FinishReason returns the last non-empty finish reason seen.
func (a *Accumulator) FinishReason() string { return a.finishReason }

// IgnoredToolCalls reports how many tool-call deltas IgnoreToolCalls dropped.
func (a *Accumulator) IgnoredToolCalls() int { return a.ignored }

// ToolCalls returns the complete calls ordered by stream index. Sparse indices
// are compacted without reordering. Type defaults to "function".
func (a *Accumulator) ToolCalls() []ToolCall {
	out := make([]ToolCall, 0, len(a.slots))
	for _, idx := range slices.Sorted(maps.Keys(a.slots)) {
		tc := *a.slots[idx]
		if tc.Type == "" {
			tc.Type = ToolTypeFunction
		}
		out = append(out, tc)
	}
	return out
}
