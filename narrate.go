package toolcall

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"time"
)

// CallState is the lifecycle state of one tool call inside ProcessToolCalls.
type CallState int

const (
	StatePending CallState = iota
	StateValidating
	StateCoercing
	StateExecuting
	StateSucceeded
	StateFailed
)

func (s CallState) String() string {
	switch s {
	case StatePending:
		return "pending"
	case StateValidating:
		return "validating"
	case StateCoercing:
		return "coercing"
	case StateExecuting:
		return "executing"
	case StateSucceeded:
		return "succeeded"
	case StateFailed:
		return "failed"
	default:
		return fmt.Sprintf("CallState(%d)", int(s))
	}
}

// Terminal reports whether s ends a call.
func (s CallState) Terminal() bool { return s == StateSucceeded || s == StateFailed }

// Event is one narrated state transition.
type Event struct {
	Call  ToolCall
	State CallState
	// Result is set when State is StateSucceeded.
	Result   []byte
	Err      error
	Duration time.Duration
}

// Narrator receives progress events. It is never required for correctness: the
// orchestrator behaves identically with NopNarrator.
type Narrator interface {
	Narrate(ctx context.Context, ev Event)
}

// NarratorFunc adapts an ordinary function to Narrator.
type NarratorFunc func(ctx context.Context, ev Event)

// Narrate calls f.
func (f NarratorFunc) Narrate(ctx context.Context, ev Event) { f(ctx, ev) }

type nopNarrator struct{}

func (nopNarrator) Narrate(context.Context, Event) {}

// NopNarrator discards every event.
var NopNarrator Narrator = nopNarrator{}

// Narration categories checked against a DebugGate.
const (
	CategoryToolCalls   = "tool_calls"
	CategoryToolArgs    = "tool_args"
	CategoryToolResults = "tool_results"
)

// DebugGate decides whether a narration category is shown.
type DebugGate interface {
	Enabled(category string) bool
}

// Categories is a DebugGate over a fixed set. "*" enables everything.
type Categories struct {
	mu  sync.RWMutex
	set map[string]bool
}

// NewCategories enables the given categories.
func NewCategories(names ...string) *Categories {
	c := &Categories{set: make(map[string]bool, len(names))}
	for _, n := range names {
		c.set[strings.TrimSpace(n)] = true
	}
	return c
}

// Enabled implements DebugGate.
func (c *Categories) Enabled(category string) bool {
	if c == nil {
		return false
	}
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.set["*"] || c.set[category]
}

// Set toggles a category at runtime.
func (c *Categories) Set(category string, on bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.set[category] = on
}

// TextNarrator renders events as short lines for a chat log. A nil Gate shows
// CategoryToolCalls only.
type TextNarrator struct {
	Write func(message string)
	Gate  DebugGate
}

func (t *TextNarrator) enabled(category string) bool {
	if t.Gate == nil {
		return category == CategoryToolCalls
	}
	return t.Gate.Enabled(category)
}

// Narrate implements Narrator.
func (t *TextNarrator) Narrate(_ context.Context, ev Event) {
	if t.Write == nil {
		return
	}
	name := ev.Call.Function.Name
	switch ev.State {
	case StatePending:
		if t.enabled(CategoryToolCalls) {
			t.Write(fmt.Sprintf("Calling function: %s", name))
		}
		if t.enabled(CategoryToolArgs) && ev.Call.Function.Arguments != "" {
			t.Write(fmt.Sprintf("Arguments: %s", ev.Call.Function.Arguments))
		}
	case StateExecuting:
		if t.enabled(CategoryToolCalls) {
			t.Write(fmt.Sprintf("Executing %s...", name))
		}
	case StateSucceeded:
		if t.enabled(CategoryToolCalls) {
			t.Write(fmt.Sprintf("Function %s executed in %dms", name, ev.Duration.Milliseconds()))
		}
		if t.enabled(CategoryToolResults) {
			t.Write(fmt.Sprintf("Result: %s", truncate(string(ev.Result), 500)))
		}
	case StateFailed:
		if t.enabled(CategoryToolCalls) {
			t.Write(fmt.Sprintf("Function %s failed: %v", name, ev.Err))
		}
	}
}
