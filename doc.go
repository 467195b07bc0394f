// Package toolcall runs the function calls a chat model streams back and feeds
// the results into a follow-up request.
//
// # Overview
//
// A model answering over Server-Sent Events may ask for one or more functions to
// be called. Each call arrives as fragments spread over many events. This package
// turns that stream into executed calls and tool messages:
//
//	SSE body → Decode (line framing) → Accumulator (content + tool-call deltas)
//	→ Orchestrator (parse, coerce, execute, narrate) → BuildFollowUp → second stream
//
// Pipeline wires the whole turn for a Streamer such as completion.Client.
//
// # Key concepts
//
//   - Registry: named functions, their definitions and the enabled set. Functions
//     added together share a group and are removed together.
//   - Sources: user-defined functions carry code compiled by a Compiler
//     (Starlark, WASM or a host process, see adapters/sandbox); built-in and
//     provider-bridged functions carry a Go handler.
//   - Coercion: string arguments are converted to the number, integer or boolean
//     type their schema declares before execution.
//   - Errors are data: a failed call becomes a tool message whose content is an
//     {"error", "timestamp"} object, so the model sees it and the turn goes on.
//   - Capabilities: executed code reaches the network, the clock and the console
//     only through the Capabilities value built for its run.
//
// # Example
//
//	type Args struct {
//	    City string `json:"city"`
//	}
//	entry, err := toolcall.NewBuiltin("weather", "Get weather", func(_ context.Context, a Args, _ *toolcall.Capabilities) (map[string]any, error) {
//	    return map[string]any{"city": a.City, "temp": 22.5}, nil
//	})
//	if err != nil { ... }
//	reg := toolcall.NewRegistry()
//	_ = reg.RegisterEnabled(entry)
//	orch := toolcall.NewOrchestrator(toolcall.NewExecutor(reg))
//	turn, err := toolcall.NewPipeline(client, orch, "gpt-4o-mini").Run(ctx, messages)
package toolcall
