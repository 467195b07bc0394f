package toolcall

import (
	"context"
	"io"
	"log/slog"

	"github.com/google/uuid"
)

// Streamer opens a streaming chat completion and returns the SSE body.
// Failures before the body is available should be *NetworkError.
type Streamer interface {
	Stream(ctx context.Context, req ChatRequest) (io.ReadCloser, error)
}

// TurnResult is the outcome of one conversation turn.
type TurnResult struct {
	// Content is the text of the final response: the follow-up response when tools
	// ran, otherwise the only response.
	Content string
	// Preamble is text the model streamed before requesting tools.
	Preamble    string
	ToolCalls   []ToolCall
	ToolResults []Message
	// Messages is the caller's conversation plus everything this turn appended,
	// ending with the final assistant message.
	Messages []Message
}

// Pipeline runs a full turn: initial request with freshly listed tools, stream
// decoding and accumulation, tool orchestration and a single follow-up request.
type Pipeline struct {
	streamer Streamer
	orch     *Orchestrator
	model    string
	opts     pipelineOptions
}

// NewPipeline creates a Pipeline for model.
func NewPipeline(streamer Streamer, orch *Orchestrator, model string, opts ...PipelineOption) *Pipeline {
	o := pipelineOptions{
		logger:   slog.Default(),
		narrator: NopNarrator,
	}
	for _, opt := range opts {
		opt(&o)
	}
	return &Pipeline{streamer: streamer, orch: orch, model: model, opts: o}
}

// Run executes one turn for messages. messages is not modified. Network failures
// are returned as *NetworkError; ctx cancellation stops reading and discards any
// pending tool results.
func (p *Pipeline) Run(ctx context.Context, messages []Message) (TurnResult, error) {
	defs := p.orch.exec.Registry().ListEnabledDefinitions()
	req := NewChatRequest(p.model, messages, defs)
	p.opts.logger.DebugContext(ctx, "starting turn", "model", p.model, "messages", len(messages), "tools", len(defs))

	first := NewAccumulator()
	if err := p.stream(ctx, req, first); err != nil {
		return TurnResult{}, err
	}
	calls := first.ToolCalls()
	if len(calls) == 0 {
		out := append(req.Messages, Message{Role: RoleAssistant, Content: first.Content()})
		return TurnResult{Content: first.Content(), Messages: out}, nil
	}
	for i := range calls {
		if calls[i].ID == "" {
			calls[i].ID = "call_" + uuid.NewString()
		}
	}

	results, err := p.orch.ProcessToolCalls(ctx, calls, p.opts.narrator)
	if err != nil {
		return TurnResult{}, err
	}

	followReq := NewFollowUpRequest(req, calls, results)
	second := NewAccumulator(IgnoreToolCalls())
	if err := p.stream(ctx, followReq, second); err != nil {
		return TurnResult{}, err
	}
	if n := second.IgnoredToolCalls(); n > 0 {
		p.opts.logger.WarnContext(ctx, "ignoring tool calls in follow-up response", "deltas", n)
	}
	out := append(followReq.Messages, Message{Role: RoleAssistant, Content: second.Content()})
	return TurnResult{
		Content:     second.Content(),
		Preamble:    first.Content(),
		ToolCalls:   calls,
		ToolResults: results,
		Messages:    out,
	}, nil
}

func (p *Pipeline) stream(ctx context.Context, req ChatRequest, acc *Accumulator) error {
	body, err := p.streamer.Stream(ctx, req)
	if err != nil {
		return err
	}
	defer body.Close()
	for chunk, err := range Decode[StreamChunk](ctx, body, WithDecodeLogger(p.opts.logger)) {
		if err != nil {
			if ctxErr := ctx.Err(); ctxErr != nil {
				return ctxErr
			}
			return &NetworkError{Message: "reading stream", Err: err}
		}
		if delta := acc.Add(chunk); delta != "" && p.opts.onContent != nil {
			p.opts.onContent(delta)
		}
	}
	return nil
}
