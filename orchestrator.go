package toolcall

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
	"go.opentelemetry.io/otel/trace/noop"
)

const tracerName = "github.com/kristerhedfors/toolcall"

// Orchestrator turns a batch of completed tool calls into tool result messages.
// Calls run one at a time in order; a failing call becomes an error result and
// the batch continues.
type Orchestrator struct {
	exec   *Executor
	opts   orchestratorOptions
	tracer trace.Tracer
}

// NewOrchestrator creates an Orchestrator that executes through exec.
func NewOrchestrator(exec *Executor, opts ...OrchestratorOption) *Orchestrator {
	o := orchestratorOptions{
		logger: slog.Default(),
		now:    time.Now,
	}
	for _, opt := range opts {
		opt(&o)
	}
	tp := o.tracerProvider
	if tp == nil {
		tp = noop.NewTracerProvider()
	}
	return &Orchestrator{exec: exec, opts: o, tracer: tp.Tracer(tracerName)}
}

// ProcessToolCalls executes calls sequentially and returns one role="tool"
// message per call, in call order. n may be nil. The error is non-nil only when
// ctx is done; results gathered so far are then discarded.
func (o *Orchestrator) ProcessToolCalls(ctx context.Context, calls []ToolCall, n Narrator) ([]Message, error) {
	results, err := o.Process(ctx, calls, n)
	if err != nil {
		return nil, err
	}
	msgs := make([]Message, 0, len(results))
	for _, r := range results {
		msgs = append(msgs, r.Message())
	}
	return msgs, nil
}

// Process is ProcessToolCalls returning the full execution results.
func (o *Orchestrator) Process(ctx context.Context, calls []ToolCall, n Narrator) ([]ExecutionResult, error) {
	if n == nil {
		n = NopNarrator
	}
	results := make([]ExecutionResult, 0, len(calls))
	for _, call := range calls {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		res, err := o.processOne(ctx, call, n)
		if err != nil {
			return nil, err
		}
		results = append(results, res)
	}
	return results, nil
}

func (o *Orchestrator) processOne(ctx context.Context, call ToolCall, n Narrator) (ExecutionResult, error) {
	name := call.Function.Name
	ctx, span := o.tracer.Start(ctx, "toolcall.execute", trace.WithAttributes(
		attribute.String("toolcall.function", name),
		attribute.String("toolcall.id", call.ID),
	))
	defer span.End()

	log := o.opts.logger.With("function", name, "tool_call_id", call.ID)
	state := StatePending
	transition := func(next CallState) {
		log.DebugContext(ctx, "tool call transition", "from", state.String(), "to", next.String())
		state = next
	}
	n.Narrate(ctx, Event{Call: call, State: StatePending})

	fail := func(err error, dur time.Duration) (ExecutionResult, error) {
		if ctxErr := ctx.Err(); ctxErr != nil && errors.Is(err, ctxErr) {
			span.SetStatus(codes.Error, "aborted")
			return ExecutionResult{}, ctxErr
		}
		transition(StateFailed)
		now := o.opts.now()
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		log.WarnContext(ctx, "tool call failed", "error", err)
		n.Narrate(ctx, Event{Call: call, State: StateFailed, Err: err, Duration: dur})
		return ExecutionResult{
			ToolCallID: call.ID,
			Name:       name,
			Content:    ErrorContent(err, now),
			Status:     StatusError,
			Timestamp:  now,
			Duration:   dur,
		}, nil
	}

	transition(StateValidating)
	if name == "" {
		return fail(&FunctionNotFoundError{}, 0)
	}
	entry, err := o.exec.Registry().Resolve(name)
	if err != nil {
		return fail(err, 0)
	}
	span.SetAttributes(attribute.String("toolcall.source", entry.Source.Kind.String()))

	transition(StateCoercing)
	args, err := CoerceArguments(name, call.Function.Arguments, entry.Definition.Parameters)
	if err != nil {
		return fail(err, 0)
	}

	transition(StateExecuting)
	n.Narrate(ctx, Event{Call: call, State: StateExecuting})
	exec, err := o.exec.ExecuteEntry(ctx, entry, args)
	if err != nil {
		return fail(err, exec.Duration)
	}

	transition(StateSucceeded)
	span.SetAttributes(attribute.Int64("toolcall.duration_ms", exec.ExecutionTimeMs()))
	span.SetStatus(codes.Ok, "")
	n.Narrate(ctx, Event{Call: call, State: StateSucceeded, Result: exec.Result, Duration: exec.Duration})
	return ExecutionResult{
		ToolCallID: call.ID,
		Name:       name,
		Content:    exec.Result,
		Status:     StatusOK,
		Duration:   exec.Duration,
	}, nil
}
