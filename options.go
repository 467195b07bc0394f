package toolcall

import (
	"log/slog"
	"time"

	"go.opentelemetry.io/otel/trace"
)

// RegistryOption configures a Registry.
type RegistryOption func(*registryOptions)

type registryOptions struct {
	logger *slog.Logger
}

// WithRegistryLogger sets the logger for registration events.
func WithRegistryLogger(l *slog.Logger) RegistryOption {
	return func(o *registryOptions) {
		if l != nil {
			o.logger = l
		}
	}
}

// DefaultExecutionTimeout is the wall-clock budget for one function run.
const DefaultExecutionTimeout = 30 * time.Second

// ExecutorOption configures an Executor.
type ExecutorOption func(*executorOptions)

type executorOptions struct {
	timeout        time.Duration
	compiler       Compiler
	fetcher        Fetcher
	consoleEntries int
	maxSleep       time.Duration
	logger         *slog.Logger
	metrics        *Metrics
	validateSchema bool
	middlewares    []Middleware
}

// WithDefaultTimeout sets the execution budget used when an entry has no override.
func WithDefaultTimeout(d time.Duration) ExecutorOption {
	return func(o *executorOptions) {
		o.timeout = d
	}
}

// WithCompiler sets the compiler used for user-defined (code-backed) functions.
func WithCompiler(c Compiler) ExecutorOption {
	return func(o *executorOptions) {
		o.compiler = c
	}
}

// WithFetcher grants the network fetch capability. Without it fetch is unavailable.
func WithFetcher(f Fetcher) ExecutorOption {
	return func(o *executorOptions) {
		o.fetcher = f
	}
}

// WithConsoleEntries bounds the console kept per execution.
func WithConsoleEntries(n int) ExecutorOption {
	return func(o *executorOptions) {
		o.consoleEntries = n
	}
}

// WithMaxSleep caps a single sleep/timer call from executed code.
func WithMaxSleep(d time.Duration) ExecutorOption {
	return func(o *executorOptions) {
		o.maxSleep = d
	}
}

// WithExecutorLogger sets the executor logger.
func WithExecutorLogger(l *slog.Logger) ExecutorOption {
	return func(o *executorOptions) {
		if l != nil {
			o.logger = l
		}
	}
}

// WithMetrics records execution counts and durations.
func WithMetrics(m *Metrics) ExecutorOption {
	return func(o *executorOptions) {
		o.metrics = m
	}
}

// WithSchemaValidation validates coerced arguments against the declared parameter
// schema before running the function. Off by default: coercion alone is lenient.
func WithSchemaValidation() ExecutorOption {
	return func(o *executorOptions) {
		o.validateSchema = true
	}
}

// WithMiddleware wraps every executable (onion order: first is outermost).
func WithMiddleware(mw ...Middleware) ExecutorOption {
	return func(o *executorOptions) {
		o.middlewares = append(o.middlewares, mw...)
	}
}

// OrchestratorOption configures an Orchestrator.
type OrchestratorOption func(*orchestratorOptions)

type orchestratorOptions struct {
	logger         *slog.Logger
	tracerProvider trace.TracerProvider
	now            func() time.Time
}

// WithOrchestratorLogger sets the orchestrator logger.
func WithOrchestratorLogger(l *slog.Logger) OrchestratorOption {
	return func(o *orchestratorOptions) {
		if l != nil {
			o.logger = l
		}
	}
}

// WithTracerProvider emits one span per processed tool call.
func WithTracerProvider(tp trace.TracerProvider) OrchestratorOption {
	return func(o *orchestratorOptions) {
		o.tracerProvider = tp
	}
}

// WithClock overrides the time source used for error timestamps.
func WithClock(now func() time.Time) OrchestratorOption {
	return func(o *orchestratorOptions) {
		if now != nil {
			o.now = now
		}
	}
}

// PipelineOption configures a Pipeline.
type PipelineOption func(*pipelineOptions)

type pipelineOptions struct {
	logger    *slog.Logger
	narrator  Narrator
	onContent func(string)
}

// WithPipelineLogger sets the pipeline logger.
func WithPipelineLogger(l *slog.Logger) PipelineOption {
	return func(o *pipelineOptions) {
		if l != nil {
			o.logger = l
		}
	}
}

// WithNarrator sets the sink for tool-call progress events.
func WithNarrator(n Narrator) PipelineOption {
	return func(o *pipelineOptions) {
		if n != nil {
			o.narrator = n
		}
	}
}

// WithContentHandler receives every content delta as it is decoded, from both the
// initial and the follow-up response.
func WithContentHandler(fn func(delta string)) PipelineOption {
	return func(o *pipelineOptions) {
		o.onContent = fn
	}
}

// BuiltinOption configures an Entry built by NewBuiltin or NewDynamicBuiltin.
type BuiltinOption func(*builtinOptions)

type builtinOptions struct {
	strict  bool
	timeout time.Duration
	source  ToolSource
	groupID string
}

// WithStrict sets additionalProperties: false and marks every property required.
func WithStrict() BuiltinOption {
	return func(o *builtinOptions) {
		o.strict = true
	}
}

// WithTimeout overrides the executor default for this function.
func WithTimeout(d time.Duration) BuiltinOption {
	return func(o *builtinOptions) {
		o.timeout = d
	}
}

// WithSource overrides the BuiltIn source, e.g. ProviderBridged("weather").
func WithSource(s ToolSource) BuiltinOption {
	return func(o *builtinOptions) {
		o.source = s
	}
}

// WithGroup places the function in an existing group.
func WithGroup(id string) BuiltinOption {
	return func(o *builtinOptions) {
		o.groupID = id
	}
}
