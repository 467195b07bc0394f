package toolcall

import (
	"context"
	"fmt"
	"log/slog"
	"time"
)

// Middleware wraps an Executable with cross-cutting behavior (logging, auditing).
// The function name is available through FunctionName(ctx).
type Middleware func(Executable) Executable

type functionNameKey struct{}

func withFunctionName(ctx context.Context, name string) context.Context {
	return context.WithValue(ctx, functionNameKey{}, name)
}

// FunctionName returns the name of the function being executed, or "".
func FunctionName(ctx context.Context) string {
	name, _ := ctx.Value(functionNameKey{}).(string)
	return name
}

// WithLogging returns a middleware that logs start, end, duration, and errors.
func WithLogging(logger *slog.Logger) Middleware {
	if logger == nil {
		logger = slog.Default()
	}
	return func(next Executable) Executable {
		return ExecutableFunc(func(ctx context.Context, args map[string]any, caps *Capabilities) (any, error) {
			name := FunctionName(ctx)
			logger.InfoContext(ctx, "function start", "function", name)
			start := time.Now()
			res, err := next.Run(ctx, args, caps)
			dur := time.Since(start)
			if err != nil {
				logger.ErrorContext(ctx, "function error", "function", name, "duration", dur, "error", err)
				return nil, err
			}
			logger.InfoContext(ctx, "function end", "function", name, "duration", dur)
			return res, nil
		})
	}
}

// panicError carries a recovered panic value.
type panicError struct{ p any }

func (e *panicError) Error() string { return fmt.Sprintf("panic: %v", e.p) }

// recovered converts a panic in next into a generic *RuntimeError. The executor
// installs it outermost since bodies run on their own goroutine.
func recovered(next Executable) Executable {
	return ExecutableFunc(func(ctx context.Context, args map[string]any, caps *Capabilities) (res any, err error) {
		defer func() {
			if p := recover(); p != nil {
				res = nil
				pe := &panicError{p: p}
				err = &RuntimeError{Kind: RuntimeGeneric, Message: pe.Error(), Err: pe}
			}
		}()
		return next.Run(ctx, args, caps)
	})
}

// chain applies middlewares in onion order: the first is outermost.
func chain(exec Executable, middlewares []Middleware) Executable {
	for i := len(middlewares) - 1; i >= 0; i-- {
		exec = middlewares[i](exec)
	}
	return recovered(exec)
}
