package toolcall

import (
	"encoding/json"
	"errors"
	"fmt"
	"time"
)

// Sentinel errors. Use errors.Is to check; the typed errors below unwrap to them.
var (
	ErrFunctionNotFound     = errors.New("function not found")
	ErrFunctionDisabled     = errors.New("function disabled")
	ErrMissingName          = errors.New("tool call is missing a function name")
	ErrIncompleteDefinition = errors.New("function name, code and definition are required")
	ErrInvalidArguments     = errors.New("invalid arguments")
	ErrTimeout              = errors.New("function execution timeout")
	ErrNonSerializable      = errors.New("result is not JSON serializable")
	ErrNoCompiler           = errors.New("no compiler configured for user-defined functions")
)

// FunctionNotFoundError reports a call to a name with no registry entry.
type FunctionNotFoundError struct {
	Name string
}

func (e *FunctionNotFoundError) Error() string {
	if e.Name == "" {
		return ErrMissingName.Error()
	}
	return fmt.Sprintf("function %q not found", e.Name)
}

func (e *FunctionNotFoundError) Unwrap() []error {
	if e.Name == "" {
		return []error{ErrFunctionNotFound, ErrMissingName}
	}
	return []error{ErrFunctionNotFound}
}

// FunctionDisabledError reports a call to a registered function that is not enabled.
type FunctionDisabledError struct {
	Name string
}

func (e *FunctionDisabledError) Error() string {
	return fmt.Sprintf("function %q is disabled", e.Name)
}

func (e *FunctionDisabledError) Unwrap() error { return ErrFunctionDisabled }

// ArgumentParseError reports that a call's argument string is not valid JSON.
type ArgumentParseError struct {
	Function string
	Err      error
}

func (e *ArgumentParseError) Error() string {
	return fmt.Sprintf("invalid JSON arguments for function %q: %v", e.Function, e.Err)
}

func (e *ArgumentParseError) Unwrap() []error { return []error{ErrInvalidArguments, e.Err} }

// InvalidArgumentsError reports parsed arguments that the function cannot accept
// (wrong top-level shape or schema validation failure).
type InvalidArgumentsError struct {
	Function string
	Reason   string
	Err      error
}

func (e *InvalidArgumentsError) Error() string {
	return fmt.Sprintf("invalid arguments for function %q: %s", e.Function, e.Reason)
}

func (e *InvalidArgumentsError) Unwrap() []error {
	if e.Err == nil {
		return []error{ErrInvalidArguments}
	}
	return []error{ErrInvalidArguments, e.Err}
}

// ExecutionTimeoutError reports that a function did not settle within its budget.
// The pending execution is abandoned; its late result is discarded.
type ExecutionTimeoutError struct {
	Function string
	Timeout  time.Duration
}

func (e *ExecutionTimeoutError) Error() string {
	return fmt.Sprintf("function %q timed out after %s", e.Function, e.Timeout)
}

func (e *ExecutionTimeoutError) Unwrap() error { return ErrTimeout }

// NonSerializableResultError reports a result that cannot be encoded as JSON
// (cycles, functions, NaN). No partial content is ever produced.
type NonSerializableResultError struct {
	Function string
	Err      error
}

func (e *NonSerializableResultError) Error() string {
	if e.Err == nil {
		return fmt.Sprintf("function %q returned a result that cannot be serialized", e.Function)
	}
	return fmt.Sprintf("function %q returned a result that cannot be serialized: %v", e.Function, e.Err)
}

func (e *NonSerializableResultError) Unwrap() []error {
	if e.Err == nil {
		return []error{ErrNonSerializable}
	}
	return []error{ErrNonSerializable, e.Err}
}

// RuntimeErrorKind classifies a failure raised by an executed function body.
type RuntimeErrorKind int

const (
	RuntimeGeneric RuntimeErrorKind = iota
	RuntimeType
	RuntimeReference
	RuntimeSyntax
)

func (k RuntimeErrorKind) String() string {
	switch k {
	case RuntimeType:
		return "TypeError"
	case RuntimeReference:
		return "ReferenceError"
	case RuntimeSyntax:
		return "SyntaxError"
	default:
		return "Error"
	}
}

// RuntimeError is a classified failure from inside an executable. Message is safe
// to show to the model; Err keeps the original for logs and errors.As.
type RuntimeError struct {
	Function string
	Kind     RuntimeErrorKind
	Message  string
	Err      error
}

// NewRuntimeError is a convenience for executables that classify their own failures.
func NewRuntimeError(kind RuntimeErrorKind, msg string, cause error) *RuntimeError {
	return &RuntimeError{Kind: kind, Message: msg, Err: cause}
}

func (e *RuntimeError) Error() string {
	if e.Function == "" {
		return fmt.Sprintf("%s: %s", e.Kind, e.Message)
	}
	return fmt.Sprintf("%s in function %q: %s", e.Kind, e.Function, e.Message)
}

func (e *RuntimeError) Unwrap() error { return e.Err }

// NetworkError is fatal to the current completion request and carries the
// upstream status and message when available.
type NetworkError struct {
	StatusCode int
	Message    string
	Retryable  bool
	Err        error
}

func (e *NetworkError) Error() string {
	switch {
	case e.StatusCode != 0 && e.Message != "":
		return fmt.Sprintf("network error: HTTP %d: %s", e.StatusCode, e.Message)
	case e.StatusCode != 0:
		return fmt.Sprintf("network error: HTTP %d", e.StatusCode)
	case e.Err != nil:
		return "network error: " + e.Err.Error()
	default:
		return "network error: " + e.Message
	}
}

func (e *NetworkError) Unwrap() error { return e.Err }

// StreamParseError describes one malformed stream line. It is logged and skipped,
// never returned to callers of Decode.
type StreamParseError struct {
	Line string
	Err  error
}

func (e *StreamParseError) Error() string {
	return fmt.Sprintf("stream parse error: %v", e.Err)
}

func (e *StreamParseError) Unwrap() error { return e.Err }

// IsNetworkError returns true if err is or wraps a NetworkError.
func IsNetworkError(err error) bool {
	var ne *NetworkError
	return errors.As(err, &ne)
}

// IsRuntimeError returns true if err is or wraps a RuntimeError.
func IsRuntimeError(err error) bool {
	var re *RuntimeError
	return errors.As(err, &re)
}

// errorContent is the JSON body of a failed tool result. Field order is fixed.
type errorContent struct {
	Error     string `json:"error"`
	Status    string `json:"status"`
	Timestamp string `json:"timestamp"`
}

// ErrorContent renders err as the structured JSON content of a failed tool result.
// The output is always valid JSON with an "error" field and status "error".
func ErrorContent(err error, now time.Time) json.RawMessage {
	msg := "unknown error"
	if err != nil {
		msg = err.Error()
	}
	b, mErr := json.Marshal(errorContent{
		Error:     msg,
		Status:    StatusError,
		Timestamp: now.UTC().Format(time.RFC3339Nano),
	})
	if mErr != nil {
		return json.RawMessage(`{"error":"unknown error","status":"error"}`)
	}
	return b
}
