package toolcall

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"io"
	"iter"
	"log/slog"

	"golang.org/x/text/encoding/unicode"
	"golang.org/x/text/transform"
)

const (
	ssePrefix   = "data:"
	sseDone     = "[DONE]"
	readBufSize = 32 * 1024
	maxLogLine  = 256
)

// DecodeOption configures Decode.
type DecodeOption func(*decodeOptions)

type decodeOptions struct {
	logger *slog.Logger
}

// WithDecodeLogger sets the logger that receives skipped-line warnings.
func WithDecodeLogger(l *slog.Logger) DecodeOption {
	return func(o *decodeOptions) {
		if l != nil {
			o.logger = l
		}
	}
}

// Decode reads an SSE body and yields every "data:" payload parsed as T, in
// arrival order, until "data: [DONE]" or the end of r.
//
// Bytes are decoded as UTF-8 statefully, so a multi-byte character split across
// reads is preserved. Lines are reassembled across reads; blank lines and other
// SSE fields are ignored. A payload that fails to parse is logged and skipped.
// A trailing line without a terminator is discarded.
//
// The only errors yielded are read failures and ctx cancellation; iteration stops
// after an error. Each call to the returned sequence reads from r again.
func Decode[T any](ctx context.Context, r io.Reader, opts ...DecodeOption) iter.Seq2[T, error] {
	o := decodeOptions{logger: slog.Default()}
	for _, opt := range opts {
		opt(&o)
	}
	return func(yield func(T, error) bool) {
		var zero T
		src := transform.NewReader(r, unicode.UTF8.NewDecoder())
		buf := make([]byte, readBufSize)
		var pending []byte
		for {
			if err := ctx.Err(); err != nil {
				yield(zero, err)
				return
			}
			n, readErr := src.Read(buf)
			pending = append(pending, buf[:n]...)
			for {
				i := bytes.IndexByte(pending, '\n')
				if i < 0 {
					break
				}
				line := bytes.TrimRight(pending[:i], "\r")
				pending = pending[i+1:]
				payload, ok := eventPayload(line)
				if !ok {
					continue
				}
				if string(payload) == sseDone {
					return
				}
				var v T
				if err := json.Unmarshal(payload, &v); err != nil {
					perr := &StreamParseError{Line: truncate(string(payload), maxLogLine), Err: err}
					o.logger.WarnContext(ctx, "skipping malformed stream line", "line", perr.Line, "error", perr.Err)
					continue
				}
				if !yield(v, nil) {
					return
				}
			}
			if readErr != nil {
				if errors.Is(readErr, io.EOF) {
					return
				}
				if ctxErr := ctx.Err(); ctxErr != nil {
					readErr = ctxErr
				}
				yield(zero, readErr)
				return
			}
		}
	}
}

// eventPayload returns the value of a data field, without the optional single
// space after the colon.
func eventPayload(line []byte) ([]byte, bool) {
	if len(bytes.TrimSpace(line)) == 0 || !bytes.HasPrefix(line, []byte(ssePrefix)) {
		return nil, false
	}
	payload := line[len(ssePrefix):]
	payload = bytes.TrimPrefix(payload, []byte(" "))
	if len(bytes.TrimSpace(payload)) == 0 {
		return nil, false
	}
	return payload, true
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n] + "…"
}
