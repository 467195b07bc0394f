package starlarkrt

import (
	"context"
	"fmt"
	"strings"
	"time"

	"go.starlark.net/lib/json"
	"go.starlark.net/lib/math"
	starlarktime "go.starlark.net/lib/time"
	"go.starlark.net/starlark"

	"github.com/kristerhedfors/toolcall"
)

// builtins is the complete predeclared environment of a function.
func builtins() starlark.StringDict {
	return starlark.StringDict{
		"fetch": starlark.NewBuiltin("fetch", fetch),
		"sleep": starlark.NewBuiltin("sleep", sleep),
		"log":   starlark.NewBuiltin("log", logBuiltin),
		"json":  json.Module,
		"math":  math.Module,
		"time":  starlarktime.Module,
	}
}

func threadContext(thread *starlark.Thread) context.Context {
	if ctx, ok := thread.Local(localContext).(context.Context); ok {
		return ctx
	}
	return context.Background()
}

func threadCapabilities(thread *starlark.Thread) *toolcall.Capabilities {
	caps, _ := thread.Local(localCapabilities).(*toolcall.Capabilities)
	return caps
}

// fetch(url, method="GET", headers=None, body="") returns a dict with status,
// headers and body.
func fetch(thread *starlark.Thread, b *starlark.Builtin, args starlark.Tuple, kwargs []starlark.Tuple) (starlark.Value, error) {
	var (
		url, method, body string
		headers           *starlark.Dict
	)
	if err := starlark.UnpackArgs(b.Name(), args, kwargs,
		"url", &url, "method?", &method, "headers?", &headers, "body?", &body); err != nil {
		return nil, err
	}
	req := toolcall.FetchRequest{URL: url, Method: method, Body: body}
	if headers != nil {
		req.Headers = make(map[string]string, headers.Len())
		for _, item := range headers.Items() {
			k, ok := starlark.AsString(item[0])
			if !ok {
				return nil, fmt.Errorf("%s: header names must be strings", b.Name())
			}
			v, ok := starlark.AsString(item[1])
			if !ok {
				return nil, fmt.Errorf("%s: header %s: want string value", b.Name(), k)
			}
			req.Headers[k] = v
		}
	}
	resp, err := threadCapabilities(thread).Fetch(threadContext(thread), req)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", b.Name(), err)
	}
	out := starlark.NewDict(3)
	respHeaders := starlark.NewDict(len(resp.Headers))
	for k, v := range resp.Headers {
		if err := respHeaders.SetKey(starlark.String(k), starlark.String(v)); err != nil {
			return nil, err
		}
	}
	for _, kv := range []struct {
		k string
		v starlark.Value
	}{
		{"status", starlark.MakeInt(resp.Status)},
		{"headers", respHeaders},
		{"body", starlark.String(resp.Body)},
	} {
		if err := out.SetKey(starlark.String(kv.k), kv.v); err != nil {
			return nil, err
		}
	}
	return out, nil
}

// sleep(seconds) blocks until the duration passes or the call is cancelled.
func sleep(thread *starlark.Thread, b *starlark.Builtin, args starlark.Tuple, kwargs []starlark.Tuple) (starlark.Value, error) {
	var secs starlark.Value
	if err := starlark.UnpackPositionalArgs(b.Name(), args, kwargs, 1, &secs); err != nil {
		return nil, err
	}
	f, ok := starlark.AsFloat(secs)
	if !ok {
		return nil, fmt.Errorf("%s: got %s, want number", b.Name(), secs.Type())
	}
	d := time.Duration(f * float64(time.Second))
	if err := threadCapabilities(thread).Sleep(threadContext(thread), d); err != nil {
		return nil, fmt.Errorf("%s: %w", b.Name(), err)
	}
	return starlark.None, nil
}

// log(*args, level="info") writes one console line.
func logBuiltin(thread *starlark.Thread, b *starlark.Builtin, args starlark.Tuple, kwargs []starlark.Tuple) (starlark.Value, error) {
	level := "info"
	for _, kv := range kwargs {
		if k, _ := starlark.AsString(kv[0]); k == "level" {
			s, ok := starlark.AsString(kv[1])
			if !ok {
				return nil, fmt.Errorf("%s: level: got %s, want string", b.Name(), kv[1].Type())
			}
			level = s
			continue
		}
		return nil, fmt.Errorf("%s: unexpected keyword argument %s", b.Name(), kv[0])
	}
	parts := make([]string, 0, len(args))
	for _, a := range args {
		if s, ok := starlark.AsString(a); ok {
			parts = append(parts, s)
		} else {
			parts = append(parts, a.String())
		}
	}
	threadCapabilities(thread).Log(level, strings.Join(parts, " "))
	return starlark.None, nil
}
