// Package builtins provides the default functions enabled in every registry.
package builtins

import (
	"context"
	"errors"
	"fmt"
	"math"
	"strings"
	"time"

	htmltomarkdown "github.com/JohannesKaufmann/html-to-markdown/v2"
	"github.com/JohannesKaufmann/html-to-markdown/v2/converter"
	"github.com/google/uuid"

	"github.com/kristerhedfors/toolcall"
)

// TimeArgs are the arguments of get_current_time.
type TimeArgs struct {
	Timezone string `json:"timezone,omitempty" description:"IANA time zone name, e.g. Europe/Stockholm. Defaults to UTC."`
}

// TimeResult is returned by get_current_time.
type TimeResult struct {
	Time     string `json:"time"`
	Unix     int64  `json:"unix"`
	Timezone string `json:"timezone"`
	Weekday  string `json:"weekday"`
}

// UUIDArgs are the arguments of generate_uuid.
type UUIDArgs struct {
	Count int `json:"count,omitempty" description:"How many UUIDs to generate (1-100). Defaults to 1."`
}

func (a UUIDArgs) Validate() error {
	if a.Count < 0 || a.Count > 100 {
		return fmt.Errorf("count must be between 0 and 100 (0 means 1), got %d", a.Count)
	}
	return nil
}

// UUIDResult is returned by generate_uuid.
type UUIDResult struct {
	UUIDs []string `json:"uuids"`
}

// SumArgs are the arguments of sum_numbers.
type SumArgs struct {
	Numbers []float64 `json:"numbers" description:"Numbers to add."`
}

func (a SumArgs) Validate() error {
	if len(a.Numbers) == 0 {
		return errors.New("numbers must not be empty")
	}
	return nil
}

// SumResult is returned by sum_numbers.
type SumResult struct {
	Result float64 `json:"result"`
}

// FetchArgs are the arguments of fetch_url.
type FetchArgs struct {
	URL    string `json:"url" description:"http or https URL to GET."`
	Format string `json:"format,omitempty" description:"raw returns the body as is; markdown converts HTML pages to Markdown. Defaults to raw." enum:"raw,markdown"`
}

func (a FetchArgs) Validate() error {
	switch a.Format {
	case "", "raw", "markdown":
		return nil
	default:
		return fmt.Errorf("format must be raw or markdown, got %q", a.Format)
	}
}

// FetchResult is returned by fetch_url.
type FetchResult struct {
	Status int    `json:"status"`
	Body   string `json:"body"`
}

// Clock is the time source of get_current_time.
var Clock = time.Now

// CurrentTime implements get_current_time.
func CurrentTime(_ context.Context, args TimeArgs, _ *toolcall.Capabilities) (TimeResult, error) {
	tz := args.Timezone
	if tz == "" {
		tz = "UTC"
	}
	loc, err := time.LoadLocation(tz)
	if err != nil {
		return TimeResult{}, fmt.Errorf("unknown time zone %q", tz)
	}
	now := Clock().In(loc)
	return TimeResult{
		Time:     now.Format(time.RFC3339),
		Unix:     now.Unix(),
		Timezone: loc.String(),
		Weekday:  now.Weekday().String(),
	}, nil
}

// GenerateUUID implements generate_uuid.
func GenerateUUID(_ context.Context, args UUIDArgs, _ *toolcall.Capabilities) (UUIDResult, error) {
	n := max(args.Count, 1)
	out := make([]string, n)
	for i := range out {
		out[i] = uuid.NewString()
	}
	return UUIDResult{UUIDs: out}, nil
}

// SumNumbers implements sum_numbers.
func SumNumbers(_ context.Context, args SumArgs, _ *toolcall.Capabilities) (SumResult, error) {
	var sum float64
	for _, n := range args.Numbers {
		sum += n
	}
	if math.IsInf(sum, 0) {
		return SumResult{}, errors.New("sum overflows")
	}
	return SumResult{Result: sum}, nil
}

// FetchURL implements fetch_url through the fetch capability.
func FetchURL(ctx context.Context, args FetchArgs, caps *toolcall.Capabilities) (FetchResult, error) {
	resp, err := caps.Fetch(ctx, toolcall.FetchRequest{URL: args.URL})
	if err != nil {
		return FetchResult{}, err
	}
	body := resp.Body
	if args.Format == "markdown" && strings.Contains(resp.Headers["content-type"], "html") {
		md, err := htmltomarkdown.ConvertString(body, converter.WithContext(ctx), converter.WithDomain(args.URL))
		if err != nil {
			return FetchResult{}, fmt.Errorf("convert html: %w", err)
		}
		body = md
	}
	return FetchResult{Status: resp.Status, Body: body}, nil
}

// Entries builds the default function entries in one group.
func Entries() ([]toolcall.Entry, error) {
	group := toolcall.NewGroupID()
	var entries []toolcall.Entry
	add := func(e toolcall.Entry, err error) error {
		if err != nil {
			return err
		}
		entries = append(entries, e)
		return nil
	}
	if err := errors.Join(
		add(toolcall.NewBuiltin("get_current_time", "Get the current date and time, optionally in a given time zone.", CurrentTime, toolcall.WithGroup(group))),
		add(toolcall.NewBuiltin("generate_uuid", "Generate one or more random UUIDs (version 4).", GenerateUUID, toolcall.WithGroup(group))),
		add(toolcall.NewBuiltin("sum_numbers", "Add a list of numbers and return the total.", SumNumbers, toolcall.WithGroup(group))),
		add(toolcall.NewBuiltin("fetch_url", "Fetch a URL over HTTP GET and return the status and body, optionally as Markdown.", FetchURL,
			toolcall.WithGroup(group), toolcall.WithSource(toolcall.ProviderBridged("http")))),
	); err != nil {
		return nil, err
	}
	return entries, nil
}

// Register adds and enables every default function in reg.
func Register(reg *toolcall.Registry) error {
	entries, err := Entries()
	if err != nil {
		return err
	}
	for _, e := range entries {
		if err := reg.RegisterEnabled(e); err != nil {
			return err
		}
	}
	return nil
}
