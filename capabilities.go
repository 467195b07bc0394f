package toolcall

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"slices"
	"strings"
	"sync"
	"time"
)

// Capabilities is the only surface executed code can reach. The Executor builds a
// fresh value per execution.
type Capabilities struct {
	// Fetcher performs network requests. Nil disables fetch.
	Fetcher Fetcher
	// Console collects bounded log output from the function body.
	Console *Console
	// MaxSleep caps a single Sleep call. Zero means no cap beyond ctx.
	MaxSleep time.Duration
}

// ErrCapabilityUnavailable is returned when executed code calls a capability that
// was not granted.
var ErrCapabilityUnavailable = errors.New("capability not available")

// Fetch performs req through the granted Fetcher.
func (c *Capabilities) Fetch(ctx context.Context, req FetchRequest) (*FetchResponse, error) {
	if c == nil || c.Fetcher == nil {
		return nil, fmt.Errorf("fetch: %w", ErrCapabilityUnavailable)
	}
	return c.Fetcher.Fetch(ctx, req)
}

// Sleep blocks for d or until ctx is done.
func (c *Capabilities) Sleep(ctx context.Context, d time.Duration) error {
	if c != nil && c.MaxSleep > 0 && d > c.MaxSleep {
		d = c.MaxSleep
	}
	if d <= 0 {
		return ctx.Err()
	}
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}

// Log appends to the console if one was granted.
func (c *Capabilities) Log(level, msg string) {
	if c == nil || c.Console == nil {
		return
	}
	c.Console.Log(level, msg)
}

// FetchRequest is a network request issued by executed code.
type FetchRequest struct {
	URL     string
	Method  string
	Headers map[string]string
	Body    string
}

// FetchResponse is the result handed back to executed code.
type FetchResponse struct {
	Status  int
	Headers map[string]string
	Body    string
}

// Fetcher performs network requests on behalf of executed code.
type Fetcher interface {
	Fetch(ctx context.Context, req FetchRequest) (*FetchResponse, error)
}

// HTTPFetcher is a Fetcher limited to http(s), an optional host allowlist, and a
// response body cap.
type HTTPFetcher struct {
	Client *http.Client
	// AllowedHosts restricts destinations by hostname. Empty allows any host.
	AllowedHosts []string
	// MaxBodyBytes caps the response body. Zero uses 1 MiB.
	MaxBodyBytes int64
}

const defaultFetchBodyLimit = 1 << 20

// Fetch implements Fetcher.
func (f *HTTPFetcher) Fetch(ctx context.Context, req FetchRequest) (*FetchResponse, error) {
	u, err := url.Parse(req.URL)
	if err != nil {
		return nil, fmt.Errorf("fetch: invalid url: %w", err)
	}
	if u.Scheme != "http" && u.Scheme != "https" {
		return nil, fmt.Errorf("fetch: unsupported scheme %q", u.Scheme)
	}
	if len(f.AllowedHosts) > 0 && !slices.Contains(f.AllowedHosts, u.Hostname()) {
		return nil, fmt.Errorf("fetch: host %q is not allowed", u.Hostname())
	}
	method := strings.ToUpper(req.Method)
	if method == "" {
		method = http.MethodGet
	}
	var body io.Reader
	if req.Body != "" {
		body = strings.NewReader(req.Body)
	}
	httpReq, err := http.NewRequestWithContext(ctx, method, u.String(), body)
	if err != nil {
		return nil, fmt.Errorf("fetch: %w", err)
	}
	for k, v := range req.Headers {
		httpReq.Header.Set(k, v)
	}
	client := f.Client
	if client == nil {
		client = http.DefaultClient
	}
	resp, err := client.Do(httpReq)
	if err != nil {
		return nil, fmt.Errorf("fetch: %w", err)
	}
	defer resp.Body.Close()

	limit := f.MaxBodyBytes
	if limit <= 0 {
		limit = defaultFetchBodyLimit
	}
	data, err := io.ReadAll(io.LimitReader(resp.Body, limit+1))
	if err != nil {
		return nil, fmt.Errorf("fetch: reading body: %w", err)
	}
	if int64(len(data)) > limit {
		return nil, fmt.Errorf("fetch: response body exceeds %d bytes", limit)
	}
	headers := make(map[string]string, len(resp.Header))
	for k := range resp.Header {
		headers[strings.ToLower(k)] = resp.Header.Get(k)
	}
	return &FetchResponse{Status: resp.StatusCode, Headers: headers, Body: string(data)}, nil
}

// ConsoleEntry is one line written by executed code.
type ConsoleEntry struct {
	Level   string    `json:"level"`
	Message string    `json:"message"`
	Time    time.Time `json:"time"`
}

// Console keeps the most recent entries up to a fixed bound and mirrors them to a
// logger at debug level.
type Console struct {
	mu         sync.Mutex
	maxEntries int
	maxLen     int
	entries    []ConsoleEntry
	dropped    int
	logger     *slog.Logger
}

// NewConsole returns a console holding at most maxEntries entries. Each message is
// truncated to 4 KiB.
func NewConsole(maxEntries int, logger *slog.Logger) *Console {
	if maxEntries <= 0 {
		maxEntries = 100
	}
	return &Console{maxEntries: maxEntries, maxLen: 4096, logger: logger}
}

// Log records a message. Oldest entries are dropped once the bound is reached.
func (c *Console) Log(level, msg string) {
	if len(msg) > c.maxLen {
		msg = strings.ToValidUTF8(msg[:c.maxLen], "") + "…"
	}
	c.mu.Lock()
	if len(c.entries) == c.maxEntries {
		c.entries = c.entries[1:]
		c.dropped++
	}
	c.entries = append(c.entries, ConsoleEntry{Level: level, Message: msg, Time: time.Now()})
	c.mu.Unlock()
	if c.logger != nil {
		c.logger.Debug("console", "level", level, "message", msg)
	}
}

// Entries returns a copy of the retained entries in write order.
func (c *Console) Entries() []ConsoleEntry {
	c.mu.Lock()
	defer c.mu.Unlock()
	return slices.Clone(c.entries)
}

// Dropped reports how many entries were evicted.
func (c *Console) Dropped() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.dropped
}
