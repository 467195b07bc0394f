// Package config loads deployment settings from a YAML file, an optional .env
// file and TOOLCALL_* environment variables, in increasing precedence.
package config

import (
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"
)

// Config holds all settings for the toolchat CLI and the pipeline it wires.
type Config struct {
	API       APIConfig       `yaml:"api"`
	RateLimit RateLimitConfig `yaml:"rate_limit"`
	Execution ExecutionConfig `yaml:"execution"`
	Fetch     FetchConfig     `yaml:"fetch"`
	Storage   StorageConfig   `yaml:"storage"`
	Log       LogConfig       `yaml:"log"`
	Debug     DebugConfig     `yaml:"debug"`
}

type APIConfig struct {
	BaseURL    string        `yaml:"base_url"`
	Key        string        `yaml:"key"`
	Model      string        `yaml:"model"`
	Timeout    time.Duration `yaml:"timeout"`
	MaxRetries int           `yaml:"max_retries"`
}

type RateLimitConfig struct {
	RPS   float64 `yaml:"rps"`
	Burst int     `yaml:"burst"`
}

type ExecutionConfig struct {
	Timeout        time.Duration `yaml:"timeout"`
	MaxSteps       uint64        `yaml:"max_steps"`
	ConsoleEntries int           `yaml:"console_entries"`
	MaxSleep       time.Duration `yaml:"max_sleep"`
	// Runtime selects the compiler for user-defined code: starlark, wasm or host.
	Runtime string `yaml:"runtime"`
	// ValidateSchema validates coerced arguments against declared schemas.
	ValidateSchema bool `yaml:"validate_schema"`
}

type FetchConfig struct {
	Enabled      bool          `yaml:"enabled"`
	AllowedHosts []string      `yaml:"allowed_hosts"`
	MaxBodyBytes int64         `yaml:"max_body_bytes"`
	Timeout      time.Duration `yaml:"timeout"`
}

type StorageConfig struct {
	Driver      string `yaml:"driver"`
	Path        string `yaml:"path"`
	RedisAddr   string `yaml:"redis_addr"`
	RedisDB     int    `yaml:"redis_db"`
	RedisPrefix string `yaml:"redis_prefix"`
}

type LogConfig struct {
	Level  string `yaml:"level"`
	Format string `yaml:"format"`
}

type DebugConfig struct {
	// Categories enables narration categories; "*" enables all.
	Categories []string `yaml:"categories"`
}

// Default returns the built-in settings.
func Default() *Config {
	return &Config{
		API: APIConfig{
			BaseURL:    "https://api.openai.com/v1",
			Model:      "gpt-4o-mini",
			Timeout:    5 * time.Minute,
			MaxRetries: 3,
		},
		RateLimit: RateLimitConfig{RPS: 1, Burst: 10},
		Execution: ExecutionConfig{
			Timeout:        30 * time.Second,
			MaxSteps:       10_000_000,
			ConsoleEntries: 100,
			MaxSleep:       10 * time.Second,
			Runtime:        "starlark",
		},
		Fetch: FetchConfig{
			Enabled:      true,
			MaxBodyBytes: 1 << 20,
			Timeout:      15 * time.Second,
		},
		Storage: StorageConfig{Driver: "sqlite", Path: "toolchat.db", RedisPrefix: "toolchat:"},
		Log:     LogConfig{Level: "info", Format: "text"},
		Debug:   DebugConfig{Categories: []string{"tool_calls"}},
	}
}

// Load reads path (if non-empty), then .env (if present), then the environment.
// A missing path is an error; a missing .env is not.
func Load(path string) (*Config, error) {
	cfg := Default()
	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("read config: %w", err)
		}
		if err := yaml.Unmarshal(data, cfg); err != nil {
			return nil, fmt.Errorf("parse config %s: %w", path, err)
		}
	}
	if err := godotenv.Load(); err != nil && !errors.Is(err, os.ErrNotExist) {
		return nil, fmt.Errorf("load .env: %w", err)
	}
	if err := cfg.applyEnv(os.LookupEnv); err != nil {
		return nil, err
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func (c *Config) applyEnv(lookup func(string) (string, bool)) error {
	str := func(key string, dst *string) {
		if v, ok := lookup(key); ok && v != "" {
			*dst = v
		}
	}
	dur := func(key string, dst *time.Duration) error {
		v, ok := lookup(key)
		if !ok || v == "" {
			return nil
		}
		d, err := time.ParseDuration(v)
		if err != nil {
			return fmt.Errorf("%s: %w", key, err)
		}
		*dst = d
		return nil
	}
	integer := func(key string, dst *int) error {
		v, ok := lookup(key)
		if !ok || v == "" {
			return nil
		}
		n, err := strconv.Atoi(v)
		if err != nil {
			return fmt.Errorf("%s: %w", key, err)
		}
		*dst = n
		return nil
	}

	str("OPENAI_API_KEY", &c.API.Key)
	str("TOOLCALL_API_KEY", &c.API.Key)
	str("TOOLCALL_BASE_URL", &c.API.BaseURL)
	str("TOOLCALL_MODEL", &c.API.Model)
	str("TOOLCALL_RUNTIME", &c.Execution.Runtime)
	str("TOOLCALL_STORAGE_DRIVER", &c.Storage.Driver)
	str("TOOLCALL_STORAGE_PATH", &c.Storage.Path)
	str("TOOLCALL_REDIS_ADDR", &c.Storage.RedisAddr)
	str("TOOLCALL_LOG_LEVEL", &c.Log.Level)
	str("TOOLCALL_LOG_FORMAT", &c.Log.Format)
	if v, ok := lookup("TOOLCALL_FETCH_ALLOWED_HOSTS"); ok && v != "" {
		c.Fetch.AllowedHosts = splitList(v)
	}
	if v, ok := lookup("TOOLCALL_DEBUG"); ok && v != "" {
		c.Debug.Categories = splitList(v)
	}
	for _, err := range []error{
		dur("TOOLCALL_EXECUTION_TIMEOUT", &c.Execution.Timeout),
		dur("TOOLCALL_API_TIMEOUT", &c.API.Timeout),
		integer("TOOLCALL_MAX_RETRIES", &c.API.MaxRetries),
		integer("TOOLCALL_REDIS_DB", &c.Storage.RedisDB),
	} {
		if err != nil {
			return fmt.Errorf("environment: %w", err)
		}
	}
	return nil
}

func splitList(s string) []string {
	var out []string
	for _, p := range strings.Split(s, ",") {
		if p = strings.TrimSpace(p); p != "" {
			out = append(out, p)
		}
	}
	return out
}

// Validate reports the first invalid setting.
func (c *Config) Validate() error {
	switch {
	case c.API.BaseURL == "":
		return errors.New("api.base_url is required")
	case c.API.Model == "":
		return errors.New("api.model is required")
	case c.API.MaxRetries < 0:
		return errors.New("api.max_retries must not be negative")
	case c.Execution.Timeout <= 0:
		return errors.New("execution.timeout must be positive")
	}
	switch c.Execution.Runtime {
	case "starlark", "wasm", "host":
	default:
		return fmt.Errorf("execution.runtime %q is not one of starlark, wasm, host", c.Execution.Runtime)
	}
	switch c.Storage.Driver {
	case "memory":
	case "sqlite":
		if c.Storage.Path == "" {
			return errors.New("storage.path is required for sqlite")
		}
	case "redis":
		if c.Storage.RedisAddr == "" {
			return errors.New("storage.redis_addr is required for redis")
		}
	default:
		return fmt.Errorf("storage.driver %q is not one of memory, sqlite, redis", c.Storage.Driver)
	}
	return nil
}

// Logger builds the slog logger described by c.Log.
func (c *Config) Logger(w io.Writer) *slog.Logger {
	var level slog.Level
	if err := level.UnmarshalText([]byte(c.Log.Level)); err != nil {
		level = slog.LevelInfo
	}
	opts := &slog.HandlerOptions{Level: level}
	if strings.EqualFold(c.Log.Format, "json") {
		return slog.New(slog.NewJSONHandler(w, opts))
	}
	return slog.New(slog.NewTextHandler(w, opts))
}
