package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/kristerhedfors/toolcall"
	"github.com/kristerhedfors/toolcall/adapters/sandbox/host"
	"github.com/kristerhedfors/toolcall/adapters/sandbox/starlarkrt"
	"github.com/kristerhedfors/toolcall/adapters/sandbox/wasmrt"
	"github.com/kristerhedfors/toolcall/builtins"
	"github.com/kristerhedfors/toolcall/config"
	"github.com/kristerhedfors/toolcall/storage"
)

// app holds the wired components for one command invocation.
type app struct {
	cfg     *config.Config
	logger  *slog.Logger
	store   storage.Backend
	reg     *toolcall.Registry
	exec    *toolcall.Executor
	metrics *prometheus.Registry
	closers []func() error
}

func loadConfig(flags *rootFlags) (*config.Config, error) {
	cfg, err := config.Load(flags.configPath)
	if err != nil {
		return nil, err
	}
	if flags.storage != "" {
		cfg.Storage.Driver = flags.storage
	}
	if flags.dbPath != "" {
		cfg.Storage.Path = flags.dbPath
	}
	if flags.logLevel != "" {
		cfg.Log.Level = flags.logLevel
	}
	return cfg, cfg.Validate()
}

func newApp(ctx context.Context, flags *rootFlags, logOut io.Writer) (*app, error) {
	cfg, err := loadConfig(flags)
	if err != nil {
		return nil, err
	}
	logger := cfg.Logger(logOut)
	a := &app{cfg: cfg, logger: logger}

	a.store, err = storage.Open(ctx, storage.Config{
		Driver:    cfg.Storage.Driver,
		Path:      cfg.Storage.Path,
		RedisAddr: cfg.Storage.RedisAddr,
		RedisDB:   cfg.Storage.RedisDB,
		Prefix:    cfg.Storage.RedisPrefix,
	})
	if err != nil {
		return nil, fmt.Errorf("open storage: %w", err)
	}
	a.closers = append(a.closers, a.store.Close)

	a.reg = toolcall.NewRegistry(toolcall.WithRegistryLogger(logger))
	if err := builtins.Register(a.reg); err != nil {
		a.Close()
		return nil, fmt.Errorf("register builtins: %w", err)
	}
	if err := a.reg.Load(ctx, a.store); err != nil {
		a.Close()
		return nil, err
	}

	compiler, err := a.compiler(ctx)
	if err != nil {
		a.Close()
		return nil, err
	}
	a.metrics = prometheus.NewRegistry()
	opts := []toolcall.ExecutorOption{
		toolcall.WithDefaultTimeout(cfg.Execution.Timeout),
		toolcall.WithCompiler(compiler),
		toolcall.WithConsoleEntries(cfg.Execution.ConsoleEntries),
		toolcall.WithMaxSleep(cfg.Execution.MaxSleep),
		toolcall.WithExecutorLogger(logger),
		toolcall.WithMetrics(toolcall.NewMetrics(a.metrics)),
		toolcall.WithMiddleware(toolcall.WithLogging(logger)),
	}
	if cfg.Fetch.Enabled {
		opts = append(opts, toolcall.WithFetcher(&toolcall.HTTPFetcher{
			Client:       &http.Client{Timeout: cfg.Fetch.Timeout},
			AllowedHosts: cfg.Fetch.AllowedHosts,
			MaxBodyBytes: cfg.Fetch.MaxBodyBytes,
		}))
	}
	if cfg.Execution.ValidateSchema {
		opts = append(opts, toolcall.WithSchemaValidation())
	}
	a.exec = toolcall.NewExecutor(a.reg, opts...)
	return a, nil
}

func (a *app) compiler(ctx context.Context) (toolcall.Compiler, error) {
	switch a.cfg.Execution.Runtime {
	case "starlark":
		return starlarkrt.New(starlarkrt.WithMaxSteps(a.cfg.Execution.MaxSteps)), nil
	case "wasm":
		c := wasmrt.New(ctx)
		a.closers = append(a.closers, func() error { return c.Close(context.Background()) })
		return c, nil
	case "host":
		return host.New(), nil
	default:
		return nil, fmt.Errorf("unknown runtime %q", a.cfg.Execution.Runtime)
	}
}

func (a *app) save(ctx context.Context) error {
	return a.reg.Save(ctx, a.store)
}

// Close releases resources in reverse order of acquisition.
func (a *app) Close() error {
	var errs []error
	for i := len(a.closers) - 1; i >= 0; i-- {
		errs = append(errs, a.closers[i]())
	}
	a.closers = nil
	return errors.Join(errs...)
}
