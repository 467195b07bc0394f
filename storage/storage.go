// Package storage provides toolcall.Storage implementations for registry
// persistence: in-memory, SQLite and Redis.
package storage

import (
	"context"
	"fmt"
	"slices"
	"sync"

	"github.com/kristerhedfors/toolcall"
)

// Memory is a process-local Storage. The zero value is ready to use.
type Memory struct {
	mu   sync.RWMutex
	data map[string][]byte
}

// NewMemory returns an empty Memory store.
func NewMemory() *Memory { return &Memory{} }

// Get implements toolcall.Storage.
func (m *Memory) Get(_ context.Context, key string) ([]byte, bool, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	v, ok := m.data[key]
	return slices.Clone(v), ok, nil
}

// Set implements toolcall.Storage.
func (m *Memory) Set(_ context.Context, key string, value []byte) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.data == nil {
		m.data = make(map[string][]byte)
	}
	m.data[key] = slices.Clone(value)
	return nil
}

// Config selects and configures a backend.
type Config struct {
	// Driver is "memory", "sqlite" or "redis".
	Driver    string
	Path      string
	RedisAddr string
	RedisDB   int
	// Prefix namespaces Redis keys.
	Prefix string
}

// Backend is a Storage that holds resources.
type Backend interface {
	toolcall.Storage
	Close() error
}

type nopCloser struct{ *Memory }

func (nopCloser) Close() error { return nil }

// Open returns the backend named by cfg.Driver.
func Open(ctx context.Context, cfg Config) (Backend, error) {
	switch cfg.Driver {
	case "", "memory":
		return nopCloser{NewMemory()}, nil
	case "sqlite":
		return OpenSQLite(ctx, cfg.Path)
	case "redis":
		return OpenRedis(ctx, cfg.RedisAddr, cfg.RedisDB, cfg.Prefix)
	default:
		return nil, fmt.Errorf("unknown storage driver %q", cfg.Driver)
	}
}

var (
	_ toolcall.Storage = (*Memory)(nil)
	_ Backend          = (*SQLite)(nil)
	_ Backend          = (*Redis)(nil)
)
