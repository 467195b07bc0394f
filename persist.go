package toolcall

import (
	"context"
	"encoding/json"
	"fmt"
	"slices"
	"time"
)

// Storage is the key/value collaborator used to persist the registry.
// Get reports ok=false for a missing key.
type Storage interface {
	Get(ctx context.Context, key string) (value []byte, ok bool, err error)
	Set(ctx context.Context, key string, value []byte) error
}

// Storage keys written by Save.
const (
	FunctionsKey        = "toolcall.functions"
	EnabledFunctionsKey = "toolcall.enabled_functions"
)

type storedFunction struct {
	Name       string         `json:"name"`
	Code       string         `json:"code"`
	Definition ToolDefinition `json:"toolDefinition"`
	GroupID    string         `json:"groupId"`
	TimeoutMs  int64          `json:"timeoutMs,omitempty"`
}

// Save writes every user-defined entry and the enabled set to s. Built-in and
// provider-bridged entries are rebuilt by the application on start and are not stored.
func (r *Registry) Save(ctx context.Context, s Storage) error {
	r.mu.RLock()
	funcs := make(map[string]storedFunction)
	for name, e := range r.entries {
		if e.Source.Kind != SourceUserDefined {
			continue
		}
		funcs[name] = storedFunction{
			Name:       e.Name,
			Code:       e.Code,
			Definition: e.Definition,
			GroupID:    e.GroupID,
			TimeoutMs:  e.Timeout.Milliseconds(),
		}
	}
	enabled := slices.Clone(r.enabled)
	r.mu.RUnlock()

	fb, err := json.Marshal(funcs)
	if err != nil {
		return fmt.Errorf("save functions: %w", err)
	}
	eb, err := json.Marshal(enabled)
	if err != nil {
		return fmt.Errorf("save enabled functions: %w", err)
	}
	if err := s.Set(ctx, FunctionsKey, fb); err != nil {
		return fmt.Errorf("save functions: %w", err)
	}
	if err := s.Set(ctx, EnabledFunctionsKey, eb); err != nil {
		return fmt.Errorf("save enabled functions: %w", err)
	}
	return nil
}

// Load registers the stored user-defined functions and, when stored, replaces the
// enabled set. Enabled names without an entry are kept and stay inert. Stored
// entries that no longer validate are skipped and logged.
func (r *Registry) Load(ctx context.Context, s Storage) error {
	fb, ok, err := s.Get(ctx, FunctionsKey)
	if err != nil {
		return fmt.Errorf("load functions: %w", err)
	}
	if ok && len(fb) > 0 {
		var funcs map[string]storedFunction
		if err := json.Unmarshal(fb, &funcs); err != nil {
			return fmt.Errorf("load functions: %w", err)
		}
		for name, f := range funcs {
			if f.Name == "" {
				f.Name = name
			}
			e := Entry{
				Name:       f.Name,
				Code:       f.Code,
				Definition: f.Definition,
				GroupID:    f.GroupID,
				Source:     UserDefined(),
			}
			if f.TimeoutMs > 0 {
				e.Timeout = time.Duration(f.TimeoutMs) * time.Millisecond
			}
			if err := r.Register(e); err != nil {
				r.opts.logger.WarnContext(ctx, "skipping stored function", "function", name, "error", err)
			}
		}
	}

	eb, ok, err := s.Get(ctx, EnabledFunctionsKey)
	if err != nil {
		return fmt.Errorf("load enabled functions: %w", err)
	}
	if !ok || len(eb) == 0 {
		return nil
	}
	var enabled []string
	if err := json.Unmarshal(eb, &enabled); err != nil {
		return fmt.Errorf("load enabled functions: %w", err)
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	r.enabled = r.enabled[:0]
	for _, n := range enabled {
		if n != "" && !slices.Contains(r.enabled, n) {
			r.enabled = append(r.enabled, n)
		}
	}
	return nil
}
