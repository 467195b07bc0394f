package toolcall

import (
	"fmt"
	"log/slog"
	"maps"
	"slices"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/santhosh-tekuri/jsonschema/v6"
)

// Entry is one registered function. Code-backed entries (Source UserDefined) are
// compiled by the Executor's Compiler on every run; other entries carry a Handler.
type Entry struct {
	Name       string
	Code       string
	Handler    Executable
	Definition ToolDefinition
	// GroupID ties functions defined together; Remove deletes the whole group.
	GroupID string
	Source  ToolSource
	// Timeout overrides the executor default when positive.
	Timeout time.Duration

	// schema is Definition.Parameters compiled at registration.
	schema *jsonschema.Schema
}

// Registry holds function entries and the enabled set. It is queried fresh on every
// lookup; callers must not cache definitions across turns. Safe for concurrent use.
type Registry struct {
	mu      sync.RWMutex
	entries map[string]*Entry
	// enabled keeps insertion order for display. It may hold names without an entry
	// (e.g. after Load); those are inert.
	enabled []string
	opts    registryOptions
}

// NewRegistry creates an empty Registry.
func NewRegistry(opts ...RegistryOption) *Registry {
	o := registryOptions{logger: slog.Default()}
	for _, opt := range opts {
		opt(&o)
	}
	return &Registry{
		entries: make(map[string]*Entry),
		opts:    o,
	}
}

// NewGroupID returns a fresh identifier for functions defined together.
func NewGroupID() string { return uuid.NewString() }

// Add registers a user-defined function from source code. name, code and
// def.Name are required and def.Name must equal name. An empty groupID puts the
// function in a group of its own. The function starts disabled.
func (r *Registry) Add(name, code string, def ToolDefinition, groupID string) error {
	if code == "" {
		return fmt.Errorf("add %q: %w", name, ErrIncompleteDefinition)
	}
	return r.Register(Entry{
		Name:       name,
		Code:       code,
		Definition: def,
		GroupID:    groupID,
		Source:     UserDefined(),
	})
}

// Register stores e, replacing any entry with the same name. Entries with
// Source UserDefined need Code; all others need a Handler.
func (r *Registry) Register(e Entry) error {
	if e.Name == "" || e.Definition.Name == "" {
		return fmt.Errorf("register %q: %w", e.Name, ErrIncompleteDefinition)
	}
	if e.Definition.Name != e.Name {
		return fmt.Errorf("register %q: definition is named %q: %w", e.Name, e.Definition.Name, ErrIncompleteDefinition)
	}
	switch {
	case e.Source.Kind == SourceUserDefined && e.Code == "":
		return fmt.Errorf("register %q: %w", e.Name, ErrIncompleteDefinition)
	case e.Source.Kind != SourceUserDefined && e.Handler == nil:
		return fmt.Errorf("register %q: handler is required for %s functions: %w", e.Name, e.Source.Kind, ErrIncompleteDefinition)
	}
	e.schema = nil
	if e.Definition.Parameters != nil {
		compiled, err := compileDeclaredSchema(e.Definition.Parameters)
		if err != nil {
			return fmt.Errorf("register %q: invalid parameter schema: %w", e.Name, err)
		}
		e.schema = compiled
	}
	if e.GroupID == "" {
		e.GroupID = NewGroupID()
	}
	e.Definition.Parameters = cloneSchema(e.Definition.Parameters)

	r.mu.Lock()
	defer r.mu.Unlock()
	r.entries[e.Name] = &e
	r.opts.logger.Debug("function registered", "function", e.Name, "group", e.GroupID, "source", e.Source.Kind.String())
	return nil
}

// RegisterEnabled registers e and enables it. Used for built-in defaults.
func (r *Registry) RegisterEnabled(e Entry) error {
	if err := r.Register(e); err != nil {
		return err
	}
	return r.Enable(e.Name)
}

// Remove deletes name and every entry sharing its group, and strips all of them
// from the enabled set. It returns the removed names in sorted order.
func (r *Registry) Remove(name string) ([]string, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	e, ok := r.entries[name]
	if !ok {
		return nil, &FunctionNotFoundError{Name: name}
	}
	group := e.GroupID
	var removed []string
	for n, other := range r.entries {
		if other.GroupID == group {
			delete(r.entries, n)
			removed = append(removed, n)
		}
	}
	slices.Sort(removed)
	r.enabled = slices.DeleteFunc(r.enabled, func(n string) bool {
		return slices.Contains(removed, n)
	})
	r.opts.logger.Debug("function group removed", "function", name, "group", group, "removed", removed)
	return removed, nil
}

// Enable marks a registered function as callable. Enabling an unknown name fails
// and changes nothing.
func (r *Registry) Enable(name string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.entries[name]; !ok {
		return &FunctionNotFoundError{Name: name}
	}
	if !slices.Contains(r.enabled, name) {
		r.enabled = append(r.enabled, name)
	}
	return nil
}

// Disable removes name from the enabled set. Orphaned names are stripped too, but
// an unknown name still reports FunctionNotFoundError.
func (r *Registry) Disable(name string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.enabled = slices.DeleteFunc(r.enabled, func(n string) bool { return n == name })
	if _, ok := r.entries[name]; !ok {
		return &FunctionNotFoundError{Name: name}
	}
	return nil
}

// IsEnabled reports whether name is registered and enabled.
func (r *Registry) IsEnabled(name string) bool {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.isEnabledLocked(name)
}

func (r *Registry) isEnabledLocked(name string) bool {
	if _, ok := r.entries[name]; !ok {
		return false
	}
	return slices.Contains(r.enabled, name)
}

// EnabledNames returns enabled, registered names in the order they were enabled.
func (r *Registry) EnabledNames() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]string, 0, len(r.enabled))
	for _, n := range r.enabled {
		if _, ok := r.entries[n]; ok {
			out = append(out, n)
		}
	}
	return out
}

// ListEnabledDefinitions returns the definitions to advertise to the model, in
// enabled order. Parameters maps are shallow copies; callers must not mutate nested values.
func (r *Registry) ListEnabledDefinitions() []ToolDefinition {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]ToolDefinition, 0, len(r.enabled))
	for _, n := range r.enabled {
		e, ok := r.entries[n]
		if !ok {
			continue
		}
		d := e.Definition
		d.Parameters = maps.Clone(d.Parameters)
		out = append(out, d)
	}
	return out
}

// Resolve returns the entry for a callable name. It fails with
// FunctionNotFoundError for empty or unknown names and FunctionDisabledError for
// registered names outside the enabled set.
func (r *Registry) Resolve(name string) (Entry, error) {
	if name == "" {
		return Entry{}, &FunctionNotFoundError{}
	}
	r.mu.RLock()
	defer r.mu.RUnlock()
	e, ok := r.entries[name]
	if !ok {
		return Entry{}, &FunctionNotFoundError{Name: name}
	}
	if !slices.Contains(r.enabled, name) {
		return Entry{}, &FunctionDisabledError{Name: name}
	}
	return *e, nil
}

// Lookup returns the entry for name regardless of its enabled state.
func (r *Registry) Lookup(name string) (Entry, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	e, ok := r.entries[name]
	if !ok {
		return Entry{}, false
	}
	return *e, true
}

// Entries returns all entries sorted by name.
func (r *Registry) Entries() []Entry {
	r.mu.RLock()
	defer r.mu.RUnlock()
	names := slices.Sorted(maps.Keys(r.entries))
	out := make([]Entry, 0, len(names))
	for _, n := range names {
		out = append(out, *r.entries[n])
	}
	return out
}

// Group returns the sorted names sharing name's group, or nil if name is unknown.
func (r *Registry) Group(name string) []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	e, ok := r.entries[name]
	if !ok {
		return nil
	}
	var out []string
	for n, other := range r.entries {
		if other.GroupID == e.GroupID {
			out = append(out, n)
		}
	}
	slices.Sort(out)
	return out
}
