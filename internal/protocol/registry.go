package protocol

import (
	"fmt"
	"reflect"
	"sort"
	"sync"

	"github.com/hashicorp/go-multierror"
)

// Factory builds a fresh, clean message ready for ReadBody.
type Factory func() Message

// Entry binds a type id to the message it decodes into.
type Entry struct {
	Type      MessageType
	Name      string
	Direction Direction
	New       Factory
}

// Registry maps type ids to message factories. Registration happens once at
// startup; after Freeze the registry is read-only and safe for concurrent
// use by any number of codecs.
type Registry struct {
	mu      sync.RWMutex
	frozen  bool
	entries map[MessageType]Entry
	types   map[reflect.Type]MessageType
}

// NewRegistry creates an empty, mutable registry.
func NewRegistry() *Registry {
	return &Registry{
		entries: make(map[MessageType]Entry),
		types:   make(map[reflect.Type]MessageType),
	}
}

// Register adds one entry. It fails if the id is taken, if the factory builds
// a message reporting a different id, or if the registry is frozen.
func (r *Registry) Register(e Entry) error {
	if e.New == nil {
		return fmt.Errorf("register %s (%s): nil factory", e.Type, e.Name)
	}
	sample := e.New()
	if sample == nil {
		return fmt.Errorf("register %s (%s): factory returned nil", e.Type, e.Name)
	}
	if got := sample.Type(); got != e.Type {
		return fmt.Errorf("%w: %s (%s) builds messages of type %s", ErrTypeMismatch, e.Type, e.Name, got)
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	if r.frozen {
		return fmt.Errorf("%w: cannot register %s (%s)", ErrRegistryFrozen, e.Type, e.Name)
	}
	if prev, ok := r.entries[e.Type]; ok {
		return fmt.Errorf("%w: %s already bound to %s, cannot bind %s", ErrDuplicateType, e.Type, prev.Name, e.Name)
	}

	r.entries[e.Type] = e
	r.types[reflect.TypeOf(sample)] = e.Type
	return nil
}

// RegisterAll registers entries in order and reports every failure.
func (r *Registry) RegisterAll(entries ...Entry) error {
	var result *multierror.Error
	for _, e := range entries {
		if err := r.Register(e); err != nil {
			result = multierror.Append(result, err)
		}
	}
	return result.ErrorOrNil()
}

// Freeze makes the registry read-only.
func (r *Registry) Freeze() {
	r.mu.Lock()
	r.frozen = true
	r.mu.Unlock()
}

// Frozen reports whether Freeze has been called.
func (r *Registry) Frozen() bool {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.frozen
}

// Resolve returns the factory for id. It never returns nil: unregistered ids
// resolve to a factory for Unknown carrying that id.
func (r *Registry) Resolve(id MessageType) Factory {
	if e, ok := r.Lookup(id); ok {
		return e.New
	}
	return func() Message { return NewUnknown(id) }
}

// Lookup returns the entry registered for id.
func (r *Registry) Lookup(id MessageType) (Entry, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	e, ok := r.entries[id]
	return e, ok
}

// TypeOf returns the wire id for m. Unknown messages report the id they were
// captured with; any other message must belong to a registered type.
func (r *Registry) TypeOf(m Message) (MessageType, error) {
	if u, ok := m.(*Unknown); ok {
		return u.TypeID, nil
	}

	r.mu.RLock()
	id, ok := r.types[reflect.TypeOf(m)]
	r.mu.RUnlock()
	if !ok {
		return 0, fmt.Errorf("%w: %T", ErrUnregisteredType, m)
	}
	return id, nil
}

// Entries returns every registered entry ordered by type id.
func (r *Registry) Entries() []Entry {
	r.mu.RLock()
	out := make([]Entry, 0, len(r.entries))
	for _, e := range r.entries {
		out = append(out, e)
	}
	r.mu.RUnlock()

	sort.Slice(out, func(i, j int) bool { return out[i].Type < out[j].Type })
	return out
}

// Len returns the number of registered types.
func (r *Registry) Len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.entries)
}

// Name returns the registered name for id, or "Unknown".
func (r *Registry) Name(id MessageType) string {
	if e, ok := r.Lookup(id); ok {
		return e.Name
	}
	return "Unknown"
}
