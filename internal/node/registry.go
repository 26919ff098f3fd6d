package node

import (
	"fmt"
	"sync"
)

// Registry maps a config "type" string to its Type. It is an explicit value
// held by the daemon, built at process startup and passed down, rather than
// a package-level mutable singleton — per the routing-engine's design note
// on avoiding a global node-type table. Register remains available as a
// convenience default-registry entry point so node types can self-register
// from an init() function, mirroring the pack's package-level setup idiom.
type Registry struct {
	mu    sync.RWMutex
	types map[string]Type
}

// NewRegistry returns an empty Registry.
func NewRegistry() *Registry {
	return &Registry{types: make(map[string]Type)}
}

// Add registers typ under its own Name(). It is an error to register two
// types under the same name.
func (r *Registry) Add(typ Type) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	name := typ.Name()
	if _, exists := r.types[name]; exists {
		return fmt.Errorf("node: type %q already registered", name)
	}
	r.types[name] = typ
	return nil
}

// Lookup returns the Type registered under name, if any.
func (r *Registry) Lookup(name string) (Type, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	t, ok := r.types[name]
	return t, ok
}

// Names returns every registered type name.
func (r *Registry) Names() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	names := make([]string, 0, len(r.types))
	for n := range r.types {
		names = append(names, n)
	}
	return names
}

// StartAll runs the StartType hook of every Lifecycle-capable registered
// type, in registration order is not guaranteed (map iteration).
func (r *Registry) StartAll() error {
	r.mu.RLock()
	defer r.mu.RUnlock()
	for _, t := range r.types {
		if l, ok := t.(Lifecycle); ok {
			if err := l.StartType(); err != nil {
				return fmt.Errorf("node type %s: %w", t.Name(), err)
			}
		}
	}
	return nil
}

// StopAll runs the StopType hook of every Lifecycle-capable registered type.
func (r *Registry) StopAll() error {
	r.mu.RLock()
	defer r.mu.RUnlock()
	var first error
	for _, t := range r.types {
		if l, ok := t.(Lifecycle); ok {
			if err := l.StopType(); err != nil && first == nil {
				first = err
			}
		}
	}
	return first
}

// Default is the process-wide registry node types self-register into from
// their init() functions, matching the pack's package-level registration
// style. The daemon may use Default directly or build its own Registry and
// copy entries from it; either way construction stays explicit.
var Default = NewRegistry()

// Register adds typ to Default. Intended to be called from a node type's
// init() function: func init() { node.Register(&FileType{}) }.
func Register(typ Type) {
	if err := Default.Add(typ); err != nil {
		panic(err)
	}
}
