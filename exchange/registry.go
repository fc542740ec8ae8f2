package exchange

import (
	"fmt"
	"sort"
	"sync"
)

// Options carries venue-neutral construction inputs to a Factory.
type Options struct {
	StreamURL string
	Params    map[string]string
}

// Factory builds an Exchange from its options.
type Factory func(opts Options) (Exchange, error)

// Registry maps venue names to factories. It is an explicit value handed to
// the caller at construction; there is no package-level instance and no
// caching of opened exchanges.
type Registry struct {
	mu        sync.RWMutex
	factories map[string]Factory
}

// NewRegistry creates an empty registry.
func NewRegistry() *Registry {
	return &Registry{factories: make(map[string]Factory)}
}

// Register adds a factory under name. Duplicate names are rejected.
func (r *Registry) Register(name string, f Factory) error {
	if name == "" || f == nil {
		return fmt.Errorf("registry: name and factory are required")
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.factories[name]; ok {
		return fmt.Errorf("registry: %q already registered", name)
	}
	r.factories[name] = f
	return nil
}

// Open builds a fresh Exchange instance for name.
func (r *Registry) Open(name string, opts Options) (Exchange, error) {
	r.mu.RLock()
	f, ok := r.factories[name]
	r.mu.RUnlock()
	if !ok {
		return nil, fmt.Errorf("registry: unknown exchange %q (known: %v)", name, r.Names())
	}
	return f(opts)
}

// Names lists registered venues, sorted.
func (r *Registry) Names() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	names := make([]string, 0, len(r.factories))
	for n := range r.factories {
		names = append(names, n)
	}
	sort.Strings(names)
	return names
}
