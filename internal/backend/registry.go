package backend

import (
	"fmt"
	"sort"
	"strings"
	"sync"
)

// Registry resolves configured backend names to implementations and
// memoizes their capability descriptors. Backends are registered once at
// bootstrap; resolving an unknown name is a configuration error signaled
// before any job work begins.
type Registry struct {
	mu       sync.RWMutex
	backends map[string]VideoGenerator
	caps     map[string]CapabilityDescriptor
}

// NewRegistry creates an empty backend registry.
func NewRegistry() *Registry {
	return &Registry{
		backends: make(map[string]VideoGenerator),
		caps:     make(map[string]CapabilityDescriptor),
	}
}

// Register adds one backend under its declared name.
func (r *Registry) Register(gen VideoGenerator) error {
	name := strings.TrimSpace(gen.Name())
	if name == "" {
		return ConfigError("backend name cannot be empty")
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	if _, exists := r.backends[name]; exists {
		return ConfigError("backend %q is already registered", name)
	}
	r.backends[name] = gen
	return nil
}

// Resolve returns the backend registered under name.
func (r *Registry) Resolve(name string) (VideoGenerator, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	gen, ok := r.backends[name]
	if !ok {
		return nil, ConfigError("unknown backend %q (available: %s)", name, strings.Join(r.namesLocked(), ", "))
	}
	return gen, nil
}

// Capabilities returns the memoized descriptor for a registered backend.
func (r *Registry) Capabilities(name string) (CapabilityDescriptor, error) {
	r.mu.RLock()
	caps, cached := r.caps[name]
	r.mu.RUnlock()
	if cached {
		return caps, nil
	}

	gen, err := r.Resolve(name)
	if err != nil {
		return CapabilityDescriptor{}, err
	}

	caps = gen.Capabilities()
	r.mu.Lock()
	r.caps[name] = caps
	r.mu.Unlock()
	return caps, nil
}

// Names lists registered backend names in stable order.
func (r *Registry) Names() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.namesLocked()
}

func (r *Registry) namesLocked() []string {
	names := make([]string, 0, len(r.backends))
	for name := range r.backends {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// String describes the registry for startup logs.
func (r *Registry) String() string {
	return fmt.Sprintf("registry(%s)", strings.Join(r.Names(), ","))
}
