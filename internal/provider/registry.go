package provider

import (
	"fmt"
	"sync"
)

// Factory constructs a provider instance from its registered type.
type Factory func() (Provider, error)

// Registry holds provider factories keyed by type.
// It provides thread-safe registration and lookup.
type Registry struct {
	mu        sync.RWMutex
	factories map[Type]Factory
}

// NewRegistry creates a new empty registry.
func NewRegistry() *Registry {
	return &Registry{
		factories: make(map[Type]Factory),
	}
}

// Register adds a provider factory to the registry.
// If a factory with the same type already exists, it will be overwritten.
func (r *Registry) Register(pt Type, factory Factory) error {
	if pt == "" {
		return fmt.Errorf("provider type cannot be empty")
	}
	if factory == nil {
		return fmt.Errorf("cannot register nil factory for provider %q", pt)
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	r.factories[pt] = factory
	return nil
}

// Build constructs a provider instance for the given type.
// Returns an error if the type is not registered or the factory fails.
func (r *Registry) Build(pt Type) (Provider, error) {
	r.mu.RLock()
	factory, ok := r.factories[pt]
	r.mu.RUnlock()

	if !ok {
		return nil, fmt.Errorf("provider type %q not registered (valid types: %v)", pt, ValidTypes())
	}
	return factory()
}

// Has checks if a provider type is registered.
func (r *Registry) Has(pt Type) bool {
	r.mu.RLock()
	defer r.mu.RUnlock()

	_, ok := r.factories[pt]
	return ok
}

// List returns all registered provider types.
func (r *Registry) List() []Type {
	r.mu.RLock()
	defer r.mu.RUnlock()

	types := make([]Type, 0, len(r.factories))
	for t := range r.factories {
		types = append(types, t)
	}
	return types
}

// ParseType converts a string to a provider Type.
// Returns an error if the string is not a valid provider type.
func ParseType(s string) (Type, error) {
	for _, valid := range ValidTypes() {
		if string(valid) == s {
			return valid, nil
		}
	}
	return "", fmt.Errorf("invalid provider type: %q (valid types: %v)", s, ValidTypes())
}
