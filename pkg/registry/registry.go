// Package registry provides the generic named registry used to resolve
// node types and metatype declarations during graph construction.
package registry

import (
	"fmt"
	"sort"

	"github.com/loomengine/loom/pkg/flowerr"
)

type Registry[T any] struct {
	entries map[string]T
}

func New[T any]() *Registry[T] {
	return &Registry[T]{entries: make(map[string]T)}
}

// Register adds v under name. Duplicate names fail with ErrInvalidArgument.
func (r *Registry[T]) Register(name string, v T) error {
	if name == "" {
		return fmt.Errorf("registry entry has no name: %w", flowerr.ErrInvalidArgument)
	}
	if _, dup := r.entries[name]; dup {
		return fmt.Errorf("registry entry %q already registered: %w", name, flowerr.ErrInvalidArgument)
	}
	r.entries[name] = v
	return nil
}

// MustRegister is Register for static registration blocks, where a
// duplicate is a programming error.
func (r *Registry[T]) MustRegister(name string, v T) {
	if err := r.Register(name, v); err != nil {
		panic(err)
	}
}

// Get resolves a registered entry by name.
func (r *Registry[T]) Get(name string) (T, error) {
	v, ok := r.entries[name]
	if !ok {
		var zero T
		return zero, fmt.Errorf("registry entry %q: %w", name, flowerr.ErrNotFound)
	}
	return v, nil
}

// Names lists all registered names in lexical order.
func (r *Registry[T]) Names() []string {
	names := make([]string, 0, len(r.entries))
	for name := range r.entries {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}
