// Package registry tracks the speech backends compiled into the binary.
// Each backend registers a factory from init(), so importing a backend
// package is what makes it selectable by name in config.
package registry

import (
	"fmt"
	"sort"
	"strings"
	"sync"
)

// Factory builds a backend from the flat config map assembled by the
// service (API keys, binary paths, sample rate).
type Factory[T any] func(config map[string]string) (T, error)

// Registry maps backend names to factories. kind labels the registry in
// error messages ("tts", "stt").
type Registry[T any] struct {
	kind string

	mu        sync.RWMutex
	factories map[string]Factory[T]
}

func New[T any](kind string) *Registry[T] {
	return &Registry[T]{
		kind:      kind,
		factories: make(map[string]Factory[T]),
	}
}

// Register installs a factory under name. Registering the same name twice
// is an init-order bug, so it panics rather than silently replacing.
func (r *Registry[T]) Register(name string, factory Factory[T]) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, dup := r.factories[name]; dup {
		panic(fmt.Sprintf("speech: duplicate %s backend %q", r.kind, name))
	}
	r.factories[name] = factory
}

// Create builds the named backend. The error for an unknown name lists
// what is compiled in, since a typo in config is the usual cause.
func (r *Registry[T]) Create(name string, config map[string]string) (T, error) {
	r.mu.RLock()
	factory, ok := r.factories[name]
	r.mu.RUnlock()

	if !ok {
		var zero T
		return zero, fmt.Errorf("no %s backend named %q (compiled in: %s)",
			r.kind, name, strings.Join(r.List(), ", "))
	}
	return factory(config)
}

// List returns the registered backend names, sorted.
func (r *Registry[T]) List() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	names := make([]string, 0, len(r.factories))
	for name := range r.factories {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}
