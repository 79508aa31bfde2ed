// Package registry provides a named lookup container with default tracking.
//
// One Registry is created per strategy family (secret generators, token hashers,
// revocation strategies, rotation strategies, audit drivers) so the engine resolves
// implementations by name without knowing the concrete types.
package registry

import (
	"fmt"
	"sort"
	"sync"

	apperrors "github.com/allisson/apikeys/internal/errors"
)

// ErrNoDefault indicates that a registry has no default implementation registered.
var ErrNoDefault = apperrors.Wrap(apperrors.ErrInvalidInput, "no default strategy registered")

// ErrNotRegistered is the sentinel matched by NotRegisteredError.
var ErrNotRegistered = apperrors.Wrap(apperrors.ErrInvalidInput, "strategy not registered")

// NotRegisteredError reports a lookup of an unknown name.
type NotRegisteredError struct {
	Kind string
	Name string
}

func (e *NotRegisteredError) Error() string {
	return fmt.Sprintf("%s %q is not registered", e.Kind, e.Name)
}

// Is lets errors.Is match ErrNotRegistered and its wrapped sentinel.
func (e *NotRegisteredError) Is(target error) bool {
	return target == ErrNotRegistered || target == apperrors.ErrInvalidInput
}

// Registry maps names to implementations of T. It is safe for concurrent use.
type Registry[T any] struct {
	kind        string
	mu          sync.RWMutex
	items       map[string]T
	defaultName string
}

// New creates an empty registry. kind names the strategy family in error messages.
func New[T any](kind string) *Registry[T] {
	return &Registry[T]{
		kind:  kind,
		items: make(map[string]T),
	}
}

// Kind returns the strategy family name.
func (r *Registry[T]) Kind() string {
	return r.kind
}

// Register adds or replaces the implementation stored under name.
// The first registered name becomes the default unless SetDefault is called.
func (r *Registry[T]) Register(name string, impl T) {
	r.mu.Lock()
	defer r.mu.Unlock()

	r.items[name] = impl
	if r.defaultName == "" {
		r.defaultName = name
	}
}

// Get returns the implementation registered under name.
func (r *Registry[T]) Get(name string) (T, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	impl, ok := r.items[name]
	if !ok {
		var zero T
		return zero, &NotRegisteredError{Kind: r.kind, Name: name}
	}
	return impl, nil
}

// Has reports whether name is registered.
func (r *Registry[T]) Has(name string) bool {
	r.mu.RLock()
	defer r.mu.RUnlock()

	_, ok := r.items[name]
	return ok
}

// Default returns the default implementation.
func (r *Registry[T]) Default() (T, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	var zero T
	if r.defaultName == "" {
		return zero, fmt.Errorf("%s: %w", r.kind, ErrNoDefault)
	}
	impl, ok := r.items[r.defaultName]
	if !ok {
		return zero, fmt.Errorf("%s: %w", r.kind, ErrNoDefault)
	}
	return impl, nil
}

// DefaultName returns the name of the default implementation, or "" when unset.
func (r *Registry[T]) DefaultName() string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.defaultName
}

// SetDefault makes name the default. The name must already be registered.
func (r *Registry[T]) SetDefault(name string) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, ok := r.items[name]; !ok {
		return &NotRegisteredError{Kind: r.kind, Name: name}
	}
	r.defaultName = name
	return nil
}

// Resolve returns the implementation for name, or the default when name is empty.
func (r *Registry[T]) Resolve(name string) (T, error) {
	if name == "" {
		return r.Default()
	}
	return r.Get(name)
}

// All returns the registered names in sorted order.
func (r *Registry[T]) All() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()

	names := make([]string, 0, len(r.items))
	for name := range r.items {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}
