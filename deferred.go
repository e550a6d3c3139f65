package auth

import (
	"fmt"
	"sync"
)

// Deferred is a placeholder for a value only available once configuration
// is loaded. It is bound exactly once.
type Deferred[T any] struct {
	mu    sync.RWMutex
	name  string
	value T
	bound bool
}

// NewDeferred returns an unbound placeholder
func NewDeferred[T any](name string) *Deferred[T] {
	return &Deferred[T]{name: name}
}

// Bind sets the value. Binding twice is an error.
func (d *Deferred[T]) Bind(value T) error {
	d.mu.Lock()
	defer d.mu.Unlock()

	if d.bound {
		return fmt.Errorf("deferred %q already bound", d.name)
	}
	d.value = value
	d.bound = true
	return nil
}

// IsBound reports whether Bind was called
func (d *Deferred[T]) IsBound() bool {
	d.mu.RLock()
	defer d.mu.RUnlock()
	return d.bound
}

// Get returns the bound value and panics when unbound
func (d *Deferred[T]) Get() T {
	d.mu.RLock()
	defer d.mu.RUnlock()

	if !d.bound {
		panic(fmt.Sprintf("deferred %q used before it was bound", d.name))
	}
	return d.value
}
