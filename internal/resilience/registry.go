// SPDX-License-Identifier: MIT

package resilience

import "sync"

// registry holds the process-wide breaker singletons, one per name.
var registry = struct {
	mu       sync.Mutex
	breakers map[string]*CircuitBreaker
}{breakers: make(map[string]*CircuitBreaker)}

// Get returns the breaker registered under name, creating it with defaults
// on first use. Options are applied only on creation.
func Get(name string, opts ...Option) *CircuitBreaker {
	registry.mu.Lock()
	defer registry.mu.Unlock()

	if cb, ok := registry.breakers[name]; ok {
		return cb
	}
	cb := New(name, opts...)
	registry.breakers[name] = cb
	return cb
}

// Lookup returns the breaker registered under name, or nil.
func Lookup(name string) *CircuitBreaker {
	registry.mu.Lock()
	defer registry.mu.Unlock()
	return registry.breakers[name]
}
