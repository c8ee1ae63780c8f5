package engine

import (
	"fmt"
	"sync"
)

// Registry maps a discrete kind to its handler.
//
// It is the single point of registration for both the log-entry kinds and
// the broadcast message kinds; dispatch loops only ever call Lookup. Looking
// up an unregistered kind is an error, never a silent no-op.
//
// Thread-safety: Registry is safe for concurrent use.
type Registry[K ~string, H any] struct {
	mu       sync.RWMutex
	handlers map[K]H
	order    []K
}

// NewRegistry creates an empty registry.
func NewRegistry[K ~string, H any]() *Registry[K, H] {
	return &Registry[K, H]{handlers: make(map[K]H)}
}

// Register binds kind to h.
// Panics on an empty kind or a duplicate registration: both are wiring bugs.
func (r *Registry[K, H]) Register(kind K, h H) {
	if kind == "" {
		panic("engine: Register with empty kind")
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	if _, dup := r.handlers[kind]; dup {
		panic(fmt.Sprintf("engine: handler for %q registered twice", kind))
	}
	r.handlers[kind] = h
	r.order = append(r.order, kind)
}

// Lookup returns the handler for kind, or an UNHANDLED_KIND ReplayError.
func (r *Registry[K, H]) Lookup(kind K) (H, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	h, ok := r.handlers[kind]
	if !ok {
		var zero H
		return zero, NewUnhandledKindError(string(kind))
	}
	return h, nil
}

// Has reports whether kind has a handler.
func (r *Registry[K, H]) Has(kind K) bool {
	r.mu.RLock()
	defer r.mu.RUnlock()
	_, ok := r.handlers[kind]
	return ok
}

// Kinds returns registered kinds in registration order.
func (r *Registry[K, H]) Kinds() []K {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]K, len(r.order))
	copy(out, r.order)
	return out
}

// Missing returns the kinds in want that have no handler.
// Used to check a registry covers every kind a build knows about.
func (r *Registry[K, H]) Missing(want []K) []K {
	r.mu.RLock()
	defer r.mu.RUnlock()
	var missing []K
	for _, k := range want {
		if _, ok := r.handlers[k]; !ok {
			missing = append(missing, k)
		}
	}
	return missing
}
