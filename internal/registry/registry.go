package registry

import (
	"sync"

	"go.uber.org/zap"

	"notify-fanout/internal/channel"
)

// Registry is a process-wide map of channel name to adapter (C5, §4.5). It
// is populated once at worker startup and read concurrently by every job
// handler afterward; it is not safe for concurrent mutation once workers
// are dispatching jobs, the same single-writer-many-readers assumption the
// teacher's internal/worker.Worker makes about its jobChan wiring.
type Registry struct {
	mu       sync.RWMutex
	adapters map[channel.Name]channel.Adapter
	logger   *zap.Logger
}

// New builds an empty registry.
func New(logger *zap.Logger) *Registry {
	return &Registry{
		adapters: make(map[channel.Name]channel.Adapter),
		logger:   logger,
	}
}

// Register binds name to adapter, overwriting and warning if name was
// already bound (§4.5's overwrite-and-log rule rather than an error return).
func (r *Registry) Register(name channel.Name, adapter channel.Adapter) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, exists := r.adapters[name]; exists {
		r.logger.Warn("overwriting already-registered channel adapter", zap.String("channel", string(name)))
	}
	r.adapters[name] = adapter
}

// Get returns the adapter bound to name, or false if none is registered.
func (r *Registry) Get(name channel.Name) (channel.Adapter, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	adapter, ok := r.adapters[name]
	return adapter, ok
}

// Unregister removes name's binding, if any.
func (r *Registry) Unregister(name channel.Name) {
	r.mu.Lock()
	defer r.mu.Unlock()
	delete(r.adapters, name)
}

// Names lists every currently-registered channel name.
func (r *Registry) Names() []channel.Name {
	r.mu.RLock()
	defer r.mu.RUnlock()

	names := make([]channel.Name, 0, len(r.adapters))
	for name := range r.adapters {
		names = append(names, name)
	}
	return names
}

// Clear removes every registered adapter; it is used by tests.
func (r *Registry) Clear() {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.adapters = make(map[channel.Name]channel.Adapter)
}
