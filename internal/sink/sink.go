// Package sink republishes admitted activity items to external brokers.
package sink

import (
	"context"
	"fmt"
	"sort"
	"sync"

	"github.com/gyaneshwarpardhi/livefeed/internal/activity"
)

// Sink delivers one item to an external system.
type Sink interface {
	Name() string
	Publish(ctx context.Context, it activity.Item) error
	Close() error
}

// Registry maps sink names to sinks.
// It is safe for concurrent reads; Register should only be called at startup.
type Registry struct {
	mu    sync.RWMutex
	sinks map[string]Sink
}

// NewRegistry creates an empty Registry.
func NewRegistry() *Registry {
	return &Registry{sinks: make(map[string]Sink)}
}

// Register adds a sink. Panics on duplicate name to surface misconfiguration early.
func (r *Registry) Register(s Sink) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, exists := r.sinks[s.Name()]; exists {
		panic(fmt.Sprintf("sink registry: duplicate name %q", s.Name()))
	}
	r.sinks[s.Name()] = s
}

// Names returns all registered sink names, sorted.
func (r *Registry) Names() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]string, 0, len(r.sinks))
	for k := range r.sinks {
		out = append(out, k)
	}
	sort.Strings(out)
	return out
}

// All returns the registered sinks ordered by name.
func (r *Registry) All() []Sink {
	names := r.Names()
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]Sink, 0, len(names))
	for _, n := range names {
		out = append(out, r.sinks[n])
	}
	return out
}

// Close closes every sink and returns the first error.
func (r *Registry) Close() error {
	var first error
	for _, s := range r.All() {
		if err := s.Close(); err != nil && first == nil {
			first = fmt.Errorf("close sink %s: %w", s.Name(), err)
		}
	}
	return first
}
