package provider

import (
	"fmt"
	"sort"
	"sync"
)

// Registry holds endpoints by host model name, e.g. "ETFSearch".
type Registry struct {
	mu        sync.RWMutex
	endpoints map[string]Endpoint
}

func NewRegistry() *Registry {
	return &Registry{endpoints: make(map[string]Endpoint)}
}

// Register adds e. Names are unique.
func (r *Registry) Register(e Endpoint) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, dup := r.endpoints[e.Name()]; dup {
		return fmt.Errorf("endpoint %q already registered", e.Name())
	}
	r.endpoints[e.Name()] = e
	return nil
}

// MustRegister is Register that panics on a duplicate name.
func (r *Registry) MustRegister(endpoints ...Endpoint) {
	for _, e := range endpoints {
		if err := r.Register(e); err != nil {
			panic(err)
		}
	}
}

func (r *Registry) Get(name string) (Endpoint, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	e, ok := r.endpoints[name]
	return e, ok
}

// Names returns the registered model names in sorted order.
func (r *Registry) Names() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	names := make([]string, 0, len(r.endpoints))
	for n := range r.endpoints {
		names = append(names, n)
	}
	sort.Strings(names)
	return names
}
