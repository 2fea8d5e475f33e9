package arbitrage

import (
	"fmt"
	"sort"
	"sync"

	"github.com/alanyoungcy/polyarb/internal/domain"
)

// Registry maps combination methods to their Combiner.
type Registry struct {
	combiners map[domain.Method]Combiner
	mu        sync.RWMutex
}

// NewRegistry returns an empty registry. Call Register to add combiners.
func NewRegistry() *Registry {
	return &Registry{combiners: make(map[domain.Method]Combiner)}
}

// DefaultRegistry returns a registry with the all_no and balanced methods.
func DefaultRegistry() *Registry {
	r := NewRegistry()
	r.Register(AllNo{})
	r.Register(Balanced{})
	return r
}

// Register adds c under its method, replacing any previous combiner.
func (r *Registry) Register(c Combiner) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.combiners[c.Method()] = c
}

// Get returns the combiner for m.
func (r *Registry) Get(m domain.Method) (Combiner, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	c, ok := r.combiners[m]
	if !ok {
		return nil, fmt.Errorf("arbitrage: method %q not registered", m)
	}
	return c, nil
}

// List returns all registered methods, sorted.
func (r *Registry) List() []domain.Method {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]domain.Method, 0, len(r.combiners))
	for m := range r.combiners {
		out = append(out, m)
	}
	sort.Slice(out, func(i, j int) bool { return out[i] < out[j] })
	return out
}
