package strategy

import (
	"fmt"
	"log/slog"
	"sort"
	"sync"

	"github.com/alanyoungcy/polyarb/internal/domain"
)

// Registry holds the active strategy set. Reload swaps the whole set at once,
// so readers always see one consistent file's worth of strategies. It is safe
// for concurrent use.
type Registry struct {
	path   string
	logger *slog.Logger

	mu         sync.RWMutex
	strategies []domain.Strategy
	byName     map[string]domain.Strategy
}

// NewRegistry loads path once. A load failure is fatal to the caller.
func NewRegistry(path string, logger *slog.Logger) (*Registry, error) {
	if logger == nil {
		logger = slog.Default()
	}
	r := &Registry{path: path, logger: logger.With(slog.String("component", "strategies"))}
	if err := r.Reload(); err != nil {
		return nil, err
	}
	return r, nil
}

// NewStaticRegistry wraps an in-memory set. Reload is a no-op.
func NewStaticRegistry(strategies []domain.Strategy) *Registry {
	r := &Registry{logger: slog.Default()}
	r.set(strategies)
	return r
}

// Reload re-reads the strategies file. On error the previous set stays
// active.
func (r *Registry) Reload() error {
	if r.path == "" {
		return nil
	}
	loaded, err := LoadFile(r.path)
	if err != nil {
		return err
	}
	r.set(loaded)
	r.logger.Debug("strategies loaded", slog.String("path", r.path), slog.Int("count", len(loaded)))
	return nil
}

func (r *Registry) set(strategies []domain.Strategy) {
	byName := make(map[string]domain.Strategy, len(strategies))
	for _, s := range strategies {
		byName[s.Name] = s
	}
	r.mu.Lock()
	r.strategies = append([]domain.Strategy(nil), strategies...)
	r.byName = byName
	r.mu.Unlock()
}

// All returns the active strategies in file order.
func (r *Registry) All() []domain.Strategy {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return append([]domain.Strategy(nil), r.strategies...)
}

// Get returns a strategy by name.
func (r *Registry) Get(name string) (domain.Strategy, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	s, ok := r.byName[name]
	if !ok {
		return domain.Strategy{}, fmt.Errorf("strategy %q: %w", name, domain.ErrNotFound)
	}
	return s, nil
}

// Names returns the active strategy names, sorted.
func (r *Registry) Names() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	names := make([]string, 0, len(r.byName))
	for n := range r.byName {
		names = append(names, n)
	}
	sort.Strings(names)
	return names
}

// Legs returns every distinct leg across the active strategies, in first-seen
// order.
func (r *Registry) Legs() []domain.TradeLeg {
	r.mu.RLock()
	defer r.mu.RUnlock()
	seen := make(map[string]bool)
	var out []domain.TradeLeg
	for _, s := range r.strategies {
		for _, l := range s.Legs() {
			key := l.MarketSlug + "\x00" + domain.NormalizeOutcome(l.Outcome)
			if seen[key] {
				continue
			}
			seen[key] = true
			out = append(out, l.TradeLeg)
		}
	}
	return out
}
