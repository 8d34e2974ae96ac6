// Package health aggregates health reports across loaded modules, grounded
// on health_reporter.go's HealthProvider/HealthAggregator shape.
package health

import (
	"context"
	"sync"
	"time"

	"github.com/lbbs/loader"
)

// Status is a single health observation.
type Status struct {
	Healthy bool
	Message string
	Checked time.Time
}

// Provider is implemented by anything that can report its own health — a
// module's self-token logger-adjacent capability, exposed optionally
// alongside bbsmodule.Handle.
type Provider interface {
	HealthCheck(ctx context.Context) Status
}

// Aggregator polls every registered Provider and keeps the most recent
// Status for each, grounded on health_reporter.go's HealthAggregator.
type Aggregator struct {
	mu        sync.RWMutex
	providers map[string]Provider
	last      map[string]Status
}

// NewAggregator builds an empty Aggregator.
func NewAggregator() *Aggregator {
	return &Aggregator{
		providers: make(map[string]Provider),
		last:      make(map[string]Status),
	}
}

// Register associates a Provider with a module name. Call Unregister from
// the module's Unload entrypoint.
func (a *Aggregator) Register(name string, p Provider) {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.providers[name] = p
}

// Unregister removes a module's Provider and its last known status.
func (a *Aggregator) Unregister(name string) {
	a.mu.Lock()
	defer a.mu.Unlock()
	delete(a.providers, name)
	delete(a.last, name)
}

// Poll runs HealthCheck for every registered provider and records the
// result.
func (a *Aggregator) Poll(ctx context.Context) {
	a.mu.RLock()
	providers := make(map[string]Provider, len(a.providers))
	for k, v := range a.providers {
		providers[k] = v
	}
	a.mu.RUnlock()

	results := make(map[string]Status, len(providers))
	for name, p := range providers {
		results[name] = p.HealthCheck(ctx)
	}

	a.mu.Lock()
	for name, s := range results {
		a.last[name] = s
	}
	a.mu.Unlock()
}

// Snapshot returns the last known status for every module, keyed by name.
func (a *Aggregator) Snapshot() map[string]Status {
	a.mu.RLock()
	defer a.mu.RUnlock()
	out := make(map[string]Status, len(a.last))
	for k, v := range a.last {
		out[k] = v
	}
	return out
}

// Overall reports healthy only if at least one status has been recorded and
// every recorded last status is healthy. Providers not yet polled are not
// counted.
func (a *Aggregator) Overall() bool {
	a.mu.RLock()
	defer a.mu.RUnlock()
	if len(a.last) == 0 {
		return false
	}
	for _, s := range a.last {
		if !s.Healthy {
			return false
		}
	}
	return true
}

// WithLoaderSnapshot reports whether every module the Loader currently
// reports as loaded also has a healthy last status, bridging
// loader.Loader's record states with this package's richer health model.
func WithLoaderSnapshot(l *loader.Loader, a *Aggregator) bool {
	snap := a.Snapshot()
	for _, info := range l.Snapshot() {
		if info.State != loader.StateLoaded {
			continue
		}
		if s, ok := snap[info.Name]; !ok || !s.Healthy {
			return false
		}
	}
	return true
}
