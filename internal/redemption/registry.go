// internal/redemption/registry.go
package redemption

import (
	"context"
	"sync"
	"time"

	"oraclebackend/internal/logger"
)

const (
	sweepInterval = 10 * time.Minute
	maxFlowIdle   = 45 * time.Minute // abandoned mid-selection
	maxFlowDone   = 5 * time.Minute  // completed, confirmation already shown
)

// Registry tracks the live redemption flows addressed by the HTTP layer.
// Flows live only in memory; when a flow is removed it is closed, which also
// discards any settlement result still in flight.
type Registry struct {
	mu       sync.RWMutex
	flows    map[string]*Flow
	onRemove func(id string)
}

// NewRegistry creates an empty flow registry.
func NewRegistry() *Registry {
	return &Registry{flows: make(map[string]*Flow)}
}

// Add registers a flow under its id.
func (r *Registry) Add(f *Flow) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.flows[f.ID] = f
}

// Get returns the flow for id, if it is still live.
func (r *Registry) Get(id string) (*Flow, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	f, ok := r.flows[id]
	return f, ok
}

// OnRemove registers a hook called for every flow leaving the registry,
// whether by explicit removal or a janitor sweep. Used to release per-flow
// resources held outside the registry.
func (r *Registry) OnRemove(fn func(id string)) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.onRemove = fn
}

// Remove closes and unregisters a flow.
func (r *Registry) Remove(id string) {
	r.mu.Lock()
	f, ok := r.flows[id]
	if ok {
		delete(r.flows, id)
	}
	hook := r.onRemove
	r.mu.Unlock()

	if !ok {
		return
	}
	f.Close()
	if hook != nil {
		hook(id)
	}
}

// Len returns the number of live flows.
func (r *Registry) Len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.flows)
}

// Stats summarizes the registry for the info endpoint.
func (r *Registry) Stats() map[string]int {
	r.mu.RLock()
	defer r.mu.RUnlock()

	stats := map[string]int{"total": len(r.flows)}
	for _, f := range r.flows {
		stats[string(f.State())]++
	}
	return stats
}

// Sweep removes abandoned and long-finished flows and returns how many were
// dropped. Idle cutoffs differ: a completed flow can go quickly, a flow
// someone may still be selecting in gets a longer grace period. Flows in
// processing are never swept — the settlement result decides their fate.
func (r *Registry) Sweep(now time.Time) int {
	r.mu.RLock()
	stale := make([]string, 0)
	for id, f := range r.flows {
		idle := now.Sub(f.LastActivity())
		switch f.State() {
		case StateProcessing:
			continue
		case StateCompleted:
			if idle > maxFlowDone {
				stale = append(stale, id)
			}
		default:
			if idle > maxFlowIdle {
				stale = append(stale, id)
			}
		}
	}
	r.mu.RUnlock()

	for _, id := range stale {
		r.Remove(id)
	}
	return len(stale)
}

// StartJanitor runs periodic sweeps until ctx is cancelled.
func (r *Registry) StartJanitor(ctx context.Context) {
	go func() {
		logger.LogInfo("Flow janitor started (sweep every %v)", sweepInterval)
		ticker := time.NewTicker(sweepInterval)
		defer ticker.Stop()

		for {
			select {
			case <-ctx.Done():
				logger.LogInfo("Flow janitor stopped")
				return
			case now := <-ticker.C:
				if n := r.Sweep(now); n > 0 {
					logger.LogInfo("Flow janitor removed %d stale flows (%d live)", n, r.Len())
				}
			}
		}
	}()
}
