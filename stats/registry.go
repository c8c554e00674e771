package stats

import "sync"

// Registry holds one Counters per (worker, external port id), plus
// the two global pairs spec.md §4.8 calls out: data-plane and
// control-plane traffic that isn't attributable to a single port.
type Registry struct {
	mu      sync.RWMutex
	byPort  map[uint32]map[uint32]*Counters // portID -> worker -> counters
	DataPlane    Counters
	ControlPlane Counters
}

// NewRegistry creates an empty counters registry.
func NewRegistry() *Registry {
	return &Registry{byPort: make(map[uint32]map[uint32]*Counters)}
}

// For returns the Counters for (portID, worker), creating it on first
// use. The returned pointer is stable for the registry's lifetime, so
// callers on the fast path can cache it and avoid a map lookup per
// burst.
func (r *Registry) For(portID, worker uint32) *Counters {
	r.mu.RLock()
	byWorker, ok := r.byPort[portID]
	if ok {
		c, ok := byWorker[worker]
		r.mu.RUnlock()
		if ok {
			return c
		}
	} else {
		r.mu.RUnlock()
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	byWorker, ok = r.byPort[portID]
	if !ok {
		byWorker = make(map[uint32]*Counters)
		r.byPort[portID] = byWorker
	}
	c, ok := byWorker[worker]
	if !ok {
		c = &Counters{}
		byWorker[worker] = c
	}
	return c
}

// Sum folds every worker's counters for portID into one snapshot,
// unlocked with respect to concurrent increments on those counters
// (spec.md §4.8: "reader may observe transient inconsistency but
// counts are monotonic"). The registry's own map lock only protects
// the map structure, not the counters it points to.
func (r *Registry) Sum(portID uint32) Snapshot {
	r.mu.RLock()
	byWorker := r.byPort[portID]
	workers := make([]*Counters, 0, len(byWorker))
	for _, c := range byWorker {
		workers = append(workers, c)
	}
	r.mu.RUnlock()

	var total Snapshot
	for _, c := range workers {
		total = total.Add(c.Load())
	}
	return total
}

// Ports returns every external port id the registry has counters for.
func (r *Registry) Ports() []uint32 {
	r.mu.RLock()
	defer r.mu.RUnlock()
	ids := make([]uint32, 0, len(r.byPort))
	for id := range r.byPort {
		ids = append(ids, id)
	}
	return ids
}
