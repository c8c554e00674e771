// Package stats implements the per-worker, per-port counter model
// (component I, spec.md §4.8): worker-local atomic increments, summed
// unlocked across workers on read.
package stats

import "sync/atomic"

// Counters holds one port's traffic counters for a single worker.
// Every field is written only by the worker that owns the port, so
// plain atomics (rather than a mutex) are enough to make concurrent
// reads from the summation path safe.
type Counters struct {
	RX      atomic.Uint64
	TX      atomic.Uint64
	RXDrop  atomic.Uint64
	TXDrop  atomic.Uint64
	Overrun atomic.Uint64
}

// Snapshot is a point-in-time copy of Counters suitable for replying
// to a GET request or exporting to Prometheus.
type Snapshot struct {
	RX, TX, RXDrop, TXDrop, Overrun uint64
}

// Load takes an unlocked snapshot of c. Callers may observe a
// transient mix of old/new values across fields, but every field is
// individually monotonic, matching spec.md §4.8's stated guarantee.
func (c *Counters) Load() Snapshot {
	return Snapshot{
		RX:      c.RX.Load(),
		TX:      c.TX.Load(),
		RXDrop:  c.RXDrop.Load(),
		TXDrop:  c.TXDrop.Load(),
		Overrun: c.Overrun.Load(),
	}
}

// Add sums two snapshots, used when folding per-worker counters
// together for a cross-worker total.
func (s Snapshot) Add(o Snapshot) Snapshot {
	return Snapshot{
		RX:      s.RX + o.RX,
		TX:      s.TX + o.TX,
		RXDrop:  s.RXDrop + o.RXDrop,
		TXDrop:  s.TXDrop + o.TXDrop,
		Overrun: s.Overrun + o.Overrun,
	}
}
