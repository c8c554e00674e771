package iop

import (
	"time"

	"github.com/hashicorp/go-hclog"

	"github.com/ovdk-go/fastpath/ring"
	"github.com/ovdk-go/fastpath/stats"
)

// Per-burst obligation sizes, spec.md §4.6.
const (
	BFree  = 256
	BAlloc = 64
)

// TxRetries is the writer back-pressure retry count, spec.md §4.6.
const TxRetries = 10

// SharedMemPort implements the four-ring (rx/tx/free/alloc) transport
// to a sibling process that must never touch the slab allocator
// directly (spec.md §4.6). It is the Go-native reincarnation of
// rte_port_ivshm, modelled the way wiresock models a port as a pair
// of bounded channels with drop/retry counters layered on top
// (driver/packet_filter_queued_multi_interface.go).
type SharedMemPort struct {
	RX, TX, Free, Alloc *ring.Buffer[*PacketBuffer]

	slab    *ring.Slab[PacketBuffer]
	stats   *stats.Counters
	retryFn func() // overridable in tests; defaults to a short sleep

	// Logger, if set, receives one warning each time a WriteBurst call
	// runs all TxRetries attempts without draining the ring at all
	// (spec.md §4.6: "a warning is emitted only after R consecutive
	// full retries"). Left nil by NewSharedMemPort; cmd/fastpathd wires
	// it per port.
	Logger hclog.Logger
}

// NewSharedMemPort builds a shared-memory port backed by four rings
// of the given capacity and a slab used to satisfy the alloc
// obligation and absorb the free obligation.
func NewSharedMemPort(ringCapacity int, slab *ring.Slab[PacketBuffer], counters *stats.Counters) *SharedMemPort {
	return &SharedMemPort{
		RX:    ring.NewBuffer[*PacketBuffer](ringCapacity),
		TX:    ring.NewBuffer[*PacketBuffer](ringCapacity),
		Free:  ring.NewBuffer[*PacketBuffer](ringCapacity),
		Alloc: ring.NewBuffer[*PacketBuffer](ringCapacity),
		slab:  slab,
		stats: counters,
	}
}

// ReadBurst performs the three datapath obligations in order (spec.md
// §4.6: drain free, top up alloc, dequeue rx), returning how many
// buffers were placed in dst.
func (p *SharedMemPort) ReadBurst(dst []*PacketBuffer) int {
	p.drainFree()
	p.topUpAlloc()

	n := p.RX.PopN(dst)
	if n > 0 {
		p.stats.RX.Add(uint64(n))
	}
	return n
}

func (p *SharedMemPort) drainFree() {
	var batch [BFree]*PacketBuffer
	n := p.Free.PopN(batch[:])
	for i := 0; i < n; i++ {
		p.slab.Put(batch[i])
	}
}

func (p *SharedMemPort) topUpAlloc() {
	free := p.Alloc.Free()
	if free > BAlloc {
		free = BAlloc
	}
	for i := 0; i < free; i++ {
		buf := p.slab.Get()
		if buf == nil {
			p.stats.Overrun.Add(1)
			break
		}
		buf.Reset()
		if !p.Alloc.Push(buf) {
			p.slab.Put(buf)
			break
		}
	}
}

// WriteBurst batches src onto tx, retrying up to TxRetries times with
// a short delay when the ring is full, then frees and drop-counts
// whatever remains (spec.md §4.6's writer back-pressure contract).
func (p *SharedMemPort) WriteBurst(src []*PacketBuffer) int {
	accepted := 0
	remaining := src
	fullRetries := 0

	for attempt := 0; attempt <= TxRetries && len(remaining) > 0; attempt++ {
		n := p.TX.PushN(remaining)
		accepted += n
		remaining = remaining[n:]
		if len(remaining) == 0 {
			break
		}
		if attempt > 0 {
			if n == 0 {
				fullRetries++
			} else {
				fullRetries = 0
			}
		}
		if attempt < TxRetries {
			p.sleep()
		}
	}

	if len(remaining) > 0 {
		if fullRetries >= TxRetries && p.Logger != nil {
			p.Logger.Warn("writer ring full after consecutive full retries", "retries", TxRetries, "dropped", len(remaining))
		}
		for _, buf := range remaining {
			p.slab.Put(buf)
		}
		p.stats.TXDrop.Add(uint64(len(remaining)))
	}
	if accepted > 0 {
		p.stats.TX.Add(uint64(accepted))
	}
	return accepted
}

func (p *SharedMemPort) sleep() {
	if p.retryFn != nil {
		p.retryFn()
		return
	}
	shortRetryDelay()
}

const shortRetryDelayDuration = 50 * time.Microsecond

func shortRetryDelay() {
	time.Sleep(shortRetryDelayDuration)
}

