// Package iop implements the per-kind reader/writer port adapters
// (component C, spec.md §4.6): the shared-memory ring transport to
// sibling processes, a kernel tap-style writer, and the packet buffer
// type they move.
package iop

import "fmt"

// MaxFrame bounds a single-segment packet buffer, matching a
// jumbo-capable mbuf data room (9000 bytes of payload rounded up,
// plus headroom for a prepended upcall header).
const MaxFrame = 9216

// HeadroomForUpcall is the space TO-CONTROLLER prepend needs at the
// front of Data's backing array (spec.md §4.2's "prepend fails" edge
// case; see action.Interpreter).
const HeadroomForUpcall = 64

// PacketBuffer is the Go stand-in for the framework's scatter-unit
// mbuf (spec.md §3): a fixed backing array plus a length-bounded
// slice view over it, alongside the metadata scratch fields the core
// reads at fixed offsets in the original (signature, flow key,
// in-port index). Ownership is total and single-threaded: a buffer
// belongs to exactly one component at a time, handed off by passing
// the pointer and never touching it again (invariant I5).
type PacketBuffer struct {
	backing [MaxFrame]byte
	headOff int // current start of Data within backing, to allow prepend

	Data []byte // the live view: backing[headOff : headOff+len(Data)]

	InPort    uint32
	Signature uint32
}

// The flow key itself (flow.Key) is deliberately not a field here:
// flow.Extract returns it alongside the buffer in the pipeline's
// per-burst slice rather than stamping it into the buffer, which
// would otherwise make iop import flow and flow import iop.

// Reset clears a buffer for reuse from the slab, matching the
// framework's rte_pktmbuf_reset semantics.
func (b *PacketBuffer) Reset() {
	b.headOff = HeadroomForUpcall
	b.Data = b.backing[b.headOff:b.headOff]
	b.InPort = 0
	b.Signature = 0
}

// NewPacketBuffer allocates and resets a buffer; used as the slab's
// constructor function.
func NewPacketBuffer() *PacketBuffer {
	b := &PacketBuffer{}
	b.Reset()
	return b
}

// SetData loads payload bytes into the buffer starting right after
// the reserved headroom, truncating if payload exceeds capacity.
func (b *PacketBuffer) SetData(payload []byte) {
	room := len(b.backing) - HeadroomForUpcall
	n := len(payload)
	if n > room {
		n = room
	}
	b.headOff = HeadroomForUpcall
	copy(b.backing[b.headOff:], payload[:n])
	b.Data = b.backing[b.headOff : b.headOff+n]
}

// Prepend grows Data backward by n bytes, returning the new leading
// slice to write into, or false if there isn't enough headroom —
// the failure case spec.md §4.2 requires TO-CONTROLLER/MISS upcall
// construction to detect and handle by dropping the buffer.
func (b *PacketBuffer) Prepend(n int) ([]byte, bool) {
	if b.headOff < n {
		return nil, false
	}
	b.headOff -= n
	b.Data = b.backing[b.headOff : b.headOff+len(b.Data)+n]
	return b.Data[:n], true
}

// Clone makes a true, independent copy of the buffer's current data
// window and metadata — not an indirect/refcounted reference — per
// the clone_packet semantics spec.md §9 calls out explicitly.
func (b *PacketBuffer) Clone() *PacketBuffer {
	c := &PacketBuffer{
		headOff:   b.headOff,
		InPort:    b.InPort,
		Signature: b.Signature,
	}
	copy(c.backing[c.headOff:], b.Data)
	c.Data = c.backing[c.headOff : c.headOff+len(b.Data)]
	return c
}

func (b *PacketBuffer) String() string {
	return fmt.Sprintf("PacketBuffer{inport=%d len=%d sig=%#x}", b.InPort, len(b.Data), b.Signature)
}
