// Package pipeline implements the per-worker pipeline driver
// (component G, spec.md §4.1): reader ports → key-extract → table
// lookup → action execution → writer ports, with periodic flush and
// controller wake-up.
package pipeline

import (
	"github.com/hashicorp/go-hclog"

	"github.com/ovdk-go/fastpath/action"
	"github.com/ovdk-go/fastpath/flow"
	"github.com/ovdk-go/fastpath/iop"
)

// Scheduling constants, spec.md §4.1.
const (
	BurstSize     = 64
	FlushInterval = 32
)

// ReaderPort pairs an external port id with its reader adapter, the
// unit the driver round-robins over.
type ReaderPort struct {
	ExternalID uint32
	Reader     iop.Reader
}

// WriterPort pairs an external port id with its writer adapter.
type WriterPort struct {
	ExternalID uint32
	Writer     iop.Writer
}

// MissHandler is called once per non-empty miss burst (spec.md
// §4.4.1); the pipeline driver does not itself know how to upcall —
// that requires the interpreter's Upcall callback — so it delegates.
type MissHandler func(misses []*iop.PacketBuffer, inPort uint32)

// Driver holds one worker's fast-path state: the main flow table, a
// stub exception table for ports with no real classification, the
// interpreter, the set of reader/writer ports, an iteration counter,
// and the wake-up latch (spec.md §4.1).
type Driver struct {
	Table    *flow.Table
	Stub     *flow.StubTable
	Interp   *action.Interpreter
	NowCycle func() uint64

	Readers []ReaderPort
	Writers map[uint32]iop.Writer

	OnMiss MissHandler

	iteration  int
	wakeLatch  bool
	Logger     hclog.Logger
	pendingOut map[uint32][]*iop.PacketBuffer
}

// NewDriver builds a driver over table/stub with the given interpreter.
func NewDriver(table *flow.Table, stub *flow.StubTable, interp *action.Interpreter) *Driver {
	d := &Driver{
		Table:      table,
		Stub:       stub,
		Interp:     interp,
		Writers:    make(map[uint32]iop.Writer),
		pendingOut: make(map[uint32][]*iop.PacketBuffer),
	}
	d.Interp.Emit = d.enqueueOutput
	return d
}

// AddReader registers a reader port the driver round-robins over.
func (d *Driver) AddReader(externalID uint32, r iop.Reader) {
	d.Readers = append(d.Readers, ReaderPort{ExternalID: externalID, Reader: r})
}

// AddWriter registers the writer adapter for externalID.
func (d *Driver) AddWriter(externalID uint32, w iop.Writer) {
	d.Writers[externalID] = w
}

func (d *Driver) enqueueOutput(port uint32, buf *iop.PacketBuffer) {
	d.pendingOut[port] = append(d.pendingOut[port], buf)
}

// Run performs one framework step (spec.md §4.1 "Driver loop"): for
// every reader port in round-robin order, dequeue a bounded burst,
// extract keys, look up the table, dispatch hit/miss, then — every
// FlushInterval iterations — flush pending writer bursts. Run does not
// consult the wake-up latch; the caller reads and clears it with
// WakeRequested.
func (d *Driver) Run() {
	var burst [BurstSize]*iop.PacketBuffer

	for _, rp := range d.Readers {
		n := rp.Reader.ReadBurst(burst[:])
		if n == 0 {
			continue
		}
		d.processBurst(rp.ExternalID, burst[:n])
	}

	d.iteration++
	if d.iteration >= FlushInterval {
		d.iteration = 0
		d.flushWriters()
	}
}

func (d *Driver) processBurst(inPort uint32, pkts []*iop.PacketBuffer) {
	keys := flow.ExtractBurst(inPort, pkts)
	for _, pkt := range pkts {
		pkt.InPort = inPort
	}

	var misses []*iop.PacketBuffer
	for i, pkt := range pkts {
		entry, hit := d.Table.Lookup(keys[i])
		if !hit {
			misses = append(misses, pkt)
			continue
		}
		nowCycles := uint64(0)
		if d.NowCycle != nil {
			nowCycles = d.NowCycle()
		}
		res := d.Interp.Execute(pkt, entry.Actions)
		if !res.Dropped {
			entry.UpdateHit(len(pkt.Data), nowCycles, tcpFlagsOf(pkt))
		}
		if res.HasFirstOutput {
			d.enqueueOutput(res.FirstOutputPort, pkt)
		}
	}

	if len(misses) > 0 {
		if d.OnMiss != nil {
			d.OnMiss(misses, inPort)
		}
		d.wakeLatch = true
	}
}

// tcpFlagsOf reads the TCP flags byte directly out of the buffer's
// current header bytes — the interpreter's mutation actions run
// in-place and do not re-extract the key, so this is a fresh,
// intentionally cheap re-read rather than a stale cached value.
func tcpFlagsOf(pkt *iop.PacketBuffer) uint8 {
	data := pkt.Data
	if len(data) < 14+20+14 {
		return 0
	}
	off := 14
	etherType := uint16(data[12])<<8 | uint16(data[13])
	if etherType == 0x8100 {
		if len(data) < off+4 {
			return 0
		}
		off += 4
	}
	if len(data) < off+20 {
		return 0
	}
	ihl := int(data[off]&0x0F) * 4
	if ihl < 20 {
		ihl = 20
	}
	if data[off+9] != 6 { // TCP
		return 0
	}
	tcpOff := off + ihl
	if len(data) < tcpOff+14 {
		return 0
	}
	return data[tcpOff+13] & 0x3F
}

func (d *Driver) flushWriters() {
	for port, bufs := range d.pendingOut {
		w, ok := d.Writers[port]
		if !ok || len(bufs) == 0 {
			continue
		}
		w.WriteBurst(bufs)
		d.pendingOut[port] = bufs[:0]
	}
}

// WakeRequested reports and clears the wake-up latch; the worker loop
// calls this after each batch of MaxPipelineRunsPerControlRun runs
// and, if true, calls its WakeControllerDatagram hook when one is set
// (spec.md §4.1).
func (d *Driver) WakeRequested() bool {
	if !d.wakeLatch {
		return false
	}
	d.wakeLatch = false
	return true
}
