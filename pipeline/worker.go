package pipeline

import (
	"context"
	"fmt"
	"runtime"
	"time"

	"github.com/hashicorp/go-hclog"

	"github.com/ovdk-go/fastpath/control"
	"github.com/ovdk-go/fastpath/iop"
	"github.com/ovdk-go/fastpath/port"
	"github.com/ovdk-go/fastpath/ring"
	"github.com/ovdk-go/fastpath/stats"
)

// MaxPipelineRunsPerControlRun bounds control-plane responsiveness at
// the cost of steady-state throughput (spec.md §4.1 "Scheduling
// contract").
const MaxPipelineRunsPerControlRun = 10

// TeardownPollInterval is how often the worker loop yields between
// checking whether it must acknowledge a pending para-virt device
// teardown — a few hundred microseconds of sleep rather than a tight
// spin (spec.md §5's "busy-waits" language, implemented cooperatively).
const TeardownPollInterval = 200 * time.Microsecond

// DefaultRingCapacity sizes a shared-memory port's four rings when
// the control request doesn't specify one.
const DefaultRingCapacity = 2048

// Worker ties one core's Driver to the shared port.Registry and
// stats.Registry, and implements control.Attacher so the adapter can
// create/destroy reader and writer ports in response to VPORT_NEW/DEL
// without pipeline importing control (control already imports the
// Attacher interface it needs, avoiding a cycle).
type Worker struct {
	ID      uint32
	Driver  *Driver
	Adapter *control.Adapter
	Ports   *port.Registry
	Stats   *stats.Registry
	Slab    *ring.Slab[iop.PacketBuffer]
	Logger  hclog.Logger

	readerByID map[uint32]iop.Reader
	writerByID map[uint32]iop.Writer
	nextIndex  uint32

	// WakeControllerDatagram, if set, is called to notify the
	// controller that this worker has pending upcalls (spec.md §4.1).
	// cmd/fastpathd leaves it nil, so there the wake-up latch is
	// cleared without any notification being sent.
	WakeControllerDatagram func()
}

// NewWorker wires id's Driver to the shared registries.
func NewWorker(id uint32, d *Driver, ports *port.Registry, st *stats.Registry, logger hclog.Logger) *Worker {
	return &Worker{
		ID:         id,
		Driver:     d,
		Ports:      ports,
		Stats:      st,
		Logger:     logger,
		readerByID: make(map[uint32]iop.Reader),
		writerByID: make(map[uint32]iop.Writer),
	}
}

// AttachReader implements control.Attacher for a shared-memory kind
// port (the common case exercised by tests and the shared-memory
// transport); tap/phy attachment is the caller's (cmd/fastpathd's)
// responsibility since it requires a real kernel handle, supplied via
// AttachExistingReader below.
func (w *Worker) AttachReader(id uint32, ringCapacity int, deviceName string) (uint32, error) {
	if ringCapacity <= 0 {
		ringCapacity = DefaultRingCapacity
	}
	counters := w.Stats.For(id, w.ID)
	p := w.newSlabBackedPort(ringCapacity, counters)
	return w.AttachExistingReader(id, p)
}

// AttachExistingReader registers an already-constructed reader (a
// TapPort, a phy adapter, or a SharedMemPort built elsewhere) under
// id, returning the internal reader index the driver now uses.
func (w *Worker) AttachExistingReader(id uint32, r iop.Reader) (uint32, error) {
	idx := w.nextIndex
	w.nextIndex++
	w.readerByID[id] = r
	w.Driver.AddReader(id, r)
	return idx, nil
}

// AttachWriter implements control.Attacher, mirroring AttachReader.
func (w *Worker) AttachWriter(id uint32, ringCapacity int, deviceName string) (uint32, error) {
	if ringCapacity <= 0 {
		ringCapacity = DefaultRingCapacity
	}
	counters := w.Stats.For(id, w.ID)
	p := w.newSlabBackedPort(ringCapacity, counters)
	return w.AttachExistingWriter(id, p)
}

// AttachExistingWriter registers an already-constructed writer under id.
func (w *Worker) AttachExistingWriter(id uint32, wr iop.Writer) (uint32, error) {
	idx := w.nextIndex
	w.nextIndex++
	w.writerByID[id] = wr
	w.Driver.AddWriter(id, wr)
	return idx, nil
}

// DetachReader implements control.Attacher.
func (w *Worker) DetachReader(id uint32) error {
	delete(w.readerByID, id)
	kept := w.Driver.Readers[:0]
	for _, rp := range w.Driver.Readers {
		if rp.ExternalID != id {
			kept = append(kept, rp)
		}
	}
	w.Driver.Readers = kept
	return nil
}

// DetachWriter implements control.Attacher.
func (w *Worker) DetachWriter(id uint32) error {
	delete(w.writerByID, id)
	delete(w.Driver.Writers, id)
	return nil
}

func (w *Worker) newSlabBackedPort(ringCapacity int, counters *stats.Counters) *iop.SharedMemPort {
	if w.Slab == nil {
		panic("pipeline: Worker.Slab must be set before attaching a shared-mem port")
	}
	p := iop.NewSharedMemPort(ringCapacity, w.Slab, counters)
	p.Logger = w.Logger
	return p
}

// Loop runs the worker's scheduling contract (spec.md §4.1, §5): N
// driver runs, one control service call, one teardown-ack poll,
// repeated until ctx is cancelled. It pins the calling goroutine's OS
// thread, best-effort mirroring the original's CPU-pinned lcore.
func (w *Worker) Loop(ctx context.Context) {
	runtime.LockOSThread()
	defer runtime.UnlockOSThread()

	defer func() {
		if r := recover(); r != nil {
			if w.Logger != nil {
				w.Logger.Error("worker pipeline panicked", "worker", w.ID, "panic", fmt.Sprint(r))
			}
			panic(r)
		}
	}()
	// On the way out, whether on cancellation or a panic, flush pending
	// writer bursts and acknowledge any pending teardown.
	defer func() {
		w.Driver.flushWriters()
		w.pollTeardowns()
	}()

	for {
		select {
		case <-ctx.Done():
			return
		default:
		}

		for i := 0; i < MaxPipelineRunsPerControlRun; i++ {
			w.Driver.Run()
		}

		if w.Adapter != nil {
			w.Adapter.Service()
		}
		if w.Driver.WakeRequested() && w.WakeControllerDatagram != nil {
			w.WakeControllerDatagram()
		}

		w.pollTeardowns()

		select {
		case <-ctx.Done():
			return
		case <-time.After(TeardownPollInterval):
		}
	}
}

func (w *Worker) pollTeardowns() {
	if w.Ports == nil {
		return
	}
	for id := range w.readerByID {
		d, err := w.Ports.Get(id)
		if err != nil || !d.PendingTeardown {
			continue
		}
		_ = w.DetachReader(id)
		_ = w.Ports.AckTeardown(id, w.ID)
	}
}
