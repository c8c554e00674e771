package port

import (
	"encoding/binary"
	"errors"
	"fmt"
	"sync"

	"golang.org/x/sys/unix"
)

// Registry is the single process-wide array of port descriptors,
// sized MaxTotal (spec.md §4.5). The authoritative Descriptor array
// lives in regular process memory guarded by a mutex — Go structs
// containing slices/strings cannot safely live inside a raw mmap
// region — but a compact, fixed-layout mirror of each descriptor's
// name and kind is kept in a shared mmap region (sharedRecordSize
// bytes per port: id, kind, name) so a sibling process mapping the
// same region can read port names without a control-channel round
// trip. Ring names are not stored there; they follow from the ids via
// the templates in names.go.
type Registry struct {
	mu          sync.RWMutex
	descriptors [MaxTotal]Descriptor

	shared []byte // mmap'd region, sharedRecordSize*MaxTotal bytes

	// reader_index_to_external_id[worker][reader-index]
	readerToExternal [MaxWorkers][MaxReadersPerPipeline]uint32
	// external_id_to_writer_index[id][worker] is just Descriptor.WriterIndex,
	// kept here only as a fast lookup mirror is unnecessary; see WriterIndex.
}

const sharedRecordSize = 4 + 1 + MaxNameSize // id + kind + name

// NewRegistry allocates and initializes a Registry, mmap'ing the
// shared name/kind mirror region. Pass "" for path to use an
// anonymous (process-private but still mmap'd) mapping, e.g. in
// tests; a real deployment passes a path under a tmpfs/hugetlbfs
// mount so sibling processes can map the same file.
func NewRegistry(path string) (*Registry, error) {
	r := &Registry{}
	for i := range r.descriptors {
		r.descriptors[i] = newDescriptor(uint32(i))
	}
	for w := range r.readerToExternal {
		for i := range r.readerToExternal[w] {
			r.readerToExternal[w][i] = InvalidIndex
		}
	}

	size := sharedRecordSize * MaxTotal
	flags := unix.MAP_SHARED
	fd := -1
	if path == "" {
		flags = unix.MAP_SHARED | unix.MAP_ANONYMOUS
	} else {
		f, err := unix.Open(path, unix.O_RDWR|unix.O_CREAT, 0o600)
		if err != nil {
			return nil, fmt.Errorf("port: open shared region %q: %w", path, err)
		}
		if err := unix.Ftruncate(f, int64(size)); err != nil {
			unix.Close(f)
			return nil, fmt.Errorf("port: truncate shared region: %w", err)
		}
		fd = f
	}
	mem, err := unix.Mmap(fd, 0, size, unix.PROT_READ|unix.PROT_WRITE, flags)
	if fd != -1 {
		unix.Close(fd)
	}
	if err != nil {
		return nil, fmt.Errorf("port: mmap shared region: %w", err)
	}
	r.shared = mem

	for i := range r.descriptors {
		r.writeShared(uint32(i))
	}

	return r, nil
}

// Close unmaps the shared region.
func (r *Registry) Close() error {
	if r.shared == nil {
		return nil
	}
	err := unix.Munmap(r.shared)
	r.shared = nil
	return err
}

func (r *Registry) writeShared(id uint32) {
	if r.shared == nil {
		return
	}
	off := int(id) * sharedRecordSize
	binary.LittleEndian.PutUint32(r.shared[off:], id)
	r.shared[off+4] = byte(r.descriptors[id].Kind)
	copy(r.shared[off+5:off+5+MaxNameSize], r.descriptors[id].Name[:])
}

// Validate resolves the open question noted in spec.md §9: the
// original source checks the physical-port-id bound, then uses an
// "else" that reads as binding to the wrong "if". This implements the
// intended two-armed check explicitly: a phy-range id must have its
// portmask bit set; any other in-range id is accepted; anything
// >= MaxTotal is ENODEV.
func (r *Registry) Validate(id uint32, portmask uint64) error {
	if id < MaxPhy {
		if portmask&(1<<id) == 0 {
			return unix.ENODEV
		}
		return nil
	}
	if id < MaxTotal {
		return nil
	}
	return unix.ENODEV
}

var errPortInUse = errors.New("port: descriptor already bound")

// AddPort installs the reader and/or writer side of id on worker,
// per VPORT_NEW semantics (spec.md §4.4.3). flags is FlagIn/FlagOut
// (may be OR'd). readerIndex/writerIndex are the internal indices the
// pipeline driver assigned when attaching the port.
func (r *Registry) AddPort(id uint32, worker uint32, flags uint32, name string, readerIndex, writerIndex uint32) error {
	if id >= MaxTotal {
		return unix.ENODEV
	}
	r.mu.Lock()
	defer r.mu.Unlock()

	d := &r.descriptors[id]
	if name != "" {
		d.SetName(name)
	}
	d.Flags |= flags

	if flags&FlagIn != 0 {
		if d.ReaderIndex != InvalidIndex && d.ReaderOwner != worker {
			return errPortInUse
		}
		d.ReaderIndex = readerIndex
		d.ReaderOwner = worker
		if int(readerIndex) < MaxReadersPerPipeline {
			r.readerToExternal[worker][readerIndex] = id
		}
	}
	if flags&FlagOut != 0 {
		d.WriterIndex[worker] = writerIndex
	}

	r.writeShared(id)
	return nil
}

// RemovePort implements VPORT_DEL (spec.md §4.4.3). Per the resolved
// open question in spec.md §9, the reader index is cleared on
// removal, but the writer index intentionally lingers (mirroring
// ovdk_pipeline_port_out_del's "nothing to do" comment for out ports
// in a framework with no port-out delete primitive) — callers must
// ensure no in-flight writer references remain before reusing the
// slot.
func (r *Registry) RemovePort(id uint32, worker uint32, flags uint32) error {
	if id >= MaxTotal {
		return unix.ENODEV
	}
	r.mu.Lock()
	defer r.mu.Unlock()

	d := &r.descriptors[id]
	d.Flags &^= flags

	if flags&FlagIn != 0 && d.ReaderOwner == worker {
		if d.ReaderIndex != InvalidIndex && int(d.ReaderIndex) < MaxReadersPerPipeline {
			r.readerToExternal[worker][d.ReaderIndex] = InvalidIndex
		}
		d.ReaderIndex = InvalidIndex
	}
	// d.WriterIndex[worker] is deliberately left as-is for FlagOut; see doc comment.

	r.writeShared(id)
	return nil
}

// Get returns a copy of the descriptor for id.
func (r *Registry) Get(id uint32) (Descriptor, error) {
	if id >= MaxTotal {
		return Descriptor{}, unix.ENODEV
	}
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.descriptors[id], nil
}

// ExternalIDForReader translates a worker-local reader index back to
// its stable external port id, used by the upcall path so a forwarded
// packet's in_port is meaningful to the controller (spec.md §4.5,
// preserving invariant I4 — no worker-local state leaks to the
// controller).
func (r *Registry) ExternalIDForReader(worker uint32, readerIndex uint32) (uint32, bool) {
	if int(worker) >= MaxWorkers || int(readerIndex) >= MaxReadersPerPipeline {
		return 0, false
	}
	r.mu.RLock()
	defer r.mu.RUnlock()
	id := r.readerToExternal[worker][readerIndex]
	return id, id != InvalidIndex
}

// WriterIndexFor returns the internal writer index for id on worker,
// or (InvalidIndex, false) if unset.
func (r *Registry) WriterIndexFor(id uint32, worker uint32) (uint32, bool) {
	if id >= MaxTotal || int(worker) >= MaxWorkers {
		return InvalidIndex, false
	}
	r.mu.RLock()
	defer r.mu.RUnlock()
	idx := r.descriptors[id].WriterIndex[worker]
	return idx, idx != InvalidIndex
}

// MarkTeardownRequested sets the pending-teardown flag for a
// para-virt port (spec.md §5). The control thread calls this when a
// guest disconnects.
func (r *Registry) MarkTeardownRequested(id uint32) error {
	if id >= MaxTotal {
		return unix.ENODEV
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	d := &r.descriptors[id]
	d.PendingTeardown = true
	for i := range d.TeardownAcked {
		d.TeardownAcked[i] = false
	}
	return nil
}

// AckTeardown is called by a worker at the top of its loop once it
// has observed a pending teardown and stopped touching the port's
// memory; the control thread busy-waits on AllTeardownsAcked.
func (r *Registry) AckTeardown(id uint32, worker uint32) error {
	if id >= MaxTotal || int(worker) >= MaxWorkers {
		return unix.ENODEV
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	r.descriptors[id].TeardownAcked[worker] = true
	return nil
}

// AllTeardownsAcked reports whether every worker with a stake in id
// (readers/writers it owns) has acknowledged a pending teardown.
func (r *Registry) AllTeardownsAcked(id uint32, activeWorkers []uint32) bool {
	if id >= MaxTotal {
		return true
	}
	r.mu.RLock()
	defer r.mu.RUnlock()
	d := &r.descriptors[id]
	if !d.PendingTeardown {
		return true
	}
	for _, w := range activeWorkers {
		if int(w) >= MaxWorkers || !d.TeardownAcked[w] {
			return false
		}
	}
	return true
}
