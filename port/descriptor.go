package port

// MaxNameSize bounds a port's human-readable name, mirroring the
// fixed name[32] field of the control-wire vport body (spec.md §6).
const MaxNameSize = 32

// IOParams carries the kind-specific parameters a reader or writer
// adapter needs to attach (ring names for a shared-mem port, an
// interface name for a tap port, a queue index for a phy port, ...).
// The core treats it opaquely; only the iop package kind adapters
// interpret the fields relevant to their Kind.
type IOParams struct {
	RingCapacity int    // rx/tx/free/alloc ring capacity for shared-mem ports
	DeviceName   string // tap/paravirt interface name
	QueueIndex   uint32 // phy NIC queue index
}

// Descriptor is one entry of the process-wide port registry (spec.md
// §3 "Port descriptor", §4.5).
type Descriptor struct {
	ID   uint32
	Name [MaxNameSize]byte
	Kind Kind

	ReaderParams IOParams
	WriterParams [MaxWorkers]IOParams

	ReaderIndex uint32               // internal reader-port index, InvalidIndex if unset
	WriterIndex [MaxWorkers]uint32   // internal writer-port index per worker
	ReaderOwner uint32               // which worker owns this port's reader side
	Flags       uint32               // VPORT_IN / VPORT_OUT, see Flags* below

	PendingTeardown bool // para-virt device disconnect requested (§5)
	TeardownAcked   [MaxWorkers]bool
}

// VPORT flags, spec.md §4.4.3.
const (
	FlagIn  uint32 = 1 << 0
	FlagOut uint32 = 1 << 1
)

// NameString returns the descriptor's name as a Go string, trimmed at
// the first NUL.
func (d *Descriptor) NameString() string {
	n := 0
	for n < len(d.Name) && d.Name[n] != 0 {
		n++
	}
	return string(d.Name[:n])
}

// SetName copies name into the fixed-size Name field, truncating if
// necessary, matching ovdk_vport_set_port_name's strncpy-with-room-
// for-a-terminator behavior.
func (d *Descriptor) SetName(name string) {
	d.Name = [MaxNameSize]byte{}
	n := copy(d.Name[:MaxNameSize-1], name)
	_ = n
}

func newDescriptor(id uint32) Descriptor {
	d := Descriptor{
		ID:          id,
		Kind:        KindOf(id),
		ReaderIndex: InvalidIndex,
	}
	for i := range d.WriterIndex {
		d.WriterIndex[i] = InvalidIndex
	}
	return d
}
