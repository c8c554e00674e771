// Package port implements the port registry (component B, spec.md
// §4.5): the process-wide, shared-memory-backed array that maps a
// stable external port id to per-worker reader/writer indices, plus
// the per-worker translation tables the upcall path needs.
package port

// Kind distinguishes the reader/writer adapter a port's descriptor
// should be wired to (component C, spec.md §4.6 and the port-kind
// ranges in §6).
type Kind uint8

const (
	KindInvalid Kind = iota
	KindPhy          // physical NIC queue
	KindSharedMem    // shared-memory ring to a co-located process
	KindParavirt     // para-virtual guest queue
	KindTap          // kernel tap-style interface
	KindBridge       // internal "bridge" port
)

func (k Kind) String() string {
	switch k {
	case KindPhy:
		return "phy"
	case KindSharedMem:
		return "shared-mem"
	case KindParavirt:
		return "paravirt"
	case KindTap:
		return "tap"
	case KindBridge:
		return "bridge"
	default:
		return "invalid"
	}
}

// Port identifier ranges (spec.md §6). MaxTotal is fixed per build,
// not per run, per the spec's own instruction.
const (
	MaxPhy      = 16
	MaxClient   = 64 // shared-memory peers
	MaxParavirt = 32
	MaxTap      = 16
	MaxBridge   = 8

	sharedMemBase = MaxPhy
	paravirtBase  = sharedMemBase + MaxClient
	tapBase       = paravirtBase + MaxParavirt
	bridgeBase    = tapBase + MaxTap

	MaxTotal = bridgeBase + MaxBridge
)

// MaxWorkers bounds the number of pinned pipeline workers a single
// process can run; per-worker arrays in Descriptor and Registry are
// sized to it.
const MaxWorkers = 64

// MaxReadersPerPipeline bounds reader_index_to_external_id (spec.md
// §4.5).
const MaxReadersPerPipeline = 256

// InvalidIndex is the sentinel for "no reader/writer index assigned",
// distinct from any valid index (index 0 is valid) per spec.md §4.5.
const InvalidIndex = ^uint32(0)

// KindOf classifies an external port id by the ranges in spec.md §6.
func KindOf(id uint32) Kind {
	switch {
	case id < MaxPhy:
		return KindPhy
	case id < paravirtBase:
		return KindSharedMem
	case id < tapBase:
		return KindParavirt
	case id < bridgeBase:
		return KindTap
	case id < MaxTotal:
		return KindBridge
	default:
		return KindInvalid
	}
}
