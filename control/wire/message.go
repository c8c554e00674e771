// Package wire defines the control-channel records (component H
// support, spec.md §4.7, §6): request/reply messages passed by pointer
// over a per-worker request ring and reply ring. The records are Go
// values, not a byte encoding (the packet body carries its frame as a
// slice), and no separate control-message pool or free/alloc ring
// pair is implemented.
package wire

// Family discriminates the message taxonomy (spec.md §4.4.2).
type Family uint8

const (
	FamilyVPort Family = iota + 1
	FamilyFlow
	FamilyPacket

	// FamilyUnknown marks replies to requests of any other family. It
	// is a reserved non-zero value outside 1–3, so a zero-initialized
	// Message is never mistaken for an UNKNOWN-family reply.
	FamilyUnknown Family = 0xFF
)

// Command values, meaning depends on Family.
type Command uint8

const (
	CmdNew Command = iota
	CmdDel
	CmdGet
	CmdAction // PACKET family only
)

// K_MAX bounds an action list attached to a flow or packet body
// (spec.md §6 body union).
const KMax = 16

// NameSize bounds a vport body's name field.
const NameSize = 32

// VPortBody is the VPORT family's request/reply payload.
type VPortBody struct {
	ID    uint32
	Flags uint32
	Name  [NameSize]byte
	Stats StatsBody
}

// StatsBody is the wire encoding of a port's traffic counters.
type StatsBody struct {
	RX, TX, RXDrop, TXDrop, Overrun uint64
}

// FlowStatsWire is the wire encoding of a flow entry's per-flow
// counters (spec.md §3 "Flow entry"), distinct from a port's
// StatsBody.
type FlowStatsWire struct {
	PacketCount uint64
	ByteCount   uint64
	UsedWallMs  uint64
	TCPFlags    uint8
}

// FlowActionWire is one fixed-layout action slot in a flow or packet
// body's action list.
type FlowActionWire struct {
	Kind    uint8
	Command uint8
	Port    uint32
	TCI     uint16
	EthSrc  [6]byte
	EthDst  [6]byte
	IPSrc   uint32
	IPDst   uint32
	IPTOS   uint8
	IPTTL   uint8
	L4Src   uint16
	L4Dst   uint16
}

// FlowKeyWire mirrors flow.Key's fields in a fixed, wire-stable
// layout (the control package owns the mapping to/from flow.Key so
// this package has no dependency on flow).
type FlowKeyWire struct {
	InPort    uint32
	EthSrc    [6]byte
	EthDst    [6]byte
	EtherType uint16
	VLANID    uint16
	VLANPrio  uint8
	IPSrc     uint32
	IPDst     uint32
	IPProto   uint8
	IPFrag    uint8
	L4Src     uint16
	L4Dst     uint16
}

// FlowBody is the FLOW family's request/reply payload (spec.md
// §4.4.4).
type FlowBody struct {
	Key        FlowKeyWire
	Replace    bool
	Create     bool
	Clear      bool
	Actions    [KMax]FlowActionWire
	NumActions uint8
	FlowHandle uint64
	Stats      FlowStatsWire
	// Found reports whether FLOW_DEL/FLOW_NEW's REPLACE step matched
	// an existing entry (spec.md P4: "subsequent FLOW_DEL on the same
	// key returns with key_found=false").
	Found bool
}

// PacketBody is the PACKET family's ACTION request payload (spec.md
// §4.4.5): an action list plus the raw frame to inject.
type PacketBody struct {
	Actions    [KMax]FlowActionWire
	NumActions uint8
	PacketLen  uint32
	Packet     []byte
}

// Message is one control-channel record (spec.md §6): family,
// command, an errno-class result code, and exactly one of the family
// bodies populated.
type Message struct {
	Family  Family
	Command Command
	Error   int32

	VPort  VPortBody
	Flow   FlowBody
	Packet PacketBody
}

// NewReply builds the reply shell for req, echoing its family and
// command and defaulting Error to 0; callers set Error and the body
// before enqueuing it on the reply ring.
func NewReply(req *Message) *Message {
	return &Message{Family: req.Family, Command: req.Command}
}
