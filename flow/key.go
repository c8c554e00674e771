// Package flow implements the flow-key extractor (component D,
// spec.md §4.3) and the exact-match flow table (component E, spec.md
// §4.4.4, §4.4 FLOW semantics).
package flow

import (
	"encoding/binary"
	"hash/fnv"
)

// FragClass classifies an IPv4 buffer's fragmentation state.
type FragClass uint8

const (
	FragNone FragClass = iota
	FragFirst
	FragLater
)

// Key is the fixed-layout, bitwise-comparable flow key (spec.md §3).
// All fields not populated by a given packet's headers are left at
// their zero value. Key is comparable with == and safe as a Go map
// key, which backs Table's exact-match lookup directly.
type Key struct {
	InPort uint32

	EthSrc [6]byte
	EthDst [6]byte

	EtherType uint16
	VLANID    uint16 // lower 12 bits significant
	VLANPrio  uint8  // lower 3 bits significant

	IPSrc   uint32
	IPDst   uint32
	IPProto uint8
	IPFrag  FragClass

	L4Src uint16
	L4Dst uint16
}

// EncodedLen is the fixed number of bytes Encode writes.
const EncodedLen = 4 + 6 + 6 + 2 + 2 + 1 + 4 + 4 + 1 + 1 + 2 + 2

// Encode writes k's fields in a fixed, byte-for-byte layout into the
// front of dst, for the upcall header the exception path prepends to
// a forwarded buffer (spec.md §4.2 "{command, translated in-port, flow
// key}"). dst must have at least EncodedLen bytes.
func (k Key) Encode(dst []byte) {
	binary.BigEndian.PutUint32(dst[0:4], k.InPort)
	copy(dst[4:10], k.EthSrc[:])
	copy(dst[10:16], k.EthDst[:])
	binary.BigEndian.PutUint16(dst[16:18], k.EtherType)
	binary.BigEndian.PutUint16(dst[18:20], k.VLANID)
	dst[20] = k.VLANPrio
	binary.BigEndian.PutUint32(dst[21:25], k.IPSrc)
	binary.BigEndian.PutUint32(dst[25:29], k.IPDst)
	dst[29] = k.IPProto
	dst[30] = byte(k.IPFrag)
	binary.BigEndian.PutUint16(dst[31:33], k.L4Src)
	binary.BigEndian.PutUint16(dst[33:35], k.L4Dst)
}

// Signature computes the 32-bit hash the extractor stores in the
// packet buffer's metadata slot. Grounded on wiresock's
// netlib/ip_session.go IPSession.Hash(), which hashes a session's wire
// fields through fnv.New64a via binary.Write; this truncates the
// 64-bit FNV-1a hash to 32 bits the same way a single rte_hash CRC
// would produce a 32-bit signature in the original.
func (k Key) Signature() uint32 {
	h := fnv.New64a()
	_ = binary.Write(h, binary.BigEndian, k.InPort)
	h.Write(k.EthSrc[:])
	h.Write(k.EthDst[:])
	_ = binary.Write(h, binary.BigEndian, k.EtherType)
	_ = binary.Write(h, binary.BigEndian, k.VLANID)
	h.Write([]byte{k.VLANPrio})
	_ = binary.Write(h, binary.BigEndian, k.IPSrc)
	_ = binary.Write(h, binary.BigEndian, k.IPDst)
	h.Write([]byte{k.IPProto, byte(k.IPFrag)})
	_ = binary.Write(h, binary.BigEndian, k.L4Src)
	_ = binary.Write(h, binary.BigEndian, k.L4Dst)
	return uint32(h.Sum64())
}
