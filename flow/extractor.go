package flow

import (
	"encoding/binary"

	"github.com/ovdk-go/fastpath/iop"
)

// Well-known EtherTypes and IPv4 flag/mask constants, spec.md §4.3.
const (
	etherTypeVLAN = 0x8100
	etherTypeIPv4 = 0x0800

	vlanIDMask    = 0x0FFF
	vlanPrioShift = 13

	ipv4FlagMF     = 0x2000 // bit 13 of the combined flags+fragment-offset field
	ipv4FragOffset = 0x1FFF // bits 0-12

	ipProtoTCP  = 6
	ipProtoUDP  = 17
	ipProtoICMP = 1
)

const (
	ethHeaderLen  = 14
	vlanHeaderLen = 4 // tag(2)+tci(2), the original eth_type field is reused as "inner type"
	icmpHeaderLen = 8
)

// Extract parses pkt's current Data window into a flow.Key, following
// ovdk_flow.c:flow_key_extract byte-for-byte: explicit big-endian
// reads at each header's fixed offset, not a struct cast, matching the
// "do not assume natural alignment" design note (spec.md §9). It also
// stamps pkt.Signature with Key.Signature(). Returns the extracted
// key; callers that need to keep per-burst keys alongside buffers
// (pipeline.Driver) collect the return values into a parallel slice.
func Extract(inPort uint32, pkt *iop.PacketBuffer) Key {
	var k Key
	k.InPort = inPort

	data := pkt.Data
	if len(data) < ethHeaderLen {
		pkt.Signature = k.Signature()
		return k
	}

	copy(k.EthDst[:], data[0:6])
	copy(k.EthSrc[:], data[6:12])
	etherType := binary.BigEndian.Uint16(data[12:14])
	off := ethHeaderLen

	if etherType == etherTypeVLAN {
		if len(data) < off+vlanHeaderLen {
			pkt.Signature = k.Signature()
			return k
		}
		tci := binary.BigEndian.Uint16(data[off : off+2])
		k.VLANID = tci & vlanIDMask
		k.VLANPrio = uint8(tci >> vlanPrioShift)
		etherType = binary.BigEndian.Uint16(data[off+2 : off+4])
		off += vlanHeaderLen
	}
	k.EtherType = etherType

	if etherType != etherTypeIPv4 {
		pkt.Signature = k.Signature()
		return k
	}
	if len(data) < off+20 {
		pkt.Signature = k.Signature()
		return k
	}

	verIHL := data[off]
	ihl := int(verIHL&0x0F) * 4
	if ihl < 20 {
		ihl = 20
	}
	flagsFrag := binary.BigEndian.Uint16(data[off+6 : off+8])
	k.IPSrc = binary.BigEndian.Uint32(data[off+12 : off+16])
	k.IPDst = binary.BigEndian.Uint32(data[off+16 : off+20])
	k.IPProto = data[off+9]

	if flagsFrag&ipv4FragOffset != 0 {
		k.IPFrag = FragLater
		pkt.Signature = k.Signature()
		return k
	}
	if flagsFrag&ipv4FlagMF != 0 {
		k.IPFrag = FragFirst
	} else {
		k.IPFrag = FragNone
	}

	off += ihl

	switch k.IPProto {
	case ipProtoTCP, ipProtoUDP:
		if len(data) >= off+4 {
			k.L4Src = binary.BigEndian.Uint16(data[off : off+2])
			k.L4Dst = binary.BigEndian.Uint16(data[off+2 : off+4])
		}
	case ipProtoICMP:
		if len(data) >= off+icmpHeaderLen {
			k.L4Src = uint16(data[off])   // icmp type
			k.L4Dst = uint16(data[off+1]) // icmp code
		}
	}

	pkt.Signature = k.Signature()
	return k
}

// ExtractBurst runs Extract over every buffer in pkts, in order,
// tagging each with inPort. The PREFETCH_OFFSET=3 staggered-prefetch
// structure of the original has no Go equivalent (no manual cache
// control), but the burst-oriented signature is kept so the calling
// convention and batching survive unchanged.
func ExtractBurst(inPort uint32, pkts []*iop.PacketBuffer) []Key {
	keys := make([]Key, len(pkts))
	for i, pkt := range pkts {
		keys[i] = Extract(inPort, pkt)
	}
	return keys
}
