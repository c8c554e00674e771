package action

import (
	"encoding/binary"

	"github.com/ovdk-go/fastpath/iop"
)

// headerOffsets locates the start of the IPv4/L4 headers within a
// buffer's current Data window by walking the same Ethernet/VLAN
// structure the extractor parses, without rebuilding a flow.Key —
// spec.md §4.2 is explicit that "mutation does not re-extract the
// key". ipProto is 0 and l4Off is -1 if the buffer is not IPv4.
type headerOffsets struct {
	vlanOff  int // -1 if no VLAN tag present
	ipOff    int // -1 if not IPv4
	l4Off    int // -1 if ipOff is -1 or the IPv4 header plus 4 L4 bytes don't fit
	ipProto  uint8
}

const (
	etherTypeVLAN = 0x8100
	etherTypeIPv4 = 0x0800
)

func locateHeaders(data []byte) headerOffsets {
	h := headerOffsets{vlanOff: -1, ipOff: -1, l4Off: -1}
	if len(data) < 14 {
		return h
	}
	etherType := binary.BigEndian.Uint16(data[12:14])
	off := 14
	if etherType == etherTypeVLAN {
		if len(data) < off+4 {
			return h
		}
		h.vlanOff = off
		etherType = binary.BigEndian.Uint16(data[off+2 : off+4])
		off += 4
	}
	if etherType != etherTypeIPv4 || len(data) < off+20 {
		return h
	}
	h.ipOff = off
	ihl := int(data[off]&0x0F) * 4
	if ihl < 20 {
		ihl = 20
	}
	h.ipProto = data[off+9]
	if len(data) >= off+ihl+4 {
		h.l4Off = off + ihl
	}
	return h
}

// applySetEthernet overwrites the destination/source MAC fields in
// place.
func applySetEthernet(pkt *iop.PacketBuffer, a Action) {
	if len(pkt.Data) < 12 {
		return
	}
	copy(pkt.Data[0:6], a.EthDst[:])
	copy(pkt.Data[6:12], a.EthSrc[:])
}

// applySetIPv4 overwrites src/dst/tos/ttl of the IPv4 header in place.
func applySetIPv4(pkt *iop.PacketBuffer, a Action) {
	h := locateHeaders(pkt.Data)
	if h.ipOff < 0 {
		return
	}
	data := pkt.Data
	data[h.ipOff+1] = a.IPTOS
	data[h.ipOff+8] = a.IPTTL
	binary.BigEndian.PutUint32(data[h.ipOff+12:h.ipOff+16], a.IPSrc)
	binary.BigEndian.PutUint32(data[h.ipOff+16:h.ipOff+20], a.IPDst)
}

// applySetTCP overwrites the TCP source/destination ports in place.
func applySetTCP(pkt *iop.PacketBuffer, a Action) {
	h := locateHeaders(pkt.Data)
	if h.l4Off < 0 || h.ipProto != 6 {
		return
	}
	binary.BigEndian.PutUint16(pkt.Data[h.l4Off:h.l4Off+2], a.L4Src)
	binary.BigEndian.PutUint16(pkt.Data[h.l4Off+2:h.l4Off+4], a.L4Dst)
}

// applySetUDP overwrites the UDP source/destination ports in place.
func applySetUDP(pkt *iop.PacketBuffer, a Action) {
	h := locateHeaders(pkt.Data)
	if h.l4Off < 0 || h.ipProto != 17 {
		return
	}
	binary.BigEndian.PutUint16(pkt.Data[h.l4Off:h.l4Off+2], a.L4Src)
	binary.BigEndian.PutUint16(pkt.Data[h.l4Off+2:h.l4Off+4], a.L4Dst)
}

// applyPopVLAN removes a VLAN tag by splicing the 4 tag bytes out of
// Data in place.
func applyPopVLAN(pkt *iop.PacketBuffer) {
	h := locateHeaders(pkt.Data)
	if h.vlanOff < 0 {
		return
	}
	data := pkt.Data
	// The inner EtherType sits right after the 4-byte tag; it belongs
	// back in the original EtherType slot two bytes before vlanOff, not
	// in the TCI slot at vlanOff itself.
	innerType := data[h.vlanOff+2 : h.vlanOff+4]
	copy(data[h.vlanOff-2:h.vlanOff], innerType)
	copy(data[h.vlanOff:], data[h.vlanOff+4:])
	pkt.Data = data[:len(data)-4]
}

// applyPushVLAN inserts a 4-byte 802.1Q tag with the given TCI right
// after the Ethernet addresses, using the buffer's reserved headroom
// to grow the frame (mirroring how the original grows the mbuf's data
// length in place).
func applyPushVLAN(pkt *iop.PacketBuffer, tci uint16) {
	if len(pkt.Data) < 14 {
		return
	}
	head, ok := pkt.Prepend(4)
	if !ok {
		return
	}
	// Shift the 12 MAC bytes left by 4 (into the new headroom) so the
	// tag lands between the addresses and the EtherType field.
	data := pkt.Data
	copy(data, data[4:16])
	binary.BigEndian.PutUint16(data[12:14], etherTypeVLAN)
	binary.BigEndian.PutUint16(data[14:16], tci)
	_ = head
}
