package flow

import (
	"net"
	"testing"

	"github.com/google/gopacket"
	"github.com/google/gopacket/layers"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ovdk-go/fastpath/iop"
)

// buildFrame serializes layersList into a wire-format frame the same
// way socksify/main.go:serializePacket re-serializes a modified
// packet: FixLengths computes the length/IHL/data-offset fields,
// ComputeChecksums fills in the transport checksum against whatever
// network layer each transport layer was bound to via
// SetNetworkLayerForChecksum.
func buildFrame(t *testing.T, layersList ...gopacket.SerializableLayer) []byte {
	t.Helper()
	buf := gopacket.NewSerializeBuffer()
	opts := gopacket.SerializeOptions{FixLengths: true, ComputeChecksums: true}
	require.NoError(t, gopacket.SerializeLayers(buf, opts, layersList...))
	return buf.Bytes()
}

func tcpPacket(t *testing.T) []byte {
	eth := &layers.Ethernet{
		SrcMAC:       net.HardwareAddr{0x02, 0x02, 0x02, 0x02, 0x02, 0x02},
		DstMAC:       net.HardwareAddr{0x01, 0x01, 0x01, 0x01, 0x01, 0x01},
		EthernetType: layers.EthernetTypeIPv4,
	}
	ip := &layers.IPv4{
		Version:  4,
		TTL:      64,
		Protocol: layers.IPProtocolTCP,
		SrcIP:    net.IP{0xDE, 0xAD, 0xBE, 0xEF},
		DstIP:    net.IP{0xBA, 0xBE, 0xFA, 0xCE},
	}
	tcp := &layers.TCP{SrcPort: 0x4000, DstPort: 0x4001}
	tcp.SetNetworkLayerForChecksum(ip)
	return buildFrame(t, eth, ip, tcp)
}

func TestExtractTCPFiveTuple(t *testing.T) {
	pkt := iop.NewPacketBuffer()
	pkt.SetData(tcpPacket(t))

	k := Extract(1, pkt)

	assert.EqualValues(t, 1, k.InPort)
	assert.EqualValues(t, 0x0800, k.EtherType)
	assert.EqualValues(t, 6, k.IPProto)
	assert.EqualValues(t, 0xDEADBEEF, k.IPSrc)
	assert.EqualValues(t, 0xBABEFACE, k.IPDst)
	assert.EqualValues(t, 0x4000, k.L4Src)
	assert.EqualValues(t, 0x4001, k.L4Dst)
	assert.Equal(t, FragNone, k.IPFrag)
	assert.EqualValues(t, 0, k.VLANID)
	assert.Equal(t, k.Signature(), pkt.Signature)
}

func vlanUDPPacket(t *testing.T) []byte {
	eth := &layers.Ethernet{
		SrcMAC:       net.HardwareAddr{0x02, 0x02, 0x02, 0x02, 0x02, 0x02},
		DstMAC:       net.HardwareAddr{0x01, 0x01, 0x01, 0x01, 0x01, 0x01},
		EthernetType: layers.EthernetTypeDot1Q,
	}
	vlan := &layers.Dot1Q{VLANIdentifier: 0x00F, Priority: 0, Type: layers.EthernetTypeIPv4}
	ip := &layers.IPv4{
		Version:  4,
		TTL:      64,
		Protocol: layers.IPProtocolUDP,
		SrcIP:    net.IP{10, 0, 0, 1},
		DstIP:    net.IP{10, 0, 0, 2},
	}
	udp := &layers.UDP{SrcPort: 0x4000, DstPort: 0x4001}
	udp.SetNetworkLayerForChecksum(ip)
	return buildFrame(t, eth, vlan, ip, udp)
}

func TestExtractVLANUDP(t *testing.T) {
	pkt := iop.NewPacketBuffer()
	pkt.SetData(vlanUDPPacket(t))

	k := Extract(1, pkt)

	assert.EqualValues(t, 0x0800, k.EtherType)
	assert.EqualValues(t, 0x00F, k.VLANID)
	assert.EqualValues(t, 0, k.VLANPrio)
	assert.EqualValues(t, 0x4000, k.L4Src)
	assert.EqualValues(t, 0x4001, k.L4Dst)
}

func fragmentedTCPPacket(t *testing.T) []byte {
	eth := &layers.Ethernet{
		SrcMAC:       net.HardwareAddr{0x02, 0x02, 0x02, 0x02, 0x02, 0x02},
		DstMAC:       net.HardwareAddr{0x01, 0x01, 0x01, 0x01, 0x01, 0x01},
		EthernetType: layers.EthernetTypeIPv4,
	}
	ip := &layers.IPv4{
		Version:    4,
		TTL:        64,
		Protocol:   layers.IPProtocolTCP,
		SrcIP:      net.IP{0xDE, 0xAD, 0xBE, 0xEF},
		DstIP:      net.IP{0xBA, 0xBE, 0xFA, 0xCE},
		FragOffset: 1, // nonzero offset marks a later fragment
	}
	tcp := &layers.TCP{SrcPort: 0x4000, DstPort: 0x4001}
	tcp.SetNetworkLayerForChecksum(ip)
	return buildFrame(t, eth, ip, tcp)
}

func TestExtractLaterFragmentZeroesL4(t *testing.T) {
	pkt := iop.NewPacketBuffer()
	pkt.SetData(fragmentedTCPPacket(t))

	k := Extract(1, pkt)
	assert.Equal(t, FragLater, k.IPFrag)
	assert.EqualValues(t, 0, k.L4Src)
	assert.EqualValues(t, 0, k.L4Dst)
}

func icmpPacket(t *testing.T) []byte {
	eth := &layers.Ethernet{
		SrcMAC:       net.HardwareAddr{0x02, 0x02, 0x02, 0x02, 0x02, 0x02},
		DstMAC:       net.HardwareAddr{0x01, 0x01, 0x01, 0x01, 0x01, 0x01},
		EthernetType: layers.EthernetTypeIPv4,
	}
	ip := &layers.IPv4{
		Version:  4,
		TTL:      64,
		Protocol: layers.IPProtocolICMPv4,
		SrcIP:    net.IP{10, 0, 0, 1},
		DstIP:    net.IP{10, 0, 0, 2},
	}
	icmp := &layers.ICMPv4{TypeCode: layers.CreateICMPv4TypeCode(0x40, 0x40)}
	return buildFrame(t, eth, ip, icmp)
}

func TestExtractICMPMapsTypeCodeToL4Slots(t *testing.T) {
	pkt := iop.NewPacketBuffer()
	pkt.SetData(icmpPacket(t))

	k := Extract(1, pkt)
	assert.EqualValues(t, 0x40, k.L4Src)
	assert.EqualValues(t, 0x40, k.L4Dst)
}

func TestExtractIsIdempotent(t *testing.T) {
	pkt := iop.NewPacketBuffer()
	pkt.SetData(tcpPacket(t))

	k1 := Extract(1, pkt)
	k2 := Extract(1, pkt)
	require.Equal(t, k1, k2)
}
