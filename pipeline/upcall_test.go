package pipeline

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ovdk-go/fastpath/action"
	"github.com/ovdk-go/fastpath/flow"
	"github.com/ovdk-go/fastpath/iop"
	"github.com/ovdk-go/fastpath/ring"
	"github.com/ovdk-go/fastpath/stats"
)

func TestPrependUpcallHeaderEncodesCommandPortAndKey(t *testing.T) {
	buf := iop.NewPacketBuffer()
	buf.SetData(tcpFrame(1234, 80, 4))
	key := flow.Extract(7, buf)

	ok := PrependUpcallHeader(buf, action.UpcallMiss, 7, key)
	require.True(t, ok)

	head := buf.Data[:UpcallHeaderLen]
	assert.Equal(t, byte(action.UpcallMiss), head[0])

	var decoded flow.Key
	decoded.InPort = uint32(head[1])<<24 | uint32(head[2])<<16 | uint32(head[3])<<8 | uint32(head[4])
	assert.Equal(t, uint32(7), decoded.InPort)
	assert.Equal(t, key.Signature(), flowKeyFromHeader(head[5:]).Signature())
}

// flowKeyFromHeader decodes exactly what Key.Encode wrote, letting the
// test assert round-trip fidelity without duplicating Encode's layout.
func flowKeyFromHeader(b []byte) flow.Key {
	var k flow.Key
	k.InPort = uint32(b[0])<<24 | uint32(b[1])<<16 | uint32(b[2])<<8 | uint32(b[3])
	copy(k.EthSrc[:], b[4:10])
	copy(k.EthDst[:], b[10:16])
	k.EtherType = uint16(b[16])<<8 | uint16(b[17])
	k.VLANID = uint16(b[18])<<8 | uint16(b[19])
	k.VLANPrio = b[20]
	k.IPSrc = uint32(b[21])<<24 | uint32(b[22])<<16 | uint32(b[23])<<8 | uint32(b[24])
	k.IPDst = uint32(b[25])<<24 | uint32(b[26])<<16 | uint32(b[27])<<8 | uint32(b[28])
	k.IPProto = b[29]
	k.IPFrag = flow.FragClass(b[30])
	k.L4Src = uint16(b[31])<<8 | uint16(b[32])
	k.L4Dst = uint16(b[33])<<8 | uint16(b[34])
	return k
}

func TestPrependUpcallHeaderFailsWhenHeadroomExhausted(t *testing.T) {
	buf := iop.NewPacketBuffer()
	buf.SetData(tcpFrame(1, 2, 0))
	// Burn the reserved headroom so the header has nowhere to go.
	_, ok := buf.Prepend(iop.HeadroomForUpcall)
	require.True(t, ok)

	ok = PrependUpcallHeader(buf, action.UpcallMiss, 1, flow.Key{})
	assert.False(t, ok)
}

// TestMissBurstUpcallsOntoExceptionWriterMatchesP8 wires interp.Upcall
// the way cmd/fastpathd does and drives a miss burst of k packets
// through it, asserting the exception writer ends up with exactly k
// upcall-prepended buffers when headroom never runs out (spec.md P8).
func TestMissBurstUpcallsOntoExceptionWriterMatchesP8(t *testing.T) {
	slab := ring.NewSlab[iop.PacketBuffer](32, iop.NewPacketBuffer)
	counters := &stats.Counters{}
	exceptionWriter := iop.NewSharedMemPort(32, slab, counters)

	interp := &action.Interpreter{}
	interp.Upcall = func(buf *iop.PacketBuffer, cmd action.UpcallCommand) bool {
		key := flow.Extract(buf.InPort, buf)
		if !PrependUpcallHeader(buf, cmd, buf.InPort, key) {
			counters.TXDrop.Add(1)
			slab.Put(buf)
			return false
		}
		return exceptionWriter.WriteBurst([]*iop.PacketBuffer{buf}) == 1
	}

	table := flow.NewTable()
	driver := NewDriver(table, flow.NewStubTable(), interp)
	driver.OnMiss = func(misses []*iop.PacketBuffer, inPort uint32) {
		for _, pkt := range misses {
			interp.Upcall(pkt, action.UpcallMiss)
		}
	}

	const k = 5
	var burst []*iop.PacketBuffer
	for i := 0; i < k; i++ {
		b := iop.NewPacketBuffer()
		b.SetData(tcpFrame(uint16(1000+i), 443, 4))
		burst = append(burst, b)
	}
	reader := &fakeReader{bursts: [][]*iop.PacketBuffer{burst}}
	driver.AddReader(9, reader)

	driver.Run()

	assert.Equal(t, k, exceptionWriter.TX.Len())
	assert.Equal(t, uint64(0), counters.TXDrop.Load())
	assert.True(t, driver.WakeRequested())
}
