package pipeline

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ovdk-go/fastpath/action"
	"github.com/ovdk-go/fastpath/flow"
	"github.com/ovdk-go/fastpath/iop"
)

type fakeReader struct {
	bursts [][]*iop.PacketBuffer
	idx    int
}

func (f *fakeReader) ReadBurst(dst []*iop.PacketBuffer) int {
	if f.idx >= len(f.bursts) {
		return 0
	}
	burst := f.bursts[f.idx]
	f.idx++
	n := copy(dst, burst)
	return n
}

type fakeWriter struct {
	written []*iop.PacketBuffer
}

func (f *fakeWriter) WriteBurst(src []*iop.PacketBuffer) int {
	f.written = append(f.written, src...)
	return len(src)
}

func tcpFrame(srcPort, dstPort uint16, payloadLen int) []byte {
	data := make([]byte, 14+20+20+payloadLen)
	copy(data[0:6], []byte{0xAA, 0xAA, 0xAA, 0xAA, 0xAA, 0x02})
	copy(data[6:12], []byte{0xAA, 0xAA, 0xAA, 0xAA, 0xAA, 0x01})
	data[12], data[13] = 0x08, 0x00 // IPv4

	ipOff := 14
	data[ipOff] = 0x45
	totalLen := 20 + 20 + payloadLen
	data[ipOff+2] = byte(totalLen >> 8)
	data[ipOff+3] = byte(totalLen)
	data[ipOff+9] = 6 // TCP
	copy(data[ipOff+12:ipOff+16], []byte{10, 0, 0, 1})
	copy(data[ipOff+16:ipOff+20], []byte{10, 0, 0, 2})

	tcpOff := ipOff + 20
	data[tcpOff], data[tcpOff+1] = byte(srcPort>>8), byte(srcPort)
	data[tcpOff+2], data[tcpOff+3] = byte(dstPort>>8), byte(dstPort)
	data[tcpOff+13] = 0x02 // SYN

	return data
}

func newTestBuffer(data []byte) *iop.PacketBuffer {
	b := iop.NewPacketBuffer()
	b.SetData(data)
	return b
}

func TestDriverHitPathOutputsToSecondPortAndClonesForFirst(t *testing.T) {
	table := flow.NewTable()
	interp := &action.Interpreter{}
	driver := NewDriver(table, flow.NewStubTable(), interp)

	frame := tcpFrame(1111, 80, 10)
	key := flow.Extract(1, newTestBuffer(frame))
	table.Insert(key, []action.Action{action.NewOutput(2), action.NewOutput(3)}, flow.Stats{})

	reader := &fakeReader{bursts: [][]*iop.PacketBuffer{{newTestBuffer(frame)}}}
	w2, w3 := &fakeWriter{}, &fakeWriter{}
	driver.AddReader(1, reader)
	driver.AddWriter(2, w2)
	driver.AddWriter(3, w3)

	for i := 0; i < FlushInterval; i++ {
		driver.Run()
	}

	assert.Len(t, w2.written, 1)
	assert.Len(t, w3.written, 1)
	assert.NotSame(t, w2.written[0], w3.written[0])
	assert.Equal(t, w2.written[0].Data, w3.written[0].Data)

	entry, ok := table.Lookup(key)
	require.True(t, ok)
	assert.Equal(t, uint64(1), entry.Stats.PacketCount)
	assert.Equal(t, uint64(len(frame)), entry.Stats.ByteCount)
}

func TestDriverMissBurstInvokesOnMissAndSetsWakeLatch(t *testing.T) {
	table := flow.NewTable()
	interp := &action.Interpreter{}
	driver := NewDriver(table, flow.NewStubTable(), interp)

	frame := tcpFrame(2222, 443, 4)
	var missed []*iop.PacketBuffer
	driver.OnMiss = func(misses []*iop.PacketBuffer, inPort uint32) {
		missed = append(missed, misses...)
	}

	reader := &fakeReader{bursts: [][]*iop.PacketBuffer{{newTestBuffer(frame)}}}
	driver.AddReader(1, reader)

	driver.Run()

	assert.Len(t, missed, 1)
	assert.True(t, driver.WakeRequested())
	assert.False(t, driver.WakeRequested()) // cleared after read
}

func TestDriverDropActionProducesNoOutputAndNoStatsUpdate(t *testing.T) {
	table := flow.NewTable()
	interp := &action.Interpreter{}
	driver := NewDriver(table, flow.NewStubTable(), interp)

	frame := tcpFrame(3333, 53, 0)
	key := flow.Extract(1, newTestBuffer(frame))
	table.Insert(key, []action.Action{action.NewDrop()}, flow.Stats{})

	reader := &fakeReader{bursts: [][]*iop.PacketBuffer{{newTestBuffer(frame)}}}
	driver.AddReader(1, reader)

	driver.Run()

	assert.Empty(t, driver.pendingOut)
	entry, ok := table.Lookup(key)
	require.True(t, ok)
	assert.Equal(t, uint64(0), entry.Stats.PacketCount)
}
