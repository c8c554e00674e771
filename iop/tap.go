package iop

import (
	"sync"
	"time"

	"github.com/ovdk-go/fastpath/stats"
)

// KernelWriter is the narrow interface a kernel tap-style device
// exposes for a single frame submission; satisfied by an *os.File in
// production and a fake in tests.
type KernelWriter interface {
	Write(p []byte) (int, error)
}

// KernelReader is the read counterpart of KernelWriter.
type KernelReader interface {
	Read(p []byte) (int, error)
}

// TapPort wraps a kernel tap-style interface (spec.md §5: "kernel-tap
// ports are the one exception ... the writer holds a per-port mutex
// across the kernel submit call, retrying up to R times on transient
// failure"). Grounded on wiresock's single-writer NDIS adapter path
// and on the pack's packet_source_darwin.go pattern of serializing
// submissions to one kernel handle behind a mutex.
type TapPort struct {
	mu     sync.Mutex
	dev    KernelWriter
	reader KernelReader
	stats  *stats.Counters
	slab   interface{ Put(*PacketBuffer) }
}

// NewTapPort wraps dev/reader for a tap-kind port.
func NewTapPort(dev KernelWriter, reader KernelReader, counters *stats.Counters, slab interface{ Put(*PacketBuffer) }) *TapPort {
	return &TapPort{dev: dev, reader: reader, stats: counters, slab: slab}
}

// ReadBurst reads up to len(dst) frames from the tap device, one
// read per frame, into the buffers already present in dst. Unlike
// SharedMemPort.ReadBurst it does not supply buffers itself: it stops
// at the first nil slot, so a dst of nil pointers yields 0 frames.
func (t *TapPort) ReadBurst(dst []*PacketBuffer) int {
	n := 0
	for n < len(dst) {
		buf := dst[n]
		if buf == nil {
			break
		}
		read, err := t.reader.Read(buf.backing[HeadroomForUpcall:])
		if err != nil || read == 0 {
			break
		}
		buf.headOff = HeadroomForUpcall
		buf.Data = buf.backing[buf.headOff : buf.headOff+read]
		n++
	}
	if n > 0 {
		t.stats.RX.Add(uint64(n))
	}
	return n
}

// WriteBurst submits each buffer to the kernel device under the
// port's mutex, retrying up to TxRetries times on a transient write
// error before freeing and drop-counting it.
func (t *TapPort) WriteBurst(src []*PacketBuffer) int {
	t.mu.Lock()
	defer t.mu.Unlock()

	accepted := 0
	for _, buf := range src {
		ok := false
		for attempt := 0; attempt <= TxRetries; attempt++ {
			if _, err := t.dev.Write(buf.Data); err == nil {
				ok = true
				break
			}
			if attempt < TxRetries {
				time.Sleep(shortRetryDelayDuration)
			}
		}
		if ok {
			accepted++
		} else {
			t.stats.TXDrop.Add(1)
		}
		if t.slab != nil {
			t.slab.Put(buf)
		}
	}
	if accepted > 0 {
		t.stats.TX.Add(uint64(accepted))
	}
	return accepted
}
