package iop

import "github.com/ovdk-go/fastpath/stats"

// NullPort discards everything written to it and never produces a
// buffer on read. cmd/fastpathd uses it for ports configured with
// kind "null".
type NullPort struct {
	stats *stats.Counters
	slab  interface{ Put(*PacketBuffer) }
}

// NewNullPort builds a NullPort that frees everything it is handed
// back to slab and counts it as a tx-drop.
func NewNullPort(counters *stats.Counters, slab interface{ Put(*PacketBuffer) }) *NullPort {
	return &NullPort{stats: counters, slab: slab}
}

// ReadBurst always returns 0.
func (p *NullPort) ReadBurst(dst []*PacketBuffer) int { return 0 }

// WriteBurst frees every buffer and counts it as dropped, returning 0
// accepted.
func (p *NullPort) WriteBurst(src []*PacketBuffer) int {
	for _, buf := range src {
		if p.slab != nil {
			p.slab.Put(buf)
		}
	}
	if p.stats != nil {
		p.stats.TXDrop.Add(uint64(len(src)))
	}
	return 0
}
