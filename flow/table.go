package flow

import (
	"errors"
	"sync"

	"github.com/ovdk-go/fastpath/action"
)

// ErrNotFound is returned by table operations addressing a key or
// handle that does not exist.
var ErrNotFound = errors.New("flow: entry not found")

// Handle is a stable identifier for an inserted entry, returned by
// Insert and used by FLOW_GET (spec.md §4.4.4 step 6). It stays valid
// for the entry's lifetime even if the table's internal map is
// rehashed, unlike a bare map key lookup would be from the
// controller's point of view.
type Handle uint64

// Stats mirrors spec.md §3's per-flow statistics: packet count, byte
// count, last-used timestamp in cycle units, and OR-accumulated TCP
// flags masked to 0x3F.
type Stats struct {
	PacketCount uint64
	ByteCount   uint64
	LastUsed    uint64 // cycle units; converted to wall-clock only at the reply boundary
	TCPFlags    uint8
}

// Entry is one resident flow: its key, ordered action list, and
// statistics (spec.md §3 "Flow entry").
type Entry struct {
	Handle  Handle
	Key     Key
	Actions []action.Action
	Stats   Stats
}

// Table is the per-worker exact-match flow table (component E,
// spec.md §4.4.4). It is never accessed concurrently — every worker
// owns exactly one Table and touches it only from its own goroutine
// — so the mutex here exists only to let tests and the control
// adapter call it safely from a different goroutine than the
// pipeline's hot loop during setup/teardown, not for steady-state
// fast-path protection.
type Table struct {
	mu      sync.Mutex
	byKey   map[Key]*Entry
	byHand  map[Handle]*Entry
	nextSeq uint64
}

// NewTable creates an empty exact-match table.
func NewTable() *Table {
	return &Table{
		byKey:  make(map[Key]*Entry),
		byHand: make(map[Handle]*Entry),
	}
}

// Lookup is the pipeline driver's hot-path hit test: O(1) map lookup
// keyed on the bitwise-comparable Key (spec.md §3's "compared
// bitwise" becomes Go's native == on a comparable struct).
func (t *Table) Lookup(k Key) (*Entry, bool) {
	t.mu.Lock()
	defer t.mu.Unlock()
	e, ok := t.byKey[k]
	return e, ok
}

// Get returns the entry addressed by handle, or ErrNotFound (spec.md
// §4.4.4 FLOW_GET: "reject null handle with EINVAL" is the caller's
// job before calling Get with handle 0; this Get just reports absence
// for any handle, including 0, uniformly).
func (t *Table) Get(h Handle) (*Entry, error) {
	t.mu.Lock()
	defer t.mu.Unlock()
	e, ok := t.byHand[h]
	if !ok {
		return nil, ErrNotFound
	}
	return e, nil
}

// Insert creates a new entry with the provided key/actions and its
// stats set to initial, returning its stable handle. Any existing
// entry at key is replaced, and its handle stops resolving — callers
// implementing the create-or-replace contract (spec.md §4.4.4) must
// delete first via Delete if they need the old entry's stats for
// carry-over.
func (t *Table) Insert(k Key, actions []action.Action, initial Stats) *Entry {
	t.mu.Lock()
	defer t.mu.Unlock()

	if old, ok := t.byKey[k]; ok {
		delete(t.byHand, old.Handle)
	}
	t.nextSeq++
	e := &Entry{
		Handle:  Handle(t.nextSeq),
		Key:     k,
		Actions: actions,
		Stats:   initial,
	}
	t.byKey[k] = e
	t.byHand[e.Handle] = e
	return e
}

// Delete removes the entry matching k, if any, returning it (so the
// caller can read its Stats for carry-over/reply purposes) and
// whether one was found.
func (t *Table) Delete(k Key) (*Entry, bool) {
	t.mu.Lock()
	defer t.mu.Unlock()
	e, ok := t.byKey[k]
	if !ok {
		return nil, false
	}
	delete(t.byKey, k)
	delete(t.byHand, e.Handle)
	return e, true
}

// UpdateHit applies the hit-path statistics update (spec.md §4.2):
// packet count +=1, byte count += payloadLen, last-used = nowCycles,
// and TCP flags OR'd in (masked to 0x3F) only when the entry's key is
// IPv4/TCP.
func (e *Entry) UpdateHit(payloadLen int, nowCycles uint64, tcpFlags uint8) {
	e.Stats.PacketCount++
	e.Stats.ByteCount += uint64(payloadLen)
	e.Stats.LastUsed = nowCycles
	if e.Key.EtherType == etherTypeIPv4 && e.Key.IPProto == ipProtoTCP {
		e.Stats.TCPFlags |= tcpFlags & 0x3F
	}
}

// Len reports the number of resident entries, used by stats/debug
// endpoints and tests.
func (t *Table) Len() int {
	t.mu.Lock()
	defer t.mu.Unlock()
	return len(t.byKey)
}
