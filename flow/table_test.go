package flow

import (
	"testing"

	"github.com/ovdk-go/fastpath/action"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestTableInsertThenLookup(t *testing.T) {
	tbl := NewTable()
	k := Key{InPort: 1, EtherType: 0x0800}
	e := tbl.Insert(k, []action.Action{action.NewOutput(1)}, Stats{})

	got, ok := tbl.Lookup(k)
	require.True(t, ok)
	assert.Equal(t, e.Handle, got.Handle)
	assert.Equal(t, e.Actions, got.Actions)
}

func TestTableGetByHandle(t *testing.T) {
	tbl := NewTable()
	k := Key{InPort: 2}
	e := tbl.Insert(k, []action.Action{action.NewOutput(1)}, Stats{})

	got, err := tbl.Get(e.Handle)
	require.NoError(t, err)
	assert.Equal(t, k, got.Key)

	_, err = tbl.Get(Handle(0))
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestTableDeleteThenDeleteAgainReportsNotFound(t *testing.T) {
	tbl := NewTable()
	k := Key{InPort: 3}
	tbl.Insert(k, nil, Stats{})

	_, found := tbl.Delete(k)
	assert.True(t, found)

	_, found = tbl.Delete(k)
	assert.False(t, found, "deleting a key twice must report not-found the second time")
}

func TestTableReplaceWithStatsCarryOver(t *testing.T) {
	tbl := NewTable()
	k := Key{InPort: 4}
	e := tbl.Insert(k, []action.Action{action.NewOutput(1)}, Stats{})

	for i := 0; i < 7; i++ {
		e.UpdateHit(100, uint64(i), 0)
	}

	old, found := tbl.Delete(k)
	require.True(t, found)
	assert.EqualValues(t, 7, old.Stats.PacketCount)

	replaced := tbl.Insert(k, []action.Action{action.NewOutput(2)}, old.Stats)
	assert.EqualValues(t, 7, replaced.Stats.PacketCount)
	assert.Equal(t, []action.Action{action.NewOutput(2)}, replaced.Actions)
}

func TestEntryUpdateHitAccumulatesTCPFlagsOnlyForIPv4TCP(t *testing.T) {
	e := &Entry{Key: Key{EtherType: 0x0800, IPProto: 6}}
	e.UpdateHit(64, 1000, 0xFF)
	assert.EqualValues(t, 0x3F, e.Stats.TCPFlags, "tcp flags must be masked to 0x3F")

	other := &Entry{Key: Key{EtherType: 0x0800, IPProto: 17}}
	other.UpdateHit(64, 1000, 0xFF)
	assert.EqualValues(t, 0, other.Stats.TCPFlags, "non-TCP entries must not accumulate tcp flags")
}
