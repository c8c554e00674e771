package stats

import (
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/assert"
)

func TestRegistrySumAcrossWorkersForSamePort(t *testing.T) {
	r := NewRegistry()
	r.For(5, 0).RX.Add(100)
	r.For(5, 0).TXDrop.Add(1)
	r.For(5, 1).RX.Add(50)
	r.For(5, 2).TXDrop.Add(4)

	snap := r.Sum(5)
	assert.Equal(t, uint64(150), snap.RX)
	assert.Equal(t, uint64(5), snap.TXDrop)
}

func TestRegistrySumForUnknownPortIsZero(t *testing.T) {
	r := NewRegistry()
	snap := r.Sum(999)
	assert.Equal(t, Snapshot{}, snap)
}

func TestRegistryForIsStablePerWorker(t *testing.T) {
	r := NewRegistry()
	a := r.For(1, 0)
	b := r.For(1, 0)
	assert.Same(t, a, b)

	c := r.For(1, 1)
	assert.NotSame(t, a, c)
}

func TestRegistryPortsListsEveryTrackedPort(t *testing.T) {
	r := NewRegistry()
	r.For(1, 0)
	r.For(2, 0)
	r.For(2, 1)

	ports := r.Ports()
	assert.ElementsMatch(t, []uint32{1, 2}, ports)
}

func TestCollectorDescribeAndCollectDoNotPanic(t *testing.T) {
	r := NewRegistry()
	r.For(1, 0).RX.Add(3)
	c := NewCollector(r)

	descCh := make(chan *prometheus.Desc, 8)
	go func() {
		c.Describe(descCh)
		close(descCh)
	}()
	descCount := 0
	for range descCh {
		descCount++
	}
	assert.Equal(t, 5, descCount)

	metricCh := make(chan prometheus.Metric, 8)
	go func() {
		c.Collect(metricCh)
		close(metricCh)
	}()
	metricCount := 0
	for range metricCh {
		metricCount++
	}
	assert.Equal(t, 5, metricCount)
}
