package stats

import "github.com/prometheus/client_golang/prometheus"

// Collector exports a Registry's per-port totals as Prometheus
// counters, additive instrumentation alongside the GET-reply counters
// the controller reads over the control channel — the controller's
// view remains the authoritative one for flow/port management, this
// is only for scraping (spec.md §4.8's own counters plus the
// domain-stack metrics endpoint in SPEC_FULL.md).
type Collector struct {
	reg *Registry

	rx, tx, rxDrop, txDrop, overrun *prometheus.Desc
}

// NewCollector wraps reg for registration with a prometheus.Registerer.
func NewCollector(reg *Registry) *Collector {
	labels := []string{"port"}
	return &Collector{
		reg:      reg,
		rx:       prometheus.NewDesc("fastpath_port_rx_total", "Packets received on a port, summed across workers.", labels, nil),
		tx:       prometheus.NewDesc("fastpath_port_tx_total", "Packets transmitted on a port, summed across workers.", labels, nil),
		rxDrop:   prometheus.NewDesc("fastpath_port_rx_dropped_total", "Packets dropped on receive.", labels, nil),
		txDrop:   prometheus.NewDesc("fastpath_port_tx_dropped_total", "Packets dropped on transmit.", labels, nil),
		overrun:  prometheus.NewDesc("fastpath_port_overrun_total", "Ring-full overrun events.", labels, nil),
	}
}

// Describe implements prometheus.Collector.
func (c *Collector) Describe(ch chan<- *prometheus.Desc) {
	ch <- c.rx
	ch <- c.tx
	ch <- c.rxDrop
	ch <- c.txDrop
	ch <- c.overrun
}

// Collect implements prometheus.Collector.
func (c *Collector) Collect(ch chan<- prometheus.Metric) {
	for _, id := range c.reg.Ports() {
		snap := c.reg.Sum(id)
		label := portLabel(id)
		ch <- prometheus.MustNewConstMetric(c.rx, prometheus.CounterValue, float64(snap.RX), label)
		ch <- prometheus.MustNewConstMetric(c.tx, prometheus.CounterValue, float64(snap.TX), label)
		ch <- prometheus.MustNewConstMetric(c.rxDrop, prometheus.CounterValue, float64(snap.RXDrop), label)
		ch <- prometheus.MustNewConstMetric(c.txDrop, prometheus.CounterValue, float64(snap.TXDrop), label)
		ch <- prometheus.MustNewConstMetric(c.overrun, prometheus.CounterValue, float64(snap.Overrun), label)
	}
}

func portLabel(id uint32) string {
	return "p" + itoa(id)
}

func itoa(id uint32) string {
	if id == 0 {
		return "0"
	}
	var buf [10]byte
	i := len(buf)
	for id > 0 {
		i--
		buf[i] = byte('0' + id%10)
		id /= 10
	}
	return string(buf[i:])
}
