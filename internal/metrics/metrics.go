// Package metrics exports driver state to Prometheus.
package metrics

import (
	"strconv"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/soypat/winc"
)

// Source is the driver state read on every scrape. *winc.Device implements
// it.
type Source interface {
	PoolStats() winc.PoolStats
	QueueDepth() (outbound, inbound int)
	DroppedEvents() uint64
	BSSConnState() winc.ConnState
	APState() winc.ConnState
	APPeers() []winc.AssocHandle
	BSSFindTotal() int
}

const namespace = "winc"

// Collector is a prometheus.Collector reading a Source at scrape time.
type Collector struct {
	src Source

	allocs      *prometheus.Desc
	frees       *prometheus.Desc
	failures    *prometheus.Desc
	outstanding *prometheus.Desc
	outBytes    *prometheus.Desc
	genBytes    *prometheus.Desc
	resFree     *prometheus.Desc
	resHits     *prometheus.Desc
	resMisses   *prometheus.Desc
	tierAllocs  *prometheus.Desc
	tierOut     *prometheus.Desc
	queueDepth  *prometheus.Desc
	dropped     *prometheus.Desc
	linkState   *prometheus.Desc
	apPeers     *prometheus.Desc
	scanTotal   *prometheus.Desc
}

var _ prometheus.Collector = (*Collector)(nil)

// NewCollector returns a collector over src.
func NewCollector(src Source) *Collector {
	desc := func(sub, name, help string, labels ...string) *prometheus.Desc {
		return prometheus.NewDesc(prometheus.BuildFQName(namespace, sub, name), help, labels, nil)
	}
	return &Collector{
		src:         src,
		allocs:      desc("pool", "allocs_total", "Buffers handed out by the pool."),
		frees:       desc("pool", "frees_total", "Buffers returned to the pool."),
		failures:    desc("pool", "failures_total", "Failed pool allocations."),
		outstanding: desc("pool", "outstanding_buffers", "Buffers currently allocated."),
		outBytes:    desc("pool", "outstanding_bytes", "Bytes currently allocated, reserved buffers included."),
		genBytes:    desc("pool", "general_bytes", "Bytes charged against the general budget."),
		resFree:     desc("pool", "reserved_free_buffers", "Reserved packet buffers on the free list."),
		resHits:     desc("pool", "reserved_hits_total", "Packet allocations served from the reserved list."),
		resMisses:   desc("pool", "reserved_misses_total", "Packet allocations that fell back to the general allocator."),
		tierAllocs:  desc("pool", "priority_allocs_total", "General packet allocations by priority.", "priority"),
		tierOut:     desc("pool", "priority_outstanding_buffers", "General packet buffers allocated by priority.", "priority"),
		queueDepth:  desc("queue", "depth", "Buffers waiting in a transport queue.", "direction"),
		dropped:     desc("", "dropped_events_total", "Events dropped because the event channel was full."),
		linkState:   desc("", "link_state", "Connection state of a role: 0 disconnected, 1 connecting, 2 connected, 3 failed.", "role"),
		apPeers:     desc("ap", "peers", "Stations associated to the access point."),
		scanTotal:   desc("scan", "results", "Results announced by the last scan generation."),
	}
}

// Describe implements prometheus.Collector.
func (c *Collector) Describe(ch chan<- *prometheus.Desc) {
	for _, d := range []*prometheus.Desc{
		c.allocs, c.frees, c.failures, c.outstanding, c.outBytes, c.genBytes,
		c.resFree, c.resHits, c.resMisses, c.tierAllocs, c.tierOut,
		c.queueDepth, c.dropped, c.linkState, c.apPeers, c.scanTotal,
	} {
		ch <- d
	}
}

// Collect implements prometheus.Collector.
func (c *Collector) Collect(ch chan<- prometheus.Metric) {
	st := c.src.PoolStats()
	counter := func(d *prometheus.Desc, v uint64, labels ...string) {
		ch <- prometheus.MustNewConstMetric(d, prometheus.CounterValue, float64(v), labels...)
	}
	gauge := func(d *prometheus.Desc, v int, labels ...string) {
		ch <- prometheus.MustNewConstMetric(d, prometheus.GaugeValue, float64(v), labels...)
	}
	counter(c.allocs, st.Allocs)
	counter(c.frees, st.Frees)
	counter(c.failures, st.Failures)
	gauge(c.outstanding, st.Outstanding)
	gauge(c.outBytes, st.OutstandingBytes)
	gauge(c.genBytes, st.GeneralBytes)
	gauge(c.resFree, st.ReservedFree)
	counter(c.resHits, st.ReservedHits)
	counter(c.resMisses, st.ReservedMisses)
	for i, tier := range st.Tiers {
		prio := strconv.Itoa(i)
		counter(c.tierAllocs, tier.Allocs, prio)
		gauge(c.tierOut, tier.Outstanding, prio)
	}

	out, in := c.src.QueueDepth()
	gauge(c.queueDepth, out, "outbound")
	gauge(c.queueDepth, in, "inbound")
	counter(c.dropped, c.src.DroppedEvents())
	gauge(c.linkState, int(c.src.BSSConnState()), winc.RoleSTA.String())
	gauge(c.linkState, int(c.src.APState()), winc.RoleAP.String())
	gauge(c.apPeers, len(c.src.APPeers()))
	gauge(c.scanTotal, c.src.BSSFindTotal())
}
