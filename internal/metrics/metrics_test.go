package metrics

import (
	"strings"
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"

	"github.com/soypat/winc"
	"github.com/soypat/winc/internal/fwsim"
	"github.com/soypat/winc/internal/pool"
)

type fakeSource struct {
	stats   winc.PoolStats
	out, in int
	dropped uint64
	sta, ap winc.ConnState
	peers   int
	total   int
}

func (f *fakeSource) PoolStats() winc.PoolStats    { return f.stats }
func (f *fakeSource) QueueDepth() (int, int)       { return f.out, f.in }
func (f *fakeSource) DroppedEvents() uint64        { return f.dropped }
func (f *fakeSource) BSSConnState() winc.ConnState { return f.sta }
func (f *fakeSource) APState() winc.ConnState      { return f.ap }
func (f *fakeSource) APPeers() []winc.AssocHandle  { return make([]winc.AssocHandle, f.peers) }
func (f *fakeSource) BSSFindTotal() int            { return f.total }

func TestCollect(t *testing.T) {
	src := &fakeSource{
		stats: winc.PoolStats{
			Allocs:       10,
			Frees:        7,
			ReservedHits: 4,
			Tiers:        []pool.TierStats{{Allocs: 2, Outstanding: 1}, {Allocs: 5}},
		},
		out:     2,
		in:      1,
		dropped: 3,
		sta:     winc.ConnConnected,
		ap:      winc.ConnDisconnected,
		peers:   0,
		total:   6,
	}
	c := NewCollector(src)
	const want = `
# HELP winc_dropped_events_total Events dropped because the event channel was full.
# TYPE winc_dropped_events_total counter
winc_dropped_events_total 3
# HELP winc_link_state Connection state of a role: 0 disconnected, 1 connecting, 2 connected, 3 failed.
# TYPE winc_link_state gauge
winc_link_state{role="ap"} 0
winc_link_state{role="sta"} 2
# HELP winc_pool_allocs_total Buffers handed out by the pool.
# TYPE winc_pool_allocs_total counter
winc_pool_allocs_total 10
# HELP winc_pool_priority_allocs_total General packet allocations by priority.
# TYPE winc_pool_priority_allocs_total counter
winc_pool_priority_allocs_total{priority="0"} 2
winc_pool_priority_allocs_total{priority="1"} 5
# HELP winc_queue_depth Buffers waiting in a transport queue.
# TYPE winc_queue_depth gauge
winc_queue_depth{direction="inbound"} 1
winc_queue_depth{direction="outbound"} 2
# HELP winc_scan_results Results announced by the last scan generation.
# TYPE winc_scan_results gauge
winc_scan_results 6
`
	err := testutil.CollectAndCompare(c, strings.NewReader(want),
		"winc_dropped_events_total", "winc_link_state", "winc_pool_allocs_total",
		"winc_pool_priority_allocs_total", "winc_queue_depth", "winc_scan_results")
	if err != nil {
		t.Error(err)
	}
}

func TestDeviceCollector(t *testing.T) {
	d, err := winc.New(winc.Config{})
	if err != nil {
		t.Fatal(err)
	}
	sim := fwsim.New()
	sim.Attach(d.Receive)
	if err := d.Open(sim); err != nil {
		t.Fatal(err)
	}
	defer d.Close()

	reg := prometheus.NewPedanticRegistry()
	if err := reg.Register(NewCollector(d)); err != nil {
		t.Fatal(err)
	}
	// Four priority tiers with two series each, two queue and two link
	// series, and one series for each of the twelve unlabelled descriptors.
	const wantSeries = 4*2 + 2 + 2 + 12
	n, err := testutil.GatherAndCount(reg)
	if err != nil {
		t.Fatal(err)
	}
	if n != wantSeries {
		t.Errorf("got %d series, want %d", n, wantSeries)
	}
}
