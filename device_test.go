package winc

import (
	"context"
	"errors"
	"log/slog"
	"os"
	"testing"
	"time"

	"github.com/soypat/winc/internal/fwsim"
	"github.com/soypat/winc/wid"
)

var simMAC = [6]byte{0x02, 0x57, 0x49, 0x44, 0x00, 0x01}

func testLogger() *slog.Logger {
	if testing.Verbose() {
		return slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: levelTrace}))
	}
	return nil
}

// newTestDevice returns an open device wired to a simulated firmware with
// the open time queries already answered and their events drained.
func newTestDevice(t *testing.T, cfg Config) (*Device, *fwsim.Sim) {
	t.Helper()
	if cfg.Logger == nil {
		cfg.Logger = testLogger()
	}
	d, err := New(cfg)
	if err != nil {
		t.Fatal(err)
	}
	sim := fwsim.New()
	sim.Attach(d.Receive)
	if err := d.Open(sim); err != nil {
		t.Fatal(err)
	}
	pump(t, d)
	drain(d)
	return d, sim
}

// pump services the device until both queues are empty.
func pump(t *testing.T, d *Device) {
	t.Helper()
	for i := 0; i < 100; i++ {
		n, err := d.Service()
		if err != nil {
			t.Fatal(err)
		}
		if n == 0 {
			return
		}
	}
	t.Fatal("queues did not settle")
}

func drain(d *Device) (evs []Event) {
	ch := d.Events()
	for {
		select {
		case ev, ok := <-ch:
			if !ok {
				return evs
			}
			evs = append(evs, ev)
		default:
			return evs
		}
	}
}

func connEvents(evs []Event, state ConnState) (out []ConnStateEvent) {
	for _, ev := range evs {
		if ce, ok := ev.(ConnStateEvent); ok && ce.State == state {
			out = append(out, ce)
		}
	}
	return out
}

func findEvent[T Event](evs []Event) (T, bool) {
	for _, ev := range evs {
		if v, ok := ev.(T); ok {
			return v, true
		}
	}
	var zero T
	return zero, false
}

func wantStatus(t *testing.T, err error, want Status) {
	t.Helper()
	if want == StatusOk {
		if err != nil {
			t.Fatalf("got %v, want ok", err)
		}
		return
	}
	if !errors.Is(err, want) {
		t.Fatalf("got %v, want %v", err, want)
	}
}

func TestOpenLearnsFirmware(t *testing.T) {
	d, err := New(Config{Logger: testLogger()})
	if err != nil {
		t.Fatal(err)
	}
	_, err = d.HardwareAddr6()
	wantStatus(t, err, StatusNotOpen)
	sim := fwsim.New()
	sim.Attach(d.Receive)
	wantStatus(t, d.Open(nil), StatusInvalidArg)
	wantStatus(t, d.Open(sim), StatusOk)
	wantStatus(t, d.Open(sim), StatusRequestError)

	_, err = d.FirmwareVersion()
	wantStatus(t, err, StatusRetryRequest)
	pump(t, d)
	mac, err := d.HardwareAddr6()
	if err != nil || mac != simMAC {
		t.Fatalf("mac %x err %v", mac, err)
	}
	ver, err := d.FirmwareVersion()
	if err != nil || ver != "19.7.0" {
		t.Fatalf("version %q err %v", ver, err)
	}
	rd, err := d.RegDomainGet()
	if err != nil || rd.Name != "US" || rd.ChannelMask != 0x7ff {
		t.Fatalf("regdomain %+v err %v", rd, err)
	}
	if _, ok := findEvent[RegDomainEvent](drain(d)); !ok {
		t.Error("no regdomain event")
	}
	if got := d.EnabledChannels(); got != 0x7ff {
		t.Errorf("enabled channels %#x", got)
	}
}

func TestClose(t *testing.T) {
	d, sim := newTestDevice(t, Config{})
	wantStatus(t, d.BSSFindFirst(ChannelAny, nil, true), StatusOk)
	if out, _ := d.QueueDepth(); out != 1 {
		t.Fatalf("outbound depth %d", out)
	}
	ch := d.Events()
	wantStatus(t, d.Close(), StatusOk)
	wantStatus(t, d.Close(), StatusNotOpen)
	if _, ok := <-ch; ok {
		t.Error("event channel not closed")
	}
	if out, in := d.QueueDepth(); out != 0 || in != 0 {
		t.Errorf("queues not drained: %d %d", out, in)
	}
	if st := d.PoolStats(); st.Outstanding != 0 {
		t.Errorf("%d buffers leaked", st.Outstanding)
	}
	wantStatus(t, d.BSSFindFirst(ChannelAny, nil, true), StatusNotOpen)
	_, err := d.Service()
	wantStatus(t, err, StatusNotOpen)
	wantStatus(t, d.Receive([]byte{'R', 0, 4, 0}), StatusNotOpen)

	// Reopen starts a clean session.
	wantStatus(t, d.Open(sim), StatusOk)
	pump(t, d)
	if d.BSSConnState() != ConnDisconnected || d.Role() != RoleNone {
		t.Error("state survived close")
	}
}

func TestNewValidates(t *testing.T) {
	if _, err := New(Config{ChannelMask: 1 << 14}); !errors.Is(err, StatusInvalidArg) {
		t.Errorf("channel 15 accepted: %v", err)
	}
	if _, err := New(Config{MaxAPPeers: 300}); !errors.Is(err, StatusInvalidArg) {
		t.Errorf("too many peers accepted: %v", err)
	}
	if _, err := New(Config{Scan: ScanParams{SlotCount: 17, ActiveDwell: 20 * time.Millisecond, PassiveDwell: 100 * time.Millisecond, ProbeCount: 1}}); !errors.Is(err, StatusInvalidArg) {
		t.Errorf("bad scan params accepted: %v", err)
	}
	if _, err := New(Config{Pool: PoolConfig{Align: 3}}); !errors.Is(err, StatusInvalidArg) {
		t.Errorf("bad pool alignment accepted: %v", err)
	}
	d, err := New(Config{})
	if err != nil {
		t.Fatal(err)
	}
	if d.cfg.Pool.Align != DefaultConfig().Pool.Align {
		t.Errorf("pool align %d, want default", d.cfg.Pool.Align)
	}
}

func TestMalformedResponse(t *testing.T) {
	d, sim := newTestDevice(t, Config{})
	bad := [][]byte{
		// Unknown kind.
		{'X', 0, 4, 0},
		// Header length past the buffer.
		{'R', 0, 9, 0, 0x05, 0x00},
		// Write message where a response is expected.
		{'W', 0, 8, 0, 0x05, 0x00, 0x01, 0x01},
		// Binary record missing its value and checksum.
		{'R', 0, 8, 0, 0x11, 0x40, 0x01, 0x00},
	}
	for _, msg := range bad {
		if err := sim.Inject(msg); err != nil {
			t.Fatal(err)
		}
	}
	pump(t, d)
	n := 0
	for _, ev := range drain(d) {
		if de, ok := ev.(DiagnosticEvent); ok && de.Status == StatusInvalidArg {
			n++
		}
	}
	if n != len(bad) {
		t.Errorf("got %d diagnostics, want %d", n, len(bad))
	}
	// The engine keeps working.
	if err := sim.PowerSave(true); err != nil {
		t.Fatal(err)
	}
	pump(t, d)
	if ev, ok := findEvent[PowerSaveEvent](drain(d)); !ok || !ev.Asleep {
		t.Error("valid message after malformed ones not dispatched")
	}
	if st := d.PoolStats(); st.Outstanding != 0 {
		t.Errorf("%d buffers leaked", st.Outstanding)
	}
}

func TestBadIntegerWidthKeepsLink(t *testing.T) {
	d, sim := newTestDevice(t, Config{})
	connectHome(t, d, sim)
	for _, id := range []wid.ID{wid.Status, wid.RSSI, wid.CurrentChannel, wid.ScanDone} {
		m := wid.NewResponse(make([]byte, 0, 16))
		m.AddData(id, nil)
		msg, err := m.Finalize()
		if err != nil {
			t.Fatal(err)
		}
		wantStatus(t, d.Receive(msg), StatusOk)
	}
	pump(t, d)
	evs := drain(d)
	if st := d.BSSConnState(); st != ConnConnected {
		t.Errorf("state %v after empty integer records", st)
	}
	for _, ev := range evs {
		switch ev.(type) {
		case ConnStateEvent, RSSIEvent, ScanDoneEvent:
			t.Errorf("malformed record applied: %+v", ev)
		}
	}
	if de, ok := findEvent[DiagnosticEvent](evs); !ok || !errors.Is(de.Err, wid.ErrBadLength) {
		t.Errorf("no bad length diagnostic: %v", evs)
	}
	if st := d.PoolStats(); st.Outstanding != 0 {
		t.Errorf("%d buffers leaked", st.Outstanding)
	}
}

func TestReopenDropsStaleResponses(t *testing.T) {
	d, sim := newTestDevice(t, Config{})
	stale := wid.NewResponse(make([]byte, 0, 16))
	stale.AddValue(wid.PowerSaveEvent, 1)
	msg, err := stale.Finalize()
	if err != nil {
		t.Fatal(err)
	}
	wantStatus(t, d.Close(), StatusOk)
	wantStatus(t, d.Receive(msg), StatusNotOpen)
	if st := d.PoolStats(); st.Outstanding != 0 {
		t.Fatalf("rejected response held %d buffers", st.Outstanding)
	}

	// A response queued by a transport racing with Close.
	buf, err := d.pool.Alloc(len(msg))
	if err != nil {
		t.Fatal(err)
	}
	copy(buf.Bytes(), msg)
	d.inq.Push(buf)

	wantStatus(t, d.Open(sim), StatusOk)
	pump(t, d)
	if _, ok := findEvent[PowerSaveEvent](drain(d)); ok {
		t.Error("response from the previous session was dispatched")
	}
	if _, asleep := d.PowerSave(); asleep {
		t.Error("previous session response changed power state")
	}
	if st := d.PoolStats(); st.Outstanding != 0 {
		t.Errorf("%d buffers leaked", st.Outstanding)
	}
}

func TestCommitReleasesBuffer(t *testing.T) {
	d, _ := newTestDevice(t, Config{})
	base := d.PoolStats().Outstanding

	m, buf, err := d.newCommand()
	if err != nil {
		t.Fatal(err)
	}
	wantStatus(t, d.commit(m, buf), StatusOk)
	if out, _ := d.QueueDepth(); out != 0 {
		t.Errorf("empty message queued: depth %d", out)
	}
	if got := d.PoolStats().Outstanding; got != base {
		t.Errorf("empty message: outstanding %d, want %d", got, base)
	}

	m, buf, err = d.newCommand()
	if err != nil {
		t.Fatal(err)
	}
	m.AddValue(wid.SSID, 1) // Not an integer WID.
	wantStatus(t, d.commit(m, buf), StatusInvalidArg)

	m, buf, err = d.newCommand()
	if err != nil {
		t.Fatal(err)
	}
	for m.Err() == nil {
		m.AddString(wid.SSID, "overflowing the command buffer")
	}
	wantStatus(t, d.commit(m, buf), StatusNoSpace)

	if out, _ := d.QueueDepth(); out != 0 {
		t.Errorf("errored message queued: depth %d", out)
	}
	if got := d.PoolStats().Outstanding; got != base {
		t.Errorf("errored message: outstanding %d, want %d", got, base)
	}
}

func TestEventOverflow(t *testing.T) {
	d, sim := newTestDevice(t, Config{EventQueueLen: 1})
	sim.PowerSave(true)
	sim.PowerSave(false)
	sim.PowerSave(true)
	pump(t, d)
	if got := d.DroppedEvents(); got != 2 {
		t.Errorf("dropped %d, want 2", got)
	}
	if evs := drain(d); len(evs) != 1 {
		t.Errorf("got %d events", len(evs))
	}
}

func TestRun(t *testing.T) {
	d, sim := newTestDevice(t, Config{})
	sim.AddNetwork(fwsim.Network{SSID: "run", Channel: 1})
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	done := make(chan error, 1)
	go func() { done <- d.Run(ctx) }()

	wantStatus(t, d.BSSFindFirst(ChannelAny, nil, true), StatusOk)
	d.Interrupt()
	evs := d.Events()
wait:
	for {
		select {
		case ev := <-evs:
			if _, ok := ev.(ScanDoneEvent); ok {
				break wait
			}
		case <-ctx.Done():
			t.Fatal("scan did not complete")
		}
	}
	if total := d.BSSFindTotal(); total != 1 {
		t.Errorf("total %d", total)
	}
	d.Close()
	select {
	case err := <-done:
		if err != nil {
			t.Fatal(err)
		}
	case <-ctx.Done():
		t.Fatal("Run did not return after Close")
	}
}

func TestSendFailure(t *testing.T) {
	d, err := New(Config{})
	if err != nil {
		t.Fatal(err)
	}
	fail := errors.New("bus fault")
	if err := d.Open(transportFunc(func([]byte) error { return fail })); err != nil {
		t.Fatal(err)
	}
	_, err = d.Service()
	if !errors.Is(err, fail) {
		t.Fatalf("got %v", err)
	}
	if st := d.PoolStats(); st.Outstanding != 0 {
		t.Errorf("buffer not released after failed send")
	}
}

type transportFunc func([]byte) error

func (f transportFunc) Send(msg []byte) error { return f(msg) }

func TestRecordWidths(t *testing.T) {
	// Command integers are encoded at the width of their WID type.
	d, sim := newTestDevice(t, Config{})
	wantStatus(t, d.BSSFindFirst(3, nil, false), StatusOk)
	pump(t, d)
	if v, _ := sim.Written(wid.ScanChannelMask); len(v) != 2 || v[0] != 0b100 {
		t.Errorf("scan mask %x", v)
	}
	if v, _ := sim.Written(wid.PassiveScanTime); len(v) != 2 || int(v[0])|int(v[1])<<8 != 300 {
		t.Errorf("passive dwell %x", v)
	}
	if v, _ := sim.Written(wid.ScanType); len(v) != 1 || v[0] != 0 {
		t.Errorf("scan type %x", v)
	}
}
