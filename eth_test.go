package winc

import (
	"bytes"
	"encoding/binary"
	"errors"
	"net"
	"testing"

	"github.com/soypat/winc/internal/pool"
	"github.com/soypat/winc/wid"
)

func ethFrame(etype uint16, payload int) []byte {
	frame := make([]byte, ethHeaderLen+payload)
	copy(frame[0:6], []byte{0xff, 0xff, 0xff, 0xff, 0xff, 0xff})
	copy(frame[6:12], simMAC[:])
	binary.BigEndian.PutUint16(frame[12:14], etype)
	for i := ethHeaderLen; i < len(frame); i++ {
		frame[i] = byte(i)
	}
	return frame
}

func TestFramePriority(t *testing.T) {
	for _, tc := range []struct {
		frame []byte
		want  pool.Priority
	}{
		{ethFrame(0x888e, 10), prioEAPOL},
		{ethFrame(0x0806, 28), prioARP},
		{ethFrame(0x0800, 20), prioIP},
		{ethFrame(0x86dd, 40), prioIP},
		{ethFrame(0x88cc, 4), prioBulk},
		{ethFrame(64, 64), prioBulk}, // 802.3 length field
		{[]byte{1, 2, 3}, prioBulk},
	} {
		if got := framePriority(tc.frame); got != tc.want {
			t.Errorf("frame % x: priority %d, want %d", tc.frame[:min(len(tc.frame), 14)], got, tc.want)
		}
	}
}

func TestSendEth(t *testing.T) {
	d, sim := newTestDevice(t, Config{})
	arp := ethFrame(0x0806, 28)
	wantStatus(t, d.SendEth(arp), StatusNotConnected)
	if d.NetFlags()&net.FlagRunning != 0 {
		t.Error("running before link up")
	}
	connectHome(t, d, sim)
	if flags := d.NetFlags(); flags&(net.FlagUp|net.FlagRunning) != net.FlagUp|net.FlagRunning {
		t.Errorf("flags %v", flags)
	}
	wantStatus(t, d.SendEth(arp[:ethHeaderLen-1]), StatusInvalidArg)
	wantStatus(t, d.SendEth(ethFrame(0x0800, MTU+1)), StatusInvalidArg)
	wantStatus(t, d.SendEth(arp), StatusOk)
	wantStatus(t, d.SendEth(ethFrame(0x0800, MTU)), StatusOk)

	frames := sim.Frames()
	if len(frames) != 2 || !bytes.Equal(frames[0], arp) || len(frames[1]) != MTU+ethHeaderLen {
		t.Fatalf("sim got %d frames", len(frames))
	}
	st := d.PoolStats()
	if st.ReservedHits != 2 || st.Outstanding != 0 {
		t.Errorf("pool stats %+v", st)
	}
}

func TestSendEthUnsupported(t *testing.T) {
	// A transport without an Ethernet path, driven by hand.
	d, err := New(Config{})
	if err != nil {
		t.Fatal(err)
	}
	if err := d.Open(transportFunc(func([]byte) error { return nil })); err != nil {
		t.Fatal(err)
	}
	wantStatus(t, d.BSSConnect(BSSContext{SSID: "open", Channel: 1}, AuthOpen{}), StatusOk)
	pump(t, d)
	m := wid.NewResponse(make([]byte, 0, 16))
	m.AddValue(wid.Status, 1)
	msg, err := m.Finalize()
	if err != nil {
		t.Fatal(err)
	}
	wantStatus(t, d.Receive(msg), StatusOk)
	pump(t, d)
	if d.BSSConnState() != ConnConnected {
		t.Fatalf("state %v", d.BSSConnState())
	}
	wantStatus(t, d.SendEth(ethFrame(0x0800, 20)), StatusOperationNotSupported)
}

func TestReceiveEth(t *testing.T) {
	d, _ := newTestDevice(t, Config{})
	frame := ethFrame(0x0800, 100)
	// No handler: frames are dropped.
	wantStatus(t, d.ReceiveEth(frame), StatusOk)

	var got []byte
	d.RecvEthHandle(func(b []byte) error {
		got = append(got[:0], b...)
		return nil
	})
	wantStatus(t, d.ReceiveEth(frame), StatusOk)
	if !bytes.Equal(got, frame) {
		t.Error("handler saw a different frame")
	}
	wantStatus(t, d.ReceiveEth(frame[:4]), StatusInvalidArg)

	errHandler := errors.New("stack full")
	d.RecvEthHandle(func([]byte) error { return errHandler })
	if err := d.ReceiveEth(frame); !errors.Is(err, errHandler) {
		t.Errorf("handler error not returned: %v", err)
	}
	if st := d.PoolStats(); st.Outstanding != 0 {
		t.Errorf("%d buffers leaked", st.Outstanding)
	}
	if d.MTU() != MTU {
		t.Error("MTU")
	}
}
