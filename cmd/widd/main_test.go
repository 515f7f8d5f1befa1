package main

import (
	"bytes"
	"context"
	"net"
	"strings"
	"testing"
	"time"

	"go.uber.org/zap"

	"github.com/soypat/winc"
	"github.com/soypat/winc/wid"
)

func init() {
	logger = zap.NewNop()
}

func scanWith(t *testing.T, mode, addr string) []winc.BSSInfo {
	t.Helper()
	cfg, err := loadConfig("")
	if err != nil {
		t.Fatal(err)
	}
	cfg.Set("transport.mode", mode)
	cfg.Set("transport.addr", addr)
	cfg.Set("logging.level", "error")
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	d, closeDev, err := openDevice(ctx, cfg, logger)
	if err != nil {
		t.Fatal(err)
	}
	defer closeDev()
	go d.Run(ctx)
	results, err := scanOnce(ctx, d, nil, true)
	if err != nil {
		t.Fatal(err)
	}
	return results
}

func checkSimResults(t *testing.T, results []winc.BSSInfo) {
	t.Helper()
	if len(results) != len(simNetworks) {
		t.Fatalf("got %d results, want %d", len(results), len(simNetworks))
	}
	for i, r := range results {
		n := simNetworks[i]
		if r.SSID != n.SSID || r.Channel != n.Channel || r.RSSI != n.RSSI {
			t.Errorf("result %d: %+v, want %+v", i, r, n)
		}
	}
	if results[1].Auth != winc.AuthTypeWPA2Personal || results[2].Auth != winc.AuthTypeWPA3Personal {
		t.Errorf("auth %s %s", results[1].Auth, results[2].Auth)
	}
}

func TestScanSim(t *testing.T) {
	results := scanWith(t, "sim", "")
	checkSimResults(t, results)

	var buf bytes.Buffer
	if err := printScan(&buf, results); err != nil {
		t.Fatal(err)
	}
	lines := strings.Split(strings.TrimSpace(buf.String()), "\n")
	if len(lines) != 1+len(results) || !strings.HasPrefix(lines[0], "SSID") {
		t.Fatalf("table:\n%s", buf.String())
	}
	if !strings.Contains(lines[2], "widd-wpa2") || !strings.Contains(lines[2], "02:00:5e:00:00:06") {
		t.Errorf("row %q", lines[2])
	}
}

func TestScanOverSimserve(t *testing.T) {
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		t.Fatal(err)
	}
	ctx, cancel := context.WithCancel(context.Background())
	served := make(chan error, 1)
	go func() { served <- serveSim(ctx, ln, logger) }()

	checkSimResults(t, scanWith(t, "tcp", ln.Addr().String()))

	cancel()
	select {
	case err := <-served:
		if err != nil {
			t.Errorf("serveSim: %v", err)
		}
	case <-time.After(5 * time.Second):
		t.Error("serveSim did not return")
	}
}

func TestOpenDeviceBadMode(t *testing.T) {
	cfg, err := loadConfig("")
	if err != nil {
		t.Fatal(err)
	}
	cfg.Set("transport.mode", "serial")
	if _, _, err := openDevice(context.Background(), cfg, logger); err == nil {
		t.Fatal("expected error for unknown transport mode")
	}
}

func TestDecode(t *testing.T) {
	m := wid.NewResponse(make([]byte, 64))
	m.AddValue(wid.ScanDone, 3)
	m.AddString(wid.SSID, "lab")
	msg, err := m.Finalize()
	if err != nil {
		t.Fatal(err)
	}
	var buf bytes.Buffer
	hexmsg := strings.ToUpper(net.HardwareAddr(msg).String()) // Colon separated.
	if err := decodeHex(&buf, hexmsg); err != nil {
		t.Fatal(err)
	}
	out := buf.String()
	for _, want := range []string{"R len=", "ScanDone=3", `SSID="lab"`, "char", "str"} {
		if !strings.Contains(out, want) {
			t.Errorf("output missing %q:\n%s", want, out)
		}
	}

	buf.Reset()
	if err := decodeHex(&buf, "zz"); err == nil {
		t.Error("expected error for invalid hex")
	}
	if err := writeMessage(&buf, msg[:len(msg)-1]); err == nil {
		t.Error("expected error for truncated message")
	}
}
