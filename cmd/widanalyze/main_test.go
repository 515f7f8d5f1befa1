package main

import (
	"bytes"
	"fmt"
	"strings"
	"testing"

	"github.com/soypat/winc/wid"
)

func build(t *testing.T, resp bool, add func(m *wid.Message)) []byte {
	t.Helper()
	var m *wid.Message
	if resp {
		m = wid.NewResponse(make([]byte, 0, 64))
	} else {
		m = wid.NewMessage(make([]byte, 0, 64))
	}
	add(m)
	msg, err := m.Finalize()
	if err != nil {
		t.Fatal(err)
	}
	return append([]byte(nil), msg...)
}

func TestSplitMessages(t *testing.T) {
	query := build(t, false, func(m *wid.Message) { m.AddQuery(wid.MACAddr) })
	write := build(t, false, func(m *wid.Message) { m.AddValue(wid.StartScan, 1) })

	var data []byte
	data = append(data, 0xff, 0xff, 0xff) // Filler.
	data = append(data, query...)
	data = append(data, write...)
	data = append(data, write[:len(write)-1]...) // Cut short by CS.
	msgs, skipped := splitMessages(data)
	if len(msgs) != 2 {
		t.Fatalf("got %d messages, want 2", len(msgs))
	}
	if !bytes.Equal(msgs[0], query) || !bytes.Equal(msgs[1], write) {
		t.Errorf("messages %x", msgs)
	}
	if skipped != 3+len(write)-1 {
		t.Errorf("skipped %d", skipped)
	}

	if msgs, skipped := splitMessages([]byte{'W', 0}); msgs != nil || skipped != 2 {
		t.Errorf("short buffer: %x %d", msgs, skipped)
	}
}

func TestDecoderCollapse(t *testing.T) {
	query := build(t, false, func(m *wid.Message) { m.AddQuery(wid.RSSI) })
	resp := build(t, true, func(m *wid.Message) { m.AddValue(wid.RSSI, 0xc4) })
	caps := []capture{
		{Dir: dirHost, Start: 0.1, Data: query},
		{Dir: dirFirmware, Start: 0.2, Data: resp},
		{Dir: dirFirmware, Start: 0.3, Data: resp},
		{Dir: dirHost, Start: 0.4, Data: query},
	}

	dec := Decoder{Collapse: true}
	entries := dec.messages(caps)
	if len(entries) != 3 {
		t.Fatalf("got %d entries, want 3", len(entries))
	}
	if entries[1].Num != 2 || entries[1].Dir != dirFirmware {
		t.Errorf("collapsed entry %+v", entries[1])
	}

	dec = Decoder{OmitHost: true}
	entries = dec.messages(caps)
	if len(entries) != 2 || entries[0].Num != 1 {
		t.Errorf("omit host: %+v", entries)
	}
}

func TestDecoderWrite(t *testing.T) {
	write := build(t, false, func(m *wid.Message) {
		m.AddString(wid.SSID, "lab")
		m.AddString(wid.Passphrase, "hunter22")
	})
	dec := Decoder{Raw: true}
	var buf bytes.Buffer
	err := dec.write(&buf, []entry{{Num: 1, Dir: dirHost, Start: 1.5, Msg: write}})
	if err != nil {
		t.Fatal(err)
	}
	line := buf.String()
	for _, want := range []string{"t=1.500000", "host>", "W len=", `SSID="lab"`, "<redacted>", "raw="} {
		if !strings.Contains(line, want) {
			t.Errorf("line missing %q: %s", want, line)
		}
	}
	if strings.Contains(line, "hunter22") {
		t.Errorf("passphrase leaked: %s", line)
	}
}

// csvExport renders one chip select assertion clocking out mosi and miso as
// a digital CSV export.
func csvExport(mosi, miso []byte) string {
	var sb strings.Builder
	sb.WriteString("Time [s],CS,MOSI,CLK,MISO\n")
	t := 0.0
	row := func(cs, mo, clk, mi int) {
		fmt.Fprintf(&sb, "%.7f,%d,%d,%d,%d\n", t, cs, mo, clk, mi)
		t += 1e-7
	}
	row(1, 0, 0, 0)
	row(0, 0, 0, 0)
	for i := range mosi {
		for bit := 7; bit >= 0; bit-- {
			mo := int(mosi[i]>>bit) & 1
			mi := int(miso[i]>>bit) & 1
			row(0, mo, 0, mi)
			row(0, mo, 1, mi)
		}
	}
	row(0, 0, 0, 0)
	row(1, 0, 0, 0)
	return sb.String()
}

func TestParseCSV(t *testing.T) {
	query := build(t, false, func(m *wid.Message) { m.AddQuery(wid.MACAddr) })
	resp := build(t, true, func(m *wid.Message) { m.AddValue(wid.ScanDone, 2) })
	n := max(len(query), len(resp))
	mosi, miso := make([]byte, n), make([]byte, n)
	copy(mosi, query)
	copy(miso, resp)

	caps, err := parseCSV(strings.NewReader(csvExport(mosi, miso)))
	if err != nil {
		t.Fatal(err)
	}
	if len(caps) != 2 {
		t.Fatalf("got %d captures, want 2", len(caps))
	}
	if caps[0].Dir != dirHost || !bytes.Equal(caps[0].Data, mosi) {
		t.Errorf("mosi %x, want %x", caps[0].Data, mosi)
	}
	msgs, _ := splitMessages(caps[0].Data)
	if len(msgs) != 1 || !bytes.Equal(msgs[0], query) {
		t.Errorf("mosi messages %x, want %x", msgs, query)
	}
	msgs, _ = splitMessages(caps[1].Data)
	if caps[1].Dir != dirFirmware || len(msgs) != 1 || !bytes.Equal(msgs[0], resp) {
		t.Errorf("miso messages %x, want %x", msgs, resp)
	}

	if _, err := parseCSV(strings.NewReader("t,cs\n0.1,1\n")); err == nil {
		t.Error("expected error for missing columns")
	}
}
