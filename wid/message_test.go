package wid

import (
	"bytes"
	"errors"
	"testing"
)

func TestMessageRoundTrip(t *testing.T) {
	var buf [128]byte
	m := NewMessage(buf[:0])
	mustOK(t, m.AddValue(ScanType, 1))
	mustOK(t, m.AddValue(ActiveScanTime, 0x1234))
	mustOK(t, m.AddValue(CommandStatus, 0xdeadbeef))
	mustOK(t, m.AddString(SSID, "hello"))
	mustOK(t, m.AddData(ScanSSIDList, []byte{1, 2, 3, 250}))
	msg, err := m.Finalize()
	if err != nil {
		t.Fatal(err)
	}
	if msg[0] != KindWrite || msg[1] != 0 {
		t.Fatalf("bad header % x", msg[:4])
	}
	if got := int(DecodeHeader(msg).Length); got != len(msg) {
		t.Fatalf("header length %d, message length %d", got, len(msg))
	}
	want := []Record{
		{ID: ScanType, Value: []byte{1}},
		{ID: ActiveScanTime, Value: []byte{0x34, 0x12}},
		{ID: CommandStatus, Value: []byte{0xef, 0xbe, 0xad, 0xde}},
		{ID: SSID, Value: []byte("hello")},
		{ID: ScanSSIDList, Value: []byte{1, 2, 3, 250}},
	}
	r, err := NewReader(msg)
	if err != nil {
		t.Fatal(err)
	}
	i := 0
	for r.Next() {
		rec := r.Record()
		if i >= len(want) {
			t.Fatalf("extra record %v", rec)
		}
		if rec.ID != want[i].ID || !bytes.Equal(rec.Value, want[i].Value) {
			t.Errorf("record %d: got %v want %v", i, rec, want[i])
		}
		i++
	}
	if r.Err() != nil {
		t.Fatal(r.Err())
	}
	if i != len(want) {
		t.Fatalf("decoded %d records, want %d", i, len(want))
	}
}

func TestMessageBinaryChecksum(t *testing.T) {
	var buf [64]byte
	m := NewMessage(buf[:0])
	data := []byte{0x80, 0x80, 0x01}
	mustOK(t, m.AddData(WEPKey, data))
	msg, err := m.Finalize()
	if err != nil {
		t.Fatal(err)
	}
	// header, id, len16, data, checksum
	if len(msg) != HeaderLen+2+2+len(data)+1 {
		t.Fatalf("unexpected length %d", len(msg))
	}
	if sum := msg[len(msg)-1]; sum != 0x01 {
		t.Fatalf("checksum %#x, want 0x01", sum)
	}
	msg[len(msg)-1] ^= 0xff
	r, _ := NewReader(msg)
	if r.Next() {
		t.Fatal("record with bad checksum decoded")
	}
	if !errors.Is(r.Err(), ErrChecksum) {
		t.Fatalf("got %v, want checksum error", r.Err())
	}
}

func TestMessageQuery(t *testing.T) {
	var buf [32]byte
	m := NewMessage(buf[:0])
	mustOK(t, m.AddQuery(RSSI))
	mustOK(t, m.AddQuery(BSSID))
	msg, err := m.Finalize()
	if err != nil {
		t.Fatal(err)
	}
	if msg[0] != KindQuery {
		t.Fatalf("kind %q", msg[0])
	}
	r, _ := NewReader(msg)
	var ids []ID
	for r.Next() {
		if r.Record().Value != nil {
			t.Error("query record carries a value")
		}
		ids = append(ids, r.Record().ID)
	}
	if len(ids) != 2 || ids[0] != RSSI || ids[1] != BSSID {
		t.Fatalf("got ids %v", ids)
	}
}

func TestMessageExclusiveOps(t *testing.T) {
	var buf [32]byte
	m := NewMessage(buf[:0])
	mustOK(t, m.AddValue(Connect, 1))
	if err := m.AddQuery(RSSI); !errors.Is(err, ErrMixedOps) {
		t.Fatalf("query after write: got %v", err)
	}
	// Sticky.
	if err := m.AddValue(Connect, 1); !errors.Is(err, ErrMixedOps) {
		t.Fatalf("error not sticky: %v", err)
	}
	if _, err := m.Finalize(); !errors.Is(err, ErrMixedOps) {
		t.Fatalf("finalize errored message: %v", err)
	}

	m.Reset(buf[:0])
	mustOK(t, m.AddQuery(RSSI))
	if err := m.AddString(SSID, "x"); !errors.Is(err, ErrMixedOps) {
		t.Fatalf("write after query: got %v", err)
	}
}

func TestMessageAddValueRejectsNonInteger(t *testing.T) {
	for _, id := range []ID{SSID, ScanResult, 0x5001, 0xf000} {
		var buf [32]byte
		m := NewMessage(buf[:0])
		if err := m.AddValue(id, 1); !errors.Is(err, ErrNotInteger) {
			t.Errorf("%v: got %v", id, err)
		}
		if _, err := m.Finalize(); err == nil {
			t.Errorf("%v: finalize succeeded after error", id)
		}
	}
}

func TestMessageOverflow(t *testing.T) {
	buf := make([]byte, 0, HeaderLen+4)
	m := NewMessage(buf)
	mustOK(t, m.AddValue(RSSI, 1))
	if m.Len() != HeaderLen+4 {
		t.Fatalf("len %d", m.Len())
	}
	if err := m.AddValue(RSSI, 1); !errors.Is(err, ErrOverflow) {
		t.Fatalf("got %v, want overflow", err)
	}
	if m.Records() != 1 {
		t.Fatalf("records %d after overflow", m.Records())
	}

	m = NewMessage(make([]byte, 0, 600))
	if err := m.AddData(SSID, make([]byte, 256)); !errors.Is(err, ErrValueTooLong) {
		t.Fatalf("got %v, want too long", err)
	}
	m = NewMessage(make([]byte, 2))
	if !errors.Is(m.Err(), ErrOverflow) {
		t.Fatal("tiny buffer accepted")
	}
}

func TestMessageEmpty(t *testing.T) {
	m := NewMessage(make([]byte, 0, 16))
	if _, err := m.Finalize(); !errors.Is(err, ErrNothingToSend) {
		t.Fatalf("got %v", err)
	}
}

func TestResponseRejectsQuery(t *testing.T) {
	m := NewResponse(make([]byte, 0, 16))
	if err := m.AddQuery(RSSI); !errors.Is(err, ErrWrongKind) {
		t.Fatalf("got %v", err)
	}
	m = NewResponse(make([]byte, 0, 16))
	mustOK(t, m.AddValue(Status, 1))
	msg, err := m.Finalize()
	if err != nil {
		t.Fatal(err)
	}
	if msg[0] != KindResponse {
		t.Fatalf("kind %q", msg[0])
	}
}

func TestReaderTruncated(t *testing.T) {
	var buf [64]byte
	m := NewMessage(buf[:0])
	mustOK(t, m.AddString(SSID, "network"))
	msg, _ := m.Finalize()
	for cut := HeaderLen + 1; cut < len(msg); cut++ {
		trunc := append([]byte(nil), msg[:cut]...)
		Header{Kind: KindWrite, Length: uint16(cut)}.Put(trunc)
		r, err := NewReader(trunc)
		if err != nil {
			t.Fatalf("cut %d: %v", cut, err)
		}
		for r.Next() {
		}
		if !errors.Is(r.Err(), ErrTruncated) {
			t.Errorf("cut %d: got %v, want truncated", cut, r.Err())
		}
	}
	if _, err := NewReader(msg[:len(msg)-1]); !errors.Is(err, ErrTruncated) {
		t.Fatalf("header longer than buffer: got %v", err)
	}
	msg[0] = 'X'
	if _, err := NewReader(msg); !errors.Is(err, ErrBadKind) {
		t.Fatalf("bad kind: got %v", err)
	}
}

func TestReaderBadIntegerWidth(t *testing.T) {
	tests := []struct {
		name string
		msg  []byte
	}{
		{"empty status", []byte{'R', 0, 7, 0, 0x05, 0x00, 0x00}},
		{"wide scan done", []byte{'R', 0, 9, 0, 0x24, 0x00, 0x02, 0x01, 0x00}},
		{"short command status", []byte{'R', 0, 9, 0, 0x20, 0x20, 0x02, 0x01, 0x00}},
		{"empty channel mask", []byte{'W', 0, 7, 0, 0x13, 0x10, 0x00}},
	}
	for _, tt := range tests {
		r, err := NewReader(tt.msg)
		if err != nil {
			t.Fatalf("%s: %v", tt.name, err)
		}
		if r.Next() {
			t.Errorf("%s: decoded %v", tt.name, r.Record())
		}
		if !errors.Is(r.Err(), ErrBadLength) {
			t.Errorf("%s: got %v, want bad length", tt.name, r.Err())
		}
	}

	// Records before the malformed one are still returned.
	msg := []byte{'R', 0, 11, 0, 0x05, 0x00, 0x01, 0x01, 0x1f, 0x00, 0x00}
	r, err := NewReader(msg)
	if err != nil {
		t.Fatal(err)
	}
	if !r.Next() || r.Record().ID != Status || r.Record().Uint() != 1 {
		t.Fatalf("first record %v err %v", r.Record(), r.Err())
	}
	if r.Next() || !errors.Is(r.Err(), ErrBadLength) {
		t.Errorf("second record: got %v", r.Err())
	}
}

func TestIDType(t *testing.T) {
	tests := []struct {
		id   ID
		want Type
	}{
		{Status, TypeChar},
		{ActiveScanTime, TypeShort},
		{CommandStatus, TypeInt},
		{SSID, TypeStr},
		{ScanResult, TypeBinary},
	}
	for _, tt := range tests {
		if got := tt.id.Type(); got != tt.want {
			t.Errorf("%v: type %v, want %v", tt.id, got, tt.want)
		}
	}
}

func TestRecordStringRedacts(t *testing.T) {
	rec := Record{ID: Passphrase, Value: []byte("supersecret")}
	if s := rec.String(); bytes.Contains([]byte(s), []byte("supersecret")) {
		t.Fatalf("secret leaked: %s", s)
	}
}

func mustOK(t *testing.T, err error) {
	t.Helper()
	if err != nil {
		t.Fatal(err)
	}
}
