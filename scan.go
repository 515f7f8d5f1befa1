package winc

import (
	"errors"
	"log/slog"
	"strconv"

	"github.com/soypat/winc/wid"
)

var (
	errScanIndex = errors.New("scan result index beyond advertised total")
	errScanFull  = errors.New("scan result beyond table capacity")
)

type scanState uint8

const (
	scanIdle scanState = iota
	scanScanning
	scanPopulating
)

func (s scanState) String() string {
	switch s {
	case scanIdle:
		return "idle"
	case scanScanning:
		return "scanning"
	case scanPopulating:
		return "populating"
	}
	return "scanstate?"
}

type bssEntry struct {
	valid   bool
	ssid    string
	bssid   [6]byte
	channel uint8
	rssi    int8
	caps    wid.Cap
}

// scanCache holds the results of the current scan generation. A generation
// begins with the first result of a scan and ends when every advertised
// entry was stored or the firmware reports the scan done.
type scanCache struct {
	state   scanState
	entries []bssEntry
	total   int
	filled  int
	cursor  int
	hasGen  bool
}

func (s *scanCache) reset() {
	s.state = scanIdle
	s.total = 0
	s.filled = 0
	s.cursor = 0
	s.hasGen = false
	clear(s.entries)
}

// restart begins a new generation of total entries.
func (s *scanCache) restart(total int) {
	clear(s.entries)
	s.total = total
	s.filled = 0
	s.cursor = 0
	s.hasGen = true
}

// expected is the number of entries that can be stored for the generation.
func (s *scanCache) expected() int {
	return min(s.total, len(s.entries))
}

// BSSInfo describes one scanned BSS.
type BSSInfo struct {
	SSID    string
	BSSID   [6]byte
	Channel uint8
	RSSI    int8
	Caps    wid.Cap
	SecMask SecMask
	// Auth is the strongest authentication type the BSS supports.
	Auth AuthType
}

// BSSFindFirst starts a scan on channel, or on all enabled channels with
// ChannelAny. A non-empty ssids list directs an active scan at those
// networks. Results are reported with ScanResultEvent and ScanDoneEvent and
// then read with BSSGetInfo and BSSFindNext.
func (d *Device) BSSFindFirst(channel uint8, ssids []string, active bool) error {
	if err := d.acquire(); err != nil {
		return err
	}
	defer d.release()
	if d.scan.state != scanIdle {
		return StatusScanInProgress
	}
	if !d.channelAllowed(channel) {
		return StatusInvalidArg
	}
	if len(ssids) > 0 && !active {
		return StatusInvalidArg
	}
	if len(ssids) > d.cfg.MaxScanSSIDs {
		return StatusInvalidArg
	}
	for _, s := range ssids {
		if len(s) == 0 || len(s) > wid.MaxSSIDLen {
			return StatusInvalidArg
		}
	}
	mask := d.enabledChannels()
	if channel != ChannelAny {
		mask = ChannelBit(channel)
	}
	m, buf, err := d.newCommand()
	if err != nil {
		return err
	}
	p := d.scanParams
	m.AddValue(wid.ScanChannelMask, uint32(mask))
	m.AddValue(wid.ScanType, b2u32(active))
	m.AddValue(wid.ScanSlotCount, uint32(p.SlotCount))
	m.AddValue(wid.ActiveScanTime, uint32(p.ActiveDwell.Milliseconds()))
	m.AddValue(wid.PassiveScanTime, uint32(p.PassiveDwell.Milliseconds()))
	m.AddValue(wid.ScanProbeCount, uint32(p.ProbeCount))
	if len(ssids) > 0 {
		var list [1 + 4*(1+wid.MaxSSIDLen)]byte
		m.AddData(wid.ScanSSIDList, wid.AppendSSIDList(list[:0], ssids))
	}
	m.AddValue(wid.StartScan, 1)
	if err := d.commit(m, buf); err != nil {
		return err
	}
	d.scan.reset()
	d.scan.state = scanScanning
	d.debug("scan:start", slog.Uint64("mask", uint64(mask)), slog.Bool("active", active), slog.Int("ssids", len(ssids)))
	return nil
}

// BSSFindNext advances the read cursor. The cursor may move one past the last
// entry, where BSSGetInfo yields StatusNoBssInfo; advancing further returns
// StatusBssFindEnd.
func (d *Device) BSSFindNext() error {
	if err := d.acquire(); err != nil {
		return err
	}
	defer d.release()
	if d.scan.state != scanIdle {
		return StatusScanInProgress
	}
	if !d.scan.hasGen {
		return StatusNoBssInfo
	}
	if d.scan.cursor+1 > d.scan.total {
		return StatusBssFindEnd
	}
	d.scan.cursor++
	return nil
}

// BSSFindReset moves the read cursor back to the first entry.
func (d *Device) BSSFindReset() error {
	if err := d.acquire(); err != nil {
		return err
	}
	defer d.release()
	d.scan.cursor = 0
	return nil
}

// BSSFindTotal returns the number of entries advertised by the current scan
// generation.
func (d *Device) BSSFindTotal() int {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.scan.total
}

// BSSGetInfo returns the entry at the read cursor. Entries the firmware
// advertised but never delivered, and entries beyond table capacity, yield
// StatusNoBssInfo.
func (d *Device) BSSGetInfo() (BSSInfo, error) {
	if err := d.acquire(); err != nil {
		return BSSInfo{}, err
	}
	defer d.release()
	s := &d.scan
	if !s.hasGen || s.cursor >= s.total || s.cursor >= len(s.entries) || !s.entries[s.cursor].valid {
		return BSSInfo{}, StatusNoBssInfo
	}
	e := &s.entries[s.cursor]
	return BSSInfo{
		SSID:    e.ssid,
		BSSID:   e.bssid,
		Channel: e.channel,
		RSSI:    e.rssi,
		Caps:    e.caps,
		SecMask: SecMaskFromCaps(e.caps),
		Auth:    RecommendedAuth(e.caps),
	}, nil
}

// onScanResult stores one partial scan result.
func (d *Device) onScanResult(sr wid.ScanEntry) {
	s := &d.scan
	idx, total := int(sr.Index), int(sr.Total)
	if idx >= total {
		d.diagnose(StatusInvalidArg, errScanIndex)
		return
	}
	if idx == 0 || !s.hasGen || total != s.total {
		s.restart(total)
	}
	if s.state == scanScanning {
		s.state = scanPopulating
	}
	if idx >= len(s.entries) {
		d.diagnose(StatusNoSpace, errors.Join(errScanFull, errors.New("index "+strconv.Itoa(idx))))
		return
	}
	e := &s.entries[idx]
	if !e.valid {
		s.filled++
	}
	*e = bssEntry{
		valid:   true,
		ssid:    sr.SSID,
		bssid:   sr.BSSID,
		channel: sr.Channel,
		rssi:    sr.RSSI,
		caps:    sr.Caps,
	}
	d.trace("scan:result", slog.Int("idx", idx), slog.Int("total", total), slog.String("ssid", sr.SSID))
	d.emit(ScanResultEvent{Index: idx, Total: total})
	if s.filled >= s.expected() {
		d.scanFinish()
	}
}

// onScanDone ends the scan. count is the number of BSS found.
func (d *Device) onScanDone(count int) {
	s := &d.scan
	if s.state == scanIdle {
		return
	}
	if !s.hasGen {
		// Nothing delivered: the generation is whatever the firmware found.
		s.restart(count)
	}
	d.scanFinish()
}

func (d *Device) scanFinish() {
	s := &d.scan
	if s.state == scanIdle {
		return
	}
	s.state = scanIdle
	s.cursor = 0
	d.debug("scan:done", slog.Int("total", s.total), slog.Int("stored", s.filled))
	d.emit(ScanDoneEvent{Total: s.total})
}

// scanAbort returns a scan rejected by the firmware to idle without a
// generation.
func (d *Device) scanAbort() {
	if d.scan.state == scanIdle {
		return
	}
	d.scan.reset()
	d.emit(ScanDoneEvent{})
}
