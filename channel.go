package winc

import (
	"log/slog"
	"time"
)

// ChannelAny lets the firmware pick the channel of a connect or scan.
const ChannelAny uint8 = 255

// ChannelMaskAll enables the 2.4GHz channels 1 through 14.
const ChannelMaskAll uint16 = 1<<14 - 1

// ChannelBit returns the channel mask bit of channel ch (1..14), or 0 for
// out of range channels.
func ChannelBit(ch uint8) uint16 {
	if ch < 1 || ch > 14 {
		return 0
	}
	return 1 << (ch - 1)
}

func checkChannelMask(mask uint16) error {
	if mask == 0 || mask&^ChannelMaskAll != 0 {
		return StatusInvalidArg
	}
	return nil
}

// enabledChannels is the user mask restricted by the regulatory domain.
// d.mu must be held.
func (d *Device) enabledChannels() uint16 {
	return d.chanMask & d.reg.ChannelMask
}

// channelAllowed reports whether ch may be used for connect or scan.
// ChannelAny is allowed while at least one channel is enabled.
func (d *Device) channelAllowed(ch uint8) bool {
	enabled := d.enabledChannels()
	if ch == ChannelAny {
		return enabled != 0
	}
	return enabled&ChannelBit(ch) != 0
}

// SetChannelMask sets the user channel mask. Bit 0 is channel 1 and bit 13
// channel 14; the mask must be non-zero.
func (d *Device) SetChannelMask(mask uint16) error {
	if err := checkChannelMask(mask); err != nil {
		return err
	}
	d.mu.Lock()
	defer d.mu.Unlock()
	d.chanMask = mask
	d.debug("channel mask", slog.Uint64("user", uint64(mask)), slog.Uint64("enabled", uint64(d.enabledChannels())))
	return nil
}

// EnabledChannels returns the channels usable for connect and scan: the user
// mask restricted by the regulatory domain.
func (d *Device) EnabledChannels() uint16 {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.enabledChannels()
}

// ScanParams tunes how the firmware scans.
type ScanParams struct {
	// SlotCount is the number of dwell slots per channel, 1..16.
	SlotCount uint8
	// ActiveDwell is the dwell time per slot of an active scan, 10ms..500ms.
	ActiveDwell time.Duration
	// PassiveDwell is the dwell time per slot of a passive scan, 10ms..1.2s.
	PassiveDwell time.Duration
	// ProbeCount is the number of probe requests per slot, 1..5.
	ProbeCount uint8
}

// DefaultScanParams returns the scan parameters used when none are configured.
func DefaultScanParams() ScanParams {
	return ScanParams{
		SlotCount:    2,
		ActiveDwell:  20 * time.Millisecond,
		PassiveDwell: 300 * time.Millisecond,
		ProbeCount:   2,
	}
}

// Validate checks every parameter is within bounds.
func (p ScanParams) Validate() error {
	switch {
	case p.SlotCount < 1 || p.SlotCount > 16,
		p.ActiveDwell < 10*time.Millisecond || p.ActiveDwell > 500*time.Millisecond,
		p.PassiveDwell < 10*time.Millisecond || p.PassiveDwell > 1200*time.Millisecond,
		p.ProbeCount < 1 || p.ProbeCount > 5:
		return StatusInvalidArg
	}
	return nil
}

// SetScanParams replaces the scan parameters. They are sent along with the
// next scan request.
func (d *Device) SetScanParams(p ScanParams) error {
	if err := p.Validate(); err != nil {
		return err
	}
	d.mu.Lock()
	defer d.mu.Unlock()
	d.scanParams = p
	return nil
}
