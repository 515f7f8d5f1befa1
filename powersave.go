package winc

import (
	"log/slog"

	"github.com/soypat/winc/wid"
)

// PowerSaveMode is a power management preset.
type PowerSaveMode uint8

const (
	// PowerSaveNone disables power management. This consumes the most power.
	PowerSaveNone PowerSaveMode = iota
	// PowerSaveSuper maxes out every power saving feature at only a marginal
	// gain over PowerSaveAggressive. Officially unsupported by firmware.
	PowerSaveSuper
	PowerSaveAggressive
	// PowerSaveDefault is the mode the firmware boots in.
	PowerSaveDefault
	// PowerSavePerformance prefers throughput but still conserves some power.
	PowerSavePerformance
	// PowerSaveThroughputThrottling lowers power consumption at all times at
	// the cost of a much lower throughput.
	PowerSaveThroughputThrottling
)

// IsValid reports whether pm is a known preset.
func (pm PowerSaveMode) IsValid() bool {
	return pm <= PowerSaveThroughputThrottling
}

func (pm PowerSaveMode) String() string {
	switch pm {
	case PowerSaveNone:
		return "none"
	case PowerSaveSuper:
		return "super"
	case PowerSaveAggressive:
		return "aggressive"
	case PowerSaveDefault:
		return "default"
	case PowerSavePerformance:
		return "performance"
	case PowerSaveThroughputThrottling:
		return "throughput-throttling"
	}
	return "unknown"
}

// sleepReturnMs is the time the radio stays awake after traffic.
func (pm PowerSaveMode) sleepReturnMs() uint16 {
	switch pm {
	case PowerSaveSuper, PowerSaveAggressive:
		return 2000
	case PowerSaveDefault:
		return 200
	case PowerSavePerformance:
		return 20
	}
	return 0 // unused
}

func (pm PowerSaveMode) dtimPeriod() uint8 {
	switch pm {
	case PowerSaveSuper:
		return 255
	case PowerSaveAggressive, PowerSaveDefault, PowerSavePerformance:
		return 1
	}
	return 0
}

// listenInterval is in beacon periods.
func (pm PowerSaveMode) listenInterval() uint8 {
	switch pm {
	case PowerSaveSuper:
		return 255
	case PowerSaveAggressive, PowerSaveDefault:
		return 10
	case PowerSavePerformance:
		return 1
	}
	return 0
}

// mode returns the firmware's power management mode number.
func (pm PowerSaveMode) mode() uint8 {
	switch pm {
	case PowerSaveNone:
		return 0
	case PowerSaveThroughputThrottling:
		return 1
	}
	return 2
}

// SetPowerSave applies a power management preset. Presets using the
// firmware's timed sleep also carry listen interval, DTIM period and sleep
// return time.
func (d *Device) SetPowerSave(pm PowerSaveMode) error {
	if !pm.IsValid() {
		return StatusInvalidArg
	}
	if err := d.acquire(); err != nil {
		return err
	}
	defer d.release()
	m, buf, err := d.newCommand()
	if err != nil {
		return err
	}
	mode := pm.mode()
	m.AddValue(wid.PowerManagement, uint32(mode))
	if mode == 2 {
		m.AddValue(wid.PSReturnTime, uint32(pm.sleepReturnMs()))
		m.AddValue(wid.ListenInterval, uint32(pm.listenInterval()))
		m.AddValue(wid.DTIMPeriod, uint32(pm.dtimPeriod()))
	}
	if err := d.commit(m, buf); err != nil {
		return err
	}
	d.ps = pm
	d.debug("powersave", slog.String("mode", pm.String()))
	return nil
}

// PowerSave returns the last applied preset and whether the firmware last
// reported being asleep.
func (d *Device) PowerSave() (pm PowerSaveMode, asleep bool) {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.ps, d.asleep
}

func (d *Device) onPowerSave(asleep bool) {
	if asleep == d.asleep {
		return
	}
	d.asleep = asleep
	d.trace("powersave:event", slog.Bool("asleep", asleep))
	d.emit(PowerSaveEvent{Asleep: asleep})
}
