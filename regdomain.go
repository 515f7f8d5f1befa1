package winc

import (
	"log/slog"

	"github.com/soypat/winc/wid"
)

// RegDomain is a regulatory domain and the channels it permits.
type RegDomain struct {
	// Name is a short firmware identifier such as "US" or "EU".
	Name string
	// ChannelMask has bit 0 set for channel 1 through bit 13 for channel 14.
	ChannelMask uint16
}

// RegDomainSet asks the firmware to switch regulatory domain. The firmware
// answers with the domain in force, reported as a RegDomainEvent. Switching
// is refused while a link is up or being brought up.
func (d *Device) RegDomainSet(name string) error {
	if len(name) == 0 || len(name) > 6 {
		return StatusInvalidArg
	}
	for i := 0; i < len(name); i++ {
		if name[i] <= ' ' || name[i] > '~' {
			return StatusInvalidArg
		}
	}
	if err := d.acquire(); err != nil {
		return err
	}
	defer d.release()
	if d.role() != RoleNone {
		return StatusRequestError
	}
	m, buf, err := d.newCommand()
	if err != nil {
		return err
	}
	m.AddString(wid.RegDomain, name)
	if err := d.commit(m, buf); err != nil {
		return err
	}
	// Ask right away so the answer replaces the cached domain.
	d.regKnown = false
	return d.sendQuery(wid.RegDomainInfo)
}

// RegDomainGet returns the regulatory domain in force. If it is not known
// yet a query is sent and StatusRetryRequest returned; the answer arrives as
// a RegDomainEvent.
func (d *Device) RegDomainGet() (RegDomain, error) {
	if err := d.acquire(); err != nil {
		return RegDomain{}, err
	}
	defer d.release()
	if d.regKnown {
		return d.reg, nil
	}
	if err := d.sendQuery(wid.RegDomainInfo); err != nil {
		return RegDomain{}, err
	}
	return RegDomain{}, StatusRetryRequest
}

func (d *Device) onRegDomain(rd RegDomain) {
	rd.ChannelMask &= ChannelMaskAll
	d.reg = rd
	d.regKnown = true
	d.info("regdomain", slog.String("name", rd.Name), slog.Uint64("mask", uint64(rd.ChannelMask)),
		slog.Uint64("enabled", uint64(d.enabledChannels())))
	d.emit(RegDomainEvent{RegDomain: rd})
}

// SetMACAddress programs the station MAC address. Multicast and all-zero
// addresses are refused with StatusRfMacConfigNotValid. The address can only
// change while no link is up.
func (d *Device) SetMACAddress(mac [6]byte) error {
	if mac == ([6]byte{}) || mac[0]&1 != 0 {
		return StatusRfMacConfigNotValid
	}
	if err := d.acquire(); err != nil {
		return err
	}
	defer d.release()
	if d.role() != RoleNone {
		return StatusRequestError
	}
	m, buf, err := d.newCommand()
	if err != nil {
		return err
	}
	m.AddData(wid.MACAddr, mac[:])
	if err := d.commit(m, buf); err != nil {
		return err
	}
	d.mac = mac
	return nil
}
