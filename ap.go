package winc

import (
	"errors"
	"log/slog"

	"github.com/soypat/winc/wid"
)

var errAPSlotsFull = errors.New("no free access point slot for station")

// APStart brings up an access point. The outcome is reported as an
// APStateEvent; stations joining and leaving are reported as ConnStateEvents
// with RoleAP handles. An AP requires a specific enabled channel and cannot
// use WPA/WPA2 mixed mode.
func (d *Device) APStart(bss BSSContext, auth AuthContext) error {
	if err := d.acquire(); err != nil {
		return err
	}
	defer d.release()
	if d.ap.active || d.sta.state == ConnConnecting || d.sta.state == ConnConnected {
		return StatusRequestError
	}
	if err := bss.validate(); err != nil {
		return err
	}
	if bss.Channel == ChannelAny || !d.channelAllowed(bss.Channel) {
		return StatusInvalidArg
	}
	if err := checkAuth(auth, true); err != nil {
		return err
	}
	if d.mac == ([6]byte{}) {
		return StatusRfMacConfigNotValid
	}
	m, buf, err := d.newCommand()
	if err != nil {
		return err
	}
	caps := auth.Capabilities()
	m.AddValue(wid.BSSType, 2) // access point
	m.AddString(wid.SSID, bss.SSID)
	m.AddValue(wid.APChannel, uint32(bss.Channel))
	m.AddValue(wid.HiddenSSID, b2u32(bss.Hidden))
	m.AddValue(wid.Settings11i, uint32(caps))
	m.AddValue(wid.AuthType, authTypeValue(caps))
	auth.addCredentials(m)
	m.AddValue(wid.APControl, 1)
	if err := d.commit(m, buf); err != nil {
		return err
	}
	d.ap.active = true
	d.ap.state = ConnConnecting
	d.ap.ssid = bss.SSID
	d.ap.channel = bss.Channel
	for i := range d.ap.peers {
		d.ap.peers[i].free()
	}
	d.info("ap:start", slog.String("ssid", bss.SSID), slog.Int("ch", int(bss.Channel)),
		slog.String("auth", auth.AuthType().String()))
	return nil
}

// APStop takes the access point down. Associated stations are released and
// reported as disconnected.
func (d *Device) APStop() error {
	if err := d.acquire(); err != nil {
		return err
	}
	defer d.release()
	if !d.ap.active {
		return StatusRequestError
	}
	err := d.sendValue(wid.APControl, 0)
	for i := range d.ap.peers {
		if d.ap.peers[i].inUse {
			d.apPeerLeft(i)
		}
	}
	wasUp := d.ap.state == ConnConnected
	d.ap.active = false
	d.ap.state = ConnDisconnected
	if wasUp {
		d.emit(APStateEvent{State: ConnDisconnected})
	}
	d.info("ap:stop", slog.String("ssid", d.ap.ssid))
	if err != nil {
		return StatusDisconnectFail
	}
	return nil
}

// APState returns the state of the access point.
func (d *Device) APState() ConnState {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.ap.state
}

func (d *Device) onAPStatus(v uint32) {
	switch d.ap.state {
	case ConnConnecting:
		if v == assocUp {
			d.ap.state = ConnConnected
			d.emit(APStateEvent{State: ConnConnected})
			return
		}
		d.ap.state = ConnFailed
		d.ap.active = false
		d.emit(APStateEvent{State: ConnFailed})
	case ConnConnected:
		if v == assocUp {
			return
		}
		for i := range d.ap.peers {
			if d.ap.peers[i].inUse {
				d.apPeerLeft(i)
			}
		}
		d.ap.state = ConnDisconnected
		d.ap.active = false
		d.emit(APStateEvent{State: ConnDisconnected})
	}
}

// onStationInfo handles a station joining or leaving the access point.
func (d *Device) onStationInfo(si wid.Station) {
	if !d.ap.active {
		return
	}
	slot, free := -1, -1
	for i := range d.ap.peers {
		rec := &d.ap.peers[i]
		if rec.inUse && rec.peer == si.MAC {
			slot = i
			break
		} else if !rec.inUse && free < 0 {
			free = i
		}
	}
	if !si.Joined {
		if slot >= 0 {
			d.apPeerLeft(slot)
		}
		return
	}
	isNew := slot < 0
	if isNew {
		if free < 0 {
			d.diagnose(StatusNoSpace, errAPSlotsFull)
			return
		}
		slot = free
		d.ap.peers[slot].claim()
	}
	rec := &d.ap.peers[slot]
	rec.peer = si.MAC
	rec.peerKnown = true
	rec.assocID = si.AssocID
	rec.rssi = si.RSSI
	rec.rssiValid = true
	rec.channel = d.ap.channel
	if !isNew {
		return
	}
	h := makeHandle(RoleAP, slot, rec.gen)
	d.info("ap:peer-joined", macAttr("mac", si.MAC), slog.String("handle", h.String()))
	d.emit(ConnStateEvent{Handle: h, Role: RoleAP, State: ConnConnected, Peer: si.MAC})
}

func b2u32(b bool) uint32 {
	if b {
		return 1
	}
	return 0
}
