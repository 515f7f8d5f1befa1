package winc

import (
	"log/slog"

	"github.com/soypat/winc/wid"
)

// Association status values reported in wid.Status.
const (
	assocDown       = 0
	assocUp         = 1
	assocJoinFailed = 2
)

// BSSContext describes the network to join or to host.
type BSSContext struct {
	// SSID is the network name, 1..32 bytes.
	SSID string
	// BSSID pins the access point to join. The zero value joins any access
	// point advertising SSID.
	BSSID [6]byte
	// Channel is the channel to join or host. ChannelAny lets a STA join
	// on any enabled channel; an AP requires a specific channel.
	Channel uint8
	// Hidden suppresses the SSID in beacons. AP role only.
	Hidden bool
}

func (b BSSContext) validate() error {
	if len(b.SSID) == 0 || len(b.SSID) > wid.MaxSSIDLen {
		return StatusInvalidArg
	}
	if b.Channel != ChannelAny && ChannelBit(b.Channel) == 0 {
		return StatusInvalidArg
	}
	return nil
}

// BSSConnect starts joining a network in STA role. The outcome is reported
// as a ConnStateEvent. It fails with StatusRequestError while in AP role or
// while a STA link is connecting or connected, and with StatusInvalidArg
// when the channel is not enabled. A rejected call sends nothing and leaves
// the state unchanged.
func (d *Device) BSSConnect(bss BSSContext, auth AuthContext) error {
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
	if !d.channelAllowed(bss.Channel) {
		d.debug("connect:channel not enabled", slog.Int("ch", int(bss.Channel)),
			slog.Uint64("enabled", uint64(d.enabledChannels())))
		return StatusInvalidArg
	}
	if err := checkAuth(auth, false); err != nil {
		return err
	}
	m, buf, err := d.newCommand()
	if err != nil {
		return err
	}
	caps := auth.Capabilities()
	m.AddValue(wid.BSSType, 0) // infrastructure
	m.AddString(wid.SSID, bss.SSID)
	if bss.BSSID != ([6]byte{}) {
		m.AddData(wid.BSSID, bss.BSSID[:])
	}
	m.AddValue(wid.JoinChannel, uint32(bss.Channel))
	m.AddValue(wid.Settings11i, uint32(caps))
	m.AddValue(wid.AuthType, authTypeValue(caps))
	auth.addCredentials(m)
	m.AddValue(wid.Connect, 1)
	if err := d.commit(m, buf); err != nil {
		return err
	}
	d.sta.state = ConnConnecting
	d.sta.ssid = bss.SSID
	d.sta.auth = auth.AuthType()
	d.sta.td = caps.Has(wid.CapTransitionDisable)
	d.info("connect", slog.String("ssid", bss.SSID), slog.String("auth", auth.AuthType().String()),
		slog.Int("ch", int(bss.Channel)))
	return nil
}

// authTypeValue is the 802.11 authentication algorithm: 0 open system,
// 1 shared key, 3 SAE.
func authTypeValue(c wid.Cap) uint32 {
	switch {
	case c.Has(wid.CapSAE) && !c.Has(wid.CapPSK):
		return 3
	case c.Has(wid.CapSharedKey):
		return 1
	}
	return 0
}

// BSSDisconnect tears down the STA link. Teardown is accepted in any state
// but disconnected: a connected link reports one ConnStateEvent right away,
// a pending join is abandoned without notification.
func (d *Device) BSSDisconnect() error {
	if err := d.acquire(); err != nil {
		return err
	}
	defer d.release()
	return d.staDisconnect()
}

func (d *Device) staDisconnect() error {
	switch d.sta.state {
	case ConnConnected:
		d.staLinkDown()
	case ConnConnecting:
		d.sta.state = ConnDisconnected
	default:
		return StatusNotConnected
	}
	if err := d.sendValue(wid.Disconnect, 1); err != nil {
		d.logerr("disconnect:send", slog.String("err", err.Error()))
		return StatusDisconnectFail
	}
	return nil
}

// BSSConnState returns the state of the STA link.
func (d *Device) BSSConnState() ConnState {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.sta.state
}

// staLinkDown moves a connected STA link to disconnected and notifies.
func (d *Device) staLinkDown() {
	h := d.staHandle()
	peer := d.sta.rec.peer
	d.sta.state = ConnDisconnected
	d.sta.rec.free()
	d.linkDown(h)
	d.info("sta:link-down", slog.String("ssid", d.sta.ssid))
	d.emit(ConnStateEvent{Handle: h, Role: RoleSTA, State: ConnDisconnected, Peer: peer})
}

// onAssocStatus drives the STA state machine from the firmware association
// status. Status reports for the AP are routed to onAPStatus.
func (d *Device) onAssocStatus(v uint32) {
	if d.ap.active {
		d.onAPStatus(v)
		return
	}
	switch d.sta.state {
	case ConnConnecting:
		if v == assocUp {
			d.sta.state = ConnConnected
			d.sta.rec.claim()
			d.sta.rec.transitionDisable = d.sta.td
			h := d.staHandle()
			// Populate the record; answers are routed by the dispatcher.
			if err := d.sendQuery(wid.RSSI, wid.BSSID, wid.CurrentChannel); err != nil {
				d.diagnose(StatusOf(err), err)
			}
			d.info("sta:connected", slog.String("ssid", d.sta.ssid), slog.String("handle", h.String()))
			d.emit(ConnStateEvent{Handle: h, Role: RoleSTA, State: ConnConnected})
			return
		}
		d.sta.state = ConnFailed
		d.info("sta:join-failed", slog.String("ssid", d.sta.ssid), slog.Uint64("status", uint64(v)))
		d.emit(ConnStateEvent{Role: RoleSTA, State: ConnFailed, Err: StatusConnectFail})
	case ConnConnected:
		if v != assocUp {
			d.staLinkDown()
		}
	default:
		d.trace("sta:stale status", slog.Uint64("status", uint64(v)), slog.String("state", d.sta.state.String()))
	}
}

func (d *Device) onRSSI(v int8) {
	if d.sta.state != ConnConnected {
		return
	}
	d.sta.rec.rssi = v
	d.sta.rec.rssiValid = true
	d.emit(RSSIEvent{Handle: d.staHandle(), RSSI: v})
}

func (d *Device) onBSSID(b []byte) {
	if d.sta.state != ConnConnected || len(b) != 6 {
		return
	}
	copy(d.sta.rec.peer[:], b)
	d.sta.rec.peerKnown = true
}

func (d *Device) onChannel(ch uint8) {
	if d.sta.state != ConnConnected {
		return
	}
	d.sta.rec.channel = ch
}
