package winc

import (
	"log/slog"
	"strconv"

	"github.com/soypat/winc/wid"
)

// maxAssocSlots is the number of slots addressable by a handle.
const maxAssocSlots = 0xff

// AssocHandle identifies one association: the STA link or an AP peer slot.
// A handle encodes the slot generation, so a handle kept after its
// association ended is rejected with StatusInvalidArg. The zero handle is
// never valid.
type AssocHandle uint32

func makeHandle(role Role, slot int, gen uint16) AssocHandle {
	return AssocHandle(uint32(gen)<<16 | uint32(role)<<8 | uint32(slot))
}

func (h AssocHandle) role() Role { return Role(h >> 8 & 0xff) }

func (h AssocHandle) slot() int { return int(h & 0xff) }

func (h AssocHandle) gen() uint16 { return uint16(h >> 16) }

// Role returns the role of the association identified by h.
func (h AssocHandle) Role() Role { return h.role() }

func (h AssocHandle) String() string {
	return h.role().String() + "/" + strconv.Itoa(h.slot()) + "#" + strconv.Itoa(int(h.gen()))
}

// assocRecord is the driver side record of one association. A free record
// keeps its generation so stale handles stay detectable.
type assocRecord struct {
	gen               uint16
	inUse             bool
	peer              [6]byte
	peerKnown         bool
	rssi              int8
	rssiValid         bool
	assocID           uint16
	channel           uint8
	transitionDisable bool
}

func (r *assocRecord) claim() {
	gen := r.gen + 1
	if gen == 0 {
		gen = 1
	}
	*r = assocRecord{gen: gen, inUse: true}
}

func (r *assocRecord) free() {
	*r = assocRecord{gen: r.gen}
}

// AssocInfo is a snapshot of an association record.
type AssocInfo struct {
	Handle  AssocHandle
	Role    Role
	Peer    [6]byte
	RSSI    int8
	AssocID uint16
	Channel uint8
	// RSSIValid is false until the firmware has reported a reading.
	RSSIValid bool
	// TransitionDisable is set when the link forbids falling back to a
	// weaker authentication type.
	TransitionDisable bool
}

// staLink holds STA role state.
type staLink struct {
	state ConnState
	rec   assocRecord
	ssid  string
	auth  AuthType
	td    bool
}

// apState holds AP role state.
type apState struct {
	active  bool
	state   ConnState
	ssid    string
	channel uint8
	peers   []assocRecord
}

// role returns the role the radio is operating in. d.mu must be held.
func (d *Device) role() Role {
	switch {
	case d.ap.active:
		return RoleAP
	case d.sta.state == ConnConnecting || d.sta.state == ConnConnected:
		return RoleSTA
	}
	return RoleNone
}

// Role returns the current operating role.
func (d *Device) Role() Role {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.role()
}

// resetLinks drops all association state without notification.
func (d *Device) resetLinks() {
	d.sta.state = ConnDisconnected
	d.sta.rec.free()
	d.ap.active = false
	d.ap.state = ConnDisconnected
	for i := range d.ap.peers {
		d.ap.peers[i].free()
	}
}

func (d *Device) staHandle() AssocHandle {
	return makeHandle(RoleSTA, 0, d.sta.rec.gen)
}

// lookup resolves h to its record. d.mu must be held.
func (d *Device) lookup(h AssocHandle) (*assocRecord, error) {
	var rec *assocRecord
	switch h.role() {
	case RoleSTA:
		if h.slot() == 0 {
			rec = &d.sta.rec
		}
	case RoleAP:
		if h.slot() < len(d.ap.peers) {
			rec = &d.ap.peers[h.slot()]
		}
	}
	if rec == nil || !rec.inUse || rec.gen != h.gen() {
		return nil, StatusInvalidArg
	}
	return rec, nil
}

// linkDown runs the teardown hook for an association leaving the connected
// state.
func (d *Device) linkDown(h AssocHandle) {
	if d.cfg.OnLinkDown != nil {
		d.cfg.OnLinkDown(h)
	}
}

// STAHandle returns the handle of the STA association.
func (d *Device) STAHandle() (AssocHandle, error) {
	if err := d.acquire(); err != nil {
		return 0, err
	}
	defer d.release()
	if d.sta.state != ConnConnected {
		return 0, StatusNotConnected
	}
	return d.staHandle(), nil
}

// APPeers returns the handles of the stations associated to the access
// point.
func (d *Device) APPeers() []AssocHandle {
	d.mu.Lock()
	defer d.mu.Unlock()
	var hs []AssocHandle
	for i := range d.ap.peers {
		if d.ap.peers[i].inUse {
			hs = append(hs, makeHandle(RoleAP, i, d.ap.peers[i].gen))
		}
	}
	return hs
}

// AssocInfo returns a snapshot of the association identified by h.
func (d *Device) AssocInfo(h AssocHandle) (AssocInfo, error) {
	if err := d.acquire(); err != nil {
		return AssocInfo{}, err
	}
	defer d.release()
	rec, err := d.lookup(h)
	if err != nil {
		return AssocInfo{}, err
	}
	return AssocInfo{
		Handle:            h,
		Role:              h.role(),
		Peer:              rec.peer,
		RSSI:              rec.rssi,
		AssocID:           rec.assocID,
		Channel:           rec.channel,
		RSSIValid:         rec.rssiValid,
		TransitionDisable: rec.transitionDisable,
	}, nil
}

// AssocRSSI returns the last RSSI of the association. When no reading is
// cached for a STA link, a query is sent and StatusRetryRequest returned;
// the answer arrives as an RSSIEvent.
func (d *Device) AssocRSSI(h AssocHandle) (int8, error) {
	if err := d.acquire(); err != nil {
		return 0, err
	}
	defer d.release()
	rec, err := d.lookup(h)
	if err != nil {
		return 0, err
	}
	if rec.rssiValid {
		return rec.rssi, nil
	}
	if h.role() != RoleSTA {
		return 0, StatusOperationNotSupported
	}
	if err := d.sendQuery(wid.RSSI); err != nil {
		return 0, err
	}
	return 0, StatusRetryRequest
}

// AssocRefreshRSSI requests a new RSSI reading for a STA link. The result is
// delivered as an RSSIEvent. AP peer readings are only refreshed when the
// peer rejoins.
func (d *Device) AssocRefreshRSSI(h AssocHandle) error {
	if err := d.acquire(); err != nil {
		return err
	}
	defer d.release()
	if _, err := d.lookup(h); err != nil {
		return err
	}
	if h.role() != RoleSTA {
		return StatusOperationNotSupported
	}
	return d.sendQuery(wid.RSSI)
}

// AssocPeerAddress returns the MAC address of the association peer. For a
// STA link joined without a BSSID the address is learnt after connecting;
// until then StatusRetryRequest is returned.
func (d *Device) AssocPeerAddress(h AssocHandle) ([6]byte, error) {
	if err := d.acquire(); err != nil {
		return [6]byte{}, err
	}
	defer d.release()
	rec, err := d.lookup(h)
	if err != nil {
		return [6]byte{}, err
	}
	if !rec.peerKnown {
		return [6]byte{}, StatusRetryRequest
	}
	return rec.peer, nil
}

// AssocDisconnect ends the association identified by h. For the STA link it
// is equivalent to BSSDisconnect; an AP peer is disassociated and its slot
// freed immediately.
func (d *Device) AssocDisconnect(h AssocHandle) error {
	if err := d.acquire(); err != nil {
		return err
	}
	defer d.release()
	rec, err := d.lookup(h)
	if err != nil {
		return err
	}
	if h.role() == RoleSTA {
		return d.staDisconnect()
	}
	m, buf, err := d.newCommand()
	if err != nil {
		return err
	}
	m.AddData(wid.DisassocPeer, rec.peer[:])
	if err := d.commit(m, buf); err != nil {
		return StatusDisconnectFail
	}
	d.apPeerLeft(h.slot())
	return nil
}

// apPeerLeft frees an AP slot and notifies. d.mu must be held.
func (d *Device) apPeerLeft(slot int) {
	rec := &d.ap.peers[slot]
	h := makeHandle(RoleAP, slot, rec.gen)
	peer := rec.peer
	rec.free()
	d.linkDown(h)
	d.info("ap:peer-left", macAttr("mac", peer), slog.String("handle", h.String()))
	d.emit(ConnStateEvent{Handle: h, Role: RoleAP, State: ConnDisconnected, Peer: peer})
}
