// Package fwsim simulates the WID side of a radio co-processor firmware. It
// consumes command messages as a transport would and answers with response
// messages through a delivery callback, typically [winc.Device.Receive].
package fwsim

import (
	"errors"
	"sync"

	"github.com/soypat/winc/wid"
)

var (
	errNotAttached = errors.New("fwsim: no delivery callback attached")
	errLinkDown    = errors.New("fwsim: no link for ethernet frame")
)

// Rejection codes reported in CommandStatus.
const (
	CodeRejected    = 1
	CodeUnknownReg  = 2
	CodeBadArgument = 3
)

// Network is a BSS visible to the simulated radio.
type Network struct {
	SSID    string
	BSSID   [6]byte
	Channel uint8
	RSSI    int8
	Caps    wid.Cap
	// Passphrase is checked against Passphrase and SAEPassword records of a
	// connect request when Caps has Privacy.
	Passphrase string
}

var regDomains = map[string]uint16{
	"US": 0x07ff, // 1..11
	"EU": 0x1fff, // 1..13
	"JP": 0x3fff, // 1..14
}

// Sim is a simulated firmware. Its zero value is not usable; create one with
// New.
type Sim struct {
	mu      sync.Mutex
	deliver func([]byte) error
	mac     [6]byte
	version string
	reg     wid.Regulatory
	nets    []Network
	written map[wid.ID][]byte
	reject  map[wid.ID]uint16
	joined  *Network
	apUp    bool
	msgs    int
	frames  [][]byte
	split   bool
}

// New returns a simulator with a locally administered MAC address and the
// US regulatory domain.
func New() *Sim {
	return &Sim{
		mac:     [6]byte{0x02, 0x57, 0x49, 0x44, 0x00, 0x01},
		version: "19.7.0",
		reg:     wid.Regulatory{Name: "US", ChannelMask: regDomains["US"]},
		written: make(map[wid.ID][]byte),
		reject:  make(map[wid.ID]uint16),
		split:   true,
	}
}

// Attach sets the callback receiving response messages.
func (s *Sim) Attach(deliver func(resp []byte) error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.deliver = deliver
}

// AddNetwork makes n visible to scans and connects.
func (s *Sim) AddNetwork(n Network) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.nets = append(s.nets, n)
}

// SetVersion sets the firmware version string reported to queries.
func (s *Sim) SetVersion(v string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.version = v
}

// SplitScan selects whether scan results are delivered one per response
// message (the default) or batched with the scan done record.
func (s *Sim) SplitScan(split bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.split = split
}

// Reject makes the simulator refuse write messages containing id with the
// given code. A zero code clears the rejection.
func (s *Sim) Reject(id wid.ID, code uint16) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if code == 0 {
		delete(s.reject, id)
		return
	}
	s.reject[id] = code
}

// Written returns a copy of the last value written for id.
func (s *Sim) Written(id wid.ID) ([]byte, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	v, ok := s.written[id]
	return append([]byte(nil), v...), ok
}

// Messages returns the number of command messages received.
func (s *Sim) Messages() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.msgs
}

// Frames returns the Ethernet frames received with SendEth.
func (s *Sim) Frames() [][]byte {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([][]byte(nil), s.frames...)
}

// Send consumes one command message. Malformed messages are answered with a
// CommandStatus rejection.
func (s *Sim) Send(msg []byte) error {
	s.mu.Lock()
	s.msgs++
	out := s.handle(msg)
	deliver := s.deliver
	s.mu.Unlock()
	return s.flush(deliver, out)
}

// SendEth consumes one Ethernet frame. It fails while no link is up.
func (s *Sim) SendEth(frame []byte) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.joined == nil && !s.apUp {
		return errLinkDown
	}
	s.frames = append(s.frames, append([]byte(nil), frame...))
	return nil
}

// StationJoin reports a station associating to the simulated access point.
func (s *Sim) StationJoin(mac [6]byte, aid uint16, rssi int8) error {
	return s.station(wid.Station{MAC: mac, Joined: true, AssocID: aid, RSSI: rssi})
}

// StationLeave reports a station leaving the simulated access point.
func (s *Sim) StationLeave(mac [6]byte) error {
	return s.station(wid.Station{MAC: mac})
}

func (s *Sim) station(si wid.Station) error {
	m := wid.NewResponse(make([]byte, 0, 32))
	m.AddData(wid.StationInfo, wid.AppendStation(nil, si))
	return s.Inject(finalize(m))
}

// Deauth drops the STA link as if the access point had kicked the station.
func (s *Sim) Deauth() error {
	s.mu.Lock()
	if s.joined == nil {
		s.mu.Unlock()
		return nil
	}
	s.joined = nil
	resp := s.value(wid.Status, 0)
	s.mu.Unlock()
	return s.Inject(resp)
}

// PowerSave reports the radio entering or leaving its sleep state.
func (s *Sim) PowerSave(asleep bool) error {
	var v uint32
	if asleep {
		v = 1
	}
	return s.Inject(s.value(wid.PowerSaveEvent, v))
}

// VendorIE reports a vendor element received in a management frame.
func (s *Sim) VendorIE(vf wid.VendorIEFrame) error {
	m := wid.NewResponse(make([]byte, 0, 300))
	m.AddData(wid.VendorIERx, wid.AppendVendorIEFrame(nil, vf))
	return s.Inject(finalize(m))
}

// Inject delivers an unsolicited message as is.
func (s *Sim) Inject(msg []byte) error {
	s.mu.Lock()
	deliver := s.deliver
	s.mu.Unlock()
	return s.flush(deliver, [][]byte{msg})
}

func (s *Sim) flush(deliver func([]byte) error, out [][]byte) error {
	if len(out) == 0 {
		return nil
	}
	if deliver == nil {
		return errNotAttached
	}
	var errs []error
	for _, resp := range out {
		if err := deliver(resp); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

// handle parses msg and returns the response messages. s.mu must be held.
func (s *Sim) handle(msg []byte) [][]byte {
	r, err := wid.NewReader(msg)
	if err != nil {
		return [][]byte{s.rejection(0, CodeBadArgument)}
	}
	if r.Kind() == wid.KindQuery {
		return s.query(r)
	}
	if r.Kind() != wid.KindWrite {
		return [][]byte{s.rejection(0, CodeBadArgument)}
	}
	// Stage the records first: a rejected message has no effect.
	staged := make(map[wid.ID][]byte)
	var order []wid.ID
	for r.Next() {
		rec := r.Record()
		if code, ok := s.reject[rec.ID]; ok {
			return [][]byte{s.rejection(rec.ID, code)}
		}
		if _, ok := staged[rec.ID]; !ok {
			order = append(order, rec.ID)
		}
		staged[rec.ID] = append([]byte(nil), rec.Value...)
	}
	if r.Err() != nil {
		return [][]byte{s.rejection(0, CodeBadArgument)}
	}
	for id, v := range staged {
		s.written[id] = v
	}
	var out [][]byte
	for _, id := range order {
		out = append(out, s.trigger(id, staged)...)
	}
	return out
}

// trigger runs the action of a command record.
func (s *Sim) trigger(id wid.ID, staged map[wid.ID][]byte) [][]byte {
	v := staged[id]
	switch id {
	case wid.Connect:
		return [][]byte{s.connect(staged)}
	case wid.Disconnect:
		if s.joined == nil {
			return nil
		}
		s.joined = nil
		return [][]byte{s.value(wid.Status, 0)}
	case wid.StartScan:
		return s.scan(staged)
	case wid.APControl:
		return s.apControl(len(v) > 0 && v[0] == 1)
	case wid.RegDomain:
		mask, ok := regDomains[string(v)]
		if !ok {
			return [][]byte{s.rejection(wid.RegDomain, CodeUnknownReg)}
		}
		s.reg = wid.Regulatory{Name: string(v), ChannelMask: mask}
		return [][]byte{s.regulatory()}
	case wid.MACAddr:
		if len(v) == 6 {
			copy(s.mac[:], v)
		}
	}
	return nil
}

func (s *Sim) connect(staged map[wid.ID][]byte) []byte {
	const joinFailed = 2
	s.joined = nil
	ssid := string(staged[wid.SSID])
	bssid, pinBSSID := staged[wid.BSSID]
	ch := u8(staged[wid.JoinChannel])
	for i := range s.nets {
		n := &s.nets[i]
		switch {
		case n.SSID != ssid,
			pinBSSID && string(bssid) != string(n.BSSID[:]),
			ch != 255 && ch != n.Channel,
			s.reg.ChannelMask&(1<<(n.Channel-1)) == 0:
			continue
		}
		if n.Caps.Has(wid.CapPrivacy) && !credentialsMatch(n, staged) {
			return s.value(wid.Status, joinFailed)
		}
		s.joined = n
		return s.value(wid.Status, 1)
	}
	return s.value(wid.Status, joinFailed)
}

func credentialsMatch(n *Network, staged map[wid.ID][]byte) bool {
	if !n.Caps.HasAny(wid.CapPSK | wid.CapSAE) {
		return true // WEP keys are not checked.
	}
	pass := string(staged[wid.Passphrase])
	sae := string(staged[wid.SAEPassword])
	return pass == n.Passphrase || sae == n.Passphrase
}

func (s *Sim) scan(staged map[wid.ID][]byte) [][]byte {
	mask := uint16(le(staged[wid.ScanChannelMask])) & s.reg.ChannelMask
	var ssids []string
	if raw, ok := staged[wid.ScanSSIDList]; ok {
		ssids, _ = wid.DecodeSSIDList(raw)
	}
	var found []*Network
	for i := range s.nets {
		n := &s.nets[i]
		if n.Channel < 1 || n.Channel > 14 || mask&(1<<(n.Channel-1)) == 0 {
			continue
		}
		if len(ssids) > 0 && !contains(ssids, n.SSID) {
			continue
		}
		found = append(found, n)
	}
	var out [][]byte
	resp := wid.NewResponse(make([]byte, 0, 4096))
	for i, n := range found {
		payload := wid.AppendScanEntry(nil, wid.ScanEntry{
			Index:   uint16(i),
			Total:   uint16(len(found)),
			RSSI:    n.RSSI,
			Channel: n.Channel,
			Caps:    n.Caps,
			BSSID:   n.BSSID,
			SSID:    n.SSID,
		})
		resp.AddData(wid.ScanResult, payload)
		if s.split {
			out = append(out, finalize(resp))
			resp = wid.NewResponse(make([]byte, 0, 128))
		}
	}
	resp.AddValue(wid.ScanDone, uint32(min(len(found), 255)))
	return append(out, finalize(resp))
}

func (s *Sim) apControl(start bool) [][]byte {
	if !start {
		if !s.apUp {
			return nil
		}
		s.apUp = false
		return [][]byte{s.value(wid.Status, 0)}
	}
	ch := u8(s.written[wid.APChannel])
	if len(s.written[wid.SSID]) == 0 || ch < 1 || ch > 14 || s.reg.ChannelMask&(1<<(ch-1)) == 0 {
		return [][]byte{s.value(wid.Status, 0)}
	}
	s.apUp = true
	return [][]byte{s.value(wid.Status, 1)}
}

// query answers every queried id the simulator knows about.
func (s *Sim) query(r *wid.Reader) [][]byte {
	m := wid.NewResponse(make([]byte, 0, 512))
	for r.Next() {
		switch id := r.Record().ID; id {
		case wid.MACAddr:
			m.AddData(id, s.mac[:])
		case wid.FirmwareVer:
			m.AddString(id, s.version)
		case wid.RegDomainInfo:
			m.AddData(id, wid.AppendRegulatory(nil, s.reg))
		case wid.RegDomain:
			m.AddString(id, s.reg.Name)
		case wid.RSSI:
			if s.joined != nil {
				m.AddValue(id, uint32(uint8(s.joined.RSSI)))
			}
		case wid.BSSID:
			if s.joined != nil {
				m.AddData(id, s.joined.BSSID[:])
			}
		case wid.CurrentChannel:
			if s.joined != nil {
				m.AddValue(id, uint32(s.joined.Channel))
			}
		default:
			if v, ok := s.written[id]; ok {
				if id.Type().IsInteger() {
					m.AddValue(id, le(v))
				} else {
					m.AddData(id, v)
				}
			}
		}
	}
	if m.Records() == 0 {
		return nil
	}
	return [][]byte{finalize(m)}
}

func (s *Sim) regulatory() []byte {
	m := wid.NewResponse(make([]byte, 0, 64))
	m.AddData(wid.RegDomainInfo, wid.AppendRegulatory(nil, s.reg))
	return finalize(m)
}

func (s *Sim) value(id wid.ID, v uint32) []byte {
	m := wid.NewResponse(make([]byte, 0, 16))
	m.AddValue(id, v)
	return finalize(m)
}

// rejection encodes a CommandStatus record for the rejected id.
func (s *Sim) rejection(rejected wid.ID, code uint16) []byte {
	return s.value(wid.CommandStatus, uint32(rejected)<<16|uint32(code))
}

func finalize(m *wid.Message) []byte {
	b, err := m.Finalize()
	if err != nil {
		panic("fwsim: building response: " + err.Error())
	}
	return b
}

func contains(list []string, s string) bool {
	for _, v := range list {
		if v == s {
			return true
		}
	}
	return false
}

func u8(b []byte) uint8 {
	if len(b) == 0 {
		return 0
	}
	return b[0]
}

// le decodes a little endian integer of up to 4 bytes.
func le(b []byte) uint32 {
	var v uint32
	for i := 0; i < len(b) && i < 4; i++ {
		v |= uint32(b[i]) << (8 * i)
	}
	return v
}
