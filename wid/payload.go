package wid

import (
	"encoding/binary"
	"errors"
)

var (
	errShortPayload = errors.New("wid: payload too short")
	errSSIDLength   = errors.New("wid: ssid longer than 32 bytes")
	errIEMalformed  = errors.New("wid: malformed vendor information element")
)

// MaxSSIDLen is the maximum length of an SSID.
const MaxSSIDLen = 32

// ScanEntry is the payload of a [ScanResult] record: one BSS of a scan
// result set.
//
//	index:u16 total:u16 rssi:i8 channel:u8 caps:u16 bssid:[6] ssidlen:u8 ssid
type ScanEntry struct {
	Index   uint16
	Total   uint16
	RSSI    int8
	Channel uint8
	Caps    Cap
	BSSID   [6]byte
	SSID    string
}

const scanResultFixedLen = 15

// DecodeScanEntry decodes a scan result payload.
func DecodeScanEntry(b []byte) (sr ScanEntry, err error) {
	if len(b) < scanResultFixedLen {
		return sr, errShortPayload
	}
	sr.Index = binary.LittleEndian.Uint16(b)
	sr.Total = binary.LittleEndian.Uint16(b[2:])
	sr.RSSI = int8(b[4])
	sr.Channel = b[5]
	sr.Caps = Cap(binary.LittleEndian.Uint16(b[6:]))
	copy(sr.BSSID[:], b[8:14])
	n := int(b[14])
	if n > MaxSSIDLen {
		return sr, errSSIDLength
	}
	if len(b) < scanResultFixedLen+n {
		return sr, errShortPayload
	}
	sr.SSID = string(b[scanResultFixedLen : scanResultFixedLen+n])
	return sr, nil
}

// AppendScanEntry appends the encoded scan result to dst.
func AppendScanEntry(dst []byte, sr ScanEntry) []byte {
	dst = binary.LittleEndian.AppendUint16(dst, sr.Index)
	dst = binary.LittleEndian.AppendUint16(dst, sr.Total)
	dst = append(dst, byte(sr.RSSI), sr.Channel)
	dst = binary.LittleEndian.AppendUint16(dst, uint16(sr.Caps))
	dst = append(dst, sr.BSSID[:]...)
	ssid := sr.SSID
	if len(ssid) > MaxSSIDLen {
		ssid = ssid[:MaxSSIDLen]
	}
	dst = append(dst, byte(len(ssid)))
	return append(dst, ssid...)
}

// Station is the payload of a [StationInfo] record, sent by the firmware
// in AP mode when a peer joins or leaves.
//
//	mac:[6] joined:u8 aid:u16 rssi:i8
type Station struct {
	MAC     [6]byte
	Joined  bool
	AssocID uint16
	RSSI    int8
}

// DecodeStation decodes a station info payload.
func DecodeStation(b []byte) (si Station, err error) {
	if len(b) < 10 {
		return si, errShortPayload
	}
	copy(si.MAC[:], b[:6])
	si.Joined = b[6] != 0
	si.AssocID = binary.LittleEndian.Uint16(b[7:])
	si.RSSI = int8(b[9])
	return si, nil
}

// AppendStation appends the encoded station info to dst.
func AppendStation(dst []byte, si Station) []byte {
	dst = append(dst, si.MAC[:]...)
	joined := byte(0)
	if si.Joined {
		joined = 1
	}
	dst = append(dst, joined)
	dst = binary.LittleEndian.AppendUint16(dst, si.AssocID)
	return append(dst, byte(si.RSSI))
}

// Regulatory is the payload of a [RegDomainInfo] record.
//
//	channelmask:u16 name
type Regulatory struct {
	ChannelMask uint16
	Name        string
}

// DecodeRegulatory decodes a regulatory domain payload.
func DecodeRegulatory(b []byte) (ri Regulatory, err error) {
	if len(b) < 2 {
		return ri, errShortPayload
	}
	ri.ChannelMask = binary.LittleEndian.Uint16(b)
	ri.Name = string(b[2:])
	return ri, nil
}

// AppendRegulatory appends the encoded regulatory domain to dst.
func AppendRegulatory(dst []byte, ri Regulatory) []byte {
	dst = binary.LittleEndian.AppendUint16(dst, ri.ChannelMask)
	return append(dst, ri.Name...)
}

// FrameMask selects management frame types in vendor IE operations.
type FrameMask uint8

const (
	FrameBeacon FrameMask = 1 << iota
	FrameProbeReq
	FrameProbeResp
	FrameAssocReq
	FrameAssocResp

	FrameAll = FrameBeacon | FrameProbeReq | FrameProbeResp | FrameAssocReq | FrameAssocResp
)

// ElementIDVendor is the 802.11 element id of vendor specific elements.
const ElementIDVendor = 221

// Element is a parsed vendor specific information element.
type Element struct {
	OUI  [3]byte
	Type byte
	Data []byte
}

// DecodeElement parses a full vendor specific element including its id and
// length bytes.
func DecodeElement(b []byte) (ie Element, err error) {
	if len(b) < 6 || b[0] != ElementIDVendor || int(b[1])+2 != len(b) || b[1] < 4 {
		return ie, errIEMalformed
	}
	copy(ie.OUI[:], b[2:5])
	ie.Type = b[5]
	ie.Data = b[6:]
	return ie, nil
}

// AppendElement appends the encoded element to dst.
func AppendElement(dst []byte, ie Element) []byte {
	dst = append(dst, ElementIDVendor, byte(4+len(ie.Data)))
	dst = append(dst, ie.OUI[:]...)
	dst = append(dst, ie.Type)
	return append(dst, ie.Data...)
}

// VendorIEFrame is the payload of a [VendorIERx] record.
//
//	frame:u8 source:[6] element
type VendorIEFrame struct {
	Frame  FrameMask
	Source [6]byte
	IE     Element
}

// DecodeVendorIEFrame decodes a received vendor IE payload.
func DecodeVendorIEFrame(b []byte) (vf VendorIEFrame, err error) {
	if len(b) < 7 {
		return vf, errShortPayload
	}
	vf.Frame = FrameMask(b[0])
	copy(vf.Source[:], b[1:7])
	vf.IE, err = DecodeElement(b[7:])
	return vf, err
}

// AppendVendorIEFrame appends the encoded received vendor IE to dst.
func AppendVendorIEFrame(dst []byte, vf VendorIEFrame) []byte {
	dst = append(dst, byte(vf.Frame))
	dst = append(dst, vf.Source[:]...)
	return AppendElement(dst, vf.IE)
}

// AppendSSIDList appends a [ScanSSIDList] payload: count:u8 then a length
// prefixed SSID per entry.
func AppendSSIDList(dst []byte, ssids []string) []byte {
	dst = append(dst, byte(len(ssids)))
	for _, s := range ssids {
		dst = append(dst, byte(len(s)))
		dst = append(dst, s...)
	}
	return dst
}

// DecodeSSIDList decodes a [ScanSSIDList] payload.
func DecodeSSIDList(b []byte) ([]string, error) {
	if len(b) < 1 {
		return nil, errShortPayload
	}
	n := int(b[0])
	b = b[1:]
	ssids := make([]string, 0, n)
	for i := 0; i < n; i++ {
		if len(b) < 1 || len(b) < 1+int(b[0]) {
			return nil, errShortPayload
		}
		l := int(b[0])
		ssids = append(ssids, string(b[1:1+l]))
		b = b[1+l:]
	}
	return ssids, nil
}
