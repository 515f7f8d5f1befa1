// Package wid implements the Wireless ID (WID) protocol spoken with the WiFi
// co-processor firmware: a typed key/value record format carried in small
// length-prefixed messages.
//
// A message on the wire is a 4 byte header followed by records. All
// multi-byte integers are little endian.
//
//	byte 0   'W' (write), 'Q' (query) or 'R' (response)
//	byte 1   reserved, zero
//	byte 2-3 total length including header
//
// Non-binary records are encoded as id:u16, len:u8, value. Binary records are
// encoded as id:u16, len:u16, value, checksum:u8 where the checksum is the sum
// of the value bytes modulo 256. Query records carry the id only.
package wid

import "strconv"

// HeaderLen is the size of the message header in bytes.
const HeaderLen = 4

// MaxBinaryLen is the largest value a binary record can carry.
const MaxBinaryLen = 0xffff

// MaxValueLen is the largest value a non-binary record can carry.
const MaxValueLen = 0xff

// Message kinds as encoded in the first header byte.
const (
	KindWrite    byte = 'W'
	KindQuery    byte = 'Q'
	KindResponse byte = 'R'
)

// Type is the value type of a WID, encoded in the top nibble of its ID.
type Type uint8

const (
	TypeChar Type = iota
	TypeShort
	TypeInt
	TypeStr
	TypeBinary
)

func (t Type) String() string {
	switch t {
	case TypeChar:
		return "char"
	case TypeShort:
		return "short"
	case TypeInt:
		return "int"
	case TypeStr:
		return "str"
	case TypeBinary:
		return "binary"
	}
	return "type(" + strconv.Itoa(int(t)) + ")"
}

// IsInteger reports whether values of type t are fixed width integers.
func (t Type) IsInteger() bool { return t <= TypeInt }

// Width returns the encoded size of an integer type, or 0 for other types.
func (t Type) Width() int {
	switch t {
	case TypeChar:
		return 1
	case TypeShort:
		return 2
	case TypeInt:
		return 4
	}
	return 0
}

// ID identifies a firmware parameter or command.
type ID uint16

// Type returns the value type encoded in the top nibble of the ID.
func (id ID) Type() Type { return Type(id >> 12) }

// Char WIDs.
const (
	BSSType         ID = 0x0000
	CurrentChannel  ID = 0x0002
	Status          ID = 0x0005 // association status: 0 down, 1 up, 2 join failed
	ScanType        ID = 0x0007 // 1 active, 0 passive
	PowerManagement ID = 0x000B
	AuthType        ID = 0x000D
	ListenInterval  ID = 0x000F
	DTIMPeriod      ID = 0x0010
	HiddenSSID      ID = 0x0015
	Disconnect      ID = 0x0016
	StartScan       ID = 0x001E
	RSSI            ID = 0x001F
	Connect         ID = 0x0020
	ScanProbeCount  ID = 0x0022
	ScanSlotCount   ID = 0x0023
	ScanDone        ID = 0x0024 // value is number of results, saturated at 255
	PowerSaveEvent  ID = 0x0025 // 1 asleep, 0 awake
	APControl       ID = 0x0026 // 1 start, 0 stop
	JoinChannel     ID = 0x0028
	APChannel       ID = 0x0029
)

// Short WIDs.
const (
	ActiveScanTime  ID = 0x100C
	PassiveScanTime ID = 0x100D
	Settings11i     ID = 0x1012 // Cap bitmask
	ScanChannelMask ID = 0x1013
	PSReturnTime    ID = 0x1014
)

// Int WIDs.
const (
	// CommandStatus reports a rejected command: high 16 bits hold the
	// rejected WID and low 16 bits the firmware error code.
	CommandStatus ID = 0x2020
	FirmwareBuild ID = 0x2021
)

// Str WIDs.
const (
	SSID         ID = 0x3000
	FirmwareVer  ID = 0x3001
	BSSID        ID = 0x3003
	Passphrase   ID = 0x3008
	SAEPassword  ID = 0x3009
	MACAddr      ID = 0x300C
	RegDomain    ID = 0x3010
	DisassocPeer ID = 0x3011
	DeviceName   ID = 0x3012
)

// Binary WIDs.
const (
	ScanSSIDList  ID = 0x4010
	ScanResult    ID = 0x4011
	RegDomainInfo ID = 0x4012
	VendorIE      ID = 0x4013
	VendorIERx    ID = 0x4014
	StationInfo   ID = 0x4015
	WEPKey        ID = 0x4016
)

var idNames = map[ID]string{
	BSSType:         "BSSType",
	CurrentChannel:  "CurrentChannel",
	Status:          "Status",
	ScanType:        "ScanType",
	PowerManagement: "PowerManagement",
	AuthType:        "AuthType",
	ListenInterval:  "ListenInterval",
	DTIMPeriod:      "DTIMPeriod",
	HiddenSSID:      "HiddenSSID",
	Disconnect:      "Disconnect",
	StartScan:       "StartScan",
	RSSI:            "RSSI",
	Connect:         "Connect",
	ScanProbeCount:  "ScanProbeCount",
	ScanSlotCount:   "ScanSlotCount",
	ScanDone:        "ScanDone",
	PowerSaveEvent:  "PowerSaveEvent",
	APControl:       "APControl",
	JoinChannel:     "JoinChannel",
	APChannel:       "APChannel",
	ActiveScanTime:  "ActiveScanTime",
	PassiveScanTime: "PassiveScanTime",
	Settings11i:     "Settings11i",
	ScanChannelMask: "ScanChannelMask",
	PSReturnTime:    "PSReturnTime",
	CommandStatus:   "CommandStatus",
	FirmwareBuild:   "FirmwareBuild",
	SSID:            "SSID",
	FirmwareVer:     "FirmwareVer",
	BSSID:           "BSSID",
	Passphrase:      "Passphrase",
	SAEPassword:     "SAEPassword",
	MACAddr:         "MACAddr",
	RegDomain:       "RegDomain",
	DisassocPeer:    "DisassocPeer",
	DeviceName:      "DeviceName",
	ScanSSIDList:    "ScanSSIDList",
	ScanResult:      "ScanResult",
	RegDomainInfo:   "RegDomainInfo",
	VendorIE:        "VendorIE",
	VendorIERx:      "VendorIERx",
	StationInfo:     "StationInfo",
	WEPKey:          "WEPKey",
}

func (id ID) String() string {
	if s, ok := idNames[id]; ok {
		return s
	}
	return "WID(0x" + strconv.FormatUint(uint64(id), 16) + ")"
}

// IsSecret reports whether the value of id is a credential that must not be
// logged.
func (id ID) IsSecret() bool {
	return id == Passphrase || id == SAEPassword || id == WEPKey
}

// Checksum returns the sum of b modulo 256.
func Checksum(b []byte) (sum uint8) {
	for _, c := range b {
		sum += c
	}
	return sum
}
