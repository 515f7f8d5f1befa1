package wid

import "strings"

// Cap is the 802.11i security capability bitmask exchanged in
// [Settings11i] and scan results.
type Cap uint16

const (
	CapPrivacy Cap = 1 << iota
	CapWPA
	CapRSN
	CapAES
	CapTKIP
	CapPSK
	Cap1X
	CapSAE
	CapMFPCapable
	CapMFPRequired
	CapSharedKey
	CapTransitionDisable
)

var capNames = [...]string{
	"privacy", "wpa", "rsn", "aes", "tkip", "psk", "1x", "sae",
	"mfpc", "mfpr", "sharedkey", "transition-disable",
}

// Has reports whether all bits of flags are set in c.
func (c Cap) Has(flags Cap) bool { return c&flags == flags }

// HasAny reports whether any bit of flags is set in c.
func (c Cap) HasAny(flags Cap) bool { return c&flags != 0 }

func (c Cap) String() string {
	if c == 0 {
		return "open"
	}
	var sb strings.Builder
	for i, name := range capNames {
		if c&(1<<i) == 0 {
			continue
		}
		if sb.Len() > 0 {
			sb.WriteByte('|')
		}
		sb.WriteString(name)
	}
	return sb.String()
}
