package winc

import (
	"strings"

	"github.com/soypat/winc/wid"
)

// SecMask summarizes the security of a scanned BSS.
type SecMask uint8

const (
	SecOpen SecMask = 1 << iota
	SecWEP
	SecWPA
	SecWPA2
	SecWPA3
	SecMFPCapable
	SecMFPRequired
	SecEnterprise
)

var secNames = [...]string{"open", "wep", "wpa", "wpa2", "wpa3", "mfpc", "mfpr", "enterprise"}

func (s SecMask) String() string {
	var sb strings.Builder
	for i, name := range secNames {
		if s&(1<<i) == 0 {
			continue
		}
		if sb.Len() > 0 {
			sb.WriteByte('|')
		}
		sb.WriteString(name)
	}
	return sb.String()
}

// AuthType is an authentication scheme, ordered from weakest to strongest.
type AuthType uint8

const (
	AuthTypeInvalid AuthType = iota
	AuthTypeOpen
	AuthTypeWEP
	AuthTypeWPAWPA2Personal
	AuthTypeWPA2Personal
	AuthTypeWPA2WPA3Personal
	AuthTypeWPA3Personal
)

func (a AuthType) String() string {
	switch a {
	case AuthTypeOpen:
		return "open"
	case AuthTypeWEP:
		return "wep"
	case AuthTypeWPAWPA2Personal:
		return "wpa/wpa2-personal"
	case AuthTypeWPA2Personal:
		return "wpa2-personal"
	case AuthTypeWPA2WPA3Personal:
		return "wpa2/wpa3-personal"
	case AuthTypeWPA3Personal:
		return "wpa3-personal"
	}
	return "invalid"
}

// SecMaskFromCaps summarizes firmware capability bits.
func SecMaskFromCaps(c wid.Cap) (s SecMask) {
	if !c.Has(wid.CapPrivacy) {
		return SecOpen
	}
	switch {
	case c.HasAny(wid.CapRSN | wid.CapWPA):
		if c.Has(wid.CapWPA) {
			s |= SecWPA
		}
		if c.Has(wid.CapRSN) && c.HasAny(wid.CapPSK|wid.Cap1X) {
			s |= SecWPA2
		}
		if c.Has(wid.CapRSN | wid.CapSAE) {
			s |= SecWPA3
		}
		if c.Has(wid.Cap1X) {
			s |= SecEnterprise
		}
	default:
		s |= SecWEP
	}
	if c.Has(wid.CapMFPCapable) {
		s |= SecMFPCapable
	}
	if c.Has(wid.CapMFPRequired) {
		s |= SecMFPRequired
	}
	return s
}

// RecommendedAuth returns the strongest authentication type implied by the
// capability bits. WPA3 types are only recommended when the BSS advertises
// the management frame protection they depend on. Enterprise only networks
// yield AuthTypeInvalid.
func RecommendedAuth(c wid.Cap) AuthType {
	if !c.Has(wid.CapPrivacy) {
		return AuthTypeOpen
	}
	rsn := c.Has(wid.CapRSN)
	psk := c.Has(wid.CapPSK)
	sae := c.Has(wid.CapSAE)
	switch {
	case rsn && sae && !psk && c.Has(wid.CapMFPRequired|wid.CapMFPCapable):
		return AuthTypeWPA3Personal
	case rsn && sae && psk && c.Has(wid.CapMFPCapable):
		return AuthTypeWPA2WPA3Personal
	case rsn && psk && c.Has(wid.CapAES) && !c.Has(wid.CapWPA):
		return AuthTypeWPA2Personal
	case psk && c.HasAny(wid.CapRSN|wid.CapWPA):
		return AuthTypeWPAWPA2Personal
	case c.HasAny(wid.CapRSN | wid.CapWPA | wid.Cap1X | wid.CapSAE):
		return AuthTypeInvalid
	}
	return AuthTypeWEP
}
