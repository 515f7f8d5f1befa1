package winc

import "github.com/soypat/winc/wid"

// MFPMode selects management frame protection for WPA2 and WPA3 personal
// networks.
type MFPMode uint8

const (
	// MFPDefault uses the protection implied by the authentication type.
	MFPDefault MFPMode = iota
	// MFPForce requires protected management frames.
	MFPForce
	// MFPForbid disables protected management frames. Only valid for
	// WPA2 personal.
	MFPForbid
)

// AuthModifiers adjust the capability bits of an authentication type.
// Modifiers that do not apply to a type are ignored.
type AuthModifiers struct {
	ForceMFP          bool // WPA2 and WPA2/WPA3
	ForbidMFP         bool // WPA2 only
	SharedKey         bool // WEP only
	TransitionDisable bool // WPA2/WPA3 and WPA3
}

// AuthCapabilities returns the firmware capability bits for an
// authentication type and modifiers.
func AuthCapabilities(t AuthType, mod AuthModifiers) wid.Cap {
	var c wid.Cap
	switch t {
	case AuthTypeOpen:
		return 0
	case AuthTypeWEP:
		c = wid.CapPrivacy
		if mod.SharedKey {
			c |= wid.CapSharedKey
		}
	case AuthTypeWPAWPA2Personal:
		c = wid.CapPrivacy | wid.CapWPA | wid.CapRSN | wid.CapPSK | wid.CapTKIP | wid.CapAES
	case AuthTypeWPA2Personal:
		c = wid.CapPrivacy | wid.CapRSN | wid.CapPSK | wid.CapAES | wid.CapMFPCapable
		if mod.ForceMFP {
			c |= wid.CapMFPRequired
		} else if mod.ForbidMFP {
			c &^= wid.CapMFPCapable | wid.CapMFPRequired
		}
	case AuthTypeWPA2WPA3Personal:
		c = wid.CapPrivacy | wid.CapRSN | wid.CapPSK | wid.CapSAE | wid.CapAES | wid.CapMFPCapable
		if mod.ForceMFP {
			c |= wid.CapMFPRequired
		}
		if mod.TransitionDisable {
			c |= wid.CapTransitionDisable
		}
	case AuthTypeWPA3Personal:
		c = wid.CapPrivacy | wid.CapRSN | wid.CapSAE | wid.CapAES | wid.CapMFPCapable | wid.CapMFPRequired
		if mod.TransitionDisable {
			c |= wid.CapTransitionDisable
		}
	}
	return c
}

// AuthContext holds the credentials of one authentication scheme. It is
// implemented by AuthOpen, AuthWEP, AuthPersonal and AuthSAE.
type AuthContext interface {
	AuthType() AuthType
	Capabilities() wid.Cap
	validate(ap bool) error
	addCredentials(m *wid.Message)
}

// AuthOpen is an open network without credentials.
type AuthOpen struct{}

// AuthWEP is a legacy WEP network.
type AuthWEP struct {
	// KeyIndex selects the default key slot, 1..4.
	KeyIndex uint8
	// Key is a 40 or 104 bit key: 5 or 13 bytes.
	Key []byte
	// SharedKey selects shared key authentication instead of open system.
	SharedKey bool
}

// AuthPersonal is a WPA2 (or WPA/WPA2 mixed) pre-shared key network.
type AuthPersonal struct {
	// Mixed allows WPA1/TKIP for legacy access points.
	Mixed bool
	// Passphrase is 8..63 ASCII characters or 64 hex digits.
	Passphrase string
	MFP        MFPMode
}

// AuthSAE is a WPA3 personal network, or WPA2/WPA3 transition network when
// Transition is set.
type AuthSAE struct {
	Transition bool
	// Password is the SAE password, 1..128 bytes. In transition mode it also
	// serves as the WPA2 passphrase and must satisfy its length rules.
	Password string
	MFP      MFPMode
	// TransitionDisable forbids later fallback to weaker authentication.
	TransitionDisable bool
}

func (AuthOpen) AuthType() AuthType { return AuthTypeOpen }

func (AuthOpen) Capabilities() wid.Cap { return AuthCapabilities(AuthTypeOpen, AuthModifiers{}) }

func (AuthOpen) validate(ap bool) error { return nil }

func (AuthOpen) addCredentials(*wid.Message) {}

func (AuthWEP) AuthType() AuthType { return AuthTypeWEP }

func (a AuthWEP) Capabilities() wid.Cap {
	return AuthCapabilities(AuthTypeWEP, AuthModifiers{SharedKey: a.SharedKey})
}

func (a AuthWEP) validate(ap bool) error {
	if a.KeyIndex < 1 || a.KeyIndex > 4 || (len(a.Key) != 5 && len(a.Key) != 13) {
		return StatusInvalidArg
	}
	return nil
}

func (a AuthWEP) addCredentials(m *wid.Message) {
	var buf [14]byte
	buf[0] = a.KeyIndex
	n := copy(buf[1:], a.Key)
	m.AddData(wid.WEPKey, buf[:1+n])
}

func (a AuthPersonal) AuthType() AuthType {
	if a.Mixed {
		return AuthTypeWPAWPA2Personal
	}
	return AuthTypeWPA2Personal
}

func (a AuthPersonal) Capabilities() wid.Cap {
	return AuthCapabilities(a.AuthType(), AuthModifiers{
		ForceMFP:  a.MFP == MFPForce,
		ForbidMFP: a.MFP == MFPForbid,
	})
}

func (a AuthPersonal) validate(ap bool) error {
	if !validPassphrase(a.Passphrase) || a.MFP > MFPForbid {
		return StatusInvalidArg
	}
	if ap && a.Mixed {
		return StatusOperationNotSupported
	}
	return nil
}

func (a AuthPersonal) addCredentials(m *wid.Message) {
	m.AddString(wid.Passphrase, a.Passphrase)
}

func (a AuthSAE) AuthType() AuthType {
	if a.Transition {
		return AuthTypeWPA2WPA3Personal
	}
	return AuthTypeWPA3Personal
}

func (a AuthSAE) Capabilities() wid.Cap {
	return AuthCapabilities(a.AuthType(), AuthModifiers{
		ForceMFP:          a.MFP == MFPForce,
		TransitionDisable: a.TransitionDisable,
	})
}

func (a AuthSAE) validate(ap bool) error {
	if len(a.Password) < 1 || len(a.Password) > 128 || a.MFP == MFPForbid || a.MFP > MFPForbid {
		return StatusInvalidArg
	}
	if a.Transition && !validPassphrase(a.Password) {
		return StatusInvalidArg
	}
	return nil
}

func (a AuthSAE) addCredentials(m *wid.Message) {
	if a.Transition {
		m.AddString(wid.Passphrase, a.Password)
	}
	m.AddString(wid.SAEPassword, a.Password)
}

func validPassphrase(p string) bool {
	switch {
	case len(p) == 64:
		for i := 0; i < len(p); i++ {
			if !ishex(p[i]) {
				return false
			}
		}
		return true
	case len(p) < 8 || len(p) > 63:
		return false
	}
	for i := 0; i < len(p); i++ {
		if p[i] < 0x20 || p[i] > 0x7e {
			return false
		}
	}
	return true
}

func ishex(c byte) bool {
	return '0' <= c && c <= '9' || 'a' <= c && c <= 'f' || 'A' <= c && c <= 'F'
}

// checkAuth validates auth for use in STA (ap=false) or AP role. Contexts
// must be passed by value.
func checkAuth(auth AuthContext, ap bool) error {
	switch auth.(type) {
	case AuthOpen, AuthWEP, AuthPersonal, AuthSAE:
		return auth.validate(ap)
	}
	return StatusInvalidContext
}
