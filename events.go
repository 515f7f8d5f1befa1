package winc

import (
	"log/slog"

	"github.com/soypat/winc/wid"
)

// Event is a notification produced by the consumer loop. Concrete types are
// ConnStateEvent, APStateEvent, ScanResultEvent, ScanDoneEvent, RSSIEvent,
// RegDomainEvent, VendorIEEvent, PowerSaveEvent, RequestErrorEvent and
// DiagnosticEvent.
type Event interface {
	isEvent()
}

// ConnStateEvent reports a connection state change of an association: the
// STA link or one AP peer.
type ConnStateEvent struct {
	Handle AssocHandle
	Role   Role
	State  ConnState
	Peer   [6]byte
	// Err is StatusConnectFail when State is ConnFailed.
	Err error
}

// APStateEvent reports a change of the access point itself.
type APStateEvent struct {
	State ConnState
}

// ScanResultEvent reports that the entry at Index of a scan generation of
// Total entries was stored.
type ScanResultEvent struct {
	Index int
	Total int
}

// ScanDoneEvent reports that the current scan generation is complete.
type ScanDoneEvent struct {
	Total int
}

// RSSIEvent reports a fresh RSSI reading for an association.
type RSSIEvent struct {
	Handle AssocHandle
	RSSI   int8
}

// RegDomainEvent reports the regulatory domain in use by the firmware.
type RegDomainEvent struct {
	RegDomain RegDomain
}

// VendorIEEvent reports a vendor specific element received in a management
// frame.
type VendorIEEvent struct {
	Frame  wid.FrameMask
	Source [6]byte
	OUI    [3]byte
	Type   byte
	Data   []byte
}

// PowerSaveEvent reports the firmware entering or leaving its sleep state.
type PowerSaveEvent struct {
	Asleep bool
}

// RequestErrorEvent reports that the firmware rejected a command.
type RequestErrorEvent struct {
	ID   wid.ID
	Code uint16
}

// DiagnosticEvent reports a recoverable driver problem such as a malformed
// response buffer or an exhausted table.
type DiagnosticEvent struct {
	Status Status
	Err    error
}

func (ConnStateEvent) isEvent()    {}
func (APStateEvent) isEvent()      {}
func (ScanResultEvent) isEvent()   {}
func (ScanDoneEvent) isEvent()     {}
func (RSSIEvent) isEvent()         {}
func (RegDomainEvent) isEvent()    {}
func (VendorIEEvent) isEvent()     {}
func (PowerSaveEvent) isEvent()    {}
func (RequestErrorEvent) isEvent() {}
func (DiagnosticEvent) isEvent()   {}

// emit delivers ev without blocking. d.mu must be held. Events are dropped
// once the device is closed or when the channel is full.
func (d *Device) emit(ev Event) {
	if !d.open {
		return
	}
	select {
	case d.events <- ev:
	default:
		d.droppedEvents++
		d.warn("event dropped", slog.Uint64("dropped", d.droppedEvents))
	}
}

// diagnose reports a recoverable problem as a DiagnosticEvent. Logging is
// rate limited so a misbehaving firmware cannot flood the log.
func (d *Device) diagnose(st Status, err error) {
	d.diagnostics++
	if d.diagLimit.Allow() {
		d.warn("diagnostic", slog.String("status", st.String()), slog.String("err", err.Error()),
			slog.Uint64("count", d.diagnostics))
	}
	d.emit(DiagnosticEvent{Status: st, Err: err})
}

// Events returns the channel on which the driver publishes events. It is
// replaced on every Open and closed by Close.
func (d *Device) Events() <-chan Event {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.events
}

// DroppedEvents returns the number of events discarded because the event
// channel was full.
func (d *Device) DroppedEvents() uint64 {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.droppedEvents
}
