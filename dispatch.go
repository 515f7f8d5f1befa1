package winc

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/soypat/winc/internal/pool"
	"github.com/soypat/winc/wid"
)

var errNotResponse = errors.New("inbound message is not a response")

// Receive copies a response message pushed by the transport into a pool
// buffer and queues it for the consumer loop. It never blocks and may be
// called from any goroutine. It returns StatusNoSpace when the pool is
// exhausted; the message is then lost.
func (d *Device) Receive(resp []byte) error {
	if len(resp) == 0 || len(resp) > pool.MaxSize {
		return StatusInvalidArg
	}
	if !d.IsOpen() {
		return StatusNotOpen
	}
	buf, err := d.pool.Alloc(len(resp))
	if err != nil {
		return StatusNoSpace
	}
	copy(buf.Bytes(), resp)
	d.mu.Lock()
	defer d.mu.Unlock()
	if !d.open {
		d.pool.Free(buf)
		return StatusNotOpen
	}
	d.inq.Push(buf)
	return nil
}

// Service runs one pass of the consumer loop: at most one queued command is
// handed to the transport, then every queued response is dispatched. It
// returns the number of buffers processed. Transport errors are returned
// after the inbound queue was drained.
func (d *Device) Service() (int, error) {
	d.mu.Lock()
	tr := d.tr
	open := d.open
	d.mu.Unlock()
	if !open {
		return 0, StatusNotOpen
	}
	var errs []error
	n := 0
	if buf := d.outq.Pop(); buf != nil {
		n++
		if err := tr.Send(buf.Bytes()); err != nil {
			d.logerr("transport:send", slog.String("err", err.Error()))
			errs = append(errs, fmt.Errorf("transport send: %w", err))
		}
		d.pool.Free(buf)
	}
	for buf := d.inq.Pop(); buf != nil; buf = d.inq.Pop() {
		n++
		d.dispatch(buf.Bytes())
		d.pool.Free(buf)
	}
	if d.outq.Len() > 0 {
		d.sig.Set()
	}
	return n, errors.Join(errs...)
}

// Run is the consumer loop. It services the queues whenever the signal is
// set and returns when ctx is done or the device is closed.
func (d *Device) Run(ctx context.Context) error {
	d.sig.Set() // Flush anything queued before Run started.
	for {
		if err := d.sig.Wait(ctx); err != nil {
			return err
		}
		_, err := d.Service()
		if errors.Is(err, StatusNotOpen) {
			return nil
		} else if err != nil {
			d.warn("run:service", slog.String("err", err.Error()))
		}
	}
}

// dispatch decodes one response message and routes its records. A malformed
// record aborts the rest of the message; records routed before it keep their
// effect.
func (d *Device) dispatch(msg []byte) {
	d.mu.Lock()
	defer d.mu.Unlock()
	if !d.open {
		return
	}
	r, err := wid.NewReader(msg)
	if err != nil {
		d.diagnose(StatusInvalidArg, err)
		return
	}
	if r.Kind() != wid.KindResponse {
		d.diagnose(StatusInvalidArg, errNotResponse)
		return
	}
	d.traceMessage("rx", msg)
	for r.Next() {
		d.route(r.Record())
	}
	if err := r.Err(); err != nil {
		d.diagnose(StatusInvalidArg, err)
	}
}

// route applies one response record. d.mu must be held.
func (d *Device) route(rec wid.Record) {
	if rec.Value == nil {
		return // Echoed query.
	}
	switch rec.ID {
	case wid.Status:
		d.onAssocStatus(rec.Uint())
	case wid.RSSI:
		d.onRSSI(rec.Int8())
	case wid.BSSID:
		d.onBSSID(rec.Value)
	case wid.CurrentChannel:
		d.onChannel(uint8(rec.Uint()))
	case wid.ScanResult:
		sr, err := wid.DecodeScanEntry(rec.Value)
		if err != nil {
			d.diagnose(StatusInvalidArg, err)
			return
		}
		d.onScanResult(sr)
	case wid.ScanDone:
		d.onScanDone(int(rec.Uint()))
	case wid.RegDomainInfo:
		ri, err := wid.DecodeRegulatory(rec.Value)
		if err != nil {
			d.diagnose(StatusInvalidArg, err)
			return
		}
		d.onRegDomain(RegDomain{Name: ri.Name, ChannelMask: ri.ChannelMask})
	case wid.VendorIERx:
		vf, err := wid.DecodeVendorIEFrame(rec.Value)
		if err != nil {
			d.diagnose(StatusInvalidArg, err)
			return
		}
		d.emit(VendorIEEvent{
			Frame:  vf.Frame,
			Source: vf.Source,
			OUI:    vf.IE.OUI,
			Type:   vf.IE.Type,
			Data:   append([]byte(nil), vf.IE.Data...), // Value aliases a pool buffer.
		})
	case wid.PowerSaveEvent:
		d.onPowerSave(rec.Uint() != 0)
	case wid.StationInfo:
		si, err := wid.DecodeStation(rec.Value)
		if err != nil {
			d.diagnose(StatusInvalidArg, err)
			return
		}
		d.onStationInfo(si)
	case wid.CommandStatus:
		v := rec.Uint()
		d.onCommandStatus(wid.ID(v>>16), uint16(v))
	case wid.MACAddr:
		if len(rec.Value) == 6 {
			copy(d.mac[:], rec.Value)
			d.debug("mac", macAttr("addr", d.mac))
		}
	case wid.FirmwareVer:
		d.fwVersion = string(rec.Value)
		d.info("firmware", slog.String("version", d.fwVersion))
	default:
		d.trace("route:ignored", slog.String("id", rec.ID.String()))
	}
}

// onCommandStatus handles the firmware rejecting a command. Pending
// operations waiting on the rejected command are failed.
func (d *Device) onCommandStatus(id wid.ID, code uint16) {
	if code == 0 {
		return
	}
	d.warn("firmware rejected command", slog.String("id", id.String()), slog.Uint64("code", uint64(code)))
	d.emit(RequestErrorEvent{ID: id, Code: code})
	switch id {
	case wid.Connect:
		if d.sta.state == ConnConnecting {
			d.sta.state = ConnFailed
			d.emit(ConnStateEvent{Role: RoleSTA, State: ConnFailed, Err: StatusRequestError})
		}
	case wid.StartScan:
		d.scanAbort()
	case wid.APControl:
		if d.ap.state == ConnConnecting {
			d.ap.state = ConnFailed
			d.ap.active = false
			d.emit(APStateEvent{State: ConnFailed})
		}
	}
}
