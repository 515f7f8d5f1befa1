package winc

import (
	"encoding/hex"
	"log/slog"

	"github.com/soypat/winc/wid"
)

// VendorIESet adds a vendor specific element to the management frames
// selected by frames. ie is the full element: id 221, length, 3 byte OUI,
// OUI type and data.
func (d *Device) VendorIESet(frames wid.FrameMask, ie []byte) error {
	if frames == 0 || frames&^wid.FrameAll != 0 {
		return StatusInvalidArg
	}
	parsed, err := wid.DecodeElement(ie)
	if err != nil {
		return StatusInvalidArg
	}
	if err := d.acquire(); err != nil {
		return err
	}
	defer d.release()
	m, buf, err := d.newCommand()
	if err != nil {
		return err
	}
	var payload [1 + 2 + 255]byte
	payload[0] = byte(frames)
	n := copy(payload[1:], ie)
	m.AddData(wid.VendorIE, payload[:1+n])
	if err := d.commit(m, buf); err != nil {
		return err
	}
	d.debug("vendorie:set", slog.Uint64("frames", uint64(frames)),
		slog.String("oui", hex.EncodeToString(parsed.OUI[:])),
		slog.Int("type", int(parsed.Type)))
	return nil
}

// VendorIEClear removes the vendor elements from the frames selected by
// frames.
func (d *Device) VendorIEClear(frames wid.FrameMask) error {
	if frames == 0 || frames&^wid.FrameAll != 0 {
		return StatusInvalidArg
	}
	if err := d.acquire(); err != nil {
		return err
	}
	defer d.release()
	m, buf, err := d.newCommand()
	if err != nil {
		return err
	}
	m.AddData(wid.VendorIE, []byte{byte(frames)})
	return d.commit(m, buf)
}
