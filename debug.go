package winc

import (
	"context"
	"log/slog"

	"github.com/soypat/winc/wid"
)

// levelTrace is below debug and logs every WID record crossing the driver.
const levelTrace slog.Level = slog.LevelDebug - 1

func (d *Device) logerr(msg string, attrs ...slog.Attr) {
	d.logattrs(slog.LevelError, msg, attrs...)
}

func (d *Device) warn(msg string, attrs ...slog.Attr) {
	d.logattrs(slog.LevelWarn, msg, attrs...)
}

func (d *Device) info(msg string, attrs ...slog.Attr) {
	d.logattrs(slog.LevelInfo, msg, attrs...)
}

func (d *Device) debug(msg string, attrs ...slog.Attr) {
	d.logattrs(slog.LevelDebug, msg, attrs...)
}

func (d *Device) trace(msg string, attrs ...slog.Attr) {
	d.logattrs(levelTrace, msg, attrs...)
}

func (d *Device) logattrs(level slog.Level, msg string, attrs ...slog.Attr) {
	if d.logger != nil {
		d.logger.LogAttrs(context.Background(), level, msg, attrs...)
	}
}

func (d *Device) logenabled(level slog.Level) bool {
	return d.logger != nil && d.logger.Handler().Enabled(context.Background(), level)
}

// traceMessage logs every record of an encoded message at trace level.
// Credential values are redacted by wid.Record.String.
func (d *Device) traceMessage(dir string, msg []byte) {
	if !d._traceenabled {
		return
	}
	r, err := wid.NewReader(msg)
	if err != nil {
		d.trace(dir+":bad-header", slog.Int("len", len(msg)), slog.String("err", err.Error()))
		return
	}
	for r.Next() {
		d.trace(dir, slog.String("kind", string(r.Kind())), slog.String("rec", r.Record().String()))
	}
}

func macAttr(key string, mac [6]byte) slog.Attr {
	return slog.String(key, hwaddr(mac).String())
}
