package main

import (
	"context"
	"fmt"
	"net"

	"github.com/spf13/viper"
	"go.uber.org/zap"

	"github.com/soypat/winc"
	"github.com/soypat/winc/internal/fwsim"
	"github.com/soypat/winc/internal/stream"
)

// simNetworks populate the built-in simulator.
var simNetworks = []fwsim.Network{
	{
		SSID:    "widd-open",
		BSSID:   [6]byte{0x02, 0x00, 0x5e, 0x00, 0x00, 0x01},
		Channel: 1,
		RSSI:    -61,
	},
	{
		SSID:       "widd-wpa2",
		BSSID:      [6]byte{0x02, 0x00, 0x5e, 0x00, 0x00, 0x06},
		Channel:    6,
		RSSI:       -48,
		Caps:       winc.AuthCapabilities(winc.AuthTypeWPA2Personal, winc.AuthModifiers{}),
		Passphrase: "widd-passphrase",
	},
	{
		SSID:       "widd-wpa3",
		BSSID:      [6]byte{0x02, 0x00, 0x5e, 0x00, 0x00, 0x0b},
		Channel:    11,
		RSSI:       -70,
		Caps:       winc.AuthCapabilities(winc.AuthTypeWPA3Personal, winc.AuthModifiers{}),
		Passphrase: "widd-passphrase",
	},
}

func newSim() *fwsim.Sim {
	sim := fwsim.New()
	for _, n := range simNetworks {
		sim.AddNetwork(n)
	}
	return sim
}

// openDevice creates the driver and opens it over the configured transport.
// The returned stop function closes the device and the transport.
func openDevice(ctx context.Context, v *viper.Viper, log *zap.Logger) (d *winc.Device, stop func(), err error) {
	d, err = winc.New(driverConfig(v))
	if err != nil {
		return nil, nil, fmt.Errorf("driver config: %w", err)
	}
	mode := v.GetString("transport.mode")
	switch mode {
	case "sim":
		sim := newSim()
		sim.Attach(d.Receive)
		if err := d.Open(sim); err != nil {
			return nil, nil, err
		}
		return d, func() { d.Close() }, nil

	case "tcp":
		addr := v.GetString("transport.addr")
		var dialer net.Dialer
		conn, err := dialer.DialContext(ctx, "tcp", addr)
		if err != nil {
			return nil, nil, fmt.Errorf("dial transport: %w", err)
		}
		sc := stream.NewConn(conn)
		if err := d.Open(sc); err != nil {
			conn.Close()
			return nil, nil, err
		}
		go func() {
			err := sc.Serve(ctx, stream.Handler{
				Message: d.Receive,
				Eth:     d.ReceiveEth,
				Error: func(kind byte, err error) {
					log.Debug("receive dropped", zap.String("kind", string(kind)), zap.Error(err))
				},
			})
			if err != nil && ctx.Err() == nil {
				log.Error("transport read failed", zap.String("addr", addr), zap.Error(err))
			}
		}()
		log.Info("transport connected", zap.String("addr", addr))
		return d, func() { d.Close(); conn.Close() }, nil
	}
	return nil, nil, fmt.Errorf("unknown transport mode %q: must be \"sim\" or \"tcp\"", mode)
}

// logEvent writes a driver event to the daemon log.
func logEvent(log *zap.Logger, ev winc.Event) {
	switch ev := ev.(type) {
	case winc.ConnStateEvent:
		fields := []zap.Field{
			zap.Stringer("handle", ev.Handle),
			zap.Stringer("role", ev.Role),
			zap.Stringer("state", ev.State),
			zap.Stringer("peer", net.HardwareAddr(ev.Peer[:])),
		}
		if ev.Err != nil {
			fields = append(fields, zap.Error(ev.Err))
		}
		log.Info("link", fields...)
	case winc.APStateEvent:
		log.Info("access point", zap.Stringer("state", ev.State))
	case winc.ScanResultEvent:
		log.Debug("scan result", zap.Int("index", ev.Index), zap.Int("total", ev.Total))
	case winc.ScanDoneEvent:
		log.Info("scan done", zap.Int("total", ev.Total))
	case winc.RSSIEvent:
		log.Debug("rssi", zap.Stringer("handle", ev.Handle), zap.Int8("rssi", ev.RSSI))
	case winc.RegDomainEvent:
		log.Info("regulatory domain", zap.String("name", ev.RegDomain.Name),
			zap.Uint16("channel_mask", ev.RegDomain.ChannelMask))
	case winc.VendorIEEvent:
		log.Debug("vendor ie", zap.Stringer("source", net.HardwareAddr(ev.Source[:])),
			zap.Binary("oui", ev.OUI[:]), zap.Uint8("type", ev.Type))
	case winc.PowerSaveEvent:
		log.Debug("power save", zap.Bool("asleep", ev.Asleep))
	case winc.RequestErrorEvent:
		log.Warn("firmware rejected command", zap.Stringer("wid", ev.ID), zap.Uint16("code", ev.Code))
	case winc.DiagnosticEvent:
		log.Warn("driver diagnostic", zap.Stringer("status", ev.Status), zap.Error(ev.Err))
	}
}
