package winc

import (
	"log/slog"
	"net"

	"github.com/soypat/seqs/eth"

	"github.com/soypat/winc/internal/pool"
)

// MTU is the largest Ethernet payload carried by SendEth.
const MTU = 1500

const (
	ethHeaderLen = 14
	// etherTypeEAPOL carries the 802.1X key handshake.
	etherTypeEAPOL = 0x888e
)

// Packet priorities, highest first. The key handshake must not queue behind
// bulk traffic or the link times out.
const (
	prioEAPOL pool.Priority = iota
	prioARP
	prioIP
	prioBulk
)

const numPriorities = int(prioBulk) + 1

func hwaddr(mac [6]byte) net.HardwareAddr { return net.HardwareAddr(mac[:]) }

// framePriority classifies an Ethernet frame by EtherType.
func framePriority(frame []byte) pool.Priority {
	if len(frame) < ethHeaderLen {
		return prioBulk
	}
	hdr := eth.DecodeEthernetHeader(frame)
	switch hdr.AssertType() {
	case etherTypeEAPOL:
		return prioEAPOL
	case eth.EtherTypeARP:
		return prioARP
	case eth.EtherTypeIPv4, eth.EtherTypeIPv6:
		return prioIP
	}
	return prioBulk
}

// MTU (maximum transmission unit) returns the maximum amount of payload bytes
// that can be sent in a single Ethernet frame in a call to SendEth.
func (d *Device) MTU() int { return MTU }

// HardwareAddr6 returns the device's 6-byte [MAC address], learnt from the
// firmware when the device is opened. StatusRetryRequest is returned until
// the firmware has answered.
//
// [MAC address]: https://en.wikipedia.org/wiki/MAC_address
func (d *Device) HardwareAddr6() ([6]byte, error) {
	if err := d.acquire(); err != nil {
		return [6]byte{}, err
	}
	defer d.release()
	if d.mac == ([6]byte{}) {
		return [6]byte{}, StatusRetryRequest
	}
	return d.mac, nil
}

// RecvEthHandle sets handler for receiving Ethernet frames.
// If set to nil then incoming frames are ignored.
func (d *Device) RecvEthHandle(handler func(frame []byte) error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.rcvEth = handler
}

// SendEth sends an Ethernet frame over the active link. The transport must
// implement EthSender.
func (d *Device) SendEth(frame []byte) error {
	if len(frame) < ethHeaderLen || len(frame) > MTU+ethHeaderLen {
		return StatusInvalidArg
	}
	if err := d.acquire(); err != nil {
		return err
	}
	es, ok := d.tr.(EthSender)
	linked := d.sta.state == ConnConnected || d.ap.state == ConnConnected
	d.release()
	if !linked {
		return StatusNotConnected
	}
	if !ok {
		return StatusOperationNotSupported
	}
	prio := framePriority(frame)
	pkt, err := d.pool.AllocPacket(len(frame), prio)
	if err != nil {
		d.warn("eth:tx alloc", slog.Int("prio", int(prio)), slog.String("err", err.Error()))
		return StatusNoSpace
	}
	defer d.pool.Free(pkt)
	copy(pkt.Bytes(), frame)
	return es.SendEth(pkt.Bytes())
}

// ReceiveEth is called by the transport with each Ethernet frame received.
// The frame is copied into a packet buffer and passed to the handler set
// with RecvEthHandle; the handler must not retain it.
func (d *Device) ReceiveEth(frame []byte) error {
	if len(frame) < ethHeaderLen {
		return StatusInvalidArg
	}
	if err := d.acquire(); err != nil {
		return err
	}
	handler := d.rcvEth
	d.release()
	if handler == nil {
		return nil
	}
	pkt, err := d.pool.AllocPacket(len(frame), framePriority(frame))
	if err != nil {
		return StatusNoSpace
	}
	defer d.pool.Free(pkt)
	copy(pkt.Bytes(), frame)
	return handler(pkt.Bytes())
}

// NetFlags returns the current network flags for the device.
func (d *Device) NetFlags() (flags net.Flags) {
	d.mu.Lock()
	defer d.mu.Unlock()
	if !d.open {
		return 0
	}
	flags |= net.FlagUp | net.FlagBroadcast | net.FlagMulticast
	if d.sta.state == ConnConnected || d.ap.state == ConnConnected {
		flags |= net.FlagRunning
	}
	return flags
}
