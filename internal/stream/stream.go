// Package stream carries WID messages and Ethernet frames over a byte stream
// such as a TCP connection or a serial link.
//
// Every frame starts with the 4 byte WID header: kind, zero, u16 little
// endian total length. WID messages already carry it and go out unchanged.
// Ethernet frames are wrapped in a header of kind [KindEth].
package stream

import (
	"context"
	"errors"
	"io"
	"sync"

	"github.com/soypat/winc/wid"
)

// KindEth is the header kind of a wrapped Ethernet frame.
const KindEth byte = 'E'

// MaxFrame is the largest frame including its header.
const MaxFrame = 0xffff

var (
	errShortFrame = errors.New("stream: frame length shorter than header")
	errLongFrame  = errors.New("stream: frame too long")
	errBadKind    = errors.New("stream: unknown frame kind")
)

// Conn frames messages over rw. Send and SendEth may be called concurrently
// with each other and with a single reader calling ReadFrame or Serve.
type Conn struct {
	rw   io.ReadWriter
	wmu  sync.Mutex
	whdr [wid.HeaderLen]byte
	rbuf []byte
}

// NewConn returns a Conn framing over rw.
func NewConn(rw io.ReadWriter) *Conn {
	return &Conn{rw: rw, rbuf: make([]byte, MaxFrame)}
}

// Send writes one WID message. It implements winc.Transport.
func (c *Conn) Send(msg []byte) error {
	if len(msg) < wid.HeaderLen {
		return errShortFrame
	}
	hdr := wid.DecodeHeader(msg)
	if err := hdr.Validate(len(msg)); err != nil {
		return err
	}
	c.wmu.Lock()
	defer c.wmu.Unlock()
	_, err := c.rw.Write(msg[:hdr.Length])
	return err
}

// SendEth writes one Ethernet frame. It implements winc.EthSender.
func (c *Conn) SendEth(frame []byte) error {
	n := wid.HeaderLen + len(frame)
	if n > MaxFrame {
		return errLongFrame
	}
	c.wmu.Lock()
	defer c.wmu.Unlock()
	wid.Header{Kind: KindEth, Length: uint16(n)}.Put(c.whdr[:])
	if _, err := c.rw.Write(c.whdr[:]); err != nil {
		return err
	}
	_, err := c.rw.Write(frame)
	return err
}

// ReadFrame blocks until a complete frame is read. WID messages are returned
// with their header, Ethernet frames without. The returned slice is only
// valid until the next call.
func (c *Conn) ReadFrame() (kind byte, frame []byte, err error) {
	if _, err = io.ReadFull(c.rw, c.rbuf[:wid.HeaderLen]); err != nil {
		return 0, nil, err
	}
	hdr := wid.DecodeHeader(c.rbuf)
	if hdr.Length < wid.HeaderLen {
		return 0, nil, errShortFrame
	}
	switch hdr.Kind {
	case wid.KindWrite, wid.KindQuery, wid.KindResponse, KindEth:
	default:
		return 0, nil, errBadKind
	}
	if _, err = io.ReadFull(c.rw, c.rbuf[wid.HeaderLen:hdr.Length]); err != nil {
		if err == io.EOF {
			err = io.ErrUnexpectedEOF
		}
		return 0, nil, err
	}
	if hdr.Kind == KindEth {
		return hdr.Kind, c.rbuf[wid.HeaderLen:hdr.Length], nil
	}
	return hdr.Kind, c.rbuf[:hdr.Length], nil
}

// Handler receives the frames read by Serve. Nil fields drop the frame.
type Handler struct {
	// Message receives WID messages, typically winc.Device.Receive.
	Message func(msg []byte) error
	// Eth receives Ethernet frames, typically winc.Device.ReceiveEth.
	Eth func(frame []byte) error
	// Error is called with errors returned by Message and Eth.
	Error func(kind byte, err error)
}

// Serve reads frames and hands them to h until the stream ends or ctx is
// done. A clean end of stream returns nil. A blocked read is only
// interrupted by closing the underlying stream.
func (c *Conn) Serve(ctx context.Context, h Handler) error {
	for {
		if err := ctx.Err(); err != nil {
			return err
		}
		kind, frame, err := c.ReadFrame()
		if err == io.EOF {
			return nil
		} else if err != nil {
			return err
		}
		var herr error
		switch {
		case kind == KindEth && h.Eth != nil:
			herr = h.Eth(frame)
		case kind != KindEth && h.Message != nil:
			herr = h.Message(frame)
		}
		if herr != nil && h.Error != nil {
			h.Error(kind, herr)
		}
	}
}
