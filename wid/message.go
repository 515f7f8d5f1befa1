package wid

import (
	"encoding/binary"
	"errors"
)

var (
	ErrMixedOps      = errors.New("wid: write and query records in one message")
	ErrNotInteger    = errors.New("wid: value type is not an integer")
	ErrOverflow      = errors.New("wid: message buffer overflow")
	ErrValueTooLong  = errors.New("wid: value too long for record")
	ErrNothingToSend = errors.New("wid: empty message")
	ErrWrongKind     = errors.New("wid: record not allowed in response")
)

// Op is the operation of a message, set by the first record added.
type Op uint8

const (
	OpNone Op = iota
	OpWrite
	OpQuery
)

func (op Op) String() string {
	switch op {
	case OpNone:
		return "none"
	case OpWrite:
		return "write"
	case OpQuery:
		return "query"
	}
	return "op?"
}

// Message builds a WID message in place over a caller supplied buffer. The
// first record added fixes the message as a write or a query; adding a record
// of the other kind fails. Errors are sticky: once a call fails every
// subsequent call returns the same error and Finalize yields no message.
type Message struct {
	buf     []byte
	n       int
	records int
	op      Op
	resp    bool
	err     error
}

// NewMessage returns a message builder writing into the full capacity of buf.
func NewMessage(buf []byte) *Message {
	var m Message
	m.Reset(buf)
	return &m
}

// NewResponse returns a message builder for a firmware response. Responses
// carry write records and are stamped with [KindResponse].
func NewResponse(buf []byte) *Message {
	m := NewMessage(buf)
	m.resp = true
	return m
}

// Reset discards the message contents and starts building over buf.
func (m *Message) Reset(buf []byte) {
	*m = Message{buf: buf[:cap(buf)], n: HeaderLen}
	if len(m.buf) < HeaderLen {
		m.err = ErrOverflow
	}
}

// Op returns the operation fixed by the first record, or OpNone.
func (m *Message) Op() Op { return m.op }

// Len returns the encoded length including the header.
func (m *Message) Len() int { return m.n }

// Records returns the number of records added.
func (m *Message) Records() int { return m.records }

// Err returns the sticky error, if any.
func (m *Message) Err() error { return m.err }

func (m *Message) fail(err error) error {
	m.err = err
	return err
}

func (m *Message) begin(op Op, need int) error {
	if m.err != nil {
		return m.err
	}
	if m.op != OpNone && m.op != op {
		return m.fail(ErrMixedOps)
	}
	if m.resp && op == OpQuery {
		return m.fail(ErrWrongKind)
	}
	if m.n+need > len(m.buf) || m.n+need > 0xffff {
		return m.fail(ErrOverflow)
	}
	m.op = op
	return nil
}

// AddValue appends a write record for an integer WID. The value is truncated
// to the width of the WID's type.
func (m *Message) AddValue(id ID, v uint32) error {
	t := id.Type()
	if !t.IsInteger() {
		if m.err == nil {
			m.fail(ErrNotInteger)
		}
		return m.err
	}
	w := t.Width()
	if err := m.begin(OpWrite, 3+w); err != nil {
		return err
	}
	b := m.buf[m.n:]
	binary.LittleEndian.PutUint16(b, uint16(id))
	b[2] = byte(w)
	switch w {
	case 1:
		b[3] = byte(v)
	case 2:
		binary.LittleEndian.PutUint16(b[3:], uint16(v))
	case 4:
		binary.LittleEndian.PutUint32(b[3:], v)
	}
	m.n += 3 + w
	m.records++
	return nil
}

// AddData appends a write record with a raw value. Binary WIDs get a 16 bit
// length and a trailing checksum; all other types use an 8 bit length.
func (m *Message) AddData(id ID, data []byte) error {
	if id.Type() == TypeBinary {
		if len(data) > MaxBinaryLen {
			if m.err == nil {
				m.fail(ErrValueTooLong)
			}
			return m.err
		}
		if err := m.begin(OpWrite, 5+len(data)); err != nil {
			return err
		}
		b := m.buf[m.n:]
		binary.LittleEndian.PutUint16(b, uint16(id))
		binary.LittleEndian.PutUint16(b[2:], uint16(len(data)))
		copy(b[4:], data)
		b[4+len(data)] = Checksum(data)
		m.n += 5 + len(data)
		m.records++
		return nil
	}
	if len(data) > MaxValueLen {
		if m.err == nil {
			m.fail(ErrValueTooLong)
		}
		return m.err
	}
	if err := m.begin(OpWrite, 3+len(data)); err != nil {
		return err
	}
	b := m.buf[m.n:]
	binary.LittleEndian.PutUint16(b, uint16(id))
	b[2] = byte(len(data))
	copy(b[3:], data)
	m.n += 3 + len(data)
	m.records++
	return nil
}

// AddString appends a write record holding s.
func (m *Message) AddString(id ID, s string) error {
	return m.AddData(id, []byte(s))
}

// AddQuery appends a query record for id.
func (m *Message) AddQuery(id ID) error {
	if err := m.begin(OpQuery, 2); err != nil {
		return err
	}
	binary.LittleEndian.PutUint16(m.buf[m.n:], uint16(id))
	m.n += 2
	m.records++
	return nil
}

// Finalize stamps the header and returns the encoded message. It returns
// ErrNothingToSend for a message without records and the sticky error for a
// failed message.
func (m *Message) Finalize() ([]byte, error) {
	if m.err != nil {
		return nil, m.err
	}
	if m.records == 0 {
		return nil, ErrNothingToSend
	}
	hdr := Header{Length: uint16(m.n)}
	switch {
	case m.resp:
		hdr.Kind = KindResponse
	case m.op == OpQuery:
		hdr.Kind = KindQuery
	default:
		hdr.Kind = KindWrite
	}
	hdr.Put(m.buf)
	return m.buf[:m.n], nil
}

// Header is the 4 byte message header.
type Header struct {
	Kind   byte
	Length uint16
}

// DecodeHeader decodes the first HeaderLen bytes of b. It panics if b is
// shorter than HeaderLen.
func DecodeHeader(b []byte) (hdr Header) {
	_ = b[HeaderLen-1]
	hdr.Kind = b[0]
	hdr.Length = binary.LittleEndian.Uint16(b[2:])
	return hdr
}

// Put encodes the header into the first HeaderLen bytes of dst.
func (hdr Header) Put(dst []byte) {
	_ = dst[HeaderLen-1]
	dst[0] = hdr.Kind
	dst[1] = 0
	binary.LittleEndian.PutUint16(dst[2:], hdr.Length)
}

// Validate checks the header against the received buffer length n.
func (hdr Header) Validate(n int) error {
	switch hdr.Kind {
	case KindWrite, KindQuery, KindResponse:
	default:
		return ErrBadKind
	}
	if hdr.Length < HeaderLen || int(hdr.Length) > n {
		return ErrTruncated
	}
	return nil
}
