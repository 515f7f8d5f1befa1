package wid

import (
	"encoding/binary"
	"errors"
	"strconv"
)

var (
	ErrBadKind   = errors.New("wid: bad message kind")
	ErrTruncated = errors.New("wid: truncated record")
	ErrChecksum  = errors.New("wid: binary record checksum mismatch")
	ErrBadLength = errors.New("wid: integer record length does not match its type")
)

// Record is a single decoded WID record. Value aliases the message buffer
// and is nil for query records.
type Record struct {
	ID    ID
	Value []byte
}

// Uint returns the little endian unsigned integer held in the first 4 bytes
// of the value.
func (r Record) Uint() uint32 {
	var v uint32
	for i, c := range r.Value {
		if i == 4 {
			break
		}
		v |= uint32(c) << (8 * i)
	}
	return v
}

// Int8 returns the first byte of the value as a signed integer.
func (r Record) Int8() int8 {
	if len(r.Value) == 0 {
		return 0
	}
	return int8(r.Value[0])
}

// String returns a compact representation of the record suitable for logs.
// Credential values are redacted.
func (r Record) String() string {
	s := r.ID.String()
	if r.Value == nil {
		return s + "?"
	}
	switch t := r.ID.Type(); {
	case r.ID.IsSecret():
		return s + "=<redacted>"
	case t.IsInteger():
		return s + "=" + strconv.FormatUint(uint64(r.Uint()), 10)
	case t == TypeStr:
		return s + "=" + strconv.Quote(string(r.Value))
	}
	return s + "=[" + strconv.Itoa(len(r.Value)) + " bytes]"
}

// Reader iterates lazily over the records of a received message. Decoding
// stops at the first malformed record; Err reports why.
type Reader struct {
	buf  []byte
	kind byte
	off  int
	rec  Record
	err  error
}

// NewReader validates the header of msg and returns a reader over its
// records. Bytes past the header length are ignored.
func NewReader(msg []byte) (*Reader, error) {
	if len(msg) < HeaderLen {
		return nil, ErrTruncated
	}
	hdr := DecodeHeader(msg)
	if err := hdr.Validate(len(msg)); err != nil {
		return nil, err
	}
	return &Reader{buf: msg[:hdr.Length], kind: hdr.Kind, off: HeaderLen}, nil
}

// Kind returns the message kind byte.
func (r *Reader) Kind() byte { return r.kind }

// Next advances to the next record. It returns false at the end of the
// message or on a decoding error.
func (r *Reader) Next() bool {
	if r.err != nil || r.off >= len(r.buf) {
		return false
	}
	b := r.buf[r.off:]
	if len(b) < 2 {
		return r.fail(ErrTruncated)
	}
	id := ID(binary.LittleEndian.Uint16(b))
	if r.kind == KindQuery {
		r.rec = Record{ID: id}
		r.off += 2
		return true
	}
	if id.Type() == TypeBinary {
		if len(b) < 4 {
			return r.fail(ErrTruncated)
		}
		n := int(binary.LittleEndian.Uint16(b[2:]))
		if len(b) < 5+n {
			return r.fail(ErrTruncated)
		}
		value := b[4 : 4+n : 4+n]
		if Checksum(value) != b[4+n] {
			return r.fail(ErrChecksum)
		}
		r.rec = Record{ID: id, Value: value}
		r.off += 5 + n
		return true
	}
	if len(b) < 3 {
		return r.fail(ErrTruncated)
	}
	n := int(b[2])
	if len(b) < 3+n {
		return r.fail(ErrTruncated)
	}
	if t := id.Type(); t.IsInteger() && n != t.Width() {
		return r.fail(ErrBadLength)
	}
	r.rec = Record{ID: id, Value: b[3 : 3+n : 3+n]}
	r.off += 3 + n
	return true
}

func (r *Reader) fail(err error) bool {
	r.err = err
	r.rec = Record{}
	return false
}

// Record returns the record decoded by the last successful call to Next.
func (r *Reader) Record() Record { return r.rec }

// Err returns the decoding error that stopped iteration, if any.
func (r *Reader) Err() error { return r.err }
