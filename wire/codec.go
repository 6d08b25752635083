package wire

import (
	"encoding/binary"
	"errors"
)

// ErrShortBuffer is returned by decode helpers when the input is
// truncated relative to what it claims to contain.
var ErrShortBuffer = errors.New("wire: short buffer")

// encoder accumulates a postcard-style (length-prefixed, no padding)
// binary encoding of a message payload.
type encoder struct {
	buf []byte
}

func (e *encoder) putUint8(v uint8)   { e.buf = append(e.buf, v) }
func (e *encoder) putUint16(v uint16) { e.buf = binary.BigEndian.AppendUint16(e.buf, v) }
func (e *encoder) putUint32(v uint32) { e.buf = binary.BigEndian.AppendUint32(e.buf, v) }
func (e *encoder) putUint64(v uint64) { e.buf = binary.BigEndian.AppendUint64(e.buf, v) }

func (e *encoder) putBytes(b []byte) {
	e.putUint32(uint32(len(b)))
	e.buf = append(e.buf, b...)
}

// putFixed appends b without a length prefix, for fields whose size is
// already implied by the wire format (e.g. a 32-byte public key).
func (e *encoder) putFixed(b []byte) { e.buf = append(e.buf, b...) }

func (e *encoder) putString(s string) { e.putBytes([]byte(s)) }

func (e *encoder) bytes() []byte { return e.buf }

// decoder walks a byte slice produced by encoder, failing with
// ErrShortBuffer on truncation rather than panicking.
type decoder struct {
	buf []byte
}

func (d *decoder) uint8() (uint8, error) {
	if len(d.buf) < 1 {
		return 0, ErrShortBuffer
	}
	v := d.buf[0]
	d.buf = d.buf[1:]
	return v, nil
}

func (d *decoder) uint16() (uint16, error) {
	if len(d.buf) < 2 {
		return 0, ErrShortBuffer
	}
	v := binary.BigEndian.Uint16(d.buf[:2])
	d.buf = d.buf[2:]
	return v, nil
}

func (d *decoder) uint32() (uint32, error) {
	if len(d.buf) < 4 {
		return 0, ErrShortBuffer
	}
	v := binary.BigEndian.Uint32(d.buf[:4])
	d.buf = d.buf[4:]
	return v, nil
}

func (d *decoder) uint64() (uint64, error) {
	if len(d.buf) < 8 {
		return 0, ErrShortBuffer
	}
	v := binary.BigEndian.Uint64(d.buf[:8])
	d.buf = d.buf[8:]
	return v, nil
}

func (d *decoder) bytes() ([]byte, error) {
	n, err := d.uint32()
	if err != nil {
		return nil, err
	}
	if uint32(len(d.buf)) < n {
		return nil, ErrShortBuffer
	}
	b := append([]byte(nil), d.buf[:n]...)
	d.buf = d.buf[n:]
	return b, nil
}

func (d *decoder) fixed(n int) ([]byte, error) {
	if len(d.buf) < n {
		return nil, ErrShortBuffer
	}
	b := d.buf[:n]
	d.buf = d.buf[n:]
	return b, nil
}

func (d *decoder) string() (string, error) {
	b, err := d.bytes()
	if err != nil {
		return "", err
	}
	return string(b), nil
}
