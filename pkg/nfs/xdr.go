// Package nfs implements the NFSv3 and MOUNT v3 wire protocol: XDR
// serialization, ONC RPC call and reply framing, and the mapping
// between filesystem results and protocol status codes.
package nfs

import (
	"encoding/binary"
	"errors"
	"fmt"
)

// ErrMalformed reports XDR input that cannot be decoded: truncated
// buffers, lengths beyond their field's limit, or values outside an
// enum's range. The server answers it with GARBAGE_ARGS.
var ErrMalformed = errors.New("malformed xdr data")

// Encoder builds an XDR stream. All quantities are big-endian and
// padded to four-byte boundaries per RFC 4506.
type Encoder struct {
	buf []byte
}

// NewEncoder returns an empty encoder.
func NewEncoder() *Encoder {
	return &Encoder{}
}

// Bytes returns the encoded stream.
func (e *Encoder) Bytes() []byte {
	return e.buf
}

// Len returns the current length of the encoded stream.
func (e *Encoder) Len() int {
	return len(e.buf)
}

func (e *Encoder) Uint32(v uint32) {
	e.buf = binary.BigEndian.AppendUint32(e.buf, v)
}

func (e *Encoder) Uint64(v uint64) {
	e.buf = binary.BigEndian.AppendUint64(e.buf, v)
}

func (e *Encoder) Bool(v bool) {
	if v {
		e.Uint32(1)
	} else {
		e.Uint32(0)
	}
}

// Opaque writes a variable-length opaque: length prefix, data, padding.
func (e *Encoder) Opaque(p []byte) {
	e.Uint32(uint32(len(p)))
	e.OpaqueFixed(p)
}

// OpaqueFixed writes opaque data without a length prefix, padded to a
// four-byte boundary.
func (e *Encoder) OpaqueFixed(p []byte) {
	e.buf = append(e.buf, p...)
	if pad := (4 - len(p)%4) % 4; pad != 0 {
		e.buf = append(e.buf, make([]byte, pad)...)
	}
}

func (e *Encoder) String(s string) {
	e.Opaque([]byte(s))
}

// Decoder consumes an XDR stream.
type Decoder struct {
	buf []byte
	off int
}

// NewDecoder wraps a raw XDR stream.
func NewDecoder(p []byte) *Decoder {
	return &Decoder{buf: p}
}

// Remaining returns the number of unconsumed bytes.
func (d *Decoder) Remaining() int {
	return len(d.buf) - d.off
}

func (d *Decoder) Uint32() (uint32, error) {
	if d.off+4 > len(d.buf) {
		return 0, fmt.Errorf("%w: need 4 bytes, have %d", ErrMalformed, len(d.buf)-d.off)
	}
	v := binary.BigEndian.Uint32(d.buf[d.off:])
	d.off += 4
	return v, nil
}

func (d *Decoder) Uint64() (uint64, error) {
	if d.off+8 > len(d.buf) {
		return 0, fmt.Errorf("%w: need 8 bytes, have %d", ErrMalformed, len(d.buf)-d.off)
	}
	v := binary.BigEndian.Uint64(d.buf[d.off:])
	d.off += 8
	return v, nil
}

func (d *Decoder) Bool() (bool, error) {
	v, err := d.Uint32()
	if err != nil {
		return false, err
	}
	switch v {
	case 0:
		return false, nil
	case 1:
		return true, nil
	}
	return false, fmt.Errorf("%w: boolean value %d", ErrMalformed, v)
}

// Opaque reads a variable-length opaque. max bounds the accepted length;
// zero means unbounded within the buffer.
func (d *Decoder) Opaque(max uint32) ([]byte, error) {
	n, err := d.Uint32()
	if err != nil {
		return nil, err
	}
	if max != 0 && n > max {
		return nil, fmt.Errorf("%w: opaque length %d exceeds %d", ErrMalformed, n, max)
	}
	return d.OpaqueFixed(int(n))
}

// OpaqueFixed reads n opaque bytes plus padding.
func (d *Decoder) OpaqueFixed(n int) ([]byte, error) {
	padded := n + (4-n%4)%4
	if d.off+padded > len(d.buf) {
		return nil, fmt.Errorf("%w: need %d bytes, have %d", ErrMalformed, padded, len(d.buf)-d.off)
	}
	p := make([]byte, n)
	copy(p, d.buf[d.off:])
	d.off += padded
	return p, nil
}

func (d *Decoder) String(max uint32) (string, error) {
	p, err := d.Opaque(max)
	if err != nil {
		return "", err
	}
	return string(p), nil
}
