// Package messages defines the Soulseek wire message codes and the
// encode/decode routines for the subset of server, peer, and distributed
// messages the engine needs to drive logins, peer metadata, searches, and
// transfers (spec §6).
package messages

import (
	"encoding/binary"
	"fmt"
)

// Reader is an accumulating-error binary reader: once Err is set every
// subsequent Read*/call becomes a no-op, so a struct with many fields can be
// decoded without checking an error after every field.
type Reader struct {
	buf []byte
	pos int
	Err error
}

// NewReader wraps payload for sequential decoding.
func NewReader(payload []byte) *Reader {
	return &Reader{buf: payload}
}

func (r *Reader) take(n int) []byte {
	if r.Err != nil {
		return nil
	}
	if r.pos+n > len(r.buf) {
		r.Err = fmt.Errorf("messages: short read: need %d bytes, have %d", n, len(r.buf)-r.pos)
		return nil
	}
	b := r.buf[r.pos : r.pos+n]
	r.pos += n
	return b
}

// Uint8 reads a single byte.
func (r *Reader) Uint8() uint8 {
	b := r.take(1)
	if b == nil {
		return 0
	}
	return b[0]
}

// Bool reads a single byte as a boolean (non-zero is true).
func (r *Reader) Bool() bool {
	return r.Uint8() != 0
}

// Uint32 reads a little-endian uint32.
func (r *Reader) Uint32() uint32 {
	b := r.take(4)
	if b == nil {
		return 0
	}
	return binary.LittleEndian.Uint32(b)
}

// Int32 reads a little-endian int32.
func (r *Reader) Int32() int32 {
	return int32(r.Uint32())
}

// Uint64 reads a little-endian uint64.
func (r *Reader) Uint64() uint64 {
	b := r.take(8)
	if b == nil {
		return 0
	}
	return binary.LittleEndian.Uint64(b)
}

// String reads a 4-byte length prefix followed by that many UTF-8 bytes.
func (r *Reader) String() string {
	n := r.Uint32()
	if r.Err != nil {
		return ""
	}
	b := r.take(int(n))
	if b == nil {
		return ""
	}
	return string(b)
}

// Bytes reads a 4-byte length prefix followed by that many raw bytes.
func (r *Reader) Bytes() []byte {
	n := r.Uint32()
	if r.Err != nil {
		return nil
	}
	b := r.take(int(n))
	out := make([]byte, len(b))
	copy(out, b)
	return out
}

// Remaining returns every byte not yet consumed, without advancing pos.
func (r *Reader) Remaining() []byte {
	if r.Err != nil || r.pos > len(r.buf) {
		return nil
	}
	return r.buf[r.pos:]
}

// Writer is the encode-side counterpart of Reader; it never fails, since
// writing to a growable buffer cannot error the way reading a bounded one
// can.
type Writer struct {
	buf []byte
}

// NewWriter returns an empty Writer.
func NewWriter() *Writer {
	return &Writer{}
}

// Uint8 appends a single byte.
func (w *Writer) Uint8(v uint8) *Writer {
	w.buf = append(w.buf, v)
	return w
}

// Bool appends a single byte: 1 for true, 0 for false.
func (w *Writer) Bool(v bool) *Writer {
	if v {
		return w.Uint8(1)
	}
	return w.Uint8(0)
}

// Uint32 appends a little-endian uint32.
func (w *Writer) Uint32(v uint32) *Writer {
	var b [4]byte
	binary.LittleEndian.PutUint32(b[:], v)
	w.buf = append(w.buf, b[:]...)
	return w
}

// Int32 appends a little-endian int32.
func (w *Writer) Int32(v int32) *Writer {
	return w.Uint32(uint32(v))
}

// Uint64 appends a little-endian uint64.
func (w *Writer) Uint64(v uint64) *Writer {
	var b [8]byte
	binary.LittleEndian.PutUint64(b[:], v)
	w.buf = append(w.buf, b[:]...)
	return w
}

// String appends a 4-byte length prefix followed by the UTF-8 bytes of s.
func (w *Writer) String(s string) *Writer {
	w.Uint32(uint32(len(s)))
	w.buf = append(w.buf, s...)
	return w
}

// Bytes appends a 4-byte length prefix followed by b verbatim.
func (w *Writer) Bytes(b []byte) *Writer {
	w.Uint32(uint32(len(b)))
	w.buf = append(w.buf, b...)
	return w
}

// Raw appends b with no length prefix, for fixed-size trailers such as the
// transfer connection's 8-byte start offset.
func (w *Writer) Raw(b []byte) *Writer {
	w.buf = append(w.buf, b...)
	return w
}

// Payload returns the accumulated payload.
func (w *Writer) Payload() []byte {
	return w.buf
}
