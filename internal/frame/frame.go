// Package frame implements the length-prefixed message codec shared by the
// server, peer-message, and distributed TCP streams.
package frame

import (
	"bytes"
	"compress/zlib"
	"encoding/binary"
	"errors"
	"fmt"
	"io"
)

// DefaultMaxFrameSize is the oversize guard applied to read_frame when the
// caller does not configure one.
const DefaultMaxFrameSize = 64 * 1024 * 1024

var (
	// ErrClosed is returned when the underlying stream is closed mid-read
	// or mid-write.
	ErrClosed = errors.New("frame: connection closed")
	// ErrTooLarge is returned by Codec.Read when the advertised payload
	// length exceeds the configured maximum.
	ErrTooLarge = errors.New("frame: frame exceeds maximum size")
	// ErrTruncated is returned when fewer bytes than advertised are
	// available before the stream closes.
	ErrTruncated = errors.New("frame: truncated frame")
)

// Codec reads and writes frames for one of the three framed channels. Server
// and peer-message frames carry a 4-byte little-endian code; distributed
// frames carry a single byte. Codec is not safe for concurrent use by
// multiple readers, nor by multiple writers — callers serialize reads and
// writes per connection (spec: "per socket, reads and writes are
// linearizable").
type Codec struct {
	// CodeSize is 4 for server/peer channels, 1 for distributed.
	CodeSize int
	// MaxFrameSize rejects oversize frames before allocation. Zero means
	// DefaultMaxFrameSize.
	MaxFrameSize uint32
}

// NewServerPeerCodec returns a Codec for the 4-byte-code server and
// peer-message channels.
func NewServerPeerCodec() *Codec {
	return &Codec{CodeSize: 4}
}

// NewDistributedCodec returns a Codec for the 1-byte-code distributed
// channel.
func NewDistributedCodec() *Codec {
	return &Codec{CodeSize: 1}
}

func (c *Codec) maxSize() uint32 {
	if c.MaxFrameSize == 0 {
		return DefaultMaxFrameSize
	}
	return c.MaxFrameSize
}

// Read reads one frame: a 4-byte little-endian length (covering the code
// plus the payload), the code, and the payload. The payload is returned
// without attempting any decompression — callers that know a given code is
// zlib-compressed call Decompress explicitly, since compression is detected
// by message kind, not by a flag in the frame itself.
func (c *Codec) Read(r io.Reader) (code uint32, payload []byte, err error) {
	var lenBuf [4]byte
	if _, err := io.ReadFull(r, lenBuf[:]); err != nil {
		return 0, nil, wrapReadErr(err)
	}
	total := binary.LittleEndian.Uint32(lenBuf[:])
	if total > c.maxSize() {
		return 0, nil, ErrTooLarge
	}
	if int(total) < c.CodeSize {
		return 0, nil, fmt.Errorf("frame: length %d shorter than code size %d", total, c.CodeSize)
	}

	body := make([]byte, total)
	if _, err := io.ReadFull(r, body); err != nil {
		return 0, nil, wrapReadErr(err)
	}

	switch c.CodeSize {
	case 1:
		code = uint32(body[0])
	case 4:
		code = binary.LittleEndian.Uint32(body[:4])
	default:
		return 0, nil, fmt.Errorf("frame: unsupported code size %d", c.CodeSize)
	}
	return code, body[c.CodeSize:], nil
}

// Write writes one frame for the given code and payload.
func (c *Codec) Write(w io.Writer, code uint32, payload []byte) error {
	body := make([]byte, c.CodeSize+len(payload))
	switch c.CodeSize {
	case 1:
		body[0] = byte(code)
	case 4:
		binary.LittleEndian.PutUint32(body[:4], code)
	default:
		return fmt.Errorf("frame: unsupported code size %d", c.CodeSize)
	}
	copy(body[c.CodeSize:], payload)

	var lenBuf [4]byte
	binary.LittleEndian.PutUint32(lenBuf[:], uint32(len(body)))
	if _, err := w.Write(lenBuf[:]); err != nil {
		return wrapWriteErr(err)
	}
	if _, err := w.Write(body); err != nil {
		return wrapWriteErr(err)
	}
	return nil
}

// Decompress inflates a zlib-compressed payload. Some peer payloads (folder
// listings, browse listings, search responses) are compressed this way; the
// caller decides to call this based on the message code, not on any framing
// bit.
func Decompress(payload []byte) ([]byte, error) {
	zr, err := zlib.NewReader(bytes.NewReader(payload))
	if err != nil {
		return nil, fmt.Errorf("frame: decompression: %w", err)
	}
	defer zr.Close()
	out, err := io.ReadAll(zr)
	if err != nil {
		return nil, fmt.Errorf("frame: decompression: %w", err)
	}
	return out, nil
}

// Compress deflates payload with zlib, matching the wire format peers use
// for compressed messages such as folder listings.
func Compress(payload []byte) ([]byte, error) {
	var buf bytes.Buffer
	zw := zlib.NewWriter(&buf)
	if _, err := zw.Write(payload); err != nil {
		return nil, err
	}
	if err := zw.Close(); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

func wrapReadErr(err error) error {
	if errors.Is(err, io.EOF) || errors.Is(err, io.ErrClosedPipe) {
		return ErrClosed
	}
	if errors.Is(err, io.ErrUnexpectedEOF) {
		return ErrTruncated
	}
	return fmt.Errorf("frame: read: %w", err)
}

func wrapWriteErr(err error) error {
	if errors.Is(err, io.ErrClosedPipe) {
		return ErrClosed
	}
	return fmt.Errorf("frame: write: %w", err)
}
