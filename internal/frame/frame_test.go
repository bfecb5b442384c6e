package frame

import (
	"bytes"
	"io"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestServerPeerRoundTrip(t *testing.T) {
	c := NewServerPeerCodec()
	buf := &bytes.Buffer{}

	require.NoError(t, c.Write(buf, 42, []byte("hello")))

	code, payload, err := c.Read(buf)
	require.NoError(t, err)
	require.EqualValues(t, 42, code)
	require.Equal(t, []byte("hello"), payload)
}

func TestDistributedRoundTrip(t *testing.T) {
	c := NewDistributedCodec()
	buf := &bytes.Buffer{}

	require.NoError(t, c.Write(buf, 3, []byte{1, 2, 3}))

	code, payload, err := c.Read(buf)
	require.NoError(t, err)
	require.EqualValues(t, 3, code)
	require.Equal(t, []byte{1, 2, 3}, payload)
}

func TestReadEmptyPayload(t *testing.T) {
	c := NewServerPeerCodec()
	buf := &bytes.Buffer{}
	require.NoError(t, c.Write(buf, 7, nil))

	code, payload, err := c.Read(buf)
	require.NoError(t, err)
	require.EqualValues(t, 7, code)
	require.Empty(t, payload)
}

func TestReadTooLarge(t *testing.T) {
	c := &Codec{CodeSize: 4, MaxFrameSize: 8}
	buf := &bytes.Buffer{}
	require.NoError(t, (&Codec{CodeSize: 4}).Write(buf, 1, make([]byte, 100)))

	_, _, err := c.Read(buf)
	require.ErrorIs(t, err, ErrTooLarge)
}

func TestReadClosed(t *testing.T) {
	c := NewServerPeerCodec()
	_, _, err := c.Read(bytes.NewReader(nil))
	require.ErrorIs(t, err, ErrClosed)
}

func TestReadTruncated(t *testing.T) {
	c := NewServerPeerCodec()
	buf := &bytes.Buffer{}
	require.NoError(t, c.Write(buf, 1, []byte("0123456789")))

	truncated := bytes.NewReader(buf.Bytes()[:6])
	_, _, err := c.Read(truncated)
	require.ErrorIs(t, err, ErrTruncated)
}

func TestCompressRoundTrip(t *testing.T) {
	original := []byte("the quick brown fox jumps over the lazy dog, repeatedly, repeatedly")
	compressed, err := Compress(original)
	require.NoError(t, err)
	require.NotEqual(t, original, compressed)

	decompressed, err := Decompress(compressed)
	require.NoError(t, err)
	require.Equal(t, original, decompressed)
}

func TestDecompressInvalid(t *testing.T) {
	_, err := Decompress([]byte("not zlib data"))
	require.Error(t, err)
}

type errConn struct{}

func (errConn) Read(p []byte) (int, error)  { return 0, io.ErrClosedPipe }
func (errConn) Write(p []byte) (int, error) { return 0, io.ErrClosedPipe }

func TestClosedConnection(t *testing.T) {
	c := NewServerPeerCodec()
	_, _, err := c.Read(errConn{})
	require.ErrorIs(t, err, ErrClosed)

	err = c.Write(errConn{}, 1, nil)
	require.ErrorIs(t, err, ErrClosed)
}
