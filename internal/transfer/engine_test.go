package transfer

import (
	"bytes"
	"context"
	"net"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"go.uber.org/goleak"
	"go.uber.org/zap"

	"github.com/jpdillingham/Soulseek.NET-sub005/internal/diag"
	"github.com/jpdillingham/Soulseek.NET-sub005/internal/messages"
	"github.com/jpdillingham/Soulseek.NET-sub005/internal/peermgr"
	"github.com/jpdillingham/Soulseek.NET-sub005/internal/wait"
)

func TestMain(m *testing.M) {
	goleak.VerifyTestMain(m)
}

// loopbackMessenger records writes made on the peer-message connection and
// lets the test decode them; it satisfies PeerMessenger.
type loopbackMessenger struct {
	written chan struct {
		code    uint32
		payload []byte
	}
}

func newLoopbackMessenger() *loopbackMessenger {
	return &loopbackMessenger{written: make(chan struct {
		code    uint32
		payload []byte
	}, 8)}
}

func (l *loopbackMessenger) WriteMessage(code uint32, payload []byte) error {
	l.written <- struct {
		code    uint32
		payload []byte
	}{code, payload}
	return nil
}

// fakeResolver hands back a pre-wired in-memory transfer connection.
type fakeResolver struct {
	conn *peermgr.Connection
}

func (f *fakeResolver) GetTransferConnection(ctx context.Context, username string, remoteToken uint32) (*peermgr.Connection, error) {
	return f.conn, nil
}
func (f *fakeResolver) AwaitTransferConnection(ctx context.Context, username string, remoteToken uint32) (*peermgr.Connection, error) {
	return f.conn, nil
}

func TestDownloadAllowedImmediately(t *testing.T) {
	clientSide, peerSide := net.Pipe()
	defer peerSide.Close()

	resolver := &fakeResolver{conn: peermgr.NewConnection("foo", peermgr.KindTransfer, clientSide)}
	w := wait.New()
	var states []StateChange
	e := NewEngine(resolver, w, newAdmission(10, 1, nil), diag.New(zap.NewNop(), diag.Info, nil),
		func(sc StateChange) { states = append(states, sc) }, nil)

	msgr := newLoopbackMessenger()

	content := bytes.Repeat([]byte{0x42}, 1024)
	go func() {
		// Read offset from the peer side of the transfer pipe and stream the file.
		offsetBuf := make([]byte, 8)
		_, _ = peerSide.Read(offsetBuf)
		_, _ = peerSide.Write(content)
	}()

	go func() {
		msg := <-msgr.written
		require.EqualValues(t, messages.PeerTransferRequest, msg.code)
		resp := messages.TransferResponse{Token: 7, Allowed: true, Size: uint64(len(content))}
		w.Complete(wait.NewKey(int(messages.PeerTransferResponse)).WithInt(7), resp)
	}()

	var sink bytes.Buffer
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()

	tr, err := e.Download(ctx, msgr, "foo", "song.flac", 7, uint64(len(content)), &sink, DownloadOptions{})
	require.NoError(t, err)
	require.True(t, tr.State().Has(Succeeded))
	require.Equal(t, content, sink.Bytes())
}

func TestDownloadRejected(t *testing.T) {
	w := wait.New()
	e := NewEngine(&fakeResolver{}, w, newAdmission(10, 1, nil), diag.New(zap.NewNop(), diag.Info, nil), nil, nil)
	msgr := newLoopbackMessenger()

	go func() {
		<-msgr.written
		resp := messages.TransferResponse{Token: 9, Allowed: false, Message: "File not shared."}
		w.Complete(wait.NewKey(int(messages.PeerTransferResponse)).WithInt(9), resp)
	}()

	var sink bytes.Buffer
	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()

	tr, err := e.Download(ctx, msgr, "foo", "song.flac", 9, 100, &sink, DownloadOptions{})
	require.Error(t, err)
	require.True(t, tr.State().Has(Rejected))
}
