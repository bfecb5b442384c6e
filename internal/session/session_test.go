package session

import (
	"context"
	"net"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"go.uber.org/goleak"
	"go.uber.org/zap"

	"github.com/jpdillingham/Soulseek.NET-sub005/internal/diag"
	"github.com/jpdillingham/Soulseek.NET-sub005/internal/frame"
	"github.com/jpdillingham/Soulseek.NET-sub005/internal/messages"
	"github.com/jpdillingham/Soulseek.NET-sub005/internal/wait"
)

func TestMain(m *testing.M) {
	goleak.VerifyTestMain(m)
}

type stubDispatcher struct {
	kicked chan struct{}
}

func (s *stubDispatcher) OnConnectToPeer(messages.ConnectToPeerNotification)     {}
func (s *stubDispatcher) OnGetPeerAddress(messages.GetPeerAddressResponse)       {}
func (s *stubDispatcher) OnNetInfo(messages.NetInfo)                            {}
func (s *stubDispatcher) OnRoomMessage(messages.RoomMessageNotification)        {}
func (s *stubDispatcher) OnUserJoinedRoom(messages.UserJoinedRoomNotification)  {}
func (s *stubDispatcher) OnUserLeftRoom(messages.UserLeftRoomNotification)      {}
func (s *stubDispatcher) OnPrivateMessage(messages.PrivateMessageNotification)  {}
func (s *stubDispatcher) OnKicked() {
	if s.kicked != nil {
		close(s.kicked)
	}
}
func (s *stubDispatcher) OnDisconnected(error) {}

func newPipeSession(t *testing.T) (*Session, net.Conn, *stubDispatcher) {
	t.Helper()
	client, server := net.Pipe()
	disp := &stubDispatcher{kicked: make(chan struct{})}
	sess := New(client, Options{MessageTimeout: time.Second}, wait.New(), disp, diag.New(zap.NewNop(), diag.Info, nil))
	return sess, server, disp
}

func TestLoginHappyPath(t *testing.T) {
	sess, server, _ := newPipeSession(t)
	codec := frame.NewServerPeerCodec()

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()

	go func() {
		_, payload, err := codec.Read(server)
		require.NoError(t, err)
		req, err := decodeLoginRequestForTest(payload)
		require.NoError(t, err)
		require.Equal(t, "nicotine", req.Username)

		loginPayload := messages.NewWriter().Bool(true).String("ok").Uint32(0x7f000001).String("abc").Payload()
		require.NoError(t, codec.Write(server, uint32(messages.ServerLogin), loginPayload))

		minSpeedPayload := messages.NewWriter().Uint32(1000).Payload()
		require.NoError(t, codec.Write(server, uint32(messages.ServerParentMinSpeed), minSpeedPayload))

		speedRatioPayload := messages.NewWriter().Uint32(50).Payload()
		require.NoError(t, codec.Write(server, uint32(messages.ServerParentSpeedRatio), speedRatioPayload))

		wishlistPayload := messages.NewWriter().Uint32(720).Payload()
		require.NoError(t, codec.Write(server, uint32(messages.ServerWishlistInterval), wishlistPayload))
	}()

	go sess.Run(ctx)

	result, err := sess.Login(ctx, Credentials{Username: "nicotine", Password: "hunter2"})
	require.NoError(t, err)
	require.EqualValues(t, 1000, result.ParentMinSpeed)
	require.EqualValues(t, 50, result.ParentSpeedRatio)
	require.EqualValues(t, 720, result.WishlistInterval)

	sess.Close()
	server.Close()
}

func TestKickedDispatched(t *testing.T) {
	sess, server, disp := newPipeSession(t)
	codec := frame.NewServerPeerCodec()

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()

	go sess.Run(ctx)
	require.NoError(t, codec.Write(server, uint32(messages.ServerKicked), nil))

	select {
	case <-disp.kicked:
	case <-time.After(time.Second):
		t.Fatal("expected OnKicked to fire")
	}

	sess.Close()
	server.Close()
}

func decodeLoginRequestForTest(payload []byte) (messages.LoginRequest, error) {
	r := messages.NewReader(payload)
	username := r.String()
	password := r.String()
	_ = r.Int32()
	_ = r.String()
	_ = r.Int32()
	return messages.LoginRequest{Username: username, Password: password}, r.Err
}
