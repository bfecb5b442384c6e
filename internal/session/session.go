// Package session implements the Server Session (spec §4.3): a single
// authenticated connection to the coordination server, its login handshake,
// and dispatch of inbound server messages to the rest of the engine.
package session

import (
	"context"
	"fmt"
	"net"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/jpdillingham/Soulseek.NET-sub005/internal/diag"
	"github.com/jpdillingham/Soulseek.NET-sub005/internal/frame"
	"github.com/jpdillingham/Soulseek.NET-sub005/internal/messages"
	"github.com/jpdillingham/Soulseek.NET-sub005/internal/wait"
)

// Wait keys, namespaced by server message code.
const (
	KeyLogin            = int(messages.ServerLogin)
	KeyParentMinSpeed    = int(messages.ServerParentMinSpeed)
	KeyParentSpeedRatio  = int(messages.ServerParentSpeedRatio)
	KeyWishlistInterval  = int(messages.ServerWishlistInterval)
)

// Options bundles the server connection's tunables (spec §6
// "server_connection_options").
type Options struct {
	ConnectTimeout    time.Duration
	InactivityTimeout time.Duration
	MessageTimeout    time.Duration
}

// Dispatcher receives messages the Session itself does not own the reply
// to: the distributed overlay, peer manager, search coordinator, and the
// top-level event stream. Implemented by the Client facade's wiring code.
type Dispatcher interface {
	OnConnectToPeer(messages.ConnectToPeerNotification)
	OnGetPeerAddress(messages.GetPeerAddressResponse)
	OnNetInfo(messages.NetInfo)
	OnRoomMessage(messages.RoomMessageNotification)
	OnUserJoinedRoom(messages.UserJoinedRoomNotification)
	OnUserLeftRoom(messages.UserLeftRoomNotification)
	OnPrivateMessage(messages.PrivateMessageNotification)
	OnKicked()
	OnDisconnected(error)
}

// Session owns one TCP connection to the coordination server.
type Session struct {
	opts Options
	log  *diag.Emitter
	w    *wait.Waiter
	disp Dispatcher

	conn  net.Conn
	codec frame.Codec

	writeMu sync.Mutex

	closeOnce sync.Once
	closed    chan struct{}
}

// New constructs a Session bound to conn. Call Run to start the read loop.
func New(conn net.Conn, opts Options, w *wait.Waiter, disp Dispatcher, log *diag.Emitter) *Session {
	return &Session{
		conn:   conn,
		opts:   opts,
		codec:  frame.NewServerPeerCodec(),
		w:      w,
		disp:   disp,
		log:    log.With("session"),
		closed: make(chan struct{}),
	}
}

// Dial connects to addr and returns a ready Session. The caller must still
// call Login and Run.
func Dial(ctx context.Context, addr string, opts Options, w *wait.Waiter, disp Dispatcher, log *diag.Emitter) (*Session, error) {
	d := net.Dialer{Timeout: opts.ConnectTimeout}
	conn, err := d.DialContext(ctx, "tcp", addr)
	if err != nil {
		return nil, fmt.Errorf("session: dial: %w", err)
	}
	return New(conn, opts, w, disp, log), nil
}

// Credentials holds the values written in the initial Login command.
type Credentials struct {
	Username string
	Password string
}

// LoginResult carries the server's reply plus the three information frames
// required for a complete login (spec §4.3).
type LoginResult struct {
	Message          string
	IP               uint32
	ParentMinSpeed   uint32
	ParentSpeedRatio uint32
	WishlistInterval uint32
}

// Login performs the full handshake: writes the Login command, then awaits
// the Login reply and the three information frames, failing the whole
// operation if any is missing or the login itself is rejected.
func (s *Session) Login(ctx context.Context, creds Credentials) (*LoginResult, error) {
	loginKey := wait.NewKey(KeyLogin)
	minSpeedKey := wait.NewKey(KeyParentMinSpeed)
	speedRatioKey := wait.NewKey(KeyParentSpeedRatio)
	wishlistKey := wait.NewKey(KeyWishlistInterval)

	loginFut := s.w.Register(loginKey)
	minSpeedFut := s.w.Register(minSpeedKey)
	speedRatioFut := s.w.Register(speedRatioKey)
	wishlistFut := s.w.Register(wishlistKey)

	req := messages.LoginRequest{Username: creds.Username, Password: creds.Password}
	if err := s.writeMessage(uint32(messages.ServerLogin), req.Encode()); err != nil {
		return nil, fmt.Errorf("session: write login: %w", err)
	}

	loginAny, err := loginFut.Await(ctx)
	if err != nil {
		return nil, fmt.Errorf("session: await login reply: %w", err)
	}
	resp := loginAny.(messages.LoginResponse)
	if !resp.Success {
		return nil, fmt.Errorf("session: login rejected: %s", resp.Message)
	}

	minSpeedAny, err := minSpeedFut.Await(ctx)
	if err != nil {
		return nil, fmt.Errorf("session: await parent min speed: %w", err)
	}
	speedRatioAny, err := speedRatioFut.Await(ctx)
	if err != nil {
		return nil, fmt.Errorf("session: await parent speed ratio: %w", err)
	}
	wishlistAny, err := wishlistFut.Await(ctx)
	if err != nil {
		return nil, fmt.Errorf("session: await wishlist interval: %w", err)
	}

	return &LoginResult{
		Message:          resp.Message,
		IP:               resp.IP,
		ParentMinSpeed:   minSpeedAny.(messages.ParentMinSpeed).Value,
		ParentSpeedRatio: speedRatioAny.(messages.ParentSpeedRatio).Value,
		WishlistInterval: wishlistAny.(messages.WishlistInterval).Seconds,
	}, nil
}

// SendSetListenPort, SendPrivateRoomToggle, and SendDistributedStatus are
// the three post-login configuration writes (spec §4.3).
func (s *Session) SendSetListenPort(port int) error {
	m := messages.SetListenPortRequest{Port: uint32(port)}
	return s.writeMessage(uint32(messages.ServerSetListenPort), m.Encode())
}

func (s *Session) SendPrivateRoomToggle(accept bool) error {
	m := messages.PrivateRoomToggleRequest{Accept: accept}
	return s.writeMessage(uint32(messages.ServerPrivateRoomToggle), m.Encode())
}

func (s *Session) SendDistributedStatus(haveParent bool, parentSpeedRatio uint32) error {
	m := messages.DistributedStatusUpdate{HaveParent: haveParent, ParentSpeedRatio: parentSpeedRatio}
	return s.writeMessage(uint32(messages.ServerHaveNoParent), m.Encode())
}

// SendSearchRequest issues a network-wide search.
func (s *Session) SendSearchRequest(token uint32, text string) error {
	m := messages.SearchRequest{Token: token, Text: text}
	return s.writeMessage(uint32(messages.ServerFileSearch), m.Encode())
}

// SendRoomSearchRequest issues a room-scoped search.
func (s *Session) SendRoomSearchRequest(room string, token uint32, text string) error {
	m := messages.RoomSearchRequest{Room: room, Token: token, Text: text}
	return s.writeMessage(uint32(messages.ServerRoomSearch), m.Encode())
}

// SendUserSearchRequest issues a user-scoped search.
func (s *Session) SendUserSearchRequest(username string, token uint32, text string) error {
	m := messages.UserSearchRequest{Username: username, Token: token, Text: text}
	return s.writeMessage(uint32(messages.ServerUserSearch), m.Encode())
}

// SendWishlistSearchRequest issues a wishlist search.
func (s *Session) SendWishlistSearchRequest(token uint32, text string) error {
	m := messages.WishlistSearchRequest{Token: token, Text: text}
	return s.writeMessage(uint32(messages.ServerWishlistSearch), m.Encode())
}

// SendJoinRoom joins room.
func (s *Session) SendJoinRoom(room string) error {
	m := messages.JoinRoomRequest{Room: room}
	return s.writeMessage(uint32(messages.ServerJoinRoom), m.Encode())
}

// SendLeaveRoom leaves room.
func (s *Session) SendLeaveRoom(room string) error {
	m := messages.LeaveRoomRequest{Room: room}
	return s.writeMessage(uint32(messages.ServerLeaveRoom), m.Encode())
}

// SendRoomMessage posts text to room.
func (s *Session) SendRoomMessage(room, text string) error {
	m := messages.RoomMessageRequest{Room: room, Message: text}
	return s.writeMessage(uint32(messages.ServerRoomMessage), m.Encode())
}

// RequestRoomList asks the server for the public room list, returning the
// future the caller awaits for the RoomListResponse.
func (s *Session) RequestRoomList() (*wait.Future, error) {
	key := wait.NewKey(int(messages.ServerRoomList))
	fut := s.w.Register(key)
	if err := s.writeMessage(uint32(messages.ServerRoomList), nil); err != nil {
		s.w.Cancel(key)
		return nil, err
	}
	return fut, nil
}

// SendGetPeerAddress requests the endpoint for username and arms the
// completion wait, returning the future for the caller to await.
func (s *Session) SendGetPeerAddress(username string) (*wait.Future, error) {
	key := wait.NewKey(int(messages.ServerGetPeerAddress)).WithStr1(username)
	fut := s.w.Register(key)
	m := messages.GetPeerAddressRequest{Username: username}
	if err := s.writeMessage(uint32(messages.ServerGetPeerAddress), m.Encode()); err != nil {
		s.w.Cancel(key)
		return nil, err
	}
	return fut, nil
}

// SendRaw writes an arbitrary already-encoded message, for requests that
// have no dedicated Send method (e.g. AcknowledgePrivateMessage).
func (s *Session) SendRaw(code uint32, payload []byte) error {
	return s.writeMessage(code, payload)
}

func (s *Session) writeMessage(code uint32, payload []byte) error {
	s.writeMu.Lock()
	defer s.writeMu.Unlock()
	return s.codec.Write(s.conn, code, payload)
}

// Run drives the inbound read loop until the connection closes or ctx is
// cancelled. It returns the terminal error, if any.
func (s *Session) Run(ctx context.Context) error {
	go func() {
		<-ctx.Done()
		s.Close()
	}()

	for {
		code, payload, err := s.codec.Read(s.conn)
		if err != nil {
			s.Close()
			s.disp.OnDisconnected(err)
			return err
		}
		if err := s.dispatch(messages.ServerCode(code), payload); err != nil {
			s.log.Warnf("dispatch failed", zap.Uint32("code", code), zap.Error(err))
		}
	}
}

// Close tears down the underlying connection. Safe to call multiple times.
func (s *Session) Close() error {
	var err error
	s.closeOnce.Do(func() {
		close(s.closed)
		err = s.conn.Close()
	})
	return err
}

func (s *Session) dispatch(code messages.ServerCode, payload []byte) error {
	switch code {
	case messages.ServerLogin:
		m, err := messages.DecodeLoginResponse(payload)
		if err != nil {
			return err
		}
		s.w.Complete(wait.NewKey(KeyLogin), m)
	case messages.ServerParentMinSpeed:
		m, err := messages.DecodeParentMinSpeed(payload)
		if err != nil {
			return err
		}
		s.w.Complete(wait.NewKey(KeyParentMinSpeed), m)
	case messages.ServerParentSpeedRatio:
		m, err := messages.DecodeParentSpeedRatio(payload)
		if err != nil {
			return err
		}
		s.w.Complete(wait.NewKey(KeyParentSpeedRatio), m)
	case messages.ServerWishlistInterval:
		m, err := messages.DecodeWishlistInterval(payload)
		if err != nil {
			return err
		}
		s.w.Complete(wait.NewKey(KeyWishlistInterval), m)
	case messages.ServerConnectToPeer:
		m, err := messages.DecodeConnectToPeerNotification(payload)
		if err != nil {
			return err
		}
		s.disp.OnConnectToPeer(m)
	case messages.ServerGetPeerAddress:
		m, err := messages.DecodeGetPeerAddressResponse(payload)
		if err != nil {
			return err
		}
		s.w.Complete(wait.NewKey(int(messages.ServerGetPeerAddress)).WithStr1(m.Username), m)
		s.disp.OnGetPeerAddress(m)
	case messages.ServerNetInfo:
		m, err := messages.DecodeNetInfo(payload)
		if err != nil {
			return err
		}
		s.disp.OnNetInfo(m)
	case messages.ServerKicked:
		s.disp.OnKicked()
	case messages.ServerRoomMessage:
		m, err := messages.DecodeRoomMessageNotification(payload)
		if err != nil {
			return err
		}
		s.disp.OnRoomMessage(m)
	case messages.ServerUserJoinedRoom:
		m, err := messages.DecodeUserJoinedRoomNotification(payload)
		if err != nil {
			return err
		}
		s.disp.OnUserJoinedRoom(m)
	case messages.ServerUserLeftRoom:
		m, err := messages.DecodeUserLeftRoomNotification(payload)
		if err != nil {
			return err
		}
		s.disp.OnUserLeftRoom(m)
	case messages.ServerRoomList:
		m, err := messages.DecodeRoomListResponse(payload)
		if err != nil {
			return err
		}
		s.w.Complete(wait.NewKey(int(messages.ServerRoomList)), m)
	case messages.ServerPrivateMessage:
		m, err := messages.DecodePrivateMessageNotification(payload)
		if err != nil {
			return err
		}
		s.disp.OnPrivateMessage(m)
	default:
		// Unknown or not-yet-modeled server message; ignored rather than
		// treated as a dispatch failure.
	}
	return nil
}
