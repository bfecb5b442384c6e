package messages

import (
	"crypto/md5"
	"encoding/hex"
)

// ClientVersion and MinorVersion are the constants the login handshake
// advertises (spec §4.3).
const (
	ClientVersion = 157
	MinorVersion  = 1
)

// LoginRequest is the outbound Login command (spec §4.3, §6 "Login request
// encoding").
type LoginRequest struct {
	Username string
	Password string
}

// PasswordHash returns lowercase hex md5(username || password), per spec §6.
func (m LoginRequest) PasswordHash() string {
	sum := md5.Sum([]byte(m.Username + m.Password))
	return hex.EncodeToString(sum[:])
}

// Encode serializes a Login payload: username, password, client version,
// password hash, minor version.
func (m LoginRequest) Encode() []byte {
	return NewWriter().
		String(m.Username).
		String(m.Password).
		Int32(ClientVersion).
		String(m.PasswordHash()).
		Int32(MinorVersion).
		Payload()
}

// LoginResponse is the inbound reply to Login.
type LoginResponse struct {
	Success bool
	Message string
	// IP and Hash are only present on success; omitted fields decode as
	// zero values which the caller should not treat as meaningful when
	// Success is false.
	IP   uint32
	Hash string
}

// DecodeLoginResponse parses a LoginResponse payload.
func DecodeLoginResponse(payload []byte) (LoginResponse, error) {
	r := NewReader(payload)
	m := LoginResponse{Success: r.Bool()}
	if m.Success {
		m.Message = r.String()
		m.IP = r.Uint32()
		m.Hash = r.String()
	} else {
		m.Message = r.String()
	}
	return m, r.Err
}

// ConnectToPeerNotification is the server's invitation to dial a peer that
// could not reach us directly (spec §4.5, "remote-invited initiation").
type ConnectToPeerNotification struct {
	Username       string
	ConnectionType ConnectionType
	IP             uint32
	Port           uint32
	Token          uint32
	Privileged     bool
}

// DecodeConnectToPeerNotification parses a ConnectToPeer payload.
func DecodeConnectToPeerNotification(payload []byte) (ConnectToPeerNotification, error) {
	r := NewReader(payload)
	m := ConnectToPeerNotification{
		Username:       r.String(),
		ConnectionType: ConnectionType(r.String()),
		IP:             r.Uint32(),
		Port:           r.Uint32(),
		Token:          r.Uint32(),
	}
	if len(r.Remaining()) > 0 {
		m.Privileged = r.Bool()
	}
	return m, r.Err
}

// GetPeerAddressRequest asks the server for a user's current endpoint.
type GetPeerAddressRequest struct {
	Username string
}

// Encode serializes a GetPeerAddress request payload.
func (m GetPeerAddressRequest) Encode() []byte {
	return NewWriter().String(m.Username).Payload()
}

// GetPeerAddressResponse is the server's reply. An IP of 0 means the user
// is offline (spec: "UserOffline").
type GetPeerAddressResponse struct {
	Username string
	IP       uint32
	Port     uint32
}

// DecodeGetPeerAddressResponse parses a GetPeerAddressResponse payload.
func DecodeGetPeerAddressResponse(payload []byte) (GetPeerAddressResponse, error) {
	r := NewReader(payload)
	m := GetPeerAddressResponse{
		Username: r.String(),
		IP:       r.Uint32(),
		Port:     r.Uint32(),
	}
	return m, r.Err
}

// AddUserRequest subscribes to a user's status/stats updates.
type AddUserRequest struct {
	Username string
}

// Encode serializes an AddUser request payload.
func (m AddUserRequest) Encode() []byte {
	return NewWriter().String(m.Username).Payload()
}

// SetListenPortRequest declares the local listening port to the server.
type SetListenPortRequest struct {
	Port uint32
}

// Encode serializes a SetListenPort request payload.
func (m SetListenPortRequest) Encode() []byte {
	return NewWriter().Uint32(m.Port).Payload()
}

// PrivateRoomToggleRequest declares whether this client accepts private
// room invitations.
type PrivateRoomToggleRequest struct {
	Accept bool
}

// Encode serializes a PrivateRoomToggle request payload.
func (m PrivateRoomToggleRequest) Encode() []byte {
	return NewWriter().Bool(m.Accept).Payload()
}

// ParentMinSpeed is one of the three post-login information frames the
// server sends; it carries no further reply.
type ParentMinSpeed struct {
	Value uint32
}

// DecodeParentMinSpeed parses a ParentMinSpeed payload.
func DecodeParentMinSpeed(payload []byte) (ParentMinSpeed, error) {
	r := NewReader(payload)
	return ParentMinSpeed{Value: r.Uint32()}, r.Err
}

// ParentSpeedRatio is one of the three post-login information frames.
type ParentSpeedRatio struct {
	Value uint32
}

// DecodeParentSpeedRatio parses a ParentSpeedRatio payload.
func DecodeParentSpeedRatio(payload []byte) (ParentSpeedRatio, error) {
	r := NewReader(payload)
	return ParentSpeedRatio{Value: r.Uint32()}, r.Err
}

// WishlistInterval is one of the three post-login information frames; it
// constrains how often WishlistSearchRequest may be sent.
type WishlistInterval struct {
	Seconds uint32
}

// DecodeWishlistInterval parses a WishlistInterval payload.
func DecodeWishlistInterval(payload []byte) (WishlistInterval, error) {
	r := NewReader(payload)
	return WishlistInterval{Seconds: r.Uint32()}, r.Err
}

// NetInfoCandidate is one entry in a NetInfo hint: a candidate distributed
// parent.
type NetInfoCandidate struct {
	Username string
	IP       uint32
	Port     uint32
}

// NetInfo lists candidate distributed-network parents (spec §4.6).
type NetInfo struct {
	Candidates []NetInfoCandidate
}

// DecodeNetInfo parses a NetInfo payload.
func DecodeNetInfo(payload []byte) (NetInfo, error) {
	r := NewReader(payload)
	n := r.Uint32()
	m := NetInfo{}
	for i := uint32(0); i < n && r.Err == nil; i++ {
		m.Candidates = append(m.Candidates, NetInfoCandidate{
			Username: r.String(),
			IP:       r.Uint32(),
			Port:     r.Uint32(),
		})
	}
	return m, r.Err
}

// DistributedStatusUpdate advertises this node's adoption state to the
// server (spec §4.6 "advertise status"): have_parent plus, when true, the
// parent's speed ratio.
type DistributedStatusUpdate struct {
	HaveParent      bool
	ParentSpeedRatio uint32
}

// Encode serializes a HaveNoParent/AcceptChildren-style boolean status
// frame carrying HaveParent only; ParentSpeedRatio is not written, and no
// other frame sent by the session carries it.
func (m DistributedStatusUpdate) Encode() []byte {
	return NewWriter().Bool(m.HaveParent).Payload()
}

// SearchRequest is a network-wide search (spec §4.8 "Network" scope).
type SearchRequest struct {
	Token uint32
	Text  string
}

// Encode serializes a SearchRequest payload.
func (m SearchRequest) Encode() []byte {
	return NewWriter().Uint32(m.Token).String(m.Text).Payload()
}

// RoomSearchRequest is a room-scoped search.
type RoomSearchRequest struct {
	Room  string
	Token uint32
	Text  string
}

// Encode serializes a RoomSearchRequest payload.
func (m RoomSearchRequest) Encode() []byte {
	return NewWriter().String(m.Room).Uint32(m.Token).String(m.Text).Payload()
}

// UserSearchRequest is a user-scoped search, sent once per target user.
type UserSearchRequest struct {
	Username string
	Token    uint32
	Text     string
}

// Encode serializes a UserSearchRequest payload.
func (m UserSearchRequest) Encode() []byte {
	return NewWriter().String(m.Username).Uint32(m.Token).String(m.Text).Payload()
}

// WishlistSearchRequest is a wishlist-scoped search.
type WishlistSearchRequest struct {
	Token uint32
	Text  string
}

// Encode serializes a WishlistSearchRequest payload.
func (m WishlistSearchRequest) Encode() []byte {
	return NewWriter().Uint32(m.Token).String(m.Text).Payload()
}

// JoinRoomRequest joins a chat room.
type JoinRoomRequest struct {
	Room string
}

// Encode serializes a JoinRoom payload.
func (m JoinRoomRequest) Encode() []byte {
	return NewWriter().String(m.Room).Payload()
}

// LeaveRoomRequest leaves a chat room.
type LeaveRoomRequest struct {
	Room string
}

// Encode serializes a LeaveRoom payload.
func (m LeaveRoomRequest) Encode() []byte {
	return NewWriter().String(m.Room).Payload()
}

// RoomMessageRequest sends a chat message to a room.
type RoomMessageRequest struct {
	Room    string
	Message string
}

// Encode serializes a RoomMessage (SayChatroom) payload.
func (m RoomMessageRequest) Encode() []byte {
	return NewWriter().String(m.Room).String(m.Message).Payload()
}

// RoomMessageNotification is an inbound chat message for a joined room.
type RoomMessageNotification struct {
	Room     string
	Username string
	Message  string
}

// DecodeRoomMessageNotification parses a RoomMessage payload.
func DecodeRoomMessageNotification(payload []byte) (RoomMessageNotification, error) {
	r := NewReader(payload)
	m := RoomMessageNotification{
		Room:     r.String(),
		Username: r.String(),
		Message:  r.String(),
	}
	return m, r.Err
}

// UserJoinedRoomNotification announces that username joined room (server
// code 16).
type UserJoinedRoomNotification struct {
	Room     string
	Username string
}

// DecodeUserJoinedRoomNotification parses a UserJoinedRoom payload.
func DecodeUserJoinedRoomNotification(payload []byte) (UserJoinedRoomNotification, error) {
	r := NewReader(payload)
	m := UserJoinedRoomNotification{Room: r.String(), Username: r.String()}
	return m, r.Err
}

// UserLeftRoomNotification announces that username left room (server code
// 17).
type UserLeftRoomNotification struct {
	Room     string
	Username string
}

// DecodeUserLeftRoomNotification parses a UserLeftRoom payload.
func DecodeUserLeftRoomNotification(payload []byte) (UserLeftRoomNotification, error) {
	r := NewReader(payload)
	m := UserLeftRoomNotification{Room: r.String(), Username: r.String()}
	return m, r.Err
}

// RoomListResponse enumerates every public room and its current occupancy
// (server code 64).
type RoomListResponse struct {
	Rooms []RoomInfo
}

// RoomInfo is one room entry within a RoomListResponse.
type RoomInfo struct {
	Name      string
	UserCount uint32
}

// DecodeRoomListResponse parses a RoomList payload.
func DecodeRoomListResponse(payload []byte) (RoomListResponse, error) {
	r := NewReader(payload)
	n := r.Uint32()
	names := make([]string, 0, n)
	for i := uint32(0); i < n && r.Err == nil; i++ {
		names = append(names, r.String())
	}
	counts := r.Uint32()
	m := RoomListResponse{Rooms: make([]RoomInfo, 0, len(names))}
	for i := uint32(0); i < counts && r.Err == nil && int(i) < len(names); i++ {
		m.Rooms = append(m.Rooms, RoomInfo{Name: names[i], UserCount: r.Uint32()})
	}
	return m, r.Err
}

// PrivateMessageNotification is an inbound private message.
type PrivateMessageNotification struct {
	ID        uint32
	Timestamp uint32
	Username  string
	Message   string
}

// DecodePrivateMessageNotification parses a PrivateMessage payload.
func DecodePrivateMessageNotification(payload []byte) (PrivateMessageNotification, error) {
	r := NewReader(payload)
	m := PrivateMessageNotification{
		ID:        r.Uint32(),
		Timestamp: r.Uint32(),
		Username:  r.String(),
		Message:   r.String(),
	}
	return m, r.Err
}

// AcknowledgePrivateMessageRequest acks receipt of a private message.
type AcknowledgePrivateMessageRequest struct {
	ID uint32
}

// Encode serializes an AcknowledgePrivateMessage payload.
func (m AcknowledgePrivateMessageRequest) Encode() []byte {
	return NewWriter().Uint32(m.ID).Payload()
}

// CheckPrivilegesResponse reports remaining privileged-membership seconds.
type CheckPrivilegesResponse struct {
	Seconds uint32
}

// DecodeCheckPrivilegesResponse parses a CheckPrivileges payload.
func DecodeCheckPrivilegesResponse(payload []byte) (CheckPrivilegesResponse, error) {
	r := NewReader(payload)
	return CheckPrivilegesResponse{Seconds: r.Uint32()}, r.Err
}
