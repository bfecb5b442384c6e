package messages

// ServerCode identifies a message on the server connection. Server and peer
// codes share a 4-byte little-endian encoding but are distinct namespaces
// (spec §6).
type ServerCode uint32

// Server message codes, per spec §6's minimum required set.
const (
	ServerLogin               ServerCode = 1
	ServerSetListenPort       ServerCode = 2
	ServerGetPeerAddress      ServerCode = 3
	ServerAddUser             ServerCode = 5
	ServerUnwatchUser         ServerCode = 6
	ServerGetUserStatus       ServerCode = 7
	ServerRoomMessage         ServerCode = 13
	ServerJoinRoom            ServerCode = 14
	ServerLeaveRoom           ServerCode = 15
	ServerUserJoinedRoom      ServerCode = 16
	ServerUserLeftRoom        ServerCode = 17
	ServerConnectToPeer       ServerCode = 18
	ServerPrivateMessage      ServerCode = 22
	ServerAckPrivateMessage   ServerCode = 23
	ServerFileSearch          ServerCode = 26
	ServerSetStatus           ServerCode = 28
	ServerPing                ServerCode = 32
	ServerSharedFoldersFiles  ServerCode = 35
	ServerGetUserStats        ServerCode = 36
	ServerKicked              ServerCode = 41
	ServerUserSearch          ServerCode = 42
	ServerRoomList            ServerCode = 64
	ServerPrivilegedUsers     ServerCode = 69
	ServerHaveNoParent        ServerCode = 71
	ServerParentMinSpeed      ServerCode = 83
	ServerParentSpeedRatio    ServerCode = 84
	ServerCheckPrivileges     ServerCode = 92
	ServerAcceptChildren      ServerCode = 100
	ServerNetInfo             ServerCode = 102
	ServerWishlistSearch      ServerCode = 103
	ServerWishlistInterval    ServerCode = 104
	ServerRoomTickerState     ServerCode = 113
	ServerRoomSearch          ServerCode = 120
	ServerBranchLevel         ServerCode = 126
	ServerBranchRoot          ServerCode = 127
	ServerResetDistributed    ServerCode = 130
	ServerPrivateRoomToggle   ServerCode = 141
	ServerChangePassword      ServerCode = 142
)

// PeerCode identifies a message on a peer-message connection.
type PeerCode uint32

// Peer message codes, per spec §6's minimum required set.
const (
	PeerGetSharedFileList     PeerCode = 4
	PeerSharedFileList        PeerCode = 5
	PeerFileSearchResult      PeerCode = 9
	PeerUserInfoRequest       PeerCode = 15
	PeerUserInfoReply         PeerCode = 16
	PeerFolderContentsRequest PeerCode = 36
	PeerFolderContentsReply   PeerCode = 37
	PeerTransferRequest       PeerCode = 40
	PeerTransferResponse      PeerCode = 41
	PeerPlaceInQueueResponse  PeerCode = 44
	PeerUploadFailed          PeerCode = 46
	PeerUploadDenied          PeerCode = 50
	PeerPlaceInQueueRequest   PeerCode = 51
)

// DistributedCode identifies a message on a distributed-network connection;
// it is a single byte on the wire.
type DistributedCode uint8

// Distributed message codes.
const (
	DistributedPing          DistributedCode = 0
	DistributedSearchRequest DistributedCode = 3
	DistributedBranchLevel   DistributedCode = 4
	DistributedBranchRoot    DistributedCode = 5
)

// HandshakeCode identifies the preamble sent on a freshly dialed or
// freshly accepted peer/distributed/transfer socket, before any framed
// message flows. It uses the same 1-byte code convention as the
// distributed channel.
type HandshakeCode uint8

// Handshake codes (spec §4.5, glossary "Peer init"/"Pierce firewall").
const (
	HandshakePierceFirewall HandshakeCode = 0
	HandshakePeerInit       HandshakeCode = 1
)

// ConnectionType is the one-letter tag peer_init/ConnectToPeer use to
// classify a connection's purpose.
type ConnectionType string

// Connection type tags (spec §4.5).
const (
	ConnectionTypePeer        ConnectionType = "P"
	ConnectionTypeFileTransfer ConnectionType = "F"
	ConnectionTypeDistributed ConnectionType = "D"
)
