package peermgr

import (
	"fmt"
	"net"

	"github.com/jpdillingham/Soulseek.NET-sub005/internal/frame"
	"github.com/jpdillingham/Soulseek.NET-sub005/internal/messages"
)

// handshakeCodec frames the single-byte-code preamble the same way the
// distributed channel does (spec §4.5's peer_init/pierce_firewall frames
// are not explicitly specified as to their outer framing; this engine
// reuses the distributed convention of a 1-byte code inside the standard
// 4-byte length prefix, the smallest encoding consistent with §4.1).
var handshakeCodec = frame.NewDistributedCodec()

// sendPeerInit writes the local-initiation preamble (spec §4.5.1).
func sendPeerInit(conn net.Conn, username string, connType messages.ConnectionType, token uint32) error {
	m := messages.PeerInit{Username: username, ConnectionType: connType, Token: token}
	return handshakeCodec.Write(conn, uint32(messages.HandshakePeerInit), m.Encode())
}

// sendPierceFirewall writes the remote-invited preamble (spec §4.5.2).
func sendPierceFirewall(conn net.Conn, token uint32) error {
	m := messages.PierceFirewall{Token: token}
	return handshakeCodec.Write(conn, uint32(messages.HandshakePierceFirewall), m.Encode())
}

// SendPierceFirewall is the exported form of sendPierceFirewall, for
// callers that dial a remote-invited connection themselves (e.g. the
// Client's response to a ConnectToPeer notification) rather than going
// through the Manager.
func SendPierceFirewall(conn net.Conn, token uint32) error {
	return sendPierceFirewall(conn, token)
}

// readHandshake reads the first frame off a freshly accepted socket and
// decodes it as either PeerInit or PierceFirewall (spec §4.5 "On inbound
// listener connections, the first frame MUST be either peer_init or
// pierce_firewall").
func readHandshake(conn net.Conn) (isPeerInit bool, peerInit messages.PeerInit, pierce messages.PierceFirewall, err error) {
	code, payload, err := handshakeCodec.Read(conn)
	if err != nil {
		return false, messages.PeerInit{}, messages.PierceFirewall{}, err
	}
	switch messages.HandshakeCode(code) {
	case messages.HandshakePeerInit:
		peerInit, err = messages.DecodePeerInit(payload)
		return true, peerInit, messages.PierceFirewall{}, err
	case messages.HandshakePierceFirewall:
		pierce, err = messages.DecodePierceFirewall(payload)
		return false, messages.PeerInit{}, pierce, err
	default:
		return false, messages.PeerInit{}, messages.PierceFirewall{}, fmt.Errorf("peermgr: unrecognized handshake code %d", code)
	}
}
