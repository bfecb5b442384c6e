package messages

// PeerInit is the initiating side's preamble on a freshly dialed peer
// socket: local username, connection-type tag, and a local token used to
// correlate a later pierce-firewall attempt from the other side.
type PeerInit struct {
	Username       string
	ConnectionType ConnectionType
	Token          uint32
}

// Encode serializes a PeerInit frame payload (the code itself is carried by
// the framing layer, not by this payload).
func (m PeerInit) Encode() []byte {
	return NewWriter().
		String(m.Username).
		String(string(m.ConnectionType)).
		Uint32(m.Token).
		Payload()
}

// DecodePeerInit parses a PeerInit payload.
func DecodePeerInit(payload []byte) (PeerInit, error) {
	r := NewReader(payload)
	m := PeerInit{
		Username:       r.String(),
		ConnectionType: ConnectionType(r.String()),
		Token:          r.Uint32(),
	}
	return m, r.Err
}

// PierceFirewall is sent by the side that dials in response to a
// server-forwarded ConnectToPeer notification; it carries only the token
// the notification supplied.
type PierceFirewall struct {
	Token uint32
}

// Encode serializes a PierceFirewall frame payload.
func (m PierceFirewall) Encode() []byte {
	return NewWriter().Uint32(m.Token).Payload()
}

// DecodePierceFirewall parses a PierceFirewall payload.
func DecodePierceFirewall(payload []byte) (PierceFirewall, error) {
	r := NewReader(payload)
	m := PierceFirewall{Token: r.Uint32()}
	return m, r.Err
}
