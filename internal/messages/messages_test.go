package messages

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestLoginRequestEncodesPasswordHash(t *testing.T) {
	m := LoginRequest{Username: "nicotine", Password: "hunter2"}
	hash := m.PasswordHash()
	require.Len(t, hash, 32)

	payload := m.Encode()
	r := NewReader(payload)
	require.Equal(t, "nicotine", r.String())
	require.Equal(t, "hunter2", r.String())
	require.EqualValues(t, ClientVersion, r.Int32())
	require.Equal(t, hash, r.String())
	require.EqualValues(t, MinorVersion, r.Int32())
	require.NoError(t, r.Err)
}

func TestLoginResponseRoundTripSuccess(t *testing.T) {
	payload := NewWriter().Bool(true).String("ok").Uint32(0x0100007f).String("deadbeef").Payload()
	m, err := DecodeLoginResponse(payload)
	require.NoError(t, err)
	require.True(t, m.Success)
	require.Equal(t, "ok", m.Message)
	require.EqualValues(t, 0x0100007f, m.IP)
	require.Equal(t, "deadbeef", m.Hash)
}

func TestLoginResponseRoundTripFailure(t *testing.T) {
	payload := NewWriter().Bool(false).String("INVALIDPASS").Payload()
	m, err := DecodeLoginResponse(payload)
	require.NoError(t, err)
	require.False(t, m.Success)
	require.Equal(t, "INVALIDPASS", m.Message)
}

func TestConnectToPeerNotificationRoundTrip(t *testing.T) {
	payload := NewWriter().
		String("foo").
		String(string(ConnectionTypeFileTransfer)).
		Uint32(0x7f000001).
		Uint32(2234).
		Uint32(99).
		Bool(true).
		Payload()

	m, err := DecodeConnectToPeerNotification(payload)
	require.NoError(t, err)
	require.Equal(t, "foo", m.Username)
	require.Equal(t, ConnectionTypeFileTransfer, m.ConnectionType)
	require.EqualValues(t, 2234, m.Port)
	require.EqualValues(t, 99, m.Token)
	require.True(t, m.Privileged)
}

func TestGetPeerAddressResponseOffline(t *testing.T) {
	payload := NewWriter().String("ghost").Uint32(0).Uint32(0).Payload()
	m, err := DecodeGetPeerAddressResponse(payload)
	require.NoError(t, err)
	require.Zero(t, m.IP)
}

func TestTransferRequestDownloadHasNoSize(t *testing.T) {
	m := TransferRequest{Direction: TransferDirectionDownload, Token: 7, Filename: "song.flac"}
	payload := m.Encode()
	decoded, err := DecodeTransferRequest(payload)
	require.NoError(t, err)
	require.Equal(t, m, decoded)
}

func TestTransferRequestUploadCarriesSize(t *testing.T) {
	m := TransferRequest{Direction: TransferDirectionUpload, Token: 99, Filename: "song.flac", Size: 1048576}
	payload := m.Encode()
	decoded, err := DecodeTransferRequest(payload)
	require.NoError(t, err)
	require.Equal(t, m, decoded)
}

func TestTransferResponseAllowedCarriesSize(t *testing.T) {
	m := TransferResponse{Token: 7, Allowed: true, Size: 1048576}
	decoded, err := DecodeTransferResponse(m.Encode())
	require.NoError(t, err)
	require.Equal(t, m, decoded)
}

func TestTransferResponseQueuedMessage(t *testing.T) {
	m := TransferResponse{Token: 7, Allowed: false, Message: "Queued."}
	decoded, err := DecodeTransferResponse(m.Encode())
	require.NoError(t, err)
	require.Equal(t, m, decoded)
}

func TestSearchResponseRoundTrip(t *testing.T) {
	m := SearchResponse{
		Username: "alice",
		Token:    42,
		Files: []File{
			{Filename: "a.flac", Size: 123, Extension: "flac", Attributes: map[uint32]uint32{0: 1411}},
			{Filename: "b.mp3", Size: 456, Extension: "mp3"},
		},
		FreeSlots:    true,
		AverageSpeed: 1000,
		QueueLength:  0,
	}
	decoded, err := DecodeSearchResponse(m.Encode())
	require.NoError(t, err)
	require.Equal(t, m.Username, decoded.Username)
	require.Equal(t, m.Token, decoded.Token)
	require.Len(t, decoded.Files, 2)
	require.Equal(t, m.Files[0].Filename, decoded.Files[0].Filename)
	require.True(t, decoded.FreeSlots)
}

func TestBrowseResponseRoundTrip(t *testing.T) {
	m := BrowseResponse{Directories: []Directory{
		{Name: "music", Files: []File{{Filename: "x.flac", Size: 1}}},
	}}
	decoded, err := DecodeBrowseResponse(m.Encode())
	require.NoError(t, err)
	require.Len(t, decoded.Directories, 1)
	require.Equal(t, "music", decoded.Directories[0].Name)
}

func TestPeerInitRoundTrip(t *testing.T) {
	m := PeerInit{Username: "bob", ConnectionType: ConnectionTypePeer, Token: 5}
	decoded, err := DecodePeerInit(m.Encode())
	require.NoError(t, err)
	require.Equal(t, m, decoded)
}

func TestPierceFirewallRoundTrip(t *testing.T) {
	m := PierceFirewall{Token: 77}
	decoded, err := DecodePierceFirewall(m.Encode())
	require.NoError(t, err)
	require.Equal(t, m, decoded)
}

func TestDistributedSearchRequestRoundTrip(t *testing.T) {
	m := DistributedSearchRequestMsg{Username: "carol", Token: 1, Text: "the rolling stones"}
	decoded, err := DecodeDistributedSearchRequest(m.Encode())
	require.NoError(t, err)
	require.Equal(t, m, decoded)
}

func TestReaderShortReadSetsErr(t *testing.T) {
	r := NewReader([]byte{1, 2})
	_ = r.Uint32()
	require.Error(t, r.Err)
	// Further reads after an error are no-ops, not panics.
	require.Equal(t, "", r.String())
	require.Error(t, r.Err)
}
