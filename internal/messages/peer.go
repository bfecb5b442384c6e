package messages

// TransferDirection distinguishes a download request from an
// upload-readiness announcement inside a TransferRequest (spec §4.7).
type TransferDirection uint32

// Transfer directions.
const (
	TransferDirectionDownload TransferDirection = 0
	TransferDirectionUpload   TransferDirection = 1
)

// TransferRequest is sent by a downloader to ask to receive a file
// (direction=Download), or by an uploader announcing it is ready to send
// (direction=Upload, which also carries the file size).
type TransferRequest struct {
	Direction TransferDirection
	Token     uint32
	Filename  string
	Size      uint64
}

// Encode serializes a TransferRequest payload. Size is only written for
// upload-direction requests, matching the wire format.
func (m TransferRequest) Encode() []byte {
	w := NewWriter().Uint32(uint32(m.Direction)).Uint32(m.Token).String(m.Filename)
	if m.Direction == TransferDirectionUpload {
		w.Uint64(m.Size)
	}
	return w.Payload()
}

// DecodeTransferRequest parses a TransferRequest payload.
func DecodeTransferRequest(payload []byte) (TransferRequest, error) {
	r := NewReader(payload)
	m := TransferRequest{
		Direction: TransferDirection(r.Uint32()),
		Token:     r.Uint32(),
		Filename:  r.String(),
	}
	if m.Direction == TransferDirectionUpload {
		m.Size = r.Uint64()
	}
	return m, r.Err
}

// TransferResponse replies to a TransferRequest. When Allowed is true, Size
// carries the file size (which, per spec §9, may be legitimately zero for
// files over 4 GiB due to a known remote-client bug); when false, Message
// carries the rejection reason, and a message equal to "Queued." (matched
// case-insensitively after trimming) means "queued, expect a follow-up
// TransferRequest later" rather than an outright rejection.
type TransferResponse struct {
	Token   uint32
	Allowed bool
	Size    uint64
	Message string
}

// Encode serializes a TransferResponse payload.
func (m TransferResponse) Encode() []byte {
	w := NewWriter().Uint32(m.Token).Bool(m.Allowed)
	if m.Allowed {
		w.Uint64(m.Size)
	} else {
		w.String(m.Message)
	}
	return w.Payload()
}

// DecodeTransferResponse parses a TransferResponse payload.
func DecodeTransferResponse(payload []byte) (TransferResponse, error) {
	r := NewReader(payload)
	m := TransferResponse{Token: r.Uint32(), Allowed: r.Bool()}
	if m.Allowed {
		m.Size = r.Uint64()
	} else {
		m.Message = r.String()
	}
	return m, r.Err
}

// UploadFailedNotification tells a peer a requested upload cannot proceed.
type UploadFailedNotification struct {
	Filename string
}

// Encode serializes an UploadFailed payload.
func (m UploadFailedNotification) Encode() []byte {
	return NewWriter().String(m.Filename).Payload()
}

// UploadDeniedNotification tells a peer their queued request was denied,
// e.g. with reason "Cancelled" (spec §4.7.2 step 6).
type UploadDeniedNotification struct {
	Filename string
	Message  string
}

// Encode serializes an UploadDenied payload.
func (m UploadDeniedNotification) Encode() []byte {
	return NewWriter().String(m.Filename).String(m.Message).Payload()
}

// File describes one shared file as carried in search results, browse
// responses, and folder-contents responses.
type File struct {
	Filename   string
	Size       uint64
	Extension  string
	Attributes map[uint32]uint32
}

func encodeFile(w *Writer, f File) {
	w.String(f.Filename).Uint64(f.Size).String(f.Extension).Uint32(uint32(len(f.Attributes)))
	for k, v := range f.Attributes {
		w.Uint32(k).Uint32(v)
	}
}

func decodeFile(r *Reader) File {
	f := File{
		Filename:  r.String(),
		Size:      r.Uint64(),
		Extension: r.String(),
	}
	n := r.Uint32()
	if n > 0 {
		f.Attributes = make(map[uint32]uint32, n)
	}
	for i := uint32(0); i < n && r.Err == nil; i++ {
		k := r.Uint32()
		v := r.Uint32()
		f.Attributes[k] = v
	}
	return f
}

// SearchResponse is an inbound result for one of our outstanding searches.
// On the wire the payload is zlib-compressed; the peer-connection
// dispatcher inflates it (by message code, not a flag) before calling
// DecodeSearchResponse.
type SearchResponse struct {
	Username     string
	Token        uint32
	Files        []File
	FreeSlots    bool
	AverageSpeed uint32
	QueueLength  uint64
}

// Encode serializes the inner (pre-compression) SearchResponse payload.
func (m SearchResponse) Encode() []byte {
	w := NewWriter().String(m.Username).Uint32(m.Token).Uint32(uint32(len(m.Files)))
	for _, f := range m.Files {
		encodeFile(w, f)
	}
	w.Bool(m.FreeSlots).Uint32(m.AverageSpeed).Uint64(m.QueueLength)
	return w.Payload()
}

// DecodeSearchResponse parses an already-decompressed SearchResponse
// payload.
func DecodeSearchResponse(payload []byte) (SearchResponse, error) {
	r := NewReader(payload)
	m := SearchResponse{Username: r.String(), Token: r.Uint32()}
	n := r.Uint32()
	for i := uint32(0); i < n && r.Err == nil; i++ {
		m.Files = append(m.Files, decodeFile(r))
	}
	m.FreeSlots = r.Bool()
	m.AverageSpeed = r.Uint32()
	m.QueueLength = r.Uint64()
	return m, r.Err
}

// UserInfoResponse answers an InfoRequest.
type UserInfoResponse struct {
	Description   string
	Picture       []byte
	TotalUploads  uint32
	QueueSize     uint32
	SlotsFree     bool
}

// Encode serializes a UserInfoResponse payload.
func (m UserInfoResponse) Encode() []byte {
	w := NewWriter().String(m.Description).Bool(len(m.Picture) > 0)
	if len(m.Picture) > 0 {
		w.Bytes(m.Picture)
	}
	w.Uint32(m.TotalUploads).Uint32(m.QueueSize).Bool(m.SlotsFree)
	return w.Payload()
}

// DecodeUserInfoResponse parses a UserInfoResponse payload.
func DecodeUserInfoResponse(payload []byte) (UserInfoResponse, error) {
	r := NewReader(payload)
	m := UserInfoResponse{Description: r.String()}
	if r.Bool() {
		m.Picture = r.Bytes()
	}
	m.TotalUploads = r.Uint32()
	m.QueueSize = r.Uint32()
	m.SlotsFree = r.Bool()
	return m, r.Err
}

// Directory is one folder entry in a browse response.
type Directory struct {
	Name  string
	Files []File
}

// BrowseResponse lists every shared directory (spec §6 resolver contracts).
// Wire-compressed, like SearchResponse.
type BrowseResponse struct {
	Directories []Directory
}

// Encode serializes the inner BrowseResponse payload.
func (m BrowseResponse) Encode() []byte {
	w := NewWriter().Uint32(uint32(len(m.Directories)))
	for _, d := range m.Directories {
		w.String(d.Name).Uint32(uint32(len(d.Files)))
		for _, f := range d.Files {
			encodeFile(w, f)
		}
	}
	return w.Payload()
}

// DecodeBrowseResponse parses an already-decompressed BrowseResponse
// payload.
func DecodeBrowseResponse(payload []byte) (BrowseResponse, error) {
	r := NewReader(payload)
	m := BrowseResponse{}
	n := r.Uint32()
	for i := uint32(0); i < n && r.Err == nil; i++ {
		d := Directory{Name: r.String()}
		fn := r.Uint32()
		for j := uint32(0); j < fn && r.Err == nil; j++ {
			d.Files = append(d.Files, decodeFile(r))
		}
		m.Directories = append(m.Directories, d)
	}
	return m, r.Err
}

// FolderContentsRequest asks a peer to list one directory's files.
type FolderContentsRequest struct {
	Token  uint32
	Folder string
}

// Encode serializes a FolderContentsRequest payload.
func (m FolderContentsRequest) Encode() []byte {
	return NewWriter().Uint32(m.Token).String(m.Folder).Payload()
}

// DecodeFolderContentsRequest parses a FolderContentsRequest payload.
func DecodeFolderContentsRequest(payload []byte) (FolderContentsRequest, error) {
	r := NewReader(payload)
	m := FolderContentsRequest{Token: r.Uint32(), Folder: r.String()}
	return m, r.Err
}

// FolderContentsResponse answers a FolderContentsRequest. Wire-compressed.
type FolderContentsResponse struct {
	Token  uint32
	Folder string
	Files  []File
}

// Encode serializes the inner FolderContentsResponse payload.
func (m FolderContentsResponse) Encode() []byte {
	w := NewWriter().Uint32(m.Token).String(m.Folder).Uint32(uint32(len(m.Files)))
	for _, f := range m.Files {
		encodeFile(w, f)
	}
	return w.Payload()
}

// DecodeFolderContentsResponse parses an already-decompressed
// FolderContentsResponse payload.
func DecodeFolderContentsResponse(payload []byte) (FolderContentsResponse, error) {
	r := NewReader(payload)
	m := FolderContentsResponse{Token: r.Uint32(), Folder: r.String()}
	n := r.Uint32()
	for i := uint32(0); i < n && r.Err == nil; i++ {
		m.Files = append(m.Files, decodeFile(r))
	}
	return m, r.Err
}

// PlaceInQueueRequest asks a peer for a queued download's current position.
type PlaceInQueueRequest struct {
	Filename string
}

// Encode serializes a PlaceInQueueRequest payload.
func (m PlaceInQueueRequest) Encode() []byte {
	return NewWriter().String(m.Filename).Payload()
}

// DecodePlaceInQueueRequest parses a PlaceInQueueRequest payload.
func DecodePlaceInQueueRequest(payload []byte) (PlaceInQueueRequest, error) {
	r := NewReader(payload)
	m := PlaceInQueueRequest{Filename: r.String()}
	return m, r.Err
}

// PlaceInQueueResponse answers a PlaceInQueueRequest.
type PlaceInQueueResponse struct {
	Filename string
	Place    uint32
}

// Encode serializes a PlaceInQueueResponse payload.
func (m PlaceInQueueResponse) Encode() []byte {
	return NewWriter().String(m.Filename).Uint32(m.Place).Payload()
}

// DecodePlaceInQueueResponse parses a PlaceInQueueResponse payload.
func DecodePlaceInQueueResponse(payload []byte) (PlaceInQueueResponse, error) {
	r := NewReader(payload)
	m := PlaceInQueueResponse{Filename: r.String(), Place: r.Uint32()}
	return m, r.Err
}
