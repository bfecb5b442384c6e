package soulseek

import (
	"context"

	"go.uber.org/zap"

	"github.com/jpdillingham/Soulseek.NET-sub005/internal/frame"
	"github.com/jpdillingham/Soulseek.NET-sub005/internal/messages"
	"github.com/jpdillingham/Soulseek.NET-sub005/internal/peermgr"
	"github.com/jpdillingham/Soulseek.NET-sub005/internal/search"
	"github.com/jpdillingham/Soulseek.NET-sub005/internal/wait"
)

// onPeerMessageConnection starts the read loop for a newly established
// peer-message connection, whether dialed by us (peermgr.Manager.
// OnMessageConnection fires from GetOrAddMessageConnection) or adopted from
// an inbound peer_init (fires from HandleIncoming). One goroutine per
// connection, matching the per-socket linearizable-reads invariant (spec
// §4.4/§4.5).
func (c *Client) onPeerMessageConnection(conn *peermgr.Connection) {
	go c.peerReadLoop(conn)
}

func (c *Client) peerReadLoop(conn *peermgr.Connection) {
	for {
		code, payload, err := conn.ReadMessage()
		if err != nil {
			return
		}
		c.dispatchPeerMessage(conn, messages.PeerCode(code), payload)
	}
}

func (c *Client) dispatchPeerMessage(conn *peermgr.Connection, code messages.PeerCode, payload []byte) {
	switch code {
	case messages.PeerTransferResponse:
		c.handleTransferResponse(payload)
	case messages.PeerTransferRequest:
		c.handleTransferRequest(conn, payload)
	case messages.PeerFileSearchResult:
		c.handleSearchResult(payload)
	case messages.PeerUserInfoRequest:
		c.handleUserInfoRequest(conn)
	case messages.PeerGetSharedFileList:
		c.handleBrowseRequest(conn)
	case messages.PeerSharedFileList:
		c.handleBrowseResponse(conn, payload)
	case messages.PeerFolderContentsRequest:
		c.handleFolderContentsRequest(conn, payload)
	case messages.PeerFolderContentsReply:
		c.handleFolderContentsResponse(conn, payload)
	case messages.PeerPlaceInQueueRequest:
		c.handlePlaceInQueueRequest(conn, payload)
	case messages.PeerPlaceInQueueResponse:
		c.handlePlaceInQueueResponse(conn, payload)
	case messages.PeerUploadDenied, messages.PeerUploadFailed:
		c.log.Infof("upload failed/denied by peer", zap.String("peer", conn.Username))
	default:
		c.log.Debugf("unhandled peer message", zap.Uint32("code", uint32(code)))
	}
}

func (c *Client) handleTransferResponse(payload []byte) {
	m, err := messages.DecodeTransferResponse(payload)
	if err != nil {
		c.log.Warnf("decode transfer response failed")
		return
	}
	c.w.Complete(wait.NewKey(int(messages.PeerTransferResponse)).WithInt(int(m.Token)), m)
}

// handleTransferRequest routes an inbound TransferRequest by direction: an
// upload-direction request is the follow-up "ready to send" frame for a
// download we queued earlier (spec §4.7.1); a download-direction request is
// a peer asking to download a file from us (spec §4.7.2).
func (c *Client) handleTransferRequest(conn *peermgr.Connection, payload []byte) {
	m, err := messages.DecodeTransferRequest(payload)
	if err != nil {
		c.log.Warnf("decode transfer request failed")
		return
	}
	if m.Direction == messages.TransferDirectionUpload {
		key := wait.NewKey(int(messages.PeerTransferRequest)).WithStr1(conn.Username).WithInt(int(m.Token))
		c.w.Complete(key, m)
		return
	}
	c.handleUploadRequest(conn, m)
}

// handleUploadRequest answers a peer's request to download a file from us.
// The decision to accept belongs to the embedder (spec §6
// "enqueue_download_resolver"); acceptance replies "Queued." rather than
// Allowed, since the actual transfer only starts once the embedder calls
// Client.Upload with the file's content (spec §4.7.2).
func (c *Client) handleUploadRequest(conn *peermgr.Connection, req messages.TransferRequest) {
	resolve := c.cfg.Resolvers.EnqueueDownload
	if resolve == nil {
		c.replyTransferDenied(conn, req.Token, "Rejected")
		return
	}
	if err := resolve(conn.Username, req.Filename); err != nil {
		c.replyTransferDenied(conn, req.Token, err.Error())
		return
	}
	c.replyTransferDenied(conn, req.Token, "Queued.")
	c.events.Publish(Event{Kind: EventUploadRequested, PeerName: conn.Username, RequestedFilename: req.Filename})
}

func (c *Client) replyTransferDenied(conn *peermgr.Connection, token uint32, message string) {
	resp := messages.TransferResponse{Token: token, Allowed: false, Message: message}
	if err := conn.WriteMessage(uint32(messages.PeerTransferResponse), resp.Encode()); err != nil {
		c.log.Warnf("write transfer response failed")
	}
}

func (c *Client) handleSearchResult(payload []byte) {
	inflated, err := frame.Decompress(payload)
	if err != nil {
		c.log.Warnf("decompress search result failed")
		return
	}
	m, err := messages.DecodeSearchResponse(inflated)
	if err != nil {
		c.log.Warnf("decode search result failed")
		return
	}
	files := make([]search.File, len(m.Files))
	for i, f := range m.Files {
		files[i] = search.File{Filename: f.Filename, Size: f.Size, Extension: f.Extension, Attributes: f.Attributes}
	}
	c.searches.HandleResponse(m.Token, search.Result{
		Username:     m.Username,
		Token:        m.Token,
		Files:        files,
		FreeSlots:    m.FreeSlots,
		AverageSpeed: m.AverageSpeed,
		QueueLength:  m.QueueLength,
	})
}

func (c *Client) handleUserInfoRequest(conn *peermgr.Connection) {
	resolve := c.cfg.Resolvers.UserInfo
	if resolve == nil {
		return
	}
	info, err := resolve(conn.Username)
	if err != nil || info == nil {
		return
	}
	resp := messages.UserInfoResponse{
		Description:  info.Description,
		Picture:      info.Picture,
		TotalUploads: uint32(info.UploadSlots),
		QueueSize:    uint32(info.QueueLength),
		SlotsFree:    info.HasFreeSlot,
	}
	if err := conn.WriteMessage(uint32(messages.PeerUserInfoReply), resp.Encode()); err != nil {
		c.log.Warnf("write user info reply failed")
	}
}

func (c *Client) handleBrowseRequest(conn *peermgr.Connection) {
	resolve := c.cfg.Resolvers.BrowseResponse
	if resolve == nil {
		return
	}
	result, err := resolve(conn.Username)
	if err != nil || result == nil {
		return
	}
	dirs := make([]messages.Directory, len(result.Directories))
	for i, d := range result.Directories {
		dirs[i] = messages.Directory{Name: d.Name, Files: toWireFiles(d.Files)}
	}
	body := messages.BrowseResponse{Directories: dirs}.Encode()
	compressed, err := frame.Compress(body)
	if err != nil {
		c.log.Warnf("compress browse response failed")
		return
	}
	if err := conn.WriteMessage(uint32(messages.PeerSharedFileList), compressed); err != nil {
		c.log.Warnf("write browse response failed")
	}
}

func (c *Client) handleFolderContentsRequest(conn *peermgr.Connection, payload []byte) {
	req, err := messages.DecodeFolderContentsRequest(payload)
	if err != nil {
		c.log.Warnf("decode folder contents request failed")
		return
	}
	resolve := c.cfg.Resolvers.DirectoryContents
	if resolve == nil {
		return
	}
	result, err := resolve(conn.Username, req.Folder)
	if err != nil || result == nil {
		return
	}
	body := messages.FolderContentsResponse{Token: req.Token, Folder: result.Name, Files: toWireFiles(result.Files)}.Encode()
	compressed, err := frame.Compress(body)
	if err != nil {
		c.log.Warnf("compress folder contents response failed")
		return
	}
	if err := conn.WriteMessage(uint32(messages.PeerFolderContentsReply), compressed); err != nil {
		c.log.Warnf("write folder contents response failed")
	}
}

func (c *Client) handlePlaceInQueueRequest(conn *peermgr.Connection, payload []byte) {
	req, err := messages.DecodePlaceInQueueRequest(payload)
	if err != nil {
		c.log.Warnf("decode place in queue request failed")
		return
	}
	resolve := c.cfg.Resolvers.PlaceInQueue
	if resolve == nil {
		return
	}
	place, err := resolve(conn.Username, req.Filename)
	if err != nil {
		return
	}
	resp := messages.PlaceInQueueResponse{Filename: req.Filename, Place: uint32(place)}
	if err := conn.WriteMessage(uint32(messages.PeerPlaceInQueueResponse), resp.Encode()); err != nil {
		c.log.Warnf("write place in queue response failed")
	}
}

func (c *Client) handleBrowseResponse(conn *peermgr.Connection, payload []byte) {
	inflated, err := frame.Decompress(payload)
	if err != nil {
		c.log.Warnf("decompress browse response failed")
		return
	}
	m, err := messages.DecodeBrowseResponse(inflated)
	if err != nil {
		c.log.Warnf("decode browse response failed")
		return
	}
	c.w.Complete(wait.NewKey(int(messages.PeerSharedFileList)).WithStr1(conn.Username), m)
}

func (c *Client) handleFolderContentsResponse(conn *peermgr.Connection, payload []byte) {
	inflated, err := frame.Decompress(payload)
	if err != nil {
		c.log.Warnf("decompress folder contents response failed")
		return
	}
	m, err := messages.DecodeFolderContentsResponse(inflated)
	if err != nil {
		c.log.Warnf("decode folder contents response failed")
		return
	}
	key := wait.NewKey(int(messages.PeerFolderContentsReply)).WithStr1(conn.Username).WithInt(int(m.Token))
	c.w.Complete(key, m)
}

func (c *Client) handlePlaceInQueueResponse(conn *peermgr.Connection, payload []byte) {
	m, err := messages.DecodePlaceInQueueResponse(payload)
	if err != nil {
		c.log.Warnf("decode place in queue response failed")
		return
	}
	key := wait.NewKey(int(messages.PeerPlaceInQueueResponse)).WithStr1(conn.Username).WithStr2(m.Filename)
	c.w.Complete(key, m)
}

// FolderContents asks username for the contents of a single shared
// directory (spec §4.9).
func (c *Client) FolderContents(ctx context.Context, username, folder string) (*DirectoryResult, error) {
	conn, err := c.dialPeerMessageConnection(ctx, username)
	if err != nil {
		return nil, err
	}
	token := c.tokens.Next()
	key := wait.NewKey(int(messages.PeerFolderContentsReply)).WithStr1(username).WithInt(int(token))
	fut := c.w.Register(key)
	req := messages.FolderContentsRequest{Token: token, Folder: folder}
	if err := conn.WriteMessage(uint32(messages.PeerFolderContentsRequest), req.Encode()); err != nil {
		c.w.Cancel(key)
		return nil, err
	}
	respAny, err := fut.Await(ctx)
	if err != nil {
		return nil, err
	}
	resp := respAny.(messages.FolderContentsResponse)
	return &DirectoryResult{Name: resp.Folder, Files: fromWireFiles(resp.Files)}, nil
}

// PlaceInQueue asks username for a queued download's current queue
// position (spec §4.9).
func (c *Client) PlaceInQueue(ctx context.Context, username, filename string) (int, error) {
	conn, err := c.dialPeerMessageConnection(ctx, username)
	if err != nil {
		return 0, err
	}
	key := wait.NewKey(int(messages.PeerPlaceInQueueResponse)).WithStr1(username).WithStr2(filename)
	fut := c.w.Register(key)
	req := messages.PlaceInQueueRequest{Filename: filename}
	if err := conn.WriteMessage(uint32(messages.PeerPlaceInQueueRequest), req.Encode()); err != nil {
		c.w.Cancel(key)
		return 0, err
	}
	respAny, err := fut.Await(ctx)
	if err != nil {
		return 0, err
	}
	return int(respAny.(messages.PlaceInQueueResponse).Place), nil
}

// Browse fetches username's full shared-directory listing (spec §4.9).
func (c *Client) Browse(ctx context.Context, username string) (*BrowseResult, error) {
	return c.browsePeer(ctx, username)
}

// onDistributedSearchRequest answers a search forwarded down the
// distributed tree on our own behalf, in addition to the automatic
// fan-out to our children (spec §4.6/§4.8).
func (c *Client) onDistributedSearchRequest(req messages.DistributedSearchRequestMsg) {
	resolve := c.cfg.Resolvers.SearchResponse
	if resolve == nil {
		return
	}
	result, err := resolve(req.Text, req.Token, req.Username)
	if err != nil || result == nil || len(result.Files) == 0 {
		return
	}
	go c.sendSearchResponse(req.Username, req.Token, *result)
}

func (c *Client) sendSearchResponse(username string, token uint32, result SearchResult) {
	conn, err := c.dialPeerMessageConnection(context.Background(), username)
	if err != nil {
		c.log.Warnf("dial peer for search response failed")
		return
	}
	body := messages.SearchResponse{
		Username:     c.cfg.Username,
		Token:        token,
		Files:        toWireFiles(result.Files),
		FreeSlots:    result.FreeSlots,
		AverageSpeed: result.AverageSpeed,
		QueueLength:  result.QueueLength,
	}.Encode()
	compressed, err := frame.Compress(body)
	if err != nil {
		c.log.Warnf("compress search response failed")
		return
	}
	if err := conn.WriteMessage(uint32(messages.PeerFileSearchResult), compressed); err != nil {
		c.log.Warnf("write search response failed")
	}
}

func toWireFiles(files []SearchResultFile) []messages.File {
	out := make([]messages.File, len(files))
	for i, f := range files {
		out[i] = messages.File{Filename: f.Filename, Size: f.Size, Extension: f.Extension, Attributes: f.Attributes}
	}
	return out
}

// browsePeer fetches username's full shared-directory listing by dialing a
// peer-message connection and issuing PeerGetSharedFileList (spec §4.9
// "Browse").
func (c *Client) browsePeer(ctx context.Context, username string) (*BrowseResult, error) {
	conn, err := c.dialPeerMessageConnection(ctx, username)
	if err != nil {
		return nil, err
	}
	key := wait.NewKey(int(messages.PeerSharedFileList)).WithStr1(username)
	fut := c.w.Register(key)
	if err := conn.WriteMessage(uint32(messages.PeerGetSharedFileList), nil); err != nil {
		c.w.Cancel(key)
		return nil, err
	}
	respAny, err := fut.Await(ctx)
	if err != nil {
		return nil, err
	}
	resp := respAny.(messages.BrowseResponse)
	dirs := make([]BrowseDirectory, len(resp.Directories))
	for i, d := range resp.Directories {
		dirs[i] = BrowseDirectory{Name: d.Name, Files: fromWireFiles(d.Files)}
	}
	return &BrowseResult{Directories: dirs}, nil
}

func fromWireFiles(files []messages.File) []SearchResultFile {
	out := make([]SearchResultFile, len(files))
	for i, f := range files {
		out[i] = SearchResultFile{Filename: f.Filename, Size: f.Size, Extension: f.Extension, Attributes: f.Attributes}
	}
	return out
}
