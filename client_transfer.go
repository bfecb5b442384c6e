package soulseek

import (
	"context"
	"fmt"
	"io"

	"github.com/jpdillingham/Soulseek.NET-sub005/internal/endpoint"
	"github.com/jpdillingham/Soulseek.NET-sub005/internal/messages"
	"github.com/jpdillingham/Soulseek.NET-sub005/internal/peermgr"
	"github.com/jpdillingham/Soulseek.NET-sub005/internal/transfer"
)

// connectionResolver adapts peermgr.Manager's endpoint-aware transfer
// connection methods to the simpler (ctx, username, token) shape
// transfer.ConnectionResolver expects, looking the endpoint up from the
// Client's cache at call time.
type connectionResolver struct {
	peers *peermgr.Manager
	cache EndpointCache
}

func (r *connectionResolver) GetTransferConnection(ctx context.Context, username string, remoteToken uint32) (*peermgr.Connection, error) {
	ep, ok := r.cache.TryGet(username)
	if !ok {
		return nil, fmt.Errorf("client: no cached endpoint for %q", username)
	}
	return r.peers.GetTransferConnection(ctx, username, ep, remoteToken)
}

func (r *connectionResolver) AwaitTransferConnection(ctx context.Context, username string, remoteToken uint32) (*peermgr.Connection, error) {
	return r.peers.AwaitTransferConnection(ctx, username, remoteToken)
}

func (c *Client) onTransferStateChange(sc transfer.StateChange) {
	pub := c.mirrorTransfer(sc.Transfer)
	pub.setState(mapTransferState(sc.New))
	c.events.Publish(Event{Kind: EventTransferStateChanged, Transfer: pub})
}

func (c *Client) onTransferProgress(p transfer.Progress) {
	pub := c.mirrorTransfer(p.Transfer)
	c.events.Publish(Event{Kind: EventTransferProgressUpdated, Transfer: pub})
}

// mirrorTransfer returns (creating if necessary) the public Transfer facade
// value that shadows an internal engine Transfer, keyed by token (spec §3:
// internal/transfer.Transfer is distinct from the public type; this is the
// bridging point documented on that type).
func (c *Client) mirrorTransfer(t *transfer.Transfer) *Transfer {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.transferMirror == nil {
		c.transferMirror = make(map[uint32]*Transfer)
	}
	pub, ok := c.transferMirror[t.Token]
	if !ok {
		pub = newTransfer(mapDirection(t.Direction), t.Username, t.Filename, t.Token, t.Size)
		c.transferMirror[t.Token] = pub
	}
	pub.StartOffset = t.StartOffset
	pub.addBytes(t.BytesTransferred() - pub.BytesTransferred())
	return pub
}

func mapDirection(d transfer.Direction) TransferDirection {
	if d == transfer.Upload {
		return Upload
	}
	return Download
}

func mapTransferState(s transfer.State) TransferState {
	var out TransferState
	add := func(bit transfer.State, pub TransferState) {
		if s.Has(bit) {
			out |= pub
		}
	}
	add(transfer.Requested, TransferRequested)
	add(transfer.Queued, TransferQueued)
	add(transfer.Initializing, TransferInitializing)
	add(transfer.InProgress, TransferInProgress)
	add(transfer.Completed, TransferCompleted)
	add(transfer.Succeeded, TransferSucceeded)
	add(transfer.Errored, TransferErrored)
	add(transfer.Cancelled, TransferCancelled)
	add(transfer.TimedOut, TransferTimedOut)
	add(transfer.Rejected, TransferRejected)
	return out
}

// Download requests filename from username and streams it into sink,
// blocking until the transfer reaches a terminal state (spec §4.7.1).
func (c *Client) Download(ctx context.Context, username, filename string, size uint64, sink io.Writer, opts TransferOptions) (*Transfer, error) {
	if !c.State().Has(StateLoggedIn) {
		return nil, NewError("Download", KindInvalidState, fmt.Errorf("not logged in"))
	}

	conn, err := c.dialPeerMessageConnection(ctx, username)
	if err != nil {
		return nil, NewError("Download", KindConnection, err)
	}

	token := c.tokens.Next()
	gov := adaptGovernor(c.effectiveGovernor(opts.Governor))
	internalT, err := c.transfers.Download(ctx, conn, username, filename, token, size, sink, transfer.DownloadOptions{Governor: gov})
	pub := c.mirrorTransfer(internalT)
	if err != nil {
		return pub, NewError("Download", transferErrorKind(internalT), err)
	}
	return pub, nil
}

// Upload pushes filename to username from source, blocking until the
// transfer reaches a terminal state (spec §4.7.2).
func (c *Client) Upload(ctx context.Context, username, filename string, size uint64, source io.Reader, opts TransferOptions) (*Transfer, error) {
	if !c.State().Has(StateLoggedIn) {
		return nil, NewError("Upload", KindInvalidState, fmt.Errorf("not logged in"))
	}

	conn, err := c.dialPeerMessageConnection(ctx, username)
	if err != nil {
		return nil, NewError("Upload", KindConnection, err)
	}

	token := c.tokens.Next()
	gov := adaptGovernor(c.effectiveGovernor(opts.Governor))
	internalT, err := c.transfers.Upload(ctx, conn, username, filename, token, size, source, transfer.UploadOptions{Governor: gov})
	pub := c.mirrorTransfer(internalT)
	if err != nil {
		return pub, NewError("Upload", transferErrorKind(internalT), err)
	}
	return pub, nil
}

func (c *Client) dialPeerMessageConnection(ctx context.Context, username string) (*peermgr.Connection, error) {
	ep, ok := c.cache.TryGet(username)
	if !ok {
		fut, err := c.sess.SendGetPeerAddress(username)
		if err != nil {
			return nil, err
		}
		respAny, err := fut.Await(ctx)
		if err != nil {
			return nil, err
		}
		resp := respAny.(messages.GetPeerAddressResponse)
		ep = endpoint.Endpoint{IP: resp.IP, Port: uint16(resp.Port)}
		if ep.IsOffline() {
			return nil, fmt.Errorf("client: %q is offline", username)
		}
		c.cache.AddOrUpdate(username, ep)
	}
	return c.peers.GetOrAddMessageConnection(ctx, username, ep)
}

// effectiveGovernor returns per-call if set, else the Config-level default.
func (c *Client) effectiveGovernor(perCall Governor) Governor {
	if perCall != nil {
		return perCall
	}
	return c.cfg.Governor
}

func transferErrorKind(t *transfer.Transfer) Kind {
	if t == nil {
		return KindTransferFailed
	}
	s := t.State()
	switch {
	case s.Has(transfer.Rejected):
		return KindTransferRejected
	case s.Has(transfer.TimedOut), s.Has(transfer.Cancelled):
		return KindTransferFailed
	default:
		return KindTransferFailed
	}
}

// adaptGovernor bridges the public Governor signature (ctx as a bare
// Done()-only interface, no transfer argument) to the engine's internal
// Governor (full context.Context plus the transfer), since internal/transfer
// cannot import the root package to share the public signature directly.
func adaptGovernor(g Governor) transfer.Governor {
	if g == nil {
		return nil
	}
	return func(ctx context.Context, _ *transfer.Transfer, bytesInChunk int) error {
		return g(ctx, bytesInChunk)
	}
}
