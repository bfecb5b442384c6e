package transfer

import (
	"context"
	"encoding/binary"
	"fmt"
	"io"
	"strings"
	"time"

	"github.com/jpdillingham/Soulseek.NET-sub005/internal/diag"
	"github.com/jpdillingham/Soulseek.NET-sub005/internal/messages"
	"github.com/jpdillingham/Soulseek.NET-sub005/internal/peermgr"
	"github.com/jpdillingham/Soulseek.NET-sub005/internal/wait"
)

// PeerMessenger is the subset of peermgr.Connection a transfer needs to
// request and negotiate a download over a peer-message connection.
type PeerMessenger interface {
	WriteMessage(code uint32, payload []byte) error
}

// ConnectionResolver dials or awaits the raw transfer socket once a token
// has been negotiated (spec §4.4/§4.5).
type ConnectionResolver interface {
	GetTransferConnection(ctx context.Context, username string, remoteToken uint32) (*peermgr.Connection, error)
	AwaitTransferConnection(ctx context.Context, username string, remoteToken uint32) (*peermgr.Connection, error)
}

// Sink receives the downloaded bytes, e.g. a local file handle. Left as an
// interface because local disk I/O is an external collaborator concern
// (spec §1 "disk I/O helpers for local files").
type Sink io.Writer

// DownloadOptions configures a single download.
type DownloadOptions struct {
	StartOffset uint64
	Governor    Governor
	Timeout     time.Duration
}

// Engine drives the download and upload state machines; it owns the two
// per-direction registries (spec §3 "Ownership & lifetime").
type Engine struct {
	downloads *registry
	uploads   *registry
	resolver  ConnectionResolver
	w         *wait.Waiter
	log       *diag.Emitter

	onState    func(StateChange)
	onProgress func(Progress)

	uploadAdmission *admission
}

// NewEngine builds an Engine. onState/onProgress may be nil to drop events.
func NewEngine(resolver ConnectionResolver, w *wait.Waiter, admission *admission, log *diag.Emitter, onState func(StateChange), onProgress func(Progress)) *Engine {
	downloads, uploads := newRegistryPair()
	return &Engine{
		downloads:       downloads,
		uploads:         uploads,
		resolver:        resolver,
		w:               w,
		log:             log.With("transfer"),
		onState:         onState,
		onProgress:      onProgress,
		uploadAdmission: admission,
	}
}

func (e *Engine) publishState(t *Transfer, prev, next State) {
	if e.onState != nil {
		e.onState(StateChange{Transfer: t, Previous: prev, New: next})
	}
}

func (e *Engine) transition(t *Transfer, next State) {
	prev := t.setState(next)
	e.publishState(t, prev, next)
}

// Download drives a single download to completion (spec §4.7.1). conn is
// the peer-message connection to username, already established by the
// caller via the peer connection manager.
func (e *Engine) Download(ctx context.Context, conn PeerMessenger, username, filename string, token uint32, size uint64, sink io.Writer, opts DownloadOptions) (*Transfer, error) {
	t := newTransfer(Download, username, filename, token, size)
	t.StartOffset = opts.StartOffset
	if err := e.downloads.insert(t); err != nil {
		return nil, err
	}
	defer e.downloads.remove(t)

	immediateKey := wait.NewKey(int(messages.PeerTransferResponse)).WithInt(int(token))
	immediateFut := e.w.Register(immediateKey)

	readyKey := wait.NewKey(int(messages.PeerTransferRequest)).WithStr1(username).WithInt(int(token))
	readyFut := e.w.Register(readyKey)

	req := messages.TransferRequest{Direction: messages.TransferDirectionDownload, Token: token, Filename: filename}
	if err := conn.WriteMessage(uint32(messages.PeerTransferRequest), req.Encode()); err != nil {
		e.w.Cancel(immediateKey)
		e.w.Cancel(readyKey)
		e.transition(t, Completed|Errored)
		return t, fmt.Errorf("transfer: write download request: %w", err)
	}

	respCtx := ctx
	if opts.Timeout > 0 {
		var cancel context.CancelFunc
		respCtx, cancel = context.WithTimeout(ctx, opts.Timeout)
		defer cancel()
	}

	respAny, err := immediateFut.Await(respCtx)
	if err != nil {
		e.w.Cancel(readyKey)
		e.transition(t, Completed|TimedOut)
		return t, fmt.Errorf("transfer: await transfer response: %w", err)
	}
	resp := respAny.(messages.TransferResponse)

	var remoteToken uint32
	if resp.Allowed {
		e.transition(t, Queued)
		e.transition(t, Initializing)
		remoteToken = token
		if resp.Size > 0 {
			t.Size = resp.Size
		}
		e.w.Cancel(readyKey)
	} else if strings.EqualFold(strings.TrimSpace(resp.Message), "queued.") || strings.EqualFold(strings.TrimSpace(resp.Message), "queued") {
		e.transition(t, Queued)

		readyAny, err := readyFut.Await(ctx)
		if err != nil {
			e.transition(t, Completed|Cancelled)
			return t, fmt.Errorf("transfer: await ready-to-send: %w", err)
		}
		ready := readyAny.(messages.TransferRequest)
		remoteToken = ready.Token
		t.RemoteToken = remoteToken
		t.Size = ready.Size

		ack := messages.TransferResponse{Token: remoteToken, Allowed: true, Size: t.Size}
		if err := conn.WriteMessage(uint32(messages.PeerTransferResponse), ack.Encode()); err != nil {
			e.transition(t, Completed|Errored)
			return t, fmt.Errorf("transfer: write ready ack: %w", err)
		}
		e.transition(t, Initializing)
	} else {
		e.w.Cancel(readyKey)
		e.transition(t, Completed|Rejected)
		return t, fmt.Errorf("transfer: download rejected: %s", resp.Message)
	}

	xfer, err := e.resolver.AwaitTransferConnection(ctx, username, remoteToken)
	if err != nil {
		xfer, err = e.resolver.GetTransferConnection(ctx, username, remoteToken)
		if err != nil {
			e.transition(t, Completed|Errored)
			return t, fmt.Errorf("transfer: establish transfer connection: %w", err)
		}
	}

	offsetBuf := make([]byte, 8)
	binary.LittleEndian.PutUint64(offsetBuf, t.StartOffset)
	if _, err := xfer.Conn().Write(offsetBuf); err != nil {
		e.transition(t, Completed|Errored)
		return t, fmt.Errorf("transfer: write start offset: %w", err)
	}

	e.transition(t, InProgress)
	remaining := t.Size - t.StartOffset
	if err := e.readGoverned(ctx, xfer, sink, t, remaining, opts.Governor); err != nil {
		if ctx.Err() != nil {
			e.transition(t, Completed|Cancelled)
		} else {
			e.transition(t, Completed|Errored)
		}
		return t, err
	}

	e.transition(t, Completed|Succeeded)
	return t, nil
}

func (e *Engine) readGoverned(ctx context.Context, xfer *peermgr.Connection, sink io.Writer, t *Transfer, remaining uint64, gov Governor) error {
	const chunkSize = 16 * 1024
	buf := make([]byte, chunkSize)
	for remaining > 0 {
		n := chunkSize
		if uint64(n) > remaining {
			n = int(remaining)
		}
		read, err := io.ReadFull(xfer.Conn(), buf[:n])
		if read > 0 {
			if _, werr := sink.Write(buf[:read]); werr != nil {
				return fmt.Errorf("transfer: write to sink: %w", werr)
			}
			t.addBytes(uint64(read))
			if e.onProgress != nil {
				e.onProgress(Progress{Transfer: t, BytesTransferred: t.BytesTransferred()})
			}
			remaining -= uint64(read)
		}
		if err != nil {
			return fmt.Errorf("transfer: read chunk: %w", err)
		}
		if gov != nil {
			if err := gov(ctx, t, read); err != nil {
				return fmt.Errorf("transfer: governor: %w", err)
			}
		}
		select {
		case <-ctx.Done():
			return ctx.Err()
		default:
		}
	}
	return nil
}

// CancelAll transitions every in-flight transfer in both registries to
// Cancelled and drains the registries (spec §8 scenario 6).
func (e *Engine) CancelAll() {
	for _, t := range e.downloads.all() {
		e.transition(t, Completed|Cancelled)
		e.downloads.remove(t)
	}
	for _, t := range e.uploads.all() {
		e.transition(t, Completed|Cancelled)
		e.uploads.remove(t)
	}
}
