package transfer

import (
	"context"
	"encoding/binary"
	"fmt"
	"io"
	"time"

	"github.com/jpdillingham/Soulseek.NET-sub005/internal/messages"
	"github.com/jpdillingham/Soulseek.NET-sub005/internal/wait"
)

// UploadOptions configures a single upload.
type UploadOptions struct {
	Governor        Governor
	MaximumLingerTime time.Duration
}

// Source supplies the bytes to upload, e.g. a local file handle opened at
// the negotiated offset (spec §1 "disk I/O helpers... out of scope").
type Source io.Reader

// Upload drives a single upload to completion (spec §4.7.2). conn is the
// peer-message connection to username.
func (e *Engine) Upload(ctx context.Context, conn PeerMessenger, username, filename string, token uint32, size uint64, source io.Reader, opts UploadOptions) (*Transfer, error) {
	t := newTransfer(Upload, username, filename, token, size)
	if err := e.uploads.insert(t); err != nil {
		return nil, err
	}
	defer e.uploads.remove(t)

	e.transition(t, Queued)

	h, err := e.uploadAdmission.Acquire(ctx, username, filename)
	if err != nil {
		e.transition(t, Completed|Cancelled)
		return t, fmt.Errorf("transfer: acquire upload admission: %w", err)
	}
	releaseSoon := true
	defer func() {
		if releaseSoon {
			h.Release()
		}
	}()

	e.transition(t, Initializing)

	respKey := wait.NewKey(int(messages.PeerTransferResponse)).WithInt(int(token))
	respFut := e.w.Register(respKey)

	req := messages.TransferRequest{Direction: messages.TransferDirectionUpload, Token: token, Filename: filename, Size: size}
	if err := conn.WriteMessage(uint32(messages.PeerTransferRequest), req.Encode()); err != nil {
		e.w.Cancel(respKey)
		e.transition(t, Completed|Errored)
		return t, fmt.Errorf("transfer: write upload request: %w", err)
	}

	respAny, err := respFut.Await(ctx)
	if err != nil {
		e.sendUploadFailed(conn, token, "Cancelled")
		e.transition(t, Completed|TimedOut)
		return t, fmt.Errorf("transfer: await transfer response: %w", err)
	}
	resp := respAny.(messages.TransferResponse)
	if !resp.Allowed {
		e.transition(t, Completed|Rejected)
		return t, fmt.Errorf("transfer: upload rejected: %s", resp.Message)
	}

	xfer, err := e.resolver.GetTransferConnection(ctx, username, token)
	if err != nil {
		e.sendUploadFailed(conn, token, "Cancelled")
		e.transition(t, Completed|Errored)
		return t, fmt.Errorf("transfer: establish transfer connection: %w", err)
	}

	offsetBuf := make([]byte, 8)
	if _, err := io.ReadFull(xfer.Conn(), offsetBuf); err != nil {
		e.transition(t, Completed|Errored)
		return t, fmt.Errorf("transfer: read start offset: %w", err)
	}
	t.StartOffset = binary.LittleEndian.Uint64(offsetBuf)

	e.transition(t, InProgress)
	remaining := t.Size - t.StartOffset
	if err := e.writeGoverned(ctx, xfer.Conn(), source, t, remaining, opts.Governor); err != nil {
		e.sendUploadFailed(conn, token, "Cancelled")
		if ctx.Err() != nil {
			e.transition(t, Completed|Cancelled)
		} else {
			e.transition(t, Completed|Errored)
		}
		return t, err
	}

	e.lingerForPoliteDisconnect(xfer.Conn(), opts.MaximumLingerTime)

	e.transition(t, Completed|Succeeded)
	releaseSoon = false
	h.Release()
	return t, nil
}

func (e *Engine) writeGoverned(ctx context.Context, w io.Writer, source io.Reader, t *Transfer, remaining uint64, gov Governor) error {
	const chunkSize = 16 * 1024
	buf := make([]byte, chunkSize)
	for remaining > 0 {
		n := chunkSize
		if uint64(n) > remaining {
			n = int(remaining)
		}
		read, rerr := io.ReadFull(source, buf[:n])
		if read > 0 {
			if _, werr := w.Write(buf[:read]); werr != nil {
				return fmt.Errorf("transfer: write chunk: %w", werr)
			}
			t.addBytes(uint64(read))
			if e.onProgress != nil {
				e.onProgress(Progress{Transfer: t, BytesTransferred: t.BytesTransferred()})
			}
			remaining -= uint64(read)
		}
		if rerr != nil {
			return fmt.Errorf("transfer: read from source: %w", rerr)
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

// lingerForPoliteDisconnect gives the peer a chance to close the socket on
// its own after the final byte; if it doesn't within d, the caller's
// eventual Close handles teardown (spec §4.7.2 step 5).
func (e *Engine) lingerForPoliteDisconnect(conn io.Reader, d time.Duration) {
	if d <= 0 {
		return
	}
	done := make(chan struct{})
	go func() {
		defer close(done)
		var b [1]byte
		_, _ = conn.Read(b[:])
	}()
	select {
	case <-done:
	case <-time.After(d):
	}
}

func (e *Engine) sendUploadFailed(conn PeerMessenger, token uint32, reason string) {
	m := messages.UploadDeniedNotification{Filename: "", Message: reason}
	if err := conn.WriteMessage(uint32(messages.PeerUploadDenied), m.Encode()); err != nil {
		e.log.Warnf("best-effort upload-denied notification failed")
	}
}
