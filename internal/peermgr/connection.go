package peermgr

import (
	"net"
	"sync"
	"time"

	"github.com/jpdillingham/Soulseek.NET-sub005/internal/frame"
)

// Kind tags a Connection by purpose (spec §3 "Peer Connection").
type Kind int

// Connection kinds.
const (
	KindMessage Kind = iota
	KindDistributed
	KindTransfer
)

// Connection owns a single TCP stream to a named peer. Writes are
// serialized; reads are expected to be driven by a single owning goroutine
// per spec §5 ("reads and writes are linearizable").
type Connection struct {
	Username string
	Kind     Kind
	conn     net.Conn
	codec    frame.Codec

	writeMu sync.Mutex

	closeOnce sync.Once
	closed    chan struct{}

	lastActivity time.Time
	mu           sync.Mutex

	onClose func()
}

// NewConnection wraps an already-established net.Conn as a Connection of
// the given kind. Exposed so callers that dial or negotiate a transfer
// socket outside the manager (e.g. the transfer engine) can still use the
// shared framing/activity-tracking behavior.
func NewConnection(username string, kind Kind, conn net.Conn) *Connection {
	return newConnection(username, kind, conn)
}

func newConnection(username string, kind Kind, conn net.Conn) *Connection {
	codec := frame.NewServerPeerCodec()
	if kind == KindDistributed {
		codec = frame.NewDistributedCodec()
	}
	return &Connection{
		Username:     username,
		Kind:         kind,
		conn:         conn,
		codec:        codec,
		closed:       make(chan struct{}),
		lastActivity: time.Now(),
	}
}

// Conn exposes the underlying net.Conn, e.g. for raw transfer I/O.
func (c *Connection) Conn() net.Conn { return c.conn }

// WriteMessage frames and writes a single message.
func (c *Connection) WriteMessage(code uint32, payload []byte) error {
	c.writeMu.Lock()
	defer c.writeMu.Unlock()
	c.touch()
	return c.codec.Write(c.conn, code, payload)
}

// ReadMessage reads and unframes a single message. Not safe to call from
// more than one goroutine concurrently.
func (c *Connection) ReadMessage() (uint32, []byte, error) {
	code, payload, err := c.codec.Read(c.conn)
	if err != nil {
		return 0, nil, err
	}
	c.touch()
	return code, payload, nil
}

func (c *Connection) touch() {
	c.mu.Lock()
	c.lastActivity = time.Now()
	c.mu.Unlock()
}

// Idle reports whether the connection has been silent longer than d.
func (c *Connection) Idle(d time.Duration) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return time.Since(c.lastActivity) > d
}

// Close tears down the connection. Safe to call more than once.
func (c *Connection) Close() error {
	var err error
	c.closeOnce.Do(func() {
		close(c.closed)
		err = c.conn.Close()
		if c.onClose != nil {
			c.onClose()
		}
	})
	return err
}

// SetCloseHook registers f to run exactly once, the first time Close is
// called. The peermgr.Manager uses this to release the global
// message-connection slot a dialed connection acquired, regardless of
// which code path eventually disposes of it (spec §4.4: "additional
// attempts block until a slot frees").
func (c *Connection) SetCloseHook(f func()) {
	c.mu.Lock()
	c.onClose = f
	c.mu.Unlock()
}

// Closed reports whether Close has been called.
func (c *Connection) Closed() bool {
	select {
	case <-c.closed:
		return true
	default:
		return false
	}
}
