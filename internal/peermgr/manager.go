// Package peermgr implements the Peer Connection Manager (spec §4.4) and
// the NAT Traversal Handshake it uses to establish connections (spec §4.5).
package peermgr

import (
	"context"
	"fmt"
	"net"
	"sync"
	"time"

	"golang.org/x/sync/semaphore"
	"golang.org/x/sync/singleflight"

	"github.com/jpdillingham/Soulseek.NET-sub005/internal/diag"
	"github.com/jpdillingham/Soulseek.NET-sub005/internal/endpoint"
	"github.com/jpdillingham/Soulseek.NET-sub005/internal/messages"
)

// ErrUserOffline is returned when the endpoint cache resolves a user to
// 0.0.0.0 (spec §4.4 "If a peer appears offline").
var ErrUserOffline = fmt.Errorf("peermgr: user is offline")

// Options bundles peer/distributed/transfer connection tunables (spec §6).
type Options struct {
	ConnectTimeout       time.Duration
	InactivityTimeout    time.Duration
	MaxMessageConnections int64
	LocalUsername        string
}

type transferKey struct {
	username string
	token    uint32
}

// Manager caches peer message connections by username and transfer
// connections by (username, token); it serializes endpoint resolution and
// connection establishment per peer name.
type Manager struct {
	opts     Options
	cache    endpoint.Cache
	log      *diag.Emitter

	mu          sync.Mutex
	messageConn map[string]*Connection
	transferConn map[transferKey]*Connection
	awaiters     map[transferKey][]chan *Connection

	group    singleflight.Group
	globalSem *semaphore.Weighted

	onMessageConn     func(*Connection)
	onDistributedConn func(name string, conn net.Conn)
}

// New builds a Manager. cache resolves usernames to endpoints; errors it
// raises are wrapped by the caller into UserEndPointCacheException-shaped
// errors rather than panicking (spec §6).
func New(opts Options, cache endpoint.Cache, log *diag.Emitter) *Manager {
	max := opts.MaxMessageConnections
	if max <= 0 {
		max = 500
	}
	return &Manager{
		opts:         opts,
		cache:        cache,
		log:          log.With("peermgr"),
		messageConn:  make(map[string]*Connection),
		transferConn: make(map[transferKey]*Connection),
		awaiters:     make(map[transferKey][]chan *Connection),
		globalSem:    semaphore.NewWeighted(max),
	}
}

// OnMessageConnection registers a callback invoked for every peer-message
// connection the Manager creates, whether dialed out by
// GetOrAddMessageConnection or adopted from an inbound peer_init via
// HandleIncoming. The Client facade uses this to start the read loop that
// pumps inbound peer messages (spec §4.4: "one reader goroutine per
// message connection").
func (m *Manager) OnMessageConnection(f func(*Connection)) {
	m.onMessageConn = f
}

// OnDistributedConnection registers a callback invoked for every inbound
// distributed-type connection the Manager adopts via a peer_init on the
// listener (HandleIncoming). Connections dialed in response to a
// ConnectToPeer "D" invitation do not pass through the Manager. The Client
// facade wires this to Overlay.AdoptChild (spec §4.6 "child acceptance").
func (m *Manager) OnDistributedConnection(f func(name string, conn net.Conn)) {
	m.onDistributedConn = f
}

// resolve looks up username's endpoint, failing with ErrUserOffline on the
// 0.0.0.0 sentinel.
func (m *Manager) resolve(username string) (endpoint.Endpoint, error) {
	if ep, ok := m.cache.TryGet(username); ok {
		if ep.IsOffline() {
			return ep, ErrUserOffline
		}
		return ep, nil
	}
	return endpoint.Endpoint{}, fmt.Errorf("peermgr: no cached endpoint for %q", username)
}

// GetOrAddMessageConnection returns a live peer-message connection to name,
// reusing a healthy cached one or establishing a new one. Exactly-once
// establishment per name is enforced via singleflight (spec §4.4).
func (m *Manager) GetOrAddMessageConnection(ctx context.Context, name string, ep endpoint.Endpoint) (*Connection, error) {
	m.mu.Lock()
	if c, ok := m.messageConn[name]; ok && !c.Closed() {
		m.mu.Unlock()
		return c, nil
	}
	m.mu.Unlock()

	v, err, _ := m.group.Do("msg:"+name, func() (any, error) {
		m.mu.Lock()
		if c, ok := m.messageConn[name]; ok && !c.Closed() {
			m.mu.Unlock()
			return c, nil
		}
		m.mu.Unlock()

		if err := m.globalSem.Acquire(ctx, 1); err != nil {
			return nil, fmt.Errorf("peermgr: acquire connection slot: %w", err)
		}

		c, err := m.dialMessageConnection(ctx, name, ep)
		if err != nil {
			m.globalSem.Release(1)
			return nil, err
		}

		m.mu.Lock()
		m.messageConn[name] = c
		m.mu.Unlock()
		return c, nil
	})
	if err != nil {
		return nil, err
	}
	return v.(*Connection), nil
}

func (m *Manager) dialMessageConnection(ctx context.Context, name string, ep endpoint.Endpoint) (*Connection, error) {
	d := net.Dialer{Timeout: m.opts.ConnectTimeout}
	conn, err := d.DialContext(ctx, "tcp", ep.String())
	if err != nil {
		return nil, fmt.Errorf("peermgr: dial %s: %w", name, err)
	}
	if err := sendPeerInit(conn, m.opts.LocalUsername, messages.ConnectionTypePeer, 0); err != nil {
		conn.Close()
		return nil, fmt.Errorf("peermgr: peer_init to %s: %w", name, err)
	}
	c := newConnection(name, KindMessage, conn)
	c.SetCloseHook(func() { m.globalSem.Release(1) })
	if m.onMessageConn != nil {
		m.onMessageConn(c)
	}
	return c, nil
}

// GetTransferConnection actively establishes a raw transfer connection to
// name's endpoint using remoteToken, per spec §4.4/§4.5 (local initiation,
// "F" type tag plus the remote token).
func (m *Manager) GetTransferConnection(ctx context.Context, name string, ep endpoint.Endpoint, remoteToken uint32) (*Connection, error) {
	d := net.Dialer{Timeout: m.opts.ConnectTimeout}
	conn, err := d.DialContext(ctx, "tcp", ep.String())
	if err != nil {
		return nil, fmt.Errorf("peermgr: dial transfer %s: %w", name, err)
	}
	if err := sendPeerInit(conn, m.opts.LocalUsername, messages.ConnectionTypeFileTransfer, remoteToken); err != nil {
		conn.Close()
		return nil, fmt.Errorf("peermgr: peer_init (F) to %s: %w", name, err)
	}

	c := newConnection(name, KindTransfer, conn)
	key := transferKey{username: name, token: remoteToken}
	m.mu.Lock()
	m.transferConn[key] = c
	m.mu.Unlock()
	return c, nil
}

// AwaitTransferConnection blocks until a remote-initiated transfer
// connection bearing remoteToken arrives via HandleIncoming, per spec §4.4.
func (m *Manager) AwaitTransferConnection(ctx context.Context, name string, remoteToken uint32) (*Connection, error) {
	key := transferKey{username: name, token: remoteToken}

	m.mu.Lock()
	if c, ok := m.transferConn[key]; ok {
		m.mu.Unlock()
		return c, nil
	}
	ch := make(chan *Connection, 1)
	m.awaiters[key] = append(m.awaiters[key], ch)
	m.mu.Unlock()

	select {
	case c := <-ch:
		return c, nil
	case <-ctx.Done():
		m.removeAwaiter(key, ch)
		return nil, ctx.Err()
	}
}

// HasAwaiter reports whether some caller is currently blocked in
// AwaitTransferConnection for (name, remoteToken). The Client uses this to
// avoid dialing a remote-invited "F" connection nobody is waiting for
// (spec §4.5: the invitation only matters once a transfer has registered
// the token it carries).
func (m *Manager) HasAwaiter(name string, remoteToken uint32) bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	_, ok := m.awaiters[transferKey{username: name, token: remoteToken}]
	return ok
}

func (m *Manager) removeAwaiter(key transferKey, ch chan *Connection) {
	m.mu.Lock()
	defer m.mu.Unlock()
	chans := m.awaiters[key]
	for i, c := range chans {
		if c == ch {
			m.awaiters[key] = append(chans[:i:i], chans[i+1:]...)
			if len(m.awaiters[key]) == 0 {
				delete(m.awaiters, key)
			}
			break
		}
	}
}

// HandleIncoming services a freshly accepted listener socket: reads the
// mandatory handshake preamble and routes the connection accordingly (spec
// §4.5 "On inbound listener connections").
func (m *Manager) HandleIncoming(conn net.Conn) error {
	isPeerInit, peerInit, pierce, err := readHandshake(conn)
	if err != nil {
		conn.Close()
		return fmt.Errorf("peermgr: handshake: %w", err)
	}

	if isPeerInit {
		return m.adoptInitiated(conn, peerInit)
	}
	return m.adoptPierced(conn, pierce)
}

func (m *Manager) adoptInitiated(conn net.Conn, init messages.PeerInit) error {
	switch init.ConnectionType {
	case messages.ConnectionTypePeer:
		c := newConnection(init.Username, KindMessage, conn)
		m.mu.Lock()
		m.messageConn[init.Username] = c
		m.mu.Unlock()
		if m.onMessageConn != nil {
			m.onMessageConn(c)
		}
		return nil
	case messages.ConnectionTypeDistributed:
		if m.onDistributedConn == nil {
			conn.Close()
			return fmt.Errorf("peermgr: no distributed connection handler registered")
		}
		m.onDistributedConn(init.Username, conn)
		return nil
	case messages.ConnectionTypeFileTransfer:
		key := transferKey{username: init.Username, token: init.Token}
		c := newConnection(init.Username, KindTransfer, conn)
		m.deliverTransferConnection(key, c)
		return nil
	default:
		conn.Close()
		return fmt.Errorf("peermgr: unknown connection type %q", init.ConnectionType)
	}
}

func (m *Manager) adoptPierced(conn net.Conn, pierce messages.PierceFirewall) error {
	// The remote token alone does not identify the peer's username; the
	// awaiter that requested this pierce-firewall (via ConnectToPeer
	// dispatch) is keyed purely by token until the caller supplies a name.
	c := newConnection("", KindTransfer, conn)
	m.mu.Lock()
	for key := range m.awaiters {
		if key.token == pierce.Token {
			m.mu.Unlock()
			m.deliverTransferConnection(key, c)
			return nil
		}
	}
	m.mu.Unlock()
	conn.Close()
	return fmt.Errorf("peermgr: pierce_firewall for unknown token %d", pierce.Token)
}

func (m *Manager) deliverTransferConnection(key transferKey, c *Connection) {
	m.mu.Lock()
	m.transferConn[key] = c
	chans := m.awaiters[key]
	delete(m.awaiters, key)
	m.mu.Unlock()

	for _, ch := range chans {
		select {
		case ch <- c:
		default:
		}
	}
}

// AdoptTransferConnection registers a transfer connection the caller
// established itself (e.g. by dialing in response to a ConnectToPeer
// notification and writing pierce_firewall) as if it had arrived via
// HandleIncoming, delivering it to any pending AwaitTransferConnection call.
func (m *Manager) AdoptTransferConnection(name string, remoteToken uint32, c *Connection) {
	m.deliverTransferConnection(transferKey{username: name, token: remoteToken}, c)
}

// AdoptMessageConnection registers a peer-message connection the caller
// established itself (e.g. by dialing in response to a ConnectToPeer "P"
// notification and writing pierce_firewall) as if it had arrived via
// HandleIncoming: it is cached under name and handed to the
// OnMessageConnection callback so a reader goroutine starts (spec §4.5
// "proceed as a peer message connection").
func (m *Manager) AdoptMessageConnection(name string, c *Connection) {
	m.mu.Lock()
	m.messageConn[name] = c
	m.mu.Unlock()
	if m.onMessageConn != nil {
		m.onMessageConn(c)
	}
}

// TryInvalidateMessageConnectionCache evicts and closes the cached message
// connection for name, reporting whether one was present.
func (m *Manager) TryInvalidateMessageConnectionCache(name string) bool {
	m.mu.Lock()
	c, ok := m.messageConn[name]
	delete(m.messageConn, name)
	m.mu.Unlock()
	if ok {
		c.Close()
	}
	return ok
}

// RemoveAndDisposeAll closes every cached connection, used on full
// disconnect/reset.
func (m *Manager) RemoveAndDisposeAll() {
	m.mu.Lock()
	msgConns := m.messageConn
	xferConns := m.transferConn
	m.messageConn = make(map[string]*Connection)
	m.transferConn = make(map[transferKey]*Connection)
	m.mu.Unlock()

	for _, c := range msgConns {
		c.Close()
	}
	for _, c := range xferConns {
		c.Close()
	}
}
