// Package soulseek implements a client for the Soulseek peer-to-peer
// file-sharing network: server session management, peer connection
// handling, distributed search forwarding, and transfer negotiation.
package soulseek

import (
	"context"
	"fmt"
	"net"
	"sync"

	"github.com/jpdillingham/Soulseek.NET-sub005/internal/diag"
	"github.com/jpdillingham/Soulseek.NET-sub005/internal/distributed"
	"github.com/jpdillingham/Soulseek.NET-sub005/internal/endpoint"
	"github.com/jpdillingham/Soulseek.NET-sub005/internal/messages"
	"github.com/jpdillingham/Soulseek.NET-sub005/internal/peermgr"
	"github.com/jpdillingham/Soulseek.NET-sub005/internal/search"
	"github.com/jpdillingham/Soulseek.NET-sub005/internal/session"
	"github.com/jpdillingham/Soulseek.NET-sub005/internal/transfer"
	"github.com/jpdillingham/Soulseek.NET-sub005/internal/wait"
)

// Client is the top-level Soulseek network client (spec §2 "Client"). It
// owns the server session, the peer connection manager, the distributed
// overlay, the transfer engine, and the search coordinator, and fans every
// observable condition out through a single Event stream.
type Client struct {
	cfg Config

	mu    sync.Mutex
	state State

	log   *diag.Emitter
	w     *wait.Waiter
	cache EndpointCache

	tokens *TokenGenerator
	events *Broadcaster

	sess      *session.Session
	peers     *peermgr.Manager
	overlay   *distributed.Overlay
	transfers *transfer.Engine
	searches  *search.Coordinator

	listener net.Listener

	runCancel context.CancelFunc

	transferMirror map[uint32]*Transfer
}

// New builds a disconnected Client from cfg. Call Connect to start a
// session.
func New(cfg Config) *Client {
	cfg = cfg.withDefaults()

	c := &Client{cfg: cfg, events: NewBroadcaster(), tokens: NewTokenGenerator(cfg.StartingToken)}

	c.log = diag.New(cfg.Logger, diagLevel(cfg.MinimumDiagnosticLevel), c.onDiagnostic)

	if cfg.EndpointCache != nil {
		c.cache = cfg.EndpointCache
	} else {
		lru, err := endpoint.NewLRU(endpoint.DefaultCapacity)
		if err != nil {
			// NewLRU replaces a non-positive capacity with DefaultCapacity,
			// so it does not fail here; the error is not turned into a
			// panic in a constructor.
			lru = nil
		}
		c.cache = lru
	}

	c.w = wait.New()
	return c
}

func diagLevel(l DiagnosticLevel) diag.Level {
	switch l {
	case DiagnosticDebug:
		return diag.Debug
	case DiagnosticWarning:
		return diag.Warning
	case DiagnosticError:
		return diag.Error
	default:
		return diag.Info
	}
}

func (c *Client) onDiagnostic(ev diag.Event) {
	c.events.Publish(Event{
		Kind:              EventDiagnosticGenerated,
		DiagnosticLevel:   DiagnosticLevel(ev.Level),
		DiagnosticSource:  ev.Source,
		DiagnosticMessage: ev.Message,
	})
}

// State returns the client's current lifecycle state.
func (c *Client) State() State {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.state
}

// Subscribe registers h to receive every future Event.
func (c *Client) Subscribe(h Handler) int { return c.events.Subscribe(h) }

// Unsubscribe removes a previously registered handler.
func (c *Client) Unsubscribe(id int) { c.events.Unsubscribe(id) }

func (c *Client) setState(next State) {
	c.mu.Lock()
	prev := c.state
	c.state = next
	c.mu.Unlock()
	c.events.Publish(Event{Kind: EventStateChanged, PreviousState: prev, NewState: next})
}

// Connect dials the server, authenticates, and brings up the listener,
// distributed overlay, and every supporting subsystem (spec §4.1, §4.3).
func (c *Client) Connect(ctx context.Context) error {
	c.mu.Lock()
	if c.state.HasAny(StateConnecting | StateConnected) {
		c.mu.Unlock()
		return NewError("Connect", KindInvalidState, fmt.Errorf("already connecting or connected"))
	}
	c.state = StateConnecting
	c.mu.Unlock()
	c.events.Publish(Event{Kind: EventStateChanged, PreviousState: StateDisconnected, NewState: StateConnecting})

	sessOpts := session.Options{
		ConnectTimeout:    c.cfg.ServerConnectionOptions.ConnectTimeout,
		InactivityTimeout: c.cfg.ServerConnectionOptions.InactivityTimeout,
		MessageTimeout:    c.cfg.MessageTimeout,
	}
	sess, err := session.Dial(ctx, c.cfg.ServerAddress, sessOpts, c.w, c, c.log)
	if err != nil {
		c.setState(StateDisconnected)
		return NewError("Connect", KindConnection, err)
	}
	c.sess = sess
	c.setState(StateConnected)
	c.events.Publish(Event{Kind: EventConnected})

	c.setState(StateConnected | StateLoggingIn)
	result, err := sess.Login(ctx, session.Credentials{Username: c.cfg.Username, Password: c.cfg.Password})
	if err != nil {
		sess.Close()
		c.setState(StateDisconnected)
		return NewError("Connect", KindLogin, err)
	}

	c.peers = peermgr.New(peermgr.Options{
		ConnectTimeout:        c.cfg.PeerConnectionOptions.ConnectTimeout,
		InactivityTimeout:     c.cfg.PeerConnectionOptions.InactivityTimeout,
		MaxMessageConnections: 500,
		LocalUsername:         c.cfg.Username,
	}, c.cache, c.log)
	c.peers.OnMessageConnection(c.onPeerMessageConnection)

	c.peers.OnDistributedConnection(c.onDistributedConnection)

	c.overlay = distributed.New(distributed.Options{
		Enabled:                  c.cfg.EnableDistributedNetwork,
		AcceptChildren:           c.cfg.AcceptDistributedChildren,
		ChildLimit:               c.cfg.DistributedChildLimit,
		BranchRootPromotionDelay: c.cfg.BranchRootPromotionDelay,
		ConnectTimeout:           c.cfg.PeerConnectionOptions.ConnectTimeout,
		LocalUsername:            c.cfg.Username,
	}, sess.SendDistributedStatus, c.onDistributedSearchRequest, c.onDistributedEvent, c.log)

	admission := transfer.NewAdmission(int64(c.cfg.MaximumConcurrentUploads), int64(c.cfg.MaximumConcurrentUploadsPerUser), nil)
	resolver := &connectionResolver{peers: c.peers, cache: c.cache}
	c.transfers = transfer.NewEngine(resolver, c.w, admission, c.log, c.onTransferStateChange, c.onTransferProgress)

	c.searches = search.NewCoordinator(sess, c.log)

	runCtx, cancel := context.WithCancel(context.Background())
	c.runCancel = cancel
	go sess.Run(runCtx)

	if c.cfg.EnableListener {
		if err := c.startListener(); err != nil {
			c.log.Warnf("listener failed to start")
		}
	}

	if c.cfg.EnableListener {
		_ = sess.SendSetListenPort(c.cfg.ListenPort)
	}
	_ = sess.SendPrivateRoomToggle(c.cfg.AcceptPrivateRoomInvitations)

	c.overlay.Start()

	c.setState(StateConnected | StateLoggedIn)
	c.events.Publish(Event{Kind: EventLoggedIn})
	_ = result
	return nil
}

func (c *Client) startListener() error {
	ln, err := net.Listen("tcp", fmt.Sprintf(":%d", c.cfg.ListenPort))
	if err != nil {
		return fmt.Errorf("client: listen: %w", err)
	}
	c.listener = ln
	go c.acceptLoop(ln)
	return nil
}

func (c *Client) acceptLoop(ln net.Listener) {
	for {
		conn, err := ln.Accept()
		if err != nil {
			return
		}
		go func() {
			if err := c.peers.HandleIncoming(conn); err != nil {
				c.log.Warnf("inbound connection rejected")
				return
			}
		}()
	}
}

// Disconnect tears down the session and every supporting subsystem,
// publishing EventDisconnected (spec §4.1 "Disconnect").
func (c *Client) Disconnect(reason error) {
	c.mu.Lock()
	if c.state == StateDisconnected {
		c.mu.Unlock()
		return
	}
	c.state = StateDisconnecting
	c.mu.Unlock()

	if c.runCancel != nil {
		c.runCancel()
	}
	if c.sess != nil {
		c.sess.Close()
	}
	if c.listener != nil {
		c.listener.Close()
	}
	if c.peers != nil {
		c.peers.RemoveAndDisposeAll()
	}
	if c.transfers != nil {
		c.transfers.CancelAll()
	}
	if c.searches != nil {
		c.searches.CancelAll()
	}
	c.w.CancelAll()

	c.setState(StateDisconnected)
	c.events.Publish(Event{Kind: EventDisconnected, Cause: reason})
}

// --- session.Dispatcher ---

func (c *Client) OnConnectToPeer(m messages.ConnectToPeerNotification) {
	ep := endpoint.Endpoint{IP: m.IP, Port: uint16(m.Port)}
	c.cache.AddOrUpdate(m.Username, ep)

	// An "F" invitation nobody is awaiting is not ours to act on: skip the
	// dial rather than leave a dangling, never-claimed transfer connection
	// (spec §4.5 is silent here, but §4.7 only ever waits on a token it
	// itself registered).
	if m.ConnectionType == messages.ConnectionTypeFileTransfer && !c.peers.HasAwaiter(m.Username, m.Token) {
		return
	}

	d := net.Dialer{Timeout: c.cfg.PeerConnectionOptions.ConnectTimeout}
	conn, err := d.Dial("tcp", ep.String())
	if err != nil {
		c.log.Warnf("connect-to-peer dial failed")
		return
	}
	switch m.ConnectionType {
	case messages.ConnectionTypeFileTransfer:
		if err := peermgr.SendPierceFirewall(conn, m.Token); err != nil {
			conn.Close()
			return
		}
		pc := peermgr.NewConnection(m.Username, peermgr.KindTransfer, conn)
		c.peers.AdoptTransferConnection(m.Username, m.Token, pc)
	case messages.ConnectionTypePeer:
		if err := peermgr.SendPierceFirewall(conn, m.Token); err != nil {
			conn.Close()
			return
		}
		pc := peermgr.NewConnection(m.Username, peermgr.KindMessage, conn)
		c.peers.AdoptMessageConnection(m.Username, pc)
	case messages.ConnectionTypeDistributed:
		if err := peermgr.SendPierceFirewall(conn, m.Token); err != nil {
			conn.Close()
			return
		}
		c.onDistributedConnection(m.Username, conn)
	default:
		conn.Close()
	}
}

func (c *Client) OnGetPeerAddress(m messages.GetPeerAddressResponse) {
	ep := endpoint.Endpoint{IP: m.IP, Port: uint16(m.Port)}
	if !ep.IsOffline() {
		c.cache.AddOrUpdate(m.Username, ep)
	}
}

func (c *Client) OnNetInfo(m messages.NetInfo) {
	if c.overlay == nil {
		return
	}
	go func() {
		_ = c.overlay.AttemptParentSelection(context.Background(), m.Candidates)
	}()
}

func (c *Client) OnRoomMessage(m messages.RoomMessageNotification) {
	c.events.Publish(Event{Kind: EventRoomMessageReceived, Room: m.Room, RoomMessage: RoomMessage{
		Room: m.Room, Username: m.Username, Text: m.Message,
	}})
}

func (c *Client) OnUserJoinedRoom(m messages.UserJoinedRoomNotification) {
	c.events.Publish(Event{Kind: EventRoomUserJoined, Room: m.Room, PeerName: m.Username})
}

func (c *Client) OnUserLeftRoom(m messages.UserLeftRoomNotification) {
	c.events.Publish(Event{Kind: EventRoomUserLeft, Room: m.Room, PeerName: m.Username})
}

func (c *Client) OnPrivateMessage(m messages.PrivateMessageNotification) {
	if c.cfg.AutoAcknowledgePrivateMessages && c.sess != nil {
		ack := messages.AcknowledgePrivateMessageRequest{ID: m.ID}
		_ = c.sendServer(uint32(messages.ServerAckPrivateMessage), ack.Encode())
	}
	c.events.Publish(Event{Kind: EventPrivateMessageReceived, Message: PrivateMessage{
		ID: int(m.ID), Timestamp: int64(m.Timestamp), Username: m.Username, Text: m.Message,
	}})
}

func (c *Client) OnKicked() {
	c.events.Publish(Event{Kind: EventKickedFromServer})
	c.Disconnect(fmt.Errorf("kicked from server"))
}

func (c *Client) OnDisconnected(err error) {
	c.Disconnect(err)
}

func (c *Client) sendServer(code uint32, payload []byte) error {
	if c.sess == nil {
		return fmt.Errorf("client: not connected")
	}
	return c.sess.SendRaw(code, payload)
}

// onDistributedConnection hands an inbound distributed-type connection to
// the overlay for child adoption, whichever path delivered it: the
// listener's peer_init handshake (peermgr.Manager.OnDistributedConnection)
// or a dialed ConnectToPeer "D" invitation (handled inline in
// OnConnectToPeer, above).
func (c *Client) onDistributedConnection(name string, conn net.Conn) {
	if c.overlay == nil {
		conn.Close()
		return
	}
	if err := c.overlay.AdoptChild(name, conn); err != nil {
		c.log.Warnf("distributed child adoption failed")
	}
}

func (c *Client) onDistributedEvent(ev distributed.Event) {
	kind := map[distributed.EventKind]EventKind{
		distributed.EventParentAdopted:         EventDistributedParentAdopted,
		distributed.EventParentDisconnected:    EventDistributedParentDisconnected,
		distributed.EventChildAdded:            EventDistributedChildAdded,
		distributed.EventChildDisconnected:     EventDistributedChildDisconnected,
		distributed.EventPromotedToBranchRoot:  EventDistributedPromotedToBranchRoot,
		distributed.EventDemotedFromBranchRoot: EventDistributedDemotedFromBranchRoot,
		distributed.EventNetworkReset:          EventDistributedNetworkReset,
	}[ev.Kind]
	c.events.Publish(Event{Kind: kind, PeerName: ev.PeerName})
}
