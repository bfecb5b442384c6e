// Package distributed implements the Distributed Overlay (spec §4.6): the
// client's node in the search-forwarding tree, including parent selection,
// branch-root promotion, child adoption, and search forwarding.
package distributed

import (
	"context"
	"fmt"
	"net"
	"sync"
	"time"

	"github.com/jpdillingham/Soulseek.NET-sub005/internal/diag"
	"github.com/jpdillingham/Soulseek.NET-sub005/internal/frame"
	"github.com/jpdillingham/Soulseek.NET-sub005/internal/messages"
)

// Events published by the overlay (spec §4.6 "observable events").
type EventKind int

// Overlay event kinds.
const (
	EventParentAdopted EventKind = iota
	EventParentDisconnected
	EventChildAdded
	EventChildDisconnected
	EventPromotedToBranchRoot
	EventDemotedFromBranchRoot
	EventNetworkReset
)

// Event is published whenever the node's adoption state changes.
type Event struct {
	Kind     EventKind
	PeerName string
}

// Options configures the overlay (spec §6).
type Options struct {
	Enabled                bool
	AcceptChildren         bool
	ChildLimit             int
	BranchRootPromotionDelay time.Duration
	ConnectTimeout         time.Duration
	LocalUsername          string
}

// StatusSender writes the (have_parent, parent_speed_ratio) advertisement
// to the server session (spec §4.6 "advertise status").
type StatusSender func(haveParent bool, parentSpeedRatio uint32) error

// SearchRequestHandler is invoked for every DistributedSearchRequest read
// off the parent connection, in addition to the automatic fan-out to
// children, so the embedder can answer on its own behalf too (spec §4.8
// "Network scope... reaches this node via the distributed tree").
type SearchRequestHandler func(messages.DistributedSearchRequestMsg)

// child wraps an adopted child's distributed connection.
type child struct {
	name string
	conn net.Conn
}

// Overlay is the node's distributed-tree state and the operations that
// mutate it.
type Overlay struct {
	opts     Options
	status   StatusSender
	onSearch SearchRequestHandler
	log      *diag.Emitter
	events   func(Event)
	codec    frame.Codec

	mu sync.Mutex

	parentConn net.Conn
	parentName string
	hasParent  bool

	branchRoot  string
	isSelfRoot  bool
	branchLevel uint32

	children map[string]*child

	promotionTimer *time.Timer
}

// New builds an Overlay. events and onSearch may be nil to drop
// notifications/forwarding-only behavior.
func New(opts Options, status StatusSender, onSearch SearchRequestHandler, events func(Event), log *diag.Emitter) *Overlay {
	return &Overlay{
		opts:     opts,
		status:   status,
		onSearch: onSearch,
		events:   events,
		log:      log.With("distributed"),
		codec:    frame.NewDistributedCodec(),
		children: make(map[string]*child),
	}
}

func (o *Overlay) publish(ev Event) {
	if o.events != nil {
		o.events(ev)
	}
}

// Start arms the branch-root promotion timer; call after login. If a
// parent is adopted before the grace period elapses, the timer is
// cancelled by adoptParent.
func (o *Overlay) Start() {
	if !o.opts.Enabled {
		return
	}
	o.mu.Lock()
	o.promotionTimer = time.AfterFunc(o.opts.BranchRootPromotionDelay, o.promoteToBranchRoot)
	o.mu.Unlock()
	o.advertise()
}

func (o *Overlay) promoteToBranchRoot() {
	o.mu.Lock()
	if o.hasParent {
		o.mu.Unlock()
		return
	}
	wasRoot := o.isSelfRoot
	o.isSelfRoot = true
	o.branchRoot = o.opts.LocalUsername
	o.branchLevel = 0
	o.mu.Unlock()

	if !wasRoot {
		o.publish(Event{Kind: EventPromotedToBranchRoot})
	}
	o.advertise()
}

// AttemptParentSelection dials each NetInfo candidate in order and adopts
// as parent the first one that accepts the connection and the peer_init
// frame (spec §4.6 "parent selection"). It does not wait for the
// candidate's branch_level/branch_root before adopting; those only update
// the node's bookkeeping later, from the parent read loop.
func (o *Overlay) AttemptParentSelection(ctx context.Context, candidates []messages.NetInfoCandidate) error {
	if !o.opts.Enabled {
		return nil
	}
	var lastErr error
	for _, cand := range candidates {
		if o.HasParent() {
			return nil
		}
		if err := o.tryAdopt(ctx, cand); err != nil {
			lastErr = err
			continue
		}
		return nil
	}
	if lastErr != nil {
		return fmt.Errorf("distributed: no candidate parent reachable: %w", lastErr)
	}
	return fmt.Errorf("distributed: no candidates supplied")
}

func (o *Overlay) tryAdopt(ctx context.Context, cand messages.NetInfoCandidate) error {
	addr := fmt.Sprintf("%d.%d.%d.%d:%d", byte(cand.IP>>24), byte(cand.IP>>16), byte(cand.IP>>8), byte(cand.IP), cand.Port)
	d := net.Dialer{Timeout: o.opts.ConnectTimeout}
	conn, err := d.DialContext(ctx, "tcp", addr)
	if err != nil {
		return err
	}

	if err := o.codec.Write(conn, uint32(messages.HandshakePeerInit), (messages.PeerInit{
		Username:       o.opts.LocalUsername,
		ConnectionType: messages.ConnectionTypeDistributed,
		Token:          0,
	}).Encode()); err != nil {
		conn.Close()
		return err
	}

	o.adoptParent(cand.Username, conn, 1)
	return nil
}

func (o *Overlay) adoptParent(name string, conn net.Conn, level uint32) {
	o.mu.Lock()
	if o.promotionTimer != nil {
		o.promotionTimer.Stop()
	}
	wasRoot := o.isSelfRoot
	o.parentConn = conn
	o.parentName = name
	o.hasParent = true
	o.isSelfRoot = false
	o.branchRoot = name
	o.branchLevel = level
	o.mu.Unlock()

	if wasRoot {
		o.publish(Event{Kind: EventDemotedFromBranchRoot})
	}
	o.publish(Event{Kind: EventParentAdopted, PeerName: name})
	o.advertise()
	go o.runParentReadLoop(conn)
}

// runParentReadLoop pumps inbound distributed frames from the parent
// connection until it errors or a new parent replaces it, forwarding
// search requests down the tree and updating branch bookkeeping (spec
// §4.6 "parent advertises branch_level/branch_root").
func (o *Overlay) runParentReadLoop(conn net.Conn) {
	for {
		code, payload, err := o.codec.Read(conn)
		if err != nil {
			o.mu.Lock()
			current := o.parentConn == conn
			o.mu.Unlock()
			if current {
				o.ParentLost()
			}
			return
		}
		o.dispatchParentMessage(messages.DistributedCode(code), payload)
	}
}

func (o *Overlay) dispatchParentMessage(code messages.DistributedCode, payload []byte) {
	switch code {
	case messages.DistributedSearchRequest:
		req, err := messages.DecodeDistributedSearchRequest(payload)
		if err != nil {
			return
		}
		o.ForwardSearchRequest(req)
		if o.onSearch != nil {
			o.onSearch(req)
		}
	case messages.DistributedBranchLevel:
		m, err := messages.DecodeBranchLevel(payload)
		if err != nil {
			return
		}
		o.mu.Lock()
		o.branchLevel = m.Level
		o.mu.Unlock()
	case messages.DistributedBranchRoot:
		m, err := messages.DecodeBranchRoot(payload)
		if err != nil {
			return
		}
		o.mu.Lock()
		o.branchRoot = m.Username
		o.mu.Unlock()
	case messages.DistributedPing:
		// No response required; presence alone keeps the connection alive.
	}
}

// HasParent reports whether the node currently has an adopted parent.
func (o *Overlay) HasParent() bool {
	o.mu.Lock()
	defer o.mu.Unlock()
	return o.hasParent
}

// IsBranchRoot reports whether the node is currently acting as its own
// branch root.
func (o *Overlay) IsBranchRoot() bool {
	o.mu.Lock()
	defer o.mu.Unlock()
	return o.isSelfRoot
}

// ParentLost tears down the parent connection and promotes the node to
// branch root immediately (spec §4.6 "demotion").
func (o *Overlay) ParentLost() {
	o.mu.Lock()
	name := o.parentName
	if o.parentConn != nil {
		o.parentConn.Close()
	}
	o.parentConn = nil
	o.parentName = ""
	o.hasParent = false
	o.mu.Unlock()

	o.publish(Event{Kind: EventParentDisconnected, PeerName: name})
	o.promoteToBranchRoot()
}

// AdoptChild accepts an inbound distributed connection as a child, if
// policy allows, and starts the reader goroutine that detects its
// disconnect (spec §4.6 "child acceptance"). Callers that reject a
// candidate (AcceptChildren false, limit reached) are responsible for
// nothing further; AdoptChild closes conn itself in that case.
func (o *Overlay) AdoptChild(name string, conn net.Conn) error {
	o.mu.Lock()
	if !o.opts.AcceptChildren || (!o.hasParent && !o.isSelfRoot) {
		o.mu.Unlock()
		conn.Close()
		return fmt.Errorf("distributed: not accepting children")
	}
	if len(o.children) >= o.opts.ChildLimit {
		o.mu.Unlock()
		conn.Close()
		return fmt.Errorf("distributed: child limit reached")
	}
	o.children[name] = &child{name: name, conn: conn}
	o.mu.Unlock()

	o.publish(Event{Kind: EventChildAdded, PeerName: name})
	go o.runChildReadLoop(name, conn)
	return nil
}

// runChildReadLoop drains frames off an adopted child connection until it
// errors. Children never send anything this node acts on beyond keeping
// the socket open (forwarding is one-directional, parent to child, per
// spec §4.6), so the loop exists to detect disconnect and drop the child
// promptly (removeChildIfCurrent) rather than leaving a dead entry in the
// tree.
func (o *Overlay) runChildReadLoop(name string, conn net.Conn) {
	for {
		if _, _, err := o.codec.Read(conn); err != nil {
			o.removeChildIfCurrent(name, conn)
			return
		}
	}
}

func (o *Overlay) removeChildIfCurrent(name string, conn net.Conn) {
	o.mu.Lock()
	c, ok := o.children[name]
	if !ok || c.conn != conn {
		o.mu.Unlock()
		return
	}
	delete(o.children, name)
	o.mu.Unlock()
	o.publish(Event{Kind: EventChildDisconnected, PeerName: name})
}

// RemoveChild drops a child on disconnect.
func (o *Overlay) RemoveChild(name string) {
	o.mu.Lock()
	c, ok := o.children[name]
	delete(o.children, name)
	o.mu.Unlock()
	if ok {
		c.conn.Close()
		o.publish(Event{Kind: EventChildDisconnected, PeerName: name})
	}
}

// ForwardSearchRequest relays a search_request received from the parent to
// every child; responses are never forwarded back up (spec §4.6
// "forwarding").
func (o *Overlay) ForwardSearchRequest(req messages.DistributedSearchRequestMsg) {
	o.mu.Lock()
	children := make([]*child, 0, len(o.children))
	for _, c := range o.children {
		children = append(children, c)
	}
	o.mu.Unlock()

	payload := req.Encode()
	for _, c := range children {
		_ = o.codec.Write(c.conn, uint32(messages.DistributedSearchRequest), payload)
	}
}

// Reset tears down parent and children and returns the node to an
// unaffiliated state, re-arming the promotion timer (spec §4.6
// "DistributedNetworkReset").
func (o *Overlay) Reset() {
	o.mu.Lock()
	if o.parentConn != nil {
		o.parentConn.Close()
	}
	for _, c := range o.children {
		c.conn.Close()
	}
	o.parentConn = nil
	o.parentName = ""
	o.hasParent = false
	o.isSelfRoot = false
	o.branchRoot = ""
	o.branchLevel = 0
	o.children = make(map[string]*child)
	o.mu.Unlock()

	o.publish(Event{Kind: EventNetworkReset})
	o.Start()
}

func (o *Overlay) advertise() {
	if o.status == nil {
		return
	}
	o.mu.Lock()
	hasParent := o.hasParent
	o.mu.Unlock()
	var ratio uint32
	if hasParent {
		ratio = 50
	}
	if err := o.status(hasParent, ratio); err != nil {
		o.log.Warnf("advertise status failed")
	}
}
