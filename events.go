package soulseek

import "sync"

// EventKind discriminates the union of events broadcast to embedders (spec
// §6 "Events"). Each Event carries exactly the fields relevant to its kind;
// the rest are zero.
type EventKind int

// Event kinds.
const (
	EventConnected EventKind = iota
	EventLoggedIn
	EventDisconnected
	EventStateChanged
	EventKickedFromServer
	EventDiagnosticGenerated
	EventTransferStateChanged
	EventTransferProgressUpdated
	EventSearchResponseReceived
	EventSearchStateChanged
	EventDistributedParentAdopted
	EventDistributedParentDisconnected
	EventDistributedChildAdded
	EventDistributedChildDisconnected
	EventDistributedPromotedToBranchRoot
	EventDistributedDemotedFromBranchRoot
	EventDistributedNetworkReset
	EventPrivateMessageReceived
	EventUploadRequested
	EventRoomMessageReceived
	EventRoomUserJoined
	EventRoomUserLeft
)

// Event is the single envelope type delivered to every subscriber. Only the
// fields relevant to Kind are populated.
type Event struct {
	Kind EventKind

	// StateChanged / Disconnected
	PreviousState State
	NewState      State
	Reason        string
	Cause         error

	// DiagnosticGenerated
	DiagnosticLevel   DiagnosticLevel
	DiagnosticSource  string
	DiagnosticMessage string

	// Transfer*
	Transfer *Transfer

	// Search*
	Search   *Search
	Response *SearchResult

	// Distributed*
	PeerName string

	// PrivateMessageReceived
	Message PrivateMessage

	// UploadRequested
	RequestedFilename string

	// Room*
	Room        string
	RoomMessage RoomMessage
}

// RoomMessage is one chat line received in a joined room.
type RoomMessage struct {
	Room     string
	Username string
	Text     string
}

// PrivateMessage is a data carrier only; persistence and UI concerns belong
// to the embedder (spec §1 "user-facing domain types used only as data
// carriers").
type PrivateMessage struct {
	ID        int
	Timestamp int64
	Username  string
	Text      string
	IsAdmin   bool
}

// Handler receives broadcast events. Handlers are invoked synchronously on
// the goroutine that produced the event (spec §4.9 "asynchronously... on
// the thread producing them" — here, whichever goroutine detected the
// condition, not a dedicated dispatcher goroutine).
type Handler func(Event)

// Broadcaster fans Events out to a dynamic set of registered Handlers. It is
// the composition-based replacement for the source's bubbling event
// hierarchy (spec §9 "avoid inheritance for event plumbing; use
// composition").
type Broadcaster struct {
	mu       sync.RWMutex
	handlers map[int]Handler
	nextID   int
}

// NewBroadcaster builds an empty Broadcaster.
func NewBroadcaster() *Broadcaster {
	return &Broadcaster{handlers: make(map[int]Handler)}
}

// Subscribe registers h and returns a token that Unsubscribe accepts.
func (b *Broadcaster) Subscribe(h Handler) int {
	b.mu.Lock()
	defer b.mu.Unlock()
	id := b.nextID
	b.nextID++
	b.handlers[id] = h
	return id
}

// Unsubscribe removes a previously registered handler. A no-op if id is
// unknown.
func (b *Broadcaster) Unsubscribe(id int) {
	b.mu.Lock()
	defer b.mu.Unlock()
	delete(b.handlers, id)
}

// Publish invokes every registered handler with ev.
func (b *Broadcaster) Publish(ev Event) {
	b.mu.RLock()
	defer b.mu.RUnlock()
	for _, h := range b.handlers {
		h(ev)
	}
}
