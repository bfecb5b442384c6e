package soulseek

import (
	"sync"

	"github.com/google/uuid"
)

// TransferDirection mirrors messages.TransferDirection at the public
// facade boundary.
type TransferDirection int

// Transfer directions.
const (
	Download TransferDirection = iota
	Upload
)

// TransferState is a bitset over spec §3 "Transfer" states. Completed
// composes with exactly one of the terminal bits.
type TransferState uint16

// Transfer states.
const (
	TransferNone TransferState = 1 << iota
	TransferRequested
	TransferQueued
	TransferInitializing
	TransferInProgress
	TransferCompleted
	TransferSucceeded
	TransferErrored
	TransferCancelled
	TransferTimedOut
	TransferRejected
)

func (s TransferState) Has(want TransferState) bool { return s&want == want }

func (s TransferState) String() string {
	names := []struct {
		bit  TransferState
		name string
	}{
		{TransferRequested, "Requested"},
		{TransferQueued, "Queued"},
		{TransferInitializing, "Initializing"},
		{TransferInProgress, "InProgress"},
		{TransferCompleted, "Completed"},
		{TransferSucceeded, "Succeeded"},
		{TransferErrored, "Errored"},
		{TransferCancelled, "Cancelled"},
		{TransferTimedOut, "TimedOut"},
		{TransferRejected, "Rejected"},
	}
	var out string
	for _, n := range names {
		if s.Has(n.bit) {
			if out != "" {
				out += "|"
			}
			out += n.name
		}
	}
	if out == "" {
		return "None"
	}
	return out
}

// TransferOptions configures a single transfer operation.
type TransferOptions struct {
	Governor Governor
}

// Transfer tracks one upload or download end to end (spec §3 "Transfer").
// ID is a client-local handle that survives wire-token wraparound and
// reuse, for embedders that hold onto a Transfer across its whole
// lifetime (e.g. for a persistent transfer queue view).
type Transfer struct {
	ID           uuid.UUID
	Direction    TransferDirection
	Username     string
	Filename     string
	Token        uint32
	RemoteToken  uint32
	HasRemoteToken bool
	Size         uint64
	StartOffset  uint64

	mu               sync.Mutex
	state            TransferState
	bytesTransferred uint64
}

func newTransfer(dir TransferDirection, username, filename string, token uint32, size uint64) *Transfer {
	return &Transfer{
		ID:        uuid.New(),
		Direction: dir,
		Username:  username,
		Filename:  filename,
		Token:     token,
		Size:      size,
		state:     TransferRequested,
	}
}

// State returns the transfer's current state bitset.
func (t *Transfer) State() TransferState {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.state
}

// BytesTransferred returns the number of bytes moved so far.
func (t *Transfer) BytesTransferred() uint64 {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.bytesTransferred
}

// setState transitions the transfer and returns the previous state, so
// callers can emit a StateChanged event with (previous, new) per spec §4.7.3.
func (t *Transfer) setState(state TransferState) (previous TransferState) {
	t.mu.Lock()
	previous = t.state
	t.state = state
	t.mu.Unlock()
	return previous
}

// addBytes advances bytesTransferred monotonically (spec §8 "Progress
// events are monotonic in bytes_transferred").
func (t *Transfer) addBytes(n uint64) uint64 {
	t.mu.Lock()
	t.bytesTransferred += n
	v := t.bytesTransferred
	t.mu.Unlock()
	return v
}

// Succeeded reports whether the transfer's state has the Succeeded bit. It
// does not compare bytes_transferred against size - start_offset.
func (t *Transfer) Succeeded() bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.state.Has(TransferSucceeded)
}
