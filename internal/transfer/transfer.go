// Package transfer implements the Transfer Engine (spec §4.7): the upload
// and download state machines, offset negotiation, and governed I/O.
package transfer

import (
	"context"
	"fmt"
	"sync"
)

// Direction distinguishes a download from an upload.
type Direction int

// Transfer directions.
const (
	Download Direction = iota
	Upload
)

// State is a bitset following spec §3 "Transfer" states.
type State uint16

// Transfer states.
const (
	None State = 1 << iota
	Requested
	Queued
	Initializing
	InProgress
	Completed
	Succeeded
	Errored
	Cancelled
	TimedOut
	Rejected
)

// Has reports whether every bit in want is set.
func (s State) Has(want State) bool { return s&want == want }

// Transfer is the engine's internal record for one upload or download.
// It is distinct from the public soulseek.Transfer facade type: the
// engine's registries operate below the public API boundary and are
// mirrored into public Transfer values by the Client facade as events
// fire.
type Transfer struct {
	Direction   Direction
	Username    string
	Filename    string
	Token       uint32
	RemoteToken uint32
	Size        uint64
	StartOffset uint64

	mu               sync.Mutex
	state            State
	bytesTransferred uint64
}

// StateChange is published whenever a Transfer's state advances.
type StateChange struct {
	Transfer   *Transfer
	Previous   State
	New        State
}

// Progress is published as bytes move across the wire.
type Progress struct {
	Transfer         *Transfer
	BytesTransferred uint64
}

func newTransfer(dir Direction, username, filename string, token uint32, size uint64) *Transfer {
	return &Transfer{Direction: dir, Username: username, Filename: filename, Token: token, Size: size, state: Requested}
}

// State returns the current state bitset.
func (t *Transfer) State() State {
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

func (t *Transfer) setState(s State) State {
	t.mu.Lock()
	prev := t.state
	t.state = s
	t.mu.Unlock()
	return prev
}

func (t *Transfer) addBytes(n uint64) uint64 {
	t.mu.Lock()
	t.bytesTransferred += n
	v := t.bytesTransferred
	t.mu.Unlock()
	return v
}

// Governor throttles transfer I/O at chunk boundaries (spec §6, glossary
// "Governor").
type Governor func(ctx context.Context, transfer *Transfer, bytesInChunk int) error

// ErrDuplicateToken is returned when a local token is already registered.
var ErrDuplicateToken = fmt.Errorf("transfer: duplicate token")

// ErrDuplicateTransfer is returned when a (user, filename) pair is already
// registered in either direction's registry.
var ErrDuplicateTransfer = fmt.Errorf("transfer: duplicate transfer")
