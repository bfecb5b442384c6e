package soulseek

import "fmt"

// Kind categorizes a public-facing error (spec §7). Timeout and Cancelled
// are deliberately not Kind values: they travel as context.DeadlineExceeded
// and context.Canceled respectively and are never wrapped (spec §7
// "Cancellation and Timeout are never wrapped").
type Kind int

// Error kinds.
const (
	// KindArgument marks a public-API precondition violation.
	KindArgument Kind = iota + 1
	// KindInvalidState marks an operation invoked in the wrong client state.
	KindInvalidState
	// KindConnection marks a transport failure (connect, read, write,
	// listen, resolve).
	KindConnection
	// KindLogin marks a server login rejection.
	KindLogin
	// KindUserOffline marks a GetPeerAddress reply of 0.0.0.0.
	KindUserOffline
	// KindTransferRejected marks a non-queued TransferResponse denial.
	KindTransferRejected
	// KindTransferFailed marks a generic transfer-level failure.
	KindTransferFailed
	// KindRoomJoinForbidden marks a server refusal to join a room.
	KindRoomJoinForbidden
	// KindNoResponse marks a silently-ignored server request.
	KindNoResponse
	// KindFatal marks an internal disposal/shutdown condition.
	KindFatal
)

func (k Kind) String() string {
	switch k {
	case KindArgument:
		return "argument"
	case KindInvalidState:
		return "invalid state"
	case KindConnection:
		return "connection"
	case KindLogin:
		return "login"
	case KindUserOffline:
		return "user offline"
	case KindTransferRejected:
		return "transfer rejected"
	case KindTransferFailed:
		return "transfer failed"
	case KindRoomJoinForbidden:
		return "room join forbidden"
	case KindNoResponse:
		return "no response"
	case KindFatal:
		return "fatal"
	default:
		return "unknown"
	}
}

// Error is the error type returned by every public operation that fails
// for a categorized reason. Use errors.As to recover it and inspect Kind.
type Error struct {
	Kind Kind
	Op   string
	Err  error
}

func (e *Error) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %s: %v", e.Op, e.Kind, e.Err)
	}
	return fmt.Sprintf("%s: %s", e.Op, e.Kind)
}

// Unwrap exposes the inner cause for errors.Is/errors.As.
func (e *Error) Unwrap() error {
	return e.Err
}

// NewError builds an *Error, the standard constructor used throughout the
// engine so every site wraps with the same shape.
func NewError(op string, kind Kind, err error) *Error {
	return &Error{Op: op, Kind: kind, Err: err}
}
