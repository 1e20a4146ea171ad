package protocol

import (
	"errors"
	"fmt"

	"github.com/luxfi/coproof/pkg/party"
)

var (
	// ErrProtocolAborted is returned by every collective operation of a
	// session that failed, on every party.
	ErrProtocolAborted = errors.New("protocol: aborted")
	// ErrParameterMismatch means the parties started the session with
	// different parameters.
	ErrParameterMismatch = errors.New("protocol: session parameters differ between parties")
	// ErrUnexpectedMessage means a peer sent a message that does not belong
	// to the current round of the session.
	ErrUnexpectedMessage = errors.New("protocol: unexpected message")
	// ErrInconsistentBroadcast means two parties received different values
	// in the same broadcast round.
	ErrInconsistentBroadcast = errors.New("protocol: inconsistent broadcast")
	// ErrAbortedByPeer means another party aborted the session.
	ErrAbortedByPeer = errors.New("protocol: aborted by other party")
)

// Error is a custom error for protocols which contains information about the responsible round in which it occurred,
// and the party responsible.
type Error struct {
	// Culprits is empty if the error is not caused by another party.
	Culprits []party.ID
	// Err is the underlying error.
	Err error
}

// Error implement error.
func (e Error) Error() string {
	if e.Culprits == nil {
		return e.Err.Error()
	}
	return fmt.Sprintf("culprits: %v: %s", e.Culprits, e.Err)
}

// Unwrap implement errors.Wrapper.
func (e Error) Unwrap() error {
	return e.Err
}

// aborted wraps cause so that it matches ErrProtocolAborted.
func aborted(cause error, culprits ...party.ID) error {
	if errors.Is(cause, ErrProtocolAborted) {
		return cause
	}
	return Error{
		Culprits: culprits,
		Err:      fmt.Errorf("%w: %w", ErrProtocolAborted, cause),
	}
}
