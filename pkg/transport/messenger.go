// Package transport delivers opaque byte frames between numbered parties.
//
// A Messenger does not know about protocols; sessions in pkg/protocol add
// framing, round numbers and abort handling on top of it. Two
// implementations are provided: mocknet, an in-process network for tests and
// local simulation, and tcp, an authenticated TCP mesh.
package transport

import (
	"context"
	"errors"

	"github.com/luxfi/coproof/pkg/party"
)

var (
	ErrClosed           = errors.New("transport: messenger closed")
	ErrPeerDisconnected = errors.New("transport: peer disconnected")
	ErrSelf             = errors.New("transport: cannot message self")
	ErrUnknownPeer      = errors.New("transport: unknown peer")
	ErrMessageTooLarge  = errors.New("transport: message too large")
)

// Messenger sends and receives frames to and from the other parties.
type Messenger interface {
	// MessageSend sends buffer to receiver.
	MessageSend(ctx context.Context, receiver party.ID, buffer []byte) error

	// MessageReceive returns the next frame from sender, blocking until one
	// arrives, the peer disconnects, or ctx is done.
	MessageReceive(ctx context.Context, sender party.ID) ([]byte, error)

	// MessagesReceive receives one frame from every sender and returns them
	// in the order of senders.
	MessagesReceive(ctx context.Context, senders []party.ID) ([][]byte, error)

	// Close releases the messenger. Peers waiting on it observe
	// ErrPeerDisconnected.
	Close() error
}
