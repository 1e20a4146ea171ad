package protocol

import (
	"fmt"

	"github.com/luxfi/coproof/pkg/party"
	"github.com/zeebo/blake3"
)

// Number is a round number. Round 0 is reserved for abort messages.
type Number uint16

// Message is the envelope of every frame exchanged in a session.
type Message struct {
	// SSID identifies the session the message belongs to.
	SSID []byte `cbor:"1,keyasint"`
	// From is the sender.
	From party.ID `cbor:"2,keyasint"`
	// To is the intended recipient.
	To party.ID `cbor:"3,keyasint"`
	// Protocol identifies the stage being run.
	Protocol string `cbor:"4,keyasint"`
	// RoundNumber is the collective round the message belongs to.
	RoundNumber Number `cbor:"5,keyasint"`
	// Data is the cbor encoding of the round content. For an abort it is the
	// sender's error message.
	Data []byte `cbor:"6,keyasint"`
	// Broadcast is true if every other party got the same Data.
	Broadcast bool `cbor:"7,keyasint,omitempty"`
	// BroadcastVerification is the sender's digest of the previous round, if
	// that round was a broadcast.
	BroadcastVerification []byte `cbor:"8,keyasint,omitempty"`
}

func (m *Message) String() string {
	return fmt.Sprintf("message: round %d, from: %s, to %s, protocol: %s", m.RoundNumber, m.From, m.To, m.Protocol)
}

// IsFor returns true if the message is intended for the designated party.
func (m *Message) IsFor(id party.ID) bool {
	return m.From != id && m.To == id
}

// Hash returns a digest of the message content, used to compare broadcasts.
func (m *Message) Hash() []byte {
	sum := blake3.Sum256(m.Data)
	return sum[:]
}
