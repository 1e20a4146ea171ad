// Package protocol runs the synchronous collective rounds of the network
// stages over a transport.Messenger.
//
// A Session is an explicit handle shared by all network stages of a party.
// Every collective operation blocks until the messages of all required peers
// arrived. Any failure, local or remote, aborts the session on every party:
// the failing party notifies its peers with a round 0 message and all
// subsequent operations return an error matching ErrProtocolAborted.
package protocol

import (
	"bytes"
	"context"
	"encoding/binary"
	"errors"
	"fmt"
	"time"

	"github.com/fxamacker/cbor/v2"
	"github.com/luxfi/coproof/pkg/party"
	"github.com/luxfi/coproof/pkg/share"
	"github.com/luxfi/coproof/pkg/transport"
	"github.com/zeebo/blake3"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
)

const (
	ssidContext  = "coproof 2024 session id"
	abortTimeout = 2 * time.Second
)

// Info are the parameters all parties of a session must agree on, plus the
// identity of the local party.
type Info struct {
	ProtocolID string
	SelfID     party.ID
	Parties    int
	Scheme     share.Scheme
	Threshold  int
	Curve      string
	// Circuit is the digest of the circuit, if the stage uses one.
	Circuit []byte
	// Label distinguishes runs with otherwise equal parameters.
	Label string
}

// agreed is the part of Info every party must share.
type agreed struct {
	ProtocolID string       `cbor:"1,keyasint"`
	Parties    int          `cbor:"2,keyasint"`
	Scheme     share.Scheme `cbor:"3,keyasint"`
	Threshold  int          `cbor:"4,keyasint"`
	Curve      string       `cbor:"5,keyasint"`
	Circuit    []byte       `cbor:"6,keyasint"`
	Label      string       `cbor:"7,keyasint"`
}

func (i Info) agreed() agreed {
	return agreed{
		ProtocolID: i.ProtocolID,
		Parties:    i.Parties,
		Scheme:     i.Scheme,
		Threshold:  i.Threshold,
		Curve:      i.Curve,
		Circuit:    i.Circuit,
		Label:      i.Label,
	}
}

func (a agreed) String() string {
	return fmt.Sprintf("%s with %s over %s, %d parties, threshold %d, circuit %x, label %q",
		a.ProtocolID, a.Scheme, a.Curve, a.Parties, a.Threshold, a.Circuit, a.Label)
}

// Validate checks that the local party is part of the session.
func (i Info) Validate() error {
	if i.ProtocolID == "" {
		return errors.New("protocol: empty protocol id")
	}
	if i.Parties < 2 {
		return fmt.Errorf("protocol: a session needs at least 2 parties, got %d", i.Parties)
	}
	if !i.SelfID.Valid(i.Parties) {
		return fmt.Errorf("protocol: party %s is not one of %d parties", i.SelfID, i.Parties)
	}
	return nil
}

// SSID returns the session identifier, a digest of the agreed parameters.
func (i Info) SSID() []byte {
	data, err := cbor.Marshal(i.agreed())
	if err != nil {
		panic(err)
	}
	h := blake3.NewDeriveKey(ssidContext)
	_, _ = h.Write(data)
	return h.Sum(nil)
}

// Session is one party's view of a run of collective rounds.
type Session struct {
	info    Info
	ssid    []byte
	net     transport.Messenger
	round   Number
	err     error
	timeout time.Duration
	log     *zap.Logger

	// echo is the digest of the previous round, if it was a broadcast.
	echo []byte
}

// Option configures a Session.
type Option func(*Session)

// WithLogger sets the session logger.
func WithLogger(l *zap.Logger) Option {
	return func(s *Session) { s.log = l }
}

// WithRoundTimeout bounds the duration of every collective round.
func WithRoundTimeout(d time.Duration) Option {
	return func(s *Session) { s.timeout = d }
}

// NewSession starts a session and runs the opening round, in which the
// parties compare their parameters. It fails with ErrParameterMismatch if
// any peer disagrees.
func NewSession(ctx context.Context, info Info, net transport.Messenger, opts ...Option) (*Session, error) {
	if err := info.Validate(); err != nil {
		return nil, err
	}
	s := &Session{
		info: info,
		ssid: info.SSID(),
		net:  net,
		log:  zap.NewNop(),
	}
	for _, opt := range opts {
		opt(s)
	}
	s.log = s.log.With(zap.String("protocol", info.ProtocolID), zap.Stringer("party", info.SelfID))

	if err := s.hello(ctx); err != nil {
		return nil, err
	}
	s.log.Debug("session started", zap.Binary("ssid", s.ssid))
	return s, nil
}

// Info returns the session parameters.
func (s *Session) Info() Info { return s.info }

// SSID returns the session identifier.
func (s *Session) SSID() []byte { return s.ssid }

// SelfID returns the local party.
func (s *Session) SelfID() party.ID { return s.info.SelfID }

// N returns the number of parties.
func (s *Session) N() int { return s.info.Parties }

// PartyIDs returns all parties.
func (s *Session) PartyIDs() party.IDSlice { return party.Range(s.info.Parties) }

// OtherPartyIDs returns all parties but the local one.
func (s *Session) OtherPartyIDs() party.IDSlice { return s.PartyIDs().Remove(s.info.SelfID) }

// Round returns the number of the last completed or attempted round.
func (s *Session) Round() Number { return s.round }

// Logger returns the session logger.
func (s *Session) Logger() *zap.Logger { return s.log }

// Err returns the error the session was aborted with, if any.
func (s *Session) Err() error { return s.err }

func (s *Session) hello(ctx context.Context) error {
	a := s.info.agreed()
	data, err := cbor.Marshal(a)
	if err != nil {
		return err
	}
	out := make(map[party.ID][]byte, s.N()-1)
	for _, id := range s.OtherPartyIDs() {
		out[id] = data
	}
	msgs, err := s.exchange(ctx, out, s.OtherPartyIDs(), true, false)
	if err != nil {
		return err
	}
	var culprits []party.ID
	var reason error
	for _, id := range s.OtherPartyIDs() {
		msg := msgs[id]
		if bytes.Equal(msg.SSID, s.ssid) {
			continue
		}
		culprits = append(culprits, id)
		var theirs agreed
		if err := cbor.Unmarshal(msg.Data, &theirs); err != nil {
			reason = fmt.Errorf("%w: party %s sent undecodable parameters", ErrParameterMismatch, id)
			continue
		}
		reason = fmt.Errorf("%w: party %s runs %s, we run %s", ErrParameterMismatch, id, theirs, a)
	}
	if culprits != nil {
		return s.fail(reason, culprits...)
	}
	return nil
}

// exchange runs one collective round: it sends out[j] to every j in out and
// returns the messages of every party in from.
func (s *Session) exchange(ctx context.Context, out map[party.ID][]byte, from []party.ID, broadcast, checkSSID bool) (map[party.ID]*Message, error) {
	if s.err != nil {
		return nil, s.err
	}
	s.round++
	if s.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, s.timeout)
		defer cancel()
	}

	frames := make(map[party.ID][]byte, len(out))
	for to, data := range out {
		frame, err := cbor.Marshal(&Message{
			SSID:        s.ssid,
			From:        s.info.SelfID,
			To:          to,
			Protocol:    s.info.ProtocolID,
			RoundNumber: s.round,
			Data:        data,
			Broadcast:   broadcast,

			BroadcastVerification: s.echo,
		})
		if err != nil {
			return nil, s.fail(err)
		}
		frames[to] = frame
	}

	var received [][]byte
	eg, ectx := errgroup.WithContext(ctx)
	eg.Go(func() error {
		for to, frame := range frames {
			if err := s.net.MessageSend(ectx, to, frame); err != nil {
				return fmt.Errorf("sending round %d to party %s: %w", s.round, to, err)
			}
		}
		return nil
	})
	eg.Go(func() error {
		var err error
		received, err = s.net.MessagesReceive(ectx, from)
		if err != nil {
			return fmt.Errorf("receiving round %d: %w", s.round, err)
		}
		return nil
	})
	if err := eg.Wait(); err != nil {
		return nil, s.fail(err)
	}

	msgs := make(map[party.ID]*Message, len(from))
	for i, id := range from {
		msg, err := s.check(received[i], id, broadcast, checkSSID)
		if err != nil {
			return nil, s.fail(err, id)
		}
		msgs[id] = msg
	}
	s.echo = nil
	if broadcast && checkSSID {
		for _, data := range out {
			s.echo = s.broadcastDigest(data, msgs)
			break
		}
	}
	s.log.Debug("round complete", zap.Uint16("round", uint16(s.round)), zap.Int("received", len(msgs)))
	return msgs, nil
}

func (s *Session) check(frame []byte, from party.ID, broadcast, checkSSID bool) (*Message, error) {
	var msg Message
	if err := cbor.Unmarshal(frame, &msg); err != nil {
		return nil, fmt.Errorf("%w: undecodable frame from party %s: %v", ErrUnexpectedMessage, from, err)
	}
	if msg.RoundNumber == 0 {
		return nil, fmt.Errorf("%w %s: %q", ErrAbortedByPeer, from, msg.Data)
	}
	switch {
	case msg.From != from || !msg.IsFor(s.info.SelfID):
		return nil, fmt.Errorf("%w: %s on the link from party %s", ErrUnexpectedMessage, &msg, from)
	case msg.RoundNumber != s.round:
		return nil, fmt.Errorf("%w: %s during round %d", ErrUnexpectedMessage, &msg, s.round)
	case checkSSID && (msg.Protocol != s.info.ProtocolID || !bytes.Equal(msg.SSID, s.ssid)):
		return nil, fmt.Errorf("%w: %s belongs to another session", ErrUnexpectedMessage, &msg)
	case msg.Broadcast != broadcast:
		return nil, fmt.Errorf("%w: %s has the wrong broadcast flag", ErrUnexpectedMessage, &msg)
	case !bytes.Equal(msg.BroadcastVerification, s.echo):
		return nil, fmt.Errorf("%w: party %s saw other values in round %d", ErrInconsistentBroadcast, from, s.round-1)
	}
	return &msg, nil
}

// broadcastDigest hashes the values of a broadcast round as this party saw
// them, own included. Every honest party gets the same digest.
func (s *Session) broadcastDigest(own []byte, msgs map[party.ID]*Message) []byte {
	h := blake3.New()
	_, _ = h.Write(binary.BigEndian.AppendUint16(nil, uint16(s.round)))
	for _, id := range s.PartyIDs() {
		msg := msgs[id]
		if id == s.SelfID() {
			msg = &Message{Data: own}
		}
		if msg == nil {
			continue
		}
		_, _ = h.Write(binary.BigEndian.AppendUint32(nil, uint32(id)))
		_, _ = h.Write(msg.Hash())
	}
	return h.Sum(nil)
}

// fail aborts the session and notifies the peers.
func (s *Session) fail(cause error, culprits ...party.ID) error {
	if s.err != nil {
		return s.err
	}
	s.err = aborted(cause, culprits...)
	s.log.Warn("session aborted", zap.Uint16("round", uint16(s.round)), zap.Error(s.err))

	if errors.Is(cause, transport.ErrClosed) {
		return s.err
	}
	notice := []byte(cause.Error())
	ctx, cancel := context.WithTimeout(context.Background(), abortTimeout)
	defer cancel()
	for _, id := range s.OtherPartyIDs() {
		frame, err := cbor.Marshal(&Message{
			SSID:     s.ssid,
			From:     s.info.SelfID,
			To:       id,
			Protocol: s.info.ProtocolID,
			Data:     notice,
		})
		if err != nil {
			continue
		}
		// best effort, the peer may already be gone
		_ = s.net.MessageSend(ctx, id, frame)
	}
	return s.err
}

// Abort aborts the session because of a local failure between rounds.
func (s *Session) Abort(err error) error {
	return s.fail(err, s.info.SelfID)
}

// Exchange runs one collective round in which every party sends out[j] to
// each j in out, and returns the values sent to us by every party in from.
func Exchange[T any](ctx context.Context, s *Session, out map[party.ID]T, from []party.ID) (map[party.ID]T, error) {
	data := make(map[party.ID][]byte, len(out))
	for to, v := range out {
		if to == s.SelfID() || !to.Valid(s.N()) {
			return nil, s.fail(fmt.Errorf("protocol: cannot send to party %s", to))
		}
		b, err := cbor.Marshal(v)
		if err != nil {
			return nil, s.fail(err)
		}
		data[to] = b
	}
	msgs, err := s.exchange(ctx, data, from, false, true)
	if err != nil {
		return nil, err
	}
	return decodeAll[T](s, msgs)
}

// Broadcast sends v to every other party and returns the values of all
// parties, including our own.
func Broadcast[T any](ctx context.Context, s *Session, v T) (map[party.ID]T, error) {
	b, err := cbor.Marshal(v)
	if err != nil {
		return nil, s.fail(err)
	}
	data := make(map[party.ID][]byte, s.N()-1)
	for _, id := range s.OtherPartyIDs() {
		data[id] = b
	}
	msgs, err := s.exchange(ctx, data, s.OtherPartyIDs(), true, true)
	if err != nil {
		return nil, err
	}
	out, err := decodeAll[T](s, msgs)
	if err != nil {
		return nil, err
	}
	out[s.SelfID()] = v
	return out, nil
}

func decodeAll[T any](s *Session, msgs map[party.ID]*Message) (map[party.ID]T, error) {
	out := make(map[party.ID]T, len(msgs)+1)
	for id, msg := range msgs {
		var v T
		if err := cbor.Unmarshal(msg.Data, &v); err != nil {
			return nil, s.fail(fmt.Errorf("%w: round %d content from party %s: %v", ErrUnexpectedMessage, msg.RoundNumber, id, err), id)
		}
		out[id] = v
	}
	return out, nil
}
