package protocol_test

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/fxamacker/cbor/v2"
	"github.com/luxfi/coproof/pkg/party"
	"github.com/luxfi/coproof/pkg/protocol"
	"github.com/luxfi/coproof/pkg/share"
	"github.com/luxfi/coproof/pkg/transport/mocknet"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/goleak"
	"golang.org/x/sync/errgroup"
)

func TestMain(m *testing.M) {
	goleak.VerifyTestMain(m)
}

func info(self party.ID) protocol.Info {
	return protocol.Info{
		ProtocolID: "test",
		SelfID:     self,
		Parties:    3,
		Scheme:     share.REP3,
		Threshold:  1,
		Curve:      "bn254",
	}
}

// run executes f for every party of a mock network and returns their errors.
func run(t *testing.T, infos []protocol.Info, f func(ctx context.Context, s *protocol.Session) error) []error {
	t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	net := mocknet.New(len(infos))
	errs := make([]error, len(infos))
	var eg errgroup.Group
	for i := range infos {
		eg.Go(func() error {
			s, err := protocol.NewSession(ctx, infos[i], net[i])
			if err != nil {
				errs[i] = err
				return nil
			}
			errs[i] = f(ctx, s)
			return nil
		})
	}
	require.NoError(t, eg.Wait())
	return errs
}

func TestInfoValidate(t *testing.T) {
	i := info(0)
	assert.NoError(t, i.Validate())

	i.SelfID = 3
	assert.Error(t, i.Validate())

	i = info(0)
	i.Parties = 1
	assert.Error(t, i.Validate())

	i = info(0)
	i.ProtocolID = ""
	assert.Error(t, i.Validate())
}

func TestSSID(t *testing.T) {
	a, b := info(0), info(2)
	assert.Equal(t, a.SSID(), b.SSID(), "the local party is not part of the ssid")

	b.Circuit = []byte{1}
	assert.NotEqual(t, a.SSID(), b.SSID())
}

func TestBroadcastAndExchange(t *testing.T) {
	infos := []protocol.Info{info(0), info(1), info(2)}
	results := make([]map[party.ID]int, 3)
	rings := make([]map[party.ID]string, 3)

	errs := run(t, infos, func(ctx context.Context, s *protocol.Session) error {
		self := s.SelfID()
		all, err := protocol.Broadcast(ctx, s, int(self)*10)
		if err != nil {
			return err
		}
		results[self] = all

		next, prev := self.Next(3), self.Prev(3)
		got, err := protocol.Exchange(ctx, s, map[party.ID]string{next: "hi " + next.String()}, []party.ID{prev})
		if err != nil {
			return err
		}
		rings[self] = got
		assert.EqualValues(t, 3, s.Round(), "hello plus two rounds")
		return nil
	})
	for _, err := range errs {
		require.NoError(t, err)
	}
	for self := range results {
		assert.Equal(t, map[party.ID]int{0: 0, 1: 10, 2: 20}, results[self])
		id := party.ID(self)
		assert.Equal(t, map[party.ID]string{id.Prev(3): "hi " + id.String()}, rings[self])
	}
}

func TestParameterMismatch(t *testing.T) {
	infos := []protocol.Info{info(0), info(1), info(2)}
	infos[2].Threshold = 2

	errs := run(t, infos, func(ctx context.Context, s *protocol.Session) error {
		return errors.New("unreachable")
	})
	for i, err := range errs {
		assert.ErrorIs(t, err, protocol.ErrProtocolAborted, "party %d", i)
		assert.ErrorIs(t, err, protocol.ErrParameterMismatch, "party %d", i)
	}
	var perr protocol.Error
	require.ErrorAs(t, errs[0], &perr)
	assert.Equal(t, []party.ID{2}, perr.Culprits)
}

func TestAbortPropagates(t *testing.T) {
	infos := []protocol.Info{info(0), info(1), info(2)}
	boom := errors.New("boom")

	errs := run(t, infos, func(ctx context.Context, s *protocol.Session) error {
		if s.SelfID() == 1 {
			return s.Abort(boom)
		}
		_, err := protocol.Broadcast(ctx, s, "never complete")
		return err
	})
	assert.ErrorIs(t, errs[1], boom)
	for _, i := range []int{0, 2} {
		assert.ErrorIs(t, errs[i], protocol.ErrProtocolAborted)
		assert.ErrorIs(t, errs[i], protocol.ErrAbortedByPeer)
	}
}

func TestAbortedSessionStaysAborted(t *testing.T) {
	infos := []protocol.Info{info(0), info(1), info(2)}
	errs := run(t, infos, func(ctx context.Context, s *protocol.Session) error {
		first := s.Abort(errors.New("local failure"))
		_, err := protocol.Broadcast(ctx, s, 1)
		assert.Equal(t, first, err)
		return s.Err()
	})
	for _, err := range errs {
		assert.ErrorIs(t, err, protocol.ErrProtocolAborted)
	}
}

func TestPeerDisconnect(t *testing.T) {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	net := mocknet.New(3)
	sessions := make([]*protocol.Session, 3)
	var eg errgroup.Group
	for i := range sessions {
		eg.Go(func() error {
			var err error
			sessions[i], err = protocol.NewSession(ctx, info(party.ID(i)), net[i])
			return err
		})
	}
	require.NoError(t, eg.Wait())

	require.NoError(t, net[2].Close())
	errs := make([]error, 2)
	for i := range errs {
		eg.Go(func() error {
			_, errs[i] = protocol.Broadcast(ctx, sessions[i], i)
			return nil
		})
	}
	require.NoError(t, eg.Wait())
	for _, err := range errs {
		assert.ErrorIs(t, err, protocol.ErrProtocolAborted)
	}
}

func TestEquivocationDetected(t *testing.T) {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	net := mocknet.New(3)
	sessions := make([]*protocol.Session, 3)
	var eg errgroup.Group
	for i := range sessions {
		eg.Go(func() error {
			var err error
			sessions[i], err = protocol.NewSession(ctx, info(party.ID(i)), net[i])
			return err
		})
	}
	require.NoError(t, eg.Wait())

	// party 2 broadcasts a different value to each peer
	s2 := sessions[2]
	for _, to := range []party.ID{0, 1} {
		data, err := cbor.Marshal(int(to))
		require.NoError(t, err)
		frame, err := cbor.Marshal(&protocol.Message{
			SSID:        s2.SSID(),
			From:        2,
			To:          to,
			Protocol:    s2.Info().ProtocolID,
			RoundNumber: s2.Round() + 1,
			Data:        data,
			Broadcast:   true,
		})
		require.NoError(t, err)
		require.NoError(t, net[2].MessageSend(ctx, to, frame))
	}

	errs := make([]error, 2)
	for i := range errs {
		eg.Go(func() error {
			s := sessions[i]
			got, err := protocol.Broadcast(ctx, s, 7)
			if err != nil {
				errs[i] = err
				return nil
			}
			assert.Equal(t, i, got[2], "the broadcast round itself succeeds")
			other := party.ID(1 - i)
			_, errs[i] = protocol.Exchange(ctx, s, map[party.ID]int{other: i}, []party.ID{other})
			return nil
		})
	}
	require.NoError(t, eg.Wait())
	for i, err := range errs {
		assert.ErrorIs(t, err, protocol.ErrProtocolAborted, "party %d", i)
		assert.ErrorIs(t, err, protocol.ErrInconsistentBroadcast, "party %d", i)
	}
	for _, m := range net {
		require.NoError(t, m.Close())
	}
}

func TestRoundTimeout(t *testing.T) {
	ctx := context.Background()
	net := mocknet.New(2)
	infos := []protocol.Info{info(0), info(1)}
	for i := range infos {
		infos[i].Parties = 2
	}

	sessions := make([]*protocol.Session, 2)
	var eg errgroup.Group
	for i := range sessions {
		eg.Go(func() error {
			var err error
			sessions[i], err = protocol.NewSession(ctx, infos[i], net[i], protocol.WithRoundTimeout(50*time.Millisecond))
			return err
		})
	}
	require.NoError(t, eg.Wait())

	// party 1 never takes part in the round
	_, err := protocol.Broadcast(ctx, sessions[0], "alone")
	assert.ErrorIs(t, err, protocol.ErrProtocolAborted)
	assert.ErrorIs(t, err, context.DeadlineExceeded)
}
