// Package test runs multi-party sessions in one process for tests.
package test

import (
	"context"
	"time"

	"github.com/luxfi/coproof/pkg/party"
	"github.com/luxfi/coproof/pkg/protocol"
	"github.com/luxfi/coproof/pkg/share"
	"github.com/luxfi/coproof/pkg/transport/mocknet"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"
	"golang.org/x/sync/errgroup"
)

// Info returns session parameters for party self of n.
func Info(protocolID string, self party.ID, n int, scheme share.Scheme, threshold int) protocol.Info {
	return protocol.Info{
		ProtocolID: protocolID,
		SelfID:     self,
		Parties:    n,
		Scheme:     scheme,
		Threshold:  threshold,
		Curve:      "bn254",
	}
}

// T is the part of testing.TB the helpers use; GinkgoT() satisfies it.
type T interface {
	zaptest.TestingT
	Helper()
}

// Run starts one session per info over a mock network and calls f for each
// party concurrently. It returns the error of every party.
func Run(t T, infos []protocol.Info, f func(ctx context.Context, s *protocol.Session) error) []error {
	t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Second)
	defer cancel()

	net := mocknet.New(len(infos))
	defer func() {
		for _, m := range net {
			_ = m.Close()
		}
	}()
	errs := make([]error, len(infos))
	var eg errgroup.Group
	for i := range infos {
		eg.Go(func() error {
			s, err := protocol.NewSession(ctx, infos[i], net[i], protocol.WithLogger(zaptest.NewLogger(t)))
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

// RunAll is Run for n parties with equal parameters, failing the test if any
// party fails.
func RunAll(t T, protocolID string, n int, scheme share.Scheme, threshold int, f func(ctx context.Context, s *protocol.Session) error) {
	t.Helper()
	infos := make([]protocol.Info, n)
	for i := range infos {
		infos[i] = Info(protocolID, party.ID(i), n, scheme, threshold)
	}
	for i, err := range Run(t, infos, f) {
		require.NoError(t, err, "party %d", i)
	}
}
