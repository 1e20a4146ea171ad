package translate

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/drand/kyber"
	"github.com/luxfi/coproof/pkg/party"
	"github.com/luxfi/coproof/pkg/protocol"
	"github.com/luxfi/coproof/pkg/share"
	"github.com/luxfi/coproof/pkg/witness"
	"go.uber.org/zap"
)

// ErrUnsupportedTranslation is returned for any pair of schemes other than
// REP3 to Shamir.
var ErrUnsupportedTranslation = errors.New("translate: unsupported scheme pair")

// Check reports whether values can be translated from src to dst.
func Check(src, dst share.Scheme) error {
	if src != share.REP3 || dst != share.Shamir {
		return fmt.Errorf("%w: %s to %s", ErrUnsupportedTranslation, src, dst)
	}
	return nil
}

// Translate reshares REP3 shares into Shamir shares of the same values, in
// the same order. It consumes Required(len(shares)) units of pool and runs
// one round.
func Translate(ctx context.Context, sess *protocol.Session, src, dst share.Codec, shares []share.Share, pool *Pool) ([]share.Share, error) {
	if err := Check(src.Scheme(), dst.Scheme()); err != nil {
		return nil, sess.Abort(err)
	}
	if pool.Target().Scheme() != dst.Scheme() || pool.Target().Params() != dst.Params() {
		return nil, sess.Abort(fmt.Errorf("%w: pool masks are shared for %s %+v",
			share.ErrSchemeMismatch, pool.Target().Scheme(), pool.Target().Params()))
	}
	self := sess.SelfID()
	for i, s := range shares {
		if s.Scheme != share.REP3 || s.Owner != self || s.Prev == nil {
			return nil, sess.Abort(fmt.Errorf("%w: value %d is %s, party %s translates its REP3 shares",
				share.ErrSchemeMismatch, i, s, self))
		}
	}
	units, err := pool.Take(Required(len(shares)))
	if err != nil {
		return nil, sess.Abort(err)
	}

	start := time.Now()
	g := dst.Group()
	var deltas [][]byte
	if Dealers.Contains(self) {
		masked := make([]kyber.Scalar, len(shares))
		for i, s := range shares {
			u := units[i*UnitsPerValue+dealerIndex(self)]
			masked[i] = summand(g, self, s)
			masked[i].Sub(masked[i], u.Mask)
		}
		if deltas, err = share.EncodeScalars(masked); err != nil {
			return nil, sess.Abort(err)
		}
	}

	all, err := protocol.Broadcast(ctx, sess, deltas)
	if err != nil {
		return nil, err
	}
	published := make(map[party.ID][]kyber.Scalar, len(Dealers))
	for _, dealer := range Dealers {
		d, err := share.DecodeScalars(g, all[dealer])
		if err != nil {
			return nil, sess.Abort(fmt.Errorf("translate: masked summands of dealer %s: %w", dealer, err))
		}
		if len(d) != len(shares) {
			return nil, sess.Abort(fmt.Errorf("translate: dealer %s published %d summands, expected %d", dealer, len(d), len(shares)))
		}
		published[dealer] = d
	}

	out := make([]share.Share, len(shares))
	for i := range out {
		acc := dst.Zero(self)
		for j, dealer := range Dealers {
			u := units[i*UnitsPerValue+j]
			acc = dst.Add(acc, dst.AddPublic(u.Share, published[dealer][i]))
		}
		out[i] = acc
	}
	sess.Logger().Debug("translated shares",
		zap.Int("values", len(shares)),
		zap.Duration("duration", time.Since(start)))
	return out, nil
}

// TranslateVector translates the secret slots of v and keeps its public
// slots.
func TranslateVector(ctx context.Context, sess *protocol.Session, src, dst share.Codec, v witness.Vector, pool *Pool) (witness.Vector, error) {
	translated, err := Translate(ctx, sess, src, dst, v.Shares(), pool)
	if err != nil {
		return nil, err
	}
	return v.Replace(translated)
}

// summand returns the part of the value a dealer contributes:
// x₀ + x₂ for party 0 and x₁ for party 1.
func summand(g kyber.Group, dealer party.ID, s share.Share) kyber.Scalar {
	y := g.Scalar().Set(s.Value)
	if dealer == 0 {
		y.Add(y, s.Prev)
	}
	return y
}

func dealerIndex(id party.ID) int {
	for i, d := range Dealers {
		if d == id {
			return i
		}
	}
	return -1
}
