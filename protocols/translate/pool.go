// Package translate reshares REP3 values into Shamir sharings without
// reconstructing them.
//
// The REP3 reconstruction set {0, 1} splits every value x into the two
// summands y₀ = x₀ + x₂ (party 0) and y₁ = x₁ (party 1). Each of these
// dealers holds a preprocessed mask r_d together with a Shamir sharing [r_d]
// of it and publishes δ_d = y_d - r_d, which is uniformly random. Every party
// then obtains its Shamir share of x locally as [r₀] + δ₀ + [r₁] + δ₁.
package translate

import (
	"context"
	"crypto/cipher"
	"errors"
	"fmt"
	"sync"

	"github.com/drand/kyber"
	"github.com/luxfi/coproof/pkg/math/sample"
	"github.com/luxfi/coproof/pkg/party"
	"github.com/luxfi/coproof/pkg/protocol"
	"github.com/luxfi/coproof/pkg/share"
)

// ErrRandomnessExhausted is returned when a pool holds fewer units than a
// translation needs. No unit is consumed in that case.
var ErrRandomnessExhausted = errors.New("translate: preprocessed randomness exhausted")

// Dealers are the parties contributing a summand of every value.
var Dealers = party.IDSlice{0, 1}

// UnitsPerValue is the number of pool units a single translated value uses.
var UnitsPerValue = len(Dealers)

// Required returns the number of units needed to translate n values.
func Required(n int) int {
	return n * UnitsPerValue
}

// Unit is one preprocessed mask.
type Unit struct {
	Dealer party.ID
	// Mask is the cleartext mask, known to the dealer only.
	Mask kyber.Scalar
	// Share is our share of the mask under the target scheme.
	Share share.Share
}

// Pool is a party's private supply of preprocessed units.
// Units are consumed in order and never reused.
type Pool struct {
	mu     sync.Mutex
	target share.Codec
	units  []Unit
}

// NewPool returns a pool of units for the target scheme.
func NewPool(target share.Codec, units []Unit) *Pool {
	return &Pool{target: target, units: units}
}

// Target returns the codec the masks are shared with.
func (p *Pool) Target() share.Codec { return p.target }

// Remaining returns the number of unused units.
func (p *Pool) Remaining() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return len(p.units)
}

// Take removes and returns the next n units, or fails without consuming
// anything if fewer are left.
func (p *Pool) Take(n int) ([]Unit, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if n < 0 || n > len(p.units) {
		return nil, fmt.Errorf("%w: need %d units, %d left", ErrRandomnessExhausted, n, len(p.units))
	}
	out := p.units[:n:n]
	p.units = p.units[n:]
	return out, nil
}

// Preprocess fills a pool for translating n values into target. Every dealer
// draws n masks and deals them under target in a single round.
func Preprocess(ctx context.Context, sess *protocol.Session, target share.Codec, n int, rand cipher.Stream) (*Pool, error) {
	if target.Params().Parties != sess.N() {
		return nil, sess.Abort(fmt.Errorf("%w: target scheme has %d parties, session %d",
			share.ErrInvalidParameters, target.Params().Parties, sess.N()))
	}
	self := sess.SelfID()
	g := target.Group()

	var masks []kyber.Scalar
	var own []share.Share
	out := make(map[party.ID][]share.Encoded)
	if Dealers.Contains(self) {
		masks = sample.Scalars(rand, g, n)
		dealt := make([][]share.Share, sess.N())
		for _, r := range masks {
			for _, s := range target.Share(r, rand) {
				dealt[s.Owner] = append(dealt[s.Owner], s)
			}
		}
		for _, id := range sess.OtherPartyIDs() {
			enc, err := share.EncodeAll(dealt[id])
			if err != nil {
				return nil, sess.Abort(err)
			}
			out[id] = enc
		}
		own = dealt[self]
	}

	got, err := protocol.Exchange(ctx, sess, out, Dealers.Remove(self))
	if err != nil {
		return nil, err
	}
	received := map[party.ID][]share.Share{self: own}
	for dealer, enc := range got {
		shares, err := share.DecodeAll(g, enc)
		if err != nil {
			return nil, sess.Abort(fmt.Errorf("translate: masks from dealer %s: %w", dealer, err))
		}
		if len(shares) != n {
			return nil, sess.Abort(fmt.Errorf("translate: dealer %s sent %d masks, expected %d", dealer, len(shares), n))
		}
		for _, s := range shares {
			if s.Scheme != target.Scheme() || s.Owner != self {
				return nil, sess.Abort(fmt.Errorf("%w: mask from dealer %s is %s", share.ErrSchemeMismatch, dealer, s))
			}
		}
		received[dealer] = shares
	}

	units := make([]Unit, 0, Required(n))
	for i := 0; i < n; i++ {
		for _, dealer := range Dealers {
			u := Unit{Dealer: dealer, Share: received[dealer][i]}
			if dealer == self {
				u.Mask = masks[i]
			}
			units = append(units, u)
		}
	}
	sess.Logger().Debug("preprocessed translation masks")
	return NewPool(target, units), nil
}
