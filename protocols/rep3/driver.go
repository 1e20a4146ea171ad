// Package rep3 runs 3-party replicated secret sharing computations: random
// sharings, openings and multiplications, and extends input shares to a
// full witness with them.
package rep3

import (
	"context"
	"crypto/cipher"
	"fmt"

	"github.com/drand/kyber"
	"github.com/luxfi/coproof/pkg/math/sample"
	"github.com/luxfi/coproof/pkg/party"
	"github.com/luxfi/coproof/pkg/protocol"
	"github.com/luxfi/coproof/pkg/share"
)

const parties = 3

// Driver is a protocol.Driver for REP3.
//
// At setup every party sends a fresh seed to the next party. Party i then
// draws from its own stream sᵢ and the stream sᵢ₋₁ of the previous party;
// since party i+1 draws from sᵢ as well, both stay in lockstep as long as
// every party performs the same sequence of operations. This gives random
// sharings and zero sharings without further interaction.
type Driver struct {
	codec share.Codec
	sess  *protocol.Session
	own   cipher.Stream
	prev  cipher.Stream
}

var _ protocol.Driver = (*Driver)(nil)

// NewDriver exchanges the correlated randomness seeds. It runs one round.
func NewDriver(ctx context.Context, sess *protocol.Session, g kyber.Group, rand cipher.Stream) (*Driver, error) {
	info := sess.Info()
	if info.Scheme != share.REP3 {
		return nil, sess.Abort(fmt.Errorf("%w: REP3 driver in a %s session", share.ErrSchemeMismatch, info.Scheme))
	}
	codec, err := share.NewCodec(share.REP3, share.Params{Parties: info.Parties, Threshold: info.Threshold}, g)
	if err != nil {
		return nil, sess.Abort(err)
	}

	self := sess.SelfID()
	seed := sample.Seed(rand)
	got, err := protocol.Exchange(ctx, sess, map[party.ID][]byte{self.Next(parties): seed}, []party.ID{self.Prev(parties)})
	if err != nil {
		return nil, err
	}
	prevSeed := got[self.Prev(parties)]
	if len(prevSeed) != len(seed) {
		return nil, sess.Abort(fmt.Errorf("rep3: seed of %d bytes from party %s", len(prevSeed), self.Prev(parties)))
	}
	return &Driver{
		codec: codec,
		sess:  sess,
		own:   sample.Stream(seed, "rep3 prss"),
		prev:  sample.Stream(prevSeed, "rep3 prss"),
	}, nil
}

// Codec implements protocol.Driver.
func (d *Driver) Codec() share.Codec { return d.codec }

// Session implements protocol.Driver.
func (d *Driver) Session() *protocol.Session { return d.sess }

// Rand returns shares of n random values xᵢ = PRF(sᵢ). No communication is
// needed.
func (d *Driver) Rand(_ context.Context, n int) ([]share.Share, error) {
	g := d.codec.Group()
	out := make([]share.Share, n)
	for i := range out {
		out[i] = share.Share{
			Scheme: share.REP3,
			Owner:  d.sess.SelfID(),
			Value:  sample.Scalar(d.own, g),
			Prev:   sample.Scalar(d.prev, g),
		}
	}
	return out, nil
}

// zero returns additive shares αᵢ = PRF(sᵢ) - PRF(sᵢ₋₁) with α₀+α₁+α₂ = 0.
func (d *Driver) zero(n int) []kyber.Scalar {
	g := d.codec.Group()
	out := make([]kyber.Scalar, n)
	for i := range out {
		a := sample.Scalar(d.own, g)
		out[i] = a.Sub(a, sample.Scalar(d.prev, g))
	}
	return out
}

// Open broadcasts the shares and reconstructs from all three, which also
// checks that the replicated components agree.
func (d *Driver) Open(ctx context.Context, shares []share.Share) ([]kyber.Scalar, error) {
	enc, err := share.EncodeAll(shares)
	if err != nil {
		return nil, d.sess.Abort(err)
	}
	all, err := protocol.Broadcast(ctx, d.sess, enc)
	if err != nil {
		return nil, err
	}
	g := d.codec.Group()
	decoded := make(map[party.ID][]share.Share, len(all))
	for id, e := range all {
		if len(e) != len(shares) {
			return nil, d.sess.Abort(fmt.Errorf("rep3: party %s opened %d values, expected %d", id, len(e), len(shares)))
		}
		if decoded[id], err = share.DecodeAll(g, e); err != nil {
			return nil, d.sess.Abort(fmt.Errorf("rep3: opening from party %s: %w", id, err))
		}
	}
	out := make([]kyber.Scalar, len(shares))
	for i := range out {
		set := make([]share.Share, 0, parties)
		for _, id := range d.sess.PartyIDs() {
			set = append(set, decoded[id][i])
		}
		if out[i], err = d.codec.Reconstruct(set); err != nil {
			return nil, d.sess.Abort(fmt.Errorf("rep3: opening value %d: %w", i, err))
		}
	}
	return out, nil
}

// OpenPoints is Open for group elements.
func (d *Driver) OpenPoints(ctx context.Context, shares []share.PointShare) ([]kyber.Point, error) {
	enc, err := share.EncodeAllPoints(shares)
	if err != nil {
		return nil, d.sess.Abort(err)
	}
	all, err := protocol.Broadcast(ctx, d.sess, enc)
	if err != nil {
		return nil, err
	}
	g := d.codec.Group()
	decoded := make(map[party.ID][]share.PointShare, len(all))
	for id, e := range all {
		if len(e) != len(shares) {
			return nil, d.sess.Abort(fmt.Errorf("rep3: party %s opened %d points, expected %d", id, len(e), len(shares)))
		}
		if decoded[id], err = share.DecodeAllPoints(g, e); err != nil {
			return nil, d.sess.Abort(fmt.Errorf("rep3: opening from party %s: %w", id, err))
		}
	}
	out := make([]kyber.Point, len(shares))
	for i := range out {
		set := make([]share.PointShare, 0, parties)
		for _, id := range d.sess.PartyIDs() {
			set = append(set, decoded[id][i])
		}
		if out[i], err = d.codec.ReconstructPoint(set); err != nil {
			return nil, d.sess.Abort(fmt.Errorf("rep3: opening point %d: %w", i, err))
		}
	}
	return out, nil
}

// Mul multiplies shares pairwise in one round.
//
// Party i computes zᵢ = aᵢbᵢ + aᵢbᵢ₋₁ + aᵢ₋₁bᵢ + αᵢ, an additive share of ab
// masked by a zero sharing, and sends it to the next party. The replicated
// share of ab is then (zᵢ, zᵢ₋₁).
func (d *Driver) Mul(ctx context.Context, a, b []share.Share) ([]share.Share, error) {
	if len(a) != len(b) {
		return nil, d.sess.Abort(fmt.Errorf("rep3: multiplying %d by %d values", len(a), len(b)))
	}
	g := d.codec.Group()
	alpha := d.zero(len(a))
	z := make([]kyber.Scalar, len(a))
	t := g.Scalar()
	for i := range a {
		zi := g.Scalar().Mul(a[i].Value, b[i].Value)
		zi.Add(zi, t.Mul(a[i].Value, b[i].Prev))
		zi.Add(zi, t.Mul(a[i].Prev, b[i].Value))
		z[i] = zi.Add(zi, alpha[i])
	}
	enc, err := share.EncodeScalars(z)
	if err != nil {
		return nil, d.sess.Abort(err)
	}

	self := d.sess.SelfID()
	got, err := protocol.Exchange(ctx, d.sess, map[party.ID][][]byte{self.Next(parties): enc}, []party.ID{self.Prev(parties)})
	if err != nil {
		return nil, err
	}
	prev, err := share.DecodeScalars(g, got[self.Prev(parties)])
	if err != nil {
		return nil, d.sess.Abort(fmt.Errorf("rep3: multiplication: %w", err))
	}
	if len(prev) != len(z) {
		return nil, d.sess.Abort(fmt.Errorf("rep3: multiplication: got %d values, expected %d", len(prev), len(z)))
	}
	out := make([]share.Share, len(z))
	for i := range out {
		out[i] = share.Share{Scheme: share.REP3, Owner: self, Value: z[i], Prev: prev[i]}
	}
	return out, nil
}
