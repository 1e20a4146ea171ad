// Package shamir runs collective operations over Shamir shares.
package shamir

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

// Driver is a protocol.Driver for Shamir sharings of degree T among N
// parties.
type Driver struct {
	codec share.Codec
	sess  *protocol.Session
	rand  cipher.Stream
}

var _ protocol.Driver = (*Driver)(nil)

// NewDriver returns a driver for the Shamir session sess. It does not
// communicate.
func NewDriver(sess *protocol.Session, g kyber.Group, rand cipher.Stream) (*Driver, error) {
	info := sess.Info()
	if info.Scheme != share.Shamir {
		return nil, sess.Abort(fmt.Errorf("%w: Shamir driver in a %s session", share.ErrSchemeMismatch, info.Scheme))
	}
	codec, err := share.NewCodec(share.Shamir, share.Params{Parties: info.Parties, Threshold: info.Threshold}, g)
	if err != nil {
		return nil, sess.Abort(err)
	}
	return &Driver{codec: codec, sess: sess, rand: rand}, nil
}

// Codec implements protocol.Driver.
func (d *Driver) Codec() share.Codec { return d.codec }

// Session implements protocol.Driver.
func (d *Driver) Session() *protocol.Session { return d.sess }

// Rand runs one round in which every party deals n random values. The sum
// of all dealings is unknown to any T parties.
func (d *Driver) Rand(ctx context.Context, n int) ([]share.Share, error) {
	self := d.sess.SelfID()
	g := d.codec.Group()
	dealt := make([][]share.Share, d.sess.N())
	for _, r := range sample.Scalars(d.rand, g, n) {
		for _, s := range d.codec.Share(r, d.rand) {
			dealt[s.Owner] = append(dealt[s.Owner], s)
		}
	}
	out := make(map[party.ID][]share.Encoded, d.sess.N()-1)
	for _, id := range d.sess.OtherPartyIDs() {
		enc, err := share.EncodeAll(dealt[id])
		if err != nil {
			return nil, d.sess.Abort(err)
		}
		out[id] = enc
	}

	got, err := protocol.Exchange(ctx, d.sess, out, d.sess.OtherPartyIDs())
	if err != nil {
		return nil, err
	}
	sum := dealt[self]
	for id, enc := range got {
		shares, err := share.DecodeAll(g, enc)
		if err != nil {
			return nil, d.sess.Abort(fmt.Errorf("shamir: random sharing from party %s: %w", id, err))
		}
		if len(shares) != n {
			return nil, d.sess.Abort(fmt.Errorf("shamir: party %s dealt %d values, expected %d", id, len(shares), n))
		}
		for i, s := range shares {
			if s.Scheme != share.Shamir || s.Owner != self {
				return nil, d.sess.Abort(fmt.Errorf("%w: party %s dealt %s", share.ErrSchemeMismatch, id, s))
			}
			sum[i] = d.codec.Add(sum[i], s)
		}
	}
	return sum, nil
}

// Open broadcasts the shares and interpolates every value.
func (d *Driver) Open(ctx context.Context, shares []share.Share) ([]kyber.Scalar, error) {
	enc, err := share.EncodeAll(shares)
	if err != nil {
		return nil, d.sess.Abort(err)
	}
	all, err := protocol.Broadcast(ctx, d.sess, enc)
	if err != nil {
		return nil, err
	}
	decoded := make(map[party.ID][]share.Share, len(all))
	for id, e := range all {
		if len(e) != len(shares) {
			return nil, d.sess.Abort(fmt.Errorf("shamir: party %s opened %d values, expected %d", id, len(e), len(shares)))
		}
		if decoded[id], err = share.DecodeAll(d.codec.Group(), e); err != nil {
			return nil, d.sess.Abort(fmt.Errorf("shamir: opening from party %s: %w", id, err))
		}
	}
	out := make([]kyber.Scalar, len(shares))
	set := make([]share.Share, 0, d.sess.N())
	for i := range out {
		set = set[:0]
		for _, id := range d.sess.PartyIDs() {
			set = append(set, decoded[id][i])
		}
		if out[i], err = d.codec.Reconstruct(set); err != nil {
			return nil, d.sess.Abort(fmt.Errorf("shamir: opening value %d: %w", i, err))
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
	decoded := make(map[party.ID][]share.PointShare, len(all))
	for id, e := range all {
		if len(e) != len(shares) {
			return nil, d.sess.Abort(fmt.Errorf("shamir: party %s opened %d points, expected %d", id, len(e), len(shares)))
		}
		if decoded[id], err = share.DecodeAllPoints(d.codec.Group(), e); err != nil {
			return nil, d.sess.Abort(fmt.Errorf("shamir: opening from party %s: %w", id, err))
		}
	}
	out := make([]kyber.Point, len(shares))
	set := make([]share.PointShare, 0, d.sess.N())
	for i := range out {
		set = set[:0]
		for _, id := range d.sess.PartyIDs() {
			set = append(set, decoded[id][i])
		}
		if out[i], err = d.codec.ReconstructPoint(set); err != nil {
			return nil, d.sess.Abort(fmt.Errorf("shamir: opening point %d: %w", i, err))
		}
	}
	return out, nil
}
