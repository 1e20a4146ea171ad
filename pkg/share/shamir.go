package share

import (
	"crypto/cipher"

	"github.com/drand/kyber"
	kshare "github.com/drand/kyber/share"
	"github.com/luxfi/coproof/pkg/math/polynomial"
	"github.com/luxfi/coproof/pkg/party"
)

type shamir struct {
	group  kyber.Group
	params Params
}

func (c *shamir) Scheme() Scheme     { return Shamir }
func (c *shamir) Params() Params     { return c.params }
func (c *shamir) Group() kyber.Group { return c.group }

// Share evaluates a random polynomial f of degree T with f(0) = secret at
// the points 1..N.
func (c *shamir) Share(secret kyber.Scalar, rand cipher.Stream) []Share {
	poly := kshare.NewPriPoly(c.group, c.params.Threshold+1, secret, rand)
	shares := make([]Share, c.params.Parties)
	for i := range shares {
		shares[i] = Share{
			Scheme: Shamir,
			Owner:  party.ID(i),
			Value:  poly.Eval(i).V,
		}
	}
	return shares
}

// SharePoint shares P as P + f(i+1)·G for a random f of degree T with f(0) = 0.
func (c *shamir) SharePoint(secret kyber.Point, rand cipher.Stream) []PointShare {
	poly := kshare.NewPriPoly(c.group, c.params.Threshold+1, c.group.Scalar().Zero(), rand)
	shares := make([]PointShare, c.params.Parties)
	for i := range shares {
		blind := c.group.Point().Mul(poly.Eval(i).V, nil)
		shares[i] = PointShare{
			Scheme: Shamir,
			Owner:  party.ID(i),
			Value:  blind.Add(blind, secret),
		}
	}
	return shares
}

// Reconstruct interpolates f(0) from the T+1 lowest-indexed parties given.
func (c *shamir) Reconstruct(shares []Share) (kyber.Scalar, error) {
	schemes, ids := scalarMeta(shares)
	ordered, err := owners(Shamir, c.params, schemes, ids)
	if err != nil {
		return nil, err
	}
	use := make(map[party.ID]struct{}, c.params.ReconstructionSize())
	for _, id := range ordered[:c.params.ReconstructionSize()] {
		use[id] = struct{}{}
	}
	values := make(map[party.ID]kyber.Scalar, len(use))
	for _, sh := range shares {
		if _, ok := use[sh.Owner]; ok {
			values[sh.Owner] = sh.Value
		}
	}
	return polynomial.InterpolateScalar(c.group, values), nil
}

func (c *shamir) ReconstructPoint(shares []PointShare) (kyber.Point, error) {
	schemes, ids := pointMeta(shares)
	ordered, err := owners(Shamir, c.params, schemes, ids)
	if err != nil {
		return nil, err
	}
	use := make(map[party.ID]struct{}, c.params.ReconstructionSize())
	for _, id := range ordered[:c.params.ReconstructionSize()] {
		use[id] = struct{}{}
	}
	values := make(map[party.ID]kyber.Point, len(use))
	for _, sh := range shares {
		if _, ok := use[sh.Owner]; ok {
			values[sh.Owner] = sh.Value
		}
	}
	return polynomial.InterpolatePoint(c.group, values), nil
}

func (c *shamir) Zero(owner party.ID) Share {
	return Share{Scheme: Shamir, Owner: owner, Value: c.group.Scalar().Zero()}
}

// Public shares v with the constant polynomial f(x) = v.
func (c *shamir) Public(owner party.ID, v kyber.Scalar) Share {
	return Share{Scheme: Shamir, Owner: owner, Value: v.Clone()}
}

func (c *shamir) Add(a, b Share) Share {
	return Share{Scheme: Shamir, Owner: a.Owner, Value: c.group.Scalar().Add(a.Value, b.Value)}
}

func (c *shamir) Sub(a, b Share) Share {
	return Share{Scheme: Shamir, Owner: a.Owner, Value: c.group.Scalar().Sub(a.Value, b.Value)}
}

func (c *shamir) AddPublic(a Share, v kyber.Scalar) Share {
	return Share{Scheme: Shamir, Owner: a.Owner, Value: c.group.Scalar().Add(a.Value, v)}
}

func (c *shamir) MulPublic(a Share, v kyber.Scalar) Share {
	return Share{Scheme: Shamir, Owner: a.Owner, Value: c.group.Scalar().Mul(a.Value, v)}
}

func (c *shamir) Act(a Share, base kyber.Point) PointShare {
	return PointShare{Scheme: Shamir, Owner: a.Owner, Value: c.group.Point().Mul(a.Value, base)}
}

func (c *shamir) AddPoint(a, b PointShare) PointShare {
	return PointShare{Scheme: Shamir, Owner: a.Owner, Value: c.group.Point().Add(a.Value, b.Value)}
}
