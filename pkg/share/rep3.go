package share

import (
	"crypto/cipher"
	"fmt"

	"github.com/drand/kyber"
	"github.com/luxfi/coproof/pkg/party"
)

const rep3Parties = 3

type rep3 struct {
	group kyber.Group
}

func (c *rep3) Scheme() Scheme     { return REP3 }
func (c *rep3) Params() Params     { return DefaultParams() }
func (c *rep3) Group() kyber.Group { return c.group }

// Share samples a, b and sets x0 = v - a - b, x1 = a, x2 = b.
func (c *rep3) Share(secret kyber.Scalar, rand cipher.Stream) []Share {
	a := c.group.Scalar().Pick(rand)
	b := c.group.Scalar().Pick(rand)
	x0 := c.group.Scalar().Sub(secret, a)
	x0.Sub(x0, b)
	x := [rep3Parties]kyber.Scalar{x0, a, b}

	shares := make([]Share, rep3Parties)
	for i := range shares {
		id := party.ID(i)
		shares[i] = Share{
			Scheme: REP3,
			Owner:  id,
			Value:  x[i].Clone(),
			Prev:   x[id.Prev(rep3Parties)].Clone(),
		}
	}
	return shares
}

func (c *rep3) SharePoint(secret kyber.Point, rand cipher.Stream) []PointShare {
	a := c.group.Point().Pick(rand)
	b := c.group.Point().Pick(rand)
	x0 := c.group.Point().Sub(secret, a)
	x0.Sub(x0, b)
	x := [rep3Parties]kyber.Point{x0, a, b}

	shares := make([]PointShare, rep3Parties)
	for i := range shares {
		id := party.ID(i)
		shares[i] = PointShare{
			Scheme: REP3,
			Owner:  id,
			Value:  x[i].Clone(),
			Prev:   x[id.Prev(rep3Parties)].Clone(),
		}
	}
	return shares
}

// Reconstruct sums the three additive components. Any two parties hold all of
// them, and a component held twice must agree.
func (c *rep3) Reconstruct(shares []Share) (kyber.Scalar, error) {
	schemes, ids := scalarMeta(shares)
	if _, err := owners(REP3, c.Params(), schemes, ids); err != nil {
		return nil, err
	}
	var x [rep3Parties]kyber.Scalar
	for _, sh := range shares {
		if err := setComponent(x[:], int(sh.Owner), sh.Value); err != nil {
			return nil, err
		}
		if err := setComponent(x[:], int(sh.Owner.Prev(rep3Parties)), sh.Prev); err != nil {
			return nil, err
		}
	}
	sum := c.group.Scalar().Zero()
	for _, xi := range x {
		sum.Add(sum, xi)
	}
	return sum, nil
}

func (c *rep3) ReconstructPoint(shares []PointShare) (kyber.Point, error) {
	schemes, ids := pointMeta(shares)
	if _, err := owners(REP3, c.Params(), schemes, ids); err != nil {
		return nil, err
	}
	var x [rep3Parties]kyber.Point
	for _, sh := range shares {
		if err := setComponent(x[:], int(sh.Owner), sh.Value); err != nil {
			return nil, err
		}
		if err := setComponent(x[:], int(sh.Owner.Prev(rep3Parties)), sh.Prev); err != nil {
			return nil, err
		}
	}
	sum := c.group.Point().Null()
	for _, xi := range x {
		sum.Add(sum, xi)
	}
	return sum, nil
}

type equaler[T any] interface {
	Equal(T) bool
}

func setComponent[T equaler[T]](x []T, i int, v T) error {
	if any(v) == nil {
		return fmt.Errorf("%w: missing component %d", ErrSchemeMismatch, i)
	}
	if any(x[i]) == nil {
		x[i] = v
		return nil
	}
	if !x[i].Equal(v) {
		return fmt.Errorf("%w: component %d differs between parties", ErrInconsistentShares, i)
	}
	return nil
}

func (c *rep3) Zero(owner party.ID) Share {
	return Share{Scheme: REP3, Owner: owner, Value: c.group.Scalar().Zero(), Prev: c.group.Scalar().Zero()}
}

func (c *rep3) Public(owner party.ID, v kyber.Scalar) Share {
	return c.AddPublic(c.Zero(owner), v)
}

func (c *rep3) Add(a, b Share) Share {
	return Share{
		Scheme: REP3,
		Owner:  a.Owner,
		Value:  c.group.Scalar().Add(a.Value, b.Value),
		Prev:   c.group.Scalar().Add(a.Prev, b.Prev),
	}
}

func (c *rep3) Sub(a, b Share) Share {
	return Share{
		Scheme: REP3,
		Owner:  a.Owner,
		Value:  c.group.Scalar().Sub(a.Value, b.Value),
		Prev:   c.group.Scalar().Sub(a.Prev, b.Prev),
	}
}

// AddPublic adds v to the component x0, held by party 0 as Value and by
// party 1 as Prev.
func (c *rep3) AddPublic(a Share, v kyber.Scalar) Share {
	out := Share{Scheme: REP3, Owner: a.Owner, Value: a.Value.Clone(), Prev: a.Prev.Clone()}
	switch a.Owner {
	case 0:
		out.Value.Add(out.Value, v)
	case 1:
		out.Prev.Add(out.Prev, v)
	}
	return out
}

func (c *rep3) MulPublic(a Share, v kyber.Scalar) Share {
	return Share{
		Scheme: REP3,
		Owner:  a.Owner,
		Value:  c.group.Scalar().Mul(a.Value, v),
		Prev:   c.group.Scalar().Mul(a.Prev, v),
	}
}

func (c *rep3) Act(a Share, base kyber.Point) PointShare {
	return PointShare{
		Scheme: REP3,
		Owner:  a.Owner,
		Value:  c.group.Point().Mul(a.Value, base),
		Prev:   c.group.Point().Mul(a.Prev, base),
	}
}

func (c *rep3) AddPoint(a, b PointShare) PointShare {
	return PointShare{
		Scheme: REP3,
		Owner:  a.Owner,
		Value:  c.group.Point().Add(a.Value, b.Value),
		Prev:   c.group.Point().Add(a.Prev, b.Prev),
	}
}
