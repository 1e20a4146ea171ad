package share

import (
	"crypto/cipher"
	"fmt"

	"github.com/drand/kyber"
	"github.com/luxfi/coproof/pkg/party"
)

// Codec splits values into shares, reconstructs them, and performs the
// local linear operations every party can apply to its own shares.
type Codec interface {
	Scheme() Scheme
	Params() Params
	Group() kyber.Group

	// Share splits secret into one share per party.
	Share(secret kyber.Scalar, rand cipher.Stream) []Share
	// Reconstruct recovers the secret from shares of enough distinct parties.
	Reconstruct(shares []Share) (kyber.Scalar, error)
	// SharePoint splits a group element into one share per party.
	SharePoint(secret kyber.Point, rand cipher.Stream) []PointShare
	// ReconstructPoint recovers a group element from shares of enough distinct parties.
	ReconstructPoint(shares []PointShare) (kyber.Point, error)

	// Zero returns owner's share of the trivial sharing of 0.
	Zero(owner party.ID) Share
	// Public returns owner's share of the trivial sharing of c.
	Public(owner party.ID, c kyber.Scalar) Share
	// Add returns a share of a+b. Both shares must have the same owner.
	Add(a, b Share) Share
	// Sub returns a share of a-b. Both shares must have the same owner.
	Sub(a, b Share) Share
	// AddPublic returns a share of a+c.
	AddPublic(a Share, c kyber.Scalar) Share
	// MulPublic returns a share of a·c.
	MulPublic(a Share, c kyber.Scalar) Share
	// Act returns a share of a·base.
	Act(a Share, base kyber.Point) PointShare
	// AddPoint returns a share of a+b.
	AddPoint(a, b PointShare) PointShare
}

// NewCodec returns the codec for scheme s with parameters p over group g.
// The parameters are validated before anything else happens.
func NewCodec(s Scheme, p Params, g kyber.Group) (Codec, error) {
	if err := p.Validate(s); err != nil {
		return nil, err
	}
	switch s {
	case REP3:
		return &rep3{group: g}, nil
	case Shamir:
		return &shamir{group: g, params: p}, nil
	default:
		return nil, fmt.Errorf("%w: unknown scheme %d", ErrInvalidParameters, uint8(s))
	}
}

// owners validates the scheme and owner of every share and returns the
// distinct owners in ascending order.
func owners(s Scheme, p Params, schemes []Scheme, ids []party.ID) (party.IDSlice, error) {
	if len(ids) == 0 {
		return nil, fmt.Errorf("%w: no shares", ErrInsufficientShares)
	}
	seen := make(map[party.ID]struct{}, len(ids))
	for i, id := range ids {
		if schemes[i] != s {
			return nil, fmt.Errorf("%w: %s share given to a %s codec", ErrSchemeMismatch, schemes[i], s)
		}
		if !id.Valid(p.Parties) {
			return nil, fmt.Errorf("%w: party %s is not one of %d parties", ErrSchemeMismatch, id, p.Parties)
		}
		if _, ok := seen[id]; ok {
			return nil, fmt.Errorf("%w: party %s contributed more than one share", ErrSchemeMismatch, id)
		}
		seen[id] = struct{}{}
	}
	distinct := party.NewIDSlice(ids)
	if len(distinct) < p.ReconstructionSize() {
		return nil, fmt.Errorf("%w: got %d distinct parties, need %d", ErrInsufficientShares, len(distinct), p.ReconstructionSize())
	}
	return distinct, nil
}

func scalarMeta(shares []Share) ([]Scheme, []party.ID) {
	schemes := make([]Scheme, len(shares))
	ids := make([]party.ID, len(shares))
	for i, sh := range shares {
		schemes[i], ids[i] = sh.Scheme, sh.Owner
	}
	return schemes, ids
}

func pointMeta(shares []PointShare) ([]Scheme, []party.ID) {
	schemes := make([]Scheme, len(shares))
	ids := make([]party.ID, len(shares))
	for i, sh := range shares {
		schemes[i], ids[i] = sh.Scheme, sh.Owner
	}
	return schemes, ids
}
