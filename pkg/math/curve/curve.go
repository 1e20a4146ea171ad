// Package curve selects the pairing-friendly curve a run operates on and
// converts between the wire encodings of its field and group elements.
package curve

import (
	"errors"
	"fmt"
	"math/big"
	"sort"
	"strings"

	"github.com/cronokirby/saferith"
	"github.com/drand/kyber"
	bls "github.com/drand/kyber-bls12381"
	"github.com/drand/kyber/pairing"
	"github.com/drand/kyber/pairing/bn256"
)

// Supported curve names.
const (
	BN254    = "bn254"
	BLS12381 = "bls12-381"
)

var (
	ErrUnknownCurve  = errors.New("curve: unknown curve")
	ErrCurveMismatch = errors.New("curve: curve mismatch")
	ErrInvalidScalar = errors.New("curve: invalid scalar")
)

var suites = map[string]func() pairing.Suite{
	BN254:    func() pairing.Suite { return bn256.NewSuite() },
	BLS12381: func() pairing.Suite { return bls.NewBLS12381Suite() },
}

// Curve is a pairing-friendly curve. Field elements are scalars of G1 and
// group elements are points of G1.
type Curve struct {
	name  string
	suite pairing.Suite
	order *saferith.Modulus
}

// Lookup returns the curve registered under name.
func Lookup(name string) (*Curve, error) {
	newSuite, ok := suites[strings.ToLower(name)]
	if !ok {
		return nil, fmt.Errorf("%w: %q (supported: %s)", ErrUnknownCurve, name, strings.Join(Names(), ", "))
	}
	suite := newSuite()

	// -1 mod r is r-1, which recovers the group order without hardcoding it.
	minusOne, err := suite.G1().Scalar().SetInt64(-1).MarshalBinary()
	if err != nil {
		return nil, fmt.Errorf("curve: %s: %w", name, err)
	}
	r := new(big.Int).SetBytes(minusOne)
	r.Add(r, big.NewInt(1))

	return &Curve{
		name:  strings.ToLower(name),
		suite: suite,
		order: saferith.ModulusFromBytes(r.Bytes()),
	}, nil
}

// Names lists the supported curves.
func Names() []string {
	names := make([]string, 0, len(suites))
	for name := range suites {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// Name returns the registry name of the curve.
func (c *Curve) Name() string { return c.name }

// Suite returns the underlying pairing suite.
func (c *Curve) Suite() pairing.Suite { return c.suite }

// Group returns G1, the group all shares live in.
func (c *Curve) Group() kyber.Group { return c.suite.G1() }

// Order returns the order r of the scalar field.
func (c *Curve) Order() *saferith.Modulus { return c.order }

// Check returns ErrCurveMismatch if name does not designate c.
func (c *Curve) Check(name string) error {
	if !strings.EqualFold(name, c.name) {
		return fmt.Errorf("%w: expected %s, got %s", ErrCurveMismatch, c.name, name)
	}
	return nil
}

// ScalarLen returns the length of an encoded scalar.
func (c *Curve) ScalarLen() int { return c.Group().ScalarLen() }

// PointLen returns the length of an encoded point.
func (c *Curve) PointLen() int { return c.Group().PointLen() }

// NewScalar returns the zero scalar.
func (c *Curve) NewScalar() kyber.Scalar { return c.Group().Scalar().Zero() }

// ScalarFromNat reduces n modulo r.
func (c *Curve) ScalarFromNat(n *saferith.Nat) kyber.Scalar {
	reduced := new(saferith.Nat).Mod(n, c.order)
	buf := make([]byte, c.ScalarLen())
	reduced.FillBytes(buf)
	s := c.Group().Scalar()
	if err := s.UnmarshalBinary(buf); err != nil {
		// a value reduced modulo r always decodes
		panic(err)
	}
	return s
}

// ScalarFromUint64 returns v as a field element.
func (c *Curve) ScalarFromUint64(v uint64) kyber.Scalar {
	return c.ScalarFromNat(new(saferith.Nat).SetUint64(v))
}

// ScalarFromBig reduces v modulo r. Negative values map to r - |v|.
func (c *Curve) ScalarFromBig(v *big.Int) kyber.Scalar {
	abs := new(big.Int).Abs(v)
	n := new(saferith.Nat).SetBig(abs, abs.BitLen())
	n.Mod(n, c.order)
	if v.Sign() < 0 {
		n.ModNeg(n, c.order)
	}
	return c.ScalarFromNat(n)
}

// ParseScalar parses a decimal string, or a hexadecimal one prefixed with 0x,
// into a field element. Values outside [0, r) are reduced.
func (c *Curve) ParseScalar(s string) (kyber.Scalar, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return nil, fmt.Errorf("%w: empty string", ErrInvalidScalar)
	}
	v, ok := new(big.Int).SetString(s, 0)
	if !ok {
		return nil, fmt.Errorf("%w: %q", ErrInvalidScalar, s)
	}
	return c.ScalarFromBig(v), nil
}

// FormatScalar renders s as a canonical decimal string. Zero is "0".
func (c *Curve) FormatScalar(s kyber.Scalar) string {
	return c.Big(s).String()
}

// Big returns the canonical integer representative of s.
func (c *Curve) Big(s kyber.Scalar) *big.Int {
	buf, err := s.MarshalBinary()
	if err != nil {
		panic(err)
	}
	return new(big.Int).SetBytes(buf)
}

// ScalarFromBytes decodes a fixed-length big-endian scalar.
func (c *Curve) ScalarFromBytes(b []byte) (kyber.Scalar, error) {
	s := c.Group().Scalar()
	if err := s.UnmarshalBinary(b); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidScalar, err)
	}
	return s, nil
}

// PointFromBytes decodes a G1 point.
func (c *Curve) PointFromBytes(b []byte) (kyber.Point, error) {
	p := c.Group().Point()
	if err := p.UnmarshalBinary(b); err != nil {
		return nil, fmt.Errorf("curve: invalid point: %w", err)
	}
	return p, nil
}

// String implements fmt.Stringer.
func (c *Curve) String() string { return c.name }
