// Package sigma is a collaborative Fiat-Shamir proof of knowledge of the
// secret part of a witness.
//
// The prover commits to the secret wires w₁..wₘ as C = Σ wᵢ·Gᵢ + ρ·H under
// generators of the common reference string and proves knowledge of the
// opening. Proving runs over any protocol.Driver: nonces are random
// sharings, and only the commitments and responses are opened. The proof
// binds the circuit and the public wires through the challenge, but does not
// check the circuit's gates.
package sigma

import (
	"crypto/cipher"
	"errors"
	"fmt"

	"github.com/drand/kyber"
	"github.com/fxamacker/cbor/v2"
	"github.com/luxfi/coproof/pkg/circuit"
	"github.com/luxfi/coproof/pkg/math/curve"
	"github.com/luxfi/coproof/pkg/math/sample"
)

const crsContext = "coproof 2024 sigma crs"

var (
	// ErrCRSTooSmall means the CRS has fewer generators than the circuit
	// has secret wires.
	ErrCRSTooSmall = errors.New("sigma: crs too small for circuit")
	// ErrInvalidCRS means a CRS file could not be used.
	ErrInvalidCRS = errors.New("sigma: invalid crs")
)

// CRS is the common reference string: a seed from which independent
// generators are derived.
type CRS struct {
	Curve string `cbor:"1,keyasint"`
	Size  int    `cbor:"2,keyasint"`
	Seed  []byte `cbor:"3,keyasint"`

	field      *curve.Curve
	generators []kyber.Point
}

// plainCRS has the fields of CRS without its methods, so that cbor encodes
// the struct instead of calling MarshalBinary.
type plainCRS CRS

// NewCRS draws a fresh seed and derives size generators plus the blinding
// generator.
func NewCRS(c *curve.Curve, size int, rand cipher.Stream) (*CRS, error) {
	if size < 1 {
		return nil, fmt.Errorf("%w: size %d", ErrInvalidCRS, size)
	}
	crs := &CRS{Curve: c.Name(), Size: size, Seed: sample.Seed(rand)}
	if err := crs.init(); err != nil {
		return nil, err
	}
	return crs, nil
}

// hashablePoint is implemented by groups with a hash-to-curve map.
type hashablePoint interface {
	Hash([]byte) kyber.Point
}

func (crs *CRS) init() error {
	var err error
	if crs.field, err = curve.Lookup(crs.Curve); err != nil {
		return fmt.Errorf("%w: %w", ErrInvalidCRS, err)
	}
	crs.Curve = crs.field.Name()
	if crs.Size < 1 || crs.Size > circuit.MaxVariables || len(crs.Seed) != 32 {
		return fmt.Errorf("%w: size %d, seed of %d bytes", ErrInvalidCRS, crs.Size, len(crs.Seed))
	}
	g := crs.field.Group()
	crs.generators = make([]kyber.Point, crs.Size+1)
	for i := range crs.generators {
		label := fmt.Sprintf("%s/%s/%d", crsContext, crs.Curve, i)
		if h, ok := g.Point().(hashablePoint); ok {
			crs.generators[i] = h.Hash(append(append([]byte(nil), crs.Seed...), label...))
			continue
		}
		crs.generators[i] = g.Point().Pick(sample.Stream(crs.Seed, label))
	}
	return nil
}

// Field returns the curve of the CRS.
func (crs *CRS) Field() *curve.Curve { return crs.field }

// Generators returns the first n generators.
func (crs *CRS) Generators(n int) ([]kyber.Point, error) {
	if n > crs.Size {
		return nil, fmt.Errorf("%w: need %d generators, crs has %d", ErrCRSTooSmall, n, crs.Size)
	}
	return crs.generators[:n:n], nil
}

// Blinding returns the generator H.
func (crs *CRS) Blinding() kyber.Point { return crs.generators[crs.Size] }

// MarshalBinary encodes the CRS.
func (crs *CRS) MarshalBinary() ([]byte, error) {
	return cbor.Marshal((*plainCRS)(crs))
}

// UnmarshalCRS decodes a CRS and derives its generators.
func UnmarshalCRS(data []byte) (*CRS, error) {
	var crs CRS
	if err := cbor.Unmarshal(data, (*plainCRS)(&crs)); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidCRS, err)
	}
	if err := crs.init(); err != nil {
		return nil, err
	}
	return &crs, nil
}
