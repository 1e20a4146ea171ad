package sigma

import (
	"bytes"
	"errors"
	"fmt"

	"github.com/drand/kyber"
	"github.com/fxamacker/cbor/v2"
	"github.com/luxfi/coproof/pkg/circuit"
	"github.com/luxfi/coproof/pkg/witness"
)

var (
	// ErrWitnessMismatch means a witness does not fit the circuit.
	ErrWitnessMismatch = errors.New("sigma: witness does not match circuit")
	// ErrInvalidKey means a verifying key could not be used.
	ErrInvalidKey = errors.New("sigma: invalid verifying key")
)

// ProvingKey is one party's proving material.
type ProvingKey struct {
	crs        *CRS
	digest     []byte
	witness    witness.Vector
	generators []kyber.Point
}

// NewProvingKey checks that w fits c and binds it to the generators of crs.
func NewProvingKey(c *circuit.Circuit, w witness.Vector, crs *CRS) (*ProvingKey, error) {
	if crs.Curve != c.Field().Name() {
		return nil, fmt.Errorf("%w: crs over %s, circuit over %s", ErrInvalidCRS, crs.Curve, c.Field().Name())
	}
	if len(w) != c.NumVariables {
		return nil, fmt.Errorf("%w: %d wires, circuit has %d", ErrWitnessMismatch, len(w), c.NumVariables)
	}
	for i, slot := range w {
		if slot.IsPublic() != c.IsPublic(i) {
			return nil, fmt.Errorf("%w: wire %d visibility", ErrWitnessMismatch, i)
		}
	}
	if _, ok := w.Owner(); !ok && len(w.Shares()) > 0 {
		return nil, ErrWitnessMismatch
	}
	gens, err := crs.Generators(len(w.Shares()))
	if err != nil {
		return nil, err
	}
	return &ProvingKey{crs: crs, digest: c.Digest(), witness: w, generators: gens}, nil
}

// VerifyingKey is what a verifier needs besides the CRS.
type VerifyingKey struct {
	Curve        string `cbor:"1,keyasint"`
	Circuit      []byte `cbor:"2,keyasint"`
	NumVariables int    `cbor:"3,keyasint"`
	Public       []int  `cbor:"4,keyasint"`
	CRS          []byte `cbor:"5,keyasint"`
}

// plainKey has the fields of VerifyingKey without its methods.
type plainKey VerifyingKey

// NewVerifyingKey derives the verifying key of c. It is deterministic.
func NewVerifyingKey(c *circuit.Circuit, crs *CRS) (*VerifyingKey, error) {
	if crs.Curve != c.Field().Name() {
		return nil, fmt.Errorf("%w: crs over %s, circuit over %s", ErrInvalidCRS, crs.Curve, c.Field().Name())
	}
	public := c.PublicIndices()
	if _, err := crs.Generators(c.NumVariables - len(public)); err != nil {
		return nil, err
	}
	return &VerifyingKey{
		Curve:        c.Field().Name(),
		Circuit:      c.Digest(),
		NumVariables: c.NumVariables,
		Public:       public,
		CRS:          bytes.Clone(crs.Seed),
	}, nil
}

// Secret returns the number of secret wires.
func (vk *VerifyingKey) Secret() int { return vk.NumVariables - len(vk.Public) }

// MarshalBinary encodes the key.
func (vk *VerifyingKey) MarshalBinary() ([]byte, error) {
	return cbor.Marshal((*plainKey)(vk))
}

// UnmarshalVerifyingKey decodes a key.
func UnmarshalVerifyingKey(data []byte) (*VerifyingKey, error) {
	var vk VerifyingKey
	if err := cbor.Unmarshal(data, (*plainKey)(&vk)); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidKey, err)
	}
	if vk.NumVariables < len(vk.Public) || len(vk.Circuit) == 0 {
		return nil, fmt.Errorf("%w: %d wires, %d public", ErrInvalidKey, vk.NumVariables, len(vk.Public))
	}
	return &vk, nil
}
