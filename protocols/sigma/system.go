package sigma

import (
	"context"
	"crypto/cipher"

	"github.com/drand/kyber"
	"github.com/luxfi/coproof/pkg/circuit"
	"github.com/luxfi/coproof/pkg/math/curve"
	"github.com/luxfi/coproof/pkg/protocol"
	"github.com/luxfi/coproof/pkg/witness"
)

// System exposes the proof system over serialized artifacts.
type System struct{}

// CreateCRS returns a fresh encoded CRS with size generators.
func (System) CreateCRS(c *curve.Curve, size int, rand cipher.Stream) ([]byte, error) {
	crs, err := NewCRS(c, size, rand)
	if err != nil {
		return nil, err
	}
	return crs.MarshalBinary()
}

// Prove derives the proving material of w and runs Prove. It returns the
// encoded proof and its public wires.
func (System) Prove(ctx context.Context, d protocol.Driver, c *circuit.Circuit, w witness.Vector, crsData []byte) ([]byte, []kyber.Scalar, error) {
	crs, err := UnmarshalCRS(crsData)
	if err != nil {
		return nil, nil, d.Session().Abort(err)
	}
	pk, err := NewProvingKey(c, w, crs)
	if err != nil {
		return nil, nil, d.Session().Abort(err)
	}
	proof, err := Prove(ctx, d, pk)
	if err != nil {
		return nil, nil, err
	}
	data, err := proof.MarshalBinary()
	if err != nil {
		return nil, nil, err
	}
	return data, proof.Public, nil
}

// VerifyingKey returns the encoded verifying key of c.
func (System) VerifyingKey(c *circuit.Circuit, crsData []byte) ([]byte, error) {
	crs, err := UnmarshalCRS(crsData)
	if err != nil {
		return nil, err
	}
	vk, err := NewVerifyingKey(c, crs)
	if err != nil {
		return nil, err
	}
	return vk.MarshalBinary()
}

// Verify checks an encoded proof. It fails only if the key or the CRS cannot
// be decoded; a bad proof gives false.
func (System) Verify(proof, vkData, crsData []byte) (bool, error) {
	crs, err := UnmarshalCRS(crsData)
	if err != nil {
		return false, err
	}
	vk, err := UnmarshalVerifyingKey(vkData)
	if err != nil {
		return false, err
	}
	return Verify(crs, vk, proof), nil
}
