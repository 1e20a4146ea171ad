package share

import (
	"fmt"

	"github.com/drand/kyber"
	"github.com/luxfi/coproof/pkg/party"
)

// Encoded is the serialized form of a Share, suitable for cbor.
type Encoded struct {
	Scheme Scheme   `cbor:"1,keyasint"`
	Owner  party.ID `cbor:"2,keyasint"`
	Value  []byte   `cbor:"3,keyasint"`
	Prev   []byte   `cbor:"4,keyasint,omitempty"`
}

// EncodedPoint is the serialized form of a PointShare.
type EncodedPoint Encoded

// Encode serializes s.
func Encode(s Share) (Encoded, error) {
	e := Encoded{Scheme: s.Scheme, Owner: s.Owner}
	var err error
	if e.Value, err = s.Value.MarshalBinary(); err != nil {
		return e, err
	}
	if s.Prev != nil {
		if e.Prev, err = s.Prev.MarshalBinary(); err != nil {
			return e, err
		}
	}
	return e, nil
}

// Decode deserializes e into a share over g.
func (e Encoded) Decode(g kyber.Group) (Share, error) {
	s := Share{Scheme: e.Scheme, Owner: e.Owner}
	if err := e.check(); err != nil {
		return s, err
	}
	s.Value = g.Scalar()
	if err := s.Value.UnmarshalBinary(e.Value); err != nil {
		return s, fmt.Errorf("share: decoding value: %w", err)
	}
	if e.Prev != nil {
		s.Prev = g.Scalar()
		if err := s.Prev.UnmarshalBinary(e.Prev); err != nil {
			return s, fmt.Errorf("share: decoding previous component: %w", err)
		}
	}
	return s, nil
}

func (e Encoded) check() error {
	switch e.Scheme {
	case REP3:
		if e.Prev == nil {
			return fmt.Errorf("%w: REP3 share without previous component", ErrSchemeMismatch)
		}
	case Shamir:
		if e.Prev != nil {
			return fmt.Errorf("%w: Shamir share with a second component", ErrSchemeMismatch)
		}
	default:
		return fmt.Errorf("%w: unknown scheme %d", ErrSchemeMismatch, uint8(e.Scheme))
	}
	return nil
}

// EncodePoint serializes s.
func EncodePoint(s PointShare) (EncodedPoint, error) {
	e := EncodedPoint{Scheme: s.Scheme, Owner: s.Owner}
	var err error
	if e.Value, err = s.Value.MarshalBinary(); err != nil {
		return e, err
	}
	if s.Prev != nil {
		if e.Prev, err = s.Prev.MarshalBinary(); err != nil {
			return e, err
		}
	}
	return e, nil
}

// Decode deserializes e into a point share over g.
func (e EncodedPoint) Decode(g kyber.Group) (PointShare, error) {
	s := PointShare{Scheme: e.Scheme, Owner: e.Owner}
	if err := Encoded(e).check(); err != nil {
		return s, err
	}
	s.Value = g.Point()
	if err := s.Value.UnmarshalBinary(e.Value); err != nil {
		return s, fmt.Errorf("share: decoding value: %w", err)
	}
	if e.Prev != nil {
		s.Prev = g.Point()
		if err := s.Prev.UnmarshalBinary(e.Prev); err != nil {
			return s, fmt.Errorf("share: decoding previous component: %w", err)
		}
	}
	return s, nil
}

// EncodeAll serializes shares.
func EncodeAll(shares []Share) ([]Encoded, error) {
	out := make([]Encoded, len(shares))
	for i, s := range shares {
		e, err := Encode(s)
		if err != nil {
			return nil, err
		}
		out[i] = e
	}
	return out, nil
}

// DecodeAll deserializes shares over g.
func DecodeAll(g kyber.Group, encoded []Encoded) ([]Share, error) {
	out := make([]Share, len(encoded))
	for i, e := range encoded {
		s, err := e.Decode(g)
		if err != nil {
			return nil, fmt.Errorf("share %d: %w", i, err)
		}
		out[i] = s
	}
	return out, nil
}

// EncodeAllPoints serializes point shares.
func EncodeAllPoints(shares []PointShare) ([]EncodedPoint, error) {
	out := make([]EncodedPoint, len(shares))
	for i, s := range shares {
		e, err := EncodePoint(s)
		if err != nil {
			return nil, err
		}
		out[i] = e
	}
	return out, nil
}

// DecodeAllPoints deserializes point shares over g.
func DecodeAllPoints(g kyber.Group, encoded []EncodedPoint) ([]PointShare, error) {
	out := make([]PointShare, len(encoded))
	for i, e := range encoded {
		s, err := e.Decode(g)
		if err != nil {
			return nil, fmt.Errorf("point share %d: %w", i, err)
		}
		out[i] = s
	}
	return out, nil
}

// EncodeScalars serializes field elements.
func EncodeScalars(xs []kyber.Scalar) ([][]byte, error) {
	out := make([][]byte, len(xs))
	for i, x := range xs {
		b, err := x.MarshalBinary()
		if err != nil {
			return nil, err
		}
		out[i] = b
	}
	return out, nil
}

// DecodeScalars deserializes field elements of g.
func DecodeScalars(g kyber.Group, raw [][]byte) ([]kyber.Scalar, error) {
	out := make([]kyber.Scalar, len(raw))
	for i, b := range raw {
		s := g.Scalar()
		if err := s.UnmarshalBinary(b); err != nil {
			return nil, fmt.Errorf("share: scalar %d: %w", i, err)
		}
		out[i] = s
	}
	return out, nil
}
