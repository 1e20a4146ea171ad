package sigma

import (
	"encoding/binary"
	"errors"
	"fmt"

	"github.com/drand/kyber"
	"github.com/luxfi/coproof/pkg/math/curve"
)

// ErrMalformedProof means a proof could not be decoded.
var ErrMalformedProof = errors.New("sigma: malformed proof")

// Proof is a transcript (C, T, z) together with the public wires it binds.
type Proof struct {
	Public    []kyber.Scalar
	Committed kyber.Point
	Nonce     kyber.Point
	Responses []kyber.Scalar
}

// MarshalBinary encodes p as
//
//	u32 #public ‖ public ‖ C ‖ T ‖ u32 #responses ‖ responses
//
// with fixed-size big-endian scalars and compressed points.
func (p *Proof) MarshalBinary() ([]byte, error) {
	var out []byte
	appendScalars := func(xs []kyber.Scalar) error {
		out = binary.BigEndian.AppendUint32(out, uint32(len(xs)))
		for _, x := range xs {
			b, err := x.MarshalBinary()
			if err != nil {
				return err
			}
			out = append(out, b...)
		}
		return nil
	}
	if err := appendScalars(p.Public); err != nil {
		return nil, err
	}
	for _, pt := range []kyber.Point{p.Committed, p.Nonce} {
		b, err := pt.MarshalBinary()
		if err != nil {
			return nil, err
		}
		out = append(out, b...)
	}
	if err := appendScalars(p.Responses); err != nil {
		return nil, err
	}
	return out, nil
}

type reader struct {
	data []byte
	err  error
}

func (r *reader) next(n int) []byte {
	if r.err != nil {
		return nil
	}
	if n < 0 || n > len(r.data) {
		r.err = fmt.Errorf("%w: truncated", ErrMalformedProof)
		return nil
	}
	b := r.data[:n]
	r.data = r.data[n:]
	return b
}

func (r *reader) scalars(c *curve.Curve) []kyber.Scalar {
	head := r.next(4)
	if r.err != nil {
		return nil
	}
	n := binary.BigEndian.Uint32(head)
	if uint64(n)*uint64(c.ScalarLen()) > uint64(len(r.data)) {
		r.err = fmt.Errorf("%w: %d scalars announced, %d bytes left", ErrMalformedProof, n, len(r.data))
		return nil
	}
	out := make([]kyber.Scalar, n)
	for i := range out {
		b := r.next(c.ScalarLen())
		if r.err != nil {
			return nil
		}
		if out[i], r.err = c.ScalarFromBytes(b); r.err != nil {
			return nil
		}
	}
	return out
}

func (r *reader) point(c *curve.Curve) kyber.Point {
	b := r.next(c.PointLen())
	if r.err != nil {
		return nil
	}
	var p kyber.Point
	p, r.err = c.PointFromBytes(b)
	return p
}

// UnmarshalProof decodes a proof over c.
func UnmarshalProof(c *curve.Curve, data []byte) (*Proof, error) {
	r := &reader{data: data}
	p := &Proof{}
	p.Public = r.scalars(c)
	p.Committed = r.point(c)
	p.Nonce = r.point(c)
	p.Responses = r.scalars(c)
	if r.err != nil {
		return nil, fmt.Errorf("%w: %w", ErrMalformedProof, r.err)
	}
	if len(r.data) != 0 {
		return nil, fmt.Errorf("%w: %d trailing bytes", ErrMalformedProof, len(r.data))
	}
	return p, nil
}
