// Package polynomial implements interpolation over a prime field.
package polynomial

import (
	"github.com/drand/kyber"
	"github.com/luxfi/coproof/pkg/party"
)

// Lagrange returns the Lagrange coefficients at 0 for all parties in interpolationDomain.
// The evaluation point of party i is i+1, and the IDs must be distinct.
func Lagrange(group kyber.Group, interpolationDomain []party.ID) map[party.ID]kyber.Scalar {
	coefs := make(map[party.ID]kyber.Scalar, len(interpolationDomain))
	for _, j := range interpolationDomain {
		coefs[j] = LagrangeFor(group, interpolationDomain, j)
	}
	return coefs
}

// LagrangeFor returns the Lagrange coefficient at 0 of j with respect to interpolationDomain.
//
//	lⱼ(0) = ∏ xₘ / (xₘ - xⱼ), over all m ≠ j.
func LagrangeFor(group kyber.Group, interpolationDomain []party.ID, j party.ID) kyber.Scalar {
	xj := j.Scalar(group)
	num := group.Scalar().One()
	den := group.Scalar().One()
	diff := group.Scalar()
	for _, m := range interpolationDomain {
		if m == j {
			continue
		}
		xm := m.Scalar(group)
		num.Mul(num, xm)
		diff.Sub(xm, xj)
		den.Mul(den, diff)
	}
	return num.Div(num, den)
}

// InterpolateScalar returns f(0) for the polynomial f with f(xᵢ) = values[i].
func InterpolateScalar(group kyber.Group, values map[party.ID]kyber.Scalar) kyber.Scalar {
	domain := make([]party.ID, 0, len(values))
	for id := range values {
		domain = append(domain, id)
	}
	coefs := Lagrange(group, domain)
	acc := group.Scalar().Zero()
	term := group.Scalar()
	for id, v := range values {
		acc.Add(acc, term.Mul(coefs[id], v))
	}
	return acc
}

// InterpolatePoint returns f(0) for the polynomial f with point values.
func InterpolatePoint(group kyber.Group, values map[party.ID]kyber.Point) kyber.Point {
	domain := make([]party.ID, 0, len(values))
	for id := range values {
		domain = append(domain, id)
	}
	coefs := Lagrange(group, domain)
	acc := group.Point().Null()
	term := group.Point()
	for id, v := range values {
		acc.Add(acc, term.Mul(coefs[id], v))
	}
	return acc
}
