// Package share implements REP3 and Shamir secret sharing of field and group
// elements, and the merging of named input shares.
package share

import (
	"fmt"

	"github.com/drand/kyber"
	"github.com/luxfi/coproof/pkg/party"
)

// Share is one party's share of a field element.
//
// For REP3 the secret v is split into additive components x0, x1, x2 and
// party i holds Value = xᵢ and Prev = xᵢ₋₁. For Shamir, Value = f(i+1) and
// Prev is nil.
type Share struct {
	Scheme Scheme
	Owner  party.ID
	Value  kyber.Scalar
	Prev   kyber.Scalar
}

// PointShare is one party's share of a group element, laid out like Share.
type PointShare struct {
	Scheme Scheme
	Owner  party.ID
	Value  kyber.Point
	Prev   kyber.Point
}

func (s Share) String() string {
	return fmt.Sprintf("%s share of party %s", s.Scheme, s.Owner)
}

func (s PointShare) String() string {
	return fmt.Sprintf("%s point share of party %s", s.Scheme, s.Owner)
}
