// Package witness classifies witness slots as public or secret and deals
// secret slots to the parties.
package witness

import (
	"crypto/cipher"
	"errors"
	"fmt"
	"sort"

	"github.com/drand/kyber"
	"github.com/luxfi/coproof/pkg/party"
	"github.com/luxfi/coproof/pkg/share"
)

var (
	ErrIndexOutOfBounds = errors.New("witness: public index out of bounds")
	ErrPublicMismatch   = errors.New("witness: parties disagree on a public value")
	ErrLengthMismatch   = errors.New("witness: vectors have different lengths")
)

// PubOrShared is a witness slot holding either a public value or a secret
// share of type S.
type PubOrShared[S any] struct {
	Public kyber.Scalar
	Shared S
}

// Public returns a public slot.
func Public[S any](v kyber.Scalar) PubOrShared[S] {
	return PubOrShared[S]{Public: v}
}

// Shared returns a secret slot.
func Shared[S any](s S) PubOrShared[S] {
	return PubOrShared[S]{Shared: s}
}

// IsPublic reports whether the slot is public.
func (p PubOrShared[S]) IsPublic() bool {
	return p.Public != nil
}

// Vector is one party's share of a witness.
type Vector []PubOrShared[share.Share]

// Dealt is a classified witness: public slots in the clear, secret slots
// already split into one share per party.
type Dealt []PubOrShared[[]share.Share]

// Classify marks the slots at public indices as public and shares every
// other slot with codec.
func Classify(values []kyber.Scalar, public []int, codec share.Codec, rand cipher.Stream) (Dealt, error) {
	isPublic := make(map[int]struct{}, len(public))
	for _, i := range public {
		if i < 0 || i >= len(values) {
			return nil, fmt.Errorf("%w: index %d, witness has %d slots", ErrIndexOutOfBounds, i, len(values))
		}
		isPublic[i] = struct{}{}
	}

	dealt := make(Dealt, len(values))
	for i, v := range values {
		if _, ok := isPublic[i]; ok {
			dealt[i] = Public[[]share.Share](v.Clone())
			continue
		}
		dealt[i] = Shared(codec.Share(v, rand))
	}
	return dealt, nil
}

// Transpose returns the vector of every party. Public slots are copied to
// all of them.
func (d Dealt) Transpose(parties int) []Vector {
	out := make([]Vector, parties)
	for p := range out {
		v := make(Vector, len(d))
		for i, slot := range d {
			if slot.IsPublic() {
				v[i] = Public[share.Share](slot.Public.Clone())
			} else {
				v[i] = Shared(slot.Shared[p])
			}
		}
		out[p] = v
	}
	return out
}

// ShareWitness splits a full witness into one vector per party. The scheme
// parameters are validated before anything is shared.
func ShareWitness(values []kyber.Scalar, public []int, scheme share.Scheme, params share.Params, g kyber.Group, rand cipher.Stream) ([]Vector, error) {
	codec, err := share.NewCodec(scheme, params, g)
	if err != nil {
		return nil, err
	}
	dealt, err := Classify(values, public, codec, rand)
	if err != nil {
		return nil, err
	}
	return dealt.Transpose(params.Parties), nil
}

// ShareInput splits named inputs into one NamedShareMap per party.
func ShareInput(inputs map[string]kyber.Scalar, scheme share.Scheme, params share.Params, g kyber.Group, rand cipher.Stream) ([]share.NamedShareMap, error) {
	codec, err := share.NewCodec(scheme, params, g)
	if err != nil {
		return nil, err
	}
	out := make([]share.NamedShareMap, params.Parties)
	for p := range out {
		out[p] = make(share.NamedShareMap, len(inputs))
	}
	// sorted, so seeded streams give reproducible shares
	names := make([]string, 0, len(inputs))
	for name := range inputs {
		names = append(names, name)
	}
	sort.Strings(names)
	for _, name := range names {
		for p, sh := range codec.Share(inputs[name], rand) {
			out[p][name] = sh
		}
	}
	return out, nil
}

// Shares returns the secret slots of v in order.
func (v Vector) Shares() []share.Share {
	out := make([]share.Share, 0, len(v))
	for _, slot := range v {
		if !slot.IsPublic() {
			out = append(out, slot.Shared)
		}
	}
	return out
}

// PublicValues returns the public slots of v in order.
func (v Vector) PublicValues() []kyber.Scalar {
	var out []kyber.Scalar
	for _, slot := range v {
		if slot.IsPublic() {
			out = append(out, slot.Public)
		}
	}
	return out
}

// Replace returns a copy of v with its secret slots replaced, in order, by
// shares. Public slots are kept.
func (v Vector) Replace(shares []share.Share) (Vector, error) {
	out := make(Vector, len(v))
	next := 0
	for i, slot := range v {
		if slot.IsPublic() {
			out[i] = slot
			continue
		}
		if next == len(shares) {
			return nil, fmt.Errorf("%w: %d replacement shares for more secret slots", ErrLengthMismatch, len(shares))
		}
		out[i] = Shared(shares[next])
		next++
	}
	if next != len(shares) {
		return nil, fmt.Errorf("%w: %d replacement shares for %d secret slots", ErrLengthMismatch, len(shares), next)
	}
	return out, nil
}

// Owner returns the party the secret slots of v belong to, or false if v has
// none.
func (v Vector) Owner() (party.ID, bool) {
	for _, slot := range v {
		if !slot.IsPublic() {
			return slot.Shared.Owner, true
		}
	}
	return 0, false
}

// Open reconstructs the cleartext witness from the vectors of enough parties.
func Open(codec share.Codec, vectors ...Vector) ([]kyber.Scalar, error) {
	if len(vectors) == 0 {
		return nil, fmt.Errorf("%w: no witness shares", share.ErrInsufficientShares)
	}
	n := len(vectors[0])
	for _, v := range vectors[1:] {
		if len(v) != n {
			return nil, ErrLengthMismatch
		}
	}
	out := make([]kyber.Scalar, n)
	shares := make([]share.Share, 0, len(vectors))
	for i := 0; i < n; i++ {
		if vectors[0][i].IsPublic() {
			for _, v := range vectors[1:] {
				if !v[i].IsPublic() || !v[i].Public.Equal(vectors[0][i].Public) {
					return nil, fmt.Errorf("%w: slot %d", ErrPublicMismatch, i)
				}
			}
			out[i] = vectors[0][i].Public.Clone()
			continue
		}
		shares = shares[:0]
		for _, v := range vectors {
			if v[i].IsPublic() {
				return nil, fmt.Errorf("%w: slot %d", ErrPublicMismatch, i)
			}
			shares = append(shares, v[i].Shared)
		}
		value, err := codec.Reconstruct(shares)
		if err != nil {
			return nil, fmt.Errorf("witness: slot %d: %w", i, err)
		}
		out[i] = value
	}
	return out, nil
}
