package artifact

import (
	"fmt"
	"os"

	"github.com/fxamacker/cbor/v2"
	"github.com/luxfi/coproof/pkg/math/curve"
	"github.com/luxfi/coproof/pkg/party"
	"github.com/luxfi/coproof/pkg/share"
	"github.com/luxfi/coproof/pkg/witness"
)

const version = 1

// Kind is the content of a share file.
type Kind uint8

const (
	KindInput Kind = iota + 1
	KindWitness
)

func (k Kind) String() string {
	switch k {
	case KindInput:
		return "input"
	case KindWitness:
		return "witness"
	}
	return fmt.Sprintf("kind(%d)", uint8(k))
}

// Header describes the shares of a share file.
type Header struct {
	Version   int          `cbor:"1,keyasint"`
	Kind      Kind         `cbor:"2,keyasint"`
	Curve     string       `cbor:"3,keyasint"`
	Scheme    share.Scheme `cbor:"4,keyasint"`
	Parties   int          `cbor:"5,keyasint"`
	Threshold int          `cbor:"6,keyasint"`
	Owner     party.ID     `cbor:"7,keyasint"`
}

// Params returns the sharing parameters of the file.
func (h Header) Params() share.Params {
	return share.Params{Parties: h.Parties, Threshold: h.Threshold}
}

type slot struct {
	Public []byte         `cbor:"1,keyasint,omitempty"`
	Shared *share.Encoded `cbor:"2,keyasint,omitempty"`
}

type file struct {
	Header  Header                   `cbor:"1,keyasint"`
	Inputs  map[string]share.Encoded `cbor:"2,keyasint,omitempty"`
	Witness []slot                   `cbor:"3,keyasint,omitempty"`
}

func (h Header) check(c *curve.Curve, kind Kind) error {
	switch {
	case h.Version != version:
		return fmt.Errorf("%w: version %d", ErrMalformed, h.Version)
	case h.Kind != kind:
		return fmt.Errorf("%w: %s shares where %s shares are expected", ErrMalformed, h.Kind, kind)
	}
	if err := c.Check(h.Curve); err != nil {
		return err
	}
	return h.Params().Validate(h.Scheme)
}

func readFile(path string, c *curve.Curve, kind Kind) (*file, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	var f file
	if err := cbor.Unmarshal(data, &f); err != nil {
		return nil, fmt.Errorf("%s: %w: %v", path, ErrMalformed, err)
	}
	if err := f.Header.check(c, kind); err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}
	return &f, nil
}

// malformed reports a share file whose content does not decode.
func malformed(path, where string, err error) error {
	return fmt.Errorf("%s: %w: %s: %v", path, ErrMalformed, where, err)
}

func checkShare(h Header, s share.Share) error {
	if s.Scheme != h.Scheme || s.Owner != h.Owner {
		return fmt.Errorf("%w: %s in a file of %s shares of party %s", share.ErrSchemeMismatch, s, h.Scheme, h.Owner)
	}
	return nil
}

// WriteInputShares writes a party's named input shares.
func WriteInputShares(path string, h Header, m share.NamedShareMap) error {
	h.Version, h.Kind = version, KindInput
	f := file{Header: h, Inputs: make(map[string]share.Encoded, len(m))}
	for k, s := range m {
		if err := checkShare(h, s); err != nil {
			return err
		}
		enc, err := share.Encode(s)
		if err != nil {
			return err
		}
		f.Inputs[k] = enc
	}
	data, err := cbor.Marshal(&f)
	if err != nil {
		return err
	}
	return WriteSecret(path, data)
}

// ReadInputShares reads a file written by WriteInputShares.
func ReadInputShares(path string, c *curve.Curve) (Header, share.NamedShareMap, error) {
	f, err := readFile(path, c, KindInput)
	if err != nil {
		return Header{}, nil, err
	}
	m := make(share.NamedShareMap, len(f.Inputs))
	for k, enc := range f.Inputs {
		where := fmt.Sprintf("input %q", k)
		s, err := enc.Decode(c.Group())
		if err != nil {
			return Header{}, nil, malformed(path, where, err)
		}
		if err := checkShare(f.Header, s); err != nil {
			return Header{}, nil, malformed(path, where, err)
		}
		m[k] = s
	}
	return f.Header, m, nil
}

// WriteWitnessShares writes a party's witness vector.
func WriteWitnessShares(path string, h Header, v witness.Vector) error {
	h.Version, h.Kind = version, KindWitness
	f := file{Header: h, Witness: make([]slot, len(v))}
	for i, s := range v {
		if s.IsPublic() {
			b, err := s.Public.MarshalBinary()
			if err != nil {
				return err
			}
			f.Witness[i].Public = b
			continue
		}
		if err := checkShare(h, s.Shared); err != nil {
			return err
		}
		enc, err := share.Encode(s.Shared)
		if err != nil {
			return err
		}
		f.Witness[i].Shared = &enc
	}
	data, err := cbor.Marshal(&f)
	if err != nil {
		return err
	}
	return WriteSecret(path, data)
}

// ReadWitnessShares reads a file written by WriteWitnessShares.
func ReadWitnessShares(path string, c *curve.Curve) (Header, witness.Vector, error) {
	f, err := readFile(path, c, KindWitness)
	if err != nil {
		return Header{}, nil, err
	}
	v := make(witness.Vector, len(f.Witness))
	for i, sl := range f.Witness {
		switch {
		case sl.Shared != nil && sl.Public == nil:
			s, err := sl.Shared.Decode(c.Group())
			if err != nil {
				return Header{}, nil, malformed(path, fmt.Sprintf("slot %d", i), err)
			}
			if err := checkShare(f.Header, s); err != nil {
				return Header{}, nil, malformed(path, fmt.Sprintf("slot %d", i), err)
			}
			v[i] = witness.Shared(s)
		case sl.Shared == nil && sl.Public != nil:
			x, err := c.ScalarFromBytes(sl.Public)
			if err != nil {
				return Header{}, nil, malformed(path, fmt.Sprintf("slot %d", i), err)
			}
			v[i] = witness.Public[share.Share](x)
		default:
			return Header{}, nil, fmt.Errorf("%s: %w: slot %d is neither public nor shared", path, ErrMalformed, i)
		}
	}
	return f.Header, v, nil
}
