package share

import (
	"fmt"
	"strings"
)

// Scheme identifies a secret-sharing scheme.
type Scheme uint8

const (
	// REP3 is 3-party replicated secret sharing tolerating one corruption.
	REP3 Scheme = iota + 1
	// Shamir is (T, N) polynomial secret sharing.
	Shamir
)

// Schemes lists the supported schemes.
var Schemes = []Scheme{REP3, Shamir}

func (s Scheme) String() string {
	switch s {
	case REP3:
		return "REP3"
	case Shamir:
		return "SHAMIR"
	default:
		return fmt.Sprintf("Scheme(%d)", uint8(s))
	}
}

// ParseScheme parses a scheme name, ignoring case.
func ParseScheme(name string) (Scheme, error) {
	switch strings.ToUpper(strings.TrimSpace(name)) {
	case "REP3":
		return REP3, nil
	case "SHAMIR":
		return Shamir, nil
	default:
		return 0, fmt.Errorf("%w: unknown scheme %q", ErrInvalidParameters, name)
	}
}

// MarshalText implements encoding.TextMarshaler.
func (s Scheme) MarshalText() ([]byte, error) {
	if s != REP3 && s != Shamir {
		return nil, fmt.Errorf("%w: unknown scheme %d", ErrInvalidParameters, uint8(s))
	}
	return []byte(s.String()), nil
}

// UnmarshalText implements encoding.TextUnmarshaler.
func (s *Scheme) UnmarshalText(text []byte) error {
	parsed, err := ParseScheme(string(text))
	if err != nil {
		return err
	}
	*s = parsed
	return nil
}

// Params are the party count and corruption threshold of a sharing.
// Reconstruction needs Threshold+1 parties.
type Params struct {
	Parties   int
	Threshold int
}

// DefaultParams are the only legal parameters for REP3 and the smallest
// honest-majority configuration for Shamir.
func DefaultParams() Params {
	return Params{Parties: 3, Threshold: 1}
}

// Validate checks p against the requirements of s.
func (p Params) Validate(s Scheme) error {
	switch s {
	case REP3:
		if p.Parties != 3 || p.Threshold != 1 {
			return fmt.Errorf("%w: REP3 requires 3 parties and threshold 1, got %d parties and threshold %d",
				ErrInvalidParameters, p.Parties, p.Threshold)
		}
	case Shamir:
		if p.Threshold < 1 || p.Threshold >= p.Parties {
			return fmt.Errorf("%w: SHAMIR requires 1 <= threshold < parties, got %d parties and threshold %d",
				ErrInvalidParameters, p.Parties, p.Threshold)
		}
	default:
		return fmt.Errorf("%w: unknown scheme %d", ErrInvalidParameters, uint8(s))
	}
	return nil
}

// ReconstructionSize returns the number of distinct parties needed to reconstruct.
func (p Params) ReconstructionSize() int {
	return p.Threshold + 1
}
