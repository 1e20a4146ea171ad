package artifact

import (
	"bytes"
	"encoding/json"
	"fmt"
	"io"
	"os"

	"github.com/drand/kyber"
	"github.com/luxfi/coproof/pkg/math/curve"
)

// ReadWitness reads a cleartext witness: a JSON array of numbers or decimal
// or hexadecimal strings.
func ReadWitness(path string, c *curve.Curve) ([]kyber.Scalar, error) {
	raw, err := decodeFile(path)
	if err != nil {
		return nil, err
	}
	list, ok := raw.([]any)
	if !ok {
		return nil, fmt.Errorf("%s: %w: witness is not a JSON array", path, ErrMalformed)
	}
	out := make([]kyber.Scalar, len(list))
	for i, v := range list {
		if out[i], err = scalar(c, v); err != nil {
			return nil, fmt.Errorf("%s: %w: slot %d: %v", path, ErrMalformed, i, err)
		}
	}
	return out, nil
}

// ReadInput reads a cleartext input: a JSON object whose values are
// numbers, strings or nested arrays of them. Arrays are flattened in
// row-major order into the keys name[0], name[1] and so on.
func ReadInput(path string, c *curve.Curve) (map[string]kyber.Scalar, error) {
	raw, err := decodeFile(path)
	if err != nil {
		return nil, err
	}
	obj, ok := raw.(map[string]any)
	if !ok {
		return nil, fmt.Errorf("%s: %w: input is not a JSON object", path, ErrMalformed)
	}
	out := make(map[string]kyber.Scalar)
	for name, v := range obj {
		list, isList := v.([]any)
		if !isList {
			if out[name], err = scalar(c, v); err != nil {
				return nil, fmt.Errorf("%s: %w: input %q: %v", path, ErrMalformed, name, err)
			}
			continue
		}
		var flat []any
		flatten(list, &flat)
		for i, x := range flat {
			key := fmt.Sprintf("%s[%d]", name, i)
			if out[key], err = scalar(c, x); err != nil {
				return nil, fmt.Errorf("%s: %w: input %q: %v", path, ErrMalformed, key, err)
			}
		}
	}
	return out, nil
}

func flatten(list []any, out *[]any) {
	for _, v := range list {
		if inner, ok := v.([]any); ok {
			flatten(inner, out)
			continue
		}
		*out = append(*out, v)
	}
}

func decodeFile(path string) (any, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	dec := json.NewDecoder(bytes.NewReader(data))
	dec.UseNumber()
	var v any
	if err := dec.Decode(&v); err != nil {
		return nil, fmt.Errorf("%s: %w: %v", path, ErrMalformed, err)
	}
	if _, err := dec.Token(); err != io.EOF {
		return nil, fmt.Errorf("%s: %w: trailing data", path, ErrMalformed)
	}
	return v, nil
}

func scalar(c *curve.Curve, v any) (kyber.Scalar, error) {
	switch x := v.(type) {
	case json.Number:
		return c.ParseScalar(x.String())
	case string:
		return c.ParseScalar(x)
	}
	return nil, fmt.Errorf("unexpected %T", v)
}

// FormatValues renders values as a JSON array of decimal strings. Zero is
// written as "0".
func FormatValues(c *curve.Curve, values []kyber.Scalar) ([]byte, error) {
	out := make([]string, len(values))
	for i, v := range values {
		out[i] = c.FormatScalar(v)
	}
	data, err := json.MarshalIndent(out, "", "  ")
	if err != nil {
		return nil, err
	}
	return append(data, '\n'), nil
}

// WritePublicInputs writes the public input listing.
func WritePublicInputs(path string, c *curve.Curve, values []kyber.Scalar) error {
	data, err := FormatValues(c, values)
	if err != nil {
		return err
	}
	return WritePublic(path, data)
}

// WriteWitness writes a cleartext witness in the format ReadWitness reads.
func WriteWitness(path string, c *curve.Curve, values []kyber.Scalar) error {
	data, err := FormatValues(c, values)
	if err != nil {
		return err
	}
	return WriteSecret(path, data)
}
