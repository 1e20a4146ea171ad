// Package circuit loads arithmetic circuit descriptions.
//
// A circuit is a list of wires, numbered from 0, and gates assigning them in
// order. Wire 0 always carries the constant one. Inputs name the wires set by
// the parties' input, and Public lists the wires revealed by solving.
package circuit

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"sort"
	"strings"

	"github.com/drand/kyber"
	"github.com/luxfi/coproof/pkg/math/curve"
	"github.com/zeebo/blake3"
)

const digestContext = "coproof 2024 circuit digest"

// MaxVariables bounds the number of wires of a circuit.
const MaxVariables = 1 << 20

var (
	// ErrInvalidCircuit means the description is inconsistent.
	ErrInvalidCircuit = errors.New("circuit: invalid circuit")
	// ErrUnknownInput means an input was given that the circuit does not use.
	ErrUnknownInput = errors.New("circuit: unknown input")
	// ErrMissingInput means an input wire was left unassigned.
	ErrMissingInput = errors.New("circuit: missing input")
)

// Op is a gate operation.
type Op string

const (
	// OpAdd sets out = in[0] + in[1].
	OpAdd Op = "add"
	// OpSub sets out = in[0] - in[1].
	OpSub Op = "sub"
	// OpMul sets out = in[0] · in[1].
	OpMul Op = "mul"
	// OpAddConst sets out = in[0] + k.
	OpAddConst Op = "addc"
	// OpMulConst sets out = in[0] · k.
	OpMulConst Op = "mulc"
)

func (o Op) arity() (int, bool) {
	switch o {
	case OpAdd, OpSub, OpMul:
		return 2, false
	case OpAddConst, OpMulConst:
		return 1, true
	}
	return 0, false
}

// Gate assigns wire Out.
type Gate struct {
	Op  Op     `json:"op"`
	Out int    `json:"out"`
	In  []int  `json:"in"`
	K   string `json:"k,omitempty"`

	k kyber.Scalar
}

// Const returns the constant of an addc or mulc gate.
func (g *Gate) Const() kyber.Scalar { return g.k }

// Input is a named input. A single wire is addressed by Name, several by
// Name[0], Name[1] and so on.
type Input struct {
	Name  string `json:"name"`
	Wires []int  `json:"wires"`
}

// Keys returns the flattened names of the input's wires.
func (in Input) Keys() []string {
	if len(in.Wires) == 1 {
		return []string{in.Name}
	}
	keys := make([]string, len(in.Wires))
	for i := range keys {
		keys[i] = fmt.Sprintf("%s[%d]", in.Name, i)
	}
	return keys
}

// Circuit is a loaded and validated circuit.
type Circuit struct {
	Curve        string  `json:"curve"`
	NumVariables int     `json:"num_variables"`
	Public       []int   `json:"public"`
	Inputs       []Input `json:"inputs"`
	Gates        []Gate  `json:"gates"`

	curve  *curve.Curve
	digest []byte
	wires  map[string]int
}

// Load reads a circuit from a JSON file.
func Load(path string) (*Circuit, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()
	c, err := Parse(f)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}
	return c, nil
}

// Parse decodes and validates a JSON circuit.
func Parse(r io.Reader) (*Circuit, error) {
	dec := json.NewDecoder(r)
	dec.DisallowUnknownFields()
	var c Circuit
	if err := dec.Decode(&c); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidCircuit, err)
	}
	if err := c.init(); err != nil {
		return nil, err
	}
	return &c, nil
}

func invalid(format string, args ...any) error {
	return fmt.Errorf("%w: %s", ErrInvalidCircuit, fmt.Sprintf(format, args...))
}

func (c *Circuit) init() error {
	var err error
	if c.curve, err = curve.Lookup(c.Curve); err != nil {
		return fmt.Errorf("%w: %w", ErrInvalidCircuit, err)
	}
	c.Curve = c.curve.Name()
	if c.NumVariables < 1 {
		return invalid("needs at least the constant wire")
	}
	if c.NumVariables > MaxVariables {
		return invalid("%d wires, at most %d", c.NumVariables, MaxVariables)
	}

	assigned := make([]bool, c.NumVariables)
	assigned[0] = true
	assign := func(w int, what string) error {
		if w < 0 || w >= c.NumVariables {
			return invalid("%s assigns wire %d of %d", what, w, c.NumVariables)
		}
		if assigned[w] {
			return invalid("%s assigns wire %d twice", what, w)
		}
		assigned[w] = true
		return nil
	}

	c.wires = make(map[string]int)
	for _, in := range c.Inputs {
		if in.Name == "" || len(in.Wires) == 0 {
			return invalid("input %q without wires", in.Name)
		}
		for i, key := range in.Keys() {
			if _, ok := c.wires[key]; ok {
				return invalid("input %q declared twice", key)
			}
			if err := assign(in.Wires[i], "input "+key); err != nil {
				return err
			}
			c.wires[key] = in.Wires[i]
		}
	}

	for i := range c.Gates {
		g := &c.Gates[i]
		n, withConst := g.Op.arity()
		if n == 0 {
			return invalid("gate %d has unknown operation %q", i, g.Op)
		}
		if len(g.In) != n {
			return invalid("gate %d (%s) takes %d inputs, got %d", i, g.Op, n, len(g.In))
		}
		for _, w := range g.In {
			if w < 0 || w >= c.NumVariables || !assigned[w] {
				return invalid("gate %d reads wire %d before it is assigned", i, w)
			}
		}
		switch {
		case withConst:
			if g.k, err = c.curve.ParseScalar(g.K); err != nil {
				return invalid("gate %d: %v", i, err)
			}
		case g.K != "":
			return invalid("gate %d (%s) takes no constant", i, g.Op)
		}
		if err := assign(g.Out, fmt.Sprintf("gate %d", i)); err != nil {
			return err
		}
	}
	for w, ok := range assigned {
		if !ok {
			return invalid("wire %d is never assigned", w)
		}
	}

	seen := make(map[int]bool, len(c.Public))
	for _, w := range c.Public {
		if w < 0 || w >= c.NumVariables || seen[w] {
			return invalid("public wire %d", w)
		}
		seen[w] = true
	}

	canonical, err := json.Marshal(c)
	if err != nil {
		return err
	}
	h := blake3.NewDeriveKey(digestContext)
	_, _ = h.Write(canonical)
	c.digest = h.Sum(nil)
	return nil
}

// Field returns the curve whose scalar field the circuit is defined over.
func (c *Circuit) Field() *curve.Curve { return c.curve }

// Digest identifies the circuit.
func (c *Circuit) Digest() []byte { return bytes.Clone(c.digest) }

// PublicIndices returns the public wires in ascending order.
func (c *Circuit) PublicIndices() []int {
	out := append([]int(nil), c.Public...)
	sort.Ints(out)
	return out
}

// IsPublic reports whether wire w is public.
func (c *Circuit) IsPublic(w int) bool {
	for _, p := range c.Public {
		if p == w {
			return true
		}
	}
	return false
}

// InputKeys returns the flattened input names in declaration order.
func (c *Circuit) InputKeys() []string {
	var keys []string
	for _, in := range c.Inputs {
		keys = append(keys, in.Keys()...)
	}
	return keys
}

// InputWire returns the wire of a flattened input name.
func (c *Circuit) InputWire(key string) (int, bool) {
	w, ok := c.wires[key]
	return w, ok
}

// CheckInputs reports whether keys are exactly the circuit's inputs.
func (c *Circuit) CheckInputs(keys []string) error {
	given := make(map[string]bool, len(keys))
	for _, k := range keys {
		if _, ok := c.wires[k]; !ok {
			return fmt.Errorf("%w: %q", ErrUnknownInput, k)
		}
		given[k] = true
	}
	for _, k := range c.InputKeys() {
		if !given[k] {
			return fmt.Errorf("%w: %q", ErrMissingInput, k)
		}
	}
	return nil
}

// ResolveInputs returns inputs keyed by flattened input names. A one
// element array given for a single wire input, read as name[0], is moved to
// name.
func (c *Circuit) ResolveInputs(inputs map[string]kyber.Scalar) (map[string]kyber.Scalar, error) {
	out := make(map[string]kyber.Scalar, len(inputs))
	for k, v := range inputs {
		key := k
		if _, ok := c.wires[key]; !ok {
			base, cut := strings.CutSuffix(key, "[0]")
			if _, single := c.wires[base]; !cut || !single {
				return nil, fmt.Errorf("%w: %q", ErrUnknownInput, k)
			}
			key = base
		}
		if _, dup := out[key]; dup {
			return nil, fmt.Errorf("%w: %q given twice", ErrUnknownInput, key)
		}
		out[key] = v
	}
	return out, nil
}

// Evaluate computes every wire in the clear from the named inputs.
func (c *Circuit) Evaluate(inputs map[string]kyber.Scalar) ([]kyber.Scalar, error) {
	keys := make([]string, 0, len(inputs))
	for k := range inputs {
		keys = append(keys, k)
	}
	if err := c.CheckInputs(keys); err != nil {
		return nil, err
	}
	g := c.curve.Group()
	w := make([]kyber.Scalar, c.NumVariables)
	w[0] = g.Scalar().One()
	for k, v := range inputs {
		w[c.wires[k]] = g.Scalar().Set(v)
	}
	for i := range c.Gates {
		gate := &c.Gates[i]
		a := w[gate.In[0]]
		switch gate.Op {
		case OpAdd:
			w[gate.Out] = g.Scalar().Add(a, w[gate.In[1]])
		case OpSub:
			w[gate.Out] = g.Scalar().Sub(a, w[gate.In[1]])
		case OpMul:
			w[gate.Out] = g.Scalar().Mul(a, w[gate.In[1]])
		case OpAddConst:
			w[gate.Out] = g.Scalar().Add(a, gate.k)
		case OpMulConst:
			w[gate.Out] = g.Scalar().Mul(a, gate.k)
		}
	}
	return w, nil
}
