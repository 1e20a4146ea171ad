package rep3

import (
	"context"
	"crypto/cipher"
	"fmt"
	"time"

	"github.com/luxfi/coproof/pkg/circuit"
	"github.com/luxfi/coproof/pkg/protocol"
	"github.com/luxfi/coproof/pkg/share"
	"github.com/luxfi/coproof/pkg/witness"
	"go.uber.org/zap"
)

// Solver extends REP3 input shares to a full witness.
type Solver struct{}

// Solve sets up a driver in sess and runs the circuit on inputs.
func (Solver) Solve(ctx context.Context, sess *protocol.Session, c *circuit.Circuit, inputs share.NamedShareMap, rand cipher.Stream) (witness.Vector, error) {
	d, err := NewDriver(ctx, sess, c.Field().Group(), rand)
	if err != nil {
		return nil, err
	}
	return Solve(ctx, d, c, inputs)
}

// Solve evaluates the gates of c over shares. Independent multiplications
// are batched into one round, and the public wires are opened at the end.
func Solve(ctx context.Context, d *Driver, c *circuit.Circuit, inputs share.NamedShareMap) (witness.Vector, error) {
	start := time.Now()
	sess, codec := d.Session(), d.Codec()
	self := sess.SelfID()

	if err := c.CheckInputs(inputs.Keys()); err != nil {
		return nil, sess.Abort(err)
	}
	wires := make([]share.Share, c.NumVariables)
	wires[0] = codec.Public(self, codec.Group().Scalar().One())
	for key, s := range inputs {
		if s.Scheme != share.REP3 || s.Owner != self {
			return nil, sess.Abort(fmt.Errorf("%w: input %q is %s", share.ErrSchemeMismatch, key, s))
		}
		w, _ := c.InputWire(key)
		wires[w] = s
	}

	var pending []*circuit.Gate
	pendingOut := make(map[int]bool)
	rounds := 0
	flush := func() error {
		if len(pending) == 0 {
			return nil
		}
		a := make([]share.Share, len(pending))
		b := make([]share.Share, len(pending))
		for i, g := range pending {
			a[i], b[i] = wires[g.In[0]], wires[g.In[1]]
		}
		products, err := d.Mul(ctx, a, b)
		if err != nil {
			return err
		}
		for i, g := range pending {
			wires[g.Out] = products[i]
		}
		rounds++
		pending = pending[:0]
		clear(pendingOut)
		return nil
	}

	for i := range c.Gates {
		g := &c.Gates[i]
		for _, w := range g.In {
			if pendingOut[w] {
				if err := flush(); err != nil {
					return nil, err
				}
				break
			}
		}
		a := wires[g.In[0]]
		switch g.Op {
		case circuit.OpAdd:
			wires[g.Out] = codec.Add(a, wires[g.In[1]])
		case circuit.OpSub:
			wires[g.Out] = codec.Sub(a, wires[g.In[1]])
		case circuit.OpMul:
			pending = append(pending, g)
			pendingOut[g.Out] = true
		case circuit.OpAddConst:
			wires[g.Out] = codec.AddPublic(a, g.Const())
		case circuit.OpMulConst:
			wires[g.Out] = codec.MulPublic(a, g.Const())
		}
	}
	if err := flush(); err != nil {
		return nil, err
	}

	public := c.PublicIndices()
	toOpen := make([]share.Share, len(public))
	for i, w := range public {
		toOpen[i] = wires[w]
	}
	opened, err := d.Open(ctx, toOpen)
	if err != nil {
		return nil, err
	}

	out := make(witness.Vector, len(wires))
	for i, s := range wires {
		out[i] = witness.Shared(s)
	}
	for i, w := range public {
		out[w] = witness.Public[share.Share](opened[i])
	}
	sess.Logger().Info("witness extended",
		zap.Int("wires", len(wires)),
		zap.Int("multiplication rounds", rounds),
		zap.Duration("duration", time.Since(start)))
	return out, nil
}
