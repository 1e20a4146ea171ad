package pipeline

import (
	"fmt"

	"github.com/drand/kyber"
	"github.com/luxfi/coproof/pkg/artifact"
	"github.com/luxfi/coproof/pkg/circuit"
	"github.com/luxfi/coproof/pkg/math/curve"
	"github.com/luxfi/coproof/pkg/party"
	"github.com/luxfi/coproof/pkg/share"
	"github.com/luxfi/coproof/pkg/witness"
	"go.uber.org/zap"
)

// SplitRequest shares a cleartext witness or input among the parties.
type SplitRequest struct {
	// Values is the cleartext witness or input file.
	Values  string
	Circuit string
	// Out is the base name of the share files.
	Out    string
	Scheme share.Scheme
	// Params may be left zero for REP3.
	Params share.Params
}

// MergeRequest combines the input shares several contributors dealt to one
// party.
type MergeRequest struct {
	Inputs []string
	Out    string
	// Curve defaults to bn254.
	Curve string
}

// resolve fills in the REP3 parameters and validates the result.
func resolve(s share.Scheme, p share.Params) (share.Params, error) {
	if s == share.REP3 && p == (share.Params{}) {
		p = share.DefaultParams()
	}
	return p, p.Validate(s)
}

func lookup(name string) (*curve.Curve, error) {
	if name == "" {
		name = curve.BN254
	}
	return curve.Lookup(name)
}

func sharePaths(base string, n int) []string {
	out := make([]string, n)
	for i := range out {
		out[i] = artifact.SharePath(base, i)
	}
	return out
}

func header(c *curve.Curve, s share.Scheme, p share.Params, owner party.ID) artifact.Header {
	return artifact.Header{Curve: c.Name(), Scheme: s, Parties: p.Parties, Threshold: p.Threshold, Owner: owner}
}

// SplitWitness shares a full witness. Public wires of the circuit stay in the
// clear. It returns the paths of the share files, one per party.
func (o *Orchestrator) SplitWitness(req SplitRequest) ([]string, error) {
	paths, err := o.splitWitness(req)
	return paths, fail(SplitWitness, err)
}

func (o *Orchestrator) splitWitness(req SplitRequest) ([]string, error) {
	params, err := resolve(req.Scheme, req.Params)
	if err != nil {
		return nil, err
	}
	if err := nonEmpty(map[string]string{"witness": req.Values, "circuit": req.Circuit, "output": req.Out}); err != nil {
		return nil, err
	}
	if err := requireArtifacts(req.Values, req.Circuit); err != nil {
		return nil, err
	}
	outs := sharePaths(req.Out, params.Parties)
	defer o.locks.acquire([]string{req.Values, req.Circuit}, outs)()

	log := o.logger(SplitWitness).With(zap.Stringer("scheme", req.Scheme))
	log.Info("splitting witness", zap.String("path", req.Values))
	c, err := circuit.Load(req.Circuit)
	if err != nil {
		return nil, err
	}
	values, err := artifact.ReadWitness(req.Values, c.Field())
	if err != nil {
		return nil, err
	}
	if len(values) != c.NumVariables {
		return nil, fmt.Errorf("%s: %w: %d values for %d wires", req.Values, artifact.ErrMalformed, len(values), c.NumVariables)
	}

	var vectors []witness.Vector
	err = timed(log, "witness shared", func() (err error) {
		vectors, err = witness.ShareWitness(values, c.PublicIndices(), req.Scheme, params, c.Field().Group(), o.rand(SplitWitness))
		return err
	})
	if err != nil {
		return nil, err
	}
	for i, v := range vectors {
		if err := artifact.WriteWitnessShares(outs[i], header(c.Field(), req.Scheme, params, party.ID(i)), v); err != nil {
			return nil, err
		}
		log.Info("wrote share file", zap.String("path", outs[i]))
	}
	return outs, nil
}

// SplitInput shares a party's named inputs. Every name must be an input of
// the circuit; a contributor may provide a subset only.
func (o *Orchestrator) SplitInput(req SplitRequest) ([]string, error) {
	paths, err := o.splitInput(req)
	return paths, fail(SplitInput, err)
}

func (o *Orchestrator) splitInput(req SplitRequest) ([]string, error) {
	params, err := resolve(req.Scheme, req.Params)
	if err != nil {
		return nil, err
	}
	if err := nonEmpty(map[string]string{"input": req.Values, "circuit": req.Circuit, "output": req.Out}); err != nil {
		return nil, err
	}
	if err := requireArtifacts(req.Values, req.Circuit); err != nil {
		return nil, err
	}
	outs := sharePaths(req.Out, params.Parties)
	defer o.locks.acquire([]string{req.Values, req.Circuit}, outs)()

	log := o.logger(SplitInput).With(zap.Stringer("scheme", req.Scheme))
	log.Info("splitting input", zap.String("path", req.Values))
	c, err := circuit.Load(req.Circuit)
	if err != nil {
		return nil, err
	}
	values, err := artifact.ReadInput(req.Values, c.Field())
	if err != nil {
		return nil, err
	}
	inputs, err := c.ResolveInputs(values)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", req.Values, err)
	}

	var maps []share.NamedShareMap
	err = timed(log, "input shared", func() (err error) {
		maps, err = witness.ShareInput(inputs, req.Scheme, params, c.Field().Group(), o.rand(SplitInput))
		return err
	})
	if err != nil {
		return nil, err
	}
	for i, m := range maps {
		if err := artifact.WriteInputShares(outs[i], header(c.Field(), req.Scheme, params, party.ID(i)), m); err != nil {
			return nil, err
		}
		log.Info("wrote share file", zap.String("path", outs[i]))
	}
	return outs, nil
}

// MergeInputShares merges input share files of one party. All files must
// hold shares of the same party under the same scheme, and no name may be
// contributed twice.
func (o *Orchestrator) MergeInputShares(req MergeRequest) error {
	return fail(MergeInputShares, o.mergeInputShares(req))
}

func (o *Orchestrator) mergeInputShares(req MergeRequest) error {
	if len(req.Inputs) < 2 {
		return fmt.Errorf("%w: merging needs at least 2 share files, got %d", share.ErrTooFewContributors, len(req.Inputs))
	}
	c, err := lookup(req.Curve)
	if err != nil {
		return err
	}
	if err := nonEmpty(map[string]string{"output": req.Out}); err != nil {
		return err
	}
	if err := requireArtifacts(req.Inputs...); err != nil {
		return err
	}
	defer o.locks.acquire(req.Inputs, []string{req.Out})()

	log := o.logger(MergeInputShares)
	var first artifact.Header
	maps := make([]share.NamedShareMap, len(req.Inputs))
	for i, path := range req.Inputs {
		h, m, err := artifact.ReadInputShares(path, c)
		if err != nil {
			return err
		}
		if i == 0 {
			first = h
		} else if h != first {
			return fmt.Errorf("%s: %w: shares of party %s under %s, expected party %s under %s",
				path, share.ErrSchemeMismatch, h.Owner, h.Scheme, first.Owner, first.Scheme)
		}
		maps[i] = m
	}

	var merged share.NamedShareMap
	err = timed(log, "input shares merged", func() (err error) {
		merged, err = share.Merge(maps...)
		return err
	})
	if err != nil {
		return err
	}
	if err := artifact.WriteInputShares(req.Out, first, merged); err != nil {
		return err
	}
	log.Info("wrote share file", zap.String("path", req.Out), zap.Int("inputs", len(merged)))
	return nil
}

// ReconstructWitness opens a witness from the share files of enough parties.
// It is meant for inspecting test runs; in production no single process
// holds that many shares.
func ReconstructWitness(curveName string, paths ...string) ([]kyber.Scalar, error) {
	c, err := lookup(curveName)
	if err != nil {
		return nil, err
	}
	if err := requireArtifacts(paths...); err != nil {
		return nil, err
	}
	var codec share.Codec
	vectors := make([]witness.Vector, len(paths))
	for i, path := range paths {
		h, v, err := artifact.ReadWitnessShares(path, c)
		if err != nil {
			return nil, err
		}
		if codec == nil {
			if codec, err = share.NewCodec(h.Scheme, h.Params(), c.Group()); err != nil {
				return nil, err
			}
		} else if h.Scheme != codec.Scheme() || h.Params() != codec.Params() {
			return nil, fmt.Errorf("%s: %w", path, share.ErrSchemeMismatch)
		}
		vectors[i] = v
	}
	return witness.Open(codec, vectors...)
}
