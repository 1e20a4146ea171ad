package pipeline

import (
	"context"
	"fmt"

	"github.com/drand/kyber"
	"github.com/luxfi/coproof/pkg/artifact"
	"github.com/luxfi/coproof/pkg/circuit"
	"github.com/luxfi/coproof/pkg/protocol"
	"github.com/luxfi/coproof/pkg/share"
	"github.com/luxfi/coproof/pkg/witness"
	"github.com/luxfi/coproof/protocols/rep3"
	"github.com/luxfi/coproof/protocols/shamir"
	"github.com/luxfi/coproof/protocols/translate"
	"go.uber.org/zap"
)

// GenerateWitnessRequest extends merged input shares to witness shares.
type GenerateWitnessRequest struct {
	Input   string
	Circuit string
	Out     string
	// Scheme defaults to REP3, the only scheme with a solver.
	Scheme share.Scheme
}

// TranslateRequest reshares a REP3 witness under another scheme.
type TranslateRequest struct {
	Witness string
	Out     string
	// Curve defaults to bn254.
	Curve  string
	Source share.Scheme
	Target share.Scheme
	// Params of the target scheme. The parties stay the same.
	Params share.Params
}

// ProveRequest proves knowledge of a shared witness.
type ProveRequest struct {
	Witness string
	Circuit string
	CRS     string
	Proof   string
	// PublicInputs is optional.
	PublicInputs string
	Scheme       share.Scheme
	Params       share.Params
}

// ownShares fails if a share file belongs to another party.
func (o *Orchestrator) ownShares(path string, h artifact.Header) error {
	if h.Owner != o.self {
		return fmt.Errorf("%s: %w: file holds the shares of party %s, this is party %s", path, share.ErrSchemeMismatch, h.Owner, o.self)
	}
	return nil
}

// GenerateWitness runs the solver jointly with the other parties.
func (o *Orchestrator) GenerateWitness(ctx context.Context, req GenerateWitnessRequest) error {
	return fail(GenerateWitness, o.generateWitness(ctx, req))
}

func (o *Orchestrator) generateWitness(ctx context.Context, req GenerateWitnessRequest) error {
	if req.Scheme == 0 {
		req.Scheme = share.REP3
	}
	if req.Scheme != share.REP3 {
		return invalid("witness extension runs under REP3 only, got %s", req.Scheme)
	}
	params := share.DefaultParams()
	if err := nonEmpty(map[string]string{"input": req.Input, "circuit": req.Circuit, "output": req.Out}); err != nil {
		return err
	}
	if err := requireArtifacts(req.Input, req.Circuit); err != nil {
		return err
	}
	defer o.locks.acquire([]string{req.Input, req.Circuit}, []string{req.Out})()

	log := o.logger(GenerateWitness).With(zap.Stringer("scheme", req.Scheme))
	c, err := circuit.Load(req.Circuit)
	if err != nil {
		return err
	}
	h, inputs, err := artifact.ReadInputShares(req.Input, c.Field())
	if err != nil {
		return err
	}
	if err := checkHeader(req.Input, h, req.Scheme, params); err != nil {
		return err
	}
	if err := o.ownShares(req.Input, h); err != nil {
		return err
	}

	sess, closer, err := o.session(ctx, GenerateWitness, protocol.Info{
		Parties:   params.Parties,
		Scheme:    req.Scheme,
		Threshold: params.Threshold,
		Curve:     c.Field().Name(),
		Circuit:   c.Digest(),
	})
	if err != nil {
		return err
	}
	defer closer()

	var w witness.Vector
	err = timed(log, "witness extended", func() (err error) {
		w, err = o.solver.Solve(ctx, sess, c, inputs, o.rand(GenerateWitness))
		return err
	})
	if err != nil {
		return err
	}
	if err := artifact.WriteWitnessShares(req.Out, header(c.Field(), req.Scheme, params, o.self), w); err != nil {
		return err
	}
	log.Info("wrote share file", zap.String("path", req.Out))
	return nil
}

// TranslateWitness reshares a REP3 witness share file under Shamir without
// opening any value.
func (o *Orchestrator) TranslateWitness(ctx context.Context, req TranslateRequest) error {
	return fail(TranslateWitness, o.translateWitness(ctx, req))
}

func (o *Orchestrator) translateWitness(ctx context.Context, req TranslateRequest) error {
	if err := translate.Check(req.Source, req.Target); err != nil {
		return err
	}
	srcParams := share.DefaultParams()
	if err := req.Params.Validate(req.Target); err != nil {
		return err
	}
	if req.Params.Parties != srcParams.Parties {
		return invalid("translation keeps the %d parties of the source, target has %d", srcParams.Parties, req.Params.Parties)
	}
	c, err := lookup(req.Curve)
	if err != nil {
		return err
	}
	if err := nonEmpty(map[string]string{"witness": req.Witness, "output": req.Out}); err != nil {
		return err
	}
	if err := requireArtifacts(req.Witness); err != nil {
		return err
	}
	defer o.locks.acquire([]string{req.Witness}, []string{req.Out})()

	log := o.logger(TranslateWitness).With(zap.Stringer("scheme", req.Target))
	h, v, err := artifact.ReadWitnessShares(req.Witness, c)
	if err != nil {
		return err
	}
	if err := checkHeader(req.Witness, h, req.Source, srcParams); err != nil {
		return err
	}
	if err := o.ownShares(req.Witness, h); err != nil {
		return err
	}
	src, err := share.NewCodec(req.Source, srcParams, c.Group())
	if err != nil {
		return err
	}
	dst, err := share.NewCodec(req.Target, req.Params, c.Group())
	if err != nil {
		return err
	}

	sess, closer, err := o.session(ctx, TranslateWitness, protocol.Info{
		Parties:   srcParams.Parties,
		Scheme:    req.Source,
		Threshold: srcParams.Threshold,
		Curve:     c.Name(),
		Label:     fmt.Sprintf("%s %d/%d", req.Target, req.Params.Threshold, req.Params.Parties),
	})
	if err != nil {
		return err
	}
	defer closer()

	var out witness.Vector
	err = timed(log, "witness translated", func() error {
		pool, err := translate.Preprocess(ctx, sess, dst, len(v.Shares()), o.rand(TranslateWitness))
		if err != nil {
			return err
		}
		out, err = translate.TranslateVector(ctx, sess, src, dst, v, pool)
		return err
	})
	if err != nil {
		return err
	}
	if err := artifact.WriteWitnessShares(req.Out, header(c, req.Target, req.Params, o.self), out); err != nil {
		return err
	}
	log.Info("wrote share file", zap.String("path", req.Out))
	return nil
}

// GenerateProof proves jointly with the other parties. Every party writes
// the same proof.
func (o *Orchestrator) GenerateProof(ctx context.Context, req ProveRequest) error {
	return fail(GenerateProof, o.generateProof(ctx, req))
}

func (o *Orchestrator) generateProof(ctx context.Context, req ProveRequest) error {
	params, err := resolve(req.Scheme, req.Params)
	if err != nil {
		return err
	}
	if err := nonEmpty(map[string]string{"witness": req.Witness, "circuit": req.Circuit, "crs": req.CRS, "proof": req.Proof}); err != nil {
		return err
	}
	if err := requireArtifacts(req.Witness, req.Circuit, req.CRS); err != nil {
		return err
	}
	defer o.locks.acquire([]string{req.Witness, req.Circuit, req.CRS}, []string{req.Proof, req.PublicInputs})()

	log := o.logger(GenerateProof).With(zap.Stringer("scheme", req.Scheme))
	c, err := circuit.Load(req.Circuit)
	if err != nil {
		return err
	}
	h, w, err := artifact.ReadWitnessShares(req.Witness, c.Field())
	if err != nil {
		return err
	}
	if err := checkHeader(req.Witness, h, req.Scheme, params); err != nil {
		return err
	}
	if err := o.ownShares(req.Witness, h); err != nil {
		return err
	}
	crs, err := artifact.Read(req.CRS)
	if err != nil {
		return err
	}

	sess, closer, err := o.session(ctx, GenerateProof, protocol.Info{
		Parties:   params.Parties,
		Scheme:    req.Scheme,
		Threshold: params.Threshold,
		Curve:     c.Field().Name(),
		Circuit:   c.Digest(),
	})
	if err != nil {
		return err
	}
	defer closer()

	var d protocol.Driver
	rand := o.rand(GenerateProof)
	switch req.Scheme {
	case share.REP3:
		d, err = rep3.NewDriver(ctx, sess, c.Field().Group(), rand)
	case share.Shamir:
		d, err = shamir.NewDriver(sess, c.Field().Group(), rand)
	}
	if err != nil {
		return err
	}

	var proof []byte
	var public []kyber.Scalar
	err = timed(log, "proof generated", func() (err error) {
		proof, public, err = o.proof.Prove(ctx, d, c, w, crs)
		return err
	})
	if err != nil {
		return err
	}
	if err := artifact.WriteProof(req.Proof, proof); err != nil {
		return err
	}
	log.Info("wrote proof", zap.String("path", req.Proof), zap.Int("bytes", len(proof)))
	if req.PublicInputs != "" {
		if err := artifact.WritePublicInputs(req.PublicInputs, c.Field(), public); err != nil {
			return err
		}
		log.Info("wrote public inputs", zap.String("path", req.PublicInputs))
	}
	return nil
}
