package main

import (
	"context"
	_ "embed"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/drand/kyber"
	"github.com/hashicorp/go-multierror"
	"github.com/luxfi/coproof/pkg/artifact"
	"github.com/luxfi/coproof/pkg/circuit"
	"github.com/luxfi/coproof/pkg/party"
	"github.com/luxfi/coproof/pkg/pipeline"
	"github.com/luxfi/coproof/pkg/protocol"
	"github.com/luxfi/coproof/pkg/share"
	"github.com/luxfi/coproof/pkg/transport"
	"github.com/luxfi/coproof/pkg/transport/mocknet"
	"github.com/spf13/cobra"
	"go.uber.org/zap"
)

//go:embed circuits/multiplier.json
var multiplierCircuit []byte

const simulatedParties = 3

var errSimulatedDisconnect = errors.New("simulated disconnect")

// shared keeps the mock network open across the stages of a simulation.
type shared struct{ *mocknet.Messenger }

func (shared) Close() error { return nil }

// cluster runs the orchestrators of all parties in one process.
type cluster struct {
	net     []*mocknet.Messenger
	parties []*pipeline.Orchestrator
}

// newCluster connects n orchestrators. Parties in drop close their end of
// the network when they connect.
func newCluster(n int, log *zap.Logger, drop ...party.ID) *cluster {
	c := &cluster{net: mocknet.New(n)}
	for i := range c.net {
		id, m := party.ID(i), c.net[i]
		dropped := party.IDSlice(drop).Contains(id)
		connect := pipeline.ConnectorFunc(func(context.Context) (transport.Messenger, error) {
			if dropped {
				_ = m.Close()
				return nil, errSimulatedDisconnect
			}
			return shared{m}, nil
		})
		c.parties = append(c.parties, pipeline.New(
			pipeline.WithNetwork(id, connect),
			pipeline.WithLogger(log),
			pipeline.WithRoundTimeout(10*time.Second),
		))
	}
	return c
}

func (c *cluster) close() {
	for _, m := range c.net {
		_ = m.Close()
	}
}

// run calls f for every party concurrently and returns their errors.
func (c *cluster) run(ctx context.Context, f func(ctx context.Context, i int, o *pipeline.Orchestrator) error) []error {
	errs := make([]error, len(c.parties))
	var wg sync.WaitGroup
	for i, o := range c.parties {
		wg.Add(1)
		go func() {
			defer wg.Done()
			errs[i] = f(ctx, i, o)
		}()
	}
	wg.Wait()
	return errs
}

// mustRun is run collecting the failures of all parties.
func (c *cluster) mustRun(ctx context.Context, f func(ctx context.Context, i int, o *pipeline.Orchestrator) error) error {
	var result *multierror.Error
	for i, err := range c.run(ctx, f) {
		if err != nil {
			result = multierror.Append(result, fmt.Errorf("party %d: %w", i, err))
		}
	}
	return result.ErrorOrNil()
}

// workspace holds the artifacts of a simulated pipeline.
type workspace struct {
	dir     string
	circuit string
}

func newWorkspace(dir string) (*workspace, error) {
	if dir == "" {
		tmp, err := os.MkdirTemp("", "coproof-sim-")
		if err != nil {
			return nil, err
		}
		dir = tmp
	}
	w := &workspace{dir: dir, circuit: filepath.Join(dir, "circuit.json")}
	if err := artifact.WritePublic(w.circuit, multiplierCircuit); err != nil {
		return nil, err
	}
	return w, nil
}

func (w *workspace) path(name string) string { return filepath.Join(w.dir, name) }

func (w *workspace) share(base string, i int) string { return artifact.SharePath(w.path(base), i) }

// contribute writes the inputs of two contributors and deals them.
func (w *workspace) contribute(o *pipeline.Orchestrator) error {
	for name, data := range map[string]string{
		"alice": `{"x": ["2", "3"]}`,
		"bob":   `{"y": 4}`,
	} {
		path := w.path(name + ".json")
		if err := artifact.WriteSecret(path, []byte(data)); err != nil {
			return err
		}
		if _, err := o.SplitInput(pipeline.SplitRequest{Values: path, Circuit: w.circuit, Out: w.path(name), Scheme: share.REP3}); err != nil {
			return err
		}
	}
	for i := 0; i < simulatedParties; i++ {
		err := o.MergeInputShares(pipeline.MergeRequest{
			Inputs: []string{w.share("alice", i), w.share("bob", i)},
			Out:    w.share("input", i),
		})
		if err != nil {
			return err
		}
	}
	return nil
}

func (w *workspace) generateWitness(ctx context.Context, c *cluster) error {
	return c.mustRun(ctx, func(ctx context.Context, i int, o *pipeline.Orchestrator) error {
		return o.GenerateWitness(ctx, pipeline.GenerateWitnessRequest{Input: w.share("input", i), Circuit: w.circuit, Out: w.share("witness", i)})
	})
}

func (w *workspace) translate(ctx context.Context, c *cluster) error {
	return c.mustRun(ctx, func(ctx context.Context, i int, o *pipeline.Orchestrator) error {
		return o.TranslateWitness(ctx, pipeline.TranslateRequest{
			Witness: w.share("witness", i),
			Out:     w.share("shamir", i),
			Source:  share.REP3,
			Target:  share.Shamir,
			Params:  share.DefaultParams(),
		})
	})
}

func (w *workspace) prove(ctx context.Context, c *cluster, witness, proof string, scheme share.Scheme) error {
	return c.mustRun(ctx, func(ctx context.Context, i int, o *pipeline.Orchestrator) error {
		return o.GenerateProof(ctx, pipeline.ProveRequest{
			Witness:      w.share(witness, i),
			Circuit:      w.circuit,
			CRS:          w.path("crs"),
			Proof:        w.share(proof, i),
			PublicInputs: w.share(proof+".public", i),
			Scheme:       scheme,
			Params:       share.DefaultParams(),
		})
	})
}

func (w *workspace) verify(o *pipeline.Orchestrator, proof string) (bool, error) {
	return o.Verify(pipeline.VerifyRequest{Proof: proof, Key: w.path("vk"), CRS: w.path("crs")})
}

// expected evaluates the circuit on the contributors' inputs in the clear.
func (w *workspace) expected() ([]kyber.Scalar, error) {
	c, err := circuit.Load(w.circuit)
	if err != nil {
		return nil, err
	}
	inputs := make(map[string]kyber.Scalar)
	for _, name := range []string{"alice", "bob"} {
		raw, err := artifact.ReadInput(w.path(name+".json"), c.Field())
		if err != nil {
			return nil, err
		}
		values, err := c.ResolveInputs(raw)
		if err != nil {
			return nil, err
		}
		for k, v := range values {
			inputs[k] = v
		}
	}
	return c.Evaluate(inputs)
}

func runSimulation(cmd *cobra.Command, args []string) error {
	scenario, _ := cmd.Flags().GetString("scenario")
	dir, _ := cmd.Flags().GetString("dir")

	w, err := newWorkspace(dir)
	if err != nil {
		return err
	}
	fmt.Printf("Running %s simulation with %d parties in %s\n", scenario, simulatedParties, w.dir)

	switch scenario {
	case "pipeline":
		return simulatePipeline(cmd.Context(), w)
	case "network-failure":
		return simulateNetworkFailure(cmd.Context(), w)
	case "parameter-mismatch":
		return simulateParameterMismatch(cmd.Context(), w)
	default:
		return fmt.Errorf("unknown scenario: %s", scenario)
	}
}

func step(name string, f func() error) error {
	start := time.Now()
	if err := f(); err != nil {
		fmt.Printf("  %-22s FAILED\n", name)
		return fmt.Errorf("%s: %w", name, err)
	}
	fmt.Printf("  %-22s %v\n", name, time.Since(start).Round(time.Microsecond))
	return nil
}

func simulatePipeline(ctx context.Context, w *workspace) error {
	c := newCluster(simulatedParties, logger)
	defer c.close()
	o := offline()

	fmt.Printf("\n=== Pipeline ===\n")
	steps := []struct {
		name string
		f    func() error
	}{
		{"split and merge input", func() error { return w.contribute(o) }},
		{"generate witness", func() error { return w.generateWitness(ctx, c) }},
		{"check witness", func() error { return w.checkWitness("witness") }},
		{"create crs", func() error { return o.CreateCRS(pipeline.CRSRequest{Circuit: w.circuit, Out: w.path("crs")}) }},
		{"create vk", func() error {
			return o.CreateVK(pipeline.KeyRequest{Circuit: w.circuit, CRS: w.path("crs"), Out: w.path("vk")})
		}},
		{"prove (REP3)", func() error { return w.prove(ctx, c, "witness", "proof-rep3", share.REP3) }},
		{"verify (REP3)", func() error { return w.expectValid(o, w.share("proof-rep3", 0)) }},
		{"translate witness", func() error { return w.translate(ctx, c) }},
		{"check translation", func() error { return w.checkWitness("shamir") }},
		{"prove (Shamir)", func() error { return w.prove(ctx, c, "shamir", "proof-shamir", share.Shamir) }},
		{"verify (Shamir)", func() error { return w.expectValid(o, w.share("proof-shamir", 1)) }},
		{"reject tampered proof", func() error { return w.expectTamperedInvalid(o, w.share("proof-shamir", 1)) }},
	}
	for _, s := range steps {
		if err := step(s.name, s.f); err != nil {
			return err
		}
	}
	fmt.Printf("\nAll stages succeeded; artifacts are in %s\n", w.dir)
	return nil
}

func (w *workspace) checkWitness(base string) error {
	want, err := w.expected()
	if err != nil {
		return err
	}
	got, err := pipeline.ReconstructWitness("", w.share(base, 0), w.share(base, 2))
	if err != nil {
		return err
	}
	if len(got) != len(want) {
		return fmt.Errorf("witness has %d values, circuit %d", len(got), len(want))
	}
	for i := range want {
		if !got[i].Equal(want[i]) {
			return fmt.Errorf("wire %d differs from the cleartext evaluation", i)
		}
	}
	return nil
}

func (w *workspace) expectValid(o *pipeline.Orchestrator, proof string) error {
	ok, err := w.verify(o, proof)
	if err != nil {
		return err
	}
	if !ok {
		return errors.New("valid proof rejected")
	}
	return nil
}

func (w *workspace) expectTamperedInvalid(o *pipeline.Orchestrator, proof string) error {
	data, err := artifact.ReadProof(proof)
	if err != nil {
		return err
	}
	data[len(data)/2] ^= 0x80
	tampered := w.path("proof.tampered")
	if err := artifact.WriteProof(tampered, data); err != nil {
		return err
	}
	ok, err := w.verify(o, tampered)
	if err != nil {
		return err
	}
	if ok {
		return errors.New("tampered proof verified")
	}
	return nil
}

// report prints the outcome of a stage that is expected to abort on every
// party.
func report(errs []error) error {
	for i, err := range errs {
		if err == nil {
			return fmt.Errorf("party %d completed a stage that should have aborted", i)
		}
		fmt.Printf("  party %d: %s\n", i, pipeline.KindOf(err))
		logger.Debug("stage aborted", zap.Int("party", i), zap.Error(err))
		if !errors.Is(err, protocol.ErrProtocolAborted) {
			return fmt.Errorf("party %d: unexpected error: %w", i, err)
		}
	}
	fmt.Printf("\nEvery party aborted the stage.\n")
	return nil
}

func simulateNetworkFailure(ctx context.Context, w *workspace) error {
	fmt.Printf("\n=== Network Failure ===\n")
	if err := step("split and merge input", func() error { return w.contribute(offline()) }); err != nil {
		return err
	}
	fmt.Printf("Party 2 disconnects when generate-witness starts.\n")
	c := newCluster(simulatedParties, logger, 2)
	defer c.close()
	return report(c.run(ctx, func(ctx context.Context, i int, o *pipeline.Orchestrator) error {
		return o.GenerateWitness(ctx, pipeline.GenerateWitnessRequest{Input: w.share("input", i), Circuit: w.circuit, Out: w.share("witness", i)})
	}))
}

func simulateParameterMismatch(ctx context.Context, w *workspace) error {
	fmt.Printf("\n=== Parameter Mismatch ===\n")
	c := newCluster(simulatedParties, logger)
	if err := step("split and merge input", func() error { return w.contribute(offline()) }); err != nil {
		return err
	}
	if err := step("generate witness", func() error { return w.generateWitness(ctx, c) }); err != nil {
		return err
	}
	c.close()

	fmt.Printf("Party 2 translates to threshold 2, the others to threshold 1.\n")
	c = newCluster(simulatedParties, logger)
	defer c.close()
	return report(c.run(ctx, func(ctx context.Context, i int, o *pipeline.Orchestrator) error {
		params := share.DefaultParams()
		if i == 2 {
			params.Threshold = 2
		}
		return o.TranslateWitness(ctx, pipeline.TranslateRequest{
			Witness: w.share("witness", i),
			Out:     w.share("shamir", i),
			Source:  share.REP3,
			Target:  share.Shamir,
			Params:  params,
		})
	}))
}
