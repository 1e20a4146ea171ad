package pipeline_test

import (
	"context"
	"encoding/json"
	"os"

	"github.com/drand/kyber"
	"github.com/luxfi/coproof/pkg/artifact"
	"github.com/luxfi/coproof/pkg/circuit"
	"github.com/luxfi/coproof/pkg/math/curve"
	"github.com/luxfi/coproof/pkg/pipeline"
	"github.com/luxfi/coproof/pkg/protocol"
	"github.com/luxfi/coproof/pkg/share"
	"github.com/luxfi/coproof/protocols/translate"
	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"
)

func decimals(values []kyber.Scalar) []string {
	c, err := curve.Lookup(curve.BN254)
	Expect(err).NotTo(HaveOccurred())
	out := make([]string, len(values))
	for i, v := range values {
		out[i] = c.FormatScalar(v)
	}
	return out
}

func subsets(paths []string) [][]string {
	return [][]string{
		{paths[0], paths[1]},
		{paths[0], paths[2]},
		{paths[1], paths[2]},
		{paths[2], paths[0]},
		paths,
	}
}

var _ = Describe("Offline stages", func() {
	var (
		dir string
		o   *pipeline.Orchestrator
	)

	BeforeEach(func() {
		dir = GinkgoT().TempDir()
		o = pipeline.New(pipeline.WithSeed([]byte("offline")))
	})

	It("shares [3, 5, 8, 1] under REP3 so that any two files reconstruct it", func() {
		writeJSON(in(dir, "w.json"), []string{"3", "5", "8", "1"})
		paths, err := o.SplitWitness(pipeline.SplitRequest{
			Values:  in(dir, "w.json"),
			Circuit: passthrough,
			Out:     in(dir, "w"),
			Scheme:  share.REP3,
		})
		Expect(err).NotTo(HaveOccurred())
		Expect(paths).To(Equal([]string{in(dir, "w.0.shared"), in(dir, "w.1.shared"), in(dir, "w.2.shared")}))

		for _, sel := range subsets(paths) {
			values, err := pipeline.ReconstructWitness("", sel...)
			Expect(err).NotTo(HaveOccurred())
			Expect(decimals(values)).To(Equal([]string{"3", "5", "8", "1"}))
		}
		for _, p := range paths {
			_, err := pipeline.ReconstructWitness("", p)
			Expect(err).To(MatchError(share.ErrInsufficientShares))
		}

		// slot 0 is public and stored in the clear
		h, v, err := artifact.ReadWitnessShares(paths[1], mustCurve())
		Expect(err).NotTo(HaveOccurred())
		Expect(h.Scheme).To(Equal(share.REP3))
		Expect(v[0].IsPublic()).To(BeTrue())
		Expect(v[1].IsPublic()).To(BeFalse())
	})

	It("shares 7 under Shamir with threshold 1 of 3", func() {
		writeJSON(in(dir, "w.json"), []string{"1", "7", "7", "7"})
		paths, err := o.SplitWitness(pipeline.SplitRequest{
			Values:  in(dir, "w.json"),
			Circuit: passthrough,
			Out:     in(dir, "w"),
			Scheme:  share.Shamir,
			Params:  share.Params{Parties: 3, Threshold: 1},
		})
		Expect(err).NotTo(HaveOccurred())
		for _, sel := range subsets(paths) {
			values, err := pipeline.ReconstructWitness("", sel...)
			Expect(err).NotTo(HaveOccurred())
			Expect(decimals(values)[1:]).To(Equal([]string{"7", "7", "7"}))
		}
		for _, p := range paths {
			_, err := pipeline.ReconstructWitness("", p)
			Expect(err).To(MatchError(share.ErrInsufficientShares))
		}
	})

	It("rejects bad parameters before touching any file", func() {
		_, err := o.SplitWitness(pipeline.SplitRequest{
			Values:  in(dir, "missing.json"),
			Circuit: passthrough,
			Out:     in(dir, "w"),
			Scheme:  share.Shamir,
			Params:  share.Params{Parties: 3, Threshold: 3},
		})
		Expect(err).To(MatchError(share.ErrInvalidParameters))
		Expect(pipeline.KindOf(err)).To(Equal(pipeline.KindConfiguration))

		var perr *pipeline.Error
		Expect(err).To(BeAssignableToTypeOf(perr))
		Expect(err.(*pipeline.Error).Stage).To(Equal(pipeline.SplitWitness))

		_, err = o.SplitWitness(pipeline.SplitRequest{
			Values:  in(dir, "missing.json"),
			Circuit: passthrough,
			Out:     in(dir, "w"),
			Scheme:  share.REP3,
			Params:  share.Params{Parties: 4, Threshold: 1},
		})
		Expect(err).To(MatchError(share.ErrInvalidParameters))
	})

	It("reports missing inputs as I/O errors", func() {
		_, err := o.SplitWitness(pipeline.SplitRequest{
			Values:  in(dir, "missing.json"),
			Circuit: passthrough,
			Out:     in(dir, "w"),
			Scheme:  share.REP3,
		})
		Expect(err).To(MatchError(pipeline.ErrMissingArtifact))
		Expect(pipeline.KindOf(err)).To(Equal(pipeline.KindIO))
	})

	It("rejects a witness of the wrong length", func() {
		writeJSON(in(dir, "w.json"), []string{"1", "2"})
		_, err := o.SplitWitness(pipeline.SplitRequest{
			Values:  in(dir, "w.json"),
			Circuit: passthrough,
			Out:     in(dir, "w"),
			Scheme:  share.REP3,
		})
		Expect(err).To(MatchError(artifact.ErrMalformed))
	})

	Describe("input shares", func() {
		split := func(name string, values map[string]any) []string {
			writeJSON(in(dir, name+".json"), values)
			paths, err := o.SplitInput(pipeline.SplitRequest{
				Values:  in(dir, name+".json"),
				Circuit: multiplier,
				Out:     in(dir, name),
				Scheme:  share.REP3,
			})
			Expect(err).NotTo(HaveOccurred())
			return paths
		}

		It("merges the contributions of two parties", func() {
			a := split("a", map[string]any{"x": []int{2, 3}})
			b := split("b", map[string]any{"y": 4})
			for i := range a {
				out := in(dir, "merged")
				Expect(o.MergeInputShares(pipeline.MergeRequest{Inputs: []string{b[i], a[i]}, Out: out})).To(Succeed())
				_, m, err := artifact.ReadInputShares(out, mustCurve())
				Expect(err).NotTo(HaveOccurred())
				Expect(m.Keys()).To(Equal([]string{"x[0]", "x[1]", "y"}))
			}
		})

		It("fails on a key contributed twice", func() {
			a := split("a", map[string]any{"x": []int{2, 3}})
			b := split("b", map[string]any{"x": []int{5, 6}, "y": 4})
			for _, order := range [][]string{{a[0], b[0]}, {b[0], a[0]}} {
				err := o.MergeInputShares(pipeline.MergeRequest{Inputs: order, Out: in(dir, "merged")})
				Expect(err).To(MatchError(share.ErrDuplicateShareKey))
				Expect(pipeline.KindOf(err)).To(Equal(pipeline.KindProtocol))
			}
			Expect(in(dir, "merged")).NotTo(BeAnExistingFile())
		})

		It("refuses to merge shares of different parties", func() {
			a := split("a", map[string]any{"x": []int{2, 3}})
			b := split("b", map[string]any{"y": 4})
			err := o.MergeInputShares(pipeline.MergeRequest{Inputs: []string{a[0], b[1]}, Out: in(dir, "merged")})
			Expect(err).To(MatchError(share.ErrSchemeMismatch))
		})

		It("needs two files", func() {
			a := split("a", map[string]any{"x": []int{2, 3}})
			err := o.MergeInputShares(pipeline.MergeRequest{Inputs: a[:1], Out: in(dir, "merged")})
			Expect(err).To(MatchError(share.ErrTooFewContributors))
		})

		It("rejects names the circuit does not know", func() {
			writeJSON(in(dir, "z.json"), map[string]any{"z": 1})
			_, err := o.SplitInput(pipeline.SplitRequest{
				Values:  in(dir, "z.json"),
				Circuit: multiplier,
				Out:     in(dir, "z"),
				Scheme:  share.REP3,
			})
			Expect(err).To(MatchError(circuit.ErrUnknownInput))
			Expect(pipeline.KindOf(err)).To(Equal(pipeline.KindConfiguration))
			Expect(in(dir, "z.0.shared")).NotTo(BeAnExistingFile())
		})

		It("takes a one element array for a single wire input", func() {
			for i, path := range split("y", map[string]any{"x": []int{2, 3}, "y": []int{4}}) {
				_, m, err := artifact.ReadInputShares(path, mustCurve())
				Expect(err).NotTo(HaveOccurred())
				Expect(m.Keys()).To(Equal([]string{"x[0]", "x[1]", "y"}), "party %d", i)
			}
		})
	})
})

func mustCurve() *curve.Curve {
	c, err := curve.Lookup(curve.BN254)
	Expect(err).NotTo(HaveOccurred())
	return c
}

var _ = Describe("Network stages", func() {
	var (
		dir string
		c   *cluster
	)

	BeforeEach(func() {
		dir = GinkgoT().TempDir()
		c = newCluster(3)
	})

	shareInputs := func() {
		o := pipeline.New(pipeline.WithSeed([]byte("inputs")))
		writeJSON(in(dir, "a.json"), map[string]any{"x": []string{"2", "3"}})
		writeJSON(in(dir, "b.json"), map[string]any{"y": "0x4"})
		for _, name := range []string{"a", "b"} {
			_, err := o.SplitInput(pipeline.SplitRequest{
				Values:  in(dir, name+".json"),
				Circuit: multiplier,
				Out:     in(dir, name),
				Scheme:  share.REP3,
			})
			Expect(err).NotTo(HaveOccurred())
		}
		for i := 0; i < 3; i++ {
			Expect(o.MergeInputShares(pipeline.MergeRequest{
				Inputs: []string{artifact.SharePath(in(dir, "a"), i), artifact.SharePath(in(dir, "b"), i)},
				Out:    artifact.SharePath(in(dir, "in"), i),
			})).To(Succeed())
		}
	}

	generateWitness := func() {
		c.mustRun(func(ctx context.Context, i int, o *pipeline.Orchestrator) error {
			return o.GenerateWitness(ctx, pipeline.GenerateWitnessRequest{
				Input:   artifact.SharePath(in(dir, "in"), i),
				Circuit: multiplier,
				Out:     artifact.SharePath(in(dir, "w"), i),
			})
		})
	}

	keys := func() {
		o := pipeline.New(pipeline.WithSeed([]byte("keys")))
		Expect(o.CreateCRS(pipeline.CRSRequest{Circuit: multiplier, Out: in(dir, "crs")})).To(Succeed())
		Expect(o.CreateVK(pipeline.KeyRequest{Circuit: multiplier, CRS: in(dir, "crs"), Out: in(dir, "vk")})).To(Succeed())
	}

	prove := func(witness string, scheme share.Scheme, params share.Params) {
		c.mustRun(func(ctx context.Context, i int, o *pipeline.Orchestrator) error {
			return o.GenerateProof(ctx, pipeline.ProveRequest{
				Witness:      artifact.SharePath(in(dir, witness), i),
				Circuit:      multiplier,
				CRS:          in(dir, "crs"),
				Proof:        artifact.SharePath(in(dir, "proof"), i),
				PublicInputs: artifact.SharePath(in(dir, "public"), i),
				Scheme:       scheme,
				Params:       params,
			})
		})
	}

	verify := func(proof string) bool {
		ok, err := pipeline.New().Verify(pipeline.VerifyRequest{Proof: proof, Key: in(dir, "vk"), CRS: in(dir, "crs")})
		Expect(err).NotTo(HaveOccurred())
		return ok
	}

	It("extends shared inputs to the full witness", func() {
		shareInputs()
		generateWitness()
		values, err := pipeline.ReconstructWitness("", artifact.SharePath(in(dir, "w"), 0), artifact.SharePath(in(dir, "w"), 2))
		Expect(err).NotTo(HaveOccurred())
		Expect(decimals(values)[1:4]).To(Equal([]string{"2", "3", "4"}))
		Expect(decimals(values)[9]).To(Equal("21"))
	})

	It("proves under REP3 and verifies", func() {
		shareInputs()
		generateWitness()
		keys()
		prove("w", share.REP3, share.Params{})

		proof := readFile(artifact.SharePath(in(dir, "proof"), 0))
		for i := 1; i < 3; i++ {
			Expect(readFile(artifact.SharePath(in(dir, "proof"), i))).To(Equal(proof))
		}
		Expect(verify(artifact.SharePath(in(dir, "proof"), 0))).To(BeTrue())

		var public []string
		Expect(json.Unmarshal(readFile(artifact.SharePath(in(dir, "public"), 1)), &public)).To(Succeed())
		Expect(public).To(Equal([]string{"1", "21"}))

		By("flipping a byte of the proof")
		for _, at := range []int{0, len(proof) / 2, len(proof) - 1} {
			tampered := append([]byte(nil), proof...)
			tampered[at] ^= 0x01
			Expect(os.WriteFile(in(dir, "tampered"), tampered, 0600)).To(Succeed())
			Expect(verify(in(dir, "tampered"))).To(BeFalse())
		}

		By("checking against the key of another circuit")
		o := pipeline.New()
		Expect(o.CreateVK(pipeline.KeyRequest{Circuit: passthrough, CRS: in(dir, "crs"), Out: in(dir, "vk-other")})).To(Succeed())
		ok, err := o.Verify(pipeline.VerifyRequest{Proof: artifact.SharePath(in(dir, "proof"), 0), Key: in(dir, "vk-other"), CRS: in(dir, "crs")})
		Expect(err).NotTo(HaveOccurred())
		Expect(ok).To(BeFalse())
	})

	It("translates to Shamir and proves there", func() {
		shareInputs()
		generateWitness()
		keys()
		params := share.Params{Parties: 3, Threshold: 1}
		c.mustRun(func(ctx context.Context, i int, o *pipeline.Orchestrator) error {
			return o.TranslateWitness(ctx, pipeline.TranslateRequest{
				Witness: artifact.SharePath(in(dir, "w"), i),
				Out:     artifact.SharePath(in(dir, "s"), i),
				Source:  share.REP3,
				Target:  share.Shamir,
				Params:  params,
			})
		})

		rep, err := pipeline.ReconstructWitness("", artifact.SharePath(in(dir, "w"), 0), artifact.SharePath(in(dir, "w"), 1))
		Expect(err).NotTo(HaveOccurred())
		sh, err := pipeline.ReconstructWitness("", artifact.SharePath(in(dir, "s"), 1), artifact.SharePath(in(dir, "s"), 2))
		Expect(err).NotTo(HaveOccurred())
		Expect(decimals(sh)).To(Equal(decimals(rep)))

		prove("s", share.Shamir, params)
		Expect(verify(artifact.SharePath(in(dir, "proof"), 2))).To(BeTrue())
	})

	It("fails GenerateProof before GenerateWitness without touching the network", func() {
		keys()
		errs := c.run(func(ctx context.Context, i int, o *pipeline.Orchestrator) error {
			return o.GenerateProof(ctx, pipeline.ProveRequest{
				Witness: artifact.SharePath(in(dir, "w"), i),
				Circuit: multiplier,
				CRS:     in(dir, "crs"),
				Proof:   in(dir, "proof"),
				Scheme:  share.REP3,
			})
		})
		for _, err := range errs {
			Expect(err).To(MatchError(pipeline.ErrMissingArtifact))
			Expect(pipeline.KindOf(err)).To(Equal(pipeline.KindIO))
		}
		Expect(in(dir, "proof")).NotTo(BeAnExistingFile())
	})

	It("rejects translations other than REP3 to Shamir", func() {
		o := c.parties[0]
		for _, pair := range [][2]share.Scheme{{share.Shamir, share.REP3}, {share.REP3, share.REP3}, {share.Shamir, share.Shamir}} {
			err := o.TranslateWitness(context.Background(), pipeline.TranslateRequest{
				Witness: in(dir, "missing"),
				Out:     in(dir, "out"),
				Source:  pair[0],
				Target:  pair[1],
				Params:  share.Params{Parties: 3, Threshold: 1},
			})
			Expect(err).To(MatchError(translate.ErrUnsupportedTranslation))
			Expect(pipeline.KindOf(err)).To(Equal(pipeline.KindConfiguration))
		}
	})

	It("refuses witness extension under Shamir", func() {
		err := c.parties[0].GenerateWitness(context.Background(), pipeline.GenerateWitnessRequest{
			Input:   in(dir, "missing"),
			Circuit: multiplier,
			Out:     in(dir, "out"),
			Scheme:  share.Shamir,
		})
		Expect(err).To(MatchError(pipeline.ErrInvalidRequest))
		Expect(pipeline.KindOf(err)).To(Equal(pipeline.KindConfiguration))
	})

	It("aborts every party when one runs other parameters", func() {
		shareInputs()
		generateWitness()

		// the witness stage above used the network; mismatched runs get a fresh one
		c = newCluster(3)
		errs := c.run(func(ctx context.Context, i int, o *pipeline.Orchestrator) error {
			params := share.Params{Parties: 3, Threshold: 1}
			if i == 2 {
				params.Threshold = 2
			}
			return o.TranslateWitness(ctx, pipeline.TranslateRequest{
				Witness: artifact.SharePath(in(dir, "w"), i),
				Out:     artifact.SharePath(in(dir, "s"), i),
				Source:  share.REP3,
				Target:  share.Shamir,
				Params:  params,
			})
		})
		for i, err := range errs {
			Expect(err).To(MatchError(protocol.ErrParameterMismatch), "party %d", i)
			Expect(err).To(MatchError(protocol.ErrProtocolAborted), "party %d", i)
			Expect(pipeline.KindOf(err)).To(Equal(pipeline.KindProtocol))
			Expect(artifact.SharePath(in(dir, "s"), i)).NotTo(BeAnExistingFile())
		}
	})

	It("refuses the share file of another party", func() {
		shareInputs()
		errs := c.run(func(ctx context.Context, i int, o *pipeline.Orchestrator) error {
			return o.GenerateWitness(ctx, pipeline.GenerateWitnessRequest{
				Input:   artifact.SharePath(in(dir, "in"), (i+1)%3),
				Circuit: multiplier,
				Out:     artifact.SharePath(in(dir, "w"), i),
			})
		})
		for _, err := range errs {
			Expect(err).To(MatchError(share.ErrSchemeMismatch))
		}
	})
})
