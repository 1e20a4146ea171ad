package rep3_test

import (
	"context"
	"errors"

	"github.com/drand/kyber"
	"github.com/luxfi/coproof/internal/test"
	"github.com/luxfi/coproof/pkg/circuit"
	"github.com/luxfi/coproof/pkg/math/curve"
	"github.com/luxfi/coproof/pkg/math/sample"
	"github.com/luxfi/coproof/pkg/party"
	"github.com/luxfi/coproof/pkg/protocol"
	"github.com/luxfi/coproof/pkg/share"
	"github.com/luxfi/coproof/pkg/witness"
	"github.com/luxfi/coproof/protocols/rep3"
	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"
)

// deal shares values under REP3 and returns the shares of every party.
func deal(codec share.Codec, values []kyber.Scalar, rand string) [][]share.Share {
	out := make([][]share.Share, 3)
	stream := sample.Stream([]byte(rand))
	for _, v := range values {
		for _, s := range codec.Share(v, stream) {
			out[s.Owner] = append(out[s.Owner], s)
		}
	}
	return out
}

func run(f func(ctx context.Context, d *rep3.Driver) error) {
	GinkgoHelper()
	c, err := curve.Lookup(curve.BN254)
	Expect(err).NotTo(HaveOccurred())
	test.RunAll(GinkgoT(), "rep3 test", 3, share.REP3, 1, func(ctx context.Context, s *protocol.Session) error {
		d, err := rep3.NewDriver(ctx, s, c.Group(), sample.Stream([]byte("seed"), s.SelfID().String()))
		if err != nil {
			return err
		}
		return f(ctx, d)
	})
}

var _ = Describe("Driver", func() {
	var (
		field *curve.Curve
		codec share.Codec
	)

	BeforeEach(func() {
		var err error
		field, err = curve.Lookup(curve.BN254)
		Expect(err).NotTo(HaveOccurred())
		codec, err = share.NewCodec(share.REP3, share.DefaultParams(), field.Group())
		Expect(err).NotTo(HaveOccurred())
	})

	It("opens shared values on every party", func() {
		values := []kyber.Scalar{field.ScalarFromUint64(3), field.ScalarFromUint64(0), field.ScalarFromUint64(1 << 40)}
		dealt := deal(codec, values, "open")
		opened := make([][]kyber.Scalar, 3)
		run(func(ctx context.Context, d *rep3.Driver) error {
			var err error
			opened[d.Session().SelfID()], err = d.Open(ctx, dealt[d.Session().SelfID()])
			return err
		})
		for _, o := range opened {
			Expect(o).To(HaveLen(len(values)))
			for i := range values {
				Expect(o[i].Equal(values[i])).To(BeTrue())
			}
		}
	})

	It("draws consistent random sharings without communication", func() {
		got := make([][]share.Share, 3)
		run(func(ctx context.Context, d *rep3.Driver) error {
			round := d.Session().Round()
			var err error
			got[d.Session().SelfID()], err = d.Rand(ctx, 4)
			if d.Session().Round() != round {
				return errors.New("random sharing used a round")
			}
			return err
		})
		for i := 0; i < 4; i++ {
			_, err := codec.Reconstruct([]share.Share{got[0][i], got[1][i], got[2][i]})
			Expect(err).NotTo(HaveOccurred(), "replicated components agree")
		}
		Expect(got[0][0].Value.Equal(got[0][1].Value)).To(BeFalse())
	})

	It("multiplies shared values in one round", func() {
		a := sample.Scalars(sample.Stream([]byte("a")), field.Group(), 5)
		b := sample.Scalars(sample.Stream([]byte("b")), field.Group(), 5)
		da, db := deal(codec, a, "deal a"), deal(codec, b, "deal b")

		products := make([][]kyber.Scalar, 3)
		run(func(ctx context.Context, d *rep3.Driver) error {
			self := d.Session().SelfID()
			before := d.Session().Round()
			c, err := d.Mul(ctx, da[self], db[self])
			if err != nil {
				return err
			}
			if d.Session().Round() != before+1 {
				return errors.New("multiplication is not a single round")
			}
			products[self], err = d.Open(ctx, c)
			return err
		})
		for i := range a {
			want := field.NewScalar().Mul(a[i], b[i])
			for _, p := range products {
				Expect(p[i].Equal(want)).To(BeTrue())
			}
		}
	})

	It("opens point shares", func() {
		g := field.Group()
		p := g.Point().Pick(sample.Stream([]byte("point")))
		dealt := codec.SharePoint(p, sample.Stream([]byte("point shares")))
		opened := make([]kyber.Point, 3)
		run(func(ctx context.Context, d *rep3.Driver) error {
			self := d.Session().SelfID()
			o, err := d.OpenPoints(ctx, []share.PointShare{dealt[self]})
			if err != nil {
				return err
			}
			opened[self] = o[0]
			return nil
		})
		for _, o := range opened {
			Expect(o.Equal(p)).To(BeTrue())
		}
	})

	It("aborts on inconsistent shares", func() {
		dealt := deal(codec, []kyber.Scalar{field.ScalarFromUint64(5)}, "tamper")
		dealt[1][0].Prev = field.ScalarFromUint64(1)

		infos := make([]protocol.Info, 3)
		for i := range infos {
			infos[i] = test.Info("rep3 test", party.ID(i), 3, share.REP3, 1)
		}
		errs := test.Run(GinkgoT(), infos, func(ctx context.Context, s *protocol.Session) error {
			d, err := rep3.NewDriver(ctx, s, field.Group(), sample.Secure())
			if err != nil {
				return err
			}
			_, err = d.Open(ctx, dealt[s.SelfID()])
			return err
		})
		for _, err := range errs {
			Expect(err).To(MatchError(protocol.ErrProtocolAborted))
		}
		Expect(errs[0]).To(MatchError(share.ErrInconsistentShares))
	})

	It("refuses Shamir sessions", func() {
		infos := make([]protocol.Info, 3)
		for i := range infos {
			infos[i] = test.Info("rep3 test", party.ID(i), 3, share.Shamir, 1)
		}
		errs := test.Run(GinkgoT(), infos, func(ctx context.Context, s *protocol.Session) error {
			_, err := rep3.NewDriver(ctx, s, field.Group(), sample.Secure())
			return err
		})
		for _, err := range errs {
			Expect(err).To(MatchError(share.ErrSchemeMismatch))
		}
	})
})

var _ = Describe("Solver", func() {
	var (
		c     *circuit.Circuit
		codec share.Codec
	)

	BeforeEach(func() {
		var err error
		c, err = circuit.Load("../../pkg/circuit/testdata/multiplier.json")
		Expect(err).NotTo(HaveOccurred())
		codec, err = share.NewCodec(share.REP3, share.DefaultParams(), c.Field().Group())
		Expect(err).NotTo(HaveOccurred())
	})

	It("extends input shares to the witness", func() {
		f := c.Field()
		inputs := map[string]kyber.Scalar{
			"x[0]": f.ScalarFromUint64(2),
			"x[1]": f.ScalarFromUint64(3),
			"y":    f.ScalarFromUint64(4),
		}
		want, err := c.Evaluate(inputs)
		Expect(err).NotTo(HaveOccurred())

		maps, err := witness.ShareInput(inputs, share.REP3, share.DefaultParams(), f.Group(), sample.Stream([]byte("inputs")))
		Expect(err).NotTo(HaveOccurred())

		vectors := make([]witness.Vector, 3)
		test.RunAll(GinkgoT(), "solve", 3, share.REP3, 1, func(ctx context.Context, s *protocol.Session) error {
			var err error
			vectors[s.SelfID()], err = rep3.Solver{}.Solve(ctx, s, c, maps[s.SelfID()], sample.Secure())
			return err
		})

		for _, v := range vectors {
			Expect(v).To(HaveLen(c.NumVariables))
			for _, w := range c.PublicIndices() {
				Expect(v[w].IsPublic()).To(BeTrue())
				Expect(v[w].Public.Equal(want[w])).To(BeTrue())
			}
			Expect(v[4].IsPublic()).To(BeFalse())
		}
		Expect(f.FormatScalar(vectors[0][9].Public)).To(Equal("21"))

		got, err := witness.Open(codec, vectors[1], vectors[2])
		Expect(err).NotTo(HaveOccurred())
		for i := range want {
			Expect(got[i].Equal(want[i])).To(BeTrue(), "wire %d", i)
		}
	})

	It("rejects incomplete inputs", func() {
		f := c.Field()
		maps, err := witness.ShareInput(map[string]kyber.Scalar{"y": f.ScalarFromUint64(1)},
			share.REP3, share.DefaultParams(), f.Group(), sample.Stream([]byte("inputs")))
		Expect(err).NotTo(HaveOccurred())

		infos := make([]protocol.Info, 3)
		for i := range infos {
			infos[i] = test.Info("solve", party.ID(i), 3, share.REP3, 1)
		}
		errs := test.Run(GinkgoT(), infos, func(ctx context.Context, s *protocol.Session) error {
			_, err := rep3.Solver{}.Solve(ctx, s, c, maps[s.SelfID()], sample.Secure())
			return err
		})
		for _, err := range errs {
			Expect(err).To(MatchError(protocol.ErrProtocolAborted))
		}
		Expect(errs[0]).To(MatchError(circuit.ErrMissingInput))
	})
})
