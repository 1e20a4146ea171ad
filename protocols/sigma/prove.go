package sigma

import (
	"bytes"
	"context"
	"fmt"
	"math/big"
	"time"

	"github.com/drand/kyber"
	"github.com/luxfi/coproof/pkg/math/curve"
	"github.com/luxfi/coproof/pkg/protocol"
	"github.com/luxfi/coproof/pkg/share"
	"github.com/zeebo/blake3"
	"go.uber.org/zap"
)

const challengeContext = "coproof 2024 sigma challenge"

// challenge hashes the statement and the first message into a scalar.
func challenge(c *curve.Curve, circuitDigest, crsSeed []byte, public []kyber.Scalar, committed, nonce kyber.Point) (kyber.Scalar, error) {
	h := blake3.NewDeriveKey(challengeContext)
	_, _ = h.Write([]byte(c.Name()))
	_, _ = h.Write(circuitDigest)
	_, _ = h.Write(crsSeed)
	for _, x := range public {
		b, err := x.MarshalBinary()
		if err != nil {
			return nil, err
		}
		_, _ = h.Write(b)
	}
	for _, p := range []kyber.Point{committed, nonce} {
		b, err := p.MarshalBinary()
		if err != nil {
			return nil, err
		}
		_, _ = h.Write(b)
	}
	// 64 bytes keep the reduction bias negligible
	wide := make([]byte, 64)
	if _, err := h.Digest().Read(wide); err != nil {
		return nil, err
	}
	return c.ScalarFromBig(new(big.Int).SetBytes(wide)), nil
}

// commit returns the share of Σ xᵢ·Gᵢ + blind·H.
func commit(codec share.Codec, xs []share.Share, gens []kyber.Point, blind share.Share, h kyber.Point) share.PointShare {
	acc := codec.Act(blind, h)
	for i, x := range xs {
		acc = codec.AddPoint(acc, codec.Act(x, gens[i]))
	}
	return acc
}

// Prove produces a proof for the witness of pk. Every party runs it with the
// same driver session; all parties obtain the same proof.
func Prove(ctx context.Context, d protocol.Driver, pk *ProvingKey) (*Proof, error) {
	start := time.Now()
	sess, codec := d.Session(), d.Codec()
	field := pk.crs.Field()
	secret := pk.witness.Shares()
	for i, s := range secret {
		if s.Scheme != codec.Scheme() || s.Owner != sess.SelfID() {
			return nil, sess.Abort(fmt.Errorf("%w: witness share %d is %s", share.ErrSchemeMismatch, i, s))
		}
	}

	// ρ, then one nonce per secret wire, then the nonce of ρ
	random, err := d.Rand(ctx, len(secret)+2)
	if err != nil {
		return nil, err
	}
	blind, nonces, blindNonce := random[0], random[1:len(secret)+1], random[len(secret)+1]
	h := pk.crs.Blinding()

	points, err := d.OpenPoints(ctx, []share.PointShare{
		commit(codec, secret, pk.generators, blind, h),
		commit(codec, nonces, pk.generators, blindNonce, h),
	})
	if err != nil {
		return nil, err
	}
	public := pk.witness.PublicValues()
	e, err := challenge(field, pk.digest, pk.crs.Seed, public, points[0], points[1])
	if err != nil {
		return nil, sess.Abort(err)
	}

	z := make([]share.Share, 0, len(secret)+1)
	for i, w := range secret {
		z = append(z, codec.Add(nonces[i], codec.MulPublic(w, e)))
	}
	z = append(z, codec.Add(blindNonce, codec.MulPublic(blind, e)))
	responses, err := d.Open(ctx, z)
	if err != nil {
		return nil, err
	}
	sess.Logger().Info("proof generated",
		zap.Int("secret wires", len(secret)),
		zap.Duration("duration", time.Since(start)))
	return &Proof{Public: public, Committed: points[0], Nonce: points[1], Responses: responses}, nil
}

// Verify checks Σ zᵢ·Gᵢ + z_ρ·H = T + e·C. Any malformed input gives false.
func Verify(crs *CRS, vk *VerifyingKey, data []byte) bool {
	if vk.Curve != crs.Curve || !bytes.Equal(vk.CRS, crs.Seed) {
		return false
	}
	field := crs.Field()
	p, err := UnmarshalProof(field, data)
	if err != nil {
		return false
	}
	if len(p.Public) != len(vk.Public) || len(p.Responses) != vk.Secret()+1 {
		return false
	}
	// wire 0 carries the constant one
	if len(vk.Public) > 0 && vk.Public[0] == 0 && !p.Public[0].Equal(field.Group().Scalar().One()) {
		return false
	}
	gens, err := crs.Generators(vk.Secret())
	if err != nil {
		return false
	}
	e, err := challenge(field, vk.Circuit, vk.CRS, p.Public, p.Committed, p.Nonce)
	if err != nil {
		return false
	}

	g := field.Group()
	lhs := g.Point().Mul(p.Responses[len(gens)], crs.Blinding())
	for i, gen := range gens {
		lhs.Add(lhs, g.Point().Mul(p.Responses[i], gen))
	}
	rhs := g.Point().Mul(e, p.Committed)
	rhs.Add(rhs, p.Nonce)
	return lhs.Equal(rhs)
}
