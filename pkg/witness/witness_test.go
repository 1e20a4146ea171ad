package witness_test

import (
	"testing"

	"github.com/drand/kyber"
	"github.com/drand/kyber/pairing/bn256"
	"github.com/luxfi/coproof/pkg/math/sample"
	"github.com/luxfi/coproof/pkg/share"
	"github.com/luxfi/coproof/pkg/witness"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var group = bn256.NewSuite().G1()

// untouched fails the test if any randomness is drawn from it.
type untouched struct{ t *testing.T }

func (u untouched) XORKeyStream(dst, src []byte) {
	u.t.Fatal("randomness consumed")
}

func scalars(vs ...int64) []kyber.Scalar {
	out := make([]kyber.Scalar, len(vs))
	for i, v := range vs {
		out[i] = group.Scalar().SetInt64(v)
	}
	return out
}

func TestShareWitnessREP3(t *testing.T) {
	values := scalars(3, 5, 8, 1)
	vectors, err := witness.ShareWitness(values, []int{0}, share.REP3, share.DefaultParams(), group, sample.Secure())
	require.NoError(t, err)
	require.Len(t, vectors, 3)

	for p, v := range vectors {
		require.Len(t, v, 4)
		assert.True(t, v[0].IsPublic())
		assert.True(t, v[0].Public.Equal(values[0]))
		for _, slot := range v[1:] {
			assert.False(t, slot.IsPublic())
			assert.Equal(t, share.REP3, slot.Shared.Scheme)
			assert.EqualValues(t, p, slot.Shared.Owner)
		}
		owner, ok := v.Owner()
		assert.True(t, ok)
		assert.EqualValues(t, p, owner)
	}

	codec, err := share.NewCodec(share.REP3, share.DefaultParams(), group)
	require.NoError(t, err)
	for _, pair := range [][2]int{{0, 1}, {1, 2}, {2, 0}} {
		opened, err := witness.Open(codec, vectors[pair[0]], vectors[pair[1]])
		require.NoError(t, err)
		for i := range values {
			assert.True(t, values[i].Equal(opened[i]), "slot %d", i)
		}
	}

	_, err = witness.Open(codec, vectors[0])
	assert.ErrorIs(t, err, share.ErrInsufficientShares)
}

func TestShareWitnessShamir(t *testing.T) {
	params := share.Params{Parties: 5, Threshold: 2}
	values := scalars(9, 0, 4, 4, 2)
	vectors, err := witness.ShareWitness(values, []int{1, 3}, share.Shamir, params, group, sample.Secure())
	require.NoError(t, err)
	require.Len(t, vectors, 5)

	codec, err := share.NewCodec(share.Shamir, params, group)
	require.NoError(t, err)
	opened, err := witness.Open(codec, vectors[4], vectors[0], vectors[2])
	require.NoError(t, err)
	for i := range values {
		assert.True(t, values[i].Equal(opened[i]), "slot %d", i)
	}

	assert.Len(t, vectors[0].Shares(), 3)
	assert.Len(t, vectors[0].PublicValues(), 2)
}

func TestShareWitnessFailFast(t *testing.T) {
	values := scalars(1, 2, 3)

	_, err := witness.ShareWitness(values, nil, share.REP3, share.Params{Parties: 4, Threshold: 1}, group, untouched{t})
	assert.ErrorIs(t, err, share.ErrInvalidParameters)

	_, err = witness.ShareWitness(values, nil, share.Shamir, share.Params{Parties: 3, Threshold: 3}, group, untouched{t})
	assert.ErrorIs(t, err, share.ErrInvalidParameters)

	_, err = witness.ShareWitness(values, []int{0, 3}, share.REP3, share.DefaultParams(), group, untouched{t})
	assert.ErrorIs(t, err, witness.ErrIndexOutOfBounds)
}

func TestShareInput(t *testing.T) {
	inputs := map[string]kyber.Scalar{
		"a":    group.Scalar().SetInt64(3),
		"b[0]": group.Scalar().SetInt64(0),
		"b[1]": group.Scalar().SetInt64(12),
	}
	maps, err := witness.ShareInput(inputs, share.REP3, share.DefaultParams(), group, sample.Secure())
	require.NoError(t, err)
	require.Len(t, maps, 3)

	codec, err := share.NewCodec(share.REP3, share.DefaultParams(), group)
	require.NoError(t, err)
	for name, want := range inputs {
		got, err := codec.Reconstruct([]share.Share{maps[0][name], maps[2][name]})
		require.NoError(t, err)
		assert.True(t, want.Equal(got), name)
	}

	_, err = witness.ShareInput(inputs, share.Shamir, share.Params{Parties: 1, Threshold: 1}, group, untouched{t})
	assert.ErrorIs(t, err, share.ErrInvalidParameters)
}

func TestShareInputDeterministic(t *testing.T) {
	inputs := map[string]kyber.Scalar{
		"x": group.Scalar().SetInt64(1),
		"y": group.Scalar().SetInt64(2),
		"z": group.Scalar().SetInt64(3),
	}
	a, err := witness.ShareInput(inputs, share.Shamir, share.DefaultParams(), group, sample.Stream([]byte("in")))
	require.NoError(t, err)
	b, err := witness.ShareInput(inputs, share.Shamir, share.DefaultParams(), group, sample.Stream([]byte("in")))
	require.NoError(t, err)
	for p := range a {
		for name := range inputs {
			assert.True(t, a[p][name].Value.Equal(b[p][name].Value))
		}
	}
}

func TestReplace(t *testing.T) {
	values := scalars(1, 2, 3)
	vectors, err := witness.ShareWitness(values, []int{1}, share.REP3, share.DefaultParams(), group, sample.Secure())
	require.NoError(t, err)

	v := vectors[0]
	replaced, err := v.Replace(v.Shares())
	require.NoError(t, err)
	assert.Equal(t, v, replaced)

	_, err = v.Replace(v.Shares()[:1])
	assert.ErrorIs(t, err, witness.ErrLengthMismatch)
}
