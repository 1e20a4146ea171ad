package sample_test

import (
	"testing"

	"github.com/drand/kyber/pairing/bn256"
	"github.com/luxfi/coproof/pkg/math/sample"
	"github.com/stretchr/testify/assert"
)

func TestStreamDeterministic(t *testing.T) {
	g := bn256.NewSuite().G1()
	seed := []byte("seed")

	a := sample.Scalars(sample.Stream(seed), g, 4)
	b := sample.Scalars(sample.Stream(seed), g, 4)
	for i := range a {
		assert.True(t, a[i].Equal(b[i]))
	}

	c := sample.Scalar(sample.Stream(seed, "other"), g)
	assert.False(t, a[0].Equal(c))

	// labels are length prefixed
	d := sample.Scalar(sample.Stream(seed, "ab", "c"), g)
	e := sample.Scalar(sample.Stream(seed, "a", "bc"), g)
	assert.False(t, d.Equal(e))
}

func TestSeed(t *testing.T) {
	s1 := sample.Seed(sample.Secure())
	s2 := sample.Seed(sample.Secure())
	assert.Len(t, s1, 32)
	assert.NotEqual(t, s1, s2)
}
