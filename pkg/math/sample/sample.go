// Package sample provides the randomness sources used for sharing and
// masking.
package sample

import (
	"crypto/cipher"
	"encoding/binary"

	"github.com/drand/kyber"
	"github.com/drand/kyber/util/random"
	"github.com/zeebo/blake3"
	"golang.org/x/crypto/chacha20"
)

const streamContext = "coproof 2024 sample stream"

// Secure returns a stream backed by the operating system's CSPRNG.
func Secure() cipher.Stream {
	return random.New()
}

// Stream returns a deterministic ChaCha20 stream keyed by seed.
// Distinct labels give independent streams for the same seed.
func Stream(seed []byte, label ...string) cipher.Stream {
	h := blake3.NewDeriveKey(streamContext)
	_, _ = h.Write(seed)
	for _, l := range label {
		var n [8]byte
		binary.BigEndian.PutUint64(n[:], uint64(len(l)))
		_, _ = h.Write(n[:])
		_, _ = h.Write([]byte(l))
	}
	key := h.Sum(nil)
	s, err := chacha20.NewUnauthenticatedCipher(key[:chacha20.KeySize], make([]byte, chacha20.NonceSize))
	if err != nil {
		// key and nonce have fixed valid sizes
		panic(err)
	}
	return s
}

// Seed reads a fresh 32 byte seed from rand.
func Seed(rand cipher.Stream) []byte {
	seed := make([]byte, 32)
	rand.XORKeyStream(seed, seed)
	return seed
}

// Scalar returns a uniformly random element of g's scalar field.
func Scalar(rand cipher.Stream, g kyber.Group) kyber.Scalar {
	return g.Scalar().Pick(rand)
}

// Scalars returns n random scalars.
func Scalars(rand cipher.Stream, g kyber.Group, n int) []kyber.Scalar {
	out := make([]kyber.Scalar, n)
	for i := range out {
		out[i] = g.Scalar().Pick(rand)
	}
	return out
}
