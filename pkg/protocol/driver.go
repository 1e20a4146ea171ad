package protocol

import (
	"context"

	"github.com/drand/kyber"
	"github.com/luxfi/coproof/pkg/share"
)

// Driver performs the collective operations a proving backend needs on top
// of the local linear algebra of a share.Codec.
type Driver interface {
	// Codec returns the scheme the driver operates on.
	Codec() share.Codec
	// Session returns the session the driver runs in.
	Session() *Session
	// Rand returns the local shares of n fresh random values no party knows.
	Rand(ctx context.Context, n int) ([]share.Share, error)
	// Open reveals the values behind shares to every party.
	Open(ctx context.Context, shares []share.Share) ([]kyber.Scalar, error)
	// OpenPoints reveals the group elements behind shares to every party.
	OpenPoints(ctx context.Context, shares []share.PointShare) ([]kyber.Point, error)
}
