package pipeline

import (
	"context"
	"crypto/cipher"
	"errors"
	"fmt"
	"strconv"
	"sync/atomic"
	"time"

	"github.com/drand/kyber"
	"github.com/luxfi/coproof/pkg/artifact"
	"github.com/luxfi/coproof/pkg/circuit"
	"github.com/luxfi/coproof/pkg/math/curve"
	"github.com/luxfi/coproof/pkg/math/sample"
	"github.com/luxfi/coproof/pkg/party"
	"github.com/luxfi/coproof/pkg/protocol"
	"github.com/luxfi/coproof/pkg/share"
	"github.com/luxfi/coproof/pkg/transport"
	"github.com/luxfi/coproof/pkg/witness"
	"github.com/luxfi/coproof/protocols/rep3"
	"github.com/luxfi/coproof/protocols/sigma"
	"go.uber.org/zap"
)

// Solver extends shared inputs to a full witness.
type Solver interface {
	Solve(ctx context.Context, sess *protocol.Session, c *circuit.Circuit, inputs share.NamedShareMap, rand cipher.Stream) (witness.Vector, error)
}

// ProofSystem creates proving material, proves and verifies.
type ProofSystem interface {
	CreateCRS(c *curve.Curve, size int, rand cipher.Stream) ([]byte, error)
	Prove(ctx context.Context, d protocol.Driver, c *circuit.Circuit, w witness.Vector, crs []byte) ([]byte, []kyber.Scalar, error)
	VerifyingKey(c *circuit.Circuit, crs []byte) ([]byte, error)
	Verify(proof, vk, crs []byte) (bool, error)
}

// Connector opens the transport of a network stage. The orchestrator closes
// the returned messenger when the stage ends.
type Connector interface {
	Connect(ctx context.Context) (transport.Messenger, error)
}

// ConnectorFunc adapts a function to Connector.
type ConnectorFunc func(ctx context.Context) (transport.Messenger, error)

func (f ConnectorFunc) Connect(ctx context.Context) (transport.Messenger, error) { return f(ctx) }

// Orchestrator runs the stages of one party.
type Orchestrator struct {
	self      party.ID
	connector Connector
	solver    Solver
	proof     ProofSystem
	log       *zap.Logger
	timeout   time.Duration
	seed      []byte
	draws     atomic.Uint64
	locks     *locks
}

// Option configures an Orchestrator.
type Option func(*Orchestrator)

// WithNetwork enables the network stages for party self.
func WithNetwork(self party.ID, c Connector) Option {
	return func(o *Orchestrator) {
		o.self = self
		o.connector = c
	}
}

// WithSolver replaces the default REP3 solver.
func WithSolver(s Solver) Option {
	return func(o *Orchestrator) { o.solver = s }
}

// WithProofSystem replaces the default sigma proof system.
func WithProofSystem(p ProofSystem) Option {
	return func(o *Orchestrator) { o.proof = p }
}

// WithLogger sets the logger.
func WithLogger(l *zap.Logger) Option {
	return func(o *Orchestrator) { o.log = l }
}

// WithRoundTimeout bounds every collective round of the network stages.
func WithRoundTimeout(d time.Duration) Option {
	return func(o *Orchestrator) { o.timeout = d }
}

// WithSeed makes all randomness of the orchestrator derive from seed. Only
// for tests and simulations.
func WithSeed(seed []byte) Option {
	return func(o *Orchestrator) { o.seed = seed }
}

// New returns an orchestrator. Without WithNetwork only the offline stages
// are available.
func New(opts ...Option) *Orchestrator {
	o := &Orchestrator{
		solver: rep3.Solver{},
		proof:  sigma.System{},
		log:    zap.NewNop(),
		locks:  newLocks(),
	}
	for _, opt := range opts {
		opt(o)
	}
	return o
}

// Self returns the party the orchestrator runs network stages for.
func (o *Orchestrator) Self() party.ID { return o.self }

// rand returns a stream private to one stage invocation.
func (o *Orchestrator) rand(stage Stage) cipher.Stream {
	if o.seed == nil {
		return sample.Secure()
	}
	n := o.draws.Add(1)
	return sample.Stream(o.seed, stage.String(), strconv.Itoa(int(o.self)), strconv.FormatUint(n, 10))
}

func (o *Orchestrator) logger(stage Stage) *zap.Logger {
	l := o.log.With(zap.Stringer("stage", stage))
	if stage.Network() {
		l = l.With(zap.Stringer("party", o.self))
	}
	return l
}

func fail(stage Stage, err error) error {
	if err == nil {
		return nil
	}
	var e *Error
	if errors.As(err, &e) {
		return err
	}
	return &Error{Stage: stage, Kind: KindOf(err), Err: err}
}

func invalid(format string, args ...any) error {
	return fmt.Errorf("%w: "+format, append([]any{ErrInvalidRequest}, args...)...)
}

// requireArtifacts fails with ErrMissingArtifact for the first path that does not
// exist.
func requireArtifacts(paths ...string) error {
	for _, p := range paths {
		ok, err := artifact.Exists(p)
		if err != nil {
			return err
		}
		if !ok {
			return fmt.Errorf("%w: %s", ErrMissingArtifact, p)
		}
	}
	return nil
}

func nonEmpty(names map[string]string) error {
	for flag, v := range names {
		if v == "" {
			return invalid("%s path is empty", flag)
		}
	}
	return nil
}

// timed logs the duration of step.
func timed(l *zap.Logger, step string, f func() error) error {
	start := time.Now()
	err := f()
	if err == nil {
		l.Info(step, zap.Duration("duration", time.Since(start)))
	}
	return err
}

// session connects and opens a session for stage. The returned function
// closes the transport.
func (o *Orchestrator) session(ctx context.Context, stage Stage, info protocol.Info) (*protocol.Session, func(), error) {
	if o.connector == nil {
		return nil, nil, invalid("%s needs a network", stage)
	}
	info.ProtocolID = stage.String()
	info.SelfID = o.self
	m, err := o.connector.Connect(ctx)
	if err != nil {
		return nil, nil, fmt.Errorf("%w: connect: %v", protocol.ErrProtocolAborted, err)
	}
	closer := func() {
		if err := m.Close(); err != nil {
			o.log.Debug("closing transport", zap.Error(err))
		}
	}
	opts := []protocol.Option{protocol.WithLogger(o.logger(stage))}
	if o.timeout > 0 {
		opts = append(opts, protocol.WithRoundTimeout(o.timeout))
	}
	sess, err := protocol.NewSession(ctx, info, m, opts...)
	if err != nil {
		closer()
		return nil, nil, err
	}
	return sess, closer, nil
}

// checkHeader fails if a share file was written for other parameters than
// the stage runs with.
func checkHeader(path string, h artifact.Header, scheme share.Scheme, params share.Params) error {
	if h.Scheme != scheme || h.Params() != params {
		return fmt.Errorf("%s: %w: file holds %s shares for %d parties and threshold %d, stage runs %s for %d parties and threshold %d",
			path, share.ErrSchemeMismatch, h.Scheme, h.Parties, h.Threshold, scheme, params.Parties, params.Threshold)
	}
	return nil
}
