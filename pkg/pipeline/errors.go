package pipeline

import (
	"errors"
	"fmt"

	"github.com/luxfi/coproof/pkg/circuit"
	"github.com/luxfi/coproof/pkg/config"
	"github.com/luxfi/coproof/pkg/math/curve"
	"github.com/luxfi/coproof/pkg/protocol"
	"github.com/luxfi/coproof/pkg/share"
	"github.com/luxfi/coproof/protocols/sigma"
	"github.com/luxfi/coproof/protocols/translate"
)

var (
	// ErrMissingArtifact means a stage input does not exist, typically
	// because the stage producing it has not run.
	ErrMissingArtifact = errors.New("pipeline: missing input artifact")
	// ErrInvalidRequest means a stage was invoked with unusable arguments.
	ErrInvalidRequest = errors.New("pipeline: invalid request")
)

// Kind classifies failures.
type Kind uint8

const (
	// KindIO covers missing, unreadable, unwritable and malformed artifacts.
	KindIO Kind = iota
	// KindConfiguration covers invalid scheme parameters and illegal stage
	// combinations, as well as input names the circuit does not declare.
	KindConfiguration
	// KindProtocol means the shares or the session can no longer be
	// trusted; the stage must be re-run with fresh inputs.
	KindProtocol
)

func (k Kind) String() string {
	switch k {
	case KindIO:
		return "io error"
	case KindConfiguration:
		return "configuration error"
	case KindProtocol:
		return "protocol error"
	}
	return fmt.Sprintf("kind(%d)", uint8(k))
}

// Error is returned by every stage.
type Error struct {
	Stage Stage
	Kind  Kind
	Err   error
}

func (e *Error) Error() string {
	return fmt.Sprintf("%s: %s: %v", e.Stage, e.Kind, e.Err)
}

func (e *Error) Unwrap() error { return e.Err }

var (
	protocolErrors = []error{
		protocol.ErrProtocolAborted,
		protocol.ErrParameterMismatch,
		share.ErrInsufficientShares,
		share.ErrSchemeMismatch,
		share.ErrInconsistentShares,
		share.ErrDuplicateShareKey,
		share.ErrTooFewContributors,
		translate.ErrRandomnessExhausted,
	}
	configurationErrors = []error{
		share.ErrInvalidParameters,
		translate.ErrUnsupportedTranslation,
		curve.ErrUnknownCurve,
		config.ErrInvalidConfig,
		sigma.ErrCRSTooSmall,
		circuit.ErrUnknownInput,
		circuit.ErrMissingInput,
		ErrInvalidRequest,
	}
)

// KindOf classifies err.
func KindOf(err error) Kind {
	var e *Error
	if errors.As(err, &e) {
		return e.Kind
	}
	for _, target := range protocolErrors {
		if errors.Is(err, target) {
			return KindProtocol
		}
	}
	for _, target := range configurationErrors {
		if errors.Is(err, target) {
			return KindConfiguration
		}
	}
	return KindIO
}
