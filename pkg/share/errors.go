package share

import (
	"errors"
	"fmt"
)

var (
	ErrInvalidParameters  = errors.New("share: invalid scheme parameters")
	ErrInsufficientShares = errors.New("share: insufficient shares")
	ErrSchemeMismatch     = errors.New("share: scheme mismatch")
	ErrInconsistentShares = errors.New("share: inconsistent shares")
	ErrTooFewContributors = errors.New("share: too few contributors")
	ErrDuplicateShareKey  = errors.New("share: duplicate share key")
)

// DuplicateKeyError is returned by Merge when a name is contributed twice.
type DuplicateKeyError struct {
	Key string
}

func (e DuplicateKeyError) Error() string {
	return fmt.Sprintf("%v: %q", ErrDuplicateShareKey, e.Key)
}

// Is makes DuplicateKeyError match ErrDuplicateShareKey.
func (e DuplicateKeyError) Is(target error) bool {
	return target == ErrDuplicateShareKey
}
