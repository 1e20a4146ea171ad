package pipeline

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sync/atomic"
	"testing"
	"time"

	"github.com/luxfi/coproof/pkg/artifact"
	"github.com/luxfi/coproof/pkg/circuit"
	"github.com/luxfi/coproof/pkg/protocol"
	"github.com/luxfi/coproof/pkg/share"
	"github.com/luxfi/coproof/protocols/translate"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestKindOf(t *testing.T) {
	for _, tc := range []struct {
		err  error
		kind Kind
	}{
		{fmt.Errorf("x: %w", share.ErrInvalidParameters), KindConfiguration},
		{translate.ErrUnsupportedTranslation, KindConfiguration},
		{invalid("empty path"), KindConfiguration},
		{fmt.Errorf("in.json: %w: %q", circuit.ErrUnknownInput, "z"), KindConfiguration},
		{fmt.Errorf("%w: a", ErrMissingArtifact), KindIO},
		{os.ErrPermission, KindIO},
		{artifact.ErrMalformed, KindIO},
		{share.ErrDuplicateShareKey, KindProtocol},
		{share.DuplicateKeyError{Key: "a"}, KindProtocol},
		{translate.ErrRandomnessExhausted, KindProtocol},
		{protocol.Error{Err: fmt.Errorf("%w: %w", protocol.ErrProtocolAborted, share.ErrInvalidParameters)}, KindProtocol},
		{&Error{Stage: Verify, Kind: KindConfiguration, Err: os.ErrNotExist}, KindConfiguration},
	} {
		assert.Equal(t, tc.kind, KindOf(tc.err), "%v", tc.err)
	}
}

func TestFail(t *testing.T) {
	assert.NoError(t, fail(SplitInput, nil))

	err := fail(SplitInput, share.ErrSchemeMismatch)
	var e *Error
	require.True(t, errors.As(err, &e))
	assert.Equal(t, SplitInput, e.Stage)
	assert.Equal(t, KindProtocol, e.Kind)
	assert.ErrorIs(t, err, share.ErrSchemeMismatch)
	assert.Equal(t, "split-input: protocol error: share: scheme mismatch", err.Error())

	// already classified errors keep their stage
	assert.Same(t, err, fail(Verify, err))
}

func TestRequireArtifacts(t *testing.T) {
	dir := t.TempDir()
	present := filepath.Join(dir, "present")
	require.NoError(t, os.WriteFile(present, nil, 0600))

	assert.NoError(t, requireArtifacts(present))
	err := requireArtifacts(present, filepath.Join(dir, "absent"))
	assert.ErrorIs(t, err, ErrMissingArtifact)
	assert.Contains(t, err.Error(), "absent")
	assert.Equal(t, KindIO, KindOf(err))
}

func TestStages(t *testing.T) {
	names := make(map[string]bool)
	for _, s := range Stages() {
		d := s.Describe()
		assert.NotEmpty(t, d.Name)
		assert.NotEmpty(t, d.Produces, s.String())
		assert.False(t, names[d.Name], "duplicate name %s", d.Name)
		names[d.Name] = true
	}
	for _, s := range []Stage{GenerateWitness, TranslateWitness, GenerateProof} {
		assert.True(t, s.Network(), s.String())
	}
	for _, s := range []Stage{SplitWitness, SplitInput, MergeInputShares, CreateVK, Verify, CreateCRS} {
		assert.False(t, s.Network(), s.String())
	}
	assert.Equal(t, "stage(200)", Stage(200).String())
}

func TestLocks(t *testing.T) {
	dir := t.TempDir()
	a, b := filepath.Join(dir, "a"), filepath.Join(dir, "b")
	l := newLocks()

	t.Run("readers share", func(t *testing.T) {
		release := l.acquire([]string{a}, nil)
		done := make(chan struct{})
		go func() {
			l.acquire([]string{a, ""}, nil)()
			close(done)
		}()
		select {
		case <-done:
		case <-time.After(time.Second):
			t.Fatal("second reader blocked")
		}
		release()
	})

	t.Run("writer excludes", func(t *testing.T) {
		release := l.acquire([]string{a}, []string{b})
		// the relative spelling of b names the same artifact
		rel, err := filepath.Rel(mustWd(t), b)
		require.NoError(t, err)
		var entered atomic.Bool
		done := make(chan struct{})
		go func() {
			l.acquire([]string{rel}, nil)()
			entered.Store(true)
			close(done)
		}()
		time.Sleep(50 * time.Millisecond)
		assert.False(t, entered.Load())
		release()
		<-done
		assert.True(t, entered.Load())
	})

	t.Run("disjoint writers", func(t *testing.T) {
		release := l.acquire(nil, []string{a})
		done := make(chan struct{})
		go func() {
			l.acquire(nil, []string{b})()
			close(done)
		}()
		select {
		case <-done:
		case <-time.After(time.Second):
			t.Fatal("disjoint writer blocked")
		}
		release()
	})

	t.Run("read and write of the same path", func(t *testing.T) {
		l.acquire([]string{a}, []string{a})()
	})
}

func mustWd(t *testing.T) string {
	wd, err := os.Getwd()
	require.NoError(t, err)
	return wd
}
