package audio_test

import (
	"errors"
	"sync/atomic"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/lisuiheng/voicecap/audio"
	"github.com/lisuiheng/voicecap/audio/audiotest"
)

var (
	brokenFactoryCalls  atomic.Int32
	workingFactoryCalls atomic.Int32
)

func init() {
	audio.RegisterBackend("registry-test-broken", 1000, func() (audio.Backend, error) {
		brokenFactoryCalls.Add(1)
		return nil, errors.New("no sound card")
	})
	audio.RegisterBackend("registry-test-working", 900, func() (audio.Backend, error) {
		workingFactoryCalls.Add(1)
		return audiotest.NewFakeBackend(), nil
	})
}

func TestBackendsOrderedByPriority(t *testing.T) {
	names := audio.Backends()
	require.GreaterOrEqual(t, len(names), 2)
	assert.Equal(t, "registry-test-broken", names[0])
	assert.Equal(t, "registry-test-working", names[1])
}

func TestRegisterBackendDuplicatePanics(t *testing.T) {
	assert.Panics(t, func() {
		audio.RegisterBackend("registry-test-working", 1, func() (audio.Backend, error) { return nil, nil })
	})
}

func TestNewBackendByName(t *testing.T) {
	backend, err := audio.NewBackend("registry-test-working")
	require.NoError(t, err)
	assert.Equal(t, "fake", backend.Name())

	_, err = audio.NewBackend("registry-test-broken")
	require.Error(t, err)

	_, err = audio.NewBackend("does-not-exist")
	require.ErrorIs(t, err, audio.ErrNoBackend)
}

func TestNewBackendAutoRemembersWorkingBackend(t *testing.T) {
	backend, err := audio.NewBackend("auto")
	require.NoError(t, err)
	assert.Equal(t, "fake", backend.Name())

	broken := brokenFactoryCalls.Load()
	_, err = audio.NewBackendAuto()
	require.NoError(t, err)
	assert.Equal(t, broken, brokenFactoryCalls.Load(), "last working backend is tried first")
}

func TestGlobalInstance(t *testing.T) {
	cfg := audio.DefaultConfig()
	audio.SetDefaults("registry-test-working", cfg, discardLogger())

	require.NoError(t, audio.Preinitialize())
	first, err := audio.Instance()
	require.NoError(t, err)
	second, err := audio.Instance()
	require.NoError(t, err)
	assert.Same(t, first, second)

	require.NoError(t, audio.Shutdown())
	require.NoError(t, audio.Shutdown())
	_, err = first.CreateSound(make([]float32, 10), 0)
	require.ErrorIs(t, err, audio.ErrManagerClosed)
}
