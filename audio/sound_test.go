package audio_test

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/lisuiheng/voicecap/audio"
)

func TestSoundLifecycle(t *testing.T) {
	h := newHarness(t)
	require.NoError(t, h.m.SetActivePlaybackDeviceID(0))

	_, err := h.m.CreateSound(nil, audio.TargetSampleRate)
	require.Error(t, err)

	sound, err := h.m.CreateSound(make([]float32, 480), 0)
	require.NoError(t, err)
	sounds := h.backend.Sounds()
	require.Len(t, sounds, 1)
	assert.Equal(t, audio.TargetSampleRate, sounds[0].SampleRate(), "zero rate defaults to the target rate")

	ch, err := h.m.PlaySound(sound)
	require.NoError(t, err)
	assert.True(t, h.m.IsPlaying(ch))
	assert.Equal(t, "Speakers", h.backend.LastChannel().Device.Name)

	require.NoError(t, h.m.StopChannel(ch))
	assert.False(t, h.m.IsPlaying(ch))
	require.ErrorIs(t, h.m.StopChannel(ch), audio.ErrInvalidHandle)

	require.NoError(t, h.m.ReleaseSound(sound))
	assert.True(t, sounds[0].Released())
	require.ErrorIs(t, h.m.ReleaseSound(sound), audio.ErrInvalidHandle)
	_, err = h.m.PlaySound(sound)
	require.ErrorIs(t, err, audio.ErrInvalidHandle)
}

func TestFinishedChannelsAreReaped(t *testing.T) {
	h := newHarness(t)
	sound, err := h.m.CreateSound(make([]float32, 10), audio.TargetSampleRate)
	require.NoError(t, err)

	first, err := h.m.PlaySound(sound)
	require.NoError(t, err)
	firstChannel := h.backend.LastChannel()
	firstChannel.Finish()
	assert.False(t, h.m.IsPlaying(first))

	_, err = h.m.PlaySound(sound)
	require.NoError(t, err)
	assert.True(t, firstChannel.Stopped())
	require.ErrorIs(t, h.m.StopChannel(first), audio.ErrInvalidHandle)
}

func TestHandlesInvalidAfterClose(t *testing.T) {
	h := newHarness(t)
	sound, err := h.m.CreateSound(make([]float32, 10), audio.TargetSampleRate)
	require.NoError(t, err)
	ch, err := h.m.PlaySound(sound)
	require.NoError(t, err)

	require.NoError(t, h.m.Close())
	assert.True(t, h.backend.LastChannel().Stopped())
	assert.True(t, h.backend.Sounds()[0].Released())

	assert.False(t, h.m.IsPlaying(ch))
	require.ErrorIs(t, h.m.ReleaseSound(sound), audio.ErrInvalidHandle)
	_, err = h.m.CreateSound(make([]float32, 10), 0)
	require.ErrorIs(t, err, audio.ErrManagerClosed)
}

func TestZeroHandleIsInvalid(t *testing.T) {
	h := newHarness(t)
	_, err := h.m.PlaySound(audio.SoundHandle{})
	require.ErrorIs(t, err, audio.ErrInvalidHandle)
	assert.False(t, h.m.IsPlaying(audio.ChannelHandle{}))
}
