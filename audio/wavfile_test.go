package audio

import (
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestWAVRecorderRoundTrip(t *testing.T) {
	path := filepath.Join(t.TempDir(), "capture.wav")
	rec, err := NewWAVRecorder(path, 0)
	require.NoError(t, err)

	rec.Write([]float32{0, 0.5, -0.5})
	rec.Write([]float32{0.25})
	assert.Equal(t, 4, rec.Samples())
	require.NoError(t, rec.Close())
	require.NoError(t, rec.Close(), "second close is a no-op")

	pcm, rate, err := ReadWAV(path)
	require.NoError(t, err)
	assert.Equal(t, TargetSampleRate, rate)
	require.Len(t, pcm, 4)
	assert.InDelta(t, 0.5, pcm[1], 1e-3)
	assert.InDelta(t, -0.5, pcm[2], 1e-3)
	assert.InDelta(t, 0.25, pcm[3], 1e-3)
}

func TestReadWAVMissingFile(t *testing.T) {
	_, _, err := ReadWAV(filepath.Join(t.TempDir(), "missing.wav"))
	require.Error(t, err)
}
