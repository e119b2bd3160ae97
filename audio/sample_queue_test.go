package audio

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSampleQueueFIFO(t *testing.T) {
	q := NewSampleQueue(8)
	require.NoError(t, q.Push([]float32{1, 2, 3}))
	require.NoError(t, q.Push([]float32{4, 5}))
	assert.Equal(t, 5, q.Available())
	assert.Equal(t, 3, q.Free())

	got, err := q.Take(2)
	require.NoError(t, err)
	assert.Equal(t, []float32{1, 2}, got)

	got, err = q.Take(3)
	require.NoError(t, err)
	assert.Equal(t, []float32{3, 4, 5}, got)
	assert.Zero(t, q.Available())
	assert.Equal(t, 8, q.Free())
}

func TestSampleQueueTakeInsufficient(t *testing.T) {
	q := NewSampleQueue(4)
	require.NoError(t, q.Push([]float32{1, 2}))

	_, err := q.Take(3)
	require.ErrorIs(t, err, ErrInsufficientData)
	assert.Equal(t, 2, q.Available(), "failed take must not consume")

	_, err = q.Take(-1)
	require.ErrorIs(t, err, ErrInsufficientData)
}

func TestSampleQueuePushFull(t *testing.T) {
	q := NewSampleQueue(4)
	require.NoError(t, q.Push([]float32{1, 2, 3}))

	err := q.Push([]float32{4, 5})
	require.ErrorIs(t, err, ErrQueueFull)
	assert.Equal(t, 3, q.Available(), "rejected push must not write")
	assert.Equal(t, 4, q.Cap())
}

func TestSampleQueueCompactsAfterPartialTake(t *testing.T) {
	q := NewSampleQueue(4)
	require.NoError(t, q.Push([]float32{1, 2, 3, 4}))
	_, err := q.Take(3)
	require.NoError(t, err)

	require.NoError(t, q.Push([]float32{5, 6, 7}))
	got, err := q.Take(4)
	require.NoError(t, err)
	assert.Equal(t, []float32{4, 5, 6, 7}, got)
	assert.Equal(t, 4, q.Cap())
}

func TestSampleQueueTakeReturnsCopy(t *testing.T) {
	q := NewSampleQueue(4)
	require.NoError(t, q.Push([]float32{1, 2}))
	got, err := q.Take(1)
	require.NoError(t, err)
	got[0] = 99

	require.NoError(t, q.Push([]float32{3}))
	rest, err := q.Take(2)
	require.NoError(t, err)
	assert.Equal(t, []float32{2, 3}, rest)
}

func TestSampleQueueReserve(t *testing.T) {
	q := NewSampleQueue(2)
	require.NoError(t, q.Reserve(10*FrameSize))
	assert.Equal(t, 10*FrameSize, q.Cap())

	require.NoError(t, q.Push(make([]float32, FrameSize)))
	require.ErrorIs(t, q.Reserve(FrameSize), ErrQueueNotEmpty)

	q.Clear()
	assert.Zero(t, q.Available())
	require.NoError(t, q.Reserve(FrameSize))
	assert.Equal(t, FrameSize, q.Free())
}
