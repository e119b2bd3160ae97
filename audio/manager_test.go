package audio_test

import (
	"errors"
	"io"
	"log/slog"
	"testing"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/lisuiheng/voicecap/audio"
	"github.com/lisuiheng/voicecap/audio/audiotest"
)

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

type harness struct {
	m       *audio.Manager
	backend *audiotest.FakeBackend
	encoder *audiotest.FakeEncoder
	frames  []audio.EncodedFrame
}

func newHarness(t *testing.T, opts ...func(*audio.Config)) *harness {
	t.Helper()
	cfg := audio.DefaultConfig()
	for _, opt := range opts {
		opt(&cfg)
	}
	h := &harness{
		backend: audiotest.NewFakeBackend(),
		encoder: &audiotest.FakeEncoder{},
	}
	m, err := audio.NewManualManager(h.backend, h.encoder, cfg, discardLogger())
	require.NoError(t, err)
	h.m = m
	t.Cleanup(func() { _ = m.Close() })
	return h
}

func (h *harness) onFrame(frame audio.EncodedFrame) {
	h.frames = append(h.frames, frame)
}

// startActive 选择设备 2 并开始分帧录音，返回已启动的采集流
func (h *harness) startActive(t *testing.T) *audiotest.FakeStream {
	t.Helper()
	require.NoError(t, h.m.SetActiveRecordingDeviceID(2))
	require.NoError(t, h.m.StartRecording(h.onFrame))
	h.m.Tick()
	require.Equal(t, audio.StateActive, h.m.State())
	stream := h.backend.LastStream()
	require.True(t, stream.Started())
	return stream
}

func TestStartRecordingRequiresDevice(t *testing.T) {
	h := newHarness(t)
	err := h.m.StartRecording(h.onFrame)
	require.ErrorIs(t, err, audio.ErrNoDeviceSelected)
	assert.False(t, h.m.IsRecording())
}

func TestStartRecordingRejectsNilCallback(t *testing.T) {
	h := newHarness(t)
	require.NoError(t, h.m.SetActiveRecordingDeviceID(2))
	require.Error(t, h.m.StartRecording(nil))
	require.Error(t, h.m.StartRecordingRaw(nil))
	assert.False(t, h.m.IsRecording())
}

func TestStartRecordingTwiceKeepsFirstCallback(t *testing.T) {
	h := newHarness(t)
	require.NoError(t, h.m.SetActiveRecordingDeviceID(2))
	require.NoError(t, h.m.StartRecording(h.onFrame))

	var second int
	err := h.m.StartRecording(func(audio.EncodedFrame) { second++ })
	require.ErrorIs(t, err, audio.ErrAlreadyRecording)

	h.m.Tick()
	h.backend.LastStream().Feed(audiotest.Ramp(0, audio.FrameSize))
	h.m.Tick()

	assert.Len(t, h.frames, 1)
	assert.Zero(t, second)
}

// 设备 2（48000 Hz），两次各 1440 个采样，然后停止
func TestRecordingTwoFramesThenStop(t *testing.T) {
	h := newHarness(t)
	stream := h.startActive(t)

	opens := h.backend.Opens()
	require.Len(t, opens, 2)
	assert.Equal(t, 48000, opens[0].SampleRate, "device check opens at the native rate")
	assert.Equal(t, audio.TargetSampleRate, opens[1].SampleRate)
	assert.Equal(t, audio.Channels, opens[1].Channels)

	stream.Feed(audiotest.Ramp(0, 1440))
	h.m.Tick()
	require.Len(t, h.frames, 1)

	stream.Feed(audiotest.Ramp(1440, 1440))
	h.m.Tick()
	require.Len(t, h.frames, 2)
	assert.Equal(t, uint64(0), h.frames[0].Sequence)
	assert.Equal(t, uint64(1), h.frames[1].Sequence)
	assert.Equal(t, audio.FrameSize, h.frames[1].Samples)

	h.m.StopRecording()
	assert.True(t, h.m.IsRecording(), "stop is applied by the audio thread")
	h.m.Tick()
	assert.False(t, h.m.IsRecording())
	assert.Len(t, h.frames, 2)
	assert.True(t, stream.Closed())

	h.m.Tick()
	assert.Len(t, h.frames, 2)
}

func TestFrameCountIsFloorOfCapturedSamples(t *testing.T) {
	h := newHarness(t)
	stream := h.startActive(t)

	const total = 5*audio.FrameSize + 321
	for fed := 0; fed < total; {
		n := min(700, total-fed)
		stream.Feed(audiotest.Ramp(fed, n))
		fed += n
		h.m.Tick()
		assert.Len(t, h.frames, fed/audio.FrameSize)
	}

	h.m.StopRecording()
	h.m.Tick()
	assert.Len(t, h.frames, 5)
	for i, in := range h.encoder.Inputs() {
		require.Len(t, in, audio.FrameSize)
		assert.Equal(t, float32(i*audio.FrameSize), in[0])
	}
}

func TestStopNeverEncodesPartialFrame(t *testing.T) {
	h := newHarness(t)
	stream := h.startActive(t)

	stream.Feed(audiotest.Ramp(0, 2*audio.FrameSize+700))
	h.m.Tick()
	require.Len(t, h.frames, 2)

	h.m.StopRecording()
	h.m.Tick()

	assert.Equal(t, 2, h.encoder.Calls())
	for _, in := range h.encoder.Inputs() {
		assert.Len(t, in, audio.FrameSize)
	}
	assert.False(t, h.m.IsRecording())
}

func TestHaltDiscardsPendingSamples(t *testing.T) {
	h := newHarness(t)
	stream := h.startActive(t)

	stream.Feed(audiotest.Ramp(0, 2*audio.FrameSize+100))
	h.m.HaltRecording()
	assert.Equal(t, audio.StateHalting, h.m.State())

	h.m.Tick()
	assert.False(t, h.m.IsRecording())
	assert.Empty(t, h.frames)
	assert.Zero(t, h.encoder.Calls())
	assert.True(t, stream.Closed())

	stream.Feed(audiotest.Ramp(0, audio.FrameSize))
	h.m.Tick()
	assert.Empty(t, h.frames)
}

func TestHaltOverridesPendingStop(t *testing.T) {
	h := newHarness(t)
	stream := h.startActive(t)

	stream.Feed(audiotest.Ramp(0, 2*audio.FrameSize))
	h.m.StopRecording()
	h.m.HaltRecording()
	h.m.StopRecording()
	assert.Equal(t, audio.StateHalting, h.m.State())

	h.m.Tick()
	assert.False(t, h.m.IsRecording())
	assert.Empty(t, h.frames)
}

func TestStopBeforeStreamOpened(t *testing.T) {
	h := newHarness(t)
	require.NoError(t, h.m.SetActiveRecordingDeviceID(2))
	require.NoError(t, h.m.StartRecording(h.onFrame))
	assert.Equal(t, audio.StateDeferredStart, h.m.State())

	h.m.StopRecording()
	h.m.Tick()
	assert.False(t, h.m.IsRecording())
	assert.Len(t, h.backend.Opens(), 1, "only the device check was opened")
}

func TestFlushOnStop(t *testing.T) {
	for _, flush := range []bool{true, false} {
		t.Run("framed", func(t *testing.T) {
			h := newHarness(t, func(c *audio.Config) { c.FlushOnStop = flush })
			stream := h.startActive(t)

			stream.Feed(audiotest.Ramp(0, audio.FrameSize))
			h.m.StopRecording()
			h.m.Tick()

			want := 0
			if flush {
				want = 1
			}
			assert.Len(t, h.frames, want, "flush=%v", flush)
		})

		t.Run("raw", func(t *testing.T) {
			h := newHarness(t, func(c *audio.Config) { c.FlushOnStop = flush })
			require.NoError(t, h.m.SetActiveRecordingDeviceID(2))

			var got []float32
			require.NoError(t, h.m.StartRecordingRaw(func(pcm []float32) { got = append(got, pcm...) }))
			h.m.Tick()

			h.backend.LastStream().Feed(audiotest.Ramp(0, 100))
			h.m.StopRecording()
			h.m.Tick()

			if flush {
				assert.Equal(t, audiotest.Ramp(0, 100), got)
			} else {
				assert.Empty(t, got)
			}
		})
	}
}

func TestRawRecordingDeliversEverySample(t *testing.T) {
	h := newHarness(t)
	require.NoError(t, h.m.SetActiveRecordingDeviceID(2))

	var got []float32
	require.NoError(t, h.m.StartRecordingRaw(func(pcm []float32) { got = append(got, pcm...) }))
	h.m.Tick()
	stream := h.backend.LastStream()

	stream.Feed(audiotest.Ramp(0, 500))
	h.m.Tick()
	stream.Feed(audiotest.Ramp(500, 37))
	h.m.Tick()
	h.m.Tick()

	assert.Equal(t, audiotest.Ramp(0, 537), got)
	assert.Zero(t, h.encoder.Calls())
}

func TestCaptureBufferWrapAround(t *testing.T) {
	h := newHarness(t)
	h.backend.SetRingLength(2000)
	stream := h.startActive(t)

	stream.Feed(audiotest.Ramp(0, 1500))
	h.m.Tick()
	stream.Feed(audiotest.Ramp(1500, 1500))
	h.m.Tick()

	inputs := h.encoder.Inputs()
	require.Len(t, inputs, 2)
	assert.Equal(t, audiotest.Ramp(audio.FrameSize, audio.FrameSize), inputs[1])
}

func TestReadErrorSkipsTickWithoutLosingSamples(t *testing.T) {
	h := newHarness(t)
	stream := h.startActive(t)

	stream.Feed(audiotest.Ramp(0, audio.FrameSize))
	stream.SetReadError(errors.New("driver glitch"))
	h.m.Tick()
	assert.Empty(t, h.frames)

	stream.SetReadError(nil)
	stream.SetPositionError(errors.New("device lost"))
	h.m.Tick()
	assert.Empty(t, h.frames)
	assert.Equal(t, 2.0, testutil.ToFloat64(h.m.Metrics().CaptureReadErrors))

	stream.SetPositionError(nil)
	h.m.Tick()
	require.Len(t, h.frames, 1)
	assert.Equal(t, audiotest.Ramp(0, audio.FrameSize), h.encoder.Inputs()[0])
	assert.True(t, h.m.IsRecording())
}

func TestCodecErrorDropsFrame(t *testing.T) {
	h := newHarness(t)
	h.encoder.FailOn(1)
	stream := h.startActive(t)

	stream.Feed(audiotest.Ramp(0, 3*audio.FrameSize))
	h.m.Tick()

	assert.Equal(t, 3, h.encoder.Calls())
	require.Len(t, h.frames, 2)
	assert.Equal(t, uint64(0), h.frames[0].Sequence)
	assert.Equal(t, uint64(2), h.frames[1].Sequence)
	assert.Equal(t, 1.0, testutil.ToFloat64(h.m.Metrics().CodecErrors))
	assert.Equal(t, 2.0, testutil.ToFloat64(h.m.Metrics().FramesEncoded))
}

func TestCallbackPanicIsRecovered(t *testing.T) {
	h := newHarness(t)
	require.NoError(t, h.m.SetActiveRecordingDeviceID(2))

	calls := 0
	require.NoError(t, h.m.StartRecording(func(audio.EncodedFrame) {
		calls++
		if calls == 1 {
			panic("boom")
		}
	}))
	h.m.Tick()
	h.backend.LastStream().Feed(audiotest.Ramp(0, 2*audio.FrameSize))
	h.m.Tick()

	assert.Equal(t, 2, calls)
	assert.Equal(t, 1.0, testutil.ToFloat64(h.m.Metrics().CallbackPanics))
	assert.True(t, h.m.IsRecording())
}

func TestSmallBufferDeliversInChunks(t *testing.T) {
	h := newHarness(t)
	require.NoError(t, h.m.SetRecordBufferCapacity(1))
	stream := h.startActive(t)

	stream.Feed(audiotest.Ramp(0, 3*audio.FrameSize+10))
	h.m.Tick()
	assert.Len(t, h.frames, 3)
}

func TestSetRecordBufferCapacity(t *testing.T) {
	h := newHarness(t)
	require.NoError(t, h.m.SetRecordBufferCapacity(10))
	assert.Equal(t, 10, h.m.RecordBufferCapacity())

	require.Error(t, h.m.SetRecordBufferCapacity(0))

	h.startActive(t)
	require.ErrorIs(t, h.m.SetRecordBufferCapacity(4), audio.ErrNotIdle)
	assert.Equal(t, 10, h.m.RecordBufferCapacity())

	h.m.HaltRecording()
	h.m.Tick()
	require.NoError(t, h.m.SetRecordBufferCapacity(4))
	assert.Equal(t, 4, h.m.RecordBufferCapacity())
}

func TestDeferredOpenFailureReportedByLastError(t *testing.T) {
	h := newHarness(t)
	require.NoError(t, h.m.SetActiveRecordingDeviceID(2))
	h.backend.SetOpenError(errors.New("device busy"))

	require.NoError(t, h.m.StartRecording(h.onFrame))
	assert.True(t, h.m.IsRecording())
	h.m.Tick()

	assert.False(t, h.m.IsRecording())
	err := h.m.LastError()
	require.ErrorIs(t, err, audio.ErrBackendOpen)
	assert.Contains(t, err.Error(), "device busy")
	assert.NoError(t, h.m.LastError(), "LastError clears the error")
	assert.Equal(t, 1.0, testutil.ToFloat64(h.m.Metrics().SessionErrors))

	// 会话失败不影响下一次录音
	h.backend.SetOpenError(nil)
	require.NoError(t, h.m.StartRecording(h.onFrame))
	h.m.Tick()
	assert.Equal(t, audio.StateActive, h.m.State())
}

func TestDeferredStartFailureClosesStream(t *testing.T) {
	h := newHarness(t)
	require.NoError(t, h.m.SetActiveRecordingDeviceID(2))
	h.backend.SetStartError(errors.New("no permission"))

	require.NoError(t, h.m.StartRecording(h.onFrame))
	h.m.Tick()

	assert.False(t, h.m.IsRecording())
	require.ErrorIs(t, h.m.LastError(), audio.ErrBackendStart)
	assert.True(t, h.backend.LastStream().Closed())
}

func TestSelectRecordingDevice(t *testing.T) {
	h := newHarness(t)
	assert.False(t, h.m.IsRecordingDeviceSet())
	assert.Equal(t, audio.InvalidDeviceID, h.m.CurrentRecordingDevice().ID)

	require.ErrorIs(t, h.m.SetActiveRecordingDeviceID(7), audio.ErrDeviceNotFound)

	h.backend.SetOpenError(errors.New("exclusive mode"))
	require.ErrorIs(t, h.m.SetActiveRecordingDeviceID(2), audio.ErrBackendOpen)
	assert.False(t, h.m.IsRecordingDeviceSet())

	h.backend.SetOpenError(nil)
	require.NoError(t, h.m.SetActiveRecordingDeviceID(2))
	device := h.m.CurrentRecordingDevice()
	assert.Equal(t, "USB Headset", device.Name)
	assert.Equal(t, 48000, device.SampleRate)
	assert.True(t, h.backend.LastStream().Closed(), "check stream is closed")
}

func TestSwitchingDeviceHaltsRecording(t *testing.T) {
	h := newHarness(t)
	stream := h.startActive(t)
	stream.Feed(audiotest.Ramp(0, audio.FrameSize))

	require.NoError(t, h.m.SetActiveRecordingDeviceID(0))
	assert.Equal(t, audio.StateIdle, h.m.State())
	assert.Equal(t, 0, h.m.CurrentRecordingDevice().ID)
	assert.Empty(t, h.frames)
	assert.True(t, stream.Closed())

	opens := h.backend.Opens()
	check := opens[len(opens)-1]
	assert.Equal(t, 0, check.Device.ID)
	assert.Zero(t, check.OpenStreams, "session stream is closed before the new device is opened")
}

func TestReselectingSameDeviceClosesSessionFirst(t *testing.T) {
	h := newHarness(t)
	stream := h.startActive(t)

	require.NoError(t, h.m.SetActiveRecordingDeviceID(2))
	assert.True(t, stream.Closed())
	opens := h.backend.Opens()
	assert.Zero(t, opens[len(opens)-1].OpenStreams)
	assert.False(t, h.m.IsRecording())
}

func TestDeviceLookup(t *testing.T) {
	h := newHarness(t)

	devices, err := h.m.RecordingDevices()
	require.NoError(t, err)
	require.Len(t, devices, 2)
	assert.True(t, devices[0].State.Default())

	d, ok := h.m.RecordingDevice(2)
	require.True(t, ok)
	assert.Equal(t, "usb-headset", d.GUID)

	_, ok = h.m.RecordingDevice(1)
	assert.False(t, ok)

	h.backend.SetEnumerateError(errors.New("subsystem down"))
	_, err = h.m.PlaybackDevices()
	require.Error(t, err)
	_, ok = h.m.PlaybackDevice(0)
	assert.False(t, ok)
}

func TestValidateDevices(t *testing.T) {
	h := newHarness(t)
	require.NoError(t, h.m.ValidateDevices(), "nothing selected")

	require.NoError(t, h.m.SetActiveRecordingDeviceID(2))
	require.NoError(t, h.m.SetActivePlaybackDeviceID(0))

	require.NoError(t, h.m.ValidateDevices())
	assert.Equal(t, 2, h.m.CurrentRecordingDevice().ID)
	assert.True(t, h.m.IsPlaybackDeviceSet())

	h.backend.SetEnumerateError(errors.New("subsystem down"))
	require.Error(t, h.m.ValidateDevices())
	assert.True(t, h.m.IsRecordingDeviceSet(), "selection kept when enumeration fails")
	h.backend.SetEnumerateError(nil)

	builtin, _ := h.m.RecordingDevice(0)
	h.backend.SetRecordingDevices(builtin)
	h.backend.SetPlaybackDevices()
	require.NoError(t, h.m.ValidateDevices())
	assert.False(t, h.m.IsRecordingDeviceSet())
	assert.False(t, h.m.IsPlaybackDeviceSet())
}

func TestCloseHaltsRecording(t *testing.T) {
	h := newHarness(t)
	stream := h.startActive(t)
	stream.Feed(audiotest.Ramp(0, audio.FrameSize))

	require.NoError(t, h.m.Close())
	assert.False(t, h.m.IsRecording())
	assert.Empty(t, h.frames)
	assert.True(t, stream.Closed())
	assert.True(t, h.backend.Closed())
	require.NoError(t, h.m.Close())
}

func TestRecordingStateGauge(t *testing.T) {
	h := newHarness(t)
	require.NoError(t, h.m.SetActiveRecordingDeviceID(2))
	require.NoError(t, h.m.StartRecording(h.onFrame))
	assert.Equal(t, audio.StateDeferredStart, h.m.State())
	// 只有音频线程更新 gauge
	assert.Equal(t, float64(audio.StateIdle), testutil.ToFloat64(h.m.Metrics().RecordingState))

	h.m.Tick()
	require.Equal(t, audio.StateActive, h.m.State())
	assert.Equal(t, float64(audio.StateActive), testutil.ToFloat64(h.m.Metrics().RecordingState))

	h.m.StopRecording()
	h.m.Tick()
	assert.Equal(t, float64(audio.StateIdle), testutil.ToFloat64(h.m.Metrics().RecordingState))
	assert.Equal(t, 1.0, testutil.ToFloat64(h.m.Metrics().SessionsStarted))
}
