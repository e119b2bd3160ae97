package malgo

import (
	"errors"
	"fmt"
	"sync/atomic"

	"github.com/gen2brain/malgo"

	"github.com/lisuiheng/voicecap/audio"
)

// captureSeconds 采集环形缓冲区的长度
const captureSeconds = 1

type captureStream struct {
	device   *malgo.Device
	ring     *audio.CaptureRing
	channels int
	stopped  atomic.Bool
	started  atomic.Bool
}

// OpenRecording 以 float32 格式打开采集设备，由 miniaudio 转换到请求的采样率和声道数
func (b *Backend) OpenRecording(device audio.RecordingDevice, sampleRate, channels int) (audio.CaptureStream, error) {
	if sampleRate <= 0 || channels <= 0 {
		return nil, fmt.Errorf("invalid capture format: %d Hz, %d channels", sampleRate, channels)
	}
	ctx, err := b.context()
	if err != nil {
		return nil, err
	}
	infos, err := b.devices(malgo.Capture)
	if err != nil {
		return nil, err
	}
	info, err := lookup(infos, device.ID, device.GUID)
	if err != nil {
		return nil, err
	}

	s := &captureStream{
		ring:     audio.NewCaptureRing(sampleRate * captureSeconds),
		channels: channels,
	}

	deviceConfig := malgo.DefaultDeviceConfig(malgo.Capture)
	deviceConfig.Capture.Format = malgo.FormatF32
	deviceConfig.Capture.Channels = uint32(channels)
	deviceConfig.Capture.DeviceID = info.ID.Pointer()
	deviceConfig.SampleRate = uint32(sampleRate)
	deviceConfig.Alsa.NoMMap = 1

	dev, err := malgo.InitDevice(ctx.Context, deviceConfig, malgo.DeviceCallbacks{
		Data: s.onData,
		Stop: s.onStop,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to initialize capture device: %w", err)
	}
	s.device = dev

	b.logger.Debug("Capture stream opened",
		"device", info.Name(),
		"sample_rate", sampleRate,
		"channels", channels)
	return s, nil
}

func (s *captureStream) onData(_, pcmData []byte, _ uint32) {
	s.ring.Write(audio.DownmixToMono(audio.BytesToFloat32(pcmData), s.channels))
}

func (s *captureStream) onStop() {
	if s.started.Load() {
		s.stopped.Store(true)
	}
}

func (s *captureStream) Start() error {
	if err := s.device.Start(); err != nil {
		return fmt.Errorf("failed to start capture device: %w", err)
	}
	s.started.Store(true)
	return nil
}

func (s *captureStream) Len() int {
	return s.ring.Len()
}

func (s *captureStream) Position() (int, error) {
	if s.stopped.Load() {
		return 0, errors.New("capture device stopped unexpectedly")
	}
	return s.ring.Position(), nil
}

func (s *captureStream) Read(from, to int) ([]float32, error) {
	return s.ring.Read(from, to)
}

func (s *captureStream) Close() error {
	if s.device == nil {
		return nil
	}
	var err error
	if s.started.Swap(false) {
		err = s.device.Stop()
	}
	s.device.Uninit()
	s.device = nil
	if err != nil {
		return fmt.Errorf("failed to stop capture device: %w", err)
	}
	return nil
}
