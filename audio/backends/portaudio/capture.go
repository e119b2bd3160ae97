package portaudio

import (
	"fmt"

	"github.com/gordonklaus/portaudio"

	"github.com/lisuiheng/voicecap/audio"
)

type captureStream struct {
	stream     *portaudio.Stream
	ring       *audio.CaptureRing
	channels   int
	deviceRate int
	targetRate int
	started    bool
}

// OpenRecording 打开输入流。设备拒绝请求的采样率时回退到设备默认采样率。
func (b *Backend) OpenRecording(device audio.RecordingDevice, sampleRate, channels int) (audio.CaptureStream, error) {
	if sampleRate <= 0 || channels <= 0 {
		return nil, fmt.Errorf("invalid capture format: %d Hz, %d channels", sampleRate, channels)
	}
	if err := b.checkOpen(); err != nil {
		return nil, err
	}
	info, err := lookup(device.ID, device.GUID)
	if err != nil {
		return nil, err
	}
	channels = min(channels, info.MaxInputChannels)

	s := &captureStream{
		ring:       audio.NewCaptureRing(sampleRate),
		channels:   channels,
		deviceRate: sampleRate,
		targetRate: sampleRate,
	}

	params := portaudio.LowLatencyParameters(info, nil)
	params.Input.Channels = channels
	params.Output.Device = nil
	params.Output.Channels = 0
	params.SampleRate = float64(sampleRate)

	stream, err := portaudio.OpenStream(params, s.onData)
	if err != nil {
		native := int(info.DefaultSampleRate)
		if native <= 0 || native == sampleRate {
			return nil, fmt.Errorf("failed to open input stream: %w", err)
		}
		b.logger.Debug("Sample rate rejected, resampling from device rate",
			"device", info.Name,
			"requested", sampleRate,
			"native", native,
			"error", err)
		params.SampleRate = float64(native)
		s.deviceRate = native
		stream, err = portaudio.OpenStream(params, s.onData)
		if err != nil {
			return nil, fmt.Errorf("failed to open input stream: %w", err)
		}
	}
	s.stream = stream

	b.logger.Debug("Capture stream opened",
		"device", info.Name,
		"sample_rate", s.deviceRate,
		"channels", channels)
	return s, nil
}

func (s *captureStream) onData(in []float32) {
	pcm := audio.DownmixToMono(in, s.channels)
	s.ring.Write(audio.Resample(pcm, s.deviceRate, s.targetRate))
}

func (s *captureStream) Start() error {
	if err := s.stream.Start(); err != nil {
		return fmt.Errorf("failed to start input stream: %w", err)
	}
	s.started = true
	return nil
}

func (s *captureStream) Len() int {
	return s.ring.Len()
}

func (s *captureStream) Position() (int, error) {
	return s.ring.Position(), nil
}

func (s *captureStream) Read(from, to int) ([]float32, error) {
	return s.ring.Read(from, to)
}

func (s *captureStream) Close() error {
	if s.stream == nil {
		return nil
	}
	var err error
	if s.started {
		err = s.stream.Stop()
		s.started = false
	}
	if cerr := s.stream.Close(); cerr != nil && err == nil {
		err = cerr
	}
	s.stream = nil
	if err != nil {
		return fmt.Errorf("failed to close input stream: %w", err)
	}
	return nil
}
