package portaudio

import (
	"errors"
	"fmt"

	"github.com/gordonklaus/portaudio"

	"github.com/lisuiheng/voicecap/audio"
)

type channel struct {
	stream *portaudio.Stream
	buffer *audio.PlaybackBuffer
}

// PlaySound 为每个声音打开一个单声道输出流，未选择设备时使用默认输出设备
func (b *Backend) PlaySound(sound audio.Sound, device audio.PlaybackDevice) (audio.Channel, error) {
	pcmSound, ok := sound.(*audio.PCMSound)
	if !ok {
		return nil, fmt.Errorf("%w: sound was not created by %s", audio.ErrInvalidHandle, Name)
	}
	pcm := pcmSound.PCM()
	if pcm == nil {
		return nil, errors.New("sound already released")
	}
	if err := b.checkOpen(); err != nil {
		return nil, err
	}

	var (
		info *portaudio.DeviceInfo
		err  error
	)
	if device.Valid() {
		info, err = lookup(device.ID, device.GUID)
	} else {
		info, err = portaudio.DefaultOutputDevice()
	}
	if err != nil {
		return nil, fmt.Errorf("failed to find output device: %w", err)
	}

	rate := sound.SampleRate()
	if native := int(info.DefaultSampleRate); native > 0 && native != rate {
		pcm = audio.Resample(pcm, rate, native)
		rate = native
	}
	buffer, err := audio.NewPlaybackBuffer(pcm)
	if err != nil {
		return nil, err
	}

	c := &channel{buffer: buffer}
	params := portaudio.LowLatencyParameters(nil, info)
	params.Input.Device = nil
	params.Input.Channels = 0
	params.Output.Channels = 1
	params.SampleRate = float64(rate)

	stream, err := portaudio.OpenStream(params, c.onData)
	if err != nil {
		return nil, fmt.Errorf("failed to open output stream: %w", err)
	}
	if err := stream.Start(); err != nil {
		stream.Close()
		return nil, fmt.Errorf("failed to start output stream: %w", err)
	}
	c.stream = stream
	return c, nil
}

func (c *channel) onData(out []float32) {
	c.buffer.Fill(out)
}

func (c *channel) IsPlaying() bool {
	return c.stream != nil && !c.buffer.Finished()
}

func (c *channel) Stop() error {
	if c.stream == nil {
		return nil
	}
	c.buffer.Stop()
	err := c.stream.Stop()
	if cerr := c.stream.Close(); cerr != nil && err == nil {
		err = cerr
	}
	c.stream = nil
	return err
}
