package malgo

import (
	"errors"
	"fmt"

	"github.com/gen2brain/malgo"

	"github.com/lisuiheng/voicecap/audio"
)

type channel struct {
	device *malgo.Device
	buffer *audio.PlaybackBuffer
}

// PlaySound 为每个声音打开一个单声道播放设备，播放完后由调用方 Stop 回收。
// 未选择播放设备时使用系统默认设备。
func (b *Backend) PlaySound(sound audio.Sound, device audio.PlaybackDevice) (audio.Channel, error) {
	pcmSound, ok := sound.(*audio.PCMSound)
	if !ok {
		return nil, fmt.Errorf("%w: sound was not created by %s", audio.ErrInvalidHandle, Name)
	}
	pcm := pcmSound.PCM()
	if pcm == nil {
		return nil, errors.New("sound already released")
	}
	buffer, err := audio.NewPlaybackBuffer(pcm)
	if err != nil {
		return nil, err
	}

	ctx, err := b.context()
	if err != nil {
		return nil, err
	}

	deviceConfig := malgo.DefaultDeviceConfig(malgo.Playback)
	deviceConfig.Playback.Format = malgo.FormatF32
	deviceConfig.Playback.Channels = 1
	deviceConfig.SampleRate = uint32(sound.SampleRate())
	if device.Valid() {
		infos, err := b.devices(malgo.Playback)
		if err != nil {
			return nil, err
		}
		info, err := lookup(infos, device.ID, device.GUID)
		if err != nil {
			return nil, err
		}
		deviceConfig.Playback.DeviceID = info.ID.Pointer()
	}

	c := &channel{buffer: buffer}
	dev, err := malgo.InitDevice(ctx.Context, deviceConfig, malgo.DeviceCallbacks{
		Data: c.onData,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to initialize playback device: %w", err)
	}
	if err := dev.Start(); err != nil {
		dev.Uninit()
		return nil, fmt.Errorf("failed to start playback device: %w", err)
	}
	c.device = dev
	return c, nil
}

func (c *channel) onData(output, _ []byte, frameCount uint32) {
	out := make([]float32, frameCount)
	c.buffer.Fill(out)
	copy(output, audio.Float32ToBytes(out))
}

func (c *channel) IsPlaying() bool {
	return c.device != nil && !c.buffer.Finished()
}

func (c *channel) Stop() error {
	if c.device == nil {
		return nil
	}
	c.buffer.Stop()
	err := c.device.Stop()
	c.device.Uninit()
	c.device = nil
	return err
}
