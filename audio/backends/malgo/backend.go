// Package malgo 基于 miniaudio 的音频后端
package malgo

import (
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"sync"

	"github.com/gen2brain/malgo"

	"github.com/lisuiheng/voicecap/audio"
)

const (
	Name     = "malgo"
	Priority = 100

	fallbackSampleRate = 48000
)

func init() {
	audio.RegisterBackend(Name, Priority, func() (audio.Backend, error) {
		return New(slog.Default())
	})
}

// Backend miniaudio 后端，所有设备共享一个 context
type Backend struct {
	mu     sync.Mutex
	ctx    *malgo.AllocatedContext
	logger *slog.Logger
}

var _ audio.Backend = (*Backend)(nil)

// New 初始化 miniaudio context
func New(logger *slog.Logger) (*Backend, error) {
	logger = logger.With("backend", Name)
	ctx, err := malgo.InitContext(nil, malgo.ContextConfig{}, func(message string) {
		logger.Debug("malgo", "message", strings.TrimSpace(message))
	})
	if err != nil {
		return nil, fmt.Errorf("failed to initialize audio context: %w", err)
	}
	return &Backend{ctx: ctx, logger: logger}, nil
}

func (b *Backend) Name() string { return Name }

func (b *Backend) context() (*malgo.AllocatedContext, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.ctx == nil {
		return nil, errors.New("malgo backend closed")
	}
	return b.ctx, nil
}

func (b *Backend) devices(kind malgo.DeviceType) ([]malgo.DeviceInfo, error) {
	ctx, err := b.context()
	if err != nil {
		return nil, err
	}
	infos, err := ctx.Devices(kind)
	if err != nil {
		return nil, fmt.Errorf("failed to enumerate devices: %w", err)
	}
	return infos, nil
}

// nativeFormat 查询设备的原生格式，驱动不报告时回退到 48 kHz 单声道
func (b *Backend) nativeFormat(kind malgo.DeviceType, info malgo.DeviceInfo) (sampleRate, channels int) {
	sampleRate, channels = fallbackSampleRate, 1
	ctx, err := b.context()
	if err != nil {
		return sampleRate, channels
	}
	full, err := ctx.DeviceInfo(kind, info.ID, malgo.Shared)
	if err != nil || full.FormatCount == 0 {
		return sampleRate, channels
	}
	if rate := int(full.Formats[0].SampleRate); rate > 0 {
		sampleRate = rate
	}
	if ch := int(full.Formats[0].Channels); ch > 0 {
		channels = ch
	}
	return sampleRate, channels
}

func (b *Backend) RecordingDevices() ([]audio.RecordingDevice, error) {
	infos, err := b.devices(malgo.Capture)
	if err != nil {
		return nil, err
	}
	devices := make([]audio.RecordingDevice, 0, len(infos))
	for i, info := range infos {
		rate, channels := b.nativeFormat(malgo.Capture, info)
		state := audio.DriverStateConnected
		if info.IsDefault == 1 {
			state |= audio.DriverStateDefault
		}
		devices = append(devices, audio.RecordingDevice{
			ID:          i,
			Name:        info.Name(),
			GUID:        info.ID.String(),
			SampleRate:  rate,
			SpeakerMode: audio.SpeakerModeFromChannels(channels),
			Channels:    channels,
			State:       state,
		})
	}
	return devices, nil
}

func (b *Backend) PlaybackDevices() ([]audio.PlaybackDevice, error) {
	infos, err := b.devices(malgo.Playback)
	if err != nil {
		return nil, err
	}
	devices := make([]audio.PlaybackDevice, 0, len(infos))
	for i, info := range infos {
		rate, channels := b.nativeFormat(malgo.Playback, info)
		devices = append(devices, audio.PlaybackDevice{
			ID:          i,
			Name:        info.Name(),
			GUID:        info.ID.String(),
			SampleRate:  rate,
			SpeakerMode: audio.SpeakerModeFromChannels(channels),
			Channels:    channels,
		})
	}
	return devices, nil
}

// lookup 有 GUID 时只按 GUID 查找：枚举顺序变化后同一个 id 可能已经是另一个设备。
// 没有 GUID 时才使用枚举下标。
func lookup(infos []malgo.DeviceInfo, id int, guid string) (*malgo.DeviceInfo, error) {
	if guid != "" {
		for i := range infos {
			if infos[i].ID.String() == guid {
				return &infos[i], nil
			}
		}
		return nil, fmt.Errorf("%w: %d (guid %s) is no longer present", audio.ErrDeviceNotFound, id, guid)
	}
	if id >= 0 && id < len(infos) {
		return &infos[id], nil
	}
	return nil, fmt.Errorf("%w: %d", audio.ErrDeviceNotFound, id)
}

func (b *Backend) CreateSound(pcm []float32, sampleRate int) (audio.Sound, error) {
	return audio.NewPCMSound(pcm, sampleRate), nil
}

func (b *Backend) Close() error {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.ctx == nil {
		return nil
	}
	err := b.ctx.Uninit()
	b.ctx.Free()
	b.ctx = nil
	if err != nil {
		return fmt.Errorf("failed to uninitialize audio context: %w", err)
	}
	return nil
}
