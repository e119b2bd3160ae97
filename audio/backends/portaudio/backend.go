// Package portaudio PortAudio 音频后端
package portaudio

import (
	"errors"
	"fmt"
	"log/slog"
	"sync"

	"github.com/gordonklaus/portaudio"

	"github.com/lisuiheng/voicecap/audio"
)

const (
	Name     = "portaudio"
	Priority = 60
)

func init() {
	audio.RegisterBackend(Name, Priority, func() (audio.Backend, error) {
		return New(slog.Default())
	})
}

// Backend PortAudio 后端。PortAudio 不做采样率转换，设备不支持请求的采样率时
// 以设备默认采样率打开并在回调里重采样。
type Backend struct {
	mu     sync.Mutex
	closed bool
	logger *slog.Logger
}

var _ audio.Backend = (*Backend)(nil)

func New(logger *slog.Logger) (*Backend, error) {
	if err := portaudio.Initialize(); err != nil {
		return nil, fmt.Errorf("failed to initialize PortAudio: %w", err)
	}
	return &Backend{logger: logger.With("backend", Name)}, nil
}

func (b *Backend) Name() string { return Name }

func (b *Backend) checkOpen() error {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.closed {
		return errors.New("portaudio backend closed")
	}
	return nil
}

func guid(info *portaudio.DeviceInfo) string {
	if info.HostApi != nil {
		return info.HostApi.Name + "/" + info.Name
	}
	return info.Name
}

func isDefault(info *portaudio.DeviceInfo, input bool) bool {
	if info.HostApi == nil {
		return false
	}
	def := info.HostApi.DefaultOutputDevice
	if input {
		def = info.HostApi.DefaultInputDevice
	}
	return def != nil && def.Index == info.Index
}

func (b *Backend) RecordingDevices() ([]audio.RecordingDevice, error) {
	if err := b.checkOpen(); err != nil {
		return nil, err
	}
	infos, err := portaudio.Devices()
	if err != nil {
		return nil, fmt.Errorf("failed to enumerate devices: %w", err)
	}
	var devices []audio.RecordingDevice
	for _, info := range infos {
		if info.MaxInputChannels <= 0 {
			continue
		}
		state := audio.DriverStateConnected
		if isDefault(info, true) {
			state |= audio.DriverStateDefault
		}
		devices = append(devices, audio.RecordingDevice{
			ID:          info.Index,
			Name:        info.Name,
			GUID:        guid(info),
			SampleRate:  int(info.DefaultSampleRate),
			SpeakerMode: audio.SpeakerModeFromChannels(info.MaxInputChannels),
			Channels:    info.MaxInputChannels,
			State:       state,
		})
	}
	return devices, nil
}

func (b *Backend) PlaybackDevices() ([]audio.PlaybackDevice, error) {
	if err := b.checkOpen(); err != nil {
		return nil, err
	}
	infos, err := portaudio.Devices()
	if err != nil {
		return nil, fmt.Errorf("failed to enumerate devices: %w", err)
	}
	var devices []audio.PlaybackDevice
	for _, info := range infos {
		if info.MaxOutputChannels <= 0 {
			continue
		}
		devices = append(devices, audio.PlaybackDevice{
			ID:          info.Index,
			Name:        info.Name,
			GUID:        guid(info),
			SampleRate:  int(info.DefaultSampleRate),
			SpeakerMode: audio.SpeakerModeFromChannels(info.MaxOutputChannels),
			Channels:    info.MaxOutputChannels,
		})
	}
	return devices, nil
}

// lookup 在当前枚举结果中查找设备
func lookup(id int, guidStr string) (*portaudio.DeviceInfo, error) {
	infos, err := portaudio.Devices()
	if err != nil {
		return nil, fmt.Errorf("failed to enumerate devices: %w", err)
	}
	return findDevice(infos, id, guidStr)
}

// findDevice 有 GUID 时只按 GUID 匹配，设备拔出后索引可能被其他设备占用
func findDevice(infos []*portaudio.DeviceInfo, id int, guidStr string) (*portaudio.DeviceInfo, error) {
	if guidStr != "" {
		for _, info := range infos {
			if guid(info) == guidStr {
				return info, nil
			}
		}
		return nil, fmt.Errorf("%w: %d (%s) is no longer present", audio.ErrDeviceNotFound, id, guidStr)
	}
	for _, info := range infos {
		if info.Index == id {
			return info, nil
		}
	}
	return nil, fmt.Errorf("%w: %d", audio.ErrDeviceNotFound, id)
}

func (b *Backend) CreateSound(pcm []float32, sampleRate int) (audio.Sound, error) {
	return audio.NewPCMSound(pcm, sampleRate), nil
}

func (b *Backend) Close() error {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.closed {
		return nil
	}
	b.closed = true
	if err := portaudio.Terminate(); err != nil {
		return fmt.Errorf("failed to terminate PortAudio: %w", err)
	}
	return nil
}
