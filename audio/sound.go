package audio

import (
	"errors"
	"fmt"

	"github.com/hashicorp/go-multierror"
)

// SoundHandle 调用方持有的声音句柄，只在创建它的后端会话内有效
type SoundHandle struct {
	id         uint64
	generation uint64
}

// ChannelHandle 正在播放的声音的句柄
type ChannelHandle struct {
	id         uint64
	generation uint64
}

// CreateSound 从单声道 PCM 创建声音，sampleRate <= 0 时使用 TargetSampleRate
func (m *Manager) CreateSound(pcm []float32, sampleRate int) (SoundHandle, error) {
	if sampleRate <= 0 {
		sampleRate = TargetSampleRate
	}
	if len(pcm) == 0 {
		return SoundHandle{}, errors.New("cannot create a sound from empty pcm")
	}

	m.soundMu.Lock()
	defer m.soundMu.Unlock()
	if m.generation == 0 {
		return SoundHandle{}, ErrManagerClosed
	}

	sound, err := m.backend.CreateSound(pcm, sampleRate)
	if err != nil {
		return SoundHandle{}, fmt.Errorf("failed to create sound: %w", err)
	}
	m.nextHandle++
	m.sounds[m.nextHandle] = sound
	return SoundHandle{id: m.nextHandle, generation: m.generation}, nil
}

// PlaySound 在当前播放设备上播放声音（未选择时由后端使用默认设备）
func (m *Manager) PlaySound(h SoundHandle) (ChannelHandle, error) {
	m.soundMu.Lock()
	defer m.soundMu.Unlock()

	sound, err := m.lookupSound(h)
	if err != nil {
		return ChannelHandle{}, err
	}
	channel, err := m.backend.PlaySound(sound, m.CurrentPlaybackDevice())
	if err != nil {
		return ChannelHandle{}, fmt.Errorf("failed to play sound: %w", err)
	}
	m.reapChannels()
	m.nextHandle++
	m.channels[m.nextHandle] = channel
	return ChannelHandle{id: m.nextHandle, generation: m.generation}, nil
}

// IsPlaying 声音是否仍在播放，无效句柄返回 false
func (m *Manager) IsPlaying(h ChannelHandle) bool {
	m.soundMu.Lock()
	defer m.soundMu.Unlock()

	channel, err := m.lookupChannel(h)
	if err != nil {
		return false
	}
	return channel.IsPlaying()
}

// StopChannel 停止播放并释放句柄
func (m *Manager) StopChannel(h ChannelHandle) error {
	m.soundMu.Lock()
	defer m.soundMu.Unlock()

	channel, err := m.lookupChannel(h)
	if err != nil {
		return err
	}
	delete(m.channels, h.id)
	return channel.Stop()
}

// ReleaseSound 释放声音，之后句柄失效
func (m *Manager) ReleaseSound(h SoundHandle) error {
	m.soundMu.Lock()
	defer m.soundMu.Unlock()

	sound, err := m.lookupSound(h)
	if err != nil {
		return err
	}
	delete(m.sounds, h.id)
	return sound.Release()
}

func (m *Manager) lookupSound(h SoundHandle) (Sound, error) {
	if h.generation == 0 || h.generation != m.generation {
		return nil, ErrInvalidHandle
	}
	sound, ok := m.sounds[h.id]
	if !ok {
		return nil, ErrInvalidHandle
	}
	return sound, nil
}

func (m *Manager) lookupChannel(h ChannelHandle) (Channel, error) {
	if h.generation == 0 || h.generation != m.generation {
		return nil, ErrInvalidHandle
	}
	channel, ok := m.channels[h.id]
	if !ok {
		return nil, ErrInvalidHandle
	}
	return channel, nil
}

// reapChannels 关闭已经播放完的通道
func (m *Manager) reapChannels() {
	for id, channel := range m.channels {
		if channel.IsPlaying() {
			continue
		}
		if err := channel.Stop(); err != nil {
			m.logger.Warn("Failed to close finished channel", "channel", id, "error", err)
		}
		delete(m.channels, id)
	}
}

// releaseAllSounds 关闭时释放所有声音，之后所有句柄失效
func (m *Manager) releaseAllSounds() error {
	m.soundMu.Lock()
	defer m.soundMu.Unlock()

	var result *multierror.Error
	for id, channel := range m.channels {
		if err := channel.Stop(); err != nil {
			result = multierror.Append(result, fmt.Errorf("failed to stop channel %d: %w", id, err))
		}
	}
	for id, sound := range m.sounds {
		if err := sound.Release(); err != nil {
			result = multierror.Append(result, fmt.Errorf("failed to release sound %d: %w", id, err))
		}
	}
	clear(m.channels)
	clear(m.sounds)
	m.generation = 0
	return result.ErrorOrNil()
}
