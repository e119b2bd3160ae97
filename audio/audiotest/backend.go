// Package audiotest 提供测试用的内存音频后端和编码器
package audiotest

import (
	"errors"
	"sync"

	"github.com/lisuiheng/voicecap/audio"
)

// DefaultRingLength 假采集流环形缓冲区的默认长度
const DefaultRingLength = 4 * audio.FrameSize

// OpenCall 记录一次 OpenRecording 调用
type OpenCall struct {
	Device     audio.RecordingDevice
	SampleRate int
	Channels   int
	// OpenStreams 调用时尚未关闭的流的数量
	OpenStreams int
}

// FakeBackend 完全在内存中的后端，测试通过 Stream.Feed 模拟驱动写入
type FakeBackend struct {
	mu         sync.Mutex
	recording  []audio.RecordingDevice
	playback   []audio.PlaybackDevice
	enumErr    error
	openErr    error
	startErr   error
	ringLength int
	opens      []OpenCall
	streams    []*FakeStream
	sounds     []*FakeSound
	channels   []*FakeChannel
	closed     bool
}

var _ audio.Backend = (*FakeBackend)(nil)

// NewFakeBackend 默认有两个录音设备（id 0 和 2）和一个播放设备
func NewFakeBackend() *FakeBackend {
	return &FakeBackend{
		recording: []audio.RecordingDevice{
			{
				ID: 0, Name: "Built-in Microphone", GUID: "builtin-mic",
				SampleRate: 44100, SpeakerMode: audio.SpeakerModeMono, Channels: 1,
				State: audio.DriverStateConnected | audio.DriverStateDefault,
			},
			{
				ID: 2, Name: "USB Headset", GUID: "usb-headset",
				SampleRate: 48000, SpeakerMode: audio.SpeakerModeMono, Channels: 1,
				State: audio.DriverStateConnected,
			},
		},
		playback: []audio.PlaybackDevice{
			{
				ID: 0, Name: "Speakers", GUID: "speakers",
				SampleRate: 48000, SpeakerMode: audio.SpeakerModeStereo, Channels: 2,
			},
		},
		ringLength: DefaultRingLength,
	}
}

func (b *FakeBackend) Name() string { return "fake" }

func (b *FakeBackend) SetRecordingDevices(devices ...audio.RecordingDevice) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.recording = devices
}

func (b *FakeBackend) SetPlaybackDevices(devices ...audio.PlaybackDevice) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.playback = devices
}

// SetEnumerateError 之后的设备枚举都返回 err
func (b *FakeBackend) SetEnumerateError(err error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.enumErr = err
}

// SetOpenError 之后的 OpenRecording 都返回 err
func (b *FakeBackend) SetOpenError(err error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.openErr = err
}

// SetStartError 之后打开的流 Start 都返回 err
func (b *FakeBackend) SetStartError(err error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.startErr = err
}

// SetRingLength 之后打开的流使用的环形缓冲区长度
func (b *FakeBackend) SetRingLength(n int) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.ringLength = n
}

func (b *FakeBackend) RecordingDevices() ([]audio.RecordingDevice, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.enumErr != nil {
		return nil, b.enumErr
	}
	return append([]audio.RecordingDevice(nil), b.recording...), nil
}

func (b *FakeBackend) PlaybackDevices() ([]audio.PlaybackDevice, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.enumErr != nil {
		return nil, b.enumErr
	}
	return append([]audio.PlaybackDevice(nil), b.playback...), nil
}

func (b *FakeBackend) OpenRecording(device audio.RecordingDevice, sampleRate, channels int) (audio.CaptureStream, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.closed {
		return nil, errors.New("backend closed")
	}
	open := 0
	for _, s := range b.streams {
		if !s.Closed() {
			open++
		}
	}
	b.opens = append(b.opens, OpenCall{Device: device, SampleRate: sampleRate, Channels: channels, OpenStreams: open})
	if b.openErr != nil {
		return nil, b.openErr
	}
	s := &FakeStream{ring: audio.NewCaptureRing(b.ringLength), startErr: b.startErr}
	b.streams = append(b.streams, s)
	return s, nil
}

// Opens 所有 OpenRecording 调用，包括选择设备时的试打开
func (b *FakeBackend) Opens() []OpenCall {
	b.mu.Lock()
	defer b.mu.Unlock()
	return append([]OpenCall(nil), b.opens...)
}

// LastStream 最近打开的流，没有时返回 nil
func (b *FakeBackend) LastStream() *FakeStream {
	b.mu.Lock()
	defer b.mu.Unlock()
	if len(b.streams) == 0 {
		return nil
	}
	return b.streams[len(b.streams)-1]
}

func (b *FakeBackend) CreateSound(pcm []float32, sampleRate int) (audio.Sound, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	s := &FakeSound{samples: len(pcm), sampleRate: sampleRate}
	b.sounds = append(b.sounds, s)
	return s, nil
}

func (b *FakeBackend) PlaySound(sound audio.Sound, device audio.PlaybackDevice) (audio.Channel, error) {
	fs, ok := sound.(*FakeSound)
	if !ok {
		return nil, errors.New("foreign sound")
	}
	if fs.Released() {
		return nil, errors.New("sound released")
	}
	b.mu.Lock()
	defer b.mu.Unlock()
	c := &FakeChannel{Device: device}
	c.playing.Store(true)
	b.channels = append(b.channels, c)
	return c, nil
}

// LastChannel 最近播放的通道
func (b *FakeBackend) LastChannel() *FakeChannel {
	b.mu.Lock()
	defer b.mu.Unlock()
	if len(b.channels) == 0 {
		return nil
	}
	return b.channels[len(b.channels)-1]
}

func (b *FakeBackend) Sounds() []*FakeSound {
	b.mu.Lock()
	defer b.mu.Unlock()
	return append([]*FakeSound(nil), b.sounds...)
}

func (b *FakeBackend) Close() error {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.closed = true
	return nil
}

func (b *FakeBackend) Closed() bool {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.closed
}
