package audio

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"github.com/hashicorp/go-multierror"
	"github.com/prometheus/client_golang/prometheus"
)

const (
	DefaultTickInterval = 10 * time.Millisecond
	DefaultIdleInterval = 50 * time.Millisecond

	deviceSwitchTimeout = time.Second
)

// Config 音频管理器配置
type Config struct {
	// TickInterval 录音期间音频线程的轮询间隔
	TickInterval time.Duration
	// IdleInterval 空闲时音频线程的休眠间隔
	IdleInterval time.Duration
	// RecordBufferFrames 采样队列预留的帧数
	RecordBufferFrames int
	// FlushOnStop 正常停止时是否再读取一次采集缓冲区并投递其中的完整帧（原始模式下投递全部新采样）
	FlushOnStop bool
	// Bitrate 编码码率，仅用于默认编码器
	Bitrate int
	// Registerer 指标注册器，nil 时使用独立的 registry
	Registerer prometheus.Registerer
}

// DefaultConfig 返回默认配置
func DefaultConfig() Config {
	return Config{
		TickInterval:       DefaultTickInterval,
		IdleInterval:       DefaultIdleInterval,
		RecordBufferFrames: DefaultRecordBufferFrames,
		FlushOnStop:        true,
		Bitrate:            DefaultBitrate,
	}
}

func (c Config) withDefaults() Config {
	if c.TickInterval <= 0 {
		c.TickInterval = DefaultTickInterval
	}
	if c.IdleInterval <= 0 {
		c.IdleInterval = DefaultIdleInterval
	}
	if c.RecordBufferFrames <= 0 {
		c.RecordBufferFrames = DefaultRecordBufferFrames
	}
	if c.Bitrate <= 0 {
		c.Bitrate = DefaultBitrate
	}
	return c
}

// Manager 音频管理器：设备选择、录音控制、声音播放。
//
// 线程约定：
//   - 除 Close 外的公开方法都由调用方线程调用（同一时刻只有一个调用方）。
//   - 录音回调在音频线程上同步执行，回调内不能调用 StartRecording/StopRecording/HaltRecording
//     等修改状态的方法（voicedebug 构建下会 panic）。
//   - 调用方线程与音频线程之间只通过原子变量通信，采样队列和会话的临时状态只由音频线程访问。
type Manager struct {
	backend Backend
	encoder FrameEncoder
	cfg     Config
	logger  *slog.Logger
	metrics *Metrics

	// 跨线程共享
	state          recordStateMachine
	recordDevice   atomic.Pointer[RecordingDevice]
	playbackDevice atomic.Pointer[PlaybackDevice]
	bufferFrames   atomic.Int32
	sleeping       atomic.Bool
	running        atomic.Bool
	lastErr        atomic.Pointer[error]
	audioGoroutine atomic.Uint64

	wake      chan struct{}
	cancel    context.CancelFunc
	done      chan struct{}
	closeOnce sync.Once
	closeErr  error

	// 只由音频线程访问
	session      *recordSession
	stream       CaptureStream
	queue        *SampleQueue
	lastPosition int
	sequence     uint64

	// 声音句柄，只由调用方线程访问
	soundMu    sync.Mutex
	sounds     map[uint64]Sound
	channels   map[uint64]Channel
	nextHandle uint64
	generation uint64
}

// NewManager 创建音频管理器并启动音频线程
func NewManager(backend Backend, encoder FrameEncoder, cfg Config, logger *slog.Logger) (*Manager, error) {
	m, err := newManager(backend, encoder, cfg, logger)
	if err != nil {
		return nil, err
	}
	m.start()
	return m, nil
}

func newManager(backend Backend, encoder FrameEncoder, cfg Config, logger *slog.Logger) (*Manager, error) {
	if backend == nil {
		return nil, ErrNoBackend
	}
	if encoder == nil {
		return nil, errors.New("frame encoder cannot be nil")
	}
	if logger == nil {
		return nil, errors.New("logger cannot be nil")
	}

	cfg = cfg.withDefaults()
	metrics, err := NewMetrics(cfg.Registerer)
	if err != nil {
		return nil, fmt.Errorf("failed to register metrics: %w", err)
	}

	m := &Manager{
		backend:    backend,
		encoder:    encoder,
		cfg:        cfg,
		logger:     logger.With("component", "audio", "backend", backend.Name()),
		metrics:    metrics,
		wake:       make(chan struct{}, 1),
		done:       make(chan struct{}),
		queue:      NewSampleQueue(cfg.RecordBufferFrames * FrameSize),
		sounds:     make(map[uint64]Sound),
		channels:   make(map[uint64]Channel),
		generation: 1,
	}
	m.bufferFrames.Store(int32(cfg.RecordBufferFrames))
	m.sleeping.Store(true)
	m.recordDevice.Store(&unsetRecordingDevice)
	m.playbackDevice.Store(&unsetPlaybackDevice)
	return m, nil
}

// Backend 返回底层音频后端
func (m *Manager) Backend() Backend {
	return m.backend
}

// Metrics 返回管理器的指标
func (m *Manager) Metrics() *Metrics {
	return m.metrics
}

/* 录音控制 */

// StartRecording 开始录音，每个完整帧编码后调用一次 callback。
// 调用 StopRecording 时剩余的完整帧仍会投递，不足一帧的尾部被丢弃。
// 注意：callback 在音频线程上执行。
func (m *Manager) StartRecording(callback FrameCallback) error {
	if callback == nil {
		return errors.New("frame callback cannot be nil")
	}
	return m.startRecording(&recordSession{onFrame: callback})
}

// StartRecordingRaw 开始录音，每次有新采样时调用 callback，不受帧大小约束
func (m *Manager) StartRecordingRaw(callback RawCallback) error {
	if callback == nil {
		return errors.New("raw callback cannot be nil")
	}
	return m.startRecording(&recordSession{raw: true, onRaw: callback})
}

func (m *Manager) startRecording(session *recordSession) error {
	m.assertNotAudioThread("StartRecording")

	if m.IsRecording() {
		return ErrAlreadyRecording
	}
	if !m.IsRecordingDeviceSet() {
		return ErrNoDeviceSelected
	}
	if !m.running.Load() {
		return fmt.Errorf("%w: %w", ErrBackendStart, ErrManagerClosed)
	}

	session.id = uuid.NewString()
	if !m.state.requestStart(session) {
		return ErrAlreadyRecording
	}
	m.logger.Info("Recording requested", "session", session.id, "raw", session.raw)
	m.wakeAudioThread()
	return nil
}

// StopRecording 请求音频线程停止录音，没有在录音时无效果
func (m *Manager) StopRecording() {
	m.assertNotAudioThread("StopRecording")
	if m.state.requestStop() {
		m.logger.Debug("Recording stop requested")
		m.wakeAudioThread()
	}
}

// HaltRecording 请求音频线程立即停止录音，不投递剩余数据
func (m *Manager) HaltRecording() {
	m.assertNotAudioThread("HaltRecording")
	if m.state.requestHalt() {
		m.logger.Debug("Recording halt requested")
		m.wakeAudioThread()
	}
}

// IsRecording 会话从开始请求起直到音频线程结束它为止都视为在录音。
// 这是一次快照读取，不保证与并发的状态转换同步。
func (m *Manager) IsRecording() bool {
	return m.state.Load() != StateIdle
}

// State 当前录音状态快照
func (m *Manager) State() RecordState {
	return m.state.Load()
}

// SetRecordBufferCapacity 设置采样队列预留的帧数，只能在空闲时调用
func (m *Manager) SetRecordBufferCapacity(frames int) error {
	m.assertNotAudioThread("SetRecordBufferCapacity")
	if frames < 1 {
		return fmt.Errorf("record buffer capacity must be at least 1 frame, got %d", frames)
	}
	if m.IsRecording() {
		return ErrNotIdle
	}
	m.bufferFrames.Store(int32(frames))
	m.logger.Debug("Record buffer capacity changed", "frames", frames)
	return nil
}

// RecordBufferCapacity 当前设置的帧数
func (m *Manager) RecordBufferCapacity() int {
	return int(m.bufferFrames.Load())
}

// LastError 返回并清除音频线程记录的最近一次会话错误（打开或启动采集失败）
func (m *Manager) LastError() error {
	if p := m.lastErr.Swap(nil); p != nil {
		return *p
	}
	return nil
}

func (m *Manager) setLastError(err error) {
	m.lastErr.Store(&err)
}

/* 设备 */

// RecordingDevices 枚举录音设备，每次都重新查询后端
func (m *Manager) RecordingDevices() ([]RecordingDevice, error) {
	devices, err := m.backend.RecordingDevices()
	if err != nil {
		return nil, fmt.Errorf("failed to enumerate recording devices: %w", err)
	}
	return devices, nil
}

// PlaybackDevices 枚举播放设备
func (m *Manager) PlaybackDevices() ([]PlaybackDevice, error) {
	devices, err := m.backend.PlaybackDevices()
	if err != nil {
		return nil, fmt.Errorf("failed to enumerate playback devices: %w", err)
	}
	return devices, nil
}

// RecordingDevice 按 id 查找录音设备，找不到或枚举失败时返回 false
func (m *Manager) RecordingDevice(id int) (RecordingDevice, bool) {
	devices, err := m.backend.RecordingDevices()
	if err != nil {
		m.logger.Warn("Failed to enumerate recording devices", "error", err)
		return unsetRecordingDevice, false
	}
	return findRecordingDevice(devices, id)
}

// PlaybackDevice 按 id 查找播放设备
func (m *Manager) PlaybackDevice(id int) (PlaybackDevice, bool) {
	devices, err := m.backend.PlaybackDevices()
	if err != nil {
		m.logger.Warn("Failed to enumerate playback devices", "error", err)
		return unsetPlaybackDevice, false
	}
	return findPlaybackDevice(devices, id)
}

// CurrentRecordingDevice 当前录音设备，未设置时 ID 为 InvalidDeviceID
func (m *Manager) CurrentRecordingDevice() RecordingDevice {
	return *m.recordDevice.Load()
}

// CurrentPlaybackDevice 当前播放设备
func (m *Manager) CurrentPlaybackDevice() PlaybackDevice {
	return *m.playbackDevice.Load()
}

func (m *Manager) IsRecordingDeviceSet() bool {
	return m.recordDevice.Load().Valid()
}

func (m *Manager) IsPlaybackDeviceSet() bool {
	return m.playbackDevice.Load().Valid()
}

// SetActiveRecordingDeviceID 按 id 选择录音设备
func (m *Manager) SetActiveRecordingDeviceID(id int) error {
	device, ok := m.RecordingDevice(id)
	if !ok {
		return fmt.Errorf("%w: recording device %d", ErrDeviceNotFound, id)
	}
	return m.SetActiveRecordingDevice(device)
}

// SetActiveRecordingDevice 选择录音设备。正在进行的录音会被立即停止，
// 设备会以其原生采样率和声道数试打开一次，后端拒绝时返回 ErrBackendOpen。
func (m *Manager) SetActiveRecordingDevice(device RecordingDevice) error {
	m.assertNotAudioThread("SetActiveRecordingDevice")
	if !device.Valid() {
		return fmt.Errorf("%w: invalid recording device id", ErrDeviceNotFound)
	}

	if m.IsRecording() {
		m.logger.Info("Halting recording to switch device", "device", device.Name)
		m.HaltRecording()
		if err := m.waitIdle(deviceSwitchTimeout); err != nil {
			return err
		}
	}

	stream, err := m.backend.OpenRecording(device, device.SampleRate, device.Channels)
	if err != nil {
		return fmt.Errorf("%w: %s: %v", ErrBackendOpen, device.Name, err)
	}
	if err := stream.Close(); err != nil {
		m.logger.Warn("Failed to close device check stream", "device", device.Name, "error", err)
	}

	m.recordDevice.Store(&device)
	m.logger.Info("Recording device selected",
		"id", device.ID,
		"name", device.Name,
		"sample_rate", device.SampleRate,
		"channels", device.Channels)
	return nil
}

// waitIdle 等待音频线程关闭当前的采集流。没有音频线程时（Close 之后或测试）直接在当前线程处理。
func (m *Manager) waitIdle(timeout time.Duration) error {
	deadline := time.Now().Add(timeout)
	for m.state.Load() != StateIdle {
		if m.cancel == nil || !m.running.Load() {
			m.tick()
			continue
		}
		if time.Now().After(deadline) {
			return fmt.Errorf("%w: capture stream still open after %s", ErrNotIdle, timeout)
		}
		m.wakeAudioThread()
		time.Sleep(time.Millisecond)
	}
	return nil
}

// SetActivePlaybackDeviceID 按 id 选择播放设备
func (m *Manager) SetActivePlaybackDeviceID(id int) error {
	device, ok := m.PlaybackDevice(id)
	if !ok {
		return fmt.Errorf("%w: playback device %d", ErrDeviceNotFound, id)
	}
	return m.SetActivePlaybackDevice(device)
}

// SetActivePlaybackDevice 选择播放设备
func (m *Manager) SetActivePlaybackDevice(device PlaybackDevice) error {
	if !device.Valid() {
		return fmt.Errorf("%w: invalid playback device id", ErrDeviceNotFound)
	}
	m.playbackDevice.Store(&device)
	m.logger.Info("Playback device selected", "id", device.ID, "name", device.Name)
	return nil
}

// ValidateDevices 当前选择的设备不在新的枚举结果中时（例如已断开）清除选择，
// 否则什么都不做。只能在调用方线程调用。
func (m *Manager) ValidateDevices() error {
	var result *multierror.Error

	if current := m.recordDevice.Load(); current.Valid() {
		devices, err := m.backend.RecordingDevices()
		if err != nil {
			result = multierror.Append(result, fmt.Errorf("failed to enumerate recording devices: %w", err))
		} else if _, ok := findRecordingDevice(devices, current.ID); !ok {
			if m.recordDevice.CompareAndSwap(current, &unsetRecordingDevice) {
				m.logger.Warn("Recording device disappeared, selection cleared", "id", current.ID, "name", current.Name)
			}
		}
	}

	if current := m.playbackDevice.Load(); current.Valid() {
		devices, err := m.backend.PlaybackDevices()
		if err != nil {
			result = multierror.Append(result, fmt.Errorf("failed to enumerate playback devices: %w", err))
		} else if _, ok := findPlaybackDevice(devices, current.ID); !ok {
			if m.playbackDevice.CompareAndSwap(current, &unsetPlaybackDevice) {
				m.logger.Warn("Playback device disappeared, selection cleared", "id", current.ID, "name", current.Name)
			}
		}
	}

	return result.ErrorOrNil()
}

// Close 停止录音和音频线程，释放声音并关闭后端。可以多次调用。
func (m *Manager) Close() error {
	m.closeOnce.Do(func() {
		m.state.requestHalt()
		if m.cancel != nil {
			m.cancel()
			<-m.done
		} else {
			// 音频线程未启动，直接处理 halt
			m.tick()
		}

		var result *multierror.Error
		if err := m.releaseAllSounds(); err != nil {
			result = multierror.Append(result, err)
		}
		if err := m.backend.Close(); err != nil {
			result = multierror.Append(result, fmt.Errorf("failed to close backend: %w", err))
		}
		m.closeErr = result.ErrorOrNil()
		m.logger.Info("Audio manager closed")
	})
	return m.closeErr
}
