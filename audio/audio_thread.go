package audio

import (
	"context"
	"fmt"
	"time"
)

// start 启动音频线程，它一直运行到 Close
func (m *Manager) start() {
	ctx, cancel := context.WithCancel(context.Background())
	m.cancel = cancel
	m.running.Store(true)
	go m.audioThread(ctx)
}

func (m *Manager) wakeAudioThread() {
	select {
	case m.wake <- struct{}{}:
	default:
	}
}

func (m *Manager) audioThread(ctx context.Context) {
	defer close(m.done)
	defer m.running.Store(false)
	m.markAudioThread()

	m.logger.Debug("Audio thread started")
	defer m.logger.Debug("Audio thread stopped")

	timer := time.NewTimer(m.cfg.IdleInterval)
	defer timer.Stop()

	for {
		select {
		case <-ctx.Done():
			// Close 已经请求了 halt，在退出前关闭采集流
			m.tick()
			return
		case <-m.wake:
		case <-timer.C:
		}

		m.tick()

		interval := m.cfg.TickInterval
		if m.sleeping.Load() {
			interval = m.cfg.IdleInterval
		}
		if !timer.Stop() {
			select {
			case <-timer.C:
			default:
			}
		}
		timer.Reset(interval)
	}
}

// tick 音频线程的一次调度。状态按 halt > stop > deferred start > active 的优先级处理，
// 由于状态是单个原子值，每次只会看到其中一个。
func (m *Manager) tick() {
	status := m.state.current()
	switch status.state {
	case StateIdle:
		m.sleeping.Store(true)
	case StateHalting:
		m.finishSession(false)
	case StateStopping:
		m.finishSession(true)
	case StateDeferredStart:
		m.sleeping.Store(false)
		m.metrics.RecordingState.Set(float64(StateDeferredStart))
		m.beginSession(status.session)
	case StateActive:
		m.continueStream()
	}
}

// beginSession 打开采集流。失败只影响本次会话：回到 Idle，错误通过 LastError 返回。
func (m *Manager) beginSession(session *recordSession) {
	device := m.CurrentRecordingDevice()
	if !device.Valid() {
		m.abortSession(session, ErrNoDeviceSelected)
		return
	}

	stream, err := m.backend.OpenRecording(device, TargetSampleRate, Channels)
	if err != nil {
		m.abortSession(session, fmt.Errorf("%w: %s: %v", ErrBackendOpen, device.Name, err))
		return
	}
	if err := stream.Start(); err != nil {
		if cerr := stream.Close(); cerr != nil {
			m.logger.Warn("Failed to close capture stream", "error", cerr)
		}
		m.abortSession(session, fmt.Errorf("%w: %s: %v", ErrBackendStart, device.Name, err))
		return
	}

	m.queue.Clear()
	if err := m.queue.Reserve(m.RecordBufferCapacity() * FrameSize); err != nil {
		// 刚清空过，不会发生
		m.logger.Error("Failed to reserve sample queue", "error", err)
	}
	m.session = session
	m.stream = stream
	m.lastPosition = 0
	m.sequence = 0

	if !m.state.activate() {
		// 打开期间收到了 stop/halt，下一个 tick 处理
		m.logger.Debug("Recording stopped before it became active", "session", session.id)
		return
	}
	m.metrics.SessionsStarted.Inc()
	m.metrics.RecordingState.Set(float64(StateActive))
	m.logger.Info("Recording started",
		"session", session.id,
		"device", device.Name,
		"raw", session.raw,
		"buffer_frames", m.RecordBufferCapacity())
}

func (m *Manager) abortSession(session *recordSession, err error) {
	m.logger.Error("Failed to start recording", "session", session.id, "error", err)
	m.metrics.SessionErrors.Inc()
	m.setLastError(err)
	m.resetSession()
}

// continueStream 读取写指针之后的新采样。环形缓冲区回绕时分两段读取。
func (m *Manager) continueStream() {
	if m.stream == nil || m.session == nil {
		return
	}

	pos, err := m.stream.Position()
	if err != nil {
		m.readFailed(fmt.Errorf("%w: position: %v", ErrBackendRead, err))
		return
	}
	length := m.stream.Len()
	if pos < 0 || pos >= length {
		m.readFailed(fmt.Errorf("%w: position %d outside buffer of %d", ErrBackendRead, pos, length))
		return
	}
	if pos == m.lastPosition {
		return
	}

	var samples []float32
	if pos > m.lastPosition {
		samples, err = m.stream.Read(m.lastPosition, pos)
	} else {
		var head, tail []float32
		tail, err = m.stream.Read(m.lastPosition, length)
		if err == nil {
			head, err = m.stream.Read(0, pos)
		}
		samples = append(tail, head...)
	}
	if err != nil {
		// 不推进 lastPosition，下一个 tick 重试
		m.readFailed(fmt.Errorf("%w: %v", ErrBackendRead, err))
		return
	}

	m.lastPosition = pos
	m.metrics.SamplesCaptured.Add(float64(len(samples)))

	if m.session.raw {
		m.invokeRawCallback(samples)
		return
	}

	for len(samples) > 0 {
		n := min(m.queue.Free(), len(samples))
		if err := m.queue.Push(samples[:n]); err != nil {
			m.logger.Error("Failed to queue samples", "error", err)
			return
		}
		samples = samples[n:]
		m.deliverFrames()
	}
}

func (m *Manager) readFailed(err error) {
	m.metrics.CaptureReadErrors.Inc()
	m.logger.Warn("Skipping audio tick", "error", err)
}

// deliverFrames 编码队列里所有完整帧。收到 halt 后立即停止投递。
func (m *Manager) deliverFrames() {
	for m.queue.Available() >= FrameSize {
		if m.state.Load() == StateHalting {
			return
		}
		pcm, err := m.queue.Take(FrameSize)
		if err != nil {
			m.logger.Error("Failed to take frame from queue", "error", err)
			return
		}
		data, err := m.encoder.Encode(pcm)
		if err != nil {
			m.metrics.CodecErrors.Inc()
			m.logger.Warn("Dropping frame", "sequence", m.sequence, "error", err)
			m.sequence++
			continue
		}
		frame := EncodedFrame{Data: data, Sequence: m.sequence, Samples: FrameSize}
		m.sequence++
		m.metrics.FramesEncoded.Inc()
		m.invokeFrameCallback(frame)
	}
}

func (m *Manager) invokeFrameCallback(frame EncodedFrame) {
	defer m.recoverCallback()
	m.session.onFrame(frame)
}

func (m *Manager) invokeRawCallback(pcm []float32) {
	if len(pcm) == 0 || m.state.Load() == StateHalting {
		return
	}
	defer m.recoverCallback()
	m.session.onRaw(pcm)
}

func (m *Manager) recoverCallback() {
	if r := recover(); r != nil {
		m.metrics.CallbackPanics.Inc()
		m.logger.Error("Recording callback panicked", "session", m.session.id, "panic", r)
	}
}

// finishSession 结束会话。graceful 为 true 时（stop）投递剩余的完整帧，
// 不足一帧的尾部从不送入编码器；为 false 时（halt）直接丢弃。
func (m *Manager) finishSession(graceful bool) {
	if m.session != nil {
		if graceful {
			if m.cfg.FlushOnStop {
				m.continueStream()
			}
			if !m.session.raw {
				m.deliverFrames()
			}
		}
		if dropped := m.queue.Available(); dropped > 0 {
			m.logger.Debug("Discarding partial frame", "samples", dropped)
		}
		m.logger.Info("Recording stopped", "session", m.session.id, "graceful", graceful, "frames", m.sequence)
	}
	m.resetSession()
}

// resetSession 关闭采集流并回到 Idle
func (m *Manager) resetSession() {
	if m.stream != nil {
		if err := m.stream.Close(); err != nil {
			m.logger.Warn("Failed to close capture stream", "error", err)
		}
	}
	m.stream = nil
	m.session = nil
	m.queue.Clear()
	m.lastPosition = 0
	m.state.reset()
	m.sleeping.Store(true)
	m.metrics.RecordingState.Set(float64(StateIdle))
}
