package audio

import "log/slog"

// NewManualManager 不启动音频线程，测试通过 Tick 驱动
func NewManualManager(backend Backend, encoder FrameEncoder, cfg Config, logger *slog.Logger) (*Manager, error) {
	m, err := newManager(backend, encoder, cfg, logger)
	if err != nil {
		return nil, err
	}
	m.running.Store(true)
	return m, nil
}

// Tick 执行一次音频线程调度
func (m *Manager) Tick() {
	m.tick()
}
