package audio

import (
	"fmt"
	"log/slog"
	"sync"
)

var (
	instance       *Manager
	instanceErr    error
	instanceOnce   sync.Once
	shutdownOnce   sync.Once
	defaultsLocker sync.Mutex

	defaultBackend = "auto"
	defaultConfig  = DefaultConfig()
	defaultLogger  *slog.Logger
)

// SetDefaults 设置全局实例的构造参数，必须在第一次调用 Instance 之前
func SetDefaults(backend string, cfg Config, logger *slog.Logger) {
	defaultsLocker.Lock()
	defer defaultsLocker.Unlock()
	defaultBackend = backend
	defaultConfig = cfg
	defaultLogger = logger
}

// Instance 返回进程级的音频管理器，第一次调用时创建
func Instance() (*Manager, error) {
	instanceOnce.Do(func() {
		defaultsLocker.Lock()
		backendName, cfg, logger := defaultBackend, defaultConfig, defaultLogger
		defaultsLocker.Unlock()
		if logger == nil {
			logger = slog.Default()
		}

		backend, err := NewBackend(backendName)
		if err != nil {
			instanceErr = err
			return
		}
		encoder, err := NewVoiceEncoder(cfg.Bitrate, logger)
		if err != nil {
			_ = backend.Close()
			instanceErr = fmt.Errorf("%w: %v", ErrCodec, err)
			return
		}
		instance, instanceErr = NewManager(backend, encoder, cfg, logger)
		if instanceErr != nil {
			_ = backend.Close()
		}
	})
	return instance, instanceErr
}

// Preinitialize 提前创建全局实例，避免第一次录音时的初始化延迟
func Preinitialize() error {
	_, err := Instance()
	return err
}

// Shutdown 关闭全局实例，进程退出时调用一次
func Shutdown() error {
	var err error
	shutdownOnce.Do(func() {
		// 确保之后的 Instance 不会再创建实例
		instanceOnce.Do(func() { instanceErr = ErrManagerClosed })
		if instance != nil {
			err = instance.Close()
		}
	})
	return err
}
