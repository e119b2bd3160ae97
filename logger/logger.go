package logger

import (
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"sync"
)

var (
	globalLogger *slog.Logger
	closers      []io.Closer
	once         sync.Once
)

type Config struct {
	Level   string   `json:"level" yaml:"level" mapstructure:"level"`       // debug/info/warn/error
	Format  string   `json:"format" yaml:"format" mapstructure:"format"`    // text/json
	Outputs []string `json:"outputs" yaml:"outputs" mapstructure:"outputs"` // stdout/stderr/file path
}

// ParseLevel 未知级别按 info 处理
func ParseLevel(level string) slog.Level {
	switch strings.ToLower(level) {
	case "debug":
		return slog.LevelDebug
	case "warn", "warning":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}

// New 按配置创建 logger，返回的 closer 关闭打开的日志文件
func New(cfg Config) (*slog.Logger, []io.Closer, error) {
	var (
		writers []io.Writer
		files   []io.Closer
	)
	for _, output := range cfg.Outputs {
		switch output {
		case "", "stdout":
			writers = append(writers, os.Stdout)
		case "stderr":
			writers = append(writers, os.Stderr)
		default:
			// 确保目录存在
			if err := os.MkdirAll(filepath.Dir(output), 0755); err != nil {
				closeAll(files)
				return nil, nil, fmt.Errorf("failed to create log directory: %w", err)
			}
			file, err := os.OpenFile(output, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0644)
			if err != nil {
				closeAll(files)
				return nil, nil, fmt.Errorf("failed to open log file: %w", err)
			}
			writers = append(writers, file)
			files = append(files, file)
		}
	}

	// 如果没有指定输出，默认使用stdout
	if len(writers) == 0 {
		writers = append(writers, os.Stdout)
	}
	w := io.MultiWriter(writers...)

	opts := &slog.HandlerOptions{Level: ParseLevel(cfg.Level)}
	var handler slog.Handler
	switch strings.ToLower(cfg.Format) {
	case "", "text":
		handler = slog.NewTextHandler(w, opts)
	case "json":
		handler = slog.NewJSONHandler(w, opts)
	default:
		closeAll(files)
		return nil, nil, fmt.Errorf("unknown log format %q", cfg.Format)
	}
	return slog.New(handler), files, nil
}

// Init 初始化全局 logger，只有第一次调用生效
func Init(cfg Config) error {
	var err error
	once.Do(func() {
		var l *slog.Logger
		l, closers, err = New(cfg)
		if err != nil {
			return
		}
		globalLogger = l
		slog.SetDefault(l)
	})
	return err
}

// Close 关闭日志文件
func Close() error {
	err := closeAll(closers)
	closers = nil
	return err
}

func closeAll(files []io.Closer) error {
	var errs []error
	for _, f := range files {
		if err := f.Close(); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

func Debug(msg string, args ...interface{}) {
	Logger().Debug(msg, args...)
}

func Info(msg string, args ...interface{}) {
	Logger().Info(msg, args...)
}

func Warn(msg string, args ...interface{}) {
	Logger().Warn(msg, args...)
}

func Error(msg string, args ...interface{}) {
	Logger().Error(msg, args...)
}

// Logger 未初始化时返回 slog.Default()
func Logger() *slog.Logger {
	if globalLogger == nil {
		return slog.Default()
	}
	return globalLogger
}
