package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/lisuiheng/voicecap/audio"
	_ "github.com/lisuiheng/voicecap/audio/backends/malgo"
	_ "github.com/lisuiheng/voicecap/audio/backends/portaudio"
	"github.com/lisuiheng/voicecap/core"
	"github.com/lisuiheng/voicecap/logger"
)

// app 所有子命令共享的运行环境，在 PersistentPreRunE 中初始化
type app struct {
	v          *viper.Viper
	configPath string
	cfg        core.Config
	registry   *prometheus.Registry
	metricsSrv *http.Server
}

func main() {
	a := &app{v: viper.New()}
	root := a.rootCommand()

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	err := root.ExecuteContext(ctx)
	stop()
	if serr := a.shutdown(); serr != nil {
		logger.Error("Shutdown failed", "error", serr)
	}
	if err != nil {
		logger.Error("Command failed", "error", err)
		_ = logger.Close()
		os.Exit(1)
	}
	_ = logger.Close()
}

func (a *app) rootCommand() *cobra.Command {
	root := &cobra.Command{
		Use:           "voicecap",
		Short:         "Voice capture and streaming client",
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			return a.initialize()
		},
	}

	flags := root.PersistentFlags()
	flags.StringVarP(&a.configPath, "config", "c", "", "Path to config file (default searches ./config.yaml, ./config/config.yaml, /etc/voicecap/config.yaml)")
	flags.String("backend", "", "Audio backend (auto, malgo, portaudio)")
	flags.String("log-level", "", "Log level (debug, info, warn, error)")
	flags.String("metrics-addr", "", "Serve Prometheus metrics on this address")
	flags.Int("recording-device", audio.InvalidDeviceID, "Recording device id, -1 for the system default")
	flags.Int("playback-device", audio.InvalidDeviceID, "Playback device id, -1 for the system default")
	_ = a.v.BindPFlag("audio.backend", flags.Lookup("backend"))
	_ = a.v.BindPFlag("logging.level", flags.Lookup("log-level"))
	_ = a.v.BindPFlag("metrics.addr", flags.Lookup("metrics-addr"))
	_ = a.v.BindPFlag("devices.recording", flags.Lookup("recording-device"))
	_ = a.v.BindPFlag("devices.playback", flags.Lookup("playback-device"))

	root.AddCommand(
		a.devicesCommand(),
		a.recordCommand(),
		a.playCommand(),
		a.streamCommand(),
	)
	return root
}

// initialize 加载配置、初始化日志和指标，并设置全局音频管理器的参数
func (a *app) initialize() error {
	cfg, err := loadConfig(a.v, a.configPath)
	if err != nil {
		return err
	}
	a.cfg = cfg

	if err := logger.Init(cfg.Logging); err != nil {
		return fmt.Errorf("failed to initialize logger: %w", err)
	}

	a.registry = prometheus.NewRegistry()
	a.registry.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	if cfg.Metrics.Addr != "" {
		a.startMetricsServer(cfg.Metrics.Addr)
	}

	amCfg := cfg.AudioManagerConfig()
	amCfg.Registerer = a.registry
	audio.SetDefaults(cfg.Audio.Backend, amCfg, logger.Logger())
	return nil
}

func (a *app) shutdown() error {
	var errs []error
	if err := audio.Shutdown(); err != nil {
		errs = append(errs, fmt.Errorf("failed to shut down audio: %w", err))
	}
	if a.metricsSrv != nil {
		ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
		defer cancel()
		if err := a.metricsSrv.Shutdown(ctx); err != nil {
			errs = append(errs, fmt.Errorf("failed to stop metrics server: %w", err))
		}
	}
	return errors.Join(errs...)
}

func (a *app) startMetricsServer(addr string) {
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.HandlerFor(a.registry, promhttp.HandlerOpts{Registry: a.registry}))
	a.metricsSrv = &http.Server{
		Addr:              addr,
		Handler:           mux,
		ReadHeaderTimeout: 5 * time.Second,
	}
	go func() {
		logger.Info("Serving metrics", "addr", addr)
		if err := a.metricsSrv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Error("Metrics server failed", "error", err)
		}
	}()
}

// loadConfig 加载配置文件，未找到配置文件时使用默认值和环境变量
func loadConfig(v *viper.Viper, configPath string) (core.Config, error) {
	setDefaults(v, core.DefaultConfig())
	v.SetConfigType("yaml")
	v.SetEnvPrefix("VOICECAP")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if configPath != "" {
		v.SetConfigFile(configPath)
		if err := v.ReadInConfig(); err != nil {
			return core.Config{}, fmt.Errorf("failed to read config: %w", err)
		}
	} else {
		v.SetConfigName("config")
		v.AddConfigPath(".")
		v.AddConfigPath("./config")
		v.AddConfigPath("/etc/voicecap")
		if err := v.ReadInConfig(); err != nil {
			var notFound viper.ConfigFileNotFoundError
			if !errors.As(err, &notFound) {
				return core.Config{}, fmt.Errorf("failed to read config: %w", err)
			}
		}
	}

	var cfg core.Config
	if err := v.Unmarshal(&cfg); err != nil {
		return core.Config{}, fmt.Errorf("failed to unmarshal config: %w", err)
	}
	if cfg.Network.Websocket == nil {
		cfg.Network.Websocket = &core.WebsocketConfig{}
	}
	return cfg, nil
}

func setDefaults(v *viper.Viper, d core.Config) {
	v.SetDefault("audio.backend", d.Audio.Backend)
	v.SetDefault("audio.tick_interval", d.Audio.TickInterval)
	v.SetDefault("audio.idle_interval", d.Audio.IdleInterval)
	v.SetDefault("audio.buffer_frames", d.Audio.BufferFrames)
	v.SetDefault("audio.flush_on_stop", d.Audio.FlushOnStop)
	v.SetDefault("audio.bitrate", d.Audio.Bitrate)
	v.SetDefault("devices.recording", d.Devices.Recording)
	v.SetDefault("devices.playback", d.Devices.Playback)
	v.SetDefault("network.transport", d.Network.Transport)
	v.SetDefault("network.device_id", d.Network.DeviceID)
	v.SetDefault("network.client_id", d.Network.ClientID)
	v.SetDefault("network.websocket.url", d.Network.Websocket.URL)
	v.SetDefault("network.websocket.access_token", d.Network.Websocket.AccessToken)
	v.SetDefault("network.reconnect.enabled", d.Network.Reconnect.Enabled)
	v.SetDefault("network.reconnect.min_delay", d.Network.Reconnect.MinDelay)
	v.SetDefault("network.reconnect.max_delay", d.Network.Reconnect.MaxDelay)
	v.SetDefault("logging.level", d.Logging.Level)
	v.SetDefault("logging.format", d.Logging.Format)
	v.SetDefault("logging.outputs", d.Logging.Outputs)
	v.SetDefault("metrics.addr", d.Metrics.Addr)
}

// manager 返回全局音频管理器
func (a *app) manager() (*audio.Manager, error) {
	m, err := audio.Instance()
	if err != nil {
		return nil, fmt.Errorf("failed to initialize audio: %w", err)
	}
	logger.Info("Audio backend ready", "backend", m.Backend().Name())
	return m, nil
}

// selectRecordingDevice id < 0 时选择系统默认设备，没有默认设备时选第一个
func selectRecordingDevice(m *audio.Manager, id int) error {
	if id >= 0 {
		return m.SetActiveRecordingDeviceID(id)
	}
	devices, err := m.RecordingDevices()
	if err != nil {
		return err
	}
	if len(devices) == 0 {
		return audio.ErrDeviceNotFound
	}
	chosen := devices[0]
	for _, d := range devices {
		if d.State.Default() {
			chosen = d
			break
		}
	}
	return m.SetActiveRecordingDevice(chosen)
}

func selectPlaybackDevice(m *audio.Manager, id int) error {
	if id < 0 {
		return nil
	}
	return m.SetActivePlaybackDeviceID(id)
}
