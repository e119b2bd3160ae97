package core

import (
	"fmt"
	"time"

	"github.com/lisuiheng/voicecap/audio"
	"github.com/lisuiheng/voicecap/logger"
)

// Config 是客户端配置结构，对应 YAML 配置文件
type Config struct {
	Audio   AudioConfig   `mapstructure:"audio"`
	Devices DevicesConfig `mapstructure:"devices"`
	Network NetworkConfig `mapstructure:"network"`
	Logging logger.Config `mapstructure:"logging"`
	Metrics MetricsConfig `mapstructure:"metrics"`
}

type AudioConfig struct {
	Backend      string        `mapstructure:"backend"` // auto/malgo/portaudio
	TickInterval time.Duration `mapstructure:"tick_interval"`
	IdleInterval time.Duration `mapstructure:"idle_interval"`
	BufferFrames int           `mapstructure:"buffer_frames"`
	FlushOnStop  bool          `mapstructure:"flush_on_stop"`
	Bitrate      int           `mapstructure:"bitrate"`
}

// DevicesConfig 设备 id，-1 表示使用系统默认设备
type DevicesConfig struct {
	Recording int `mapstructure:"recording"`
	Playback  int `mapstructure:"playback"`
}

type NetworkConfig struct {
	Transport string           `mapstructure:"transport"`
	DeviceID  string           `mapstructure:"device_id"`
	ClientID  string           `mapstructure:"client_id"`
	Websocket *WebsocketConfig `mapstructure:"websocket"`
	Reconnect ReconnectConfig  `mapstructure:"reconnect"`
}

type WebsocketConfig struct {
	URL         string `mapstructure:"url"`
	AccessToken string `mapstructure:"access_token"`
}

type ReconnectConfig struct {
	Enabled  bool          `mapstructure:"enabled"`
	MinDelay time.Duration `mapstructure:"min_delay"`
	MaxDelay time.Duration `mapstructure:"max_delay"`
}

type MetricsConfig struct {
	Addr string `mapstructure:"addr"` // 为空时不启动 /metrics
}

// DefaultConfig 返回默认配置，viper 的默认值也从这里来
func DefaultConfig() Config {
	ac := audio.DefaultConfig()
	return Config{
		Audio: AudioConfig{
			Backend:      "auto",
			TickInterval: ac.TickInterval,
			IdleInterval: ac.IdleInterval,
			BufferFrames: ac.RecordBufferFrames,
			FlushOnStop:  ac.FlushOnStop,
			Bitrate:      ac.Bitrate,
		},
		Devices: DevicesConfig{
			Recording: audio.InvalidDeviceID,
			Playback:  audio.InvalidDeviceID,
		},
		Network: NetworkConfig{
			Transport: "websocket",
			Websocket: &WebsocketConfig{},
			Reconnect: ReconnectConfig{
				Enabled:  true,
				MinDelay: time.Second,
				MaxDelay: 30 * time.Second,
			},
		},
		Logging: logger.Config{
			Level:   "info",
			Format:  "text",
			Outputs: []string{"stdout"},
		},
	}
}

// AudioManagerConfig 转换为 audio.Config
func (c Config) AudioManagerConfig() audio.Config {
	return audio.Config{
		TickInterval:       c.Audio.TickInterval,
		IdleInterval:       c.Audio.IdleInterval,
		RecordBufferFrames: c.Audio.BufferFrames,
		FlushOnStop:        c.Audio.FlushOnStop,
		Bitrate:            c.Audio.Bitrate,
	}
}

// Validate 检查连接服务器所需的配置
func (c Config) Validate() error {
	switch c.Network.Transport {
	case "websocket":
		if c.Network.Websocket == nil || c.Network.Websocket.URL == "" {
			return fmt.Errorf("%w: network.websocket.url is required", ErrInvalidConfig)
		}
	default:
		return fmt.Errorf("%w: %q", ErrUnsupportedProtocol, c.Network.Transport)
	}
	if c.Audio.BufferFrames < 0 {
		return fmt.Errorf("%w: audio.buffer_frames must not be negative", ErrInvalidConfig)
	}
	return nil
}
