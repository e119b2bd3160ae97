package main

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/spf13/viper"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoadConfigDefaults(t *testing.T) {
	t.Chdir(t.TempDir())

	cfg, err := loadConfig(viper.New(), "")
	require.NoError(t, err)
	assert.Equal(t, "auto", cfg.Audio.Backend)
	assert.Equal(t, 10*time.Millisecond, cfg.Audio.TickInterval)
	assert.True(t, cfg.Audio.FlushOnStop)
	assert.Equal(t, -1, cfg.Devices.Recording)
	assert.Equal(t, "websocket", cfg.Network.Transport)
	require.NotNil(t, cfg.Network.Websocket)
	assert.Equal(t, time.Second, cfg.Network.Reconnect.MinDelay)
}

func TestLoadConfigFileAndEnv(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "config.yaml")
	data := []byte(`
audio:
  backend: malgo
  buffer_frames: 4
  tick_interval: 5ms
devices:
  recording: 2
network:
  websocket:
    url: ws://example.test/ws
logging:
  level: debug
`)
	require.NoError(t, os.WriteFile(path, data, 0o600))
	t.Setenv("VOICECAP_NETWORK_WEBSOCKET_ACCESS_TOKEN", "secret")

	cfg, err := loadConfig(viper.New(), path)
	require.NoError(t, err)
	assert.Equal(t, "malgo", cfg.Audio.Backend)
	assert.Equal(t, 4, cfg.Audio.BufferFrames)
	assert.Equal(t, 5*time.Millisecond, cfg.Audio.TickInterval)
	assert.Equal(t, 2, cfg.Devices.Recording)
	assert.Equal(t, "ws://example.test/ws", cfg.Network.Websocket.URL)
	assert.Equal(t, "secret", cfg.Network.Websocket.AccessToken)
	assert.Equal(t, "debug", cfg.Logging.Level)
	assert.NoError(t, cfg.Validate())
}

func TestLoadConfigMissingExplicitFile(t *testing.T) {
	_, err := loadConfig(viper.New(), filepath.Join(t.TempDir(), "missing.yaml"))
	assert.Error(t, err)
}
