package core

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/lisuiheng/voicecap/audio"
)

func TestDefaultConfigMatchesAudioDefaults(t *testing.T) {
	cfg := DefaultConfig()
	assert.Equal(t, audio.DefaultConfig(), cfg.AudioManagerConfig())
	assert.Equal(t, audio.InvalidDeviceID, cfg.Devices.Recording)
	assert.Equal(t, audio.InvalidDeviceID, cfg.Devices.Playback)
}

func TestConfigValidate(t *testing.T) {
	cfg := DefaultConfig()
	require.ErrorIs(t, cfg.Validate(), ErrInvalidConfig)

	cfg.Network.Websocket.URL = "ws://localhost:8000/ws"
	require.NoError(t, cfg.Validate())

	cfg.Audio.BufferFrames = -1
	require.ErrorIs(t, cfg.Validate(), ErrInvalidConfig)

	cfg = DefaultConfig()
	cfg.Network.Transport = "mqtt"
	require.ErrorIs(t, cfg.Validate(), ErrUnsupportedProtocol)
}

func TestNewProtocol(t *testing.T) {
	cfg := DefaultConfig()
	cfg.Network.Websocket.URL = "ws://localhost:8000/ws"
	p, err := NewProtocol(cfg, discardLogger())
	require.NoError(t, err)
	assert.Equal(t, "websocket", p.ProtocolType())

	cfg.Network.Transport = "udp"
	_, err = NewProtocol(cfg, discardLogger())
	require.ErrorIs(t, err, ErrUnsupportedProtocol)
}
