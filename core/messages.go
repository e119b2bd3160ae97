package core

import (
	"encoding/json"
	"errors"
	"fmt"

	"github.com/lisuiheng/voicecap/audio"
)

type helloMessage struct {
	Type        string      `json:"type"`
	Version     int         `json:"version"`
	Transport   string      `json:"transport"`
	AudioParams audioParams `json:"audio_params"`
}

type audioParams struct {
	Format        string `json:"format"`
	SampleRate    int    `json:"sample_rate"`
	Channels      int    `json:"channels"`
	FrameDuration int    `json:"frame_duration"`
}

type listenMessage struct {
	SessionID string     `json:"session_id"`
	Type      string     `json:"type"`
	State     string     `json:"state"`
	Mode      ListenMode `json:"mode,omitempty"`
}

// serverMessage 服务端下发的所有文本消息共用的字段
type serverMessage struct {
	Type      string     `json:"type"`
	State     string     `json:"state"`
	SessionID string     `json:"session_id"`
	Mode      ListenMode `json:"mode"`
	Text      string     `json:"text"`
	Emotion   string     `json:"emotion"`
	Reason    string     `json:"reason"`
	Message   string     `json:"message"`
}

// handleMessage 处理接收到的文本消息
func (c *Client) handleMessage(data []byte) error {
	if len(data) == 0 {
		c.logger.Debug("Empty message received")
		return nil
	}

	var msg serverMessage
	if err := json.Unmarshal(data, &msg); err != nil {
		c.logger.Error("Failed to unmarshal message", "error", err, "raw_message", string(data))
		return fmt.Errorf("failed to unmarshal message: %w", err)
	}
	if msg.Type == "" {
		return errors.New("message type is missing")
	}
	c.logger.Debug("Handling message", "type", msg.Type, "state", msg.State)

	switch msg.Type {
	case "hello":
		return c.handleHelloResponse(msg)
	case "listen":
		return c.handleListenMessage(msg)
	case "tts":
		return c.handleTTSMessage(msg)
	case "stt":
		c.logger.Info("STT result received", "text", msg.Text, "session", msg.SessionID)
		return nil
	case "llm":
		emotion := msg.Emotion
		if emotion == "" {
			emotion = "neutral"
		}
		c.logger.Info("LLM response received", "text", msg.Text, "emotion", emotion, "session", msg.SessionID)
		return nil
	case "abort":
		c.logger.Info("Session aborted", "reason", msg.Reason)
		c.AbortListening()
		c.turn.StopReceiving()
		c.flushPlayback()
		c.setState(DeviceStateIdle)
		return nil
	case "error":
		c.logger.Error("Received error message", "session_id", msg.SessionID, "error", msg.Message)
		return fmt.Errorf("session %s error: %s", msg.SessionID, msg.Message)
	default:
		c.logger.Warn("Unknown message type received", "type", msg.Type)
		return nil
	}
}

// handleHelloResponse 记录会话 id 并开始自动监听
func (c *Client) handleHelloResponse(msg serverMessage) error {
	if msg.SessionID == "" {
		return errors.New("hello response missing session_id")
	}
	c.stateMutex.Lock()
	c.sessionID = msg.SessionID
	c.stateMutex.Unlock()
	c.logger.Info("Received hello response from server", "session_id", msg.SessionID)

	return c.StartListening(ListenModeAuto)
}

// handleListenMessage 服务端远程控制录音
func (c *Client) handleListenMessage(msg serverMessage) error {
	switch msg.State {
	case "start":
		mode := msg.Mode
		if mode == "" {
			mode = ListenModeManual
		}
		return c.StartListening(mode)
	case "stop":
		return c.StopListening()
	case "halt":
		c.AbortListening()
		return nil
	case "detect":
		c.logger.Info("Wake word detected", "text", msg.Text)
	default:
		c.logger.Debug("Received listen message", "state", msg.State)
	}
	return nil
}

// handleTTSMessage 服务端说话期间暂停上行
func (c *Client) handleTTSMessage(msg serverMessage) error {
	switch msg.State {
	case "start":
		c.haltRecording()
		c.drainAudioSend()
		c.turn.StartReceiving()
		c.setState(DeviceStateSpeaking)
	case "stop":
		c.turn.StopReceiving()
		c.logger.Info("Stopped audio receiving")
		c.setState(DeviceStateIdle)
		if err := c.StartListening(ListenModeAuto); err != nil {
			return fmt.Errorf("failed to resume listening: %w", err)
		}
	case "sentence_start":
		c.logger.Info("TTS sentence started", "text", msg.Text, "session_id", msg.SessionID)
	case "sentence_end":
		c.logger.Info("TTS sentence ended", "text", msg.Text, "session_id", msg.SessionID)
	default:
		return fmt.Errorf("unknown tts state %q", msg.State)
	}
	return nil
}

// handleBinaryMessage 解码服务端下发的语音帧并排队播放
func (c *Client) handleBinaryMessage(data []byte) error {
	if !c.turn.IsReceiving() {
		c.logger.Debug("Received unexpected binary message", "size", len(data))
		return nil
	}

	pcm, err := c.decoder.Decode(data)
	if err != nil {
		return fmt.Errorf("%w: %v", audio.ErrCodec, err)
	}
	select {
	case c.playChan <- pcm:
	case <-c.closeChan:
	}
	return nil
}
