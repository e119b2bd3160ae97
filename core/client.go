package core

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"

	"github.com/lisuiheng/voicecap/audio"
	"github.com/lisuiheng/voicecap/pkg/interfaces"
	"github.com/lisuiheng/voicecap/protocols/websocket"
	"github.com/lisuiheng/voicecap/utils"
)

const (
	protocolVersion      = 1
	audioSendBuffer      = 100
	playbackBuffer       = 100
	playbackPollInterval = 20 * time.Millisecond
)

// VoiceIO 客户端用到的音频能力，*audio.Manager 实现了它
type VoiceIO interface {
	StartRecording(callback audio.FrameCallback) error
	StopRecording()
	HaltRecording()
	IsRecording() bool
	LastError() error
	CreateSound(pcm []float32, sampleRate int) (audio.SoundHandle, error)
	PlaySound(h audio.SoundHandle) (audio.ChannelHandle, error)
	IsPlaying(h audio.ChannelHandle) bool
	StopChannel(h audio.ChannelHandle) error
	ReleaseSound(h audio.SoundHandle) error
}

var _ VoiceIO = (*audio.Manager)(nil)

// TransportFactory 每次连接创建一个新的传输实例
type TransportFactory func(cfg Config, logger *slog.Logger) (interfaces.TransportProtocol, error)

type Client struct {
	config       Config
	voice        VoiceIO
	decoder      audio.FrameDecoder
	newTransport TransportFactory
	logger       *slog.Logger
	backoff      utils.ReconnectStrategy

	transportMu sync.RWMutex
	transport   interfaces.TransportProtocol

	state      DeviceState
	sessionID  string
	stateMutex sync.RWMutex

	// voiceMu 保证同一时刻只有一个 goroutine 调用 VoiceIO
	voiceMu sync.Mutex
	turn    turnController

	audioSendChan chan audio.EncodedFrame
	playChan      chan []float32
	flushPlayChan chan struct{}
	droppedFrames atomic.Uint64

	closeChan chan struct{}
	closeOnce sync.Once
	startOnce sync.Once
	wg        sync.WaitGroup
}

// DeviceState 表示设备状态
type DeviceState string

const (
	DeviceStateUnknown      DeviceState = "unknown"
	DeviceStateConnecting   DeviceState = "connecting"
	DeviceStateIdle         DeviceState = "idle"
	DeviceStateListening    DeviceState = "listening"
	DeviceStateSpeaking     DeviceState = "speaking"
	DeviceStateDisconnected DeviceState = "disconnected"
)

// ListenMode 定义监听模式
type ListenMode string

const (
	ListenModeAuto     ListenMode = "auto"
	ListenModeManual   ListenMode = "manual"
	ListenModeRealtime ListenMode = "realtime"
)

// Status 包含客户端状态信息
type Status struct {
	State            DeviceState
	SessionID        string
	ConnectionStatus string
	DroppedFrames    uint64
}

type Option func(*Client)

// WithTransportFactory 替换默认的 NewProtocol
func WithTransportFactory(f TransportFactory) Option {
	return func(c *Client) { c.newTransport = f }
}

// WithReconnectStrategy 替换根据配置创建的退避策略
func WithReconnectStrategy(s utils.ReconnectStrategy) Option {
	return func(c *Client) { c.backoff = s }
}

// NewClient 创建语音客户端。voice 通常是 audio.Instance()，decoder 用于播放服务端下发的语音帧。
func NewClient(cfg Config, voice VoiceIO, decoder audio.FrameDecoder, log *slog.Logger, opts ...Option) (*Client, error) {
	if log == nil {
		return nil, errors.New("logger cannot be nil")
	}
	if voice == nil {
		return nil, errors.New("voice io cannot be nil")
	}
	if decoder == nil {
		return nil, errors.New("frame decoder cannot be nil")
	}
	if cfg.Network.ClientID == "" {
		cfg.Network.ClientID = uuid.NewString()
	}

	c := &Client{
		config:        cfg,
		voice:         voice,
		decoder:       decoder,
		newTransport:  NewProtocol,
		logger:        log.With("component", "client"),
		backoff:       utils.NewExponentialBackoffWithLimits(cfg.Network.Reconnect.MinDelay, cfg.Network.Reconnect.MaxDelay),
		state:         DeviceStateUnknown,
		audioSendChan: make(chan audio.EncodedFrame, audioSendBuffer),
		playChan:      make(chan []float32, playbackBuffer),
		flushPlayChan: make(chan struct{}, 1),
		closeChan:     make(chan struct{}),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c, nil
}

// Connect 连接服务器并发送 hello
func (c *Client) Connect(ctx context.Context) error {
	_, err := c.connect(ctx)
	return err
}

// connect 返回的 channel 在连接断开时关闭
func (c *Client) connect(ctx context.Context) (<-chan struct{}, error) {
	select {
	case <-c.closeChan:
		return nil, errors.New("client closed")
	default:
	}
	c.startOnce.Do(func() {
		c.wg.Add(1)
		go c.playbackLoop()
	})

	c.setState(DeviceStateConnecting)
	c.logger.Info("Connecting to server", "transport", c.config.Network.Transport)

	transport, err := c.newTransport(c.config, c.logger)
	if err != nil {
		c.setState(DeviceStateUnknown)
		return nil, fmt.Errorf("failed to create transport: %w", err)
	}
	if err := transport.Connect(ctx); err != nil {
		c.setState(DeviceStateDisconnected)
		return nil, fmt.Errorf("%w: %v", ErrConnectionFailed, err)
	}
	c.setTransport(transport)

	hello := helloMessage{
		Type:      "hello",
		Version:   protocolVersion,
		Transport: transport.ProtocolType(),
		AudioParams: audioParams{
			Format:        "opus",
			SampleRate:    audio.TargetSampleRate,
			Channels:      audio.Channels,
			FrameDuration: int(audio.ChunkRecordTime / time.Millisecond),
		},
	}
	if err := c.sendJSON(hello); err != nil {
		_ = transport.Close()
		c.setTransport(nil)
		c.setState(DeviceStateDisconnected)
		return nil, fmt.Errorf("failed to send hello message: %w", err)
	}

	connDone := make(chan struct{})
	c.wg.Add(2)
	go c.messageHandler(transport, connDone)
	go c.audioSender(transport, connDone)

	c.logger.Info("Connected to server successfully")
	c.setState(DeviceStateIdle)
	return connDone, nil
}

// Run 连接并保持连接，断线后按退避策略重连，直到 ctx 取消或 Close
func (c *Client) Run(ctx context.Context) error {
	c.logger.Info("Starting client main loop")
	defer c.logger.Info("Client main loop stopped")

	for {
		connDone, err := c.connect(ctx)
		if err == nil {
			c.backoff.Reset()
			select {
			case <-ctx.Done():
				return nil
			case <-c.closeChan:
				return nil
			case <-connDone:
				c.connectionLost()
				err = ErrConnectionLost
			}
		}

		if !c.config.Network.Reconnect.Enabled {
			return err
		}
		delay := c.backoff.NextDelay()
		c.logger.Warn("Reconnecting", "error", err, "attempt", c.backoff.Attempts(), "delay", delay)
		select {
		case <-ctx.Done():
			return nil
		case <-c.closeChan:
			return nil
		case <-time.After(delay):
		}
	}
}

// StartListening 开始录音并上传语音帧
func (c *Client) StartListening(mode ListenMode) error {
	if state := c.GetState(); state != DeviceStateIdle {
		return fmt.Errorf("%w: cannot start listening from %s", ErrInvalidState, state)
	}
	if !c.turn.StartSending() {
		return ErrTurnBusy
	}

	c.voiceMu.Lock()
	err := c.voice.StartRecording(c.onFrame)
	c.voiceMu.Unlock()
	if err != nil {
		c.turn.StopSending()
		return fmt.Errorf("failed to start recording: %w", err)
	}

	msg := listenMessage{SessionID: c.SessionID(), Type: "listen", State: "start", Mode: mode}
	if err := c.sendJSON(msg); err != nil {
		c.haltRecording()
		c.turn.StopSending()
		return fmt.Errorf("failed to send listen command: %w", err)
	}

	c.setState(DeviceStateListening)
	c.logger.Info("Listening started", "mode", mode)
	return nil
}

// StopListening 停止录音，剩余的完整帧仍会上传
func (c *Client) StopListening() error {
	if state := c.GetState(); state != DeviceStateListening {
		return fmt.Errorf("%w: cannot stop listening from %s", ErrInvalidState, state)
	}

	c.voiceMu.Lock()
	c.voice.StopRecording()
	c.voiceMu.Unlock()

	msg := listenMessage{SessionID: c.SessionID(), Type: "listen", State: "stop"}
	if err := c.sendJSON(msg); err != nil {
		c.logger.Error("Failed to send stop listening command", "error", err)
	}

	c.setState(DeviceStateIdle)
	c.logger.Info("Listening stopped")
	return nil
}

// AbortListening 立即停止录音并丢弃未上传的数据
func (c *Client) AbortListening() {
	c.haltRecording()
	c.turn.StopSending()
	c.drainAudioSend()
	if c.GetState() == DeviceStateListening {
		c.setState(DeviceStateIdle)
	}
}

// onFrame 在音频线程上执行，不能阻塞
func (c *Client) onFrame(frame audio.EncodedFrame) {
	if !c.turn.IsSending() {
		return
	}
	select {
	case c.audioSendChan <- frame:
	default:
		if n := c.droppedFrames.Add(1); n == 1 || n%50 == 0 {
			c.logger.Warn("Audio send buffer full, dropping frame", "sequence", frame.Sequence, "dropped", n)
		}
	}
}

func (c *Client) audioSender(transport interfaces.TransportProtocol, connDone <-chan struct{}) {
	defer c.wg.Done()
	c.logger.Debug("Starting audio sender")
	defer c.logger.Debug("Audio sender stopped")

	for {
		select {
		case <-c.closeChan:
			return
		case <-connDone:
			return
		case frame := <-c.audioSendChan:
			if !c.turn.IsSending() {
				continue
			}
			if err := transport.Send(frame.Data, interfaces.MsgBinary); err != nil {
				c.logger.Warn("Failed to send audio", "sequence", frame.Sequence, "error", err)
			}
		}
	}
}

func (c *Client) drainAudioSend() {
	for {
		select {
		case <-c.audioSendChan:
		default:
			return
		}
	}
}

func (c *Client) messageHandler(transport interfaces.TransportProtocol, connDone chan<- struct{}) {
	defer c.wg.Done()
	defer close(connDone)

	msgChan := transport.Receive()
	for {
		select {
		case <-c.closeChan:
			return
		case msg, ok := <-msgChan:
			if !ok {
				c.logger.Warn("Connection closed by transport")
				return
			}
			switch msg.Type {
			case interfaces.MsgText:
				if err := c.handleMessage(msg.Payload); err != nil {
					c.logger.Error("Failed to handle text message", "error", err)
				}
			case interfaces.MsgBinary:
				if err := c.handleBinaryMessage(msg.Payload); err != nil {
					c.logger.Error("Failed to handle binary message", "error", err)
				}
			}
		}
	}
}

// connectionLost 连接断开后清理会话状态
func (c *Client) connectionLost() {
	c.haltRecording()
	c.turn.Reset()
	c.drainAudioSend()
	c.flushPlayback()

	c.transportMu.Lock()
	if c.transport != nil {
		_ = c.transport.Close()
		c.transport = nil
	}
	c.transportMu.Unlock()

	c.setState(DeviceStateDisconnected)
}

func (c *Client) haltRecording() {
	c.voiceMu.Lock()
	defer c.voiceMu.Unlock()
	c.voice.HaltRecording()
}

// GetStatus 获取当前状态
func (c *Client) GetStatus() Status {
	c.transportMu.RLock()
	connStatus := "disconnected"
	if c.transport != nil {
		connStatus = "connected"
	}
	c.transportMu.RUnlock()

	c.stateMutex.RLock()
	defer c.stateMutex.RUnlock()
	return Status{
		State:            c.state,
		SessionID:        c.sessionID,
		ConnectionStatus: connStatus,
		DroppedFrames:    c.droppedFrames.Load(),
	}
}

// Close 关闭客户端连接，可以多次调用
func (c *Client) Close() error {
	var err error
	c.closeOnce.Do(func() {
		c.logger.Info("Closing client connection")
		close(c.closeChan)
		c.haltRecording()

		c.transportMu.Lock()
		if c.transport != nil {
			if cerr := c.transport.Close(); cerr != nil {
				err = fmt.Errorf("failed to close transport: %w", cerr)
			}
			c.transport = nil
		}
		c.transportMu.Unlock()

		c.wg.Wait()
		c.setState(DeviceStateDisconnected)
		c.logger.Info("Client closed")
	})
	return err
}

// GetState 获取当前设备状态
func (c *Client) GetState() DeviceState {
	c.stateMutex.RLock()
	defer c.stateMutex.RUnlock()
	return c.state
}

func (c *Client) SessionID() string {
	c.stateMutex.RLock()
	defer c.stateMutex.RUnlock()
	return c.sessionID
}

func (c *Client) setState(newState DeviceState) {
	c.stateMutex.Lock()
	oldState := c.state
	c.state = newState
	c.stateMutex.Unlock()

	if oldState != newState {
		c.logger.Info("State changed", "from", oldState, "to", newState)
	}
}

func (c *Client) setTransport(t interfaces.TransportProtocol) {
	c.transportMu.Lock()
	defer c.transportMu.Unlock()
	c.transport = t
}

// sendJSON 发送 JSON 消息
func (c *Client) sendJSON(data any) error {
	c.transportMu.RLock()
	transport := c.transport
	c.transportMu.RUnlock()
	if transport == nil {
		return ErrNotConnected
	}

	msg, err := json.Marshal(data)
	if err != nil {
		return fmt.Errorf("failed to marshal message: %w", err)
	}
	c.logger.Debug("Sending JSON message", "json", string(msg))
	return transport.Send(msg, interfaces.MsgText)
}

// NewProtocol 根据配置创建对应的协议实例
func NewProtocol(config Config, logger *slog.Logger) (interfaces.TransportProtocol, error) {
	switch config.Network.Transport {
	case "websocket":
		if config.Network.Websocket == nil {
			return nil, errors.New("websocket config missing")
		}
		return websocket.NewWebSocketProtocol(websocket.Config{
			URL:             config.Network.Websocket.URL,
			AccessToken:     config.Network.Websocket.AccessToken,
			ProtocolVersion: protocolVersion,
			DeviceID:        config.Network.DeviceID,
			ClientID:        config.Network.ClientID,
		}, logger)
	default:
		return nil, fmt.Errorf("%w: %s", ErrUnsupportedProtocol, config.Network.Transport)
	}
}
