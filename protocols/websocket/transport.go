// protocols/websocket/transport.go
package websocket

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"strconv"
	"sync"
	"time"

	"github.com/gorilla/websocket"

	"github.com/lisuiheng/voicecap/pkg/interfaces"
)

var _ interfaces.TransportProtocol = (*WSProtocol)(nil)

const (
	defaultHandshakeTimeout = 10 * time.Second
	defaultWriteTimeout     = 5 * time.Second
	receiveBuffer           = 100
)

type WSProtocol struct {
	config Config
	logger *slog.Logger

	mu        sync.Mutex
	conn      *websocket.Conn
	msgChan   chan interfaces.Message
	closeChan chan struct{}
	closeOnce sync.Once
}

// Config websocket 传输配置
type Config struct {
	URL             string
	AccessToken     string
	ProtocolVersion int
	DeviceID        string
	ClientID        string

	HandshakeTimeout time.Duration
	WriteTimeout     time.Duration
}

func NewWebSocketProtocol(config Config, logger *slog.Logger) (*WSProtocol, error) {
	if config.URL == "" {
		return nil, errors.New("websocket url cannot be empty")
	}
	if logger == nil {
		return nil, errors.New("logger cannot be nil")
	}
	if config.ProtocolVersion <= 0 {
		config.ProtocolVersion = 1
	}
	if config.HandshakeTimeout <= 0 {
		config.HandshakeTimeout = defaultHandshakeTimeout
	}
	if config.WriteTimeout <= 0 {
		config.WriteTimeout = defaultWriteTimeout
	}
	return &WSProtocol{
		config:    config,
		logger:    logger.With("transport", "websocket"),
		msgChan:   make(chan interfaces.Message, receiveBuffer),
		closeChan: make(chan struct{}),
	}, nil
}

func (p *WSProtocol) Connect(ctx context.Context) error {
	p.mu.Lock()
	defer p.mu.Unlock()

	if p.conn != nil {
		return errors.New("websocket already connected")
	}
	select {
	case <-p.closeChan:
		return fmt.Errorf("%w: transport closed", interfaces.ErrConnectionFailed)
	default:
	}

	headers := http.Header{}
	if p.config.AccessToken != "" {
		headers.Set("Authorization", "Bearer "+p.config.AccessToken)
	}
	headers.Set("Protocol-Version", strconv.Itoa(p.config.ProtocolVersion))
	if p.config.DeviceID != "" {
		headers.Set("Device-Id", p.config.DeviceID)
	}
	if p.config.ClientID != "" {
		headers.Set("Client-Id", p.config.ClientID)
	}

	dialer := websocket.Dialer{
		Proxy:            http.ProxyFromEnvironment,
		HandshakeTimeout: p.config.HandshakeTimeout,
	}
	conn, _, err := dialer.DialContext(ctx, p.config.URL, headers)
	if err != nil {
		return fmt.Errorf("%w: %v", interfaces.ErrConnectionFailed, err)
	}
	p.conn = conn

	go p.readPump(conn)
	p.logger.Debug("Websocket connected", "url", p.config.URL)
	return nil
}

// readPump 读取到错误或 Close 时退出，并关闭 Receive 返回的 channel
func (p *WSProtocol) readPump(conn *websocket.Conn) {
	defer close(p.msgChan)
	for {
		msgType, data, err := conn.ReadMessage()
		if err != nil {
			select {
			case <-p.closeChan:
			default:
				if websocket.IsCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway) {
					p.logger.Info("Websocket closed by server")
				} else {
					p.logger.Warn("Websocket read failed", "error", err)
				}
			}
			return
		}
		select {
		case p.msgChan <- interfaces.Message{Payload: data, Type: convertMsgType(msgType)}:
		case <-p.closeChan:
			return
		}
	}
}

func convertMsgType(wsType int) interfaces.MessageType {
	switch wsType {
	case websocket.TextMessage:
		return interfaces.MsgText
	case websocket.BinaryMessage:
		return interfaces.MsgBinary
	default:
		return interfaces.MsgControl
	}
}

func (p *WSProtocol) Send(data []byte, msgType interfaces.MessageType) error {
	p.mu.Lock()
	defer p.mu.Unlock()

	if p.conn == nil {
		return interfaces.ErrNotConnected
	}

	wsType := websocket.TextMessage
	if msgType == interfaces.MsgBinary {
		wsType = websocket.BinaryMessage
	}
	if err := p.conn.SetWriteDeadline(time.Now().Add(p.config.WriteTimeout)); err != nil {
		return fmt.Errorf("failed to set write deadline: %w", err)
	}
	if err := p.conn.WriteMessage(wsType, data); err != nil {
		return fmt.Errorf("failed to write %s message: %w", msgType, err)
	}
	return nil
}

func (p *WSProtocol) Receive() <-chan interfaces.Message {
	return p.msgChan
}

func (p *WSProtocol) ProtocolType() string { return "websocket" }

// Close 可以多次调用
func (p *WSProtocol) Close() error {
	var err error
	p.closeOnce.Do(func() {
		close(p.closeChan)

		p.mu.Lock()
		defer p.mu.Unlock()
		if p.conn == nil {
			close(p.msgChan)
			return
		}
		msg := websocket.FormatCloseMessage(websocket.CloseNormalClosure, "")
		_ = p.conn.WriteControl(websocket.CloseMessage, msg, time.Now().Add(time.Second))
		err = p.conn.Close()
	})
	return err
}
