// Package interfaces 定义客户端和语音服务器之间的传输层
package interfaces

import (
	"context"
	"errors"
)

var (
	// ErrConnectionFailed 握手失败或连接已经关闭
	ErrConnectionFailed = errors.New("connection failed")
	ErrNotConnected     = errors.New("transport not connected")
)

// TransportProtocol 一条连接上同时承载两类消息：
// 编码后的语音帧（MsgBinary，每帧 60ms opus）和 JSON 控制消息（MsgText，hello/listen/tts/abort）。
// Send 可以在任意 goroutine 调用；Receive 返回的 channel 在连接断开后关闭，
// 客户端以此判断需要重连。
type TransportProtocol interface {
	Connect(ctx context.Context) error
	Send(data []byte, msgType MessageType) error
	Receive() <-chan Message
	Close() error
	// ProtocolType 配置里 network.transport 的取值
	ProtocolType() string
}

// Message 从服务器收到的一条消息，Payload 不会被传输层复用
type Message struct {
	Payload []byte
	Type    MessageType
}

type MessageType int

const (
	MsgText    MessageType = iota // JSON 控制消息
	MsgBinary                     // 语音帧
	MsgControl                    // ping/pong/close，客户端忽略
)

func (t MessageType) String() string {
	switch t {
	case MsgText:
		return "text"
	case MsgBinary:
		return "binary"
	case MsgControl:
		return "control"
	default:
		return "unknown"
	}
}
