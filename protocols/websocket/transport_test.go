package websocket

import (
	"context"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/goleak"

	"github.com/lisuiheng/voicecap/pkg/interfaces"
)

func TestMain(m *testing.M) {
	goleak.VerifyTestMain(m)
}

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

// echoServer 原样返回收到的消息，并把握手头部发到 headers
func echoServer(t *testing.T, headers chan<- http.Header) *httptest.Server {
	t.Helper()
	upgrader := websocket.Upgrader{}
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if headers != nil {
			headers <- r.Header.Clone()
		}
		conn, err := upgrader.Upgrade(w, r, nil)
		if err != nil {
			return
		}
		defer conn.Close()
		for {
			msgType, data, err := conn.ReadMessage()
			if err != nil {
				return
			}
			if string(data) == "bye" {
				_ = conn.WriteMessage(websocket.CloseMessage,
					websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""))
				return
			}
			if err := conn.WriteMessage(msgType, data); err != nil {
				return
			}
		}
	}))
	t.Cleanup(srv.Close)
	return srv
}

func wsURL(srv *httptest.Server) string {
	return "ws" + strings.TrimPrefix(srv.URL, "http")
}

func receive(t *testing.T, p *WSProtocol) interfaces.Message {
	t.Helper()
	select {
	case msg, ok := <-p.Receive():
		require.True(t, ok, "receive channel closed")
		return msg
	case <-time.After(2 * time.Second):
		t.Fatal("timed out waiting for message")
		return interfaces.Message{}
	}
}

func TestWSProtocolEcho(t *testing.T) {
	headers := make(chan http.Header, 1)
	srv := echoServer(t, headers)

	p, err := NewWebSocketProtocol(Config{
		URL:         wsURL(srv),
		AccessToken: "secret",
		DeviceID:    "aa:bb:cc",
		ClientID:    "client-1",
	}, discardLogger())
	require.NoError(t, err)
	require.NoError(t, p.Connect(context.Background()))
	defer p.Close()

	h := <-headers
	assert.Equal(t, "Bearer secret", h.Get("Authorization"))
	assert.Equal(t, "1", h.Get("Protocol-Version"))
	assert.Equal(t, "aa:bb:cc", h.Get("Device-Id"))
	assert.Equal(t, "client-1", h.Get("Client-Id"))

	require.NoError(t, p.Send([]byte(`{"type":"hello"}`), interfaces.MsgText))
	msg := receive(t, p)
	assert.Equal(t, interfaces.MsgText, msg.Type)
	assert.JSONEq(t, `{"type":"hello"}`, string(msg.Payload))

	require.NoError(t, p.Send([]byte{1, 2, 3}, interfaces.MsgBinary))
	msg = receive(t, p)
	assert.Equal(t, interfaces.MsgBinary, msg.Type)
	assert.Equal(t, []byte{1, 2, 3}, msg.Payload)
	assert.Equal(t, "websocket", p.ProtocolType())
}

func TestWSProtocolServerClose(t *testing.T) {
	srv := echoServer(t, nil)
	p, err := NewWebSocketProtocol(Config{URL: wsURL(srv)}, discardLogger())
	require.NoError(t, err)
	require.NoError(t, p.Connect(context.Background()))
	defer p.Close()

	require.NoError(t, p.Send([]byte("bye"), interfaces.MsgText))
	select {
	case _, ok := <-p.Receive():
		assert.False(t, ok, "receive channel closes when the server hangs up")
	case <-time.After(2 * time.Second):
		t.Fatal("receive channel was not closed")
	}
}

func TestWSProtocolSendBeforeConnect(t *testing.T) {
	p, err := NewWebSocketProtocol(Config{URL: "ws://127.0.0.1:1"}, discardLogger())
	require.NoError(t, err)
	require.ErrorIs(t, p.Send([]byte("x"), interfaces.MsgText), interfaces.ErrNotConnected)
	require.NoError(t, p.Close())
	require.NoError(t, p.Close())

	_, ok := <-p.Receive()
	assert.False(t, ok)
}

func TestWSProtocolConnectFailure(t *testing.T) {
	srv := httptest.NewServer(http.NotFoundHandler())
	defer srv.Close()

	p, err := NewWebSocketProtocol(Config{URL: wsURL(srv)}, discardLogger())
	require.NoError(t, err)
	err = p.Connect(context.Background())
	require.ErrorIs(t, err, interfaces.ErrConnectionFailed)
	require.NoError(t, p.Close())
}

func TestNewWebSocketProtocolValidation(t *testing.T) {
	_, err := NewWebSocketProtocol(Config{}, discardLogger())
	require.Error(t, err)
	_, err = NewWebSocketProtocol(Config{URL: "ws://x"}, nil)
	require.Error(t, err)
}
