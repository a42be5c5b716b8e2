package transport

import (
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/vncflow/vncflow/pkg/congestion"
)

// startEchoServer runs a WebSocket server that echoes every message back.
func startEchoServer(t *testing.T) string {
	t.Helper()

	upgrader := websocket.Upgrader{}
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		conn, err := upgrader.Upgrade(w, r, nil)
		if err != nil {
			return
		}
		defer conn.Close()
		for {
			messageType, msg, err := conn.ReadMessage()
			if err != nil {
				return
			}
			if err := conn.WriteMessage(messageType, msg); err != nil {
				return
			}
		}
	}))
	t.Cleanup(srv.Close)

	return "ws" + strings.TrimPrefix(srv.URL, "http")
}

func dialStream(t *testing.T, url string) *WebSocketStream {
	t.Helper()

	conn, resp, err := websocket.DefaultDialer.Dial(url, nil)
	require.NoError(t, err)
	if resp != nil && resp.Body != nil {
		resp.Body.Close()
	}

	s := NewWebSocketStream(conn)
	t.Cleanup(func() { s.Close() })
	return s
}

func TestWebSocketStream_RoundTrip(t *testing.T) {
	s := dialStream(t, startEchoServer(t))

	_, err := s.Write([]byte("hello "))
	require.NoError(t, err)
	_, err = s.Write([]byte("world"))
	require.NoError(t, err)

	// Reads span message boundaries like a plain byte stream.
	buf := make([]byte, 11)
	_, err = io.ReadFull(s, buf)
	require.NoError(t, err)
	assert.Equal(t, "hello world", string(buf))
}

func TestWebSocketStream_PartialReads(t *testing.T) {
	s := dialStream(t, startEchoServer(t))

	_, err := s.Write([]byte("abcdef"))
	require.NoError(t, err)

	buf := make([]byte, 4)
	n, err := s.Read(buf)
	require.NoError(t, err)
	assert.Equal(t, "abcd", string(buf[:n]))

	n, err = s.Read(buf)
	require.NoError(t, err)
	assert.Equal(t, "ef", string(buf[:n]))
}

func TestMeter_OverWebSocket(t *testing.T) {
	s := dialStream(t, startEchoServer(t))

	ctrl := congestion.NewController(congestion.DefaultConfig(), nil)
	m := NewMeter(s, ctrl)

	payload := []byte("framebuffer update")
	_, err := m.Write(payload)
	require.NoError(t, err)

	buf := make([]byte, len(payload))
	_, err = io.ReadFull(m, buf)
	require.NoError(t, err)
	assert.Equal(t, payload, buf)
}
