package transport

import (
	"fmt"
	"io"

	"github.com/gorilla/websocket"
)

// WebSocketStream adapts a WebSocket connection to a Stream. Each Write
// becomes one binary message; Reads consume binary messages in order,
// spanning message boundaries, which turns the message-oriented socket
// back into the byte stream the protocol expects (the usual arrangement
// for browser-based remote-display clients).
//
// Non-binary messages are skipped. Control frames (ping/pong/close) are
// handled by the websocket library itself.
type WebSocketStream struct {
	conn *websocket.Conn

	// current is the unread remainder of the message being consumed.
	current io.Reader
}

// NewWebSocketStream wraps an established WebSocket connection. The caller
// must not use conn directly afterwards.
func NewWebSocketStream(conn *websocket.Conn) *WebSocketStream {
	return &WebSocketStream{conn: conn}
}

// Read fills p from the stream of binary messages.
func (s *WebSocketStream) Read(p []byte) (int, error) {
	for {
		if s.current == nil {
			messageType, r, err := s.conn.NextReader()
			if err != nil {
				if websocket.IsCloseError(err, websocket.CloseNormalClosure) {
					return 0, io.EOF
				}
				return 0, fmt.Errorf("websocket read: %w", err)
			}
			if messageType != websocket.BinaryMessage {
				continue
			}
			s.current = r
		}

		n, err := s.current.Read(p)
		if err == io.EOF {
			// Message exhausted, move on to the next one.
			s.current = nil
			if n == 0 {
				continue
			}
			err = nil
		}
		return n, err
	}
}

// Write sends p as a single binary message.
func (s *WebSocketStream) Write(p []byte) (int, error) {
	if err := s.conn.WriteMessage(websocket.BinaryMessage, p); err != nil {
		return 0, fmt.Errorf("websocket write: %w", err)
	}
	return len(p), nil
}

// Close closes the underlying connection.
func (s *WebSocketStream) Close() error {
	return s.conn.Close()
}
