package conn

import (
	"context"
	"fmt"
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/websocket"
)

// Socket is one established duplex session carrying text frames.
//
// ReadMessage is called from a single reader goroutine. WriteMessage may be
// called from any goroutine; implementations serialize writes.
type Socket interface {
	ReadMessage() ([]byte, error)
	WriteMessage(data []byte) error
	Close() error
}

// Dialer establishes sessions. WebsocketDialer is the production
// implementation; tests use an in-memory pipe.
type Dialer interface {
	Dial(ctx context.Context, url string, header http.Header) (Socket, error)
}

// DefaultHandshakeTimeout bounds the websocket opening handshake.
const DefaultHandshakeTimeout = 10 * time.Second

// WebsocketDialer dials the remote store over websocket.
type WebsocketDialer struct {
	HandshakeTimeout time.Duration
}

// Dial opens a websocket session to url.
func (d WebsocketDialer) Dial(ctx context.Context, url string, header http.Header) (Socket, error) {
	timeout := d.HandshakeTimeout
	if timeout == 0 {
		timeout = DefaultHandshakeTimeout
	}
	dialer := websocket.Dialer{
		Proxy:            http.ProxyFromEnvironment,
		HandshakeTimeout: timeout,
	}

	c, resp, err := dialer.DialContext(ctx, url, header)
	if err != nil {
		if resp != nil {
			return nil, fmt.Errorf("websocket handshake %s: %s: %w", url, resp.Status, err)
		}
		return nil, fmt.Errorf("websocket dial %s: %w", url, err)
	}
	return &wsSocket{conn: c}, nil
}

// wsSocket adapts a gorilla websocket connection to Socket.
// gorilla allows one concurrent reader and one concurrent writer, so
// writes are serialized with a mutex.
type wsSocket struct {
	conn    *websocket.Conn
	writeMu sync.Mutex
}

// ReadMessage returns the next text or binary message, skipping control
// frames handled internally by gorilla.
func (s *wsSocket) ReadMessage() ([]byte, error) {
	for {
		mt, data, err := s.conn.ReadMessage()
		if err != nil {
			return nil, err
		}
		if mt == websocket.TextMessage || mt == websocket.BinaryMessage {
			return data, nil
		}
	}
}

func (s *wsSocket) WriteMessage(data []byte) error {
	s.writeMu.Lock()
	defer s.writeMu.Unlock()
	return s.conn.WriteMessage(websocket.TextMessage, data)
}

// Close sends a close frame (best effort) and releases the connection.
func (s *wsSocket) Close() error {
	s.writeMu.Lock()
	msg := websocket.FormatCloseMessage(websocket.CloseNormalClosure, "")
	_ = s.conn.WriteControl(websocket.CloseMessage, msg, time.Now().Add(time.Second))
	s.writeMu.Unlock()
	return s.conn.Close()
}
