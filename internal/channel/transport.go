package channel

import (
	"context"
	"fmt"
	"net/url"
	"sync"

	"github.com/gorilla/websocket"
)

// Transport establishes duplex connections to a status channel endpoint.
// It exists so the reconnect and routing logic can be exercised against a
// fake transport without a real network.
type Transport interface {
	Dial(ctx context.Context, endpoint string) (Conn, error)
}

// Conn is one established duplex connection. WriteMessage must be safe for
// concurrent use; ReadMessage is only ever called from a single goroutine.
// Close must be idempotent.
type Conn interface {
	ReadMessage() ([]byte, error)
	WriteMessage(data []byte) error
	Close() error
}

// WebsocketTransport dials WebSocket connections via gorilla/websocket.
type WebsocketTransport struct {
	Dialer *websocket.Dialer
}

// NewWebsocketTransport returns a transport backed by the default dialer.
func NewWebsocketTransport() *WebsocketTransport {
	return &WebsocketTransport{Dialer: websocket.DefaultDialer}
}

func (t *WebsocketTransport) Dial(ctx context.Context, endpoint string) (Conn, error) {
	dialer := t.Dialer
	if dialer == nil {
		dialer = websocket.DefaultDialer
	}
	conn, _, err := dialer.DialContext(ctx, endpoint, nil)
	if err != nil {
		return nil, err
	}
	return &wsConn{conn: conn}, nil
}

type wsConn struct {
	conn    *websocket.Conn
	writeMu sync.Mutex
}

func (c *wsConn) ReadMessage() ([]byte, error) {
	_, data, err := c.conn.ReadMessage()
	return data, err
}

func (c *wsConn) WriteMessage(data []byte) error {
	c.writeMu.Lock()
	defer c.writeMu.Unlock()
	return c.conn.WriteMessage(websocket.TextMessage, data)
}

func (c *wsConn) Close() error {
	return c.conn.Close()
}

// Endpoint derives the channel URL for a job from the analysis service base
// URL. The scheme follows the base: http becomes ws, https becomes wss.
func Endpoint(baseURL, jobID string) (string, error) {
	u, err := url.Parse(baseURL)
	if err != nil {
		return "", fmt.Errorf("invalid base URL: %w", err)
	}
	switch u.Scheme {
	case "http", "ws":
		u.Scheme = "ws"
	case "https", "wss":
		u.Scheme = "wss"
	default:
		return "", fmt.Errorf("unsupported scheme %q", u.Scheme)
	}
	u.Path = "/ws/analysis/" + jobID
	u.RawQuery = ""
	return u.String(), nil
}
