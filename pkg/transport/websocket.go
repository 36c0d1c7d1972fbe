package transport

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"github.com/killallgit/scout/pkg/logger"
)

const closeWriteWait = time.Second

// WebSocketDialer dials websocket endpoints
type WebSocketDialer struct {
	HandshakeTimeout time.Duration
	Header           http.Header
}

// NewWebSocketDialer creates a dialer sending headers with every handshake
func NewWebSocketDialer(handshakeTimeout time.Duration, headers map[string]string) *WebSocketDialer {
	h := http.Header{}
	for k, v := range headers {
		h.Set(k, v)
	}
	return &WebSocketDialer{HandshakeTimeout: handshakeTimeout, Header: h}
}

func (d *WebSocketDialer) Dial(ctx context.Context, endpoint string) (Conn, error) {
	log := logger.WithComponent("websocket")

	dialer := websocket.Dialer{
		Proxy:            http.ProxyFromEnvironment,
		HandshakeTimeout: d.HandshakeTimeout,
	}

	conn, resp, err := dialer.DialContext(ctx, endpoint, d.Header)
	if err != nil {
		if resp != nil {
			return nil, fmt.Errorf("failed to connect to %s: %w (status %d)", endpoint, err, resp.StatusCode)
		}
		return nil, fmt.Errorf("failed to connect to %s: %w", endpoint, err)
	}

	log.Debug("Connected", "endpoint", endpoint)
	return &wsConn{conn: conn, closed: make(chan struct{})}, nil
}

type wsConn struct {
	conn *websocket.Conn

	writeMu   sync.Mutex
	closeOnce sync.Once
	closed    chan struct{}
}

func (c *wsConn) WriteJSON(v any) error {
	select {
	case <-c.closed:
		return ErrConnClosed
	default:
	}

	c.writeMu.Lock()
	defer c.writeMu.Unlock()
	return c.conn.WriteJSON(v)
}

func (c *wsConn) ReadFrame() ([]byte, error) {
	for {
		messageType, data, err := c.conn.ReadMessage()
		if err != nil {
			var closeErr *websocket.CloseError
			if errors.As(err, &closeErr) {
				return nil, &CloseError{Code: closeErr.Code, Reason: closeErr.Text}
			}
			select {
			case <-c.closed:
				return nil, ErrConnClosed
			default:
			}
			return nil, &CloseError{Code: CloseAbnormal, Reason: err.Error()}
		}
		if messageType == websocket.TextMessage || messageType == websocket.BinaryMessage {
			return data, nil
		}
	}
}

func (c *wsConn) Close(code int, reason string) error {
	var err error
	c.closeOnce.Do(func() {
		close(c.closed)

		c.writeMu.Lock()
		msg := websocket.FormatCloseMessage(code, reason)
		writeErr := c.conn.WriteControl(websocket.CloseMessage, msg, time.Now().Add(closeWriteWait))
		c.writeMu.Unlock()

		if writeErr != nil && !errors.Is(writeErr, websocket.ErrCloseSent) {
			logger.WithComponent("websocket").Debug("Close frame not sent", "error", writeErr.Error())
		}
		err = c.conn.Close()
	})
	return err
}
