package client

import (
	"context"
	"errors"
	"evsim/internal/config"
	"evsim/utility"
	"fmt"
	"net/http"
	"strings"
	"sync"

	"github.com/gorilla/websocket"
)

// ErrClosed is returned once the connection to the central system is gone.
var ErrClosed = utility.Err("connection closed")

// WebSocket is the charge point side of an OCPP-J connection.
type WebSocket struct {
	url         string
	subProtocol string
	dialer      *websocket.Dialer
	conn        *websocket.Conn
	writeMux    sync.Mutex
	closeOnce   sync.Once
}

func NewWebSocket(conf *config.Config) *WebSocket {
	return &WebSocket{
		url:         strings.TrimRight(conf.CentralSystem.Url, "/") + "/" + conf.ChargePoint.Id,
		subProtocol: conf.CentralSystem.SubProtocol,
		dialer: &websocket.Dialer{
			Proxy:            http.ProxyFromEnvironment,
			HandshakeTimeout: conf.CentralSystem.ConnectTimeout,
			Subprotocols:     []string{conf.CentralSystem.SubProtocol},
		},
	}
}

func (ws *WebSocket) Url() string {
	return ws.url
}

// Connect dials the central system and checks that it agreed on the OCPP subprotocol.
func (ws *WebSocket) Connect(ctx context.Context) error {
	conn, resp, err := ws.dialer.DialContext(ctx, ws.url, nil)
	if err != nil {
		if resp != nil {
			return fmt.Errorf("connect to %s: %s: %w", ws.url, resp.Status, err)
		}
		return fmt.Errorf("connect to %s: %w", ws.url, err)
	}
	if !utility.Contains(ws.dialer.Subprotocols, conn.Subprotocol()) {
		_ = conn.Close()
		return fmt.Errorf("central system did not accept subprotocol %s", ws.subProtocol)
	}
	ws.conn = conn
	return nil
}

// Send writes one text frame; safe for concurrent use.
func (ws *WebSocket) Send(data []byte) error {
	if ws.conn == nil {
		return ErrClosed
	}
	ws.writeMux.Lock()
	defer ws.writeMux.Unlock()
	if err := ws.conn.WriteMessage(websocket.TextMessage, data); err != nil {
		if errors.Is(err, websocket.ErrCloseSent) {
			return ErrClosed
		}
		return fmt.Errorf("write: %w", err)
	}
	return nil
}

// Receive blocks until the next text frame arrives. A normal close is reported as ErrClosed.
func (ws *WebSocket) Receive() ([]byte, error) {
	if ws.conn == nil {
		return nil, ErrClosed
	}
	for {
		messageType, data, err := ws.conn.ReadMessage()
		if err != nil {
			if websocket.IsCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
				return nil, ErrClosed
			}
			return nil, fmt.Errorf("%w: %v", ErrClosed, err)
		}
		if messageType == websocket.TextMessage {
			return data, nil
		}
	}
}

// Close sends a close frame and releases the connection; subsequent calls do nothing.
func (ws *WebSocket) Close() error {
	if ws.conn == nil {
		return nil
	}
	var err error
	ws.closeOnce.Do(func() {
		ws.writeMux.Lock()
		_ = ws.conn.WriteMessage(websocket.CloseMessage,
			websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""))
		ws.writeMux.Unlock()
		err = ws.conn.Close()
	})
	return err
}
