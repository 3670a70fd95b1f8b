package station

import (
	"context"
	"evsim/internal"
	"evsim/internal/config"
	"fmt"
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/websocket"
)

const (
	subProtocol  = "ocpp1.6"
	writeTimeout = 10 * time.Second
)

type WebSocketDialer struct {
	dialer websocket.Dialer
	logger internal.LogHandler
}

func NewWebSocketDialer(conf *config.Config, logger internal.LogHandler) *WebSocketDialer {
	timeout := time.Duration(conf.CentralSystem.ConnectTimeout) * time.Second
	if timeout <= 0 {
		timeout = websocket.DefaultDialer.HandshakeTimeout
	}
	return &WebSocketDialer{
		dialer: websocket.Dialer{
			Proxy:            http.ProxyFromEnvironment,
			HandshakeTimeout: timeout,
			Subprotocols:     []string{subProtocol},
		},
		logger: logger,
	}
}

func (d *WebSocketDialer) Dial(ctx context.Context, url string) (Connection, error) {
	conn, response, err := d.dialer.DialContext(ctx, url, nil)
	if err != nil {
		if response != nil {
			return nil, fmt.Errorf("dial %s: %s: %w", url, response.Status, err)
		}
		return nil, fmt.Errorf("dial %s: %w", url, err)
	}
	if conn.Subprotocol() != subProtocol {
		d.logger.Warn(fmt.Sprintf("central system did not confirm %s subprotocol: %q", subProtocol, conn.Subprotocol()))
	}
	return &WebSocket{conn: conn, logger: d.logger}, nil
}

// WebSocket has a single reader goroutine; writes are serialized by a mutex
type WebSocket struct {
	conn      *websocket.Conn
	logger    internal.LogHandler
	mutex     sync.Mutex
	closeOnce sync.Once
}

func (ws *WebSocket) Send(data []byte) error {
	ws.mutex.Lock()
	defer ws.mutex.Unlock()
	_ = ws.conn.SetWriteDeadline(time.Now().Add(writeTimeout))
	return ws.conn.WriteMessage(websocket.TextMessage, data)
}

func (ws *WebSocket) Close() error {
	var err error
	ws.closeOnce.Do(func() {
		ws.mutex.Lock()
		_ = ws.conn.WriteControl(websocket.CloseMessage,
			websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""),
			time.Now().Add(time.Second))
		ws.mutex.Unlock()
		err = ws.conn.Close()
	})
	return err
}

func (ws *WebSocket) Listen(onFrame func(data []byte), onClose func(err error)) {
	go ws.messageReader(onFrame, onClose)
}

func (ws *WebSocket) messageReader(onFrame func(data []byte), onClose func(err error)) {
	for {
		messageType, message, err := ws.conn.ReadMessage()
		if err != nil {
			if websocket.IsCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
				ws.logger.Debug("central system closed the session")
				err = nil
			} else {
				ws.logger.Debug(fmt.Sprintf("session closing: %s", err))
			}
			_ = ws.Close()
			onClose(err)
			return
		}
		if messageType != websocket.TextMessage {
			ws.logger.Warn(fmt.Sprintf("ignored non-text frame of type %d", messageType))
			continue
		}
		onFrame(message)
	}
}
