package session

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"github.com/gorilla/websocket"
)

// wsTransport adapts a gorilla connection to the Transport interface.
type wsTransport struct {
	conn *websocket.Conn
}

func (t *wsTransport) ReadMessage() ([]byte, error) {
	_, data, err := t.conn.ReadMessage()
	return data, err
}

func (t *wsTransport) WriteMessage(data []byte) error {
	t.conn.SetWriteDeadline(time.Now().Add(10 * time.Second))
	return t.conn.WriteMessage(websocket.TextMessage, data)
}

func (t *wsTransport) Close() error {
	t.conn.WriteControl(websocket.CloseMessage,
		websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""),
		time.Now().Add(time.Second))
	return t.conn.Close()
}

// WebSocketDialer returns a Dialer that connects to url presenting the
// bearer token as a query parameter, matching the server's admission
// check.
func WebSocketDialer(url, token string) Dialer {
	return func(ctx context.Context) (Transport, error) {
		header := http.Header{}
		conn, resp, err := websocket.DefaultDialer.DialContext(ctx, fmt.Sprintf("%s?token=%s", url, token), header)
		if err != nil {
			if resp != nil && resp.StatusCode == http.StatusUnauthorized {
				return nil, &websocket.CloseError{Code: CloseAuthFailure, Text: "unauthorized"}
			}
			return nil, err
		}
		return &wsTransport{conn: conn}, nil
	}
}
