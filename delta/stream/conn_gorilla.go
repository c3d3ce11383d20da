package stream

import (
	"context"
	"net/url"
	"time"

	"github.com/gorilla/websocket"
)

type gorillaWebsocketConn struct {
	conn *websocket.Conn
}

// newGorillaWebsocketConn creates a new gorilla websocket connection
func newGorillaWebsocketConn(ctx context.Context, u url.URL) (conn, error) {
	dialer := websocket.Dialer{
		HandshakeTimeout:  dialTimeout,
		EnableCompression: true,
	}

	c, resp, err := dialer.DialContext(ctx, u.String(), nil)
	if err != nil {
		return nil, err
	}
	if resp != nil && resp.Body != nil {
		resp.Body.Close()
	}

	return &gorillaWebsocketConn{conn: c}, nil
}

// close closes the websocket connection
func (c *gorillaWebsocketConn) close() error {
	msg := websocket.FormatCloseMessage(websocket.CloseNormalClosure, "")
	// best effort close frame, the peer may already be gone
	_ = c.conn.WriteControl(websocket.CloseMessage, msg, time.Now().Add(writeWait))
	return c.conn.Close()
}

// ping sends a ping to the server. WriteControl is safe to call concurrently
// with writeMessage.
func (c *gorillaWebsocketConn) ping(_ context.Context) error {
	return c.conn.WriteControl(websocket.PingMessage, nil, time.Now().Add(pongWait))
}

// readMessage blocks until it reads a single message. Cancellation happens
// by closing the connection, not through the context.
func (c *gorillaWebsocketConn) readMessage(_ context.Context) ([]byte, error) {
	_, data, err := c.conn.ReadMessage()
	return data, err
}

// writeMessage writes a single message
func (c *gorillaWebsocketConn) writeMessage(_ context.Context, data []byte) error {
	if err := c.conn.SetWriteDeadline(time.Now().Add(writeWait)); err != nil {
		return err
	}
	return c.conn.WriteMessage(websocket.TextMessage, data)
}
