package subscription

import (
	"context"
	"crypto/tls"
	"net/http"
	"strings"

	"github.com/gorilla/websocket"
)

const wssPrefix = "wss://"

// Connection is a message-oriented duplex connection.
type Connection interface {
	// Receive blocks until the next message arrives or the connection fails.
	Receive() ([]byte, error)
	// Send writes one message. Calls must not be concurrent.
	Send(msg []byte) error
	Close() error
}

// Dialer opens Connections.
type Dialer interface {
	DialContext(ctx context.Context, url string) (Connection, error)
}

var _ Dialer = (*websocketDialer)(nil)

// websocketDialer implements Dialer with gorilla websocket.
type websocketDialer struct {
	header http.Header
}

// NewWebsocketDialer returns the default Dialer. header is sent with the
// opening handshake and may be nil.
func NewWebsocketDialer(header http.Header) Dialer {
	return &websocketDialer{header: header}
}

func (d *websocketDialer) DialContext(ctx context.Context, url string) (Connection, error) {
	dialer := *websocket.DefaultDialer
	if strings.HasPrefix(url, wssPrefix) {
		dialer.TLSClientConfig = &tls.Config{MinVersion: tls.VersionTLS12}
	}
	conn, resp, err := dialer.DialContext(ctx, url, d.header)
	if resp != nil && resp.Body != nil {
		resp.Body.Close()
	}
	if err != nil {
		return nil, err
	}
	return &websocketConn{conn: conn}, nil
}

var _ Connection = (*websocketConn)(nil)

type websocketConn struct {
	conn *websocket.Conn
}

func (c *websocketConn) Receive() ([]byte, error) {
	_, msg, err := c.conn.ReadMessage()
	if err != nil {
		return nil, err
	}
	return msg, nil
}

func (c *websocketConn) Send(msg []byte) error {
	// TextMessage: envelopes are UTF-8 JSON.
	return c.conn.WriteMessage(websocket.TextMessage, msg)
}

func (c *websocketConn) Close() error {
	return c.conn.Close()
}
