package stream

import (
	"context"
	"net/url"
	"sync"
	"time"

	"github.com/gorilla/websocket"

	"github.com/quantfold/tickstream/pkg/errors"
)

// Transport is a message-oriented duplex connection to the provider. The
// engine only needs byte-message send/receive with connect/close lifecycle;
// framing is the transport library's concern. Close must unblock a pending
// ReadMessage, which is how the receive loop is cancelled even when the
// peer has gone silent.
type Transport interface {
	Connect(ctx context.Context) error
	ReadMessage() ([]byte, error)
	WriteMessage(data []byte) error
	Close() error
}

// wsTransport implements Transport over a gorilla websocket connection,
// authenticating with a token appended to the endpoint query string.
type wsTransport struct {
	url         string
	dialTimeout time.Duration

	mu   sync.Mutex // guards conn replacement and writes
	conn *websocket.Conn
}

// newWSTransport builds a websocket transport for endpoint with the token
// set as the `token` query parameter.
func newWSTransport(endpoint, token string, dialTimeout time.Duration) (*wsTransport, error) {
	u, err := url.Parse(endpoint)
	if err != nil {
		return nil, errors.Wrapf(errors.ErrCodeInvalidEndpoint, err, "failed to parse endpoint: %s", endpoint)
	}

	q := u.Query()
	q.Set("token", token)
	u.RawQuery = q.Encode()

	return &wsTransport{
		url:         u.String(),
		dialTimeout: dialTimeout,
		conn:        nil,
	}, nil
}

// Connect dials the endpoint, replacing any previous connection.
func (t *wsTransport) Connect(ctx context.Context) error {
	dialer := websocket.Dialer{
		HandshakeTimeout: t.dialTimeout,
	}

	conn, resp, err := dialer.DialContext(ctx, t.url, nil)
	if err != nil {
		if resp != nil {
			return errors.Wrapf(errors.ErrCodeConnectFailed, err, "failed to dial provider (status %d)", resp.StatusCode)
		}

		return errors.Wrap(errors.ErrCodeConnectFailed, "failed to dial provider", err)
	}

	t.mu.Lock()
	old := t.conn
	t.conn = conn
	t.mu.Unlock()

	if old != nil {
		_ = old.Close()
	}

	return nil
}

// ReadMessage blocks until the next inbound message. It must not hold the
// write lock while blocking, so the connection pointer is copied out first.
func (t *wsTransport) ReadMessage() ([]byte, error) {
	t.mu.Lock()
	conn := t.conn
	t.mu.Unlock()

	if conn == nil {
		return nil, errors.New(errors.ErrCodeNotConnected, "transport is not connected")
	}

	_, data, err := conn.ReadMessage()
	if err != nil {
		return nil, errors.Wrap(errors.ErrCodeReceiveFailed, "failed to read message", err)
	}

	return data, nil
}

// WriteMessage sends one text message. Writes are serialized; gorilla
// connections support at most one concurrent writer.
func (t *wsTransport) WriteMessage(data []byte) error {
	t.mu.Lock()
	defer t.mu.Unlock()

	if t.conn == nil {
		return errors.New(errors.ErrCodeNotConnected, "transport is not connected")
	}

	if err := t.conn.WriteMessage(websocket.TextMessage, data); err != nil {
		return errors.Wrap(errors.ErrCodeSendFailed, "failed to write message", err)
	}

	return nil
}

// Close tears down the current connection. A blocked ReadMessage returns
// with an error. Idempotent.
func (t *wsTransport) Close() error {
	t.mu.Lock()
	conn := t.conn
	t.conn = nil
	t.mu.Unlock()

	if conn == nil {
		return nil
	}

	return conn.Close()
}
