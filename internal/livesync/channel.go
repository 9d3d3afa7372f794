package livesync

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"sync"
	"time"

	"github.com/gorilla/websocket"

	"github.com/nerrad567/gray-logic-panel/internal/infrastructure/config"
)

// Channel is an open push channel.
type Channel interface {
	// Receive blocks until a message arrives (nil) or the channel ends (an
	// error, a *CloseError when the peer sent a close frame). The payload is
	// never needed: any message means "refetch".
	Receive() error

	// Close ends the channel with code. Safe to call more than once.
	Close(code int) error
}

// Dialer opens push channels.
type Dialer interface {
	Dial(ctx context.Context) (Channel, error)
}

// TokenSource supplies the credential sent on the dial. session.Guard satisfies it.
type TokenSource interface {
	Token() (string, bool)
}

const closeWriteTimeout = time.Second

// WebSocketDialer dials the backend push endpoint with gorilla/websocket.
// The token travels as the "token" query parameter. Message bodies are
// drained without buffering, so no read limit applies.
type WebSocketDialer struct {
	url    string
	tokens TokenSource
	dialer *websocket.Dialer

	pingInterval time.Duration
	pongWait     time.Duration
}

// NewWebSocketDialer returns a dialer for pushURL using the keepalive settings
// in ws. ws.MaxMessageSize governs browser sockets only.
func NewWebSocketDialer(pushURL string, tokens TokenSource, ws config.WebSocketConfig) (*WebSocketDialer, error) {
	if _, err := url.Parse(pushURL); err != nil {
		return nil, fmt.Errorf("livesync: invalid push URL: %w", err)
	}
	return &WebSocketDialer{
		url:    pushURL,
		tokens: tokens,
		dialer: &websocket.Dialer{
			Proxy:            http.ProxyFromEnvironment,
			HandshakeTimeout: 10 * time.Second,
		},
		pingInterval: time.Duration(ws.PingInterval) * time.Second,
		pongWait:     time.Duration(ws.PongTimeout) * time.Second,
	}, nil
}

// Dial implements Dialer.
func (d *WebSocketDialer) Dial(ctx context.Context) (Channel, error) {
	token, ok := d.tokens.Token()
	if !ok {
		return nil, ErrNoToken
	}

	u, err := url.Parse(d.url)
	if err != nil {
		return nil, fmt.Errorf("livesync: invalid push URL: %w", err)
	}
	q := u.Query()
	q.Set("token", token)
	u.RawQuery = q.Encode()

	conn, resp, err := d.dialer.DialContext(ctx, u.String(), nil)
	if resp != nil && resp.Body != nil {
		resp.Body.Close()
	}
	if err != nil {
		if resp != nil {
			return nil, fmt.Errorf("livesync: dial push channel: HTTP %d: %w", resp.StatusCode, err)
		}
		return nil, fmt.Errorf("livesync: dial push channel: %w", err)
	}

	ch := &wsChannel{
		conn:     conn,
		pingWait: d.pingInterval,
		pongWait: d.pongWait,
		done:     make(chan struct{}),
	}
	if d.pingInterval > 0 {
		ch.extendDeadline()
		conn.SetPongHandler(func(string) error {
			ch.extendDeadline()
			return nil
		})
		go ch.pingLoop()
	}
	return ch, nil
}

// wsChannel adapts a gorilla connection to Channel.
type wsChannel struct {
	conn     *websocket.Conn
	pingWait time.Duration
	pongWait time.Duration

	writeMu   sync.Mutex
	closeOnce sync.Once
	done      chan struct{}
}

func (c *wsChannel) extendDeadline() {
	if c.pingWait > 0 {
		//nolint:errcheck // Best-effort deadline; a failed read surfaces the error
		c.conn.SetReadDeadline(time.Now().Add(c.pingWait + c.pongWait))
	}
}

// Receive implements Channel.
func (c *wsChannel) Receive() error {
	if err := c.drainMessage(); err != nil {
		select {
		case <-c.done:
			return ErrChannelClosed
		default:
		}
		var ce *websocket.CloseError
		if errors.As(err, &ce) {
			return &CloseError{Code: ce.Code, Text: ce.Text, Err: err}
		}
		return &CloseError{Code: CloseAbnormal, Err: err}
	}
	c.extendDeadline()
	return nil
}

// drainMessage reads one message and discards its body.
func (c *wsChannel) drainMessage() error {
	_, r, err := c.conn.NextReader()
	if err != nil {
		return err
	}
	_, err = io.Copy(io.Discard, r)
	return err
}

// Close implements Channel.
func (c *wsChannel) Close(code int) error {
	var err error
	c.closeOnce.Do(func() {
		close(c.done)
		c.writeMu.Lock()
		//nolint:errcheck // Best-effort close frame; the peer may already be gone
		c.conn.WriteControl(websocket.CloseMessage,
			websocket.FormatCloseMessage(code, ""), time.Now().Add(closeWriteTimeout))
		c.writeMu.Unlock()
		err = c.conn.Close()
	})
	return err
}

// pingLoop keeps the connection alive until Close.
func (c *wsChannel) pingLoop() {
	ticker := time.NewTicker(c.pingWait)
	defer ticker.Stop()
	for {
		select {
		case <-c.done:
			return
		case <-ticker.C:
			c.writeMu.Lock()
			err := c.conn.WriteControl(websocket.PingMessage, nil, time.Now().Add(c.pongWait))
			c.writeMu.Unlock()
			if err != nil {
				return
			}
		}
	}
}
