package transport

import (
	"context"
	"errors"
	"net/http"
	"net/url"
	"sync"
	"sync/atomic"
	"time"

	"github.com/gorilla/websocket"

	"github.com/yegors/vocode-client/internal/wire"
	"github.com/yegors/vocode-client/pkg/logger"
)

const (
	defaultDialTimeout = 10 * time.Second
	closeGracePeriod   = 2 * time.Second
)

// WebSocketDialer opens conversation channels over gorilla/websocket
type WebSocketDialer struct {
	Timeout time.Duration
	Header  http.Header
	dialer  *websocket.Dialer
	logger  *logger.Logger
}

// NewWebSocketDialer creates a new WebSocket dialer
func NewWebSocketDialer(timeout time.Duration, logger *logger.Logger) *WebSocketDialer {
	if timeout <= 0 {
		timeout = defaultDialTimeout
	}
	return &WebSocketDialer{
		Timeout: timeout,
		dialer: &websocket.Dialer{
			Proxy:            http.ProxyFromEnvironment,
			HandshakeTimeout: timeout,
		},
		logger: logger.Named("ws-transport"),
	}
}

// Dial connects to rawURL and starts delivering inbound messages to h.
// Waiting for the channel to open is bounded by the dialer timeout.
func (d *WebSocketDialer) Dial(ctx context.Context, rawURL string, h Handler) (Conn, error) {
	dialCtx := ctx
	if _, hasDeadline := ctx.Deadline(); !hasDeadline {
		var cancel context.CancelFunc
		dialCtx, cancel = context.WithTimeout(ctx, d.Timeout)
		defer cancel()
	}

	safeURL := redactURL(rawURL)
	d.logger.Info("Connecting to conversation service", logger.String("url", safeURL))

	ws, resp, err := d.dialer.DialContext(dialCtx, rawURL, d.Header)
	if err != nil {
		if resp != nil {
			d.logger.Error("WebSocket handshake rejected",
				logger.String("url", safeURL),
				logger.Int("status_code", resp.StatusCode),
				logger.Error(err))
		}
		return nil, &Error{Op: "dial", URL: safeURL, Err: err}
	}

	c := &wsConn{
		ws:      ws,
		url:     safeURL,
		handler: h,
		done:    make(chan struct{}),
		logger:  d.logger,
	}
	c.state.Store(int32(StateOpen))

	d.logger.Info("Connected to conversation service", logger.String("url", safeURL))

	go c.readLoop()
	return c, nil
}

// wsConn is a Conn backed by a websocket
type wsConn struct {
	ws      *websocket.Conn
	url     string
	handler Handler
	logger  *logger.Logger

	state     atomic.Int32
	writeMu   sync.Mutex
	closeOnce sync.Once
	done      chan struct{}
}

// State implements Conn
func (c *wsConn) State() State {
	return State(c.state.Load())
}

// Send implements Conn
func (c *wsConn) Send(msg wire.Message) error {
	if c.State() != StateOpen {
		return ErrClosed
	}

	data, err := wire.Encode(msg)
	if err != nil {
		return err
	}

	c.writeMu.Lock()
	defer c.writeMu.Unlock()

	if err := c.ws.WriteMessage(websocket.TextMessage, data); err != nil {
		return &Error{Op: "send", URL: c.url, Err: err}
	}
	return nil
}

// Close implements Conn. It waits for the read loop to finish.
func (c *wsConn) Close() error {
	c.closeOnce.Do(func() {
		c.state.Store(int32(StateClosing))

		c.writeMu.Lock()
		_ = c.ws.WriteControl(websocket.CloseMessage,
			websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""),
			time.Now().Add(closeGracePeriod))
		c.writeMu.Unlock()

		_ = c.ws.Close()
	})
	<-c.done
	return nil
}

// readLoop decodes inbound frames until the socket closes
func (c *wsConn) readLoop() {
	var closeErr error
	defer func() {
		c.state.Store(int32(StateClosed))
		close(c.done)
		c.handler.HandleClose(closeErr)
	}()

	for {
		messageType, data, err := c.ws.ReadMessage()
		if err != nil {
			closeErr = c.classifyReadError(err)
			return
		}

		if messageType != websocket.TextMessage {
			c.logger.Warn("Ignoring non-text frame", logger.Int("frame_type", messageType))
			continue
		}

		msg, err := wire.Decode(data)
		if err != nil {
			// Protocol errors never end the session
			c.logger.Warn("Ignoring undecodable message", logger.Error(err))
			continue
		}

		c.handler.HandleMessage(msg)
	}
}

// classifyReadError returns nil for orderly closes and a transport error otherwise
func (c *wsConn) classifyReadError(err error) error {
	if c.State() == StateClosing {
		c.logger.Debug("Connection closed locally", logger.String("url", c.url))
		return nil
	}

	if websocket.IsCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway) {
		c.logger.Info("Connection closed by server", logger.String("url", c.url))
		return nil
	}

	var closeErr *websocket.CloseError
	if errors.As(err, &closeErr) {
		c.logger.Warn("Connection closed by server with error",
			logger.Int("code", closeErr.Code),
			logger.String("reason", closeErr.Text))
	} else {
		c.logger.Error("Connection failed", logger.Error(err))
	}
	return &Error{Op: "read", URL: c.url, Err: err}
}

// redactURL hides credentials carried in the query string
func redactURL(rawURL string) string {
	u, err := url.Parse(rawURL)
	if err != nil {
		return "[unparseable url]"
	}
	q := u.Query()
	if q.Has("key") {
		q.Set("key", "REDACTED")
		u.RawQuery = q.Encode()
	}
	return u.String()
}
