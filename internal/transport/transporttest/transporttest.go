// Package transporttest provides an in-memory transport for tests.
package transporttest

import (
	"context"
	"sync"

	"github.com/yegors/vocode-client/internal/transport"
	"github.com/yegors/vocode-client/internal/wire"
)

// Conn is an in-memory transport.Conn. Outbound messages go through the
// wire codec and are stored as the server would decode them.
type Conn struct {
	URL string

	mu         sync.Mutex
	handler    transport.Handler
	state      transport.State
	sent       []wire.Message
	closeCalls int
}

// NewConn returns an open connection delivering to h
func NewConn(url string, h transport.Handler) *Conn {
	return &Conn{URL: url, handler: h, state: transport.StateOpen}
}

// Send implements transport.Conn
func (c *Conn) Send(msg wire.Message) error {
	data, err := wire.Encode(msg)
	if err != nil {
		return err
	}
	decoded, err := wire.Decode(data)
	if err != nil {
		return err
	}

	c.mu.Lock()
	defer c.mu.Unlock()
	if c.state != transport.StateOpen {
		return transport.ErrClosed
	}
	c.sent = append(c.sent, decoded)
	return nil
}

// State implements transport.Conn
func (c *Conn) State() transport.State {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.state
}

// Close implements transport.Conn. The close is reported to the handler
// asynchronously, like a socket read loop would. Closing a closed
// connection only counts the call.
func (c *Conn) Close() error {
	c.mu.Lock()
	c.closeCalls++
	c.mu.Unlock()
	if h := c.markClosed(); h != nil {
		go h.HandleClose(nil)
	}
	return nil
}

// Deliver pushes a server message to the handler
func (c *Conn) Deliver(msg wire.Message) {
	c.handler.HandleMessage(msg)
}

// ServerClose simulates the remote side dropping the connection. The handler
// runs on the calling goroutine after the connection is already closed, so
// it may call Close.
func (c *Conn) ServerClose(err error) {
	if h := c.markClosed(); h != nil {
		h.HandleClose(err)
	}
}

// markClosed returns the handler to notify, or nil if already closed
func (c *Conn) markClosed() transport.Handler {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.state == transport.StateClosed {
		return nil
	}
	c.state = transport.StateClosed
	return c.handler
}

// Sent returns a copy of every message sent so far
func (c *Conn) Sent() []wire.Message {
	c.mu.Lock()
	defer c.mu.Unlock()
	return append([]wire.Message(nil), c.sent...)
}

// SentTypes returns the type of every message sent so far
func (c *Conn) SentTypes() []wire.Type {
	sent := c.Sent()
	types := make([]wire.Type, len(sent))
	for i, m := range sent {
		types[i] = m.MessageType()
	}
	return types
}

// CloseCalls returns how many times Close was called
func (c *Conn) CloseCalls() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.closeCalls
}

// Dialer is an in-memory transport.Dialer
type Dialer struct {
	// Err, when set, fails every dial
	Err error
	// OnDial runs for every new connection before Dial returns
	OnDial func(c *Conn)

	mu    sync.Mutex
	conns []*Conn
}

// Dial implements transport.Dialer
func (d *Dialer) Dial(ctx context.Context, url string, h transport.Handler) (transport.Conn, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if d.Err != nil {
		return nil, &transport.Error{Op: "dial", URL: url, Err: d.Err}
	}

	c := NewConn(url, h)
	d.mu.Lock()
	d.conns = append(d.conns, c)
	d.mu.Unlock()

	if d.OnDial != nil {
		d.OnDial(c)
	}
	return c, nil
}

// Last returns the most recent connection, or nil
func (d *Dialer) Last() *Conn {
	d.mu.Lock()
	defer d.mu.Unlock()
	if len(d.conns) == 0 {
		return nil
	}
	return d.conns[len(d.conns)-1]
}

// Count returns the number of dials that succeeded
func (d *Dialer) Count() int {
	d.mu.Lock()
	defer d.mu.Unlock()
	return len(d.conns)
}
