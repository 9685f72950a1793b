package transport

import (
	"context"
	"errors"
	"fmt"

	"github.com/yegors/vocode-client/internal/wire"
)

// ErrClosed is returned when sending on a transport that is not open
var ErrClosed = errors.New("transport is not open")

// State mirrors the ready state of a message channel
type State int

// Transport states
const (
	StateConnecting State = iota
	StateOpen
	StateClosing
	StateClosed
)

func (s State) String() string {
	switch s {
	case StateConnecting:
		return "connecting"
	case StateOpen:
		return "open"
	case StateClosing:
		return "closing"
	case StateClosed:
		return "closed"
	default:
		return fmt.Sprintf("state(%d)", int(s))
	}
}

// Conn is an open bidirectional message channel
type Conn interface {
	Send(msg wire.Message) error
	State() State
	Close() error
}

// Handler receives inbound traffic. HandleClose is called exactly once,
// with a non-nil error when the channel failed.
type Handler interface {
	HandleMessage(msg wire.Message)
	HandleClose(err error)
}

// Dialer opens connections
type Dialer interface {
	Dial(ctx context.Context, url string, h Handler) (Conn, error)
}

// IsOpen reports whether c can send right now
func IsOpen(c Conn) bool {
	return c != nil && c.State() == StateOpen
}

// Error describes a transport-level failure
type Error struct {
	Op  string
	URL string
	Err error
}

func (e *Error) Error() string {
	if e.URL == "" {
		return fmt.Sprintf("transport %s: %v", e.Op, e.Err)
	}
	return fmt.Sprintf("transport %s %s: %v", e.Op, e.URL, e.Err)
}

func (e *Error) Unwrap() error {
	return e.Err
}
