package transporttest

import (
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/yegors/vocode-client/internal/transport"
	"github.com/yegors/vocode-client/internal/wire"
)

// closingHandler closes the connection from inside HandleClose, as a
// session teardown does
type closingHandler struct {
	conn   *Conn
	closed chan error
}

func (h *closingHandler) HandleMessage(wire.Message) {}

func (h *closingHandler) HandleClose(err error) {
	_ = h.conn.Close()
	h.closed <- err
}

func TestServerCloseHandlerMayClose(t *testing.T) {
	h := &closingHandler{closed: make(chan error, 2)}
	conn := NewConn("ws://test", h)
	h.conn = conn

	boom := errors.New("reset")
	done := make(chan struct{})
	go func() {
		conn.ServerClose(boom)
		close(done)
	}()

	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("ServerClose deadlocked")
	}

	assert.ErrorIs(t, <-h.closed, boom)
	assert.Equal(t, transport.StateClosed, conn.State())
	assert.Equal(t, 1, conn.CloseCalls())
	assert.ErrorIs(t, conn.Send(wire.StopMessage{}), transport.ErrClosed)

	// The handler's own Close must not report a second close
	select {
	case err := <-h.closed:
		t.Fatalf("unexpected second close report: %v", err)
	case <-time.After(50 * time.Millisecond):
	}
}

func TestCloseReportsOnce(t *testing.T) {
	closed := make(chan error, 2)
	conn := NewConn("ws://test", handlerFunc(func(err error) { closed <- err }))

	require.NoError(t, conn.Close())
	require.NoError(t, conn.Close())
	conn.ServerClose(errors.New("late"))

	assert.NoError(t, <-closed)
	assert.Equal(t, 2, conn.CloseCalls())
	select {
	case err := <-closed:
		t.Fatalf("unexpected second close report: %v", err)
	case <-time.After(50 * time.Millisecond):
	}
}

type handlerFunc func(error)

func (handlerFunc) HandleMessage(wire.Message) {}

func (f handlerFunc) HandleClose(err error) { f(err) }
