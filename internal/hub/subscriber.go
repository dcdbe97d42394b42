package hub

import (
	"sync/atomic"
	"time"

	"github.com/gorilla/websocket"
)

// Conn is the part of a WebSocket connection the hub needs.
// *websocket.Conn satisfies it.
type Conn interface {
	Subprotocol() string
	SetWriteDeadline(t time.Time) error
	WriteMessage(messageType int, data []byte) error
	WriteControl(messageType int, data []byte, deadline time.Time) error
	Close() error
}

// State is a subscriber's lifecycle state.
type State int32

const (
	Connecting State = iota
	Open
	Closing
	Closed
)

func (s State) String() string {
	switch s {
	case Connecting:
		return "connecting"
	case Open:
		return "open"
	case Closing:
		return "closing"
	default:
		return "closed"
	}
}

// Subscriber is one live push connection. It is owned by the hub from
// Register until it is closed.
type Subscriber struct {
	id    uint64
	hub   *Hub
	conn  Conn
	view  View
	codec Codec

	state atomic.Int32
	done  chan struct{}
}

// ID returns the hub-assigned identifier.
func (s *Subscriber) ID() uint64 { return s.id }

// View returns what the subscriber receives.
func (s *Subscriber) View() View { return s.view }

// State returns the current lifecycle state.
func (s *Subscriber) State() State { return State(s.state.Load()) }

// Done is closed once the subscriber has been torn down.
func (s *Subscriber) Done() <-chan struct{} { return s.done }

// Close sends a close frame with code and reason, closes the connection
// and removes the subscriber from the hub. Only the first call (or the
// first failed push) has any effect; Close reports whether this call did
// the teardown.
func (s *Subscriber) Close(code int, reason string) bool {
	return s.teardown(websocket.FormatCloseMessage(code, reason))
}

// teardown moves OPEN to CLOSING exactly once. A nil closeMsg skips the
// close frame, used when the connection already failed.
func (s *Subscriber) teardown(closeMsg []byte) bool {
	if !s.state.CompareAndSwap(int32(Open), int32(Closing)) {
		return false
	}
	s.hub.remove(s)
	if closeMsg != nil {
		_ = s.conn.WriteControl(websocket.CloseMessage, closeMsg, time.Now().Add(s.hub.opts.WriteTimeout))
	}
	_ = s.conn.Close()
	s.state.Store(int32(Closed))
	close(s.done)
	return true
}
