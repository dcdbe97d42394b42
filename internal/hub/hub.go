// Package hub caches the latest status snapshot and fans it out to push
// subscribers, each on its own cadence.
package hub

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"net"
	"sync"
	"sync/atomic"
	"syscall"
	"time"

	"github.com/gorilla/websocket"

	"github.com/jamesprial/srt-streamer-agent/internal/status"
)

// ErrClosed is returned by Register after Shutdown has begun.
var ErrClosed = errors.New("hub: shut down")

// ShutdownReason is sent with the going-away close frame on Shutdown.
const ShutdownReason = "Server restarting"

// Source produces snapshots. *status.Builder satisfies it.
type Source interface {
	Build(ctx context.Context) *status.Snapshot
}

// Options configures a Hub.
type Options struct {
	PollInterval time.Duration
	PushInterval time.Duration
	WriteTimeout time.Duration
}

// Hub holds the current snapshot and the set of active subscribers.
// Publish has a single caller (Run); everything else is safe for
// concurrent use.
type Hub struct {
	source Source
	opts   Options
	logger *slog.Logger

	current atomic.Pointer[status.Snapshot]

	mu     sync.Mutex
	subs   map[uint64]*Subscriber
	nextID uint64
	closed bool
}

// New returns a Hub seeded with an all-unknown snapshot.
func New(source Source, opts Options, logger *slog.Logger) *Hub {
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}
	if opts.PollInterval <= 0 {
		opts.PollInterval = 2 * time.Second
	}
	if opts.PushInterval <= 0 {
		opts.PushInterval = 2 * time.Second
	}
	if opts.WriteTimeout <= 0 {
		opts.WriteTimeout = 5 * time.Second
	}
	h := &Hub{
		source: source,
		opts:   opts,
		logger: logger,
		subs:   make(map[uint64]*Subscriber),
	}
	h.current.Store(status.Unknown(time.Now()))
	return h
}

// Current returns the latest snapshot. It is never nil.
func (h *Hub) Current() *status.Snapshot {
	return h.current.Load()
}

// Publish replaces the current snapshot. A nil snapshot is ignored.
func (h *Hub) Publish(snap *status.Snapshot) {
	if snap == nil {
		return
	}
	h.current.Store(snap)
}

// Run builds a snapshot immediately and then every PollInterval until ctx
// is done. A build that overruns the interval delays the next one; builds
// never overlap.
func (h *Hub) Run(ctx context.Context) {
	ticker := time.NewTicker(h.opts.PollInterval)
	defer ticker.Stop()

	for {
		h.Publish(h.source.Build(ctx))
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
		}
	}
}

// Register adds conn to the active set. The codec follows the negotiated
// subprotocol.
func (h *Hub) Register(conn Conn, view View) (*Subscriber, error) {
	sub := &Subscriber{
		hub:   h,
		conn:  conn,
		view:  view,
		codec: CodecFor(conn.Subprotocol()),
		done:  make(chan struct{}),
	}

	h.mu.Lock()
	defer h.mu.Unlock()
	if h.closed {
		return nil, ErrClosed
	}
	h.nextID++
	sub.id = h.nextID
	sub.state.Store(int32(Open))
	h.subs[sub.id] = sub
	h.logger.Debug("subscriber registered", "id", sub.id, "view", view, "subscribers", len(h.subs))
	return sub, nil
}

// Serve pushes the current snapshot to sub immediately and then every
// PushInterval until ctx is done, the subscriber is closed, or a write
// fails. A failed write tears the subscriber down; nothing is retried.
func (h *Hub) Serve(ctx context.Context, sub *Subscriber) error {
	ticker := time.NewTicker(h.opts.PushInterval)
	defer ticker.Stop()

	for {
		if err := h.push(sub); err != nil {
			if sub.teardown(nil) {
				h.logClose(sub, err)
			}
			return err
		}
		select {
		case <-ctx.Done():
			sub.Close(websocket.CloseGoingAway, "")
			return nil
		case <-sub.Done():
			return nil
		case <-ticker.C:
		}
	}
}

func (h *Hub) push(sub *Subscriber) error {
	data, err := sub.codec.Encode(sub.view.payload(h.Current()))
	if err != nil {
		return err
	}
	if err := sub.conn.SetWriteDeadline(time.Now().Add(h.opts.WriteTimeout)); err != nil {
		return err
	}
	return sub.conn.WriteMessage(sub.codec.MessageType(), data)
}

// Shutdown refuses new subscribers and closes every open one with a
// going-away frame. It returns the number of subscribers it closed.
func (h *Hub) Shutdown(ctx context.Context) int {
	h.mu.Lock()
	h.closed = true
	subs := make([]*Subscriber, 0, len(h.subs))
	for _, sub := range h.subs {
		subs = append(subs, sub)
	}
	h.mu.Unlock()

	closed := 0
	for _, sub := range subs {
		// Past the deadline, drop connections without a close frame.
		var ok bool
		if ctx.Err() != nil {
			ok = sub.teardown(nil)
		} else {
			ok = sub.Close(websocket.CloseGoingAway, ShutdownReason)
		}
		if ok {
			closed++
		}
	}
	h.logger.Info("hub shut down", "closed", closed)
	return closed
}

// Subscribers returns the size of the active set.
func (h *Hub) Subscribers() int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return len(h.subs)
}

func (h *Hub) remove(sub *Subscriber) {
	h.mu.Lock()
	delete(h.subs, sub.id)
	h.mu.Unlock()
}

func (h *Hub) logClose(sub *Subscriber, err error) {
	if IsExpectedCloseError(err) {
		h.logger.Debug("subscriber gone", "id", sub.id, "error", err)
		return
	}
	h.logger.Warn("subscriber push failed", "id", sub.id, "error", err)
}

// IsExpectedCloseError reports whether err is a normal peer disconnect:
// a close frame, EOF, a closed connection, a broken pipe or a reset.
func IsExpectedCloseError(err error) bool {
	if err == nil {
		return false
	}
	if websocket.IsCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway, websocket.CloseNoStatusReceived) {
		return true
	}
	if errors.Is(err, io.EOF) || errors.Is(err, net.ErrClosed) || errors.Is(err, websocket.ErrCloseSent) {
		return true
	}
	var errno syscall.Errno
	if errors.As(err, &errno) {
		return errno == syscall.EPIPE || errno == syscall.ECONNRESET
	}
	return false
}
