package ws

import (
	"encoding/json"
	"sync"
	"time"

	"github.com/SingSongScreamAlong/ProjectBlackBox-sub003/internal/hub"
	"github.com/SingSongScreamAlong/ProjectBlackBox-sub003/pkg/logging"

	"github.com/google/uuid"
)

// longPollQueueSize bounds how many undelivered events a long-poll
// connection can accumulate between polls before volatile sends start
// dropping (spec §4.1 OverflowDrop, §12).
const longPollQueueSize = 256

// longPollConn is a transport connection driven by repeated HTTP poll
// requests instead of a held socket. It implements hub.Subscriber the same
// way Connection does, so the rest of the hub domain never distinguishes
// between the two.
type longPollConn struct {
	id      string
	surface hub.Surface

	mu     sync.Mutex
	queue  []Envelope
	notify chan struct{} // 1-buffered, signals Drain a new event is queued
	closed bool
}

func newLongPollConn(surface hub.Surface) *longPollConn {
	return &longPollConn{
		id:      uuid.NewString(),
		surface: surface,
		notify:  make(chan struct{}, 1),
	}
}

// ID implements hub.Subscriber.
func (c *longPollConn) ID() string { return c.id }

// Emit implements hub.Subscriber. volatile=true drops the event once the
// queue is saturated rather than growing unbounded between polls.
func (c *longPollConn) Emit(event string, payload interface{}, volatile bool) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		return ErrConnectionClosed
	}
	if len(c.queue) >= longPollQueueSize {
		if volatile {
			return ErrQueueFull
		}
		// Non-volatile events must not be silently lost; drop the oldest
		// queued event instead of refusing the newest one.
		c.queue = c.queue[1:]
	}
	c.queue = append(c.queue, Envelope{Event: event, Payload: payload})
	select {
	case c.notify <- struct{}{}:
	default:
	}
	return nil
}

func (c *longPollConn) drain() []Envelope {
	c.mu.Lock()
	defer c.mu.Unlock()
	out := c.queue
	c.queue = nil
	return out
}

func (c *longPollConn) markClosed() {
	c.mu.Lock()
	c.closed = true
	c.mu.Unlock()
}

// LongPollRegistry is the HTTP long-poll fallback transport (spec §12): a
// producer or consumer that cannot hold an open socket exchanges events via
// POST /poll/connect, POST /poll/:connectionId and POST /emit/:connectionId
// instead of a WebSocket.
type LongPollRegistry struct {
	mu    sync.RWMutex
	conns map[string]*longPollConn

	dispatcher Dispatcher
	idleAfter  time.Duration
	logger     logging.Logger
}

// NewLongPollRegistry builds the long-poll fallback registry.
func NewLongPollRegistry(dispatcher Dispatcher) *LongPollRegistry {
	return &LongPollRegistry{
		conns:      make(map[string]*longPollConn),
		dispatcher: dispatcher,
		idleAfter:  5 * time.Minute,
		logger:     logging.NewLogger(),
	}
}

// Open registers a new long-poll connection and runs the same OnConnect
// catch-up sweep a WebSocket upgrade triggers.
func (r *LongPollRegistry) Open(surface hub.Surface) *longPollConn {
	c := newLongPollConn(surface)
	r.mu.Lock()
	r.conns[c.id] = c
	r.mu.Unlock()
	r.dispatcher.OnConnect(c)
	return c
}

func (r *LongPollRegistry) get(connID string) (*longPollConn, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	c, ok := r.conns[connID]
	return c, ok
}

// Drain blocks until at least one event is queued or wait elapses, then
// returns everything queued so far. Returns ok=false for an unknown
// connection id.
func (r *LongPollRegistry) Drain(connID string, wait time.Duration) ([]Envelope, bool) {
	c, ok := r.get(connID)
	if !ok {
		return nil, false
	}

	if events := c.drain(); len(events) > 0 {
		return events, true
	}

	timer := time.NewTimer(wait)
	defer timer.Stop()
	select {
	case <-c.notify:
	case <-timer.C:
	}
	return c.drain(), true
}

// Dispatch hands one inbound event from a long-poll emit request to the
// ingress pipeline. Returns false for an unknown connection id. A panic in
// the dispatcher is recovered and logged so one bad poll request can't take
// down the request-handling goroutine (spec §4.11).
func (r *LongPollRegistry) Dispatch(connID, event string, payload json.RawMessage) (handled bool) {
	c, ok := r.get(connID)
	if !ok {
		return false
	}
	handled = true
	defer func() {
		if rec := recover(); rec != nil {
			r.logger.WithFields(logging.Fields{
				"error":   rec,
				"conn_id": connID,
				"event":   event,
			}).Error("long-poll event handler panic, connection kept alive")
		}
	}()
	r.dispatcher.HandleEvent(c, c.surface, event, payload)
	return true
}

// Close tears down a long-poll connection, running the same disconnect
// path a closed WebSocket triggers.
func (r *LongPollRegistry) Close(connID string) {
	r.mu.Lock()
	c, ok := r.conns[connID]
	delete(r.conns, connID)
	r.mu.Unlock()
	if !ok {
		return
	}
	c.markClosed()
	r.dispatcher.OnDisconnect(connID)
}
