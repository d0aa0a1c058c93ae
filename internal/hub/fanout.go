package hub

import (
	"sync"
	"sync/atomic"
	"time"

	"github.com/SingSongScreamAlong/ProjectBlackBox-sub003/internal/metrics"
)

// nonDelayable are the events the Delay Scheduler must never hold back,
// even when the session has a nonzero broadcast delay (spec §4.7).
var nonDelayable = map[string]bool{
	"session:active":   true,
	"relay:viewers":    true,
	"ack":              true,
	"broadcast:delay":  true,
	"steward:decision": true,
}

// SessionCounters are the Fan-out Engine's per-session observability
// counters (spec §4.8).
type SessionCounters struct {
	Emitted uint64
	Dropped uint64
}

// Fanout is the Fan-out Engine (C8). It resolves the target room, applies
// the event's volatility, and either hands the event straight to the Room
// Registry or defers it through the Delay Scheduler.
type Fanout struct {
	rooms    *Rooms
	delay    *DelayScheduler
	store    *Store
	metrics  *metrics.Metrics
	mu       sync.Mutex
	counters map[string]*SessionCounters
}

// NewFanout wires the Fan-out Engine to the room registry and session
// store; SetScheduler must be called once the Delay Scheduler (which needs
// a Dispatcher pointing back at this Fanout) is constructed.
func NewFanout(rooms *Rooms, store *Store) *Fanout {
	return &Fanout{rooms: rooms, store: store, counters: make(map[string]*SessionCounters)}
}

// SetScheduler wires the Delay Scheduler after construction, breaking the
// Fanout<->DelayScheduler initialization cycle.
func (f *Fanout) SetScheduler(s *DelayScheduler) {
	f.delay = s
}

// SetMetrics wires the Prometheus instruments; nil is safe and disables
// metric recording (tests construct Fanout without a collector).
func (f *Fanout) SetMetrics(m *metrics.Metrics) {
	f.metrics = m
}

func (f *Fanout) counterFor(sessionID string) *SessionCounters {
	f.mu.Lock()
	defer f.mu.Unlock()
	c, ok := f.counters[sessionID]
	if !ok {
		c = &SessionCounters{}
		f.counters[sessionID] = c
	}
	return c
}

// Counters returns a snapshot of a session's emitted/dropped counts.
func (f *Fanout) Counters(sessionID string) SessionCounters {
	c := f.counterFor(sessionID)
	return SessionCounters{
		Emitted: atomic.LoadUint64(&c.Emitted),
		Dropped: atomic.LoadUint64(&c.Dropped),
	}
}

// Dispatch fans a derived event out to sessionId's room, honoring the
// session's broadcast delay unless the event is in the never-delayed set
// (spec §4.7, §4.8, §4.9).
func (f *Fanout) Dispatch(sessionID, event string, payload interface{}, volatile bool) {
	room := "session:" + sessionID
	queuedAt := time.Now()

	delayMs := 0
	if s := f.store.Get(sessionID); s != nil {
		_, _, delayMs = s.Snapshot()
	}

	if delayMs > 0 && f.delay != nil && !nonDelayable[event] {
		f.delay.Schedule(sessionID, room, event, payload, volatile, time.Duration(delayMs)*time.Millisecond)
		return
	}
	f.deliver(sessionID, room, event, payload, volatile, queuedAt)
}

// Deliver implements hub.Dispatcher for the Delay Scheduler: it is called
// once a scheduled delivery's deadline has passed.
func (f *Fanout) Deliver(d *DelayedDelivery) {
	if f.store.Get(d.SessionID) == nil {
		// Session was reaped after this delivery was scheduled; it must
		// not resurrect the session (spec §3, §4.7).
		return
	}
	f.deliver(d.SessionID, d.Room, d.Event, d.Payload, d.Volatile, d.QueuedAt)
}

func (f *Fanout) deliver(sessionID, room, event string, payload interface{}, volatile bool, queuedAt time.Time) {
	sent, dropped := f.rooms.Broadcast(room, event, payload, volatile)
	c := f.counterFor(sessionID)
	atomic.AddUint64(&c.Emitted, uint64(sent))
	atomic.AddUint64(&c.Dropped, uint64(dropped))

	if f.metrics != nil {
		f.metrics.FanoutEmitted.WithLabelValues(event).Add(float64(sent))
		f.metrics.FanoutDropped.WithLabelValues(event).Add(float64(dropped))
		f.metrics.DeliveryLag.WithLabelValues(event).Observe(time.Since(queuedAt).Seconds())
	}
}
