package hub

import (
	"container/heap"
	"sync"
	"time"
)

// deliveryHeap is a min-heap of *DelayedDelivery ordered by DeliverAt. No
// third-party priority queue in the retrieval pack fit a single-field,
// monotonic-deadline ordering better than container/heap, so the scheduler
// is built directly on the standard library (see DESIGN.md).
type deliveryHeap []*DelayedDelivery

func (h deliveryHeap) Len() int            { return len(h) }
func (h deliveryHeap) Less(i, j int) bool  { return h[i].DeliverAt.Before(h[j].DeliverAt) }
func (h deliveryHeap) Swap(i, j int)       { h[i], h[j] = h[j], h[i] }
func (h *deliveryHeap) Push(x interface{}) { *h = append(*h, x.(*DelayedDelivery)) }
func (h *deliveryHeap) Pop() interface{} {
	old := *h
	n := len(old)
	item := old[n-1]
	*h = old[:n-1]
	return item
}

// Dispatcher delivers a due DelayedDelivery; wired to the Fan-out Engine.
type Dispatcher interface {
	Deliver(d *DelayedDelivery)
}

// DelayScheduler is the Delay Scheduler (C7): a single timer wheel keyed on
// monotonic deadlines. One background goroutine fires due deliveries;
// Schedule and CancelSession change the heap directly under mu, the same
// mutex the goroutine holds while it reads and pops the heap, and nudge it
// through the wake channel (spec §5).
type DelayScheduler struct {
	mu       sync.Mutex
	pending  deliveryHeap
	dispatch Dispatcher
	timer    *time.Timer
	wake     chan struct{}
	stop     chan struct{}
}

// NewDelayScheduler builds a scheduler that hands due deliveries to d.
func NewDelayScheduler(d Dispatcher) *DelayScheduler {
	s := &DelayScheduler{
		dispatch: d,
		wake:     make(chan struct{}, 1),
		stop:     make(chan struct{}),
	}
	heap.Init(&s.pending)
	go s.run()
	return s
}

// Schedule enqueues a one-shot delivery at now+delay. A delay<=0 is not
// rejected: the delivery is already due and fires on the scheduler's next
// pass (spec §4.7).
func (s *DelayScheduler) Schedule(sessionID, room, event string, payload interface{}, volatile bool, delay time.Duration) {
	d := &DelayedDelivery{
		DeliverAt: time.Now().Add(delay),
		QueuedAt:  time.Now(),
		SessionID: sessionID,
		Room:      room,
		Event:     event,
		Payload:   payload,
		Volatile:  volatile,
	}
	s.mu.Lock()
	heap.Push(&s.pending, d)
	s.mu.Unlock()

	select {
	case s.wake <- struct{}{}:
	default:
	}
}

// CancelSession drops every pending delivery for sessionID, used by the
// reaper so a reaped session's scheduled events never resurrect it (spec
// §3 DelayedDelivery lifecycle, §4.7).
func (s *DelayScheduler) CancelSession(sessionID string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	kept := s.pending[:0]
	for _, d := range s.pending {
		if d.SessionID != sessionID {
			kept = append(kept, d)
		}
	}
	s.pending = kept
	heap.Init(&s.pending)
}

// Stop halts the scheduler's background goroutine.
func (s *DelayScheduler) Stop() {
	close(s.stop)
}

func (s *DelayScheduler) run() {
	timer := time.NewTimer(time.Hour)
	timer.Stop()
	for {
		s.mu.Lock()
		var wait time.Duration
		if len(s.pending) == 0 {
			wait = time.Hour
		} else {
			wait = time.Until(s.pending[0].DeliverAt)
			if wait < 0 {
				wait = 0
			}
		}
		s.mu.Unlock()

		timer.Reset(wait)
		select {
		case <-s.stop:
			timer.Stop()
			return
		case <-s.wake:
			timer.Stop()
		case <-timer.C:
			s.fireDue()
		}
	}
}

func (s *DelayScheduler) fireDue() {
	now := time.Now()
	var due []*DelayedDelivery
	s.mu.Lock()
	for len(s.pending) > 0 && !s.pending[0].DeliverAt.After(now) {
		due = append(due, heap.Pop(&s.pending).(*DelayedDelivery))
	}
	s.mu.Unlock()

	for _, d := range due {
		s.dispatch.Deliver(d)
	}
}
