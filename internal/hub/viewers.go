package hub

import (
	"sync"

	"golang.org/x/time/rate"
)

// Viewers is the Viewer Tracker (C3): per-session, per-surface live viewer
// counts. A 0->=1 transition notifies the registered producer connection so
// it can raise its capture rate; the converse transition tells it to drop
// back down (spec §4.3, §8 property 5: exactly once per transition).
type Viewers struct {
	mu       sync.Mutex
	bySess   map[string]*ViewerCounts
	joinedBy map[string]map[string]string // connID -> sessionId -> surface

	floodLimiters map[string]*rate.Limiter // sessionId -> limiter

	producerOf func(sessionID string) (string, bool)
	connByID   func(connID string) (Subscriber, bool)
}

// RelayViewersPayload is the relay:viewers{...} event body sent to the
// producer connection only (spec §4.3, §6).
type RelayViewersPayload struct {
	Type            string `json:"type"`
	SessionID       string `json:"sessionId"`
	ViewerCount     int    `json:"viewerCount"`
	RequestControls bool   `json:"requestControls"`
}

// NewViewers builds a Viewer Tracker. producerOf resolves the connection id
// registered as a session's relay producer (the Session Store's Producer
// method); connByID resolves a live connection id to its Subscriber (the
// transport's connection registry).
func NewViewers(producerOf func(sessionID string) (string, bool), connByID func(connID string) (Subscriber, bool)) *Viewers {
	return &Viewers{
		bySess:        make(map[string]*ViewerCounts),
		joinedBy:      make(map[string]map[string]string),
		floodLimiters: make(map[string]*rate.Limiter),
		producerOf:    producerOf,
		connByID:      connByID,
	}
}

func (v *Viewers) countsFor(sessionID string) *ViewerCounts {
	v.mu.Lock()
	defer v.mu.Unlock()
	c, ok := v.bySess[sessionID]
	if !ok {
		c = newViewerCounts()
		v.bySess[sessionID] = c
	}
	return c
}

// floodAllow guards against a connection flapping room:join/room:leave fast
// enough to storm the producer with transition notifications; modeled on
// ManuGH-xg2g's internal/ratelimit token bucket. It never suppresses the
// transition itself, only caps how often this session may re-notify.
func (v *Viewers) floodAllow(sessionID string) bool {
	v.mu.Lock()
	l, ok := v.floodLimiters[sessionID]
	if !ok {
		l = rate.NewLimiter(20, 5)
		v.floodLimiters[sessionID] = l
	}
	v.mu.Unlock()
	return l.Allow()
}

// Joined increments the viewer count for sessionID/surface and, on the
// 0->=1 transition, notifies the producer.
func (v *Viewers) Joined(connID, sessionID string, surface Surface) {
	v.mu.Lock()
	rooms, ok := v.joinedBy[connID]
	if !ok {
		rooms = make(map[string]string)
		v.joinedBy[connID] = rooms
	}
	rooms[sessionID] = string(surface)
	v.mu.Unlock()

	counts := v.countsFor(sessionID)
	before := counts.Total()
	after := counts.delta(surface, 1)
	if before == 0 && after >= 1 {
		v.notify(sessionID, after, true)
	}
}

// Left decrements the viewer count, notifying on the >=1->0 transition.
func (v *Viewers) Left(connID, sessionID string) {
	v.mu.Lock()
	surfaceStr, ok := v.joinedBy[connID][sessionID]
	if ok {
		delete(v.joinedBy[connID], sessionID)
		if len(v.joinedBy[connID]) == 0 {
			delete(v.joinedBy, connID)
		}
	}
	v.mu.Unlock()
	if !ok {
		return
	}

	counts := v.countsFor(sessionID)
	before := counts.Total()
	after := counts.delta(Surface(surfaceStr), -1)
	if before >= 1 && after == 0 {
		v.notify(sessionID, after, false)
	}
}

// HandleDisconnect leaves every session the connection had joined.
func (v *Viewers) HandleDisconnect(connID string) {
	v.mu.Lock()
	sessions := v.joinedBy[connID]
	delete(v.joinedBy, connID)
	v.mu.Unlock()

	for sessionID, surfaceStr := range sessions {
		counts := v.countsFor(sessionID)
		before := counts.Total()
		after := counts.delta(Surface(surfaceStr), -1)
		if before >= 1 && after == 0 {
			v.notify(sessionID, after, false)
		}
	}
}

// notify emits relay:viewers to the producer connection, if one is
// registered, live, and the per-session flood limiter allows it.
func (v *Viewers) notify(sessionID string, total int, requestControls bool) {
	if v.producerOf == nil || v.connByID == nil || !v.floodAllow(sessionID) {
		return
	}
	connID, ok := v.producerOf(sessionID)
	if !ok {
		return
	}
	conn, ok := v.connByID(connID)
	if !ok {
		return
	}
	conn.Emit("relay:viewers", RelayViewersPayload{
		Type:            "relay:viewers",
		SessionID:       sessionID,
		ViewerCount:     total,
		RequestControls: requestControls,
	}, false)
}

// Total returns the current total viewer count for a session across all
// surfaces.
func (v *Viewers) Total(sessionID string) int {
	return v.countsFor(sessionID).Total()
}
