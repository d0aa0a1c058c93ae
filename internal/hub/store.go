package hub

import (
	"sync"
	"time"
)

// SessionSummary is the list()-shaped view Session Query and the /sessions
// HTTP endpoint hand out.
type SessionSummary struct {
	SessionID    string    `json:"sessionId"`
	TrackName    string    `json:"trackName"`
	SessionType  string    `json:"sessionType"`
	DriverCount  int       `json:"driverCount"`
	LastUpdate   time.Time `json:"lastUpdate"`
}

// Store is the thread-safe session map (C4). A single RWMutex guards
// membership changes (insert/delete/list); per-session state mutations go
// through the session's own lock once the pointer is obtained, so a long
// driver-map merge never blocks an unrelated List() or Get() call.
type Store struct {
	mu         sync.RWMutex
	sessions   map[string]*SessionState
	maxDelayMs int
}

const defaultMaxBroadcastDelayMs = 60000

// NewStore builds an empty session store.
func NewStore() *Store {
	return &Store{sessions: make(map[string]*SessionState), maxDelayMs: defaultMaxBroadcastDelayMs}
}

// SetMaxDelay updates the ceiling SetDelay clamps to (MAX_BROADCAST_DELAY_MS,
// spec §10). Safe to call at startup before any session exists.
func (st *Store) SetMaxDelay(ms int) {
	if ms < 0 {
		ms = 0
	}
	st.mu.Lock()
	st.maxDelayMs = ms
	st.mu.Unlock()
}

// SessionMetadata is the upsertFromMetadata input (spec §4.4).
type SessionMetadata struct {
	SessionID   string
	TrackName   string
	SessionType string
}

// UpsertFromMetadata creates the session if absent, otherwise refreshes
// trackName/sessionType/lastUpdateAt.
func (st *Store) UpsertFromMetadata(meta SessionMetadata) *SessionState {
	st.mu.Lock()
	s, ok := st.sessions[meta.SessionID]
	if !ok {
		s = newSessionState(meta.SessionID)
		st.sessions[meta.SessionID] = s
	}
	st.mu.Unlock()

	s.mu.Lock()
	s.TrackName = meta.TrackName
	s.SessionType = meta.SessionType
	s.LastUpdateAt = time.Now()
	s.mu.Unlock()
	return s
}

// UpsertImplicit creates a placeholder session for telemetry that addresses
// an unknown sessionId (spec §4.4).
func (st *Store) UpsertImplicit(sessionID string) *SessionState {
	st.mu.Lock()
	s, ok := st.sessions[sessionID]
	if !ok {
		s = newSessionState(sessionID)
		s.TrackName = "Unknown"
		st.sessions[sessionID] = s
	}
	st.mu.Unlock()

	s.mu.Lock()
	s.LastUpdateAt = time.Now()
	s.mu.Unlock()
	return s
}

// Get returns the session, or nil if it does not exist.
func (st *Store) Get(sessionID string) *SessionState {
	st.mu.RLock()
	defer st.mu.RUnlock()
	return st.sessions[sessionID]
}

// List returns a summary of every active session.
func (st *Store) List() []SessionSummary {
	st.mu.RLock()
	ids := make([]*SessionState, 0, len(st.sessions))
	for _, s := range st.sessions {
		ids = append(ids, s)
	}
	st.mu.RUnlock()

	out := make([]SessionSummary, 0, len(ids))
	for _, s := range ids {
		s.mu.Lock()
		out = append(out, SessionSummary{
			SessionID:   s.SessionID,
			TrackName:   s.TrackName,
			SessionType: s.SessionType,
			DriverCount: len(s.Drivers),
			LastUpdate:  s.LastUpdateAt,
		})
		s.mu.Unlock()
	}
	return out
}

// ActiveSince returns the sessions whose lastUpdateAt is within `window`,
// used by Session Query's new-connection catch-up (spec §4.10).
func (st *Store) ActiveSince(window time.Duration) []*SessionState {
	st.mu.RLock()
	defer st.mu.RUnlock()
	now := time.Now()
	out := make([]*SessionState, 0)
	for _, s := range st.sessions {
		s.mu.Lock()
		last := s.LastUpdateAt
		s.mu.Unlock()
		if now.Sub(last) <= window {
			out = append(out, s)
		}
	}
	return out
}

// SetDelay clamps and stores the broadcast delay for a session. Returns
// false if the session does not exist (director events addressing an
// unknown session are silently ignored per spec §7 UnknownSessionControl).
func (st *Store) SetDelay(sessionID string, ms int) (int, bool) {
	s := st.Get(sessionID)
	if s == nil {
		return 0, false
	}
	st.mu.RLock()
	maxDelayMs := st.maxDelayMs
	st.mu.RUnlock()

	if ms < 0 {
		ms = 0
	}
	if ms > maxDelayMs {
		ms = maxDelayMs
	}
	s.mu.Lock()
	s.BroadcastDelayMs = ms
	s.mu.Unlock()
	return ms, true
}

// Touch refreshes lastUpdateAt without otherwise mutating the session.
func (st *Store) Touch(sessionID string) {
	s := st.Get(sessionID)
	if s == nil {
		return
	}
	s.mu.Lock()
	s.LastUpdateAt = time.Now()
	s.mu.Unlock()
}

// SetProducer records the connection registered as a session's relay
// producer (spec §4.9 relay:register).
func (st *Store) SetProducer(sessionID, connID string) {
	s := st.Get(sessionID)
	if s == nil {
		return
	}
	s.mu.Lock()
	s.ProducerConnID = connID
	s.mu.Unlock()
}

// Producer returns the connection id registered as the session's producer,
// and whether one is registered.
func (st *Store) Producer(sessionID string) (string, bool) {
	s := st.Get(sessionID)
	if s == nil {
		return "", false
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.ProducerConnID, s.ProducerConnID != ""
}

// Reap removes any session whose lastUpdateAt is older than staleAfter and
// returns the removed sessionIds so the caller (the Reaper) can cancel
// their pending deliveries in the Delay Scheduler. Subscribers are never forcibly
// disconnected (spec §4.4).
func (st *Store) Reap(staleAfter time.Duration) []string {
	cutoff := time.Now().Add(-staleAfter)
	st.mu.Lock()
	defer st.mu.Unlock()

	var reaped []string
	for id, s := range st.sessions {
		s.mu.Lock()
		last := s.LastUpdateAt
		s.mu.Unlock()
		if last.Before(cutoff) {
			delete(st.sessions, id)
			reaped = append(reaped, id)
		}
	}
	return reaped
}

// Count returns the number of active sessions, used for the lifecycle
// metrics snapshot (spec §4.11).
func (st *Store) Count() int {
	st.mu.RLock()
	defer st.mu.RUnlock()
	return len(st.sessions)
}
