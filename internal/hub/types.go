// Package hub implements the session-hub domain: the room registry, session
// store, viewer tracker, binary decoder, ingress pipeline, delay scheduler,
// fan-out engine, director control and session query surfaces that sit
// behind the transport (internal/ws). Nothing in this package touches a
// socket directly; it is driven by Subscriber values the transport hands in.
package hub

import (
	"sync"
	"time"
)

// Subscriber is the minimal view of a transport connection the hub needs:
// an identity and a way to push a named event to it. internal/ws.Connection
// implements this; tests use fakes.
type Subscriber interface {
	ID() string
	Emit(event string, payload interface{}, volatile bool) error
}

// Broadcaster reaches every connection the transport currently holds,
// independent of room membership. session_metadata's session:active fan-out
// and a freshly opened connection's catch-up sweep both need "all
// connections", which only the transport (not the room registry) knows
// about (spec §4.6, §4.10).
type Broadcaster interface {
	BroadcastAll(event string, payload interface{}, volatile bool)
}

// Surface is the consumer's declared role (spec glossary: pit-wall, in-car
// HUD, public broadcast). Producers do not carry a surface.
type Surface string

const (
	SurfaceWeb       Surface = "web"
	SurfaceDriver    Surface = "driver"
	SurfaceBroadcast Surface = "broadcast"
	SurfaceRelay     Surface = "relay"
)

// Fuel describes a car's current fuel state.
type Fuel struct {
	Level         float64
	Pct           float64
	PerLap        *float64
	LapsRemaining *float64
}

// Tires holds per-corner wear in [0,1], 1 is new.
type Tires struct {
	FL, FR, RL, RR float64
}

// CornerTemps is the three band samples (inner/middle/outer) for one corner.
type CornerTemps struct {
	L, M, R float64
}

// TireTemps holds per-corner temperature band samples; any corner may be nil
// when the producer did not report it.
type TireTemps struct {
	FL, FR, RL, RR *CornerTemps
}

// Damage describes car damage severity in [0,1].
type Damage struct {
	Aero, Engine float64
}

// Pit describes pit-lane/stop state.
type Pit struct {
	InLane bool
	Stops  int
}

// Strategy is a driver's last-known strategy snapshot (spec §3).
type Strategy struct {
	Fuel        Fuel
	Tires       *Tires
	TireTemps   *TireTemps
	Damage      *Damage
	Pit         *Pit
	StintLap    *int
	AvgPace     *float64
	Degradation *float64
	Gap         *float64
}

// DriverRecord is one car within a session (spec §3). carId is producer-
// assigned and stringified for routing; records are created on first
// mention and persist until the owning session is reaped.
type DriverRecord struct {
	CarID       string
	DriverName  string
	CarNumber   string
	LapDistPct  float64
	Position    int
	Lap         int
	LastLapTime float64
	BestLapTime float64
	GapToLeader float64
	Speed       float64
	Strategy    *Strategy
}

// ViewerCounts is the per-surface live viewer count for a session, owned by
// the Viewer Tracker, which keeps one per session in its own map. The
// tracker does not write to SessionState.Viewers; that field holds a
// separate, unused ViewerCounts.
type ViewerCounts struct {
	mu     sync.RWMutex
	counts map[Surface]int
}

func newViewerCounts() *ViewerCounts {
	return &ViewerCounts{counts: make(map[Surface]int)}
}

// Total sums all surfaces.
func (v *ViewerCounts) Total() int {
	v.mu.RLock()
	defer v.mu.RUnlock()
	total := 0
	for _, c := range v.counts {
		total += c
	}
	return total
}

func (v *ViewerCounts) get(s Surface) int {
	v.mu.RLock()
	defer v.mu.RUnlock()
	return v.counts[s]
}

func (v *ViewerCounts) delta(s Surface, d int) int {
	v.mu.Lock()
	defer v.mu.Unlock()
	v.counts[s] += d
	if v.counts[s] < 0 {
		v.counts[s] = 0
	}
	total := 0
	for _, c := range v.counts {
		total += c
	}
	return total
}

// SessionState is one active session (spec §3), held by the Session Store.
// Its mutex guards all of its fields; the store's methods lock it, and the
// ingress path locks it directly for driver merges so it does not need the
// store's coarser lock for every frame.
type SessionState struct {
	mu sync.Mutex

	SessionID        string
	TrackName        string
	SessionType      string
	Drivers          map[string]*DriverRecord
	LastUpdateAt     time.Time
	BroadcastDelayMs int
	Viewers          *ViewerCounts
	FlagState        string
	CurrentLap       int
	TimeRemaining    float64
	SessionPhase     string

	// ProducerConnID is the connection registered as this session's
	// relay producer via relay:register, empty if none yet.
	ProducerConnID string
}

func newSessionState(sessionID string) *SessionState {
	return &SessionState{
		SessionID:   sessionID,
		Drivers:     make(map[string]*DriverRecord),
		Viewers:     newViewerCounts(),
		SessionType: "race",
	}
}

// WithDriver returns the driver record for carID, creating it if absent,
// under the session's own lock.
func (s *SessionState) WithDriver(carID string) *DriverRecord {
	s.mu.Lock()
	defer s.mu.Unlock()
	d, ok := s.Drivers[carID]
	if !ok {
		d = &DriverRecord{CarID: carID, CarNumber: carID}
		s.Drivers[carID] = d
	}
	return d
}

// Snapshot returns a shallow, read-safe copy of the fields Session Query
// needs; it does not copy the driver map.
func (s *SessionState) Snapshot() (trackName, sessionType string, delayMs int) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.TrackName, s.SessionType, s.BroadcastDelayMs
}

// DelayedDelivery is a short-lived, one-shot scheduled fan-out (spec §3).
type DelayedDelivery struct {
	DeliverAt time.Time
	QueuedAt  time.Time
	SessionID string
	Room      string
	Event     string
	Payload   interface{}
	Volatile  bool
}
