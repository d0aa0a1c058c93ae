package hub

import "time"

// SessionActivePayload is the session:active{...} event (spec §6).
type SessionActivePayload struct {
	SessionID   string `json:"sessionId"`
	TrackName   string `json:"trackName"`
	SessionType string `json:"sessionType"`
}

// SessionStatePayload is the session:state{...} event sent to a newly
// joined connection only (spec §4.10).
type SessionStatePayload struct {
	SessionID   string `json:"sessionId"`
	TrackName   string `json:"trackName"`
	SessionType string `json:"sessionType"`
	Status      string `json:"status"`
}

// RoomJoinedPayload acknowledges a room:join.
type RoomJoinedPayload struct {
	SessionID string `json:"sessionId"`
}

// BroadcastDelayEchoPayload is broadcast:delay{delayMs} echoed to
// subscribers (spec §4.9, §4.10).
type BroadcastDelayEchoPayload struct {
	DelayMs int `json:"delayMs"`
}

// TimingEntry is one row of the timing:update table (spec §4.6).
type TimingEntry struct {
	DriverID    string  `json:"driverId"`
	DriverName  string  `json:"driverName"`
	CarNumber   string  `json:"carNumber"`
	Position    int     `json:"position"`
	LapNumber   int     `json:"lapNumber"`
	LastLapTime float64 `json:"lastLapTime"`
	BestLapTime float64 `json:"bestLapTime"`
	GapToLeader float64 `json:"gapToLeader"`
	LapDistPct  float64 `json:"lapDistPct"`
	Speed       float64 `json:"speed"`
}

// TimingUpdatePayload is the timing:update{...} event (spec §4.6, §6).
type TimingUpdatePayload struct {
	SessionID     string  `json:"sessionId"`
	SessionTimeMs float64 `json:"sessionTimeMs"`
	Timing        struct {
		Entries []TimingEntry `json:"entries"`
	} `json:"timing"`
}

// FuelStatus is the car:status fuel bucket.
type FuelStatus struct {
	Pct    float64 `json:"pct"`
	Status string  `json:"status"`
}

// CarStatusPayload is the car:status{...} event, derived from cars[0] of a
// strategy update (spec §4.6).
type CarStatusPayload struct {
	SessionID    string      `json:"sessionId"`
	CarID        string      `json:"carId"`
	Fuel         FuelStatus  `json:"fuel"`
	TireTempAvg  TireAvg     `json:"tireTempAvg"`
	DamageStatus string      `json:"damageStatus"`
	Pit          *Pit        `json:"pit,omitempty"`
	StintLap     *int        `json:"stintLap,omitempty"`
	AvgPace      *float64    `json:"avgPace,omitempty"`
	Degradation  *float64    `json:"degradation,omitempty"`
}

// TireAvg is the per-corner mean of the three temperature band samples.
type TireAvg struct {
	FL, FR, RL, RR float64
}

// Opponent is one entry in opponent:intel.
type Opponent struct {
	CarID       string  `json:"carId"`
	DriverID    string  `json:"driverId"`
	DriverName  string  `json:"driverName"`
	CarNumber   string  `json:"carNumber"`
	Position    int     `json:"position"`
	Gap         float64 `json:"gap"`
	GapTrend    string  `json:"gapTrend"`
	ThreatLevel string  `json:"threatLevel"`
	TirePhase   string  `json:"tirePhase"`
}

// OpponentIntelPayload is the opponent:intel{...} event (spec §4.6).
type OpponentIntelPayload struct {
	SessionID string     `json:"sessionId"`
	Opponents []Opponent `json:"opponents"`
}

// StrategyEntry is one car's strategy row in strategy:update.
type StrategyEntry struct {
	CarID       string   `json:"carId"`
	DriverID    string   `json:"driverId,omitempty"`
	DriverName  string   `json:"driverName,omitempty"`
	Fuel        Fuel     `json:"fuel"`
	Tires       *Tires   `json:"tires,omitempty"`
	Damage      *Damage  `json:"damage,omitempty"`
	Pit         *Pit     `json:"pit,omitempty"`
	StintLap    *int     `json:"stintLap,omitempty"`
	AvgPace     *float64 `json:"avgPace,omitempty"`
	Degradation *float64 `json:"degradation,omitempty"`
	Gap         *float64 `json:"gap,omitempty"`
}

// StrategyUpdatePayload is the strategy:update{...} event.
type StrategyUpdatePayload struct {
	SessionID string          `json:"sessionId"`
	Timestamp int64           `json:"timestamp"`
	Strategy  []StrategyEntry `json:"strategy"`
}

// InvolvedDriver is one participant in an incident.
type InvolvedDriver struct {
	DriverID   string `json:"driverId"`
	DriverName string `json:"driverName"`
	CarNumber  string `json:"carNumber"`
	Role       string `json:"role"`
}

// IncidentNewPayload is the incident:new{...} event (spec §4.6).
type IncidentNewPayload struct {
	ID               string           `json:"id"`
	Type             string           `json:"type"`
	Severity         string           `json:"severity"`
	LapNumber        int              `json:"lapNumber"`
	SessionTimeMs    int64            `json:"sessionTimeMs"`
	TrackPosition    float64          `json:"trackPosition"`
	CornerName       string           `json:"cornerName,omitempty"`
	InvolvedDrivers  []InvolvedDriver `json:"involvedDrivers"`
	Status           string           `json:"status"`
}

// EventLogPayload is the event:log{...} entry (spec §4.6).
type EventLogPayload struct {
	ID         string    `json:"id"`
	Timestamp  time.Time `json:"timestamp"`
	Category   string    `json:"category"`
	Message    string    `json:"message"`
	Importance string    `json:"importance"`
}

// RaceStatePayload is the race:state{...} snapshot (spec §4.6).
type RaceStatePayload struct {
	SessionID     string  `json:"sessionId"`
	FlagState     string  `json:"flagState"`
	SessionPhase  string  `json:"sessionPhase"`
	Lap           int     `json:"lap"`
	TimeRemaining float64 `json:"timeRemaining"`
}

// RaceEventPayload is the race:event{...} pass-through (spec §4.6, §9 —
// the one event kept forward-compatible with an unstructured extras map).
type RaceEventPayload struct {
	SessionID     string                 `json:"sessionId"`
	FlagState     string                 `json:"flagState,omitempty"`
	SessionPhase  string                 `json:"sessionPhase,omitempty"`
	Lap           int                    `json:"lap,omitempty"`
	TimeRemaining float64                `json:"timeRemaining,omitempty"`
	Extra         map[string]interface{} `json:"extra,omitempty"`
}

// VideoFramePayload is the video:frame{...} event (spec §6).
type VideoFramePayload struct {
	SessionID string    `json:"sessionId"`
	Image     []byte    `json:"image"`
	Timestamp time.Time `json:"timestamp"`
}

// StewardDecisionPayload is the steward:decision{...} broadcast (spec §4.9).
type StewardDecisionPayload struct {
	IncidentID   string  `json:"incidentId"`
	Action       string  `json:"action"`
	PenaltyType  *string `json:"penaltyType,omitempty"`
	PenaltyValue *string `json:"penaltyValue,omitempty"`
	Notes        *string `json:"notes,omitempty"`
	StewardID    *string `json:"stewardId,omitempty"`
	DecidedAt    string  `json:"decidedAt"`
}

// StewardActionAckPayload acknowledges steward:action to the caller.
type StewardActionAckPayload struct {
	Success    bool    `json:"success"`
	IncidentID *string `json:"incidentId,omitempty"`
	Action     *string `json:"action,omitempty"`
	Error      *string `json:"error,omitempty"`
}

// AckPayload is the generic producer acknowledgment (spec §4.6, §7).
type AckPayload struct {
	OriginalType string  `json:"originalType"`
	Success      bool    `json:"success"`
	Error        *string `json:"error,omitempty"`
}

func ackSuccess(originalType string) AckPayload {
	return AckPayload{OriginalType: originalType, Success: true}
}

func ackFailure(originalType, errMsg string) AckPayload {
	return AckPayload{OriginalType: originalType, Success: false, Error: &errMsg}
}
