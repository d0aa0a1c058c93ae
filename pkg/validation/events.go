// Package validation holds the producer-event schemas the ingress pipeline
// validates against before any session/driver state is mutated (spec §4.6,
// §7 ValidationError). Each event name maps to exactly one payload struct,
// validated with struct tags only; range rules such as the lapDistPct
// bounds are expressed as tags as well.
package validation

import (
	"fmt"

	"github.com/go-playground/validator/v10"
)

// EventName enumerates the producer-origin events the ingress pipeline
// dispatches on (spec §4.6).
type EventName string

const (
	EventSessionMetadata EventName = "session_metadata"
	EventTelemetry       EventName = "telemetry"
	EventTelemetryBinary EventName = "telemetry_binary"
	EventStrategyUpdate  EventName = "strategy_update"
	EventIncident        EventName = "incident"
	EventRaceEvent       EventName = "race_event"
	EventVideoFrame      EventName = "video_frame"
	EventRelayRegister   EventName = "relay:register"
	EventBroadcastDelay  EventName = "broadcast:delay"
	EventStewardAction   EventName = "steward:action"
	EventRoomJoin        EventName = "room:join"
	EventRoomLeave       EventName = "room:leave"
)

// PositionPayload is the normalized-track-position fragment of a car entry.
type PositionPayload struct {
	S float64 `json:"s" validate:"gte=0,lte=1"`
}

// TelemetryCar is one car entry within a telemetry frame.
type TelemetryCar struct {
	CarID      int             `json:"carId" validate:"required"`
	DriverID   string          `json:"driverId,omitempty"`
	DriverName string          `json:"driverName,omitempty"`
	Position   int             `json:"position,omitempty"`
	Lap        int             `json:"lap,omitempty"`
	Pos        PositionPayload `json:"pos"`
	Speed      float64         `json:"speed,omitempty"`
}

// SessionMetadataPayload is the session_metadata event body.
type SessionMetadataPayload struct {
	SessionID   string `json:"sessionId" validate:"required"`
	TrackName   string `json:"trackName" validate:"required"`
	SessionType string `json:"sessionType" validate:"required"`
}

// TelemetryPayload is the JSON telemetry event body.
type TelemetryPayload struct {
	SessionID     string         `json:"sessionId" validate:"required"`
	SessionTimeMs float64        `json:"sessionTimeMs,omitempty"`
	Cars          []TelemetryCar `json:"cars" validate:"required,min=1,dive"`
}

// TelemetryBinaryPayload is the telemetry_binary event body (spec §4.5).
type TelemetryBinaryPayload struct {
	SessionID string `json:"sessionId" validate:"required"`
	Payload   []byte `json:"payload" validate:"required"`
}

// FuelPayload describes a car's current fuel state.
type FuelPayload struct {
	Level         float64  `json:"level"`
	Pct           float64  `json:"pct" validate:"gte=0,lte=1"`
	PerLap        *float64 `json:"perLap,omitempty"`
	LapsRemaining *float64 `json:"lapsRemaining,omitempty"`
}

// TiresPayload describes per-corner tire wear in [0,1] (1=new, 0=worn out).
type TiresPayload struct {
	FL float64 `json:"fl" validate:"gte=0,lte=1"`
	FR float64 `json:"fr" validate:"gte=0,lte=1"`
	RL float64 `json:"rl" validate:"gte=0,lte=1"`
	RR float64 `json:"rr" validate:"gte=0,lte=1"`
}

// CornerTemps is three band samples (inner/middle/outer) for one corner.
type CornerTemps struct {
	L float64 `json:"l"`
	M float64 `json:"m"`
	R float64 `json:"r"`
}

// TireTempsPayload holds per-corner temperature band samples.
type TireTempsPayload struct {
	FL *CornerTemps `json:"fl,omitempty"`
	FR *CornerTemps `json:"fr,omitempty"`
	RL *CornerTemps `json:"rl,omitempty"`
	RR *CornerTemps `json:"rr,omitempty"`
}

// DamagePayload describes car damage severity in [0,1].
type DamagePayload struct {
	Aero   float64 `json:"aero" validate:"gte=0,lte=1"`
	Engine float64 `json:"engine" validate:"gte=0,lte=1"`
}

// PitPayload describes pit-lane/stop state.
type PitPayload struct {
	InLane bool `json:"inLane"`
	Stops  int  `json:"stops"`
}

// StrategyCar is one car entry within a strategy_update frame.
type StrategyCar struct {
	CarID        int               `json:"carId" validate:"required"`
	Fuel         FuelPayload       `json:"fuel"`
	Tires        *TiresPayload     `json:"tires,omitempty"`
	TireTemps    *TireTempsPayload `json:"tireTemps,omitempty"`
	Damage       *DamagePayload    `json:"damage,omitempty"`
	Pit          *PitPayload       `json:"pit,omitempty"`
	StintLap     *int              `json:"stintLap,omitempty"`
	AvgPace      *float64          `json:"avgPace,omitempty"`
	Degradation  *float64          `json:"degradation,omitempty"`
	Gap          *float64          `json:"gap,omitempty"`
	DriverID     string            `json:"driverId,omitempty"`
	DriverName   string            `json:"driverName,omitempty"`
	CarNumber    string            `json:"carNumber,omitempty"`
	PositionHint int               `json:"position,omitempty"`
}

// StrategyUpdatePayload is the strategy_update event body.
type StrategyUpdatePayload struct {
	SessionID string        `json:"sessionId" validate:"required"`
	Timestamp int64         `json:"timestamp,omitempty"`
	Cars      []StrategyCar `json:"cars" validate:"required,min=1,dive"`
}

// IncidentPayload is the incident event body.
type IncidentPayload struct {
	SessionID     string   `json:"sessionId" validate:"required"`
	Type          string   `json:"type" validate:"required"`
	Severity      string   `json:"severity,omitempty"`
	Lap           int      `json:"lap,omitempty"`
	CornerName    string   `json:"cornerName,omitempty"`
	Cars          []int    `json:"cars" validate:"required,min=1"`
	DriverNames   []string `json:"driverNames,omitempty"`
	TrackPosition float64  `json:"trackPosition,omitempty"`
}

// RaceEventPayload is the race_event event body. Unknown fields are
// preserved via Extra for pass-through to race:event (spec §9 — dynamic
// payloads become a tagged struct with a catch-all for forward-compat
// fields, the one event this spec keeps open-ended).
type RaceEventPayload struct {
	SessionID     string                 `json:"sessionId" validate:"required"`
	FlagState     string                 `json:"flagState,omitempty"`
	SessionPhase  string                 `json:"sessionPhase,omitempty"`
	Lap           int                    `json:"lap,omitempty"`
	TimeRemaining float64                `json:"timeRemaining,omitempty"`
	Extra         map[string]interface{} `json:"-"`
}

// VideoFramePayload is the video_frame event body.
type VideoFramePayload struct {
	SessionID string `json:"sessionId" validate:"required"`
	Image     []byte `json:"image" validate:"required"`
}

// RelayRegisterPayload is the relay:register event body.
type RelayRegisterPayload struct {
	SessionID string `json:"sessionId" validate:"required"`
}

// BroadcastDelayPayload is the broadcast:delay event body (director only).
type BroadcastDelayPayload struct {
	SessionID string `json:"sessionId" validate:"required"`
	DelayMs   int    `json:"delayMs"`
}

// StewardActionPayload is the steward:action event body.
type StewardActionPayload struct {
	SessionID    string  `json:"sessionId" validate:"required"`
	IncidentID   string  `json:"incidentId" validate:"required"`
	Action       string  `json:"action" validate:"required,oneof=approve reject modify"`
	PenaltyType  *string `json:"penaltyType,omitempty"`
	PenaltyValue *string `json:"penaltyValue,omitempty"`
	Notes        *string `json:"notes,omitempty"`
	StewardID    *string `json:"stewardId,omitempty"`
}

// RoomPayload is shared by room:join and room:leave.
type RoomPayload struct {
	SessionID string `json:"sessionId" validate:"required"`
}

// EventValidator performs structural and event-type-specific validation for
// every producer message before it reaches the ingress pipeline.
type EventValidator struct {
	validator *validator.Validate
}

// NewEventValidator constructs an EventValidator with standard struct
// validation.
func NewEventValidator() *EventValidator {
	return &EventValidator{validator: validator.New()}
}

// Validate runs struct-tag validation and returns a descriptive error that
// wraps every field violation found, matching the shape the ingress pipeline needs to build an
// ack{success:false, error} response (spec §4.6, §7 ValidationError).
func (v *EventValidator) Validate(payload interface{}) error {
	if err := v.validator.Struct(payload); err != nil {
		return fmt.Errorf("validation failed: %w", err)
	}
	return nil
}
