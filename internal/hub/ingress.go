package hub

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/SingSongScreamAlong/ProjectBlackBox-sub003/pkg/logging"
	"github.com/SingSongScreamAlong/ProjectBlackBox-sub003/pkg/validation"
)

// Pipeline is the Ingress Pipeline (C6): it validates every producer-origin
// event, upserts session/driver state, derives dashboard events, and folds
// in Director Control (C9) and Session Query (C10) since both are driven
// by the same event dispatch table (spec §4.6, §4.9, §4.10).
type Pipeline struct {
	Store     *Store
	Rooms     *Rooms
	Viewers   *Viewers
	Fanout    *Fanout
	Validator *validation.EventValidator
	Broadcast Broadcaster
	Logger    logging.Logger
}

// NewPipeline wires the Ingress Pipeline to its collaborators.
func NewPipeline(store *Store, rooms *Rooms, viewers *Viewers, fanout *Fanout, broadcast Broadcaster, logger logging.Logger) *Pipeline {
	return &Pipeline{
		Store:     store,
		Rooms:     rooms,
		Viewers:   viewers,
		Fanout:    fanout,
		Validator: validation.NewEventValidator(),
		Broadcast: broadcast,
		Logger:    logger,
	}
}

// HandleEvent dispatches a single producer/consumer message by event name
// (spec §4.6 table, §6). Unknown event names are logged and ignored.
func (p *Pipeline) HandleEvent(conn Subscriber, surface Surface, event string, raw json.RawMessage) {
	switch event {
	case "session_metadata":
		p.handleSessionMetadata(conn, raw)
	case "telemetry":
		p.handleTelemetry(conn, raw)
	case "telemetry_binary":
		p.handleTelemetryBinary(conn, raw)
	case "strategy_update":
		p.handleStrategyUpdate(conn, raw)
	case "incident":
		p.handleIncident(conn, raw)
	case "race_event":
		p.handleRaceEvent(conn, raw)
	case "video_frame":
		p.handleVideoFrame(conn, raw)
	case "relay:register":
		p.handleRelayRegister(conn, raw)
	case "broadcast:delay":
		p.handleBroadcastDelay(conn, raw)
	case "steward:action":
		p.handleStewardAction(conn, raw)
	case "room:join":
		p.handleRoomJoin(conn, surface, raw)
	case "room:leave":
		p.handleRoomLeave(conn, raw)
	default:
		p.Logger.WithFields(logging.Fields{"event": event, "conn": conn.ID()}).Warn("unrecognized event")
	}
}

func (p *Pipeline) ack(conn Subscriber, originalType string, err error) {
	if err != nil {
		conn.Emit("ack", ackFailure(originalType, err.Error()), false)
		return
	}
	conn.Emit("ack", ackSuccess(originalType), false)
}

// handleSessionMetadata implements the session_metadata row of spec §4.6.
func (p *Pipeline) handleSessionMetadata(conn Subscriber, raw json.RawMessage) {
	var payload validation.SessionMetadataPayload
	if err := json.Unmarshal(raw, &payload); err != nil {
		p.ack(conn, "session_metadata", err)
		return
	}
	if err := p.Validator.Validate(payload); err != nil {
		p.ack(conn, "session_metadata", err)
		return
	}

	p.Store.UpsertFromMetadata(SessionMetadata{
		SessionID:   payload.SessionID,
		TrackName:   payload.TrackName,
		SessionType: payload.SessionType,
	})
	p.Rooms.Join(conn, "session:"+payload.SessionID)

	if p.Broadcast != nil {
		p.Broadcast.BroadcastAll("session:active", SessionActivePayload{
			SessionID:   payload.SessionID,
			TrackName:   payload.TrackName,
			SessionType: payload.SessionType,
		}, false)
	}
	p.ack(conn, "session_metadata", nil)
}

// mergeCar upserts one telemetry car entry into the session's driver map
// and returns the updated record. The JSON path uses it; the binary path
// makes the same position/lap/lapDistPct/speed updates inline under the
// same session lock (spec §5 shared session lock).
func mergeCar(s *SessionState, carID string, driverName, carNumber string, position, lap int, lapDistPct, speed float64) *DriverRecord {
	d := s.WithDriver(carID)
	s.mu.Lock()
	defer s.mu.Unlock()
	if driverName != "" {
		d.DriverName = driverName
	}
	if carNumber != "" {
		d.CarNumber = carNumber
	}
	d.Position = position
	d.Lap = lap
	d.LapDistPct = lapDistPct
	d.Speed = speed
	return d
}

// handleTelemetry implements the telemetry (JSON) row of spec §4.6.
func (p *Pipeline) handleTelemetry(conn Subscriber, raw json.RawMessage) {
	var payload validation.TelemetryPayload
	if err := json.Unmarshal(raw, &payload); err != nil {
		return
	}
	if err := p.Validator.Validate(payload); err != nil {
		p.ack(conn, "telemetry", err)
		return
	}

	s := p.Store.UpsertImplicit(payload.SessionID)
	records := make([]*DriverRecord, 0, len(payload.Cars))
	for _, car := range payload.Cars {
		carID := fmt.Sprintf("%d", car.CarID)
		d := mergeCar(s, carID, car.DriverName, carID, car.Position, car.Lap, car.Pos.S, car.Speed)
		records = append(records, d)
	}

	timing := BuildTimingUpdate(payload.SessionID, payload.SessionTimeMs, records)
	p.Fanout.Dispatch(payload.SessionID, "timing:update", timing, true)
}

// handleTelemetryBinary implements the telemetry_binary row of spec §4.6,
// §4.5: decode, then share the JSON path's merge & derivation.
func (p *Pipeline) handleTelemetryBinary(conn Subscriber, raw json.RawMessage) {
	var payload validation.TelemetryBinaryPayload
	if err := json.Unmarshal(raw, &payload); err != nil {
		return
	}
	if err := p.Validator.Validate(payload); err != nil {
		return
	}

	frame, err := DecodeTelemetryFrame(payload.Payload)
	if err != nil {
		p.Logger.WithError(err).WithField("session", payload.SessionID).Warn("telemetry_binary decode failed")
		return
	}
	if frame.Truncated {
		// Logged for every truncated frame; no per-connection rate limit.
		p.Logger.WithField("session", payload.SessionID).Warn("telemetry_binary frame truncated, using decoded prefix")
	}

	s := p.Store.UpsertImplicit(payload.SessionID)
	records := make([]*DriverRecord, 0, len(frame.Cars))
	for _, car := range frame.Cars {
		carID := fmt.Sprintf("%d", car.CarID)
		// Binary layout carries no driverName/carNumber; merge preserves
		// whatever the cached driver map already knows (spec §8 property 4).
		d := s.WithDriver(carID)
		s.mu.Lock()
		d.Position = car.Position
		d.Lap = car.Lap
		d.LapDistPct = car.LapDistPct
		d.Speed = car.Speed
		s.mu.Unlock()
		records = append(records, d)
	}

	timing := BuildTimingUpdate(payload.SessionID, frame.TimestampMs, records)
	p.Fanout.Dispatch(payload.SessionID, "timing:update", timing, true)
}

// handleStrategyUpdate implements the strategy_update row of spec §4.6.
func (p *Pipeline) handleStrategyUpdate(conn Subscriber, raw json.RawMessage) {
	var payload validation.StrategyUpdatePayload
	if err := json.Unmarshal(raw, &payload); err != nil {
		return
	}
	if err := p.Validator.Validate(payload); err != nil {
		return
	}

	s := p.Store.UpsertImplicit(payload.SessionID)
	records := make([]*DriverRecord, 0, len(payload.Cars))
	for _, car := range payload.Cars {
		carID := fmt.Sprintf("%d", car.CarID)
		d := s.WithDriver(carID)
		s.mu.Lock()
		if car.DriverName != "" {
			d.DriverName = car.DriverName
		}
		d.Strategy = &Strategy{
			Fuel: Fuel{
				Level:         car.Fuel.Level,
				Pct:           car.Fuel.Pct,
				PerLap:        car.Fuel.PerLap,
				LapsRemaining: car.Fuel.LapsRemaining,
			},
			StintLap:    car.StintLap,
			AvgPace:     car.AvgPace,
			Degradation: car.Degradation,
			Gap:         car.Gap,
		}
		if car.Tires != nil {
			d.Strategy.Tires = &Tires{FL: car.Tires.FL, FR: car.Tires.FR, RL: car.Tires.RL, RR: car.Tires.RR}
		}
		if car.TireTemps != nil {
			d.Strategy.TireTemps = convertTireTemps(car.TireTemps)
		}
		if car.Damage != nil {
			d.Strategy.Damage = &Damage{Aero: car.Damage.Aero, Engine: car.Damage.Engine}
		}
		if car.Pit != nil {
			d.Strategy.Pit = &Pit{InLane: car.Pit.InLane, Stops: car.Pit.Stops}
		}
		s.mu.Unlock()
		records = append(records, d)
	}

	strategy := BuildStrategyUpdate(payload.SessionID, payload.Timestamp, records)
	p.Fanout.Dispatch(payload.SessionID, "strategy:update", strategy, false)

	if len(records) > 0 {
		status := BuildCarStatus(payload.SessionID, records[0])
		p.Fanout.Dispatch(payload.SessionID, "car:status", status, false)
	}
	if len(records) > 1 {
		intel := BuildOpponentIntel(payload.SessionID, records[1:])
		p.Fanout.Dispatch(payload.SessionID, "opponent:intel", intel, false)
	}
}

func convertTireTemps(t *validation.TireTempsPayload) *TireTemps {
	out := &TireTemps{}
	if t.FL != nil {
		out.FL = &CornerTemps{L: t.FL.L, M: t.FL.M, R: t.FL.R}
	}
	if t.FR != nil {
		out.FR = &CornerTemps{L: t.FR.L, M: t.FR.M, R: t.FR.R}
	}
	if t.RL != nil {
		out.RL = &CornerTemps{L: t.RL.L, M: t.RL.M, R: t.RL.R}
	}
	if t.RR != nil {
		out.RR = &CornerTemps{L: t.RR.L, M: t.RR.M, R: t.RR.R}
	}
	return out
}

// handleIncident implements the incident row of spec §4.6, scenario S5.
func (p *Pipeline) handleIncident(conn Subscriber, raw json.RawMessage) {
	var payload validation.IncidentPayload
	if err := json.Unmarshal(raw, &payload); err != nil {
		p.ack(conn, "incident", err)
		return
	}
	if err := p.Validator.Validate(payload); err != nil {
		p.ack(conn, "incident", err)
		return
	}

	carIDs := make([]string, len(payload.Cars))
	for i, c := range payload.Cars {
		carIDs[i] = fmt.Sprintf("%d", c)
	}

	incident, eventLog := BuildIncidentNew(carIDs, payload.DriverNames, payload.Type, payload.Severity, payload.CornerName, payload.Lap, payload.TrackPosition)
	p.Store.Touch(payload.SessionID)
	p.Fanout.Dispatch(payload.SessionID, "incident:new", incident, false)
	p.Fanout.Dispatch(payload.SessionID, "event:log", eventLog, false)
	p.ack(conn, "incident", nil)
}

// handleRaceEvent implements the race_event row of spec §4.6.
func (p *Pipeline) handleRaceEvent(conn Subscriber, raw json.RawMessage) {
	var payload validation.RaceEventPayload
	if err := json.Unmarshal(raw, &payload); err != nil {
		p.ack(conn, "race_event", err)
		return
	}
	if err := p.Validator.Validate(payload); err != nil {
		p.ack(conn, "race_event", err)
		return
	}

	var extra map[string]interface{}
	_ = json.Unmarshal(raw, &extra)

	s := p.Store.UpsertImplicit(payload.SessionID)
	s.mu.Lock()
	if payload.FlagState != "" {
		s.FlagState = payload.FlagState
	}
	if payload.SessionPhase != "" {
		s.SessionPhase = payload.SessionPhase
	}
	if payload.Lap != 0 {
		s.CurrentLap = payload.Lap
	}
	if payload.TimeRemaining != 0 {
		s.TimeRemaining = payload.TimeRemaining
	}
	snapshot := RaceStatePayload{
		SessionID:     payload.SessionID,
		FlagState:     s.FlagState,
		SessionPhase:  s.SessionPhase,
		Lap:           s.CurrentLap,
		TimeRemaining: s.TimeRemaining,
	}
	s.mu.Unlock()

	race := RaceEventPayload{
		SessionID:     payload.SessionID,
		FlagState:     payload.FlagState,
		SessionPhase:  payload.SessionPhase,
		Lap:           payload.Lap,
		TimeRemaining: payload.TimeRemaining,
		Extra:         extra,
	}
	p.Fanout.Dispatch(payload.SessionID, "race:event", race, false)
	p.Fanout.Dispatch(payload.SessionID, "race:state", snapshot, false)
	p.Fanout.Dispatch(payload.SessionID, "event:log", BuildRaceEventLog(payload.FlagState), false)
	p.ack(conn, "race_event", nil)
}

// handleVideoFrame implements the video_frame row of spec §4.6: forwarded
// volatile, no state mutation beyond lastUpdateAt.
func (p *Pipeline) handleVideoFrame(conn Subscriber, raw json.RawMessage) {
	var payload validation.VideoFramePayload
	if err := json.Unmarshal(raw, &payload); err != nil {
		return
	}
	if err := p.Validator.Validate(payload); err != nil {
		return
	}
	p.Store.Touch(payload.SessionID)
	p.Fanout.Dispatch(payload.SessionID, "video:frame", VideoFramePayload{
		SessionID: payload.SessionID,
		Image:     payload.Image,
		Timestamp: time.Now(),
	}, true)
}
