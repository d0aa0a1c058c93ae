package hub

import (
	"fmt"
	"sync/atomic"
	"time"
)

var (
	incidentSeq uint64
	eventLogSeq uint64
)

// nextIncidentID returns the next inc-<monotonic> identifier (spec §4.6).
func nextIncidentID() string {
	return fmt.Sprintf("inc-%d", atomic.AddUint64(&incidentSeq, 1))
}

// nextEventLogID returns the next evt-<monotonic> identifier (spec §4.6).
func nextEventLogID() string {
	return fmt.Sprintf("evt-%d", atomic.AddUint64(&eventLogSeq, 1))
}

// driverDisplayName resolves the fallback "Car <carId>" used whenever a
// driver's name is not yet known (spec §4.6, §8 property 4).
func driverDisplayName(d *DriverRecord) string {
	if d.DriverName != "" {
		return d.DriverName
	}
	return fmt.Sprintf("Car %s", d.CarID)
}

// buildTimingEntry formats one driver record into a timing:update row.
func buildTimingEntry(d *DriverRecord) TimingEntry {
	return TimingEntry{
		DriverID:    d.CarID,
		DriverName:  driverDisplayName(d),
		CarNumber:   d.CarNumber,
		Position:    d.Position,
		LapNumber:   d.Lap,
		LastLapTime: d.LastLapTime,
		BestLapTime: d.BestLapTime,
		GapToLeader: d.GapToLeader,
		LapDistPct:  d.LapDistPct,
		Speed:       d.Speed,
	}
}

// BuildTimingUpdate assembles timing:update from the driver records touched
// by a telemetry frame, preserving input order (spec §4.6).
func BuildTimingUpdate(sessionID string, sessionTimeMs float64, records []*DriverRecord) TimingUpdatePayload {
	p := TimingUpdatePayload{SessionID: sessionID, SessionTimeMs: sessionTimeMs}
	p.Timing.Entries = make([]TimingEntry, 0, len(records))
	for _, d := range records {
		p.Timing.Entries = append(p.Timing.Entries, buildTimingEntry(d))
	}
	return p
}

// fuelStatus buckets fuel percentage per spec §4.6: >0.30 green, >0.15
// yellow, >0 red, else gray.
func fuelStatus(pct float64) string {
	switch {
	case pct > 0.30:
		return "green"
	case pct > 0.15:
		return "yellow"
	case pct > 0:
		return "red"
	default:
		return "gray"
	}
}

// cornerAvg is the mean of the three band samples for one corner; a nil
// sample yields 0, matching the observed (not "fixed") behavior (spec §9).
func cornerAvg(c *CornerTemps) float64 {
	if c == nil {
		return 0
	}
	return (c.L + c.M + c.R) / 3
}

// damageStatus is green iff both aero and engine damage are exactly zero,
// else yellow (spec §4.6).
func damageStatus(d *Damage) string {
	if d == nil || (d.Aero == 0 && d.Engine == 0) {
		return "green"
	}
	return "yellow"
}

// BuildCarStatus derives car:status from the primary car (cars[0]) of a
// strategy update (spec §4.6; primary-car selection flagged possibly-buggy
// in spec §9, preserved as-is).
func BuildCarStatus(sessionID string, d *DriverRecord) CarStatusPayload {
	p := CarStatusPayload{SessionID: sessionID, CarID: d.CarID}
	if d.Strategy == nil {
		return p
	}
	s := d.Strategy
	p.Fuel = FuelStatus{Pct: s.Fuel.Pct, Status: fuelStatus(s.Fuel.Pct)}
	if s.TireTemps != nil {
		p.TireTempAvg = TireAvg{
			FL: cornerAvg(s.TireTemps.FL),
			FR: cornerAvg(s.TireTemps.FR),
			RL: cornerAvg(s.TireTemps.RL),
			RR: cornerAvg(s.TireTemps.RR),
		}
	}
	p.DamageStatus = damageStatus(s.Damage)
	p.Pit = s.Pit
	p.StintLap = s.StintLap
	p.AvgPace = s.AvgPace
	p.Degradation = s.Degradation
	return p
}

// minTireWear returns the minimum of the four corners, or 1 (full tread)
// when no tire data is present.
func minTireWear(t *Tires) float64 {
	if t == nil {
		return 1
	}
	min := t.FL
	for _, v := range []float64{t.FR, t.RL, t.RR} {
		if v < min {
			min = v
		}
	}
	return min
}

// tirePhase derives opponent:intel's tirePhase per spec §4.6.
func tirePhase(t *Tires) string {
	if t == nil {
		return "unknown"
	}
	if minTireWear(t) > 0.70 {
		return "fresh"
	}
	return "optimal"
}

// BuildOpponentIntel derives opponent:intel from cars[1..] of a strategy
// update. Position is index+2 over the intel list (offset by 1 from the
// input slice index), preserved verbatim per spec §9 despite not matching
// true race position.
func BuildOpponentIntel(sessionID string, records []*DriverRecord) OpponentIntelPayload {
	p := OpponentIntelPayload{SessionID: sessionID}
	for i, d := range records {
		gap := 0.0
		if d.Strategy != nil && d.Strategy.Gap != nil {
			gap = *d.Strategy.Gap
		}
		var tires *Tires
		if d.Strategy != nil {
			tires = d.Strategy.Tires
		}
		p.Opponents = append(p.Opponents, Opponent{
			CarID:       d.CarID,
			DriverID:    d.CarID,
			DriverName:  driverDisplayName(d),
			CarNumber:   d.CarNumber,
			Position:    i + 2,
			Gap:         gap,
			GapTrend:    "stable",
			ThreatLevel: "yellow",
			TirePhase:   tirePhase(tires),
		})
	}
	return p
}

// BuildStrategyUpdate formats the full driver set into strategy:update.
func BuildStrategyUpdate(sessionID string, timestamp int64, records []*DriverRecord) StrategyUpdatePayload {
	p := StrategyUpdatePayload{SessionID: sessionID, Timestamp: timestamp}
	for _, d := range records {
		entry := StrategyEntry{CarID: d.CarID, DriverName: d.DriverName}
		if d.Strategy != nil {
			entry.Fuel = d.Strategy.Fuel
			entry.Tires = d.Strategy.Tires
			entry.Damage = d.Strategy.Damage
			entry.Pit = d.Strategy.Pit
			entry.StintLap = d.Strategy.StintLap
			entry.AvgPace = d.Strategy.AvgPace
			entry.Degradation = d.Strategy.Degradation
			entry.Gap = d.Strategy.Gap
		}
		p.Strategy = append(p.Strategy, entry)
	}
	return p
}

// incidentSeverityImportance maps incident severity to event:log
// importance (spec §4.6 incident row).
func incidentSeverityImportance(severity string) string {
	switch severity {
	case "critical", "high":
		return "critical"
	case "low":
		return "info"
	default:
		return "warning"
	}
}

// BuildIncidentNew synthesizes incident:new and its companion event:log
// entry (spec §4.6, scenario S5).
func BuildIncidentNew(carIDs []string, driverNames []string, typ, severity, cornerName string, lap int, trackPosition float64) (IncidentNewPayload, EventLogPayload) {
	if severity == "" {
		severity = "medium"
	}
	involved := make([]InvolvedDriver, 0, len(carIDs))
	names := make([]string, 0, len(carIDs))
	for i, carID := range carIDs {
		name := fmt.Sprintf("Car %s", carID)
		if i < len(driverNames) && driverNames[i] != "" {
			name = driverNames[i]
		}
		involved = append(involved, InvolvedDriver{
			DriverID:   carID,
			DriverName: name,
			CarNumber:  carID,
			Role:       "involved",
		})
		names = append(names, name)
	}

	incident := IncidentNewPayload{
		ID:              nextIncidentID(),
		Type:            typ,
		Severity:        severity,
		LapNumber:       lap,
		SessionTimeMs:   time.Now().UnixMilli(),
		TrackPosition:   trackPosition,
		CornerName:      cornerName,
		InvolvedDrivers: involved,
		Status:          "pending",
	}

	message := fmt.Sprintf("Incident: %s", typ)
	if cornerName != "" {
		message = fmt.Sprintf("Incident: %s", cornerName)
	}
	if len(names) > 0 {
		joined := names[0]
		for _, n := range names[1:] {
			joined += ", " + n
		}
		message = fmt.Sprintf("Incident: %s - %s", cornerIfAny(cornerName, typ), joined)
	}

	eventLog := EventLogPayload{
		ID:         nextEventLogID(),
		Timestamp:  time.Now(),
		Category:   "warning",
		Message:    message,
		Importance: incidentSeverityImportance(severity),
	}
	return incident, eventLog
}

func cornerIfAny(cornerName, typ string) string {
	if cornerName != "" {
		return cornerName
	}
	return typ
}

// BuildRaceEventLog synthesizes the event:log companion to a race_event
// (spec §4.6): importance is warning for yellow/red flags, info otherwise.
func BuildRaceEventLog(flagState string) EventLogPayload {
	importance := "info"
	if flagState == "yellow" || flagState == "red" {
		importance = "warning"
	}
	message := "Race event"
	if flagState != "" {
		message = fmt.Sprintf("Flag state: %s", flagState)
	}
	return EventLogPayload{
		ID:         nextEventLogID(),
		Timestamp:  time.Now(),
		Category:   "system",
		Message:    message,
		Importance: importance,
	}
}
