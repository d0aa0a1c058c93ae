package hub

import "testing"

func TestBuildIncidentNewMatchesCornerMessageScenario(t *testing.T) {
	incident, eventLog := BuildIncidentNew(
		[]string{"12", "7"},
		[]string{"A", "B"},
		"contact",
		"high",
		"Copse",
		14,
		0.62,
	)

	if incident.CornerName != "Copse" || incident.Severity != "high" {
		t.Fatalf("unexpected incident fields: %+v", incident)
	}
	if len(incident.InvolvedDrivers) != 2 {
		t.Fatalf("expected 2 involved drivers, got %d", len(incident.InvolvedDrivers))
	}
	if eventLog.Message != "Incident: Copse - A, B" {
		t.Fatalf("expected scenario message 'Incident: Copse - A, B', got %q", eventLog.Message)
	}
	if eventLog.Importance != "critical" {
		t.Fatalf("expected 'high' severity to map to 'critical' importance, got %q", eventLog.Importance)
	}
}

func TestBuildIncidentNewDefaultsSeverityAndFallsBackToCarName(t *testing.T) {
	incident, _ := BuildIncidentNew([]string{"5"}, nil, "spin", "", "", 3, 0.1)
	if incident.Severity != "medium" {
		t.Fatalf("expected default severity 'medium', got %q", incident.Severity)
	}
	if incident.InvolvedDrivers[0].DriverName != "Car 5" {
		t.Fatalf("expected fallback driver name 'Car 5', got %q", incident.InvolvedDrivers[0].DriverName)
	}
}

func TestBuildCarStatusFuelThresholds(t *testing.T) {
	cases := []struct {
		pct  float64
		want string
	}{
		{0.50, "green"},
		{0.20, "yellow"},
		{0.05, "red"},
		{0.0, "gray"},
	}
	for _, c := range cases {
		d := &DriverRecord{CarID: "1", Strategy: &Strategy{Fuel: Fuel{Pct: c.pct}}}
		status := BuildCarStatus("s1", d)
		if status.Fuel.Status != c.want {
			t.Errorf("pct=%v: expected status %q, got %q", c.pct, c.want, status.Fuel.Status)
		}
	}
}

func TestBuildCarStatusNilStrategyIsZeroValue(t *testing.T) {
	d := &DriverRecord{CarID: "9"}
	status := BuildCarStatus("s1", d)
	if status.CarID != "9" {
		t.Fatalf("expected carId carried through even with no strategy, got %+v", status)
	}
}

func TestBuildOpponentIntelPositionIsIndexPlusTwo(t *testing.T) {
	records := []*DriverRecord{
		{CarID: "2", DriverName: "B"},
		{CarID: "3", DriverName: "C"},
	}
	intel := BuildOpponentIntel("s1", records)
	if len(intel.Opponents) != 2 {
		t.Fatalf("expected 2 opponents, got %d", len(intel.Opponents))
	}
	if intel.Opponents[0].Position != 2 || intel.Opponents[1].Position != 3 {
		t.Fatalf("expected index+2 positions [2,3], got [%d,%d]", intel.Opponents[0].Position, intel.Opponents[1].Position)
	}
}

func TestBuildTimingUpdatePreservesInputOrder(t *testing.T) {
	records := []*DriverRecord{
		{CarID: "9", Position: 3},
		{CarID: "1", Position: 1},
	}
	timing := BuildTimingUpdate("s1", 12345.0, records)
	if len(timing.Timing.Entries) != 2 {
		t.Fatalf("expected 2 entries, got %d", len(timing.Timing.Entries))
	}
	if timing.Timing.Entries[0].DriverID != "9" || timing.Timing.Entries[1].DriverID != "1" {
		t.Fatalf("expected input order preserved, got %+v", timing.Timing.Entries)
	}
}

func TestBuildRaceEventLogFlagImportance(t *testing.T) {
	if log := BuildRaceEventLog("yellow"); log.Importance != "warning" {
		t.Fatalf("expected yellow flag to be 'warning' importance, got %q", log.Importance)
	}
	if log := BuildRaceEventLog("green"); log.Importance != "info" {
		t.Fatalf("expected green flag to be 'info' importance, got %q", log.Importance)
	}
}
