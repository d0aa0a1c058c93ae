package hub

import (
	"encoding/json"
	"testing"
)

func TestHandleRelayRegisterRepliesWithCurrentViewerCount(t *testing.T) {
	p, store, _, _ := newTestPipeline()
	producer := newFakeConn("producer-1")

	raw, _ := json.Marshal(map[string]interface{}{"sessionId": "s1"})
	p.HandleEvent(producer, SurfaceRelay, "relay:register", raw)

	connID, ok := store.Producer("s1")
	if !ok || connID != "producer-1" {
		t.Fatalf("expected producer-1 registered as producer for s1, got %q (ok=%v)", connID, ok)
	}

	events := producer.received()
	if len(events) != 1 || events[0].Event != "relay:viewers" {
		t.Fatalf("expected an immediate relay:viewers reply, got %+v", events)
	}
	payload, ok := events[0].Payload.(RelayViewersPayload)
	if !ok || payload.ViewerCount != 0 || payload.RequestControls {
		t.Fatalf("expected viewerCount=0 requestControls=false on registration, got %+v", events[0].Payload)
	}
}

func TestHandleBroadcastDelayClampsAndEchoesToRoom(t *testing.T) {
	p, store, rooms, _ := newTestPipeline()
	store.UpsertImplicit("s1")
	viewer := newFakeConn("viewer-1")
	rooms.Join(viewer, "session:s1")

	raw, _ := json.Marshal(map[string]interface{}{"sessionId": "s1", "delayMs": 120000})
	p.HandleEvent(newFakeConn("director-1"), SurfaceWeb, "broadcast:delay", raw)

	events := viewer.received()
	if len(events) != 1 || events[0].Event != "broadcast:delay" {
		t.Fatalf("expected a broadcast:delay echo to the room, got %+v", events)
	}
	echo, ok := events[0].Payload.(BroadcastDelayEchoPayload)
	if !ok || echo.DelayMs != 60000 {
		t.Fatalf("expected the delay clamped to 60000ms, got %+v", events[0].Payload)
	}
}

func TestHandleBroadcastDelayUnknownSessionIsSilentlyIgnored(t *testing.T) {
	p, _, rooms, _ := newTestPipeline()
	viewer := newFakeConn("viewer-1")
	rooms.Join(viewer, "session:ghost")

	raw, _ := json.Marshal(map[string]interface{}{"sessionId": "ghost", "delayMs": 1000})
	p.HandleEvent(newFakeConn("director-1"), SurfaceWeb, "broadcast:delay", raw)

	if len(viewer.received()) != 0 {
		t.Fatalf("expected no echo for an unknown session, got %+v", viewer.received())
	}
}

func TestHandleStewardActionAcksSuccessAndBroadcastsDecision(t *testing.T) {
	p, store, rooms, _ := newTestPipeline()
	store.UpsertImplicit("s1")
	viewer := newFakeConn("viewer-1")
	rooms.Join(viewer, "session:s1")

	steward := newFakeConn("steward-1")
	raw, _ := json.Marshal(map[string]interface{}{
		"sessionId":   "s1",
		"incidentId":  "inc-1",
		"action":      "approve",
		"penaltyType": "time",
		"stewardId":   "st-1",
	})
	p.HandleEvent(steward, SurfaceWeb, "steward:action", raw)

	ack := steward.received()
	if len(ack) != 1 || ack[0].Event != "steward:action:ack" {
		t.Fatalf("expected a single steward:action:ack, got %+v", ack)
	}
	ackPayload, ok := ack[0].Payload.(StewardActionAckPayload)
	if !ok || !ackPayload.Success {
		t.Fatalf("expected a success ack, got %+v", ack[0].Payload)
	}

	decisionEvents := viewer.received()
	if len(decisionEvents) != 1 || decisionEvents[0].Event != "steward:decision" {
		t.Fatalf("expected the room to receive steward:decision, got %+v", decisionEvents)
	}
}

func TestHandleStewardActionUnknownSessionIsSilentlyIgnored(t *testing.T) {
	p, _, _, _ := newTestPipeline()
	steward := newFakeConn("steward-1")
	raw, _ := json.Marshal(map[string]interface{}{
		"sessionId":   "ghost",
		"incidentId":  "inc-1",
		"action":      "approve",
		"penaltyType": "time",
		"stewardId":   "st-1",
	})
	p.HandleEvent(steward, SurfaceWeb, "steward:action", raw)

	if len(steward.received()) != 0 {
		t.Fatalf("expected no ack for an unknown session, got %+v", steward.received())
	}
}
