package hub

import (
	"encoding/json"
	"time"

	"github.com/SingSongScreamAlong/ProjectBlackBox-sub003/pkg/validation"
)

// handleRelayRegister implements relay:register (spec §4.9): registers the
// sending connection as the session's producer and immediately sends the
// current viewer count so it can calibrate its capture rate.
func (p *Pipeline) handleRelayRegister(conn Subscriber, raw json.RawMessage) {
	var payload validation.RelayRegisterPayload
	if err := json.Unmarshal(raw, &payload); err != nil {
		return
	}
	if err := p.Validator.Validate(payload); err != nil {
		return
	}

	p.Store.UpsertImplicit(payload.SessionID)
	p.Store.SetProducer(payload.SessionID, conn.ID())

	total := p.Viewers.Total(payload.SessionID)
	conn.Emit("relay:viewers", RelayViewersPayload{
		Type:            "relay:viewers",
		SessionID:       payload.SessionID,
		ViewerCount:     total,
		RequestControls: total >= 1,
	}, false)
}

// handleBroadcastDelay implements broadcast:delay (spec §4.9): clamps and
// stores the delay, then echoes it to every subscriber of the room so they
// know they are watching a delayed stream. This event is never delayed.
func (p *Pipeline) handleBroadcastDelay(conn Subscriber, raw json.RawMessage) {
	var payload validation.BroadcastDelayPayload
	if err := json.Unmarshal(raw, &payload); err != nil {
		return
	}
	if err := p.Validator.Validate(payload); err != nil {
		return
	}

	ms, ok := p.Store.SetDelay(payload.SessionID, payload.DelayMs)
	if !ok {
		// UnknownSessionControl: the session may have just been reaped;
		// silently ignored (spec §7).
		return
	}
	p.Rooms.Broadcast("session:"+payload.SessionID, "broadcast:delay", BroadcastDelayEchoPayload{DelayMs: ms}, false)
}

// handleStewardAction implements steward:action (spec §4.9).
func (p *Pipeline) handleStewardAction(conn Subscriber, raw json.RawMessage) {
	var payload validation.StewardActionPayload
	if err := json.Unmarshal(raw, &payload); err != nil {
		p.ack(conn, "steward:action", err)
		return
	}
	if err := p.Validator.Validate(payload); err != nil {
		errMsg := err.Error()
		conn.Emit("steward:action:ack", StewardActionAckPayload{Success: false, Error: &errMsg}, false)
		return
	}

	if p.Store.Get(payload.SessionID) == nil {
		// UnknownSessionControl (spec §7): no ack mutation, silently ignored.
		return
	}

	decision := StewardDecisionPayload{
		IncidentID:   payload.IncidentID,
		Action:       payload.Action,
		PenaltyType:  payload.PenaltyType,
		PenaltyValue: payload.PenaltyValue,
		Notes:        payload.Notes,
		StewardID:    payload.StewardID,
		DecidedAt:    time.Now().UTC().Format(time.RFC3339),
	}
	p.Rooms.Broadcast("session:"+payload.SessionID, "steward:decision", decision, false)

	incidentID := payload.IncidentID
	action := payload.Action
	conn.Emit("steward:action:ack", StewardActionAckPayload{
		Success:    true,
		IncidentID: &incidentID,
		Action:     &action,
	}, false)
}
