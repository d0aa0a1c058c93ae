package hub

import (
	"encoding/json"
	"time"

	"github.com/SingSongScreamAlong/ProjectBlackBox-sub003/pkg/validation"
)

// activeWindow bounds the new-connection catch-up sweep (spec §4.10).
const activeWindow = 30 * time.Second

// handleRoomJoin implements Session Query's room:join flow (spec §4.10):
// join the room and viewer tracker, send a state snapshot if the session
// exists, then acknowledge.
func (p *Pipeline) handleRoomJoin(conn Subscriber, surface Surface, raw json.RawMessage) {
	var payload validation.RoomPayload
	if err := json.Unmarshal(raw, &payload); err != nil {
		return
	}
	if err := p.Validator.Validate(payload); err != nil {
		return
	}

	p.Rooms.Join(conn, "session:"+payload.SessionID)
	p.Viewers.Joined(conn.ID(), payload.SessionID, surface)

	if s := p.Store.Get(payload.SessionID); s != nil {
		trackName, sessionType, delayMs := s.Snapshot()
		conn.Emit("session:state", SessionStatePayload{
			SessionID:   payload.SessionID,
			TrackName:   trackName,
			SessionType: sessionType,
			Status:      "active",
		}, false)
		conn.Emit("broadcast:delay", BroadcastDelayEchoPayload{DelayMs: delayMs}, false)
	}

	conn.Emit("room:joined", RoomJoinedPayload{SessionID: payload.SessionID}, false)
}

// handleRoomLeave implements room:leave.
func (p *Pipeline) handleRoomLeave(conn Subscriber, raw json.RawMessage) {
	var payload validation.RoomPayload
	if err := json.Unmarshal(raw, &payload); err != nil {
		return
	}
	if err := p.Validator.Validate(payload); err != nil {
		return
	}
	p.Rooms.Leave(conn, "session:"+payload.SessionID)
	p.Viewers.Left(conn.ID(), payload.SessionID)
}

// OnConnect implements the new-transport-connection catch-up sweep (spec
// §4.10): before any join, emit one session:active per session active
// within the last 30s.
func (p *Pipeline) OnConnect(conn Subscriber) {
	for _, s := range p.Store.ActiveSince(activeWindow) {
		trackName, sessionType, _ := s.Snapshot()
		conn.Emit("session:active", SessionActivePayload{
			SessionID:   s.SessionID,
			TrackName:   trackName,
			SessionType: sessionType,
		}, false)
	}
}

// OnDisconnect implements the Transport's single onClose handling for the
// hub domain (spec §4.1, §4.3): leave every room and viewer-tracker
// membership the connection held.
func (p *Pipeline) OnDisconnect(connID string) {
	p.Rooms.HandleDisconnect(connID)
	p.Viewers.HandleDisconnect(connID)
}
