package hub

import "testing"

func TestRoomsJoinLeaveSymmetry(t *testing.T) {
	r := NewRooms()
	c := newFakeConn("conn-1")

	r.Join(c, "session:abc")
	if r.Size("session:abc") != 1 {
		t.Fatalf("expected 1 member, got %d", r.Size("session:abc"))
	}
	if got := r.JoinedRooms("conn-1"); len(got) != 1 || got[0] != "session:abc" {
		t.Fatalf("unexpected joined rooms: %v", got)
	}

	r.Leave(c, "session:abc")
	if r.Size("session:abc") != 0 {
		t.Fatalf("expected 0 members after leave, got %d", r.Size("session:abc"))
	}
	if got := r.JoinedRooms("conn-1"); len(got) != 0 {
		t.Fatalf("expected no joined rooms after leave, got %v", got)
	}
}

func TestRoomsJoinIsIdempotent(t *testing.T) {
	r := NewRooms()
	c := newFakeConn("conn-1")
	r.Join(c, "session:abc")
	r.Join(c, "session:abc")
	if r.Size("session:abc") != 1 {
		t.Fatalf("expected idempotent join to leave 1 member, got %d", r.Size("session:abc"))
	}
}

func TestRoomsHandleDisconnectRemovesAllMemberships(t *testing.T) {
	r := NewRooms()
	c := newFakeConn("conn-1")
	r.Join(c, "session:a")
	r.Join(c, "session:b")

	r.HandleDisconnect("conn-1")

	if r.Size("session:a") != 0 || r.Size("session:b") != 0 {
		t.Fatalf("expected disconnect to clear all rooms")
	}
	if got := r.JoinedRooms("conn-1"); len(got) != 0 {
		t.Fatalf("expected no joined rooms after disconnect, got %v", got)
	}
}

func TestRoomsBroadcastCountsSentAndDropped(t *testing.T) {
	r := NewRooms()
	ok := newFakeConn("ok")
	full := newFakeConn("full")
	full.queueCap = 1
	full.Emit("prefill", nil, true) // saturate the fake queue

	r.Join(ok, "session:abc")
	r.Join(full, "session:abc")

	sent, dropped := r.Broadcast("session:abc", "timing:update", map[string]int{"x": 1}, true)
	if sent != 1 || dropped != 1 {
		t.Fatalf("expected 1 sent/1 dropped, got sent=%d dropped=%d", sent, dropped)
	}
	if names := ok.eventNames(); len(names) != 1 || names[0] != "timing:update" {
		t.Fatalf("expected ok connection to receive the event, got %v", names)
	}
}

func TestRoomsBroadcastToEmptyRoomIsNoop(t *testing.T) {
	r := NewRooms()
	sent, dropped := r.Broadcast("session:nobody", "timing:update", nil, true)
	if sent != 0 || dropped != 0 {
		t.Fatalf("expected no sends for empty room, got sent=%d dropped=%d", sent, dropped)
	}
}
