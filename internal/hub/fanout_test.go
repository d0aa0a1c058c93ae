package hub

import (
	"testing"
	"time"
)

func TestFanoutDispatchImmediateWithoutDelay(t *testing.T) {
	rooms := NewRooms()
	store := NewStore()
	store.UpsertImplicit("s1")

	conn := newFakeConn("conn-1")
	rooms.Join(conn, "session:s1")

	f := NewFanout(rooms, store)
	scheduler := NewDelayScheduler(f)
	f.SetScheduler(scheduler)
	defer scheduler.Stop()

	f.Dispatch("s1", "timing:update", "payload", true)

	if names := conn.eventNames(); len(names) != 1 || names[0] != "timing:update" {
		t.Fatalf("expected immediate delivery, got %v", names)
	}
	counters := f.Counters("s1")
	if counters.Emitted != 1 || counters.Dropped != 0 {
		t.Fatalf("expected emitted=1 dropped=0, got %+v", counters)
	}
}

func TestFanoutDispatchHonorsSessionDelay(t *testing.T) {
	rooms := NewRooms()
	store := NewStore()
	store.UpsertImplicit("s1")
	store.SetDelay("s1", 40)

	conn := newFakeConn("conn-1")
	rooms.Join(conn, "session:s1")

	f := NewFanout(rooms, store)
	scheduler := NewDelayScheduler(f)
	f.SetScheduler(scheduler)
	defer scheduler.Stop()

	f.Dispatch("s1", "timing:update", "payload", true)

	if names := conn.eventNames(); len(names) != 0 {
		t.Fatalf("expected delayed delivery to not arrive immediately, got %v", names)
	}

	deadline := time.Now().Add(500 * time.Millisecond)
	for len(conn.eventNames()) == 0 && time.Now().Before(deadline) {
		time.Sleep(5 * time.Millisecond)
	}
	if names := conn.eventNames(); len(names) != 1 {
		t.Fatalf("expected event to arrive after the delay elapses, got %v", names)
	}
}

func TestFanoutNonDelayableEventBypassesDelay(t *testing.T) {
	rooms := NewRooms()
	store := NewStore()
	store.UpsertImplicit("s1")
	store.SetDelay("s1", 5000)

	conn := newFakeConn("conn-1")
	rooms.Join(conn, "session:s1")

	f := NewFanout(rooms, store)
	scheduler := NewDelayScheduler(f)
	f.SetScheduler(scheduler)
	defer scheduler.Stop()

	f.Dispatch("s1", "session:active", "payload", false)

	if names := conn.eventNames(); len(names) != 1 {
		t.Fatalf("expected session:active to bypass the session delay, got %v", names)
	}
}

func TestFanoutDeliverIgnoresReapedSession(t *testing.T) {
	rooms := NewRooms()
	store := NewStore()
	conn := newFakeConn("conn-1")
	rooms.Join(conn, "session:reaped")

	f := NewFanout(rooms, store)
	f.Deliver(&DelayedDelivery{SessionID: "reaped", Room: "session:reaped", Event: "timing:update"})

	if names := conn.eventNames(); len(names) != 0 {
		t.Fatalf("expected a delivery for a session absent from the store to be dropped, got %v", names)
	}
}
