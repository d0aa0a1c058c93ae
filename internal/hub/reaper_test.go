package hub

import (
	"testing"
	"time"

	"github.com/SingSongScreamAlong/ProjectBlackBox-sub003/pkg/logging"
)

func newTestReaper(store *Store, delay *DelayScheduler) *Reaper {
	return NewReaper(store, delay, logging.NewLogger(), time.Second, 50*time.Millisecond)
}

func TestReaperSweepRemovesOnlyStaleSessions(t *testing.T) {
	store := NewStore()
	store.UpsertImplicit("fresh")
	store.UpsertImplicit("stale")

	stale := store.Get("stale")
	stale.mu.Lock()
	stale.LastUpdateAt = time.Now().Add(-time.Hour)
	stale.mu.Unlock()

	rooms := NewRooms()
	fanout := NewFanout(rooms, store)
	scheduler := NewDelayScheduler(fanout)
	defer scheduler.Stop()

	r := newTestReaper(store, scheduler)
	r.sweep()

	if store.Get("stale") != nil {
		t.Fatal("expected the stale session to be reaped")
	}
	if store.Get("fresh") == nil {
		t.Fatal("expected the fresh session to survive the sweep")
	}
}

func TestReaperSweepCancelsPendingDeliveriesForReapedSessions(t *testing.T) {
	store := NewStore()
	store.UpsertImplicit("stale")
	stale := store.Get("stale")
	stale.mu.Lock()
	stale.LastUpdateAt = time.Now().Add(-time.Hour)
	stale.mu.Unlock()

	rooms := NewRooms()
	conn := newFakeConn("conn-1")
	rooms.Join(conn, "session:stale")

	fanout := NewFanout(rooms, store)
	scheduler := NewDelayScheduler(fanout)
	fanout.SetScheduler(scheduler)
	defer scheduler.Stop()

	scheduler.Schedule("stale", "session:stale", "timing:update", "payload", true, 30*time.Millisecond)

	r := newTestReaper(store, scheduler)
	r.sweep()

	time.Sleep(80 * time.Millisecond)
	if len(conn.received()) != 0 {
		t.Fatalf("expected the pending delivery to be canceled by the sweep, got %+v", conn.received())
	}
}

func TestReaperLastSweepAdvancesAfterEachSweep(t *testing.T) {
	store := NewStore()
	rooms := NewRooms()
	fanout := NewFanout(rooms, store)
	scheduler := NewDelayScheduler(fanout)
	defer scheduler.Stop()

	r := newTestReaper(store, scheduler)
	before := r.LastSweep()
	time.Sleep(5 * time.Millisecond)
	r.sweep()
	after := r.LastSweep()

	if !after.After(before) {
		t.Fatalf("expected LastSweep to advance, before=%v after=%v", before, after)
	}
}
