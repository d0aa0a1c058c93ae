package hub

import (
	"sync"
)

// Rooms is the Room Registry (C2): room -> set of subscribers and the
// inverse subscriber -> set of rooms. One registry-wide mutex guards every
// room; there is no per-room lock, so a mutation of one room waits on work
// in any other. Broadcast snapshots members under that mutex and then emits
// outside it so a slow subscriber never blocks registry mutation (spec §5).
type Rooms struct {
	mu      sync.RWMutex
	members map[string]map[string]Subscriber // room -> connID -> Subscriber
	joined  map[string]map[string]bool       // connID -> set<room>
}

// NewRooms builds an empty room registry.
func NewRooms() *Rooms {
	return &Rooms{
		members: make(map[string]map[string]Subscriber),
		joined:  make(map[string]map[string]bool),
	}
}

// Join adds conn to room. Idempotent.
func (r *Rooms) Join(conn Subscriber, room string) {
	r.mu.Lock()
	defer r.mu.Unlock()

	set, ok := r.members[room]
	if !ok {
		set = make(map[string]Subscriber)
		r.members[room] = set
	}
	set[conn.ID()] = conn

	rooms, ok := r.joined[conn.ID()]
	if !ok {
		rooms = make(map[string]bool)
		r.joined[conn.ID()] = rooms
	}
	rooms[room] = true
}

// Leave removes conn from room. Idempotent.
func (r *Rooms) Leave(conn Subscriber, room string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.leaveLocked(conn.ID(), room)
}

func (r *Rooms) leaveLocked(connID, room string) {
	if set, ok := r.members[room]; ok {
		delete(set, connID)
		if len(set) == 0 {
			delete(r.members, room)
		}
	}
	if rooms, ok := r.joined[connID]; ok {
		delete(rooms, room)
		if len(rooms) == 0 {
			delete(r.joined, connID)
		}
	}
}

// HandleDisconnect removes a connection from every room it had joined,
// keeping both directions of the registry symmetric (spec §8 property 1).
func (r *Rooms) HandleDisconnect(connID string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	rooms, ok := r.joined[connID]
	if !ok {
		return
	}
	for room := range rooms {
		if set, ok := r.members[room]; ok {
			delete(set, connID)
			if len(set) == 0 {
				delete(r.members, room)
			}
		}
	}
	delete(r.joined, connID)
}

// Size returns the number of subscribers currently in room.
func (r *Rooms) Size(room string) int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.members[room])
}

// JoinedRooms returns the rooms a connection currently belongs to, used for
// symmetry tests.
func (r *Rooms) JoinedRooms(connID string) []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]string, 0, len(r.joined[connID]))
	for room := range r.joined[connID] {
		out = append(out, room)
	}
	return out
}

// Broadcast sends event/payload to every member of room with the given
// volatility flag. Members are snapshotted under the read lock; emits
// happen outside it (spec §4.2, §5).
func (r *Rooms) Broadcast(room, event string, payload interface{}, volatile bool) (sent, dropped int) {
	r.mu.RLock()
	set := r.members[room]
	snapshot := make([]Subscriber, 0, len(set))
	for _, sub := range set {
		snapshot = append(snapshot, sub)
	}
	r.mu.RUnlock()

	for _, sub := range snapshot {
		if err := sub.Emit(event, payload, volatile); err != nil {
			dropped++
			continue
		}
		sent++
	}
	return sent, dropped
}
