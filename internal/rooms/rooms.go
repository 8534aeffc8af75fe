// Package rooms tracks relay-side room membership.
//
// The registry is the single authority on who is in which room; clients only
// ever learn membership through the events the relay derives from it.
package rooms

import "sync"

// Departure describes the room a connection was removed from and the members
// remaining in it. Remaining is nil when the room was destroyed.
type Departure struct {
	Room      string
	Remaining []string
}

// Registry maps room IDs to their ordered-by-join member lists.
//
// A connection is a member of at most one room; joining a second room
// implicitly removes it from the first. All mutation happens under a single
// lock, and every returned member list is a copy, so callers always observe a
// consistent snapshot.
type Registry struct {
	mu     sync.Mutex
	rooms  map[string][]string // roomID -> member connection IDs, join order
	byConn map[string]string   // connID -> roomID
}

func NewRegistry() *Registry {
	return &Registry{
		rooms:  make(map[string][]string),
		byConn: make(map[string]string),
	}
}

// Join adds connID to roomID, creating the room if absent. It returns the
// other members present at join time (in join order) and, when the join
// implicitly removed connID from a previous room, a Departure for that room.
//
// Joining the room the connection is already in is a no-op reporting the
// current other members.
func (r *Registry) Join(connID, roomID string) (others []string, left *Departure) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if prev, ok := r.byConn[connID]; ok {
		if prev == roomID {
			return r.othersLocked(roomID, connID), nil
		}
		left = r.removeLocked(connID, prev)
	}

	others = r.othersLocked(roomID, connID)
	r.rooms[roomID] = append(r.rooms[roomID], connID)
	r.byConn[connID] = roomID
	return others, left
}

// Leave removes connID from its room, destroying the room if it became
// empty. It is idempotent: leaving while not in any room returns nil.
func (r *Registry) Leave(connID string) *Departure {
	r.mu.Lock()
	defer r.mu.Unlock()

	roomID, ok := r.byConn[connID]
	if !ok {
		return nil
	}
	return r.removeLocked(connID, roomID)
}

// Members returns a snapshot of the room's member list in join order.
func (r *Registry) Members(roomID string) ([]string, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()

	members, ok := r.rooms[roomID]
	if !ok {
		return nil, false
	}
	out := make([]string, len(members))
	copy(out, members)
	return out, true
}

// IsMember reports whether connID is currently in roomID.
func (r *Registry) IsMember(roomID, connID string) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.byConn[connID] == roomID
}

// RoomOf returns the room connID is currently in, if any.
func (r *Registry) RoomOf(connID string) (string, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	roomID, ok := r.byConn[connID]
	return roomID, ok
}

// ActiveRooms returns the number of rooms that currently have members.
func (r *Registry) ActiveRooms() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.rooms)
}

func (r *Registry) othersLocked(roomID, connID string) []string {
	members := r.rooms[roomID]
	others := make([]string, 0, len(members))
	for _, id := range members {
		if id != connID {
			others = append(others, id)
		}
	}
	return others
}

func (r *Registry) removeLocked(connID, roomID string) *Departure {
	members := r.rooms[roomID]
	remaining := make([]string, 0, len(members))
	for _, id := range members {
		if id != connID {
			remaining = append(remaining, id)
		}
	}
	delete(r.byConn, connID)

	if len(remaining) == 0 {
		delete(r.rooms, roomID)
		return &Departure{Room: roomID}
	}
	r.rooms[roomID] = remaining
	return &Departure{Room: roomID, Remaining: remaining}
}
