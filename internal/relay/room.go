package relay

import "sync"

// Member is a live session that can be placed in a room. Implementations
// must not block in Deliver and must not call back into the Registry from
// Deliver, since it runs with the room lock held.
type Member interface {
	// ID returns the session identifier.
	ID() string
	// Deliver enqueues an encoded payload and reports whether it was accepted.
	Deliver(payload []byte) bool
	// RoomClosed tells an evicted member that the room with code was closed
	// by its owner. Called at most once per member per room, without locks held.
	RoomClosed(code string)
}

// Room is a single chat: an immutable code, the owning session and the set
// of sessions currently joined. The owner is always a member while the
// room is open.
type Room struct {
	code  string
	owner string

	mu      sync.Mutex
	members map[string]Member
	closed  bool
}

func newRoom(code string, owner Member) *Room {
	return &Room{
		code:    code,
		owner:   owner.ID(),
		members: map[string]Member{owner.ID(): owner},
	}
}

// Code returns the room code.
func (r *Room) Code() string {
	return r.code
}

// Owner returns the session id of the room owner.
func (r *Room) Owner() string {
	return r.owner
}

// Size returns the current member count. A closed room has no members.
func (r *Room) Size() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.members)
}

func (r *Room) isOpen() bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	return !r.closed
}

// add joins m to the room. A closed room is never resurrected.
func (r *Room) add(m Member) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.closed {
		return ErrRoomNotFound
	}
	r.members[m.ID()] = m
	return nil
}

// remove drops id from the room. When id is the owner the room is closed
// and the remaining members are returned for notification.
func (r *Room) remove(id string) (evicted []Member, closed bool, removed bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.closed {
		return nil, false, false
	}
	if _, ok := r.members[id]; !ok {
		return nil, false, false
	}
	delete(r.members, id)
	if id != r.owner {
		return nil, false, true
	}

	r.closed = true
	evicted = make([]Member, 0, len(r.members))
	for _, m := range r.members {
		evicted = append(evicted, m)
	}
	r.members = nil
	return evicted, true, true
}

// broadcast delivers payload to every member, the sender included.
func (r *Room) broadcast(from string, payload []byte) (int, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.closed {
		return 0, ErrRoomNotFound
	}
	if _, ok := r.members[from]; !ok {
		return 0, ErrNotMember
	}

	delivered := 0
	for _, m := range r.members {
		if m.Deliver(payload) {
			delivered++
		}
	}
	return delivered, nil
}

func (r *Room) memberIDs() []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	ids := make([]string, 0, len(r.members))
	for id := range r.members {
		ids = append(ids, id)
	}
	return ids
}
