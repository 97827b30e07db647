package relay

import (
	"log/slog"
	"sort"
	"sync"
)

// DefaultMaxAttempts bounds how many candidate codes CreateRoom tries
// before giving up with ErrCapacityExhausted.
const DefaultMaxAttempts = 10

// Registry is the authoritative map of open rooms. Structural changes to
// the map are serialized by the registry mutex; membership changes and
// fan-out are serialized per room, so unrelated rooms never contend.
//
// Lock order: the registry mutex and a room mutex are never held together.
type Registry struct {
	mutex       sync.RWMutex
	rooms       map[string]*Room
	codes       CodeSource
	maxAttempts int
	logger      *slog.Logger
}

// NewRegistry creates an empty registry drawing room codes from codes.
func NewRegistry(codes CodeSource, logger *slog.Logger) *Registry {
	if logger == nil {
		logger = slog.Default()
	}
	return &Registry{
		rooms:       make(map[string]*Room),
		codes:       codes,
		maxAttempts: DefaultMaxAttempts,
		logger:      logger,
	}
}

// SetMaxAttempts overrides the collision retry budget of CreateRoom.
func (r *Registry) SetMaxAttempts(n int) {
	if n <= 0 {
		n = 1
	}
	r.mutex.Lock()
	r.maxAttempts = n
	r.mutex.Unlock()
}

// CreateRoom allocates a fresh code, opens a room owned by owner and
// returns the code. The owner is the room's first member.
func (r *Registry) CreateRoom(owner Member) (string, error) {
	r.mutex.Lock()
	defer r.mutex.Unlock()

	for attempt := 0; attempt < r.maxAttempts; attempt++ {
		code := NormalizeCode(r.codes.Generate())
		if !ValidCode(code) {
			continue
		}
		if _, taken := r.rooms[code]; taken {
			r.logger.Debug("Room code collision, regenerating", "code", code, "attempt", attempt+1)
			continue
		}
		r.rooms[code] = newRoom(code, owner)
		r.logger.Info("Room created", "code", code, "owner", owner.ID(), "open_rooms", len(r.rooms))
		return code, nil
	}

	r.logger.Error("Room code space exhausted", "attempts", r.maxAttempts, "open_rooms", len(r.rooms))
	return "", ErrCapacityExhausted
}

// JoinRoom adds m to the open room named by code, which is matched
// case-insensitively. It returns the normalized code. Joining a room the
// member already belongs to is a no-op.
func (r *Registry) JoinRoom(code string, m Member) (string, error) {
	code = NormalizeCode(code)
	room := r.lookup(code)
	if room == nil {
		return code, ErrRoomNotFound
	}
	// The room may have closed after lookup; add refuses closed rooms.
	if err := room.add(m); err != nil {
		return code, err
	}
	r.logger.Info("Session joined room", "code", code, "session", m.ID())
	return code, nil
}

// Leave removes sessionID from the room named by code. If the session owns
// the room, the room is closed: every remaining member is removed and told
// via RoomClosed, and the code is released. Leave reports whether it closed
// the room. Leaving a room twice, or a room that no longer exists, is a no-op.
func (r *Registry) Leave(code, sessionID string) bool {
	code = NormalizeCode(code)
	room := r.lookup(code)
	if room == nil {
		return false
	}

	evicted, closed, removed := room.remove(sessionID)
	if !removed {
		return false
	}
	if !closed {
		r.logger.Info("Session left room", "code", code, "session", sessionID)
		return false
	}

	r.mutex.Lock()
	if r.rooms[code] == room {
		delete(r.rooms, code)
	}
	open := len(r.rooms)
	r.mutex.Unlock()

	r.logger.Info("Room closed by owner", "code", code, "owner", sessionID, "evicted", len(evicted), "open_rooms", open)
	for _, m := range evicted {
		m.RoomClosed(code)
	}
	return true
}

// Broadcast delivers payload to every member of the room, the sender
// included, and returns how many members accepted it. It fails with
// ErrRoomNotFound when the room is gone and ErrNotMember when from has not
// joined it.
func (r *Registry) Broadcast(code, from string, payload []byte) (int, error) {
	room := r.lookup(NormalizeCode(code))
	if room == nil {
		return 0, ErrRoomNotFound
	}
	return room.broadcast(from, payload)
}

// Exists reports whether code names an open room.
func (r *Registry) Exists(code string) bool {
	room := r.lookup(NormalizeCode(code))
	return room != nil && room.isOpen()
}

// OpenRooms returns the number of rooms in the registry.
func (r *Registry) OpenRooms() int {
	r.mutex.RLock()
	defer r.mutex.RUnlock()
	return len(r.rooms)
}

// Members returns the sorted session ids of the room's members, or nil
// when the room does not exist.
func (r *Registry) Members(code string) []string {
	room := r.lookup(NormalizeCode(code))
	if room == nil {
		return nil
	}
	ids := room.memberIDs()
	sort.Strings(ids)
	return ids
}

// Owner returns the owner session id of an open room.
func (r *Registry) Owner(code string) (string, bool) {
	room := r.lookup(NormalizeCode(code))
	if room == nil || !room.isOpen() {
		return "", false
	}
	return room.Owner(), true
}

func (r *Registry) lookup(code string) *Room {
	r.mutex.RLock()
	defer r.mutex.RUnlock()
	return r.rooms[code]
}
