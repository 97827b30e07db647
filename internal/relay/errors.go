package relay

import "errors"

var (
	// ErrRoomNotFound is returned when a code does not name an open room.
	// A room that closes between lookup and mutation is reported the same way.
	ErrRoomNotFound = errors.New("room not found")

	// ErrCapacityExhausted is returned when no free room code was found
	// within the retry budget.
	ErrCapacityExhausted = errors.New("room code space exhausted")

	// ErrNotMember is returned when a session broadcasts to a room it has
	// not joined.
	ErrNotMember = errors.New("session is not a member of the room")
)
