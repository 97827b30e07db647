package server

import (
	"errors"

	"github.com/Tyrowin/roomrelay/internal/relay"
)

var (
	// ErrOversizedPayload is returned for a file above MaxFileSize.
	ErrOversizedPayload = errors.New("file exceeds maximum size")

	// ErrEmptyMessage is returned for a text message that is blank after trimming.
	ErrEmptyMessage = errors.New("message text is empty")

	// ErrInvalidPayload is returned for frames or payloads that cannot be decoded.
	ErrInvalidPayload = errors.New("invalid payload")

	// ErrRateLimited is returned when a session exceeds its event budget.
	ErrRateLimited = errors.New("rate limit exceeded")

	// ErrUnknownEvent is returned for an event name the relay does not handle.
	ErrUnknownEvent = errors.New("unknown event")
)

// userMessage maps an error to the text sent to the client in an error event.
func userMessage(err error) string {
	switch {
	case errors.Is(err, relay.ErrRoomNotFound):
		return "Room not found"
	case errors.Is(err, relay.ErrCapacityExhausted):
		return "Unable to create a room right now, please try again"
	case errors.Is(err, relay.ErrNotMember):
		return "You are not a member of this room"
	case errors.Is(err, ErrOversizedPayload):
		return "File must be under 5MB"
	case errors.Is(err, ErrEmptyMessage):
		return "Message must not be empty"
	case errors.Is(err, ErrRateLimited):
		return "You're sending messages too quickly. Please wait a moment and try again."
	case errors.Is(err, ErrUnknownEvent):
		return err.Error()
	case errors.Is(err, ErrInvalidPayload):
		return "Invalid message format"
	default:
		return "Internal server error"
	}
}
