package server

import (
	"errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/Tyrowin/roomrelay/internal/relay"
)

func TestUserMessage(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want string
	}{
		{name: "room not found", err: relay.ErrRoomNotFound, want: "Room not found"},
		{name: "wrapped room not found", err: fmt.Errorf("join: %w", relay.ErrRoomNotFound), want: "Room not found"},
		{name: "capacity", err: relay.ErrCapacityExhausted, want: "Unable to create a room right now, please try again"},
		{name: "not a member", err: relay.ErrNotMember, want: "You are not a member of this room"},
		{name: "oversized file", err: fmt.Errorf("%w: 6000000 bytes", ErrOversizedPayload), want: "File must be under 5MB"},
		{name: "empty message", err: ErrEmptyMessage, want: "Message must not be empty"},
		{name: "rate limited", err: ErrRateLimited, want: "You're sending messages too quickly. Please wait a moment and try again."},
		{name: "unknown event", err: fmt.Errorf("%w: dance", ErrUnknownEvent), want: "unknown event: dance"},
		{name: "invalid payload", err: fmt.Errorf("%w: missing data", ErrInvalidPayload), want: "Invalid message format"},
		{name: "anything else", err: errors.New("disk on fire"), want: "Internal server error"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, userMessage(tt.err))
		})
	}
}
