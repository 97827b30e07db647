// Package server defines the application protocol carried over each
// WebSocket connection and utility helpers shared by the session code.
package server

import (
	"encoding/json"
	"math"
	"strconv"
	"strings"
	"time"
)

// Inbound events.
const (
	EventCreateRoom  = "create_room"
	EventJoinRoom    = "join_room"
	EventLeaveRoom   = "leave_room"
	EventSendMessage = "send_message"
	EventSendFile    = "send_file"
)

// Outbound events.
const (
	EventConnected      = "connected"
	EventRoomCreated    = "room_created"
	EventRoomJoined     = "room_joined"
	EventReceiveMessage = "receive_message"
	EventReceiveFile    = "receive_file"
	EventRoomClosed     = "room_closed"
	EventError          = "error"
)

// Envelope is the JSON frame exchanged in both directions.
type Envelope struct {
	Event string          `json:"event"`
	Data  json.RawMessage `json:"data,omitempty"`
}

// ConnectedPayload tells a client its own session id.
type ConnectedPayload struct {
	SessionID string `json:"sessionId"`
}

// RoomCreatedPayload answers create_room. RoomID mirrors RoomCode for
// clients that read the older field name.
type RoomCreatedPayload struct {
	RoomCode string `json:"roomCode"`
	RoomID   string `json:"roomId"`
}

// RoomJoinedPayload acknowledges a successful join_room.
type RoomJoinedPayload struct {
	RoomCode string `json:"roomCode"`
}

// RoomClosedPayload names the room its owner closed.
type RoomClosedPayload struct {
	RoomCode string `json:"roomCode"`
}

// JoinRoomRequest is the join_room payload. Either field may carry the code.
type JoinRoomRequest struct {
	RoomID   string `json:"roomId"`
	RoomCode string `json:"roomCode,omitempty"`
}

func (r JoinRoomRequest) code() string {
	if r.RoomID != "" {
		return r.RoomID
	}
	return r.RoomCode
}

// TextMessage is a chat line.
type TextMessage struct {
	Sender string    `json:"sender"`
	Text   string    `json:"text"`
	Time   Timestamp `json:"time"`
}

// Timestamp is a unix time in milliseconds. It decodes from integers,
// fractional numbers, numeric strings and RFC 3339 strings. Any other value
// decodes to zero, which the relay replaces with its own clock.
type Timestamp int64

// UnmarshalJSON implements json.Unmarshaler. It never fails, so a bad time
// does not reject the message it belongs to.
func (ts *Timestamp) UnmarshalJSON(data []byte) error {
	*ts = 0

	raw := strings.TrimSpace(string(data))
	if unquoted, err := strconv.Unquote(raw); err == nil {
		raw = strings.TrimSpace(unquoted)
	}

	if f, err := strconv.ParseFloat(raw, 64); err == nil {
		if !math.IsNaN(f) && f >= math.MinInt64 && f < math.MaxInt64 {
			*ts = Timestamp(int64(f))
		}
		return nil
	}

	if t, err := time.Parse(time.RFC3339Nano, raw); err == nil {
		*ts = Timestamp(t.UnixMilli())
	}
	return nil
}

// SendMessageRequest is the send_message payload.
type SendMessageRequest struct {
	RoomID  string      `json:"roomId"`
	Message TextMessage `json:"message"`
}

// FileMessage is a file attachment as sent by a client. Data is a base64
// data URI and Size the client's claimed size in bytes.
type FileMessage struct {
	Sender string `json:"sender"`
	Name   string `json:"name"`
	Type   string `json:"type"`
	Size   int64  `json:"size"`
	Data   string `json:"data"`
}

// SendFileRequest is the send_file payload.
type SendFileRequest struct {
	RoomID string      `json:"roomId"`
	File   FileMessage `json:"file"`
}

// FileBroadcast is the receive_file payload relayed to room members.
type FileBroadcast struct {
	Sender string `json:"sender"`
	Name   string `json:"name"`
	Type   string `json:"type"`
	Data   string `json:"data"`
}

// encodeEvent builds an outbound frame. A nil payload omits the data field.
func encodeEvent(event string, payload any) ([]byte, error) {
	env := Envelope{Event: event}
	if payload != nil {
		data, err := json.Marshal(payload)
		if err != nil {
			return nil, err
		}
		env.Data = data
	}
	return json.Marshal(env)
}

// isExpectedCloseError checks if an error is expected during connection closure.
func isExpectedCloseError(err error) bool {
	if err == nil {
		return true
	}
	errStr := err.Error()
	return strings.Contains(errStr, "use of closed network connection") ||
		strings.Contains(errStr, "websocket: close sent") ||
		strings.Contains(errStr, "broken pipe")
}
