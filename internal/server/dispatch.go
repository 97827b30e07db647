package server

import (
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/Tyrowin/roomrelay/internal/relay"
)

// handleFrame decodes one inbound frame and dispatches it. Every failure is
// reported to this session as an error event; none of them end the
// connection.
func (s *Session) handleFrame(raw []byte) {
	if !s.rateLimiter.allow() {
		s.logger.Warn("Rate limit exceeded; discarding event",
			"burst", s.manager.cfg.RateLimit.Burst, "interval", s.manager.cfg.RateLimit.RefillInterval)
		s.sendError(ErrRateLimited)
		return
	}

	var env Envelope
	if err := json.Unmarshal(raw, &env); err != nil || env.Event == "" {
		s.logger.Debug("Invalid frame", "error", err)
		s.sendError(ErrInvalidPayload)
		return
	}

	if err := s.dispatch(env); err != nil {
		s.logger.Debug("Event rejected", "event", env.Event, "error", err)
		s.sendError(err)
	}
}

func (s *Session) dispatch(env Envelope) error {
	switch env.Event {
	case EventCreateRoom:
		return s.handleCreateRoom()
	case EventJoinRoom:
		return s.handleJoinRoom(env.Data)
	case EventLeaveRoom:
		s.handleLeaveRoom()
		return nil
	case EventSendMessage:
		return s.handleSendMessage(env.Data)
	case EventSendFile:
		return s.handleSendFile(env.Data)
	default:
		return fmt.Errorf("%w: %s", ErrUnknownEvent, env.Event)
	}
}

func decodePayload(data json.RawMessage, v any) error {
	if len(data) == 0 {
		return fmt.Errorf("%w: missing data", ErrInvalidPayload)
	}
	if err := json.Unmarshal(data, v); err != nil {
		return fmt.Errorf("%w: %v", ErrInvalidPayload, err)
	}
	return nil
}

// handleCreateRoom leaves the current room, if any, and opens a new room
// owned by this session.
func (s *Session) handleCreateRoom() error {
	s.handleLeaveRoom()

	code, err := s.manager.registry.CreateRoom(s)
	if err != nil {
		return err
	}
	s.bind(code)
	s.manager.metrics.IncRoomCreated()

	s.sendEvent(EventRoomCreated, RoomCreatedPayload{RoomCode: code, RoomID: code})
	return nil
}

// handleJoinRoom moves this session into the named room. A session can be
// in one room only, so the current room is left first; rejoining the
// current room is acknowledged without leaving it.
func (s *Session) handleJoinRoom(data json.RawMessage) error {
	var req JoinRoomRequest
	if err := decodePayload(data, &req); err != nil {
		return err
	}

	code := relay.NormalizeCode(req.code())
	if !relay.ValidCode(code) {
		return relay.ErrRoomNotFound
	}

	if s.RoomCode() != code {
		s.handleLeaveRoom()
		// Bind first so a RoomClosed racing the join clears the binding.
		s.bind(code)
		if _, err := s.manager.registry.JoinRoom(code, s); err != nil {
			s.unbindIf(code)
			return err
		}
	}

	frame, err := encodeEvent(EventRoomJoined, RoomJoinedPayload{RoomCode: code})
	if err != nil {
		return err
	}
	if !s.deliverIfBound(code, frame) {
		s.logger.Debug("Join acknowledgement not delivered", "code", code)
	}
	return nil
}

// handleLeaveRoom leaves the bound room. When this session owns it the
// room is closed for everyone.
func (s *Session) handleLeaveRoom() {
	if code := s.unbind(); code != "" {
		s.manager.leave(s, code)
	}
}

// targetRoom picks the room a send addresses: the one named in the request
// or, when omitted, the session's own.
func (s *Session) targetRoom(roomID string) string {
	if code := relay.NormalizeCode(roomID); code != "" {
		return code
	}
	return s.RoomCode()
}

func (s *Session) handleSendMessage(data json.RawMessage) error {
	var req SendMessageRequest
	if err := decodePayload(data, &req); err != nil {
		return err
	}

	if strings.TrimSpace(req.Message.Text) == "" {
		return ErrEmptyMessage
	}

	msg := TextMessage{
		Sender: s.id,
		Text:   req.Message.Text,
		Time:   req.Message.Time,
	}
	if msg.Time == 0 {
		msg.Time = Timestamp(time.Now().UnixMilli())
	}

	frame, err := encodeEvent(EventReceiveMessage, msg)
	if err != nil {
		return err
	}

	sent, err := s.broadcast(s.targetRoom(req.RoomID), frame)
	if err != nil {
		return err
	}
	if sent {
		s.manager.metrics.IncMessage()
	}
	return nil
}

func (s *Session) handleSendFile(data json.RawMessage) error {
	var req SendFileRequest
	if err := decodePayload(data, &req); err != nil {
		return err
	}

	file, err := prepareFile(s.id, req.File)
	if err != nil {
		return err
	}

	frame, err := encodeEvent(EventReceiveFile, file)
	if err != nil {
		return err
	}

	sent, err := s.broadcast(s.targetRoom(req.RoomID), frame)
	if err != nil {
		return err
	}
	if sent {
		s.manager.metrics.IncFile()
		s.logger.Info("File relayed", "name", file.Name, "type", file.Type)
	}
	return nil
}

// broadcast fans frame out to the room and reports whether it was sent.
// A room that is already gone makes the send a silent no-op.
func (s *Session) broadcast(code string, frame []byte) (bool, error) {
	delivered, err := s.manager.registry.Broadcast(code, s.id, frame)
	if errors.Is(err, relay.ErrRoomNotFound) {
		s.logger.Debug("Dropping send to closed room", "code", code)
		return false, nil
	}
	if err != nil {
		return false, err
	}
	s.logger.Debug("Broadcast delivered", "code", code, "recipients", delivered)
	return true, nil
}
