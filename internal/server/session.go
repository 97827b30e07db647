// Package server manages individual WebSocket sessions, handling read/write
// pumps, rate limiting, and lifecycle control for each connection.
package server

import (
	"errors"
	"io"
	"log/slog"
	"sync"
	"time"

	"github.com/gorilla/websocket"
)

const (
	writeWait  = 10 * time.Second
	pongWait   = 60 * time.Second
	pingPeriod = (pongWait * 9) / 10
)

// Session is one live WebSocket connection and the unit of room membership.
// It implements relay.Member.
type Session struct {
	id             string
	conn           *websocket.Conn
	send           chan []byte
	manager        *SessionManager
	addr           string
	logger         *slog.Logger
	maxMessageSize int64
	rateLimiter    *rateLimiter

	// mu guards the room binding and the send channel state.
	mu         sync.Mutex
	roomCode   string
	closed     bool
	overflowed bool

	cleanup sync.Once
}

func newSession(id string, conn *websocket.Conn, manager *SessionManager, addr string) *Session {
	cfg := manager.cfg
	if conn != nil {
		conn.SetReadLimit(cfg.MaxMessageSize)
	}

	return &Session{
		id:             id,
		conn:           conn,
		send:           make(chan []byte, cfg.SendBufferSize),
		manager:        manager,
		addr:           addr,
		logger:         manager.logger.With("session", id, "addr", addr),
		maxMessageSize: cfg.MaxMessageSize,
		rateLimiter:    newRateLimiter(cfg.RateLimit.Burst, cfg.RateLimit.RefillInterval),
	}
}

// ID returns the session id assigned when the connection was accepted.
func (s *Session) ID() string {
	return s.id
}

// RoomCode returns the room this session belongs to, or "" when none.
func (s *Session) RoomCode() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.roomCode
}

func (s *Session) bind(code string) {
	s.mu.Lock()
	s.roomCode = code
	s.mu.Unlock()
}

// unbind clears the binding and returns the code that was bound.
func (s *Session) unbind() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	code := s.roomCode
	s.roomCode = ""
	return code
}

// unbindIf clears the binding only while it still names code.
func (s *Session) unbindIf(code string) {
	s.mu.Lock()
	if s.roomCode == code {
		s.roomCode = ""
	}
	s.mu.Unlock()
}

// Deliver queues an outbound frame without blocking. A full queue marks the
// session as a slow consumer and drops its connection; the read pump then
// runs the normal disconnect cleanup.
func (s *Session) Deliver(payload []byte) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.deliverLocked(payload)
}

// deliverIfBound queues payload only while the session is bound to code.
// The check and the enqueue are atomic with respect to RoomClosed, so an
// acknowledgement never follows the room's closure.
func (s *Session) deliverIfBound(code string, payload []byte) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.roomCode != code {
		return false
	}
	return s.deliverLocked(payload)
}

func (s *Session) deliverLocked(payload []byte) bool {
	if s.closed || s.overflowed {
		return false
	}

	select {
	case s.send <- payload:
		return true
	default:
		s.overflowed = true
		s.logger.Warn("Send buffer full, disconnecting slow session", "buffer", cap(s.send))
		if s.conn != nil {
			_ = s.conn.Close()
		}
		return false
	}
}

// RoomClosed is called by the registry when the owner of code closed it.
func (s *Session) RoomClosed(code string) {
	s.unbindIf(code)

	s.logger.Info("Evicted from closed room", "code", code)
	s.sendEvent(EventRoomClosed, RoomClosedPayload{RoomCode: code})
}

func (s *Session) sendEvent(event string, payload any) bool {
	frame, err := encodeEvent(event, payload)
	if err != nil {
		s.logger.Error("Error encoding event", "event", event, "error", err)
		return false
	}
	return s.Deliver(frame)
}

// sendError reports err to this session only.
func (s *Session) sendError(err error) {
	s.manager.metrics.IncError()
	s.sendEvent(EventError, userMessage(err))
}

// closeSend closes the outbound queue exactly once.
func (s *Session) closeSend() {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return
	}
	s.closed = true
	close(s.send)
}

// disconnect leaves the bound room and unregisters the session. It runs at
// most once however many times the connection is torn down.
func (s *Session) disconnect() {
	s.cleanup.Do(func() {
		if code := s.unbind(); code != "" {
			s.manager.leave(s, code)
		}
		s.manager.unregisterSession(s)
	})
}

// setupReadConnection configures read deadlines and pong handler for the WebSocket connection
func (s *Session) setupReadConnection() {
	if err := s.conn.SetReadDeadline(time.Now().Add(pongWait)); err != nil {
		s.logger.Warn("Error setting initial read deadline", "error", err)
	}
	s.conn.SetPongHandler(func(string) error {
		if err := s.conn.SetReadDeadline(time.Now().Add(pongWait)); err != nil {
			s.logger.Warn("Error setting read deadline in pong handler", "error", err)
		}
		return nil
	})
}

// logReadError logs the reason a read loop ended at a level matching how
// expected the cause is.
func (s *Session) logReadError(err error) {
	switch {
	case errors.Is(err, websocket.ErrReadLimit):
		s.logger.Warn("Message exceeded maximum size", "limit", s.maxMessageSize)
	case websocket.IsCloseError(err,
		websocket.CloseNormalClosure,
		websocket.CloseGoingAway,
		websocket.CloseAbnormalClosure):
		s.logger.Info("Client disconnected", "reason", err)
	case errors.Is(err, io.EOF) || isExpectedCloseError(err):
		s.logger.Info("Client connection closed", "reason", err)
	case websocket.IsUnexpectedCloseError(err,
		websocket.CloseGoingAway,
		websocket.CloseAbnormalClosure,
		websocket.CloseMessageTooBig):
		s.logger.Warn("Unexpected WebSocket error", "error", err)
	default:
		s.logger.Warn("WebSocket read error", "error", err)
	}
}

func (s *Session) readPump() {
	defer func() {
		if err := s.conn.Close(); err != nil && !isExpectedCloseError(err) {
			s.logger.Warn("Error closing connection in readPump", "error", err)
		}
		s.disconnect()
	}()

	s.setupReadConnection()

	for {
		_, raw, err := s.conn.ReadMessage()
		if err != nil {
			s.logReadError(err)
			return
		}

		s.handleFrame(raw)
	}
}

func (s *Session) writePump() {
	ticker := time.NewTicker(pingPeriod)
	defer func() {
		ticker.Stop()
		s.closeConnection()
	}()

	for s.processWriteEvent(ticker) {
	}
}

// processWriteEvent waits for the next write event and returns false when the
// pump should stop processing.
func (s *Session) processWriteEvent(ticker *time.Ticker) bool {
	select {
	case message, ok := <-s.send:
		return s.handleMessage(message, ok)
	case <-ticker.C:
		return s.handlePing()
	}
}

// closeConnection safely closes the WebSocket connection with proper error handling
func (s *Session) closeConnection() {
	if err := s.conn.Close(); err != nil && !isExpectedCloseError(err) {
		s.logger.Warn("Error closing connection in writePump", "error", err)
	}
}

// handleMessage writes one outbound frame and returns false if the connection should be closed
func (s *Session) handleMessage(message []byte, ok bool) bool {
	if err := s.conn.SetWriteDeadline(time.Now().Add(writeWait)); err != nil {
		s.logger.Warn("Error setting write deadline", "error", err)
		return false
	}

	if !ok {
		return s.writeCloseMessage()
	}

	if err := s.conn.WriteMessage(websocket.TextMessage, message); err != nil {
		if !isExpectedCloseError(err) {
			s.logger.Warn("Error writing message", "error", err)
		}
		return false
	}
	return true
}

// writeCloseMessage sends a close message to the client
func (s *Session) writeCloseMessage() bool {
	err := s.conn.WriteMessage(websocket.CloseMessage,
		websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""))
	if err != nil && !isExpectedCloseError(err) {
		s.logger.Warn("Error writing close message", "error", err)
	}
	return false
}

// handlePing sends a ping message to keep the connection alive
func (s *Session) handlePing() bool {
	if err := s.conn.SetWriteDeadline(time.Now().Add(writeWait)); err != nil {
		s.logger.Warn("Error setting write deadline for ping", "error", err)
		return false
	}
	if err := s.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
		if !isExpectedCloseError(err) {
			s.logger.Warn("Error writing ping message", "error", err)
		}
		return false
	}
	return true
}
