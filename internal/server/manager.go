// Package server coordinates session registration, room membership cleanup,
// and connection shutdown for the relay via the SessionManager type.
package server

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"

	"github.com/Tyrowin/roomrelay/internal/relay"
)

// roomRegistry is the part of relay.Registry the sessions drive.
type roomRegistry interface {
	CreateRoom(owner relay.Member) (string, error)
	JoinRoom(code string, m relay.Member) (string, error)
	Leave(code, sessionID string) bool
	Broadcast(code, from string, payload []byte) (int, error)
	Exists(code string) bool
	Members(code string) []string
}

// SessionManager binds every live connection to at most one room
// membership. It tracks sessions, starts their pumps, and on disconnect
// routes the leave to the registry exactly once.
type SessionManager struct {
	registry   roomRegistry
	metrics    *Metrics
	cfg        Config
	logger     *slog.Logger
	sessions   map[string]*Session
	register   chan *Session
	unregister chan *Session
	mutex      sync.RWMutex
	wg         sync.WaitGroup
	ctx        context.Context
	cancel     context.CancelFunc
	done       chan struct{}
}

// NewSessionManager creates a SessionManager routing room operations to
// registry. Run must be started before connections are attached.
func NewSessionManager(registry *relay.Registry, cfg Config, metrics *Metrics, logger *slog.Logger) *SessionManager {
	if metrics == nil {
		metrics = NewMetrics()
	}
	if logger == nil {
		logger = slog.Default()
	}
	ctx, cancel := context.WithCancel(context.Background())
	return &SessionManager{
		registry:   registry,
		metrics:    metrics,
		cfg:        sanitizeConfig(cfg),
		logger:     logger,
		sessions:   make(map[string]*Session),
		register:   make(chan *Session),
		unregister: make(chan *Session),
		ctx:        ctx,
		cancel:     cancel,
		done:       make(chan struct{}),
	}
}

// Attach wraps an upgraded connection in a new session with a fresh id and
// hands it to the manager loop, which starts its pumps. It returns nil when
// the manager is shutting down, in which case the connection is closed.
func (m *SessionManager) Attach(conn *websocket.Conn, addr string) *Session {
	session := newSession(uuid.NewString(), conn, m, addr)
	// The id frame is queued before the pumps start so it is always first.
	session.sendEvent(EventConnected, ConnectedPayload{SessionID: session.id})

	select {
	case m.register <- session:
		return session
	case <-m.ctx.Done():
		if conn != nil {
			_ = conn.Close()
		}
		return nil
	}
}

// Session returns the live session with the given id.
func (m *SessionManager) Session(id string) (*Session, bool) {
	m.mutex.RLock()
	defer m.mutex.RUnlock()
	s, ok := m.sessions[id]
	return s, ok
}

// Count returns the number of registered sessions.
func (m *SessionManager) Count() int {
	m.mutex.RLock()
	defer m.mutex.RUnlock()
	return len(m.sessions)
}

// Run starts the manager's main event loop, handling session registration
// and unregistration. This method should be called in a separate goroutine
// as it runs until Shutdown.
func (m *SessionManager) Run() {
	defer close(m.done)

	for {
		select {
		case <-m.ctx.Done():
			m.shutdownSessions()
			return

		case session := <-m.register:
			m.mutex.Lock()
			m.sessions[session.id] = session
			count := len(m.sessions)
			m.mutex.Unlock()
			m.metrics.IncConn()
			session.logger.Info("Client registered", "total", count)

			m.wg.Add(2)
			go func() {
				defer m.wg.Done()
				session.writePump()
			}()
			go func() {
				defer m.wg.Done()
				session.readPump()
			}()

		case session := <-m.unregister:
			m.removeSession(session)
		}
	}
}

func (m *SessionManager) removeSession(session *Session) {
	m.mutex.Lock()
	_, ok := m.sessions[session.id]
	delete(m.sessions, session.id)
	count := len(m.sessions)
	m.mutex.Unlock()

	// Close the channel after releasing the lock
	session.closeSend()
	if ok {
		m.metrics.DecConn()
		session.logger.Info("Client unregistered", "total", count)
	}
}

// unregisterSession hands session to the loop, or removes it directly when
// the loop has already stopped.
func (m *SessionManager) unregisterSession(session *Session) {
	select {
	case m.unregister <- session:
	case <-m.done:
		m.removeSession(session)
	}
}

// leave removes session from the room named by code and records a closure
// when the session owned it.
func (m *SessionManager) leave(session *Session, code string) {
	if m.registry.Leave(code, session.id) {
		m.metrics.IncRoomClosed()
	}
}

// shutdownSessions closes every connection. Each read pump then runs its
// disconnect cleanup, which tears down the rooms the session owned.
func (m *SessionManager) shutdownSessions() {
	m.logger.Info("Shutting down all client connections...")

	m.mutex.RLock()
	sessions := make([]*Session, 0, len(m.sessions))
	for _, session := range m.sessions {
		sessions = append(sessions, session)
	}
	m.mutex.RUnlock()

	for _, session := range sessions {
		if session.conn != nil {
			if err := session.conn.Close(); err != nil && !isExpectedCloseError(err) {
				session.logger.Warn("Error closing client connection", "error", err)
			}
		}
	}

	m.logger.Info("Closed client connections", "count", len(sessions))
}

// Shutdown stops the manager loop and waits for every session goroutine to
// finish, or for timeout to elapse.
func (m *SessionManager) Shutdown(timeout time.Duration) error {
	m.logger.Info("Initiating session manager shutdown...")

	m.cancel()
	<-m.done

	done := make(chan struct{})
	go func() {
		m.wg.Wait()
		close(done)
	}()

	select {
	case <-done:
		m.logger.Info("Session manager shutdown completed successfully")
		return nil
	case <-time.After(timeout):
		m.logger.Warn("Session manager shutdown timeout reached, some goroutines may still be running")
		return context.DeadlineExceeded
	}
}
