// Package server tracks relay counters and serves them as JSON for
// monitoring.
package server

import (
	"encoding/json"
	"net/http"
	"sync/atomic"
)

// Metrics holds process-wide relay counters.
type Metrics struct {
	activeConns     atomic.Int64
	roomsCreated    atomic.Uint64
	roomsClosed     atomic.Uint64
	messagesRelayed atomic.Uint64
	filesRelayed    atomic.Uint64
	errorsSent      atomic.Uint64
}

// MetricsSnapshot is the JSON document served at /metrics.
type MetricsSnapshot struct {
	ActiveConnections int64  `json:"active_connections"`
	OpenRooms         int    `json:"open_rooms"`
	RoomsCreated      uint64 `json:"rooms_created"`
	RoomsClosed       uint64 `json:"rooms_closed"`
	MessagesRelayed   uint64 `json:"messages_relayed"`
	FilesRelayed      uint64 `json:"files_relayed"`
	ErrorsSent        uint64 `json:"errors_sent"`
}

// NewMetrics creates a Metrics instance with every counter at zero.
func NewMetrics() *Metrics {
	return &Metrics{}
}

// IncConn records a newly registered session.
func (m *Metrics) IncConn() { m.activeConns.Add(1) }

// DecConn records a session that was unregistered.
func (m *Metrics) DecConn() { m.activeConns.Add(-1) }

// IncRoomCreated records a room opened by create_room.
func (m *Metrics) IncRoomCreated() { m.roomsCreated.Add(1) }

// IncRoomClosed records a room closed because its owner left.
func (m *Metrics) IncRoomClosed() { m.roomsClosed.Add(1) }

// IncMessage records a text message relayed to a room.
func (m *Metrics) IncMessage() { m.messagesRelayed.Add(1) }

// IncFile records a file relayed to a room.
func (m *Metrics) IncFile() { m.filesRelayed.Add(1) }

// IncError records an error event sent to a client.
func (m *Metrics) IncError() { m.errorsSent.Add(1) }

// Snapshot reads every counter. openRooms comes from the registry.
func (m *Metrics) Snapshot(openRooms int) MetricsSnapshot {
	return MetricsSnapshot{
		ActiveConnections: m.activeConns.Load(),
		OpenRooms:         openRooms,
		RoomsCreated:      m.roomsCreated.Load(),
		RoomsClosed:       m.roomsClosed.Load(),
		MessagesRelayed:   m.messagesRelayed.Load(),
		FilesRelayed:      m.filesRelayed.Load(),
		ErrorsSent:        m.errorsSent.Load(),
	}
}

// Handler serves the snapshot as JSON.
func (m *Metrics) Handler(openRooms func() int) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		_ = json.NewEncoder(w).Encode(m.Snapshot(openRooms()))
	})
}
