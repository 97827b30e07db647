// Package server exposes HTTP handlers, including the WebSocket upgrade,
// health checks, room probes and metrics.
package server

import (
	"fmt"
	"net/http"
)

// WebSocketHandler upgrades the request and attaches the connection to the
// session manager, which launches the session's pumps.
func (s *RelayServer) WebSocketHandler(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w, "Method not allowed. WebSocket endpoint only accepts GET requests.", http.StatusMethodNotAllowed)
		return
	}

	conn, err := s.upgrader.Upgrade(w, r, nil)
	if err != nil {
		s.logger.Warn("WebSocket upgrade failed", "error", err)
		return
	}

	s.manager.Attach(conn, r.RemoteAddr)
}

// HealthHandler provides a simple health check endpoint that returns server status.
func HealthHandler(w http.ResponseWriter, _ *http.Request) {
	w.Header().Set("Content-Type", "text/plain")
	_, _ = fmt.Fprintf(w, "Relay server is running!")
}

// RoomExistsHandler reports whether ?room= names an open room without
// joining it.
func (s *RelayServer) RoomExistsHandler(w http.ResponseWriter, r *http.Request) {
	room := r.URL.Query().Get("room")
	if room == "" {
		http.Error(w, "missing room", http.StatusBadRequest)
		return
	}
	if s.registry.Exists(room) {
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("ok"))
		return
	}
	http.Error(w, "not found", http.StatusNotFound)
}
