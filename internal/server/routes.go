// Package server wires HTTP handlers into a ServeMux for the relay
// application via routing helpers.
package server

import "net/http"

// SetupRoutes configures and returns an HTTP ServeMux with all application routes.
func (s *RelayServer) SetupRoutes() *http.ServeMux {
	mux := http.NewServeMux()
	mux.HandleFunc("/", HealthHandler)
	mux.HandleFunc("/ws", s.WebSocketHandler)
	mux.HandleFunc("/exists", s.RoomExistsHandler)
	mux.Handle("/metrics", s.metrics.Handler(s.registry.OpenRooms))
	return mux
}
