// Package server implements the WebSocket relay on top of the relay package.
//
// The implementation is organized into specialized files for configuration,
// session management, the wire protocol, event dispatch, routing, and HTTP
// handlers. Each connection is one Session whose read pump processes its
// events in order; the SessionManager tracks sessions and guarantees that a
// disconnect leaves the session's room exactly once.
package server
