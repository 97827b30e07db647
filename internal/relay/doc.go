// Package relay implements the room lifecycle core of the relay: room code
// allocation, the authoritative registry of open rooms, membership and
// ownership tracking, and fan-out of encoded payloads to room members.
//
// The package does not know about any transport. Members are reached through
// the Member interface, which the server package implements per connection.
package relay
