package relay

import (
	"io"
	"log/slog"
	"sync"
)

// fakeMember records every payload and closure it receives.
type fakeMember struct {
	id string

	mu       sync.Mutex
	payloads [][]byte
	closed   []string
	reject   bool
}

func newFakeMember(id string) *fakeMember {
	return &fakeMember{id: id}
}

func (m *fakeMember) ID() string { return m.id }

func (m *fakeMember) Deliver(payload []byte) bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.reject {
		return false
	}
	m.payloads = append(m.payloads, payload)
	return true
}

func (m *fakeMember) RoomClosed(code string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.closed = append(m.closed, code)
}

func (m *fakeMember) received() []string {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]string, len(m.payloads))
	for i, p := range m.payloads {
		out[i] = string(p)
	}
	return out
}

func (m *fakeMember) closures() []string {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]string(nil), m.closed...)
}

// sequenceSource hands out a fixed list of codes, then repeats the last one.
type sequenceSource struct {
	mu    sync.Mutex
	codes []string
	calls int
}

func (s *sequenceSource) Generate() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	idx := s.calls
	if idx >= len(s.codes) {
		idx = len(s.codes) - 1
	}
	s.calls++
	return s.codes[idx]
}

func quietLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}
