package session

import (
	"context"
	"sync"
)

type stubNarrator struct {
	mu      sync.Mutex
	replies []string
	err     error
	calls   []stubCall
}

type stubCall struct {
	System string
	User   string
}

func (s *stubNarrator) Complete(_ context.Context, system, user string) (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.calls = append(s.calls, stubCall{System: system, User: user})
	if s.err != nil {
		return "", s.err
	}
	if len(s.replies) == 0 {
		return "Nothing happens.", nil
	}
	reply := s.replies[0]
	if len(s.replies) > 1 {
		s.replies = s.replies[1:]
	}
	return reply, nil
}

type mapSeeder struct {
	mu    sync.Mutex
	rows  map[string]Fields
	seeds int
	err   error
}

func newMapSeeder() *mapSeeder {
	return &mapSeeder{rows: make(map[string]Fields)}
}

func (m *mapSeeder) Seed(_ context.Context, username string, seed Fields) (*Fields, bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.err != nil {
		return nil, false, m.err
	}
	if f, ok := m.rows[username]; ok {
		return &f, false, nil
	}
	m.rows[username] = seed
	m.seeds++
	return &seed, true, nil
}
