package storage

import (
	"context"
	"sync"

	"github.com/vishan-khatavkar/echoes-game/pkg/session"
)

// MockStorage is an in-memory Storage. It backs STORE=memory and the tests.
type MockStorage struct {
	mu        sync.RWMutex
	rows      map[string]session.Fields
	pingError error
	loadError error
	saveError error
	saves     int
}

// Ensure MockStorage implements Storage interface
var _ Storage = (*MockStorage)(nil)

// NewMockStorage creates a new mock storage
func NewMockStorage() *MockStorage {
	return &MockStorage{
		rows: make(map[string]session.Fields),
	}
}

// SetPingError configures the mock to fail on ping with the given error
func (m *MockStorage) SetPingError(err error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.pingError = err
}

// SetLoadError makes Load and Seed fail with err
func (m *MockStorage) SetLoadError(err error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.loadError = err
}

// SetSaveError makes Save fail with err
func (m *MockStorage) SetSaveError(err error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.saveError = err
}

// Put stores a raw row, bypassing Save. Useful for planting malformed data.
func (m *MockStorage) Put(username string, fields session.Fields) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.rows[username] = fields
}

// SaveCount returns how many successful saves happened
func (m *MockStorage) SaveCount() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.saves
}

// Ping mocks storage ping
func (m *MockStorage) Ping(ctx context.Context) error {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.pingError
}

// Close mocks storage close
func (m *MockStorage) Close() error {
	return nil
}

func (m *MockStorage) Load(ctx context.Context, username string) (*session.Fields, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	if m.loadError != nil {
		return nil, m.loadError
	}
	f, ok := m.rows[username]
	if !ok {
		return nil, nil
	}
	return &f, nil
}

func (m *MockStorage) Save(ctx context.Context, username string, fields session.Fields) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.saveError != nil {
		return m.saveError
	}
	m.rows[username] = fields
	m.saves++
	return nil
}

func (m *MockStorage) Seed(ctx context.Context, username string, seed session.Fields) (*session.Fields, bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.loadError != nil {
		return nil, false, m.loadError
	}
	if f, ok := m.rows[username]; ok {
		return &f, false, nil
	}
	m.rows[username] = seed
	return &seed, true, nil
}
