package services

import (
	"context"
	"sync"
)

// MockNarrator is a mock implementation of session.Narrator for testing
type MockNarrator struct {
	CompleteFunc func(ctx context.Context, systemPrompt, userPrompt string) (string, error)

	// Track calls for testing
	CompleteCalls []CompleteCall

	mu sync.Mutex // protects all fields above
}

type CompleteCall struct {
	SystemPrompt string
	UserPrompt   string
}

// NewMockNarrator creates a new mock narrator
func NewMockNarrator() *MockNarrator {
	return &MockNarrator{
		CompleteCalls: make([]CompleteCall, 0),
	}
}

// Complete records the call and returns the configured reply
func (m *MockNarrator) Complete(ctx context.Context, systemPrompt, userPrompt string) (string, error) {
	m.mu.Lock()
	m.CompleteCalls = append(m.CompleteCalls, CompleteCall{
		SystemPrompt: systemPrompt,
		UserPrompt:   userPrompt,
	})
	fn := m.CompleteFunc
	m.mu.Unlock()

	if fn != nil {
		return fn(ctx, systemPrompt, userPrompt)
	}

	// Default behavior
	return "Mock narration", nil
}

// SetReply sets up the mock to always return reply
func (m *MockNarrator) SetReply(reply string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.CompleteFunc = func(ctx context.Context, systemPrompt, userPrompt string) (string, error) {
		return reply, nil
	}
}

// SetReplies sets up the mock to return replies in order, repeating the last one
func (m *MockNarrator) SetReplies(replies ...string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	i := 0
	m.CompleteFunc = func(ctx context.Context, systemPrompt, userPrompt string) (string, error) {
		m.mu.Lock()
		defer m.mu.Unlock()
		if len(replies) == 0 {
			return "", nil
		}
		r := replies[min(i, len(replies)-1)]
		i++
		return r, nil
	}
}

// SetError sets up the mock to return an error on Complete
func (m *MockNarrator) SetError(err error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.CompleteFunc = func(ctx context.Context, systemPrompt, userPrompt string) (string, error) {
		return "", err
	}
}

// Reset clears all call tracking
func (m *MockNarrator) Reset() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.CompleteCalls = make([]CompleteCall, 0)
}

// GetCalls returns a copy of the call tracking data in a thread-safe way
func (m *MockNarrator) GetCalls() []CompleteCall {
	m.mu.Lock()
	defer m.mu.Unlock()

	calls := make([]CompleteCall, len(m.CompleteCalls))
	copy(calls, m.CompleteCalls)
	return calls
}
