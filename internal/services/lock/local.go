package lock

import (
	"context"
	"fmt"
	"sync"
)

// LocalLocker serializes turns within one process.
type LocalLocker struct {
	mu    sync.Mutex
	slots map[string]*slot
}

type slot struct {
	ch   chan struct{}
	refs int
}

func NewLocalLocker() *LocalLocker {
	return &LocalLocker{slots: make(map[string]*slot)}
}

func (l *LocalLocker) Acquire(ctx context.Context, username string) (func(), error) {
	l.mu.Lock()
	s, ok := l.slots[username]
	if !ok {
		s = &slot{ch: make(chan struct{}, 1)}
		l.slots[username] = s
	}
	s.refs++
	l.mu.Unlock()

	select {
	case s.ch <- struct{}{}:
	case <-ctx.Done():
		l.drop(username, s)
		return nil, fmt.Errorf("%w: %v", ErrNotAcquired, ctx.Err())
	}

	var once sync.Once
	return func() {
		once.Do(func() {
			<-s.ch
			l.drop(username, s)
		})
	}, nil
}

func (l *LocalLocker) drop(username string, s *slot) {
	l.mu.Lock()
	defer l.mu.Unlock()
	s.refs--
	if s.refs == 0 {
		delete(l.slots, username)
	}
}
